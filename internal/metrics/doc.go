// Package metrics declares the Prometheus collectors for the converter
// service: HTTP traffic, pipeline outcomes, extraction strategies, media
// downloads, transcodes, cache state, rate limiting, and proxy rotation.
//
// Metrics are served on a dedicated port (METRICS_PORT) by the main server
// setup so that operational scrapes never contend with media traffic.
package metrics
