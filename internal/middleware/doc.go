// Package middleware provides HTTP middleware for the converter service:
// request logging, Prometheus metrics collection, and CORS headers for
// browser clients.
package middleware
