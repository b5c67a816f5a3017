// Package proxyring rotates outbound requests across a pool of HTTP
// proxies. The pool is seeded from configuration and optionally topped
// up from public proxy listings on a refresh interval. Failed proxies
// are evicted from rotation; an empty pool means direct connections.
package proxyring
