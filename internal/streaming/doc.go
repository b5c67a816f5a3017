// Package streaming delivers cached artifacts to HTTP clients with
// timeout protection. A client that stops reading mid-download would
// otherwise pin a handler goroutine and its open file indefinitely;
// writes here are chunked and abandoned when the client stalls.
package streaming
