// Package acquirer downloads extracted media URLs to local disk.
// Downloads stream straight to a working-directory file under a size
// ceiling, get sniffed for disguised error pages, and are rejected
// when implausibly small. Transport failures and upstream 5xx retry
// with backoff; validation failures do not.
package acquirer
