// Package ratelimit tracks request timestamps per client and rejects
// requests past a configured count within a sliding window. Unlike a
// token bucket, the window is exact: the Nth+1 request inside the
// window is denied regardless of pacing.
package ratelimit
