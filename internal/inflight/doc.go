// Package inflight coalesces concurrent conversions of the same
// fingerprint. One caller leads and does the work; the rest wait on
// its result for a bounded time, then fall back to converting
// independently so a wedged leader cannot strand its followers.
package inflight
