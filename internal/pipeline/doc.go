// Package pipeline orchestrates a conversion from URL to cached
// artifact: normalize and fingerprint the link, serve from cache when
// possible, otherwise extract a media URL, download it, transcode the
// audio, and store the result. Concurrent requests for the same
// fingerprint coalesce onto one running conversion, and total
// conversion parallelism is bounded.
package pipeline
