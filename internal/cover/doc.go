// Package cover downloads video cover art and stores resized JPEG
// thumbnails next to the cached audio. Covers are strictly optional
// output; any failure here degrades the response, never fails it.
package cover
