// Package memory sizes the Go heap relative to the container it runs
// in. Transcoding spawns ffmpeg children whose memory the Go runtime
// cannot see, so the heap limit is held below the container limit to
// leave them room.
package memory
