// Package transcoder shells out to ffmpeg to extract MP3 audio from
// downloaded media files. Inputs are probed with ffprobe first so
// clips without an audio track fail fast. Three quality profiles map
// to bitrate, sample rate, and channel layout.
package transcoder
