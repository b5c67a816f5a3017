package transcoder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"clip2mp3/internal/logging"
	"clip2mp3/internal/metrics"
)

// ErrNoAudio means the input has no audio stream to extract.
var ErrNoAudio = errors.New("input has no audio stream")

// minOutputBytes is the smallest output accepted as a real encode.
// ffmpeg can exit zero after writing only a header.
const minOutputBytes = 128

// Profile selects the output encoding quality.
type Profile struct {
	Name       string
	Bitrate    string
	SampleRate int
	Channels   int
}

var profiles = map[string]Profile{
	"low":    {Name: "low", Bitrate: "64k", SampleRate: 22050, Channels: 1},
	"medium": {Name: "medium", Bitrate: "128k", SampleRate: 44100, Channels: 2},
	"high":   {Name: "high", Bitrate: "192k", SampleRate: 44100, Channels: 2},
}

// DefaultProfile is used when the request names no quality or an
// unknown one.
var DefaultProfile = profiles["medium"]

// ParseProfile maps a quality name to a Profile, falling back to the
// default for unknown names.
func ParseProfile(name string) Profile {
	if p, ok := profiles[name]; ok {
		return p
	}
	return DefaultProfile
}

// ProfileNames returns the known quality names.
func ProfileNames() []string {
	return []string{"low", "medium", "high"}
}

// MediaInfo is the subset of probe output the pipeline consumes.
type MediaInfo struct {
	Duration float64
	HasAudio bool
	HasVideo bool
	Format   string
}

// Transcoder extracts audio tracks from downloaded media via ffmpeg.
type Transcoder struct {
	ffmpegPath  string
	ffprobePath string
	timeout     time.Duration

	processMu sync.Mutex
	processes map[string]*exec.Cmd
}

// New creates a Transcoder, resolving the ffmpeg and ffprobe binaries
// from PATH. Missing binaries are recorded, not fatal; Available
// reports what was found so startup can log and refuse accordingly.
func New(timeout time.Duration) *Transcoder {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	t := &Transcoder{
		timeout:   timeout,
		processes: make(map[string]*exec.Cmd),
	}
	if path, err := exec.LookPath("ffmpeg"); err == nil {
		t.ffmpegPath = path
	}
	if path, err := exec.LookPath("ffprobe"); err == nil {
		t.ffprobePath = path
	}
	return t
}

// Available reports whether ffmpeg and ffprobe were found on PATH.
func (t *Transcoder) Available() (ffmpeg, ffprobe bool) {
	return t.ffmpegPath != "", t.ffprobePath != ""
}

// probeOutput mirrors the ffprobe JSON we consume.
type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
	} `json:"streams"`
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
}

// Probe inspects a media file. Used to reject downloads with no audio
// before spending a transcode on them.
func (t *Transcoder) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	if t.ffprobePath == "" {
		return nil, fmt.Errorf("ffprobe not available")
	}

	cmd := exec.CommandContext(ctx, t.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe: %w - %s", err, stderr.String())
	}

	var out probeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("ffprobe output decode: %w", err)
	}

	info := &MediaInfo{Format: out.Format.FormatName}
	info.Duration, _ = strconv.ParseFloat(out.Format.Duration, 64)
	for _, s := range out.Streams {
		switch s.CodecType {
		case "audio":
			info.HasAudio = true
		case "video":
			info.HasVideo = true
		}
	}
	return info, nil
}

// ToMP3 extracts the audio track of inputPath into an MP3 at
// outputPath using the given profile. The input is probed first so a
// silent clip fails with ErrNoAudio instead of an opaque ffmpeg error.
func (t *Transcoder) ToMP3(ctx context.Context, inputPath, outputPath string, profile Profile) error {
	if t.ffmpegPath == "" {
		return fmt.Errorf("ffmpeg not available")
	}

	start := time.Now()

	if t.ffprobePath != "" {
		info, err := t.Probe(ctx, inputPath)
		if err != nil {
			metrics.TranscodesTotal.WithLabelValues(profile.Name, "probe_error").Inc()
			return err
		}
		if !info.HasAudio {
			metrics.TranscodesTotal.WithLabelValues(profile.Name, "no_audio").Inc()
			return ErrNoAudio
		}
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	args := []string{
		"-y",
		"-i", inputPath,
		"-vn",
		"-map", "a",
		"-ar", strconv.Itoa(profile.SampleRate),
		"-ac", strconv.Itoa(profile.Channels),
		"-b:a", profile.Bitrate,
		"-f", "mp3",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	t.processMu.Lock()
	t.processes[inputPath] = cmd
	t.processMu.Unlock()
	defer func() {
		t.processMu.Lock()
		delete(t.processes, inputPath)
		t.processMu.Unlock()
	}()

	if err := cmd.Run(); err != nil {
		metrics.TranscodesTotal.WithLabelValues(profile.Name, "failure").Inc()
		if ctx.Err() != nil {
			return fmt.Errorf("transcode timed out after %v", t.timeout)
		}
		logging.Error("ffmpeg stderr: %s", stderr.String())
		return fmt.Errorf("ffmpeg: %w", err)
	}

	fi, err := os.Stat(outputPath)
	if err != nil {
		metrics.TranscodesTotal.WithLabelValues(profile.Name, "failure").Inc()
		return fmt.Errorf("transcode output missing: %w", err)
	}
	if fi.Size() < minOutputBytes {
		metrics.TranscodesTotal.WithLabelValues(profile.Name, "failure").Inc()
		return fmt.Errorf("transcode output only %d bytes", fi.Size())
	}

	elapsed := time.Since(start)
	metrics.TranscodesTotal.WithLabelValues(profile.Name, "success").Inc()
	metrics.TranscodeDuration.Observe(elapsed.Seconds())
	logging.Info("transcoded %s (%s profile) in %v", inputPath, profile.Name, elapsed.Round(time.Millisecond))
	return nil
}

// Cleanup kills any in-flight ffmpeg processes. Called on shutdown.
func (t *Transcoder) Cleanup() {
	t.processMu.Lock()
	defer t.processMu.Unlock()

	for path, cmd := range t.processes {
		if cmd.Process != nil {
			logging.Info("killing transcode process for %s", path)
			if err := cmd.Process.Kill(); err != nil {
				logging.Warn("failed to kill transcode process for %s: %v", path, err)
			}
		}
	}
}
