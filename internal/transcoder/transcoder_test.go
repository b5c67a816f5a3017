package transcoder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseProfile(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantName    string
		wantBitrate string
	}{
		{"low", "low", "low", "64k"},
		{"medium", "medium", "medium", "128k"},
		{"high", "high", "high", "192k"},
		{"unknown falls back", "lossless", "medium", "128k"},
		{"empty falls back", "", "medium", "128k"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ParseProfile(tt.input)
			if p.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", p.Name, tt.wantName)
			}
			if p.Bitrate != tt.wantBitrate {
				t.Errorf("Bitrate = %q, want %q", p.Bitrate, tt.wantBitrate)
			}
		})
	}
}

func TestProfileShape(t *testing.T) {
	if p := ParseProfile("low"); p.Channels != 1 || p.SampleRate != 22050 {
		t.Errorf("low profile = %+v", p)
	}
	if p := ParseProfile("high"); p.Channels != 2 || p.SampleRate != 44100 {
		t.Errorf("high profile = %+v", p)
	}
}

// installFakeTools puts stub ffmpeg/ffprobe scripts on PATH. The fake
// ffprobe reports the stream layout passed in; the fake ffmpeg writes
// a marker byte to its last argument.
func installFakeTools(t *testing.T, probeJSON string) {
	t.Helper()
	dir := t.TempDir()

	probe := "#!/bin/sh\ncat <<'EOF'\n" + probeJSON + "\nEOF\n"
	if err := os.WriteFile(filepath.Join(dir, "ffprobe"), []byte(probe), 0o755); err != nil {
		t.Fatal(err)
	}

	ffmpeg := "#!/bin/sh\n" +
		"for last; do :; done\n" +
		"i=0\n" +
		"while [ $i -lt 64 ]; do printf 'mp3data.'; i=$((i+1)); done > \"$last\"\n"
	if err := os.WriteFile(filepath.Join(dir, "ffmpeg"), []byte(ffmpeg), 0o755); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

const probeWithAudio = `{"streams":[{"codec_type":"video"},{"codec_type":"audio"}],"format":{"format_name":"mov,mp4","duration":"12.5"}}`
const probeNoAudio = `{"streams":[{"codec_type":"video"}],"format":{"format_name":"mov,mp4","duration":"3.0"}}`

func TestProbe(t *testing.T) {
	installFakeTools(t, probeWithAudio)
	tr := New(time.Minute)

	if _, ok := tr.Available(); !ok {
		t.Fatal("ffprobe stub not found on PATH")
	}

	info, err := tr.Probe(context.Background(), "/tmp/in.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if !info.HasAudio || !info.HasVideo {
		t.Errorf("info = %+v, want audio and video streams", info)
	}
	if info.Duration != 12.5 {
		t.Errorf("Duration = %v, want 12.5", info.Duration)
	}
}

func TestToMP3(t *testing.T) {
	installFakeTools(t, probeWithAudio)
	tr := New(time.Minute)

	out := filepath.Join(t.TempDir(), "out.mp3")
	if err := tr.ToMP3(context.Background(), "/tmp/in.mp4", out, ParseProfile("medium")); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "mp3data.") {
		t.Errorf("output starts with %q", data[:8])
	}
	if len(data) < minOutputBytes {
		t.Errorf("output is %d bytes, below the acceptance floor", len(data))
	}
}

func TestToMP3RejectsTruncatedOutput(t *testing.T) {
	installFakeTools(t, probeWithAudio)

	// Replace the fake ffmpeg with one that writes a header only.
	dir := t.TempDir()
	probe := "#!/bin/sh\ncat <<'EOF'\n" + probeWithAudio + "\nEOF\n"
	if err := os.WriteFile(filepath.Join(dir, "ffprobe"), []byte(probe), 0o755); err != nil {
		t.Fatal(err)
	}
	ffmpeg := "#!/bin/sh\nfor last; do :; done\nprintf 'ID3' > \"$last\"\n"
	if err := os.WriteFile(filepath.Join(dir, "ffmpeg"), []byte(ffmpeg), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", dir)

	tr := New(time.Minute)
	out := filepath.Join(t.TempDir(), "out.mp3")
	if err := tr.ToMP3(context.Background(), "/tmp/in.mp4", out, DefaultProfile); err == nil {
		t.Error("header-only output accepted")
	}
}

func TestToMP3NoAudioStream(t *testing.T) {
	installFakeTools(t, probeNoAudio)
	tr := New(time.Minute)

	out := filepath.Join(t.TempDir(), "out.mp3")
	err := tr.ToMP3(context.Background(), "/tmp/in.mp4", out, DefaultProfile)
	if !errors.Is(err, ErrNoAudio) {
		t.Errorf("error = %v, want ErrNoAudio", err)
	}
	if _, statErr := os.Stat(out); statErr == nil {
		t.Error("output file created despite missing audio stream")
	}
}

func TestMissingBinaries(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	tr := New(time.Minute)

	ffmpeg, ffprobe := tr.Available()
	if ffmpeg || ffprobe {
		t.Fatal("Available() reported tools on an empty PATH")
	}
	if err := tr.ToMP3(context.Background(), "in", "out", DefaultProfile); err == nil {
		t.Error("ToMP3 succeeded without ffmpeg")
	}
	if _, err := tr.Probe(context.Background(), "in"); err == nil {
		t.Error("Probe succeeded without ffprobe")
	}
}
