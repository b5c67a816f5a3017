package handlers

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"clip2mp3/internal/filesystem"
	"clip2mp3/internal/logging"
	"clip2mp3/internal/streaming"
)

// isFingerprint reports whether s looks like a SHA-256 hex digest.
// Everything else is rejected before touching the filesystem.
func isFingerprint(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// GetArtifact serves a cached conversion by fingerprint.
func (h *Handlers) GetArtifact(w http.ResponseWriter, r *http.Request) {
	file := mux.Vars(r)["file"]
	ext := filepath.Ext(file)
	fingerprint := strings.TrimSuffix(file, ext)

	if !isFingerprint(fingerprint) || (ext != ".mp3" && ext != ".mp4") {
		writeJSONError(w, "not found", http.StatusNotFound)
		return
	}

	entry, ok := h.store.Get(r.Context(), fingerprint)
	if !ok || filepath.Base(entry.Path) != file {
		writeJSONError(w, "not found", http.StatusNotFound)
		return
	}

	f, err := filesystem.OpenWithRetry(entry.Path, filesystem.DefaultRetryConfig())
	if err != nil {
		logging.Error("failed to open cached artifact %s: %v", entry.Path, err)
		writeJSONError(w, "artifact unavailable", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", entryContentType(entry))
	w.Header().Set("Content-Length", strconv.FormatInt(entry.Size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", downloadName(entry.Author, entry.Fingerprint, ext)))
	w.Header().Set("Cache-Control", "private, max-age=3600")

	if _, err := streaming.Copy(r.Context(), w, f, streaming.DefaultConfig()); err != nil {
		// Headers are gone; all we can do is log.
		logging.Debug("artifact delivery for %s ended early: %v", fingerprint, err)
	}
}

// downloadName builds a friendly attachment filename from the author
// when one is known.
func downloadName(author, fingerprint, ext string) string {
	if author == "" {
		return fingerprint[:12] + ext
	}
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '_'
		default:
			return -1
		}
	}, author)
	if safe == "" {
		return fingerprint[:12] + ext
	}
	return safe + "_" + fingerprint[:8] + ext
}

// GetCover serves the stored cover thumbnail for a fingerprint.
func (h *Handlers) GetCover(w http.ResponseWriter, r *http.Request) {
	fingerprint := strings.TrimSuffix(mux.Vars(r)["file"], ".jpg")
	if !isFingerprint(fingerprint) {
		writeJSONError(w, "not found", http.StatusNotFound)
		return
	}

	entry, ok := h.store.Get(r.Context(), fingerprint)
	if !ok || entry.CoverPath == "" {
		writeJSONError(w, "not found", http.StatusNotFound)
		return
	}

	f, err := filesystem.OpenWithRetry(entry.CoverPath, filesystem.DefaultRetryConfig())
	if err != nil {
		writeJSONError(w, "not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if _, err := streaming.Copy(r.Context(), w, f, streaming.DefaultConfig()); err != nil {
		logging.Debug("cover delivery for %s ended early: %v", fingerprint, err)
	}
}
