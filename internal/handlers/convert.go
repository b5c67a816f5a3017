package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"clip2mp3/internal/cache"
	"clip2mp3/internal/logging"
	"clip2mp3/internal/middleware"
	"clip2mp3/internal/pipeline"
)

// ConvertRequest is the POST /api/convert body.
type ConvertRequest struct {
	URL     string `json:"url"`
	Format  string `json:"format,omitempty"`
	Quality string `json:"quality,omitempty"`
}

// ConvertResponse describes a finished conversion.
type ConvertResponse struct {
	Fingerprint string `json:"fingerprint"`
	Cached      bool   `json:"cached"`
	FileURL     string `json:"fileUrl"`
	CoverURL    string `json:"coverUrl,omitempty"`
	Author      string `json:"author,omitempty"`
	Description string `json:"description,omitempty"`
	Format      string `json:"format"`
	Quality     string `json:"quality"`
	Size        int64  `json:"size"`
}

// Convert accepts a video URL and returns the location of the
// converted artifact. Admission is decided inside the pipeline so a
// cache hit never burns rate-limit capacity.
func (h *Handlers) Convert(w http.ResponseWriter, r *http.Request) {
	var req ConvertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		writeJSONError(w, "url is required", http.StatusBadRequest)
		return
	}

	clientIP := middleware.ClientIP(r)
	outcome, err := h.converter.Convert(r.Context(), pipeline.Request{
		URL:     req.URL,
		Format:  req.Format,
		Quality: req.Quality,
		Admit:   func() bool { return h.limiter.Allow(clientIP) },
	})
	if err != nil {
		var perr *pipeline.Error
		if errors.As(err, &perr) && perr.Kind == pipeline.KindRateLimited {
			logging.Warn("rate limit exceeded for %s", clientIP)
			w.Header().Set("Retry-After", strconv.Itoa(int(h.rateWindow/time.Second)))
			writeJSONError(w, "too many requests, slow down", http.StatusTooManyRequests)
			return
		}
		status, message := mapPipelineError(err)
		writeJSONError(w, message, status)
		return
	}

	writeJSON(w, buildConvertResponse(outcome))
}

func buildConvertResponse(outcome *pipeline.Outcome) ConvertResponse {
	entry := outcome.Entry
	resp := ConvertResponse{
		Fingerprint: entry.Fingerprint,
		Cached:      outcome.CacheHit,
		FileURL:     "/api/audio/" + filepath.Base(entry.Path),
		Author:      entry.Author,
		Description: entry.Description,
		Format:      entry.Format,
		Quality:     entry.Quality,
		Size:        entry.Size,
	}
	if entry.CoverPath != "" {
		resp.CoverURL = "/api/cover/" + entry.Fingerprint + ".jpg"
	}
	return resp
}

// mapPipelineError translates a conversion failure into an HTTP status
// and a client-safe message.
func mapPipelineError(err error) (int, string) {
	var perr *pipeline.Error
	if !errors.As(err, &perr) {
		return http.StatusInternalServerError, "conversion failed"
	}

	switch perr.Kind {
	case pipeline.KindValidation:
		return http.StatusBadRequest, perr.Err.Error()
	case pipeline.KindResolution:
		return http.StatusBadGateway, "could not resolve media for this URL"
	case pipeline.KindAcquisition:
		return http.StatusBadGateway, "could not download media for this URL"
	case pipeline.KindTranscode:
		return http.StatusInternalServerError, "audio extraction failed"
	default:
		return http.StatusInternalServerError, "conversion failed"
	}
}

// entryContentType returns the MIME type for a cached artifact.
func entryContentType(entry *cache.Entry) string {
	if entry.Format == pipeline.FormatVideo {
		return "video/mp4"
	}
	return "audio/mpeg"
}
