package handlers

import (
	"net/http"
	"runtime"
	"time"

	"clip2mp3/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// HealthResponse is the /health body.
type HealthResponse struct {
	Status  string `json:"status"`
	Ready   bool   `json:"ready"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`

	ToolsAvailable bool  `json:"toolsAvailable"`
	CacheEntries   int   `json:"cacheEntries"`
	CacheBytes     int64 `json:"cacheBytes"`
	Inflight       int   `json:"inflight"`

	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck reports overall service health. Missing ffmpeg degrades
// the service rather than killing it: cached entries still serve.
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	stats := h.store.GetStats()

	response := HealthResponse{
		Ready:          h.toolsReady,
		Version:        startup.Version,
		Uptime:         time.Since(h.startTime).Round(time.Second).String(),
		ToolsAvailable: h.toolsReady,
		CacheEntries:   stats.Entries,
		CacheBytes:     stats.TotalBytes,
		Inflight:       h.converter.InflightCount(),
		GoVersion:      runtime.Version(),
		NumCPU:         runtime.NumCPU(),
		NumGoroutine:   runtime.NumGoroutine(),
	}

	if h.toolsReady {
		response.Status = statusHealthy
	} else {
		response.Status = statusDegraded
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	writeJSON(w, response)
}

// LivenessCheck answers 200 whenever the process can serve requests.
func (h *Handlers) LivenessCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "alive"})
}

// ReadinessCheck answers 200 once conversions can actually run.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	if !h.toolsReady {
		writeJSONError(w, "ffmpeg not available", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]string{"status": "ready"})
}

// VersionResponse is the /version body.
type VersionResponse struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
}

// GetVersion reports build information.
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, VersionResponse{
		Version:   startup.Version,
		Commit:    startup.Commit,
		BuildTime: startup.BuildTime,
		GoVersion: runtime.Version(),
	})
}
