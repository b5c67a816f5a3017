package handlers

import (
	"net/http"
	"time"
)

// StatsResponse is the /api/stats body.
type StatsResponse struct {
	CacheEntries    int      `json:"cacheEntries"`
	CacheBytes      int64    `json:"cacheBytes"`
	Inflight        int      `json:"inflight"`
	ProxyPool       int      `json:"proxyPool"`
	Strategies      []string `json:"strategies"`
	RateLimitMax    int      `json:"rateLimitMax"`
	RateLimitWindow string   `json:"rateLimitWindow"`
	ToolsReady      bool     `json:"toolsReady"`
	Uptime          string   `json:"uptime"`
}

// GetStats reports operational counters for dashboards and debugging.
func (h *Handlers) GetStats(w http.ResponseWriter, _ *http.Request) {
	stats := h.store.GetStats()

	resp := StatsResponse{
		CacheEntries:    stats.Entries,
		CacheBytes:      stats.TotalBytes,
		Inflight:        h.converter.InflightCount(),
		Strategies:      h.strategies,
		RateLimitMax:    h.rateMax,
		RateLimitWindow: h.rateWindow.String(),
		ToolsReady:      h.toolsReady,
		Uptime:          time.Since(h.startTime).Round(time.Second).String(),
	}
	if h.ring != nil {
		resp.ProxyPool = h.ring.Size()
	}
	writeJSON(w, resp)
}
