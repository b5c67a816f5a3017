package handlers

import (
	"context"
	"time"

	"clip2mp3/internal/cache"
	"clip2mp3/internal/pipeline"
	"clip2mp3/internal/proxyring"
	"clip2mp3/internal/ratelimit"
	"clip2mp3/internal/startup"
)

// Converter is the pipeline surface the HTTP layer needs. Tests swap
// in a stub.
type Converter interface {
	Convert(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error)
	InflightCount() int
}

type Handlers struct {
	converter Converter
	store     *cache.Store
	limiter   *ratelimit.Limiter
	ring      *proxyring.Ring

	adminTokenHash string
	strategies     []string
	toolsReady     bool
	rateMax        int
	rateWindow     time.Duration
	startTime      time.Time
}

// New wires the handler set.
func New(conv Converter, store *cache.Store, limiter *ratelimit.Limiter, ring *proxyring.Ring, config *startup.Config, toolsReady bool, strategies []string) *Handlers {
	return &Handlers{
		converter:      conv,
		store:          store,
		limiter:        limiter,
		ring:           ring,
		adminTokenHash: config.AdminTokenHash,
		strategies:     strategies,
		toolsReady:     toolsReady,
		rateMax:        config.RateLimitMax,
		rateWindow:     config.RateLimitWindow,
		startTime:      time.Now(),
	}
}
