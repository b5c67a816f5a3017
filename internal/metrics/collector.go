package metrics

import (
	"time"

	"clip2mp3/internal/logging"
)

// StatsProvider reports current cache statistics for export.
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds a point-in-time snapshot of cache state.
type Stats struct {
	Entries    int
	TotalBytes int64
}

// Collector periodically pulls stats from a provider and updates gauges.
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	// Collect immediately on start
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()
	CacheEntries.Set(float64(stats.Entries))
	CacheSizeBytes.Set(float64(stats.TotalBytes))

	logging.Debug("metrics collector: %d cache entries, %d bytes", stats.Entries, stats.TotalBytes)
}
