package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip2mp3_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clip2mp3_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clip2mp3_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Pipeline metrics
var (
	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip2mp3_pipeline_runs_total",
			Help: "Total number of pipeline runs by terminal outcome",
		},
		[]string{"outcome"}, // hit, converted, validation, ratelimited, resolution, acquisition, transcode, internal
	)

	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clip2mp3_pipeline_duration_seconds",
			Help:    "End-to-end pipeline run duration in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	InflightWaitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip2mp3_inflight_waits_total",
			Help: "Requests that found an identical request already in flight",
		},
		[]string{"outcome"}, // joined, timeout
	)
)

// Extraction metrics
var (
	ExtractionAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip2mp3_extraction_attempts_total",
			Help: "Extraction strategy attempts by strategy and result",
		},
		[]string{"strategy", "status"}, // status: success, failure
	)

	ExtractionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clip2mp3_extraction_duration_seconds",
			Help:    "Extraction strategy duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		},
		[]string{"strategy"},
	)
)

// Acquisition metrics
var (
	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip2mp3_downloads_total",
			Help: "Media download attempts by result",
		},
		[]string{"status"}, // success, too_small, too_large, http_error, probe_failed, network_error
	)

	DownloadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clip2mp3_download_bytes",
			Help:    "Size of successfully downloaded media files in bytes",
			Buckets: prometheus.ExponentialBuckets(64*1024, 4, 8),
		},
	)

	DownloadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clip2mp3_download_duration_seconds",
			Help:    "Media download duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)
)

// Transcoding metrics
var (
	TranscodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip2mp3_transcodes_total",
			Help: "Transcode attempts by profile and result",
		},
		[]string{"profile", "status"},
	)

	TranscodeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clip2mp3_transcode_duration_seconds",
			Help:    "ffmpeg transcode duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)
)

// Cache metrics
var (
	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clip2mp3_cache_hits_total",
			Help: "Cache lookups that returned a live entry",
		},
	)

	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clip2mp3_cache_misses_total",
			Help: "Cache lookups that found no usable entry",
		},
	)

	CacheEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip2mp3_cache_evictions_total",
			Help: "Cache entries evicted by reason",
		},
		[]string{"reason"}, // expired, capacity, stale, clear
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clip2mp3_cache_entries",
			Help: "Number of entries currently in the cache",
		},
	)

	CacheSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clip2mp3_cache_size_bytes",
			Help: "Aggregate size of cached artifacts in bytes",
		},
	)
)

// Rate limiter metrics
var (
	RateLimitDeniedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clip2mp3_ratelimit_denied_total",
			Help: "Pipeline admissions denied by the sliding-window rate limiter",
		},
	)
)

// Proxy pool metrics
var (
	ProxyPoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clip2mp3_proxy_pool_size",
			Help: "Number of proxies currently in the rotation pool",
		},
	)

	ProxyFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clip2mp3_proxy_failures_total",
			Help: "Proxies marked failed after an unsuccessful request",
		},
	)
)

// Filesystem retry metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip2mp3_fs_retry_attempts_total",
			Help: "Filesystem operations that needed a retry",
		},
		[]string{"operation"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip2mp3_fs_retry_failures_total",
			Help: "Filesystem operations that failed after all retries",
		},
		[]string{"operation"},
	)
)
