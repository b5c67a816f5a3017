package metrics

// InitializeMetrics pre-populates expected label combinations so that every
// metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics(strategies []string) {
	for _, outcome := range []string{
		"hit", "converted", "validation", "ratelimited",
		"resolution", "acquisition", "transcode", "internal",
	} {
		PipelineRunsTotal.WithLabelValues(outcome)
	}

	for _, outcome := range []string{"joined", "timeout"} {
		InflightWaitsTotal.WithLabelValues(outcome)
	}

	for _, strategy := range strategies {
		ExtractionAttemptsTotal.WithLabelValues(strategy, "success")
		ExtractionAttemptsTotal.WithLabelValues(strategy, "failure")
		ExtractionDuration.WithLabelValues(strategy)
	}

	for _, status := range []string{
		"success", "too_small", "too_large", "http_error", "probe_failed", "network_error",
	} {
		DownloadsTotal.WithLabelValues(status)
	}

	for _, profile := range []string{"low", "medium", "high"} {
		TranscodesTotal.WithLabelValues(profile, "success")
		TranscodesTotal.WithLabelValues(profile, "error")
	}

	for _, reason := range []string{"expired", "capacity", "stale", "clear"} {
		CacheEvictionsTotal.WithLabelValues(reason)
	}

	for _, op := range []string{"remove", "stat"} {
		FilesystemRetryAttempts.WithLabelValues(op)
		FilesystemRetryFailures.WithLabelValues(op)
	}
}
