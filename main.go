package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"clip2mp3/internal/acquirer"
	"clip2mp3/internal/cache"
	"clip2mp3/internal/cover"
	"clip2mp3/internal/extractor"
	"clip2mp3/internal/handlers"
	"clip2mp3/internal/identity"
	"clip2mp3/internal/logging"
	"clip2mp3/internal/memory"
	"clip2mp3/internal/metrics"
	"clip2mp3/internal/middleware"
	"clip2mp3/internal/pipeline"
	"clip2mp3/internal/platform"
	"clip2mp3/internal/proxyring"
	"clip2mp3/internal/ratelimit"
	"clip2mp3/internal/startup"
	"clip2mp3/internal/transcoder"
	"clip2mp3/internal/workers"
)

func main() {
	startTime := time.Now()

	memory.ConfigureFromEnv()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	if config.MetricsEnabled {
		metrics.InitializeMetrics(config.ExtractorOrder)
	}

	// Cache store and index
	cacheStart := time.Now()
	store, err := cache.Open(context.Background(), cache.Options{
		DBPath:   filepath.Join(config.CacheDir, "cache.db"),
		Dir:      config.CacheDir,
		TTL:      config.CacheTTL,
		MaxBytes: config.CacheMaxBytes,
	})
	if err != nil {
		startup.LogFatal("Failed to open cache: %v", err)
	}
	defer store.Close()

	stats := store.GetStats()
	startup.LogCacheInit(stats.Entries, stats.TotalBytes, time.Since(cacheStart))

	// Transcoding tools
	trans := transcoder.New(config.TranscodeTimeout)
	ffmpegOK, ffprobeOK := trans.Available()
	startup.LogToolsInit(ffmpegOK, ffprobeOK)

	// Outbound identity and proxies
	idPool := identity.NewPool()
	var sources []proxyring.Source
	if config.ProxySourcesEnabled {
		sources = proxyring.DefaultSources()
	}
	ring := proxyring.New(proxyring.Options{
		Static:  config.ProxyList,
		Sources: sources,
	})
	ring.StartRefresher(config.ProxyRefreshInterval)
	defer ring.Stop()

	// Extraction chain
	client := extractor.NewClient(extractor.ClientOptions{
		Identity: idPool,
		Ring:     ring,
		Timeout:  config.ExtractTimeout,
	})
	chain, err := extractor.FromNames(config.ExtractorOrder, client, extractor.StrategyOptions{
		PreferDownloadAddr: config.PreferDownloadAddr,
		StripWatermark:     config.StripWatermark,
	})
	if err != nil {
		startup.LogFatal("Extraction configuration error: %v", err)
	}

	normalizer := platform.New(platform.Options{
		Domains:          config.PlatformDomains,
		ShortlinkDomains: config.ShortlinkDomains,
		ExpandTimeout:    config.ExtractTimeout,
		Identity:         idPool,
	})

	acqOpts := acquirer.Options{
		WorkDir:  config.WorkDir,
		MaxBytes: config.MaxDownloadBytes,
		MinBytes: config.MinMediaBytes,
		Retries:  config.DownloadRetries,
		Timeout:  config.DownloadTimeout,
		Identity: idPool,
	}
	if ffprobeOK {
		acqOpts.Probe = func(ctx context.Context, path string) error {
			_, err := trans.Probe(ctx, path)
			return err
		}
	}
	acq := acquirer.New(acqOpts)

	var covers *cover.Fetcher
	if config.CoverThumbnails {
		covers = cover.New(cover.Options{Identity: idPool})
	}

	pipe := pipeline.New(pipeline.Options{
		Normalizer:   normalizer,
		Chain:        chain,
		Acquirer:     acq,
		Transcoder:   trans,
		Store:        store,
		Covers:       covers,
		WorkDir:      config.WorkDir,
		CacheDir:     config.CacheDir,
		InflightWait: config.InflightWait,
		Concurrency:  workers.ForCPU(8),
	})

	// Per-client rate limiting
	limiter := ratelimit.New(config.RateLimitMax, config.RateLimitWindow)
	stopPruner := limiter.StartPruner(config.RateLimitWindow)
	defer stopPruner()

	// Periodic sweep backstops the request-driven probabilistic one so
	// an idle instance still sheds expired entries.
	sweepDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(config.CacheSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				if _, err := store.Sweep(ctx); err != nil {
					logging.Warn("periodic cache sweep failed: %v", err)
				}
				cancel()
			case <-sweepDone:
				return
			}
		}
	}()
	defer close(sweepDone)

	// Stats collector feeds the cache gauges
	collector := metrics.NewCollector(store, 30*time.Second)
	collector.Start()
	defer collector.Stop()

	h := handlers.New(pipe, store, limiter, ring, config, ffmpegOK && ffprobeOK, chain.Names())

	router := mux.NewRouter()
	h.RegisterRoutes(router)
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	// Middleware chain, innermost first
	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler := middleware.Logger(loggingConfig)(router)
	handler = middleware.Metrics(middleware.DefaultMetricsConfig())(handler)

	corsConfig := middleware.DefaultCORSConfig()
	if config.CORSOrigin != "" {
		corsConfig.AllowedOrigin = config.CORSOrigin
	}
	handler = middleware.CORS(corsConfig)(handler)

	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // deliveries are guarded per-write instead
		IdleTimeout:  60 * time.Second,
	}

	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:         ":" + config.MetricsPort,
			Handler:      metricsMux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	go handleShutdown(srv, metricsSrv, trans, ring)

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		startup.LogFatal("Server error: %v", err)
	}
}

func handleShutdown(srv, metricsSrv *http.Server, trans *transcoder.Transcoder, ring *proxyring.Ring) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	trans.Cleanup()
	startup.LogShutdownStepComplete("Transcoder cleanup complete")

	ring.Stop()
	startup.LogShutdownStepComplete("Proxy refresher stopped")

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownComplete()
}
