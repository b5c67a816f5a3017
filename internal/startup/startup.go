package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"clip2mp3/internal/logging"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Config holds all application configuration
type Config struct {
	// Directories
	WorkDir  string // transient raw downloads
	CacheDir string // transcoded artifacts + index database

	// HTTP
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	LogHealthChecks bool
	CORSOrigin      string

	// Platform URL handling
	PlatformDomains  []string
	ShortlinkDomains []string

	// Extraction
	ExtractorOrder     []string
	ExtractTimeout     time.Duration
	PreferDownloadAddr bool
	StripWatermark     bool

	// Acquisition
	MaxDownloadBytes int64
	MinMediaBytes    int64
	DownloadRetries  int
	DownloadTimeout  time.Duration

	// Transcoding
	TranscodeTimeout time.Duration

	// Cache
	CacheTTL           time.Duration
	CacheMaxBytes      int64
	CacheSweepInterval time.Duration

	// Rate limiting
	RateLimitMax    int
	RateLimitWindow time.Duration

	// In-flight deduplication
	InflightWait time.Duration

	// Proxy rotation
	ProxyList            []string
	ProxySourcesEnabled  bool
	ProxyRefreshInterval time.Duration

	// Admin
	AdminTokenHash string

	// Cover art
	CoverThumbnails bool
}

// LoadConfig loads and validates configuration from environment variables
func LoadConfig() (*Config, error) {
	// A .env file is a development convenience; absence is normal.
	if err := godotenv.Load(); err == nil {
		logging.Info("Loaded environment overrides from .env")
	}

	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	config := &Config{
		WorkDir:  getEnv("WORK_DIR", filepath.Join(os.TempDir(), "clip2mp3")),
		CacheDir: getEnv("CACHE_DIR", "/cache"),

		Port:            getEnv("PORT", "8080"),
		MetricsPort:     getEnv("METRICS_PORT", "9090"),
		MetricsEnabled:  getEnvBool("METRICS_ENABLED", true),
		LogHealthChecks: getEnvBool("LOG_HEALTH_CHECKS", false),
		CORSOrigin:      getEnv("CORS_ORIGIN", "*"),

		PlatformDomains:  getEnvList("PLATFORM_DOMAINS", "www.tiktok.com,tiktok.com,m.tiktok.com"),
		ShortlinkDomains: getEnvList("SHORTLINK_DOMAINS", "vm.tiktok.com,vt.tiktok.com"),

		ExtractorOrder:     getEnvList("EXTRACTOR_ORDER", "mobile,api,embed,mirror"),
		ExtractTimeout:     getEnvDuration("EXTRACT_TIMEOUT", 20*time.Second),
		PreferDownloadAddr: getEnvBool("PREFER_DOWNLOAD_ADDR", false),
		StripWatermark:     getEnvBool("STRIP_WATERMARK", true),

		MaxDownloadBytes: getEnvInt64("MAX_DOWNLOAD_BYTES", 256<<20),
		MinMediaBytes:    getEnvInt64("MIN_MEDIA_BYTES", 10000),
		DownloadRetries:  getEnvInt("DOWNLOAD_RETRIES", 3),
		DownloadTimeout:  getEnvDuration("DOWNLOAD_TIMEOUT", 60*time.Second),

		TranscodeTimeout: getEnvDuration("TRANSCODE_TIMEOUT", 2*time.Minute),

		CacheTTL:           getEnvDuration("CACHE_TTL", time.Hour),
		CacheMaxBytes:      getEnvInt64("CACHE_MAX_BYTES", 1<<30),
		CacheSweepInterval: getEnvDuration("CACHE_SWEEP_INTERVAL", 10*time.Minute),

		RateLimitMax:    getEnvInt("RATE_LIMIT_MAX", 30),
		RateLimitWindow: getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),

		InflightWait: getEnvDuration("INFLIGHT_WAIT", 90*time.Second),

		ProxyList:            getEnvList("PROXY_LIST", ""),
		ProxySourcesEnabled:  getEnvBool("PROXY_SOURCES_ENABLED", false),
		ProxyRefreshInterval: getEnvDuration("PROXY_REFRESH_INTERVAL", 5*time.Minute),

		AdminTokenHash: os.Getenv("ADMIN_TOKEN_HASH"),

		CoverThumbnails: getEnvBool("COVER_THUMBNAILS", true),
	}

	logging.Info("  WORK_DIR:               %s", config.WorkDir)
	logging.Info("  CACHE_DIR:              %s", config.CacheDir)
	logging.Info("  PORT:                   %s", config.Port)
	logging.Info("  METRICS_PORT:           %s", config.MetricsPort)
	logging.Info("  METRICS_ENABLED:        %v", config.MetricsEnabled)
	logging.Info("  PLATFORM_DOMAINS:       %s", strings.Join(config.PlatformDomains, ", "))
	logging.Info("  SHORTLINK_DOMAINS:      %s", strings.Join(config.ShortlinkDomains, ", "))
	logging.Info("  EXTRACTOR_ORDER:        %s", strings.Join(config.ExtractorOrder, " > "))
	logging.Info("  MAX_DOWNLOAD_BYTES:     %d", config.MaxDownloadBytes)
	logging.Info("  MIN_MEDIA_BYTES:        %d", config.MinMediaBytes)
	logging.Info("  DOWNLOAD_RETRIES:       %d", config.DownloadRetries)
	logging.Info("  DOWNLOAD_TIMEOUT:       %s", config.DownloadTimeout)
	logging.Info("  TRANSCODE_TIMEOUT:      %s", config.TranscodeTimeout)
	logging.Info("  CACHE_TTL:              %s", config.CacheTTL)
	logging.Info("  CACHE_MAX_BYTES:        %d", config.CacheMaxBytes)
	logging.Info("  CACHE_SWEEP_INTERVAL:   %s", config.CacheSweepInterval)
	logging.Info("  RATE_LIMIT:             %d per %s", config.RateLimitMax, config.RateLimitWindow)
	logging.Info("  INFLIGHT_WAIT:          %s", config.InflightWait)
	logging.Info("  PROXY_LIST:             %d static entries", len(config.ProxyList))
	logging.Info("  PROXY_SOURCES_ENABLED:  %v", config.ProxySourcesEnabled)
	logging.Info("  COVER_THUMBNAILS:       %v", config.CoverThumbnails)
	logging.Info("  ADMIN_TOKEN_HASH:       %s", setString(config.AdminTokenHash != ""))
	logging.Info("  LOG_LEVEL:              %s", logging.GetLevel())

	if err := config.validate(); err != nil {
		return nil, err
	}

	// Resolve and prepare directories
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	var err error
	config.WorkDir, err = filepath.Abs(config.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve work directory path: %w", err)
	}
	config.CacheDir, err = filepath.Abs(config.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache directory path: %w", err)
	}

	logging.Info("  Work directory (absolute):  %s", config.WorkDir)
	logging.Info("  Cache directory (absolute): %s", config.CacheDir)

	// Both directories are required: work for raw media, cache for artifacts.
	if err := ensureDirectory(config.WorkDir, "work"); err != nil {
		return nil, fmt.Errorf("work directory error: %w", err)
	}
	if err := testWriteAccess(config.WorkDir); err != nil {
		return nil, fmt.Errorf("work directory is not writable: %w", err)
	}
	logging.Info("  [OK] Work directory is writable")

	if err := ensureDirectory(config.CacheDir, "cache"); err != nil {
		return nil, fmt.Errorf("cache directory error: %w", err)
	}
	if err := testWriteAccess(config.CacheDir); err != nil {
		return nil, fmt.Errorf("cache directory is not writable: %w", err)
	}
	logging.Info("  [OK] Cache directory is writable")

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Cache store:    ENABLED (required)")
	logging.Info("    Metrics:        %s", enabledString(config.MetricsEnabled))
	logging.Info("    Proxy sources:  %s", enabledString(config.ProxySourcesEnabled))
	logging.Info("    Cover art:      %s", enabledString(config.CoverThumbnails))
	logging.Info("    Cache admin:    %s", enabledString(config.AdminTokenHash != ""))

	return config, nil
}

func (c *Config) validate() error {
	if len(c.PlatformDomains) == 0 {
		return fmt.Errorf("PLATFORM_DOMAINS must not be empty")
	}
	if len(c.ExtractorOrder) == 0 {
		return fmt.Errorf("EXTRACTOR_ORDER must not be empty")
	}
	if c.MaxDownloadBytes <= c.MinMediaBytes {
		return fmt.Errorf("MAX_DOWNLOAD_BYTES (%d) must exceed MIN_MEDIA_BYTES (%d)",
			c.MaxDownloadBytes, c.MinMediaBytes)
	}
	if c.DownloadRetries < 1 {
		return fmt.Errorf("DOWNLOAD_RETRIES must be at least 1")
	}
	if c.RateLimitMax < 1 {
		return fmt.Errorf("RATE_LIMIT_MAX must be at least 1")
	}
	if c.CacheMaxBytes < 1 {
		return fmt.Errorf("CACHE_MAX_BYTES must be at least 1")
	}
	return nil
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

func setString(set bool) string {
	if set {
		return "(set)"
	}
	return "(not set)"
}

// LogCacheInit logs cache store initialization
func LogCacheInit(entries int, totalBytes int64, duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("CACHE STORE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Cache store opened in %v (%d entries, %d bytes)", duration, entries, totalBytes)
}

// LogToolsInit logs external tool discovery
func LogToolsInit(ffmpeg, ffprobe bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("EXTERNAL TOOLS")
	logging.Info("------------------------------------------------------------")
	if ffmpeg {
		logging.Info("  [OK] ffmpeg is available")
	} else {
		logging.Warn("  ffmpeg not found in PATH; transcoding will fail")
	}
	if ffprobe {
		logging.Info("  [OK] ffprobe is available")
	} else {
		logging.Warn("  ffprobe not found in PATH; structural media validation disabled")
	}
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}

		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes dynamically
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		sort.Slice(routes, func(i, j int) bool {
			if routes[i].Path != routes[j].Path {
				return routes[i].Path < routes[j].Path
			}
			return routes[i].Method < routes[j].Method
		})

		logging.Debug("  Registered routes (%d total):", len(routes))
		for _, route := range routes {
			logging.Debug("    %-6s %s", route.Method, route.Path)
		}
	}

	if logHealthChecks {
		logging.Info("  Health check logging: ON")
	} else {
		logging.Info("  Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    Application:   http://0.0.0.0:%s", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

// Helper functions

func printBanner() {
	banner := `
------------------------------------------------------------
       _ _       ___                 _____
   ___| (_)_ __ |__ \ _ __ ___  _ __|___ /
  / __| | | '_ \  / /| '_ ' _ \| '_ \ |_ \
 | (__| | | |_) |/ /_| | | | | | |_) |__) |
  \___|_|_| .__/|____|_| |_| |_| .__/____/
          |_|                  |_|
------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
		// Write access was confirmed regardless
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		logging.Warn("Invalid duration value for %s: %q, using default: %s", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

// getEnvList parses a comma-separated environment variable, trimming
// whitespace and dropping empty elements. An empty default yields nil.
func getEnvList(key, defaultValue string) []string {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
