package filesystem

import (
	"errors"
	"os"
	"syscall"
	"time"

	"clip2mp3/internal/logging"
	"clip2mp3/internal/metrics"
)

// RetryConfig controls retry behavior for filesystem operations that
// can fail transiently on network-backed volumes.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns the defaults used across the cache and
// working directories.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

// isTransient reports whether the error is worth retrying: a stale NFS
// file handle or an interrupted syscall.
func isTransient(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ESTALE || errno == syscall.EINTR
	}
	return false
}

// withRetry runs op with exponential backoff on transient errors.
func withRetry(operation string, config RetryConfig, op func() error) error {
	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := op()
		if err == nil {
			if attempt > 0 {
				logging.Info("%s succeeded on retry %d", operation, attempt)
			}
			return nil
		}
		lastErr = err

		if !isTransient(err) {
			return err
		}

		if attempt < config.MaxRetries {
			metrics.FilesystemRetryAttempts.WithLabelValues(operation).Inc()
			logging.Debug("%s transient failure, retrying in %v (attempt %d/%d): %v",
				operation, backoff, attempt+1, config.MaxRetries, err)
			time.Sleep(backoff)

			backoff *= 2
			if backoff > config.MaxBackoff {
				backoff = config.MaxBackoff
			}
		}
	}

	logging.Warn("%s failed after %d retries: %v", operation, config.MaxRetries, lastErr)
	metrics.FilesystemRetryFailures.WithLabelValues(operation).Inc()
	return lastErr
}

// StatWithRetry performs os.Stat, retrying transient errors.
func StatWithRetry(path string, config RetryConfig) (os.FileInfo, error) {
	var info os.FileInfo
	err := withRetry("stat", config, func() error {
		var statErr error
		info, statErr = os.Stat(path)
		return statErr
	})
	return info, err
}

// OpenWithRetry performs os.Open, retrying transient errors.
func OpenWithRetry(path string, config RetryConfig) (*os.File, error) {
	var file *os.File
	err := withRetry("open", config, func() error {
		var openErr error
		file, openErr = os.Open(path)
		return openErr
	})
	return file, err
}

// RemoveWithRetry performs os.Remove, retrying transient errors.
// A missing file is success: the goal is the file being gone.
func RemoveWithRetry(path string, config RetryConfig) error {
	return withRetry("remove", config, func() error {
		err := os.Remove(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	})
}
