package acquirer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"clip2mp3/internal/extractor"
	"clip2mp3/internal/filesystem"
	"clip2mp3/internal/identity"
	"clip2mp3/internal/logging"
	"clip2mp3/internal/metrics"
)

// Validation failures.
var (
	// ErrTooSmall means the download completed but is below the minimum
	// plausible media size. CDN error pages and expired-URL stubs land here.
	ErrTooSmall = errors.New("downloaded media below minimum size")
	// ErrTooLarge means the stream exceeded the configured ceiling and
	// was abandoned mid-download. Terminal: the same URL streams the
	// same bytes again.
	ErrTooLarge = errors.New("downloaded media exceeds maximum size")
	// ErrNotMedia means the response body is recognizably not video data.
	ErrNotMedia = errors.New("response body is not media")
)

// Artifact is a completed download on disk. The caller owns the file.
type Artifact struct {
	Path string
	Size int64
}

// Options configures an Acquirer.
type Options struct {
	// WorkDir receives in-progress download files.
	WorkDir string
	// MaxBytes aborts any download that grows past this size.
	MaxBytes int64
	// MinBytes rejects completed downloads smaller than this.
	MinBytes int64
	// Retries is the number of re-attempts after a retryable failure.
	Retries int
	// Timeout bounds a single download attempt end to end.
	Timeout time.Duration
	// Backoff is the delay before the first retry; it doubles each
	// attempt.
	Backoff time.Duration
	// Identity supplies the User-Agent when the descriptor has none.
	Identity *identity.Pool
	// Client overrides the HTTP client (tests).
	Client *http.Client
	// Probe, when set, structurally validates a completed download
	// (ffprobe). A probe failure fails the attempt.
	Probe func(ctx context.Context, path string) error
}

// Acquirer downloads extracted media to local disk.
type Acquirer struct {
	workDir  string
	maxBytes int64
	minBytes int64
	retries  int
	backoff  time.Duration
	identity *identity.Pool
	client   *http.Client
	probe    func(ctx context.Context, path string) error
}

// New creates an Acquirer.
func New(opts Options) *Acquirer {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	pool := opts.Identity
	if pool == nil {
		pool = identity.NewPool()
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 256 << 20
	}
	minBytes := opts.MinBytes
	if minBytes <= 0 {
		minBytes = 10000
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}

	return &Acquirer{
		workDir:  opts.WorkDir,
		maxBytes: maxBytes,
		minBytes: minBytes,
		retries:  opts.Retries,
		backoff:  backoff,
		identity: pool,
		client:   client,
		probe:    opts.Probe,
	}
}

// Fetch downloads the descriptor's media URL to a file in the working
// directory. Bad statuses, undersized bodies, failed probes, and
// network errors are all retried with backoff; only an oversized
// stream or a cancelled context stops early.
func (a *Acquirer) Fetch(ctx context.Context, desc *extractor.Descriptor) (*Artifact, error) {
	start := time.Now()

	var lastErr error
	backoff := a.backoff
	for attempt := 0; attempt <= a.retries; attempt++ {
		if attempt > 0 {
			logging.Info("retrying download (attempt %d/%d) for video %s", attempt+1, a.retries+1, desc.VideoID)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}

		artifact, err := a.attempt(ctx, desc)
		if err == nil {
			metrics.DownloadsTotal.WithLabelValues("success").Inc()
			metrics.DownloadBytes.Observe(float64(artifact.Size))
			metrics.DownloadDuration.Observe(time.Since(start).Seconds())
			logging.Info("downloaded %d bytes for video %s in %v",
				artifact.Size, desc.VideoID, time.Since(start).Round(time.Millisecond))
			return artifact, nil
		}

		lastErr = err
		if !retryable(err) {
			break
		}
	}

	metrics.DownloadsTotal.WithLabelValues(classify(lastErr)).Inc()
	metrics.DownloadDuration.Observe(time.Since(start).Seconds())
	return nil, lastErr
}

// statusError marks an upstream HTTP failure.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.code)
}

func retryable(err error) bool {
	if errors.Is(err, ErrTooLarge) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// Bad statuses, undersized bodies, failed probes, and transport
	// failures are all transient against this upstream.
	return true
}

func classify(err error) string {
	switch {
	case errors.Is(err, ErrTooSmall):
		return "too_small"
	case errors.Is(err, ErrTooLarge):
		return "too_large"
	case errors.Is(err, ErrNotMedia):
		return "probe_failed"
	default:
		var se *statusError
		if errors.As(err, &se) {
			return "http_error"
		}
		return "network_error"
	}
}

func (a *Acquirer) attempt(ctx context.Context, desc *extractor.Descriptor) (*Artifact, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, desc.MediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building download request: %w", err)
	}
	for k, vs := range desc.Headers {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", a.identity.UserAgent())
	}
	if req.Header.Get("Range") == "" {
		req.Header.Set("Range", "bytes=0-")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, &statusError{code: resp.StatusCode}
	}

	// Reject before writing anything when the declared length alone
	// already breaks a bound.
	if resp.ContentLength > 0 {
		if resp.ContentLength > a.maxBytes {
			return nil, fmt.Errorf("%w: %d declared bytes", ErrTooLarge, resp.ContentLength)
		}
		if resp.ContentLength < a.minBytes {
			return nil, fmt.Errorf("%w: %d declared bytes", ErrTooSmall, resp.ContentLength)
		}
	}

	path := filepath.Join(a.workDir, uuid.NewString()+".media")
	size, err := a.stream(path, resp.Body)
	if err != nil {
		a.discard(path)
		return nil, err
	}
	if size < a.minBytes {
		a.discard(path)
		return nil, fmt.Errorf("%w: %d bytes", ErrTooSmall, size)
	}
	if a.probe != nil {
		if err := a.probe(ctx, path); err != nil {
			a.discard(path)
			return nil, fmt.Errorf("%w: probe: %v", ErrNotMedia, err)
		}
	}

	return &Artifact{Path: path, Size: size}, nil
}

// stream copies the body to disk, sniffing the first bytes and
// enforcing the size ceiling as it goes.
func (a *Acquirer) stream(path string, body io.Reader) (int64, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, fmt.Errorf("creating download file: %w", err)
	}
	defer f.Close()

	head := make([]byte, 16)
	n, err := io.ReadFull(body, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return 0, fmt.Errorf("reading response: %w", err)
	}
	if err := sniff(head[:n]); err != nil {
		return 0, err
	}
	if _, err := f.Write(head[:n]); err != nil {
		return 0, fmt.Errorf("writing download file: %w", err)
	}

	written, err := io.Copy(f, io.LimitReader(body, a.maxBytes-int64(n)+1))
	if err != nil {
		return 0, fmt.Errorf("streaming download: %w", err)
	}
	total := written + int64(n)
	if total > a.maxBytes {
		return 0, fmt.Errorf("%w: ceiling is %d bytes", ErrTooLarge, a.maxBytes)
	}
	if err := f.Sync(); err != nil {
		return 0, fmt.Errorf("syncing download file: %w", err)
	}
	return total, nil
}

// sniff rejects bodies that are recognizably HTML or JSON. Expired
// media URLs commonly return an error page with status 200.
func sniff(head []byte) error {
	trimmed := bytes.TrimLeft(head, " \t\r\n")
	if len(trimmed) == 0 {
		return nil
	}
	switch trimmed[0] {
	case '<', '{', '[':
		return fmt.Errorf("%w: body starts with %q", ErrNotMedia, trimmed[0])
	}
	return nil
}

func (a *Acquirer) discard(path string) {
	if err := filesystem.RemoveWithRetry(path, filesystem.DefaultRetryConfig()); err != nil {
		logging.Warn("failed to remove partial download %s: %v", path, err)
	}
}
