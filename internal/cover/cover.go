package cover

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/disintegration/imaging"

	"clip2mp3/internal/identity"
	"clip2mp3/internal/logging"
)

// thumbnailWidth is the stored cover width; height follows the aspect
// ratio.
const thumbnailWidth = 320

// maxCoverBytes bounds the cover download. Covers are small JPEGs;
// anything past this is not a cover.
const maxCoverBytes = 8 << 20

// Fetcher downloads cover art and stores a resized thumbnail.
type Fetcher struct {
	client   *http.Client
	identity *identity.Pool
}

// Options configures a Fetcher.
type Options struct {
	Identity *identity.Pool
	Timeout  time.Duration
	// Client overrides the HTTP client (tests).
	Client *http.Client
}

// New creates a Fetcher.
func New(opts Options) *Fetcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	pool := opts.Identity
	if pool == nil {
		pool = identity.NewPool()
	}
	return &Fetcher{client: client, identity: pool}
}

// Fetch downloads coverURL, resizes it to the thumbnail width, and
// writes a JPEG at destPath. Cover art is decoration: callers treat a
// returned error as a log line, never a failed conversion.
func (f *Fetcher) Fetch(ctx context.Context, coverURL, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, coverURL, nil)
	if err != nil {
		return fmt.Errorf("building cover request: %w", err)
	}
	req.Header.Set("User-Agent", f.identity.UserAgent())
	req.Header.Set("Referer", "https://www.tiktok.com/")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("cover download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cover download: status %d", resp.StatusCode)
	}

	img, err := imaging.Decode(io.LimitReader(resp.Body, maxCoverBytes), imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("cover decode: %w", err)
	}

	thumb := img
	if img.Bounds().Dx() > thumbnailWidth {
		thumb = imaging.Resize(img, thumbnailWidth, 0, imaging.Lanczos)
	}

	if err := imaging.Save(thumb, destPath, imaging.JPEGQuality(85)); err != nil {
		return fmt.Errorf("cover save: %w", err)
	}

	logging.Debug("stored cover thumbnail %s (%dx%d)", destPath, thumb.Bounds().Dx(), thumb.Bounds().Dy())
	return nil
}
