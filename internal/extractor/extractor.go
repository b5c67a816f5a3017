package extractor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"clip2mp3/internal/logging"
	"clip2mp3/internal/metrics"
	"clip2mp3/internal/platform"
)

// ErrExhausted is returned when every configured strategy failed.
var ErrExhausted = errors.New("all extraction strategies failed")

// errNotApplicable marks a strategy that cannot run for this link
// (e.g. no numeric video ID). It counts as a skip, not a failure.
var errNotApplicable = errors.New("strategy not applicable to link")

// Descriptor is the result of a successful extraction: where the media
// bytes live and whatever page metadata the strategy could recover.
type Descriptor struct {
	// MediaURL is the direct, time-limited URL of the video stream.
	MediaURL string
	// Headers must be sent when fetching MediaURL. Some CDN endpoints
	// require the Referer and UA that discovered the URL.
	Headers http.Header

	VideoID     string
	Author      string
	Description string
	CoverURL    string

	// Strategy names the strategy that produced this descriptor.
	Strategy string
}

// Strategy resolves a validated link into a Descriptor.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, link *platform.Link) (*Descriptor, error)
}

// Chain tries strategies in order until one succeeds.
type Chain struct {
	strategies []Strategy
}

// NewChain builds a Chain over the given strategies.
func NewChain(strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies}
}

// Names returns the strategy names in chain order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// Extract runs the chain from the top. The first successful Descriptor
// wins; each failure falls through to the next strategy. When every
// strategy has failed, the individual errors are joined under
// ErrExhausted.
func (c *Chain) Extract(ctx context.Context, link *platform.Link) (*Descriptor, error) {
	desc, _, err := c.ExtractFrom(ctx, link, 0)
	return desc, err
}

// ExtractFrom runs the chain starting at the given strategy index and
// reports which strategy produced the Descriptor. Callers whose
// download of a descriptor fails resume the chain at index+1.
func (c *Chain) ExtractFrom(ctx context.Context, link *platform.Link, start int) (*Descriptor, int, error) {
	if start >= len(c.strategies) {
		return nil, -1, fmt.Errorf("%w: no strategies remaining", ErrExhausted)
	}

	var failures []error
	for i := start; i < len(c.strategies); i++ {
		s := c.strategies[i]
		if err := ctx.Err(); err != nil {
			return nil, -1, err
		}

		start := time.Now()
		desc, err := s.Extract(ctx, link)
		elapsed := time.Since(start)
		metrics.ExtractionDuration.WithLabelValues(s.Name()).Observe(elapsed.Seconds())

		if err != nil {
			if errors.Is(err, errNotApplicable) {
				metrics.ExtractionAttemptsTotal.WithLabelValues(s.Name(), "skipped").Inc()
				logging.Debug("strategy %s skipped for %s: %v", s.Name(), link.Canonical, err)
				continue
			}
			metrics.ExtractionAttemptsTotal.WithLabelValues(s.Name(), "failure").Inc()
			logging.Warn("strategy %s failed for %s after %v: %v", s.Name(), link.Canonical, elapsed.Round(time.Millisecond), err)
			failures = append(failures, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}

		metrics.ExtractionAttemptsTotal.WithLabelValues(s.Name(), "success").Inc()
		desc.Strategy = s.Name()
		if desc.VideoID == "" {
			desc.VideoID = link.VideoID
		}
		logging.Info("strategy %s resolved %s in %v", s.Name(), link.Canonical, elapsed.Round(time.Millisecond))
		return desc, i, nil
	}

	failures = append([]error{ErrExhausted}, failures...)
	return nil, -1, errors.Join(failures...)
}

// StrategyOptions carries the per-strategy tuning shared by the factory.
type StrategyOptions struct {
	// PreferDownloadAddr reorders the page markers so the watermark-free
	// download URL is tried before the play URL.
	PreferDownloadAddr bool
	// StripWatermark rewrites watermark=1 to watermark=0 in media URLs.
	StripWatermark bool
}

// FromNames builds a Chain from configured strategy names, preserving
// order. Unknown names are rejected at startup rather than silently
// skipped.
func FromNames(names []string, client *Client, opts StrategyOptions) (*Chain, error) {
	var strategies []Strategy
	for _, name := range names {
		switch name {
		case "mobile":
			strategies = append(strategies, &mobileStrategy{client: client, opts: opts})
		case "api":
			strategies = append(strategies, &webAPIStrategy{client: client, opts: opts})
		case "embed":
			strategies = append(strategies, &embedStrategy{client: client, opts: opts})
		case "mirror":
			strategies = append(strategies, &mirrorStrategy{client: client})
		default:
			return nil, fmt.Errorf("unknown extraction strategy %q", name)
		}
	}
	return NewChain(strategies...), nil
}
