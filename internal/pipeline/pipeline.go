package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"clip2mp3/internal/acquirer"
	"clip2mp3/internal/cache"
	"clip2mp3/internal/cover"
	"clip2mp3/internal/extractor"
	"clip2mp3/internal/filesystem"
	"clip2mp3/internal/inflight"
	"clip2mp3/internal/logging"
	"clip2mp3/internal/metrics"
	"clip2mp3/internal/platform"
	"clip2mp3/internal/transcoder"
)

// Format selects what the pipeline produces.
const (
	FormatAudio = "audio"
	FormatVideo = "video"
)

// Request is one conversion request after HTTP decoding.
type Request struct {
	URL     string
	Format  string
	Quality string

	// Admit, when set, gates starting a new conversion. It is consulted
	// only after a cache miss; hits are served regardless.
	Admit func() bool
}

// Outcome is a finished conversion.
type Outcome struct {
	Entry    *cache.Entry
	CacheHit bool
}

// Options wires a Pipeline.
type Options struct {
	Normalizer *platform.Normalizer
	Chain      *extractor.Chain
	Acquirer   *acquirer.Acquirer
	Transcoder *transcoder.Transcoder
	Store      *cache.Store
	Covers     *cover.Fetcher // nil disables cover thumbnails
	WorkDir    string
	CacheDir   string
	// InflightWait bounds how long a duplicate request waits for the
	// conversion already running before going independent.
	InflightWait time.Duration
	// Concurrency bounds simultaneous conversions. Each one holds an
	// ffmpeg process.
	Concurrency int
}

// Pipeline runs the whole conversion flow: normalize, check cache,
// extract, download, transcode, store.
type Pipeline struct {
	normalizer   *platform.Normalizer
	chain        *extractor.Chain
	acquirer     *acquirer.Acquirer
	transcoder   *transcoder.Transcoder
	store        *cache.Store
	covers       *cover.Fetcher
	workDir      string
	cacheDir     string
	inflightWait time.Duration

	registry *inflight.Registry
	sem      chan struct{}
}

// New creates a Pipeline.
func New(opts Options) *Pipeline {
	wait := opts.InflightWait
	if wait <= 0 {
		wait = 90 * time.Second
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	return &Pipeline{
		normalizer:   opts.Normalizer,
		chain:        opts.Chain,
		acquirer:     opts.Acquirer,
		transcoder:   opts.Transcoder,
		store:        opts.Store,
		covers:       opts.Covers,
		workDir:      opts.WorkDir,
		cacheDir:     opts.CacheDir,
		inflightWait: wait,
		registry:     inflight.NewRegistry(),
		sem:          make(chan struct{}, concurrency),
	}
}

// InflightCount reports conversions currently running, for /api/stats.
func (p *Pipeline) InflightCount() int {
	return p.registry.Active()
}

// Convert runs one request end to end. Failures come back as *Error
// with a Kind the handler maps to a status code.
func (p *Pipeline) Convert(ctx context.Context, req Request) (*Outcome, error) {
	start := time.Now()
	outcome, err := p.convert(ctx, req)

	metrics.PipelineDuration.Observe(time.Since(start).Seconds())
	label := "internal"
	switch {
	case err == nil && outcome.CacheHit:
		label = "hit"
	case err == nil:
		label = "converted"
	default:
		var perr *Error
		if errors.As(err, &perr) {
			label = perr.Kind.outcome()
		}
	}
	metrics.PipelineRunsTotal.WithLabelValues(label).Inc()
	return outcome, err
}

func (p *Pipeline) convert(ctx context.Context, req Request) (*Outcome, error) {
	format := req.Format
	if format == "" {
		format = FormatAudio
	}
	if format != FormatAudio && format != FormatVideo {
		return nil, fail(KindValidation, errors.New("format must be audio or video"))
	}
	profile := transcoder.ParseProfile(req.Quality)

	link, err := p.normalizer.Normalize(ctx, req.URL)
	if err != nil {
		return nil, fail(KindValidation, err)
	}

	fingerprint := Fingerprint(link.VideoID, link.Canonical, format, profile.Name)

	// Piggyback cleanup on request traffic.
	p.store.MaybeSweep(ctx)

	if entry, ok := p.store.Get(ctx, fingerprint); ok {
		logging.Debug("cache hit for %s", fingerprint)
		return &Outcome{Entry: entry, CacheHit: true}, nil
	}

	if req.Admit != nil && !req.Admit() {
		return nil, fail(KindRateLimited, errors.New("conversion rate limit exceeded"))
	}

	run, leader := p.registry.Begin(fingerprint)
	if !leader {
		logging.Debug("joining in-flight conversion %s", fingerprint)
		result, ok := run.Wait(ctx, p.inflightWait)
		if ok {
			if result.Err != nil {
				return nil, result.Err
			}
			return &Outcome{Entry: result.Value.(*cache.Entry)}, nil
		}
		// The leader is taking too long. Run independently; worst case
		// the same work happens twice and the later Put wins.
		entry, err := p.run(ctx, link, fingerprint, format, profile)
		if err != nil {
			return nil, err
		}
		return &Outcome{Entry: entry}, nil
	}

	entry, err := p.run(ctx, link, fingerprint, format, profile)
	run.Finish(entry, err)
	if err != nil {
		return nil, err
	}
	return &Outcome{Entry: entry}, nil
}

// run performs the extract-download-transcode-store sequence.
func (p *Pipeline) run(ctx context.Context, link *platform.Link, fingerprint, format string, profile transcoder.Profile) (*cache.Entry, error) {
	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	case <-ctx.Done():
		return nil, fail(KindInternal, ctx.Err())
	}

	// Resolve and download, resuming the strategy chain when a
	// resolved URL turns out to be undownloadable. Only exhausting
	// every strategy surfaces to the caller.
	var (
		desc     *extractor.Descriptor
		artifact *acquirer.Artifact
		next     int
		fetchErr error
	)
	for {
		d, idx, err := p.chain.ExtractFrom(ctx, link, next)
		if err != nil {
			if fetchErr != nil {
				return nil, fail(KindAcquisition, fetchErr)
			}
			return nil, fail(KindResolution, err)
		}

		a, err := p.acquirer.Fetch(ctx, d)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fail(KindAcquisition, err)
			}
			logging.Warn("download of %s descriptor failed, trying next strategy: %v", d.Strategy, err)
			fetchErr = fmt.Errorf("%s: %w", d.Strategy, err)
			next = idx + 1
			continue
		}

		desc, artifact = d, a
		break
	}

	resultPath := artifact.Path
	if format == FormatAudio {
		mp3Path := filepath.Join(p.workDir, uuid.NewString()+".mp3")
		err := p.transcoder.ToMP3(ctx, artifact.Path, mp3Path, profile)
		p.discard(artifact.Path)
		if err != nil {
			p.discard(mp3Path)
			return nil, fail(KindTranscode, err)
		}
		resultPath = mp3Path
	}

	meta := cache.Meta{
		Format:      format,
		Quality:     profile.Name,
		Author:      desc.Author,
		Description: desc.Description,
	}
	if p.covers != nil && desc.CoverURL != "" {
		coverPath := filepath.Join(p.cacheDir, fingerprint+".jpg")
		if err := p.covers.Fetch(ctx, desc.CoverURL, coverPath); err != nil {
			logging.Warn("cover fetch for %s failed: %v", fingerprint, err)
		} else {
			meta.CoverPath = coverPath
		}
	}

	entry, err := p.store.Put(ctx, fingerprint, resultPath, meta)
	if err != nil {
		p.discard(resultPath)
		return nil, fail(KindInternal, err)
	}
	return entry, nil
}

func (p *Pipeline) discard(path string) {
	if err := filesystem.RemoveWithRetry(path, filesystem.DefaultRetryConfig()); err != nil {
		logging.Warn("failed to remove working file %s: %v", path, err)
	}
}
