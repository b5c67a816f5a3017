package streaming

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"clip2mp3/internal/logging"
)

// Sentinel errors for delivery failures.
var (
	// ErrWriteTimeout means a single write to the client stalled past
	// the configured timeout.
	ErrWriteTimeout = errors.New("write timeout exceeded")

	// ErrClientGone means the client disconnected mid-transfer.
	ErrClientGone = errors.New("client disconnected")
)

// Config tunes delivery behavior.
type Config struct {
	// WriteTimeout bounds a single write to the client.
	WriteTimeout time.Duration
	// IdleTimeout aborts the transfer when no write succeeds for this long.
	IdleTimeout time.Duration
	// ChunkSize splits large writes so a slow client times out at
	// chunk granularity instead of wedging a whole-file write.
	ChunkSize int
}

// DefaultConfig returns delivery defaults shaped for audio files: a
// few MB transferred in 128KB chunks.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		ChunkSize:    128 * 1024,
	}
}

// guardedWriter wraps the response writer with per-write timeouts.
type guardedWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	ctx     context.Context
	cancel  context.CancelFunc
	config  Config

	mu        sync.Mutex
	lastWrite time.Time
	written   int64
}

func newGuardedWriter(ctx context.Context, w http.ResponseWriter, config Config) *guardedWriter {
	wctx, cancel := context.WithCancel(ctx)
	gw := &guardedWriter{
		w:         w,
		ctx:       wctx,
		cancel:    cancel,
		config:    config,
		lastWrite: time.Now(),
	}
	if f, ok := w.(http.Flusher); ok {
		gw.flusher = f
	}
	if config.IdleTimeout > 0 {
		go gw.watchIdle()
	}
	return gw
}

func (gw *guardedWriter) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		select {
		case <-gw.ctx.Done():
			return total, gw.ctxError()
		default:
		}

		chunk := len(p)
		if gw.config.ChunkSize > 0 && chunk > gw.config.ChunkSize {
			chunk = gw.config.ChunkSize
		}

		n, err := gw.writeOne(p[:chunk])
		total += n
		if err != nil {
			return total, err
		}
		p = p[chunk:]

		if gw.flusher != nil {
			gw.flusher.Flush()
		}
	}
	return total, nil
}

func (gw *guardedWriter) writeOne(p []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	go func() {
		n, err := gw.w.Write(p)
		ch <- result{n, err}
	}()

	timer := time.NewTimer(gw.config.WriteTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err == nil {
			gw.mu.Lock()
			gw.lastWrite = time.Now()
			gw.written += int64(res.n)
			gw.mu.Unlock()
		}
		return res.n, res.err
	case <-timer.C:
		gw.cancel()
		return 0, ErrWriteTimeout
	case <-gw.ctx.Done():
		return 0, gw.ctxError()
	}
}

func (gw *guardedWriter) watchIdle() {
	ticker := time.NewTicker(gw.config.IdleTimeout / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			gw.mu.Lock()
			idle := time.Since(gw.lastWrite)
			gw.mu.Unlock()
			if idle > gw.config.IdleTimeout {
				logging.Warn("delivery idle for %v, aborting", idle)
				gw.cancel()
				return
			}
		case <-gw.ctx.Done():
			return
		}
	}
}

func (gw *guardedWriter) ctxError() error {
	if errors.Is(gw.ctx.Err(), context.Canceled) {
		return ErrClientGone
	}
	return gw.ctx.Err()
}

// Copy streams r to the client with per-write timeout protection and
// returns the bytes delivered.
func Copy(ctx context.Context, w http.ResponseWriter, r io.Reader, config Config) (int64, error) {
	gw := newGuardedWriter(ctx, w, config)
	defer gw.cancel()

	_, err := io.Copy(gw, r)

	gw.mu.Lock()
	written := gw.written
	gw.mu.Unlock()
	logging.Debug("delivered %d bytes", written)
	return written, err
}
