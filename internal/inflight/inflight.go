package inflight

import (
	"context"
	"sync"
	"time"

	"clip2mp3/internal/logging"
	"clip2mp3/internal/metrics"
)

// Result is what a finished run publishes to its followers.
type Result struct {
	Value interface{}
	Err   error
}

// Run represents one in-progress conversion for a fingerprint. The
// first caller to Begin becomes the leader and must call Finish; later
// callers hold the same Run and Wait on it.
type Run struct {
	fingerprint string
	registry    *Registry

	done   chan struct{}
	result Result
	once   sync.Once
}

// Registry deduplicates concurrent work on the same fingerprint.
type Registry struct {
	mu   sync.Mutex
	runs map[string]*Run
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]*Run)}
}

// Begin returns the Run for a fingerprint. The boolean is true for the
// leader, the caller that must perform the work and Finish.
func (r *Registry) Begin(fingerprint string) (*Run, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if run, ok := r.runs[fingerprint]; ok {
		return run, false
	}

	run := &Run{
		fingerprint: fingerprint,
		registry:    r,
		done:        make(chan struct{}),
	}
	r.runs[fingerprint] = run
	return run, true
}

// Active returns the number of in-progress runs.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

// Finish publishes the leader's result and wakes all waiters. The run
// is removed from the registry first, so a request arriving after
// Finish starts fresh instead of receiving a stale result.
func (run *Run) Finish(value interface{}, err error) {
	run.once.Do(func() {
		run.registry.mu.Lock()
		delete(run.registry.runs, run.fingerprint)
		run.registry.mu.Unlock()

		run.result = Result{Value: value, Err: err}
		close(run.done)
	})
}

// Wait blocks until the leader finishes, the timeout lapses, or the
// context ends. The boolean reports whether a result was received; on
// a timeout the caller is expected to proceed with its own independent
// attempt rather than fail the request.
func (run *Run) Wait(ctx context.Context, timeout time.Duration) (Result, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-run.done:
		metrics.InflightWaitsTotal.WithLabelValues("joined").Inc()
		return run.result, true
	case <-timer.C:
		metrics.InflightWaitsTotal.WithLabelValues("timeout").Inc()
		logging.Warn("gave up waiting on in-flight conversion %s after %v", run.fingerprint, timeout)
		return Result{}, false
	case <-ctx.Done():
		return Result{Err: ctx.Err()}, true
	}
}
