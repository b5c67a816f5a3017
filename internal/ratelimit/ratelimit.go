package ratelimit

import (
	"sync"
	"time"

	"clip2mp3/internal/metrics"
)

// Limiter enforces a per-client sliding window: at most Max requests
// within the trailing Window. Each client is tracked by an opaque key,
// normally its IP address.
type Limiter struct {
	max    int
	window time.Duration

	mu      sync.Mutex
	clients map[string][]time.Time

	now func() time.Time
}

// New creates a Limiter allowing max requests per window.
func New(max int, window time.Duration) *Limiter {
	return &Limiter{
		max:     max,
		window:  window,
		clients: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow records an attempt for key and reports whether it is within
// the limit. Denied attempts do not consume window capacity.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	stamps := l.clients[key]
	live := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			live = append(live, ts)
		}
	}

	if len(live) >= l.max {
		l.clients[key] = live
		metrics.RateLimitDeniedTotal.Inc()
		return false
	}

	l.clients[key] = append(live, now)
	return true
}

// Retained reports how many requests remain available for key.
func (l *Limiter) Retained(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	used := 0
	for _, ts := range l.clients[key] {
		if ts.After(cutoff) {
			used++
		}
	}
	if used > l.max {
		return 0
	}
	return l.max - used
}

// Prune drops clients whose whole window has lapsed. Called
// periodically so idle client keys do not accumulate forever.
func (l *Limiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	removed := 0
	for key, stamps := range l.clients {
		alive := false
		for _, ts := range stamps {
			if ts.After(cutoff) {
				alive = true
				break
			}
		}
		if !alive {
			delete(l.clients, key)
			removed++
		}
	}
	return removed
}

// StartPruner prunes on the given interval until the returned stop
// function is called.
func (l *Limiter) StartPruner(interval time.Duration) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Prune()
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
