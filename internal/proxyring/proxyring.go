package proxyring

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"clip2mp3/internal/logging"
	"clip2mp3/internal/metrics"
)

// Proxy is a single outbound proxy endpoint.
type Proxy struct {
	// URL is the full proxy URL, e.g. "http://203.0.113.7:8080".
	URL *url.URL
	// Source names where the proxy was discovered.
	Source string
}

// Ring maintains a rotating pool of outbound proxies. Next hands out
// proxies round-robin; MarkFailed removes a proxy that stopped working.
// An empty ring means requests go direct, which is always the last
// resort rather than a failure.
type Ring struct {
	mu      sync.Mutex
	proxies []Proxy
	cursor  int

	sources []Source
	client  *http.Client

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// Options configures a Ring.
type Options struct {
	// Static is a fixed list of proxy URLs that survives refreshes.
	Static []string
	// Sources are consulted on each refresh cycle.
	Sources []Source
	// Client performs source fetches. Defaults to a 15s-timeout client.
	Client *http.Client
}

// New creates a Ring seeded with the static list.
func New(opts Options) *Ring {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	r := &Ring{
		sources: opts.Sources,
		client:  client,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, raw := range opts.Static {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			logging.Warn("ignoring invalid static proxy %q", raw)
			continue
		}
		r.proxies = append(r.proxies, Proxy{URL: u, Source: "static"})
	}
	metrics.ProxyPoolSize.Set(float64(len(r.proxies)))
	return r
}

// Next returns the next proxy in rotation, or nil when the ring is
// empty and the caller should connect directly.
func (r *Ring) Next() *Proxy {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.proxies) == 0 {
		return nil
	}
	p := r.proxies[r.cursor%len(r.proxies)]
	r.cursor++
	return &p
}

// MarkFailed drops a proxy from the rotation.
func (r *Ring) MarkFailed(p *Proxy) {
	if p == nil {
		return
	}
	metrics.ProxyFailuresTotal.Inc()

	r.mu.Lock()
	defer r.mu.Unlock()

	for i, candidate := range r.proxies {
		if candidate.URL.String() == p.URL.String() {
			r.proxies = append(r.proxies[:i], r.proxies[i+1:]...)
			logging.Info("proxy %s removed from rotation (%d remain)", p.URL.Host, len(r.proxies))
			metrics.ProxyPoolSize.Set(float64(len(r.proxies)))
			return
		}
	}
}

// Size returns the current pool size.
func (r *Ring) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.proxies)
}

// Refresh fetches all sources and merges their results into the ring.
// Static proxies are kept; previously discovered proxies are replaced
// wholesale so dead entries age out.
func (r *Ring) Refresh(ctx context.Context) {
	if len(r.sources) == 0 {
		return
	}

	var discovered []Proxy
	for _, src := range r.sources {
		found, err := src.Fetch(ctx, r.client)
		if err != nil {
			logging.Warn("proxy source %s failed: %v", src.Name(), err)
			continue
		}
		discovered = append(discovered, found...)
		logging.Debug("proxy source %s yielded %d proxies", src.Name(), len(found))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.proxies[:0]
	for _, p := range r.proxies {
		if p.Source == "static" {
			kept = append(kept, p)
		}
	}
	r.proxies = append(kept, discovered...)
	r.cursor = 0
	metrics.ProxyPoolSize.Set(float64(len(r.proxies)))
	logging.Info("proxy ring refreshed: %d proxies in rotation", len(r.proxies))
}

// StartRefresher refreshes the ring on the given interval until Stop.
func (r *Ring) StartRefresher(interval time.Duration) {
	if len(r.sources) == 0 || interval <= 0 {
		close(r.done)
		return
	}
	go func() {
		defer close(r.done)

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		r.Refresh(ctx)
		cancel()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				r.Refresh(ctx)
				cancel()
			case <-r.stop:
				return
			}
		}
	}()
}

// Stop halts the background refresher.
func (r *Ring) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
}
