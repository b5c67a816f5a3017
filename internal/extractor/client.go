package extractor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"clip2mp3/internal/identity"
	"clip2mp3/internal/logging"
	"clip2mp3/internal/proxyring"
)

// maxProxyAttempts caps how many proxies are tried before going direct.
const maxProxyAttempts = 3

// Client performs outbound requests for extraction strategies. It
// rotates browser identities, paces requests per destination host, and
// walks the proxy ring before falling back to a direct connection.
type Client struct {
	identity *identity.Pool
	ring     *proxyring.Ring
	timeout  time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perHost  rate.Limit
	burst    int

	// newTransport builds a client for a given proxy; swapped in tests.
	newTransport func(proxy *url.URL) *http.Client
}

// ClientOptions configures a Client.
type ClientOptions struct {
	Identity *identity.Pool
	Ring     *proxyring.Ring
	// Timeout bounds each individual request attempt.
	Timeout time.Duration
	// PerHost is the sustained request rate allowed per destination host.
	PerHost rate.Limit
	// Burst is the per-host burst allowance.
	Burst int
}

// NewClient creates a Client.
func NewClient(opts ClientOptions) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	perHost := opts.PerHost
	if perHost <= 0 {
		perHost = rate.Every(500 * time.Millisecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 3
	}
	pool := opts.Identity
	if pool == nil {
		pool = identity.NewPool()
	}

	return &Client{
		identity: pool,
		ring:     opts.Ring,
		timeout:  timeout,
		limiters: make(map[string]*rate.Limiter),
		perHost:  perHost,
		burst:    burst,
		newTransport: func(proxy *url.URL) *http.Client {
			transport := http.DefaultTransport.(*http.Transport).Clone()
			if proxy != nil {
				transport.Proxy = http.ProxyURL(proxy)
			}
			return &http.Client{Transport: transport, Timeout: timeout}
		},
	}
}

func (c *Client) limiter(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[host]
	if !ok {
		l = rate.NewLimiter(c.perHost, c.burst)
		c.limiters[host] = l
	}
	return l
}

// Do sends the request, honoring the per-host pacer and rotating
// through proxies on connection failure. Identity headers are applied
// unless the request already carries a User-Agent.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := c.limiter(req.URL.Hostname()).Wait(ctx); err != nil {
		return nil, err
	}
	if req.Header.Get("User-Agent") == "" {
		c.identity.Apply(req)
	}

	attempts := maxProxyAttempts
	if c.ring == nil || c.ring.Size() == 0 {
		attempts = 0
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		proxy := c.ring.Next()
		if proxy == nil {
			break
		}

		resp, err := c.attempt(ctx, req, proxy.URL)
		if err != nil {
			logging.Debug("proxy %s attempt failed: %v", proxy.URL.Host, err)
			c.ring.MarkFailed(proxy)
			lastErr = err
			continue
		}
		return resp, nil
	}

	// Direct is the last resort, not a failure mode.
	resp, err := c.attempt(ctx, req, nil)
	if err != nil {
		if lastErr != nil {
			return nil, fmt.Errorf("direct request failed after proxy attempts: %w", err)
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) attempt(ctx context.Context, req *http.Request, proxy *url.URL) (*http.Response, error) {
	attempt := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		attempt.Body = body
	}
	return c.newTransport(proxy).Do(attempt)
}

// fetch GETs a URL and returns its body, enforcing a size ceiling on
// page responses so a misbehaving endpoint cannot balloon memory.
func (c *Client) fetch(ctx context.Context, rawURL string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	const maxPageBytes = 4 << 20
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, err
	}
	return body, nil
}

// postForm POSTs form values and returns the body. Cookies captured by
// the caller are forwarded verbatim.
func (c *Client) postForm(ctx context.Context, rawURL string, form url.Values, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
}
