package identity

import (
	"math/rand"
	"net/http"
	"sync"
)

// defaultUserAgents mirrors the browser population seen hitting the
// platform from real devices. Desktop and mobile are mixed because some
// extraction endpoints serve different markup per device class.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Mobile Safari/537.36",
	"Mozilla/5.0 (Linux; Android 13; SM-S918B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Mobile Safari/537.36",
}

// Pool hands out rotating browser identities for outbound requests.
type Pool struct {
	mu     sync.Mutex
	agents []string
	rng    *rand.Rand
}

// NewPool creates a Pool with the built-in User-Agent set.
func NewPool() *Pool {
	return NewPoolWith(defaultUserAgents, rand.Int63())
}

// NewPoolWith creates a Pool with a custom agent list and seed.
// An empty list falls back to the built-in set.
func NewPoolWith(agents []string, seed int64) *Pool {
	if len(agents) == 0 {
		agents = defaultUserAgents
	}
	return &Pool{
		agents: agents,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// UserAgent returns a random User-Agent from the pool.
func (p *Pool) UserAgent() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.agents[p.rng.Intn(len(p.agents))]
}

// Apply sets a rotating identity's request headers. The headers beyond
// User-Agent match what the platform's own web client sends; several
// extraction endpoints reject requests without them.
func (p *Pool) Apply(req *http.Request) {
	req.Header.Set("User-Agent", p.UserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", "https://www.tiktok.com/")
}

// Size returns the number of identities in the pool.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.agents)
}
