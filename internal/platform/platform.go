package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"clip2mp3/internal/identity"
	"clip2mp3/internal/logging"
)

// Sentinel errors surfaced to callers as validation failures.
var (
	ErrMalformedURL    = errors.New("malformed URL")
	ErrDisallowedHost  = errors.New("URL host is not a recognized platform domain")
	ErrUnsupportedPath = errors.New("URL does not reference a video")
)

// Link is a validated, canonicalized platform URL.
type Link struct {
	// Raw is the URL exactly as received.
	Raw string
	// Canonical is the URL after short-link expansion with query and
	// fragment stripped. Used for fingerprinting when no VideoID exists.
	Canonical string
	// VideoID is the extracted stable identifier; empty when the link shape
	// was recognized but the identifier must be discovered during extraction.
	VideoID string
	// Host is the canonical URL's host.
	Host string
	// ShortLink reports whether the original URL used a short-link domain.
	ShortLink bool
}

// idPatterns are tried in order against the canonical then the raw URL.
// The first capture group is the identifier.
var idPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/@[\w.-]+/video/(\d+)`),
	regexp.MustCompile(`/video/(\d+)`),
	regexp.MustCompile(`/t/(\w+)`),
	regexp.MustCompile(`[?&]item_id=(\d+)`),
}

// Options configures a Normalizer.
type Options struct {
	// Domains is the allowlist of full platform hosts.
	Domains []string
	// ShortlinkDomains are hosts whose URLs redirect to a full link.
	ShortlinkDomains []string
	// ExpandTimeout bounds the single redirect-resolution request.
	ExpandTimeout time.Duration
	// Identity supplies the User-Agent for the expansion request.
	Identity *identity.Pool
	// Client overrides the HTTP client used for expansion (tests).
	Client *http.Client
}

// Normalizer validates platform URLs and extracts stable identifiers.
type Normalizer struct {
	domains      map[string]bool
	shortDomains map[string]bool
	identity     *identity.Pool
	client       *http.Client
}

// New creates a Normalizer from the given options.
func New(opts Options) *Normalizer {
	timeout := opts.ExpandTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	pool := opts.Identity
	if pool == nil {
		pool = identity.NewPool()
	}

	n := &Normalizer{
		domains:      make(map[string]bool, len(opts.Domains)),
		shortDomains: make(map[string]bool, len(opts.ShortlinkDomains)),
		identity:     pool,
		client:       client,
	}
	for _, d := range opts.Domains {
		n.domains[strings.ToLower(d)] = true
	}
	for _, d := range opts.ShortlinkDomains {
		n.shortDomains[strings.ToLower(d)] = true
	}
	return n
}

// Normalize validates rawURL against the domain allowlist, expands
// short links by following redirects, and extracts the video identifier.
//
// A recognized short link whose identifier cannot be determined is NOT an
// error: extraction strategies may still resolve content from the URL
// itself, so an empty VideoID is returned instead.
func (n *Normalizer) Normalize(ctx context.Context, rawURL string) (*Link, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("%w: empty URL", ErrMalformedURL)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q", ErrMalformedURL, parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	isShort := n.shortDomains[host]
	if !n.domains[host] && !isShort {
		return nil, fmt.Errorf("%w: %q", ErrDisallowedHost, host)
	}

	link := &Link{Raw: rawURL, ShortLink: isShort}

	final := parsed
	if isShort {
		// One resolution hop, best effort: a failed expansion keeps the
		// original URL rather than failing the request.
		if expanded := n.expand(ctx, rawURL); expanded != nil {
			final = expanded
		}
	}

	link.Canonical = canonicalize(final)
	link.Host = strings.ToLower(final.Hostname())
	link.VideoID = extractID(final.String(), rawURL)

	if link.VideoID == "" && !isShort {
		// A full platform URL with no recognizable video reference is a
		// caller mistake, not something extraction can recover from.
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPath, parsed.Path)
	}

	logging.Debug("normalized %s -> canonical=%s id=%s", rawURL, link.Canonical, link.VideoID)
	return link, nil
}

// expand follows redirects for a short link and returns the final URL,
// or nil if expansion failed.
func (n *Normalizer) expand(ctx context.Context, shortURL string) *url.URL {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, shortURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", n.identity.UserAgent())

	resp, err := n.client.Do(req)
	if err != nil {
		logging.Warn("short-link expansion failed for %s: %v", shortURL, err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		logging.Warn("short-link expansion for %s returned status %d", shortURL, resp.StatusCode)
		return nil
	}

	// The client followed redirects; Request.URL is the final location.
	return resp.Request.URL
}

// canonicalize strips query, fragment, and user info, and lowercases the host.
func canonicalize(u *url.URL) string {
	c := &url.URL{
		Scheme: u.Scheme,
		Host:   strings.ToLower(u.Host),
		Path:   strings.TrimSuffix(u.Path, "/"),
	}
	return c.String()
}

// extractID runs the identifier patterns against the expanded URL first,
// then the original (the original may carry an item_id query parameter
// that canonicalization removed).
func extractID(expanded, original string) string {
	for _, pattern := range idPatterns {
		if m := pattern.FindStringSubmatch(expanded); m != nil {
			return m[1]
		}
	}
	for _, pattern := range idPatterns {
		if m := pattern.FindStringSubmatch(original); m != nil {
			return m[1]
		}
	}
	return ""
}
