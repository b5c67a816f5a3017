package extractor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/time/rate"

	"clip2mp3/internal/identity"
	"clip2mp3/internal/platform"
)

func testClient() *Client {
	return NewClient(ClientOptions{
		Identity: identity.NewPoolWith([]string{"test-agent"}, 1),
		PerHost:  rate.Inf,
	})
}

func testLink(id string) *platform.Link {
	return &platform.Link{
		Raw:       "https://www.tiktok.com/@u/video/" + id,
		Canonical: "https://www.tiktok.com/@u/video/" + id,
		VideoID:   id,
		Host:      "www.tiktok.com",
	}
}

func TestMobileStrategy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v/12345.html" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<html><script>{"playAddr":"https://cdn.example/stream.mp4","nickname":"creator","desc":"hi"}</script></html>`)
	}))
	defer srv.Close()

	s := &mobileStrategy{client: testClient(), baseURL: srv.URL}
	desc, err := s.Extract(context.Background(), testLink("12345"))
	if err != nil {
		t.Fatal(err)
	}
	if desc.MediaURL != "https://cdn.example/stream.mp4" {
		t.Errorf("MediaURL = %q", desc.MediaURL)
	}
	if desc.Author != "creator" {
		t.Errorf("Author = %q", desc.Author)
	}
	if desc.Headers.Get("Referer") == "" {
		t.Error("descriptor missing Referer header")
	}
}

func TestMobileStrategyNotApplicableWithoutNumericID(t *testing.T) {
	s := &mobileStrategy{client: testClient()}
	_, err := s.Extract(context.Background(), &platform.Link{VideoID: "ZTabc"})
	if !errors.Is(err, errNotApplicable) {
		t.Errorf("error = %v, want errNotApplicable", err)
	}
}

func TestWebAPIStrategy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("itemId") != "777" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"itemInfo":{"itemStruct":{
			"id":"777","desc":"caption",
			"video":{"playAddr":"https://cdn.example/play.mp4","downloadAddr":"https://cdn.example/dl.mp4","cover":"https://cdn.example/c.jpg"},
			"author":{"nickname":"someone"}}}}`)
	}))
	defer srv.Close()

	s := &webAPIStrategy{client: testClient(), baseURL: srv.URL}
	desc, err := s.Extract(context.Background(), testLink("777"))
	if err != nil {
		t.Fatal(err)
	}
	if desc.MediaURL != "https://cdn.example/play.mp4" {
		t.Errorf("MediaURL = %q, want playAddr", desc.MediaURL)
	}

	s.opts.PreferDownloadAddr = true
	desc, err = s.Extract(context.Background(), testLink("777"))
	if err != nil {
		t.Fatal(err)
	}
	if desc.MediaURL != "https://cdn.example/dl.mp4" {
		t.Errorf("MediaURL = %q, want downloadAddr when preferred", desc.MediaURL)
	}
	if desc.Author != "someone" || desc.Description != "caption" {
		t.Errorf("metadata = %q/%q", desc.Author, desc.Description)
	}
}

func TestEmbedStrategyStructuredData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head>
			<script type="application/ld+json">{"@type":"VideoObject","contentUrl":"https://cdn.example/v.mp4","name":"creator","description":"words","thumbnailUrl":"https://cdn.example/t.jpg"}</script>
		</head></html>`)
	}))
	defer srv.Close()

	s := &embedStrategy{client: testClient(), baseURL: srv.URL}
	desc, err := s.Extract(context.Background(), testLink("42"))
	if err != nil {
		t.Fatal(err)
	}
	if desc.MediaURL != "https://cdn.example/v.mp4" {
		t.Errorf("MediaURL = %q", desc.MediaURL)
	}
	if desc.CoverURL != "https://cdn.example/t.jpg" {
		t.Errorf("CoverURL = %q", desc.CoverURL)
	}
}

func TestEmbedStrategyMarkerFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><script>{"videoUrl":"https://cdn.example/old.mp4"}</script></html>`)
	}))
	defer srv.Close()

	s := &embedStrategy{client: testClient(), baseURL: srv.URL}
	desc, err := s.Extract(context.Background(), testLink("42"))
	if err != nil {
		t.Fatal(err)
	}
	if desc.MediaURL != "https://cdn.example/old.mp4" {
		t.Errorf("MediaURL = %q", desc.MediaURL)
	}
}

func TestMirrorStrategy(t *testing.T) {
	var gotToken, gotURL, gotCookie string
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc"})
		fmt.Fprint(w, `<html><form><input id="token" name="token" value="csrf123"></form></html>`)
	})
	mux.HandleFunc("/search/", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotToken = r.FormValue("token")
		gotURL = r.FormValue("url")
		gotCookie = r.Header.Get("Cookie")
		fmt.Fprint(w, `<div class="result"><a class="download-link" href="https://mirror.example/out.mp4">download</a></div>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := &mirrorStrategy{client: testClient(), baseURL: srv.URL}
	link := testLink("9")
	desc, err := s.Extract(context.Background(), link)
	if err != nil {
		t.Fatal(err)
	}
	if desc.MediaURL != "https://mirror.example/out.mp4" {
		t.Errorf("MediaURL = %q", desc.MediaURL)
	}
	if gotToken != "csrf123" {
		t.Errorf("token = %q", gotToken)
	}
	if gotURL != link.Raw {
		t.Errorf("submitted url = %q, want %q", gotURL, link.Raw)
	}
	if gotCookie == "" {
		t.Error("landing-page cookie not forwarded to search")
	}
}

type stubStrategy struct {
	name string
	desc *Descriptor
	err  error
}

func (s *stubStrategy) Name() string { return s.name }
func (s *stubStrategy) Extract(context.Context, *platform.Link) (*Descriptor, error) {
	return s.desc, s.err
}

func TestChainFallsThroughFailures(t *testing.T) {
	want := &Descriptor{MediaURL: "https://cdn.example/ok.mp4"}
	chain := NewChain(
		&stubStrategy{name: "first", err: errors.New("boom")},
		&stubStrategy{name: "second", err: fmt.Errorf("%w: nope", errNotApplicable)},
		&stubStrategy{name: "third", desc: want},
	)

	desc, err := chain.Extract(context.Background(), testLink("1"))
	if err != nil {
		t.Fatal(err)
	}
	if desc.MediaURL != want.MediaURL {
		t.Errorf("MediaURL = %q", desc.MediaURL)
	}
	if desc.Strategy != "third" {
		t.Errorf("Strategy = %q, want %q", desc.Strategy, "third")
	}
}

func TestChainExtractFromResumes(t *testing.T) {
	first := &Descriptor{MediaURL: "https://cdn.example/one.mp4"}
	second := &Descriptor{MediaURL: "https://cdn.example/two.mp4"}
	chain := NewChain(
		&stubStrategy{name: "a", desc: first},
		&stubStrategy{name: "b", desc: second},
	)

	desc, idx, err := chain.ExtractFrom(context.Background(), testLink("1"), 0)
	if err != nil {
		t.Fatal(err)
	}
	if idx != 0 || desc.MediaURL != first.MediaURL {
		t.Fatalf("first pass got idx %d, url %q", idx, desc.MediaURL)
	}

	// A caller whose download failed resumes past the winner.
	desc, idx, err = chain.ExtractFrom(context.Background(), testLink("1"), idx+1)
	if err != nil {
		t.Fatal(err)
	}
	if idx != 1 || desc.MediaURL != second.MediaURL {
		t.Errorf("resume got idx %d, url %q", idx, desc.MediaURL)
	}

	if _, _, err := chain.ExtractFrom(context.Background(), testLink("1"), 2); !errors.Is(err, ErrExhausted) {
		t.Errorf("past-the-end error = %v, want ErrExhausted", err)
	}
}

func TestChainExhausted(t *testing.T) {
	chain := NewChain(
		&stubStrategy{name: "a", err: errors.New("down")},
		&stubStrategy{name: "b", err: errors.New("also down")},
	)
	_, err := chain.Extract(context.Background(), testLink("1"))
	if !errors.Is(err, ErrExhausted) {
		t.Errorf("error = %v, want ErrExhausted", err)
	}
}

func TestFromNames(t *testing.T) {
	chain, err := FromNames([]string{"mobile", "api", "embed", "mirror"}, testClient(), StrategyOptions{})
	if err != nil {
		t.Fatal(err)
	}
	got := chain.Names()
	want := []string{"mobile", "api", "embed", "mirror"}
	if len(got) != len(want) {
		t.Fatalf("Names() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if _, err := FromNames([]string{"telepathy"}, testClient(), StrategyOptions{}); err == nil {
		t.Error("expected error for unknown strategy name")
	}
}
