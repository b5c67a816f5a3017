package proxyring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNextRoundRobin(t *testing.T) {
	r := New(Options{Static: []string{
		"http://198.51.100.1:8080",
		"http://198.51.100.2:8080",
	}})

	first := r.Next()
	second := r.Next()
	third := r.Next()

	if first == nil || second == nil || third == nil {
		t.Fatal("Next() returned nil with non-empty ring")
	}
	if first.URL.String() == second.URL.String() {
		t.Error("consecutive Next() calls returned the same proxy")
	}
	if first.URL.String() != third.URL.String() {
		t.Error("rotation did not wrap around")
	}
}

func TestEmptyRingReturnsNil(t *testing.T) {
	r := New(Options{})
	if p := r.Next(); p != nil {
		t.Errorf("Next() = %v, want nil for empty ring", p)
	}
}

func TestMarkFailedRemovesProxy(t *testing.T) {
	r := New(Options{Static: []string{
		"http://198.51.100.1:8080",
		"http://198.51.100.2:8080",
	}})

	p := r.Next()
	r.MarkFailed(p)

	if r.Size() != 1 {
		t.Fatalf("Size() = %d after MarkFailed, want 1", r.Size())
	}
	remaining := r.Next()
	if remaining.URL.String() == p.URL.String() {
		t.Error("failed proxy still in rotation")
	}
}

func TestInvalidStaticProxiesIgnored(t *testing.T) {
	r := New(Options{Static: []string{"not a url", "", "http://198.51.100.1:3128"}})
	if r.Size() != 1 {
		t.Errorf("Size() = %d, want 1", r.Size())
	}
}

func TestRefreshKeepsStaticReplacesDiscovered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"protocol":"http","ip":"203.0.113.9","port":"8080"}`))
	}))
	defer srv.Close()

	r := New(Options{
		Static:  []string{"http://198.51.100.1:8080"},
		Sources: []Source{&gimmeProxySource{endpoint: srv.URL}},
		Client:  srv.Client(),
	})

	r.Refresh(context.Background())
	if r.Size() != 2 {
		t.Fatalf("Size() = %d after refresh, want 2", r.Size())
	}

	// A second refresh must not accumulate duplicates of discovered proxies.
	r.Refresh(context.Background())
	if r.Size() != 2 {
		t.Errorf("Size() = %d after second refresh, want 2", r.Size())
	}
}

func TestRefreshToleratesFailingSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := New(Options{
		Static:  []string{"http://198.51.100.1:8080"},
		Sources: []Source{&gimmeProxySource{endpoint: srv.URL}},
		Client:  srv.Client(),
	})

	r.Refresh(context.Background())
	if r.Size() != 1 {
		t.Errorf("Size() = %d, want static proxy preserved after source failure", r.Size())
	}
}

func TestFreeProxyListScrape(t *testing.T) {
	const page = `<html><body><table><tbody>
		<tr><td>203.0.113.1</td><td>80</td><td>US</td><td>United States</td><td>elite</td><td>no</td><td>yes</td><td>1m</td></tr>
		<tr><td>203.0.113.2</td><td>3128</td><td>DE</td><td>Germany</td><td>anonymous</td><td>no</td><td>no</td><td>2m</td></tr>
	</tbody></table></body></html>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(page))
	}))
	defer srv.Close()

	src := &freeProxyListSource{endpoint: srv.URL}
	proxies, err := src.Fetch(context.Background(), srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	if len(proxies) != 1 {
		t.Fatalf("got %d proxies, want 1 (https-only filter)", len(proxies))
	}
	if got := proxies[0].URL.Host; got != "203.0.113.1:80" {
		t.Errorf("proxy host = %q, want %q", got, "203.0.113.1:80")
	}
}

func TestGeonodeSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"ip":"203.0.113.5","port":"8080"},{"ip":"","port":"80"}]}`))
	}))
	defer srv.Close()

	src := &geonodeSource{endpoint: srv.URL}
	proxies, err := src.Fetch(context.Background(), srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	if len(proxies) != 1 {
		t.Fatalf("got %d proxies, want 1", len(proxies))
	}
}
