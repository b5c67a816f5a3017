package acquirer

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"clip2mp3/internal/extractor"
	"clip2mp3/internal/identity"
)

func mediaBytes(size int) []byte {
	// Plausible mp4 head followed by filler.
	b := make([]byte, size)
	copy(b, []byte{0x00, 0x00, 0x00, 0x20, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm'})
	return b
}

func testAcquirer(t *testing.T, srv *httptest.Server, retries int) *Acquirer {
	t.Helper()
	return New(Options{
		WorkDir:  t.TempDir(),
		MaxBytes: 1 << 20,
		MinBytes: 100,
		Retries:  retries,
		Backoff:  5 * time.Millisecond,
		Identity: identity.NewPoolWith([]string{"test-agent"}, 1),
		Client:   srv.Client(),
	})
}

func desc(srv *httptest.Server, path string) *extractor.Descriptor {
	h := http.Header{}
	h.Set("Referer", "https://www.tiktok.com/")
	return &extractor.Descriptor{MediaURL: srv.URL + path, VideoID: "1", Headers: h}
}

func TestFetchSuccess(t *testing.T) {
	payload := mediaBytes(5000)
	var gotReferer, gotRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReferer = r.Header.Get("Referer")
		gotRange = r.Header.Get("Range")
		w.Write(payload)
	}))
	defer srv.Close()

	a := testAcquirer(t, srv, 0)
	artifact, err := a.Fetch(context.Background(), desc(srv, "/v.mp4"))
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(artifact.Path)

	if artifact.Size != int64(len(payload)) {
		t.Errorf("Size = %d, want %d", artifact.Size, len(payload))
	}
	data, err := os.ReadFile(artifact.Path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, payload) {
		t.Error("file contents do not match payload")
	}
	if gotReferer != "https://www.tiktok.com/" {
		t.Errorf("Referer = %q, descriptor headers not applied", gotReferer)
	}
	if gotRange != "bytes=0-" {
		t.Errorf("Range = %q, want bytes=0-", gotRange)
	}
}

func TestFetchTooSmall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(mediaBytes(50))
	}))
	defer srv.Close()

	a := testAcquirer(t, srv, 2)
	_, err := a.Fetch(context.Background(), desc(srv, "/tiny.mp4"))
	if !errors.Is(err, ErrTooSmall) {
		t.Errorf("error = %v, want ErrTooSmall", err)
	}
}

func TestFetchTooLargeAbortsMidStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No Content-Length; stream past the ceiling.
		w.(http.Flusher).Flush()
		chunk := mediaBytes(64 << 10)
		for i := 0; i < 32; i++ {
			if _, err := w.Write(chunk); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	a := testAcquirer(t, srv, 0)
	_, err := a.Fetch(context.Background(), desc(srv, "/huge.mp4"))
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("error = %v, want ErrTooLarge", err)
	}
}

func TestFetchDeclaredLengthTooLarge(t *testing.T) {
	requested := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = true
		w.Header().Set("Content-Length", "999999999")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := testAcquirer(t, srv, 0)
	_, err := a.Fetch(context.Background(), desc(srv, "/big.mp4"))
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("error = %v, want ErrTooLarge", err)
	}
	if !requested {
		t.Error("no request made")
	}
}

func TestFetchRejectsHTMLBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>URL expired</body></html>" + string(make([]byte, 500))))
	}))
	defer srv.Close()

	a := testAcquirer(t, srv, 2)
	_, err := a.Fetch(context.Background(), desc(srv, "/expired.mp4"))
	if !errors.Is(err, ErrNotMedia) {
		t.Errorf("error = %v, want ErrNotMedia", err)
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			http.Error(w, "upstream busy", http.StatusBadGateway)
			return
		}
		w.Write(mediaBytes(5000))
	}))
	defer srv.Close()

	a := testAcquirer(t, srv, 3)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	artifact, err := a.Fetch(ctx, desc(srv, "/flaky.mp4"))
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(artifact.Path)

	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestFetchRetriesClientErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "gone", http.StatusForbidden)
	}))
	defer srv.Close()

	a := testAcquirer(t, srv, 2)
	_, err := a.Fetch(context.Background(), desc(srv, "/denied.mp4"))
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3 (expiring URLs get re-requested)", attempts)
	}
}

func TestFetchDoesNotRetryTooLarge(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Header().Set("Content-Length", "999999999")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := testAcquirer(t, srv, 3)
	_, err := a.Fetch(context.Background(), desc(srv, "/big.mp4"))
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("error = %v, want ErrTooLarge", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (oversized media is terminal)", attempts)
	}
}

func TestFetchProbeValidation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(mediaBytes(5000))
	}))
	defer srv.Close()

	probes := 0
	dir := t.TempDir()
	a := New(Options{
		WorkDir:  dir,
		MaxBytes: 1 << 20,
		MinBytes: 100,
		Backoff:  5 * time.Millisecond,
		Identity: identity.NewPoolWith([]string{"test-agent"}, 1),
		Client:   srv.Client(),
		Probe: func(_ context.Context, path string) error {
			probes++
			return errors.New("no decodable streams")
		},
	})

	_, err := a.Fetch(context.Background(), desc(srv, "/broken.mp4"))
	if !errors.Is(err, ErrNotMedia) {
		t.Errorf("error = %v, want ErrNotMedia", err)
	}
	if probes != 1 {
		t.Errorf("probes = %d, want 1", probes)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("%d files left in work dir after failed probe", len(entries))
	}
}

func TestPartialDownloadCleanedUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(mediaBytes(50))
	}))
	defer srv.Close()

	dir := t.TempDir()
	a := New(Options{
		WorkDir:  dir,
		MaxBytes: 1 << 20,
		MinBytes: 100,
		Identity: identity.NewPoolWith([]string{"test-agent"}, 1),
		Client:   srv.Client(),
	})

	_, err := a.Fetch(context.Background(), desc(srv, "/tiny.mp4"))
	if err == nil {
		t.Fatal("expected error")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("%d files left in work dir after failed download", len(entries))
	}
}
