package streaming

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCopyDeliversEverything(t *testing.T) {
	payload := strings.Repeat("abcdefgh", 100_000) // ~800KB, several chunks
	rec := httptest.NewRecorder()

	written, err := Copy(context.Background(), rec, strings.NewReader(payload), DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if written != int64(len(payload)) {
		t.Errorf("written = %d, want %d", written, len(payload))
	}
	if rec.Body.String() != payload {
		t.Error("delivered body does not match payload")
	}
}

func TestCopyEmptyReader(t *testing.T) {
	rec := httptest.NewRecorder()
	written, err := Copy(context.Background(), rec, bytes.NewReader(nil), DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if written != 0 {
		t.Errorf("written = %d, want 0", written)
	}
}

func TestCopyClientGone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	_, err := Copy(ctx, rec, strings.NewReader(strings.Repeat("x", 1<<20)), DefaultConfig())
	if !errors.Is(err, ErrClientGone) {
		t.Errorf("error = %v, want ErrClientGone", err)
	}
}

// slowWriter blocks on every write until released.
type slowWriter struct {
	*httptest.ResponseRecorder
	block chan struct{}
}

func (sw *slowWriter) Write(p []byte) (int, error) {
	<-sw.block
	return sw.ResponseRecorder.Write(p)
}

func TestCopyWriteTimeout(t *testing.T) {
	sw := &slowWriter{
		ResponseRecorder: httptest.NewRecorder(),
		block:            make(chan struct{}),
	}
	defer close(sw.block)

	config := Config{
		WriteTimeout: 20 * time.Millisecond,
		ChunkSize:    1024,
	}
	_, err := Copy(context.Background(), sw, strings.NewReader(strings.Repeat("x", 4096)), config)
	if !errors.Is(err, ErrWriteTimeout) {
		t.Errorf("error = %v, want ErrWriteTimeout", err)
	}
}

func TestChunkingSplitsLargeWrites(t *testing.T) {
	rec := httptest.NewRecorder()
	gw := newGuardedWriter(context.Background(), rec, Config{
		WriteTimeout: time.Second,
		ChunkSize:    10,
	})
	defer gw.cancel()

	n, err := gw.Write([]byte(strings.Repeat("y", 35)))
	if err != nil {
		t.Fatal(err)
	}
	if n != 35 {
		t.Errorf("n = %d, want 35", n)
	}
	if rec.Body.Len() != 35 {
		t.Errorf("body = %d bytes, want 35", rec.Body.Len())
	}
}
