package httpapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koscakluka/astrape-core/core/audio"
	"github.com/koscakluka/astrape-core/core/invocation"
)

func newTestClient(t *testing.T, url string, opts ...ClientOption) *Client {
	t.Helper()
	dir, err := audio.NewTempDir(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	opts = append([]ClientOption{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return NewClient(url, dir, opts...)
}

func TestSynthesizeSavesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Query().Get("text") != "good morning" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte("RIFF-audio"))
	}))
	defer server.Close()

	path, err := newTestClient(t, server.URL).Synthesize(context.Background(), "good morning", "ignored")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected audio file: %v", err)
	}
	if string(data) != "RIFF-audio" {
		t.Fatalf("unexpected audio content %q", data)
	}
}

func TestSynthesizeRetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL, WithRetry(invocation.Limit(2), time.Millisecond)).
		Synthesize(context.Background(), "hello", "")
	if err == nil {
		t.Fatalf("expected failure after retries")
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}
