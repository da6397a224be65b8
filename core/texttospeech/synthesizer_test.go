package texttospeech

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/koscakluka/astrape-core/core/invocation"
)

type fileProvider struct {
	name    string
	dir     string
	content string
	delay   time.Duration
	err     error
}

func (p fileProvider) Name() string { return p.name }

func (p fileProvider) Synthesize(ctx context.Context, text, voice string) (string, error) {
	time.Sleep(p.delay)
	if p.err != nil {
		return "", p.err
	}
	path := filepath.Join(p.dir, p.name+".wav")
	if err := os.WriteFile(path, []byte(p.content), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func quietSynthesizer(policy invocation.Policy, providers ...Provider) *Synthesizer {
	return NewSynthesizer(policy, providers, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestSynthesizeRejectsEmptyFiles(t *testing.T) {
	dir := t.TempDir()
	synth := quietSynthesizer(invocation.PolicyReliable,
		fileProvider{name: "empty", dir: dir},
		fileProvider{name: "good", dir: dir, content: "audio"},
	)

	path, err := synth.Synthesize(context.Background(), "hello", "voice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filepath.Base(path) != "good.wav" {
		t.Fatalf("expected good provider to win, got %s", path)
	}
}

func TestSynthesizeZeroTrustRemovesLosingFiles(t *testing.T) {
	dir := t.TempDir()
	synth := quietSynthesizer(invocation.PolicyZeroTrust,
		fileProvider{name: "fast", dir: dir, content: "audio"},
		fileProvider{name: "slow", dir: dir, content: "audio", delay: 50 * time.Millisecond},
	)

	path, err := synth.Synthesize(context.Background(), "hello", "voice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filepath.Base(path) != "fast.wav" {
		t.Fatalf("expected fast provider to win, got %s", path)
	}

	// Give the slow racer time to write its file.
	time.Sleep(100 * time.Millisecond)
	slow := filepath.Join(dir, "slow.wav")
	deadline := time.After(2 * time.Second)
	for {
		if _, err := os.Stat(slow); errors.Is(err, os.ErrNotExist) {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected losing audio file to be removed")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected winning file to remain: %v", err)
	}
}

func TestSynthesizeEmptyText(t *testing.T) {
	synth := quietSynthesizer(invocation.PolicyTrusted, fileProvider{name: "unused"})
	if _, err := synth.Synthesize(context.Background(), "  ", "voice"); !errors.Is(err, invocation.ErrInvalidPayload) {
		t.Fatalf("expected invalid payload, got %v", err)
	}
}

func TestSynthesizeTrustedFailure(t *testing.T) {
	synth := quietSynthesizer(invocation.PolicyTrusted, fileProvider{name: "down", err: errors.New("503")})
	if _, err := synth.Synthesize(context.Background(), "hello", "voice"); !errors.Is(err, invocation.ErrTransientProviderFailure) {
		t.Fatalf("expected transient failure, got %v", err)
	}
}
