package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/koscakluka/astrape-core/core/config"
	"github.com/koscakluka/astrape-core/core/invocation"
)

func TestAttemptBudget(t *testing.T) {
	tests := []struct {
		name     string
		settings config.ServiceSettings
		want     time.Duration
	}{
		{"no timeout", config.ServiceSettings{RetryAttempts: 3}, 0},
		{"unbounded retries", config.ServiceSettings{Timeout: config.Duration(5 * time.Second)}, 0},
		{"single attempt", config.ServiceSettings{RetryAttempts: 1, Timeout: config.Duration(5 * time.Second)}, 5 * time.Second},
		{
			"retries with backoff",
			config.ServiceSettings{RetryAttempts: 3, Timeout: config.Duration(5 * time.Second), RetryDelay: config.Duration(time.Second)},
			15*time.Second + time.Second + 2*time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := attemptBudget(tt.settings); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestNewTranscriberBuildsEveryProvider(t *testing.T) {
	builtin, err := config.ParseProvider("deepgram")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	endpoint, err := config.ParseProvider("http://localhost:9000/transcribe")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	transcriber, err := newTranscriber(config.ServiceSettings{
		Mode:      invocation.PolicyReliable,
		Providers: []config.ProviderSpec{builtin, endpoint},
	}, newLogger(&bytes.Buffer{}, false))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if transcriber.Policy() != invocation.PolicyReliable {
		t.Fatalf("expected reliable policy, got %s", transcriber.Policy())
	}

	_, err = newTranscriber(config.ServiceSettings{Providers: []config.ProviderSpec{{Name: "carrier pigeon"}}}, newLogger(&bytes.Buffer{}, false))
	if !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestCheckPrintsResolvedConfig(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"check", "--config", t.TempDir() + "/missing.yaml", "--env", t.TempDir() + "/missing.env"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"speech-to-text: zero_trust", "model_1", "wake:"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("expected output to contain %q, got:\n%s", want, out.String())
		}
	}
}

func TestSchemaCommandPrintsJSON(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"schema"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(strings.TrimSpace(out.String()), "{") || !strings.Contains(out.String(), "speech_to_text") {
		t.Fatalf("expected a JSON schema, got:\n%s", out.String())
	}
}
