// Package speechtotext turns captured utterances into text through one or
// more transcription providers.
package speechtotext

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/koscakluka/astrape-core/core/invocation"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Provider transcribes the audio file at audioPath.
type Provider interface {
	Name() string
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Transcriber calls its providers following an invocation policy.
type Transcriber struct {
	strategy  invocation.Strategy
	providers []Provider

	timeout time.Duration
	logger  *slog.Logger
}

type TranscriberOption func(*Transcriber)

// WithTimeout bounds every single provider call.
func WithTimeout(timeout time.Duration) TranscriberOption {
	return func(t *Transcriber) {
		t.timeout = timeout
	}
}

func WithLogger(logger *slog.Logger) TranscriberOption {
	return func(t *Transcriber) {
		if logger != nil {
			t.logger = logger
		}
	}
}

func NewTranscriber(policy invocation.Policy, providers []Provider, opts ...TranscriberOption) *Transcriber {
	t := &Transcriber{providers: providers, logger: logger}
	for _, opt := range opts {
		opt(t)
	}
	t.strategy = invocation.NewStrategy(policy,
		invocation.WithTimeout(t.timeout),
		invocation.WithLogger(t.logger),
		invocation.WithOperationName("speech-to-text"),
	)
	return t
}

func (t *Transcriber) Policy() invocation.Policy { return t.strategy.Policy() }

// Transcribe returns the first acceptable transcript. When every provider
// fails the error lists each attempt, an *invocation.ExhaustedError unless
// the policy is trusted. Providers that all heard nothing yield an empty
// transcript and no error.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	ctx, span := tracer.Start(ctx, "transcribe")
	defer span.End()

	result, err := invocation.Invoke(ctx, t.strategy, t.providers,
		func(ctx context.Context, p Provider) (string, error) {
			text, err := p.Transcribe(ctx, audioPath)
			return strings.TrimSpace(text), err
		})
	if err != nil && invocation.OnlyInvalidPayloads(err) {
		t.logger.DebugContext(ctx, "no provider heard any speech", "policy", t.strategy.Policy().String())
		return "", nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		t.logger.ErrorContext(ctx, "speech to text failed", "policy", t.strategy.Policy().String(), "error", err)
		return "", err
	}

	span.SetAttributes(attribute.String("stt.provider", result.Provider))
	t.logger.DebugContext(ctx, "transcribed utterance", "provider", result.Provider, "transcript", result.Payload)
	return result.Payload, nil
}
