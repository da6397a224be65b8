// Package texttospeech turns reply text into playable audio files through
// one or more synthesis providers.
package texttospeech

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/koscakluka/astrape-core/core/invocation"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Provider synthesizes text with voice and returns the path of the audio
// file it wrote.
type Provider interface {
	Name() string
	Synthesize(ctx context.Context, text, voice string) (string, error)
}

// Synthesizer calls its providers following an invocation policy. Audio
// files produced by providers that lost a race or returned an unusable file
// are removed.
type Synthesizer struct {
	strategy  invocation.Strategy
	providers []Provider

	timeout time.Duration
	logger  *slog.Logger
}

type SynthesizerOption func(*Synthesizer)

// WithTimeout bounds every single provider call.
func WithTimeout(timeout time.Duration) SynthesizerOption {
	return func(s *Synthesizer) {
		s.timeout = timeout
	}
}

func WithLogger(logger *slog.Logger) SynthesizerOption {
	return func(s *Synthesizer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewSynthesizer(policy invocation.Policy, providers []Provider, opts ...SynthesizerOption) *Synthesizer {
	s := &Synthesizer{providers: providers, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	s.strategy = invocation.NewStrategy(policy,
		invocation.WithTimeout(s.timeout),
		invocation.WithLogger(s.logger),
		invocation.WithOperationName("text-to-speech"),
	)
	return s
}

func (s *Synthesizer) Policy() invocation.Policy { return s.strategy.Policy() }

// Synthesize returns the path of a non-empty audio file for text. The caller
// owns the file.
func (s *Synthesizer) Synthesize(ctx context.Context, text, voice string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: nothing to synthesize", invocation.ErrInvalidPayload)
	}

	ctx, span := tracer.Start(ctx, "synthesize")
	defer span.End()
	span.SetAttributes(attribute.Int("tts.text_length", len(text)), attribute.String("tts.voice", voice))

	result, err := invocation.Invoke(ctx, s.strategy, s.providers,
		func(ctx context.Context, p Provider) (string, error) {
			return p.Synthesize(ctx, text, voice)
		},
		invocation.WithValidator(validateAudioFile),
		invocation.WithDiscard(s.discard),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.ErrorContext(ctx, "text to speech failed", "policy", s.strategy.Policy().String(), "error", err)
		return "", err
	}

	span.SetAttributes(attribute.String("tts.provider", result.Provider))
	s.logger.DebugContext(ctx, "synthesized speech", "provider", result.Provider, "path", result.Payload)
	return result.Payload, nil
}

func (s *Synthesizer) discard(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("failed to remove discarded audio", "path", path, "error", err)
	}
}

func validateAudioFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: no audio path", invocation.ErrInvalidPayload)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %w", invocation.ErrInvalidPayload, err)
	}
	if info.IsDir() || info.Size() == 0 {
		return fmt.Errorf("%w: %s is empty", invocation.ErrInvalidPayload, path)
	}
	return nil
}
