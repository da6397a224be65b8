package events

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// PhraseSource supplies the trigger phrases of one category. It is consulted
// on every determination so configuration changes are picked up.
type PhraseSource func() ([]string, error)

// Arbiter classifies utterances into control events.
type Arbiter struct {
	sources    map[Kind]PhraseSource
	maxWorkers int
	logger     *slog.Logger
}

type ArbiterOption func(*Arbiter)

// WithPhrases sets a static phrase list for kind.
func WithPhrases(kind Kind, phrases ...string) ArbiterOption {
	static := append([]string(nil), phrases...)
	return func(a *Arbiter) {
		a.sources[kind] = func() ([]string, error) { return static, nil }
	}
}

func WithPhraseSource(kind Kind, source PhraseSource) ArbiterOption {
	return func(a *Arbiter) {
		a.sources[kind] = source
	}
}

// WithMaxWorkers bounds the number of categories scanned at once.
func WithMaxWorkers(n int) ArbiterOption {
	return func(a *Arbiter) {
		a.maxWorkers = n
	}
}

func WithLogger(logger *slog.Logger) ArbiterOption {
	return func(a *Arbiter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func NewArbiter(opts ...ArbiterOption) *Arbiter {
	a := &Arbiter{
		sources:    map[Kind]PhraseSource{},
		maxWorkers: len(Detectable),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Determine scans text for the phrases of every detectable category and
// returns the most urgent match. It never panics; if arbitration cannot be
// completed the result is an Error event rather than Continue.
func (a *Arbiter) Determine(ctx context.Context, text string) (event Event) {
	ctx, span := tracer.Start(ctx, "determine event")
	defer span.End()

	defer func() {
		if recovered := recover(); recovered != nil {
			err := fmt.Errorf("event arbitration panicked: %v", recovered)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			a.logger.ErrorContext(ctx, "event arbitration failed", "error", err)
			event = Failed()
		}
		span.SetAttributes(attribute.String("event.kind", event.Kind.String()))
	}()

	normalized := Normalize(text)
	matches := make([][]string, len(Detectable))

	group, groupCtx := errgroup.WithContext(ctx)
	if a.maxWorkers > 0 {
		group.SetLimit(a.maxWorkers)
	}
	for i, kind := range Detectable {
		group.Go(func() error {
			found, err := a.scan(groupCtx, kind, normalized)
			if err != nil {
				// A broken category only disables itself.
				a.logger.WarnContext(groupCtx, "keyword scan failed", "category", kind.String(), "error", err)
				return nil
			}
			matches[i] = found
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		a.logger.ErrorContext(ctx, "event arbitration failed", "error", err)
		return Failed()
	}
	if err := ctx.Err(); err != nil {
		a.logger.WarnContext(ctx, "event arbitration cancelled", "error", err)
		return Failed()
	}

	best := -1
	for i, kind := range Detectable {
		if len(matches[i]) == 0 {
			continue
		}
		if best < 0 || MoreUrgent(kind, Detectable[best]) {
			best = i
		}
	}
	if best < 0 {
		return Continue()
	}

	event = NewEvent(Detectable[best], matches[best]...)
	a.logger.DebugContext(ctx, "event detected", "kind", event.Kind.String(), "matches", event.Matches)
	return event
}

func (a *Arbiter) scan(ctx context.Context, kind Kind, normalized string) (found []string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("scan panicked: %v", recovered)
		}
	}()

	source, ok := a.sources[kind]
	if !ok || source == nil {
		return nil, nil
	}
	phrases, err := source()
	if err != nil {
		return nil, fmt.Errorf("failed to load phrases: %w", err)
	}

	for _, phrase := range phrases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		needle := Normalize(phrase)
		if needle == "" {
			continue
		}
		if containsPhrase(normalized, needle) {
			found = append(found, phrase)
		}
	}
	return found, nil
}

func containsPhrase(haystack, needle string) bool {
	return strings.Contains(haystack, needle)
}
