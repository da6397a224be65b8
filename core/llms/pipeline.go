package llms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/koscakluka/astrape-core/core/invocation"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	// FallbackMessage is yielded once every streaming attempt has failed.
	FallbackMessage = "Astrape encountered an error while processing your request."
	// ApologyMessage replaces the response when the pipeline itself fails.
	ApologyMessage = "I'm sorry, I encountered an error while processing your request."
)

var errEmptyCompletion = fmt.Errorf("%w: empty completion", invocation.ErrInvalidPayload)

// Pipeline turns user text and a conversation history into a model reply.
type Pipeline struct {
	client Client

	retryLimit           invocation.RetryLimit
	retryDelay           time.Duration
	nonStreamingFallback bool

	logger *slog.Logger
}

func NewPipeline(client Client, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		client:               client,
		retryLimit:           invocation.Limit(3),
		retryDelay:           5 * time.Second,
		nonStreamingFallback: true,
		logger:               logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetResponse sends userText with history to the model. Empty input returns a
// nil reply without contacting the model. Provider failures never surface as
// errors: they become the fallback or apology text of the reply. The only
// error returned is the context's, when the caller gave up on the turn.
func (p *Pipeline) GetResponse(ctx context.Context, userText string, history []Turn, model ModelConfig, opts ...ResponseOption) (reply *Reply, err error) {
	if strings.TrimSpace(userText) == "" {
		p.logger.WarnContext(ctx, "no user input transcript found")
		return nil, nil
	}

	options := responseOptions{onFragment: func(string) {}}
	for _, opt := range opts {
		opt(&options)
	}

	ctx, span := tracer.Start(ctx, "get llm response")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.model", model.Model),
		attribute.Bool("request.stream", model.StreamOutput),
		attribute.Int("request.history_length", len(history)),
	)

	working := append(slices.Clone(history), UserTurn(userText))
	reply = &Reply{Role: RoleAssistant, History: working}

	defer func() {
		if recovered := recover(); recovered != nil {
			recoveredErr := fmt.Errorf("llm pipeline panicked: %v", recovered)
			span.RecordError(recoveredErr)
			span.SetStatus(codes.Error, recoveredErr.Error())
			p.logger.ErrorContext(ctx, "error during llm response generation", "error", recoveredErr)
			reply.Text = ApologyMessage
			reply.Role = RoleSystem
			err = nil
		}
	}()

	var text string
	var callErr error
	if model.StreamOutput {
		p.logger.DebugContext(ctx, "using streaming llm response", "model", model.Model)
		text, reply.Attempts, callErr = p.stream(ctx, working, model, options.onFragment, &reply.Usage)
	} else {
		p.logger.DebugContext(ctx, "using non-streaming llm response", "model", model.Model)
		reply.Attempts = 1
		text, callErr = p.complete(ctx, working, model)
	}

	if callErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		span.RecordError(callErr)
		span.SetStatus(codes.Error, callErr.Error())
		p.logger.ErrorContext(ctx, "error during llm response generation", "error", callErr)
		reply.Text = ApologyMessage
		reply.Role = RoleSystem
		return reply, nil
	}

	reply.Text = text
	span.SetAttributes(attribute.Int("response.length", len(text)))
	if reply.Usage != nil {
		span.SetAttributes(
			attribute.Int("usage.input", reply.Usage.InputTokens),
			attribute.Int("usage.output", reply.Usage.OutputTokens),
			attribute.Int("usage.total", reply.Usage.TotalTokens),
		)
		p.logger.DebugContext(ctx, "llm token usage", "model", model.Model,
			"input", reply.Usage.InputTokens, "output", reply.Usage.OutputTokens, "total", reply.Usage.TotalTokens)
	}
	return reply, nil
}

type partialStreamError struct{ err error }

func (e partialStreamError) Error() string { return "stream interrupted: " + e.err.Error() }
func (e partialStreamError) Unwrap() error { return e.err }

// stream runs the streaming retry loop. Only calls that fail before
// producing any text are retried, so fragments are never forwarded twice.
func (p *Pipeline) stream(ctx context.Context, messages []Turn, model ModelConfig, onFragment func(string), usage **Usage) (string, int, error) {
	var text strings.Builder
	attempts := 0

	err := invocation.Retry(ctx, p.retryLimit, p.retryDelay, func(ctx context.Context, attempt int) error {
		attempts = attempt
		p.logger.DebugContext(ctx, "llm streaming attempt", "attempt", attempt, "limit", p.retryLimit.String(), "model", model.Model)

		forwarded, err := p.streamOnce(ctx, messages, model, &text, onFragment, usage)
		if err == nil {
			p.logger.InfoContext(ctx, "llm streaming complete", "attempt", attempt, "model", model.Model)
			return nil
		}
		if forwarded {
			return invocation.StopRetry(partialStreamError{err: err})
		}
		return err
	}, func(attempt int, err error) {
		var partial partialStreamError
		if errors.As(err, &partial) {
			p.logger.WarnContext(ctx, "llm stream interrupted, keeping partial response", "attempt", attempt, "error", err)
			return
		}
		if ctx.Err() != nil {
			return
		}
		p.logger.WarnContext(ctx, "llm streaming attempt failed", "attempt", attempt, "retry_in", invocation.Backoff(p.retryDelay, attempt), "error", err)
	})

	var partial partialStreamError
	switch {
	case err == nil:
		return text.String(), attempts, nil
	case errors.As(err, &partial):
		return text.String(), attempts, nil
	case ctx.Err() != nil:
		return "", attempts, ctx.Err()
	}

	if p.nonStreamingFallback {
		p.logger.InfoContext(ctx, "llm streaming exhausted, falling back to non-streaming", "attempts", attempts)
		attempts++
		fallback, fallbackErr := p.complete(ctx, messages, model)
		if fallbackErr == nil {
			onFragment(fallback)
			return fallback, attempts, nil
		}
		p.logger.WarnContext(ctx, "llm non-streaming fallback failed", "error", fallbackErr)
	}

	p.logger.ErrorContext(ctx, "all llm attempts failed", "attempts", attempts, "error", err)
	onFragment(FallbackMessage)
	return FallbackMessage, attempts, nil
}

func (p *Pipeline) streamOnce(ctx context.Context, messages []Turn, model ModelConfig, text *strings.Builder, onFragment func(string), usage **Usage) (forwarded bool, err error) {
	if model.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, model.Timeout)
		defer cancel()
	}

	stream := p.client.Stream(ctx, NewRequest(model, messages, true))
	if stream == nil {
		return false, errors.New("provider returned no stream")
	}
	for chunk, err := range stream.Chunks(ctx) {
		if err != nil {
			return forwarded, err
		}
		if reported, ok := chunk.(StreamUsageChunk); ok {
			u := reported.Usage()
			*usage = &u
			continue
		}
		content, ok := chunk.(StreamContentChunk)
		if !ok || content.Content() == "" {
			continue
		}
		text.WriteString(content.Content())
		forwarded = true
		onFragment(content.Content())
	}
	return forwarded, ctx.Err()
}

func (p *Pipeline) complete(ctx context.Context, messages []Turn, model ModelConfig) (string, error) {
	if model.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, model.Timeout)
		defer cancel()
	}

	text, err := p.client.Complete(ctx, NewRequest(model, messages, false))
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errEmptyCompletion
	}
	return text, nil
}
