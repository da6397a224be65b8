package llms

import (
	"context"
	"log/slog"
	"time"

	"github.com/koscakluka/astrape-core/core/invocation"
)

// Request is a single chat-completion call.
type Request struct {
	Model    ModelConfig
	Messages []Turn
	Stream   bool
}

// NewRequest builds a request for model. The model's system prompt, when set,
// is sent ahead of the history without becoming part of it.
func NewRequest(model ModelConfig, history []Turn, stream bool) Request {
	messages := make([]Turn, 0, len(history)+1)
	if model.SystemPrompt != "" {
		messages = append(messages, SystemTurn(model.SystemPrompt))
	}
	messages = append(messages, history...)
	return Request{Model: model.WithDefaults(), Messages: messages, Stream: stream}
}

// Client is a chat-completion provider.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
	Stream(ctx context.Context, req Request) Stream
}

type PipelineOption func(*Pipeline)

// WithRetry configures the streaming retry loop. Use
// invocation.RetryLimitFromCount to map a configured count where 0 means
// unbounded.
func WithRetry(limit invocation.RetryLimit, delay time.Duration) PipelineOption {
	return func(p *Pipeline) {
		p.retryLimit = limit
		p.retryDelay = delay
	}
}

// WithNonStreamingFallback controls whether a single non-streaming call is
// made once every streaming attempt has failed.
func WithNonStreamingFallback(enabled bool) PipelineOption {
	return func(p *Pipeline) {
		p.nonStreamingFallback = enabled
	}
}

func WithLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

type responseOptions struct {
	onFragment func(string)
}

type ResponseOption func(*responseOptions)

// WithFragmentHandler receives every streamed fragment as soon as it
// arrives, including the terminal fallback message.
func WithFragmentHandler(onFragment func(string)) ResponseOption {
	return func(o *responseOptions) {
		o.onFragment = onFragment
	}
}
