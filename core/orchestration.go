// Package orchestration drives the assistant: it races audio capture against
// queued control events, arbitrates what was heard and sequences the
// listen, classify, infer and speak cycle.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/koscakluka/astrape-core/core/audio"
	"github.com/koscakluka/astrape-core/core/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrShutdown is returned by Run once a shutdown event was handled.
	ErrShutdown = errors.New("assistant shut down")
	// ErrAlreadyRunning is returned when Run is called on a running
	// orchestrator.
	ErrAlreadyRunning = errors.New("orchestrator already running")
	// ErrNotConfigured is returned when Run is missing a required component.
	ErrNotConfigured = errors.New("orchestrator not configured")
)

type Orchestrator struct {
	capturer    audio.Capturer
	transcriber Transcriber
	arbiter     Arbiter
	memory      Memory
	responder   Responder
	synthesizer Synthesizer
	player      audio.Player

	selectModel       ModelSelector
	emergencyProtocol EmergencyProtocol

	tempDir    *audio.TempDir
	tempMaxAge time.Duration

	queue  *EventQueue
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	options RunOptions

	running   atomic.Bool
	closeOnce sync.Once
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		state:  StateListening,
		logger: logger,
	}
	o.emergencyProtocol = o.defaultEmergencyProtocol
	for _, opt := range opts {
		opt(o)
	}
	if o.queue == nil {
		o.queue = NewEventQueue(DefaultEventQueueCapacity)
	}
	return o
}

// Events returns the queue external producers push control events onto.
func (o *Orchestrator) Events() *EventQueue { return o.queue }

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// ClearEmergency returns the assistant from an active emergency to
// listening.
func (o *Orchestrator) ClearEmergency(ctx context.Context) error {
	if state := o.State(); state != StateEmergencyActive {
		return fmt.Errorf("%w: no active emergency while %s", ErrInvalidTransition, state)
	}
	_, err := o.transition(ctx, events.KindWake)
	return err
}

// Close stops accepting queued events. A running loop is stopped by
// cancelling the context given to Run.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.queue.Close()
	})
}

// transition applies kind to the current state and reports the state
// change, if any.
func (o *Orchestrator) transition(ctx context.Context, kind events.Kind) (State, error) {
	o.mu.Lock()
	from := o.state
	to, err := applyEvent(from, kind)
	if err != nil {
		o.mu.Unlock()
		return from, err
	}
	o.state = to
	onStateChanged := o.options.onStateChanged
	o.mu.Unlock()

	if from != to {
		o.logger.InfoContext(ctx, "assistant state changed", "from", from.String(), "to", to.String(), "event", kind.String())
		if onStateChanged != nil {
			onStateChanged(from, to)
		}
	}
	return to, nil
}

func (o *Orchestrator) runOptions() RunOptions {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.options
}

func (o *Orchestrator) defaultEmergencyProtocol(ctx context.Context) error {
	o.logger.WarnContext(ctx, "executing emergency protocol, no custom protocol configured")
	return nil
}

func (o *Orchestrator) countEvent(ctx context.Context, kind events.Kind, source string) {
	eventCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event.kind", kind.String()),
		attribute.String("event.source", source),
	))
}

func (o *Orchestrator) validate() error {
	switch {
	case o.capturer == nil:
		return fmt.Errorf("%w: no audio capturer", ErrNotConfigured)
	case o.transcriber == nil:
		return fmt.Errorf("%w: no transcriber", ErrNotConfigured)
	case o.arbiter == nil:
		return fmt.Errorf("%w: no event arbiter", ErrNotConfigured)
	case o.responder == nil:
		return fmt.Errorf("%w: no llm pipeline", ErrNotConfigured)
	case o.selectModel == nil:
		return fmt.Errorf("%w: no model", ErrNotConfigured)
	}
	return nil
}
