package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/koscakluka/astrape-core/core/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Run drives the control loop until ctx is cancelled, a shutdown event is
// handled or, with WithRunOnce, the first utterance was handled. Failed
// iterations are logged and the loop carries on. Cancellation is a clean
// exit and returns nil; shutdown returns ErrShutdown.
func (o *Orchestrator) Run(ctx context.Context, opts ...RunOption) error {
	if err := o.validate(); err != nil {
		return err
	}
	if !o.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer o.running.Store(false)

	options := RunOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	o.mu.Lock()
	o.options = options
	o.mu.Unlock()

	o.logger.InfoContext(ctx, "control loop started", "state", o.State().String(), "run_once", options.once)
	for {
		if ctx.Err() != nil {
			o.logger.InfoContext(ctx, "external stop signal received, exiting control loop")
			return nil
		}
		if o.State() == StateShutdown {
			return ErrShutdown
		}

		var heardUtterance bool
		err := panicSafeNamedWorker("control loop", func(ctx context.Context) (err error) {
			heardUtterance, err = o.iterate(ctx)
			return err
		})(ctx)

		switch {
		case errors.Is(err, ErrShutdown):
			o.logger.InfoContext(ctx, "shutdown command received, exiting control loop")
			return ErrShutdown
		case err != nil && ctx.Err() == nil:
			o.logger.ErrorContext(ctx, "control loop iteration failed", "error", err)
		}

		if options.once && (heardUtterance || err != nil) {
			return nil
		}
	}
}

// iterate runs a single input cycle and reports whether it was driven by
// an utterance rather than a queued event.
func (o *Orchestrator) iterate(ctx context.Context) (heardUtterance bool, err error) {
	state := o.State()
	ctx, span := tracer.Start(ctx, "control loop iteration", trace.WithAttributes(
		attribute.String("assistant.state", state.String()),
	))
	defer func() {
		if err != nil && !errors.Is(err, ErrShutdown) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	o.sweepTempAudio(ctx)

	heard := o.listen(ctx)
	if heard.queued != nil {
		event := events.Queued(heard.queued.kind)
		span.SetAttributes(attribute.String("event.source", event.Source.String()))
		o.logger.InfoContext(ctx, "queued event received", "kind", event.Kind.String(), "waited", time.Since(heard.queued.queuedAt))
		o.notifyEvent(event)
		return false, o.handleEvent(ctx, event, "")
	}
	if heard.err != nil {
		return true, heard.err
	}
	if heard.text == "" {
		return true, nil
	}

	span.SetAttributes(attribute.String("event.source", events.SourceUtterance.String()))
	if onTranscript := o.runOptions().onTranscript; onTranscript != nil {
		onTranscript(heard.text)
	}

	event := o.arbiter.Determine(ctx, heard.text)
	if event.ShortCircuits() {
		o.logger.InfoContext(ctx, "event detected", "kind", event.Kind.String(), "matches", event.Matches, "state", state.String())
	}
	o.notifyEvent(event)
	return true, o.handleEvent(ctx, event, heard.text)
}

// handleEvent applies the event to the assistant state. Only a Continue
// heard while listening reaches the language model; every other state
// ignores what the state machine does not allow.
func (o *Orchestrator) handleEvent(ctx context.Context, event events.Event, utterance string) error {
	kind, source := event.Kind, event.Source.String()
	o.countEvent(ctx, kind, source)
	state := o.State()

	switch kind {
	case events.KindError:
		o.logger.WarnContext(ctx, "event arbitration failed, dropping utterance", "state", state.String())
		return nil
	case events.KindContinue:
		if state != StateListening {
			o.logger.DebugContext(ctx, "ignoring utterance", "state", state.String())
			return nil
		}
		return o.respond(ctx, utterance)
	}

	if _, err := o.transition(ctx, kind); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			o.logger.DebugContext(ctx, "ignoring event", "kind", kind.String(), "source", source, "state", state.String())
			return nil
		}
		return err
	}

	switch kind {
	case events.KindEmergency:
		o.logger.WarnContext(ctx, "emergency protocol activated", "source", source)
		if err := o.emergencyProtocol(ctx); err != nil {
			return fmt.Errorf("failed to run emergency protocol: %w", err)
		}
	case events.KindSleep:
		o.logger.InfoContext(ctx, "sleep mode activated, listening for wake word only")
	case events.KindShutdown:
		return ErrShutdown
	}
	return nil
}

func (o *Orchestrator) notifyEvent(event events.Event) {
	if onEvent := o.runOptions().onEvent; onEvent != nil {
		onEvent(event)
	}
}

type heard struct {
	text   string
	err    error
	queued *eventQueueItem
}

// listen races capture and transcription against the event queue. The
// losing capture is cancelled and awaited so the microphone and its temp
// file are released before the winner is handled.
func (o *Orchestrator) listen(ctx context.Context) heard {
	captureCtx, cancelCapture := context.WithCancel(ctx)
	defer cancelCapture()

	captured := make(chan heard, 1)
	go func() {
		var text string
		err := panicSafeNamedWorker("capture", func(ctx context.Context) (err error) {
			text, err = o.captureAndTranscribe(ctx)
			return err
		})(captureCtx)
		captured <- heard{text: text, err: err}
	}()

	select {
	case result := <-captured:
		return result
	case item := <-o.queue.items:
		cancelCapture()
		<-captured
		return heard{queued: &item}
	case <-ctx.Done():
		<-captured
		return heard{err: ctx.Err()}
	}
}

func (o *Orchestrator) captureAndTranscribe(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "capture utterance")
	defer span.End()

	utterance, err := o.capturer.CaptureUtterance(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("failed to capture utterance: %w", err)
	}
	if utterance == nil {
		o.logger.DebugContext(ctx, "no valid audio input")
		return "", nil
	}
	if utterance.Path == "" {
		o.logger.WarnContext(ctx, "captured utterance was not written to disk, skipping")
		return "", nil
	}
	defer o.removeAudio(ctx, utterance.Path)

	text, err := o.transcriber.Transcribe(ctx, utterance.Path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to transcribe utterance: %w", err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		o.logger.InfoContext(ctx, "no speech detected, skipping to next iteration")
	}
	return text, nil
}
