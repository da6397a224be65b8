package orchestration

import (
	"context"
	"errors"
	"fmt"

	"github.com/koscakluka/astrape-core/core/llms"
	"github.com/koscakluka/astrape-core/core/responses"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// respond dispatches text to the selected model, records the exchange and
// speaks the natural output followed by the confirmation question.
func (o *Orchestrator) respond(ctx context.Context, text string) error {
	ctx, span := tracer.Start(ctx, "respond to utterance")
	defer span.End()

	model, err := o.selectModel(text)
	if err != nil {
		err = fmt.Errorf("failed to select model: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetAttributes(attribute.String("model.key", model.Key))

	var history []llms.Turn
	if o.memory != nil {
		history = o.memory.History(model.Key)
	}

	options := o.runOptions()
	var responseOpts []llms.ResponseOption
	if options.onResponseDelta != nil {
		responseOpts = append(responseOpts, llms.WithFragmentHandler(options.onResponseDelta))
	}

	reply, err := o.responder.GetResponse(ctx, text, history, model, responseOpts...)
	if err != nil {
		return fmt.Errorf("failed to get llm response: %w", err)
	}
	if reply == nil {
		return nil
	}

	o.remember(ctx, model.Key, llms.UserTurn(text), reply.Turn())
	if options.onResponse != nil {
		options.onResponse(reply.Text)
	}

	parsed := responses.Parse(reply.Text)
	if parsed.NaturalOutput == "" {
		o.logger.InfoContext(ctx, "no natural output to speak")
	} else if err := o.speak(ctx, parsed.NaturalOutput, model.Voice, options.onSpeaking); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		o.logger.ErrorContext(ctx, "error in speaking statement", "error", err)
	}

	if !parsed.HasConfirmation() {
		return nil
	}
	if err := o.speak(ctx, parsed.Confirmation, model.Voice, options.onSpeaking); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		o.logger.ErrorContext(ctx, "error in speaking confirmation", "error", err)
	}
	return nil
}

func (o *Orchestrator) remember(ctx context.Context, model string, turns ...llms.Turn) {
	if o.memory == nil {
		return
	}
	for _, turn := range turns {
		if err := o.memory.AppendTurn(model, turn); err != nil {
			o.logger.WarnContext(ctx, "turn dropped from session memory", "model", model, "role", string(turn.Role), "error", err)
		}
	}
}

// speak synthesizes text and plays it back, removing the audio file
// afterwards. Without a synthesizer and a player it does nothing.
func (o *Orchestrator) speak(ctx context.Context, text, voice string, onSpeaking func(string)) (err error) {
	if o.synthesizer == nil || o.player == nil {
		return nil
	}

	ctx, span := tracer.Start(ctx, "speak")
	defer func() {
		if err != nil && !errors.Is(err, context.Canceled) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	span.SetAttributes(attribute.Int("speech.length", len(text)))

	path, err := o.synthesizer.Synthesize(ctx, text, voice)
	if err != nil {
		return fmt.Errorf("failed to synthesize speech: %w", err)
	}
	defer o.removeAudio(ctx, path)

	if onSpeaking != nil {
		onSpeaking(text)
	}
	if err := o.player.Play(ctx, path); err != nil {
		return fmt.Errorf("failed to play speech: %w", err)
	}
	return nil
}
