package orchestration

import (
	"context"
	"log/slog"
	"time"

	"github.com/koscakluka/astrape-core/core/audio"
	"github.com/koscakluka/astrape-core/core/events"
	"github.com/koscakluka/astrape-core/core/llms"
)

type OrchestratorOption func(*Orchestrator)

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

type Arbiter interface {
	Determine(ctx context.Context, text string) events.Event
}

type Memory interface {
	History(model string) []llms.Turn
	AppendTurn(model string, turn llms.Turn) error
}

type Responder interface {
	GetResponse(ctx context.Context, userText string, history []llms.Turn, model llms.ModelConfig, opts ...llms.ResponseOption) (*llms.Reply, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (string, error)
}

// ModelSelector picks the model that should answer text.
type ModelSelector func(text string) (llms.ModelConfig, error)

// EmergencyProtocol runs when an emergency event is handled.
type EmergencyProtocol func(ctx context.Context) error

func WithCapturer(capturer audio.Capturer) OrchestratorOption {
	return func(o *Orchestrator) {
		o.capturer = capturer
	}
}

func WithTranscriber(transcriber Transcriber) OrchestratorOption {
	return func(o *Orchestrator) {
		o.transcriber = transcriber
	}
}

func WithArbiter(arbiter Arbiter) OrchestratorOption {
	return func(o *Orchestrator) {
		o.arbiter = arbiter
	}
}

func WithMemory(memory Memory) OrchestratorOption {
	return func(o *Orchestrator) {
		o.memory = memory
	}
}

func WithPipeline(responder Responder) OrchestratorOption {
	return func(o *Orchestrator) {
		o.responder = responder
	}
}

// WithSynthesizer and WithPlayer together enable spoken replies. Without
// either, replies are only reported through the response callback.
func WithSynthesizer(synthesizer Synthesizer) OrchestratorOption {
	return func(o *Orchestrator) {
		o.synthesizer = synthesizer
	}
}

func WithPlayer(player audio.Player) OrchestratorOption {
	return func(o *Orchestrator) {
		o.player = player
	}
}

// WithModel answers every utterance with model.
func WithModel(model llms.ModelConfig) OrchestratorOption {
	return func(o *Orchestrator) {
		o.selectModel = func(string) (llms.ModelConfig, error) { return model, nil }
	}
}

func WithModelSelector(selector ModelSelector) OrchestratorOption {
	return func(o *Orchestrator) {
		if selector != nil {
			o.selectModel = selector
		}
	}
}

func WithEmergencyProtocol(protocol EmergencyProtocol) OrchestratorOption {
	return func(o *Orchestrator) {
		if protocol != nil {
			o.emergencyProtocol = protocol
		}
	}
}

// WithTempAudio removes files older than maxAge from dir at the start of
// every input cycle. Played and transcribed files are removed through dir.
func WithTempAudio(dir *audio.TempDir, maxAge time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.tempDir = dir
		o.tempMaxAge = maxAge
	}
}

func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithEventQueue(queue *EventQueue) OrchestratorOption {
	return func(o *Orchestrator) {
		if queue != nil {
			o.queue = queue
		}
	}
}

type RunOptions struct {
	once            bool
	onStateChanged  func(from, to State)
	onTranscript    func(transcript string)
	onEvent         func(event events.Event)
	onResponse      func(response string)
	onResponseDelta func(fragment string)
	onSpeaking      func(text string)
}

type RunOption func(*RunOptions)

// WithRunOnce stops the loop after the first utterance has been handled.
// Events taken from the queue do not count.
func WithRunOnce() RunOption {
	return func(o *RunOptions) {
		o.once = true
	}
}

func WithStateChangedCallback(callback func(from, to State)) RunOption {
	return func(o *RunOptions) {
		o.onStateChanged = callback
	}
}

// WithTranscriptCallback registers a callback for every non-empty transcript,
// before it is arbitrated.
func WithTranscriptCallback(callback func(transcript string)) RunOption {
	return func(o *RunOptions) {
		o.onTranscript = callback
	}
}

// WithEventCallback registers a callback for every arbitrated utterance and
// every queued event.
func WithEventCallback(callback func(event events.Event)) RunOption {
	return func(o *RunOptions) {
		o.onEvent = callback
	}
}

// WithResponseCallback registers a callback for the complete model reply.
func WithResponseCallback(callback func(response string)) RunOption {
	return func(o *RunOptions) {
		o.onResponse = callback
	}
}

// WithResponseDeltaCallback registers a callback for streamed fragments of
// the model reply.
func WithResponseDeltaCallback(callback func(fragment string)) RunOption {
	return func(o *RunOptions) {
		o.onResponseDelta = callback
	}
}

// WithSpeakingCallback is called with each piece of text right before it is
// played back.
func WithSpeakingCallback(callback func(text string)) RunOption {
	return func(o *RunOptions) {
		o.onSpeaking = callback
	}
}
