package orchestration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koscakluka/astrape-core/core/audio"
	"github.com/koscakluka/astrape-core/core/events"
	"github.com/koscakluka/astrape-core/core/llms"
	"github.com/koscakluka/astrape-core/core/memory"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type captureFunc func(ctx context.Context) (*audio.Utterance, error)

func (f captureFunc) CaptureUtterance(ctx context.Context) (*audio.Utterance, error) { return f(ctx) }

// scriptedCapturer hands out utterances in order and then blocks until
// cancelled, like a microphone nobody talks into.
type scriptedCapturer struct {
	utterances chan *audio.Utterance
	cancelled  atomic.Int32
}

func newScriptedCapturer(t *testing.T, texts ...string) *scriptedCapturer {
	t.Helper()
	c := &scriptedCapturer{utterances: make(chan *audio.Utterance, len(texts))}
	dir := t.TempDir()
	for i, text := range texts {
		path := filepath.Join(dir, "utterance-"+string(rune('a'+i))+".wav")
		if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
			t.Fatalf("failed to write utterance: %v", err)
		}
		c.utterances <- &audio.Utterance{Raw: []byte(text), Path: path}
	}
	return c
}

func (c *scriptedCapturer) CaptureUtterance(ctx context.Context) (*audio.Utterance, error) {
	select {
	case utterance := <-c.utterances:
		return utterance, nil
	case <-ctx.Done():
		c.cancelled.Add(1)
		return nil, ctx.Err()
	}
}

// fileTranscriber reads the transcript straight from the utterance file.
type fileTranscriber struct {
	mu    sync.Mutex
	paths []string
}

func (f *fileTranscriber) Transcribe(_ context.Context, path string) (string, error) {
	f.mu.Lock()
	f.paths = append(f.paths, path)
	f.mu.Unlock()
	data, err := os.ReadFile(path)
	return string(data), err
}

type stubResponder struct {
	mu      sync.Mutex
	reply   string
	prompts []string
	history [][]llms.Turn
}

func (r *stubResponder) GetResponse(_ context.Context, text string, history []llms.Turn, _ llms.ModelConfig, opts ...llms.ResponseOption) (*llms.Reply, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts = append(r.prompts, text)
	r.history = append(r.history, history)
	return &llms.Reply{Text: r.reply, Role: llms.RoleAssistant}, nil
}

func (r *stubResponder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.prompts...)
}

type fileSynthesizer struct {
	dir string

	mu     sync.Mutex
	spoken []string
	voices []string
	paths  []string
}

func (s *fileSynthesizer) Synthesize(_ context.Context, text, voice string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := filepath.Join(s.dir, "speech-"+string(rune('a'+len(s.paths)))+".wav")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", err
	}
	s.spoken = append(s.spoken, text)
	s.voices = append(s.voices, voice)
	s.paths = append(s.paths, path)
	return path, nil
}

type recordingPlayer struct {
	mu     sync.Mutex
	played []string
}

func (p *recordingPlayer) Play(_ context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = append(p.played, string(data))
	return nil
}

type stateLog struct {
	mu          sync.Mutex
	transitions []string
	changed     chan State
}

func newStateLog() *stateLog { return &stateLog{changed: make(chan State, 16)} }

func (l *stateLog) record(from, to State) {
	l.mu.Lock()
	l.transitions = append(l.transitions, from.String()+"->"+to.String())
	l.mu.Unlock()
	l.changed <- to
}

func (l *stateLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.transitions...)
}

func (l *stateLog) await(t *testing.T, want State) {
	t.Helper()
	for {
		select {
		case got := <-l.changed:
			if got == want {
				return
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

func testArbiter() *events.Arbiter {
	return events.NewArbiter(
		events.WithLogger(quietLogger),
		events.WithPhrases(events.KindEmergency, "emergency"),
		events.WithPhrases(events.KindWake, "wake up"),
		events.WithPhrases(events.KindSleep, "go to sleep"),
		events.WithPhrases(events.KindShutdown, "shut down"),
	)
}

func newTestOrchestrator(capturer audio.Capturer, responder Responder, opts ...OrchestratorOption) *Orchestrator {
	opts = append([]OrchestratorOption{
		WithLogger(quietLogger),
		WithCapturer(capturer),
		WithTranscriber(&fileTranscriber{}),
		WithArbiter(testArbiter()),
		WithPipeline(responder),
		WithModel(llms.ModelConfig{Key: "model_1", Voice: "en-IE-EmilyNeural"}),
	}, opts...)
	return NewOrchestrator(opts...)
}

func runInBackground(ctx context.Context, o *Orchestrator, opts ...RunOption) <-chan error {
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx, opts...) }()
	return done
}

func awaitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for control loop to exit")
		return nil
	}
}

func TestRunOnceAnswersAndSpeaks(t *testing.T) {
	capturer := newScriptedCapturer(t, "what's the weather like")
	responder := &stubResponder{reply: "It is sunny today.\nDo you want me to check tomorrow as well?"}
	store := memory.NewStore([]string{"model_1"}, memory.WithLogger(quietLogger))
	synthesizer := &fileSynthesizer{dir: t.TempDir()}
	player := &recordingPlayer{}

	var transcripts, replies []string
	o := newTestOrchestrator(capturer, responder,
		WithMemory(store),
		WithSynthesizer(synthesizer),
		WithPlayer(player),
	)

	err := o.Run(context.Background(),
		WithRunOnce(),
		WithTranscriptCallback(func(transcript string) { transcripts = append(transcripts, transcript) }),
		WithResponseCallback(func(response string) { replies = append(replies, response) }),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if calls := responder.calls(); len(calls) != 1 || calls[0] != "what's the weather like" {
		t.Fatalf("expected one llm call with the transcript, got %v", calls)
	}
	if len(transcripts) != 1 || len(replies) != 1 {
		t.Fatalf("expected one transcript and one reply, got %v / %v", transcripts, replies)
	}

	history := store.History("model_1")
	if len(history) != 2 || history[0] != llms.UserTurn("what's the weather like") || history[1].Role != llms.RoleAssistant {
		t.Fatalf("expected user and assistant turns in memory, got %+v", history)
	}

	if len(player.played) != 2 {
		t.Fatalf("expected statement and confirmation to be played, got %v", player.played)
	}
	if player.played[0] != "It is sunny today." {
		t.Fatalf("expected natural output first, got %q", player.played[0])
	}
	if player.played[1] != "Do you want me to check tomorrow as well?" {
		t.Fatalf("expected confirmation second, got %q", player.played[1])
	}
	if synthesizer.voices[0] != "en-IE-EmilyNeural" {
		t.Fatalf("expected model voice to be used, got %q", synthesizer.voices[0])
	}
	for _, path := range synthesizer.paths {
		if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("expected played file %s to be removed, got %v", path, err)
		}
	}
}

func TestRunRemovesCapturedAudio(t *testing.T) {
	capturer := newScriptedCapturer(t, "hello there")
	transcriber := &fileTranscriber{}
	o := newTestOrchestrator(capturer, &stubResponder{reply: "hi"}, WithTranscriber(transcriber))

	if err := o.Run(context.Background(), WithRunOnce()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(transcriber.paths) != 1 {
		t.Fatalf("expected one transcription, got %d", len(transcriber.paths))
	}
	if _, err := os.Stat(transcriber.paths[0]); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected utterance file to be removed, got %v", err)
	}
}

func TestRunSleepModeOnlyHonoursControlEvents(t *testing.T) {
	capturer := newScriptedCapturer(t,
		"please go to sleep",
		"tell me a joke",
		"wake up",
		"what is the time",
		"shut down now",
	)
	responder := &stubResponder{reply: "It is noon."}
	states := newStateLog()
	o := newTestOrchestrator(capturer, responder)

	err := o.Run(context.Background(), WithStateChangedCallback(states.record))
	if !errors.Is(err, ErrShutdown) {
		t.Fatalf("expected shutdown, got %v", err)
	}

	if calls := responder.calls(); len(calls) != 1 || calls[0] != "what is the time" {
		t.Fatalf("expected only the awake utterance to reach the llm, got %v", calls)
	}
	want := []string{"listening->sleeping", "sleeping->listening", "listening->shutdown"}
	if got := states.snapshot(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected transitions %v, got %v", want, got)
	}
	if o.State() != StateShutdown {
		t.Fatalf("expected shutdown state, got %s", o.State())
	}
	if err := o.Run(context.Background()); !errors.Is(err, ErrShutdown) {
		t.Fatalf("expected a shut down orchestrator to stay down, got %v", err)
	}
}

func TestRunEmergencyTakesPriorityAndBlocksDispatch(t *testing.T) {
	capturer := newScriptedCapturer(t,
		"this is an emergency, shut down",
		"what is the time",
		"go to sleep",
		"wake up",
		"shut down",
	)
	responder := &stubResponder{reply: "unused"}
	protocolRuns := atomic.Int32{}
	states := newStateLog()

	var seen []events.Kind
	o := newTestOrchestrator(capturer, responder, WithEmergencyProtocol(func(context.Context) error {
		protocolRuns.Add(1)
		return nil
	}))

	err := o.Run(context.Background(),
		WithStateChangedCallback(states.record),
		WithEventCallback(func(event events.Event) { seen = append(seen, event.Kind) }),
	)
	if !errors.Is(err, ErrShutdown) {
		t.Fatalf("expected shutdown, got %v", err)
	}

	if got := protocolRuns.Load(); got != 1 {
		t.Fatalf("expected emergency protocol to run once, got %d", got)
	}
	if calls := responder.calls(); len(calls) != 0 {
		t.Fatalf("expected no llm dispatch during an emergency, got %v", calls)
	}
	if len(seen) == 0 || seen[0] != events.KindEmergency {
		t.Fatalf("expected emergency to outrank shutdown, got %v", seen)
	}
	want := []string{"listening->emergency", "emergency->listening", "listening->shutdown"}
	if got := states.snapshot(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected transitions %v, got %v", want, got)
	}
}

func TestRunQueuedEventCancelsCapture(t *testing.T) {
	capturer := newScriptedCapturer(t)
	states := newStateLog()
	o := newTestOrchestrator(capturer, &stubResponder{})
	defer o.Close()

	seen := make(chan events.Event, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runInBackground(ctx, o,
		WithStateChangedCallback(states.record),
		WithEventCallback(func(event events.Event) { seen <- event }),
	)

	if err := o.Events().Push(ctx, events.KindSleep); err != nil {
		t.Fatalf("unexpected push error: %v", err)
	}
	states.await(t, StateSleeping)
	if capturer.cancelled.Load() == 0 {
		t.Fatalf("expected the pending capture to be cancelled")
	}
	select {
	case event := <-seen:
		if event.Kind != events.KindSleep || event.Source != events.SourceQueue {
			t.Fatalf("expected a queued sleep event, got %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the event callback")
	}

	if err := o.Events().Push(ctx, events.KindShutdown); err != nil {
		t.Fatalf("unexpected push error: %v", err)
	}
	if err := awaitRun(t, done); !errors.Is(err, ErrShutdown) {
		t.Fatalf("expected shutdown, got %v", err)
	}
}

func TestRunQueuedEmergencyRunsProtocol(t *testing.T) {
	protocol := make(chan struct{}, 1)
	o := newTestOrchestrator(newScriptedCapturer(t), &stubResponder{},
		WithEmergencyProtocol(func(context.Context) error {
			protocol <- struct{}{}
			return nil
		}))

	ctx, cancel := context.WithCancel(context.Background())
	done := runInBackground(ctx, o)

	if err := o.Events().TryPush(events.KindEmergency); err != nil {
		t.Fatalf("unexpected push error: %v", err)
	}
	select {
	case <-protocol:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for emergency protocol")
	}

	cancel()
	if err := awaitRun(t, done); err != nil {
		t.Fatalf("expected clean exit on cancellation, got %v", err)
	}
	if o.State() != StateEmergencyActive {
		t.Fatalf("expected emergency state, got %s", o.State())
	}
}

func TestClearEmergency(t *testing.T) {
	o := newTestOrchestrator(newScriptedCapturer(t), &stubResponder{})

	if err := o.ClearEmergency(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected no emergency to clear, got %v", err)
	}
	if _, err := o.transition(context.Background(), events.KindEmergency); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := o.ClearEmergency(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.State() != StateListening {
		t.Fatalf("expected listening, got %s", o.State())
	}
}

func TestRunSurvivesPanickingIteration(t *testing.T) {
	calls := atomic.Int32{}
	secondCall := make(chan struct{})
	capturer := captureFunc(func(ctx context.Context) (*audio.Utterance, error) {
		switch calls.Add(1) {
		case 1:
			panic("microphone exploded")
		case 2:
			close(secondCall)
		}
		<-ctx.Done()
		return nil, ctx.Err()
	})
	o := newTestOrchestrator(capturer, &stubResponder{})

	ctx, cancel := context.WithCancel(context.Background())
	done := runInBackground(ctx, o)

	select {
	case <-secondCall:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected the loop to keep going after a panic")
	}
	cancel()
	if err := awaitRun(t, done); err != nil {
		t.Fatalf("expected clean exit, got %v", err)
	}
}

type arbiterFunc func(ctx context.Context, text string) events.Event

func (f arbiterFunc) Determine(ctx context.Context, text string) events.Event { return f(ctx, text) }

func TestRunDropsUtteranceOnArbitrationError(t *testing.T) {
	responder := &stubResponder{reply: "unused"}
	o := newTestOrchestrator(newScriptedCapturer(t, "hello"), responder,
		WithArbiter(arbiterFunc(func(context.Context, string) events.Event { return events.Failed() })))

	if err := o.Run(context.Background(), WithRunOnce()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls := responder.calls(); len(calls) != 0 {
		t.Fatalf("expected utterance to be dropped, got %v", calls)
	}
	if o.State() != StateListening {
		t.Fatalf("expected state to be unchanged, got %s", o.State())
	}
}

func TestRunOnceStopsOnEmptyCapture(t *testing.T) {
	calls := atomic.Int32{}
	capturer := captureFunc(func(context.Context) (*audio.Utterance, error) {
		calls.Add(1)
		return nil, nil
	})
	responder := &stubResponder{}
	o := newTestOrchestrator(capturer, responder)

	if err := o.Run(context.Background(), WithRunOnce()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 1 || len(responder.calls()) != 0 {
		t.Fatalf("expected a single silent cycle, got %d captures", calls.Load())
	}
}

func TestRunPassesHistoryToModel(t *testing.T) {
	capturer := newScriptedCapturer(t, "first question", "second question")
	responder := &stubResponder{reply: "an answer"}
	store := memory.NewStore([]string{"model_1"}, memory.WithLogger(quietLogger))
	o := newTestOrchestrator(capturer, responder, WithMemory(store))

	for range 2 {
		if err := o.Run(context.Background(), WithRunOnce()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if len(responder.history) != 2 {
		t.Fatalf("expected two llm calls, got %d", len(responder.history))
	}
	if len(responder.history[0]) != 0 || len(responder.history[1]) != 2 {
		t.Fatalf("expected history to grow between turns, got %d then %d", len(responder.history[0]), len(responder.history[1]))
	}
}

func TestRunRequiresComponents(t *testing.T) {
	o := NewOrchestrator(WithLogger(quietLogger))
	if err := o.Run(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
