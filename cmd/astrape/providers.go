package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	orchestration "github.com/koscakluka/astrape-core/core"
	"github.com/koscakluka/astrape-core/core/audio"
	"github.com/koscakluka/astrape-core/core/audio/miniaudio"
	"github.com/koscakluka/astrape-core/core/audio/portaudio"
	"github.com/koscakluka/astrape-core/core/config"
	"github.com/koscakluka/astrape-core/core/events"
	"github.com/koscakluka/astrape-core/core/invocation"
	"github.com/koscakluka/astrape-core/core/llms"
	"github.com/koscakluka/astrape-core/core/llms/openai"
	"github.com/koscakluka/astrape-core/core/memory"
	"github.com/koscakluka/astrape-core/core/speechtotext"
	sttdeepgram "github.com/koscakluka/astrape-core/core/speechtotext/deepgram"
	stthttp "github.com/koscakluka/astrape-core/core/speechtotext/httpapi"
	"github.com/koscakluka/astrape-core/core/texttospeech"
	ttsdeepgram "github.com/koscakluka/astrape-core/core/texttospeech/deepgram"
	ttshttp "github.com/koscakluka/astrape-core/core/texttospeech/httpapi"
)

type audioDevice interface {
	audio.Capturer
	audio.Player
	Close()
}

// newAssistant wires the configuration into a ready orchestrator. The
// returned cleanup releases the audio device.
func newAssistant(cfg *config.Config, log *slog.Logger) (*orchestration.Orchestrator, func(), error) {
	registry := config.NewRegistry(cfg, config.WithLogger(log))

	tempDir, err := audio.NewTempDir(cfg.System.TempAudioDir, audio.WithTempDirLogger(log))
	if err != nil {
		return nil, nil, err
	}

	device, err := newAudioDevice(cfg, tempDir, log)
	if err != nil {
		return nil, nil, err
	}

	transcriber, err := newTranscriber(cfg.SpeechToText, log)
	if err != nil {
		device.Close()
		return nil, nil, err
	}
	synthesizer, err := newSynthesizer(cfg.TextToSpeech, tempDir, captureSettings(cfg.Audio).Encoding, log)
	if err != nil {
		device.Close()
		return nil, nil, err
	}

	arbiter := events.NewArbiter(
		events.WithLogger(log),
		events.WithPhraseSource(events.KindEmergency, registry.EmergencyPhrases),
		events.WithPhraseSource(events.KindWake, registry.WakePhrases),
		events.WithPhraseSource(events.KindSleep, registry.SleepPhrases),
		events.WithPhraseSource(events.KindShutdown, registry.ShutdownPhrases),
	)

	pipeline := llms.NewPipeline(
		openai.NewClient(openai.WithLogger(log)),
		llms.WithRetry(invocation.RetryLimitFromCount(cfg.System.AssistantRetryAttempts), cfg.System.AssistantRetryDelay.Std()),
		llms.WithLogger(log),
	)

	o := orchestration.NewOrchestrator(
		orchestration.WithLogger(log),
		orchestration.WithCapturer(device),
		orchestration.WithPlayer(device),
		orchestration.WithTranscriber(transcriber),
		orchestration.WithSynthesizer(synthesizer),
		orchestration.WithArbiter(arbiter),
		orchestration.WithMemory(memory.NewStore(registry.EnabledModels(), memory.WithLogger(log))),
		orchestration.WithPipeline(pipeline),
		orchestration.WithModelSelector(registry.SelectModel),
		orchestration.WithTempAudio(tempDir, cfg.System.TempAudioMaxAge.Std()),
		orchestration.WithEmergencyProtocol(func(ctx context.Context) error {
			log.WarnContext(ctx, "emergency protocol engaged, waiting to be cleared")
			return nil
		}),
	)

	cleanup := func() {
		o.Close()
		device.Close()
	}
	return o, cleanup, nil
}

func captureSettings(settings config.AudioSettings) audio.CaptureSettings {
	capture := audio.DefaultCaptureSettings()
	if settings.SampleRate > 0 {
		capture.Encoding.SampleRate = settings.SampleRate
	}
	if settings.SilenceThreshold > 0 {
		capture.SilenceThreshold = settings.SilenceThreshold
	}
	if settings.SilenceDuration > 0 {
		capture.SilenceDuration = settings.SilenceDuration.Std()
	}
	return capture
}

func newAudioDevice(cfg *config.Config, dir *audio.TempDir, log *slog.Logger) (audioDevice, error) {
	capture := captureSettings(cfg.Audio)
	if cfg.System.MicIngestTimeout > 0 {
		capture.IngestTimeout = cfg.System.MicIngestTimeout.Std()
	}
	if cfg.System.PhraseTimeout > 0 {
		capture.PhraseLimit = cfg.System.PhraseTimeout.Std()
	}

	switch cfg.Audio.Backend {
	case "portaudio":
		client, err := portaudio.NewClient(
			portaudio.WithCaptureSettings(capture),
			portaudio.WithTempDir(dir),
			portaudio.WithLogger(log),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to open portaudio device: %w", err)
		}
		return client, nil
	case "", "miniaudio":
		client, err := miniaudio.NewClient(
			miniaudio.WithCaptureSettings(capture),
			miniaudio.WithTempDir(dir),
			miniaudio.WithLogger(log),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to open miniaudio device: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("%w: unknown audio backend %q", config.ErrConfiguration, cfg.Audio.Backend)
	}
}

func newTranscriber(settings config.ServiceSettings, log *slog.Logger) (*speechtotext.Transcriber, error) {
	providers := make([]speechtotext.Provider, 0, len(settings.Providers))
	for _, spec := range settings.Providers {
		switch spec.Kind {
		case config.ProviderBuiltin:
			providers = append(providers, sttdeepgram.NewTranscriptionClient(
				sttdeepgram.WithAPIKey(settings.APIKey),
				sttdeepgram.WithModel(settings.Model),
				sttdeepgram.WithTimeout(settings.Timeout.Std()),
				sttdeepgram.WithLogger(log),
			))
		case config.ProviderHTTP:
			providers = append(providers, stthttp.NewClient(spec.URL,
				stthttp.WithRetry(invocation.RetryLimitFromCount(settings.RetryAttempts), settings.RetryDelay.Std()),
				stthttp.WithRequestTimeout(settings.Timeout.Std()),
				stthttp.WithLogger(log),
			))
		default:
			return nil, fmt.Errorf("%w: unsupported speech-to-text provider %s", config.ErrConfiguration, spec)
		}
	}

	return speechtotext.NewTranscriber(settings.Mode, providers,
		speechtotext.WithTimeout(attemptBudget(settings)),
		speechtotext.WithLogger(log),
	), nil
}

func newSynthesizer(settings config.ServiceSettings, dir *audio.TempDir, encoding audio.EncodingInfo, log *slog.Logger) (*texttospeech.Synthesizer, error) {
	providers := make([]texttospeech.Provider, 0, len(settings.Providers))
	for _, spec := range settings.Providers {
		switch spec.Kind {
		case config.ProviderBuiltin:
			client, err := ttsdeepgram.NewTextToSpeechClient(dir,
				ttsdeepgram.WithAPIKey(settings.APIKey),
				ttsdeepgram.WithVoice(settings.Model),
				ttsdeepgram.WithEncodingInfo(encoding),
				ttsdeepgram.WithTimeout(settings.Timeout.Std()),
				ttsdeepgram.WithLogger(log),
			)
			if err != nil {
				return nil, fmt.Errorf("failed to create text-to-speech provider %s: %w", spec, err)
			}
			providers = append(providers, client)
		case config.ProviderHTTP:
			providers = append(providers, ttshttp.NewClient(spec.URL, dir,
				ttshttp.WithRetry(invocation.RetryLimitFromCount(settings.RetryAttempts), settings.RetryDelay.Std()),
				ttshttp.WithRequestTimeout(settings.Timeout.Std()),
				ttshttp.WithLogger(log),
			))
		default:
			return nil, fmt.Errorf("%w: unsupported text-to-speech provider %s", config.ErrConfiguration, spec)
		}
	}

	return texttospeech.NewSynthesizer(settings.Mode, providers,
		texttospeech.WithTimeout(attemptBudget(settings)),
		texttospeech.WithLogger(log),
	), nil
}

// attemptBudget bounds one strategy attempt so that an HTTP provider can
// still use all of its own retries. Unbounded retries leave the attempt
// unbounded. Builtin providers carry the plain timeout per call instead.
func attemptBudget(settings config.ServiceSettings) time.Duration {
	timeout := settings.Timeout.Std()
	if timeout <= 0 || settings.RetryAttempts <= 0 {
		return 0
	}
	budget := time.Duration(settings.RetryAttempts) * timeout
	for attempt := 1; attempt < settings.RetryAttempts; attempt++ {
		budget += invocation.Backoff(settings.RetryDelay.Std(), attempt)
	}
	return budget
}
