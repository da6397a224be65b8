package audio

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"
)

const chunkBacklog = 256

// Record captures a single utterance from src and stores it as a WAV file in
// dir. It returns nil without an error when no speech started within the
// ingest timeout.
func Record(ctx context.Context, src Source, settings CaptureSettings, dir *TempDir, log *slog.Logger) (*Utterance, error) {
	if log == nil {
		log = logger
	}
	segmenter := NewSegmenter(settings)

	chunks := make(chan []byte, chunkBacklog)
	if err := src.StartCapture(ctx, func(audio []byte) {
		select {
		case chunks <- slices.Clone(audio):
		default:
			log.Warn("dropping microphone chunk, capture is falling behind")
		}
	}); err != nil {
		return nil, fmt.Errorf("failed to start capture: %w", err)
	}
	defer func() {
		if err := src.StopCapture(); err != nil {
			log.Warn("failed to stop capture", "error", err)
		}
	}()

	// Devices that stop delivering audio would otherwise block forever.
	watchdog := time.NewTimer(settings.IngestTimeout + settings.PhraseLimit + time.Second)
	defer watchdog.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-watchdog.C:
			log.Warn("capture watchdog expired")
			return nil, nil
		case chunk := <-chunks:
			switch segmenter.Push(chunk) {
			case SegmentTimedOut:
				log.Debug("no speech before ingest timeout")
				return nil, nil
			case SegmentComplete:
				utterance := &Utterance{Raw: segmenter.Samples(), Encoding: segmenter.settings.Encoding}
				if dir != nil {
					utterance.Path = dir.NewPath(".wav")
					if err := WriteWAV(utterance.Path, utterance.Encoding, utterance.Raw); err != nil {
						return nil, fmt.Errorf("failed to store utterance: %w", err)
					}
				}
				log.Debug("utterance captured", "bytes", len(utterance.Raw), "path", utterance.Path)
				return utterance, nil
			}
		}
	}
}
