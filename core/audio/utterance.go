// Package audio holds the device independent side of capture and playback:
// utterance segmentation, WAV files and the temporary audio directory.
package audio

import "context"

// Utterance is a single captured phrase. Path points at a WAV copy of Raw
// inside the temporary audio directory.
type Utterance struct {
	Raw      []byte
	Path     string
	Encoding EncodingInfo
}

// Capturer records one utterance. A nil utterance with a nil error means no
// speech was heard before the ingest timeout.
type Capturer interface {
	CaptureUtterance(ctx context.Context) (*Utterance, error)
}

// Player plays an audio file and returns once playback has finished or ctx
// is cancelled.
type Player interface {
	Play(ctx context.Context, path string) error
}

// Source delivers raw microphone chunks to onAudio between StartCapture and
// StopCapture.
type Source interface {
	StartCapture(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
}
