package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// CaptureSettings controls how an utterance is cut out of the microphone
// stream. Durations are measured in audio time.
type CaptureSettings struct {
	Encoding EncodingInfo
	// SilenceThreshold is the RMS level, between 0 and 1, above which a
	// chunk counts as speech.
	SilenceThreshold float64
	// SilenceDuration of trailing silence ends an utterance.
	SilenceDuration time.Duration
	// IngestTimeout is how long to wait for speech to start.
	IngestTimeout time.Duration
	// PhraseLimit caps the length of an utterance.
	PhraseLimit time.Duration
}

func DefaultCaptureSettings() CaptureSettings {
	return CaptureSettings{
		Encoding:         GetDefaultEncodingInfo(),
		SilenceThreshold: 0.02,
		SilenceDuration:  time.Second,
		IngestTimeout:    5 * time.Second,
		PhraseLimit:      15 * time.Second,
	}
}

type SegmentState int

const (
	SegmentWaiting SegmentState = iota
	SegmentRecording
	SegmentComplete
	SegmentTimedOut
)

// Segmenter is an energy gate that turns a stream of linear16 chunks into a
// single utterance.
type Segmenter struct {
	settings CaptureSettings
	state    SegmentState

	waited    time.Duration
	recorded  time.Duration
	silentFor time.Duration
	samples   []byte
}

func NewSegmenter(settings CaptureSettings) *Segmenter {
	if settings.Encoding.IsZero() {
		settings.Encoding = GetDefaultEncodingInfo()
	}
	return &Segmenter{settings: settings}
}

func (s *Segmenter) State() SegmentState { return s.state }

// Samples returns the recorded utterance, trailing silence included.
func (s *Segmenter) Samples() []byte { return s.samples }

// Push feeds the next chunk and returns the resulting state. Chunks pushed
// after the segmenter finished are ignored.
func (s *Segmenter) Push(chunk []byte) SegmentState {
	if s.state == SegmentComplete || s.state == SegmentTimedOut {
		return s.state
	}

	length := s.settings.Encoding.Duration(len(chunk))
	speech := RMS(chunk) >= s.settings.SilenceThreshold

	switch s.state {
	case SegmentWaiting:
		if !speech {
			s.waited += length
			if s.settings.IngestTimeout > 0 && s.waited >= s.settings.IngestTimeout {
				s.state = SegmentTimedOut
			}
			return s.state
		}
		s.state = SegmentRecording
		fallthrough
	case SegmentRecording:
		s.samples = append(s.samples, chunk...)
		s.recorded += length
		if speech {
			s.silentFor = 0
		} else {
			s.silentFor += length
		}
		if s.silentFor >= s.settings.SilenceDuration ||
			(s.settings.PhraseLimit > 0 && s.recorded >= s.settings.PhraseLimit) {
			s.state = SegmentComplete
		}
	}
	return s.state
}

// RMS is the root mean square level of linear16 samples scaled to [0, 1].
func RMS(chunk []byte) float64 {
	n := len(chunk) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		sample := float64(int16(binary.LittleEndian.Uint16(chunk[i*2:]))) / math.MaxInt16
		sum += sample * sample
	}
	return math.Sqrt(sum / float64(n))
}
