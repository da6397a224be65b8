package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// tone returns d of linear16 audio at the default rate with a constant
// amplitude.
func tone(d time.Duration, amplitude int16) []byte {
	n := int(d * DefaultSampleRate / time.Second)
	chunk := make([]byte, n*2)
	for i := range n {
		binary.LittleEndian.PutUint16(chunk[i*2:], uint16(amplitude))
	}
	return chunk
}

func TestWAVEncodeDecode(t *testing.T) {
	samples := tone(50*time.Millisecond, 1200)
	var buf bytes.Buffer
	if err := EncodeWAV(&buf, GetDefaultEncodingInfo(), samples); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.Len() != 44+len(samples) {
		t.Fatalf("expected canonical header, got %d bytes", buf.Len())
	}

	info, decoded, err := DecodeWAV(&buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info != GetDefaultEncodingInfo() {
		t.Fatalf("unexpected encoding %+v", info)
	}
	if !bytes.Equal(decoded, samples) {
		t.Fatalf("samples changed while encoding")
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	_, _, err := DecodeWAV(bytes.NewReader([]byte("definitely not a wav file header")))
	if !errors.Is(err, ErrUnsupportedWAV) {
		t.Fatalf("expected unsupported wav, got %v", err)
	}
}

func TestResample(t *testing.T) {
	samples := tone(10*time.Millisecond, 100)
	if got := Resample(samples, 16000, 48000); len(got) != len(samples)*3 {
		t.Fatalf("expected 3x samples, got %d from %d", len(got), len(samples))
	}
	if got := Resample(samples, 16000, 16000); !bytes.Equal(got, samples) {
		t.Fatalf("expected same rate to be a no-op")
	}
}

func testSettings() CaptureSettings {
	return CaptureSettings{
		Encoding:         GetDefaultEncodingInfo(),
		SilenceThreshold: 0.02,
		SilenceDuration:  100 * time.Millisecond,
		IngestTimeout:    200 * time.Millisecond,
		PhraseLimit:      time.Second,
	}
}

func TestSegmenter(t *testing.T) {
	loud := tone(20*time.Millisecond, 8000)
	silent := tone(20*time.Millisecond, 0)

	t.Run("times out without speech", func(t *testing.T) {
		s := NewSegmenter(testSettings())
		var state SegmentState
		for range 10 {
			state = s.Push(silent)
		}
		if state != SegmentTimedOut {
			t.Fatalf("expected timeout, got %d", state)
		}
	})

	t.Run("completes after trailing silence", func(t *testing.T) {
		s := NewSegmenter(testSettings())
		s.Push(silent)
		if s.Push(loud) != SegmentRecording {
			t.Fatalf("expected speech to start recording")
		}
		s.Push(loud)
		var state SegmentState
		for range 5 {
			state = s.Push(silent)
		}
		if state != SegmentComplete {
			t.Fatalf("expected completion, got %d", state)
		}
		if len(s.Samples()) != 7*len(loud) {
			t.Fatalf("expected leading silence to be dropped, got %d bytes", len(s.Samples()))
		}
	})

	t.Run("phrase limit", func(t *testing.T) {
		s := NewSegmenter(testSettings())
		var state SegmentState
		for range 50 {
			state = s.Push(loud)
		}
		if state != SegmentComplete {
			t.Fatalf("expected phrase limit to complete, got %d", state)
		}
	})
}

func TestTempDirSweep(t *testing.T) {
	dir, err := NewTempDir(filepath.Join(t.TempDir(), "audio"), WithTempDirLogger(quiet))
	if err != nil {
		t.Fatal(err)
	}

	old := dir.NewPath("wav")
	fresh := dir.NewPath(".wav")
	for _, path := range []string{old, fresh} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().Add(-10 * time.Minute)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}

	removed, err := dir.Sweep(5 * time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one file removed, got %d", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expected old file to be removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("expected fresh file to remain: %v", err)
	}
	if err := dir.Remove(old); err != nil {
		t.Fatalf("expected removing a missing file to succeed, got %v", err)
	}
}

type fakeSource struct {
	chunks  [][]byte
	stopped chan struct{}
}

func (s *fakeSource) StartCapture(ctx context.Context, onAudio func([]byte)) error {
	go func() {
		for _, chunk := range s.chunks {
			select {
			case <-s.stopped:
				return
			default:
				onAudio(chunk)
			}
		}
	}()
	return nil
}

func (s *fakeSource) StopCapture() error {
	close(s.stopped)
	return nil
}

func TestRecordWritesUtterance(t *testing.T) {
	loud := tone(20*time.Millisecond, 8000)
	silent := tone(20*time.Millisecond, 0)
	src := &fakeSource{
		chunks:  [][]byte{silent, loud, loud, silent, silent, silent, silent, silent, silent},
		stopped: make(chan struct{}),
	}
	dir, err := NewTempDir(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	utterance, err := Record(context.Background(), src, testSettings(), dir, quiet)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if utterance == nil {
		t.Fatalf("expected an utterance")
	}
	info, samples, err := ReadWAV(utterance.Path)
	if err != nil {
		t.Fatalf("expected a readable wav file: %v", err)
	}
	if info.SampleRate != DefaultSampleRate || !bytes.Equal(samples, utterance.Raw) {
		t.Fatalf("unexpected stored utterance %+v", info)
	}
	select {
	case <-src.stopped:
	default:
		t.Fatalf("expected capture to be stopped")
	}
}

func TestRecordSilenceReturnsNil(t *testing.T) {
	silent := tone(50*time.Millisecond, 0)
	src := &fakeSource{chunks: [][]byte{silent, silent, silent, silent, silent}, stopped: make(chan struct{})}

	utterance, err := Record(context.Background(), src, testSettings(), nil, quiet)
	if err != nil || utterance != nil {
		t.Fatalf("expected nil utterance without error, got %+v, %v", utterance, err)
	}
}

func TestRecordCancelled(t *testing.T) {
	src := &fakeSource{stopped: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Record(ctx, src, testSettings(), nil, quiet); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}
