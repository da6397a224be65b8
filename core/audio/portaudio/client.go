// Package portaudio captures utterances from and plays audio files on the
// default devices through PortAudio.
package portaudio

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/astrape-core/core/audio"
)

const DefaultBufferSize = 512

type Client struct {
	bufferSize int
	stream     *portaudio.Stream

	in  []int16
	out []int16

	settings audio.CaptureSettings
	tempDir  *audio.TempDir
	logger   *slog.Logger

	// streamMu serialises blocking reads and writes on the duplex stream.
	streamMu sync.Mutex
	capture  struct {
		sync.Mutex
		cancel context.CancelFunc
		done   chan struct{}
	}
}

type ClientOption func(*Client)

func WithBufferSize(frames int) ClientOption {
	return func(c *Client) {
		if frames > 0 {
			c.bufferSize = frames
		}
	}
}

func WithCaptureSettings(settings audio.CaptureSettings) ClientOption {
	return func(c *Client) {
		c.settings = settings
	}
}

func WithTempDir(dir *audio.TempDir) ClientOption {
	return func(c *Client) {
		c.tempDir = dir
	}
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewClient(opts ...ClientOption) (*Client, error) {
	c := &Client{
		bufferSize: DefaultBufferSize,
		settings:   audio.DefaultCaptureSettings(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.settings.Encoding.IsZero() {
		c.settings.Encoding = audio.GetDefaultEncodingInfo()
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	c.in = make([]int16, c.bufferSize)
	c.out = make([]int16, c.bufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 1, float64(c.settings.Encoding.SampleRate), c.bufferSize, c.in, c.out)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open portaudio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to start portaudio stream: %w", err)
	}
	c.stream = stream
	return c, nil
}

// StartCapture reads from the input side of the stream on a separate
// goroutine until StopCapture is called or ctx is done.
func (c *Client) StartCapture(ctx context.Context, onAudio func(audio []byte)) error {
	c.capture.Lock()
	defer c.capture.Unlock()
	if c.capture.cancel != nil {
		return fmt.Errorf("capture already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.capture.cancel, c.capture.done = cancel, done

	go func() {
		defer close(done)
		chunk := make([]byte, c.bufferSize*2)
		for ctx.Err() == nil {
			c.streamMu.Lock()
			err := c.stream.Read()
			if err == nil {
				for i, sample := range c.in {
					binary.LittleEndian.PutUint16(chunk[i*2:], uint16(sample))
				}
			}
			c.streamMu.Unlock()
			if err != nil {
				c.logger.Warn("failed to read from portaudio stream", "error", err)
				continue
			}
			onAudio(chunk)
		}
	}()
	return nil
}

func (c *Client) StopCapture() error {
	c.capture.Lock()
	cancel, done := c.capture.cancel, c.capture.done
	c.capture.cancel, c.capture.done = nil, nil
	c.capture.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (c *Client) CaptureUtterance(ctx context.Context) (*audio.Utterance, error) {
	return audio.Record(ctx, c, c.settings, c.tempDir, c.logger)
}

// Play writes a WAV file to the output side of the stream one buffer at a
// time, checking ctx between buffers.
func (c *Client) Play(ctx context.Context, path string) error {
	info, samples, err := audio.ReadWAV(path)
	if err != nil {
		return fmt.Errorf("failed to read audio: %w", err)
	}
	if info.Format != audio.EncodingLinear16 {
		return fmt.Errorf("%w: cannot play %s", audio.ErrUnsupportedWAV, info.Format)
	}
	samples = audio.Resample(samples, info.SampleRate, c.settings.Encoding.SampleRate)

	frameBytes := c.bufferSize * 2
	for offset := 0; offset < len(samples); offset += frameBytes {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame := samples[offset:min(offset+frameBytes, len(samples))]

		c.streamMu.Lock()
		clear(c.out)
		for i := range len(frame) / 2 {
			c.out[i] = int16(binary.LittleEndian.Uint16(frame[i*2:]))
		}
		err := c.stream.Write()
		c.streamMu.Unlock()
		if err != nil {
			return fmt.Errorf("failed to write to portaudio stream: %w", err)
		}
	}
	return nil
}

func (c *Client) Close() {
	_ = c.StopCapture()
	if c.stream != nil {
		_ = c.stream.Stop()
		_ = c.stream.Close()
	}
	_ = portaudio.Terminate()
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return c.settings.Encoding
}
