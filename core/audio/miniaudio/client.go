// Package miniaudio captures utterances from and plays audio files on the
// default devices through miniaudio.
package miniaudio

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/astrape-core/core/audio"
)

type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext
	playbackClient
	captureClient

	settings audio.CaptureSettings
	tempDir  *audio.TempDir
	logger   *slog.Logger
}

type ClientOption func(*Client)

func WithCaptureSettings(settings audio.CaptureSettings) ClientOption {
	return func(c *Client) {
		c.settings = settings
	}
}

// WithTempDir sets where captured utterances are stored. Without it
// utterances are only kept in memory.
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
	client := &Client{settings: audio.DefaultCaptureSettings(), logger: logger}
	for _, opt := range opts {
		opt(client)
	}
	if client.settings.Encoding.IsZero() {
		client.settings.Encoding = audio.GetDefaultEncodingInfo()
	}

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		client.logger.Debug("malgo", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	client.audioContext = audioCtx

	if err := client.playbackClient.Init(audioCtx, client.settings.Encoding); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize playback client: %w", err)
	}
	if err := client.playbackClient.Start(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}
	if err := client.captureClient.Init(audioCtx, client.settings.Encoding); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize capture client: %w", err)
	}

	return client, nil
}

func (c *Client) CaptureUtterance(ctx context.Context) (*audio.Utterance, error) {
	return audio.Record(ctx, &c.captureClient, c.settings, c.tempDir, c.logger)
}

// Play plays a WAV file and waits for it to drain. Cancelling ctx stops
// playback immediately.
func (c *Client) Play(ctx context.Context, path string) error {
	info, samples, err := audio.ReadWAV(path)
	if err != nil {
		return fmt.Errorf("failed to read audio: %w", err)
	}
	if info.Format != audio.EncodingLinear16 {
		return fmt.Errorf("%w: cannot play %s", audio.ErrUnsupportedWAV, info.Format)
	}
	samples = audio.Resample(samples, info.SampleRate, c.settings.Encoding.SampleRate)

	done, err := c.playbackClient.Enqueue(samples)
	if err != nil {
		return fmt.Errorf("failed to queue audio: %w", err)
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		c.playbackClient.ClearBuffer()
		return ctx.Err()
	}
}

func (c *Client) Close() {
	c.captureClient.Uninit()
	c.playbackClient.Uninit()
	if c.audioContext != nil {
		_ = c.audioContext.Uninit()
		c.audioContext.Free()
		c.audioContext = nil
	}
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return c.settings.Encoding
}
