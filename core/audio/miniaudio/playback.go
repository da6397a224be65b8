package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/astrape-core/core/audio"
)

type playbackClient struct {
	device *malgo.Device

	pending []byte
	marks   []playbackMark
	mu      sync.Mutex
}

type playbackMark struct {
	position int
	done     chan struct{}
}

func (c *playbackClient) Init(audioContext *malgo.AllocatedContext, encoding audio.EncodingInfo) error {
	channels := 1
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.SampleRate = uint32(encoding.SampleRate)
	config.Playback.Format = format
	config.Playback.Channels = uint32(channels)
	config.Alsa.NoMMap = 1
	config.PeriodSizeInFrames = config.SampleRate / 10 // ~100ms of audio
	config.Periods = 4

	var err error
	if c.device, err = malgo.InitDevice(
		audioContext.Context,
		config,
		malgo.DeviceCallbacks{Data: c.processAudio(bytesPerFrame)},
	); err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}
	return nil
}

func (c *playbackClient) Start() error {
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}
	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}
	return nil
}

// Enqueue appends samples to the playback buffer and returns a channel that
// is closed once they have been handed to the device.
func (c *playbackClient) Enqueue(samples []byte) (<-chan struct{}, error) {
	if c.device == nil {
		return nil, fmt.Errorf("device not initialized")
	} else if !c.device.IsStarted() {
		return nil, fmt.Errorf("device not started")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, samples...)
	mark := playbackMark{position: len(c.pending), done: make(chan struct{})}
	c.marks = append(c.marks, mark)
	return mark.done, nil
}

// ClearBuffer drops queued audio and releases everyone waiting on it.
func (c *playbackClient) ClearBuffer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = nil
	for _, mark := range c.marks {
		close(mark.done)
	}
	c.marks = nil
}

func (c *playbackClient) Uninit() {
	c.ClearBuffer()
	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
}

func (c *playbackClient) processAudio(bytesPerFrame int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := int(frameCount) * bytesPerFrame

		c.mu.Lock()
		defer c.mu.Unlock()

		n := copy(pOutput[:min(need, len(pOutput))], c.pending)
		c.pending = c.pending[n:]

		passed := 0
		for i := range c.marks {
			c.marks[i].position -= n
			if c.marks[i].position <= 0 {
				close(c.marks[i].done)
				passed++
			}
		}
		c.marks = c.marks[passed:]
	}
}
