// Package deepgram synthesizes speech with the Deepgram streaming speak
// websocket and stores it as WAV files.
package deepgram

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/astrape-core/core/audio"
)

const DefaultBaseURL = "wss://api.deepgram.com"

type deepgramVoice string

const defaultVoice deepgramVoice = "aura-asteria-en"

var availableVoices = []deepgramVoice{
	"aura-asteria-en", "aura-luna-en", "aura-stella-en", "aura-athena-en",
	"aura-hera-en", "aura-orion-en", "aura-arcas-en", "aura-perseus-en",
	"aura-angus-en", "aura-orpheus-en", "aura-helios-en", "aura-zeus-en",
}

func GetAvailableVoices() []deepgramVoice {
	return slices.Clone(availableVoices)
}

type TextToSpeechClient struct {
	baseURL  string
	apiKey   string
	voice    deepgramVoice
	encoding audio.EncodingInfo
	timeout  time.Duration

	dir    *audio.TempDir
	dialer *websocket.Dialer
	logger *slog.Logger
}

type ClientOption func(*TextToSpeechClient)

func WithAPIKey(apiKey string) ClientOption {
	return func(c *TextToSpeechClient) {
		c.apiKey = apiKey
	}
}

func WithBaseURL(baseURL string) ClientOption {
	return func(c *TextToSpeechClient) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithVoice sets the voice used when the requested voice is not a Deepgram
// voice.
func WithVoice(voice string) ClientOption {
	return func(c *TextToSpeechClient) {
		if voice != "" {
			c.voice = deepgramVoice(voice)
		}
	}
}

func WithEncodingInfo(encoding audio.EncodingInfo) ClientOption {
	return func(c *TextToSpeechClient) {
		c.encoding = encoding
	}
}

// WithTimeout bounds a single synthesis, from dialing until the flush is
// confirmed. Zero leaves it bounded only by the caller's context.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *TextToSpeechClient) {
		c.timeout = timeout
	}
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *TextToSpeechClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewTextToSpeechClient creates a client writing its audio into dir.
// Without WithAPIKey the key is read from DEEPGRAM_API_KEY.
func NewTextToSpeechClient(dir *audio.TempDir, opts ...ClientOption) (*TextToSpeechClient, error) {
	if dir == nil {
		return nil, fmt.Errorf("temp audio dir is required")
	}
	client := &TextToSpeechClient{
		baseURL:  DefaultBaseURL,
		voice:    defaultVoice,
		encoding: audio.GetDefaultEncodingInfo(),
		dir:      dir,
		dialer:   websocket.DefaultDialer,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(client)
	}
	if !slices.Contains(availableVoices, client.voice) {
		return nil, fmt.Errorf("invalid voice %q", client.voice)
	}
	if client.encoding.Format != audio.EncodingLinear16 {
		return nil, fmt.Errorf("unsupported encoding %q", client.encoding.Format)
	}
	return client, nil
}

func (c *TextToSpeechClient) Name() string { return "deepgram" }

// resolveVoice maps a configured assistant voice onto a Deepgram voice.
// Voices of other engines fall back to the client's default.
func (c *TextToSpeechClient) resolveVoice(voice string) deepgramVoice {
	if slices.Contains(availableVoices, deepgramVoice(voice)) {
		return deepgramVoice(voice)
	}
	return c.voice
}
