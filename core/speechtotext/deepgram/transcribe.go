// Package deepgram transcribes recorded utterances with the Deepgram live
// transcription websocket.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/astrape-core/core/audio"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultBaseURL = "wss://api.deepgram.com"
	DefaultModel   = "nova-2"

	listenPath = "/v1/listen"
	// chunkDuration of audio is sent per websocket frame.
	chunkDurationMs = 100
)

type TranscriptionClient struct {
	baseURL  string
	apiKey   string
	model    string
	language string
	timeout  time.Duration
	dialer   *websocket.Dialer
	logger   *slog.Logger
}

type ClientOption func(*TranscriptionClient)

func WithAPIKey(apiKey string) ClientOption {
	return func(c *TranscriptionClient) {
		c.apiKey = apiKey
	}
}

func WithBaseURL(baseURL string) ClientOption {
	return func(c *TranscriptionClient) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithModel(model string) ClientOption {
	return func(c *TranscriptionClient) {
		if model != "" {
			c.model = model
		}
	}
}

func WithLanguage(language string) ClientOption {
	return func(c *TranscriptionClient) {
		c.language = language
	}
}

// WithTimeout bounds a single transcription, from dialing until the last
// result. Zero leaves it bounded only by the caller's context.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *TranscriptionClient) {
		c.timeout = timeout
	}
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *TranscriptionClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewTranscriptionClient creates a client. Without WithAPIKey the key is
// read from DEEPGRAM_API_KEY when transcribing.
func NewTranscriptionClient(opts ...ClientOption) *TranscriptionClient {
	c := &TranscriptionClient{
		baseURL:  DefaultBaseURL,
		model:    DefaultModel,
		language: "en-US",
		dialer:   websocket.DefaultDialer,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *TranscriptionClient) Name() string { return "deepgram" }

// Transcribe streams the WAV file at audioPath and returns the final
// transcript segments joined by spaces.
func (c *TranscriptionClient) Transcribe(ctx context.Context, audioPath string) (transcript string, err error) {
	ctx, span := tracer.Start(ctx, "deepgram transcribe")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	info, samples, err := audio.ReadWAV(audioPath)
	if err != nil {
		return "", fmt.Errorf("failed to read utterance: %w", err)
	}
	encoding, err := convertEncoding(info)
	if err != nil {
		return "", fmt.Errorf("invalid encoding: %w", err)
	}

	conn, err := c.connect(ctx, *encoding)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	// Unblock the reader when the caller gives up.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	var writeErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		writeErr = sendAudio(conn, samples, info.BytesPerSecond()*chunkDurationMs/1000)
	}()

	segments, readErr := c.readTranscripts(conn)
	wg.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if readErr != nil {
		return "", readErr
	}
	if writeErr != nil {
		return "", writeErr
	}

	transcript = strings.Join(segments, " ")
	span.SetAttributes(attribute.Int("stt.segments", len(segments)))
	return transcript, nil
}

func (c *TranscriptionClient) connect(ctx context.Context, encoding encodingInfo) (*websocket.Conn, error) {
	apiKey := c.apiKey
	if apiKey == "" {
		var ok bool
		if apiKey, ok = os.LookupEnv("DEEPGRAM_API_KEY"); !ok {
			return nil, fmt.Errorf("deepgram api key not found")
		}
	}

	listenURL, err := url.Parse(c.baseURL + listenPath)
	if err != nil {
		return nil, fmt.Errorf("invalid deepgram url: %w", err)
	}
	queryParams := listenURL.Query()
	queryParams.Set("encoding", encoding.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(encoding.SampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", c.model)
	if c.language != "" {
		queryParams.Set("language", c.language)
	}
	queryParams.Set("smart_format", "true")
	listenURL.RawQuery = queryParams.Encode()

	conn, _, err := c.dialer.DialContext(ctx, listenURL.String(),
		http.Header{"Authorization": {"Token " + apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}
	return conn, nil
}

func sendAudio(conn *websocket.Conn, samples []byte, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = len(samples)
	}
	for offset := 0; offset < len(samples); offset += chunkSize {
		chunk := samples[offset:min(offset+chunkSize, len(samples))]
		if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
			return fmt.Errorf("failed to write to deepgram client: %w", err)
		}
	}
	if err := conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
		return fmt.Errorf("failed to close deepgram stream: %w", err)
	}
	return nil
}

// readTranscripts collects final results until the server closes the
// connection after CloseStream.
func (c *TranscriptionClient) readTranscripts(conn *websocket.Conn) ([]string, error) {
	var segments []string
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
				return segments, nil
			}
			return nil, fmt.Errorf("failed to read deepgram websocket message: %w", err)
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var parsedMsg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &parsedMsg); err != nil {
			c.logger.Warn("failed to unmarshal deepgram message", "error", err)
			continue
		}

		switch api.TypeResponse(parsedMsg.Type) {
		case api.TypeMessageResponse:
			var msgResp api.MessageResponse
			if err := json.Unmarshal(msg, &msgResp); err != nil {
				c.logger.Warn("failed to unmarshal deepgram results", "error", err)
				continue
			}
			if !msgResp.IsFinal || len(msgResp.Channel.Alternatives) == 0 {
				continue
			}
			if transcript := strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript); transcript != "" {
				segments = append(segments, transcript)
			}
		case "Metadata":
			// Sent last, once the stream has been fully processed.
			return segments, nil
		case "Error":
			return nil, fmt.Errorf("deepgram error: %s", msg)
		}
	}
}
