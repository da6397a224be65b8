package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/astrape-core/core/audio"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type websocketMessage struct {
	Type string `json:"type"`
}

type speakMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

var (
	flushMsg = websocketMessage{Type: "Flush"}
	closeMsg = websocketMessage{Type: "Close"}
)

// Synthesize speaks text and writes the audio into a new WAV file.
func (c *TextToSpeechClient) Synthesize(ctx context.Context, text, voice string) (path string, err error) {
	resolved := c.resolveVoice(voice)
	ctx, span := tracer.Start(ctx, "deepgram synthesize")
	span.SetAttributes(attribute.String("tts.voice", string(resolved)))
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

	ws, err := c.connect(ctx, resolved)
	if err != nil {
		return "", fmt.Errorf("failed to open websocket: %w", err)
	}
	defer ws.Close()
	stop := context.AfterFunc(ctx, func() { _ = ws.Close() })
	defer stop()

	if err := ws.WriteJSON(speakMessage{Type: "Speak", Text: text}); err != nil {
		return "", fmt.Errorf("failed to send websocket speak message: %w", err)
	}
	if err := ws.WriteJSON(flushMsg); err != nil {
		return "", fmt.Errorf("failed to send websocket flush message: %w", err)
	}

	samples, err := c.collectAudio(ws)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if err != nil {
		return "", err
	}
	if err := ws.WriteJSON(closeMsg); err != nil {
		c.logger.Debug("failed to send websocket close message", "error", err)
	}
	if len(samples) == 0 {
		return "", fmt.Errorf("deepgram returned no audio")
	}

	path = c.dir.NewPath(".wav")
	if err := audio.WriteWAV(path, c.encoding, samples); err != nil {
		_ = c.dir.Remove(path)
		return "", fmt.Errorf("failed to store synthesized audio: %w", err)
	}
	span.SetAttributes(attribute.Int("tts.bytes", len(samples)))
	return path, nil
}

func (c *TextToSpeechClient) connect(ctx context.Context, voice deepgramVoice) (*websocket.Conn, error) {
	apiKey := c.apiKey
	if apiKey == "" {
		var ok bool
		if apiKey, ok = os.LookupEnv("DEEPGRAM_API_KEY"); !ok {
			return nil, fmt.Errorf("deepgram api key not found")
		}
	}

	speakURL, err := url.Parse(c.baseURL + "/v1/speak")
	if err != nil {
		return nil, fmt.Errorf("invalid deepgram url: %w", err)
	}
	urlValues := url.Values{}
	urlValues.Set("encoding", c.encoding.Format.Name())
	urlValues.Set("sample_rate", strconv.Itoa(c.encoding.SampleRate))
	urlValues.Set("model", string(voice))
	urlValues.Set("container", "none")
	speakURL.RawQuery = urlValues.Encode()

	conn, _, err := c.dialer.DialContext(ctx, speakURL.String(),
		http.Header{"Authorization": {"token " + apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}
	return conn, nil
}

// collectAudio reads binary frames until the server confirms the flush.
func (c *TextToSpeechClient) collectAudio(ws *websocket.Conn) ([]byte, error) {
	var samples []byte
	for {
		msgType, msg, err := ws.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
				return samples, nil
			}
			return nil, fmt.Errorf("websocket read error: %w", err)
		}

		switch msgType {
		case websocket.BinaryMessage:
			samples = append(samples, msg...)
		case websocket.TextMessage:
			var parsedMsg struct {
				Type        string `json:"type"`
				Description string `json:"description"`
			}
			if err := json.Unmarshal(msg, &parsedMsg); err != nil {
				c.logger.Warn("failed to unmarshal deepgram message", "error", err)
				continue
			}
			switch parsedMsg.Type {
			case "Flushed":
				return samples, nil
			case "Warning":
				c.logger.Warn("deepgram warning", "description", parsedMsg.Description)
			case "Error":
				return nil, fmt.Errorf("deepgram error: %s", parsedMsg.Description)
			}
		}
	}
}
