// Package httpapi transcribes utterances by uploading them to an HTTP
// endpoint that answers with {"transcript": "..."}.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/koscakluka/astrape-core/core/invocation"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const audioField = "audio"

type Client struct {
	url        string
	httpClient *http.Client

	retryLimit     invocation.RetryLimit
	retryDelay     time.Duration
	requestTimeout time.Duration

	logger *slog.Logger
}

type ClientOption func(*Client)

// WithRetry retries failed uploads with a linear backoff.
func WithRetry(limit invocation.RetryLimit, delay time.Duration) ClientOption {
	return func(c *Client) {
		c.retryLimit = limit
		c.retryDelay = delay
	}
}

// WithRequestTimeout bounds each individual upload.
func WithRequestTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.requestTimeout = timeout
	}
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewClient(url string, opts ...ClientOption) *Client {
	c := &Client{
		url:        url,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		retryLimit: invocation.Limit(1),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return c.url }

func (c *Client) Transcribe(ctx context.Context, audioPath string) (string, error) {
	var transcript string
	err := invocation.Retry(ctx, c.retryLimit, c.retryDelay, func(ctx context.Context, attempt int) error {
		c.logger.DebugContext(ctx, "calling speech to text api", "url", c.url, "attempt", attempt)
		text, err := c.upload(ctx, audioPath)
		if err != nil {
			return err
		}
		transcript = text
		return nil
	}, func(attempt int, err error) {
		c.logger.WarnContext(ctx, "speech to text api request failed", "url", c.url, "attempt", attempt, "retry_in", invocation.Backoff(c.retryDelay, attempt), "error", err)
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "speech to text api retries exhausted", "url", c.url, "error", err)
		return "", err
	}
	return transcript, nil
}

func (c *Client) upload(ctx context.Context, audioPath string) (string, error) {
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	body, contentType, err := multipartAudio(audioPath)
	if err != nil {
		// Nothing a retry could fix.
		return "", invocation.StopRetry(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return "", invocation.StopRetry(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var payload struct {
		Transcript string `json:"transcript"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return payload.Transcript, nil
}

func multipartAudio(audioPath string) (io.Reader, string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open audio: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(audioField, filepath.Base(audioPath))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("failed to read audio: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}
