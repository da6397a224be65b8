// Package httpapi synthesizes speech by posting text to an HTTP endpoint
// that answers with the raw audio file.
package httpapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/koscakluka/astrape-core/core/audio"
	"github.com/koscakluka/astrape-core/core/invocation"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Client struct {
	url        string
	dir        *audio.TempDir
	httpClient *http.Client

	retryLimit     invocation.RetryLimit
	retryDelay     time.Duration
	requestTimeout time.Duration

	logger *slog.Logger
}

type ClientOption func(*Client)

func WithRetry(limit invocation.RetryLimit, delay time.Duration) ClientOption {
	return func(c *Client) {
		c.retryLimit = limit
		c.retryDelay = delay
	}
}

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

// NewClient creates a client for endpoint that saves audio into dir.
func NewClient(endpoint string, dir *audio.TempDir, opts ...ClientOption) *Client {
	c := &Client{
		url:        endpoint,
		dir:        dir,
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

// Synthesize posts text as the text query parameter. The voice is not part
// of the endpoint contract and is ignored.
func (c *Client) Synthesize(ctx context.Context, text, _ string) (string, error) {
	var path string
	err := invocation.Retry(ctx, c.retryLimit, c.retryDelay, func(ctx context.Context, attempt int) error {
		c.logger.DebugContext(ctx, "calling text to speech api", "url", c.url, "attempt", attempt)
		data, err := c.fetch(ctx, text)
		if err != nil {
			return err
		}

		path = c.dir.NewPath(".wav")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return invocation.StopRetry(fmt.Errorf("failed to save audio: %w", err))
		}
		return nil
	}, func(attempt int, err error) {
		c.logger.WarnContext(ctx, "text to speech api request failed", "url", c.url, "attempt", attempt, "retry_in", invocation.Backoff(c.retryDelay, attempt), "error", err)
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "text to speech api retries exhausted", "url", c.url, "error", err)
		return "", err
	}
	c.logger.InfoContext(ctx, "audio saved", "path", path)
	return path, nil
}

func (c *Client) fetch(ctx context.Context, text string) ([]byte, error) {
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	endpoint, err := url.Parse(c.url)
	if err != nil {
		return nil, invocation.StopRetry(fmt.Errorf("invalid endpoint: %w", err))
	}
	query := endpoint.Query()
	query.Set("text", text)
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), nil)
	if err != nil {
		return nil, invocation.StopRetry(fmt.Errorf("failed to build request: %w", err))
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if len(data) > 512 {
			data = data[:512]
		}
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty audio body", invocation.ErrInvalidPayload)
	}
	return data, nil
}
