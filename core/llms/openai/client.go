// Package openai talks to OpenAI-compatible chat-completion endpoints.
package openai

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"

	completionsPath = "/chat/completions"
	chunkPrefix     = "data:"
	endMessage      = "[DONE]"
)

// Client sends chat-completion requests. The endpoint and key of each
// request's model take precedence over the client defaults, so a single
// client can serve every configured model.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

type ClientOption func(*Client)

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) {
		c.apiKey = apiKey
	}
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) endpoint(node string) string {
	base := c.baseURL
	if node != "" {
		base = node
	}
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, completionsPath) {
		return base
	}
	return base + completionsPath
}

func (c *Client) key(apiKey string) string {
	if apiKey != "" {
		return apiKey
	}
	return c.apiKey
}

func statusError(resp *http.Response, body []byte) error {
	return fmt.Errorf("non-OK HTTP status: %s: %s", resp.Status, describeError(body))
}
