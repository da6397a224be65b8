package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/koscakluka/astrape-core/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Complete performs a single non-streamed chat completion.
func (c *Client) Complete(ctx context.Context, req llms.Request) (string, error) {
	ctx, span := tracer.Start(ctx, "prompt llm")
	defer span.End()
	span.SetAttributes(attribute.String("request.model", req.Model.Model))

	req.Stream = false
	resp, err := c.send(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		err = fmt.Errorf("error reading response body: %w", err)
		span.RecordError(err)
		return "", err
	}
	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		err := statusError(resp, body)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	var responseBody completionResponseBody
	if err := json.Unmarshal(body, &responseBody); err != nil {
		err = fmt.Errorf("error unmarshalling response body: %w", err)
		span.RecordError(err)
		return "", err
	}
	if responseBody.Usage != nil {
		span.SetAttributes(
			attribute.Int("usage.input", responseBody.Usage.PromptTokens),
			attribute.Int("usage.output", responseBody.Usage.CompletionTokens),
			attribute.Int("usage.total", responseBody.Usage.TotalTokens),
		)
	}
	if len(responseBody.Choices) == 0 {
		return "", fmt.Errorf("response contained no choices")
	}

	return strings.TrimSpace(responseBody.Choices[0].Message.Content), nil
}

func (c *Client) send(ctx context.Context, req llms.Request) (*http.Response, error) {
	requestBodyBytes, err := json.Marshal(newRequestBody(req))
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(req.Model.Endpoint), bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if key := c.key(req.Model.APIKey); key != "" {
		httpReq.Header.Set("Authorization", "Bearer "+key)
	}
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	return resp, nil
}

func describeError(body []byte) string {
	var errorBody errorResponseBody
	if err := json.Unmarshal(body, &errorBody); err == nil && errorBody.Error.Message != "" {
		return errorBody.Error.Message
	}
	return strings.TrimSpace(string(body))
}
