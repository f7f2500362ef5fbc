package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/codexplain/codexplain/internal/ailink/driver"
)

const (
	// Name identifies the driver.
	Name = "openai"

	defaultBaseURL  = "https://api.openai.com/v1"
	completionsPath = "/chat/completions"

	maxErrorBodyLength = 2048
	maxResponseBytes   = 4 << 20
)

// Client talks to an OpenAI-compatible chat completions endpoint over plain
// HTTP.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	// Timeout bounds a single completion. Zero leaves the caller's deadline
	// in charge.
	Timeout time.Duration
}

// NewClient returns a client with defaults applied.
func NewClient(baseURL, apiKey string) *Client {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{BaseURL: baseURL, APIKey: strings.TrimSpace(apiKey)}
}

// Name returns the driver identifier.
func (c *Client) Name() string {
	return Name
}

// Complete sends one chat completion. Non-2xx answers become
// *driver.ProviderError; every call is traced when tracing is on.
func (c *Client) Complete(ctx context.Context, req *driver.Request) (resp *driver.Response, err error) {
	if c == nil {
		return nil, errors.New("openai client not configured")
	}
	if c.APIKey == "" {
		return nil, errors.New("api key is required")
	}
	payload, err := buildChatRequest(req)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	trace := driver.TraceEntry{
		Driver:      Name,
		Endpoint:    completionsPath,
		Model:       req.Model,
		PromptSlug:  req.PromptSlug,
		RequestBody: body,
	}
	start := time.Now()
	defer func() {
		trace.DurationMs = time.Since(start).Milliseconds()
		if err != nil {
			trace.Error = err.Error()
		}
		driver.Trace(trace)
	}()

	status, respBody, err := c.post(ctx, body)
	trace.StatusCode = status
	if json.Valid(respBody) {
		trace.Response = respBody
	}
	if err != nil {
		return nil, err
	}

	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return nil, &driver.ProviderError{
			Provider:    Name,
			StatusCode:  status,
			Message:     errorMessage(respBody),
			RawResponse: respBody,
		}
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return toDriverResponse(&parsed)
}

// post performs the HTTP round trip and reads at most maxResponseBytes.
func (c *Client) post(ctx context.Context, body []byte) (int, []byte, error) {
	url := strings.TrimRight(c.BaseURL, "/") + completionsPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// errorMessage prefers the provider's error.message field over the raw body.
func errorMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		if msg := strings.TrimSpace(envelope.Error.Message); msg != "" {
			return msg
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBodyLength {
		msg = msg[:maxErrorBodyLength]
	}
	return msg
}
