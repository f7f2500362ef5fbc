// Package client calls a running codexplain server on behalf of the CLI.
package client

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

	"github.com/codexplain/codexplain/internal/core"
)

const (
	explainPath = "/api/explain"
	quotaPath   = "/api/quota"

	maxErrorBodyLength = 512
)

var (
	// ErrRateLimited is returned when the server rejected the request on quota.
	ErrRateLimited = errors.New("rate limited by server")

	// ErrUnreachable wraps transport failures before any response arrived.
	ErrUnreachable = errors.New("server unreachable")
)

// StatusError is a non-2xx response other than a rate-limit rejection.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// RateLimitError carries the server's message and retry hint.
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return e.Message
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// Client talks to the explain API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New returns a client for baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		Timeout: timeout,
	}
}

// Explain posts a snippet and returns the success envelope.
func (c *Client) Explain(ctx context.Context, req core.ExplainRequest) (*core.ExplainResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var result core.ExplainResult
	if err := c.do(ctx, http.MethodPost, explainPath, body, &result); err != nil {
		return nil, err
	}
	if result.ExplainResponse == nil || result.Response == nil {
		return nil, errors.New("server response missing explanation")
	}
	return &result, nil
}

// Quota asks the server for the caller's remaining quota without spending it.
func (c *Client) Quota(ctx context.Context) (*core.QuotaStatus, error) {
	var status core.QuotaStatus
	if err := c.do(ctx, http.MethodGet, quotaPath, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	if c == nil || c.BaseURL == "" {
		return errors.New("server url is not configured")
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{
			Message:    errorMessage(respBody),
			RetryAfter: retryAfterHeader(resp),
		}
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		return &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage reads the flat {"error": "..."} body, falling back to the
// nested envelope used by non-gate routes and then to the raw text.
func errorMessage(body []byte) string {
	var flat struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &flat); err == nil && len(flat.Error) > 0 {
		var msg string
		if err := json.Unmarshal(flat.Error, &msg); err == nil {
			return strings.TrimSpace(msg)
		}
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(flat.Error, &nested); err == nil && nested.Message != "" {
			return strings.TrimSpace(nested.Message)
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBodyLength {
		msg = msg[:maxErrorBodyLength]
	}
	return msg
}

func retryAfterHeader(resp *http.Response) time.Duration {
	retry := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if retry == "" {
		return 0
	}
	if seconds, err := time.ParseDuration(retry + "s"); err == nil {
		return seconds
	}
	if parsed, err := http.ParseTime(retry); err == nil {
		return time.Until(parsed)
	}
	return 0
}
