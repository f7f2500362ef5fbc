package ailink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/codexplain/codexplain/internal/ailink/content"
	"github.com/codexplain/codexplain/internal/ailink/driver"
	"github.com/codexplain/codexplain/internal/ailink/driver/openai"
	"github.com/codexplain/codexplain/internal/ailink/prompt"
	"github.com/codexplain/codexplain/internal/core"
	"github.com/codexplain/codexplain/internal/metrics"
)

const (
	defaultTimeout = 60 * time.Second
	maxTimeout     = 5 * time.Minute
)

// ErrNotConfigured is returned when no provider API key is available.
var ErrNotConfigured = fmt.Errorf("ailink provider not configured: %w", core.ErrServiceUnavailable)

// Explainer turns explain payloads into structured explanations using a
// completion provider.
type Explainer struct {
	cfg     Config
	driver  driver.Driver
	prompts prompt.Registry
	pacer   *rate.Limiter
}

// NewExplainer builds an explainer for cfg. A nil drv selects the driver named
// by cfg.Provider.
func NewExplainer(cfg Config, prompts prompt.Registry, drv driver.Driver) (*Explainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if prompts == nil {
		return nil, errors.New("ailink prompt registry not configured")
	}
	if strings.TrimSpace(cfg.PromptSlug) == "" {
		cfg.PromptSlug = prompt.CodeExplainSlug
	}
	if _, err := prompts.Get(cfg.PromptSlug); err != nil {
		return nil, err
	}
	if drv == nil {
		client := openai.NewClient(cfg.BaseURL, cfg.APIKey)
		client.Timeout = cfg.Timeout
		drv = client
	}

	e := &Explainer{cfg: cfg, driver: drv, prompts: prompts}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		e.pacer = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return e, nil
}

// Configured reports whether the explainer can reach its provider.
func (e *Explainer) Configured() bool {
	return e != nil && e.cfg.Configured()
}

// Explain decodes payload, asks the provider for an explanation and returns
// it alongside the original input.
func (e *Explainer) Explain(ctx context.Context, payload json.RawMessage) (*core.ExplainResponse, error) {
	req, err := DecodeRequest(payload)
	if err != nil {
		return nil, err
	}
	if !e.Configured() {
		return nil, ErrNotConfigured
	}

	def, err := e.prompts.Get(e.cfg.PromptSlug)
	if err != nil {
		return nil, err
	}
	userPrompt, err := def.Render(map[string]string{"code": req.Code, "language": req.Language})
	if err != nil {
		return nil, err
	}

	driverReq := &driver.Request{
		Model: e.cfg.Model,
		Messages: []content.Message{
			content.TextMessage(content.RoleSystem, def.Config.SystemTemplate),
			content.TextMessage(content.RoleUser, userPrompt),
		},
		ResponseFormat: responseFormatForProvider(e.driver.Name(), def),
		Temperature:    def.Config.Temperature,
		MaxTokens:      def.Config.MaxTokens,
		PromptSlug:     def.Config.Slug,
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout())
	defer cancel()

	resp, err := e.complete(ctx, driverReq)
	if err != nil && isOpenAIUnsupportedSchemaError(err) && fallbackToJSONObject(driverReq) {
		resp, err = e.complete(ctx, driverReq)
	}
	if err != nil {
		return nil, mapProviderError(err)
	}

	if resp.Usage != nil {
		metrics.RecordProviderTokens(e.driver.Name(), e.cfg.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
	if resp.FinishReason == driver.FinishReasonLength {
		return nil, &Error{Code: CodeTruncated, Message: "provider response was truncated"}
	}

	raw := strings.TrimSpace(resp.Text())
	if raw == "" {
		return nil, &Error{Code: CodeEmptyResponse, Message: "empty response content"}
	}

	explanation, err := decodeExplanation(raw)
	if err != nil {
		return nil, &Error{
			Code:    CodeMalformedResponse,
			Message: "provider response does not match the explanation schema",
			Raw:     captureRaw(e.cfg, raw),
			Err:     err,
		}
	}

	return &core.ExplainResponse{
		Response:         explanation,
		OriginalLanguage: req.Language,
		OriginalCode:     req.Code,
	}, nil
}

func (e *Explainer) complete(ctx context.Context, req *driver.Request) (*driver.Response, error) {
	if e.pacer != nil {
		if err := e.pacer.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for provider slot: %w", err)
		}
	}
	return e.driver.Complete(ctx, req)
}

func (e *Explainer) timeout() time.Duration {
	d := e.cfg.Timeout
	if d <= 0 {
		d = defaultTimeout
	}
	if d > maxTimeout {
		d = maxTimeout
	}
	return d
}

// DecodeRequest parses and validates an explain payload.
func DecodeRequest(payload json.RawMessage) (core.ExplainRequest, error) {
	var req core.ExplainRequest
	if len(bytes.TrimSpace(payload)) == 0 {
		return req, fmt.Errorf("%w: request body is required", core.ErrInvalidInput)
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return req, fmt.Errorf("%w: malformed JSON body", core.ErrInvalidInput)
	}
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

func decodeExplanation(raw string) (*core.Explanation, error) {
	var explanation core.Explanation
	if err := json.Unmarshal([]byte(raw), &explanation); err != nil {
		return nil, fmt.Errorf("decode explanation: %w", err)
	}
	if strings.TrimSpace(explanation.Summary) == "" {
		return nil, errors.New("decode explanation: summary is missing")
	}
	if explanation.LineByLine == nil {
		explanation.LineByLine = []core.LineExplanation{}
	}
	if explanation.FurtherReading == nil {
		explanation.FurtherReading = []core.Reference{}
	}
	return &explanation, nil
}
