package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidInput marks a request payload the explainer cannot act on.
	ErrInvalidInput = errors.New("invalid input")
	// ErrServiceUnavailable marks an explainer that cannot serve any request,
	// such as one without provider credentials.
	ErrServiceUnavailable = errors.New("service unavailable")
)

// DefaultLanguage is sent when the caller did not name a language.
const DefaultLanguage = "auto"

// ExplainRequest is the payload accepted by the explain endpoint.
type ExplainRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

// Normalize trims the language and applies the default.
func (r ExplainRequest) Normalize() ExplainRequest {
	r.Language = strings.TrimSpace(r.Language)
	if r.Language == "" {
		r.Language = DefaultLanguage
	}
	return r
}

// Validate rejects payloads without code.
func (r ExplainRequest) Validate() error {
	if strings.TrimSpace(r.Code) == "" {
		return fmt.Errorf("%w: code is required", ErrInvalidInput)
	}
	return nil
}

// LineExplanation describes one line or a contiguous block of lines.
type LineExplanation struct {
	LineStart       int    `json:"lineStart"`
	LineEnd         int    `json:"lineEnd"`
	LineText        string `json:"lineText"`
	LineExplanation string `json:"lineExplanation"`
}

// Reference is a further-reading suggestion.
type Reference struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// Explanation is the structured feedback produced for a code snippet.
type Explanation struct {
	AnalyzedLanguage string            `json:"analyzedLanguage"`
	Summary          string            `json:"summary"`
	Context          string            `json:"context"`
	LineByLine       []LineExplanation `json:"lineByLine"`
	FurtherReading   []Reference       `json:"furtherReading"`
}

// ExplainResponse pairs an explanation with the input it describes.
type ExplainResponse struct {
	Response         *Explanation `json:"response"`
	OriginalLanguage string       `json:"originalLanguage"`
	OriginalCode     string       `json:"originalCode"`
}

// ExplainResult is the success envelope returned to callers: the
// explanation plus the caller's remaining quota.
type ExplainResult struct {
	*ExplainResponse
	RemainingRequests int `json:"remainingRequests"`
}

// QuotaStatus reports a caller's quota without consuming it.
type QuotaStatus struct {
	Limit             int   `json:"limit"`
	RemainingRequests int   `json:"remainingRequests"`
	WindowSeconds     int64 `json:"windowSeconds"`
}
