package ailink

import (
	"encoding/json"
	"fmt"
)

// ProviderOpenAI selects the OpenAI chat completions driver.
const ProviderOpenAI = "openai"

// Error codes reported by Error.
const (
	CodeProviderTimeout     = "AILINK_PROVIDER_TIMEOUT"
	CodeProviderAuth        = "AILINK_PROVIDER_AUTH"
	CodeProviderRateLimit   = "AILINK_PROVIDER_RATE_LIMIT"
	CodeProviderUnavailable = "AILINK_PROVIDER_UNAVAILABLE"
	CodeProviderBadRequest  = "AILINK_PROVIDER_BAD_REQUEST"
	CodeProviderError       = "AILINK_PROVIDER_ERROR"
	CodeTruncated           = "AILINK_RESPONSE_TRUNCATED"
	CodeEmptyResponse       = "AILINK_RESPONSE_EMPTY"
	CodeMalformedResponse   = "AILINK_RESPONSE_MALFORMED"
)

// Error is a classified provider failure. Details and Raw may carry provider
// text and must not be shown to end users. Raw is only set for malformed
// responses when raw capture is enabled.
type Error struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details string          `json:"details,omitempty"`
	Raw     json.RawMessage `json:"raw,omitempty"`
	Err     error           `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return "ailink error"
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
