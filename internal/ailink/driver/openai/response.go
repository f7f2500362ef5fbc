package openai

import (
	"errors"
	"fmt"

	"github.com/codexplain/codexplain/internal/ailink/content"
	"github.com/codexplain/codexplain/internal/ailink/driver"
)

// ErrRefused is returned when the model declines to explain the code.
var ErrRefused = errors.New("model refused")

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *driver.Usage `json:"usage,omitempty"`
}

// toDriverResponse keeps only the first choice; explanations are requested
// with n=1.
func toDriverResponse(resp *chatCompletionResponse) (*driver.Response, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, errors.New("empty response choices")
	}
	first := resp.Choices[0]
	if first.Message.Refusal != "" {
		return nil, fmt.Errorf("%w: %s", ErrRefused, first.Message.Refusal)
	}
	return &driver.Response{
		Content:      []content.ContentBlock{{Type: content.ContentTypeText, Text: first.Message.Content}},
		FinishReason: first.FinishReason,
		Usage:        resp.Usage,
	}, nil
}
