package openai

import (
	"errors"
	"fmt"
	"strings"

	"github.com/codexplain/codexplain/internal/ailink/content"
	"github.com/codexplain/codexplain/internal/ailink/driver"
)

// chatCompletionRequest is the subset of the chat completions body the
// explainer uses. Content is always a plain string.
type chatCompletionRequest struct {
	Model          string                 `json:"model"`
	Messages       []chatMessage          `json:"messages"`
	ResponseFormat *driver.ResponseFormat `json:"response_format,omitempty"`
	Temperature    *float64               `json:"temperature,omitempty"`
	MaxTokens      *int                   `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func buildChatRequest(req *driver.Request) (*chatCompletionRequest, error) {
	switch {
	case req == nil:
		return nil, errors.New("request is required")
	case strings.TrimSpace(req.Model) == "":
		return nil, errors.New("model is required")
	case len(req.Messages) == 0:
		return nil, errors.New("messages are required")
	}

	messages := make([]chatMessage, 0, len(req.Messages))
	for i, msg := range req.Messages {
		text, err := flattenBlocks(msg.Content)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		messages = append(messages, chatMessage{Role: msg.Role, Content: text})
	}

	return &chatCompletionRequest{
		Model:          req.Model,
		Messages:       messages,
		ResponseFormat: req.ResponseFormat,
		Temperature:    req.Temperature,
		MaxTokens:      req.MaxTokens,
	}, nil
}

// flattenBlocks joins text and JSON blocks with blank lines. Source code and
// instructions are the only payloads, so nothing is lost.
func flattenBlocks(blocks []content.ContentBlock) (string, error) {
	parts := make([]string, 0, len(blocks))
	for _, block := range blocks {
		switch block.Type {
		case content.ContentTypeText, content.ContentTypeJSON:
			parts = append(parts, block.Text)
		default:
			return "", fmt.Errorf("unsupported content type %q", block.Type)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}
