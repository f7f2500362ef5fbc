package output

import (
	"fmt"
	"strings"

	"github.com/codexplain/codexplain/internal/core"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Formatter renders explain results.
type Formatter interface {
	FormatExplanation(result *core.ExplainResult) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

// lineRange renders "3" or "3-5".
func lineRange(item core.LineExplanation) string {
	if item.LineEnd <= item.LineStart {
		return fmt.Sprintf("%d", item.LineStart)
	}
	return fmt.Sprintf("%d-%d", item.LineStart, item.LineEnd)
}

func explanationOf(result *core.ExplainResult) *core.Explanation {
	if result == nil || result.ExplainResponse == nil {
		return nil
	}
	return result.Response
}

func quotaLine(result *core.ExplainResult) string {
	return fmt.Sprintf("%d request(s) remaining", result.RemainingRequests)
}
