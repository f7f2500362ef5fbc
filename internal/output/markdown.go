package output

import (
	"fmt"
	"strings"

	"github.com/codexplain/codexplain/internal/core"
)

// MarkdownFormatter renders results as Markdown.
type MarkdownFormatter struct{}

// FormatExplanation renders an explain result as Markdown.
func (f *MarkdownFormatter) FormatExplanation(result *core.ExplainResult) (string, error) {
	exp := explanationOf(result)
	if exp == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Explanation (%s)\n\n", exp.AnalyzedLanguage))
	sb.WriteString(exp.Summary + "\n")
	if strings.TrimSpace(exp.Context) != "" {
		sb.WriteString("\n" + exp.Context + "\n")
	}

	if len(exp.LineByLine) > 0 {
		sb.WriteString("\n| Lines | Code | Explanation |\n")
		sb.WriteString("|------:|------|-------------|\n")
		for _, item := range exp.LineByLine {
			sb.WriteString(fmt.Sprintf("| %s | `%s` | %s |\n",
				lineRange(item),
				escapeMarkdownCell(strings.ReplaceAll(item.LineText, "`", "'")),
				escapeMarkdownCell(item.LineExplanation),
			))
		}
	}

	if len(exp.FurtherReading) > 0 {
		sb.WriteString("\n### Further reading\n\n")
		for _, ref := range exp.FurtherReading {
			sb.WriteString(fmt.Sprintf("- [%s](%s)", ref.Title, ref.URL))
			if ref.Description != "" {
				sb.WriteString(" - " + ref.Description)
			}
			sb.WriteString("\n")
		}
	}

	sb.WriteString(fmt.Sprintf("\n_%s_\n", quotaLine(result)))
	return sb.String(), nil
}

// escapeMarkdownCell keeps a value inside one table cell.
func escapeMarkdownCell(value string) string {
	value = strings.ReplaceAll(value, "|", "\\|")
	return strings.ReplaceAll(value, "\n", " ")
}
