package output

import (
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/codexplain/codexplain/internal/core"
)

const explanationColumnWidth = 60

// TableFormatter renders results as ASCII tables.
type TableFormatter struct{}

// FormatExplanation renders a summary table, the line-by-line walkthrough and
// any further reading.
func (f *TableFormatter) FormatExplanation(result *core.ExplainResult) (string, error) {
	exp := explanationOf(result)
	if exp == nil {
		return "", nil
	}

	var sections []string

	summary := table.NewWriter()
	summary.SetStyle(table.StyleRounded)
	summary.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: explanationColumnWidth + 20},
	})
	summary.AppendRow(table.Row{"Language", exp.AnalyzedLanguage})
	summary.AppendRow(table.Row{"Summary", exp.Summary})
	if strings.TrimSpace(exp.Context) != "" {
		summary.AppendRow(table.Row{"Context", exp.Context})
	}
	summary.AppendFooter(table.Row{"Quota", quotaLine(result)})
	sections = append(sections, summary.Render())

	if len(exp.LineByLine) > 0 {
		lines := table.NewWriter()
		lines.SetStyle(table.StyleRounded)
		lines.AppendHeader(table.Row{"Lines", "Code", "Explanation"})
		lines.SetColumnConfigs([]table.ColumnConfig{
			{Number: 1, Align: text.AlignRight},
			{Number: 2, WidthMax: explanationColumnWidth},
			{Number: 3, WidthMax: explanationColumnWidth},
		})
		for _, item := range exp.LineByLine {
			lines.AppendRow(table.Row{lineRange(item), item.LineText, item.LineExplanation})
		}
		sections = append(sections, lines.Render())
	}

	if len(exp.FurtherReading) > 0 {
		refs := table.NewWriter()
		refs.SetStyle(table.StyleRounded)
		refs.AppendHeader(table.Row{"Further reading", "URL"})
		for _, ref := range exp.FurtherReading {
			refs.AppendRow(table.Row{ref.Title, ref.URL})
		}
		sections = append(sections, refs.Render())
	}

	return strings.Join(sections, "\n\n"), nil
}
