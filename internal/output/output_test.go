package output

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codexplain/codexplain/internal/core"
)

func sampleResult() *core.ExplainResult {
	return &core.ExplainResult{
		ExplainResponse: &core.ExplainResponse{
			Response: &core.Explanation{
				AnalyzedLanguage: "go",
				Summary:          "Prints a greeting.",
				Context:          "Entry point of a command.",
				LineByLine: []core.LineExplanation{
					{LineStart: 1, LineEnd: 1, LineText: "package main", LineExplanation: "Declares the package."},
					{LineStart: 3, LineEnd: 5, LineText: "func main() { fmt.Println(\"hi\") }", LineExplanation: "Runs | prints."},
				},
				FurtherReading: []core.Reference{
					{Title: "Tour of Go", URL: "https://go.dev/tour", Description: "Basics"},
				},
			},
			OriginalLanguage: "go",
			OriginalCode:     "package main",
		},
		RemainingRequests: 7,
	}
}

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("table")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	format, err = ParseFormat("JSON")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, format)

	format, err = ParseFormat("md")
	require.NoError(t, err)
	require.Equal(t, FormatMarkdown, format)

	format, err = ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	_, err = ParseFormat("csv")
	require.Error(t, err)
}

func TestJSONFormatterMatchesEnvelope(t *testing.T) {
	rendered, err := NewFormatter(FormatJSON).FormatExplanation(sampleResult())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(rendered), &decoded))
	require.Equal(t, float64(7), decoded["remainingRequests"])
	require.Equal(t, "go", decoded["originalLanguage"])
	response, ok := decoded["response"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "Prints a greeting.", response["summary"])
}

func TestJSONFormatterKeepsOperatorsReadable(t *testing.T) {
	result := sampleResult()
	result.Response.Summary = "Returns a < b && b > 0."

	rendered, err := (&JSONFormatter{}).FormatExplanation(result)
	require.NoError(t, err)
	require.Contains(t, rendered, "a < b && b > 0")
	require.NotContains(t, rendered, "\n")
	require.False(t, strings.HasSuffix(rendered, "\n"))
}

func TestTableFormatter(t *testing.T) {
	rendered, err := NewFormatter(FormatTable).FormatExplanation(sampleResult())
	require.NoError(t, err)
	require.Contains(t, rendered, "Prints a greeting.")
	require.Contains(t, rendered, "3-5")
	require.Contains(t, rendered, "Tour of Go")
	require.Contains(t, rendered, "7 request(s) remaining")
}

func TestMarkdownFormatter(t *testing.T) {
	rendered, err := NewFormatter(FormatMarkdown).FormatExplanation(sampleResult())
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(rendered, "## Explanation (go)"))
	require.Contains(t, rendered, "| 1 | `package main` | Declares the package. |")
	require.Contains(t, rendered, "Runs \\| prints.")
	require.Contains(t, rendered, "- [Tour of Go](https://go.dev/tour) - Basics")
	require.Contains(t, rendered, "_7 request(s) remaining_")
}

func TestFormattersHandleEmptyResult(t *testing.T) {
	for _, format := range []Format{FormatTable, FormatJSON, FormatMarkdown} {
		rendered, err := NewFormatter(format).FormatExplanation(nil)
		require.NoError(t, err)
		require.Empty(t, rendered)
	}
}

func TestRenderQuota(t *testing.T) {
	resets := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	reports := []QuotaReport{
		{Scope: ScopeLocal, Limit: 10, Remaining: 3, WindowSeconds: 3600, ResetsAt: &resets},
		{Scope: ScopeServer, Limit: 10, Remaining: 8, WindowSeconds: 3600},
	}

	rendered, err := RenderQuota(FormatTable, reports)
	require.NoError(t, err)
	require.Contains(t, rendered, "local")
	require.Contains(t, rendered, "1h0m0s")

	rendered, err = RenderQuota(FormatJSON, reports)
	require.NoError(t, err)
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal([]byte(rendered), &decoded))
	require.Len(t, decoded, 2)
	require.Equal(t, float64(3), decoded[0]["remainingRequests"])
	require.NotContains(t, decoded[1], "resetsAt")

	rendered, err = RenderQuota(FormatMarkdown, reports)
	require.NoError(t, err)
	require.Contains(t, rendered, "| server | 10 | 8 | 1h0m0s | - |")
}
