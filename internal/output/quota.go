package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Quota scopes.
const (
	ScopeLocal  = "local"
	ScopeServer = "server"
)

// QuotaReport is one quota view: the local advisory state or the server's.
type QuotaReport struct {
	Scope         string     `json:"scope"`
	Limit         int        `json:"limit"`
	Remaining     int        `json:"remainingRequests"`
	WindowSeconds int64      `json:"windowSeconds"`
	ResetsAt      *time.Time `json:"resetsAt,omitempty"`
}

// RenderQuota renders quota reports in the requested format.
func RenderQuota(format Format, reports []QuotaReport) (string, error) {
	switch format {
	case FormatJSON:
		return encodeJSON(reports, true)
	case FormatMarkdown:
		var sb strings.Builder
		sb.WriteString("| Scope | Limit | Remaining | Window | Resets |\n")
		sb.WriteString("|-------|------:|----------:|--------|--------|\n")
		for _, r := range reports {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %s | %s |\n",
				r.Scope, r.Limit, r.Remaining, windowLabel(r.WindowSeconds), resetLabel(r.ResetsAt)))
		}
		return sb.String(), nil
	default:
		tw := table.NewWriter()
		tw.SetStyle(table.StyleRounded)
		tw.AppendHeader(table.Row{"Scope", "Limit", "Remaining", "Window", "Resets"})
		for _, r := range reports {
			tw.AppendRow(table.Row{r.Scope, r.Limit, r.Remaining, windowLabel(r.WindowSeconds), resetLabel(r.ResetsAt)})
		}
		return tw.Render(), nil
	}
}

func windowLabel(seconds int64) string {
	if seconds <= 0 {
		return "-"
	}
	return (time.Duration(seconds) * time.Second).String()
}

func resetLabel(at *time.Time) string {
	if at == nil || at.IsZero() {
		return "-"
	}
	return at.Local().Format(time.RFC3339)
}
