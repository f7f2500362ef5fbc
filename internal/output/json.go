package output

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/codexplain/codexplain/internal/core"
)

// JSONFormatter renders results in the same shape as the API envelope.
type JSONFormatter struct {
	Indent bool
}

// FormatExplanation renders an explain result as JSON. HTML escaping is off
// because explanations routinely quote operators such as < and &&.
func (f *JSONFormatter) FormatExplanation(result *core.ExplainResult) (string, error) {
	if result == nil {
		return "", nil
	}
	return encodeJSON(result, f.Indent)
}

func encodeJSON(v any, indent bool) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
