package ailink

import (
	"encoding/json"
	"unicode/utf8"
)

// captureRaw returns the provider payload to attach to decode failures, or
// nil when capture is disabled. The payload is cut at a rune boundary so the
// captured prefix stays valid UTF-8 in logs.
func captureRaw(cfg Config, raw string) json.RawMessage {
	limit := cfg.Debug.CaptureRawMaxBytes
	if !cfg.Debug.CaptureRawEnabled || limit <= 0 {
		return nil
	}
	if len(raw) > limit {
		raw = raw[:limit]
		for len(raw) > 0 && !utf8.ValidString(raw) {
			raw = raw[:len(raw)-1]
		}
	}
	return json.RawMessage(raw)
}
