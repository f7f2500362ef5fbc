package driver

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// TraceEntry is one NDJSON line describing a provider round trip. Request
// bodies carry the submitted source code, so trace files stay 0600.
type TraceEntry struct {
	Timestamp   time.Time       `json:"timestamp"`
	Driver      string          `json:"driver"`
	Endpoint    string          `json:"endpoint"`
	Model       string          `json:"model,omitempty"`
	PromptSlug  string          `json:"prompt_slug,omitempty"`
	RequestBody json.RawMessage `json:"request_body,omitempty"`
	StatusCode  int             `json:"status_code,omitempty"`
	Response    json.RawMessage `json:"response,omitempty"`
	Error       string          `json:"error,omitempty"`
	DurationMs  int64           `json:"duration_ms"`
}

// Tracer appends trace entries to a writer as NDJSON.
type Tracer struct {
	mu     sync.Mutex
	w      io.WriteCloser
	closed bool
}

var activeTracer atomic.Pointer[Tracer]

// EnableTracing starts appending traces to path and returns a function that
// stops tracing and closes the file.
func EnableTracing(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) // #nosec G304 -- operator-provided path
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	_ = activeTracer.Swap(&Tracer{w: f}).Close()
	return DisableTracing, nil
}

// DisableTracing stops tracing and closes the trace file.
func DisableTracing() {
	_ = activeTracer.Swap(nil).Close()
}

// IsTracingEnabled returns true if tracing is active.
func IsTracingEnabled() bool {
	return activeTracer.Load() != nil
}

// Trace records entry on the active tracer, if any.
func Trace(entry TraceEntry) {
	activeTracer.Load().Write(entry)
}

// Write records a trace entry. Entries written after Close are dropped.
func (t *Tracer) Write(entry TraceEntry) {
	if t == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		_, _ = t.w.Write(append(line, '\n'))
	}
}

// Close closes the underlying writer once.
func (t *Tracer) Close() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.w.Close()
}
