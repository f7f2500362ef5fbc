package driver

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracingWritesNDJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.ndjson")
	stop, err := EnableTracing(path)
	require.NoError(t, err)
	require.True(t, IsTracingEnabled())

	Trace(TraceEntry{Driver: "openai", Endpoint: "/chat/completions", StatusCode: 200, DurationMs: 12})
	Trace(TraceEntry{Driver: "openai", Endpoint: "/chat/completions", Error: "boom"})
	stop()
	require.False(t, IsTracingEnabled())

	// Dropped after stop.
	Trace(TraceEntry{Driver: "openai"})

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() // nolint:errcheck

	var entries []TraceEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e TraceEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		entries = append(entries, e)
	}
	require.Len(t, entries, 2)
	assert.Equal(t, 200, entries[0].StatusCode)
	assert.False(t, entries[0].Timestamp.IsZero())
	assert.Equal(t, "boom", entries[1].Error)
}

func TestProviderErrorRetryable(t *testing.T) {
	assert.True(t, (&ProviderError{StatusCode: 429}).Retryable())
	assert.True(t, (&ProviderError{StatusCode: 503}).Retryable())
	assert.False(t, (&ProviderError{StatusCode: 400}).Retryable())
	assert.Contains(t, (&ProviderError{Provider: "openai", StatusCode: 401, Message: "nope"}).Error(), "status 401")
}

type countingWriter struct {
	writes, closes int
}

func (c *countingWriter) Write(p []byte) (int, error) { c.writes++; return len(p), nil }
func (c *countingWriter) Close() error                { c.closes++; return nil }

func TestTracerDropsWritesAfterClose(t *testing.T) {
	w := &countingWriter{}
	tracer := &Tracer{w: w}

	tracer.Write(TraceEntry{Driver: "openai"})
	require.NoError(t, tracer.Close())
	require.NoError(t, tracer.Close())
	tracer.Write(TraceEntry{Driver: "openai"})

	assert.Equal(t, 1, w.writes)
	assert.Equal(t, 1, w.closes)
}

func TestTraceFileIsPrivate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.ndjson")
	stop, err := EnableTracing(path)
	require.NoError(t, err)
	defer stop()

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
