package server

import (
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codexplain/codexplain/internal/core/ratelimit"
	"github.com/codexplain/codexplain/internal/metrics"
	"github.com/codexplain/codexplain/internal/observability"
	"github.com/codexplain/codexplain/internal/server/gate"
	"github.com/codexplain/codexplain/internal/server/handlers"
)

// isPermissionError normalizes OS-specific permission errors so tests can
// skip when loopback sockets are blocked.
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"permission denied", "operation not permitted", "not permitted"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

// initMetricsOrSkip starts the exporter on a free port and tears the global
// telemetry state down afterwards.
func initMetricsOrSkip(t *testing.T) {
	t.Helper()

	if err := observability.InitMetrics("test", 0); err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping metrics tests due to sandbox permissions: %v", err)
		}
		require.NoError(t, err)
	}

	t.Cleanup(func() {
		if observability.PrometheusExporter != nil {
			_ = observability.PrometheusExporter.Stop()
			observability.PrometheusExporter = nil
		}
		observability.TelemetrySystem = nil
	})
}

func startLoopback(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping server setup: %v", err)
		}
		require.NoError(t, err)
	}
	ts := &httptest.Server{Listener: listener, Config: &http.Server{Handler: handler}}
	ts.Start()
	t.Cleanup(ts.Close)
	return ts
}

func scrape(t *testing.T, client *http.Client, url string) string {
	t.Helper()
	resp, err := client.Get(url + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close() // nolint:errcheck // test cleanup
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestQuotaMetricsEndToEnd(t *testing.T) {
	observability.InitServerLogger(observability.ServerLoggerConfig{Service: "test", Level: "info"})
	initMetricsOrSkip(t)

	limiter, err := ratelimit.NewServerLimiter(ratelimit.ServerOptions{
		Quota: ratelimit.Quota{Max: 2, Window: time.Hour},
		OnDecision: func(d ratelimit.Decision) {
			metrics.RecordRateLimitDecision(metrics.ScopeServer, d.Allowed)
		},
	})
	require.NoError(t, err)

	explainer := &countingExplainer{}
	g, err := gate.New(gate.Options{Limiter: limiter, Explainer: explainer})
	require.NoError(t, err)

	srv := New(Options{
		Host:        "127.0.0.1",
		Gate:        g,
		Health:      handlers.NewHealthManager("test"),
		MetricsPort: observability.GetMetricsPort(),
	})
	ts := startLoopback(t, srv.Handler())
	client := ts.Client()

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/explain", strings.NewReader(`{"code":"x","language":"go"}`))
		require.NoError(t, err)
		req.Header.Set("X-Forwarded-For", "203.0.113.9")
		resp, err := client.Do(req)
		require.NoError(t, err)
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		statuses = append(statuses, resp.StatusCode)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, statuses)
	assert.Equal(t, 2, explainer.calls)

	body := scrape(t, client, ts.URL)
	assert.Contains(t, body, "test_ratelimit_decisions_total")
	assert.Contains(t, body, "test_http_requests_total")
	assert.Contains(t, body, "test_http_request_duration_ms")
}
