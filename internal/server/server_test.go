package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/codexplain/codexplain/internal/clock"
	"github.com/codexplain/codexplain/internal/core"
	"github.com/codexplain/codexplain/internal/core/ratelimit"
	apperrors "github.com/codexplain/codexplain/internal/errors"
	"github.com/codexplain/codexplain/internal/server/gate"
)

type countingExplainer struct {
	calls int
}

func (c *countingExplainer) Explain(_ context.Context, payload json.RawMessage) (*core.ExplainResponse, error) {
	c.calls++
	return &core.ExplainResponse{Response: &core.Explanation{Summary: "ok"}, OriginalCode: string(payload)}, nil
}

func newGatedServer(t *testing.T, max int) (*Server, *countingExplainer) {
	t.Helper()
	limiter, err := ratelimit.NewServerLimiter(ratelimit.ServerOptions{
		Quota: ratelimit.Quota{Max: max, Window: time.Hour},
		Clock: clock.NewManual(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("limiter: %v", err)
	}
	explainer := &countingExplainer{}
	g, err := gate.New(gate.Options{Limiter: limiter, Explainer: explainer})
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	return New(Options{Gate: g}), explainer
}

func TestServerUsesStandardErrorHandlers(t *testing.T) {
	srv := New(Options{Host: "127.0.0.1"})

	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}

	var body apperrors.HTTPErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}

	if body.Error.Code != "NOT_FOUND" {
		t.Fatalf("expected error code NOT_FOUND, got %s", body.Error.Code)
	}
}

func TestServerWithoutGateDoesNotMountAPI(t *testing.T) {
	srv := New(Options{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/explain", strings.NewReader(`{}`)))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestServerExplainRouteEnforcesQuota(t *testing.T) {
	srv, explainer := newGatedServer(t, 2)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/explain", strings.NewReader(`{"code":"x"}`))
		req.Header.Set("X-Forwarded-For", "203.0.113.1, 10.0.0.1")
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := send(); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	rec := send()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"error":"Rate limit exceeded. Please try again later."}` {
		t.Fatalf("unexpected 429 body: %s", got)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected request id header on rejected request")
	}
	if explainer.calls != 2 {
		t.Fatalf("expected 2 downstream calls, got %d", explainer.calls)
	}
}

func TestServerKeepsRemoteAddr(t *testing.T) {
	srv := New(Options{})
	var seen string
	srv.router.Get("/remote", func(_ http.ResponseWriter, r *http.Request) { seen = r.RemoteAddr })

	req := httptest.NewRequest(http.MethodGet, "/remote", nil)
	req.RemoteAddr = "192.0.2.10:4321"
	req.Header.Set("True-Client-IP", "198.51.100.1")
	req.Header.Set("X-Forwarded-For", "203.0.113.1")
	srv.Handler().ServeHTTP(httptest.NewRecorder(), req)

	if seen != "192.0.2.10:4321" {
		t.Fatalf("expected RemoteAddr to be untouched, got %q", seen)
	}
}

func TestServerQuotaRoute(t *testing.T) {
	srv, _ := newGatedServer(t, 5)

	req := httptest.NewRequest(http.MethodGet, "/api/quota", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body core.QuotaStatus
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Limit != 5 || body.RemainingRequests != 5 || body.WindowSeconds != 3600 {
		t.Fatalf("unexpected quota body: %+v", body)
	}
}

func TestServerExplainRouteRejectsGet(t *testing.T) {
	srv, explainer := newGatedServer(t, 5)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/explain", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if explainer.calls != 0 {
		t.Fatalf("expected no downstream calls, got %d", explainer.calls)
	}
}

func TestServerAdminEndpointRequiresToken(t *testing.T) {
	srv := New(Options{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/signal", nil))
	if rec.Code == http.StatusOK {
		t.Fatal("expected admin endpoint to be absent without a token")
	}
}

func TestServerOptionalRoutes(t *testing.T) {
	cases := []struct {
		name string
		opts Options
		path string
		want int
	}{
		{name: "health mounted by default", opts: Options{}, path: "/health/live", want: http.StatusOK},
		{name: "health disabled", opts: Options{DisableHealth: true}, path: "/health/live", want: http.StatusNotFound},
		{name: "pprof off by default", opts: Options{}, path: "/debug/pprof/", want: http.StatusNotFound},
		{name: "pprof enabled", opts: Options{Pprof: true}, path: "/debug/pprof/", want: http.StatusOK},
		{name: "version", opts: Options{}, path: "/version", want: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			New(tc.opts).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
			if rec.Code != tc.want {
				t.Fatalf("GET %s: expected %d, got %d", tc.path, tc.want, rec.Code)
			}
		})
	}
}
