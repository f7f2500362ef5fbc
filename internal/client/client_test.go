package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codexplain/codexplain/internal/core"
)

func TestExplainDecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, explainPath, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req core.ExplainRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "x := 1", req.Code)
		assert.Equal(t, "go", req.Language)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":{"analyzedLanguage":"go","summary":"assigns","context":"","lineByLine":[],"furtherReading":[]},"originalLanguage":"go","originalCode":"x := 1","remainingRequests":4}`))
	}))
	defer srv.Close()

	result, err := New(srv.URL+"/", time.Second).Explain(context.Background(), core.ExplainRequest{Code: "x := 1", Language: "go"})
	require.NoError(t, err)
	require.Equal(t, 4, result.RemainingRequests)
	require.Equal(t, "assigns", result.Response.Summary)
	require.Equal(t, "x := 1", result.OriginalCode)
}

func TestExplainRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"Rate limit exceeded. Please try again later."}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Explain(context.Background(), core.ExplainRequest{Code: "x"})
	require.ErrorIs(t, err, ErrRateLimited)

	var rle *RateLimitError
	require.True(t, errors.As(err, &rle))
	require.Equal(t, "Rate limit exceeded. Please try again later.", rle.Message)
	require.Equal(t, 30*time.Second, rle.RetryAfter)
}

func TestExplainServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Explanation service temporarily unavailable"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Explain(context.Background(), core.ExplainRequest{Code: "x"})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	require.Equal(t, "Explanation service temporarily unavailable", statusErr.Message)
	require.NotErrorIs(t, err, ErrRateLimited)
}

func TestErrorMessageReadsNestedEnvelope(t *testing.T) {
	body := []byte(`{"error":{"code":"NOT_FOUND","message":"Route not found"}}`)
	require.Equal(t, "Route not found", errorMessage(body))
	require.Equal(t, "plain text", errorMessage([]byte(" plain text ")))
}

func TestExplainRejectsEnvelopeWithoutExplanation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"remainingRequests":3}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Explain(context.Background(), core.ExplainRequest{Code: "x"})
	require.Error(t, err)
}

func TestQuota(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, quotaPath, r.URL.Path)
		_, _ = w.Write([]byte(`{"limit":10,"remainingRequests":6,"windowSeconds":3600}`))
	}))
	defer srv.Close()

	status, err := New(srv.URL, time.Second).Quota(context.Background())
	require.NoError(t, err)
	require.Equal(t, core.QuotaStatus{Limit: 10, RemainingRequests: 6, WindowSeconds: 3600}, *status)
}

func TestMissingServerURL(t *testing.T) {
	_, err := New("  ", time.Second).Quota(context.Background())
	require.Error(t, err)
}

func TestUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(url, time.Second).Quota(context.Background())
	require.ErrorIs(t, err, ErrUnreachable)
}
