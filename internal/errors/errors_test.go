package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codexplain/codexplain/internal/server/middleware"
)

func TestHTTPStatusFromCode(t *testing.T) {
	cases := map[string]int{
		CodeInvalidInput:       http.StatusBadRequest,
		CodePayloadTooLarge:    http.StatusRequestEntityTooLarge,
		CodeRateLimited:        http.StatusTooManyRequests,
		CodeServiceUnavailable: http.StatusServiceUnavailable,
		CodeExternalService:    http.StatusInternalServerError,
		CodeTimeout:            http.StatusInternalServerError,
		"SOMETHING_ELSE":       http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatusFromCode(code), code)
	}
}

func TestWrapCarriesRequestID(t *testing.T) {
	ctx := middleware.WithRequestID(context.Background(), "req-42")

	env := WrapExternalService(ctx, stderrors.New("dial tcp: refused"), "provider unavailable")
	assert.Equal(t, CodeExternalService, env.Code)
	assert.Equal(t, "req-42", env.CorrelationID)
	assert.NotEmpty(t, env.Severity)

	client := WrapInvalidInput(ctx, nil, "code is required")
	assert.Equal(t, "req-42", client.CorrelationID)
}

func TestEnsureEnvelope(t *testing.T) {
	env := NewNotFoundError("gone")
	assert.Same(t, env, EnsureEnvelope(env))

	foreign := EnsureEnvelope(stderrors.New("boom"))
	assert.Equal(t, CodeInternal, foreign.Code)
	assert.Empty(t, foreign.CorrelationID, "filled in from the request when responding")

	assert.Equal(t, CodeInternal, EnsureEnvelope(nil).Code)
}

func TestRespondWithMessageWritesFlatBody(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/explain", nil)

	RespondWithMessage(rec, req, NewRateLimitedError("quota exhausted"), "Rate limit exceeded. Please try again later.")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"Rate limit exceeded. Please try again later."}`, rec.Body.String())

	rec = httptest.NewRecorder()
	RespondWithMessage(rec, req, NewConfigInvalidError("bad config"), "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"bad config"}`, rec.Body.String())
}

func TestRespondWithErrorHidesWrappedError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req = req.WithContext(middleware.WithRequestID(req.Context(), "req-7"))
	rec := httptest.NewRecorder()

	RespondWithError(rec, req, stderrors.New("secret upstream detail"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret upstream detail")

	var body HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, CodeInternal, body.Error.Code)
	assert.Equal(t, "req-7", body.Error.RequestID)
}
