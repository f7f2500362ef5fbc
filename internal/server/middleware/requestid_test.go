package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRequestID(t *testing.T) {
	cases := []struct {
		name    string
		inbound string
		reuse   bool
	}{
		{"generated when absent", "", false},
		{"reused when well formed", "edge-7f3a.42", true},
		{"replaced when it has spaces", "a b", false},
		{"replaced when too long", strings.Repeat("x", 65), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var seen string
			handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = GetRequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.inbound != "" {
				req.Header.Set(RequestIDHeader, tc.inbound)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, seen, rec.Header().Get(RequestIDHeader))
			if tc.reuse {
				require.Equal(t, tc.inbound, seen)
				return
			}
			_, err := uuid.Parse(seen)
			require.NoError(t, err)
		})
	}
}

func TestGetRequestIDWithoutValue(t *testing.T) {
	require.Empty(t, GetRequestID(context.Background()))
	require.Equal(t, "abc", GetRequestID(WithRequestID(context.Background(), "abc")))
}
