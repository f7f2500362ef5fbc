package ratelimit

import (
	"net/http"
	"strings"
)

const (
	headerForwardedFor = "X-Forwarded-For"
	headerRealIP       = "X-Real-Ip"

	// DefaultMaxKeyLength bounds resolved keys; longer values are treated as unresolved.
	DefaultMaxKeyLength = 256
)

// KeyResolver derives the rate-limit key for an inbound request.
//
// The proxy headers are trusted as-is: deployments must sit behind a proxy
// that overwrites them, otherwise a client can pick its own bucket.
type KeyResolver struct {
	Fallback  string
	MaxLength int
}

// NewKeyResolver returns a resolver with the given fallback bucket.
func NewKeyResolver(fallback string) KeyResolver {
	return KeyResolver{Fallback: fallback, MaxLength: DefaultMaxKeyLength}
}

// Resolve returns the first hop of X-Forwarded-For, else X-Real-IP, else
// the fallback key.
func (r KeyResolver) Resolve(req *http.Request) string {
	if req != nil {
		if key := r.accept(firstHop(req.Header.Get(headerForwardedFor))); key != "" {
			return key
		}
		if key := r.accept(strings.TrimSpace(req.Header.Get(headerRealIP))); key != "" {
			return key
		}
	}
	return r.fallback()
}

func (r KeyResolver) accept(key string) string {
	if key == "" {
		return ""
	}
	limit := r.MaxLength
	if limit <= 0 {
		limit = DefaultMaxKeyLength
	}
	if len(key) > limit {
		return ""
	}
	return key
}

func (r KeyResolver) fallback() string {
	if f := strings.TrimSpace(r.Fallback); f != "" {
		return f
	}
	return DefaultFallbackKey
}

func firstHop(header string) string {
	if header == "" {
		return ""
	}
	first, _, _ := strings.Cut(header, ",")
	return strings.TrimSpace(first)
}
