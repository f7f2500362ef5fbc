// Package gate guards the explain endpoint with the authoritative limiter.
package gate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/codexplain/codexplain/internal/core"
	"github.com/codexplain/codexplain/internal/core/ratelimit"
	apperrors "github.com/codexplain/codexplain/internal/errors"
	"github.com/codexplain/codexplain/internal/metrics"
)

// Response messages. MessageRateLimited is part of the public contract.
const (
	MessageRateLimited = "Rate limit exceeded. Please try again later."
	MessageUnavailable = "Explanation service temporarily unavailable"
	MessageFailed      = "Explanation request failed"
	MessageTooLarge    = "Request body too large"
	MessageUnreadable  = "Request body could not be read"
)

// Rate limit response headers.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// DefaultMaxBodyBytes caps request bodies when Options.MaxBodyBytes is unset.
const DefaultMaxBodyBytes int64 = 256 << 10

// Explain outcomes recorded in metrics.
const (
	outcomeSucceeded   = "succeeded"
	outcomeInvalid     = "invalid"
	outcomeUnavailable = "unavailable"
	outcomeFailed      = "failed"
)

// Explainer is the downstream collaborator invoked for admitted requests.
type Explainer interface {
	Explain(ctx context.Context, payload json.RawMessage) (*core.ExplainResponse, error)
}

// Options configures a Gate.
type Options struct {
	Limiter      *ratelimit.ServerLimiter
	Resolver     ratelimit.KeyResolver
	Explainer    Explainer
	MaxBodyBytes int64
}

// Gate resolves the caller's key, consumes one unit of quota and only then
// forwards the request body to the explainer.
type Gate struct {
	limiter      *ratelimit.ServerLimiter
	resolver     ratelimit.KeyResolver
	explainer    Explainer
	maxBodyBytes int64
}

// New builds a gate. The resolver's fallback defaults to the limiter's.
func New(opts Options) (*Gate, error) {
	if opts.Limiter == nil {
		return nil, errors.New("gate requires a server limiter")
	}
	if opts.Explainer == nil {
		return nil, errors.New("gate requires an explainer")
	}
	resolver := opts.Resolver
	if resolver.Fallback == "" {
		resolver.Fallback = opts.Limiter.FallbackKey()
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	return &Gate{
		limiter:      opts.Limiter,
		resolver:     resolver,
		explainer:    opts.Explainer,
		maxBodyBytes: maxBody,
	}, nil
}

// ServeHTTP handles the explain endpoint.
func (g *Gate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := g.resolver.Resolve(r)
	decision := g.limiter.Consume(key)
	writeRateLimitHeaders(w, decision)

	if !decision.Allowed {
		w.Header().Set(HeaderRetryAfter, strconv.Itoa(retryAfterSeconds(decision.RetryAfter)))
		envelope := apperrors.NewRateLimitedError(MessageRateLimited)
		envelope, _ = envelope.WithContext(map[string]interface{}{
			"limit":    decision.Limit,
			"reset_at": decision.ResetAt.UTC().Format(time.RFC3339),
		})
		apperrors.RespondWithMessage(w, r, envelope, MessageRateLimited)
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, g.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apperrors.RespondWithMessage(w, r, apperrors.Wrap(r.Context(), apperrors.CodePayloadTooLarge, err, MessageTooLarge), MessageTooLarge)
			return
		}
		apperrors.RespondWithMessage(w, r, apperrors.WrapInvalidInput(r.Context(), err, MessageUnreadable), MessageUnreadable)
		return
	}

	start := time.Now()
	result, err := g.explainer.Explain(r.Context(), payload)
	if err != nil {
		g.respondExplainError(w, r, err, time.Since(start))
		return
	}
	metrics.RecordExplain(outcomeSucceeded, time.Since(start))

	writeJSON(w, http.StatusOK, core.ExplainResult{
		ExplainResponse:   result,
		RemainingRequests: g.limiter.GetRemaining(key),
	})
}

// Quota handles GET requests for the caller's remaining quota.
func (g *Gate) Quota(w http.ResponseWriter, r *http.Request) {
	key := g.resolver.Resolve(r)
	quota := g.limiter.Quota()
	writeJSON(w, http.StatusOK, core.QuotaStatus{
		Limit:             quota.Max,
		RemainingRequests: g.limiter.GetRemaining(key),
		WindowSeconds:     int64(quota.Window / time.Second),
	})
}

// respondExplainError maps downstream failures onto the flat error body.
// Consumed quota is never refunded.
func (g *Gate) respondExplainError(w http.ResponseWriter, r *http.Request, err error, elapsed time.Duration) {
	ctx := r.Context()
	switch {
	case errors.Is(err, core.ErrInvalidInput):
		metrics.RecordExplain(outcomeInvalid, elapsed)
		apperrors.RespondWithMessage(w, r, apperrors.WrapInvalidInput(ctx, err, err.Error()), err.Error())
	case errors.Is(err, core.ErrServiceUnavailable):
		metrics.RecordExplain(outcomeUnavailable, elapsed)
		apperrors.RespondWithMessage(w, r, apperrors.WrapConfigInvalid(ctx, err, MessageUnavailable), MessageUnavailable)
	default:
		metrics.RecordExplain(outcomeFailed, elapsed)
		apperrors.RespondWithMessage(w, r, apperrors.WrapExternalService(ctx, err, MessageFailed), MessageFailed)
	}
}

func writeRateLimitHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	h := w.Header()
	h.Set(HeaderLimit, strconv.Itoa(d.Limit))
	h.Set(HeaderRemaining, strconv.Itoa(d.Remaining))
	h.Set(HeaderReset, strconv.FormatInt(d.ResetAt.Unix(), 10))
}

func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}
