// Package errors builds gofulmen error envelopes for the HTTP API and writes
// them as responses.
package errors

import (
	"context"
	"net/http"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/google/uuid"

	"github.com/codexplain/codexplain/internal/server/middleware"
)

// Error codes
const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodePayloadTooLarge    = "PAYLOAD_TOO_LARGE"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternal           = "INTERNAL_ERROR"
	CodeExternalService    = "EXTERNAL_SERVICE_ERROR"
	CodeTimeout            = "TIMEOUT"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeConfigInvalid      = "CONFIG_INVALID"
)

// codeStatus maps codes to HTTP statuses. Anything missing, upstream
// provider failures included, is a 500: past the limiter the explain API
// reports one generic failure status.
var codeStatus = map[string]int{
	CodeInvalidInput:       http.StatusBadRequest,
	CodeNotFound:           http.StatusNotFound,
	CodeMethodNotAllowed:   http.StatusMethodNotAllowed,
	CodePayloadTooLarge:    http.StatusRequestEntityTooLarge,
	CodeRateLimited:        http.StatusTooManyRequests,
	CodeServiceUnavailable: http.StatusServiceUnavailable,
}

// HTTPStatusFromCode resolves the HTTP status for an error code.
func HTTPStatusFromCode(code string) int {
	if status, ok := codeStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func NewNotFoundError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeNotFound, message)
}

func NewMethodNotAllowedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeMethodNotAllowed, message)
}

// NewRateLimitedError marks a quota rejection. It carries no severity, so it
// is logged at info level and never as an application error.
func NewRateLimitedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeRateLimited, message)
}

func NewConfigInvalidError(message string) *errors.ErrorEnvelope {
	return asHigh(errors.NewErrorEnvelope(CodeConfigInvalid, message))
}

// Wrap builds an envelope for code around err, carrying the request's
// correlation ID so the log line and the response can be matched up. Codes
// that map to 5xx are marked high severity.
func Wrap(ctx context.Context, code string, err error, message string) *errors.ErrorEnvelope {
	id := correlationID(ctx)
	envelope := withWrapped(errors.NewErrorEnvelope(code, message).WithCorrelationID(id).WithTraceID(id), err)
	if HTTPStatusFromCode(code) >= http.StatusInternalServerError {
		envelope = asHigh(envelope)
	}
	return envelope
}

func WrapInvalidInput(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return Wrap(ctx, CodeInvalidInput, err, message)
}

func WrapExternalService(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return Wrap(ctx, CodeExternalService, err, message)
}

func WrapConfigInvalid(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return Wrap(ctx, CodeConfigInvalid, err, message)
}

func WrapInternal(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return Wrap(ctx, CodeInternal, err, message)
}

// EnsureEnvelope normalizes any error into an envelope. Foreign errors
// become high-severity internal errors.
func EnsureEnvelope(err error) *errors.ErrorEnvelope {
	if err == nil {
		envelope := errors.NewErrorEnvelope(CodeInternal, "unexpected nil error")
		if updated, err := envelope.WithSeverity(errors.SeverityCritical); err == nil {
			return updated
		}
		return envelope
	}
	if envelope, ok := err.(*errors.ErrorEnvelope); ok && envelope != nil {
		return envelope
	}
	return asHigh(withWrapped(errors.NewErrorEnvelope(CodeInternal, "unexpected error"), err))
}

// withWrapped records err in the envelope context, which is logged but never
// returned to callers.
func withWrapped(envelope *errors.ErrorEnvelope, err error) *errors.ErrorEnvelope {
	if err == nil {
		return envelope
	}
	updated, ctxErr := envelope.WithContext(map[string]interface{}{"wrapped_error": err.Error()})
	if ctxErr != nil {
		return envelope
	}
	return updated
}

// correlationID prefers the request ID on ctx and otherwise mints one.
func correlationID(ctx context.Context) string {
	if ctx != nil {
		if id := middleware.GetRequestID(ctx); id != "" {
			return id
		}
	}
	return uuid.NewString()
}

// asHigh marks envelope as an application error worth an error-level log.
func asHigh(envelope *errors.ErrorEnvelope) *errors.ErrorEnvelope {
	updated, err := envelope.WithSeverity(errors.SeverityHigh)
	if err != nil {
		return envelope
	}
	return updated
}
