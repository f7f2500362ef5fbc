package ailink

import (
	"context"
	"errors"
	"strings"

	"github.com/codexplain/codexplain/internal/ailink/driver"
)

func mapProviderError(err error) *Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: CodeProviderTimeout, Message: "provider request timed out", Err: err}
	}

	var perr *driver.ProviderError
	if errors.As(err, &perr) && perr != nil {
		status := perr.StatusCode
		details := oneLine(perr.Message)
		switch {
		case status == 401 || status == 403:
			return &Error{Code: CodeProviderAuth, Message: "provider authentication failed", Details: details, Err: err}
		case status == 429:
			return &Error{Code: CodeProviderRateLimit, Message: "provider rate limited", Details: details, Err: err}
		case status >= 500 && status <= 599:
			return &Error{Code: CodeProviderUnavailable, Message: "provider unavailable", Details: details, Err: err}
		case status >= 400 && status <= 499:
			return &Error{Code: CodeProviderBadRequest, Message: "provider rejected request", Details: details, Err: err}
		default:
			return &Error{Code: CodeProviderError, Message: "provider request failed", Details: details, Err: err}
		}
	}

	return &Error{Code: CodeProviderError, Message: "provider request failed", Details: oneLine(err.Error()), Err: err}
}

// oneLine collapses provider text so it fits in a single log field.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
