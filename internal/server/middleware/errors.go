package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/fulmenhq/gofulmen/errors"
	"go.uber.org/zap"

	"github.com/codexplain/codexplain/internal/metrics"
	"github.com/codexplain/codexplain/internal/observability"
)

// PanicMessage is the body returned to callers when a handler panics.
const PanicMessage = "Internal server error"

// Recovery middleware recovers from panics, logs the stack and answers with
// a flat {"error": ...} body.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			panicErr := errors.NewErrorEnvelope("INTERNAL_ERROR", fmt.Sprintf("panic: %v", rec)).
				WithCorrelationID(GetRequestID(r.Context()))
			panicErr, _ = panicErr.WithContext(map[string]interface{}{
				"stack_trace": string(debug.Stack()),
				"path":        r.URL.Path,
			})
			panicErr, _ = panicErr.WithSeverity(errors.SeverityCritical)

			metrics.RecordPanic()
			if logger := observability.ServerLogger; logger != nil {
				logger.Error("Handler panic recovered",
					zap.String("code", panicErr.Code),
					zap.String("message", panicErr.Message),
					zap.String("requestID", panicErr.CorrelationID),
					zap.Any("context", panicErr.Context),
				)
			}

			writePanicResponse(w)
		}()

		next.ServeHTTP(w, r)
	})
}

// writePanicResponse writes the body directly; the errors package imports
// this one for endpoint labels.
func writePanicResponse(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": PanicMessage})
}
