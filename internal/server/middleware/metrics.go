package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/codexplain/codexplain/internal/observability"
)

// responseWriter wraps http.ResponseWriter to capture status code and response size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// EndpointPattern returns the chi route pattern for r, or a fixed bucket for
// unrouted paths so metric labels stay low-cardinality.
func EndpointPattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}

	switch path := r.URL.Path; {
	case path == "/health" || strings.HasPrefix(path, "/health/"):
		return "/health/*"
	case path == "/version", path == "/metrics", path == "/":
		return path
	case path == "/api/explain", path == "/api/quota":
		return path
	default:
		return "/unknown"
	}
}

// quietEndpoints are polled by infrastructure; completed requests log at debug.
var quietEndpoints = map[string]bool{
	"/health/*": true,
	"/metrics":  true,
}

// RequestMetrics middleware captures HTTP request metrics following Prometheus standards
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		endpoint := EndpointPattern(r)
		requestSize := r.ContentLength
		if requestSize < 0 {
			requestSize = 0
		}

		emitRequestMetrics(r.Method, endpoint, wrapped, duration, requestSize)

		logger := observability.ServerLogger
		if logger == nil {
			return
		}
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("endpoint", endpoint),
			zap.Int("status", wrapped.statusCode),
			zap.Duration("duration", duration),
			zap.Int64("request_size", requestSize),
			zap.Int64("response_size", wrapped.bytesWritten),
			zap.String("requestID", GetRequestID(r.Context())),
		}
		if quietEndpoints[endpoint] {
			logger.Debug("HTTP request completed", fields...)
			return
		}
		logger.Info("HTTP request completed", fields...)
	})
}

func emitRequestMetrics(method, endpoint string, rw *responseWriter, duration time.Duration, requestSize int64) {
	telemetry := observability.TelemetrySystem
	if telemetry == nil {
		return
	}

	status := strconv.Itoa(rw.statusCode)
	labels := map[string]string{
		"method":   method,
		"endpoint": endpoint,
		"status":   status,
	}
	sizeLabels := map[string]string{
		"method":   method,
		"endpoint": endpoint,
	}

	_ = telemetry.Counter("http_requests_total", 1, labels)
	_ = telemetry.Histogram("http_request_duration_ms", duration, labels)
	_ = telemetry.Gauge("http_request_size_bytes", float64(requestSize), sizeLabels)
	_ = telemetry.Gauge("http_response_size_bytes", float64(rw.bytesWritten), sizeLabels)

	if rw.statusCode < http.StatusBadRequest {
		return
	}
	errorType := "client_error"
	if rw.statusCode >= http.StatusInternalServerError {
		errorType = "server_error"
	}
	_ = telemetry.Counter("http_errors_total", 1, map[string]string{
		"method":     method,
		"endpoint":   endpoint,
		"status":     status,
		"error_type": errorType,
	})
}
