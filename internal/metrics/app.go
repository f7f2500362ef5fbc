package metrics

import (
	"time"

	"github.com/codexplain/codexplain/internal/observability"
)

// Application-level metrics following Prometheus conventions
const (
	// Rate limiting
	RateLimitDecisionsTotal = "ratelimit_decisions_total"
	RateLimitTrackedKeys    = "ratelimit_tracked_keys"
	RateLimitSweptTotal     = "ratelimit_swept_keys_total"

	// Explain pipeline
	ExplainRequestsTotal = "explain_requests_total"
	ExplainDuration      = "explain_duration_ms"
	ProviderTokensTotal  = "provider_tokens_total"

	// Health check metrics
	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	// Server lifecycle metrics
	ServerStartTime = "app_server_start_time_seconds"
)

// Rate limit scopes
const (
	ScopeServer = "server"
	ScopeClient = "client"
)

// RecordRateLimitDecision counts an allow/deny outcome for a limiter scope.
func RecordRateLimitDecision(scope string, allowed bool) {
	if observability.TelemetrySystem == nil {
		return
	}
	result := "allowed"
	if !allowed {
		result = "rejected"
	}
	_ = observability.TelemetrySystem.Counter(RateLimitDecisionsTotal, 1, map[string]string{
		"scope":  scope,
		"result": result,
	})
}

// RecordRateLimitSweep records one sweeper pass.
func RecordRateLimitSweep(removed, remaining int) {
	if observability.TelemetrySystem == nil {
		return
	}
	if removed > 0 {
		_ = observability.TelemetrySystem.Counter(RateLimitSweptTotal, float64(removed), nil)
	}
	_ = observability.TelemetrySystem.Gauge(RateLimitTrackedKeys, float64(remaining), nil)
}

// RecordExplain records a downstream explain attempt by outcome.
func RecordExplain(outcome string, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	labels := map[string]string{"outcome": outcome}
	_ = observability.TelemetrySystem.Counter(ExplainRequestsTotal, 1, labels)
	_ = observability.TelemetrySystem.Histogram(ExplainDuration, duration, labels)
}

// RecordProviderTokens records token usage reported by the provider.
func RecordProviderTokens(provider, model string, prompt, completion int) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(ProviderTokensTotal, float64(prompt), map[string]string{
		"provider": provider,
		"model":    model,
		"kind":     "prompt",
	})
	_ = observability.TelemetrySystem.Counter(ProviderTokensTotal, float64(completion), map[string]string{
		"provider": provider,
		"model":    model,
		"kind":     "completion",
	})
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	_ = observability.TelemetrySystem.Counter(HealthCheckTotal, 1, map[string]string{
		"check":  checkName,
		"status": status,
	})
	_ = observability.TelemetrySystem.Histogram(HealthCheckDuration, duration, map[string]string{
		"check": checkName,
	})
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(ServerStartTime, float64(timestamp), nil)
}
