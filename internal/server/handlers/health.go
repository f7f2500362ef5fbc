package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"net/http"
	"slices"
	"time"

	gferrors "github.com/fulmenhq/gofulmen/errors"

	apperrors "github.com/codexplain/codexplain/internal/errors"
	"github.com/codexplain/codexplain/internal/metrics"
)

// Check results.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	StatusTimeout   = "timeout"
)

// ErrDegraded may be wrapped by a checker to report a degraded, still
// serving, component.
var ErrDegraded = errors.New("degraded")

// HealthResponse represents the aggregate health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ProbeResponse represents individual probe response
type ProbeResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthChecker defines interface for health checkable components
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthManager manages health checks and probe states
type HealthManager struct {
	checkers map[string]HealthChecker
	version  string
}

// NewHealthManager creates a new health manager
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		checkers: make(map[string]HealthChecker),
		version:  version,
	}
}

// RegisterChecker registers a health checker
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	hm.checkers[name] = checker
}

// report is the outcome of one pass over the registered checkers.
type report struct {
	status string
	checks map[string]string
}

// evaluate runs every checker in name order. Checkers not reached before ctx
// expires are reported as timed out, which degrades but does not fail.
func (hm *HealthManager) evaluate(ctx context.Context) report {
	rep := report{status: StatusHealthy, checks: make(map[string]string, len(hm.checkers))}

	for _, name := range slices.Sorted(maps.Keys(hm.checkers)) {
		if ctx.Err() != nil {
			rep.checks[name] = StatusTimeout
			rep.degrade(StatusDegraded)
			continue
		}
		start := time.Now()
		err := hm.checkers[name].CheckHealth(ctx)
		metrics.RecordHealthCheck(name, err == nil, time.Since(start))

		switch {
		case err == nil:
			rep.checks[name] = StatusHealthy
		case errors.Is(err, ErrDegraded):
			rep.checks[name] = StatusDegraded
			rep.degrade(StatusDegraded)
		default:
			rep.checks[name] = StatusUnhealthy
			rep.degrade(StatusUnhealthy)
		}
	}
	return rep
}

// degrade lowers the overall status; it never raises it.
func (r *report) degrade(to string) {
	if r.status != StatusUnhealthy {
		r.status = to
	}
}

// failing lists checks that are not healthy, sorted.
func (r report) failing() []string {
	var names []string
	for name, result := range r.checks {
		if result != StatusHealthy {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// HealthHandler reports every check. Degraded still answers 200; only an
// unhealthy check turns into a 503.
func (hm *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rep := hm.evaluate(ctx)
	if rep.status == StatusUnhealthy {
		respondUnhealthy(w, r, "aggregate health check failed", "", rep)
		return
	}
	writeJSON(w, HealthResponse{
		Status:    rep.status,
		Version:   hm.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    rep.checks,
	})
}

// LivenessHandler reports whether the process is running. It runs no
// checkers: a degraded provider must not get the process restarted.
func (hm *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, ProbeResponse{Status: StatusHealthy, Timestamp: time.Now().UTC()})
}

// ReadinessHandler handles readiness probe requests
func (hm *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	hm.probe(w, r, "ready", 5*time.Second)
}

// StartupHandler handles startup probe requests
func (hm *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	hm.probe(w, r, "startup", 3*time.Second)
}

func (hm *HealthManager) probe(w http.ResponseWriter, r *http.Request, name string, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	rep := hm.evaluate(ctx)
	if rep.status == StatusUnhealthy {
		respondUnhealthy(w, r, name+" probe failed", name, rep)
		return
	}
	writeJSON(w, ProbeResponse{Status: rep.status, Timestamp: time.Now().UTC()})
}

// respondUnhealthy writes a 503 envelope. Check names go to the caller;
// the failing list goes to the log.
func respondUnhealthy(w http.ResponseWriter, r *http.Request, message, probe string, rep report) {
	details := map[string]interface{}{"status": rep.status, "checks": rep.checks}
	logged := map[string]interface{}{"status": rep.status, "unhealthy_checks": rep.failing()}
	if probe != "" {
		details["probe"] = probe
		logged["probe"] = probe
	}

	envelope := gferrors.NewErrorEnvelope(apperrors.CodeServiceUnavailable, message).WithDetails(details)
	if withCtx, err := envelope.WithContext(logged); err == nil {
		envelope = withCtx
	}
	apperrors.RespondWithError(w, r, envelope)
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(body)
}
