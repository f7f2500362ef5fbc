package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/codexplain/codexplain/internal/errors"
	"github.com/codexplain/codexplain/internal/observability"
	"github.com/codexplain/codexplain/internal/server/gate"
	"github.com/codexplain/codexplain/internal/server/handlers"
	servermw "github.com/codexplain/codexplain/internal/server/middleware"
)

// Default timeouts applied when Options leaves them zero.
const (
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 90 * time.Second
	defaultIdleTimeout  = 120 * time.Second
)

// Options configures the HTTP server.
type Options struct {
	Host string
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Gate serves the explain API. Without it the /api routes are not mounted.
	Gate *gate.Gate

	// Health serves the /health routes. Nil yields a manager with no checkers.
	Health *handlers.HealthManager

	// DisableHealth leaves the /health routes unmounted.
	DisableHealth bool

	// Pprof mounts net/http/pprof under /debug. Development only.
	Pprof bool

	// MetricsPort locates the Prometheus exporter proxied at /metrics.
	MetricsPort int

	// AdminToken enables POST /admin/signal when set.
	AdminToken string

	// Build is reported by GET /version.
	Build handlers.BuildInfo
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	opts   Options
}

// New creates a new HTTP server instance
func New(opts Options) *Server {
	r := chi.NewRouter()

	// RemoteAddr is left as received; the gate resolves client keys from
	// the forwarding headers itself.
	// RequestID → Metrics → Recovery; recovery sits innermost so the
	// metrics middleware sees the 500 it writes.
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestMetrics)
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithError(w, req, apperrors.NewNotFoundError("The requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithError(w, req, apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource"))
	})

	if opts.Health == nil {
		opts.Health = handlers.NewHealthManager(opts.Build.Version)
	}

	s := &Server{
		router: r,
		opts:   opts,
	}

	s.registerRoutes()

	return s
}

// Start starts the HTTP server and blocks until it stops. A graceful
// shutdown returns nil.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       orDefault(s.opts.ReadTimeout, defaultReadTimeout),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      orDefault(s.opts.WriteTimeout, defaultWriteTimeout),
		IdleTimeout:       orDefault(s.opts.IdleTimeout, defaultIdleTimeout),
	}

	if logger := observability.ServerLogger; logger != nil {
		logger.Info("Starting HTTP server",
			zap.String("host", s.opts.Host),
			zap.Int("port", s.opts.Port),
			zap.String("addr", addr))
	}

	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if logger := observability.ServerLogger; logger != nil {
		logger.Info("Shutting down HTTP server")
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the configured server port
func (s *Server) Port() int {
	return s.opts.Port
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
