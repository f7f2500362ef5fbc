package server

import (
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/codexplain/codexplain/internal/observability"
	"github.com/codexplain/codexplain/internal/server/handlers"
)

const (
	adminSignalPath = "/admin/signal"
	adminRateLimit  = 10
	adminRateBurst  = 5
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	if !s.opts.DisableHealth {
		health := s.opts.Health
		s.router.Get("/health", health.HealthHandler)
		s.router.Get("/health/live", health.LivenessHandler)
		s.router.Get("/health/ready", health.ReadinessHandler)
		s.router.Get("/health/startup", health.StartupHandler)
	}

	s.router.Get("/version", handlers.NewVersionHandler(s.opts.Build))

	// Metrics endpoint proxies the Prometheus exporter
	s.router.Get("/metrics", s.MetricsHandler)

	if g := s.opts.Gate; g != nil {
		s.router.Post("/api/explain", g.ServeHTTP)
		s.router.Get("/api/quota", g.Quota)
	}

	if s.opts.Pprof {
		s.router.Mount("/debug", middleware.Profiler())
		if logger := observability.ServerLogger; logger != nil {
			logger.Warn("pprof endpoints enabled under /debug")
		}
	}

	s.registerAdminEndpoint()
}

// registerAdminEndpoint registers the admin signal endpoint when a token is configured
func (s *Server) registerAdminEndpoint() {
	logger := observability.ServerLogger

	if s.opts.AdminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (no admin token set)")
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: s.opts.AdminToken,
		RateLimit: adminRateLimit,
		RateBurst: adminRateBurst,
		Manager:   nil, // use default global manager
	})

	s.router.Post(adminSignalPath, handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", adminSignalPath),
			zap.String("auth", "bearer token"),
			zap.Int("rate_limit_per_min", adminRateLimit))
		logger.Warn("Admin endpoint enabled - ensure this server is not exposed to public internet")
	}
}
