package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/codexplain/codexplain/internal/ailink"
	"github.com/codexplain/codexplain/internal/ailink/prompt"
	"github.com/codexplain/codexplain/internal/config"
	"github.com/codexplain/codexplain/internal/core/ratelimit"
	errwrap "github.com/codexplain/codexplain/internal/errors"
	"github.com/codexplain/codexplain/internal/metrics"
	"github.com/codexplain/codexplain/internal/observability"
	"github.com/codexplain/codexplain/internal/server"
	"github.com/codexplain/codexplain/internal/server/gate"
	"github.com/codexplain/codexplain/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the rate-limited explain API",
	Long: `Start the HTTP server exposing POST /api/explain and GET /api/quota.

Every explain request consumes one unit of the caller's quota before the
provider is called; rejected requests never reach the provider.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Re-read the config file (quota changes need a restart)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		observability.InitServerLogger(observability.ServerLoggerConfig{
			Service:   config.AppName,
			Level:     cfg.Logging.Level,
			Profile:   cfg.Logging.Profile,
			Namespace: config.AppName,
		})
		logger := observability.ServerLogger

		metricsPort := 0
		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(config.AppName, cfg.Metrics.Port); err != nil {
				logger.Error("Failed to initialize metrics", zap.Error(err))
				return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
			}
			metricsPort = observability.GetMetricsPort()
			metrics.SetServerStartTime(time.Now().Unix())
		}

		limiter, err := newServerLimiter(cfg.RateLimit.Server)
		if err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "rate limiter configuration invalid")
		}

		prompts, err := prompt.NewRegistryFromDir(cfg.AILink.PromptsDir)
		if err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "prompt registry failed to load")
		}
		explainer, err := ailink.NewExplainer(cfg.AILink, prompts, nil)
		if err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "explainer configuration invalid")
		}
		if !explainer.Configured() {
			logger.Warn("No provider API key configured; explain requests will fail until one is set",
				zap.String("provider", cfg.AILink.Provider))
		}

		g, err := gate.New(gate.Options{
			Limiter:      limiter,
			Resolver:     ratelimit.NewKeyResolver(limiter.FallbackKey()),
			Explainer:    explainer,
			MaxBodyBytes: cfg.Server.MaxBodyBytes,
		})
		if err != nil {
			return errwrap.WrapInternal(cmd.Context(), err, "request gate construction failed")
		}

		hm := handlers.NewHealthManager(buildInfo.Version)
		hm.RegisterChecker("rate_limiter", handlers.LimiterChecker{Limiter: limiter, MaxKeys: cfg.RateLimit.Server.MaxKeys})
		hm.RegisterChecker("explainer", handlers.ExplainerChecker{Configured: explainer.Configured})
		if cfg.Metrics.Enabled {
			hm.RegisterChecker("telemetry", telemetryHealthChecker{})
		}

		srv := server.New(server.Options{
			Host:          cfg.Server.Host,
			Port:          cfg.Server.Port,
			ReadTimeout:   cfg.Server.ReadTimeout,
			WriteTimeout:  cfg.Server.WriteTimeout,
			IdleTimeout:   cfg.Server.IdleTimeout,
			Gate:          g,
			Health:        hm,
			DisableHealth: !cfg.Health.Enabled,
			Pprof:         cfg.Debug.PprofEnabled,
			MetricsPort:   metricsPort,
			AdminToken:    appViper.GetString("admin_token"),
			Build:         buildInfo,
		})

		logger.Info("Initializing server",
			zap.String("service", config.AppName),
			zap.String("version", buildInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.Int("metrics_port", metricsPort),
			zap.Int("quota_max", limiter.Quota().Max),
			zap.Duration("quota_window", limiter.Quota().Window))

		sweepCtx, stopSweeper := context.WithCancel(context.Background())
		go limiter.RunSweeper(sweepCtx, cfg.RateLimit.Server.SweepInterval, metrics.RecordRateLimitSweep)

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Shutdown handlers run LIFO: the HTTP server stops first, the logger flushes last.
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Flushing logger...")
			if err := logger.Sync(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			stopSweeper()
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}

			logger.Info("HTTP server stopped gracefully")
			return nil
		})

		// Quotas are read once at construction; a reload only validates the file.
		signals.OnReload(func(ctx context.Context) error {
			logger.Info("Received SIGHUP: re-reading config file")

			if err := appViper.ReadInConfig(); err != nil {
				var notFound viper.ConfigFileNotFoundError
				if errors.As(err, &notFound) {
					logger.Info("No config file found - using defaults and environment variables")
					return nil
				}
				logger.Error("Failed to reload config file",
					zap.String("file", appViper.ConfigFileUsed()),
					zap.Error(err))
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}
			if _, err := config.Load(appViper); err != nil {
				logger.Error("Reloaded config is invalid", zap.Error(err))
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}

			logger.Info("Configuration re-read; restart to apply quota or server changes",
				zap.String("file", appViper.ConfigFileUsed()))
			return nil
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		errChan := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil {
				errChan <- err
			}
		}()

		go func() {
			if err := signals.Listen(cmd.Context()); err != nil {
				logger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil {
			stopSweeper()
			return errwrap.WrapInternal(cmd.Context(), err, "server error")
		}
		return nil
	},
}

// newServerLimiter builds the authoritative limiter and reports every
// decision to the rate limit metrics.
func newServerLimiter(cfg config.ServerQuotaConfig) (*ratelimit.ServerLimiter, error) {
	return ratelimit.NewServerLimiter(ratelimit.ServerOptions{
		Quota:       cfg.Quota,
		FallbackKey: cfg.FallbackKey,
		MaxKeys:     cfg.MaxKeys,
		OnDecision: func(d ratelimit.Decision) {
			metrics.RecordRateLimitDecision(metrics.ScopeServer, d.Allowed)
		},
	})
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")

	_ = appViper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = appViper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
