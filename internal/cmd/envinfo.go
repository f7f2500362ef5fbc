package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/codexplain/codexplain/internal/config"
	"github.com/codexplain/codexplain/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display version, runtime, and effective configuration including both quota layers.",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := observability.CLILogger
		version := crucible.GetVersion()

		log.Info("=== codexplain Environment Information ===")
		log.Info("Application:")
		log.Info("  Version:    " + buildInfo.Version)
		log.Info("  Commit:     " + buildInfo.Commit)
		log.Info("  Built:      " + buildInfo.BuildDate)
		log.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		log.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		log.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		log.Info(fmt.Sprintf("  Platform:   %s/%s", runtime.GOOS, runtime.GOARCH))
		log.Info("")

		cfg, err := loadConfig()
		if err != nil {
			log.Warn("Config load failed", zap.Error(err))
			return err
		}

		log.Info("Configuration:")
		log.Info("  Config File:    " + configFileLabel())
		log.Info(fmt.Sprintf("  Server:         %s:%d", cfg.Server.Host, cfg.Server.Port))
		log.Info(fmt.Sprintf("  Max Body:       %d bytes", cfg.Server.MaxBodyBytes))
		log.Info("  Log Level:      " + cfg.Logging.Level)
		if strings.TrimSpace(cfg.Store.URL) != "" {
			log.Info("  Store URL:      " + cfg.Store.URL)
		} else {
			log.Info("  Store Path:     " + cfg.Store.Path)
		}
		log.Info(fmt.Sprintf("  Metrics:        %t (port %d)", cfg.Metrics.Enabled, cfg.Metrics.Port))
		log.Info("")

		server := cfg.RateLimit.Server
		log.Info("Quota:")
		log.Info(fmt.Sprintf("  Server:         %d per %s", server.Max, server.Window),
			zap.Int("server_max", server.Max), zap.Duration("server_window", server.Window))
		log.Info(fmt.Sprintf("  Server Keys:    max %d, sweep every %s, fallback %q", server.MaxKeys, server.SweepInterval, server.FallbackKey))
		log.Info(fmt.Sprintf("  Client:         %d per %s", cfg.RateLimit.Client.Max, cfg.RateLimit.Client.Window),
			zap.Int("client_max", cfg.RateLimit.Client.Max), zap.Duration("client_window", cfg.RateLimit.Client.Window))
		log.Info("  Client Server:  " + cfg.Client.ServerURL)
		log.Info("")

		apiKey := "(not set)"
		if cfg.AILink.Configured() {
			apiKey = "(set)"
		}
		log.Info("Provider:")
		log.Info("  Provider:       " + cfg.AILink.Provider)
		log.Info("  Model:          " + cfg.AILink.Model)
		log.Info("  Timeout:        " + cfg.AILink.Timeout.String())
		log.Info("  API Key:        " + apiKey)
		log.Info(fmt.Sprintf("  Pacing:         %.2f req/s, burst %d", cfg.AILink.RequestsPerSecond, cfg.AILink.Burst))
		log.Info("")

		log.Info("=== End Environment Information ===")
		return nil
	},
}

func configFileLabel() string {
	if used := appViper.ConfigFileUsed(); used != "" {
		return used
	}
	return config.DefaultConfigPath() + " (not found)"
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
