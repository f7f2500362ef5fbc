package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/codexplain/codexplain/internal/client"
	"github.com/codexplain/codexplain/internal/config"
	"github.com/codexplain/codexplain/internal/observability"
)

var (
	doctorServer    string
	doctorInitForce bool
)

// errDoctorFailed is returned when at least one diagnostic check failed.
var errDoctorFailed = errors.New("diagnostic checks failed")

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long:  "Check the configuration, the local quota store, provider credentials and, with --server, server reachability.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := observability.CLILogger
		log.Info("=== codexplain doctor ===")

		totalChecks := 5
		failed := false
		step := func(n int, label string) string {
			return fmt.Sprintf("[%d/%d] %s...", n, totalChecks, label)
		}

		version := crucible.GetVersion()
		log.Info(fmt.Sprintf("%s ✅ %s, gofulmen %s", step(1, "Checking runtime"), runtime.Version(), version.Gofulmen),
			zap.String("go_version", runtime.Version()))

		cfg, cfgErr := loadConfig()
		if cfgErr != nil {
			log.Error(step(2, "Checking configuration")+" ❌ invalid", zap.Error(cfgErr))
			log.Warn("Remaining checks skipped")
			return cfgErr
		}
		log.Info(fmt.Sprintf("%s ✅ %s", step(2, "Checking configuration"), configFileLabel()))

		if db, err := openStore(ctx, cfg.Store); err != nil {
			log.Warn(step(3, "Checking local quota store")+" ⚠️  unavailable; advisory quota will not persist", zap.Error(err))
			failed = true
		} else {
			location := cfg.Store.URL
			if location == "" {
				location = cfg.Store.Path
				if info, statErr := os.Stat(location); statErr == nil {
					location = fmt.Sprintf("%s (%s)", location, formatFileSize(info.Size()))
				}
			}
			schema, _ := db.SchemaVersion(ctx)
			_ = db.Close()
			log.Info(fmt.Sprintf("%s ✅ %s, schema v%d", step(3, "Checking local quota store"), location, schema))
		}

		if cfg.AILink.Configured() {
			log.Info(fmt.Sprintf("%s ✅ %s/%s", step(4, "Checking provider credentials"), cfg.AILink.Provider, cfg.AILink.Model))
		} else {
			log.Warn(step(4, "Checking provider credentials") + " ⚠️  no API key (set OPENAI_API_KEY or CODEXPLAIN_AILINK_API_KEY before running serve)")
		}

		if target := strings.TrimSpace(doctorServer); target != "" {
			status, err := client.New(target, cfg.Client.Timeout).Quota(ctx)
			if err != nil {
				log.Error(step(5, "Checking server")+" ❌ "+target, zap.Error(err))
				failed = true
			} else {
				log.Info(fmt.Sprintf("%s ✅ %s (%d/%d remaining)", step(5, "Checking server"), target, status.RemainingRequests, status.Limit))
			}
		} else {
			log.Info(step(5, "Checking server") + " skipped (use --server)")
		}

		if failed {
			log.Warn("⚠️  Some checks failed. Review the output above for details.")
			return errDoctorFailed
		}
		log.Info("✅ All checks passed.")
		return nil
	},
}

var doctorInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.DefaultConfigPath()
		if configPath == "" {
			return fmt.Errorf("config path not resolved")
		}
		if _, err := os.Stat(configPath); err == nil && !doctorInitForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", configPath)
		}

		data, err := buildInitConfig()
		if err != nil {
			return err
		}

		// #nosec G301 -- config directories use 0755 like the data directory
		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
		if err := os.WriteFile(configPath, data, 0o600); err != nil {
			return fmt.Errorf("write config file: %w", err)
		}

		observability.CLILogger.Info("Config initialized", zap.String("path", configPath))
		return nil
	},
}

// buildInitConfig renders the user-tunable defaults as YAML. Secrets are left
// to the environment.
func buildInitConfig() ([]byte, error) {
	v := config.New()
	doc := map[string]any{
		"server": map[string]any{
			"host":           v.GetString("server.host"),
			"port":           v.GetInt("server.port"),
			"max_body_bytes": v.GetInt("server.max_body_bytes"),
		},
		"rate_limit": map[string]any{
			"server": map[string]any{
				"max":            v.GetInt("rate_limit.server.max"),
				"window":         v.GetString("rate_limit.server.window"),
				"max_keys":       v.GetInt("rate_limit.server.max_keys"),
				"sweep_interval": v.GetString("rate_limit.server.sweep_interval"),
			},
			"client": map[string]any{
				"max":    v.GetInt("rate_limit.client.max"),
				"window": v.GetString("rate_limit.client.window"),
			},
		},
		"ailink": map[string]any{
			"provider": v.GetString("ailink.provider"),
			"model":    v.GetString("ailink.model"),
			"timeout":  v.GetString("ailink.timeout"),
		},
		"client": map[string]any{
			"server_url": v.GetString("client.server_url"),
		},
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}

func formatFileSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}

func init() {
	doctorCmd.Flags().StringVar(&doctorServer, "server", "", "also check that this server answers GET /api/quota")
	doctorInitCmd.Flags().BoolVar(&doctorInitForce, "force", false, "overwrite an existing config file")

	doctorCmd.AddCommand(doctorInitCmd)
	rootCmd.AddCommand(doctorCmd)
}
