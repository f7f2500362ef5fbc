package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/codexplain/codexplain/internal/ailink/driver"
	"github.com/codexplain/codexplain/internal/config"
	"github.com/codexplain/codexplain/internal/observability"
	"github.com/codexplain/codexplain/internal/server/handlers"
)

var (
	cfgFile   string
	verbose   bool
	traceFile string

	// appViper holds defaults, env bindings, the config file and bound flags.
	appViper = config.New()

	// disableTracing closes the trace file opened by --trace.
	disableTracing func()

	// buildInfo is set by main from ldflags.
	buildInfo = handlers.BuildInfo{Name: config.AppName, Version: "dev"}
)

// errConfigInvalid marks failures that should exit with ExitConfigInvalid.
var errConfigInvalid = errors.New("configuration invalid")

// SetVersionInfo records build metadata for the version command and the
// /version endpoint.
func SetVersionInfo(version, commit, buildDate string) {
	buildInfo.Version = version
	buildInfo.Commit = commit
	buildInfo.BuildDate = buildDate
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   config.AppName,
	Short: "Explain source code line by line, within a request quota",
	Long: `codexplain explains source code snippets with an AI completion provider.

Run "codexplain serve" to start the rate-limited explain API, and
"codexplain explain <file>" to ask a running server for an explanation.`,
	SilenceUsage: true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if disableTracing != nil {
			disableTracing()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Disable global telemetry early so CLI runs emit nothing. Server mode
	// initializes the Prometheus-backed system later.
	observability.DisableMetrics()

	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", fmt.Sprintf("config file (default is $XDG_CONFIG_HOME/%s/config.yaml)", config.AppName))
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
	rootCmd.PersistentFlags().StringVar(&traceFile, "trace", "", "trace provider requests/responses to NDJSON file")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	observability.InitCLILogger(config.AppName, verbose)

	if traceFile != "" {
		cleanup, err := driver.EnableTracing(traceFile)
		if err != nil {
			observability.CLILogger.Warn("Failed to enable tracing", zap.Error(err))
		} else {
			observability.CLILogger.Debug("Provider tracing enabled", zap.String("file", traceFile))
			disableTracing = cleanup
		}
	}

	if cfgFile != "" {
		appViper.SetConfigFile(cfgFile)
	} else {
		if dir := config.DefaultConfigDir(); dir != "" {
			appViper.AddConfigPath(dir)
		} else {
			observability.CLILogger.Debug("Could not resolve XDG config directory")
		}
		appViper.AddConfigPath("./config")
		appViper.SetConfigName("config")
		appViper.SetConfigType("yaml")
	}

	if err := appViper.ReadInConfig(); err == nil {
		observability.CLILogger.Debug("Using config file", zap.String("path", appViper.ConfigFileUsed()))
	} else {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
			observability.CLILogger.Debug("No config file found, using defaults and environment variables")
		case cfgFile != "":
			ExitWithCode(observability.CLILogger, foundry.ExitFileNotFound, "Failed to read config file", err)
		default:
			observability.CLILogger.Warn("Error reading config file", zap.Error(err))
		}
	}
}

// loadConfig decodes and validates the merged settings.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(appViper)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errConfigInvalid, err)
	}
	return cfg, nil
}

// serverURL prefers an explicit flag value over the configured one.
func serverURL(flagValue string, cfg *config.Config) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v
	}
	return cfg.Client.ServerURL
}
