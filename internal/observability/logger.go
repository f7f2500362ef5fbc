package observability

import (
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
)

var (
	// CLILogger is used for CLI commands (SIMPLE profile)
	CLILogger *logging.Logger

	// ServerLogger is used by `serve` and the HTTP stack
	ServerLogger *logging.Logger
)

// ServerLoggerConfig selects how the server logs.
type ServerLoggerConfig struct {
	Service     string
	Level       string
	Profile     string
	Environment string
	Namespace   string
}

// InitCLILogger initializes the CLI logger with SIMPLE profile
func InitCLILogger(serviceName string, verbose bool) {
	logger, err := logging.NewCLI(serviceName)
	if err != nil {
		exitWithCodeStderr(foundry.ExitConfigInvalid, "Failed to initialize CLI logger", err)
	}

	if verbose {
		logger.SetLevel(logging.DEBUG)
	}

	CLILogger = logger
}

// InitServerLogger initializes the server logger. STRUCTURED (the default)
// writes JSON with correlation IDs; SIMPLE writes console lines, which is
// friendlier when running `serve` locally.
func InitServerLogger(cfg ServerLoggerConfig) {
	logger, err := logging.New(serverLoggerConfig(cfg))
	if err != nil {
		exitWithCodeStderr(foundry.ExitConfigInvalid, "Failed to initialize server logger", err)
	}

	ServerLogger = logger
}

// Logger returns the server logger when initialized, else the CLI logger.
// It may return nil before either is set up.
func Logger() *logging.Logger {
	if ServerLogger != nil {
		return ServerLogger
	}
	return CLILogger
}

// serverLoggerConfig maps the server's logging settings onto gofulmen.
// STRUCTURED adds the correlation middleware so request IDs reach every line.
func serverLoggerConfig(cfg ServerLoggerConfig) *logging.LoggerConfig {
	simple := strings.EqualFold(strings.TrimSpace(cfg.Profile), "simple")

	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "production"
	}
	static := map[string]any{}
	if cfg.Namespace != "" {
		static["namespace"] = cfg.Namespace
	}

	sink := logging.SinkConfig{
		Type:    "console",
		Format:  "json",
		Console: &logging.ConsoleSinkConfig{Stream: "stderr"},
	}
	out := &logging.LoggerConfig{
		Profile:          logging.ProfileStructured,
		DefaultLevel:     parseLogLevel(cfg.Level),
		Service:          cfg.Service,
		Environment:      environment,
		StaticFields:     static,
		EnableCaller:     true,
		EnableStacktrace: !simple,
	}
	if simple {
		out.Profile = logging.ProfileSimple
		sink.Format = "console"
	} else {
		out.Middleware = []logging.MiddlewareConfig{
			{Name: "correlation", Enabled: true, Order: 100, Config: map[string]any{}},
		}
	}
	out.Sinks = []logging.SinkConfig{sink}
	return out
}

var logLevels = map[string]string{
	"trace":   "TRACE",
	"debug":   "DEBUG",
	"info":    "INFO",
	"warn":    "WARN",
	"warning": "WARN",
	"error":   "ERROR",
}

// parseLogLevel normalizes a configured level; unknown values mean INFO.
func parseLogLevel(level string) string {
	if normalized, ok := logLevels[strings.ToLower(strings.TrimSpace(level))]; ok {
		return normalized
	}
	return "INFO"
}

// exitWithCodeStderr exits with a semantic exit code, writing to stderr.
// Used only when a logger cannot be created.
func exitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "FATAL: %s\n", msg)
	}

	if info, ok := foundry.GetExitCodeInfo(exitCode); ok {
		fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
		os.Exit(info.Code)
	}
	os.Exit(int(exitCode))
}
