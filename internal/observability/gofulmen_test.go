package observability

import (
	"testing"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/logging"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoggers(t *testing.T) {
	t.Run("CLI logger creation", func(t *testing.T) {
		InitCLILogger("codexplain-test", true)
		require.NotNil(t, CLILogger)

		CLILogger.Debug("verbose CLI log", zap.String("test", "value"))
	})

	t.Run("Structured server logger", func(t *testing.T) {
		InitServerLogger(ServerLoggerConfig{Service: "codexplain-test", Level: "debug", Environment: "test"})
		require.NotNil(t, ServerLogger)
		require.Same(t, ServerLogger, Logger())

		ServerLogger.Info("rate limit decision",
			zap.String("scope", "server"),
			zap.Bool("allowed", true))
	})

	t.Run("Simple server logger", func(t *testing.T) {
		InitServerLogger(ServerLoggerConfig{Service: "codexplain-test", Profile: "SIMPLE"})
		require.NotNil(t, ServerLogger)
	})
}

func TestServerLoggerConfig(t *testing.T) {
	structured := serverLoggerConfig(ServerLoggerConfig{Service: "svc", Level: "warning", Namespace: "ns"})
	require.Equal(t, logging.ProfileStructured, structured.Profile)
	require.Equal(t, "WARN", structured.DefaultLevel)
	require.Equal(t, "production", structured.Environment)
	require.Equal(t, "json", structured.Sinks[0].Format)
	require.Equal(t, "ns", structured.StaticFields["namespace"])
	require.Len(t, structured.Middleware, 1)

	simple := serverLoggerConfig(ServerLoggerConfig{Service: "svc", Profile: "simple", Environment: "dev"})
	require.Equal(t, logging.ProfileSimple, simple.Profile)
	require.Equal(t, "console", simple.Sinks[0].Format)
	require.Equal(t, "INFO", simple.DefaultLevel)
	require.Equal(t, "dev", simple.Environment)
	require.Empty(t, simple.Middleware)
}

func TestParseLogLevel(t *testing.T) {
	require.Equal(t, "TRACE", parseLogLevel("trace"))
	require.Equal(t, "ERROR", parseLogLevel(" ERROR "))
	require.Equal(t, "INFO", parseLogLevel("loud"))
}

func TestEmbeddedCrucible(t *testing.T) {
	version := crucible.GetVersion()
	require.NotEmpty(t, version.Gofulmen)
	require.NotEmpty(t, version.Crucible)
	require.NotEmpty(t, crucible.GetVersionString())
}
