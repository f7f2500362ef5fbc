package config

import (
	"time"

	"github.com/codexplain/codexplain/internal/ailink"
	"github.com/codexplain/codexplain/internal/core/ratelimit"
)

// Config represents the complete application configuration.
// Values come from defaults, an optional YAML file, and CODEXPLAIN_*
// environment variables, in increasing precedence.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	AILink    ailink.Config   `mapstructure:"ailink"`
	Client    ClientConfig    `mapstructure:"client"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Health    HealthConfig    `mapstructure:"health"`
	Debug     DebugConfig     `mapstructure:"debug"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// MaxBodyBytes caps the explain request body.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

// StoreConfig contains database configuration for libsql/Turso.
// The store holds client-local state only; the server keeps none.
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// RateLimitConfig holds both quota layers. The numbers may differ but
// both use the same fixed-window algorithm.
type RateLimitConfig struct {
	Server ServerQuotaConfig `mapstructure:"server"`
	Client ClientQuotaConfig `mapstructure:"client"`
}

// ServerQuotaConfig configures the authoritative limiter.
type ServerQuotaConfig struct {
	ratelimit.Quota `mapstructure:",squash"`

	FallbackKey   string        `mapstructure:"fallback_key"`
	MaxKeys       int           `mapstructure:"max_keys"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// ClientQuotaConfig configures the advisory limiter.
type ClientQuotaConfig struct {
	ratelimit.Quota `mapstructure:",squash"`

	StorageKey string `mapstructure:"storage_key"`
}

// ClientConfig points the CLI at a running server.
type ClientConfig struct {
	ServerURL string        `mapstructure:"server_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Port is the Prometheus exporter port; /metrics on the main port proxies it.
	Port int `mapstructure:"port"`
}

// HealthConfig controls the /health routes.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains profiling configuration.
type DebugConfig struct {
	// PprofEnabled mounts pprof under /debug on the API port. Never enable
	// on a public listener.
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}
