// Package config provides centralized configuration management for codexplain.
// Settings are layered by viper: registered defaults, an optional config file,
// then CODEXPLAIN_* environment variables. Load decodes the merged settings
// into a typed Config once; quota values are not changed at runtime.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// AppName names the config and data directories.
	AppName = "codexplain"

	// EnvPrefix is prepended to every environment override.
	EnvPrefix = "CODEXPLAIN"
)

var (
	appConfig *Config
	configMu  sync.RWMutex
)

// SetDefaults registers every known key so env overrides can reach it.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "90s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_body_bytes", 256*1024)

	// Store defaults
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", "")
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	// Rate limit defaults
	v.SetDefault("rate_limit.server.max", 10)
	v.SetDefault("rate_limit.server.window", "1h")
	v.SetDefault("rate_limit.server.fallback_key", "unknown")
	v.SetDefault("rate_limit.server.max_keys", 100000)
	v.SetDefault("rate_limit.server.sweep_interval", "5m")
	v.SetDefault("rate_limit.client.max", 10)
	v.SetDefault("rate_limit.client.window", "1h")
	v.SetDefault("rate_limit.client.storage_key", "codexplain.rate-limit")

	// AILink defaults
	v.SetDefault("ailink.provider", "openai")
	v.SetDefault("ailink.base_url", "")
	v.SetDefault("ailink.api_key", "")
	v.SetDefault("ailink.model", "gpt-4o-mini")
	v.SetDefault("ailink.timeout", "60s")
	v.SetDefault("ailink.prompts_dir", "")
	v.SetDefault("ailink.prompt_slug", "code-explain")
	v.SetDefault("ailink.requests_per_second", 2.0)
	v.SetDefault("ailink.burst", 4)
	v.SetDefault("ailink.debug.capture_raw_enabled", false)
	v.SetDefault("ailink.debug.capture_raw_max_bytes", 4096)

	// Client defaults
	v.SetDefault("client.server_url", "http://localhost:8080")
	v.SetDefault("client.timeout", "90s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Health check defaults
	v.SetDefault("health.enabled", true)

	// Debug defaults
	v.SetDefault("debug.pprof_enabled", false)
}

// BindEnv enables CODEXPLAIN_SECTION_KEY overrides. The provider key also
// honours the conventional OPENAI_API_KEY.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("ailink.api_key", EnvPrefix+"_AILINK_API_KEY", "OPENAI_API_KEY")
}

// New returns a viper instance with defaults and env bindings applied.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	return v
}

// Load decodes the settings held by v, applies runtime overrides on top,
// validates the result, and makes it available through GetConfig.
//
// This function is safe to call multiple times (e.g., for config reload)
func Load(v *viper.Viper, runtimeOverrides ...map[string]any) (*Config, error) {
	if v == nil {
		v = New()
	}

	settings := v.AllSettings()
	for _, overrides := range runtimeOverrides {
		mergeSettings(settings, overrides)
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setConfig(cfg)
	return cfg, nil
}

// Validate checks the decoded configuration once at start-up.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server.max_body_bytes must be positive"))
	}
	if err := c.RateLimit.Server.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("rate_limit.server: %w", err))
	}
	if err := c.RateLimit.Client.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("rate_limit.client: %w", err))
	}
	if c.RateLimit.Server.MaxKeys < 0 {
		errs = append(errs, errors.New("rate_limit.server.max_keys must not be negative"))
	}
	if c.RateLimit.Server.SweepInterval < 0 {
		errs = append(errs, errors.New("rate_limit.server.sweep_interval must not be negative"))
	}
	if err := c.AILink.Validate(); err != nil {
		errs = append(errs, err)
	}
	if raw := strings.TrimSpace(c.Client.ServerURL); raw != "" {
		if parsed, err := url.Parse(raw); err != nil || parsed.Scheme == "" || parsed.Host == "" {
			errs = append(errs, fmt.Errorf("client.server_url is not an absolute URL: %q", raw))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// DefaultConfigDir returns the XDG-compliant config directory for the app.
func DefaultConfigDir() string {
	return gfconfig.GetAppConfigDir(AppName)
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := DefaultConfigDir()
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	return gfconfig.GetAppDataDir(AppName)
}

// DefaultStorePath returns the XDG-compliant path to the local database file.
func DefaultStorePath() string {
	dataDir := DefaultDataDir()
	if strings.TrimSpace(dataDir) == "" {
		return "./" + AppName + ".db"
	}
	return filepath.Join(dataDir, AppName+".db")
}

// mergeSettings deep-merges src into dst. Keys are lower-cased to match viper.
func mergeSettings(dst, src map[string]any) {
	for key, value := range src {
		key = strings.ToLower(key)
		if nested, ok := value.(map[string]any); ok {
			mergeSettings(ensureMap(dst, key), nested)
			continue
		}
		dst[key] = value
	}
}

func ensureMap(parent map[string]any, key string) map[string]any {
	if existing, ok := parent[key]; ok {
		if typed, ok := existing.(map[string]any); ok {
			return typed
		}
	}
	next := map[string]any{}
	parent[key] = next
	return next
}
