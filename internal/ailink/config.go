package ailink

import (
	"fmt"
	"strings"
	"time"
)

// Config defines the completion provider used by the explainer.
type Config struct {
	Provider string        `mapstructure:"provider"`
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`

	// PromptsDir overrides the embedded prompt set.
	PromptsDir string `mapstructure:"prompts_dir"`
	PromptSlug string `mapstructure:"prompt_slug"`

	// RequestsPerSecond paces outbound provider calls for the whole process.
	// Zero disables pacing.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`

	Debug DebugConfig `mapstructure:"debug"`
}

type DebugConfig struct {
	CaptureRawEnabled  bool `mapstructure:"capture_raw_enabled"`
	CaptureRawMaxBytes int  `mapstructure:"capture_raw_max_bytes"`
}

// Validate checks settings that cannot be fixed at request time. A missing
// API key is allowed here and reported per request instead.
func (c Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Provider)) {
	case "", ProviderOpenAI:
	default:
		return fmt.Errorf("unsupported ailink provider %q", c.Provider)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("ailink model is required")
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("ailink requests_per_second must not be negative")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("ailink timeout must not be negative")
	}
	return nil
}

// Configured reports whether an API key is present.
func (c Config) Configured() bool {
	return strings.TrimSpace(c.APIKey) != ""
}
