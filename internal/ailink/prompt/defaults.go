package prompt

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"
)

//go:embed prompts/*.md
var defaultPromptsFS embed.FS

// CodeExplainSlug names the embedded prompt used for explanations.
const CodeExplainSlug = "code-explain"

// LoadDefaults loads the embedded prompt set.
func LoadDefaults() ([]*Prompt, error) {
	sub, err := fs.Sub(defaultPromptsFS, "prompts")
	if err != nil {
		return nil, fmt.Errorf("read embedded prompts: %w", err)
	}
	return LoadFS(sub)
}

// DefaultRegistry builds a registry from embedded prompts.
func DefaultRegistry() (Registry, error) {
	return NewRegistryFromDir("")
}

// NewRegistryFromDir layers prompts from dir over the embedded set. An empty
// dir yields the embedded set alone.
func NewRegistryFromDir(dir string) (Registry, error) {
	prompts, err := LoadDefaults()
	if err != nil {
		return nil, err
	}
	base, err := NewRegistry(prompts)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(dir) == "" {
		return base, nil
	}
	overrides, err := LoadFromDir(dir)
	if err != nil {
		return nil, err
	}
	merged, err := base.With(overrides)
	if err != nil {
		return nil, err
	}
	return merged, nil
}
