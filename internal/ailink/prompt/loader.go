package prompt

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	slugPattern     = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)
	variablePattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)
)

var frontmatterFence = []byte("---")

// Load parses and validates one prompt. data is either a markdown file whose
// YAML frontmatter holds the config and whose body is the system template, or
// a plain YAML document.
func Load(source string, data []byte) (*Prompt, error) {
	cfg, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("parse prompt %s: %w", source, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate prompt %s: %w", source, err)
	}
	return &Prompt{Config: cfg, Source: source}, nil
}

// LoadFS loads every *.md prompt at the root of fsys in name order.
func LoadFS(fsys fs.FS) ([]*Prompt, error) {
	names, err := fs.Glob(fsys, "*.md")
	if err != nil {
		return nil, fmt.Errorf("scan prompts: %w", err)
	}
	slices.Sort(names)

	prompts := make([]*Prompt, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read prompt %s: %w", name, err)
		}
		p, err := Load(name, data)
		if err != nil {
			return nil, err
		}
		prompts = append(prompts, p)
	}
	return prompts, nil
}

// LoadFromDir loads operator prompts from dir.
func LoadFromDir(dir string) ([]*Prompt, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("prompt dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("prompt dir %s is not a directory", dir)
	}
	prompts, err := LoadFS(os.DirFS(dir))
	for _, p := range prompts {
		p.Source = path.Join(dir, p.Source)
	}
	return prompts, err
}

// Render substitutes {{name}} placeholders in the user template. Every
// required variable must be present in vars; unknown placeholders render
// empty.
func (p *Prompt) Render(vars map[string]string) (string, error) {
	if p == nil {
		return "", errors.New("prompt is nil")
	}
	for _, name := range p.Config.Input.RequiredVariables {
		if _, ok := vars[name]; !ok {
			return "", fmt.Errorf("prompt %s: missing variable %q", p.Config.Slug, name)
		}
	}
	return variablePattern.ReplaceAllStringFunc(p.Config.UserTemplate, func(match string) string {
		return vars[variablePattern.FindStringSubmatch(match)[1]]
	}), nil
}

func decode(data []byte) (Config, error) {
	var cfg Config
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return cfg, errors.New("empty prompt")
	}

	if !bytes.HasPrefix(data, frontmatterFence) {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("invalid yaml: %w", err)
		}
		return cfg, nil
	}

	rest := bytes.TrimLeft(data[len(frontmatterFence):], " \t\r")
	header, body, found := bytes.Cut(rest, append([]byte("\n"), frontmatterFence...))
	if !found {
		return cfg, errors.New("unterminated frontmatter")
	}
	if err := yaml.Unmarshal(header, &cfg); err != nil {
		return cfg, fmt.Errorf("invalid frontmatter: %w", err)
	}
	if strings.TrimSpace(cfg.SystemTemplate) == "" {
		cfg.SystemTemplate = strings.TrimSpace(string(body))
	}
	return cfg, nil
}

func (cfg Config) validate() error {
	if !slugPattern.MatchString(cfg.Slug) {
		return fmt.Errorf("invalid slug %q", cfg.Slug)
	}
	if strings.TrimSpace(cfg.SystemTemplate) == "" {
		return errors.New("system_template or a markdown body is required")
	}
	if strings.TrimSpace(cfg.UserTemplate) == "" {
		return errors.New("user_template is required")
	}

	referenced := map[string]bool{}
	for _, m := range variablePattern.FindAllStringSubmatch(cfg.UserTemplate, -1) {
		referenced[m[1]] = true
	}
	for _, name := range cfg.Input.RequiredVariables {
		if !referenced[name] {
			return fmt.Errorf("required variable %q not referenced by user_template", name)
		}
	}

	if cfg.ResponseSchema != nil {
		if kind, _ := cfg.ResponseSchema["type"].(string); kind != "object" {
			return errors.New("response_schema must describe an object")
		}
	}
	if cfg.MaxTokens != nil && *cfg.MaxTokens <= 0 {
		return errors.New("max_tokens must be positive")
	}
	return nil
}
