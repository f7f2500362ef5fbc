package prompt

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ErrNotFound is returned for slugs the registry does not hold.
var ErrNotFound = errors.New("prompt not found")

// Registry resolves prompt definitions by slug.
type Registry interface {
	Get(slug string) (*Prompt, error)
	Slugs() []string
}

// Set is an immutable slug-indexed Registry.
type Set struct {
	bySlug map[string]*Prompt
}

// NewRegistry indexes prompts by slug. Duplicate slugs are rejected.
func NewRegistry(prompts []*Prompt) (*Set, error) {
	s := &Set{bySlug: make(map[string]*Prompt, len(prompts))}
	if err := s.add(prompts, false); err != nil {
		return nil, err
	}
	return s, nil
}

// With returns a copy of s where overrides replace prompts of the same slug
// and new slugs are added.
func (s *Set) With(overrides []*Prompt) (*Set, error) {
	next := &Set{bySlug: maps.Clone(s.bySlug)}
	if next.bySlug == nil {
		next.bySlug = make(map[string]*Prompt, len(overrides))
	}
	seen := make(map[string]bool, len(overrides))
	for _, p := range overrides {
		if p == nil {
			continue
		}
		slug := strings.TrimSpace(p.Config.Slug)
		if seen[slug] {
			return nil, fmt.Errorf("duplicate prompt slug in overrides: %s", slug)
		}
		seen[slug] = true
	}
	if err := next.add(overrides, true); err != nil {
		return nil, err
	}
	return next, nil
}

// Get returns the prompt for slug.
func (s *Set) Get(slug string) (*Prompt, error) {
	if s == nil {
		return nil, errors.New("prompt registry not configured")
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, errors.New("prompt slug is required")
	}
	p, ok := s.bySlug[slug]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, slug)
	}
	return p, nil
}

// Slugs returns the registered slugs in order.
func (s *Set) Slugs() []string {
	if s == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(s.bySlug))
}

func (s *Set) add(prompts []*Prompt, replace bool) error {
	for _, p := range prompts {
		if p == nil {
			continue
		}
		slug := strings.TrimSpace(p.Config.Slug)
		if slug == "" {
			return errors.New("prompt missing slug")
		}
		if _, ok := s.bySlug[slug]; ok && !replace {
			return fmt.Errorf("duplicate prompt slug: %s", slug)
		}
		s.bySlug[slug] = p
	}
	return nil
}
