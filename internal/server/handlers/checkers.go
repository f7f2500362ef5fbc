package handlers

import (
	"context"
	"fmt"
)

// LimiterStats is the view of the server limiter used by health checks.
type LimiterStats interface {
	Len() int
}

// LimiterChecker reports degraded once the limiter tracks MaxKeys keys, at
// which point new callers share the fallback bucket.
type LimiterChecker struct {
	Limiter LimiterStats
	MaxKeys int
}

func (c LimiterChecker) CheckHealth(context.Context) error {
	if c.Limiter == nil {
		return fmt.Errorf("rate limiter not initialized")
	}
	if c.MaxKeys > 0 && c.Limiter.Len() >= c.MaxKeys {
		return fmt.Errorf("rate limiter at key capacity (%d): %w", c.MaxKeys, ErrDegraded)
	}
	return nil
}

// ExplainerChecker reports degraded when the provider has no credentials.
// Requests are still admitted and answered with a 500.
type ExplainerChecker struct {
	Configured func() bool
}

func (c ExplainerChecker) CheckHealth(context.Context) error {
	if c.Configured == nil || !c.Configured() {
		return fmt.Errorf("explainer provider not configured: %w", ErrDegraded)
	}
	return nil
}
