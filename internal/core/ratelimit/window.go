// Package ratelimit implements the fixed-window quota shared by the
// authoritative server limiter and the advisory client limiter.
//
// Fixed windows reset fully at windowStart+windowLength. A caller can
// therefore land up to 2×Max requests across a window edge; this is the
// accepted cost of the simpler algorithm.
package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// Quota is a process-wide limit: Max requests per Window.
type Quota struct {
	Max    int           `mapstructure:"max" json:"max"`
	Window time.Duration `mapstructure:"window" json:"window"`
}

// Validate reports whether the quota can drive a limiter.
func (q Quota) Validate() error {
	if q.Max <= 0 {
		return fmt.Errorf("rate limit max must be positive, got %d", q.Max)
	}
	if q.Window <= 0 {
		return errors.New("rate limit window must be positive")
	}
	return nil
}

// WindowState is the counter for one key.
type WindowState struct {
	WindowStart  time.Time     `json:"windowStart"`
	Used         int           `json:"used"`
	Max          int           `json:"max"`
	WindowLength time.Duration `json:"windowLength"`
}

// NewWindowState returns an unused window for q starting at now.
func NewWindowState(q Quota, now time.Time) WindowState {
	return WindowState{WindowStart: now, Max: q.Max, WindowLength: q.Window}
}

// ResetAt is the instant the current window expires.
func (s WindowState) ResetAt() time.Time {
	return s.WindowStart.Add(s.WindowLength)
}

// expired reports whether now has reached the end of the window.
func (s WindowState) expired(now time.Time) bool {
	return !now.Before(s.ResetAt())
}

// consistent rejects states that could not have been produced by TryConsume.
// A state starting in the future is treated as corrupt as well.
func (s WindowState) consistent(now time.Time) bool {
	if s.Max <= 0 || s.WindowLength <= 0 {
		return false
	}
	if s.Used < 0 || s.Used > s.Max {
		return false
	}
	return !s.WindowStart.After(now)
}

// fresh applies the window-freshness check and returns the state that
// governs now. Inconsistent states are replaced by an empty window; the
// replacement keeps Max and WindowLength when they are usable.
func (s WindowState) fresh(now time.Time) WindowState {
	if !s.consistent(now) {
		q := Quota{Max: s.Max, Window: s.WindowLength}
		if q.Validate() != nil {
			// Nothing to recover. Max=0 admits nothing.
			return WindowState{WindowStart: now, WindowLength: s.WindowLength}
		}
		return NewWindowState(q, now)
	}
	if s.expired(now) {
		return WindowState{WindowStart: now, Max: s.Max, WindowLength: s.WindowLength}
	}
	return s
}

// TryConsume spends one unit of the window if any is left.
// The returned state must be stored by the caller whether or not the
// request was allowed, since a window rollover also yields a new state.
func TryConsume(state WindowState, now time.Time) (bool, WindowState) {
	next := state.fresh(now)
	if next.Used < next.Max {
		next.Used++
		return true, next
	}
	return false, next
}

// Remaining reports the unused units of the window governing now, clamped
// to [0, Max]. It never consumes.
func Remaining(state WindowState, now time.Time) int {
	next := state.fresh(now)
	remaining := next.Max - next.Used
	if remaining < 0 {
		return 0
	}
	if remaining > next.Max {
		return next.Max
	}
	return remaining
}
