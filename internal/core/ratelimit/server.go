package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/codexplain/codexplain/internal/clock"
)

// DefaultFallbackKey is the shared bucket for requests with no usable identity.
const DefaultFallbackKey = "unknown"

// Decision is the outcome of a consuming check.
type Decision struct {
	Key        string
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// ServerOptions configures a ServerLimiter.
type ServerOptions struct {
	Quota Quota
	Clock clock.Clock

	// FallbackKey receives unresolved keys and keys admitted past MaxKeys.
	FallbackKey string

	// MaxKeys bounds the number of tracked keys, fallback bucket included.
	// Zero means unbounded.
	MaxKeys int

	// OnDecision, when set, observes every consuming check outside the lock.
	OnDecision func(Decision)
}

// ServerLimiter is the authoritative per-key fixed-window limiter.
//
// The key table is guarded by mu; each entry carries its own mutex so
// that the read-modify-write for one key never waits on another key.
type ServerLimiter struct {
	quota      Quota
	clock      clock.Clock
	fallback   string
	maxKeys    int
	onDecision func(Decision)

	mu      sync.RWMutex
	entries map[string]*serverEntry
}

type serverEntry struct {
	mu      sync.Mutex
	state   WindowState
	evicted bool
}

// NewServerLimiter builds a limiter owning an empty key table.
func NewServerLimiter(opts ServerOptions) (*ServerLimiter, error) {
	if err := opts.Quota.Validate(); err != nil {
		return nil, err
	}
	fallback := strings.TrimSpace(opts.FallbackKey)
	if fallback == "" {
		fallback = DefaultFallbackKey
	}
	maxKeys := opts.MaxKeys
	if maxKeys < 0 {
		maxKeys = 0
	}
	return &ServerLimiter{
		quota:      opts.Quota,
		clock:      clock.OrReal(opts.Clock),
		fallback:   fallback,
		maxKeys:    maxKeys,
		onDecision: opts.OnDecision,
		entries:    make(map[string]*serverEntry),
	}, nil
}

// Quota returns the configured quota.
func (l *ServerLimiter) Quota() Quota {
	return l.quota
}

// FallbackKey returns the shared bucket name.
func (l *ServerLimiter) FallbackKey() string {
	return l.fallback
}

// CheckLimit consumes one unit for key and reports whether it was allowed.
func (l *ServerLimiter) CheckLimit(key string) bool {
	return l.Consume(key).Allowed
}

// Consume is CheckLimit with the full decision.
func (l *ServerLimiter) Consume(key string) Decision {
	key = l.normalize(key)

	var (
		allowed bool
		next    WindowState
		now     time.Time
	)
	for {
		var entry *serverEntry
		entry, key = l.entry(key)

		entry.mu.Lock()
		if entry.evicted {
			// Swept between lookup and lock; charge the live entry instead.
			entry.mu.Unlock()
			continue
		}
		now = notBefore(entry.state, l.clock.Now())
		allowed, next = TryConsume(entry.state, now)
		entry.state = next
		entry.mu.Unlock()
		break
	}

	decision := Decision{
		Key:       key,
		Allowed:   allowed,
		Limit:     next.Max,
		Remaining: Remaining(next, now),
		ResetAt:   next.ResetAt(),
	}
	if !allowed {
		decision.RetryAfter = next.ResetAt().Sub(now)
	}
	if l.onDecision != nil {
		l.onDecision(decision)
	}
	return decision
}

// GetRemaining reports the unused quota for key without consuming it.
// Unknown keys report the full quota and are not inserted.
func (l *ServerLimiter) GetRemaining(key string) int {
	key = l.normalize(key)

	l.mu.RLock()
	entry, ok := l.entries[key]
	l.mu.RUnlock()
	if !ok {
		return l.quota.Max
	}

	entry.mu.Lock()
	state := entry.state
	entry.mu.Unlock()

	return Remaining(state, notBefore(state, l.clock.Now()))
}

// notBefore pins now to the window start. Server windows are only ever
// created by this process, so a start in the future means the clock
// stepped backwards and the window is still running.
func notBefore(state WindowState, now time.Time) time.Time {
	if now.Before(state.WindowStart) {
		return state.WindowStart
	}
	return now
}

// Sweep drops entries whose window ended before now and returns how many
// were removed. The fallback bucket is swept like any other key.
func (l *ServerLimiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sweepLocked(now)
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (l *ServerLimiter) RunSweeper(ctx context.Context, interval time.Duration, onSweep func(removed, remaining int)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := l.Sweep(l.clock.Now())
			if onSweep != nil {
				onSweep(removed, l.Len())
			}
		}
	}
}

// Len returns the number of tracked keys.
func (l *ServerLimiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func (l *ServerLimiter) normalize(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return l.fallback
	}
	return key
}

// entry returns the entry for key, creating it on first use. When the table
// is full and a sweep frees nothing, the key is folded into the fallback
// bucket; the returned string is the key actually charged.
func (l *ServerLimiter) entry(key string) (*serverEntry, string) {
	l.mu.RLock()
	entry, ok := l.entries[key]
	l.mu.RUnlock()
	if ok {
		return entry, key
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, ok := l.entries[key]; ok {
		return entry, key
	}

	if l.atCapacityLocked(key) {
		l.sweepLocked(l.clock.Now())
		if l.atCapacityLocked(key) {
			key = l.fallback
			if entry, ok := l.entries[key]; ok {
				return entry, key
			}
		}
	}

	entry = &serverEntry{state: NewWindowState(l.quota, l.clock.Now())}
	l.entries[key] = entry
	return entry, key
}

// atCapacityLocked reports whether inserting key would break MaxKeys. One
// slot stays reserved for the fallback bucket until it exists.
func (l *ServerLimiter) atCapacityLocked(key string) bool {
	if l.maxKeys == 0 {
		return false
	}
	limit := l.maxKeys
	if _, ok := l.entries[l.fallback]; !ok && key != l.fallback {
		limit--
	}
	return len(l.entries) >= limit
}

func (l *ServerLimiter) sweepLocked(now time.Time) int {
	removed := 0
	for key, entry := range l.entries {
		entry.mu.Lock()
		if entry.state.expired(now) {
			entry.evicted = true
			delete(l.entries, key)
			removed++
		}
		entry.mu.Unlock()
	}
	return removed
}
