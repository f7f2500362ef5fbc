package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/codexplain/codexplain/internal/clock"
)

// DefaultStorageKey names the persisted advisory state.
const DefaultStorageKey = "codexplain.rate-limit"

// ErrNotFound is returned by Storage when a key has no value.
var ErrNotFound = errors.New("storage: key not found")

// Storage is a small key/value store local to one user profile.
type Storage interface {
	GetItem(ctx context.Context, key string) (string, error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}

// ClientOptions configures a ClientLimiter.
type ClientOptions struct {
	Quota      Quota
	Storage    Storage
	Clock      clock.Clock
	StorageKey string

	// OnError observes storage failures; the limiter itself never fails.
	OnError func(op string, err error)
}

// ClientLimiter is the advisory limiter run before a network round trip.
// It only spares the user a request the server would reject; the server
// limiter remains the enforcement point.
//
// Two processes sharing the same storage may both read a stale state and
// overcount. That is accepted for an advisory check.
type ClientLimiter struct {
	quota   Quota
	storage Storage
	clock   clock.Clock
	key     string
	onError func(op string, err error)

	mu sync.Mutex
}

// NewClientLimiter builds an advisory limiter over storage.
func NewClientLimiter(opts ClientOptions) (*ClientLimiter, error) {
	if err := opts.Quota.Validate(); err != nil {
		return nil, err
	}
	if opts.Storage == nil {
		return nil, errors.New("client limiter requires storage")
	}
	key := strings.TrimSpace(opts.StorageKey)
	if key == "" {
		key = DefaultStorageKey
	}
	return &ClientLimiter{
		quota:   opts.Quota,
		storage: opts.Storage,
		clock:   clock.OrReal(opts.Clock),
		key:     key,
		onError: opts.OnError,
	}, nil
}

// Quota returns the configured quota.
func (c *ClientLimiter) Quota() Quota {
	return c.quota
}

// CheckLimit consumes one advisory unit and reports whether it was allowed.
func (c *ClientLimiter) CheckLimit(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	allowed, next := TryConsume(c.load(ctx), now)
	c.store(ctx, next)
	return allowed
}

// GetRemainingRequests reports the advisory remaining count without consuming.
func (c *ClientLimiter) GetRemainingRequests(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Remaining(c.load(ctx), c.clock.Now())
}

// State returns the governing window, mainly for display.
func (c *ClientLimiter) State(ctx context.Context) WindowState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.load(ctx).fresh(c.clock.Now())
}

// Reset forgets the persisted state.
func (c *ClientLimiter) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.storage.RemoveItem(ctx, c.key)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// load reads the persisted state. Missing, unreadable, or corrupt state and
// state written under a different quota all yield a fresh window.
func (c *ClientLimiter) load(ctx context.Context) WindowState {
	now := c.clock.Now()
	fresh := NewWindowState(c.quota, now)

	raw, err := c.storage.GetItem(ctx, c.key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.report("get", err)
		}
		return fresh
	}

	var state WindowState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		c.report("decode", err)
		return fresh
	}
	if state.Max != c.quota.Max || state.WindowLength != c.quota.Window {
		return fresh
	}
	if !state.consistent(now) {
		c.report("decode", errors.New("inconsistent rate limit state"))
		return fresh
	}
	return state
}

func (c *ClientLimiter) store(ctx context.Context, state WindowState) {
	data, err := json.Marshal(state)
	if err != nil {
		c.report("encode", err)
		return
	}
	if err := c.storage.SetItem(ctx, c.key, string(data)); err != nil {
		c.report("set", err)
	}
}

func (c *ClientLimiter) report(op string, err error) {
	if c.onError != nil {
		c.onError(op, err)
	}
}

// MemoryStorage is an in-process Storage.
type MemoryStorage struct {
	mu    sync.Mutex
	items map[string]string
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{items: make(map[string]string)}
}

func (m *MemoryStorage) GetItem(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.items[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryStorage) SetItem(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	return nil
}

func (m *MemoryStorage) RemoveItem(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}
