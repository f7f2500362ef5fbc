package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codexplain/codexplain/internal/clock"
)

func newTestServerLimiter(t *testing.T, max int, window time.Duration) (*ServerLimiter, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(epoch)
	limiter, err := NewServerLimiter(ServerOptions{
		Quota: Quota{Max: max, Window: window},
		Clock: clk,
	})
	require.NoError(t, err)
	return limiter, clk
}

func TestServerLimiterScenario(t *testing.T) {
	limiter, clk := newTestServerLimiter(t, 10, 60*time.Second)

	for i := 0; i < 10; i++ {
		require.True(t, limiter.CheckLimit("203.0.113.7"), "call %d", i+1)
		clk.Advance(time.Second)
	}
	require.False(t, limiter.CheckLimit("203.0.113.7"))
	require.Equal(t, 0, limiter.GetRemaining("203.0.113.7"))

	clk.Advance(61 * time.Second)
	require.Equal(t, 10, limiter.GetRemaining("203.0.113.7"))
	require.True(t, limiter.CheckLimit("203.0.113.7"))
	require.Equal(t, 9, limiter.GetRemaining("203.0.113.7"))
}

func TestServerLimiterRemainingAfterK(t *testing.T) {
	limiter, _ := newTestServerLimiter(t, 5, time.Minute)

	require.Equal(t, 5, limiter.GetRemaining("a"))
	require.Equal(t, 0, limiter.Len(), "remaining must not insert keys")

	for k := 1; k <= 7; k++ {
		limiter.CheckLimit("a")
		want := 5 - k
		if want < 0 {
			want = 0
		}
		require.Equal(t, want, limiter.GetRemaining("a"))
	}
}

func TestServerLimiterKeysAreIndependent(t *testing.T) {
	limiter, _ := newTestServerLimiter(t, 1, time.Minute)

	require.True(t, limiter.CheckLimit("a"))
	require.False(t, limiter.CheckLimit("a"))
	require.True(t, limiter.CheckLimit("b"))
}

func TestServerLimiterConcurrentAdmissions(t *testing.T) {
	const n = 50
	limiter, _ := newTestServerLimiter(t, n, time.Minute)

	var (
		admitted atomic.Int64
		rejected atomic.Int64
		wg       sync.WaitGroup
		start    = make(chan struct{})
	)
	for i := 0; i < 2*n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if limiter.CheckLimit("shared") {
				admitted.Add(1)
			} else {
				rejected.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, int64(n), admitted.Load())
	require.Equal(t, int64(n), rejected.Load())
	require.Equal(t, 0, limiter.GetRemaining("shared"))
}

func TestServerLimiterEmptyKeyUsesFallback(t *testing.T) {
	limiter, _ := newTestServerLimiter(t, 2, time.Minute)

	require.True(t, limiter.CheckLimit(""))
	require.True(t, limiter.CheckLimit("  "))
	require.False(t, limiter.CheckLimit(DefaultFallbackKey))
	require.Equal(t, DefaultFallbackKey, limiter.FallbackKey())
}

func TestServerLimiterConsumeDecision(t *testing.T) {
	limiter, clk := newTestServerLimiter(t, 1, time.Minute)

	first := limiter.Consume("k")
	require.True(t, first.Allowed)
	require.Equal(t, 1, first.Limit)
	require.Equal(t, 0, first.Remaining)
	require.Equal(t, epoch.Add(time.Minute), first.ResetAt)
	require.Zero(t, first.RetryAfter)

	clk.Advance(20 * time.Second)
	second := limiter.Consume("k")
	require.False(t, second.Allowed)
	require.Equal(t, 40*time.Second, second.RetryAfter)
}

func TestServerLimiterSweep(t *testing.T) {
	limiter, clk := newTestServerLimiter(t, 3, time.Minute)

	limiter.CheckLimit("old")
	clk.Advance(30 * time.Second)
	limiter.CheckLimit("new")

	require.Equal(t, 0, limiter.Sweep(clk.Now()))
	require.Equal(t, 1, limiter.Sweep(epoch.Add(time.Minute)))
	require.Equal(t, 1, limiter.Len())
	require.Equal(t, 2, limiter.GetRemaining("new"))
}

func TestServerLimiterMaxKeysFoldsIntoFallback(t *testing.T) {
	clk := clock.NewManual(epoch)
	var decisions []Decision
	limiter, err := NewServerLimiter(ServerOptions{
		Quota:      Quota{Max: 2, Window: time.Minute},
		Clock:      clk,
		MaxKeys:    2,
		OnDecision: func(d Decision) { decisions = append(decisions, d) },
	})
	require.NoError(t, err)

	require.True(t, limiter.CheckLimit("a"))
	require.True(t, limiter.CheckLimit("b"))
	require.True(t, limiter.CheckLimit("c"))
	require.False(t, limiter.CheckLimit("d"))

	require.Len(t, decisions, 4)
	require.Equal(t, "a", decisions[0].Key)
	require.Equal(t, DefaultFallbackKey, decisions[1].Key)
	require.Equal(t, DefaultFallbackKey, decisions[3].Key)

	clk.Advance(time.Minute)
	require.True(t, limiter.CheckLimit("e"))
	require.Equal(t, "e", decisions[4].Key)
}

func TestServerLimiterMaxKeysCountsFallback(t *testing.T) {
	limiter, err := NewServerLimiter(ServerOptions{
		Quota:   Quota{Max: 10, Window: time.Minute},
		Clock:   clock.NewManual(epoch),
		MaxKeys: 3,
	})
	require.NoError(t, err)

	for _, key := range []string{"a", "b", "c", "d", "e"} {
		require.True(t, limiter.CheckLimit(key), key)
		require.LessOrEqual(t, limiter.Len(), 3, "after %s", key)
	}
	require.Equal(t, 3, limiter.Len())
	require.Equal(t, 7, limiter.GetRemaining(DefaultFallbackKey))
}

func TestServerLimiterClockStepBackKeepsWindow(t *testing.T) {
	limiter, clk := newTestServerLimiter(t, 2, time.Hour)

	require.True(t, limiter.CheckLimit("a"))
	require.True(t, limiter.CheckLimit("a"))
	require.False(t, limiter.CheckLimit("a"))

	clk.Advance(-time.Second)
	require.Equal(t, 0, limiter.GetRemaining("a"))
	require.False(t, limiter.CheckLimit("a"))

	d := limiter.Consume("a")
	require.False(t, d.Allowed)
	require.Equal(t, time.Hour, d.RetryAfter)

	clk.Advance(time.Hour + time.Second)
	require.True(t, limiter.CheckLimit("a"))
}

func TestServerLimiterRunSweeperStopsOnCancel(t *testing.T) {
	limiter, err := NewServerLimiter(ServerOptions{Quota: Quota{Max: 1, Window: time.Millisecond}})
	require.NoError(t, err)
	limiter.CheckLimit("a")

	ctx, cancel := context.WithCancel(context.Background())
	var sweeps atomic.Int64
	done := make(chan struct{})
	go func() {
		limiter.RunSweeper(ctx, 5*time.Millisecond, func(int, int) { sweeps.Add(1) })
		close(done)
	}()

	require.Eventually(t, func() bool { return limiter.Len() == 0 }, time.Second, 5*time.Millisecond)
	require.Positive(t, sweeps.Load())
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestNewServerLimiterRejectsInvalidQuota(t *testing.T) {
	_, err := NewServerLimiter(ServerOptions{Quota: Quota{Max: 0, Window: time.Minute}})
	require.Error(t, err)
}
