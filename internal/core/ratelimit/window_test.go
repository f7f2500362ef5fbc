package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestTryConsumeAdmitsUpToMax(t *testing.T) {
	state := NewWindowState(Quota{Max: 3, Window: time.Minute}, epoch)

	for i := 0; i < 3; i++ {
		var allowed bool
		allowed, state = TryConsume(state, epoch.Add(time.Duration(i)*time.Second))
		require.True(t, allowed, "call %d", i+1)
	}

	allowed, next := TryConsume(state, epoch.Add(10*time.Second))
	require.False(t, allowed)
	require.Equal(t, state, next)
	require.Equal(t, 3, next.Used)
}

func TestTryConsumeResetsAtWindowEdge(t *testing.T) {
	state := WindowState{WindowStart: epoch, Used: 2, Max: 2, WindowLength: time.Minute}

	allowed, _ := TryConsume(state, epoch.Add(time.Minute-time.Nanosecond))
	require.False(t, allowed)

	allowed, next := TryConsume(state, epoch.Add(time.Minute))
	require.True(t, allowed)
	require.Equal(t, 1, next.Used)
	require.Equal(t, epoch.Add(time.Minute), next.WindowStart)
}

func TestRemainingDoesNotConsume(t *testing.T) {
	state := WindowState{WindowStart: epoch, Used: 1, Max: 4, WindowLength: time.Minute}

	require.Equal(t, 3, Remaining(state, epoch.Add(time.Second)))
	require.Equal(t, 3, Remaining(state, epoch.Add(time.Second)))
	require.Equal(t, 1, state.Used)
	require.Equal(t, 4, Remaining(state, epoch.Add(2*time.Minute)))
}

func TestInconsistentStateIsTreatedAsReset(t *testing.T) {
	cases := map[string]WindowState{
		"negative used":  {WindowStart: epoch, Used: -5, Max: 2, WindowLength: time.Minute},
		"used above max": {WindowStart: epoch, Used: 9, Max: 2, WindowLength: time.Minute},
		"future start":   {WindowStart: epoch.Add(time.Hour), Used: 2, Max: 2, WindowLength: time.Minute},
	}
	for name, state := range cases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, 2, Remaining(state, epoch))
			allowed, next := TryConsume(state, epoch)
			require.True(t, allowed)
			require.Equal(t, 1, next.Used)
			require.Equal(t, epoch, next.WindowStart)
		})
	}
}

func TestUnusableStateAdmitsNothing(t *testing.T) {
	state := WindowState{WindowStart: epoch, Used: 0, Max: 0, WindowLength: time.Minute}

	allowed, next := TryConsume(state, epoch)
	require.False(t, allowed)
	require.Equal(t, 0, next.Used)
	require.Equal(t, 0, Remaining(state, epoch))
}

func TestQuotaValidate(t *testing.T) {
	require.NoError(t, Quota{Max: 1, Window: time.Second}.Validate())
	require.Error(t, Quota{Max: 0, Window: time.Second}.Validate())
	require.Error(t, Quota{Max: 1}.Validate())
}
