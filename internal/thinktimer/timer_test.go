package thinktimer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManualTimer(d Duration) (*Timer, *ManualClock) {
	clock := NewManualClock()
	return New(d, WithClock(clock)), clock
}

func TestTimer_CountdownGatesSubmit(t *testing.T) {
	timer, clock := newManualTimer(Short)

	assert.True(t, timer.SubmitEnabled(), "enabled before start")
	assert.Equal(t, 5, timer.Remaining())

	timer.Start()
	require.True(t, timer.IsActive())
	assert.True(t, timer.IsStarted())
	assert.Equal(t, 5, timer.Remaining())

	for tick := 1; tick <= 4; tick++ {
		clock.Advance(time.Second)
		assert.True(t, timer.IsActive(), "tick %d", tick)
		assert.False(t, timer.SubmitEnabled(), "tick %d", tick)
		assert.Equal(t, 5-tick, timer.Remaining(), "tick %d", tick)
	}

	clock.Advance(time.Second)
	assert.False(t, timer.IsActive())
	assert.True(t, timer.SubmitEnabled())
	assert.Equal(t, 5, timer.Remaining(), "remaining resets to the full delay")
	assert.Equal(t, Expired, timer.State())
	assert.Equal(t, 0, clock.Pending(), "no tick left behind after expiry")

	clock.Advance(10 * time.Second)
	assert.Equal(t, 5, timer.Remaining())
	assert.True(t, timer.SubmitEnabled())
}

func TestTimer_ZeroDurationNeverActivates(t *testing.T) {
	var snaps []Snapshot
	clock := NewManualClock()
	timer := New(None, WithClock(clock), WithOnChange(func(s Snapshot) { snaps = append(snaps, s) }))

	timer.Start()
	assert.False(t, timer.IsActive())
	assert.False(t, timer.IsStarted())
	assert.True(t, timer.SubmitEnabled())
	assert.Equal(t, 0, clock.Pending())

	clock.Advance(time.Minute)
	assert.True(t, timer.SubmitEnabled())
	assert.Empty(t, snaps)
}

func TestTimer_StartIsIdempotent(t *testing.T) {
	once, onceClock := newManualTimer(Short)
	twice, twiceClock := newManualTimer(Short)

	once.Start()
	twice.Start()
	twiceClock.Advance(2 * time.Second)
	onceClock.Advance(2 * time.Second)
	twice.Start()

	assert.Equal(t, once.Snapshot(), twice.Snapshot())
	assert.Equal(t, 1, twiceClock.Pending(), "a second Start must not schedule another tick")

	onceClock.Advance(3 * time.Second)
	twiceClock.Advance(3 * time.Second)
	assert.Equal(t, once.Snapshot(), twice.Snapshot())
	assert.False(t, twice.IsActive())
}

func TestTimer_StartAfterExpiryNeedsReset(t *testing.T) {
	timer, clock := newManualTimer(Short)
	timer.Start()
	clock.Advance(5 * time.Second)
	require.False(t, timer.IsActive())

	timer.Start()
	assert.False(t, timer.IsActive(), "latched until ResetStarted")

	timer.ResetStarted()
	assert.False(t, timer.IsStarted())
	timer.Start()
	assert.True(t, timer.IsActive())
	assert.Equal(t, 5, timer.Remaining())
}

func TestTimer_ConfigureWhileActiveKeepsRemaining(t *testing.T) {
	timer, clock := newManualTimer(Long)
	timer.Start()
	clock.Advance(3 * time.Second)
	require.Equal(t, 27, timer.Remaining())

	timer.Configure(Short)
	assert.Equal(t, 27, timer.Remaining())
	assert.Equal(t, Short, timer.Duration())

	timer.Stop()
	assert.Equal(t, 5, timer.Remaining())

	timer.Configure(Long)
	assert.Equal(t, 30, timer.Remaining())
}

func TestTimer_ExpiryResetsToConfiguredDuration(t *testing.T) {
	timer, clock := newManualTimer(Long)
	timer.Start()
	clock.Advance(28 * time.Second)
	timer.Configure(Short)

	clock.Advance(2 * time.Second)
	assert.False(t, timer.IsActive())
	assert.Equal(t, 5, timer.Remaining())
}

func TestTimer_StopCancelsPendingTick(t *testing.T) {
	timer, clock := newManualTimer(Short)
	timer.Start()
	clock.Advance(time.Second)

	timer.Stop()
	assert.False(t, timer.IsActive())
	assert.Equal(t, 0, clock.Pending())
	assert.Equal(t, 5, timer.Remaining())

	clock.Advance(10 * time.Second)
	assert.Equal(t, 5, timer.Remaining(), "stopped session must not keep counting")

	timer.Stop()
	assert.Equal(t, Idle, timer.State())
}

func TestTimer_StaleTickIgnoredAfterRestart(t *testing.T) {
	clock := NewManualClock()
	timer := New(Short, WithClock(clock))
	timer.Start()

	// Capture the in-flight tick, stop, and re-arm a fresh session.
	stale := clock.pending[0].fn
	timer.Stop()
	timer.ResetStarted()
	timer.Start()

	stale()
	assert.Equal(t, 5, timer.Remaining(), "tick from the previous session is ignored")
}

func TestTimer_OnChangeSequence(t *testing.T) {
	var remaining []int
	var active []bool
	clock := NewManualClock()
	timer := New(Short, WithClock(clock), WithOnChange(func(s Snapshot) {
		remaining = append(remaining, s.Remaining)
		active = append(active, s.Active())
	}))

	timer.Start()
	clock.Advance(5 * time.Second)

	assert.Equal(t, []int{5, 4, 3, 2, 1, 5}, remaining)
	assert.Equal(t, []bool{true, true, true, true, true, false}, active)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    Duration
		wantErr bool
	}{
		{in: "0", want: None},
		{in: "5", want: Short},
		{in: "30s", want: Long},
		{in: " 5 ", want: Short},
		{in: "10", wantErr: true},
		{in: "-5", wantErr: true},
		{in: "soon", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDurationLabels(t *testing.T) {
	labels := make([]string, 0, len(Choices()))
	for _, d := range Choices() {
		labels = append(labels, d.Label())
	}
	assert.Equal(t, []string{"No Delay", "5 seconds", "30 seconds"}, labels)
	assert.Equal(t, 30*time.Second, Long.Std())
}

func TestResponseTimer(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rt := NewResponseTimer()
	rt.now = func() time.Time { return now }

	_, ok := rt.Stop()
	assert.False(t, ok)

	rt.Start()
	assert.True(t, rt.Running())
	now = now.Add(12500 * time.Millisecond)

	elapsed, ok := rt.Stop()
	require.True(t, ok)
	assert.Equal(t, 12500*time.Millisecond, elapsed)
	assert.False(t, rt.Running())

	rt.Start()
	rt.Reset()
	_, ok = rt.Stop()
	assert.False(t, ok)
}
