// Package thinktimer implements the thinking-delay gate: after an assistant
// turn starts, the learner's submit control stays disabled for a fixed
// number of seconds.
package thinktimer

import (
	"sync"
	"time"
)

// State is the gate's lifecycle state. The "started" latch is tracked
// separately because it outlives a single countdown.
type State int

const (
	Idle State = iota
	Active
	Expired
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Expired:
		return "expired"
	default:
		return "idle"
	}
}

// Snapshot is a consistent view of a Timer.
type Snapshot struct {
	State     State
	Duration  Duration
	Remaining int
	Started   bool
}

// Active reports whether the gate is counting down.
func (s Snapshot) Active() bool { return s.State == Active }

// SubmitEnabled reports whether the learner may send the next message.
func (s Snapshot) SubmitEnabled() bool { return s.State != Active }

// Option configures a Timer.
type Option func(*Timer)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(t *Timer) { t.clock = c }
}

// WithOnChange registers a callback invoked after every state change.
// It runs outside the timer's lock and may call back into the timer.
func WithOnChange(fn func(Snapshot)) Option {
	return func(t *Timer) { t.onChange = fn }
}

// Timer is one thinking-delay session.
type Timer struct {
	mu        sync.Mutex
	clock     Clock
	onChange  func(Snapshot)
	duration  Duration
	remaining int
	state     State
	started   bool

	// pending is the single scheduled tick; gen invalidates ticks that were
	// already in flight when the session was stopped or restarted.
	pending Stopper
	gen     uint64
}

// New creates an idle timer for the given delay.
func New(d Duration, opts ...Option) *Timer {
	t := &Timer{
		clock:     RealClock{},
		duration:  d,
		remaining: int(d),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Configure changes the delay. Remaining time follows the new delay only
// while no countdown is running.
func (t *Timer) Configure(d Duration) {
	t.mu.Lock()
	t.duration = d
	if t.state != Active {
		t.remaining = int(d)
	}
	snap := t.snapshotLocked()
	t.mu.Unlock()
	t.notify(snap)
}

// Start arms the gate for the current turn. It does nothing when the delay
// is zero or the timer was already started and not reset since.
func (t *Timer) Start() {
	t.mu.Lock()
	if t.started || t.duration <= 0 {
		t.mu.Unlock()
		return
	}
	t.started = true
	t.state = Active
	t.remaining = int(t.duration)
	t.gen++
	t.scheduleLocked()
	snap := t.snapshotLocked()
	t.mu.Unlock()
	t.notify(snap)
}

// ResetStarted clears the started latch so the next Start re-arms the gate.
func (t *Timer) ResetStarted() {
	t.mu.Lock()
	changed := t.started
	t.started = false
	snap := t.snapshotLocked()
	t.mu.Unlock()
	if changed {
		t.notify(snap)
	}
}

// Stop releases the pending tick and returns the gate to idle. It is safe
// to call on every exit path, any number of times.
func (t *Timer) Stop() {
	t.mu.Lock()
	wasActive := t.state == Active
	t.cancelLocked()
	t.gen++
	t.state = Idle
	t.remaining = int(t.duration)
	snap := t.snapshotLocked()
	t.mu.Unlock()
	if wasActive {
		t.notify(snap)
	}
}

// IsActive reports whether the countdown is running.
func (t *Timer) IsActive() bool {
	return t.Snapshot().Active()
}

// IsStarted reports the started latch.
func (t *Timer) IsStarted() bool {
	return t.Snapshot().Started
}

// Remaining returns the seconds left, or the full delay when idle.
func (t *Timer) Remaining() int {
	return t.Snapshot().Remaining
}

// Duration returns the configured delay.
func (t *Timer) Duration() Duration {
	return t.Snapshot().Duration
}

// State returns the lifecycle state.
func (t *Timer) State() State {
	return t.Snapshot().State
}

// SubmitEnabled reports whether the learner may submit.
func (t *Timer) SubmitEnabled() bool {
	return t.Snapshot().SubmitEnabled()
}

// Snapshot returns the current state.
func (t *Timer) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Timer) tick(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.state != Active {
		t.mu.Unlock()
		return
	}
	t.pending = nil
	if t.remaining <= 1 {
		t.state = Expired
		t.remaining = int(t.duration)
	} else {
		t.remaining--
		t.scheduleLocked()
	}
	snap := t.snapshotLocked()
	t.mu.Unlock()
	t.notify(snap)
}

func (t *Timer) scheduleLocked() {
	t.cancelLocked()
	gen := t.gen
	t.pending = t.clock.AfterFunc(time.Second, func() { t.tick(gen) })
}

func (t *Timer) cancelLocked() {
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
}

func (t *Timer) snapshotLocked() Snapshot {
	return Snapshot{
		State:     t.state,
		Duration:  t.duration,
		Remaining: t.remaining,
		Started:   t.started,
	}
}

func (t *Timer) notify(s Snapshot) {
	if t.onChange != nil {
		t.onChange(s)
	}
}
