package thinktimer

import (
	"sync"
	"time"
)

// ResponseTimer measures how long the learner spends before answering:
// it starts when an assistant response arrives and stops on the next send.
type ResponseTimer struct {
	mu      sync.Mutex
	now     func() time.Time
	started time.Time
	running bool
}

// NewResponseTimer creates a stopped response timer.
func NewResponseTimer() *ResponseTimer {
	return &ResponseTimer{now: time.Now}
}

// Start records the current time. Calling it while running restarts the
// measurement.
func (r *ResponseTimer) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = r.now()
	r.running = true
}

// Stop returns the elapsed time and clears the timer. ok is false when
// the timer was not running.
func (r *ResponseTimer) Stop() (elapsed time.Duration, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return 0, false
	}
	elapsed = r.now().Sub(r.started)
	r.running = false
	r.started = time.Time{}
	return elapsed, true
}

// Reset clears the timer without reporting.
func (r *ResponseTimer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
	r.started = time.Time{}
}

// Running reports whether a measurement is in progress.
func (r *ResponseTimer) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
