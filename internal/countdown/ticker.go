// Package countdown implements the per-question presentation timer: a
// decrementing seconds display seeded from the server-supplied time limit.
// It performs no drift correction; the server clock stays authoritative.
package countdown

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Ticker counts down once per second. At most one tick is pending at any
// time; each fire decrements the remaining count and reschedules only while
// time remains and Stop has not been called. The count never goes negative.
type Ticker struct {
	clock  clockwork.Clock
	onTick func(remaining int)

	mu        sync.Mutex
	remaining int
	done      chan struct{}
}

// New creates a ticker. onTick may be nil; it is invoked after every
// decrement with the updated remaining count.
func New(clock clockwork.Clock, onTick func(remaining int)) *Ticker {
	return &Ticker{clock: clock, onTick: onTick}
}

// Start cancels any running countdown and begins a new one from seconds.
// A non-positive seed leaves the ticker idle at 0.
func (t *Ticker) Start(seconds int) {
	t.Stop()

	t.mu.Lock()
	if seconds < 0 {
		seconds = 0
	}
	t.remaining = seconds
	if seconds == 0 {
		t.mu.Unlock()
		return
	}
	done := make(chan struct{})
	t.done = done
	t.mu.Unlock()

	// The first timer is registered before Start returns, so a restart's
	// pending tick exists the moment the caller regains control.
	go t.run(done, t.clock.NewTimer(time.Second))
}

// Stop cancels the pending tick immediately. The owning controller calls
// this the instant the phase changes away from question or it unmounts.
func (t *Ticker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done != nil {
		close(t.done)
		t.done = nil
	}
}

// Remaining returns the current count.
func (t *Ticker) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

func (t *Ticker) run(done chan struct{}, timer clockwork.Timer) {
	for {
		select {
		case <-done:
			stopAndDrainTimer(timer)
			return
		case <-timer.Chan():
		}

		t.mu.Lock()
		if t.done != done {
			// Stopped or restarted between the fire and the lock.
			t.mu.Unlock()
			return
		}
		t.remaining--
		remaining := t.remaining
		if remaining <= 0 {
			t.done = nil
		}
		t.mu.Unlock()

		if t.onTick != nil {
			t.onTick(remaining)
		}
		if remaining <= 0 {
			return
		}
		timer = t.clock.NewTimer(time.Second)
	}
}

// stopAndDrainTimer safely stops a timer and drains its channel, following
// the pattern recommended in the time.Timer.Stop documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
