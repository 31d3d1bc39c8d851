package countdown

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

type tickRecorder struct {
	mu    sync.Mutex
	ticks []int
}

func (r *tickRecorder) record(remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, remaining)
}

func (r *tickRecorder) snapshot() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.ticks))
	copy(out, r.ticks)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestCountsDownToZero(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &tickRecorder{}
	ticker := New(clock, rec.record)

	ticker.Start(3)
	if got := ticker.Remaining(); got != 3 {
		t.Fatalf("expected 3 remaining, got %d", got)
	}

	for i := 0; i < 3; i++ {
		clock.BlockUntil(1)
		clock.Advance(time.Second)
		want := 3 - (i + 1)
		waitFor(t, func() bool { return ticker.Remaining() == want })
	}

	waitFor(t, func() bool { return len(rec.snapshot()) == 3 })
	ticks := rec.snapshot()
	if ticks[0] != 2 || ticks[1] != 1 || ticks[2] != 0 {
		t.Fatalf("unexpected tick sequence: %v", ticks)
	}
	if ticker.Remaining() < 0 {
		t.Fatalf("remaining went negative: %d", ticker.Remaining())
	}
}

func TestStopCancelsPendingTick(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &tickRecorder{}
	ticker := New(clock, rec.record)

	ticker.Start(5)
	clock.BlockUntil(1)
	ticker.Stop()

	clock.Advance(3 * time.Second)
	time.Sleep(10 * time.Millisecond)

	if got := ticker.Remaining(); got != 5 {
		t.Fatalf("stopped ticker kept counting: %d", got)
	}
	if ticks := rec.snapshot(); len(ticks) != 0 {
		t.Fatalf("stopped ticker fired: %v", ticks)
	}
}

func TestRestartReplacesCountdown(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &tickRecorder{}
	ticker := New(clock, rec.record)

	ticker.Start(10)
	clock.BlockUntil(1)
	ticker.Start(2)
	if got := ticker.Remaining(); got != 2 {
		t.Fatalf("expected restart to reseed, got %d", got)
	}

	clock.BlockUntil(1)
	clock.Advance(time.Second)
	waitFor(t, func() bool { return ticker.Remaining() == 1 })
}

func TestNonPositiveSeedStaysIdle(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &tickRecorder{}
	ticker := New(clock, rec.record)

	ticker.Start(0)
	if got := ticker.Remaining(); got != 0 {
		t.Fatalf("expected 0 remaining, got %d", got)
	}
	ticker.Start(-4)
	if got := ticker.Remaining(); got != 0 {
		t.Fatalf("negative seed leaked: %d", got)
	}
	if ticks := rec.snapshot(); len(ticks) != 0 {
		t.Fatalf("idle ticker fired: %v", ticks)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ticker := New(clock, nil)

	ticker.Start(3)
	ticker.Stop()
	ticker.Stop()

	if got := ticker.Remaining(); got != 3 {
		t.Fatalf("unexpected remaining after double stop: %d", got)
	}
}
