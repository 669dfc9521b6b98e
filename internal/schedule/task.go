package schedule

import (
	"sync"
	"time"
)

// Task invokes a callback every interval until it is cancelled or has
// ticked maxTicks times. Only one timer is armed at any moment; the next
// tick is scheduled after the callback returns.
type Task struct {
	clock    Clock
	interval time.Duration
	maxTicks int
	onTick   func(k int)

	mu        sync.Mutex
	timer     Timer
	ticks     int
	cancelled bool
	finished  bool
	inTick    bool
	done      chan struct{}

	// cbMu is held while onTick runs; Cancel takes it to wait out a
	// callback that already started.
	cbMu sync.Mutex

	beforeCallback func() // test hook, runs between commit and callback
}

// Start arms a task on clock. onTick receives the 1-based tick number.
// maxTicks <= 0 means the task runs until cancelled.
func Start(clock Clock, interval time.Duration, maxTicks int, onTick func(k int)) *Task {
	if clock == nil {
		clock = RealClock()
	}
	t := &Task{
		clock:    clock,
		interval: interval,
		maxTicks: maxTicks,
		onTick:   onTick,
		done:     make(chan struct{}),
	}

	t.mu.Lock()
	t.timer = clock.AfterFunc(interval, t.fire)
	t.mu.Unlock()
	return t
}

func (t *Task) fire() {
	t.mu.Lock()
	if t.cancelled || t.finished {
		t.mu.Unlock()
		return
	}
	t.ticks++
	k := t.ticks
	last := t.maxTicks > 0 && k >= t.maxTicks
	if last {
		t.finishLocked()
	}
	t.timer = nil
	t.mu.Unlock()

	if t.beforeCallback != nil {
		t.beforeCallback()
	}

	// Re-check under cbMu: a Cancel that set cancelled after the commit
	// above still suppresses this callback.
	t.cbMu.Lock()
	t.mu.Lock()
	skip := t.cancelled
	t.inTick = !skip
	t.mu.Unlock()

	if !skip && t.onTick != nil {
		t.onTick(k)
	}

	t.mu.Lock()
	t.inTick = false
	t.mu.Unlock()
	t.cbMu.Unlock()

	if skip || last {
		return
	}

	t.mu.Lock()
	if !t.cancelled {
		t.timer = t.clock.AfterFunc(t.interval, t.fire)
	}
	t.mu.Unlock()
}

// Cancel stops the task. Once it returns, onTick is never entered again,
// even for a tick whose timer already fired. It is safe to call
// repeatedly, after the task finished on its own, and from inside onTick.
// A call made while onTick is running does not wait for it to return.
//
// Callers must not hold a lock that onTick takes.
func (t *Task) Cancel() {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.finishLocked()
	running := t.inTick
	t.mu.Unlock()

	if !running {
		// Wait for a fire that committed a tick but has not checked
		// cancelled yet.
		t.cbMu.Lock()
		t.cbMu.Unlock()
	}
}

func (t *Task) finishLocked() {
	if !t.finished {
		t.finished = true
		close(t.done)
	}
}

// Ticks returns how many ticks have been committed. A tick committed just
// before Cancel is counted even though its callback is suppressed.
func (t *Task) Ticks() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ticks
}

// Finished reports whether the task reached maxTicks or was cancelled.
func (t *Task) Finished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finished
}

// Cancelled reports whether Cancel was called.
func (t *Task) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Done is closed once the task is finished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}
