package schedule

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

func TestTaskTicksUpToMax(t *testing.T) {
	clock := NewFakeClock(epoch)
	var got []int
	task := Start(clock, time.Second, 3, func(k int) { got = append(got, k) })

	clock.Advance(500 * time.Millisecond)
	assert.Empty(t, got)

	clock.Advance(10 * time.Second)
	assert.Equal(t, []int{1, 2, 3}, got)
	assert.Equal(t, 3, task.Ticks())
	assert.True(t, task.Finished())
	assert.False(t, task.Cancelled())
	assert.Zero(t, clock.Pending())

	select {
	case <-task.Done():
	default:
		t.Fatal("Done should be closed after the last tick")
	}
}

func TestTaskCancelStopsFurtherTicks(t *testing.T) {
	clock := NewFakeClock(epoch)
	var got []int
	task := Start(clock, time.Second, 0, func(k int) { got = append(got, k) })

	clock.Advance(2 * time.Second)
	require.Equal(t, []int{1, 2}, got)

	task.Cancel()
	assert.Zero(t, clock.Pending())

	clock.Advance(time.Minute)
	assert.Equal(t, []int{1, 2}, got)
	assert.True(t, task.Finished())
	assert.True(t, task.Cancelled())
}

func TestTaskCancelIsIdempotent(t *testing.T) {
	clock := NewFakeClock(epoch)
	task := Start(clock, time.Second, 1, func(int) {})
	clock.Advance(time.Second)
	require.True(t, task.Finished())

	task.Cancel()
	task.Cancel()
	assert.True(t, task.Cancelled())
	assert.Equal(t, 1, task.Ticks())
}

func TestTaskCancelBeforeFirstTick(t *testing.T) {
	clock := NewFakeClock(epoch)
	called := false
	task := Start(clock, time.Second, 8, func(int) { called = true })
	task.Cancel()

	clock.Advance(20 * time.Second)
	assert.False(t, called)
	assert.Zero(t, task.Ticks())
}

func TestTaskCancelFromInsideTick(t *testing.T) {
	clock := NewFakeClock(epoch)
	var task *Task
	var got []int
	task = Start(clock, time.Second, 0, func(k int) {
		got = append(got, k)
		if k == 2 {
			task.Cancel()
		}
	})

	clock.Advance(10 * time.Second)
	assert.Equal(t, []int{1, 2}, got)
	assert.Zero(t, clock.Pending())
}

func TestTaskFiredTimerSuppressedByCancel(t *testing.T) {
	// A callback captured before Cancel must not enter onTick afterwards.
	clock := NewFakeClock(epoch)
	called := false
	task := Start(clock, time.Second, 0, func(int) { called = true })

	task.Cancel()
	task.fire()
	assert.False(t, called)
}

func TestTaskCancelAfterCommitSuppressesCallback(t *testing.T) {
	clock := NewFakeClock(epoch)
	var called atomic.Bool
	task := Start(clock, time.Second, 0, func(int) { called.Store(true) })

	committed := make(chan struct{})
	release := make(chan struct{})
	task.beforeCallback = func() {
		close(committed)
		<-release
	}

	advanced := make(chan struct{})
	go func() {
		defer close(advanced)
		clock.Advance(time.Second)
	}()

	<-committed
	require.Equal(t, 1, task.Ticks())
	task.Cancel()
	close(release)

	select {
	case <-advanced:
	case <-time.After(2 * time.Second):
		t.Fatal("fire did not return")
	}
	assert.False(t, called.Load())
	assert.True(t, task.Cancelled())
	assert.Zero(t, clock.Pending())
}

func TestTaskCancelFromAnotherGoroutineDuringFire(t *testing.T) {
	clock := NewFakeClock(epoch)
	var mu sync.Mutex
	var got []int
	task := Start(clock, time.Second, 0, func(k int) {
		mu.Lock()
		got = append(got, k)
		mu.Unlock()
	})

	committed := make(chan struct{})
	task.beforeCallback = func() {
		close(committed)
		time.Sleep(20 * time.Millisecond)
	}

	go clock.Advance(time.Second)
	<-committed
	task.Cancel()

	mu.Lock()
	after := len(got)
	mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, after, len(got))
	assert.Empty(t, got)
}

func TestTaskRealClock(t *testing.T) {
	var mu sync.Mutex
	count := 0
	task := Start(RealClock(), 5*time.Millisecond, 3, func(int) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("task did not finish")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, count)
}

func TestFakeClockOrdersTimers(t *testing.T) {
	clock := NewFakeClock(epoch)
	var order []string
	clock.AfterFunc(3*time.Second, func() { order = append(order, "c") })
	clock.AfterFunc(time.Second, func() { order = append(order, "a") })
	stopped := clock.AfterFunc(2*time.Second, func() { order = append(order, "b") })

	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())

	clock.Advance(5 * time.Second)
	assert.Equal(t, []string{"a", "c"}, order)
	assert.Equal(t, epoch.Add(5*time.Second), clock.Now())
}
