// Package schedule runs one-shot deferred actions that can be cancelled.
package schedule

import (
	"sync"
	"time"
)

// Timer is the cancellation half of a scheduled callback.
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks after a delay.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// RealClock schedules on wall-clock time.
type RealClock struct{}

func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Task is one deferred action. It runs at most once.
type Task struct {
	mu        sync.Mutex
	timer     Timer
	cancelled bool
	fired     bool
	done      chan struct{}
}

// After schedules fn to run once after d on clock.
func After(clock Clock, d time.Duration, fn func()) *Task {
	if clock == nil {
		clock = RealClock{}
	}
	t := &Task{done: make(chan struct{})}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.timer = clock.AfterFunc(d, func() {
		t.mu.Lock()
		if t.cancelled || t.fired {
			t.mu.Unlock()
			return
		}
		t.fired = true
		t.mu.Unlock()

		defer close(t.done)
		fn()
	})
	return t
}

// Cancel prevents the action from running. It reports false when the action
// already started or the task was already cancelled. A nil task is a no-op.
func (t *Task) Cancel() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled || t.fired {
		return false
	}
	t.cancelled = true
	t.timer.Stop()
	return true
}

// Done is closed after the action has finished running.
func (t *Task) Done() <-chan struct{} {
	return t.done
}
