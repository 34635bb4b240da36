// Package task provides cancellable timer handles for components that
// schedule deferred or periodic work. Every handle is owned by the component
// that created it and must be cancelled on shutdown for deterministic cleanup.
package task

import (
	"sync"
	"time"
)

// Timer is a cancellable handle for a deferred callback.
type Timer struct {
	mu        sync.Mutex
	timer     *time.Timer
	cancelled bool
	fired     bool
}

// After schedules fn to run once after d. The callback runs on its own
// goroutine. Cancel prevents the callback if it has not started yet.
func After(d time.Duration, fn func()) *Timer {
	t := &Timer{}
	t.timer = time.AfterFunc(d, func() {
		t.mu.Lock()
		if t.cancelled {
			t.mu.Unlock()
			return
		}
		t.fired = true
		t.mu.Unlock()
		fn()
	})
	return t
}

// Cancel stops the timer. It is safe to call multiple times and after fire.
// Returns true if the callback was prevented from running.
func (t *Timer) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancelled || t.fired {
		return false
	}
	t.cancelled = true
	return t.timer.Stop()
}

// Fired reports whether the callback has started running.
func (t *Timer) Fired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

// Ticker is a cancellable handle for a periodic callback.
type Ticker struct {
	stop chan struct{}
	once sync.Once
}

// Every schedules fn to run every interval until Cancel is called.
// The callback runs on a single dedicated goroutine, so invocations of fn
// never overlap.
func Every(interval time.Duration, fn func()) *Ticker {
	t := &Ticker{stop: make(chan struct{})}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn()
			case <-t.stop:
				return
			}
		}
	}()
	return t
}

// Cancel stops the ticker. Safe to call multiple times.
func (t *Ticker) Cancel() {
	t.once.Do(func() { close(t.stop) })
}
