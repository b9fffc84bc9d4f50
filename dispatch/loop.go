// dispatch/loop.go
package dispatch

import (
	"context"
	"sync"
	"time"
)

// Loop runs posted functions one at a time, in posting order, on the
// goroutine that called Run. All engine and editor state is owned by it.
type Loop struct {
	clock Clock

	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
}

func NewLoop(clock Clock) *Loop {
	if clock == nil {
		clock = RealClock()
	}
	return &Loop{
		clock: clock,
		wake:  make(chan struct{}, 1),
	}
}

func (l *Loop) Clock() Clock { return l.clock }

// Post queues fn. It never blocks, so it is safe from store callbacks and
// from the loop itself.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}

		for {
			l.mu.Lock()
			batch := l.queue
			l.queue = nil
			l.mu.Unlock()

			if len(batch) == 0 {
				break
			}
			for _, fn := range batch {
				fn()
			}
		}
	}
}

// Do runs fn on the loop and waits for it. Calling Do from the loop
// deadlocks.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		fn()
		close(done)
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush waits until everything posted before the call has run.
func (l *Loop) Flush(ctx context.Context) error {
	return l.Do(ctx, func() {})
}

// Timer is a clock timer whose callback runs on the loop.
type Timer struct {
	inner Stopper
	done  bool
}

// AfterFunc schedules fn on the loop after d. Must be called on the loop.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	t := &Timer{}
	t.inner = l.clock.AfterFunc(d, func() {
		l.Post(func() {
			if t.done {
				return
			}
			t.done = true
			fn()
		})
	})
	return t
}

// Stop reports whether it prevented the callback from running. Must be
// called on the loop; a timer that fired but whose callback is still queued
// is stopped too.
func (t *Timer) Stop() bool {
	if t == nil || t.done {
		return false
	}
	t.done = true
	t.inner.Stop()
	return true
}

// Active reports whether the callback is still due.
func (t *Timer) Active() bool {
	return t != nil && !t.done
}
