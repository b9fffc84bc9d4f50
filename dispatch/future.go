// dispatch/future.go
package dispatch

import "context"

// Future is the pending/settled outcome of an asynchronous operation.
// Resolve and OnSettle belong to the loop; Wait, Done and Err may be used
// from anywhere.
type Future struct {
	done      chan struct{}
	settled   bool
	err       error
	callbacks []func(error)
}

func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Settled returns a future that is already resolved with err.
func Settled(err error) *Future {
	f := NewFuture()
	f.Resolve(err)
	return f
}

func (f *Future) Resolve(err error) {
	if f.settled {
		return
	}
	f.settled = true
	f.err = err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	for _, cb := range callbacks {
		cb(err)
	}
}

// OnSettle runs fn once the future resolves, immediately if it already has.
func (f *Future) OnSettle(fn func(error)) {
	if f.settled {
		fn(f.err)
		return
	}
	f.callbacks = append(f.callbacks, fn)
}

func (f *Future) Done() <-chan struct{} { return f.done }

// Err is meaningful once Done is closed.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
