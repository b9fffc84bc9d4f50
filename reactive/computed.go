// reactive/computed.go
package reactive

import "sync"

// Computed derives a value from its sources and recomputes only when one of
// their versions moved since the last evaluation.
type Computed[T any] struct {
	mu      sync.Mutex
	deps    []Source
	seen    []uint64
	fn      func() T
	cached  T
	valid   bool
	version uint64
}

func NewComputed[T any](fn func() T, deps ...Source) *Computed[T] {
	return &Computed[T]{
		deps: deps,
		seen: make([]uint64, len(deps)),
		fn:   fn,
	}
}

func (c *Computed[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refresh()
	return c.cached
}

func (c *Computed[T]) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refresh()
	return c.version
}

func (c *Computed[T]) refresh() {
	stale := !c.valid
	current := make([]uint64, len(c.deps))
	for i, d := range c.deps {
		current[i] = d.Version()
		if current[i] != c.seen[i] {
			stale = true
		}
	}
	if !stale {
		return
	}
	c.cached = c.fn()
	c.seen = current
	c.valid = true
	c.version++
}

func (c *Computed[T]) Changed(fn func()) func() {
	cancels := make([]func(), 0, len(c.deps))
	for _, d := range c.deps {
		cancels = append(cancels, d.Changed(fn))
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

func (c *Computed[T]) Watch(fn func(T)) func() {
	return c.Changed(func() { fn(c.Get()) })
}
