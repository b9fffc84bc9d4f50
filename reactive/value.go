// reactive/value.go
package reactive

import "sync"

// Source is anything a Computed can depend on.
type Source interface {
	Version() uint64
	Changed(fn func()) (cancel func())
}

// Readable is the read-only face of a signal handed to consumers.
type Readable[T any] interface {
	Source
	Get() T
	Watch(fn func(T)) (cancel func())
}

// Value holds one value and a version that increases on every Set.
// Watchers run synchronously on the goroutine calling Set.
type Value[T any] struct {
	mu       sync.RWMutex
	v        T
	version  uint64
	next     int
	watchers map[int]func()
}

func NewValue[T any](v T) *Value[T] {
	return &Value[T]{v: v, watchers: map[int]func(){}}
}

func (s *Value[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v
}

func (s *Value[T]) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *Value[T]) Set(v T) {
	s.mu.Lock()
	s.v = v
	s.version++
	watchers := make([]func(), 0, len(s.watchers))
	for i := 0; i < s.next; i++ {
		if w, ok := s.watchers[i]; ok {
			watchers = append(watchers, w)
		}
	}
	s.mu.Unlock()

	for _, w := range watchers {
		w()
	}
}

func (s *Value[T]) Changed(fn func()) func() {
	s.mu.Lock()
	id := s.next
	s.next++
	s.watchers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

func (s *Value[T]) Watch(fn func(T)) func() {
	return s.Changed(func() { fn(s.Get()) })
}
