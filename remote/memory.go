// remote/memory.go
package remote

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Store. Subscribers are called synchronously, in
// commit order, and must not call back into the store.
type Memory struct {
	deliver sync.Mutex // held while notifying, keeps delivery in commit order

	mu    sync.Mutex
	root  any
	subs  map[uint64]*memorySub
	next  uint64
	fault func(op Op, path string) error
}

type memorySub struct {
	path    string
	orderBy string
	fn      func(Snapshot)
	closed  bool
}

func NewMemory() *Memory {
	return &Memory{subs: map[uint64]*memorySub{}}
}

// InjectFault makes every operation consult fn first; a non-nil result
// fails the operation without touching data. Pass nil to clear.
func (m *Memory) InjectFault(fn func(op Op, path string) error) {
	m.mu.Lock()
	m.fault = fn
	m.mu.Unlock()
}

func (m *Memory) check(op Op, path string) error {
	m.mu.Lock()
	fault := m.fault
	m.mu.Unlock()
	if fault == nil {
		return nil
	}
	return fault(op, path)
}

func (m *Memory) Get(ctx context.Context, path string) (Snapshot, error) {
	segs, err := Split(path)
	if err != nil {
		return Snapshot{}, err
	}
	if err := m.check(OpGet, path); err != nil {
		return Snapshot{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return MakeSnapshot(strings.Join(segs, "/"), lookup(m.root, segs), "")
}

func (m *Memory) Subscribe(ctx context.Context, path, orderBy string, fn func(Snapshot)) (func(), error) {
	path, err := Clean(path)
	if err != nil {
		return nil, err
	}
	if err := m.check(OpSubscribe, path); err != nil {
		return nil, err
	}

	m.deliver.Lock()
	defer m.deliver.Unlock()

	m.mu.Lock()
	m.next++
	id := m.next
	sub := &memorySub{path: path, orderBy: orderBy, fn: fn}
	m.subs[id] = sub
	snap, err := m.snapshotLocked(sub)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	fn(snap)

	return func() {
		m.mu.Lock()
		sub.closed = true
		delete(m.subs, id)
		m.mu.Unlock()
	}, nil
}

func (m *Memory) Write(ctx context.Context, path string, value any) error {
	segs, err := Split(path)
	if err != nil {
		return AsWriteError(OpWrite, path, err)
	}
	if len(segs) == 0 {
		return &WriteError{Op: OpWrite, Path: path, Err: fmt.Errorf("%w: cannot replace the root", ErrInvalidPath)}
	}
	v, err := Normalize(value)
	if err != nil {
		return AsWriteError(OpWrite, path, err)
	}
	if err := m.check(OpWrite, path); err != nil {
		return AsWriteError(OpWrite, path, err)
	}
	return m.commit(strings.Join(segs, "/"), func(root any) any {
		return setIn(root, segs, v)
	})
}

func (m *Memory) Update(ctx context.Context, root string, values map[string]any) error {
	rootSegs, err := Split(root)
	if err != nil {
		return AsWriteError(OpUpdate, root, err)
	}

	type change struct {
		segs []string
		v    any
	}
	changes := make([]change, 0, len(values))
	paths := make([]string, 0, len(values))
	for rel, value := range values {
		segs, err := Split(rel)
		if err != nil || len(segs) == 0 {
			return &WriteError{Op: OpUpdate, Path: root, Err: fmt.Errorf("%w: %q", ErrInvalidPath, rel)}
		}
		v, err := Normalize(value)
		if err != nil {
			return AsWriteError(OpUpdate, root, err)
		}
		full := append(append([]string{}, rootSegs...), segs...)
		changes = append(changes, change{segs: full, v: v})
		paths = append(paths, strings.Join(full, "/"))
	}
	sort.Strings(paths)
	for i := 1; i < len(paths); i++ {
		if Within(paths[i], paths[i-1]) {
			return &WriteError{Op: OpUpdate, Path: root, Err: fmt.Errorf("%w: %q overlaps %q", ErrInvalidPath, paths[i], paths[i-1])}
		}
	}
	if err := m.check(OpUpdate, root); err != nil {
		return AsWriteError(OpUpdate, root, err)
	}

	return m.commit(strings.Join(rootSegs, "/"), func(tree any) any {
		for _, c := range changes {
			tree = setIn(tree, c.segs, c.v)
		}
		return tree
	})
}

func (m *Memory) Remove(ctx context.Context, path string) error {
	segs, err := Split(path)
	if err != nil {
		return AsWriteError(OpRemove, path, err)
	}
	if err := m.check(OpRemove, path); err != nil {
		return AsWriteError(OpRemove, path, err)
	}
	return m.commit(strings.Join(segs, "/"), func(root any) any {
		return setIn(root, segs, nil)
	})
}

// commit applies mutate and notifies every subscription overlapping path.
func (m *Memory) commit(path string, mutate func(any) any) error {
	m.deliver.Lock()
	defer m.deliver.Unlock()

	type delivery struct {
		sub  *memorySub
		snap Snapshot
	}
	m.mu.Lock()
	m.root = mutate(m.root)
	ids := make([]uint64, 0, len(m.subs))
	for id, sub := range m.subs {
		if Overlaps(sub.path, path) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]delivery, 0, len(ids))
	for _, id := range ids {
		sub := m.subs[id]
		snap, err := m.snapshotLocked(sub)
		if err != nil {
			m.mu.Unlock()
			return err
		}
		out = append(out, delivery{sub: sub, snap: snap})
	}
	m.mu.Unlock()

	for _, d := range out {
		m.mu.Lock()
		closed := d.sub.closed
		m.mu.Unlock()
		if !closed {
			d.sub.fn(d.snap)
		}
	}
	return nil
}

func (m *Memory) snapshotLocked(sub *memorySub) (Snapshot, error) {
	segs, _ := Split(sub.path)
	return MakeSnapshot(sub.path, lookup(m.root, segs), sub.orderBy)
}
