package engine

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/vinizap/pronode/dispatch"
	"github.com/vinizap/pronode/domain"
	"github.com/vinizap/pronode/identity"
	"github.com/vinizap/pronode/remote"
)

type call struct {
	op     remote.Op
	path   string
	value  any
	values map[string]any
}

// recorder wraps a Memory store, records mutations and can hold back
// subscriptions under a prefix until released.
type recorder struct {
	*remote.Memory

	mu     sync.Mutex
	calls  []call
	prefix string
	gate   chan struct{}

	stallOn string
	stalled chan struct{}
	resume  chan struct{}
}

func (r *recorder) Subscribe(ctx context.Context, path, orderBy string, fn func(remote.Snapshot)) (func(), error) {
	r.mu.Lock()
	gate, prefix := r.gate, r.prefix
	r.mu.Unlock()
	if gate != nil && strings.HasPrefix(path, prefix) {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return r.Memory.Subscribe(ctx, path, orderBy, fn)
}

func (r *recorder) Write(ctx context.Context, path string, value any) error {
	r.mu.Lock()
	stalled, resume := r.stalled, r.resume
	if v, ok := value.(string); !ok || v != r.stallOn || stalled == nil {
		stalled, resume = nil, nil
	} else {
		r.stalled, r.resume = nil, nil
	}
	r.mu.Unlock()
	if stalled != nil {
		close(stalled)
		select {
		case <-resume:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.record(call{op: remote.OpWrite, path: path, value: value})
	return r.Memory.Write(ctx, path, value)
}

func (r *recorder) Update(ctx context.Context, root string, values map[string]any) error {
	copied := make(map[string]any, len(values))
	for k, v := range values {
		copied[k] = v
	}
	r.record(call{op: remote.OpUpdate, path: root, values: copied})
	return r.Memory.Update(ctx, root, values)
}

func (r *recorder) Remove(ctx context.Context, path string) error {
	r.record(call{op: remote.OpRemove, path: path})
	return r.Memory.Remove(ctx, path)
}

func (r *recorder) record(c call) {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.mu.Unlock()
}

// hold blocks subscriptions to paths under prefix until the returned
// function is called.
func (r *recorder) hold(prefix string) (release func()) {
	gate := make(chan struct{})
	r.mu.Lock()
	r.gate, r.prefix = gate, prefix
	r.mu.Unlock()
	return func() { close(gate) }
}

// stall holds back the next write of the string value until release is
// called. stalled closes once that write has reached the store.
func (r *recorder) stall(value string) (stalled <-chan struct{}, release func()) {
	s, resume := make(chan struct{}), make(chan struct{})
	r.mu.Lock()
	r.stallOn, r.stalled, r.resume = value, s, resume
	r.mu.Unlock()
	return s, func() { close(resume) }
}

func (r *recorder) ops(op remote.Op) []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []call
	for _, c := range r.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

type harness struct {
	ctx    context.Context
	clock  *dispatch.Fake
	loop   *dispatch.Loop
	store  *recorder
	ids    *identity.Holder
	engine *Engine
}

const testWindow = 3 * time.Second

func newHarness(ctx context.Context) *harness {
	h := &harness{
		ctx:   ctx,
		clock: dispatch.NewFake(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)),
		store: &recorder{Memory: remote.NewMemory()},
		ids:   identity.NewHolder(nil),
	}
	h.loop = dispatch.NewLoop(h.clock)
	go h.loop.Run(ctx)
	h.engine = New(h.store, h.ids, h.loop, Options{UndoWindow: testWindow}, zerolog.Nop())
	return h
}

// setup seeds the public namespace, starts the engine and waits for the
// first snapshots.
func setup(t *testing.T, seed func(h *harness)) *harness {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	h := newHarness(ctx)
	if seed != nil {
		seed(h)
	}
	h.engine.Start(ctx)
	if err := h.engine.WaitSynced(ctx); err != nil {
		t.Fatalf("engine never synced: %v", err)
	}
	return h
}

func (h *harness) folder(ns, id, name string, position int) {
	err := h.store.Memory.Write(h.ctx, domain.FolderPath(ns, id), map[string]any{"name": name, "position": position})
	if err != nil {
		panic(err)
	}
}

func (h *harness) note(ns, id, parent, title, content, created string) {
	err := h.store.Memory.Write(h.ctx, domain.NotePath(ns, id), map[string]any{
		"title": title, "content": content, "parentId": parent, "createdAt": created,
	})
	if err != nil {
		panic(err)
	}
}

func (h *harness) flush(t *testing.T) {
	t.Helper()
	if err := h.loop.Flush(h.ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func (h *harness) wait(t *testing.T, f *dispatch.Future) error {
	t.Helper()
	select {
	case <-f.Done():
		return f.Err()
	case <-h.ctx.Done():
		t.Fatalf("future never settled")
		return nil
	}
}

func folderIDs(folders []domain.Folder) []string {
	out := make([]string, 0, len(folders))
	for _, f := range folders {
		out = append(out, f.ID)
	}
	return out
}

func noteIDs(notes []domain.Note) []string {
	out := make([]string, 0, len(notes))
	for _, n := range notes {
		out = append(out, n.ID)
	}
	return out
}

func seedABCD(h *harness) {
	for i, id := range []string{"A", "B", "C", "D"} {
		h.folder("public", id, "Folder "+id, i)
	}
	h.note("public", "n1", "A", "Einkauf", "Milch", "2024-01-01T10:00:00Z")
	h.note("public", "n2", "A", "Termine", "", "2024-01-02T10:00:00Z")
	h.note("public", "n3", "B", "Ideen", "viele", "2024-01-01T08:00:00Z")
}
