package remote

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/go-playground/assert/v2"
)

type folderValue struct {
	Name     string `json:"name"`
	Position int    `json:"position"`
}

func keys(s Snapshot) []string {
	out := make([]string, 0, len(s.Children))
	for _, c := range s.Children {
		out = append(out, c.Key)
	}
	return out
}

func TestSubscribeDeliversCurrentValueThenChanges(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	assert.Equal(t, m.Write(ctx, "public/folders/a", folderValue{Name: "A", Position: 2}), nil)

	var snaps []Snapshot
	cancel, err := m.Subscribe(ctx, "public/folders", "position", func(s Snapshot) { snaps = append(snaps, s) })
	assert.Equal(t, err, nil)
	defer cancel()

	assert.Equal(t, len(snaps), 1)
	assert.Equal(t, keys(snaps[0]), []string{"a"})

	assert.Equal(t, m.Write(ctx, "public/folders/b", folderValue{Name: "B", Position: 1}), nil)
	assert.Equal(t, len(snaps), 2)
	assert.Equal(t, keys(snaps[1]), []string{"b", "a"})

	// Writes elsewhere do not notify.
	assert.Equal(t, m.Write(ctx, "public/notes/n1", map[string]any{"title": "x"}), nil)
	assert.Equal(t, len(snaps), 2)

	// Writes below the subscribed path do.
	assert.Equal(t, m.Write(ctx, "public/folders/a/position", 0), nil)
	assert.Equal(t, keys(snaps[2]), []string{"a", "b"})

	var a folderValue
	assert.Equal(t, json.Unmarshal(snaps[2].Children[0].Value, &a), nil)
	assert.Equal(t, a, folderValue{Name: "A", Position: 0})
}

func TestCancelStopsDelivery(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	n := 0
	cancel, err := m.Subscribe(ctx, "public", "", func(Snapshot) { n++ })
	assert.Equal(t, err, nil)
	cancel()
	assert.Equal(t, m.Write(ctx, "public/x", "y"), nil)
	assert.Equal(t, n, 1)
}

func TestUpdateIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	assert.Equal(t, m.Write(ctx, "public/folders/a", folderValue{Name: "A"}), nil)

	err := m.Update(ctx, "public/folders", map[string]any{
		"a/position": 3,
		"b/po$ition": 4,
	})
	var we *WriteError
	assert.Equal(t, errors.As(err, &we), true)
	assert.Equal(t, errors.Is(err, ErrInvalidPath), true)

	snap, err := m.Get(ctx, "public/folders/a/position")
	assert.Equal(t, err, nil)
	assert.Equal(t, snap.Exists, false)

	err = m.Update(ctx, "public/folders", map[string]any{"a": nil, "a/name": "x"})
	assert.Equal(t, errors.Is(err, ErrInvalidPath), true)

	assert.Equal(t, m.Update(ctx, "public/folders", map[string]any{"a/position": 3, "b/name": "B"}), nil)
	snap, _ = m.Get(ctx, "public/folders")
	assert.Equal(t, keys(snap), []string{"a", "b"})
}

func TestRemoveAndNullWritesDeleteSubtree(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	assert.Equal(t, m.Write(ctx, "public/notes/n1", map[string]any{"title": "t"}), nil)
	assert.Equal(t, m.Write(ctx, "public/notes/n2", map[string]any{"title": "u"}), nil)

	assert.Equal(t, m.Remove(ctx, "public/notes/n1"), nil)
	assert.Equal(t, m.Write(ctx, "public/notes/n2", map[string]any{}), nil)

	snap, err := m.Get(ctx, "public")
	assert.Equal(t, err, nil)
	assert.Equal(t, snap.Exists, false)
}

func TestInjectedFaultsBecomeWriteErrors(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.InjectFault(func(op Op, path string) error {
		if op == OpWrite {
			return ErrPermissionDenied
		}
		return nil
	})

	err := m.Write(ctx, "users/1/notes/a", "x")
	var we *WriteError
	assert.Equal(t, errors.As(err, &we), true)
	assert.Equal(t, we.Op, OpWrite)
	assert.Equal(t, errors.Is(err, ErrPermissionDenied), true)
	assert.Equal(t, Code(err), "permission_denied")

	m.InjectFault(nil)
	assert.Equal(t, m.Write(ctx, "users/1/notes/a", "x"), nil)
}

func TestWriteRejectsRootAndBadSegments(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	assert.Equal(t, errors.Is(m.Write(ctx, "", "x"), ErrInvalidPath), true)
	assert.Equal(t, errors.Is(m.Write(ctx, "a//b", "x"), ErrInvalidPath), true)
	assert.Equal(t, errors.Is(m.Write(ctx, "a/b.c", "x"), ErrInvalidPath), true)
}
