package remote

import (
	"encoding/json"
	"testing"

	"github.com/go-playground/assert/v2"
	"github.com/google/go-cmp/cmp"
)

func TestOrderByPutsMissingFirstAndSortsNumerically(t *testing.T) {
	node, err := Normalize(map[string]any{
		"x": map[string]any{"position": 10},
		"y": map[string]any{"position": 2},
		"z": map[string]any{"name": "no position"},
		"w": map[string]any{"position": 2},
	})
	assert.Equal(t, err, nil)

	snap, err := MakeSnapshot("f", node, "position")
	assert.Equal(t, err, nil)
	assert.Equal(t, keys(snap), []string{"z", "w", "y", "x"})
}

func TestFlattenUnflattenRoundTrip(t *testing.T) {
	in, err := Normalize(map[string]any{
		"title":    "Hello",
		"position": 3,
		"meta":     map[string]any{"pinned": true, "empty": map[string]any{}},
	})
	assert.Equal(t, err, nil)

	leaves, err := Flatten("users/1/notes/a", in)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(leaves), 3)
	assert.Equal(t, string(leaves["users/1/notes/a/meta/pinned"]), "true")

	leaves["users/1/notes/ab/title"] = json.RawMessage(`"other"`)
	out, err := Unflatten("users/1/notes/a", leaves)
	assert.Equal(t, err, nil)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestPathRules(t *testing.T) {
	p, err := Clean("/public/folders/")
	assert.Equal(t, err, nil)
	assert.Equal(t, p, "public/folders")

	assert.Equal(t, Within("public/folders/a", "public/folders"), true)
	assert.Equal(t, Within("public/foldersx", "public/folders"), false)
	assert.Equal(t, Overlaps("public", "public/notes/a"), true)
	assert.Equal(t, Overlaps("public/notes", "public/folders"), false)
	assert.Equal(t, Join("users", "/42/", "notes"), "users/42/notes")
}
