// remote/tree.go
package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Normalize converts v to plain JSON types (objects, arrays, json.Number,
// strings, bools) and drops empty objects, which the store never keeps.
func Normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return decode(raw)
}

func decode(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return prune(out), nil
}

func prune(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	for k, c := range m {
		if strings.ContainsAny(k, forbidden+"/") || k == "" {
			delete(m, k)
			continue
		}
		if c = prune(c); c == nil {
			delete(m, k)
		} else {
			m[k] = c
		}
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

func lookup(node any, segs []string) any {
	for _, s := range segs {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node = m[s]
	}
	return node
}

// setIn replaces the value below node at segs and returns the new node.
// A nil v deletes. Emptied objects collapse to nil.
func setIn(node any, segs []string, v any) any {
	if len(segs) == 0 {
		return v
	}
	m, ok := node.(map[string]any)
	if !ok {
		if v == nil {
			return node
		}
		m = map[string]any{}
	}
	child := setIn(m[segs[0]], segs[1:], v)
	if child == nil {
		delete(m, segs[0])
	} else {
		m[segs[0]] = child
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// MakeSnapshot renders node, the value found at path. Objects are delivered
// as ordered children; scalars as Value.
func MakeSnapshot(path string, node any, orderBy string) (Snapshot, error) {
	snap := Snapshot{Path: path, Exists: node != nil}
	if node == nil {
		return snap, nil
	}
	m, ok := node.(map[string]any)
	if !ok {
		raw, err := json.Marshal(node)
		if err != nil {
			return Snapshot{}, err
		}
		snap.Value = raw
		return snap, nil
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if orderBy != "" {
		sort.SliceStable(keys, func(i, j int) bool {
			return lessField(field(m[keys[i]], orderBy), field(m[keys[j]], orderBy))
		})
	}

	snap.Children = make([]Child, 0, len(keys))
	for _, k := range keys {
		raw, err := json.Marshal(m[k])
		if err != nil {
			return Snapshot{}, err
		}
		snap.Children = append(snap.Children, Child{Key: k, Value: raw})
	}
	return snap, nil
}

func field(v any, name string) any {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return m[name]
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case json.Number, float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

func number(v any) float64 {
	switch n := v.(type) {
	case json.Number:
		f, _ := n.Float64()
		return f
	case float64:
		return n
	}
	return 0
}

// lessField orders missing values first, then booleans, numbers, strings.
func lessField(a, b any) bool {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra < rb
	}
	switch ra {
	case 1:
		return !a.(bool) && b.(bool)
	case 2:
		return number(a) < number(b)
	case 3:
		return a.(string) < b.(string)
	}
	return false
}

// Flatten lists every scalar leaf below v keyed by its full path.
func Flatten(path string, v any) (map[string]json.RawMessage, error) {
	out := map[string]json.RawMessage{}
	var walk func(p string, node any) error
	walk = func(p string, node any) error {
		if m, ok := node.(map[string]any); ok {
			for k, c := range m {
				if err := walk(Join(p, k), c); err != nil {
					return err
				}
			}
			return nil
		}
		if node == nil {
			return nil
		}
		raw, err := json.Marshal(node)
		if err != nil {
			return err
		}
		out[p] = raw
		return nil
	}
	if err := walk(path, v); err != nil {
		return nil, err
	}
	return out, nil
}

// Unflatten rebuilds the value at base from leaves keyed by full path.
func Unflatten(base string, leaves map[string]json.RawMessage) (any, error) {
	var root any
	for p, raw := range leaves {
		if !Within(p, base) {
			continue
		}
		segs, err := Split(strings.TrimPrefix(strings.TrimPrefix(p, base), "/"))
		if err != nil {
			return nil, err
		}
		v, err := decode(raw)
		if err != nil {
			return nil, err
		}
		root = setIn(root, segs, v)
	}
	return root, nil
}
