// policy/reorder.go
package policy

import (
	"fmt"

	"github.com/vinizap/pronode/domain"
)

// Move returns a copy of items with the element at from moved to index to.
// Untouched elements keep their relative order.
func Move[T any](items []T, from, to int) ([]T, error) {
	if from < 0 || from >= len(items) {
		return nil, &domain.ValidationError{Field: "from", Reason: fmt.Sprintf("index %d out of range [0,%d)", from, len(items))}
	}
	if to < 0 || to >= len(items) {
		return nil, &domain.ValidationError{Field: "to", Reason: fmt.Sprintf("index %d out of range [0,%d)", to, len(items))}
	}
	out := make([]T, 0, len(items))
	out = append(out, items[:from]...)
	out = append(out, items[from+1:]...)
	moved := items[from]
	out = append(out[:to], append([]T{moved}, out[to:]...)...)
	return out, nil
}

// Positions assigns each id its index in the sequence.
func Positions(ids []string) map[string]int {
	out := make(map[string]int, len(ids))
	for i, id := range ids {
		out[id] = i
	}
	return out
}

// StubPosition places a new folder before every existing one.
func StubPosition(existing []int) int {
	lowest := 0
	for _, p := range existing {
		if p < lowest {
			lowest = p
		}
	}
	return lowest - 1
}
