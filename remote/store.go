// remote/store.go
package remote

import (
	"context"
	"encoding/json"
)

type Op string

const (
	OpGet       Op = "get"
	OpSubscribe Op = "subscribe"
	OpWrite     Op = "write"
	OpUpdate    Op = "update"
	OpRemove    Op = "remove"
)

// Store is a hierarchical key-value database with push subscriptions.
type Store interface {
	Get(ctx context.Context, path string) (Snapshot, error)

	// Subscribe delivers the full value at path now and after every change
	// that overlaps it. orderBy names a child field to sort children by.
	Subscribe(ctx context.Context, path, orderBy string, fn func(Snapshot)) (cancel func(), err error)

	// Write replaces the value at path. A nil value deletes it.
	Write(ctx context.Context, path string, value any) error

	// Update applies every relative path under root, or none of them.
	Update(ctx context.Context, root string, values map[string]any) error

	Remove(ctx context.Context, path string) error
}

// Snapshot is the complete value at Path. Children are in delivery order.
type Snapshot struct {
	Path     string          `json:"path"`
	Exists   bool            `json:"exists"`
	Value    json.RawMessage `json:"value,omitempty"`
	Children []Child         `json:"children,omitempty"`
}

type Child struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}
