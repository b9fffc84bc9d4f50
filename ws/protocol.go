// ws/protocol.go
package ws

import (
	"encoding/json"

	"github.com/vinizap/pronode/remote"
)

// Request types sent by clients.
const (
	TypeGet         = "get"
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypeWrite       = "write"
	TypeUpdate      = "update"
	TypeRemove      = "remove"
)

// Types sent by the server.
const (
	TypeResult   = "result"
	TypeSnapshot = "snapshot"
)

// Message is the single frame type in both directions. Requests carry an ID
// that the matching result echoes; snapshots carry the subscription id the
// client picked in Sub.
type Message struct {
	Type     string                     `json:"type"`
	ID       string                     `json:"id,omitempty"`
	Sub      string                     `json:"sub,omitempty"`
	Path     string                     `json:"path,omitempty"`
	OrderBy  string                     `json:"orderBy,omitempty"`
	Value    json.RawMessage            `json:"value,omitempty"`
	Values   map[string]json.RawMessage `json:"values,omitempty"`
	Snapshot *remote.Snapshot           `json:"snapshot,omitempty"`
	Error    string                     `json:"error,omitempty"`
	Code     string                     `json:"code,omitempty"`
}

// Err rebuilds the error a result carries.
func (m Message) Err() error {
	if m.Code == "" {
		return nil
	}
	return remote.FromCode(m.Code, m.Error)
}
