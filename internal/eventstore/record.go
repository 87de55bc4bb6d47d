package eventstore

import (
	"encoding/json"
	"fmt"
	"time"

	"git.home.luguber.info/inful/sitegraph/internal/store"
)

// Record is one logged action.
type Record struct {
	Seq       int64           `json:"seq"`
	SessionID string          `json:"session_id"`
	Type      string          `json:"type"`
	Plugin    string          `json:"plugin,omitempty"`
	NodeID    string          `json:"node_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NewRecord encodes an action.
func NewRecord(sessionID string, a store.Action, at time.Time) (Record, error) {
	payload, err := json.Marshal(a)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrMarshalPayloadFailed, err)
	}
	return Record{
		SessionID: sessionID,
		Type:      string(a.Type()),
		Plugin:    a.PluginName(),
		NodeID:    nodeIDOf(a),
		Timestamp: at,
		Payload:   payload,
	}, nil
}

// nodeIDOf returns the node an action is about, if it is about a single one.
func nodeIDOf(a store.Action) string {
	switch act := a.(type) {
	case store.CreateNode:
		if act.Node != nil {
			return act.Node.ID
		}
	case store.DeleteNode:
		return act.ID
	case store.TouchNode:
		return act.ID
	case store.AddFieldToNode:
		return act.NodeID
	case store.AddChildNodeToParent:
		return act.ParentID
	case store.CreatePageDependency:
		return act.NodeID
	}
	return ""
}
