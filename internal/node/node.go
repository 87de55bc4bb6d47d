// Package node defines the content node, the unit of data held by the store.
package node

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// Reserved top-level keys of the serialized node. Domain fields may not use them.
const (
	KeyID       = "id"
	KeyParent   = "parent"
	KeyChildren = "children"
	KeyInternal = "internal"

	// FieldsKey holds values added after creation through AddFieldToNode.
	FieldsKey = "fields"
)

// Internal is the metadata block every node carries.
type Internal struct {
	Type          string `json:"type"`
	ContentDigest string `json:"contentDigest"`
	Owner         string `json:"owner"`
	MediaType     string `json:"mediaType,omitempty"`
	// Content is the materialized content. Empty means the owning plugin's
	// loader has to produce it.
	Content     string            `json:"content,omitempty"`
	FieldOwners map[string]string `json:"fieldOwners,omitempty"`
}

// Node is a content node. Once dispatched to the store a node is treated as
// immutable; updates replace it with a modified copy.
type Node struct {
	ID       string
	Parent   string
	Children []string
	Internal Internal
	// Fields holds the node's domain data. Nested maps and slices are inline
	// objects owned by this node.
	Fields map[string]any
}

// Get returns a domain field.
func (n *Node) Get(key string) (any, bool) {
	v, ok := n.Fields[key]
	return v, ok
}

// StringField returns the field as a string, or "" when absent or not a string.
func (n *Node) StringField(key string) string {
	s, _ := n.Fields[key].(string)
	return s
}

// AddedField returns a value added with AddFieldToNode.
func (n *Node) AddedField(name string) (any, bool) {
	fields, _ := n.Fields[FieldsKey].(map[string]any)
	v, ok := fields[name]
	return v, ok
}

// IsReservedKey reports whether key collides with node metadata.
func IsReservedKey(key string) bool {
	switch key {
	case KeyID, KeyParent, KeyChildren, KeyInternal:
		return true
	}
	return false
}

// Clone returns a shallow copy: metadata maps and the top-level Fields map are
// copied, field values are shared.
func (n *Node) Clone() *Node {
	cp := *n
	cp.Children = slices.Clone(n.Children)
	cp.Fields = maps.Clone(n.Fields)
	cp.Internal.FieldOwners = maps.Clone(n.Internal.FieldOwners)
	return &cp
}

// MarshalJSON writes the node as a flat object: metadata keys next to the
// domain fields.
func (n *Node) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(n.Fields)+4)
	for k, v := range n.Fields {
		if IsReservedKey(k) {
			return nil, fmt.Errorf("node %s: field %q collides with node metadata", n.ID, k)
		}
		out[k] = v
	}
	out[KeyID] = n.ID
	if n.Parent != "" {
		out[KeyParent] = n.Parent
	}
	children := n.Children
	if children == nil {
		children = []string{}
	}
	out[KeyChildren] = children
	out[KeyInternal] = n.Internal
	return json.Marshal(out)
}

// UnmarshalJSON reads the flat form written by MarshalJSON.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var decoded Node
	if v, ok := raw[KeyID]; ok {
		if err := json.Unmarshal(v, &decoded.ID); err != nil {
			return fmt.Errorf("node id: %w", err)
		}
	}
	if v, ok := raw[KeyParent]; ok && !bytes.Equal(v, []byte("null")) {
		if err := json.Unmarshal(v, &decoded.Parent); err != nil {
			return fmt.Errorf("node %s parent: %w", decoded.ID, err)
		}
	}
	if v, ok := raw[KeyChildren]; ok {
		if err := json.Unmarshal(v, &decoded.Children); err != nil {
			return fmt.Errorf("node %s children: %w", decoded.ID, err)
		}
	}
	if v, ok := raw[KeyInternal]; ok {
		if err := json.Unmarshal(v, &decoded.Internal); err != nil {
			return fmt.Errorf("node %s internal: %w", decoded.ID, err)
		}
	}

	decoded.Fields = make(map[string]any, len(raw))
	for k, v := range raw {
		if IsReservedKey(k) {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return fmt.Errorf("node %s field %q: %w", decoded.ID, k, err)
		}
		decoded.Fields[k] = val
	}

	*n = decoded
	return nil
}

// Digest hashes the canonical JSON encoding of v. encoding/json sorts map keys,
// so equal content always produces the same digest.
func Digest(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("digest: %w", err)
	}
	return DigestBytes(data), nil
}

// DigestBytes hashes raw content.
func DigestBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
