package store

import (
	"context"
	"encoding/json"
	"maps"

	ferrors "git.home.luguber.info/inful/sitegraph/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegraph/internal/node"
)

// Actions is the action creator set handed to one plugin. It validates input
// and stamps the plugin name on everything it dispatches.
type Actions struct {
	store  *Store
	plugin string
}

// ActionsFor binds action creators to a plugin name.
func (s *Store) ActionsFor(plugin string) *Actions {
	return &Actions{store: s, plugin: plugin}
}

func (a *Actions) Plugin() string { return a.plugin }

// CreateNode stores n, replacing any node with the same id. Internal.Owner
// defaults to the bound plugin and may not differ from it.
func (a *Actions) CreateNode(ctx context.Context, n *node.Node) error {
	if err := a.validateNode(n); err != nil {
		return err
	}
	cp := n.Clone()
	if cp.Internal.Owner == "" {
		cp.Internal.Owner = a.plugin
	}
	if cp.Internal.Owner != a.plugin {
		return a.invalid("node owner must be the creating plugin", n).
			WithContext("owner", cp.Internal.Owner).
			Build()
	}
	if existing, ok := a.store.GetNode(cp.ID); ok && existing.Internal.Owner != cp.Internal.Owner {
		return a.invalid("node is owned by another plugin", n).
			WithContext("owner", existing.Internal.Owner).
			Build()
	}
	return a.store.Dispatch(ctx, CreateNode{Plugin: a.plugin, Node: cp})
}

func (a *Actions) validateNode(n *node.Node) error {
	if n == nil {
		return ferrors.ValidationError("node cannot be nil").
			WithContext("plugin", a.plugin).
			Build()
	}
	switch {
	case n.ID == "":
		return a.invalid("node id is required", n).Build()
	case n.Internal.Type == "":
		return a.invalid("node internal.type is required", n).Build()
	case n.Internal.ContentDigest == "":
		return a.invalid("node internal.contentDigest is required", n).Build()
	}
	for key := range n.Fields {
		if node.IsReservedKey(key) {
			return a.invalid("field name is reserved for node metadata", n).
				WithContext("field", key).
				Build()
		}
	}
	if err := encodable(n.Fields); err != nil {
		return a.invalid("node fields cannot be persisted", n).WithCause(err).Build()
	}
	return nil
}

// encodable rejects values the snapshot cannot hold. One such value would
// fail every later save of the whole store.
func encodable(v any) error {
	_, err := json.Marshal(v)
	return err
}

func (a *Actions) invalid(msg string, n *node.Node) *ferrors.ErrorBuilder {
	b := ferrors.ValidationError(msg).WithContext("plugin", a.plugin)
	if n != nil && n.ID != "" {
		b = b.WithContext("node_id", n.ID)
	}
	return b
}

// DeleteNode removes a node. Deleting an unknown id is a no-op.
func (a *Actions) DeleteNode(ctx context.Context, id string) error {
	if id == "" {
		return a.invalid("node id is required", nil).Build()
	}
	return a.store.Dispatch(ctx, DeleteNode{Plugin: a.plugin, ID: id})
}

func (a *Actions) DeleteNodes(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return a.store.Dispatch(ctx, DeleteNodes{Plugin: a.plugin, IDs: ids})
}

// TouchNode marks a node as still present at its source without changing it.
func (a *Actions) TouchNode(ctx context.Context, id string) error {
	if id == "" {
		return a.invalid("node id is required", nil).Build()
	}
	return a.store.Dispatch(ctx, TouchNode{Plugin: a.plugin, ID: id})
}

// CreateNodeField adds fields.<name> to a node. A field already added by
// another plugin cannot be overwritten.
func (a *Actions) CreateNodeField(ctx context.Context, nodeID, name string, value any) error {
	if nodeID == "" || name == "" {
		return ferrors.ValidationError("node field needs a node id and a name").
			WithContext("plugin", a.plugin).
			WithContext("node_id", nodeID).
			Build()
	}
	if err := encodable(value); err != nil {
		return ferrors.ValidationError("node field cannot be persisted").
			WithCause(err).
			WithContext("plugin", a.plugin).
			WithContext("node_id", nodeID).
			WithContext("field", name).
			Build()
	}
	if n, ok := a.store.GetNode(nodeID); ok {
		if owner, taken := n.Internal.FieldOwners[name]; taken && owner != a.plugin {
			return a.invalid("node field was added by another plugin", n).
				WithContext("field", name).
				WithContext("owner", owner).
				Build()
		}
	}
	return a.store.Dispatch(ctx, AddFieldToNode{Plugin: a.plugin, NodeID: nodeID, Name: name, Value: value})
}

// CreateParentChildLink records childID under the parent's children.
func (a *Actions) CreateParentChildLink(ctx context.Context, parentID, childID string) error {
	if parentID == "" || childID == "" {
		return ferrors.ValidationError("parent/child link needs both ids").
			WithContext("plugin", a.plugin).
			Build()
	}
	return a.store.Dispatch(ctx, AddChildNodeToParent{Plugin: a.plugin, ParentID: parentID, ChildID: childID})
}

func (a *Actions) CreatePageDependency(ctx context.Context, path, nodeID string) error {
	return a.store.Dispatch(ctx, CreatePageDependency{Plugin: a.plugin, Path: path, NodeID: nodeID})
}

func (a *Actions) DeletePageDependencies(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	return a.store.Dispatch(ctx, DeletePageDependencies{Plugin: a.plugin, Paths: paths})
}

// SetPluginStatus merges status into the bound plugin's persisted status.
func (a *Actions) SetPluginStatus(ctx context.Context, status map[string]any) error {
	if err := encodable(status); err != nil {
		return ferrors.ValidationError("plugin status cannot be persisted").
			WithCause(err).
			WithContext("plugin", a.plugin).
			Build()
	}
	return a.store.Dispatch(ctx, SetPluginStatus{Plugin: a.plugin, Status: maps.Clone(status)})
}
