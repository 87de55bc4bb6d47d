package store

import (
	"maps"
	"slices"

	ferrors "git.home.luguber.info/inful/sitegraph/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegraph/internal/node"
	"git.home.luguber.info/inful/sitegraph/internal/util/sets"
)

// reducer applies one action to the state. It runs under the store's write
// lock, so it may update the state maps in place; stored node values are
// replaced, never mutated.
type reducer func(st *state, a Action) error

var reducers = map[ActionType]reducer{
	ActionCreateNode:             reduceCreateNode,
	ActionDeleteNode:             reduceDeleteNode,
	ActionDeleteNodes:            reduceDeleteNodes,
	ActionTouchNode:              reduceTouchNode,
	ActionAddFieldToNode:         reduceAddFieldToNode,
	ActionAddChildNodeToParent:   reduceAddChildNodeToParent,
	ActionCreatePageDependency:   reduceCreatePageDependency,
	ActionDeletePageDependencies: reduceDeletePageDependencies,
	ActionSetPluginStatus:        reduceSetPluginStatus,
}

func reduceCreateNode(st *state, a Action) error {
	act := a.(CreateNode)
	if act.Node == nil || act.Node.ID == "" {
		return ferrors.ValidationError("create node: node id is required").Build()
	}
	st.nodes[act.Node.ID] = act.Node
	st.touched.Add(act.Node.ID)
	return nil
}

func reduceDeleteNode(st *state, a Action) error {
	act := a.(DeleteNode)
	delete(st.nodes, act.ID)
	st.touched.Delete(act.ID)
	return nil
}

func reduceDeleteNodes(st *state, a Action) error {
	for _, id := range a.(DeleteNodes).IDs {
		delete(st.nodes, id)
		st.touched.Delete(id)
	}
	return nil
}

func reduceTouchNode(st *state, a Action) error {
	act := a.(TouchNode)
	if _, ok := st.nodes[act.ID]; !ok {
		return ferrors.NotFoundError("touch node: unknown node").
			WithContext("node_id", act.ID).
			Build()
	}
	st.touched.Add(act.ID)
	return nil
}

func reduceAddFieldToNode(st *state, a Action) error {
	act := a.(AddFieldToNode)
	if act.Node == nil {
		return ferrors.NotFoundError("add field: unknown node").
			WithContext("node_id", act.NodeID).
			Build()
	}
	st.nodes[act.Node.ID] = act.Node
	return nil
}

func reduceAddChildNodeToParent(st *state, a Action) error {
	act := a.(AddChildNodeToParent)
	if act.Parent == nil {
		return ferrors.NotFoundError("add child: unknown parent node").
			WithContext("node_id", act.ParentID).
			Build()
	}
	st.nodes[act.Parent.ID] = act.Parent
	return nil
}

func reduceCreatePageDependency(st *state, a Action) error {
	act := a.(CreatePageDependency)
	if act.Path == "" || act.NodeID == "" {
		return ferrors.ValidationError("page dependency needs a path and a node id").
			WithContext("path", act.Path).
			WithContext("node_id", act.NodeID).
			Build()
	}
	ids, ok := st.dependencies[act.Path]
	if !ok {
		ids = sets.New[string]()
		st.dependencies[act.Path] = ids
	}
	ids.Add(act.NodeID)
	return nil
}

func reduceDeletePageDependencies(st *state, a Action) error {
	for _, path := range a.(DeletePageDependencies).Paths {
		delete(st.dependencies, path)
	}
	return nil
}

func reduceSetPluginStatus(st *state, a Action) error {
	act := a.(SetPluginStatus)
	if act.Plugin == "" {
		return ferrors.ValidationError("plugin status needs a plugin name").Build()
	}
	current := maps.Clone(st.status.Plugins[act.Plugin])
	if current == nil {
		current = make(map[string]any, len(act.Status))
	}
	maps.Copy(current, act.Status)
	st.status.Plugins[act.Plugin] = current
	return nil
}

// withField returns a copy of n carrying name under node.FieldsKey.
func withField(n *node.Node, name string, value any, plugin string) *node.Node {
	cp := n.Clone()
	if cp.Fields == nil {
		cp.Fields = make(map[string]any, 1)
	}
	fields, _ := cp.Fields[node.FieldsKey].(map[string]any)
	fields = maps.Clone(fields)
	if fields == nil {
		fields = make(map[string]any, 1)
	}
	fields[name] = value
	cp.Fields[node.FieldsKey] = fields
	if cp.Internal.FieldOwners == nil {
		cp.Internal.FieldOwners = make(map[string]string, 1)
	}
	cp.Internal.FieldOwners[name] = plugin
	return cp
}

// withChild returns a copy of parent listing child, or parent itself when the
// link already exists.
func withChild(parent *node.Node, child string) *node.Node {
	if slices.Contains(parent.Children, child) {
		return parent
	}
	cp := parent.Clone()
	cp.Children = append(cp.Children, child)
	return cp
}
