package store

import "git.home.luguber.info/inful/sitegraph/internal/node"

// ActionType names an action. Events published on the bus carry the same name.
type ActionType string

const (
	ActionCreateNode             ActionType = "CREATE_NODE"
	ActionDeleteNode             ActionType = "DELETE_NODE"
	ActionDeleteNodes            ActionType = "DELETE_NODES"
	ActionTouchNode              ActionType = "TOUCH_NODE"
	ActionAddFieldToNode         ActionType = "ADD_FIELD_TO_NODE"
	ActionAddChildNodeToParent   ActionType = "ADD_CHILD_NODE_TO_PARENT_NODE"
	ActionCreatePageDependency   ActionType = "CREATE_COMPONENT_DEPENDENCY"
	ActionDeletePageDependencies ActionType = "DELETE_COMPONENTS_DEPENDENCIES"
	ActionSetPluginStatus        ActionType = "SET_PLUGIN_STATUS"
)

// Action is a state transition request. Every dispatched action is published
// on the bus as-is, so subscribing to Action receives all of them.
type Action interface {
	Type() ActionType
	// PluginName is the plugin on whose behalf the action was dispatched.
	PluginName() string
}

// NodeLifecycleAction is implemented by the actions that create, delete or
// update nodes: the ones plugin hooks react to.
type NodeLifecycleAction interface {
	Action
	nodeLifecycle()
}

type CreateNode struct {
	Plugin string     `json:"plugin"`
	Node   *node.Node `json:"node"`
	// Replaced is the node previously stored under the same id, filled by the store.
	Replaced *node.Node `json:"replaced,omitempty"`
}

type DeleteNode struct {
	Plugin string `json:"plugin"`
	ID     string `json:"id"`
	// Node is the deleted node, filled by the store. Nil when the id was unknown.
	Node *node.Node `json:"node"`
}

type DeleteNodes struct {
	Plugin string   `json:"plugin"`
	IDs    []string `json:"ids"`
	// Nodes holds the deleted nodes that existed, filled by the store.
	Nodes []*node.Node `json:"nodes,omitempty"`
}

type TouchNode struct {
	Plugin string `json:"plugin"`
	ID     string `json:"id"`
}

// AddFieldToNode replaces a node with a copy carrying a new entry under
// node.FieldsKey. The store fills Node with the updated copy.
type AddFieldToNode struct {
	Plugin string     `json:"plugin"`
	NodeID string     `json:"node_id"`
	Name   string     `json:"name"`
	Value  any        `json:"value"`
	Node   *node.Node `json:"node"`
}

// AddChildNodeToParent replaces the parent with a copy listing the child.
// The store fills Parent with the updated copy.
type AddChildNodeToParent struct {
	Plugin   string     `json:"plugin"`
	ParentID string     `json:"parent_id"`
	ChildID  string     `json:"child_id"`
	Parent   *node.Node `json:"parent,omitempty"`
}

type CreatePageDependency struct {
	Plugin string `json:"plugin"`
	Path   string `json:"path"`
	NodeID string `json:"node_id"`
}

// DeletePageDependencies drops every recorded dependency of the given pages,
// so the next render records a complete fresh set.
type DeletePageDependencies struct {
	Plugin string   `json:"plugin"`
	Paths  []string `json:"paths"`
}

type SetPluginStatus struct {
	Plugin string         `json:"plugin"`
	Status map[string]any `json:"status"`
}

func (CreateNode) Type() ActionType             { return ActionCreateNode }
func (DeleteNode) Type() ActionType             { return ActionDeleteNode }
func (DeleteNodes) Type() ActionType            { return ActionDeleteNodes }
func (TouchNode) Type() ActionType              { return ActionTouchNode }
func (AddFieldToNode) Type() ActionType         { return ActionAddFieldToNode }
func (AddChildNodeToParent) Type() ActionType   { return ActionAddChildNodeToParent }
func (CreatePageDependency) Type() ActionType   { return ActionCreatePageDependency }
func (DeletePageDependencies) Type() ActionType { return ActionDeletePageDependencies }
func (SetPluginStatus) Type() ActionType        { return ActionSetPluginStatus }

func (a CreateNode) PluginName() string             { return a.Plugin }
func (a DeleteNode) PluginName() string             { return a.Plugin }
func (a DeleteNodes) PluginName() string            { return a.Plugin }
func (a TouchNode) PluginName() string              { return a.Plugin }
func (a AddFieldToNode) PluginName() string         { return a.Plugin }
func (a AddChildNodeToParent) PluginName() string   { return a.Plugin }
func (a CreatePageDependency) PluginName() string   { return a.Plugin }
func (a DeletePageDependencies) PluginName() string { return a.Plugin }
func (a SetPluginStatus) PluginName() string        { return a.Plugin }

func (CreateNode) nodeLifecycle()     {}
func (DeleteNode) nodeLifecycle()     {}
func (DeleteNodes) nodeLifecycle()    {}
func (AddFieldToNode) nodeLifecycle() {}
