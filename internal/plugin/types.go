package plugin

import (
	"context"
	"log/slog"

	ferrors "git.home.luguber.info/inful/sitegraph/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegraph/internal/node"
	"git.home.luguber.info/inful/sitegraph/internal/store"
)

// PluginType identifies the category of plugin.
type PluginType string

const (
	// PluginTypeSource creates nodes from an external source.
	PluginTypeSource PluginType = "source"

	// PluginTypeTransformer derives nodes or fields from existing nodes.
	PluginTypeTransformer PluginType = "transformer"

	// PluginTypeSite hooks into the build itself (e.g. post-build output).
	PluginTypeSite PluginType = "site"
)

// IsValid returns true if the plugin type is recognized.
func (t PluginType) IsValid() bool {
	switch t {
	case PluginTypeSource, PluginTypeTransformer, PluginTypeSite:
		return true
	default:
		return false
	}
}

// String returns the string representation of the plugin type.
func (t PluginType) String() string {
	return string(t)
}

// API names, as used in logs, metrics and RunAPI.
const (
	APISourceNodes     = "sourceNodes"
	APIOnCreateNode    = "onCreateNode"
	APIOnDeleteNode    = "onDeleteNode"
	APIOnUpdateNode    = "onUpdateNode"
	APIOnPostBuild     = "onPostBuild"
	APILoadNodeContent = "loadNodeContent"
)

// APIArgs is what every hook receives.
type APIArgs struct {
	// Store gives read access to the graph.
	Store *store.Store

	// Actions are bound to the plugin the hook belongs to.
	Actions *store.Actions

	Logger *slog.Logger

	// LoadContent materializes a node's content through its owner's loader.
	LoadContent func(ctx context.Context, n *node.Node) (string, error)
}

// SourceNodesHook creates the plugin's nodes. It runs once per build, after
// the store has been restored from the snapshot.
type SourceNodesHook interface {
	SourceNodes(ctx context.Context, args *APIArgs) error
}

// OnCreateNodeHook runs for every created or replaced node.
type OnCreateNodeHook interface {
	OnCreateNode(ctx context.Context, args *APIArgs, n *node.Node) error
}

// OnDeleteNodeHook runs for every deleted node.
type OnDeleteNodeHook interface {
	OnDeleteNode(ctx context.Context, args *APIArgs, n *node.Node) error
}

// OnUpdateNodeHook runs when a field was added to a node.
type OnUpdateNodeHook interface {
	OnUpdateNode(ctx context.Context, args *APIArgs, n *node.Node, field string) error
}

// OnPostBuildHook runs once after every build phase finished.
type OnPostBuildHook interface {
	OnPostBuild(ctx context.Context, args *APIArgs) error
}

// NodeContentLoader produces the content of nodes the plugin owns when the
// node does not carry it inline.
type NodeContentLoader interface {
	LoadNodeContent(ctx context.Context, n *node.Node) (string, error)
}

// ErrMissingCapability reports that a plugin was asked for an API it does not
// implement, or that no plugin by that name is registered.
var ErrMissingCapability = ferrors.PluginError("plugin does not provide the requested capability").Build()

// MissingCapability returns an error wrapping ErrMissingCapability.
func MissingCapability(pluginName, api string) error {
	return ferrors.WrapError(ErrMissingCapability, ferrors.CategoryPlugin, "missing plugin capability").
		WithContext("plugin", pluginName).
		WithContext("api", api).
		Build()
}
