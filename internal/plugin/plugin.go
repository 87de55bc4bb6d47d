// Package plugin defines the contract between the site and its plugins.
// A plugin implements Plugin plus any of the optional capability interfaces;
// the runner discovers capabilities with type assertions.
package plugin

import (
	"fmt"

	ferrors "git.home.luguber.info/inful/sitegraph/internal/foundation/errors"
)

// Plugin is the minimal interface every plugin implements.
type Plugin interface {
	// Metadata returns the plugin's metadata (name, version, type).
	Metadata() PluginMetadata
}

// PluginLifecycle extends Plugin with optional lifecycle hooks.
type PluginLifecycle interface {
	Plugin

	// Init is called once when the site opens, before any API runs.
	Init() error

	// Cleanup is called when the site closes.
	Cleanup() error
}

// PluginMetadata describes a plugin's identity.
type PluginMetadata struct {
	// Name is the unique plugin identifier (e.g., "source-filesystem").
	// Nodes record it as their owner.
	Name string

	// Version is the semantic version (e.g., "v1.0.0").
	Version string

	// Type identifies the plugin category.
	Type PluginType

	// Description provides a human-readable summary of the plugin's purpose.
	Description string
}

// String returns a human-readable representation of the plugin metadata.
func (m PluginMetadata) String() string {
	return fmt.Sprintf("%s@%s (%s)", m.Name, m.Version, m.Type)
}

// Validate checks if the plugin metadata is valid.
func (m PluginMetadata) Validate() error {
	if m.Name == "" {
		return ferrors.ValidationError("plugin name is required").Build()
	}
	if m.Version == "" {
		return ferrors.ValidationError("plugin version is required").
			WithContext("plugin", m.Name).
			Build()
	}
	if !m.Type.IsValid() {
		return ferrors.ValidationError("invalid plugin type").
			WithContext("plugin", m.Name).
			WithContext("type", string(m.Type)).
			Build()
	}
	return nil
}

// BasePlugin provides default implementations for plugin lifecycle methods.
// Plugins can embed this to avoid implementing optional methods.
type BasePlugin struct{}

// Init is a no-op default implementation.
func (b *BasePlugin) Init() error {
	return nil
}

// Cleanup is a no-op default implementation.
func (b *BasePlugin) Cleanup() error {
	return nil
}
