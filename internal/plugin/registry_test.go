package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/sitegraph/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegraph/internal/node"
)

type mockPlugin struct {
	BasePlugin
	metadata PluginMetadata
}

func (m *mockPlugin) Metadata() PluginMetadata { return m.metadata }

type mockLoader struct {
	mockPlugin
}

func (m *mockLoader) LoadNodeContent(context.Context, *node.Node) (string, error) {
	return "content", nil
}

func newMockPlugin(name string, pluginType PluginType) *mockPlugin {
	return &mockPlugin{metadata: PluginMetadata{Name: name, Version: "v1.0.0", Type: pluginType}}
}

func TestRegistryRegister(t *testing.T) {
	registry := NewRegistry()
	p := newMockPlugin("source-a", PluginTypeSource)

	require.NoError(t, registry.Register(p))
	assert.True(t, registry.Has("source-a"))

	err := registry.Register(p)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
}

func TestRegistryRejectsInvalidPlugins(t *testing.T) {
	registry := NewRegistry()

	require.Error(t, registry.Register(nil))
	require.Error(t, registry.Register(&mockPlugin{metadata: PluginMetadata{Version: "v1", Type: PluginTypeSource}}))
	require.Error(t, registry.Register(&mockPlugin{metadata: PluginMetadata{Name: "x", Type: PluginTypeSource}}))
	require.Error(t, registry.Register(&mockPlugin{metadata: PluginMetadata{Name: "x", Version: "v1", Type: "theme"}}))
	assert.Zero(t, registry.Count())
}

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	registry := NewRegistry()
	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, registry.Register(newMockPlugin(name, PluginTypeTransformer)))
	}
	require.NoError(t, registry.Register(newMockPlugin("src", PluginTypeSource)))

	var names []string
	for _, p := range registry.List() {
		names = append(names, p.Metadata().Name)
	}
	assert.Equal(t, []string{"c", "a", "b", "src"}, names)
	assert.Len(t, registry.ListByType(PluginTypeSource), 1)
}

func TestImplementing(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(newMockPlugin("plain", PluginTypeSite)))
	require.NoError(t, registry.Register(&mockLoader{mockPlugin: *newMockPlugin("loader", PluginTypeSource)}))

	loaders := Implementing[NodeContentLoader](registry)
	require.Len(t, loaders, 1)
	assert.Equal(t, "loader", loaders[0].Name())
}

func TestCapability(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(newMockPlugin("plain", PluginTypeSite)))
	require.NoError(t, registry.Register(&mockLoader{mockPlugin: *newMockPlugin("loader", PluginTypeSource)}))

	loader, err := Capability[NodeContentLoader](registry, "loader", APILoadNodeContent)
	require.NoError(t, err)
	content, err := loader.LoadNodeContent(t.Context(), &node.Node{})
	require.NoError(t, err)
	assert.Equal(t, "content", content)

	_, err = Capability[NodeContentLoader](registry, "plain", APILoadNodeContent)
	require.ErrorIs(t, err, ErrMissingCapability)

	_, err = Capability[NodeContentLoader](registry, "unknown", APILoadNodeContent)
	assert.True(t, errors.Is(err, ErrMissingCapability))
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryPlugin))
}

func TestMetadataString(t *testing.T) {
	m := PluginMetadata{Name: "markdown", Version: "v1.2.0", Type: PluginTypeTransformer}
	assert.Equal(t, "markdown@v1.2.0 (transformer)", m.String())
}
