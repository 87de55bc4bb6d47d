package plugin

import (
	"sync"

	ferrors "git.home.luguber.info/inful/sitegraph/internal/foundation/errors"
)

// Registry holds the site's plugins in registration order. Hooks run in that
// order, so it is part of the site's configuration.
type Registry struct {
	mu      sync.RWMutex
	ordered []Plugin
	byName  map[string]Plugin
}

// NewRegistry creates a new empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Plugin),
	}
}

// Register appends a plugin. Names must be unique.
func (r *Registry) Register(p Plugin) error {
	if p == nil {
		return ferrors.ValidationError("cannot register nil plugin").Build()
	}

	metadata := p.Metadata()
	if err := metadata.Validate(); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryValidation, "invalid plugin metadata").Build()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[metadata.Name]; exists {
		return ferrors.ValidationError("plugin already registered").
			WithContext("plugin", metadata.Name).
			Build()
	}

	r.byName[metadata.Name] = p
	r.ordered = append(r.ordered, p)
	return nil
}

// Get retrieves a plugin by name.
func (r *Registry) Get(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byName[name]
	return p, ok
}

// Has checks if a plugin with the given name exists.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// List returns all plugins in registration order.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.ordered))
	copy(result, r.ordered)
	return result
}

// ListByType returns the plugins of one type in registration order.
func (r *Registry) ListByType(pluginType PluginType) []Plugin {
	var result []Plugin
	for _, p := range r.List() {
		if p.Metadata().Type == pluginType {
			result = append(result, p)
		}
	}
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.ordered)
}

// Implementing returns the plugins providing capability T, in registration order.
func Implementing[T any](r *Registry) []Implementation[T] {
	var result []Implementation[T]
	for _, p := range r.List() {
		if hook, ok := p.(T); ok {
			result = append(result, Implementation[T]{Plugin: p, Hook: hook})
		}
	}
	return result
}

// Implementation pairs a plugin with one of its capabilities.
type Implementation[T any] struct {
	Plugin Plugin
	Hook   T
}

// Name returns the plugin's name.
func (i Implementation[T]) Name() string { return i.Plugin.Metadata().Name }

// Capability returns the named plugin's implementation of T.
func Capability[T any](r *Registry, name, api string) (T, error) {
	var zero T
	p, ok := r.Get(name)
	if !ok {
		return zero, MissingCapability(name, api)
	}
	hook, ok := p.(T)
	if !ok {
		return zero, MissingCapability(name, api)
	}
	return hook, nil
}
