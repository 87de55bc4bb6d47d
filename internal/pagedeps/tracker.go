// Package pagedeps records which rendered pages read which nodes, so a change
// to a node can be mapped to the pages that need rebuilding.
package pagedeps

import (
	"context"

	"git.home.luguber.info/inful/sitegraph/internal/node"
	"git.home.luguber.info/inful/sitegraph/internal/store"
	"git.home.luguber.info/inful/sitegraph/internal/util/sets"
)

// Tracker reads nodes on behalf of page renders. Dependencies are held in the
// store, so they persist with the snapshot.
type Tracker struct {
	store   *store.Store
	actions *store.Actions
}

// New binds a tracker to s. Dependency actions are dispatched as owner.
func New(s *store.Store, owner string) *Tracker {
	return &Tracker{store: s, actions: s.ActionsFor(owner)}
}

// GetNodeAndSavePathDependency returns the node and records that path depends
// on id. The dependency is recorded even when the node does not exist yet, so
// creating it later still marks the page dirty.
func (t *Tracker) GetNodeAndSavePathDependency(ctx context.Context, id, path string) (*node.Node, bool, error) {
	n, ok := t.store.GetNode(id)
	err := t.actions.CreatePageDependency(ctx, path, id)
	return n, ok, err
}

// ResetPage forgets everything path depended on. Call it before rendering the
// page again so the new render records a complete, current set.
func (t *Tracker) ResetPage(ctx context.Context, path string) error {
	return t.actions.DeletePageDependencies(ctx, path)
}

// DependenciesOf returns the node ids path depends on, sorted.
func (t *Tracker) DependenciesOf(path string) []string {
	return t.store.DependenciesOf(path)
}

// PathsDependingOn returns the pages that read nodeID, sorted.
func (t *Tracker) PathsDependingOn(nodeID string) []string {
	return t.store.DependentPaths(nodeID)
}

// DirtyPaths returns the pages depending on any of nodeIDs, sorted and unique.
func (t *Tracker) DirtyPaths(nodeIDs ...string) []string {
	dirty := sets.New[string]()
	for _, id := range nodeIDs {
		for _, path := range t.store.DependentPaths(id) {
			dirty.Add(path)
		}
	}
	return sets.Sorted(dirty)
}
