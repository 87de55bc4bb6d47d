// Package store holds the node graph: the single source of truth every plugin
// reads from and dispatches actions to.
package store

import (
	"cmp"
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"git.home.luguber.info/inful/sitegraph/internal/events"
	ferrors "git.home.luguber.info/inful/sitegraph/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegraph/internal/logfields"
	"git.home.luguber.info/inful/sitegraph/internal/metrics"
	"git.home.luguber.info/inful/sitegraph/internal/node"
	"git.home.luguber.info/inful/sitegraph/internal/ownership"
	"git.home.luguber.info/inful/sitegraph/internal/util/sets"
)

// Store is safe for concurrent use. Dispatch is serialized: the reducer,
// ownership tracking and event publication of one action complete before the
// next action is reduced, so subscribers see actions in dispatch order.
type Store struct {
	dispatchMu sync.Mutex

	mu sync.RWMutex
	st state

	bus      *events.Bus
	tracker  *ownership.Tracker
	recorder metrics.Recorder
	logger   *slog.Logger
}

type Option func(*Store)

// WithInitialState seeds the store, typically from a loaded snapshot.
// Restored nodes are tracked for ownership lookups.
func WithInitialState(ps PersistedState) Option {
	return func(s *Store) { s.st = newState(ps) }
}

func WithTracker(t *ownership.Tracker) Option {
	return func(s *Store) { s.tracker = t }
}

func WithRecorder(r metrics.Recorder) Option {
	return func(s *Store) { s.recorder = metrics.OrNoop(r) }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a store publishing every dispatched action on bus. A nil bus
// disables publication.
func New(bus *events.Bus, opts ...Option) *Store {
	s := &Store{
		st:       newState(EmptyPersistedState()),
		bus:      bus,
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracker == nil {
		s.tracker = ownership.NewTracker()
	}
	for _, n := range s.st.nodes {
		s.tracker.Track(n)
	}
	s.recorder.SetNodeCount(len(s.st.nodes))
	return s
}

// Dispatch reduces the action into the state and publishes it. Validation
// failures leave the state untouched. A publish error is returned after the
// state change has been committed.
func (s *Store) Dispatch(ctx context.Context, a Action) error {
	if a == nil {
		return ferrors.ValidationError("action cannot be nil").Build()
	}
	reduce, ok := reducers[a.Type()]
	if !ok {
		return ferrors.ValidationError("unknown action type").
			WithContext("action", string(a.Type())).
			Build()
	}

	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	a = s.prepare(a)
	if err := reduce(&s.st, a); err != nil {
		s.mu.Unlock()
		s.logger.Debug("Action rejected",
			logfields.Action(string(a.Type())),
			logfields.Plugin(a.PluginName()),
			logfields.Error(err))
		return err
	}
	s.track(a)
	s.st.lastAction = a
	s.st.sequence++
	count := len(s.st.nodes)
	s.mu.Unlock()

	s.recorder.IncAction(string(a.Type()))
	s.recorder.SetNodeCount(count)

	if s.bus == nil {
		return nil
	}
	if err := s.bus.Publish(ctx, a); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "publish action").
			WithContext("action", string(a.Type())).
			Build()
	}
	return nil
}

// prepare fills the store-derived fields of an action from the current state.
func (s *Store) prepare(a Action) Action {
	switch act := a.(type) {
	case CreateNode:
		if act.Node != nil {
			act.Replaced = s.st.nodes[act.Node.ID]
		}
		return act
	case DeleteNode:
		act.Node = s.st.nodes[act.ID]
		return act
	case DeleteNodes:
		act.Nodes = nil
		for _, id := range act.IDs {
			if n, ok := s.st.nodes[id]; ok {
				act.Nodes = append(act.Nodes, n)
			}
		}
		return act
	case AddFieldToNode:
		if n, ok := s.st.nodes[act.NodeID]; ok {
			act.Node = withField(n, act.Name, act.Value, act.Plugin)
		}
		return act
	case AddChildNodeToParent:
		if p, ok := s.st.nodes[act.ParentID]; ok {
			act.Parent = withChild(p, act.ChildID)
		}
		return act
	}
	return a
}

func (s *Store) track(a Action) {
	switch act := a.(type) {
	case CreateNode:
		if act.Replaced != nil {
			s.tracker.Forget(act.Node.ID)
		}
		s.tracker.Track(act.Node)
	case AddFieldToNode:
		s.tracker.Track(act.Node)
	case DeleteNode:
		s.tracker.Forget(act.ID)
	case DeleteNodes:
		for _, id := range act.IDs {
			s.tracker.Forget(id)
		}
	}
}

// GetNode returns the node stored under id.
func (s *Store) GetNode(id string) (*node.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.st.nodes[id]
	return n, ok
}

// GetNodes returns every node in unspecified order. The result is never nil.
func (s *Store) GetNodes() []*node.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*node.Node, 0, len(s.st.nodes))
	for _, n := range s.st.nodes {
		out = append(out, n)
	}
	return out
}

// GetNodesByType returns the nodes of one internal type, ordered by id.
func (s *Store) GetNodesByType(typ string) []*node.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*node.Node, 0)
	for _, n := range s.st.nodes {
		if n.Internal.Type == typ {
			out = append(out, n)
		}
	}
	slices.SortFunc(out, byID)
	return out
}

// HasNodeChanged reports true when no node has the id or its digest differs.
func (s *Store) HasNodeChanged(id, digest string) bool {
	n, ok := s.GetNode(id)
	if !ok {
		return true
	}
	return n.Internal.ContentDigest != digest
}

// OwnerNodeID returns the id of the node containing an inline value.
func (s *Store) OwnerNodeID(value any) (string, bool) {
	return s.tracker.OwnerNodeID(value)
}

// DependenciesOf returns the node ids a page path depends on, sorted.
func (s *Store) DependenciesOf(path string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sets.Sorted(s.st.dependencies[path])
}

// DependentPaths returns the page paths depending on a node, sorted.
func (s *Store) DependentPaths(nodeID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for path, ids := range s.st.dependencies {
		if ids.Has(nodeID) {
			out = append(out, path)
		}
	}
	slices.Sort(out)
	return out
}

// PagePaths returns every path with recorded dependencies, sorted.
func (s *Store) PagePaths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.st.dependencies))
}

// PluginStatus returns a copy of a plugin's persisted status.
func (s *Store) PluginStatus(plugin string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.st.status.Plugins[plugin])
}

// BeginSourcing clears the touched set. Nodes not created or touched before
// StaleNodes is called are considered gone from their source.
func (s *Store) BeginSourcing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.touched = sets.New[string]()
}

// StaleNodes returns the nodes whose root ancestor was neither created nor
// touched since BeginSourcing, ordered by id. Derived nodes live as long as
// the node they were derived from.
func (s *Store) StaleNodes() []*node.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*node.Node
	for _, n := range s.st.nodes {
		if !s.st.touched.Has(s.rootOf(n).ID) {
			out = append(out, n)
		}
	}
	slices.SortFunc(out, byID)
	return out
}

func (s *Store) rootOf(n *node.Node) *node.Node {
	seen := sets.New(n.ID)
	for n.Parent != "" {
		p, ok := s.st.nodes[n.Parent]
		if !ok || !seen.Add(p.ID) {
			break
		}
		n = p
	}
	return n
}

// LastAction returns the most recently committed action and its sequence number.
func (s *Store) LastAction() (Action, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.lastAction, s.st.sequence
}

// Snapshot returns a consistent copy of the persisted subset of the state.
// Node values are shared; they are never mutated once stored.
func (s *Store) Snapshot() PersistedState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return PersistedState{
		Nodes:                     maps.Clone(s.st.nodes),
		Status:                    s.st.status.clone(),
		ComponentDataDependencies: s.st.dependencies.clone(),
	}
}

func byID(a, b *node.Node) int { return cmp.Compare(a.ID, b.ID) }
