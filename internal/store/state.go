package store

import (
	"encoding/json"
	"maps"

	"git.home.luguber.info/inful/sitegraph/internal/node"
	"git.home.luguber.info/inful/sitegraph/internal/util/sets"
)

// Status holds per-plugin bookkeeping that survives restarts
// (for example the last time a source plugin fetched remote data).
type Status struct {
	Plugins map[string]map[string]any `json:"plugins"`
}

func (s Status) clone() Status {
	out := Status{Plugins: make(map[string]map[string]any, len(s.Plugins))}
	for name, st := range s.Plugins {
		out.Plugins[name] = maps.Clone(st)
	}
	return out
}

// PageDependencies maps a page path to the ids of the nodes its data was read from.
// It serializes as {path: [sorted ids]}.
type PageDependencies map[string]sets.Set[string]

func (d PageDependencies) MarshalJSON() ([]byte, error) {
	out := make(map[string][]string, len(d))
	for path, ids := range d {
		out[path] = sets.Sorted(ids)
	}
	return json.Marshal(out)
}

func (d *PageDependencies) UnmarshalJSON(data []byte) error {
	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(PageDependencies, len(raw))
	for path, ids := range raw {
		out[path] = sets.New(ids...)
	}
	*d = out
	return nil
}

func (d PageDependencies) clone() PageDependencies {
	out := make(PageDependencies, len(d))
	for path, ids := range d {
		out[path] = ids.Clone()
	}
	return out
}

// PersistedState is the subset of the store state written to the durable snapshot.
type PersistedState struct {
	Nodes                     map[string]*node.Node `json:"nodes"`
	Status                    Status                `json:"status"`
	ComponentDataDependencies PageDependencies      `json:"componentDataDependencies"`
}

// EmptyPersistedState is what the store starts from without a snapshot.
func EmptyPersistedState() PersistedState {
	return PersistedState{
		Nodes:                     make(map[string]*node.Node),
		Status:                    Status{Plugins: make(map[string]map[string]any)},
		ComponentDataDependencies: make(PageDependencies),
	}
}

// state is the full in-memory state. Only the persisted subset outlives the process.
type state struct {
	nodes        map[string]*node.Node
	status       Status
	dependencies PageDependencies

	// touched holds ids created or touched during this process; anything else
	// restored from the snapshot is stale once sourcing has finished.
	touched    sets.Set[string]
	lastAction Action
	sequence   uint64
}

func newState(ps PersistedState) state {
	st := state{
		nodes:        ps.Nodes,
		status:       ps.Status,
		dependencies: ps.ComponentDataDependencies,
		touched:      sets.New[string](),
	}
	if st.nodes == nil {
		st.nodes = make(map[string]*node.Node)
	}
	if st.status.Plugins == nil {
		st.status.Plugins = make(map[string]map[string]any)
	}
	if st.dependencies == nil {
		st.dependencies = make(PageDependencies)
	}
	return st
}
