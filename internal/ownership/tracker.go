// Package ownership maps inline values nested inside nodes back to the node
// that contains them.
//
// Go has no identity for map and slice values other than the address of their
// backing storage, so the tracker keys a side-table by (kind, data pointer,
// length). Nothing is written onto the values themselves. Entries keep their
// referents reachable until Forget is called for the owning node, which the
// store does when a node is deleted or replaced.
//
// Structurally shared values follow last-writer-wins: a value reachable from
// two nodes reports whichever node was tracked most recently.
package ownership

import (
	"reflect"
	"sync"
	"unsafe"

	"git.home.luguber.info/inful/sitegraph/internal/node"
)

type identity struct {
	kind reflect.Kind
	ptr  unsafe.Pointer
	len  int
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	owners map[identity]string
	byNode map[string]map[identity]struct{}
}

func NewTracker() *Tracker {
	return &Tracker{
		owners: make(map[identity]string),
		byNode: make(map[string]map[identity]struct{}),
	}
}

// Track registers every map and slice reachable from n.Fields as owned by n.ID.
// The Internal block is never walked. Re-tracking an unchanged node is a no-op
// in effect.
func (t *Tracker) Track(n *node.Node) {
	if n == nil || n.ID == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	seen := make(map[identity]struct{})
	for _, v := range n.Fields {
		t.walk(reflect.ValueOf(v), n.ID, seen)
	}
}

func (t *Tracker) walk(v reflect.Value, owner string, seen map[identity]struct{}) {
	for v.IsValid() && v.Kind() == reflect.Interface {
		if v.IsNil() {
			return
		}
		v = v.Elem()
	}
	id, ok := identityOf(v)
	if !ok {
		return
	}
	if _, visited := seen[id]; visited {
		return
	}
	seen[id] = struct{}{}
	t.assign(id, owner)

	switch v.Kind() {
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			t.walk(iter.Value(), owner, seen)
		}
	case reflect.Slice:
		for i := range v.Len() {
			t.walk(v.Index(i), owner, seen)
		}
	}
}

func (t *Tracker) assign(id identity, owner string) {
	if prev, ok := t.owners[id]; ok && prev != owner {
		delete(t.byNode[prev], id)
		if len(t.byNode[prev]) == 0 {
			delete(t.byNode, prev)
		}
	}
	t.owners[id] = owner
	if t.byNode[owner] == nil {
		t.byNode[owner] = make(map[identity]struct{})
	}
	t.byNode[owner][id] = struct{}{}
}

// OwnerNodeID returns the node owning an inline value. Primitives, untracked
// values and values without identity report false.
func (t *Tracker) OwnerNodeID(value any) (string, bool) {
	id, ok := identityOf(reflect.ValueOf(value))
	if !ok {
		return "", false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	owner, ok := t.owners[id]
	return owner, ok
}

// Forget drops every association still pointing at nodeID.
func (t *Tracker) Forget(nodeID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id := range t.byNode[nodeID] {
		if t.owners[id] == nodeID {
			delete(t.owners, id)
		}
	}
	delete(t.byNode, nodeID)
}

// Len returns the number of tracked inline values.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.owners)
}

func identityOf(v reflect.Value) (identity, bool) {
	if !v.IsValid() {
		return identity{}, false
	}
	switch v.Kind() {
	case reflect.Map:
		if v.IsNil() {
			return identity{}, false
		}
		return identity{kind: reflect.Map, ptr: v.UnsafePointer()}, true
	case reflect.Slice:
		// []byte is content, not structure. Zero-capacity slices may all share
		// the runtime's zero-size base address.
		if v.Type().Elem().Kind() == reflect.Uint8 || v.Cap() == 0 {
			return identity{}, false
		}
		return identity{kind: reflect.Slice, ptr: v.UnsafePointer(), len: v.Len()}, true
	}
	return identity{}, false
}
