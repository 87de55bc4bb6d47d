package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitegraph/internal/events"
	ferrors "git.home.luguber.info/inful/sitegraph/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegraph/internal/node"
)

func testNode(id, digest string) *node.Node {
	return &node.Node{
		ID:       id,
		Internal: node.Internal{Type: "Page", ContentDigest: digest},
		Fields:   map[string]any{"title": id},
	}
}

func TestGetNodesEmpty(t *testing.T) {
	s := New(nil)

	nodes := s.GetNodes()
	require.NotNil(t, nodes)
	assert.Empty(t, nodes)

	_, ok := s.GetNode("missing")
	assert.False(t, ok)
}

func TestHasNodeChanged(t *testing.T) {
	s := New(nil)
	actions := s.ActionsFor("source")

	assert.True(t, s.HasNodeChanged("a", "abc"), "absent node counts as changed")

	require.NoError(t, actions.CreateNode(t.Context(), testNode("a", "abc")))
	assert.False(t, s.HasNodeChanged("a", "abc"))
	assert.True(t, s.HasNodeChanged("a", "def"))
}

func TestCreateNodeSetsOwner(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.ActionsFor("source").CreateNode(t.Context(), testNode("a", "1")))

	n, ok := s.GetNode("a")
	require.True(t, ok)
	assert.Equal(t, "source", n.Internal.Owner)
}

func TestCreateNodeValidation(t *testing.T) {
	s := New(nil)
	actions := s.ActionsFor("source")
	ctx := t.Context()

	cases := map[string]*node.Node{
		"nil":          nil,
		"empty id":     {Internal: node.Internal{Type: "Page", ContentDigest: "1"}},
		"empty type":   {ID: "a", Internal: node.Internal{ContentDigest: "1"}},
		"empty digest": {ID: "a", Internal: node.Internal{Type: "Page"}},
		"foreign owner": {ID: "a", Internal: node.Internal{
			Type: "Page", ContentDigest: "1", Owner: "other",
		}},
		"reserved field": {ID: "a", Internal: node.Internal{Type: "Page", ContentDigest: "1"},
			Fields: map[string]any{"internal": 1}},
	}
	for name, n := range cases {
		t.Run(name, func(t *testing.T) {
			err := actions.CreateNode(ctx, n)
			require.Error(t, err)
			assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
		})
	}
	assert.Empty(t, s.GetNodes())
}

func TestActionsRejectUnencodableValues(t *testing.T) {
	s := New(nil)
	actions := s.ActionsFor("source")
	ctx := t.Context()

	bad := testNode("a", "1")
	bad.Fields["ratings"] = map[any]any{1: "good"}
	err := actions.CreateNode(ctx, bad)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
	_, ok := s.GetNode("a")
	assert.False(t, ok)

	require.NoError(t, actions.CreateNode(ctx, testNode("a", "1")))
	err = actions.CreateNodeField(ctx, "a", "callback", func() {})
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))

	err = actions.SetPluginStatus(ctx, map[string]any{"ch": make(chan int)})
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
	assert.Empty(t, s.PluginStatus("source"))
}

func TestCreateNodeRejectsOwnerChange(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.ActionsFor("a").CreateNode(t.Context(), testNode("x", "1")))

	err := s.ActionsFor("b").CreateNode(t.Context(), testNode("x", "2"))
	require.Error(t, err)

	n, _ := s.GetNode("x")
	assert.Equal(t, "1", n.Internal.ContentDigest)
}

func TestDispatchedNodeIsCopied(t *testing.T) {
	s := New(nil)
	n := testNode("a", "1")
	require.NoError(t, s.ActionsFor("source").CreateNode(t.Context(), n))

	n.Fields["title"] = "changed"
	stored, _ := s.GetNode("a")
	assert.Equal(t, "a", stored.StringField("title"))
}

func TestDeleteNode(t *testing.T) {
	s := New(nil)
	actions := s.ActionsFor("source")
	ctx := t.Context()
	require.NoError(t, actions.CreateNode(ctx, testNode("a", "1")))
	require.NoError(t, actions.CreateNode(ctx, testNode("b", "1")))
	require.NoError(t, actions.CreateNode(ctx, testNode("c", "1")))

	require.NoError(t, actions.DeleteNode(ctx, "a"))
	require.NoError(t, actions.DeleteNode(ctx, "unknown"))
	require.NoError(t, actions.DeleteNodes(ctx, []string{"b", "c"}))

	assert.Empty(t, s.GetNodes())
}

func TestCreateNodeFieldReplacesNode(t *testing.T) {
	s := New(nil)
	ctx := t.Context()
	require.NoError(t, s.ActionsFor("source").CreateNode(ctx, testNode("a", "1")))
	before, _ := s.GetNode("a")

	require.NoError(t, s.ActionsFor("markdown").CreateNodeField(ctx, "a", "slug", "/a/"))

	after, _ := s.GetNode("a")
	assert.NotSame(t, before, after)
	assert.NotContains(t, before.Fields, node.FieldsKey, "stored node must not be mutated")
	assert.Equal(t, map[string]any{"slug": "/a/"}, after.Fields[node.FieldsKey])
	assert.Equal(t, "markdown", after.Internal.FieldOwners["slug"])
	assert.Equal(t, "1", after.Internal.ContentDigest)

	err := s.ActionsFor("other").CreateNodeField(ctx, "a", "slug", "/b/")
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))

	err = s.ActionsFor("markdown").CreateNodeField(ctx, "missing", "slug", "/x/")
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryNotFound))
}

func TestParentChildLink(t *testing.T) {
	s := New(nil)
	ctx := t.Context()
	actions := s.ActionsFor("source")
	require.NoError(t, actions.CreateNode(ctx, testNode("parent", "1")))

	require.NoError(t, actions.CreateParentChildLink(ctx, "parent", "child"))
	require.NoError(t, actions.CreateParentChildLink(ctx, "parent", "child"))

	p, _ := s.GetNode("parent")
	assert.Equal(t, []string{"child"}, p.Children)
}

func TestPageDependenciesAreDeduplicated(t *testing.T) {
	s := New(nil)
	ctx := t.Context()
	actions := s.ActionsFor("build")

	require.NoError(t, actions.CreatePageDependency(ctx, "/about/", "n1"))
	require.NoError(t, actions.CreatePageDependency(ctx, "/about/", "n1"))
	require.NoError(t, actions.CreatePageDependency(ctx, "/about/", "n0"))
	require.NoError(t, actions.CreatePageDependency(ctx, "/", "n1"))

	assert.Equal(t, []string{"n0", "n1"}, s.DependenciesOf("/about/"))
	assert.Equal(t, []string{"/", "/about/"}, s.DependentPaths("n1"))

	require.NoError(t, actions.DeletePageDependencies(ctx, "/about/"))
	assert.Empty(t, s.DependenciesOf("/about/"))
	assert.Equal(t, []string{"/"}, s.PagePaths())

	err := actions.CreatePageDependency(ctx, "", "n1")
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
}

func TestPluginStatusMerges(t *testing.T) {
	s := New(nil)
	ctx := t.Context()
	actions := s.ActionsFor("source")

	require.NoError(t, actions.SetPluginStatus(ctx, map[string]any{"lastFetched": "t1"}))
	require.NoError(t, actions.SetPluginStatus(ctx, map[string]any{"cursor": 3}))

	assert.Equal(t, map[string]any{"lastFetched": "t1", "cursor": 3}, s.PluginStatus("source"))
	assert.Nil(t, s.PluginStatus("unknown"))
}

func TestOwnershipFollowsNodeLifecycle(t *testing.T) {
	s := New(nil)
	ctx := t.Context()
	actions := s.ActionsFor("source")

	author := map[string]any{"name": "Ada"}
	n := testNode("a", "1")
	n.Fields["author"] = author
	require.NoError(t, actions.CreateNode(ctx, n))

	owner, ok := s.OwnerNodeID(author)
	require.True(t, ok)
	assert.Equal(t, "a", owner)

	require.NoError(t, actions.DeleteNode(ctx, "a"))
	_, ok = s.OwnerNodeID(author)
	assert.False(t, ok)
}

func TestInitialStateIsTracked(t *testing.T) {
	tags := []any{"go", "graph"}
	n := testNode("restored", "1")
	n.Fields["tags"] = tags
	ps := EmptyPersistedState()
	ps.Nodes[n.ID] = n

	s := New(nil, WithInitialState(ps))

	owner, ok := s.OwnerNodeID(tags)
	require.True(t, ok)
	assert.Equal(t, "restored", owner)
}

func TestStaleNodes(t *testing.T) {
	ps := EmptyPersistedState()
	ps.Nodes["kept"] = testNode("kept", "1")
	ps.Nodes["gone"] = testNode("gone", "1")
	derived := testNode("gone-child", "1")
	derived.Parent = "gone"
	ps.Nodes[derived.ID] = derived

	s := New(nil, WithInitialState(ps))
	ctx := t.Context()
	actions := s.ActionsFor("source")

	s.BeginSourcing()
	require.NoError(t, actions.TouchNode(ctx, "kept"))
	require.NoError(t, actions.CreateNode(ctx, testNode("new", "1")))

	var ids []string
	for _, n := range s.StaleNodes() {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"gone", "gone-child"}, ids)

	err := actions.TouchNode(ctx, "missing")
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryNotFound))
}

func TestDispatchPublishesInOrder(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	s := New(bus)

	var seen []ActionType
	unsubscribe := events.SubscribeFunc(bus, func(a Action) { seen = append(seen, a.Type()) })
	defer unsubscribe()

	ctx := context.Background()
	actions := s.ActionsFor("source")
	require.NoError(t, actions.CreateNode(ctx, testNode("a", "1")))
	require.NoError(t, actions.CreateNodeField(ctx, "a", "slug", "/a/"))
	require.NoError(t, actions.CreatePageDependency(ctx, "/a/", "a"))
	require.NoError(t, actions.DeleteNode(ctx, "a"))

	assert.Equal(t, []ActionType{
		ActionCreateNode, ActionAddFieldToNode, ActionCreatePageDependency, ActionDeleteNode,
	}, seen)

	last, seq := s.LastAction()
	assert.Equal(t, ActionDeleteNode, last.Type())
	assert.Equal(t, uint64(4), seq)
}

func TestCreateNodeEventCarriesReplacedNode(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	s := New(bus)

	var created []CreateNode
	defer events.SubscribeFunc(bus, func(a CreateNode) { created = append(created, a) })()

	ctx := t.Context()
	actions := s.ActionsFor("source")
	require.NoError(t, actions.CreateNode(ctx, testNode("a", "1")))
	require.NoError(t, actions.CreateNode(ctx, testNode("a", "2")))

	require.Len(t, created, 2)
	assert.Nil(t, created[0].Replaced)
	require.NotNil(t, created[1].Replaced)
	assert.Equal(t, "1", created[1].Replaced.Internal.ContentDigest)
}

func TestRejectedActionIsNotPublished(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	s := New(bus)

	count := 0
	defer events.SubscribeFunc(bus, func(Action) { count++ })()

	err := s.Dispatch(t.Context(), TouchNode{Plugin: "source", ID: "missing"})
	require.Error(t, err)
	assert.Zero(t, count)

	_, seq := s.LastAction()
	assert.Zero(t, seq)
}

func TestSnapshotIsIndependent(t *testing.T) {
	s := New(nil)
	ctx := t.Context()
	actions := s.ActionsFor("source")
	require.NoError(t, actions.CreateNode(ctx, testNode("a", "1")))
	require.NoError(t, actions.CreatePageDependency(ctx, "/a/", "a"))

	snap := s.Snapshot()
	require.NoError(t, actions.CreateNode(ctx, testNode("b", "1")))
	require.NoError(t, actions.CreatePageDependency(ctx, "/a/", "b"))

	assert.Len(t, snap.Nodes, 1)
	assert.Len(t, snap.ComponentDataDependencies["/a/"], 1)
}
