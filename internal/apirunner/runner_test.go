package apirunner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitegraph/internal/events"
	ferrors "git.home.luguber.info/inful/sitegraph/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegraph/internal/node"
	"git.home.luguber.info/inful/sitegraph/internal/plugin"
	"git.home.luguber.info/inful/sitegraph/internal/store"
)

// journal records hook calls across plugins in call order.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, s)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type recordingPlugin struct {
	name     string
	journal  *journal
	onCreate func(ctx context.Context, args *plugin.APIArgs, n *node.Node) error
}

func (p *recordingPlugin) Metadata() plugin.PluginMetadata {
	return plugin.PluginMetadata{Name: p.name, Version: "v0.0.1", Type: plugin.PluginTypeTransformer}
}

func (p *recordingPlugin) OnCreateNode(ctx context.Context, args *plugin.APIArgs, n *node.Node) error {
	p.journal.add(p.name + ":create:" + n.ID)
	if p.onCreate != nil {
		return p.onCreate(ctx, args, n)
	}
	return nil
}

func (p *recordingPlugin) OnDeleteNode(_ context.Context, _ *plugin.APIArgs, n *node.Node) error {
	p.journal.add(p.name + ":delete:" + n.ID)
	return nil
}

func (p *recordingPlugin) OnUpdateNode(_ context.Context, _ *plugin.APIArgs, n *node.Node, field string) error {
	p.journal.add(p.name + ":update:" + n.ID + ":" + field)
	return nil
}

func (p *recordingPlugin) SourceNodes(_ context.Context, _ *plugin.APIArgs) error {
	p.journal.add(p.name + ":source")
	return nil
}

type failingSource struct{}

func (failingSource) Metadata() plugin.PluginMetadata {
	return plugin.PluginMetadata{Name: "broken", Version: "v0.0.1", Type: plugin.PluginTypeSource}
}

func (failingSource) SourceNodes(context.Context, *plugin.APIArgs) error {
	return errors.New("remote unavailable")
}

type harness struct {
	store  *store.Store
	runner *Runner
}

func newHarness(t *testing.T, plugins ...plugin.Plugin) harness {
	t.Helper()
	bus := events.NewBus()
	t.Cleanup(bus.Close)

	registry := plugin.NewRegistry()
	for _, p := range plugins {
		require.NoError(t, registry.Register(p))
	}
	s := store.New(bus)
	r := New(s, registry, bus)
	r.Start(t.Context())
	t.Cleanup(r.Stop)
	return harness{store: s, runner: r}
}

func pageNode(id string) *node.Node {
	return &node.Node{ID: id, Internal: node.Internal{Type: "Page", ContentDigest: "1"}}
}

func waitIdle(t *testing.T, r *Runner) {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Wait(ctx))
}

func TestCreateNodeInvokesHook(t *testing.T) {
	j := &journal{}
	h := newHarness(t, &recordingPlugin{name: "p", journal: j})

	require.NoError(t, h.store.ActionsFor("source").CreateNode(t.Context(), pageNode("n1")))
	waitIdle(t, h.runner)

	assert.Equal(t, []string{"p:create:n1"}, j.list())
}

func TestHooksRunInRegistrationAndDispatchOrder(t *testing.T) {
	j := &journal{}
	h := newHarness(t,
		&recordingPlugin{name: "b", journal: j},
		&recordingPlugin{name: "a", journal: j},
	)
	ctx := t.Context()
	actions := h.store.ActionsFor("source")

	require.NoError(t, actions.CreateNode(ctx, pageNode("n1")))
	require.NoError(t, actions.CreateNodeField(ctx, "n1", "slug", "/n1/"))
	require.NoError(t, actions.DeleteNode(ctx, "n1"))
	waitIdle(t, h.runner)

	assert.Equal(t, []string{
		"b:create:n1", "a:create:n1",
		"b:update:n1:slug", "a:update:n1:slug",
		"b:delete:n1", "a:delete:n1",
	}, j.list())
}

func TestHookDispatchesAreQueuedBehind(t *testing.T) {
	j := &journal{}
	deriver := &recordingPlugin{name: "deriver", journal: j}
	deriver.onCreate = func(ctx context.Context, args *plugin.APIArgs, n *node.Node) error {
		if n.Internal.Type != "Page" {
			return nil
		}
		child := &node.Node{
			ID:       n.ID + "-derived",
			Parent:   n.ID,
			Internal: node.Internal{Type: "Derived", ContentDigest: n.Internal.ContentDigest},
		}
		if err := args.Actions.CreateNode(ctx, child); err != nil {
			return err
		}
		return args.Actions.CreateParentChildLink(ctx, n.ID, child.ID)
	}
	observer := &recordingPlugin{name: "observer", journal: j}
	h := newHarness(t, deriver, observer)

	require.NoError(t, h.store.ActionsFor("source").CreateNode(t.Context(), pageNode("n1")))
	waitIdle(t, h.runner)

	assert.Equal(t, []string{
		"deriver:create:n1", "observer:create:n1",
		"deriver:create:n1-derived", "observer:create:n1-derived",
	}, j.list())

	derived, ok := h.store.GetNode("n1-derived")
	require.True(t, ok)
	assert.Equal(t, "deriver", derived.Internal.Owner)
	parent, _ := h.store.GetNode("n1")
	assert.Equal(t, []string{"n1-derived"}, parent.Children)
}

func TestHookFailuresAreCollected(t *testing.T) {
	j := &journal{}
	failing := &recordingPlugin{name: "failing", journal: j}
	failing.onCreate = func(context.Context, *plugin.APIArgs, *node.Node) error {
		return errors.New("boom")
	}
	panicking := &recordingPlugin{name: "panicking", journal: j}
	panicking.onCreate = func(context.Context, *plugin.APIArgs, *node.Node) error {
		panic("unexpected")
	}
	healthy := &recordingPlugin{name: "healthy", journal: j}
	h := newHarness(t, failing, panicking, healthy)

	require.NoError(t, h.store.ActionsFor("source").CreateNode(t.Context(), pageNode("n1")))
	waitIdle(t, h.runner)

	assert.Contains(t, j.list(), "healthy:create:n1")
	errs := h.runner.Errors()
	require.Len(t, errs, 2)
	for _, err := range errs {
		assert.True(t, ferrors.HasCategory(err, ferrors.CategoryPlugin))
	}
	classified, ok := ferrors.AsClassified(errs[0])
	require.True(t, ok)
	name, _ := classified.Context().GetString("plugin")
	assert.Equal(t, "failing", name)
}

func TestRunAPISourceNodes(t *testing.T) {
	j := &journal{}
	h := newHarness(t,
		&recordingPlugin{name: "first", journal: j},
		&recordingPlugin{name: "second", journal: j},
	)

	require.NoError(t, h.runner.RunAPI(t.Context(), plugin.APISourceNodes))
	assert.Equal(t, []string{"first:source", "second:source"}, j.list())
}

func TestRunAPIStopsAtFirstFailure(t *testing.T) {
	j := &journal{}
	h := newHarness(t, failingSource{}, &recordingPlugin{name: "after", journal: j})

	err := h.runner.RunAPI(t.Context(), plugin.APISourceNodes)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryPlugin))
	assert.Contains(t, err.Error(), "remote unavailable")
	assert.Empty(t, j.list())
}

func TestRunAPIUnknown(t *testing.T) {
	h := newHarness(t)
	err := h.runner.RunAPI(t.Context(), "createPages")
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
}

func TestWaitWithoutWorkReturnsImmediately(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.runner.Wait(t.Context()))
	assert.Zero(t, h.runner.Pending())
}

func TestWaitHonorsContext(t *testing.T) {
	j := &journal{}
	release := make(chan struct{})
	slow := &recordingPlugin{name: "slow", journal: j}
	slow.onCreate = func(context.Context, *plugin.APIArgs, *node.Node) error {
		<-release
		return nil
	}
	h := newHarness(t, slow)
	defer close(release)

	require.NoError(t, h.store.ActionsFor("source").CreateNode(t.Context(), pageNode("n1")))

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.runner.Wait(ctx), context.DeadlineExceeded)
}
