package eventstore

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitegraph/internal/events"
	"git.home.luguber.info/inful/sitegraph/internal/node"
	"git.home.luguber.info/inful/sitegraph/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestAppendAndQuery(t *testing.T) {
	st := newTestStore(t)
	ctx := t.Context()
	now := time.UnixMilli(1_700_000_000_000)

	actions := []store.Action{
		store.CreateNode{Plugin: "fs", Node: &node.Node{ID: "a", Internal: node.Internal{Type: "File", ContentDigest: "1"}}},
		store.TouchNode{Plugin: "fs", ID: "b"},
		store.CreatePageDependency{Plugin: "build", Path: "/", NodeID: "a"},
		store.DeletePageDependencies{Plugin: "build", Paths: []string{"/"}},
	}
	for _, a := range actions {
		rec, err := NewRecord("s1", a, now)
		require.NoError(t, err)
		_, err = st.Append(ctx, rec)
		require.NoError(t, err)
	}

	recent, err := st.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "DELETE_COMPONENTS_DEPENDENCIES", recent[0].Type)
	assert.Equal(t, int64(4), recent[0].Seq)
	assert.Equal(t, now, recent[0].Timestamp)

	byNode, err := st.ByNode(ctx, "a")
	require.NoError(t, err)
	require.Len(t, byNode, 2)
	assert.Equal(t, "CREATE_NODE", byNode[0].Type)
	assert.Equal(t, "fs", byNode[0].Plugin)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(byNode[0].Payload, &payload))
	assert.Equal(t, "a", payload["node"].(map[string]any)["id"])

	counts, err := st.CountByType(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		"CREATE_NODE":                    1,
		"TOUCH_NODE":                     1,
		"CREATE_COMPONENT_DEPENDENCY":    1,
		"DELETE_COMPONENTS_DEPENDENCIES": 1,
	}, counts)

	empty, err := st.ByNode(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actions.db")
	st, err := NewSQLiteStore(path)
	require.NoError(t, err)

	rec, err := NewRecord("s1", store.TouchNode{Plugin: "fs", ID: "a"}, time.Now())
	require.NoError(t, err)
	_, err = st.Append(t.Context(), rec)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	recent, err := reopened.Recent(t.Context(), 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestOpenFailure(t *testing.T) {
	_, err := NewSQLiteStore(filepath.Join(t.TempDir(), "missing", "dir", "actions.db"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInitializeSchemaFailed) || errors.Is(err, ErrDatabaseOpenFailed))
}

func TestWriterLogsDispatchedActions(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	st := newTestStore(t)
	s := store.New(bus)

	w, err := NewWriter(bus, st, nil)
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- w.Run(t.Context()) }()
	<-w.Ready()

	actions := s.ActionsFor("fs")
	require.NoError(t, actions.CreateNode(t.Context(), &node.Node{
		ID: "a", Internal: node.Internal{Type: "File", ContentDigest: "1"},
	}))
	require.NoError(t, actions.DeleteNode(t.Context(), "a"))

	require.Eventually(t, func() bool {
		counts, err := st.CountByType(t.Context(), w.SessionID())
		return err == nil && counts["CREATE_NODE"] == 1 && counts["DELETE_NODE"] == 1
	}, 2*time.Second, 10*time.Millisecond)

	bus.Close()
	require.NoError(t, <-done)
}
