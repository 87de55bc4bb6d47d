package ownership

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitegraph/internal/node"
)

func newNode(id string, fields map[string]any) *node.Node {
	return &node.Node{
		ID:       id,
		Internal: node.Internal{Type: "Test", ContentDigest: "d-" + id, Owner: "plugin-a"},
		Fields:   fields,
	}
}

func TestTrack_RegistersNestedInlineValues(t *testing.T) {
	tags := []any{"go", map[string]any{"name": "nested"}}
	frontmatter := map[string]any{"tags": tags, "title": "Hello"}
	n := newNode("n1", map[string]any{"frontmatter": frontmatter, "count": 3})

	tr := NewTracker()
	tr.Track(n)

	for _, v := range []any{frontmatter, tags, tags[1]} {
		owner, ok := tr.OwnerNodeID(v)
		require.True(t, ok)
		assert.Equal(t, "n1", owner)
	}
	assert.Equal(t, 3, tr.Len())
}

func TestTrack_IgnoresPrimitivesAndInternal(t *testing.T) {
	n := newNode("n1", map[string]any{"title": "Hello", "raw": []byte("abc")})
	n.Internal.FieldOwners = map[string]string{"slug": "plugin-a"}

	tr := NewTracker()
	tr.Track(n)

	_, ok := tr.OwnerNodeID("Hello")
	assert.False(t, ok)
	_, ok = tr.OwnerNodeID(n.Fields["raw"])
	assert.False(t, ok)
	_, ok = tr.OwnerNodeID(n.Internal.FieldOwners)
	assert.False(t, ok)
	assert.Zero(t, tr.Len())
}

func TestTrack_IsIdempotent(t *testing.T) {
	inner := map[string]any{"a": []any{1, 2}}
	n := newNode("n1", map[string]any{"inner": inner})

	tr := NewTracker()
	tr.Track(n)
	first := tr.Len()
	tr.Track(n)

	assert.Equal(t, first, tr.Len())
	owner, ok := tr.OwnerNodeID(inner["a"])
	require.True(t, ok)
	assert.Equal(t, "n1", owner)
}

func TestTrack_SharedValueLastWriterWins(t *testing.T) {
	shared := map[string]any{"k": "v"}
	tr := NewTracker()

	tr.Track(newNode("n1", map[string]any{"x": shared}))
	tr.Track(newNode("n2", map[string]any{"y": shared}))

	owner, ok := tr.OwnerNodeID(shared)
	require.True(t, ok)
	assert.Equal(t, "n2", owner)

	// Forgetting the previous owner must not drop the newer association.
	tr.Forget("n1")
	owner, ok = tr.OwnerNodeID(shared)
	require.True(t, ok)
	assert.Equal(t, "n2", owner)
}

func TestForget_RemovesAssociations(t *testing.T) {
	inner := map[string]any{"k": "v"}
	tr := NewTracker()
	tr.Track(newNode("n1", map[string]any{"inner": inner}))

	tr.Forget("n1")

	_, ok := tr.OwnerNodeID(inner)
	assert.False(t, ok)
	assert.Zero(t, tr.Len())
}

func TestTrack_SurvivesCycles(t *testing.T) {
	cyclic := map[string]any{}
	cyclic["self"] = cyclic

	tr := NewTracker()
	tr.Track(newNode("n1", map[string]any{"c": cyclic}))

	owner, ok := tr.OwnerNodeID(cyclic)
	require.True(t, ok)
	assert.Equal(t, "n1", owner)
}

func TestOwnerNodeID_UntrackedValue(t *testing.T) {
	tr := NewTracker()
	_, ok := tr.OwnerNodeID(map[string]any{"never": "tracked"})
	assert.False(t, ok)
	_, ok = tr.OwnerNodeID(nil)
	assert.False(t, ok)
}

func TestTrack_SkipsValuesWithoutIdentity(t *testing.T) {
	empty := []any{}
	var nilMap map[string]any
	reserved := make([]any, 0, 4)
	n := newNode("n1", map[string]any{"empty": empty, "meta": nilMap, "reserved": reserved})

	tr := NewTracker()
	tr.Track(n)

	_, ok := tr.OwnerNodeID(empty)
	assert.False(t, ok, "zero-capacity slices report no owner")
	_, ok = tr.OwnerNodeID(nilMap)
	assert.False(t, ok, "nil maps report no owner")
	owner, ok := tr.OwnerNodeID(reserved)
	require.True(t, ok)
	assert.Equal(t, "n1", owner)
	assert.Equal(t, 1, tr.Len())
}
