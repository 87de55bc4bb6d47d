package node

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleNode() *Node {
	return &Node{
		ID:       "n1",
		Parent:   "file-1",
		Children: []string{"c1"},
		Internal: Internal{
			Type:          "MarkdownRemark",
			ContentDigest: "h1",
			Owner:         "plugin-a",
			MediaType:     "text/markdown",
		},
		Fields: map[string]any{
			"title": "Hello",
			"frontmatter": map[string]any{
				"tags": []any{"go", "static"},
				"draft": false,
			},
			"wordCount": float64(42),
		},
	}
}

func TestNode_JSONIsFlat(t *testing.T) {
	data, err := json.Marshal(sampleNode())
	require.NoError(t, err)

	var flat map[string]any
	require.NoError(t, json.Unmarshal(data, &flat))

	assert.Equal(t, "n1", flat["id"])
	assert.Equal(t, "Hello", flat["title"])
	assert.Equal(t, "file-1", flat["parent"])
	internal, ok := flat["internal"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "h1", internal["contentDigest"])
	assert.Equal(t, "plugin-a", internal["owner"])
	assert.NotContains(t, internal, "content")
}

func TestNode_JSONRoundTrip(t *testing.T) {
	orig := sampleNode()
	data, err := json.Marshal(orig)
	require.NoError(t, err)

	var got Node
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, orig.ID, got.ID)
	assert.Equal(t, orig.Parent, got.Parent)
	assert.Equal(t, orig.Children, got.Children)
	assert.Equal(t, orig.Internal, got.Internal)
	assert.Equal(t, orig.Fields, got.Fields)
}

func TestNode_MarshalRejectsReservedField(t *testing.T) {
	n := sampleNode()
	n.Fields["internal"] = "oops"

	_, err := json.Marshal(n)
	require.Error(t, err)
}

func TestNode_CloneSharesValuesNotMaps(t *testing.T) {
	orig := sampleNode()
	cp := orig.Clone()
	cp.Fields["title"] = "Changed"

	assert.Equal(t, "Hello", orig.StringField("title"))
	// Nested values are shared, not copied.
	origFM := orig.Fields["frontmatter"].(map[string]any)
	cpFM := cp.Fields["frontmatter"].(map[string]any)
	cpFM["draft"] = true
	assert.Equal(t, true, origFM["draft"])
}

func TestDigest_IsStableAcrossMapOrder(t *testing.T) {
	a, err := Digest(map[string]any{"a": 1, "b": []any{"x"}})
	require.NoError(t, err)
	b, err := Digest(map[string]any{"b": []any{"x"}, "a": 1})
	require.NoError(t, err)
	c, err := Digest(map[string]any{"a": 2, "b": []any{"x"}})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestAddedField(t *testing.T) {
	n := &Node{ID: "a", Fields: map[string]any{FieldsKey: map[string]any{"slug": "/a/"}}}
	v, ok := n.AddedField("slug")
	require.True(t, ok)
	assert.Equal(t, "/a/", v)

	_, ok = (&Node{ID: "b"}).AddedField("slug")
	assert.False(t, ok)
}
