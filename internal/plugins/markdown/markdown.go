// Package markdown is the built-in transformer plugin. For every markdown
// File node it creates a MarkdownRemark child holding the parsed frontmatter,
// rendered HTML and heading outline.
package markdown

import (
	"context"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"

	ferrors "git.home.luguber.info/inful/sitegraph/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegraph/internal/frontmatter"
	"git.home.luguber.info/inful/sitegraph/internal/logfields"
	"git.home.luguber.info/inful/sitegraph/internal/node"
	"git.home.luguber.info/inful/sitegraph/internal/plugin"
)

const (
	// Name is the plugin name and the owner of MarkdownRemark nodes.
	Name = "markdown"

	// NodeType is the type of the derived nodes.
	NodeType = "MarkdownRemark"

	// MediaType selects the nodes this plugin transforms.
	MediaType = "text/markdown"
)

// Fields of MarkdownRemark nodes.
const (
	FieldFrontmatter = "frontmatter"
	FieldHTML        = "html"
	FieldHeadings    = "headings"
	FieldExcerpt     = "excerpt"
	FieldWordCount   = "wordCount"
	FieldTimeToRead  = "timeToRead"
	FieldTitle       = "title"

	// FieldSlug is added with CreateNodeField after the node exists.
	FieldSlug = "slug"
)

var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("sitegraph:"+Name))

// Plugin transforms markdown files.
type Plugin struct {
	plugin.BasePlugin
	md goldmark.Markdown
}

var (
	_ plugin.OnCreateNodeHook = (*Plugin)(nil)
	_ plugin.OnDeleteNodeHook = (*Plugin)(nil)
)

// New returns the plugin with a GFM renderer.
func New() *Plugin {
	return &Plugin{md: newRenderer()}
}

// Metadata implements plugin.Plugin.
func (p *Plugin) Metadata() plugin.PluginMetadata {
	return plugin.PluginMetadata{
		Name:        Name,
		Version:     "v1.0.0",
		Type:        plugin.PluginTypeTransformer,
		Description: "Parses markdown files into MarkdownRemark nodes",
	}
}

// ChildID returns the id of the MarkdownRemark node derived from parentID.
func ChildID(parentID string) string {
	return uuid.NewSHA1(namespace, []byte(parentID)).String()
}

// OnCreateNode derives a MarkdownRemark node from a markdown source node.
// An unchanged document keeps its existing child.
func (p *Plugin) OnCreateNode(ctx context.Context, args *plugin.APIArgs, n *node.Node) error {
	if n.Internal.MediaType != MediaType {
		return nil
	}
	raw, err := args.LoadContent(ctx, n)
	if err != nil {
		return err
	}
	doc, err := frontmatter.Parse([]byte(raw))
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryValidation, "invalid frontmatter").
			WithContext("node_id", n.ID).
			Build()
	}
	digest, err := frontmatter.Fingerprint(doc.Fields, doc.Body)
	if err != nil {
		return err
	}

	id := ChildID(n.ID)
	if args.Store.HasNodeChanged(id, digest) {
		child, err := p.transform(n, id, digest, doc)
		if err != nil {
			return err
		}
		if err := args.Actions.CreateNode(ctx, child); err != nil {
			return err
		}
		args.Logger.Debug("Transformed markdown", logfields.NodeID(id), slog.String("parent", n.ID))
	}

	// A recreated parent loses its children list.
	if !slices.Contains(n.Children, id) {
		if err := args.Actions.CreateParentChildLink(ctx, n.ID, id); err != nil {
			return err
		}
	}
	slug := slugFor(n, doc.Fields)
	if child, ok := args.Store.GetNode(id); ok {
		if current, ok := child.AddedField(FieldSlug); ok && current == slug {
			return nil
		}
	}
	return args.Actions.CreateNodeField(ctx, id, FieldSlug, slug)
}

func (p *Plugin) transform(parent *node.Node, id, digest string, doc frontmatter.Document) (*node.Node, error) {
	out, err := render(p.md, doc.Body)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryPlugin, "failed to render markdown").
			WithContext("node_id", parent.ID).
			Build()
	}

	headings := make([]any, 0, len(out.Headings))
	for _, h := range out.Headings {
		headings = append(headings, map[string]any{
			"depth": float64(h.Depth),
			"value": h.Value,
			"id":    h.ID,
		})
	}
	title, _ := doc.Fields["title"].(string)
	if title == "" {
		for _, h := range out.Headings {
			if h.Depth == 1 {
				title = h.Value
				break
			}
		}
	}

	return &node.Node{
		ID:     id,
		Parent: parent.ID,
		Internal: node.Internal{
			Type:          NodeType,
			ContentDigest: digest,
			Owner:         Name,
			MediaType:     "text/html",
			Content:       string(doc.Body),
		},
		Fields: map[string]any{
			FieldFrontmatter: doc.Fields,
			FieldHTML:        out.HTML,
			FieldHeadings:    headings,
			FieldExcerpt:     out.Excerpt,
			FieldWordCount:   float64(out.WordCount),
			FieldTimeToRead:  float64(out.TimeToRead),
			FieldTitle:       title,
		},
	}, nil
}

// slugFor prefers an explicit frontmatter slug over the file path.
func slugFor(parent *node.Node, fm map[string]any) string {
	if s, ok := fm["slug"].(string); ok && s != "" {
		return PathSlug(s)
	}
	if rel := parent.StringField("relativePath"); rel != "" {
		return PathSlug(rel)
	}
	return "/" + Slugify(parent.ID) + "/"
}

// OnDeleteNode removes the MarkdownRemark derived from a deleted node.
func (p *Plugin) OnDeleteNode(ctx context.Context, args *plugin.APIArgs, n *node.Node) error {
	if n.Internal.Type == NodeType {
		return nil
	}
	id := ChildID(n.ID)
	if _, ok := args.Store.GetNode(id); !ok {
		return nil
	}
	return args.Actions.DeleteNode(ctx, id)
}
