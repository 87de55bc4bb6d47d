package build

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	ferrors "git.home.luguber.info/inful/sitegraph/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegraph/internal/logfields"
	"git.home.luguber.info/inful/sitegraph/internal/node"
	"git.home.luguber.info/inful/sitegraph/internal/plugins/markdown"
	"git.home.luguber.info/inful/sitegraph/internal/store"
	"git.home.luguber.info/inful/sitegraph/internal/util/sets"
)

//go:embed templates/page.html.tmpl
var embeddedTemplates embed.FS

// HTMLPhase writes one index.html per MarkdownRemark node, at the node's
// slug. Every page records the nodes it read, and pages whose node is gone
// are removed from the output.
type HTMLPhase struct {
	tmpl *template.Template
}

type pageHeading struct {
	Depth int
	Value string
	ID    string
}

type pageData struct {
	Path        string
	Title       string
	Content     template.HTML
	Headings    []pageHeading
	Frontmatter map[string]any
}

// NewHTMLPhase parses the page template at templatePath, or the built-in
// template when templatePath is empty.
func NewHTMLPhase(templatePath string) (*HTMLPhase, error) {
	var (
		raw []byte
		err error
	)
	if templatePath == "" {
		raw, err = embeddedTemplates.ReadFile("templates/page.html.tmpl")
	} else {
		raw, err = os.ReadFile(templatePath)
	}
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to read page template").
			WithContext("path", templatePath).
			Build()
	}
	tmpl, err := template.New("page").Option("missingkey=zero").Parse(string(raw))
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "invalid page template").
			WithContext("path", templatePath).
			Build()
	}
	return &HTMLPhase{tmpl: tmpl}, nil
}

func (h *HTMLPhase) Name() string { return "html" }

func (h *HTMLPhase) Run(ctx context.Context, env *Env) error {
	rendered := sets.New[string]()
	for _, n := range env.Store.GetNodesByType(markdown.NodeType) {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := PagePath(n)
		if err := h.renderPage(ctx, env, n.ID, path); err != nil {
			return err
		}
		rendered.Add(path)
	}

	var removed int
	for _, path := range previousPages(env.Store) {
		if rendered.Has(path) {
			continue
		}
		if err := env.Pages.ResetPage(ctx, path); err != nil {
			return err
		}
		file, err := outputFile(env.OutputDir, path)
		if err != nil {
			return err
		}
		if err := os.Remove(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to remove page").
				WithContext("path", file).
				Build()
		}
		removed++
	}

	pages := make([]any, 0, len(rendered))
	for _, path := range sets.Sorted(rendered) {
		pages = append(pages, path)
	}
	if err := env.Store.ActionsFor(Owner).SetPluginStatus(ctx, map[string]any{statusHTMLPages: pages}); err != nil {
		return err
	}

	env.Logger.Info("Pages written",
		logfields.Count(len(rendered)),
		slog.Int("removed", removed))
	return nil
}

// statusHTMLPages lists, in the build's plugin status, the page paths the
// HTML phase wrote last time. Only those are cleaned up; dependencies other
// plugins record for their own pages are left alone.
const statusHTMLPages = "htmlPages"

func previousPages(st *store.Store) []string {
	var out []string
	switch v := st.PluginStatus(Owner)[statusHTMLPages].(type) {
	case []any:
		for _, p := range v {
			if s, ok := p.(string); ok {
				out = append(out, s)
			}
		}
	case []string:
		out = v
	}
	return out
}

// renderPage records the page's dependencies from scratch while reading the
// nodes it shows.
func (h *HTMLPhase) renderPage(ctx context.Context, env *Env, id, path string) error {
	if err := env.Pages.ResetPage(ctx, path); err != nil {
		return err
	}
	n, ok, err := env.Pages.GetNodeAndSavePathDependency(ctx, id, path)
	if err != nil || !ok {
		return err
	}
	if n.Parent != "" {
		if _, _, err := env.Pages.GetNodeAndSavePathDependency(ctx, n.Parent, path); err != nil {
			return err
		}
	}

	data := pageData{
		Path:     path,
		Title:    n.StringField(markdown.FieldTitle),
		Content:  template.HTML(n.StringField(markdown.FieldHTML)), //nolint:gosec // rendered by goldmark without raw HTML
		Headings: headingsOf(n),
	}
	data.Frontmatter, _ = n.Fields[markdown.FieldFrontmatter].(map[string]any)

	var buf bytes.Buffer
	if err := h.tmpl.Execute(&buf, data); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryBuild, "failed to render page").
			WithContext("page", path).
			WithContext("node_id", id).
			Build()
	}
	file, err := outputFile(env.OutputDir, path)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(file, buf.Bytes()); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to write page").
			WithContext("path", file).
			Build()
	}
	env.Logger.Debug("Page written", logfields.PagePath(path), logfields.NodeID(id))
	return nil
}

// PagePath is the page path of a MarkdownRemark node: its slug field, or a
// path derived from its id when no slug was added.
func PagePath(n *node.Node) string {
	if v, ok := n.AddedField(markdown.FieldSlug); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "/" + n.ID + "/"
}

func headingsOf(n *node.Node) []pageHeading {
	raw, _ := n.Fields[markdown.FieldHeadings].([]any)
	out := make([]pageHeading, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		h := pageHeading{}
		if d, ok := m["depth"].(float64); ok {
			h.Depth = int(d)
		}
		h.Value, _ = m["value"].(string)
		h.ID, _ = m["id"].(string)
		out = append(out, h)
	}
	return out
}

// outputFile maps a page path to its index.html below dir. Paths escaping
// dir are rejected.
func outputFile(dir, page string) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(page, "/")))
	if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ferrors.ValidationError("page path escapes the output directory").
			WithContext("page", page).
			Build()
	}
	return filepath.Join(dir, rel, "index.html"), nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil { //nolint:gosec // published site output
		return err
	}
	return os.Rename(tmp, path)
}
