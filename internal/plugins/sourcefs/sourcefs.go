// Package sourcefs is the built-in source plugin. It creates one File node
// per file under a directory and loads file content on demand.
package sourcefs

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	ferrors "git.home.luguber.info/inful/sitegraph/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegraph/internal/logfields"
	"git.home.luguber.info/inful/sitegraph/internal/node"
	"git.home.luguber.info/inful/sitegraph/internal/plugin"
)

const (
	// Name is the plugin name and the owner of every File node.
	Name = "source-filesystem"

	// NodeType is the type of the nodes this plugin creates.
	NodeType = "File"

	defaultInstance = "pages"
)

// Fields set on File nodes.
const (
	FieldAbsolutePath      = "absolutePath"
	FieldRelativePath      = "relativePath"
	FieldRelativeDirectory = "relativeDirectory"
	FieldBase              = "base"
	FieldName              = "name"
	FieldExtension         = "extension"
	FieldSize              = "size"
	FieldModifiedTime      = "modifiedTime"
	FieldInstance          = "sourceInstanceName"
)

// namespace scopes File node ids so they never collide with other plugins.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("sitegraph:"+Name))

// Options configures the plugin.
type Options struct {
	// Path is the directory to source.
	Path string
	// Instance distinguishes File nodes of several sourced directories.
	Instance string
}

// Plugin sources files from one directory.
type Plugin struct {
	plugin.BasePlugin
	root     string
	instance string
	now      func() time.Time
}

var (
	_ plugin.SourceNodesHook   = (*Plugin)(nil)
	_ plugin.NodeContentLoader = (*Plugin)(nil)
)

// New validates opts and returns the plugin.
func New(opts Options) (*Plugin, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, ferrors.ConfigError("source-filesystem requires a path").
			WithContext("plugin", Name).
			Build()
	}
	root, err := filepath.Abs(opts.Path)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to resolve source path").
			WithContext("path", opts.Path).
			Build()
	}
	instance := opts.Instance
	if instance == "" {
		instance = defaultInstance
	}
	return &Plugin{root: root, instance: instance, now: time.Now}, nil
}

// Metadata implements plugin.Plugin.
func (p *Plugin) Metadata() plugin.PluginMetadata {
	return plugin.PluginMetadata{
		Name:        Name,
		Version:     "v1.0.0",
		Type:        plugin.PluginTypeSource,
		Description: "Creates File nodes from a local directory",
	}
}

// Root returns the absolute directory being sourced.
func (p *Plugin) Root() string { return p.root }

// NodeID returns the stable id of the File node for a path relative to the root.
func (p *Plugin) NodeID(rel string) string {
	return uuid.NewSHA1(namespace, []byte(p.instance+":"+filepath.ToSlash(rel))).String()
}

// SourceNodes walks the root. Unchanged files are touched, new or changed
// files are (re)created. Files that disappeared are left to the stale sweep.
func (p *Plugin) SourceNodes(ctx context.Context, args *plugin.APIArgs) error {
	info, err := os.Stat(p.root)
	if err != nil || !info.IsDir() {
		b := ferrors.FileSystemError("source directory does not exist").
			WithContext("path", p.root)
		if err != nil {
			b = b.WithCause(err)
		}
		return b.Build()
	}

	var created, touched int
	err = filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if isHidden(d.Name()) && path != p.root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		changed, err := p.syncFile(ctx, args, path)
		if err != nil {
			return err
		}
		if changed {
			created++
		} else {
			touched++
		}
		return nil
	})
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to source files").
			WithContext("path", p.root).
			Build()
	}

	args.Logger.Info("Sourced files",
		logfields.Path(p.root),
		slog.Int("created", created),
		slog.Int("unchanged", touched))
	return args.Actions.SetPluginStatus(ctx, map[string]any{
		"lastFetched": p.now().UTC().Format(time.RFC3339),
		"files":       created + touched,
	})
}

// syncFile creates the File node for path, or touches it when its digest is
// unchanged. It reports whether a node was created.
func (p *Plugin) syncFile(ctx context.Context, args *plugin.APIArgs, path string) (bool, error) {
	n, err := p.fileNode(path)
	if err != nil {
		return false, err
	}
	if !args.Store.HasNodeChanged(n.ID, n.Internal.ContentDigest) {
		return false, args.Actions.TouchNode(ctx, n.ID)
	}
	args.Logger.Debug("File changed", logfields.NodeID(n.ID), logfields.Path(n.StringField(FieldRelativePath)))
	return true, args.Actions.CreateNode(ctx, n)
}

func (p *Plugin) fileNode(path string) (*node.Node, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rel, err := filepath.Rel(p.root, path)
	if err != nil {
		return nil, err
	}

	base := filepath.Base(path)
	ext := filepath.Ext(base)
	dir := filepath.ToSlash(filepath.Dir(rel))
	if dir == "." {
		dir = ""
	}
	return &node.Node{
		ID: p.NodeID(rel),
		Internal: node.Internal{
			Type:          NodeType,
			ContentDigest: node.DigestBytes(data),
			Owner:         Name,
			MediaType:     MediaType(ext),
		},
		Fields: map[string]any{
			FieldAbsolutePath:      path,
			FieldRelativePath:      filepath.ToSlash(rel),
			FieldRelativeDirectory: dir,
			FieldBase:              base,
			FieldName:              strings.TrimSuffix(base, ext),
			FieldExtension:         strings.TrimPrefix(strings.ToLower(ext), "."),
			FieldSize:              float64(info.Size()),
			FieldModifiedTime:      info.ModTime().UTC().Format(time.RFC3339),
			FieldInstance:          p.instance,
		},
	}, nil
}

// LoadNodeContent reads the file behind a File node.
func (p *Plugin) LoadNodeContent(_ context.Context, n *node.Node) (string, error) {
	path := n.StringField(FieldAbsolutePath)
	if path == "" {
		return "", ferrors.ValidationError("file node has no path").
			WithContext("node_id", n.ID).
			Build()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to read file").
			WithContext("path", path).
			Build()
	}
	return string(data), nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
