package sourcefs

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	ferrors "git.home.luguber.info/inful/sitegraph/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegraph/internal/logfields"
	"git.home.luguber.info/inful/sitegraph/internal/plugin"
)

// Watch keeps File nodes in sync with the directory until ctx is done.
// changed is called after every applied change with the relative path and
// the id of the affected node, which is empty for a new directory.
func (p *Plugin) Watch(ctx context.Context, args *plugin.APIArgs, changed func(rel, nodeID string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to create file watcher").Build()
	}
	defer w.Close()

	if err := p.addTree(w, p.root); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to watch source directory").
			WithContext("path", p.root).
			Build()
	}
	args.Logger.Info("Watching source directory", logfields.Path(p.root))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			rel, id, err := p.apply(ctx, args, w, event)
			if err != nil {
				args.Logger.Warn("Failed to apply file change",
					logfields.Path(event.Name),
					slog.String("op", event.Op.String()),
					logfields.Error(err))
				continue
			}
			if rel != "" && changed != nil {
				changed(rel, id)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			args.Logger.Error("File watcher error", logfields.Error(err))
		}
	}
}

// apply syncs the node for one event. rel is empty when the graph did not
// change.
func (p *Plugin) apply(ctx context.Context, args *plugin.APIArgs, w *fsnotify.Watcher, event fsnotify.Event) (rel, id string, err error) {
	if isHidden(filepath.Base(event.Name)) {
		return "", "", nil
	}
	rel, err = filepath.Rel(p.root, event.Name)
	if err != nil {
		return "", "", err
	}
	id = p.NodeID(rel)

	if event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
		if _, ok := args.Store.GetNode(id); !ok {
			return "", "", nil
		}
		return rel, id, args.Actions.DeleteNode(ctx, id)
	}
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
		return "", "", nil
	}

	info, err := os.Stat(event.Name)
	if errors.Is(err, fs.ErrNotExist) {
		return "", "", nil
	}
	if err != nil {
		return "", "", err
	}
	if info.IsDir() {
		// Files may land in a new directory before it is watched.
		if err := p.addTree(w, event.Name); err != nil {
			return "", "", err
		}
		return rel, "", p.syncTree(ctx, args, event.Name)
	}
	changed, err := p.syncFile(ctx, args, event.Name)
	if err != nil || !changed {
		return "", "", err
	}
	return rel, id, nil
}

// addTree registers dir and its subdirectories; fsnotify is not recursive.
func (p *Plugin) addTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

func (p *Plugin) syncTree(ctx context.Context, args *plugin.APIArgs, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if isHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		_, err = p.syncFile(ctx, args, path)
		return err
	})
}
