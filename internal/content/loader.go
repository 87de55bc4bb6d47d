// Package content materializes node content, delegating to the owning
// plugin when a node does not carry its content inline.
package content

import (
	"context"
	"log/slog"
	"sync"

	ferrors "git.home.luguber.info/inful/sitegraph/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegraph/internal/logfields"
	"git.home.luguber.info/inful/sitegraph/internal/metrics"
	"git.home.luguber.info/inful/sitegraph/internal/node"
	"git.home.luguber.info/inful/sitegraph/internal/plugin"
)

// Loader resolves a node's owner in the registry and asks its
// NodeContentLoader for the content.
type Loader struct {
	registry *plugin.Registry
	logger   *slog.Logger
	recorder metrics.Recorder

	cache   bool
	cacheMu sync.RWMutex
	memo    map[cacheKey]string
}

type cacheKey struct {
	id     string
	digest string
}

type Option func(*Loader)

// WithCache memoizes loaded content by node id and content digest, so a node
// whose digest changed is loaded again.
func WithCache() Option {
	return func(l *Loader) {
		l.cache = true
		l.memo = make(map[cacheKey]string)
	}
}

func WithLogger(lg *slog.Logger) Option {
	return func(l *Loader) {
		if lg != nil {
			l.logger = lg
		}
	}
}

func WithRecorder(r metrics.Recorder) Option {
	return func(l *Loader) { l.recorder = metrics.OrNoop(r) }
}

func NewLoader(registry *plugin.Registry, opts ...Option) *Loader {
	l := &Loader{
		registry: registry,
		logger:   slog.Default(),
		recorder: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns Internal.Content when set. Otherwise the owner plugin's loader
// is called; a missing plugin or loader yields an error wrapping
// plugin.ErrMissingCapability.
func (l *Loader) Load(ctx context.Context, n *node.Node) (string, error) {
	if n == nil {
		return "", ferrors.ValidationError("cannot load content of nil node").Build()
	}
	if n.Internal.Content != "" {
		return n.Internal.Content, nil
	}

	owner := n.Internal.Owner
	key := cacheKey{id: n.ID, digest: n.Internal.ContentDigest}
	if l.cache {
		l.cacheMu.RLock()
		content, ok := l.memo[key]
		l.cacheMu.RUnlock()
		if ok {
			l.recorder.IncContentLoad(owner, metrics.ResultCached)
			return content, nil
		}
	}

	loader, err := plugin.Capability[plugin.NodeContentLoader](l.registry, owner, plugin.APILoadNodeContent)
	if err != nil {
		l.recorder.IncContentLoad(owner, metrics.ResultMissing)
		return "", ferrors.WrapError(err, ferrors.CategoryPlugin, "no content loader for node").
			WithContext("node_id", n.ID).
			WithContext("plugin", owner).
			Build()
	}

	content, err := loader.LoadNodeContent(ctx, n)
	if err != nil {
		l.recorder.IncContentLoad(owner, metrics.ResultFailed)
		l.logger.Warn("Content load failed",
			logfields.NodeID(n.ID),
			logfields.Plugin(owner),
			logfields.Error(err))
		return "", ferrors.WrapError(err, ferrors.CategoryPlugin, "load node content").
			WithContext("node_id", n.ID).
			WithContext("plugin", owner).
			Build()
	}
	l.recorder.IncContentLoad(owner, metrics.ResultSuccess)

	if l.cache {
		l.cacheMu.Lock()
		l.memo[key] = content
		l.cacheMu.Unlock()
	}
	return content, nil
}

// Forget drops cached content for a node, e.g. after it was deleted.
func (l *Loader) Forget(id string) {
	if !l.cache {
		return
	}
	l.cacheMu.Lock()
	defer l.cacheMu.Unlock()
	for key := range l.memo {
		if key.id == id {
			delete(l.memo, key)
		}
	}
}
