// Package apirunner invokes plugin hooks in reaction to node lifecycle actions
// and runs the build-level plugin APIs.
package apirunner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"git.home.luguber.info/inful/sitegraph/internal/events"
	ferrors "git.home.luguber.info/inful/sitegraph/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegraph/internal/logfields"
	"git.home.luguber.info/inful/sitegraph/internal/metrics"
	"git.home.luguber.info/inful/sitegraph/internal/node"
	"git.home.luguber.info/inful/sitegraph/internal/plugin"
	"git.home.luguber.info/inful/sitegraph/internal/store"
)

// Runner reacts to lifecycle actions published on the bus. A single worker
// goroutine runs the hooks for one action, in plugin registration order,
// before moving to the next, so hooks observe actions in dispatch order.
// Hooks may dispatch further actions; those queue behind the current one.
//
// Hooks have no timeout: a hook that never returns stalls the runner.
type Runner struct {
	store    *store.Store
	registry *plugin.Registry
	bus      *events.Bus
	logger   *slog.Logger
	recorder metrics.Recorder
	loader   func(ctx context.Context, n *node.Node) (string, error)

	queue       *actionQueue
	unsubscribe func()
	done        chan struct{}
	quit        chan struct{}
	started     atomic.Bool
	stopOnce    sync.Once

	errMu sync.Mutex
	errs  []error
}

type Option func(*Runner)

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithRecorder(rec metrics.Recorder) Option {
	return func(r *Runner) { r.recorder = metrics.OrNoop(rec) }
}

// WithContentLoader sets the function hooks use to materialize node content.
func WithContentLoader(fn func(ctx context.Context, n *node.Node) (string, error)) Option {
	return func(r *Runner) { r.loader = fn }
}

func New(s *store.Store, registry *plugin.Registry, bus *events.Bus, opts ...Option) *Runner {
	r := &Runner{
		store:    s,
		registry: registry,
		bus:      bus,
		logger:   slog.Default(),
		recorder: metrics.NoopRecorder{},
		queue:    newActionQueue(),
		done:     make(chan struct{}),
		quit:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.loader == nil {
		r.loader = func(_ context.Context, n *node.Node) (string, error) {
			if n.Internal.Content != "" {
				return n.Internal.Content, nil
			}
			return "", plugin.MissingCapability(n.Internal.Owner, plugin.APILoadNodeContent)
		}
	}
	return r
}

// Start subscribes to lifecycle actions and starts the worker. The subscription
// is an inline handler, so an action is queued before Dispatch returns and
// Wait observes it.
func (r *Runner) Start(ctx context.Context) {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	r.unsubscribe = events.SubscribeFunc(r.bus, func(a store.NodeLifecycleAction) {
		if !r.queue.enqueue(a) {
			r.logger.Debug("Runner stopped, action not queued", logfields.Action(string(a.Type())))
		}
	})
	go r.loop(ctx)
}

// Stop unsubscribes and stops the worker after the current action. Pending
// actions are dropped; call Wait first to drain them.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		if r.unsubscribe != nil {
			r.unsubscribe()
		}
		if dropped := r.queue.close(); dropped > 0 {
			r.logger.Warn("Runner stopped with pending actions", logfields.Count(dropped))
		}
		close(r.quit)
	})
	if r.started.Load() {
		<-r.done
	}
}

// Wait blocks until every queued action, including actions queued by hooks
// while waiting, has been handled.
func (r *Runner) Wait(ctx context.Context) error {
	idle := r.queue.idleChan()
	if idle == nil {
		return nil
	}
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of queued actions not yet handled.
func (r *Runner) Pending() int { return r.queue.len() }

// Errors returns the hook errors collected so far.
func (r *Runner) Errors() []error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	out := make([]error, len(r.errs))
	copy(out, r.errs)
	return out
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.done)
	for {
		if a, ok := r.queue.next(); ok {
			r.handle(ctx, a)
			continue
		}
		select {
		case <-r.queue.signal:
		case <-r.quit:
			return
		case <-ctx.Done():
			r.queue.close()
			return
		}
	}
}

func (r *Runner) handle(ctx context.Context, a store.NodeLifecycleAction) {
	switch act := a.(type) {
	case store.CreateNode:
		for _, impl := range plugin.Implementing[plugin.OnCreateNodeHook](r.registry) {
			r.invoke(impl.Name(), plugin.APIOnCreateNode, act.Node, func(args *plugin.APIArgs) error {
				return impl.Hook.OnCreateNode(ctx, args, act.Node)
			})
		}
	case store.DeleteNode:
		if act.Node != nil {
			r.deleted(ctx, act.Node)
		}
	case store.DeleteNodes:
		for _, n := range act.Nodes {
			r.deleted(ctx, n)
		}
	case store.AddFieldToNode:
		for _, impl := range plugin.Implementing[plugin.OnUpdateNodeHook](r.registry) {
			r.invoke(impl.Name(), plugin.APIOnUpdateNode, act.Node, func(args *plugin.APIArgs) error {
				return impl.Hook.OnUpdateNode(ctx, args, act.Node, act.Name)
			})
		}
	}
}

func (r *Runner) deleted(ctx context.Context, n *node.Node) {
	for _, impl := range plugin.Implementing[plugin.OnDeleteNodeHook](r.registry) {
		r.invoke(impl.Name(), plugin.APIOnDeleteNode, n, func(args *plugin.APIArgs) error {
			return impl.Hook.OnDeleteNode(ctx, args, n)
		})
	}
}

// invoke runs one hook. Failures and panics are logged and collected; they
// never stop the runner.
func (r *Runner) invoke(pluginName, api string, n *node.Node, hook func(*plugin.APIArgs) error) {
	start := time.Now()
	err := safeCall(func() error { return hook(r.ArgsFor(pluginName)) })
	elapsed := time.Since(start)
	r.recorder.ObserveHookDuration(pluginName, api, elapsed, err == nil)
	if err == nil {
		return
	}

	err = ferrors.WrapError(err, ferrors.CategoryPlugin, "plugin hook failed").
		WithContext("plugin", pluginName).
		WithContext("api", api).
		WithContext("node_id", n.ID).
		Build()
	r.logger.Error("Plugin hook failed",
		logfields.Plugin(pluginName),
		logfields.API(api),
		logfields.NodeID(n.ID),
		logfields.NodeType(n.Internal.Type),
		logfields.DurationMS(float64(elapsed.Milliseconds())),
		logfields.Error(err))

	r.errMu.Lock()
	r.errs = append(r.errs, err)
	r.errMu.Unlock()
}

// ArgsFor builds the arguments a hook of the named plugin receives. Code
// acting for a plugin outside of a hook, such as a file watcher, uses it too.
func (r *Runner) ArgsFor(pluginName string) *plugin.APIArgs {
	return &plugin.APIArgs{
		Store:       r.store,
		Actions:     r.store.ActionsFor(pluginName),
		Logger:      r.logger.With(logfields.Plugin(pluginName)),
		LoadContent: r.loader,
	}
}

// RunAPI runs a build-level API on every plugin implementing it, in
// registration order. It stops at the first failure.
func (r *Runner) RunAPI(ctx context.Context, api string) error {
	switch api {
	case plugin.APISourceNodes:
		return runEach(r, api, func(h plugin.SourceNodesHook, args *plugin.APIArgs) error {
			return h.SourceNodes(ctx, args)
		})
	case plugin.APIOnPostBuild:
		return runEach(r, api, func(h plugin.OnPostBuildHook, args *plugin.APIArgs) error {
			return h.OnPostBuild(ctx, args)
		})
	}
	return ferrors.ValidationError("unknown plugin API").WithContext("api", api).Build()
}

func runEach[T any](r *Runner, api string, call func(T, *plugin.APIArgs) error) error {
	for _, impl := range plugin.Implementing[T](r.registry) {
		name := impl.Name()
		start := time.Now()
		err := safeCall(func() error { return call(impl.Hook, r.ArgsFor(name)) })
		elapsed := time.Since(start)
		r.recorder.ObserveHookDuration(name, api, elapsed, err == nil)
		if err != nil {
			return ferrors.WrapError(err, ferrors.CategoryPlugin, "plugin API failed").
				WithContext("plugin", name).
				WithContext("api", api).
				Build()
		}
		r.logger.Debug("Plugin API finished",
			logfields.Plugin(name),
			logfields.API(api),
			logfields.DurationMS(float64(elapsed.Milliseconds())))
	}
	return nil
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = ferrors.InternalError("plugin hook panicked").
				WithContext("panic", fmt.Sprint(p)).
				Build()
		}
	}()
	return fn()
}
