// Package site assembles a site from its configuration: the node store
// restored from the snapshot, the plugins, the hook runner, the debounced
// saver and, when enabled, the state inspector. Open and Close bound the
// lifetime of all of it.
package site

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/sitegraph/internal/apirunner"
	"git.home.luguber.info/inful/sitegraph/internal/build"
	"git.home.luguber.info/inful/sitegraph/internal/config"
	"git.home.luguber.info/inful/sitegraph/internal/content"
	"git.home.luguber.info/inful/sitegraph/internal/events"
	"git.home.luguber.info/inful/sitegraph/internal/eventstore"
	ferrors "git.home.luguber.info/inful/sitegraph/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegraph/internal/inspector"
	"git.home.luguber.info/inful/sitegraph/internal/logfields"
	"git.home.luguber.info/inful/sitegraph/internal/metrics"
	"git.home.luguber.info/inful/sitegraph/internal/pagedeps"
	"git.home.luguber.info/inful/sitegraph/internal/persistence"
	"git.home.luguber.info/inful/sitegraph/internal/plugin"
	"git.home.luguber.info/inful/sitegraph/internal/store"
)

// Site is an open site. Fields are read-only after Open.
type Site struct {
	Config   *config.Config
	Bus      *events.Bus
	Store    *store.Store
	Registry *plugin.Registry
	Runner   *apirunner.Runner
	Content  *content.Loader
	Pages    *pagedeps.Tracker
	Metrics  *prom.Registry

	logger     *slog.Logger
	recorder   metrics.Recorder
	saver      *persistence.Saver
	actionLog  eventstore.Store
	inspector  *inspector.Server
	stopForget func()

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

type options struct {
	logger     *slog.Logger
	plugins    []plugin.Plugin
	noBuiltins bool
}

type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithPlugins registers extra plugins after the configured ones.
func WithPlugins(ps ...plugin.Plugin) Option {
	return func(o *options) { o.plugins = append(o.plugins, ps...) }
}

// WithoutBuiltins skips the plugins listed in the configuration.
func WithoutBuiltins() Option {
	return func(o *options) { o.noBuiltins = true }
}

// Open restores the store and starts the background workers. A missing or
// unreadable snapshot starts an empty store.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Site, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if cfg == nil {
		return nil, ferrors.ConfigError("config required").Build()
	}

	reg := prom.NewRegistry()
	rec := metrics.NewPrometheusRecorder(reg)
	logger := o.logger

	initial := loadSnapshot(cfg.SnapshotPath(), rec, logger)
	bus := events.NewBus()
	st := store.New(bus,
		store.WithInitialState(initial),
		store.WithRecorder(rec),
		store.WithLogger(logger))

	registry, err := newRegistry(cfg, o)
	if err != nil {
		bus.Close()
		return nil, err
	}

	loader := content.NewLoader(registry,
		content.WithCache(),
		content.WithLogger(logger),
		content.WithRecorder(rec))
	runner := apirunner.New(st, registry, bus,
		apirunner.WithLogger(logger),
		apirunner.WithRecorder(rec),
		apirunner.WithContentLoader(loader.Load))
	saver, err := persistence.NewSaver(bus, st, persistence.SaverConfig{
		Path:        cfg.SnapshotPath(),
		QuietWindow: cfg.Cache.QuietWindow,
		MaxDelay:    cfg.Cache.MaxDelay,
	}, persistence.WithLogger(logger), persistence.WithRecorder(rec))
	if err != nil {
		bus.Close()
		return nil, err
	}

	// Workers outlive the caller's ctx; Close stops them.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &Site{
		Config:   cfg,
		Bus:      bus,
		Store:    st,
		Registry: registry,
		Runner:   runner,
		Content:  loader,
		Pages:    pagedeps.New(st, build.Owner),
		Metrics:  reg,
		logger:   logger,
		recorder: rec,
		saver:    saver,
		cancel:   cancel,
	}
	s.stopForget = events.SubscribeFunc(bus, func(a store.NodeLifecycleAction) {
		switch act := a.(type) {
		case store.DeleteNode:
			loader.Forget(act.ID)
		case store.DeleteNodes:
			for _, id := range act.IDs {
				loader.Forget(id)
			}
		}
	})

	runner.Start(runCtx)
	s.goRun(func() error { return saver.Run(runCtx) })
	<-saver.Ready()

	if cfg.Inspector.Enabled {
		if err := s.attachInspector(ctx, runCtx); err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
	}

	if err := s.initPlugins(); err != nil {
		_ = s.Close(ctx)
		return nil, err
	}

	logger.Info("Site opened",
		logfields.Count(len(st.GetNodes())),
		slog.Int("plugins", registry.Count()),
		logfields.Path(cfg.SnapshotPath()))
	return s, nil
}

func loadSnapshot(path string, rec metrics.Recorder, logger *slog.Logger) store.PersistedState {
	ps, err := persistence.Load(path)
	switch {
	case err == nil:
		rec.IncSnapshotLoad(metrics.ResultSuccess)
		logger.Debug("Snapshot restored", logfields.Path(path), logfields.Count(len(ps.Nodes)))
	case ferrors.HasCategory(err, ferrors.CategoryNotFound):
		rec.IncSnapshotLoad(metrics.ResultMissing)
		logger.Debug("No snapshot, starting empty", logfields.Path(path))
	default:
		rec.IncSnapshotLoad(metrics.ResultFailed)
		logger.Debug("Unreadable snapshot, starting empty", logfields.Path(path), logfields.Error(err))
	}
	return ps
}

func newRegistry(cfg *config.Config, o options) (*plugin.Registry, error) {
	var ps []plugin.Plugin
	if !o.noBuiltins {
		builtins, err := BuiltinPlugins(cfg)
		if err != nil {
			return nil, err
		}
		ps = builtins
	}
	ps = append(ps, o.plugins...)

	registry := plugin.NewRegistry()
	for _, p := range ps {
		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func (s *Site) initPlugins() error {
	for _, p := range s.Registry.List() {
		lc, ok := p.(plugin.PluginLifecycle)
		if !ok {
			continue
		}
		if err := lc.Init(); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryPlugin, "plugin init failed").
				WithContext("plugin", p.Metadata().Name).
				Build()
		}
	}
	return nil
}

func (s *Site) attachInspector(ctx, runCtx context.Context) error {
	dbPath := s.Config.InspectorDBPath()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to create inspector directory").
			WithContext("path", dbPath).
			Build()
	}
	log, err := eventstore.NewSQLiteStore(dbPath)
	if err != nil {
		return err
	}
	s.actionLog = log

	writer, err := eventstore.NewWriter(s.Bus, log, s.logger)
	if err != nil {
		return err
	}
	s.goRun(func() error { return writer.Run(runCtx) })
	<-writer.Ready()

	srv, err := inspector.New(inspector.Options{
		Addr:      s.Config.Inspector.Addr,
		Store:     s.Store,
		Log:       log,
		SessionID: writer.SessionID(),
		Registry:  s.Metrics,
		Logger:    s.logger,
	})
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}
	s.inspector = srv
	return nil
}

func (s *Site) goRun(fn func() error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := fn(); err != nil {
			s.logger.Error("Site worker failed", logfields.Error(err))
		}
	}()
}

// Inspector returns the running inspector, or nil when disabled.
func (s *Site) Inspector() *inspector.Server { return s.inspector }

// Pipeline returns a build pipeline over this site.
func (s *Site) Pipeline(phases ...build.Phase) *build.Pipeline {
	env := build.Env{
		Store:       s.Store,
		Pages:       s.Pages,
		LoadContent: s.Content.Load,
		OutputDir:   s.Config.OutputPath(),
		Logger:      s.logger,
	}
	return build.NewPipeline(env, s.Runner, s.saver,
		build.WithPhases(phases...),
		build.WithLogger(s.logger),
		build.WithRecorder(s.recorder))
}

// ArgsFor builds hook arguments for code acting on behalf of a plugin
// outside a hook, such as a file watcher.
func (s *Site) ArgsFor(pluginName string) *plugin.APIArgs {
	return s.Runner.ArgsFor(pluginName)
}

// Flush writes the snapshot now.
func (s *Site) Flush() error { return s.saver.Flush() }

// Close drains queued hooks, stops the workers, writes a final snapshot and
// releases the action log. It is safe to call more than once.
func (s *Site) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.inspector != nil {
			if err := s.inspector.Stop(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if err := s.Runner.Wait(ctx); err != nil {
			errs = append(errs, err)
		}
		s.Runner.Stop()
		s.stopForget()

		s.cancel()
		s.wg.Wait()
		// Actions still buffered for the saver when it stopped are covered here.
		if err := s.saver.Flush(); err != nil {
			errs = append(errs, err)
		}

		if s.actionLog != nil {
			if err := s.actionLog.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		for _, p := range s.Registry.List() {
			if lc, ok := p.(plugin.PluginLifecycle); ok {
				if err := lc.Cleanup(); err != nil {
					errs = append(errs, err)
				}
			}
		}
		s.Bus.Close()
		s.closeErr = errors.Join(errs...)
		s.logger.Debug("Site closed")
	})
	return s.closeErr
}
