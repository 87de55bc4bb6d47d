package site

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/sitegraph/internal/build"
	ferrors "git.home.luguber.info/inful/sitegraph/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegraph/internal/logfields"
	"git.home.luguber.info/inful/sitegraph/internal/plugin"
)

const defaultRebuildQuietWindow = 200 * time.Millisecond

// Watcher is implemented by source plugins that can follow their source
// and update nodes as it changes.
type Watcher interface {
	Watch(ctx context.Context, args *plugin.APIArgs, changed func(rel, nodeID string)) error
}

// DevelopOptions configures Develop.
type DevelopOptions struct {
	// ResyncInterval re-runs the whole build periodically; zero disables it.
	ResyncInterval time.Duration
	// QuietWindow coalesces bursts of changes into one rebuild.
	QuietWindow time.Duration
	// OnBuild is called after every build with its outcome.
	OnBuild func(*build.BuildResult, error)
}

// Develop builds once, then keeps rebuilding on source changes until ctx is
// done. A failing rebuild is reported and the loop keeps going.
func (s *Site) Develop(ctx context.Context, pipeline *build.Pipeline, opts DevelopOptions) error {
	if opts.QuietWindow <= 0 {
		opts.QuietWindow = defaultRebuildQuietWindow
	}
	report := func(res *build.BuildResult, err error) {
		if opts.OnBuild != nil {
			opts.OnBuild(res, err)
		}
	}

	res, err := pipeline.Run(ctx)
	report(res, err)
	if err != nil {
		return err
	}

	trigger := make(chan string, 1)
	requestRebuild := func(reason string) {
		select {
		case trigger <- reason:
		default:
			// A rebuild is already pending.
		}
	}

	for _, impl := range plugin.Implementing[Watcher](s.Registry) {
		name := impl.Name()
		w := impl.Hook
		s.goRun(func() error {
			return w.Watch(ctx, s.ArgsFor(name), func(rel, nodeID string) {
				s.logger.Info("Source changed",
					logfields.Plugin(name),
					logfields.Path(rel),
					slog.Any("pages", s.Pages.DirtyPaths(nodeID)))
				requestRebuild("change")
			})
		})
	}

	if opts.ResyncInterval > 0 {
		sched, err := gocron.NewScheduler()
		if err != nil {
			return ferrors.WrapError(err, ferrors.CategoryRuntime, "failed to create scheduler").Build()
		}
		if _, err := sched.NewJob(
			gocron.DurationJob(opts.ResyncInterval),
			gocron.NewTask(requestRebuild, "resync"),
			gocron.WithName("resync"),
		); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryRuntime, "failed to schedule resync").Build()
		}
		sched.Start()
		defer func() {
			if err := sched.Shutdown(); err != nil {
				s.logger.Warn("Scheduler shutdown failed", logfields.Error(err))
			}
		}()
	}

	timer := time.NewTimer(opts.QuietWindow)
	timer.Stop()
	var (
		fire   <-chan time.Time
		reason string
	)
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case reason = <-trigger:
			timer.Reset(opts.QuietWindow)
			fire = timer.C
		case <-fire:
			fire = nil
			s.logger.Info("Rebuilding", slog.String("reason", reason))
			res, err := pipeline.Run(ctx)
			report(res, err)
			if err != nil && ctx.Err() == nil {
				s.logger.Error("Rebuild failed", logfields.Error(err))
			}
		}
	}
}
