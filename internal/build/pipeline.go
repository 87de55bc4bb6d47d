package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	ferrors "git.home.luguber.info/inful/sitegraph/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegraph/internal/logfields"
	"git.home.luguber.info/inful/sitegraph/internal/metrics"
	"git.home.luguber.info/inful/sitegraph/internal/plugin"
	"git.home.luguber.info/inful/sitegraph/internal/store"
)

// Owner is the plugin name the build dispatches its own actions under.
const Owner = "sitegraph"

const phaseBootstrap = "bootstrap"

// Pipeline runs builds. Phases run in the order given.
type Pipeline struct {
	store    *store.Store
	runner   Runner
	flusher  Flusher
	env      Env
	phases   []Phase
	recorder metrics.Recorder
	logger   *slog.Logger
}

type Option func(*Pipeline)

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithRecorder(r metrics.Recorder) Option {
	return func(p *Pipeline) { p.recorder = metrics.OrNoop(r) }
}

// WithPhases appends build phases.
func WithPhases(phases ...Phase) Option {
	return func(p *Pipeline) { p.phases = append(p.phases, phases...) }
}

// NewPipeline wires a pipeline. env.Store must be the store runner works on.
func NewPipeline(env Env, runner Runner, flusher Flusher, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:    env.Store,
		runner:   runner,
		flusher:  flusher,
		env:      env,
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.env.Logger == nil {
		p.env.Logger = p.logger
	}
	return p
}

// Run sources nodes, removes stale ones, runs every phase and finally the
// onPostBuild API once. The store is flushed when all of it succeeded.
func (p *Pipeline) Run(ctx context.Context) (*BuildResult, error) {
	result := &BuildResult{StartTime: time.Now()}
	finish := func(status BuildStatus, err error) (*BuildResult, error) {
		if err != nil && ctx.Err() != nil {
			status = BuildStatusCancelled
		}
		result.Status = status
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
		result.Nodes = len(p.store.GetNodes())
		result.HookErrors = p.runner.Errors()
		return result, err
	}

	stale, err := p.timed(phaseBootstrap, func() (int, error) { return p.Source(ctx) })
	if err != nil {
		return finish(BuildStatusFailed, err)
	}
	result.StaleNodes = stale

	for _, phase := range p.phases {
		name := phase.Name()
		_, err := p.timed(name, func() (int, error) {
			if err := phase.Run(ctx, &p.env); err != nil {
				return 0, err
			}
			return 0, p.runner.Wait(ctx)
		})
		if err != nil {
			return finish(BuildStatusFailed, ferrors.WrapError(fmt.Errorf("%w: %w", ErrPhase, err), ferrors.CategoryBuild, fmt.Sprintf("build phase %s failed", name)).
				WithContext("phase", name).
				Fatal().
				Build())
		}
		result.Phases = append(result.Phases, name)
	}

	if err := p.runner.RunAPI(ctx, plugin.APIOnPostBuild); err != nil {
		return finish(BuildStatusFailed, ferrors.WrapError(fmt.Errorf("%w: %w", ErrPostBuild, err), ferrors.CategoryBuild, "post-build failed").Build())
	}
	if err := p.runner.Wait(ctx); err != nil {
		return finish(BuildStatusFailed, err)
	}
	if err := p.flusher.Flush(); err != nil {
		// The next build re-sources everything; losing a snapshot is not fatal.
		p.logger.Warn("Failed to persist state after build", logfields.Error(err))
	}
	p.logger.Info("Build finished",
		logfields.Count(len(p.store.GetNodes())),
		slog.Int("stale_nodes", stale),
		logfields.DurationMS(float64(time.Since(result.StartTime).Milliseconds())))
	return finish(BuildStatusSuccess, nil)
}

// Source runs sourceNodes on every source plugin, waits for the hooks it
// triggered and deletes the nodes no source touched. It returns the number
// of deleted nodes. Develop mode calls it on its own to re-sync.
func (p *Pipeline) Source(ctx context.Context) (int, error) {
	p.store.BeginSourcing()
	if err := p.runner.RunAPI(ctx, plugin.APISourceNodes); err != nil {
		return 0, ferrors.WrapError(fmt.Errorf("%w: %w", ErrSourcing, err), ferrors.CategoryBuild, "sourcing failed").
			WithContext("phase", phaseBootstrap).
			Fatal().
			Build()
	}
	if err := p.runner.Wait(ctx); err != nil {
		return 0, err
	}

	stale := p.store.StaleNodes()
	if len(stale) == 0 {
		return 0, nil
	}
	ids := make([]string, 0, len(stale))
	for _, n := range stale {
		ids = append(ids, n.ID)
	}
	p.logger.Info("Deleting stale nodes", logfields.Count(len(ids)))
	if err := p.store.ActionsFor(Owner).DeleteNodes(ctx, ids); err != nil {
		return 0, err
	}
	return len(ids), p.runner.Wait(ctx)
}

func (p *Pipeline) timed(phase string, fn func() (int, error)) (int, error) {
	start := time.Now()
	n, err := fn()
	elapsed := time.Since(start)
	p.recorder.ObservePhaseDuration(phase, elapsed, err == nil)

	attrs := []any{logfields.Phase(phase), logfields.DurationMS(float64(elapsed.Milliseconds()))}
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			p.logger.Error("Build phase failed", append(attrs, logfields.Error(err))...)
		}
		return n, err
	}
	p.logger.Debug("Build phase finished", attrs...)
	return n, nil
}
