package build

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/sitegraph/internal/node"
	"git.home.luguber.info/inful/sitegraph/internal/pagedeps"
	"git.home.luguber.info/inful/sitegraph/internal/store"
)

// Runner is the part of the plugin API runner a build needs.
type Runner interface {
	RunAPI(ctx context.Context, api string) error
	Wait(ctx context.Context) error
	Errors() []error
}

// Flusher persists the store once the build finished.
type Flusher interface {
	Flush() error
}

// Phase is one step of the build after sourcing, e.g. writing HTML pages.
// A failing phase aborts the build.
type Phase interface {
	Name() string
	Run(ctx context.Context, env *Env) error
}

// Env is what a phase works with.
type Env struct {
	Store *store.Store
	// Pages records which nodes each page reads.
	Pages *pagedeps.Tracker
	// LoadContent materializes node content through the owning plugin.
	LoadContent func(ctx context.Context, n *node.Node) (string, error)
	OutputDir   string
	Logger      *slog.Logger
}

// BuildResult contains the outcome of a build.
type BuildResult struct {
	// Status indicates overall build outcome.
	Status BuildStatus

	// Nodes is the number of nodes in the store after the build.
	Nodes int

	// StaleNodes is the number of nodes removed because their source is gone.
	StaleNodes int

	// Phases lists the phases that completed, in order.
	Phases []string

	// HookErrors are the plugin hook failures collected while building. They
	// do not fail the build.
	HookErrors []error

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// BuildStatus represents the outcome of a build.
type BuildStatus string

const (
	// BuildStatusSuccess indicates the build completed successfully.
	BuildStatusSuccess BuildStatus = "success"

	// BuildStatusFailed indicates the build encountered an error.
	BuildStatusFailed BuildStatus = "failed"

	// BuildStatusCancelled indicates the build was cancelled.
	BuildStatusCancelled BuildStatus = "cancelled"
)

// IsSuccess returns true if the build completed successfully.
func (s BuildStatus) IsSuccess() bool {
	return s == BuildStatusSuccess
}
