package commands

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/sitegraph/internal/config"
)

// Global carries state shared by all subcommands.
type Global struct {
	Logger *slog.Logger
	// Out receives command output meant for the user, as opposed to logs.
	Out io.Writer
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"sitegraph.yaml" type:"path"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build      BuildCmd      `cmd:"" help:"Source content and build the site once"`
	Develop    DevelopCmd    `cmd:"" help:"Build, then rebuild whenever sources change"`
	Nodes      NodesCmd      `cmd:"" help:"List the nodes of the last snapshot"`
	Dependents DependentsCmd `cmd:"" help:"List the pages that depend on a node"`
}

// AfterApply runs after flag parsing; it installs a bootstrap logger used
// until the configuration is loaded.
func (c *CLI) AfterApply(g *Global) error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	g.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(g.Logger)
	if g.Out == nil {
		g.Out = os.Stdout
	}
	return nil
}

// loadConfig reads the configuration and replaces the bootstrap logger with
// one built from its logging section. --verbose wins over the configured level.
func loadConfig(g *Global, root *CLI) (*config.Config, error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return nil, err
	}
	// A relative site root is relative to the config file, not the working
	// directory.
	if !filepath.IsAbs(cfg.Site.Root) {
		cfg.Site.Root = filepath.Join(filepath.Dir(root.Config), cfg.Site.Root)
	}
	if root.Verbose {
		cfg.Logging.Level = config.LogLevelDebug
	}
	g.Logger = cfg.Logging.NewLogger(os.Stderr)
	slog.SetDefault(g.Logger)
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
