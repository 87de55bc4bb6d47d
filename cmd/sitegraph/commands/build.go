package commands

import (
	"context"
	"fmt"
	"time"

	"git.home.luguber.info/inful/sitegraph/internal/build"
	"git.home.luguber.info/inful/sitegraph/internal/logfields"
	"git.home.luguber.info/inful/sitegraph/internal/site"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Output   string `short:"o" help:"Output directory, overriding site.output_dir"`
	Template string `help:"Page template replacing the built-in one" type:"path"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	if b.Output != "" {
		cfg.Site.OutputDir = b.Output
	}
	phase, err := build.NewHTMLPhase(b.Template)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	s, err := site.Open(ctx, cfg, site.WithLogger(g.Logger))
	if err != nil {
		return err
	}
	res, runErr := s.Pipeline(phase).Run(ctx)

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer closeCancel()
	if err := s.Close(closeCtx); err != nil {
		g.Logger.Warn("Failed to close site", logfields.Error(err))
	}
	if runErr != nil {
		return runErr
	}

	fmt.Fprintf(g.Out, "Built %d nodes into %s (%d stale removed) in %s\n",
		res.Nodes, cfg.OutputPath(), res.StaleNodes, res.Duration.Round(time.Millisecond))
	return nil
}
