package commands

import (
	"context"
	"fmt"
	"time"

	"git.home.luguber.info/inful/sitegraph/internal/build"
	"git.home.luguber.info/inful/sitegraph/internal/logfields"
	"git.home.luguber.info/inful/sitegraph/internal/site"
)

// DevelopCmd implements the 'develop' command.
type DevelopCmd struct {
	Inspector bool          `help:"Serve the state inspector (also SITEGRAPH_STATE_INSPECTOR)"`
	Addr      string        `help:"Inspector listen address, overriding inspector.addr"`
	Resync    time.Duration `help:"Full rebuild interval, overriding develop.resync_interval"`
	Template  string        `help:"Page template replacing the built-in one" type:"path"`
}

func (d *DevelopCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	if d.Inspector {
		cfg.Inspector.Enabled = true
	}
	if d.Addr != "" {
		cfg.Inspector.Addr = d.Addr
	}
	if d.Resync > 0 {
		cfg.Develop.ResyncInterval = d.Resync
	}
	phase, err := build.NewHTMLPhase(d.Template)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	s, err := site.Open(ctx, cfg, site.WithLogger(g.Logger))
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer closeCancel()
		if err := s.Close(closeCtx); err != nil {
			g.Logger.Warn("Failed to close site", logfields.Error(err))
		}
	}()

	if srv := s.Inspector(); srv != nil {
		fmt.Fprintf(g.Out, "State inspector listening on http://%s\n", srv.Addr())
	}

	err = s.Develop(ctx, s.Pipeline(phase), site.DevelopOptions{
		ResyncInterval: cfg.Develop.ResyncInterval,
		OnBuild: func(res *build.BuildResult, err error) {
			if err == nil {
				fmt.Fprintf(g.Out, "Built %d nodes in %s\n", res.Nodes, res.Duration.Round(time.Millisecond))
			}
		},
	})
	if err != nil {
		return err
	}
	g.Logger.Info("Shutdown signal received, stopping")
	return nil
}
