package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/sitegraph/cmd/sitegraph/commands"
	ferrors "git.home.luguber.info/inful/sitegraph/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegraph/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cli := &commands.CLI{}
	global := &commands.Global{Out: os.Stdout}
	parser, err := kong.New(cli,
		kong.Name("sitegraph"),
		kong.Description("Source content into a node graph and build a static site from it."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
		kong.Bind(global),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		parser.Errorf("%s", err)
		return 2
	}

	if err := kctx.Run(global, cli); err != nil {
		adapter := ferrors.NewCLIErrorAdapter(cli.Verbose, global.Logger)
		adapter.Log(err)
		fmt.Fprintln(os.Stderr, adapter.FormatError(err))
		return adapter.ExitCodeFor(err)
	}
	return 0
}
