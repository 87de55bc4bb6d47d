package commands

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"text/tabwriter"

	ferrors "git.home.luguber.info/inful/sitegraph/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegraph/internal/node"
	"git.home.luguber.info/inful/sitegraph/internal/persistence"
	"git.home.luguber.info/inful/sitegraph/internal/store"
)

// NodesCmd implements the 'nodes' command.
type NodesCmd struct {
	Type string `short:"t" help:"Only list nodes of this type"`
	JSON bool   `help:"Print the nodes as JSON"`
}

func (n *NodesCmd) Run(g *Global, root *CLI) error {
	st, err := openSnapshot(g, root)
	if err != nil {
		return err
	}
	var nodes []*node.Node
	if n.Type != "" {
		nodes = st.GetNodesByType(n.Type)
	} else {
		nodes = st.GetNodes()
		slices.SortFunc(nodes, func(a, b *node.Node) int {
			return cmp.Or(cmp.Compare(a.Internal.Type, b.Internal.Type), cmp.Compare(a.ID, b.ID))
		})
	}

	if n.JSON {
		enc := json.NewEncoder(g.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(nodes)
	}

	tw := tabwriter.NewWriter(g.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tOWNER\tPARENT\tCHILDREN")
	for _, nd := range nodes {
		parent := nd.Parent
		if parent == "" {
			parent = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", nd.ID, nd.Internal.Type, nd.Internal.Owner, parent, len(nd.Children))
	}
	return tw.Flush()
}

// DependentsCmd implements the 'dependents' command.
type DependentsCmd struct {
	ID string `arg:"" help:"Node id"`
}

func (d *DependentsCmd) Run(g *Global, root *CLI) error {
	st, err := openSnapshot(g, root)
	if err != nil {
		return err
	}
	if _, ok := st.GetNode(d.ID); !ok {
		return ferrors.NotFoundError("node not found").WithContext("node_id", d.ID).Build()
	}
	for _, path := range st.DependentPaths(d.ID) {
		fmt.Fprintln(g.Out, path)
	}
	return nil
}

// openSnapshot loads the last snapshot into a detached store for queries.
// Nothing is sourced and nothing is written back.
func openSnapshot(g *Global, root *CLI) (*store.Store, error) {
	cfg, err := loadConfig(g, root)
	if err != nil {
		return nil, err
	}
	ps, err := persistence.Load(cfg.SnapshotPath())
	if err != nil {
		return nil, err
	}
	return store.New(nil, store.WithInitialState(ps), store.WithLogger(g.Logger)), nil
}
