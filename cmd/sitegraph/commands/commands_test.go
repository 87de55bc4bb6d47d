package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/sitegraph/internal/foundation/errors"
)

const testConfig = `site:
  output_dir: public
cache:
  quiet_window: 10ms
  max_delay: 50ms
plugins:
  - name: source-filesystem
    options:
      name: pages
      path: content
  - name: markdown
`

func setupSite(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "content", "docs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "content", "index.md"), []byte("# Home\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "content", "docs", "setup.md"), []byte("---\ntitle: Setup\n---\nInstall it.\n"), 0o600))
	cfgPath := filepath.Join(dir, "sitegraph.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(testConfig), 0o600))
	return cfgPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cli := &CLI{}
	g := &Global{Out: &out}
	parser, err := kong.New(cli, kong.Name("sitegraph"), kong.Vars{"version": "test"}, kong.Bind(g), kong.Exit(func(int) {}))
	require.NoError(t, err)
	kctx, err := parser.Parse(args)
	require.NoError(t, err)
	err = kctx.Run(g, cli)
	return out.String(), err
}

func TestBuildCommand(t *testing.T) {
	cfgPath := setupSite(t)
	out, err := execute(t, "-c", cfgPath, "build")
	require.NoError(t, err)
	assert.Contains(t, out, "Built 4 nodes")

	root := filepath.Dir(cfgPath)
	assert.FileExists(t, filepath.Join(root, "public", "index.html"))
	assert.FileExists(t, filepath.Join(root, "public", "docs", "setup", "index.html"))
	assert.FileExists(t, filepath.Join(root, ".cache", "graph-state.json"))
}

func TestBuildCommandOutputOverride(t *testing.T) {
	cfgPath := setupSite(t)
	_, err := execute(t, "-c", cfgPath, "build", "-o", "dist")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(filepath.Dir(cfgPath), "dist", "index.html"))
}

func TestNodesCommand(t *testing.T) {
	cfgPath := setupSite(t)
	_, err := execute(t, "-c", cfgPath, "build")
	require.NoError(t, err)

	out, err := execute(t, "-c", cfgPath, "nodes")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "File")
	assert.Contains(t, lines[4], "MarkdownRemark")

	out, err = execute(t, "-c", cfgPath, "nodes", "--type", "MarkdownRemark", "--json")
	require.NoError(t, err)
	var nodes []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &nodes))
	assert.Len(t, nodes, 2)
}

func TestNodesWithoutSnapshot(t *testing.T) {
	cfgPath := setupSite(t)
	_, err := execute(t, "-c", cfgPath, "nodes")
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryNotFound))
}

func TestDependentsCommand(t *testing.T) {
	cfgPath := setupSite(t)
	_, err := execute(t, "-c", cfgPath, "build")
	require.NoError(t, err)

	out, err := execute(t, "-c", cfgPath, "nodes", "--type", "MarkdownRemark", "--json")
	require.NoError(t, err)
	var nodes []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &nodes))
	var id string
	for _, n := range nodes {
		if fields, ok := n["fields"].(map[string]any); ok && fields["slug"] == "/docs/setup/" {
			id = n["id"].(string)
		}
	}
	require.NotEmpty(t, id)

	out, err = execute(t, "-c", cfgPath, "dependents", id)
	require.NoError(t, err)
	assert.Equal(t, "/docs/setup/\n", out)

	_, err = execute(t, "-c", cfgPath, "dependents", "missing")
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryNotFound))
}

func TestUnknownPluginIsConfigError(t *testing.T) {
	cfgPath := setupSite(t)
	require.NoError(t, os.WriteFile(cfgPath, []byte("plugins:\n  - name: sharp\n"), 0o600))
	_, err := execute(t, "-c", cfgPath, "build")
	require.Error(t, err)
	assert.Equal(t, 7, ferrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
}
