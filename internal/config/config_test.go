package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/sitegraph/internal/foundation/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sitegraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.Cache.QuietWindow)
	assert.Equal(t, 30*time.Second, cfg.Cache.MaxDelay)
	assert.Equal(t, filepath.Join(".cache", "graph-state.json"), cfg.SnapshotPath())
	assert.Equal(t, "127.0.0.1:19999", cfg.Inspector.Addr)
	assert.False(t, cfg.Inspector.Enabled)
	require.Len(t, cfg.Plugins, 2)
	assert.Equal(t, PluginSourceFilesystem, cfg.Plugins[0].Name)
	assert.Equal(t, PluginMarkdown, cfg.Plugins[1].Name)
}

func TestLoadFile(t *testing.T) {
	t.Setenv("SITE_ROOT_FOR_TEST", "/srv/site")
	path := writeConfig(t, `
site:
  root: ${SITE_ROOT_FOR_TEST}
  output_dir: dist
cache:
  quiet_window: 250ms
  max_delay: 5s
plugins:
  - name: markdown
  - name: " source-filesystem "
    options:
      path: docs
logging:
  level: DEBUG
  format: Json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/site/dist", cfg.OutputPath())
	assert.Equal(t, 250*time.Millisecond, cfg.Cache.QuietWindow)
	assert.Equal(t, 5*time.Second, cfg.Cache.MaxDelay)
	assert.Equal(t, LogLevelDebug, cfg.Logging.Level)
	assert.Equal(t, LogFormatJSON, cfg.Logging.Format)
	require.Len(t, cfg.Plugins, 2)
	assert.Equal(t, "source-filesystem", cfg.Plugins[1].Name)
	assert.Equal(t, "docs", cfg.Plugins[1].StringOption("path", "content"))
	assert.Equal(t, "fallback", cfg.Plugins[0].StringOption("path", "fallback"))
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv(EnvStateInspector, "true")
	t.Setenv(EnvLogLevel, "warning")
	t.Setenv(EnvInspectorAddr, "127.0.0.1:0")

	cfg, err := Load(writeConfig(t, "logging:\n  level: debug\n"))
	require.NoError(t, err)
	assert.True(t, cfg.Inspector.Enabled)
	assert.Equal(t, LogLevelWarn, cfg.Logging.Level)
	assert.Equal(t, "127.0.0.1:0", cfg.Inspector.Addr)
}

func TestDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("SITEGRAPH_LOG_FORMAT=json\nSITEGRAPH_LOG_LEVEL=error\n"), 0o644))
	t.Setenv(EnvLogLevel, "debug")
	// Registered so the variable set by the .env file is cleared afterwards.
	t.Setenv(EnvLogFormat, "")
	require.NoError(t, os.Unsetenv(EnvLogFormat))

	cfg, err := Load(filepath.Join(dir, "sitegraph.yaml"))
	require.NoError(t, err)
	assert.Equal(t, LogLevelDebug, cfg.Logging.Level)
	assert.Equal(t, LogFormatJSON, cfg.Logging.Format)
}

func TestInvalidValues(t *testing.T) {
	cases := map[string]string{
		"level":     "logging:\n  level: verbose\n",
		"format":    "logging:\n  format: xml\n",
		"delays":    "cache:\n  quiet_window: 10s\n  max_delay: 1s\n",
		"duplicate": "plugins:\n  - name: markdown\n  - name: markdown\n",
		"no name":   "plugins:\n  - options: {}\n",
		"yaml":      "site: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
			assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
		})
	}
}

func TestInvalidInspectorToggle(t *testing.T) {
	t.Setenv(EnvStateInspector, "maybe")
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestInspectorDBPath(t *testing.T) {
	cfg := Default()
	cfg.Site.Root = "/site"
	assert.Equal(t, "/site/.cache/actions.db", cfg.InspectorDBPath())

	cfg.Inspector.DBPath = "/tmp/actions.db"
	assert.Equal(t, "/tmp/actions.db", cfg.InspectorDBPath())
}

func TestNormalizeLogLevel(t *testing.T) {
	assert.Equal(t, LogLevelWarn, NormalizeLogLevel(" WARN "))
	assert.Equal(t, LogLevelInfo, NormalizeLogLevel("nonsense"))
	assert.Equal(t, LogFormatText, NormalizeLogFormat(""))
}
