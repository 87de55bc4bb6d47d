package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/sitegraph/internal/foundation/errors"
)

// Environment overrides.
const (
	EnvLogLevel       = "SITEGRAPH_LOG_LEVEL"
	EnvLogFormat      = "SITEGRAPH_LOG_FORMAT"
	EnvStateInspector = "SITEGRAPH_STATE_INSPECTOR"
	EnvInspectorAddr  = "SITEGRAPH_INSPECTOR_ADDR"
)

// Built-in plugin names.
const (
	PluginSourceFilesystem = "source-filesystem"
	PluginMarkdown         = "markdown"
)

var envFiles = []string{".env", ".env.local"}

// Load reads the configuration at path. A missing file yields the defaults.
// Variables from .env files next to the config never override the process
// environment.
func Load(path string) (*Config, error) {
	LoadEnvFiles(filepath.Dir(path))

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// Expand environment variables in the YAML content
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to parse config").
				WithContext("path", path).
				Build()
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read config").
			WithContext("path", path).
			Build()
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFiles loads .env and .env.local from dir when present.
func LoadEnvFiles(dir string) {
	for _, name := range envFiles {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err != nil {
			continue
		}
		_ = godotenv.Load(p)
	}
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = LogLevel(v)
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		cfg.Logging.Format = LogFormat(v)
	}
	if v := os.Getenv(EnvInspectorAddr); v != "" {
		cfg.Inspector.Addr = v
	}
	if v := os.Getenv(EnvStateInspector); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return ferrors.ConfigError("invalid boolean in environment").
				WithContext("variable", EnvStateInspector).
				WithContext("value", v).
				Build()
		}
		cfg.Inspector.Enabled = enabled
	}
	return nil
}

// Normalize canonicalizes enumerated values. Unknown values are errors.
func (c *Config) Normalize() error {
	if raw := strings.TrimSpace(string(c.Logging.Level)); raw != "" {
		lvl, err := logLevelNormalizer.NormalizeWithError("logging.level", raw)
		if err != nil {
			return err
		}
		c.Logging.Level = lvl
	}
	if raw := strings.TrimSpace(string(c.Logging.Format)); raw != "" {
		f, err := logFormatNormalizer.NormalizeWithError("logging.format", raw)
		if err != nil {
			return err
		}
		c.Logging.Format = f
	}
	for i := range c.Plugins {
		c.Plugins[i].Name = strings.TrimSpace(c.Plugins[i].Name)
	}
	return nil
}

// ApplyDefaults fills unset values.
func (c *Config) ApplyDefaults() {
	if c.Site.Root == "" {
		c.Site.Root = "."
	}
	if c.Site.OutputDir == "" {
		c.Site.OutputDir = "public"
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = ".cache"
	}
	if c.Cache.SnapshotFile == "" {
		c.Cache.SnapshotFile = "graph-state.json"
	}
	if c.Cache.QuietWindow <= 0 {
		c.Cache.QuietWindow = time.Second
	}
	if c.Cache.MaxDelay <= 0 {
		c.Cache.MaxDelay = 30 * time.Second
	}
	if c.Inspector.Addr == "" {
		c.Inspector.Addr = "127.0.0.1:19999"
	}
	if c.Inspector.DBPath == "" {
		c.Inspector.DBPath = "actions.db"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = LogLevelInfo
	}
	if c.Logging.Format == "" {
		c.Logging.Format = LogFormatText
	}
	if len(c.Plugins) == 0 {
		c.Plugins = []PluginConfig{
			{Name: PluginSourceFilesystem, Options: map[string]any{"name": "pages", "path": "content"}},
			{Name: PluginMarkdown},
		}
	}
}

// Validate checks cross-field constraints after defaults were applied.
func (c *Config) Validate() error {
	if c.Cache.MaxDelay < c.Cache.QuietWindow {
		return ferrors.ConfigError("cache.max_delay must not be shorter than cache.quiet_window").
			WithContext("quiet_window", c.Cache.QuietWindow.String()).
			WithContext("max_delay", c.Cache.MaxDelay.String()).
			Build()
	}
	if c.Develop.ResyncInterval < 0 {
		return ferrors.ConfigError("develop.resync_interval must not be negative").Build()
	}
	seen := make(map[string]struct{}, len(c.Plugins))
	for i, p := range c.Plugins {
		if p.Name == "" {
			return ferrors.ConfigError("plugin name is required").
				WithContext("index", i).
				Build()
		}
		if _, dup := seen[p.Name]; dup {
			return ferrors.ConfigError("plugin listed twice").
				WithContext("plugin", p.Name).
				Build()
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// Path resolves p against the site root.
func (c *Config) Path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Site.Root, p)
}

// SnapshotPath is where the store snapshot lives.
func (c *Config) SnapshotPath() string {
	return filepath.Join(c.Path(c.Cache.Dir), c.Cache.SnapshotFile)
}

// InspectorDBPath is where the inspector's action log lives.
func (c *Config) InspectorDBPath() string {
	if filepath.IsAbs(c.Inspector.DBPath) {
		return c.Inspector.DBPath
	}
	return filepath.Join(c.Path(c.Cache.Dir), c.Inspector.DBPath)
}

// OutputPath is where rendered pages are written.
func (c *Config) OutputPath() string {
	return c.Path(c.Site.OutputDir)
}

// StringOption reads a string plugin option.
func (p PluginConfig) StringOption(key, fallback string) string {
	if s, ok := p.Options[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

// BoolOption reads a boolean plugin option.
func (p PluginConfig) BoolOption(key string, fallback bool) bool {
	if b, ok := p.Options[key].(bool); ok {
		return b
	}
	return fallback
}
