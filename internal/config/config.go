// Package config loads the site configuration from YAML, .env files and
// environment overrides.
package config

import "time"

// Config is the site configuration.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Cache     CacheConfig     `yaml:"cache"`
	Plugins   []PluginConfig  `yaml:"plugins"`
	Inspector InspectorConfig `yaml:"inspector"`
	Develop   DevelopConfig   `yaml:"develop"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SiteConfig locates the site's directories, relative to Root unless absolute.
type SiteConfig struct {
	Root      string `yaml:"root"`
	OutputDir string `yaml:"output_dir"`
}

// CacheConfig controls the durable snapshot.
type CacheConfig struct {
	Dir          string        `yaml:"dir"`
	SnapshotFile string        `yaml:"snapshot_file"`
	QuietWindow  time.Duration `yaml:"quiet_window"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// PluginConfig names a plugin and its options. The order of the list is the
// order hooks run in.
type PluginConfig struct {
	Name    string         `yaml:"name"`
	Options map[string]any `yaml:"options,omitempty"`
}

// InspectorConfig controls the development state inspector.
type InspectorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	DBPath  string `yaml:"db_path"`
}

// DevelopConfig controls `sitegraph develop`.
type DevelopConfig struct {
	// ResyncInterval re-runs sourcing periodically; zero disables it.
	ResyncInterval time.Duration `yaml:"resync_interval"`
}

type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}
