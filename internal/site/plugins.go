package site

import (
	"git.home.luguber.info/inful/sitegraph/internal/config"
	ferrors "git.home.luguber.info/inful/sitegraph/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegraph/internal/plugin"
	"git.home.luguber.info/inful/sitegraph/internal/plugins/markdown"
	"git.home.luguber.info/inful/sitegraph/internal/plugins/sourcefs"
)

// BuiltinPlugins instantiates the plugins listed in cfg, in order.
func BuiltinPlugins(cfg *config.Config) ([]plugin.Plugin, error) {
	out := make([]plugin.Plugin, 0, len(cfg.Plugins))
	for _, pc := range cfg.Plugins {
		switch pc.Name {
		case config.PluginSourceFilesystem:
			p, err := sourcefs.New(sourcefs.Options{
				Path:     cfg.Path(pc.StringOption("path", "content")),
				Instance: pc.StringOption("name", ""),
			})
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		case config.PluginMarkdown:
			out = append(out, markdown.New())
		default:
			return nil, ferrors.ConfigError("unknown plugin").
				WithContext("plugin", pc.Name).
				WithContext("valid", []string{config.PluginSourceFilesystem, config.PluginMarkdown}).
				Build()
		}
	}
	return out, nil
}
