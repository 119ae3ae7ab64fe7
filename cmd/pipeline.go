package cmd

import (
	"github.com/conneroisu/srcdoc/internal/build"
	"github.com/conneroisu/srcdoc/internal/cache"
	"github.com/conneroisu/srcdoc/internal/config"
	"github.com/conneroisu/srcdoc/internal/deps"
	"github.com/conneroisu/srcdoc/internal/logging"
	"github.com/conneroisu/srcdoc/internal/preset"
)

// pipeline holds the process-wide collaborators every build shares.
type pipeline struct {
	cache    cache.Cache
	resolver *deps.Resolver
	registry *preset.Registry
	metrics  *build.Metrics
}

func newPipeline(cfg *config.Config, logger logging.Logger) *pipeline {
	var artifacts cache.Cache = cache.Nop{}
	if !cfg.Cache.Disabled {
		artifacts = cache.New(cfg.Cache.MaxBytes)
	}

	resolver := deps.New(cfg.ResolverConfig(), logger)

	return &pipeline{
		cache:    artifacts,
		resolver: resolver,
		registry: preset.NewRegistry(resolver, cfg.Build.UnitConcurrency),
		metrics:  build.NewMetrics(),
	}
}

// explicitPreset returns the preset named by name, or nil for "auto".
func (p *pipeline) explicitPreset(name string) (*preset.Preset, error) {
	if name == "" || name == "auto" {
		return nil, nil
	}

	found, err := p.registry.Lookup(name)
	if err != nil {
		return nil, err
	}

	return &found, nil
}
