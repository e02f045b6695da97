package config

import (
	"path/filepath"

	"github.com/open-filament/catalogbuilder/internal/foundation"
	ferrors "github.com/open-filament/catalogbuilder/internal/foundation/errors"
	"github.com/open-filament/catalogbuilder/internal/frontmatter"
)

// Validate checks a configuration after defaults were applied.
func Validate(cfg *Config) error {
	result := foundation.Valid()

	if cfg.Version != Version {
		result.Add("version", "unsupported", "unsupported configuration version "+cfg.Version+" (expected "+Version+")")
	}
	if _, err := frontmatter.ParseFormat(cfg.Output.Format); err != nil {
		result.Add("output.format", "one_of", err.Error())
	}
	if filepath.Clean(cfg.Output.Dir) == "." {
		result.Add("output.dir", "invalid", "output directory must not be the working directory")
	}
	for _, p := range cfg.Sources.Patterns {
		if _, err := filepath.Match(p, ""); err != nil {
			result.Add("sources.patterns", "invalid", "bad pattern "+p)
		}
	}
	if g := cfg.Sources.Git; g != nil {
		if g.URL == "" {
			result.Add("sources.git.url", "required", "git source requires a url")
		}
		if g.Retries != nil && *g.Retries < 0 {
			result.Add("sources.git.retries", "invalid", "must not be negative")
		}
		if g.RetryBackoff != "" {
			result = result.Combine(foundation.OneOf("sources.git.retry_backoff", g.RetryBackoff, "fixed", "linear", "exponential"))
		}
	}
	if cfg.Build.TaskTimeout < 0 {
		result.Add("build.task_timeout", "invalid", "must not be negative")
	}

	result = result.Combine(foundation.OneOf("renderer.type", cfg.Renderer.Type, RendererNone, RendererCommand))
	if cfg.Renderer.Type == RendererCommand {
		if cfg.Renderer.Command == "" {
			result.Add("renderer.command", "required", "command renderer requires a command")
		}
		for _, o := range cfg.Renderer.Outputs {
			if o.Filename == "" {
				result.Add("renderer.outputs", "required", "output "+o.Name+" has no filename")
			}
		}
	}

	if a := cfg.Archive; a.Endpoint != "" && a.Bucket == "" {
		result.Add("archive.bucket", "required", "archive endpoint requires a bucket")
	}
	if cfg.Daemon.Interval < 0 {
		result.Add("daemon.interval", "invalid", "must not be negative")
	}

	if err := result.ToError(); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "configuration validation failed").Build()
	}
	return nil
}
