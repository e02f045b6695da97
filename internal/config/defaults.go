package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/open-filament/catalogbuilder/internal/render"
	"github.com/open-filament/catalogbuilder/internal/source"
)

// Default locations, relative to the working directory.
const (
	DefaultCatalogPath = "databases/producers.json"
	DefaultSourcesDir  = "data"
	DefaultOutputDir   = "content/producers"
	DefaultFormat      = "json"
	DefaultSubject     = "catalogbuilder.runs"
	DefaultDebounce    = time.Second
	DefaultHistoryKeep = 50
	DefaultGitCloneDir = ".catalogbuilder/sources"
)

func applyDefaults(cfg *Config) {
	if cfg.Version == "" {
		cfg.Version = Version
	}
	if cfg.Catalog.Path == "" {
		cfg.Catalog.Path = DefaultCatalogPath
	}

	if cfg.Sources.Dir == "" {
		cfg.Sources.Dir = DefaultSourcesDir
	}
	if len(cfg.Sources.Patterns) == 0 {
		cfg.Sources.Patterns = append([]string(nil), source.DefaultPatterns...)
	}
	if g := cfg.Sources.Git; g != nil {
		if g.CloneDir == "" {
			g.CloneDir = DefaultGitCloneDir
		}
		if g.Depth < 0 {
			g.Depth = 0
		}
	}

	if cfg.Output.Dir == "" {
		cfg.Output.Dir = DefaultOutputDir
	}
	cfg.Output.Format = strings.ToLower(strings.TrimSpace(cfg.Output.Format))
	if cfg.Output.Format == "" {
		cfg.Output.Format = DefaultFormat
	}
	if cfg.Output.BaseURL == "" {
		cfg.Output.BaseURL = render.DefaultBaseURL
	}

	if cfg.Build.Workers < 0 {
		cfg.Build.Workers = 0
	}

	cfg.Renderer.Type = RendererType(strings.ToLower(strings.TrimSpace(string(cfg.Renderer.Type))))
	if cfg.Renderer.Type == "" {
		cfg.Renderer.Type = RendererNone
		if cfg.Renderer.Command != "" {
			cfg.Renderer.Type = RendererCommand
		}
	}
	if cfg.Renderer.Type == RendererCommand && len(cfg.Renderer.Outputs) == 0 {
		for _, o := range render.DefaultOutputs {
			cfg.Renderer.Outputs = append(cfg.Renderer.Outputs, RendererOutput{
				Name:     o.Name,
				Filename: o.Filename,
				Preview:  o.Preview,
			})
		}
	}

	if cfg.History.Path != "" && cfg.History.Keep <= 0 {
		cfg.History.Keep = DefaultHistoryKeep
	}
	if cfg.Notify.URL != "" && cfg.Notify.Subject == "" {
		cfg.Notify.Subject = DefaultSubject
	}
	if cfg.Daemon.Watch && cfg.Daemon.Debounce <= 0 {
		cfg.Daemon.Debounce = DefaultDebounce
	}
}

// SourceDir returns the directory holding source documents: the configured
// directory, or the subdirectory of the git clone when sources come from git.
func (c *Config) SourceDir() string {
	if g := c.Sources.Git; g != nil && g.URL != "" {
		return filepath.Join(g.CloneDir, g.Subdir)
	}
	return c.Sources.Dir
}

// RenderOutputs converts the configured outputs for the command renderer.
func (c *Config) RenderOutputs() []render.Output {
	out := make([]render.Output, 0, len(c.Renderer.Outputs))
	for _, o := range c.Renderer.Outputs {
		out = append(out, render.Output{Name: o.Name, Filename: o.Filename, Preview: o.Preview})
	}
	return out
}
