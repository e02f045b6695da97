package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/open-filament/catalogbuilder/internal/build"
	"github.com/open-filament/catalogbuilder/internal/config"
	"github.com/open-filament/catalogbuilder/internal/daemon"
	"github.com/open-filament/catalogbuilder/internal/logfields"
)

// WatchCmd implements the 'watch' command: build once, then rebuild on every
// change to the source documents or the configuration file.
type WatchCmd struct {
	Overrides
	Debounce time.Duration `help:"Quiet window before a rebuild (default from configuration)"`
}

func (w *WatchCmd) Run(g *Global, root *CLI) error {
	load := loader(g, root, w.Overrides)
	cfg, err := load()
	if err != nil {
		return err
	}
	opts := daemonOptions(cfg)
	opts.Watch = true
	opts.Interval = 0
	if w.Debounce > 0 {
		opts.Debounce = w.Debounce
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return RunDaemon(ctx, g, cfg, opts, root.configPath(), load)
}

// DaemonCmd implements the 'daemon' command.
type DaemonCmd struct {
	Overrides
	Interval time.Duration `help:"Rebuild interval (default from configuration)"`
	Watch    bool          `help:"Also rebuild on source changes" xor:"watch"`
	NoWatch  bool          `help:"Only rebuild on the interval" xor:"watch"`
	Listen   string        `help:"Serve Prometheus metrics on this address"`
}

func (d *DaemonCmd) Run(g *Global, root *CLI) error {
	load := loader(g, root, d.Overrides)
	cfg, err := load()
	if err != nil {
		return err
	}
	opts := daemonOptions(cfg)
	if d.Interval > 0 {
		opts.Interval = d.Interval
	}
	switch {
	case d.Watch:
		opts.Watch = true
	case d.NoWatch:
		opts.Watch = false
	}
	if d.Listen != "" {
		opts.MetricsListen = d.Listen
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return RunDaemon(ctx, g, cfg, opts, root.configPath(), load)
}

// configLoader reads the configuration with command line overrides applied.
type configLoader func() (*config.Config, error)

func loader(g *Global, root *CLI, o Overrides) configLoader {
	return func() (*config.Config, error) {
		cfg, err := root.loadConfig(g.Logger)
		if err != nil {
			return nil, err
		}
		if err := o.apply(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
}

func daemonOptions(cfg *config.Config) daemon.Options {
	return daemon.Options{
		Interval:      cfg.Daemon.Interval,
		Watch:         cfg.Daemon.Watch,
		Debounce:      cfg.Daemon.Debounce,
		RunOnStart:    true,
		MetricsListen: cfg.Metrics.Listen,
	}
}

// RunDaemon builds once and keeps rebuilding until ctx ends. When configPath
// is set, an edit to it reloads the build settings through load before the
// next run; an invalid file keeps the previous settings.
func RunDaemon(ctx context.Context, g *Global, cfg *config.Config, opts daemon.Options, configPath string, load configLoader) error {
	rt, err := newRuntime(ctx, cfg, g.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	opts.Registry = rt.registry
	if opts.Watch {
		// A git clone only changes when the daemon pulls it.
		if git := cfg.Sources.Git; git == nil || git.URL == "" {
			opts.WatchTrees = []string{cfg.SourceDir()}
		}
		if configPath != "" {
			opts.WatchFiles = []string{configPath}
		}
	}

	run := rt.run
	if configPath != "" && load != nil {
		run = func(ctx context.Context, trigger string) (*build.Result, error) {
			if trigger == daemon.TriggerWatch {
				rt.reload(load)
			}
			return rt.run(ctx, trigger)
		}
	}

	d, err := daemon.New(g.Logger, run, opts)
	if err != nil {
		return err
	}
	return d.Run(ctx)
}

func (r *runtime) reload(load configLoader) {
	cfg, err := load()
	if err == nil {
		err = r.configure(cfg)
	}
	if err != nil {
		r.logger.Warn("Keeping previous configuration", logfields.Error(err))
		return
	}
	r.logger.Debug("Configuration reloaded")
}
