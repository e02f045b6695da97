package commands

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/open-filament/catalogbuilder/internal/archive"
	"github.com/open-filament/catalogbuilder/internal/build"
	"github.com/open-filament/catalogbuilder/internal/config"
	"github.com/open-filament/catalogbuilder/internal/content"
	"github.com/open-filament/catalogbuilder/internal/eventstore"
	ferrors "github.com/open-filament/catalogbuilder/internal/foundation/errors"
	"github.com/open-filament/catalogbuilder/internal/frontmatter"
	"github.com/open-filament/catalogbuilder/internal/logfields"
	"github.com/open-filament/catalogbuilder/internal/metrics"
	"github.com/open-filament/catalogbuilder/internal/notify"
	"github.com/open-filament/catalogbuilder/internal/render"
	"github.com/open-filament/catalogbuilder/internal/retry"
	"github.com/open-filament/catalogbuilder/internal/source"
)

// Overrides are the build flags shared by build, watch and daemon. Set
// flags take precedence over the configuration file.
type Overrides struct {
	Catalog string `help:"Catalog JSON file" type:"path"`
	Sources string `help:"Directory holding source documents (disables git sources)" type:"path"`
	Output  string `short:"o" help:"Content output directory" type:"path"`
	Format  string `help:"Descriptor front matter format (json|yaml)"`
	Workers *int   `short:"w" help:"Concurrent filament tasks (0 selects NumCPU-2)"`
	Strict  bool   `help:"Exit non-zero when any filament task fails"`
}

func (o Overrides) apply(cfg *config.Config) error {
	if o.Catalog != "" {
		cfg.Catalog.Path = o.Catalog
	}
	if o.Sources != "" {
		cfg.Sources.Dir = o.Sources
		cfg.Sources.Git = nil
	}
	if o.Output != "" {
		cfg.Output.Dir = o.Output
	}
	if o.Format != "" {
		cfg.Output.Format = o.Format
	}
	if o.Workers != nil {
		cfg.Build.Workers = *o.Workers
	}
	if o.Strict {
		cfg.Build.Strict = true
	}
	return config.Validate(cfg)
}

// runtime wires a build.Service and its optional collaborators from the
// configuration. Close releases everything it opened.
type runtime struct {
	cfg      *config.Config
	logger   *slog.Logger
	service  *build.Service
	registry *prom.Registry
	recorder *metrics.PrometheusRecorder

	journal    *eventstore.SQLiteStore
	projection *eventstore.RunHistoryProjection
	notifier   notify.Notifier
}

func newRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	registry := prom.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r := &runtime{
		logger:   logger,
		registry: registry,
		recorder: metrics.NewPrometheusRecorder(registry),
		notifier: notify.Noop{},
	}

	if err := r.openJournal(ctx, cfg); err != nil {
		logger.Warn("Run journal disabled", logfields.Path(cfg.History.Path), logfields.Error(err))
	}
	if cfg.Notify.URL != "" {
		n, err := notify.NewNATSNotifier(cfg.Notify.URL, cfg.Notify.Subject, logger)
		if err != nil {
			logger.Warn("Run notifications disabled", logfields.Error(err))
		} else {
			r.notifier = n
		}
	}

	if err := r.configure(cfg); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

// configure (re)builds the service for cfg. The metrics, journal and
// notifier are kept across calls.
func (r *runtime) configure(cfg *config.Config) error {
	format, err := frontmatter.ParseFormat(cfg.Output.Format)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "invalid output format").Build()
	}
	renderer, err := newRenderer(cfg)
	if err != nil {
		return err
	}
	pipeline := content.Pipeline{
		Renderer:    renderer,
		Format:      format,
		BaseURL:     cfg.Output.BaseURL,
		TaskTimeout: cfg.Build.TaskTimeout,
	}
	service := build.NewService(r.logger, pipeline).
		WithRecorder(r.recorder).
		WithNotifier(r.notifier)
	if g := cfg.Sources.Git; g != nil {
		retries := -1
		if g.Retries != nil {
			retries = *g.Retries
		}
		service.WithFetchRetry(retry.NewPolicy(retry.Mode(g.RetryBackoff), g.RetryDelay, g.RetryMax, retries))
	}
	if r.journal != nil {
		service.WithEventStore(r.journal).WithProjection(r.projection)
	}

	if cfg.Archive.Endpoint != "" {
		store, err := archive.NewS3Store(archive.Config{
			Endpoint:  cfg.Archive.Endpoint,
			Region:    cfg.Archive.Region,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			Bucket:    cfg.Archive.Bucket,
			Prefix:    cfg.Archive.Prefix,
			UseSSL:    cfg.Archive.UseSSL,
		})
		if err != nil {
			return err
		}
		service.WithArchiver(store)
	}
	r.cfg = cfg
	r.service = service
	return nil
}

func newRenderer(cfg *config.Config) (render.Renderer, error) {
	if cfg.Renderer.Type != config.RendererCommand {
		return render.NoopRenderer{}, nil
	}
	return render.NewCommandRenderer(cfg.Renderer.Command, cfg.Renderer.Args, cfg.RenderOutputs(), cfg.Renderer.Env...)
}

func (r *runtime) openJournal(ctx context.Context, cfg *config.Config) error {
	path := cfg.History.Path
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ferrors.FileSystemError("failed to create history directory").WithCause(err).Build()
	}
	store, err := eventstore.NewSQLiteStore(path)
	if err != nil {
		return err
	}
	projection := eventstore.NewRunHistoryProjection(store, cfg.History.Keep)
	if err := projection.Rebuild(ctx); err != nil {
		r.logger.Warn("Failed to replay run journal", logfields.Error(err))
	}
	r.journal = store
	r.projection = projection
	return nil
}

// request translates the configuration into a run request.
func (r *runtime) request(trigger string) build.Request {
	req := build.Request{
		CatalogPath: r.cfg.Catalog.Path,
		SourceDir:   r.cfg.SourceDir(),
		Patterns:    r.cfg.Sources.Patterns,
		OutputDir:   r.cfg.Output.Dir,
		Workers:     r.cfg.Build.Workers,
		Strict:      r.cfg.Build.Strict,
		Trigger:     trigger,
	}
	if g := r.cfg.Sources.Git; g != nil && g.URL != "" {
		req.Git = &source.Remote{URL: g.URL, Branch: g.Branch, Token: g.Token, Depth: g.Depth}
		req.GitDir = g.CloneDir
	}
	return req
}

// run executes one build and exports metrics afterwards.
func (r *runtime) run(ctx context.Context, trigger string) (*build.Result, error) {
	res, err := r.service.Run(ctx, r.request(trigger))
	if path := r.cfg.Metrics.Textfile; path != "" {
		if werr := metrics.WriteTextfile(r.registry, path); werr != nil {
			r.logger.Warn("Failed to write metrics textfile", logfields.Path(path), logfields.Error(werr))
		}
	}
	return res, err
}

func (r *runtime) Close() error {
	var errs []error
	if r.notifier != nil {
		errs = append(errs, r.notifier.Close())
	}
	if r.journal != nil {
		errs = append(errs, r.journal.Close())
	}
	return errors.Join(errs...)
}
