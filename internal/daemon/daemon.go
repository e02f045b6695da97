// Package daemon keeps the catalog current by re-running builds when source
// documents change and on a fixed interval. Runs never overlap: requests that
// arrive while a build is running collapse into a single follow-up run.
package daemon

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/open-filament/catalogbuilder/internal/build"
	ferrors "github.com/open-filament/catalogbuilder/internal/foundation/errors"
	"github.com/open-filament/catalogbuilder/internal/logfields"
	"github.com/open-filament/catalogbuilder/internal/metrics"
)

// Trigger names recorded on runs started by the daemon.
const (
	TriggerStartup  = "startup"
	TriggerWatch    = "watch"
	TriggerSchedule = "schedule"
)

const (
	shutdownTimeout = 5 * time.Second
	// Upper bound on open connections to the metrics listener.
	maxMetricsConns = 16
)

// RunFunc executes one build.
type RunFunc func(ctx context.Context, trigger string) (*build.Result, error)

// Options selects which triggers the daemon listens to.
type Options struct {
	// Interval > 0 schedules a rebuild every Interval.
	Interval time.Duration
	// Watch rebuilds when anything below WatchTrees or one of WatchFiles changes.
	Watch      bool
	WatchTrees []string
	WatchFiles []string
	Debounce   time.Duration
	// RunOnStart builds once before waiting for triggers.
	RunOnStart bool
	// MetricsListen serves Registry on /metrics when both are set.
	MetricsListen string
	Registry      *prom.Registry
}

// Daemon serializes builds requested by its triggers.
type Daemon struct {
	logger   *slog.Logger
	run      RunFunc
	opts     Options
	requests chan string

	// ready is closed once every trigger source is listening.
	ready       chan struct{}
	metricsAddr string
}

// New creates a daemon executing run for every accepted trigger.
func New(logger *slog.Logger, run RunFunc, opts Options) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if run == nil {
		return nil, ferrors.ValidationError("daemon requires a run function").Build()
	}
	if opts.Interval <= 0 && !opts.Watch && !opts.RunOnStart {
		return nil, ferrors.ConfigError("daemon has nothing to do").
			WithContext("hint", "set daemon.interval or enable daemon.watch").
			UserAction().
			Build()
	}
	return &Daemon{
		logger:   logger,
		run:      run,
		opts:     opts,
		requests: make(chan string, 1),
		ready:    make(chan struct{}),
	}, nil
}

// Ready is closed once the daemon accepts triggers.
func (d *Daemon) Ready() <-chan struct{} { return d.ready }

// MetricsAddr returns the bound metrics address once Ready is closed.
func (d *Daemon) MetricsAddr() string { return d.metricsAddr }

// Request asks for a build. A request made while another one is pending is
// merged into it.
func (d *Daemon) Request(trigger string) {
	select {
	case d.requests <- trigger:
	default:
		d.logger.Debug("Build already pending", slog.String("trigger", trigger))
	}
}

// Run blocks until ctx ends or a trigger source fails to start. Failed
// builds are logged and do not stop the daemon.
func (d *Daemon) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if d.opts.Watch {
		w, err := d.newWatcher()
		if err != nil {
			return err
		}
		defer func() { _ = w.Close() }()
		g.Go(func() error {
			return w.Run(gctx, func(path string) {
				d.logger.Info("Source change detected", logfields.Path(path))
				d.Request(TriggerWatch)
			})
		})
	}

	if d.opts.Interval > 0 {
		s, err := NewScheduler(d.logger)
		if err != nil {
			return err
		}
		if _, err := s.ScheduleEvery("catalog-rebuild", d.opts.Interval, func() { d.Request(TriggerSchedule) }); err != nil {
			return err
		}
		s.Start()
		defer func() {
			if err := s.Stop(); err != nil {
				d.logger.Warn("Scheduler shutdown failed", logfields.Error(err))
			}
		}()
	}

	if d.opts.MetricsListen != "" && d.opts.Registry != nil {
		srv, ln, err := d.metricsServer()
		if err != nil {
			return err
		}
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return ferrors.RuntimeError("metrics server failed").WithCause(err).Build()
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if d.opts.RunOnStart {
		d.Request(TriggerStartup)
	}

	g.Go(func() error {
		d.loop(gctx)
		return nil
	})
	close(d.ready)
	d.logger.Info("Daemon started",
		slog.Bool("watch", d.opts.Watch),
		slog.Duration("interval", d.opts.Interval))

	err := g.Wait()
	d.logger.Info("Daemon stopped")
	return err
}

func (d *Daemon) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case trigger := <-d.requests:
			d.runOnce(ctx, trigger)
		}
	}
}

func (d *Daemon) runOnce(ctx context.Context, trigger string) {
	d.logger.Info("Starting triggered build", slog.String("trigger", trigger))
	res, err := d.run(ctx, trigger)
	if err != nil {
		d.logger.Error("Triggered build failed", slog.String("trigger", trigger), logfields.Error(err))
		return
	}
	if res != nil {
		d.logger.Info("Triggered build finished",
			logfields.BuildID(res.BuildID),
			slog.String("status", string(res.Status)),
			logfields.Duration(res.Duration))
	}
}

func (d *Daemon) newWatcher() (*Watcher, error) {
	w, err := NewWatcher(d.logger, d.opts.Debounce)
	if err != nil {
		return nil, err
	}
	for _, root := range d.opts.WatchTrees {
		if err := w.AddTree(root); err != nil {
			_ = w.Close()
			return nil, err
		}
	}
	for _, file := range d.opts.WatchFiles {
		if err := w.AddFile(file); err != nil {
			_ = w.Close()
			return nil, err
		}
	}
	return w, nil
}

func (d *Daemon) metricsServer() (*http.Server, net.Listener, error) {
	ln, err := net.Listen("tcp", d.opts.MetricsListen)
	if err != nil {
		return nil, nil, ferrors.RuntimeError("failed to listen for metrics").
			WithCause(err).
			WithContext("address", d.opts.MetricsListen).
			Build()
	}
	ln = netutil.LimitListener(ln, maxMetricsConns)
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler(d.opts.Registry))
	d.metricsAddr = ln.Addr().String()
	d.logger.Info("Serving metrics", slog.String("address", d.metricsAddr))
	return &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}, ln, nil
}
