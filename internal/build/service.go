// Package build runs the catalog pipeline end to end. All execution paths
// (CLI, watch, scheduled daemon runs, tests) go through Service.Run.
package build

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/open-filament/catalogbuilder/internal/archive"
	"github.com/open-filament/catalogbuilder/internal/catalog"
	"github.com/open-filament/catalogbuilder/internal/content"
	"github.com/open-filament/catalogbuilder/internal/eventstore"
	"github.com/open-filament/catalogbuilder/internal/foundation"
	ferrors "github.com/open-filament/catalogbuilder/internal/foundation/errors"
	"github.com/open-filament/catalogbuilder/internal/logfields"
	"github.com/open-filament/catalogbuilder/internal/metrics"
	"github.com/open-filament/catalogbuilder/internal/notify"
	"github.com/open-filament/catalogbuilder/internal/observability"
	"github.com/open-filament/catalogbuilder/internal/retry"
	"github.com/open-filament/catalogbuilder/internal/source"
	"github.com/open-filament/catalogbuilder/internal/store"
	"github.com/open-filament/catalogbuilder/internal/workpool"
)

// Stage names used in logs, metrics and the journal.
const (
	StageLock     = "lock"
	StageFetch    = "fetch"
	StageDiscover = "discover"
	StageLoad     = "load"
	StageIdentify = "identify"
	StageGenerate = "generate"
	StageSave     = "save"
	StageArchive  = "archive"
)

// FetchFunc updates a local clone of a source repository.
type FetchFunc func(ctx context.Context, logger *slog.Logger, remote source.Remote, dir string) (string, error)

// Service executes runs. Runs on one Service are serialized; the catalog
// lock additionally rejects a second process.
type Service struct {
	mu sync.Mutex

	logger     *slog.Logger
	pipeline   content.Pipeline
	recorder   metrics.Recorder
	events     eventstore.Store
	projection *eventstore.RunHistoryProjection
	notifier   notify.Notifier
	archiver   archive.Archiver
	idgen      catalog.IDGenerator
	fetch      FetchFunc
	fetchRetry retry.Policy
}

// NewService creates a service generating content with pipeline. The
// pipeline's Logger, Pool and Recorder are replaced per run.
func NewService(logger *slog.Logger, pipeline content.Pipeline) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		logger:     logger,
		pipeline:   pipeline,
		recorder:   metrics.NoopRecorder{},
		notifier:   notify.Noop{},
		idgen:      catalog.NewUUID,
		fetch:      source.Fetch,
		fetchRetry: retry.DefaultPolicy(),
	}
}

// WithRecorder sets the metrics recorder.
func (s *Service) WithRecorder(r metrics.Recorder) *Service {
	s.recorder = metrics.OrNoop(r)
	return s
}

// WithEventStore journals every run into es.
func (s *Service) WithEventStore(es eventstore.Store) *Service {
	s.events = es
	return s
}

// WithProjection keeps p current with the events of every run.
func (s *Service) WithProjection(p *eventstore.RunHistoryProjection) *Service {
	s.projection = p
	return s
}

// WithNotifier publishes a summary after every run.
func (s *Service) WithNotifier(n notify.Notifier) *Service {
	if n == nil {
		n = notify.Noop{}
	}
	s.notifier = n
	return s
}

// WithArchiver uploads the saved catalog after every completed run.
func (s *Service) WithArchiver(a archive.Archiver) *Service {
	s.archiver = a
	return s
}

// WithIDGenerator replaces the identifier generator (for testing).
func (s *Service) WithIDGenerator(gen catalog.IDGenerator) *Service {
	s.idgen = gen
	return s
}

// WithFetchFunc replaces the git fetcher (for testing).
func (s *Service) WithFetchFunc(f FetchFunc) *Service {
	s.fetch = f
	return s
}

// WithFetchRetry sets how transient git failures are retried.
func (s *Service) WithFetchRetry(p retry.Policy) *Service {
	s.fetchRetry = p
	return s
}

// Run executes lock → fetch → discover → load → identify → generate → save.
//
// A fatal error (locked or corrupt catalog, unreadable sources, output root
// not creatable) stops the run before the catalog is written and is
// returned. Skipped documents and failed leaf tasks are reported in the
// result; they only produce an error in strict mode. Once generation has
// started the catalog is always saved, even when the run is canceled, so
// identifiers already published in descriptors stay stable.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	res := &Result{BuildID: newBuildID(start), StartTime: start}
	ctx = observability.WithBuildID(ctx, res.BuildID)
	j := &journal{
		ctx:        context.WithoutCancel(ctx),
		store:      s.events,
		projection: s.projection,
		logger:     s.logger,
	}

	pool := workpool.New(req.Workers)
	j.record(eventstore.NewRunStarted(res.BuildID, eventstore.RunStartedPayload{
		Catalog: req.CatalogPath,
		Sources: req.SourceDir,
		Output:  req.OutputDir,
		Workers: pool.Size(),
		Trigger: req.Trigger,
	}))
	observability.InfoContext(ctx, s.logger, "Build started",
		logfields.Path(req.CatalogPath),
		slog.String("sources", req.SourceDir),
		slog.String("output", req.OutputDir),
		slog.Int("workers", pool.Size()))

	// Lock and load the catalog.
	stageCtx, done := s.stage(ctx, StageLock)
	handle, err := store.Open(req.CatalogPath)
	if err != nil {
		done(metrics.ResultFatal)
		return s.fail(stageCtx, res, j, StageLock, err)
	}
	defer func() {
		if cerr := handle.Close(); cerr != nil {
			observability.WarnContext(ctx, s.logger, "Failed to release catalog lock", logfields.Error(cerr))
		}
	}()
	done(metrics.ResultSuccess)

	if req.Git != nil {
		stageCtx, done = s.stage(ctx, StageFetch)
		var commit string
		err := retry.Do(stageCtx, s.fetchRetry, s.logger, StageFetch, func(ctx context.Context) error {
			var ferr error
			commit, ferr = s.fetch(ctx, s.logger, *req.Git, req.GitDir)
			return ferr
		})
		if err != nil {
			done(metrics.ResultFatal)
			return s.fail(stageCtx, res, j, StageFetch, err)
		}
		res.Commit = commit
		done(metrics.ResultSuccess)
	}

	stageCtx, done = s.stage(ctx, StageDiscover)
	paths, err := source.Discover(req.SourceDir, req.Patterns...)
	if err != nil {
		done(metrics.ResultFatal)
		return s.fail(stageCtx, res, j, StageDiscover, err)
	}
	if len(paths) == 0 {
		observability.WarnContext(stageCtx, s.logger, "No source documents found", slog.String("dir", req.SourceDir))
	}
	done(metrics.ResultSuccess)

	stageCtx, done = s.stage(ctx, StageLoad)
	producers, err := s.load(stageCtx, pool, res, j, handle.Producers(), paths)
	if err != nil {
		done(metrics.ResultCanceled)
		return s.fail(stageCtx, res, j, StageLoad, err)
	}
	if len(res.Skipped) > 0 {
		done(metrics.ResultWarning)
	} else {
		done(metrics.ResultSuccess)
	}

	stageCtx, done = s.stage(ctx, StageIdentify)
	res.IdentifiersMinted = catalog.Backfill(producers, s.idgen)
	res.Catalog = catalog.Count(producers...)
	handle.SetProducers(producers)
	s.recorder.AddIdentifiersAssigned(res.IdentifiersMinted)
	s.recorder.SetCatalogSize(res.Catalog.Producers, res.Catalog.Materials, res.Catalog.Filaments)
	j.record(eventstore.NewIdentifiersAssigned(res.BuildID, res.IdentifiersMinted))
	observability.InfoContext(stageCtx, s.logger, "Identifiers assigned", logfields.Count(res.IdentifiersMinted))
	done(metrics.ResultSuccess)

	stageCtx, done = s.stage(ctx, StageGenerate)
	pipeline := s.pipeline
	pipeline.Logger = s.logger
	pipeline.Pool = pool
	pipeline.Recorder = s.recorder
	res.Report = pipeline.Generate(stageCtx, producers, req.OutputDir)
	if res.Report.Err != nil {
		done(metrics.ResultFatal)
		return s.fail(stageCtx, res, j, StageGenerate, res.Report.Err)
	}
	for _, t := range res.Report.Failed() {
		if t.Canceled {
			continue
		}
		j.record(eventstore.NewLeafFailed(res.BuildID, eventstore.LeafFailedPayload{
			Producer: t.Producer,
			Material: t.Material,
			Filament: t.Filament,
			ID:       t.ID,
			Path:     t.Path,
			Error:    t.Err.Error(),
		}))
	}
	switch {
	case res.Report.Canceled():
		done(metrics.ResultCanceled)
	case res.LeafFailures() > 0:
		done(metrics.ResultWarning)
	default:
		done(metrics.ResultSuccess)
	}

	// Save without the run context: a canceled run still persists the
	// identifiers it may already have published.
	saveCtx := context.WithoutCancel(ctx)
	stageCtx, done = s.stage(saveCtx, StageSave)
	snapshot, err := s.save(stageCtx, res, j, handle)
	if err != nil {
		done(metrics.ResultFatal)
		return s.fail(stageCtx, res, j, StageSave, err)
	}
	done(metrics.ResultSuccess)

	if ctx.Err() != nil || res.Report.Canceled() {
		res.Status = StatusCanceled
		cause := ctx.Err()
		if cause == nil {
			cause = context.Canceled
		}
		err := ferrors.RuntimeError("build canceled").WithCause(cause).Warning().Build()
		return s.complete(saveCtx, res, j, err)
	}

	if s.archiver != nil {
		s.upload(saveCtx, res, snapshot)
	}

	res.Status = StatusSuccess
	if len(res.Skipped) > 0 || res.LeafFailures() > 0 {
		res.Status = StatusWarning
	}
	if req.Strict && res.LeafFailures() > 0 {
		res.Status = StatusFailed
		res.FailedStage = StageGenerate
		err := ferrors.RenderError("filament tasks failed").
			WithContext("failures", res.LeafFailures()).
			Build()
		return s.complete(saveCtx, res, j, err)
	}
	return s.complete(saveCtx, res, j, nil)
}

// load parses documents in parallel and merges them in discovery order.
func (s *Service) load(ctx context.Context, pool *workpool.Pool, res *Result, j *journal,
	baseline []*catalog.Producer, paths []string,
) ([]*catalog.Producer, error) {
	outcomes := make([]foundation.Result[*catalog.Producer, error], len(paths))
	batch := pool.Batch(ctx)
	for i, path := range paths {
		if err := batch.Go(func(context.Context) {
			p, err := source.ParseFile(path)
			outcomes[i] = foundation.FromTuple(p, err)
		}); err != nil {
			batch.Wait()
			return nil, ferrors.RuntimeError("build canceled").WithCause(err).Warning().Build()
		}
	}
	batch.Wait()

	producers := baseline
	for i, outcome := range outcomes {
		path := paths[i]
		if outcome.IsErr() {
			perr := outcome.UnwrapErr()
			res.Skipped = append(res.Skipped, SkippedDocument{Path: path, Err: perr})
			s.recorder.IncDocumentResult(metrics.ResultSkipped)
			j.record(eventstore.NewDocumentSkipped(res.BuildID, path, perr.Error()))
			observability.WarnContext(ctx, s.logger, "Skipping source document",
				logfields.Document(path), logfields.Error(perr))
			continue
		}

		candidate := outcome.Unwrap()
		producers = catalog.Upsert(producers, candidate)
		res.Documents++
		stats := catalog.Count(candidate)
		s.recorder.IncDocumentResult(metrics.ResultSuccess)
		j.record(eventstore.NewDocumentLoaded(res.BuildID, eventstore.DocumentLoadedPayload{
			Path:      path,
			Producer:  candidate.Name,
			Materials: stats.Materials,
			Filaments: stats.Filaments,
		}))
		observability.InfoContext(ctx, s.logger, "Loaded source document",
			logfields.Document(path),
			logfields.Producer(candidate.Name),
			slog.Int("materials", stats.Materials),
			slog.Int("filaments", stats.Filaments))
	}
	return producers, nil
}

func (s *Service) save(ctx context.Context, res *Result, j *journal, handle *store.Handle) ([]byte, error) {
	snapshot, err := store.Snapshot(handle.Producers())
	if err != nil {
		return nil, err
	}
	if err := handle.Save(); err != nil {
		return nil, err
	}
	sum := sha256.Sum256(snapshot)
	res.CatalogSHA256 = hex.EncodeToString(sum[:])
	res.CatalogBytes = len(snapshot)
	j.record(eventstore.NewCatalogSaved(res.BuildID, handle.Path(), res.CatalogSHA256, res.CatalogBytes))
	observability.InfoContext(ctx, s.logger, "Catalog saved",
		logfields.Path(handle.Path()),
		slog.Int("bytes", res.CatalogBytes),
		slog.String("sha256", res.CatalogSHA256))
	return snapshot, nil
}

// upload archives the snapshot. Failures are logged, never fatal.
func (s *Service) upload(ctx context.Context, res *Result, snapshot []byte) {
	ctx, done := s.stage(ctx, StageArchive)
	key, err := s.archiver.Upload(ctx, res.BuildID, snapshot)
	if err != nil {
		done(metrics.ResultWarning)
		observability.WarnContext(ctx, s.logger, "Failed to archive catalog snapshot", logfields.Error(err))
		return
	}
	res.ArchiveKey = key
	done(metrics.ResultSuccess)
	observability.InfoContext(ctx, s.logger, "Catalog snapshot archived", slog.String("key", key))
}

func (s *Service) fail(ctx context.Context, res *Result, j *journal, stage string, err error) (*Result, error) {
	res.FailedStage = stage
	res.Status = StatusFailed
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		res.Status = StatusCanceled
	}
	observability.ErrorContext(ctx, s.logger, "Build failed", logfields.Error(err))
	return s.complete(context.WithoutCancel(ctx), res, j, err)
}

// complete stamps the result and emits metrics, the journal entry and the
// notification.
func (s *Service) complete(ctx context.Context, res *Result, j *journal, err error) (*Result, error) {
	res.EndTime = time.Now()
	res.Duration = res.EndTime.Sub(res.StartTime)

	s.recorder.ObserveBuildDuration(res.Duration)
	s.recorder.IncBuildOutcome(outcomeLabel(res.Status))

	if res.Status == StatusFailed && res.FailedStage != "" {
		j.record(eventstore.NewRunFailed(res.BuildID, res.FailedStage, err))
	} else {
		j.record(eventstore.NewRunCompleted(res.BuildID, eventstore.RunCompletedPayload{
			Status:             string(res.Status),
			DurationMs:         res.Duration.Milliseconds(),
			Documents:          res.Documents,
			DocumentsSkipped:   len(res.Skipped),
			Filaments:          res.Catalog.Filaments,
			IdentifiersMinted:  res.IdentifiersMinted,
			DescriptorsWritten: res.DescriptorsWritten(),
			LeafFailures:       res.LeafFailures(),
		}))
	}

	if nerr := s.notifier.Notify(ctx, res.Summary(err)); nerr != nil {
		observability.WarnContext(ctx, s.logger, "Failed to publish run summary", logfields.Error(nerr))
	}

	observability.InfoContext(ctx, s.logger, "Build finished",
		slog.String("status", string(res.Status)),
		logfields.Duration(res.Duration),
		slog.Int("documents", res.Documents),
		slog.Int("skipped", len(res.Skipped)),
		slog.Int("filaments", res.Catalog.Filaments),
		slog.Int("minted", res.IdentifiersMinted),
		slog.Int("leaf_failures", res.LeafFailures()))
	return res, err
}

// stage tags ctx with name and returns a callback recording its duration
// and result.
func (s *Service) stage(ctx context.Context, name string) (context.Context, func(metrics.ResultLabel)) {
	start := time.Now()
	ctx = observability.WithStage(ctx, name)
	observability.DebugContext(ctx, s.logger, "Stage started")
	return ctx, func(result metrics.ResultLabel) {
		s.recorder.ObserveStageDuration(name, time.Since(start))
		s.recorder.IncStageResult(name, result)
	}
}

func outcomeLabel(st Status) string {
	switch st {
	case StatusSuccess:
		return metrics.BuildOutcomeSuccess
	case StatusWarning:
		return metrics.BuildOutcomeWarning
	case StatusCanceled:
		return metrics.BuildOutcomeCanceled
	default:
		return metrics.BuildOutcomeFailed
	}
}

func newBuildID(t time.Time) string {
	return t.UTC().Format("20060102-150405") + "-" + uuid.NewString()[:8]
}
