// Package content lays out the generated site tree: one directory per
// producer and material with write-once section indexes, one descriptor per
// filament, and the renderer's leaf artifacts next to it.
package content

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/open-filament/catalogbuilder/internal/catalog"
	ferrors "github.com/open-filament/catalogbuilder/internal/foundation/errors"
	"github.com/open-filament/catalogbuilder/internal/foundation/normalization"
	"github.com/open-filament/catalogbuilder/internal/frontmatter"
	"github.com/open-filament/catalogbuilder/internal/logfields"
	"github.com/open-filament/catalogbuilder/internal/metrics"
	"github.com/open-filament/catalogbuilder/internal/observability"
	"github.com/open-filament/catalogbuilder/internal/render"
	"github.com/open-filament/catalogbuilder/internal/workpool"
)

// ErrPathCollision marks entries whose normalized path segment was already
// claimed by an earlier sibling, by a section index, or that normalize to
// nothing and would land in their parent directory.
var ErrPathCollision = errors.New("path collision")

// indexSegment is the filament base name that would overwrite the section index.
var indexSegment = strings.TrimSuffix(IndexFile, DescriptorExt)

// Owners reported for segments that are not claimed by a sibling.
const (
	ownerOutputRoot = "the output root"
	ownerProducer   = "the producer directory"
	ownerMaterial   = "the material directory"
	ownerIndex      = "the material index"
)

// Modes of the generated tree.
const (
	dirMode  = 0o750
	fileMode = 0o644
)

// Pipeline generates the content tree. The zero value is usable: it logs to
// slog.Default, renders nothing and uses a default-sized pool.
type Pipeline struct {
	Logger      *slog.Logger
	Pool        *workpool.Pool
	Renderer    render.Renderer
	Format      frontmatter.Format
	BaseURL     string
	TaskTimeout time.Duration // per filament task; zero disables
	Recorder    metrics.Recorder
}

// Generate writes the tree for producers under root. Producers and
// materials are visited in order; the filaments of one material run in
// parallel on the pool and are joined before the next material starts.
//
// Failures below root are recorded in the report and never stop traversal.
// Only a root that cannot be created sets Report.Err.
func (p *Pipeline) Generate(ctx context.Context, producers []*catalog.Producer, root string) *Report {
	report := &Report{Start: time.Now()}
	defer func() { report.End = time.Now() }()

	if err := os.MkdirAll(root, dirMode); err != nil {
		report.Err = ferrors.FileSystemError("failed to create output directory").
			WithCause(err).
			WithContext("path", root).
			Fatal().
			Build()
		return report
	}

	pool := p.Pool
	if pool == nil {
		pool = workpool.New(0)
	}
	p.recorder().SetWorkerConcurrency(pool.Size())

	names := make([]string, len(producers))
	for i, pr := range producers {
		names[i] = pr.Name
	}
	owners := segmentOwners(names, map[string]string{"": ownerOutputRoot})

	for i, pr := range producers {
		if ctx.Err() != nil {
			break
		}
		if owner, taken := owners[i]; taken {
			p.collision(ctx, report, filepath.Join(root, normalization.Name(pr.Name)), pr.Name, owner,
				logfields.Producer(pr.Name))
			continue
		}
		p.producer(ctx, pool, report, root, pr)
	}
	if ctx.Err() != nil {
		report.addIssue(IssueCanceled, SeverityWarning, root, "generation canceled", ctx.Err())
	}
	return report
}

func (p *Pipeline) producer(ctx context.Context, pool *workpool.Pool, report *Report, root string, pr *catalog.Producer) {
	report.Producers++
	dir := filepath.Join(root, normalization.Name(pr.Name))
	if err := os.MkdirAll(dir, dirMode); err != nil {
		p.dirFailure(ctx, report, IssueProducerDir, dir, err, logfields.Producer(pr.Name))
		return
	}
	p.index(ctx, report, dir, ProducerIndex(pr.Name))

	names := make([]string, len(pr.Materials))
	for i, m := range pr.Materials {
		names[i] = m.Name
	}
	owners := segmentOwners(names, map[string]string{"": ownerProducer})

	for i, m := range pr.Materials {
		if ctx.Err() != nil {
			return
		}
		if owner, taken := owners[i]; taken {
			p.collision(ctx, report, filepath.Join(dir, normalization.Name(m.Name)), m.Name, owner,
				logfields.Producer(pr.Name), logfields.Material(m.Name))
			continue
		}
		p.material(ctx, pool, report, dir, pr.Name, m)
	}
}

func (p *Pipeline) material(ctx context.Context, pool *workpool.Pool, report *Report, parent, producer string, m *catalog.Material) {
	report.Materials++
	dir := filepath.Join(parent, normalization.Name(m.Name))
	if err := os.MkdirAll(dir, dirMode); err != nil {
		p.dirFailure(ctx, report, IssueMaterialDir, dir, err,
			logfields.Producer(producer), logfields.Material(m.Name))
		return
	}
	p.index(ctx, report, dir, MaterialIndex(producer, m.Name))

	names := make([]string, len(m.Filaments))
	for i, f := range m.Filaments {
		names[i] = f.Name
	}
	owners := segmentOwners(names, map[string]string{"": ownerMaterial, indexSegment: ownerIndex})

	// One slot per filament; each task writes only its own slot.
	results := make([]TaskResult, len(m.Filaments))
	batch := pool.Batch(ctx)
	for i, f := range m.Filaments {
		report.Filaments++
		base := normalization.Name(f.Name)
		results[i] = TaskResult{
			Producer: producer,
			Material: m.Name,
			Filament: f.Name,
			ID:       f.ID,
			Path:     filepath.Join(dir, base+DescriptorExt),
		}
		if owner, taken := owners[i]; taken {
			results[i].Err = collisionError(results[i].Path, f.Name, owner)
			continue
		}

		snapshot := f.Clone()
		slot := &results[i]
		if err := batch.Go(func(ctx context.Context) {
			p.leaf(ctx, slot, dir, base, snapshot)
		}); err != nil {
			slot.Canceled = true
			slot.Err = ferrors.RuntimeError("filament task not started").
				WithCause(err).
				Warning().
				Build()
		}
	}
	batch.Wait()

	for _, r := range results {
		report.addTask(r)
		p.recordLeaf(ctx, report, r)
	}
}

// leaf writes the descriptor of one filament and renders its artifacts.
func (p *Pipeline) leaf(ctx context.Context, res *TaskResult, dir, base string, f *catalog.Filament) {
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	if p.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.TaskTimeout)
		defer cancel()
	}

	if f.ID == "" {
		res.Err = ferrors.ValidationError("filament has no identifier").
			WithContext("filament", f.Name).
			Build()
		return
	}

	renderer := p.renderer()
	fields := DescriptorFields(res.Producer, res.Material, f, renderer.Assets(base))
	data, changed, err := p.encodeDescriptor(fields, res.Path)
	if err != nil {
		res.Err = ferrors.InternalError("failed to encode filament descriptor").
			WithCause(err).
			WithContext("path", res.Path).
			Build()
		return
	}
	if err := os.WriteFile(res.Path, data, fileMode); err != nil {
		res.Err = ferrors.FileSystemError("failed to write filament descriptor").
			WithCause(err).
			WithContext("path", res.Path).
			Build()
		return
	}
	res.Written = true
	res.Changed = changed

	job := render.Job{
		ID:       f.ID,
		URL:      render.PageURL(p.BaseURL, f.ID),
		Dir:      filepath.Join(dir, base),
		BaseName: base,
	}
	if err := renderer.Render(ctx, job); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = ferrors.RuntimeError("filament task timed out").
				WithCause(err).
				WithContext("timeout", p.TaskTimeout.String()).
				Build()
		}
		res.Err = err
		return
	}
	res.Rendered = true
}

// encodeDescriptor renders fields with their fingerprint and reports whether
// the fingerprint differs from the descriptor currently at path.
func (p *Pipeline) encodeDescriptor(fields frontmatter.Fields, path string) ([]byte, bool, error) {
	fields, fp, err := frontmatter.WithFingerprint(fields, nil)
	if err != nil {
		return nil, false, err
	}
	data, err := frontmatter.Render(p.Format, fields, nil)
	if err != nil {
		return nil, false, err
	}
	return data, previousFingerprint(path) != fp, nil
}

func previousFingerprint(path string) string {
	// #nosec G304 -- path is derived from the output root
	existing, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	fields, _, _, err := frontmatter.Parse(existing)
	if err != nil {
		return ""
	}
	fp, _ := fields[frontmatter.FingerprintField].(string)
	return fp
}

// index writes a section index unless one exists. Existing indexes are
// never touched so hand edits survive regeneration.
func (p *Pipeline) index(ctx context.Context, report *Report, dir string, fields frontmatter.Fields) {
	path := filepath.Join(dir, IndexFile)
	written, err := p.writeOnce(path, fields)
	switch {
	case err != nil:
		report.addIssue(IssueIndexWrite, SeverityWarning, path, "failed to write index", err)
		observability.WarnContext(ctx, p.Logger, "Failed to write index", logfields.Path(path), logfields.Error(err))
	case written:
		report.IndexesWritten++
	default:
		report.IndexesSkipped++
	}
}

func (p *Pipeline) writeOnce(path string, fields frontmatter.Fields) (bool, error) {
	data, err := frontmatter.Render(p.Format, fields, nil)
	if err != nil {
		return false, err
	}
	// #nosec G304 -- path is derived from the output root
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, fileMode)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return false, err
	}
	return true, f.Close()
}

func (p *Pipeline) dirFailure(ctx context.Context, report *Report, code IssueCode, dir string, err error, attrs ...slog.Attr) {
	cerr := ferrors.FileSystemError("failed to create directory").
		WithCause(err).
		WithContext("path", dir).
		Build()
	report.addIssue(code, SeverityError, dir, "subtree skipped", cerr)
	attrs = append(attrs, logfields.Path(dir), logfields.Error(err))
	observability.ErrorContext(ctx, p.Logger, "Skipping subtree", attrs...)
}

func (p *Pipeline) collision(ctx context.Context, report *Report, path, name, owner string, attrs ...slog.Attr) {
	report.addIssue(IssuePathCollision, SeverityError, path, name+" collides with "+owner, collisionError(path, name, owner))
	attrs = append(attrs, logfields.Path(path), slog.String("owner", owner))
	observability.WarnContext(ctx, p.Logger, "Path collision, entry not generated", attrs...)
}

func (p *Pipeline) recordLeaf(ctx context.Context, report *Report, r TaskResult) {
	rec := p.recorder()
	switch {
	case r.Canceled:
		rec.IncLeafResult(metrics.ResultCanceled)
		return
	case r.Err != nil:
		rec.IncLeafResult(metrics.ResultFatal)
	default:
		rec.IncLeafResult(metrics.ResultSuccess)
	}
	rec.ObserveLeafDuration(r.Duration, r.Err == nil)

	attrs := []slog.Attr{
		logfields.Producer(r.Producer),
		logfields.Material(r.Material),
		logfields.Filament(r.Filament),
		logfields.Path(r.Path),
		logfields.Duration(r.Duration),
	}
	if r.Err != nil {
		code := IssueLeafFailure
		if errors.Is(r.Err, ErrPathCollision) {
			code = IssuePathCollision
		}
		report.addIssue(code, SeverityError, r.Path, "filament not generated", r.Err)
		observability.ErrorContext(ctx, p.Logger, "Filament task failed", append(attrs, logfields.Error(r.Err))...)
		return
	}
	observability.DebugContext(ctx, p.Logger, "Filament generated", append(attrs, logfields.FilamentID(r.ID))...)
}

func (p *Pipeline) renderer() render.Renderer {
	if p.Renderer == nil {
		return render.NoopRenderer{}
	}
	return p.Renderer
}

func (p *Pipeline) recorder() metrics.Recorder { return metrics.OrNoop(p.Recorder) }

// segmentOwners maps the index of every name that must not be generated to
// the owner of its path segment: an earlier sibling, or the entry reserved
// for that segment.
func segmentOwners(names []string, reserved map[string]string) map[int]string {
	claimed := make(map[string]string, len(names)+len(reserved))
	for seg, owner := range reserved {
		claimed[seg] = owner
	}
	owners := make(map[int]string)
	for i, n := range names {
		seg := normalization.Name(n)
		if first, ok := claimed[seg]; ok {
			owners[i] = first
			continue
		}
		claimed[seg] = n
	}
	return owners
}

func collisionError(path, name, owner string) error {
	return ferrors.ValidationError("normalized path already taken").
		WithCause(ErrPathCollision).
		WithContext("path", path).
		WithContext("name", name).
		WithContext("owner", owner).
		Build()
}
