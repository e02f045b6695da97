package build

import (
	"time"

	"github.com/open-filament/catalogbuilder/internal/catalog"
	"github.com/open-filament/catalogbuilder/internal/content"
	"github.com/open-filament/catalogbuilder/internal/notify"
	"github.com/open-filament/catalogbuilder/internal/source"
)

// Request holds the inputs of one run.
type Request struct {
	CatalogPath string
	SourceDir   string
	Patterns    []string // nil selects source.DefaultPatterns
	OutputDir   string

	// Git, when set, is fetched into GitDir before discovery. SourceDir
	// should then point inside GitDir.
	Git    *source.Remote
	GitDir string

	Workers int  // pool size; 0 selects workpool.DefaultSize
	Strict  bool // leaf failures fail the run
	Trigger string
}

// Status is the overall outcome of a run.
type Status string

const (
	// StatusSuccess means every document loaded and every leaf task succeeded.
	StatusSuccess Status = "success"
	// StatusWarning means the run completed with skipped documents or
	// failed leaf tasks. The catalog was saved.
	StatusWarning Status = "warning"
	// StatusFailed means a fatal error stopped the run.
	StatusFailed Status = "failed"
	// StatusCanceled means the run context ended before completion.
	StatusCanceled Status = "canceled"
)

// SkippedDocument is a source document that was not merged.
type SkippedDocument struct {
	Path string
	Err  error
}

// Result describes a finished run.
type Result struct {
	BuildID   string
	Status    Status
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	Commit            string // source revision when fetched from git
	Documents         int    // documents merged
	Skipped           []SkippedDocument
	IdentifiersMinted int
	Catalog           catalog.Stats
	Report            *content.Report
	CatalogSHA256     string
	CatalogBytes      int
	ArchiveKey        string

	// FailedStage names the stage that aborted a failed run.
	FailedStage string
}

// LeafFailures counts failed filament tasks, excluding those never started
// because of cancellation.
func (r *Result) LeafFailures() int {
	if r.Report == nil {
		return 0
	}
	n := 0
	for _, t := range r.Report.Failed() {
		if !t.Canceled {
			n++
		}
	}
	return n
}

// DescriptorsWritten is the number of filament descriptors written.
func (r *Result) DescriptorsWritten() int {
	if r.Report == nil {
		return 0
	}
	return r.Report.DescriptorsWritten
}

// Summary converts the result into the published notification.
func (r *Result) Summary(err error) notify.Summary {
	s := notify.Summary{
		BuildID:            r.BuildID,
		Status:             string(r.Status),
		StartedAt:          r.StartTime,
		DurationMs:         r.Duration.Milliseconds(),
		Producers:          r.Catalog.Producers,
		Materials:          r.Catalog.Materials,
		Filaments:          r.Catalog.Filaments,
		IdentifiersMinted:  r.IdentifiersMinted,
		DocumentsSkipped:   len(r.Skipped),
		DescriptorsWritten: r.DescriptorsWritten(),
		LeafFailures:       r.LeafFailures(),
		CatalogSHA256:      r.CatalogSHA256,
	}
	if err != nil {
		s.Error = err.Error()
	}
	return s
}
