package content

import (
	"time"
)

// IssueCode enumerates machine-parseable issue identifiers.
// These codes are a stable contract and should only be appended.
type IssueCode string

const (
	IssueProducerDir   IssueCode = "PRODUCER_DIR"
	IssueMaterialDir   IssueCode = "MATERIAL_DIR"
	IssueIndexWrite    IssueCode = "INDEX_WRITE"
	IssuePathCollision IssueCode = "PATH_COLLISION"
	IssueLeafFailure   IssueCode = "LEAF_FAILURE"
	IssueCanceled      IssueCode = "GENERATE_CANCELED"
)

// IssueSeverity represents normalized severity levels.
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a structured entry describing a problem local to one subtree.
type Issue struct {
	Code     IssueCode     `json:"code"`
	Severity IssueSeverity `json:"severity"`
	Path     string        `json:"path,omitempty"`
	Message  string        `json:"message"`
	Err      error         `json:"-"`
}

// TaskResult is the outcome of one filament leaf task.
type TaskResult struct {
	Producer string
	Material string
	Filament string
	ID       string
	Path     string // descriptor path
	Err      error
	Duration time.Duration
	Written  bool // descriptor was written
	Changed  bool // descriptor content differs from what was on disk
	Rendered bool
	Canceled bool // never started because the run was canceled
}

// OK reports whether the task succeeded.
func (r TaskResult) OK() bool { return r.Err == nil }

// Report summarizes one Generate call.
type Report struct {
	Start time.Time
	End   time.Time

	Producers int
	Materials int
	Filaments int

	IndexesWritten     int
	IndexesSkipped     int
	DescriptorsWritten int
	DescriptorsChanged int
	Rendered           int

	Tasks  []TaskResult
	Issues []Issue

	// Err is set when generation could not start at all.
	Err error
}

// Failed returns the tasks that did not succeed, in traversal order.
func (r *Report) Failed() []TaskResult {
	var out []TaskResult
	for _, t := range r.Tasks {
		if !t.OK() {
			out = append(out, t)
		}
	}
	return out
}

// Canceled reports whether any task was skipped because of cancellation.
func (r *Report) Canceled() bool {
	for _, t := range r.Tasks {
		if t.Canceled {
			return true
		}
	}
	return false
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration { return r.End.Sub(r.Start) }

func (r *Report) addIssue(code IssueCode, severity IssueSeverity, path, msg string, err error) {
	r.Issues = append(r.Issues, Issue{Code: code, Severity: severity, Path: path, Message: msg, Err: err})
}

func (r *Report) addTask(t TaskResult) {
	r.Tasks = append(r.Tasks, t)
	if t.Written {
		r.DescriptorsWritten++
		if t.Changed {
			r.DescriptorsChanged++
		}
	}
	if t.Rendered {
		r.Rendered++
	}
}
