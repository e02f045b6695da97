package metrics

import "time"

// ResultLabel enumerates result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultWarning  ResultLabel = "warning"
	ResultFatal    ResultLabel = "fatal"
	ResultSkipped  ResultLabel = "skipped"
	ResultCanceled ResultLabel = "canceled"
)

// Build outcomes passed to IncBuildOutcome.
const (
	BuildOutcomeSuccess  = "success"
	BuildOutcomeWarning  = "warning"
	BuildOutcomeFailed   = "failed"
	BuildOutcomeCanceled = "canceled"
)

// Recorder defines the metrics hooks of a build run.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObserveBuildDuration(d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	IncBuildOutcome(outcome string) // success|warning|failed|canceled
	IncDocumentResult(result ResultLabel)
	ObserveLeafDuration(d time.Duration, success bool)
	IncLeafResult(result ResultLabel)
	SetWorkerConcurrency(n int)
	SetCatalogSize(producers, materials, filaments int)
	AddIdentifiersAssigned(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)         {}
func (NoopRecorder) IncStageResult(string, ResultLabel)         {}
func (NoopRecorder) IncBuildOutcome(string)                     {}
func (NoopRecorder) IncDocumentResult(ResultLabel)              {}
func (NoopRecorder) ObserveLeafDuration(time.Duration, bool)    {}
func (NoopRecorder) IncLeafResult(ResultLabel)                  {}
func (NoopRecorder) SetWorkerConcurrency(int)                   {}
func (NoopRecorder) SetCatalogSize(int, int, int)               {}
func (NoopRecorder) AddIdentifiersAssigned(int)                 {}

// OrNoop returns r, or NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
