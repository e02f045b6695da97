package eventstore

import (
	"encoding/json"
	"time"

	"github.com/open-filament/catalogbuilder/internal/foundation/errors"
)

// Event type names as stored in the journal.
const (
	TypeRunStarted          = "RunStarted"
	TypeDocumentLoaded      = "DocumentLoaded"
	TypeDocumentSkipped     = "DocumentSkipped"
	TypeIdentifiersAssigned = "IdentifiersAssigned"
	TypeLeafFailed          = "LeafFailed"
	TypeCatalogSaved        = "CatalogSaved"
	TypeRunCompleted        = "RunCompleted"
	TypeRunFailed           = "RunFailed"
)

// RunStartedPayload describes the inputs of a run.
type RunStartedPayload struct {
	Catalog string `json:"catalog"`
	Sources string `json:"sources"`
	Output  string `json:"output"`
	Workers int    `json:"workers"`
	Trigger string `json:"trigger,omitempty"` // cli|watch|schedule
}

// DocumentLoadedPayload carries per-document statistics.
type DocumentLoadedPayload struct {
	Path      string `json:"path"`
	Producer  string `json:"producer"`
	Materials int    `json:"materials"`
	Filaments int    `json:"filaments"`
}

// DocumentSkippedPayload records a source document that failed to parse.
type DocumentSkippedPayload struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// LeafFailedPayload records one failed per-filament task.
type LeafFailedPayload struct {
	Producer string `json:"producer"`
	Material string `json:"material"`
	Filament string `json:"filament"`
	ID       string `json:"id,omitempty"`
	Path     string `json:"path,omitempty"`
	Error    string `json:"error"`
}

// RunCompletedPayload summarizes a finished run.
type RunCompletedPayload struct {
	Status             string `json:"status"` // success|warning|canceled
	DurationMs         int64  `json:"duration_ms"`
	Documents          int    `json:"documents"`
	DocumentsSkipped   int    `json:"documents_skipped"`
	Filaments          int    `json:"filaments"`
	IdentifiersMinted  int    `json:"identifiers_minted"`
	DescriptorsWritten int    `json:"descriptors_written"`
	LeafFailures       int    `json:"leaf_failures"`
}

// RunFailedPayload records a run aborted by a fatal error.
type RunFailedPayload struct {
	Stage string `json:"stage"`
	Error string `json:"error"`
}

func newEvent(buildID, eventType string, payload any) (*BaseEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.EventStoreError("failed to marshal "+eventType+" payload").
			WithCause(err).
			WithContext("build_id", buildID).
			Build()
	}
	return &BaseEvent{
		EventBuildID:   buildID,
		EventType:      eventType,
		EventTimestamp: time.Now(),
		EventPayload:   data,
	}, nil
}

func NewRunStarted(buildID string, p RunStartedPayload) (*BaseEvent, error) {
	return newEvent(buildID, TypeRunStarted, p)
}

func NewDocumentLoaded(buildID string, p DocumentLoadedPayload) (*BaseEvent, error) {
	return newEvent(buildID, TypeDocumentLoaded, p)
}

func NewDocumentSkipped(buildID, path, reason string) (*BaseEvent, error) {
	return newEvent(buildID, TypeDocumentSkipped, DocumentSkippedPayload{Path: path, Reason: reason})
}

func NewIdentifiersAssigned(buildID string, count int) (*BaseEvent, error) {
	return newEvent(buildID, TypeIdentifiersAssigned, map[string]int{"count": count})
}

func NewLeafFailed(buildID string, p LeafFailedPayload) (*BaseEvent, error) {
	return newEvent(buildID, TypeLeafFailed, p)
}

// NewCatalogSaved records the catalog write; sha256 identifies the snapshot.
func NewCatalogSaved(buildID, path, sha256 string, size int) (*BaseEvent, error) {
	return newEvent(buildID, TypeCatalogSaved, map[string]any{"path": path, "sha256": sha256, "bytes": size})
}

func NewRunCompleted(buildID string, p RunCompletedPayload) (*BaseEvent, error) {
	return newEvent(buildID, TypeRunCompleted, p)
}

func NewRunFailed(buildID, stage string, cause error) (*BaseEvent, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return newEvent(buildID, TypeRunFailed, RunFailedPayload{Stage: stage, Error: msg})
}
