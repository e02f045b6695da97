package eventstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

const (
	runStatusRunning = "running"
	runStatusFailed  = "failed"
)

// RunSummary is the read model of one run, folded from its events.
type RunSummary struct {
	BuildID          string        `json:"build_id"`
	Trigger          string        `json:"trigger,omitempty"`
	Status           string        `json:"status"`
	StartedAt        time.Time     `json:"started_at"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
	Duration         time.Duration `json:"duration,omitempty"`
	Documents        int           `json:"documents"`
	DocumentsSkipped int           `json:"documents_skipped"`
	Filaments        int           `json:"filaments"`
	IDsMinted        int           `json:"ids_minted"`
	LeafFailures     int           `json:"leaf_failures"`
	CatalogSHA256    string        `json:"catalog_sha256,omitempty"`
	ErrorStage       string        `json:"error_stage,omitempty"`
	ErrorMessage     string        `json:"error_message,omitempty"`
}

// RunHistoryProjection keeps a bounded, newest-first view of past runs.
type RunHistoryProjection struct {
	mu      sync.RWMutex
	store   Store
	runs    map[string]*RunSummary
	history []*RunSummary
	maxSize int
}

// NewRunHistoryProjection creates a projection over store; maxSize <= 0 means 100.
func NewRunHistoryProjection(store Store, maxSize int) *RunHistoryProjection {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &RunHistoryProjection{
		store:   store,
		runs:    make(map[string]*RunSummary),
		maxSize: maxSize,
	}
}

// Rebuild replays every stored event.
func (p *RunHistoryProjection) Rebuild(ctx context.Context) error {
	events, err := p.store.GetRange(ctx, time.Time{}, time.Now().Add(time.Hour))
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.runs = make(map[string]*RunSummary)
	p.history = nil
	for _, event := range events {
		p.applyLocked(event)
	}
	sort.SliceStable(p.history, func(i, j int) bool {
		return p.history[i].StartedAt.After(p.history[j].StartedAt)
	})
	p.trimLocked()
	return nil
}

// Apply folds a single event into the projection.
func (p *RunHistoryProjection) Apply(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyLocked(event)
}

func (p *RunHistoryProjection) applyLocked(event Event) {
	buildID := event.BuildID()
	if buildID == "" {
		return
	}
	s, ok := p.runs[buildID]
	if !ok {
		s = &RunSummary{BuildID: buildID, Status: runStatusRunning, StartedAt: event.Timestamp()}
		p.runs[buildID] = s
	}

	switch event.Type() {
	case TypeRunStarted:
		s.StartedAt = event.Timestamp()
		var payload RunStartedPayload
		if json.Unmarshal(event.Payload(), &payload) == nil {
			s.Trigger = payload.Trigger
		}

	case TypeDocumentLoaded:
		s.Documents++
		var payload DocumentLoadedPayload
		if json.Unmarshal(event.Payload(), &payload) == nil {
			s.Filaments += payload.Filaments
		}

	case TypeDocumentSkipped:
		s.DocumentsSkipped++

	case TypeIdentifiersAssigned:
		var payload struct {
			Count int `json:"count"`
		}
		if json.Unmarshal(event.Payload(), &payload) == nil {
			s.IDsMinted += payload.Count
		}

	case TypeLeafFailed:
		s.LeafFailures++

	case TypeCatalogSaved:
		var payload struct {
			SHA256 string `json:"sha256"`
		}
		if json.Unmarshal(event.Payload(), &payload) == nil {
			s.CatalogSHA256 = payload.SHA256
		}

	case TypeRunCompleted:
		p.finishLocked(s, event.Timestamp())
		s.Status = "success"
		var payload RunCompletedPayload
		if json.Unmarshal(event.Payload(), &payload) == nil && payload.Status != "" {
			s.Status = payload.Status
			s.Filaments = payload.Filaments
		}

	case TypeRunFailed:
		p.finishLocked(s, event.Timestamp())
		s.Status = runStatusFailed
		var payload RunFailedPayload
		if json.Unmarshal(event.Payload(), &payload) == nil {
			s.ErrorStage = payload.Stage
			s.ErrorMessage = payload.Error
		}
	}
}

func (p *RunHistoryProjection) finishLocked(s *RunSummary, at time.Time) {
	s.CompletedAt = &at
	s.Duration = at.Sub(s.StartedAt)
	for _, h := range p.history {
		if h.BuildID == s.BuildID {
			return
		}
	}
	p.history = append([]*RunSummary{s}, p.history...)
	p.trimLocked()
}

func (p *RunHistoryProjection) trimLocked() {
	if len(p.history) > p.maxSize {
		p.history = p.history[:p.maxSize]
	}
	keep := make(map[string]bool, len(p.history))
	for _, h := range p.history {
		keep[h.BuildID] = true
	}
	for id, s := range p.runs {
		if s.Status != runStatusRunning && !keep[id] {
			delete(p.runs, id)
		}
	}
}

// History returns finished runs, newest first.
func (p *RunHistoryProjection) History() []RunSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]RunSummary, len(p.history))
	for i, s := range p.history {
		out[i] = *s
	}
	return out
}

// Get returns a copy of the summary of one run.
func (p *RunHistoryProjection) Get(buildID string) (RunSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, ok := p.runs[buildID]
	if !ok {
		return RunSummary{}, false
	}
	return *s, true
}
