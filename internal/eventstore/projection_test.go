package eventstore

import (
	"errors"
	"testing"
	"time"
)

func mustEvent(t *testing.T) func(*BaseEvent, error) *BaseEvent {
	return func(ev *BaseEvent, err error) *BaseEvent {
		t.Helper()
		if err != nil {
			t.Fatalf("event: %v", err)
		}
		return ev
	}
}

func TestRunHistoryProjection_ApplyEvents(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	defer func() { _ = store.Close() }()
	projection := NewRunHistoryProjection(store, 10)

	projection.Apply(mustEvent(t)(NewRunStarted(testBuildID, RunStartedPayload{Trigger: "cli"})))
	summary, ok := projection.Get(testBuildID)
	if !ok || summary.Status != "running" || summary.Trigger != "cli" {
		t.Fatalf("unexpected summary after start: %+v", summary)
	}

	projection.Apply(mustEvent(t)(NewDocumentLoaded(testBuildID, DocumentLoadedPayload{Path: "a.yaml", Filaments: 3})))
	projection.Apply(mustEvent(t)(NewDocumentSkipped(testBuildID, "b.yaml", "yaml: bad indent")))
	projection.Apply(mustEvent(t)(NewIdentifiersAssigned(testBuildID, 2)))
	projection.Apply(mustEvent(t)(NewLeafFailed(testBuildID, LeafFailedPayload{Filament: "Red", Error: "x"})))
	projection.Apply(mustEvent(t)(NewCatalogSaved(testBuildID, "producers.json", "abc", 10)))
	projection.Apply(mustEvent(t)(NewRunCompleted(testBuildID, RunCompletedPayload{Status: "warning", Filaments: 3})))

	summary, _ = projection.Get(testBuildID)
	if summary.Status != "warning" {
		t.Errorf("expected status warning, got %q", summary.Status)
	}
	if summary.Documents != 1 || summary.DocumentsSkipped != 1 {
		t.Errorf("unexpected document counts %+v", summary)
	}
	if summary.IDsMinted != 2 || summary.LeafFailures != 1 || summary.CatalogSHA256 != "abc" {
		t.Errorf("unexpected counters %+v", summary)
	}
	if summary.CompletedAt == nil {
		t.Errorf("expected completion time")
	}

	history := projection.History()
	if len(history) != 1 || history[0].BuildID != testBuildID {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestRunHistoryProjection_RebuildNewestFirstAndBounded(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	defer func() { _ = store.Close() }()
	ctx := t.Context()

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"r1", "r2", "r3"} {
		start := mustEvent(t)(NewRunStarted(id, RunStartedPayload{}))
		start.EventTimestamp = base.Add(time.Duration(i) * time.Minute)
		end := mustEvent(t)(NewRunFailed(id, "generate", errors.New("boom")))
		end.EventTimestamp = start.EventTimestamp.Add(time.Second)
		if err := store.Append(ctx, start); err != nil {
			t.Fatal(err)
		}
		if err := store.Append(ctx, end); err != nil {
			t.Fatal(err)
		}
	}

	projection := NewRunHistoryProjection(store, 2)
	if err := projection.Rebuild(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	history := projection.History()
	if len(history) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(history))
	}
	if history[0].BuildID != "r3" || history[1].BuildID != "r2" {
		t.Errorf("expected newest first, got %s, %s", history[0].BuildID, history[1].BuildID)
	}
	if history[0].Status != "failed" || history[0].ErrorStage != "generate" {
		t.Errorf("unexpected failure summary %+v", history[0])
	}
	if _, ok := projection.Get("r1"); ok {
		t.Errorf("expected r1 to be pruned")
	}
}
