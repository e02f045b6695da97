package build

import (
	"context"
	"log/slog"

	"github.com/open-filament/catalogbuilder/internal/eventstore"
	"github.com/open-filament/catalogbuilder/internal/logfields"
	"github.com/open-filament/catalogbuilder/internal/observability"
)

// journal appends run events to the optional store and projection. Journal
// failures are logged and never fail a run. ctx carries the build id and is
// detached from run cancellation so the final events of a canceled run are
// still written.
type journal struct {
	ctx        context.Context
	store      eventstore.Store
	projection *eventstore.RunHistoryProjection
	logger     *slog.Logger
}

func (j *journal) record(event *eventstore.BaseEvent, err error) {
	if j.store == nil && j.projection == nil {
		return
	}
	if err != nil {
		observability.WarnContext(j.ctx, j.logger, "Failed to build journal event", logfields.Error(err))
		return
	}
	if j.store != nil {
		if err := j.store.Append(j.ctx, event); err != nil {
			observability.WarnContext(j.ctx, j.logger, "Failed to append journal event",
				slog.String("type", event.Type()), logfields.Error(err))
		}
	}
	if j.projection != nil {
		j.projection.Apply(event)
	}
}
