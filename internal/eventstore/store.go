package eventstore

import (
	"context"
	"time"
)

// Store persists and retrieves journal events.
type Store interface {
	// Append records an event. The event's own timestamp is stored.
	Append(ctx context.Context, event Event) error

	// GetByBuildID retrieves all events of one run in append order.
	GetByBuildID(ctx context.Context, buildID string) ([]Event, error)

	// GetRange retrieves events with start <= timestamp <= end.
	GetRange(ctx context.Context, start, end time.Time) ([]Event, error)

	Close() error
}
