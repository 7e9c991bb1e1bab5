package watcher

import (
	"context"
	"time"
)

// Repository persists watchers. Implemented by the surrounding system; the
// pipeline only reads due watchers and writes back per-check outcomes.
// RecordOutcome must apply its delta atomically per watcher row.
type Repository interface {
	FindDue(ctx context.Context, now time.Time, floor time.Duration, limit int) ([]Watcher, error)
	Get(ctx context.Context, id string) (Watcher, error)
	List(ctx context.Context) ([]Watcher, error)
	RecordOutcome(ctx context.Context, id string, outcome CheckOutcome) error
}

// AlertSink receives alert events. Fire-and-forget: delivery fan-out is
// external, and a sink error never fails the check that produced the event.
type AlertSink interface {
	Emit(ctx context.Context, event AlertEvent) error
}

// Queue provides dedup-by-watcher-id dispatch between scheduler and workers.
// EnqueueUnique reports false when an item for the same watcher is already
// queued or in flight. Done releases the in-flight reservation.
type Queue interface {
	EnqueueUnique(ctx context.Context, item QueueItem) (bool, error)
	Dequeue(ctx context.Context) (QueueItem, error)
	Done(watcherID string)
}

// Clock returns the current time (substituted in tests).
type Clock interface {
	Now() time.Time
}
