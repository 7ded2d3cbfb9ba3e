// Package history persists build lifecycle events for inspection and
// debugging. It is telemetry, not resume state: in-flight jobs are never
// reconstructed from it.
package history

import (
	"context"
	"time"
)

// Event is one recorded stage transition of a build.
type Event struct {
	ID        int64     `json:"id"`
	Task      string    `json:"task"`
	Round     int       `json:"round"`
	Stage     string    `json:"stage"`
	Status    string    `json:"status"` // started|success|warning|failed
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Store defines the interface for persisting and retrieving build events.
type Store interface {
	// Append adds a new event to the store.
	Append(ctx context.Context, ev Event) error

	// ByTask retrieves all events for a task, oldest first.
	ByTask(ctx context.Context, task string) ([]Event, error)

	// Prune deletes events older than the cutoff, returning the count removed.
	Prune(ctx context.Context, olderThan time.Time) (int64, error)

	// Close closes the store and releases resources.
	Close() error
}

// NoopStore discards everything (history disabled).
type NoopStore struct{}

func (NoopStore) Append(context.Context, Event) error             { return nil }
func (NoopStore) ByTask(context.Context, string) ([]Event, error) { return nil, nil }
func (NoopStore) Prune(context.Context, time.Time) (int64, error) { return 0, nil }
func (NoopStore) Close() error                                    { return nil }
