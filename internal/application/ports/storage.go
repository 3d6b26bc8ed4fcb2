// Package ports defines the application layer port interfaces following hexagonal architecture.
// Ports are abstractions that allow the application core to interact with external systems
// (adapters) without knowing their implementation details.
package ports

import (
	"context"
	"time"

	"github.com/jbctechsolutions/agentmon/internal/domain/alert"
	"github.com/jbctechsolutions/agentmon/internal/domain/snapshot"
)

// SnapshotStore persists full-state snapshots.
// Implementations include a JSON file store, SQLite, and an in-memory fake for tests.
type SnapshotStore interface {
	// SaveSnapshot persists a snapshot.
	SaveSnapshot(ctx context.Context, snap *snapshot.Snapshot) error

	// LatestSnapshot returns the most recent snapshot.
	// Returns errors.ErrSnapshotNotFound when the store is empty.
	LatestSnapshot(ctx context.Context) (*snapshot.Snapshot, error)

	// PruneSnapshots keeps the newest keep snapshots and deletes the rest.
	// Returns the number of snapshots deleted.
	PruneSnapshots(ctx context.Context, keep int) (int, error)
}

// AlertLog is the append-only alert history kept alongside snapshots.
type AlertLog interface {
	// AppendAlert records one accepted alert.
	AppendAlert(ctx context.Context, a alert.Alert) error

	// AlertsSince returns alerts logged at or after since, oldest first.
	AlertsSince(ctx context.Context, since time.Time) ([]alert.Alert, error)

	// PruneAlerts deletes alerts logged before the cutoff.
	// Returns the number of alerts (or alert files) deleted.
	PruneAlerts(ctx context.Context, before time.Time) (int, error)
}

// StatePort combines both persistence ports; every bundled store implements it.
type StatePort interface {
	SnapshotStore
	AlertLog
	Close() error
}
