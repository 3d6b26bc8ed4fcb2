// Package snapshot defines the full-state snapshot used to warm-start agentmon.
package snapshot

import (
	"time"

	"github.com/google/uuid"

	"github.com/jbctechsolutions/agentmon/internal/domain/alert"
	"github.com/jbctechsolutions/agentmon/internal/domain/cost"
	"github.com/jbctechsolutions/agentmon/internal/domain/metrics"
)

// Snapshot is a point-in-time copy of every component's state.
// Snapshots are best-effort; they are never treated as a source of truth.
type Snapshot struct {
	ID      string                  `json:"id"`
	TakenAt time.Time               `json:"takenAt"`
	Metrics metrics.AggregatorState `json:"metrics"`
	Costs   cost.State              `json:"costs"`
	Alerts  []alert.Alert           `json:"alerts"` // newest first
}

// New creates an empty snapshot stamped at takenAt.
func New(takenAt time.Time) *Snapshot {
	return &Snapshot{
		ID:      uuid.NewString(),
		TakenAt: takenAt.UTC(),
	}
}
