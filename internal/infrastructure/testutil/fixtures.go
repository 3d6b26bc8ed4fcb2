package testutil

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/jbctechsolutions/agentmon/internal/application/ports"
	"github.com/jbctechsolutions/agentmon/internal/domain/alert"
	domainerrors "github.com/jbctechsolutions/agentmon/internal/domain/errors"
	"github.com/jbctechsolutions/agentmon/internal/domain/snapshot"
)

// RecordingSink is an AlertSink that keeps every candidate it receives.
type RecordingSink struct {
	mu         sync.Mutex
	candidates []alert.Candidate
	batches    int
}

var _ ports.AlertSink = (*RecordingSink)(nil)

// AddAlerts records the batch.
func (s *RecordingSink) AddAlerts(_ context.Context, candidates []alert.Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches++
	s.candidates = append(s.candidates, candidates...)
}

// Candidates returns a copy of everything received.
func (s *RecordingSink) Candidates() []alert.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]alert.Candidate(nil), s.candidates...)
}

// Batches returns how many AddAlerts calls were made.
func (s *RecordingSink) Batches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches
}

// OfType returns the received candidates with the given type.
func (s *RecordingSink) OfType(alertType string) []alert.Candidate {
	var out []alert.Candidate
	for _, c := range s.Candidates() {
		if c.Type == alertType {
			out = append(out, c)
		}
	}
	return out
}

// RecordingChannel is a NotificationChannel that keeps every alert it receives.
type RecordingChannel struct {
	ChannelName string
	Critical    bool
	Disabled    bool
	Err         error

	mu     sync.Mutex
	alerts []alert.Alert
}

var _ ports.NotificationChannel = (*RecordingChannel)(nil)

// Name returns the channel name.
func (c *RecordingChannel) Name() string { return c.ChannelName }

// Enabled reports whether the channel is enabled.
func (c *RecordingChannel) Enabled() bool { return !c.Disabled }

// CriticalOnly reports whether the channel is gated on critical alerts.
func (c *RecordingChannel) CriticalOnly() bool { return c.Critical }

// Notify records the alert and returns Err.
func (c *RecordingChannel) Notify(_ context.Context, a alert.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	return c.Err
}

// Alerts returns a copy of the received alerts in arrival order.
func (c *RecordingChannel) Alerts() []alert.Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]alert.Alert(nil), c.alerts...)
}

// MemoryStore is an in-memory ports.StatePort.
// Snapshots are deep-copied through JSON so callers cannot alias stored state.
type MemoryStore struct {
	mu        sync.Mutex
	snapshots [][]byte
	alerts    []alert.Alert

	// SaveErr and AppendErr, when set, are returned by the matching writes.
	SaveErr   error
	AppendErr error
}

var _ ports.StatePort = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// SaveSnapshot stores a copy of snap.
func (s *MemoryStore) SaveSnapshot(_ context.Context, snap *snapshot.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	s.snapshots = append(s.snapshots, data)
	return nil
}

// LatestSnapshot returns a copy of the last saved snapshot.
func (s *MemoryStore) LatestSnapshot(_ context.Context) (*snapshot.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.snapshots) == 0 {
		return nil, domainerrors.ErrSnapshotNotFound
	}
	var snap snapshot.Snapshot
	if err := json.Unmarshal(s.snapshots[len(s.snapshots)-1], &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// PruneSnapshots keeps the newest keep snapshots.
func (s *MemoryStore) PruneSnapshots(_ context.Context, keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if keep < 0 || len(s.snapshots) <= keep {
		return 0, nil
	}
	removed := len(s.snapshots) - keep
	s.snapshots = append([][]byte(nil), s.snapshots[removed:]...)
	return removed, nil
}

// SnapshotCount returns the number of stored snapshots.
func (s *MemoryStore) SnapshotCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots)
}

// AppendAlert stores a copy of a.
func (s *MemoryStore) AppendAlert(_ context.Context, a alert.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AppendErr != nil {
		return s.AppendErr
	}
	s.alerts = append(s.alerts, a.Clone())
	return nil
}

// AlertsSince returns stored alerts at or after since, oldest first.
func (s *MemoryStore) AlertsSince(_ context.Context, since time.Time) ([]alert.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]alert.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		if !a.Timestamp.Before(since) {
			out = append(out, a.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// PruneAlerts drops alerts older than before.
func (s *MemoryStore) PruneAlerts(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.alerts[:0]
	for _, a := range s.alerts {
		if !a.Timestamp.Before(before) {
			kept = append(kept, a)
		}
	}
	removed := len(s.alerts) - len(kept)
	s.alerts = kept
	return removed, nil
}

// Close implements ports.StatePort.
func (s *MemoryStore) Close() error { return nil }
