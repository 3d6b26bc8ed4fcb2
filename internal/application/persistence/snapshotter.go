// Package persistence snapshots the in-memory telemetry state to a store on an interval
// and warm-starts it from the latest snapshot plus the alerts logged after it.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jbctechsolutions/agentmon/internal/application/ports"
	"github.com/jbctechsolutions/agentmon/internal/domain/alert"
	"github.com/jbctechsolutions/agentmon/internal/domain/cost"
	domainerrors "github.com/jbctechsolutions/agentmon/internal/domain/errors"
	"github.com/jbctechsolutions/agentmon/internal/domain/metrics"
	"github.com/jbctechsolutions/agentmon/internal/domain/snapshot"
	"github.com/jbctechsolutions/agentmon/internal/infrastructure/logging"
	"github.com/jbctechsolutions/agentmon/internal/infrastructure/tracing"
)

// Defaults.
const (
	DefaultInterval       = time.Hour
	DefaultKeepSnapshots  = 24
	DefaultAlertRetention = 30 * 24 * time.Hour
)

// MetricsState is the aggregator's persistence surface.
type MetricsState interface {
	Snapshot() metrics.AggregatorState
	Restore(metrics.AggregatorState)
}

// CostState is the ledger's persistence surface.
type CostState interface {
	Snapshot() cost.State
	Restore(cost.State)
}

// AlertState is the alert manager's persistence surface.
type AlertState interface {
	Snapshot() []alert.Alert
	Restore([]alert.Alert)
}

// Config wires the snapshotter.
type Config struct {
	Logger *logging.Logger
	Tracer *tracing.Tracer
	Store  ports.StatePort
	Now    func() time.Time

	Metrics MetricsState
	Costs   CostState
	Alerts  AlertState

	Interval       time.Duration
	KeepSnapshots  int
	AlertRetention time.Duration
}

// Snapshotter is safe for concurrent use; snapshots serialize on an internal mutex.
type Snapshotter struct {
	cfg Config

	mu sync.Mutex // serializes TakeSnapshot and Restore

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New creates a snapshotter. Store must be set.
func New(cfg Config) *Snapshotter {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = tracing.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.KeepSnapshots <= 0 {
		cfg.KeepSnapshots = DefaultKeepSnapshots
	}
	if cfg.AlertRetention <= 0 {
		cfg.AlertRetention = DefaultAlertRetention
	}
	return &Snapshotter{cfg: cfg, stopCh: make(chan struct{})}
}

// TakeSnapshot captures every component and saves the result.
func (s *Snapshotter) TakeSnapshot(ctx context.Context) (*snapshot.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := snapshot.New(s.cfg.Now())
	ctx, span := s.cfg.Tracer.StartSnapshotSpan(ctx, snap.ID)

	if s.cfg.Metrics != nil {
		snap.Metrics = s.cfg.Metrics.Snapshot()
	}
	if s.cfg.Costs != nil {
		snap.Costs = s.cfg.Costs.Snapshot()
	}
	if s.cfg.Alerts != nil {
		snap.Alerts = s.cfg.Alerts.Snapshot()
	}
	span.SetCounts(len(snap.Metrics.Agents), len(snap.Alerts))

	if err := s.cfg.Store.SaveSnapshot(ctx, snap); err != nil {
		err = domainerrors.WithContext(
			domainerrors.NewError(domainerrors.CodeStorage, "save snapshot", err),
			"snapshot_id", snap.ID,
		)
		span.End(err)
		return nil, err
	}
	span.End(nil)

	s.cfg.Logger.InfoContext(ctx, "snapshot saved",
		"snapshot_id", snap.ID,
		"agents", len(snap.Metrics.Agents),
		"alerts", len(snap.Alerts),
	)
	return snap, nil
}

// Restore loads the latest snapshot into the components and replays alerts logged
// since it was taken. It reports whether a snapshot was found; without one, alerts
// within the retention period are still restored.
func (s *Snapshotter) Restore(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.cfg.Store.LatestSnapshot(ctx)
	found := err == nil
	if err != nil && !errors.Is(err, domainerrors.ErrSnapshotNotFound) {
		return false, fmt.Errorf("load latest snapshot: %w", err)
	}

	since := s.cfg.Now().Add(-s.cfg.AlertRetention)
	if found {
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.Restore(snap.Metrics)
		}
		if s.cfg.Costs != nil {
			s.cfg.Costs.Restore(snap.Costs)
		}
		since = snap.TakenAt
	}

	if s.cfg.Alerts != nil {
		logged, err := s.cfg.Store.AlertsSince(ctx, since)
		if err != nil {
			return found, fmt.Errorf("load alert log: %w", err)
		}
		var alerts []alert.Alert
		if found {
			alerts = append(alerts, snap.Alerts...)
		}
		// Snapshot copies come first so their acknowledgement state wins.
		alerts = append(alerts, logged...)
		s.cfg.Alerts.Restore(alerts)
	}

	if found {
		s.cfg.Logger.InfoContext(ctx, "state restored",
			"snapshot_id", snap.ID,
			"taken_at", snap.TakenAt,
		)
	}
	return found, nil
}

// Prune enforces snapshot and alert retention.
func (s *Snapshotter) Prune(ctx context.Context) error {
	var errs []error

	if n, err := s.cfg.Store.PruneSnapshots(ctx, s.cfg.KeepSnapshots); err != nil {
		errs = append(errs, fmt.Errorf("prune snapshots: %w", err))
	} else if n > 0 {
		s.cfg.Logger.DebugContext(ctx, "pruned snapshots", "count", n)
	}

	cutoff := s.cfg.Now().Add(-s.cfg.AlertRetention)
	if n, err := s.cfg.Store.PruneAlerts(ctx, cutoff); err != nil {
		errs = append(errs, fmt.Errorf("prune alerts: %w", err))
	} else if n > 0 {
		s.cfg.Logger.DebugContext(ctx, "pruned alerts", "count", n)
	}

	return errors.Join(errs...)
}

// Start snapshots and prunes on the configured interval until ctx is done or Stop is called.
func (s *Snapshotter) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.safeTick(ctx)
			}
		}
	}()
}

func (s *Snapshotter) safeTick(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			s.cfg.Logger.ErrorContext(ctx, "snapshot loop panicked", "panic", fmt.Sprint(rec))
		}
	}()

	if _, err := s.TakeSnapshot(ctx); err != nil {
		logging.LogError(ctx, s.cfg.Logger, "snapshot", err)
		return
	}
	if err := s.Prune(ctx); err != nil {
		logging.LogError(ctx, s.cfg.Logger, "prune", err)
	}
}

// Stop halts the loop and takes a final snapshot. It is safe to call twice; only the
// first call snapshots.
func (s *Snapshotter) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
		_, err = s.TakeSnapshot(ctx)
	})
	return err
}
