package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbctechsolutions/agentmon/internal/application/aggregator"
	"github.com/jbctechsolutions/agentmon/internal/application/alerting"
	"github.com/jbctechsolutions/agentmon/internal/application/costledger"
	"github.com/jbctechsolutions/agentmon/internal/domain/alert"
	"github.com/jbctechsolutions/agentmon/internal/domain/cost"
	domainerrors "github.com/jbctechsolutions/agentmon/internal/domain/errors"
	"github.com/jbctechsolutions/agentmon/internal/domain/metrics"
	"github.com/jbctechsolutions/agentmon/internal/infrastructure/logging"
	"github.com/jbctechsolutions/agentmon/internal/infrastructure/testutil"
)

var start = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

type stack struct {
	alerts *alerting.Manager
	ledger *costledger.Ledger
	agg    *aggregator.Aggregator
	snap   *Snapshotter
	store  *testutil.MemoryStore
	clock  *testutil.FakeClock
}

func newStack(t *testing.T, store *testutil.MemoryStore, clock *testutil.FakeClock) *stack {
	t.Helper()
	logger := logging.Discard()

	alerts := alerting.NewManager(alerting.Config{Logger: logger, AlertLog: store, Now: clock.Now})
	t.Cleanup(alerts.Stop)
	ledger := costledger.New(costledger.Config{Logger: logger, Sink: alerts, Now: clock.Now})
	agg := aggregator.New(aggregator.Config{Logger: logger, Sink: alerts, Now: clock.Now})

	snap := New(Config{
		Logger:  logger,
		Store:   store,
		Now:     clock.Now,
		Metrics: agg,
		Costs:   ledger,
		Alerts:  alerts,
	})
	return &stack{alerts: alerts, ledger: ledger, agg: agg, snap: snap, store: store, clock: clock}
}

func TestSnapshotAndRestore(t *testing.T) {
	store := testutil.NewMemoryStore()
	clock := testutil.NewFakeClock(start)
	ctx := context.Background()

	s := newStack(t, store, clock)
	s.agg.TrackExecution(ctx, "writer", metrics.ExecutionInput{Duration: time.Second, Cost: 2})
	s.ledger.TrackCost(ctx, cost.Input{Agent: "writer", Department: "marketing", Model: "sonnet", TokensUsed: 1000})
	first, _ := s.alerts.AddAlert(ctx, alert.Candidate{Level: alert.LevelWarning, Type: alert.TypeLatency, Message: "slow"})

	taken, err := s.snap.TakeSnapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, taken.Alerts, 1)
	assert.Equal(t, 1, store.SnapshotCount())

	// An alert logged after the snapshot is replayed from the log.
	clock.Advance(time.Minute)
	late, _ := s.alerts.AddAlert(ctx, alert.Candidate{Level: alert.LevelInfo, Message: "late"})
	s.alerts.Stop()

	clock.Advance(10 * time.Minute)
	r := newStack(t, store, clock)
	found, err := r.snap.Restore(ctx)
	require.NoError(t, err)
	require.True(t, found)

	m, ok := r.agg.GetAgentMetrics("writer")
	require.True(t, ok)
	assert.EqualValues(t, 1, m.Executions)

	c, ok := r.ledger.GetAgentCost("writer")
	require.True(t, ok)
	assert.Equal(t, "marketing", c.Department)

	restored := r.alerts.GetAlerts(alert.Filter{})
	require.Len(t, restored, 2)
	assert.Equal(t, late.ID, restored[0].ID)
	assert.Equal(t, first.ID, restored[1].ID)
	assert.Equal(t, 1, r.alerts.PendingEscalations())
}

func TestRestore_SnapshotAcknowledgementWins(t *testing.T) {
	store := testutil.NewMemoryStore()
	clock := testutil.NewFakeClock(start)
	ctx := context.Background()

	s := newStack(t, store, clock)
	a, _ := s.alerts.AddAlert(ctx, alert.Candidate{Level: alert.LevelWarning, Message: "disk"})
	s.alerts.Stop()
	require.True(t, s.alerts.AcknowledgeAlert(a.ID))

	// The log still holds the unacknowledged copy.
	_, err := s.snap.TakeSnapshot(ctx)
	require.NoError(t, err)

	r := newStack(t, store, clock)
	_, err = r.snap.Restore(ctx)
	require.NoError(t, err)

	got, ok := r.alerts.GetAlert(a.ID)
	require.True(t, ok)
	assert.True(t, got.Acknowledged)
	assert.Zero(t, r.alerts.PendingEscalations())
}

func TestRestore_NoSnapshot(t *testing.T) {
	store := testutil.NewMemoryStore()
	clock := testutil.NewFakeClock(start)
	ctx := context.Background()

	require.NoError(t, store.AppendAlert(ctx, alert.Alert{ID: "old", Timestamp: start.Add(-40 * 24 * time.Hour), Level: alert.LevelInfo}))
	require.NoError(t, store.AppendAlert(ctx, alert.Alert{ID: "recent", Timestamp: start.Add(-time.Hour), Level: alert.LevelInfo}))

	r := newStack(t, store, clock)
	found, err := r.snap.Restore(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	restored := r.alerts.GetAlerts(alert.Filter{})
	require.Len(t, restored, 1)
	assert.Equal(t, "recent", restored[0].ID)
}

func TestTakeSnapshot_StoreError(t *testing.T) {
	store := testutil.NewMemoryStore()
	store.SaveErr = errors.New("disk full")
	s := newStack(t, store, testutil.NewFakeClock(start))

	_, err := s.snap.TakeSnapshot(context.Background())
	require.Error(t, err)
	assert.Equal(t, domainerrors.CodeStorage, domainerrors.CodeOf(err))
}

func TestPrune(t *testing.T) {
	store := testutil.NewMemoryStore()
	clock := testutil.NewFakeClock(start)
	ctx := context.Background()

	require.NoError(t, store.AppendAlert(ctx, alert.Alert{ID: "expired", Timestamp: start.Add(-31 * 24 * time.Hour)}))
	require.NoError(t, store.AppendAlert(ctx, alert.Alert{ID: "kept", Timestamp: start.Add(-29 * 24 * time.Hour)}))

	s := newStack(t, store, clock)
	s.snap.cfg.KeepSnapshots = 2
	for i := 0; i < 5; i++ {
		_, err := s.snap.TakeSnapshot(ctx)
		require.NoError(t, err)
	}

	require.NoError(t, s.snap.Prune(ctx))
	assert.Equal(t, 2, store.SnapshotCount())

	left, err := store.AlertsSince(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "kept", left[0].ID)
}

func TestStartStop_FinalSnapshot(t *testing.T) {
	store := testutil.NewMemoryStore()
	s := newStack(t, store, testutil.NewFakeClock(start))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.snap.Start(ctx)
	require.NoError(t, s.snap.Stop(ctx))
	require.NoError(t, s.snap.Stop(ctx))
	assert.Equal(t, 1, store.SnapshotCount())
}

func TestNew_Defaults(t *testing.T) {
	s := New(Config{Store: testutil.NewMemoryStore()})
	assert.Equal(t, DefaultInterval, s.cfg.Interval)
	assert.Equal(t, DefaultKeepSnapshots, s.cfg.KeepSnapshots)
	assert.Equal(t, DefaultAlertRetention, s.cfg.AlertRetention)
}
