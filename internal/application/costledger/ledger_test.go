package costledger

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbctechsolutions/agentmon/internal/domain/alert"
	"github.com/jbctechsolutions/agentmon/internal/domain/cost"
	domainerrors "github.com/jbctechsolutions/agentmon/internal/domain/errors"
	"github.com/jbctechsolutions/agentmon/internal/domain/provider"
	"github.com/jbctechsolutions/agentmon/internal/infrastructure/logging"
	"github.com/jbctechsolutions/agentmon/internal/infrastructure/testutil"
)

var start = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func newTestLedger(t *testing.T, budgets map[string]float64) (*Ledger, *testutil.RecordingSink, *testutil.FakeClock) {
	t.Helper()
	sink := &testutil.RecordingSink{}
	clock := testutil.NewFakeClock(start)
	l := New(Config{
		Logger:  logging.Discard(),
		Sink:    sink,
		Now:     clock.Now,
		Budgets: budgets,
	})
	return l, sink, clock
}

func TestTrackCost_Pricing(t *testing.T) {
	l, _, _ := newTestLedger(t, nil)
	ctx := context.Background()

	t.Run("explicit tokens", func(t *testing.T) {
		res := l.TrackCost(ctx, cost.Input{Agent: "a", Department: "engineering", Model: "claude-opus", InputTokens: 1_000_000, OutputTokens: 1_000_000})
		assert.InDelta(t, 90.0, res.Cost, 1e-9)
	})

	t.Run("combined tokens split evenly", func(t *testing.T) {
		res := l.TrackCost(ctx, cost.Input{Agent: "b", Department: "engineering", Model: "sonnet", TokensUsed: 2_000_000})
		assert.InDelta(t, 18.0, res.Cost, 1e-9)
		assert.Equal(t, 1_000_000, res.Breakdown.InputTokens)
	})

	t.Run("missing model uses cheapest tier", func(t *testing.T) {
		res := l.TrackCost(ctx, cost.Input{Agent: "c", Department: "engineering", InputTokens: 1_000_000})
		assert.InDelta(t, 0.25, res.Cost, 1e-9)
		assert.Equal(t, provider.TierHaiku, res.Breakdown.Tier)
	})
}

func TestTrackCost_Accumulates(t *testing.T) {
	l, _, clock := newTestLedger(t, nil)
	ctx := context.Background()

	l.TrackCost(ctx, cost.Input{Agent: "writer", Department: "marketing", Model: "sonnet", InputTokens: 100_000})
	l.TrackCost(ctx, cost.Input{Agent: "writer", Department: "marketing", Model: "haiku", InputTokens: 100_000})
	clock.Advance(24 * time.Hour)
	res := l.TrackCost(ctx, cost.Input{Agent: "editor", Department: "marketing", Model: "sonnet", InputTokens: 100_000})

	assert.InDelta(t, 0.3, res.TotalCostToday, 1e-9)
	assert.InDelta(t, 0.625, res.TotalCostThisMonth, 1e-9)
	assert.InDelta(t, 0.625, res.DepartmentCost, 1e-9)
	assert.Equal(t, 1000.0, res.DepartmentBudget)

	all := l.GetAllCosts()
	writer := all.Agents["writer"]
	require.NotNil(t, writer)
	assert.Equal(t, int64(2), writer.Executions)
	assert.Equal(t, int64(200_000), writer.TotalInputTokens)
	assert.Equal(t, int64(1), writer.ModelUsage["sonnet"].Executions)
	assert.Equal(t, "marketing", writer.Department)

	assert.Equal(t, []string{"editor", "writer"}, all.Departments["marketing"].Agents)
	assert.Len(t, all.Daily, 2)
	assert.InDelta(t, 0.325, all.Daily["2026-03-14"].ByAgent["writer"], 1e-9)
	assert.InDelta(t, 0.3, all.Daily["2026-03-15"].ByDepartment["marketing"], 1e-9)
	assert.Equal(t, int64(3), all.Monthly["2026-03"].Executions)
	assert.Contains(t, all.Weekly, cost.WeekKey(start))
}

func TestGetAllCosts_IsCopy(t *testing.T) {
	l, _, _ := newTestLedger(t, nil)
	l.TrackCost(context.Background(), cost.Input{Agent: "a", Department: "d", Model: "opus", InputTokens: 10})

	snap := l.GetAllCosts()
	snap.Agents["a"].TotalCost = 1e9
	snap.Departments["d"].Agents[0] = "mutated"

	again := l.GetAllCosts()
	assert.Less(t, again.Agents["a"].TotalCost, 1.0)
	assert.Equal(t, "a", again.Departments["d"].Agents[0])
}

func TestGetDepartmentMonthlyCost(t *testing.T) {
	l, _, clock := newTestLedger(t, nil)
	ctx := context.Background()

	l.TrackCost(ctx, cost.Input{Agent: "a", Department: "research", Model: "opus", InputTokens: 1_000_000})
	clock.Set(time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC))
	l.TrackCost(ctx, cost.Input{Agent: "b", Department: "research", Model: "opus", InputTokens: 2_000_000})
	l.TrackCost(ctx, cost.Input{Agent: "c", Department: "sales", Model: "opus", InputTokens: 1_000_000})

	assert.InDelta(t, 15.0, l.GetDepartmentMonthlyCost("research", "2026-03"), 1e-9)
	assert.InDelta(t, 30.0, l.GetDepartmentMonthlyCost("research", "2026-04"), 1e-9)
	assert.InDelta(t, 30.0, l.GetDepartmentMonthlyCost("research", ""), 1e-9)
	assert.Zero(t, l.GetDepartmentMonthlyCost("unknown", "2026-04"))
}

func TestBudgetAlerts_OncePerCrossing(t *testing.T) {
	l, sink, _ := newTestLedger(t, map[string]float64{"ops": 100})
	ctx := context.Background()

	// sonnet input: $3 per million tokens, so 1M tokens = $3.
	track := func(dollars float64) {
		l.TrackCost(ctx, cost.Input{Agent: "bot", Department: "ops", Model: "sonnet", InputTokens: int(dollars / 3 * 1_000_000)})
	}

	track(60)
	assert.Empty(t, sink.Candidates())

	track(18) // 78%
	require.Len(t, sink.Candidates(), 1)
	assert.Equal(t, alert.LevelInfo, sink.Candidates()[0].Level)

	track(3) // 81%, no new crossing
	assert.Len(t, sink.Candidates(), 1)

	track(9.6) // 90.6%
	require.Len(t, sink.Candidates(), 2)
	assert.Equal(t, alert.LevelWarning, sink.Candidates()[1].Level)

	track(12) // 102.6%
	require.Len(t, sink.Candidates(), 3)
	crit := sink.Candidates()[2]
	assert.Equal(t, alert.LevelCritical, crit.Level)
	assert.Equal(t, alert.TypeBudget, crit.Type)
	assert.Equal(t, "ops", crit.Data["department"])

	track(30)
	track(30)
	assert.Len(t, sink.OfType(alert.TypeBudget), 3)
}

func TestBudgetAlerts_JumpStraightToCritical(t *testing.T) {
	l, sink, _ := newTestLedger(t, map[string]float64{"ops": 100})

	l.TrackCost(context.Background(), cost.Input{Agent: "bot", Department: "ops", Model: "opus", InputTokens: 10_000_000})

	require.Len(t, sink.Candidates(), 1)
	assert.Equal(t, alert.LevelCritical, sink.Candidates()[0].Level)
}

func TestBudgetAlerts_NewMonthResets(t *testing.T) {
	l, sink, clock := newTestLedger(t, map[string]float64{"ops": 10})
	ctx := context.Background()
	in := cost.Input{Agent: "bot", Department: "ops", Model: "opus", InputTokens: 1_000_000}

	l.TrackCost(ctx, in)
	l.TrackCost(ctx, in)
	clock.Set(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	l.TrackCost(ctx, in)

	crit := 0
	for _, c := range sink.Candidates() {
		if c.Level == alert.LevelCritical {
			crit++
		}
	}
	assert.Equal(t, 2, crit)
}

func TestBudgetAlerts_ZeroBudget(t *testing.T) {
	l, sink, _ := newTestLedger(t, map[string]float64{"free": 0})

	res := l.TrackCost(context.Background(), cost.Input{Agent: "bot", Department: "free", Model: "haiku"})

	assert.Zero(t, res.Cost)
	require.Len(t, sink.Candidates(), 1)
	c := sink.Candidates()[0]
	assert.Equal(t, alert.LevelCritical, c.Level)
	assert.NotContains(t, c.Data, "percentUsed")

	// The alert payload must stay encodable for persistence.
	_, err := json.Marshal(c.Data)
	assert.NoError(t, err)
}

func TestSetDepartmentBudget(t *testing.T) {
	l, sink, _ := newTestLedger(t, map[string]float64{"ops": 10})
	ctx := context.Background()
	in := cost.Input{Agent: "bot", Department: "ops", Model: "opus", InputTokens: 1_000_000}

	l.TrackCost(ctx, in)
	require.Len(t, sink.Candidates(), 1)

	require.NoError(t, l.SetDepartmentBudget("ops", 1000))
	assert.Equal(t, 1000.0, l.DepartmentBudget("ops"))

	require.NoError(t, l.SetDepartmentBudget("ops", 20))
	l.TrackCost(ctx, in)
	assert.Len(t, sink.Candidates(), 2)

	err := l.SetDepartmentBudget("ops", math.NaN())
	assert.ErrorIs(t, err, domainerrors.ErrInvalidBudget)
}

func TestDefaultBudgets(t *testing.T) {
	l, _, _ := newTestLedger(t, nil)
	assert.Equal(t, 5000.0, l.DepartmentBudget("engineering"))
	assert.Equal(t, cost.DefaultMonthlyBudget, l.DepartmentBudget("legal"))
}

func TestGetCostOptimizations(t *testing.T) {
	l, _, _ := newTestLedger(t, map[string]float64{"eng": 1e9})
	ctx := context.Background()

	for i := 0; i < 101; i++ {
		// premium heavy agent
		l.TrackCost(ctx, cost.Input{Agent: "architect", Department: "eng", Model: "claude-opus", InputTokens: 100_000})
		// cheap tasks on the mid tier: 1000 tokens on sonnet is $0.003
		l.TrackCost(ctx, cost.Input{Agent: "linter", Department: "eng", Model: "claude-sonnet", InputTokens: 1000})
		// expensive mid-tier tasks do not qualify
		l.TrackCost(ctx, cost.Input{Agent: "reviewer", Department: "eng", Model: "claude-sonnet", InputTokens: 1_000_000})
	}
	for i := 0; i < 50; i++ {
		l.TrackCost(ctx, cost.Input{Agent: "rare", Department: "eng", Model: "opus", InputTokens: 1_000_000})
	}

	opts := l.GetCostOptimizations()
	require.Len(t, opts, 2)

	assert.Equal(t, "architect", opts[0].Agent)
	assert.Equal(t, provider.TierOpus, opts[0].CurrentTier)
	assert.Equal(t, provider.TierSonnet, opts[0].SuggestedTier)
	assert.InDelta(t, opts[0].CurrentCost*0.8, opts[0].EstimatedSavings, 1e-9)

	assert.Equal(t, "linter", opts[1].Agent)
	assert.Equal(t, provider.TierHaiku, opts[1].SuggestedTier)
	assert.InDelta(t, opts[1].CurrentCost*0.7, opts[1].EstimatedSavings, 1e-9)

	assert.GreaterOrEqual(t, opts[0].EstimatedSavings, opts[1].EstimatedSavings)
}

func TestSnapshotRestore(t *testing.T) {
	l, sink, _ := newTestLedger(t, map[string]float64{"ops": 10})
	ctx := context.Background()
	l.TrackCost(ctx, cost.Input{Agent: "bot", Department: "ops", Model: "opus", InputTokens: 1_000_000})
	require.Len(t, sink.Candidates(), 1)

	data, err := json.Marshal(l.Snapshot())
	require.NoError(t, err)

	var state cost.State
	require.NoError(t, json.Unmarshal(data, &state))

	restored, restoredSink, _ := newTestLedger(t, map[string]float64{"ops": 10})
	restored.Restore(state)

	assert.Equal(t, l.GetAllCosts().Agents["bot"].TotalCost, restored.GetAllCosts().Agents["bot"].TotalCost)
	assert.InDelta(t, 15.0, restored.GetDepartmentMonthlyCost("ops", "2026-03"), 1e-9)

	// Crossing state survives, so the same month does not re-alert.
	restored.TrackCost(ctx, cost.Input{Agent: "bot", Department: "ops", Model: "opus", InputTokens: 1_000_000})
	assert.Empty(t, restoredSink.Candidates())
}

func TestTrackCost_Concurrent(t *testing.T) {
	l, _, _ := newTestLedger(t, map[string]float64{"eng": 1e9})
	ctx := context.Background()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				l.TrackCost(ctx, cost.Input{Agent: fmt.Sprintf("agent-%d", i%3), Department: "eng", Model: "haiku", TokensUsed: 10})
				l.GetDepartmentMonthlyCost("eng", "")
			}
		}(i)
	}
	wg.Wait()

	var total int64
	for _, a := range l.GetAllCosts().Agents {
		total += a.Executions
	}
	assert.Equal(t, int64(1000), total)
}
