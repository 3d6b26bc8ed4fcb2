package cost

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jbctechsolutions/agentmon/internal/domain/provider"
)

func TestInput_Tokens(t *testing.T) {
	in, out := Input{TokensUsed: 1001}.Tokens()
	assert.Equal(t, 500, in)
	assert.Equal(t, 501, out)

	in, out = Input{InputTokens: 10, OutputTokens: 20, TokensUsed: 999}.Tokens()
	assert.Equal(t, 10, in)
	assert.Equal(t, 20, out)
}

func TestBucketKeys(t *testing.T) {
	tests := []struct {
		name  string
		at    time.Time
		day   string
		week  string
		month string
	}{
		{"mid year", time.Date(2026, 7, 15, 10, 0, 0, 0, time.UTC), "2026-07-15", "2026-W29", "2026-07"},
		{"iso week belongs to previous year", time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), "2027-01-01", "2026-W53", "2027-01"},
		{"first week", time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), "2026-01-05", "2026-W02", "2026-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.day, DayKey(tt.at))
			assert.Equal(t, tt.week, WeekKey(tt.at))
			assert.Equal(t, tt.month, MonthKey(tt.at))
			assert.True(t, InMonth(tt.day, tt.month))
		})
	}
}

func TestAgentCost_Add(t *testing.T) {
	a := NewAgentCost("writer", "marketing")
	at := time.Now()

	a.Add(provider.CostBreakdown{Model: "sonnet", InputTokens: 10, OutputTokens: 20, TotalCost: 1.5}, at)
	a.Add(provider.CostBreakdown{Model: "sonnet", InputTokens: 5, OutputTokens: 5, TotalCost: 0.5}, at)
	a.Add(provider.CostBreakdown{Model: "opus", TotalCost: 2}, at)

	assert.Equal(t, int64(3), a.Executions)
	assert.InDelta(t, 4.0, a.TotalCost, 1e-9)
	assert.Equal(t, int64(15), a.TotalInputTokens)
	assert.Equal(t, ModelUsage{Cost: 2.0, Executions: 2}, a.ModelUsage["sonnet"])
	assert.InDelta(t, 4.0/3, a.AvgCost(), 1e-9)

	clone := a.Clone()
	clone.ModelUsage["opus"] = ModelUsage{}
	assert.Equal(t, 2.0, a.ModelUsage["opus"].Cost)
}

func TestDepartment_AddAgent(t *testing.T) {
	d := &Department{Name: "eng"}
	for _, n := range []string{"b", "a", "c", "a", "b"} {
		d.AddAgent(n)
	}
	assert.Equal(t, []string{"a", "b", "c"}, d.Agents)
}

func TestSortOptimizations(t *testing.T) {
	opts := []Optimization{{Agent: "a", EstimatedSavings: 1}, {Agent: "b", EstimatedSavings: 5}, {Agent: "c", EstimatedSavings: 3}}
	SortOptimizations(opts)
	assert.Equal(t, "b", opts[0].Agent)
	assert.Equal(t, "a", opts[2].Agent)

	tied := []Optimization{{Agent: "zeta", EstimatedSavings: 2}, {Agent: "alpha", EstimatedSavings: 2}}
	SortOptimizations(tied)
	assert.Equal(t, "alpha", tied[0].Agent)
}
