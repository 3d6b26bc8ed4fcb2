package provider

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTier(t *testing.T) {
	calc := NewCostCalculator()

	tests := []struct {
		model string
		want  ModelTier
	}{
		{"claude-3-opus-20240229", TierOpus},
		{"Claude-OPUS-4", TierOpus},
		{"claude-sonnet-4", TierSonnet},
		{"claude-3-haiku", TierHaiku},
		{"opus-distilled-into-haiku", TierOpus},
		{"sonnet-haiku-blend", TierSonnet},
		{"gpt-4o", TierHaiku},
		{"", TierHaiku},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, calc.ResolveTier(tt.model))
		})
	}
}

func TestCalculate(t *testing.T) {
	calc := NewCostCalculator()

	t.Run("opus million and million", func(t *testing.T) {
		b := calc.Calculate("opus", 1_000_000, 1_000_000)
		assert.InDelta(t, 90.0, b.TotalCost, 1e-9)
		assert.InDelta(t, 15.0, b.InputCost, 1e-9)
		assert.InDelta(t, 75.0, b.OutputCost, 1e-9)
		assert.Equal(t, TierOpus, b.Tier)
	})

	t.Run("unknown model priced as haiku", func(t *testing.T) {
		b := calc.Calculate("mystery", 2_000_000, 0)
		assert.InDelta(t, 0.5, b.TotalCost, 1e-9)
	})

	t.Run("zero tokens", func(t *testing.T) {
		assert.Zero(t, calc.Calculate("sonnet", 0, 0).TotalCost)
	})
}

func TestSetRate(t *testing.T) {
	calc := NewCostCalculator()

	require.NoError(t, calc.SetRate(TierSonnet, 6, 30))
	rate, ok := calc.Rate(TierSonnet)
	require.True(t, ok)
	assert.Equal(t, 36.0, rate.Combined())

	assert.Error(t, calc.SetRate(ModelTier("gpt"), 1, 1))
	assert.Error(t, calc.SetRate(TierHaiku, -1, 1))
}

func TestSetRateReranks(t *testing.T) {
	calc := NewCostCalculator()

	// Make haiku the most expensive tier; it should now win substring ties.
	require.NoError(t, calc.SetRate(TierHaiku, 100, 100))

	assert.Equal(t, TierHaiku, calc.ResolveTier("opus-haiku"))
	assert.Equal(t, TierSonnet, calc.CheapestTier())
	assert.Equal(t, TierHaiku, calc.Rates()[0].Tier)
}

func TestSplitTokens(t *testing.T) {
	tests := []struct {
		total   int
		in, out int
	}{
		{1000, 500, 500},
		{1001, 500, 501},
		{0, 0, 0},
		{-5, 0, 0},
	}

	for _, tt := range tests {
		in, out := SplitTokens(tt.total)
		assert.Equal(t, tt.in, in)
		assert.Equal(t, tt.out, out)
	}
}

func TestTierOrdering(t *testing.T) {
	assert.Equal(t, TierSonnet, TierOpus.Downgrade())
	assert.Equal(t, TierHaiku, TierSonnet.Downgrade())
	assert.Equal(t, TierHaiku, TierHaiku.Downgrade())
	assert.Equal(t, -1, CompareTiers(TierHaiku, TierOpus))
	assert.Equal(t, 0, CompareTiers(TierSonnet, TierSonnet))
	assert.Equal(t, -1, ModelTier("bogus").Order())

	tier, err := ParseModelTier(" Opus ")
	require.NoError(t, err)
	assert.Equal(t, TierOpus, tier)

	_, err = ParseModelTier("gpt")
	assert.Error(t, err)
}

func TestCostCalculator_Concurrent(t *testing.T) {
	calc := NewCostCalculator()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = calc.SetRate(TierSonnet, 3, 15)
		}()
		go func() {
			defer wg.Done()
			_ = calc.Calculate("sonnet", 100, 100)
		}()
	}
	wg.Wait()
}
