package provider

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// CostCalculator resolves model names to tiers and prices token usage.
// Rates may be replaced at runtime, e.g. on config reload.
type CostCalculator struct {
	mu    sync.RWMutex
	rates map[ModelTier]TierRate
	// ranked holds tiers from most to least expensive; rebuilt on every rate change.
	ranked []ModelTier
}

// NewCostCalculator creates a CostCalculator loaded with DefaultTierPricing.
func NewCostCalculator() *CostCalculator {
	c := &CostCalculator{rates: make(map[ModelTier]TierRate)}
	for _, r := range DefaultTierPricing() {
		c.rates[r.Tier] = r
	}
	c.rerank()
	return c
}

// SetRate overrides the rates of a tier.
func (c *CostCalculator) SetRate(tier ModelTier, input, output float64) error {
	if !tier.IsValid() {
		return fmt.Errorf("set rate: invalid model tier: %q", tier)
	}
	if input < 0 || output < 0 {
		return fmt.Errorf("set rate for %s: negative price", tier)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.rates[tier] = TierRate{Tier: tier, Input: input, Output: output}
	c.rerank()
	return nil
}

// Rate returns the current rate for a tier.
func (c *CostCalculator) Rate(tier ModelTier) (TierRate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.rates[tier]
	return r, ok
}

// Rates returns the pricing table ordered from most to least expensive.
func (c *CostCalculator) Rates() []TierRate {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]TierRate, 0, len(c.ranked))
	for _, t := range c.ranked {
		out = append(out, c.rates[t])
	}
	return out
}

// ResolveTier maps a model name to a tier. Matching is a case-insensitive substring test;
// the most expensive matching tier wins and unmatched names fall back to the cheapest tier.
func (c *CostCalculator) ResolveTier(model string) ModelTier {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resolveLocked(model)
}

func (c *CostCalculator) resolveLocked(model string) ModelTier {
	name := strings.ToLower(model)
	if name != "" {
		for _, t := range c.ranked {
			if strings.Contains(name, string(t)) {
				return t
			}
		}
	}
	return c.ranked[len(c.ranked)-1]
}

// Calculate prices an execution.
func (c *CostCalculator) Calculate(model string, inputTokens, outputTokens int) CostBreakdown {
	c.mu.RLock()
	rate := c.rates[c.resolveLocked(model)]
	c.mu.RUnlock()

	return CalculateCost(rate, model, inputTokens, outputTokens)
}

// CheapestTier returns the lowest-priced tier.
func (c *CostCalculator) CheapestTier() ModelTier {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ranked[len(c.ranked)-1]
}

func (c *CostCalculator) rerank() {
	ranked := make([]ModelTier, 0, len(c.rates))
	for t := range c.rates {
		ranked = append(ranked, t)
	}
	sort.Slice(ranked, func(i, j int) bool {
		ci, cj := c.rates[ranked[i]].Combined(), c.rates[ranked[j]].Combined()
		if ci != cj {
			return ci > cj
		}
		return ranked[i].Order() > ranked[j].Order()
	})
	c.ranked = ranked
}
