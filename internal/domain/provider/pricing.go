package provider

// TierRate is the price of a tier in USD per million tokens.
type TierRate struct {
	Tier   ModelTier `json:"tier" yaml:"tier"`
	Input  float64   `json:"input" yaml:"input"`
	Output float64   `json:"output" yaml:"output"`
}

// Combined returns input plus output price, used to rank tiers by cost.
func (r TierRate) Combined() float64 {
	return r.Input + r.Output
}

// DefaultTierPricing returns the built-in pricing table.
//
//	opus:   $15/MTok input, $75/MTok output
//	sonnet: $3/MTok input,  $15/MTok output
//	haiku:  $0.25/MTok input, $1.25/MTok output
func DefaultTierPricing() []TierRate {
	return []TierRate{
		{Tier: TierOpus, Input: 15.0, Output: 75.0},
		{Tier: TierSonnet, Input: 3.0, Output: 15.0},
		{Tier: TierHaiku, Input: 0.25, Output: 1.25},
	}
}
