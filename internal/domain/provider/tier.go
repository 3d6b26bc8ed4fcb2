// Package provider contains the model pricing domain: tiers, per-million rates and
// cost calculation.
package provider

import (
	"fmt"
	"strings"
)

// ModelTier identifies a pricing tier. Model names are resolved to a tier by substring.
type ModelTier string

const (
	// TierHaiku is the cheapest tier.
	TierHaiku ModelTier = "haiku"
	// TierSonnet is the mid tier.
	TierSonnet ModelTier = "sonnet"
	// TierOpus is the premium tier.
	TierOpus ModelTier = "opus"
)

// AllTiers lists the known tiers from cheapest to most expensive.
func AllTiers() []ModelTier {
	return []ModelTier{TierHaiku, TierSonnet, TierOpus}
}

// String returns the string representation of the tier.
func (t ModelTier) String() string {
	return string(t)
}

// IsValid returns true if the tier is a recognized value.
func (t ModelTier) IsValid() bool {
	switch t {
	case TierHaiku, TierSonnet, TierOpus:
		return true
	default:
		return false
	}
}

// Order returns the tier priority where lower values indicate cheaper tiers.
// Returns -1 for invalid tiers.
func (t ModelTier) Order() int {
	switch t {
	case TierHaiku:
		return 0
	case TierSonnet:
		return 1
	case TierOpus:
		return 2
	default:
		return -1
	}
}

// Downgrade returns the next cheaper tier. The cheapest tier returns itself.
func (t ModelTier) Downgrade() ModelTier {
	switch t {
	case TierOpus:
		return TierSonnet
	default:
		return TierHaiku
	}
}

// ParseModelTier parses a string into a ModelTier. The parsing is case-insensitive.
func ParseModelTier(s string) (ModelTier, error) {
	tier := ModelTier(strings.ToLower(strings.TrimSpace(s)))
	if !tier.IsValid() {
		return "", fmt.Errorf("invalid model tier: %q", s)
	}
	return tier, nil
}

// CompareTiers compares two tiers by their order.
// Returns -1 if a < b, 0 if equal, 1 if a > b.
func CompareTiers(a, b ModelTier) int {
	orderA, orderB := a.Order(), b.Order()
	switch {
	case orderA < orderB:
		return -1
	case orderA > orderB:
		return 1
	default:
		return 0
	}
}
