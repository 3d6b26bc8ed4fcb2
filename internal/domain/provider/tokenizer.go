package provider

// TokenEstimator provides token count estimation for text content.
// It lets the execution wrapper price runs that report text instead of token counts.
type TokenEstimator interface {
	// CountTokens returns the estimated token count for the given text.
	CountTokens(text string) int
}
