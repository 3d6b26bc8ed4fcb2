package provider

// tokensPerMillion is the pricing unit.
const tokensPerMillion = 1_000_000.0

// CostBreakdown represents the cost of a single execution.
type CostBreakdown struct {
	Model        string    `json:"model"`
	Tier         ModelTier `json:"tier"`
	InputTokens  int       `json:"inputTokens"`
	OutputTokens int       `json:"outputTokens"`
	InputCost    float64   `json:"inputCost"`
	OutputCost   float64   `json:"outputCost"`
	TotalCost    float64   `json:"totalCost"`
}

// CalculateCost prices token counts against a tier rate.
func CalculateCost(rate TierRate, model string, inputTokens, outputTokens int) CostBreakdown {
	inputCost := float64(inputTokens) / tokensPerMillion * rate.Input
	outputCost := float64(outputTokens) / tokensPerMillion * rate.Output

	return CostBreakdown{
		Model:        model,
		Tier:         rate.Tier,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		InputCost:    inputCost,
		OutputCost:   outputCost,
		TotalCost:    inputCost + outputCost,
	}
}

// SplitTokens divides a combined token count evenly into input and output.
// Input receives the floor half, output the remainder.
func SplitTokens(total int) (input, output int) {
	if total <= 0 {
		return 0, 0
	}
	input = total / 2
	return input, total - input
}
