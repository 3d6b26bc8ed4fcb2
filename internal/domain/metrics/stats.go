package metrics

// WindowStats summarizes an arbitrary sequence of records.
type WindowStats struct {
	Count          int     `json:"count"`
	Errors         int     `json:"errors"`
	ErrorRate      float64 `json:"errorRate"`
	MeanDurationMs float64 `json:"meanDurationMs"`
	TotalCost      float64 `json:"totalCost"`
	TotalTokens    int64   `json:"totalTokens"`
}

// ComputeWindowStats returns the statistics of records; all fields are zero for empty input.
func ComputeWindowStats(records []ExecutionRecord) WindowStats {
	var stats WindowStats
	if len(records) == 0 {
		return stats
	}

	var totalDuration int64
	for _, r := range records {
		if r.Status.IsFailure() {
			stats.Errors++
		}
		totalDuration += r.DurationMs
		stats.TotalCost += r.Cost
		stats.TotalTokens += int64(r.TokensUsed)
	}

	stats.Count = len(records)
	stats.ErrorRate = float64(stats.Errors) / float64(stats.Count)
	stats.MeanDurationMs = float64(totalDuration) / float64(stats.Count)
	return stats
}

// GroupByAgent splits system-window records by their agent tag and summarizes each group.
func GroupByAgent(records []ExecutionRecord) map[string]WindowStats {
	groups := make(map[string][]ExecutionRecord)
	for _, r := range records {
		groups[r.Agent] = append(groups[r.Agent], r)
	}

	out := make(map[string]WindowStats, len(groups))
	for agent, rs := range groups {
		out[agent] = ComputeWindowStats(rs)
	}
	return out
}
