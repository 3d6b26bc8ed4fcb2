package ports

import (
	"context"

	"github.com/jbctechsolutions/agentmon/internal/domain/cost"
	"github.com/jbctechsolutions/agentmon/internal/domain/metrics"
)

// CostTracker prices and records the token usage of one execution.
type CostTracker interface {
	TrackCost(ctx context.Context, in cost.Input) cost.Result
}

// ExecutionTracker records one execution into rolling windows and lifetime counters.
type ExecutionTracker interface {
	TrackExecution(ctx context.Context, agent string, in metrics.ExecutionInput) metrics.AgentMetrics
}
