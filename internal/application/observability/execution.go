package observability

import (
	"context"
	"sync"
	"time"

	"github.com/jbctechsolutions/agentmon/internal/application/ports"
	"github.com/jbctechsolutions/agentmon/internal/domain/alert"
	"github.com/jbctechsolutions/agentmon/internal/domain/cost"
	"github.com/jbctechsolutions/agentmon/internal/domain/metrics"
	"github.com/jbctechsolutions/agentmon/internal/infrastructure/logging"
	"github.com/jbctechsolutions/agentmon/internal/infrastructure/tokenizer"
	"github.com/jbctechsolutions/agentmon/internal/infrastructure/tracing"
)

// Execution is one in-flight execution. It ends exactly once.
type Execution struct {
	id       string
	monitor  *Monitor
	start    time.Time
	baseline ports.ResourceSample
	span     *tracing.ExecutionSpan

	// Set by Record, where timing was measured by the caller.
	fixedDuration time.Duration
	skipResources bool

	endOnce sync.Once
}

// ID returns the execution ID.
func (e *Execution) ID() string { return e.id }

// StartedAt returns when the execution began.
func (e *Execution) StartedAt() time.Time { return e.start }

func (e *Execution) claim() bool {
	claimed := false
	e.endOnce.Do(func() { claimed = true })
	return claimed
}

func (e *Execution) abandon() bool {
	if !e.claim() {
		return false
	}
	e.span.EndWithError("abandoned", nil)
	return true
}

// End finishes the execution and records it. A second End logs a warning and returns nil.
func (e *Execution) End(ctx context.Context, status metrics.Status, usage Usage) *ExecutionReport {
	m := e.monitor
	if !e.claim() {
		m.cfg.Logger.WarnContext(ctx, "execution already ended",
			"agent_name", m.agent,
			"execution_id", e.id,
		)
		return nil
	}

	if status == "" {
		status = metrics.StatusCompleted
	}
	ctx = logging.WithExecutionID(ctx, e.id)

	now := m.cfg.Now()
	duration := now.Sub(e.start)
	if e.fixedDuration > 0 {
		duration = e.fixedDuration
	}
	if duration < 0 {
		duration = 0
	}

	var cpu time.Duration
	var memDelta int64
	if m.cfg.Sampler != nil && !e.skipResources {
		sample := m.cfg.Sampler.Sample()
		cpu = time.Duration(sample.CPUTimeMs-e.baseline.CPUTimeMs) * time.Millisecond
		memDelta = sample.HeapBytes - e.baseline.HeapBytes
	}

	input, output := e.resolveTokens(usage)

	report := &ExecutionReport{
		ExecutionID: e.id,
		Agent:       m.agent,
		Department:  m.department,
		Status:      status,
		StartedAt:   e.start,
		Duration:    duration,
		CPUTime:     cpu,
		MemoryDelta: memDelta,
	}

	if m.cfg.Ledger != nil {
		report.Cost = m.cfg.Ledger.TrackCost(ctx, cost.Input{
			Agent:        m.agent,
			Department:   m.department,
			Model:        usage.Model,
			InputTokens:  input,
			OutputTokens: output,
			TokensUsed:   usage.TokensUsed,
		})
	}

	tokens := report.Cost.Breakdown.InputTokens + report.Cost.Breakdown.OutputTokens
	if m.cfg.Ledger == nil {
		tokens = input + output
		if tokens == 0 {
			tokens = usage.TokensUsed
		}
	}

	if m.cfg.Aggregator != nil {
		report.Metrics = m.cfg.Aggregator.TrackExecution(ctx, m.agent, metrics.ExecutionInput{
			Duration:    duration,
			Status:      status,
			TokensUsed:  tokens,
			Model:       usage.Model,
			Cost:        report.Cost.Cost,
			CPUTime:     cpu,
			MemoryDelta: memDelta,
			APICalls:    usage.APICalls,
		})
	}

	if status.IsFailure() && m.cfg.Alerts != nil {
		c := m.failureAlert(report, usage)
		m.cfg.Alerts.AddAlerts(ctx, []alert.Candidate{c})
	}

	e.span.SetUsage(usage.Model, report.Cost.Breakdown.InputTokens, report.Cost.Breakdown.OutputTokens)
	e.span.SetCost(report.Cost.Cost, report.Cost.DepartmentCost)
	e.span.SetResources(cpu.Milliseconds(), memDelta)
	if status.IsFailure() {
		e.span.EndWithError(string(status), usage.Err)
	} else {
		e.span.End(string(status))
	}

	logging.LogExecutionEnd(ctx, m.cfg.Logger, m.agent, string(status), duration, tokens, report.Cost.Cost)
	return report
}

// resolveTokens returns explicit counts, or counts estimated from text when the usage
// carries neither explicit nor combined counts. A combined total is left to the ledger.
func (e *Execution) resolveTokens(usage Usage) (input, output int) {
	if usage.InputTokens > 0 || usage.OutputTokens > 0 {
		return usage.InputTokens, usage.OutputTokens
	}
	if usage.TokensUsed > 0 {
		return 0, 0
	}
	if usage.Prompt == "" && usage.Completion == "" {
		return 0, 0
	}
	return tokenizer.EstimateUsage(e.monitor.cfg.Estimator, usage.Prompt, usage.Completion)
}
