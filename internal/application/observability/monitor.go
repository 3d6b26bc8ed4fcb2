// Package observability wraps agent executions: it times them, samples process
// resources, prices token usage, and feeds the cost ledger, the metrics aggregator and
// the alert manager.
package observability

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jbctechsolutions/agentmon/internal/application/ports"
	"github.com/jbctechsolutions/agentmon/internal/domain/alert"
	"github.com/jbctechsolutions/agentmon/internal/domain/cost"
	domainerrors "github.com/jbctechsolutions/agentmon/internal/domain/errors"
	"github.com/jbctechsolutions/agentmon/internal/domain/metrics"
	"github.com/jbctechsolutions/agentmon/internal/domain/provider"
	"github.com/jbctechsolutions/agentmon/internal/infrastructure/logging"
	"github.com/jbctechsolutions/agentmon/internal/infrastructure/tokenizer"
	"github.com/jbctechsolutions/agentmon/internal/infrastructure/tracing"
)

// DefaultDepartment is used for monitors created without a department.
const DefaultDepartment = "default"

// Config holds the collaborators shared by every monitor.
type Config struct {
	Logger     *logging.Logger
	Tracer     *tracing.Tracer
	Ledger     ports.CostTracker
	Aggregator ports.ExecutionTracker
	Alerts     ports.AlertSink
	Sampler    ports.ResourceSampler
	Estimator  provider.TokenEstimator
	Now        func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = logging.Default()
	}
	if c.Tracer == nil {
		c.Tracer = tracing.Default()
	}
	if c.Estimator == nil {
		c.Estimator = tokenizer.SimpleEstimator{}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Usage is what an execution reports when it ends. Token counts resolve in order:
// explicit input/output, then the combined TokensUsed, then an estimate from the
// prompt and completion text.
type Usage struct {
	Model        string
	InputTokens  int
	OutputTokens int
	TokensUsed   int
	Prompt       string
	Completion   string
	APICalls     int

	// Err and Stack describe a failed execution.
	Err   error
	Stack string
}

// UsageReporter may be implemented by results returned from Execute work to report
// their token usage.
type UsageReporter interface {
	ExecutionUsage() Usage
}

// ExecutionReport is the outcome of one tracked execution.
type ExecutionReport struct {
	ExecutionID string               `json:"executionId"`
	Agent       string               `json:"agent"`
	Department  string               `json:"department"`
	Status      metrics.Status       `json:"status"`
	StartedAt   time.Time            `json:"startedAt"`
	Duration    time.Duration        `json:"duration"`
	CPUTime     time.Duration        `json:"cpuTime"`
	MemoryDelta int64                `json:"memoryDelta"`
	Cost        cost.Result          `json:"cost"`
	Metrics     metrics.AgentMetrics `json:"metrics"`
}

// ExecutionResult is the uniform outcome of Execute.
type ExecutionResult struct {
	Success bool             `json:"success"`
	Result  any              `json:"result,omitempty"`
	Error   error            `json:"-"`
	Metrics *ExecutionReport `json:"metrics,omitempty"`
}

// Monitor binds one agent name and department to the telemetry components.
// Begin hands out independent executions; StartExecution and EndExecution track a
// single in-flight execution for callers that run one at a time.
type Monitor struct {
	agent      string
	department string
	cfg        Config

	mu      sync.Mutex
	current *Execution
}

// NewMonitor creates a monitor for agent. An empty department becomes "default".
func NewMonitor(agent, department string, cfg Config) *Monitor {
	if department == "" {
		department = DefaultDepartment
	}
	return &Monitor{
		agent:      agent,
		department: department,
		cfg:        cfg.withDefaults(),
	}
}

// Agent returns the agent name.
func (m *Monitor) Agent() string { return m.agent }

// Department returns the department the agent's spend is attributed to.
func (m *Monitor) Department() string { return m.department }

// Begin starts an independent execution.
func (m *Monitor) Begin(ctx context.Context) (context.Context, *Execution) {
	id := uuid.NewString()
	ctx = logging.WithExecutionID(ctx, id)
	ctx = logging.WithAgent(ctx, m.agent)
	ctx = logging.WithDepartment(ctx, m.department)
	if logging.CorrelationID(ctx) == "" {
		ctx = logging.WithCorrelationID(ctx, id)
	}

	logging.LogExecutionStart(ctx, m.cfg.Logger, m.agent)
	ctx, span := m.cfg.Tracer.StartExecutionSpan(ctx, id, m.agent, m.department)

	e := &Execution{
		id:      id,
		monitor: m,
		start:   m.cfg.Now(),
		span:    span,
	}
	if m.cfg.Sampler != nil {
		e.baseline = m.cfg.Sampler.Sample()
	}
	return ctx, e
}

// StartExecution starts the monitor's single in-flight execution. An execution still in
// flight is abandoned: its span ends and nothing is recorded for it.
func (m *Monitor) StartExecution(ctx context.Context) context.Context {
	ctx, e := m.Begin(ctx)

	m.mu.Lock()
	prev := m.current
	m.current = e
	m.mu.Unlock()

	if prev != nil && prev.abandon() {
		m.cfg.Logger.WarnContext(ctx, "abandoning in-flight execution",
			"agent_name", m.agent,
			"abandoned_execution_id", prev.id,
		)
	}
	return ctx
}

// EndExecution ends the execution started by StartExecution. Without one it logs a
// warning and returns nil.
func (m *Monitor) EndExecution(ctx context.Context, status metrics.Status, usage Usage) *ExecutionReport {
	m.mu.Lock()
	e := m.current
	m.current = nil
	m.mu.Unlock()

	if e == nil {
		m.cfg.Logger.WarnContext(ctx, "end execution without start",
			"agent_name", m.agent,
			"error", domainerrors.ErrNoActiveExecution.Error(),
		)
		return nil
	}
	return e.End(ctx, status, usage)
}

// Execute runs work as one tracked execution. Errors and panics from work are
// captured into the result; Execute itself never fails.
func (m *Monitor) Execute(ctx context.Context, work func(ctx context.Context) (any, error)) ExecutionResult {
	ctx, e := m.Begin(ctx)

	result, stack, err := runWork(ctx, work)
	usage := m.reportedUsage(ctx, result)

	if err != nil {
		usage.Err = err
		usage.Stack = stack
		report := e.End(ctx, metrics.StatusError, usage)
		return ExecutionResult{Success: false, Error: err, Metrics: report}
	}

	report := e.End(ctx, metrics.StatusCompleted, usage)
	return ExecutionResult{Success: true, Result: result, Metrics: report}
}

func runWork(ctx context.Context, work func(ctx context.Context) (any, error)) (result any, stack string, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("panic: %v", r)
			stack = string(debug.Stack())
		}
	}()

	result, err = work(ctx)
	if err != nil {
		stack = string(debug.Stack())
	}
	return result, stack, err
}

// reportedUsage asks result for its usage. A reporter that panics, such as a nil
// pointer whose method has a pointer receiver, reports nothing.
func (m *Monitor) reportedUsage(ctx context.Context, result any) (usage Usage) {
	r, ok := result.(UsageReporter)
	if !ok {
		return Usage{}
	}

	defer func() {
		if p := recover(); p != nil {
			usage = Usage{}
			m.cfg.Logger.WarnContext(ctx, "usage reporter panicked",
				"agent_name", m.agent,
				"panic", fmt.Sprint(p),
			)
		}
	}()
	return r.ExecutionUsage()
}

// Record tracks an execution that was timed elsewhere. CPU time and memory delta are zero.
func (m *Monitor) Record(ctx context.Context, status metrics.Status, duration time.Duration, usage Usage) *ExecutionReport {
	ctx, e := m.Begin(ctx)
	e.start = e.start.Add(-duration)
	e.fixedDuration = duration
	e.baseline = ports.ResourceSample{}
	e.skipResources = true
	return e.End(ctx, status, usage)
}

func (m *Monitor) failureAlert(report *ExecutionReport, usage Usage) alert.Candidate {
	reason := string(report.Status)
	if usage.Err != nil {
		reason = usage.Err.Error()
	}

	data := map[string]any{
		"agent":       m.agent,
		"department":  m.department,
		"executionId": report.ExecutionID,
		"status":      string(report.Status),
		"durationMs":  report.Duration.Milliseconds(),
		"error":       reason,
	}
	if usage.Stack != "" {
		data["stack"] = usage.Stack
	}

	return alert.Candidate{
		Level:   alert.LevelWarning,
		Type:    alert.TypeExecutionFailure,
		Message: fmt.Sprintf("Execution failed for agent %s: %s", m.agent, reason),
		Data:    data,
	}
}
