// Package aggregator records agent executions into rolling windows, keeps lifetime
// counters, and raises error-rate and latency alerts.
package aggregator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jbctechsolutions/agentmon/internal/application/ports"
	"github.com/jbctechsolutions/agentmon/internal/domain/alert"
	"github.com/jbctechsolutions/agentmon/internal/domain/metrics"
	"github.com/jbctechsolutions/agentmon/internal/infrastructure/logging"
)

// Default thresholds.
const (
	DefaultErrorRateMinSamples = 10
	DefaultErrorRateWarning    = 0.10
	DefaultErrorRateCritical   = 0.25
	DefaultLatencyWarningMs    = 30000.0
)

// Config holds the aggregator's dependencies and thresholds. Zero values take the defaults.
type Config struct {
	Logger *logging.Logger
	Sink   ports.AlertSink
	Probe  ports.HostProbe
	Now    func() time.Time

	// ErrorRateMinSamples is the 24h window size that must be exceeded before the
	// error rate is evaluated.
	ErrorRateMinSamples int
	ErrorRateWarning    float64
	ErrorRateCritical   float64
	LatencyWarningMs    float64
}

type agentAggregate struct {
	name     string
	counters metrics.Counters
	windows  map[metrics.Span]*metrics.Window
}

func newAgentAggregate(name string) *agentAggregate {
	return &agentAggregate{name: name, windows: newWindows()}
}

func newWindows() map[metrics.Span]*metrics.Window {
	w := make(map[metrics.Span]*metrics.Window, 3)
	for _, span := range metrics.Spans() {
		w[span] = metrics.NewWindow(span)
	}
	return w
}

// Aggregator is safe for concurrent use. A single mutex guards all state; reads also
// sweep, so no read ever observes a record older than its window.
type Aggregator struct {
	mu     sync.Mutex
	agents map[string]*agentAggregate

	startTime       time.Time
	totalExecutions int64
	totalErrors     int64
	totalCost       float64
	systemWindows   map[metrics.Span]*metrics.Window

	logger           *logging.Logger
	sink             ports.AlertSink
	probe            ports.HostProbe
	now              func() time.Time
	minSamples       int
	errorRateWarn    float64
	errorRateCrit    float64
	latencyWarningMs float64
}

// New creates an aggregator whose uptime starts now.
func New(cfg Config) *Aggregator {
	a := &Aggregator{
		agents:           make(map[string]*agentAggregate),
		systemWindows:    newWindows(),
		logger:           cfg.Logger,
		sink:             cfg.Sink,
		probe:            cfg.Probe,
		now:              cfg.Now,
		minSamples:       cfg.ErrorRateMinSamples,
		errorRateWarn:    cfg.ErrorRateWarning,
		errorRateCrit:    cfg.ErrorRateCritical,
		latencyWarningMs: cfg.LatencyWarningMs,
	}
	if a.logger == nil {
		a.logger = logging.Default()
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.minSamples <= 0 {
		a.minSamples = DefaultErrorRateMinSamples
	}
	if a.errorRateWarn <= 0 {
		a.errorRateWarn = DefaultErrorRateWarning
	}
	if a.errorRateCrit <= 0 {
		a.errorRateCrit = DefaultErrorRateCritical
	}
	if a.latencyWarningMs <= 0 {
		a.latencyWarningMs = DefaultLatencyWarningMs
	}
	a.startTime = a.now()
	return a
}

// TrackExecution records one execution for agentName and returns the agent's updated
// metrics. Alerts raised by the call are forwarded to the sink as one batch after the
// aggregator lock is released.
func (a *Aggregator) TrackExecution(ctx context.Context, agentName string, in metrics.ExecutionInput) metrics.AgentMetrics {
	a.mu.Lock()
	now := a.now()
	rec := in.Record(now)

	agg, ok := a.agents[agentName]
	if !ok {
		agg = newAgentAggregate(agentName)
		a.agents[agentName] = agg
		a.logger.DebugContext(ctx, "tracking new agent", "agent_name", agentName)
	}

	tagged := rec
	tagged.Agent = agentName
	for _, span := range metrics.Spans() {
		agg.windows[span].Append(rec)
		a.systemWindows[span].Append(tagged)
	}
	a.sweepLocked(now)

	agg.counters.Add(rec)
	a.totalExecutions++
	if rec.Status.IsFailure() {
		a.totalErrors++
	}
	a.totalCost += rec.Cost

	candidates := a.evaluateLocked(agg)
	snapshot := agentSnapshot(agg)
	a.mu.Unlock()

	if len(candidates) > 0 && a.sink != nil {
		a.sink.AddAlerts(ctx, candidates)
	}
	return snapshot
}

func (a *Aggregator) sweepLocked(now time.Time) {
	for _, w := range a.systemWindows {
		w.Sweep(now)
	}
	for _, agg := range a.agents {
		for _, w := range agg.windows {
			w.Sweep(now)
		}
	}
}

func (a *Aggregator) evaluateLocked(agg *agentAggregate) []alert.Candidate {
	var candidates []alert.Candidate

	if day := agg.windows[metrics.SpanDay]; day.Len() > a.minSamples {
		stats := day.Stats()
		data := map[string]any{
			"agent":      agg.name,
			"errorRate":  stats.ErrorRate,
			"errors":     stats.Errors,
			"executions": stats.Count,
			"window":     string(metrics.SpanDay),
		}
		switch {
		case stats.ErrorRate > a.errorRateCrit:
			data["threshold"] = a.errorRateCrit
			candidates = append(candidates, alert.Candidate{
				Level:   alert.LevelCritical,
				Type:    alert.TypeErrorRate,
				Message: fmt.Sprintf("Critical error rate for agent %s", agg.name),
				Data:    data,
			})
		case stats.ErrorRate > a.errorRateWarn:
			data["threshold"] = a.errorRateWarn
			candidates = append(candidates, alert.Candidate{
				Level:   alert.LevelWarning,
				Type:    alert.TypeErrorRate,
				Message: fmt.Sprintf("Elevated error rate for agent %s", agg.name),
				Data:    data,
			})
		}
	}

	// Latency has a warning tier only.
	if hour := agg.windows[metrics.SpanHour]; hour.Len() > 0 {
		stats := hour.Stats()
		if stats.MeanDurationMs > a.latencyWarningMs {
			candidates = append(candidates, alert.Candidate{
				Level:   alert.LevelWarning,
				Type:    alert.TypeLatency,
				Message: fmt.Sprintf("High average latency for agent %s", agg.name),
				Data: map[string]any{
					"agent":          agg.name,
					"meanDurationMs": stats.MeanDurationMs,
					"thresholdMs":    a.latencyWarningMs,
					"executions":     stats.Count,
					"window":         string(metrics.SpanHour),
				},
			})
		}
	}

	return candidates
}

func agentSnapshot(agg *agentAggregate) metrics.AgentMetrics {
	windows := make(map[metrics.Span]metrics.WindowStats, len(agg.windows))
	for span, w := range agg.windows {
		windows[span] = w.Stats()
	}
	return metrics.AgentMetrics{
		Name:          agg.name,
		Counters:      agg.counters,
		ErrorRate:     agg.counters.ErrorRate(),
		AvgDurationMs: agg.counters.AvgDurationMs(),
		AvgCost:       agg.counters.AvgCost(),
		Windows:       windows,
	}
}

// GetAgentMetrics returns the metrics of one agent.
func (a *Aggregator) GetAgentMetrics(name string) (metrics.AgentMetrics, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	agg, ok := a.agents[name]
	if !ok {
		return metrics.AgentMetrics{}, false
	}
	a.sweepLocked(a.now())
	return agentSnapshot(agg), true
}

// AgentNames returns the tracked agent names in sorted order.
func (a *Aggregator) AgentNames() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	names := make([]string, 0, len(a.agents))
	for name := range a.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetSystemMetrics returns the process-wide aggregate plus host health.
func (a *Aggregator) GetSystemMetrics() metrics.SystemMetrics {
	a.mu.Lock()
	sys := a.systemSnapshotLocked(a.now())
	a.mu.Unlock()

	if a.probe != nil {
		sys.Health = a.probe.Probe()
	}
	return sys
}

func (a *Aggregator) systemSnapshotLocked(now time.Time) metrics.SystemMetrics {
	a.sweepLocked(now)

	windows := make(map[metrics.Span]metrics.WindowStats, len(a.systemWindows))
	for span, w := range a.systemWindows {
		windows[span] = w.Stats()
	}
	hour := a.systemWindows[metrics.SpanHour]

	sys := metrics.SystemMetrics{
		StartTime:          a.startTime,
		UptimeMs:           now.Sub(a.startTime).Milliseconds(),
		TotalExecutions:    a.totalExecutions,
		TotalErrors:        a.totalErrors,
		TotalCost:          a.totalCost,
		ExecutionsLastHour: hour.Len(),
		AvgResponseTimeMs:  windows[metrics.SpanHour].MeanDurationMs,
		Windows:            windows,
		AgentsLastHour:     metrics.GroupByAgent(hour.Records()),
	}
	if a.totalExecutions > 0 {
		sys.ErrorRate = float64(a.totalErrors) / float64(a.totalExecutions)
	}
	return sys
}

// GetAllMetrics returns the system snapshot and every agent snapshot.
func (a *Aggregator) GetAllMetrics() metrics.AllMetrics {
	a.mu.Lock()
	now := a.now()
	sys := a.systemSnapshotLocked(now)
	agents := make(map[string]metrics.AgentMetrics, len(a.agents))
	for name, agg := range a.agents {
		agents[name] = agentSnapshot(agg)
	}
	a.mu.Unlock()

	if a.probe != nil {
		sys.Health = a.probe.Probe()
	}
	return metrics.AllMetrics{System: sys, Agents: agents}
}

// Snapshot returns the persisted form of the aggregator.
func (a *Aggregator) Snapshot() metrics.AggregatorState {
	a.mu.Lock()
	defer a.mu.Unlock()

	state := metrics.AggregatorState{
		StartTime:       a.startTime,
		TotalExecutions: a.totalExecutions,
		TotalErrors:     a.totalErrors,
		TotalCost:       a.totalCost,
		SystemWindows:   windowRecords(a.systemWindows),
		Agents:          make(map[string]metrics.AgentState, len(a.agents)),
	}
	for name, agg := range a.agents {
		state.Agents[name] = metrics.AgentState{
			Name:     name,
			Counters: agg.counters,
			Windows:  windowRecords(agg.windows),
		}
	}
	return state
}

func windowRecords(windows map[metrics.Span]*metrics.Window) map[metrics.Span][]metrics.ExecutionRecord {
	out := make(map[metrics.Span][]metrics.ExecutionRecord, len(windows))
	for span, w := range windows {
		out[span] = w.Records()
	}
	return out
}

// Restore replaces all state with a persisted snapshot and sweeps it against now.
// The process start time is kept, so uptime keeps measuring this process.
func (a *Aggregator) Restore(state metrics.AggregatorState) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalExecutions = state.TotalExecutions
	a.totalErrors = state.TotalErrors
	a.totalCost = state.TotalCost
	a.systemWindows = restoreWindows(state.SystemWindows)

	a.agents = make(map[string]*agentAggregate, len(state.Agents))
	for name, s := range state.Agents {
		a.agents[name] = &agentAggregate{
			name:     name,
			counters: s.Counters,
			windows:  restoreWindows(s.Windows),
		}
	}
	a.sweepLocked(a.now())
}

func restoreWindows(records map[metrics.Span][]metrics.ExecutionRecord) map[metrics.Span]*metrics.Window {
	w := make(map[metrics.Span]*metrics.Window, 3)
	for _, span := range metrics.Spans() {
		w[span] = metrics.RestoreWindow(span, records[span])
	}
	return w
}
