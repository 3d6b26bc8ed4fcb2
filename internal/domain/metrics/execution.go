// Package metrics provides domain types for agent execution metrics: records,
// rolling windows, lifetime counters and the snapshots served to readers.
package metrics

import (
	"time"
)

// Status is the outcome reported for an execution.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusFailed    Status = "failed"
	StatusTimeout   Status = "timeout"
)

// IsFailure reports whether the status counts as an error.
func (s Status) IsFailure() bool {
	return s == StatusError || s == StatusFailed
}

// ExecutionRecord is one finished agent execution. Records are immutable once created.
type ExecutionRecord struct {
	Timestamp        time.Time `json:"timestamp"`
	Agent            string    `json:"agent,omitempty"` // set on system-window copies only
	DurationMs       int64     `json:"durationMs"`
	Status           Status    `json:"status"`
	TokensUsed       int       `json:"tokensUsed"`
	Model            string    `json:"model,omitempty"`
	Cost             float64   `json:"cost"`
	CPUTimeMs        int64     `json:"cpuTimeMs"`
	MemoryDeltaBytes int64     `json:"memoryDeltaBytes"`
	APICalls         int       `json:"apiCalls"`
}

// ExecutionInput is what callers report for one execution.
// Zero values are valid; an empty Status is recorded as completed.
type ExecutionInput struct {
	Duration    time.Duration
	Status      Status
	TokensUsed  int
	Model       string
	Cost        float64
	CPUTime     time.Duration
	MemoryDelta int64
	APICalls    int
}

// Record converts the input into an ExecutionRecord stamped at now.
func (in ExecutionInput) Record(now time.Time) ExecutionRecord {
	status := in.Status
	if status == "" {
		status = StatusCompleted
	}
	return ExecutionRecord{
		Timestamp:        now,
		DurationMs:       in.Duration.Milliseconds(),
		Status:           status,
		TokensUsed:       in.TokensUsed,
		Model:            in.Model,
		Cost:             in.Cost,
		CPUTimeMs:        in.CPUTime.Milliseconds(),
		MemoryDeltaBytes: in.MemoryDelta,
		APICalls:         in.APICalls,
	}
}

// Counters are the lifetime totals of an agent.
type Counters struct {
	Executions        int64     `json:"executions"`
	Errors            int64     `json:"errors"`
	TotalDurationMs   int64     `json:"totalDurationMs"`
	TotalTokens       int64     `json:"totalTokens"`
	TotalCost         float64   `json:"totalCost"`
	TotalCPUTimeMs    int64     `json:"totalCpuTimeMs"`
	TotalMemoryDelta  int64     `json:"totalMemoryDelta"`
	TotalAPICalls     int64     `json:"totalApiCalls"`
	LastExecutionTime time.Time `json:"lastExecutionTime"`
}

// Add folds one record into the counters.
func (c *Counters) Add(r ExecutionRecord) {
	c.Executions++
	if r.Status.IsFailure() {
		c.Errors++
	}
	c.TotalDurationMs += r.DurationMs
	c.TotalTokens += int64(r.TokensUsed)
	c.TotalCost += r.Cost
	c.TotalCPUTimeMs += r.CPUTimeMs
	c.TotalMemoryDelta += r.MemoryDeltaBytes
	c.TotalAPICalls += int64(r.APICalls)
	c.LastExecutionTime = r.Timestamp
}

// ErrorRate returns errors/executions, or 0 when there are no executions.
func (c Counters) ErrorRate() float64 {
	return ratio(float64(c.Errors), c.Executions)
}

// AvgDurationMs returns the mean execution duration.
func (c Counters) AvgDurationMs() float64 {
	return ratio(float64(c.TotalDurationMs), c.Executions)
}

// AvgCost returns the mean cost per execution.
func (c Counters) AvgCost() float64 {
	return ratio(c.TotalCost, c.Executions)
}

func ratio(v float64, n int64) float64 {
	if n == 0 {
		return 0
	}
	return v / float64(n)
}
