package metrics

import "time"

// AgentMetrics is a read-only snapshot of one agent's aggregate.
type AgentMetrics struct {
	Name string `json:"name"`
	Counters
	ErrorRate     float64              `json:"errorRate"`
	AvgDurationMs float64              `json:"avgDurationMs"`
	AvgCost       float64              `json:"avgCost"`
	Windows       map[Span]WindowStats `json:"windows"`
}

// HostHealth is a point-in-time view of the host and the current process.
type HostHealth struct {
	LoadAverage  [3]float64 `json:"loadAverage"`
	TotalMemory  uint64     `json:"totalMemory"`
	FreeMemory   uint64     `json:"freeMemory"`
	HeapAlloc    uint64     `json:"heapAlloc"`
	HeapSys      uint64     `json:"heapSys"`
	Goroutines   int        `json:"goroutines"`
	NumCPU       int        `json:"numCpu"`
	HostUptimeMs int64      `json:"hostUptimeMs"`
}

// SystemMetrics is a read-only snapshot of the process-wide aggregate.
type SystemMetrics struct {
	StartTime          time.Time              `json:"startTime"`
	UptimeMs           int64                  `json:"uptimeMs"`
	TotalExecutions    int64                  `json:"totalExecutions"`
	TotalErrors        int64                  `json:"totalErrors"`
	TotalCost          float64                `json:"totalCost"`
	ErrorRate          float64                `json:"errorRate"`
	ExecutionsLastHour int                    `json:"executionsLastHour"`
	AvgResponseTimeMs  float64                `json:"avgResponseTimeMs"`
	Windows            map[Span]WindowStats   `json:"windows"`
	AgentsLastHour     map[string]WindowStats `json:"agentsLastHour"`
	Health             HostHealth             `json:"health"`
}

// AllMetrics bundles the system snapshot with every agent snapshot.
type AllMetrics struct {
	System SystemMetrics           `json:"system"`
	Agents map[string]AgentMetrics `json:"agents"`
}

// AgentState is the persisted form of an agent aggregate.
type AgentState struct {
	Name     string                     `json:"name"`
	Counters Counters                   `json:"counters"`
	Windows  map[Span][]ExecutionRecord `json:"windows"`
}

// AggregatorState is the persisted form of the whole aggregator.
type AggregatorState struct {
	StartTime       time.Time                  `json:"startTime"`
	TotalExecutions int64                      `json:"totalExecutions"`
	TotalErrors     int64                      `json:"totalErrors"`
	TotalCost       float64                    `json:"totalCost"`
	SystemWindows   map[Span][]ExecutionRecord `json:"systemWindows"`
	Agents          map[string]AgentState      `json:"agents"`
}
