// Package cost defines the cost ledger domain: per-agent and per-department totals,
// calendar buckets, budget thresholds and optimization suggestions.
package cost

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jbctechsolutions/agentmon/internal/domain/alert"
	"github.com/jbctechsolutions/agentmon/internal/domain/provider"
)

// Input is one execution's token usage as reported to the ledger.
// When InputTokens and OutputTokens are both zero, TokensUsed is split evenly.
type Input struct {
	Agent        string
	Department   string
	Model        string
	InputTokens  int
	OutputTokens int
	TokensUsed   int
}

// Tokens resolves the input/output token counts.
func (in Input) Tokens() (input, output int) {
	if in.InputTokens == 0 && in.OutputTokens == 0 {
		return provider.SplitTokens(in.TokensUsed)
	}
	return in.InputTokens, in.OutputTokens
}

// Result is returned by every tracked cost.
type Result struct {
	Cost               float64                `json:"cost"`
	TotalCostToday     float64                `json:"totalCostToday"`
	TotalCostThisMonth float64                `json:"totalCostThisMonth"`
	DepartmentCost     float64                `json:"departmentCost"`
	DepartmentBudget   float64                `json:"departmentBudget"`
	Breakdown          provider.CostBreakdown `json:"breakdown"`
}

// ModelUsage is the spend of one agent on one model.
type ModelUsage struct {
	Cost       float64 `json:"cost"`
	Executions int64   `json:"executions"`
}

// AgentCost is the ledger entry of one agent.
type AgentCost struct {
	Name              string                `json:"name"`
	Department        string                `json:"department"`
	TotalCost         float64               `json:"totalCost"`
	TotalInputTokens  int64                 `json:"totalInputTokens"`
	TotalOutputTokens int64                 `json:"totalOutputTokens"`
	Executions        int64                 `json:"executions"`
	ModelUsage        map[string]ModelUsage `json:"modelUsage"`
	LastUsed          time.Time             `json:"lastUsed"`
}

// NewAgentCost creates an empty entry.
func NewAgentCost(name, department string) *AgentCost {
	return &AgentCost{
		Name:       name,
		Department: department,
		ModelUsage: make(map[string]ModelUsage),
	}
}

// Add records one priced execution.
func (a *AgentCost) Add(b provider.CostBreakdown, at time.Time) {
	a.TotalCost += b.TotalCost
	a.TotalInputTokens += int64(b.InputTokens)
	a.TotalOutputTokens += int64(b.OutputTokens)
	a.Executions++
	a.LastUsed = at

	u := a.ModelUsage[b.Model]
	u.Cost += b.TotalCost
	u.Executions++
	a.ModelUsage[b.Model] = u
}

// AvgCost returns the mean cost per execution.
func (a *AgentCost) AvgCost() float64 {
	if a.Executions == 0 {
		return 0
	}
	return a.TotalCost / float64(a.Executions)
}

// Clone returns a deep copy.
func (a *AgentCost) Clone() *AgentCost {
	c := *a
	c.ModelUsage = make(map[string]ModelUsage, len(a.ModelUsage))
	for k, v := range a.ModelUsage {
		c.ModelUsage[k] = v
	}
	return &c
}

// Department is the ledger entry of one department.
type Department struct {
	Name          string   `json:"name"`
	TotalCost     float64  `json:"totalCost"`
	Agents        []string `json:"agents"` // sorted, unique
	MonthlyBudget float64  `json:"monthlyBudget"`
}

// AddAgent inserts name into the member set.
func (d *Department) AddAgent(name string) {
	i := sort.SearchStrings(d.Agents, name)
	if i < len(d.Agents) && d.Agents[i] == name {
		return
	}
	d.Agents = append(d.Agents, "")
	copy(d.Agents[i+1:], d.Agents[i:])
	d.Agents[i] = name
}

// Clone returns a deep copy.
func (d *Department) Clone() *Department {
	c := *d
	c.Agents = append([]string(nil), d.Agents...)
	return &c
}

// Bucket accumulates spend for one calendar period.
type Bucket struct {
	Key        string  `json:"key"`
	TotalCost  float64 `json:"totalCost"`
	Executions int64   `json:"executions"`
}

// DailyBucket also splits the day's spend by agent and department.
type DailyBucket struct {
	Bucket
	ByAgent      map[string]float64 `json:"byAgent"`
	ByDepartment map[string]float64 `json:"byDepartment"`
}

// NewDailyBucket creates an empty daily bucket.
func NewDailyBucket(key string) *DailyBucket {
	return &DailyBucket{
		Bucket:       Bucket{Key: key},
		ByAgent:      make(map[string]float64),
		ByDepartment: make(map[string]float64),
	}
}

// Clone returns a deep copy.
func (b *DailyBucket) Clone() *DailyBucket {
	c := NewDailyBucket(b.Key)
	c.Bucket = b.Bucket
	for k, v := range b.ByAgent {
		c.ByAgent[k] = v
	}
	for k, v := range b.ByDepartment {
		c.ByDepartment[k] = v
	}
	return c
}

// DayKey formats the daily bucket key.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// WeekKey formats the ISO week bucket key, e.g. 2026-W07.
func WeekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// MonthKey formats the monthly bucket key.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// InMonth reports whether a day key belongs to the month key.
func InMonth(dayKey, monthKey string) bool {
	return strings.HasPrefix(dayKey, monthKey)
}

// Snapshot is a read-only copy of the whole ledger.
type Snapshot struct {
	Agents      map[string]*AgentCost   `json:"agents"`
	Departments map[string]*Department  `json:"departments"`
	Daily       map[string]*DailyBucket `json:"daily"`
	Weekly      map[string]*Bucket      `json:"weekly"`
	Monthly     map[string]*Bucket      `json:"monthly"`
}

// State is the persisted form of the ledger.
type State struct {
	Snapshot
	// Crossings maps department|month to the highest budget percent already reported.
	Crossings map[string]float64 `json:"crossings"`
}

// Threshold is a budget percentage with the alert level it raises.
type Threshold struct {
	Percent float64     `json:"percent" yaml:"percent"`
	Level   alert.Level `json:"level" yaml:"level"`
}

// DefaultThresholds returns the budget thresholds, most severe first.
func DefaultThresholds() []Threshold {
	return []Threshold{
		{Percent: 100, Level: alert.LevelCritical},
		{Percent: 90, Level: alert.LevelWarning},
		{Percent: 75, Level: alert.LevelInfo},
	}
}

// DefaultMonthlyBudget applies to departments without a configured budget.
const DefaultMonthlyBudget = 1000.0

// DefaultDepartmentBudgets returns the built-in monthly budgets in USD.
func DefaultDepartmentBudgets() map[string]float64 {
	return map[string]float64{
		"engineering": 5000,
		"research":    3000,
		"operations":  2000,
		"support":     1500,
		"marketing":   1000,
		"sales":       1000,
	}
}

// Optimization suggests moving an agent to a cheaper tier.
type Optimization struct {
	Agent            string             `json:"agent"`
	Department       string             `json:"department"`
	CurrentTier      provider.ModelTier `json:"currentTier"`
	SuggestedTier    provider.ModelTier `json:"suggestedTier"`
	CurrentCost      float64            `json:"currentCost"`
	EstimatedSavings float64            `json:"estimatedSavings"`
	Executions       int64              `json:"executions"`
	Reason           string             `json:"reason"`
}

// SortOptimizations orders suggestions by estimated saving, largest first, then by agent.
func SortOptimizations(opts []Optimization) {
	sort.SliceStable(opts, func(i, j int) bool {
		if opts[i].EstimatedSavings != opts[j].EstimatedSavings {
			return opts[i].EstimatedSavings > opts[j].EstimatedSavings
		}
		return opts[i].Agent < opts[j].Agent
	})
}
