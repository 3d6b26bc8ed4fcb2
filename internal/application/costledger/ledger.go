// Package costledger converts token usage into cost, accumulates it per agent,
// department and calendar bucket, and raises budget alerts.
package costledger

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jbctechsolutions/agentmon/internal/application/ports"
	"github.com/jbctechsolutions/agentmon/internal/domain/alert"
	"github.com/jbctechsolutions/agentmon/internal/domain/cost"
	domainerrors "github.com/jbctechsolutions/agentmon/internal/domain/errors"
	"github.com/jbctechsolutions/agentmon/internal/domain/provider"
	"github.com/jbctechsolutions/agentmon/internal/infrastructure/logging"
)

// Defaults for optimization suggestions.
const (
	DefaultCheapTaskThreshold        = 0.01
	DefaultOptimizationMinExecutions = 100
	DefaultDepartment                = "default"
	UnknownAgent                     = "unknown"

	opusDowngradeSaving   = 0.8
	sonnetDowngradeSaving = 0.7
)

// Config holds the ledger's dependencies and tuning. Zero values take the defaults.
type Config struct {
	Logger     *logging.Logger
	Calculator *provider.CostCalculator
	Sink       ports.AlertSink
	Now        func() time.Time

	// Budgets override DefaultDepartmentBudgets per department.
	Budgets       map[string]float64
	DefaultBudget float64
	// Thresholds are checked most severe first.
	Thresholds                []cost.Threshold
	CheapTaskThreshold        float64
	OptimizationMinExecutions int64
}

// Ledger is safe for concurrent use.
type Ledger struct {
	mu          sync.RWMutex
	agents      map[string]*cost.AgentCost
	departments map[string]*cost.Department
	daily       map[string]*cost.DailyBucket
	weekly      map[string]*cost.Bucket
	monthly     map[string]*cost.Bucket
	crossings   map[string]float64
	budgets     map[string]float64
	configured  map[string]bool

	logger        *logging.Logger
	calc          *provider.CostCalculator
	sink          ports.AlertSink
	now           func() time.Time
	defaultBudget float64
	thresholds    []cost.Threshold
	cheapTask     float64
	minExecutions int64
}

// New creates a ledger.
func New(cfg Config) *Ledger {
	l := &Ledger{
		agents:        make(map[string]*cost.AgentCost),
		departments:   make(map[string]*cost.Department),
		daily:         make(map[string]*cost.DailyBucket),
		weekly:        make(map[string]*cost.Bucket),
		monthly:       make(map[string]*cost.Bucket),
		crossings:     make(map[string]float64),
		budgets:       cost.DefaultDepartmentBudgets(),
		configured:    make(map[string]bool, len(cfg.Budgets)),
		logger:        cfg.Logger,
		calc:          cfg.Calculator,
		sink:          cfg.Sink,
		now:           cfg.Now,
		defaultBudget: cfg.DefaultBudget,
		thresholds:    append([]cost.Threshold(nil), cfg.Thresholds...),
		cheapTask:     cfg.CheapTaskThreshold,
		minExecutions: cfg.OptimizationMinExecutions,
	}
	if l.logger == nil {
		l.logger = logging.Default()
	}
	if l.calc == nil {
		l.calc = provider.NewCostCalculator()
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.defaultBudget == 0 {
		l.defaultBudget = cost.DefaultMonthlyBudget
	}
	if len(l.thresholds) == 0 {
		l.thresholds = cost.DefaultThresholds()
	}
	sort.SliceStable(l.thresholds, func(i, j int) bool {
		return l.thresholds[i].Percent > l.thresholds[j].Percent
	})
	if l.cheapTask <= 0 {
		l.cheapTask = DefaultCheapTaskThreshold
	}
	if l.minExecutions <= 0 {
		l.minExecutions = DefaultOptimizationMinExecutions
	}
	for name, budget := range cfg.Budgets {
		l.budgets[name] = budget
		l.configured[name] = true
	}
	return l
}

// Calculator returns the pricing calculator used by the ledger.
func (l *Ledger) Calculator() *provider.CostCalculator {
	return l.calc
}

// TrackCost prices one execution, records it and evaluates the department's budget for
// the current month. At most one budget alert is raised per call.
func (l *Ledger) TrackCost(ctx context.Context, in cost.Input) cost.Result {
	agentName := in.Agent
	if agentName == "" {
		agentName = UnknownAgent
	}
	deptName := in.Department
	if deptName == "" {
		deptName = DefaultDepartment
	}

	inputTokens, outputTokens := in.Tokens()
	breakdown := l.calc.Calculate(in.Model, inputTokens, outputTokens)

	l.mu.Lock()
	now := l.now()

	agent, ok := l.agents[agentName]
	if !ok {
		agent = cost.NewAgentCost(agentName, deptName)
		l.agents[agentName] = agent
	}
	agent.Add(breakdown, now)

	dept := l.departmentLocked(deptName)
	dept.TotalCost += breakdown.TotalCost
	dept.AddAgent(agentName)

	dayKey, monthKey := cost.DayKey(now), cost.MonthKey(now)
	day, ok := l.daily[dayKey]
	if !ok {
		day = cost.NewDailyBucket(dayKey)
		l.daily[dayKey] = day
	}
	day.TotalCost += breakdown.TotalCost
	day.Executions++
	day.ByAgent[agentName] += breakdown.TotalCost
	day.ByDepartment[deptName] += breakdown.TotalCost

	week := bucket(l.weekly, cost.WeekKey(now))
	week.TotalCost += breakdown.TotalCost
	week.Executions++

	month := bucket(l.monthly, monthKey)
	month.TotalCost += breakdown.TotalCost
	month.Executions++

	deptMonthly := l.departmentMonthlyCostLocked(deptName, monthKey)
	candidate := l.checkBudgetLocked(dept, monthKey, deptMonthly)

	result := cost.Result{
		Cost:               breakdown.TotalCost,
		TotalCostToday:     day.TotalCost,
		TotalCostThisMonth: month.TotalCost,
		DepartmentCost:     deptMonthly,
		DepartmentBudget:   dept.MonthlyBudget,
		Breakdown:          breakdown,
	}
	l.mu.Unlock()

	logging.LogCost(ctx, l.logger, agentName, deptName, in.Model, breakdown.TotalCost, inputTokens, outputTokens)

	if candidate != nil {
		logging.LogBudgetCrossing(ctx, l.logger, deptName, budgetPercent(deptMonthly, result.DepartmentBudget), deptMonthly, result.DepartmentBudget)
		if l.sink != nil {
			l.sink.AddAlerts(ctx, []alert.Candidate{*candidate})
		}
	}

	return result
}

func bucket(m map[string]*cost.Bucket, key string) *cost.Bucket {
	b, ok := m[key]
	if !ok {
		b = &cost.Bucket{Key: key}
		m[key] = b
	}
	return b
}

func (l *Ledger) departmentLocked(name string) *cost.Department {
	d, ok := l.departments[name]
	if !ok {
		d = &cost.Department{Name: name, MonthlyBudget: l.budgetForLocked(name)}
		l.departments[name] = d
	}
	return d
}

func (l *Ledger) budgetForLocked(name string) float64 {
	if b, ok := l.budgets[name]; ok {
		return b
	}
	return l.defaultBudget
}

// budgetPercent returns spent as a percentage of budget; a non-positive budget is
// always fully spent.
func budgetPercent(spent, budget float64) float64 {
	if budget <= 0 {
		return math.Inf(1)
	}
	return spent / budget * 100
}

// checkBudgetLocked returns an alert when the department crosses a threshold higher
// than any already reported for the month.
func (l *Ledger) checkBudgetLocked(dept *cost.Department, monthKey string, spent float64) *alert.Candidate {
	percent := budgetPercent(spent, dept.MonthlyBudget)
	key := crossingKey(dept.Name, monthKey)

	for _, th := range l.thresholds {
		if percent < th.Percent {
			continue
		}
		if l.crossings[key] >= th.Percent {
			return nil
		}
		l.crossings[key] = th.Percent

		data := map[string]any{
			"department": dept.Name,
			"month":      monthKey,
			"spent":      spent,
			"budget":     dept.MonthlyBudget,
			"threshold":  th.Percent,
		}
		if !math.IsInf(percent, 0) {
			data["percentUsed"] = percent
		}
		return &alert.Candidate{
			Level:   th.Level,
			Type:    alert.TypeBudget,
			Message: fmt.Sprintf("Department %s has reached %.0f%% of its monthly budget", dept.Name, th.Percent),
			Data:    data,
		}
	}
	return nil
}

func crossingKey(department, month string) string {
	return department + "|" + month
}

// GetDepartmentMonthlyCost sums the daily spend of every agent in the department for
// the month (YYYY-MM; empty means the current month). The value is derived on every call.
func (l *Ledger) GetDepartmentMonthlyCost(department, month string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if month == "" {
		month = cost.MonthKey(l.now())
	}
	return l.departmentMonthlyCostLocked(department, month)
}

func (l *Ledger) departmentMonthlyCostLocked(department, month string) float64 {
	dept, ok := l.departments[department]
	if !ok {
		return 0
	}

	var total float64
	for key, day := range l.daily {
		if !cost.InMonth(key, month) {
			continue
		}
		for _, agent := range dept.Agents {
			total += day.ByAgent[agent]
		}
	}
	return total
}

// SetDepartmentBudget changes a department's monthly budget and clears the thresholds
// already reported for it, so the new budget alerts afresh.
func (l *Ledger) SetDepartmentBudget(department string, budget float64) error {
	if math.IsNaN(budget) || math.IsInf(budget, 0) {
		return domainerrors.WithContext(
			domainerrors.NewError(domainerrors.CodeValidation, "set department budget", domainerrors.ErrInvalidBudget),
			"department", department,
		)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.budgets[department] = budget
	l.configured[department] = true
	if d, ok := l.departments[department]; ok {
		d.MonthlyBudget = budget
	}
	prefix := department + "|"
	for key := range l.crossings {
		if strings.HasPrefix(key, prefix) {
			delete(l.crossings, key)
		}
	}
	return nil
}

// DepartmentBudget returns the monthly budget that applies to a department.
func (l *Ledger) DepartmentBudget(department string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if d, ok := l.departments[department]; ok {
		return d.MonthlyBudget
	}
	return l.budgetForLocked(department)
}

// GetCostOptimizations suggests cheaper tiers for busy agents, largest saving first.
func (l *Ledger) GetCostOptimizations() []cost.Optimization {
	l.mu.RLock()
	defer l.mu.RUnlock()

	opts := make([]cost.Optimization, 0)
	for _, a := range l.agents {
		if a.Executions <= l.minExecutions {
			continue
		}

		spend := make(map[provider.ModelTier]float64)
		for model, usage := range a.ModelUsage {
			spend[l.calc.ResolveTier(model)] += usage.Cost
		}

		if opus := spend[provider.TierOpus]; opus > 0 {
			opts = append(opts, cost.Optimization{
				Agent:            a.Name,
				Department:       a.Department,
				CurrentTier:      provider.TierOpus,
				SuggestedTier:    provider.TierOpus.Downgrade(),
				CurrentCost:      opus,
				EstimatedSavings: opus * opusDowngradeSaving,
				Executions:       a.Executions,
				Reason:           "high-volume agent on the premium tier",
			})
		}
		if sonnet := spend[provider.TierSonnet]; sonnet > 0 && a.AvgCost() < l.cheapTask {
			opts = append(opts, cost.Optimization{
				Agent:            a.Name,
				Department:       a.Department,
				CurrentTier:      provider.TierSonnet,
				SuggestedTier:    provider.TierHaiku,
				CurrentCost:      sonnet,
				EstimatedSavings: sonnet * sonnetDowngradeSaving,
				Executions:       a.Executions,
				Reason:           fmt.Sprintf("average cost per execution below $%.2f", l.cheapTask),
			})
		}
	}

	cost.SortOptimizations(opts)
	return opts
}

// GetAgentCost returns a copy of one agent's ledger entry.
func (l *Ledger) GetAgentCost(name string) (*cost.AgentCost, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.agents[name]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

// GetAllCosts returns a deep copy of the ledger.
func (l *Ledger) GetAllCosts() cost.Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

func (l *Ledger) snapshotLocked() cost.Snapshot {
	s := cost.Snapshot{
		Agents:      make(map[string]*cost.AgentCost, len(l.agents)),
		Departments: make(map[string]*cost.Department, len(l.departments)),
		Daily:       make(map[string]*cost.DailyBucket, len(l.daily)),
		Weekly:      make(map[string]*cost.Bucket, len(l.weekly)),
		Monthly:     make(map[string]*cost.Bucket, len(l.monthly)),
	}
	for k, v := range l.agents {
		s.Agents[k] = v.Clone()
	}
	for k, v := range l.departments {
		s.Departments[k] = v.Clone()
	}
	for k, v := range l.daily {
		s.Daily[k] = v.Clone()
	}
	for k, v := range l.weekly {
		b := *v
		s.Weekly[k] = &b
	}
	for k, v := range l.monthly {
		b := *v
		s.Monthly[k] = &b
	}
	return s
}

// Snapshot returns the persisted form of the ledger.
func (l *Ledger) Snapshot() cost.State {
	l.mu.RLock()
	defer l.mu.RUnlock()

	crossings := make(map[string]float64, len(l.crossings))
	for k, v := range l.crossings {
		crossings[k] = v
	}
	return cost.State{Snapshot: l.snapshotLocked(), Crossings: crossings}
}

// Restore replaces the ledger contents with a persisted state. Budgets set through
// Config win over the budgets stored in the snapshot.
func (l *Ledger) Restore(state cost.State) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.agents = make(map[string]*cost.AgentCost, len(state.Agents))
	for k, v := range state.Agents {
		a := v.Clone()
		if a.ModelUsage == nil {
			a.ModelUsage = make(map[string]cost.ModelUsage)
		}
		l.agents[k] = a
	}
	l.departments = make(map[string]*cost.Department, len(state.Departments))
	for k, v := range state.Departments {
		d := v.Clone()
		if l.configured[k] {
			d.MonthlyBudget = l.budgets[k]
		}
		l.departments[k] = d
	}
	l.daily = make(map[string]*cost.DailyBucket, len(state.Daily))
	for k, v := range state.Daily {
		l.daily[k] = v.Clone()
	}
	l.weekly = make(map[string]*cost.Bucket, len(state.Weekly))
	for k, v := range state.Weekly {
		b := *v
		l.weekly[k] = &b
	}
	l.monthly = make(map[string]*cost.Bucket, len(state.Monthly))
	for k, v := range state.Monthly {
		b := *v
		l.monthly[k] = &b
	}
	l.crossings = make(map[string]float64, len(state.Crossings))
	for k, v := range state.Crossings {
		l.crossings[k] = v
	}
}
