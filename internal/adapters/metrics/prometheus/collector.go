// Package prometheus exposes agentmon state as Prometheus metrics. Values are read
// from the aggregator, ledger and alert manager at scrape time.
package prometheus

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jbctechsolutions/agentmon/internal/domain/alert"
	"github.com/jbctechsolutions/agentmon/internal/domain/cost"
	"github.com/jbctechsolutions/agentmon/internal/domain/metrics"
)

const namespace = "agentmon"

// MetricsSource is satisfied by the metrics aggregator.
type MetricsSource interface {
	GetAllMetrics() metrics.AllMetrics
}

// CostSource is satisfied by the cost ledger.
type CostSource interface {
	GetAllCosts() cost.Snapshot
	GetDepartmentMonthlyCost(department, month string) float64
	DepartmentBudget(department string) float64
}

// AlertSource is satisfied by the alert manager.
type AlertSource interface {
	GetAlertStats(p alert.Period) alert.Stats
}

// Collector implements prometheus.Collector. Any source may be nil.
type Collector struct {
	metrics MetricsSource
	costs   CostSource
	alerts  AlertSource
	now     func() time.Time

	agentExecutions *prometheus.Desc
	agentErrors     *prometheus.Desc
	agentCost       *prometheus.Desc
	agentTokens     *prometheus.Desc
	agentDuration   *prometheus.Desc
	windowErrorRate *prometheus.Desc
	windowLatency   *prometheus.Desc
	windowCount     *prometheus.Desc

	systemExecutions *prometheus.Desc
	systemErrors     *prometheus.Desc
	systemCost       *prometheus.Desc
	systemUptime     *prometheus.Desc

	alertsByLevel  *prometheus.Desc
	alertsUnacked  *prometheus.Desc
	deptSpend      *prometheus.Desc
	deptMonthSpend *prometheus.Desc
	deptBudget     *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// Config wires the sources.
type Config struct {
	Metrics MetricsSource
	Costs   CostSource
	Alerts  AlertSource
	Now     func() time.Time
}

// NewCollector creates a collector.
func NewCollector(cfg Config) *Collector {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	agent := []string{"agent"}
	window := []string{"agent", "window"}

	return &Collector{
		metrics: cfg.Metrics,
		costs:   cfg.Costs,
		alerts:  cfg.Alerts,
		now:     now,

		agentExecutions: desc("agent", "executions_total", "Executions recorded per agent.", agent),
		agentErrors:     desc("agent", "errors_total", "Failed executions per agent.", agent),
		agentCost:       desc("agent", "cost_usd_total", "Lifetime spend per agent in USD.", agent),
		agentTokens:     desc("agent", "tokens_total", "Tokens consumed per agent.", agent),
		agentDuration:   desc("agent", "duration_ms_avg", "Mean execution duration per agent in milliseconds.", agent),
		windowErrorRate: desc("agent", "window_error_rate", "Error rate over a rolling window.", window),
		windowLatency:   desc("agent", "window_latency_ms", "Mean duration over a rolling window in milliseconds.", window),
		windowCount:     desc("agent", "window_executions", "Executions inside a rolling window.", window),

		systemExecutions: desc("system", "executions_total", "Executions recorded across all agents.", nil),
		systemErrors:     desc("system", "errors_total", "Failed executions across all agents.", nil),
		systemCost:       desc("system", "cost_usd_total", "Spend across all agents in USD.", nil),
		systemUptime:     desc("system", "uptime_seconds", "Seconds since the aggregator started.", nil),

		alertsByLevel:  desc("alerts", "last_day", "Alerts raised in the last 24 hours by level.", []string{"level"}),
		alertsUnacked:  desc("alerts", "unacknowledged_last_day", "Unacknowledged alerts raised in the last 24 hours.", nil),
		deptSpend:      desc("department", "cost_usd_total", "Lifetime spend per department in USD.", []string{"department"}),
		deptMonthSpend: desc("department", "month_cost_usd", "Spend in the current month per department in USD.", []string{"department"}),
		deptBudget:     desc("department", "budget_usd", "Monthly budget per department in USD.", []string{"department"}),
	}
}

func desc(subsystem, name, help string, labels []string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, labels, nil)
}

// Describe sends every descriptor.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.agentExecutions, c.agentErrors, c.agentCost, c.agentTokens, c.agentDuration,
		c.windowErrorRate, c.windowLatency, c.windowCount,
		c.systemExecutions, c.systemErrors, c.systemCost, c.systemUptime,
		c.alertsByLevel, c.alertsUnacked, c.deptSpend, c.deptMonthSpend, c.deptBudget,
	} {
		ch <- d
	}
}

// Collect reads the sources and emits const metrics.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.metrics != nil {
		c.collectMetrics(ch, c.metrics.GetAllMetrics())
	}
	if c.costs != nil {
		c.collectCosts(ch, c.costs.GetAllCosts())
	}
	if c.alerts != nil {
		stats := c.alerts.GetAlertStats(alert.PeriodDay)
		for _, level := range alert.Levels() {
			ch <- prometheus.MustNewConstMetric(c.alertsByLevel, prometheus.GaugeValue, float64(stats.ByLevel[level]), string(level))
		}
		ch <- prometheus.MustNewConstMetric(c.alertsUnacked, prometheus.GaugeValue, float64(stats.Unacknowledged))
	}
}

func (c *Collector) collectMetrics(ch chan<- prometheus.Metric, all metrics.AllMetrics) {
	sys := all.System
	ch <- prometheus.MustNewConstMetric(c.systemExecutions, prometheus.CounterValue, float64(sys.TotalExecutions))
	ch <- prometheus.MustNewConstMetric(c.systemErrors, prometheus.CounterValue, float64(sys.TotalErrors))
	ch <- prometheus.MustNewConstMetric(c.systemCost, prometheus.CounterValue, sys.TotalCost)
	ch <- prometheus.MustNewConstMetric(c.systemUptime, prometheus.GaugeValue, float64(sys.UptimeMs)/1000)

	for name, m := range all.Agents {
		ch <- prometheus.MustNewConstMetric(c.agentExecutions, prometheus.CounterValue, float64(m.Executions), name)
		ch <- prometheus.MustNewConstMetric(c.agentErrors, prometheus.CounterValue, float64(m.Errors), name)
		ch <- prometheus.MustNewConstMetric(c.agentCost, prometheus.CounterValue, m.TotalCost, name)
		ch <- prometheus.MustNewConstMetric(c.agentTokens, prometheus.CounterValue, float64(m.TotalTokens), name)
		ch <- prometheus.MustNewConstMetric(c.agentDuration, prometheus.GaugeValue, m.AvgDurationMs, name)

		for span, w := range m.Windows {
			ch <- prometheus.MustNewConstMetric(c.windowErrorRate, prometheus.GaugeValue, w.ErrorRate, name, string(span))
			ch <- prometheus.MustNewConstMetric(c.windowLatency, prometheus.GaugeValue, w.MeanDurationMs, name, string(span))
			ch <- prometheus.MustNewConstMetric(c.windowCount, prometheus.GaugeValue, float64(w.Count), name, string(span))
		}
	}
}

func (c *Collector) collectCosts(ch chan<- prometheus.Metric, snap cost.Snapshot) {
	month := cost.MonthKey(c.now())
	for name, d := range snap.Departments {
		ch <- prometheus.MustNewConstMetric(c.deptSpend, prometheus.CounterValue, d.TotalCost, name)
		ch <- prometheus.MustNewConstMetric(c.deptMonthSpend, prometheus.GaugeValue, c.costs.GetDepartmentMonthlyCost(name, month), name)
		ch <- prometheus.MustNewConstMetric(c.deptBudget, prometheus.GaugeValue, c.costs.DepartmentBudget(name), name)
	}
}

// NewRegistry returns a registry holding the collector plus the Go runtime and
// process collectors.
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		c,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
