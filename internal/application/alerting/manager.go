// Package alerting owns alert history: it deduplicates, rule-matches, dispatches and
// escalates alerts raised by the cost ledger, the metrics aggregator and the execution
// wrapper.
package alerting

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jbctechsolutions/agentmon/internal/application/ports"
	"github.com/jbctechsolutions/agentmon/internal/domain/alert"
	"github.com/jbctechsolutions/agentmon/internal/infrastructure/logging"
	"github.com/jbctechsolutions/agentmon/internal/infrastructure/tracing"
)

// Default tuning values.
const (
	DefaultDedupWindow      = time.Hour
	DefaultEscalationWindow = time.Hour
	DefaultSweepInterval    = 5 * time.Minute
	DefaultMaxHistory       = 500
	DefaultPersistBuffer    = 256
)

// Config holds the manager's dependencies and tuning. Zero values take the defaults.
type Config struct {
	Logger           *logging.Logger
	Channels         []ports.NotificationChannel
	AlertLog         ports.AlertLog
	Now              func() time.Time
	DedupWindow      time.Duration
	EscalationWindow time.Duration
	SweepInterval    time.Duration
	MaxHistory       int
	PersistBuffer    int
}

// Manager is safe for concurrent use. Rule actions and channel dispatch run outside the
// manager lock, so an action may call back into the manager.
type Manager struct {
	mu          sync.Mutex
	history     []*alert.Alert // newest first
	escalations map[string]*alert.EscalationEntry
	rules       []alert.Rule
	channels    []ports.NotificationChannel

	logger           *logging.Logger
	now              func() time.Time
	dedupWindow      time.Duration
	escalationWindow time.Duration
	sweepInterval    time.Duration
	maxHistory       int

	alertLog  ports.AlertLog
	persistCh chan alert.Alert
	writerWg  sync.WaitGroup

	stopOnce sync.Once
	stopCh   chan struct{}
	sweepWg  sync.WaitGroup
}

var _ ports.AlertSink = (*Manager)(nil)

// NewManager creates a manager. When cfg.AlertLog is set a writer goroutine is started;
// call Stop to flush it.
func NewManager(cfg Config) *Manager {
	m := &Manager{
		escalations:      make(map[string]*alert.EscalationEntry),
		channels:         append([]ports.NotificationChannel(nil), cfg.Channels...),
		logger:           cfg.Logger,
		now:              cfg.Now,
		dedupWindow:      orDuration(cfg.DedupWindow, DefaultDedupWindow),
		escalationWindow: orDuration(cfg.EscalationWindow, DefaultEscalationWindow),
		sweepInterval:    orDuration(cfg.SweepInterval, DefaultSweepInterval),
		maxHistory:       cfg.MaxHistory,
		alertLog:         cfg.AlertLog,
		stopCh:           make(chan struct{}),
	}
	if m.logger == nil {
		m.logger = logging.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.maxHistory <= 0 {
		m.maxHistory = DefaultMaxHistory
	}

	if m.alertLog != nil {
		buffer := cfg.PersistBuffer
		if buffer <= 0 {
			buffer = DefaultPersistBuffer
		}
		m.persistCh = make(chan alert.Alert, buffer)
		m.writerWg.Add(1)
		go m.writeLoop()
	}

	return m
}

func orDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

// AddRule appends a rule. Rules run in the order they were added.
func (m *Manager) AddRule(r alert.Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, r)
}

// AddChannel registers a notification channel.
func (m *Manager) AddChannel(ch ports.NotificationChannel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, ch)
}

// AddAlerts implements ports.AlertSink.
func (m *Manager) AddAlerts(ctx context.Context, candidates []alert.Candidate) {
	for _, c := range candidates {
		m.AddAlert(ctx, c)
	}
}

// AddAlert normalizes and accepts a candidate unless an unacknowledged alert with the
// same type and message was accepted within the dedup window. It reports whether the
// alert was accepted.
func (m *Manager) AddAlert(ctx context.Context, c alert.Candidate) (alert.Alert, bool) {
	m.mu.Lock()
	now := m.now()
	a := alert.Normalize(c, now)

	if m.isDuplicateLocked(a, now) {
		m.mu.Unlock()
		m.logger.DebugContext(ctx, "duplicate alert suppressed",
			"type", a.Type,
			"message", a.Message,
		)
		return alert.Alert{}, false
	}

	m.history = append([]*alert.Alert{a}, m.history...)
	if len(m.history) > m.maxHistory {
		for i := m.maxHistory; i < len(m.history); i++ {
			m.history[i] = nil
		}
		m.history = m.history[:m.maxHistory]
	}

	if a.Level.Escalates() {
		m.escalations[a.EscalationKey()] = &alert.EscalationEntry{
			Alert:      a,
			CreatedAt:  now,
			EscalateAt: now.Add(m.escalationWindow),
		}
	}

	accepted := a.Clone()
	rules := m.rules
	channels := m.channels
	m.mu.Unlock()

	logging.LogAlert(ctx, m.logger, accepted.ID, string(accepted.Level), accepted.Type, accepted.Message)
	tracing.RecordAlert(ctx, accepted.ID, string(accepted.Level), accepted.Type)

	m.runRules(ctx, rules, accepted)
	m.dispatch(ctx, channels, accepted, false)
	m.persist(ctx, accepted)

	return accepted, true
}

func (m *Manager) isDuplicateLocked(a *alert.Alert, now time.Time) bool {
	for _, existing := range m.history {
		if existing.Acknowledged || existing.Type != a.Type || existing.Message != a.Message {
			continue
		}
		if now.Sub(existing.Timestamp) < m.dedupWindow {
			return true
		}
	}
	return false
}

func (m *Manager) runRules(ctx context.Context, rules []alert.Rule, a alert.Alert) {
	for _, r := range rules {
		if !r.Matches(a) || r.Action == nil {
			continue
		}
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					m.logger.ErrorContext(ctx, "alert rule panicked",
						"rule", r.Name,
						"alert_id", a.ID,
						"panic", fmt.Sprint(rec),
					)
				}
			}()
			r.Action(a)
		}()
	}
}

// dispatch sends a to every eligible channel. With criticalOnly set only critical-only
// channels are considered, which is how escalated critical alerts re-notify a human.
func (m *Manager) dispatch(ctx context.Context, channels []ports.NotificationChannel, a alert.Alert, criticalOnly bool) {
	for _, ch := range channels {
		if !ch.Enabled() {
			continue
		}
		if criticalOnly && !ch.CriticalOnly() {
			continue
		}
		if ch.CriticalOnly() && a.Level != alert.LevelCritical {
			continue
		}
		if err := m.notify(ctx, ch, a); err != nil {
			m.logger.WarnContext(ctx, "alert dispatch failed",
				"channel", ch.Name(),
				"alert_id", a.ID,
				"error", err.Error(),
			)
		}
	}
}

func (m *Manager) notify(ctx context.Context, ch ports.NotificationChannel, a alert.Alert) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("channel %s panicked: %v", ch.Name(), rec)
		}
	}()
	return ch.Notify(ctx, a)
}

func (m *Manager) persist(ctx context.Context, a alert.Alert) {
	if m.persistCh == nil {
		return
	}
	defer func() {
		// send on a closed channel after Stop
		if rec := recover(); rec != nil {
			m.logger.WarnContext(ctx, "alert persisted after stop, dropped", "alert_id", a.ID)
		}
	}()
	select {
	case m.persistCh <- a:
	default:
		m.logger.WarnContext(ctx, "alert persistence buffer full, dropping write",
			"alert_id", a.ID,
		)
	}
}

func (m *Manager) writeLoop() {
	defer m.writerWg.Done()
	for a := range m.persistCh {
		if err := m.appendAlert(a); err != nil {
			m.logger.Error("failed to persist alert",
				"alert_id", a.ID,
				"error", err.Error(),
			)
		}
	}
}

func (m *Manager) appendAlert(a alert.Alert) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("alert log panicked: %v", rec)
		}
	}()
	return m.alertLog.AppendAlert(context.Background(), a)
}

// AcknowledgeAlert marks an alert acknowledged. It is idempotent and reports whether
// the id matched an alert in history.
func (m *Manager) AcknowledgeAlert(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.history {
		if a.ID != id {
			continue
		}
		if !a.Acknowledged {
			at := m.now()
			a.Acknowledged = true
			a.AcknowledgedAt = &at
		}
		return true
	}
	return false
}

// GetAlert returns one alert by id.
func (m *Manager) GetAlert(id string) (alert.Alert, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.history {
		if a.ID == id {
			return a.Clone(), true
		}
	}
	return alert.Alert{}, false
}

// GetAlerts returns the alerts matching f, newest first.
func (m *Manager) GetAlerts(f alert.Filter) []alert.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]alert.Alert, 0)
	for _, a := range m.history {
		if !f.Matches(a) {
			continue
		}
		out = append(out, a.Clone())
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

// GetAlertStats counts the alerts raised within the period ending now.
func (m *Manager) GetAlertStats(p alert.Period) alert.Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := alert.NewStats(p)
	since := m.now().Add(-p.Duration())
	for _, a := range m.history {
		if a.Timestamp.Before(since) {
			continue
		}
		stats.Add(a)
	}
	return stats
}

// PendingEscalations returns the number of tracked escalation entries.
func (m *Manager) PendingEscalations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.escalations)
}

// Snapshot returns a copy of the full history, newest first.
func (m *Manager) Snapshot() []alert.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]alert.Alert, len(m.history))
	for i, a := range m.history {
		out[i] = a.Clone()
	}
	return out
}

// Restore replaces the history with the given alerts and re-arms escalation for
// unacknowledged, unescalated warning and critical alerts. An alert that some restored
// alert was escalated from counts as escalated. Input order is irrelevant.
func (m *Manager) Restore(alerts []alert.Alert) {
	escalatedFrom := make(map[string]bool)
	for i := range alerts {
		if alerts[i].EscalatedFrom != "" {
			escalatedFrom[alerts[i].EscalatedFrom] = true
		}
	}

	seen := make(map[string]bool, len(alerts))
	restored := make([]*alert.Alert, 0, len(alerts))
	for i := range alerts {
		if seen[alerts[i].ID] {
			continue
		}
		seen[alerts[i].ID] = true
		a := alerts[i].Clone()
		if escalatedFrom[a.ID] {
			a.Escalated = true
		}
		restored = append(restored, &a)
	}
	sort.SliceStable(restored, func(i, j int) bool {
		return restored[i].Timestamp.After(restored[j].Timestamp)
	})

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(restored) > m.maxHistory {
		restored = restored[:m.maxHistory]
	}
	m.history = restored
	m.escalations = make(map[string]*alert.EscalationEntry)
	for _, a := range restored {
		if !a.Level.Escalates() || a.Acknowledged || a.Escalated {
			continue
		}
		key := a.EscalationKey()
		if _, ok := m.escalations[key]; ok {
			continue
		}
		m.escalations[key] = &alert.EscalationEntry{
			Alert:      a,
			CreatedAt:  a.Timestamp,
			EscalateAt: a.Timestamp.Add(m.escalationWindow),
		}
	}
}
