package alerting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jbctechsolutions/agentmon/internal/domain/alert"
)

// RunEscalationSweep processes every pending escalation once. Acknowledged alerts are
// dropped. Due warning alerts spawn a new critical alert; due critical alerts are
// re-sent to critical-only channels. It returns the number of alerts escalated.
func (m *Manager) RunEscalationSweep(ctx context.Context) int {
	m.mu.Lock()
	now := m.now()

	due := make([]*alert.EscalationEntry, 0)
	for key, e := range m.escalations {
		switch {
		case e.Alert.Acknowledged:
			delete(m.escalations, key)
		case !e.Due(now):
		case e.Alert.Escalated:
			delete(m.escalations, key)
		default:
			e.Alert.Escalated = true
			delete(m.escalations, key)
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].EscalateAt.Before(due[j].EscalateAt)
	})

	escalated := make([]alert.Alert, len(due))
	for i, e := range due {
		escalated[i] = e.Alert.Clone()
	}
	channels := m.channels
	m.mu.Unlock()

	for _, a := range escalated {
		m.logger.WarnContext(ctx, "escalating unacknowledged alert",
			"alert_id", a.ID,
			"level", string(a.Level),
			"type", a.Type,
		)

		switch a.Level {
		case alert.LevelWarning:
			m.AddAlert(ctx, alert.Candidate{
				Level:         alert.LevelCritical,
				Type:          a.Type,
				Message:       alert.EscalatedPrefix + a.Message,
				Data:          a.Data,
				EscalatedFrom: a.ID,
			})
		case alert.LevelCritical:
			m.dispatch(ctx, channels, a, true)
		}
	}

	return len(escalated)
}

// Start runs the escalation sweep on the configured interval until ctx is done or Stop
// is called.
func (m *Manager) Start(ctx context.Context) {
	m.sweepWg.Add(1)
	go func() {
		defer m.sweepWg.Done()

		ticker := time.NewTicker(m.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.safeSweep(ctx)
			}
		}
	}()
}

func (m *Manager) safeSweep(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.ErrorContext(ctx, "escalation sweep panicked", "panic", fmt.Sprint(rec))
		}
	}()
	if n := m.RunEscalationSweep(ctx); n > 0 {
		m.logger.InfoContext(ctx, "escalation sweep finished", "escalated", n)
	}
}

// Stop halts the sweep loop and flushes pending alert writes. It is safe to call twice.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.sweepWg.Wait()
		if m.persistCh != nil {
			close(m.persistCh)
			m.writerWg.Wait()
		}
	})
}
