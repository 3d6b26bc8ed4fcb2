// Package alert defines alerts, their levels, rules and the query types used to read
// alert history.
package alert

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Level is the severity of an alert.
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Levels lists the levels from least to most severe.
func Levels() []Level {
	return []Level{LevelInfo, LevelWarning, LevelCritical}
}

// IsValid returns true if the level is a recognized value.
func (l Level) IsValid() bool {
	switch l {
	case LevelInfo, LevelWarning, LevelCritical:
		return true
	default:
		return false
	}
}

// Escalates reports whether alerts of this level are tracked for escalation.
func (l Level) Escalates() bool {
	return l == LevelWarning || l == LevelCritical
}

// ParseLevel parses a level string.
func ParseLevel(s string) (Level, error) {
	l := Level(s)
	if !l.IsValid() {
		return "", fmt.Errorf("invalid alert level: %q", s)
	}
	return l, nil
}

// Well-known alert types.
const (
	TypeGeneral          = "general"
	TypeBudget           = "budget"
	TypeErrorRate        = "error_rate"
	TypeLatency          = "latency"
	TypeExecutionFailure = "execution_failure"
)

// EscalatedPrefix marks the message of an alert synthesized by escalation.
const EscalatedPrefix = "[ESCALATED] "

// Alert is an accepted alert. Only Acknowledged, AcknowledgedAt and Escalated change after acceptance.
type Alert struct {
	ID             string         `json:"id"`
	Timestamp      time.Time      `json:"timestamp"`
	Level          Level          `json:"level"`
	Type           string         `json:"type"`
	Message        string         `json:"message"`
	Data           map[string]any `json:"data"`
	Acknowledged   bool           `json:"acknowledged"`
	Escalated      bool           `json:"escalated"`
	AcknowledgedAt *time.Time     `json:"acknowledgedAt,omitempty"`
	EscalatedFrom  string         `json:"escalatedFrom,omitempty"`
}

// Clone returns a copy that shares nothing mutable with a.
func (a *Alert) Clone() Alert {
	c := *a
	if a.Data != nil {
		c.Data = make(map[string]any, len(a.Data))
		for k, v := range a.Data {
			c.Data[k] = v
		}
	}
	if a.AcknowledgedAt != nil {
		at := *a.AcknowledgedAt
		c.AcknowledgedAt = &at
	}
	return c
}

// EscalationKey returns the key that shares one pending escalation slot.
func (a *Alert) EscalationKey() string {
	return EscalationKey(a.Type, a.Level)
}

// EscalationKey builds the type_level key.
func EscalationKey(alertType string, level Level) string {
	return alertType + "_" + string(level)
}

// Candidate is an alert as submitted by a producer, before normalization.
type Candidate struct {
	Level         Level
	Type          string
	Message       string
	Data          map[string]any
	EscalatedFrom string
}

// Normalize turns a candidate into an alert stamped at now with a fresh ID.
func Normalize(c Candidate, now time.Time) *Alert {
	a := &Alert{
		ID:            NewID(now),
		Timestamp:     now,
		Level:         c.Level,
		Type:          c.Type,
		Message:       c.Message,
		Data:          make(map[string]any, len(c.Data)),
		EscalatedFrom: c.EscalatedFrom,
	}
	if !a.Level.IsValid() {
		a.Level = LevelInfo
	}
	if a.Type == "" {
		a.Type = TypeGeneral
	}
	for k, v := range c.Data {
		a.Data[k] = v
	}
	return a
}

// NewID returns an alert ID of the form alert_<unix millis>_<8 hex chars>.
func NewID(now time.Time) string {
	return fmt.Sprintf("alert_%d_%s", now.UnixMilli(), uuid.NewString()[:8])
}
