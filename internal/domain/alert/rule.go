package alert

import "time"

// Rule runs a side-effecting action for every newly accepted alert it matches.
type Rule struct {
	Name      string
	Level     Level  // empty matches any level
	Type      string // empty matches any type
	Predicate func(Alert) bool
	Action    func(Alert)
}

// Matches reports whether the rule applies to a.
func (r Rule) Matches(a Alert) bool {
	if r.Level != "" && a.Level != r.Level {
		return false
	}
	if r.Type != "" && a.Type != r.Type {
		return false
	}
	if r.Predicate != nil && !r.Predicate(a) {
		return false
	}
	return true
}

// EscalationEntry is the pending escalation for one type_level key.
type EscalationEntry struct {
	Alert      *Alert
	CreatedAt  time.Time
	EscalateAt time.Time
}

// Due reports whether the entry should escalate at now.
func (e EscalationEntry) Due(now time.Time) bool {
	return !now.Before(e.EscalateAt)
}
