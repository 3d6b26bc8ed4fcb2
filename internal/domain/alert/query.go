package alert

import (
	"fmt"
	"time"
)

// Filter selects alerts. Unset fields match everything; set fields compose by AND.
type Filter struct {
	Level        Level
	Type         string
	Acknowledged *bool
	Since        time.Time
	Limit        int
}

// Matches reports whether a passes every set filter field.
func (f Filter) Matches(a *Alert) bool {
	if f.Level != "" && a.Level != f.Level {
		return false
	}
	if f.Type != "" && a.Type != f.Type {
		return false
	}
	if f.Acknowledged != nil && a.Acknowledged != *f.Acknowledged {
		return false
	}
	if !f.Since.IsZero() && a.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// Period is the sliding window used by alert statistics.
type Period string

const (
	PeriodHour Period = "1h"
	PeriodDay  Period = "24h"
	PeriodWeek Period = "7d"
)

// Duration returns the period length.
func (p Period) Duration() time.Duration {
	switch p {
	case PeriodHour:
		return time.Hour
	case PeriodWeek:
		return 7 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// ParsePeriod parses "1h", "24h" or "7d"; an empty string yields 24h.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "":
		return PeriodDay, nil
	case PeriodHour, PeriodDay, PeriodWeek:
		return Period(s), nil
	default:
		return "", fmt.Errorf("invalid alert stats period: %q", s)
	}
}

// Stats counts alerts raised within a period.
type Stats struct {
	Period         Period         `json:"period"`
	Total          int            `json:"total"`
	ByLevel        map[Level]int  `json:"byLevel"`
	Unacknowledged int            `json:"unacknowledged"`
	ByType         map[string]int `json:"byType"`
}

// NewStats returns zeroed stats with every level present.
func NewStats(p Period) Stats {
	s := Stats{
		Period:  p,
		ByLevel: make(map[Level]int, 3),
		ByType:  make(map[string]int),
	}
	for _, l := range Levels() {
		s.ByLevel[l] = 0
	}
	return s
}

// Add counts one alert.
func (s *Stats) Add(a *Alert) {
	s.Total++
	s.ByLevel[a.Level]++
	s.ByType[a.Type]++
	if !a.Acknowledged {
		s.Unacknowledged++
	}
}
