package metrics

import (
	"fmt"
	"time"
)

// Span names a rolling window length.
type Span string

const (
	SpanHour Span = "1h"
	SpanDay  Span = "24h"
	SpanWeek Span = "7d"
)

// Spans lists the tracked window spans, shortest first.
func Spans() []Span {
	return []Span{SpanHour, SpanDay, SpanWeek}
}

// Duration returns the window length.
func (s Span) Duration() time.Duration {
	switch s {
	case SpanHour:
		return time.Hour
	case SpanDay:
		return 24 * time.Hour
	case SpanWeek:
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

// IsValid returns true if the span is a recognized value.
func (s Span) IsValid() bool {
	return s.Duration() > 0
}

// ParseSpan parses "1h", "24h" or "7d". An empty string yields the 24h default.
func ParseSpan(s string) (Span, error) {
	if s == "" {
		return SpanDay, nil
	}
	span := Span(s)
	if !span.IsValid() {
		return "", fmt.Errorf("invalid window span: %q", s)
	}
	return span, nil
}

// Window is a rolling, time-bounded sequence of records in append order.
// It is not safe for concurrent use; owners guard it with their own lock.
type Window struct {
	span    Span
	records []ExecutionRecord
}

// NewWindow creates an empty window.
func NewWindow(span Span) *Window {
	return &Window{span: span}
}

// RestoreWindow rebuilds a window from persisted records.
func RestoreWindow(span Span, records []ExecutionRecord) *Window {
	w := NewWindow(span)
	w.records = append(w.records, records...)
	return w
}

// Span returns the window span.
func (w *Window) Span() Span {
	return w.span
}

// Append adds a record at the tail.
func (w *Window) Append(r ExecutionRecord) {
	w.records = append(w.records, r)
}

// Sweep drops every record whose age at now exceeds the span and returns how many were dropped.
func (w *Window) Sweep(now time.Time) int {
	limit := w.span.Duration()
	kept := w.records[:0]
	for _, r := range w.records {
		if now.Sub(r.Timestamp) <= limit {
			kept = append(kept, r)
		}
	}
	dropped := len(w.records) - len(kept)
	// clear the tail so evicted records can be collected
	for i := len(kept); i < len(w.records); i++ {
		w.records[i] = ExecutionRecord{}
	}
	w.records = kept
	return dropped
}

// Len returns the number of records held.
func (w *Window) Len() int {
	return len(w.records)
}

// Records returns a copy of the records in append order.
func (w *Window) Records() []ExecutionRecord {
	out := make([]ExecutionRecord, len(w.records))
	copy(out, w.records)
	return out
}

// Stats computes the window statistics without copying.
func (w *Window) Stats() WindowStats {
	return ComputeWindowStats(w.records)
}
