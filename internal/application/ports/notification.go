package ports

import (
	"context"

	"github.com/jbctechsolutions/agentmon/internal/domain/alert"
)

// AlertSink receives alerts produced by threshold checks.
// The cost ledger and metrics aggregator depend on it instead of the concrete manager.
type AlertSink interface {
	// AddAlerts submits a batch of candidates. It never fails the caller.
	AddAlerts(ctx context.Context, candidates []alert.Candidate)
}

// NotificationChannel delivers accepted alerts to a destination such as a log,
// an inbox, a chat webhook or a dashboard.
type NotificationChannel interface {
	// Name identifies the channel in logs.
	Name() string

	// Enabled reports whether the channel should receive alerts at all.
	Enabled() bool

	// CriticalOnly reports whether the channel only receives critical alerts.
	CriticalOnly() bool

	// Notify delivers one alert. Errors are logged by the caller and never retried.
	Notify(ctx context.Context, a alert.Alert) error
}
