// Package console logs alerts through the structured logger.
package console

import (
	"context"

	"github.com/jbctechsolutions/agentmon/internal/application/ports"
	"github.com/jbctechsolutions/agentmon/internal/domain/alert"
	"github.com/jbctechsolutions/agentmon/internal/infrastructure/logging"
)

// Channel writes every alert to the logger at a level matching its severity.
type Channel struct {
	logger  *logging.Logger
	enabled bool
}

var _ ports.NotificationChannel = (*Channel)(nil)

// New creates an enabled console channel.
func New(logger *logging.Logger) *Channel {
	if logger == nil {
		logger = logging.Default()
	}
	return &Channel{logger: logger.WithGroup("alert"), enabled: true}
}

// SetEnabled toggles the channel.
func (c *Channel) SetEnabled(enabled bool) { c.enabled = enabled }

func (c *Channel) Name() string       { return "console" }
func (c *Channel) Enabled() bool      { return c.enabled }
func (c *Channel) CriticalOnly() bool { return false }

// Notify logs the alert.
func (c *Channel) Notify(ctx context.Context, a alert.Alert) error {
	args := []any{
		"id", a.ID,
		"level", string(a.Level),
		"type", a.Type,
	}
	if a.EscalatedFrom != "" {
		args = append(args, "escalated_from", a.EscalatedFrom)
	}
	if len(a.Data) > 0 {
		args = append(args, "data", a.Data)
	}

	switch a.Level {
	case alert.LevelCritical:
		c.logger.ErrorContext(ctx, a.Message, args...)
	case alert.LevelWarning:
		c.logger.WarnContext(ctx, a.Message, args...)
	default:
		c.logger.InfoContext(ctx, a.Message, args...)
	}
	return nil
}
