// Package email sends critical alerts through SendGrid.
package email

import (
	"context"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/jbctechsolutions/agentmon/internal/adapters/notify"
	"github.com/jbctechsolutions/agentmon/internal/application/ports"
	"github.com/jbctechsolutions/agentmon/internal/domain/alert"
	domainerrors "github.com/jbctechsolutions/agentmon/internal/domain/errors"
)

// Sender delivers one message. *sendgrid.Client satisfies it.
type Sender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// Config configures the channel.
type Config struct {
	APIKey    string
	FromName  string
	FromEmail string
	To        []string

	// Sender overrides the SendGrid client, for tests.
	Sender Sender
}

// Channel emails critical alerts.
type Channel struct {
	cfg    Config
	sender Sender
}

var _ ports.NotificationChannel = (*Channel)(nil)

// New creates the channel. It is disabled unless an API key (or Sender), a from address
// and at least one recipient are configured.
func New(cfg Config) *Channel {
	if cfg.FromName == "" {
		cfg.FromName = "agentmon"
	}
	sender := cfg.Sender
	if sender == nil && cfg.APIKey != "" {
		sender = sendgrid.NewSendClient(cfg.APIKey)
	}
	return &Channel{cfg: cfg, sender: sender}
}

func (c *Channel) Name() string       { return "email" }
func (c *Channel) CriticalOnly() bool { return true }

// Enabled reports whether the channel is fully configured.
func (c *Channel) Enabled() bool {
	return c.sender != nil && c.cfg.FromEmail != "" && len(c.cfg.To) > 0
}

// Message builds the SendGrid message for a.
func (c *Channel) Message(a alert.Alert) *mail.SGMailV3 {
	subject := notify.Subject(a)
	body := notify.Body(a)

	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(c.cfg.FromName, c.cfg.FromEmail))
	m.Subject = subject

	p := mail.NewPersonalization()
	for _, to := range c.cfg.To {
		p.AddTos(mail.NewEmail("", to))
	}
	m.AddPersonalizations(p)
	m.AddContent(mail.NewContent("text/plain", body))
	return m
}

// Notify sends the alert. Non-2xx responses are errors.
func (c *Channel) Notify(ctx context.Context, a alert.Alert) error {
	if !c.Enabled() {
		return domainerrors.ErrChannelUnavailable
	}

	resp, err := c.sender.SendWithContext(ctx, c.Message(a))
	if err != nil {
		return domainerrors.NewError(domainerrors.CodeNotification, "sendgrid send", err)
	}
	if resp.StatusCode >= 300 {
		return domainerrors.NewError(domainerrors.CodeNotification,
			fmt.Sprintf("sendgrid returned status %d", resp.StatusCode), nil)
	}
	return nil
}
