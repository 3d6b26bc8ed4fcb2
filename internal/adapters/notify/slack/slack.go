// Package slack posts critical alerts to a Slack incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jbctechsolutions/agentmon/internal/adapters/notify"
	"github.com/jbctechsolutions/agentmon/internal/application/ports"
	"github.com/jbctechsolutions/agentmon/internal/domain/alert"
	domainerrors "github.com/jbctechsolutions/agentmon/internal/domain/errors"
)

// DefaultTimeout bounds a single webhook request.
const DefaultTimeout = 5 * time.Second

// Config configures the channel.
type Config struct {
	WebhookURL string
	Timeout    time.Duration
	Client     *http.Client
}

// Channel posts critical alerts to a webhook.
type Channel struct {
	url    string
	client *http.Client
}

var _ ports.NotificationChannel = (*Channel)(nil)

type payload struct {
	Text string `json:"text"`
}

// New creates the channel. It is disabled when no webhook URL is set.
func New(cfg Config) *Channel {
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Channel{url: cfg.WebhookURL, client: client}
}

func (c *Channel) Name() string       { return "slack" }
func (c *Channel) Enabled() bool      { return c.url != "" }
func (c *Channel) CriticalOnly() bool { return true }

// Notify posts the alert as a plain text message.
func (c *Channel) Notify(ctx context.Context, a alert.Alert) error {
	if !c.Enabled() {
		return domainerrors.ErrChannelUnavailable
	}

	body, err := json.Marshal(payload{Text: notify.Subject(a) + "\n\n" + notify.Body(a)})
	if err != nil {
		return domainerrors.NewError(domainerrors.CodeNotification, "encode slack payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return domainerrors.NewError(domainerrors.CodeNotification, "build slack request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return domainerrors.NewError(domainerrors.CodeNotification, "post slack webhook", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return domainerrors.NewError(domainerrors.CodeNotification,
			fmt.Sprintf("slack webhook returned status %d", resp.StatusCode), nil)
	}
	return nil
}
