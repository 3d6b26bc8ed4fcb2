package output

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbctechsolutions/agentmon/internal/domain/alert"
)

func sampleAlert() alert.Alert {
	return alert.Alert{
		ID:        "a1",
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Level:     alert.LevelCritical,
		Type:      "budget_exceeded",
		Message:   "engineering over budget",
	}
}

func TestAlertFeed_Text(t *testing.T) {
	var buf bytes.Buffer
	feed := NewAlertFeed(NewFormatter(WithWriter(&buf), WithColor(false)))

	require.NoError(t, feed.Write(sampleAlert()))

	out := buf.String()
	assert.Contains(t, out, "critical")
	assert.Contains(t, out, "budget_exceeded")
	assert.Contains(t, out, "engineering over budget")
	assert.NotContains(t, out, "\033[")
}

func TestAlertFeed_Acknowledged(t *testing.T) {
	var buf bytes.Buffer
	feed := NewAlertFeed(NewFormatter(WithWriter(&buf), WithColor(false)))

	a := sampleAlert()
	a.Acknowledged = true
	require.NoError(t, feed.Write(a))

	assert.Contains(t, buf.String(), "(acknowledged)")
}

func TestAlertFeed_JSONLines(t *testing.T) {
	var buf bytes.Buffer
	feed := NewAlertFeed(NewFormatter(WithWriter(&buf), WithFormat(FormatJSON)))

	require.NoError(t, feed.Write(sampleAlert()))

	var got alert.Alert
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "a1", got.ID)
	assert.Equal(t, alert.LevelCritical, got.Level)
}

func TestAlertFeed_Follow(t *testing.T) {
	var buf bytes.Buffer
	feed := NewAlertFeed(NewFormatter(WithWriter(&buf), WithColor(false)))

	ch := make(chan alert.Alert, 2)
	ch <- sampleAlert()
	ch <- sampleAlert()
	close(ch)

	assert.Equal(t, 2, feed.Follow(context.Background(), ch))
}

func TestAlertFeed_FollowStopsOnCancel(t *testing.T) {
	feed := NewAlertFeed(NewFormatter(WithWriter(&bytes.Buffer{})))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Zero(t, feed.Follow(ctx, make(chan alert.Alert)))
}
