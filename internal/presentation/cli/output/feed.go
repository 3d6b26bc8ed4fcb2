package output

import (
	"context"
	"fmt"

	"github.com/jbctechsolutions/agentmon/internal/domain/alert"
)

// AlertFeed prints alerts as they arrive, one line each. In JSON mode every alert is
// written as a compact JSON object per line.
type AlertFeed struct {
	f *Formatter
}

// NewAlertFeed creates a feed writing through f.
func NewAlertFeed(f *Formatter) *AlertFeed {
	return &AlertFeed{f: f}
}

// Write renders one alert.
func (a *AlertFeed) Write(al alert.Alert) error {
	if a.f.Format() == FormatJSON {
		return a.f.JSONCompact(al)
	}

	level := a.f.Colorize(fmt.Sprintf("%-8s", al.Level), LevelColor(al.Level))
	line := fmt.Sprintf("%s  %s  %-18s %s",
		a.f.Dim(al.Timestamp.Local().Format("15:04:05")),
		level,
		al.Type,
		al.Message,
	)
	if al.Acknowledged {
		line += a.f.Dim(" (acknowledged)")
	}
	return a.f.Println("%s", line)
}

// Follow writes alerts from ch until it is closed or ctx is done, and returns how many
// were written.
func (a *AlertFeed) Follow(ctx context.Context, ch <-chan alert.Alert) int {
	n := 0
	for {
		select {
		case <-ctx.Done():
			return n
		case al, ok := <-ch:
			if !ok {
				return n
			}
			if err := a.Write(al); err == nil {
				n++
			}
		}
	}
}
