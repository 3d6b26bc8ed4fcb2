package commands

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/agentmon/internal/domain/alert"
	domainerrors "github.com/jbctechsolutions/agentmon/internal/domain/errors"
	"github.com/jbctechsolutions/agentmon/internal/presentation/cli/output"
)

// NewAlertsCmd creates the alerts command and its subcommands.
func NewAlertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List, summarize and acknowledge alerts",
		Long: `Work with the persisted alert history: list alerts, summarize them over a
period, or acknowledge one so it is no longer escalated.`,
	}

	cmd.AddCommand(newAlertsListCmd())
	cmd.AddCommand(newAlertsStatsCmd())
	cmd.AddCommand(newAlertsAckCmd())

	return cmd
}

type alertsListOptions struct {
	Level   string
	Type    string
	Unacked bool
	Since   time.Duration
	Limit   int
}

func (o alertsListOptions) filter(now time.Time) (alert.Filter, error) {
	f := alert.Filter{Type: o.Type, Limit: o.Limit}
	if o.Level != "" {
		level, err := alert.ParseLevel(o.Level)
		if err != nil {
			return f, err
		}
		f.Level = level
	}
	if o.Unacked {
		acked := false
		f.Acknowledged = &acked
	}
	if o.Since > 0 {
		f.Since = now.Add(-o.Since)
	}
	if o.Limit < 0 {
		return f, fmt.Errorf("--limit must not be negative")
	}
	return f, nil
}

func newAlertsListCmd() *cobra.Command {
	opts := alertsListOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List alerts, newest first",
		Example: `  # Unacknowledged critical alerts from the last day
  agentmon alerts list --level critical --unacked --since 24h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := mustApp()
			if err != nil {
				return err
			}
			return runAlertsList(app, opts, time.Now())
		},
	}

	cmd.Flags().StringVar(&opts.Level, "level", "", "only alerts of this level: info, warning, critical")
	cmd.Flags().StringVar(&opts.Type, "type", "", "only alerts of this type, e.g. budget_exceeded")
	cmd.Flags().BoolVar(&opts.Unacked, "unacked", false, "only unacknowledged alerts")
	cmd.Flags().DurationVar(&opts.Since, "since", 0, "only alerts raised within this duration, e.g. 24h")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 50, "maximum number of alerts (0 for all)")

	return cmd
}

func runAlertsList(app *AppContext, opts alertsListOptions, now time.Time) error {
	f, err := opts.filter(now)
	if err != nil {
		return err
	}

	formatter := app.Formatter
	alerts := app.Container.Alerts().GetAlerts(f)

	if len(alerts) == 0 && formatter.Format() != output.FormatJSON {
		formatter.Println("%s", formatter.Dim("no alerts"))
		return nil
	}

	data := output.TableData{
		Columns: []output.TableColumn{
			{Header: "ID"},
			{Header: "TIME"},
			{Header: "LEVEL"},
			{Header: "TYPE"},
			{Header: "ACK"},
			{Header: "MESSAGE"},
		},
	}
	for _, a := range alerts {
		ack := ""
		if a.Acknowledged {
			ack = "yes"
		}
		data.Rows = append(data.Rows, []string{
			a.ID,
			output.Timestamp(a.Timestamp),
			string(a.Level),
			a.Type,
			ack,
			a.Message,
		})
	}
	return formatter.FormatAuto(alerts, &data)
}

func newAlertsStatsCmd() *cobra.Command {
	var period string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize alerts over a period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := mustApp()
			if err != nil {
				return err
			}
			return runAlertsStats(app, period)
		},
	}

	cmd.Flags().StringVarP(&period, "period", "p", "24h", "period: 1h, 24h or 7d")

	return cmd
}

func runAlertsStats(app *AppContext, period string) error {
	p, err := alert.ParsePeriod(period)
	if err != nil {
		return fmt.Errorf("%w: %w", domainerrors.ErrInvalidPeriod, err)
	}

	formatter := app.Formatter
	stats := app.Container.Alerts().GetAlertStats(p)

	if formatter.Format() == output.FormatJSON {
		return formatter.JSON(stats)
	}

	formatter.Header("Alerts, last " + string(stats.Period))
	formatter.Item("Total", strconv.Itoa(stats.Total))
	formatter.Item("Unacknowledged", strconv.Itoa(stats.Unacknowledged))
	for _, level := range alert.Levels() {
		formatter.Item(formatter.Level(level), strconv.Itoa(stats.ByLevel[level]))
	}

	if len(stats.ByType) == 0 {
		return nil
	}
	formatter.Println("")
	formatter.SubHeader("By type")

	types := make([]string, 0, len(stats.ByType))
	for t := range stats.ByType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		if stats.ByType[types[i]] != stats.ByType[types[j]] {
			return stats.ByType[types[i]] > stats.ByType[types[j]]
		}
		return types[i] < types[j]
	})

	data := output.TableData{
		Columns: []output.TableColumn{
			{Header: "TYPE"},
			{Header: "COUNT", Align: output.AlignRight},
		},
	}
	for _, t := range types {
		data.Rows = append(data.Rows, []string{t, strconv.Itoa(stats.ByType[t])})
	}
	return formatter.Table(data)
}

func newAlertsAckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ack <id>",
		Short: "Acknowledge an alert",
		Long: `Acknowledge an alert so it is no longer escalated. Acknowledging an alert
twice is not an error. The change is saved with the next snapshot, which is
taken when the command exits.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := mustApp()
			if err != nil {
				return err
			}
			return runAlertsAck(app, args[0])
		},
	}
}

func runAlertsAck(app *AppContext, id string) error {
	alerts := app.Container.Alerts()
	if !alerts.AcknowledgeAlert(id) {
		return fmt.Errorf("%w: %s", domainerrors.ErrAlertNotFound, id)
	}
	if app.Container.Store() == nil {
		app.Container.Logger().Warn("storage is disabled; acknowledgement will not be kept", "alert_id", id)
	}

	a, _ := alerts.GetAlert(id)
	formatter := app.Formatter
	if formatter.Format() == output.FormatJSON {
		return formatter.JSON(a)
	}
	return formatter.Success("Acknowledged %s (%s %s)", a.ID, a.Level, a.Type)
}
