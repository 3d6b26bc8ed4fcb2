package commands

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	domainerrors "github.com/jbctechsolutions/agentmon/internal/domain/errors"
	"github.com/jbctechsolutions/agentmon/internal/domain/metrics"
	"github.com/jbctechsolutions/agentmon/internal/presentation/cli/output"
)

// NewMetricsCmd creates the metrics command.
func NewMetricsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics [agent]",
		Short: "Display execution metrics",
		Long: `Display execution metrics from the latest snapshot.

Without an argument this prints system totals, the rolling 1h / 24h / 7d windows
and a summary row per agent. With an agent name it prints that agent's counters
and windows.`,
		Example: `  # System overview
  agentmon metrics

  # One agent, as JSON
  agentmon metrics writer -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := mustApp()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				return runAgentMetrics(app, args[0])
			}
			return runSystemMetrics(app)
		},
	}

	return cmd
}

func runSystemMetrics(app *AppContext) error {
	formatter := app.Formatter
	all := app.Container.Aggregator().GetAllMetrics()

	if formatter.Format() == output.FormatJSON {
		return formatter.JSON(all)
	}

	sys := all.System
	formatter.Header("System")
	formatter.Item("Uptime", output.Millis(float64(sys.UptimeMs)))
	formatter.Item("Executions", strconv.FormatInt(sys.TotalExecutions, 10))
	formatter.Item("Errors", fmt.Sprintf("%d (%s)", sys.TotalErrors, output.Percent(sys.ErrorRate)))
	formatter.Item("Total cost", output.Money(sys.TotalCost))
	formatter.Item("Last hour", fmt.Sprintf("%d executions, avg %s", sys.ExecutionsLastHour, output.Millis(sys.AvgResponseTimeMs)))
	formatter.Item("Goroutines", strconv.Itoa(sys.Health.Goroutines))
	if sys.Health.TotalMemory > 0 {
		formatter.Item("Host memory", fmt.Sprintf("%d MiB free of %d MiB", sys.Health.FreeMemory>>20, sys.Health.TotalMemory>>20))
	}
	formatter.Println("")

	formatter.SubHeader("Windows")
	if err := formatter.Table(windowTable(sys.Windows)); err != nil {
		return err
	}
	formatter.Println("")

	formatter.SubHeader("Agents")
	if len(all.Agents) == 0 {
		formatter.Println("  %s", formatter.Dim("no executions recorded"))
		return nil
	}
	return formatter.Table(agentTable(all.Agents))
}

func runAgentMetrics(app *AppContext, name string) error {
	formatter := app.Formatter
	m, ok := app.Container.Aggregator().GetAgentMetrics(name)
	if !ok {
		return fmt.Errorf("%w: %s", domainerrors.ErrAgentNotFound, name)
	}

	if formatter.Format() == output.FormatJSON {
		return formatter.JSON(m)
	}

	formatter.Header(m.Name)
	formatter.Item("Executions", strconv.FormatInt(m.Executions, 10))
	formatter.Item("Errors", fmt.Sprintf("%d (%s)", m.Errors, output.Percent(m.ErrorRate)))
	formatter.Item("Avg duration", output.Millis(m.AvgDurationMs))
	formatter.Item("Total cost", output.Money(m.TotalCost))
	formatter.Item("Avg cost", output.Money(m.AvgCost))
	formatter.Item("Tokens", strconv.FormatInt(m.TotalTokens, 10))
	formatter.Item("API calls", strconv.FormatInt(m.TotalAPICalls, 10))
	formatter.Item("Last execution", output.Timestamp(m.LastExecutionTime))
	formatter.Println("")

	formatter.SubHeader("Windows")
	return formatter.Table(windowTable(m.Windows))
}

func windowTable(windows map[metrics.Span]metrics.WindowStats) output.TableData {
	data := output.TableData{
		Columns: []output.TableColumn{
			{Header: "WINDOW"},
			{Header: "EXECUTIONS", Align: output.AlignRight},
			{Header: "ERRORS", Align: output.AlignRight},
			{Header: "ERROR RATE", Align: output.AlignRight},
			{Header: "MEAN", Align: output.AlignRight},
			{Header: "COST", Align: output.AlignRight},
			{Header: "TOKENS", Align: output.AlignRight},
		},
	}
	for _, span := range metrics.Spans() {
		w := windows[span]
		data.Rows = append(data.Rows, []string{
			string(span),
			strconv.Itoa(w.Count),
			strconv.Itoa(w.Errors),
			output.Percent(w.ErrorRate),
			output.Millis(w.MeanDurationMs),
			output.Money(w.TotalCost),
			strconv.FormatInt(w.TotalTokens, 10),
		})
	}
	return data
}

func agentTable(agents map[string]metrics.AgentMetrics) output.TableData {
	names := make([]string, 0, len(agents))
	for name := range agents {
		names = append(names, name)
	}
	sort.Strings(names)

	data := output.TableData{
		Columns: []output.TableColumn{
			{Header: "AGENT"},
			{Header: "EXECUTIONS", Align: output.AlignRight},
			{Header: "ERROR RATE", Align: output.AlignRight},
			{Header: "AVG DURATION", Align: output.AlignRight},
			{Header: "COST", Align: output.AlignRight},
			{Header: "LAST 24H", Align: output.AlignRight},
		},
	}
	for _, name := range names {
		m := agents[name]
		data.Rows = append(data.Rows, []string{
			name,
			strconv.FormatInt(m.Executions, 10),
			output.Percent(m.ErrorRate),
			output.Millis(m.AvgDurationMs),
			output.Money(m.TotalCost),
			strconv.Itoa(m.Windows[metrics.SpanDay].Count),
		})
	}
	return data
}
