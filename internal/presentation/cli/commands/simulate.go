package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/agentmon/internal/application/observability"
	"github.com/jbctechsolutions/agentmon/internal/domain/alert"
	"github.com/jbctechsolutions/agentmon/internal/domain/metrics"
	"github.com/jbctechsolutions/agentmon/internal/presentation/cli/output"
)

var errSimulatedFailure = errors.New("simulated failure")

type simulateOptions struct {
	Agent        string
	Department   string
	Model        string
	Count        int
	ErrorRate    float64
	Latency      time.Duration
	InputTokens  int
	OutputTokens int
	Seed         uint64
}

func (o simulateOptions) validate() error {
	switch {
	case o.Count <= 0:
		return fmt.Errorf("--count must be positive")
	case o.ErrorRate < 0 || o.ErrorRate > 1:
		return fmt.Errorf("--error-rate must be between 0 and 1")
	case o.Latency < 0:
		return fmt.Errorf("--latency must not be negative")
	case o.InputTokens < 0 || o.OutputTokens < 0:
		return fmt.Errorf("token counts must not be negative")
	}
	return nil
}

// SimulationSummary is the outcome of "agentmon simulate".
type SimulationSummary struct {
	Agent         string               `json:"agent"`
	Department    string               `json:"department"`
	Model         string               `json:"model"`
	Executions    int                  `json:"executions"`
	Succeeded     int                  `json:"succeeded"`
	Failed        int                  `json:"failed"`
	TotalCost     float64              `json:"totalCost"`
	AvgDurationMs float64              `json:"avgDurationMs"`
	Alerts        []alert.Alert        `json:"alerts"`
	Metrics       metrics.AgentMetrics `json:"metrics"`
}

// simulatedResult reports token usage back to the monitor.
type simulatedResult struct {
	usage observability.Usage
}

func (r simulatedResult) ExecutionUsage() observability.Usage { return r.usage }

// NewSimulateCmd creates the simulate command.
func NewSimulateCmd() *cobra.Command {
	opts := simulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Feed synthetic executions through the monitor",
		Long: `Run synthetic agent executions through the full tracking path: cost ledger,
metrics windows and alerting. Useful to try budgets, thresholds and notification
channels without a real agent. Results are saved with the next snapshot.`,
		Example: `  # 20 executions with a 30% failure rate
  agentmon simulate --agent writer --count 20 --error-rate 0.3

  # Expensive model, no artificial latency
  agentmon simulate --model claude-3-opus --latency 0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validate(); err != nil {
				return err
			}
			app, err := mustApp()
			if err != nil {
				return err
			}
			return runSimulate(cmd.Context(), app, opts, cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.Agent, "agent", "a", "simulated-agent", "agent name")
	flags.StringVarP(&opts.Department, "department", "d", "engineering", "department the agent belongs to")
	flags.StringVarP(&opts.Model, "model", "m", "claude-3-5-sonnet", "model reported by each execution")
	flags.IntVarP(&opts.Count, "count", "n", 10, "number of executions")
	flags.Float64Var(&opts.ErrorRate, "error-rate", 0.1, "probability that an execution fails")
	flags.DurationVar(&opts.Latency, "latency", 50*time.Millisecond, "mean execution latency")
	flags.IntVar(&opts.InputTokens, "input-tokens", 1200, "mean input tokens per execution")
	flags.IntVar(&opts.OutputTokens, "output-tokens", 400, "mean output tokens per execution")
	flags.Uint64Var(&opts.Seed, "seed", 0, "random seed (0 picks one)")

	return cmd
}

// jitter returns mean scaled by a random factor in [0.8, 1.2).
func jitter(rng *rand.Rand, mean int) int {
	return int(float64(mean) * (0.8 + 0.4*rng.Float64()))
}

func runSimulate(ctx context.Context, app *AppContext, opts simulateOptions, progress io.Writer) error {
	monitor, err := app.Container.Monitors().Monitor(opts.Agent, opts.Department)
	if err != nil {
		return err
	}

	seed := opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	formatter := app.Formatter
	asJSON := formatter.Format() == output.FormatJSON
	var bar *output.ProgressBar
	if !asJSON {
		bar = output.NewProgressBar(opts.Count, "Simulating",
			output.WithProgressBarWriter(progress),
			output.WithProgressBarColor(!app.Flags.NoColor && output.IsColorSupported()),
		)
	}

	started := time.Now()
	summary := SimulationSummary{
		Agent:      monitor.Agent(),
		Department: monitor.Department(),
		Model:      opts.Model,
	}
	var totalMs int64

	for i := 0; i < opts.Count; i++ {
		if ctx.Err() != nil {
			break
		}

		fail := rng.Float64() < opts.ErrorRate
		latency := time.Duration(jitter(rng, int(opts.Latency)))
		usage := observability.Usage{
			Model:        opts.Model,
			InputTokens:  jitter(rng, opts.InputTokens),
			OutputTokens: jitter(rng, opts.OutputTokens),
			APICalls:     1,
		}

		res := monitor.Execute(ctx, func(ctx context.Context) (any, error) {
			if latency > 0 {
				select {
				case <-ctx.Done():
					return simulatedResult{usage: usage}, ctx.Err()
				case <-time.After(latency):
				}
			}
			if fail {
				return simulatedResult{usage: usage}, errSimulatedFailure
			}
			return simulatedResult{usage: usage}, nil
		})

		summary.Executions++
		if res.Success {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
		if res.Metrics != nil {
			summary.TotalCost += res.Metrics.Cost.Cost
			totalMs += res.Metrics.Duration.Milliseconds()
		}
		if bar != nil {
			bar.Increment()
		}
	}
	if bar != nil {
		bar.Complete()
	}

	if summary.Executions > 0 {
		summary.AvgDurationMs = float64(totalMs) / float64(summary.Executions)
	}
	summary.Alerts = app.Container.Alerts().GetAlerts(alert.Filter{Since: started})
	summary.Metrics, _ = app.Container.Aggregator().GetAgentMetrics(summary.Agent)

	if asJSON {
		return formatter.JSON(summary)
	}
	return printSimulationSummary(formatter, summary)
}

func printSimulationSummary(formatter *output.Formatter, s SimulationSummary) error {
	formatter.Header(fmt.Sprintf("Simulated %d executions of %s", s.Executions, s.Agent))
	formatter.Item("Department", s.Department)
	formatter.Item("Model", s.Model)
	formatter.Item("Succeeded", strconv.Itoa(s.Succeeded))
	formatter.Item("Failed", strconv.Itoa(s.Failed))
	formatter.Item("Cost", output.Money(s.TotalCost))
	formatter.Item("Avg duration", output.Millis(s.AvgDurationMs))
	formatter.Item("Agent total", fmt.Sprintf("%d executions, %s error rate, %s",
		s.Metrics.Executions, output.Percent(s.Metrics.ErrorRate), output.Money(s.Metrics.TotalCost)))

	if len(s.Alerts) == 0 {
		return nil
	}
	formatter.Println("")
	formatter.SubHeader(fmt.Sprintf("Alerts raised (%d)", len(s.Alerts)))
	for _, a := range s.Alerts {
		formatter.BulletItem(fmt.Sprintf("%s [%s] %s", formatter.Level(a.Level), a.Type, a.Message))
	}
	return nil
}
