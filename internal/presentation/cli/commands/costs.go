package commands

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/agentmon/internal/domain/cost"
	domainerrors "github.com/jbctechsolutions/agentmon/internal/domain/errors"
	"github.com/jbctechsolutions/agentmon/internal/infrastructure/config"
	"github.com/jbctechsolutions/agentmon/internal/presentation/cli/output"
)

// DepartmentSpend is one department's month-to-date spend against its budget.
type DepartmentSpend struct {
	Name        string   `json:"name"`
	Month       string   `json:"month"`
	MonthCost   float64  `json:"monthCost"`
	TotalCost   float64  `json:"totalCost"`
	Budget      float64  `json:"budget"`
	PercentUsed *float64 `json:"percentUsed,omitempty"`
	Agents      []string `json:"agents"`
}

// CostReport is the JSON form of "agentmon costs".
type CostReport struct {
	Agents      []*cost.AgentCost `json:"agents"`
	Departments []DepartmentSpend `json:"departments"`
	Today       float64           `json:"today"`
	ThisMonth   float64           `json:"thisMonth"`
}

// NewCostsCmd creates the costs command and its subcommands.
func NewCostsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "costs",
		Short: "Display agent and department costs",
		Long: `Display what each agent and department has spent, with month-to-date spend
against the department's monthly budget.`,
		Example: `  agentmon costs
  agentmon costs optimize
  agentmon costs budget engineering 7500`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := mustApp()
			if err != nil {
				return err
			}
			return runCosts(app, time.Now())
		},
	}

	cmd.AddCommand(newCostsOptimizeCmd())
	cmd.AddCommand(newCostsBudgetCmd())

	return cmd
}

func buildCostReport(app *AppContext, now time.Time) CostReport {
	ledger := app.Container.Ledger()
	snap := ledger.GetAllCosts()
	month := cost.MonthKey(now)

	report := CostReport{
		Agents:      make([]*cost.AgentCost, 0, len(snap.Agents)),
		Departments: make([]DepartmentSpend, 0, len(snap.Departments)),
	}
	for _, a := range snap.Agents {
		report.Agents = append(report.Agents, a)
	}
	sort.Slice(report.Agents, func(i, j int) bool {
		if report.Agents[i].TotalCost != report.Agents[j].TotalCost {
			return report.Agents[i].TotalCost > report.Agents[j].TotalCost
		}
		return report.Agents[i].Name < report.Agents[j].Name
	})

	for name, d := range snap.Departments {
		spend := DepartmentSpend{
			Name:      name,
			Month:     month,
			MonthCost: ledger.GetDepartmentMonthlyCost(name, month),
			TotalCost: d.TotalCost,
			Budget:    ledger.DepartmentBudget(name),
			Agents:    d.Agents,
		}
		if spend.Budget > 0 {
			pct := spend.MonthCost / spend.Budget * 100
			spend.PercentUsed = &pct
		}
		report.Departments = append(report.Departments, spend)
	}
	sort.Slice(report.Departments, func(i, j int) bool {
		return report.Departments[i].Name < report.Departments[j].Name
	})

	if b, ok := snap.Daily[cost.DayKey(now)]; ok {
		report.Today = b.TotalCost
	}
	if b, ok := snap.Monthly[month]; ok {
		report.ThisMonth = b.TotalCost
	}
	return report
}

func runCosts(app *AppContext, now time.Time) error {
	formatter := app.Formatter
	report := buildCostReport(app, now)

	if formatter.Format() == output.FormatJSON {
		return formatter.JSON(report)
	}

	formatter.Header("Costs")
	formatter.Item("Today", output.Money(report.Today))
	formatter.Item("This month", output.Money(report.ThisMonth))
	formatter.Println("")

	formatter.SubHeader("Agents")
	if len(report.Agents) == 0 {
		formatter.Println("  %s", formatter.Dim("no costs tracked"))
	} else {
		data := output.TableData{
			Columns: []output.TableColumn{
				{Header: "AGENT"},
				{Header: "DEPARTMENT"},
				{Header: "EXECUTIONS", Align: output.AlignRight},
				{Header: "TOKENS IN", Align: output.AlignRight},
				{Header: "TOKENS OUT", Align: output.AlignRight},
				{Header: "TOTAL", Align: output.AlignRight},
				{Header: "AVG", Align: output.AlignRight},
			},
		}
		for _, a := range report.Agents {
			data.Rows = append(data.Rows, []string{
				a.Name,
				a.Department,
				strconv.FormatInt(a.Executions, 10),
				strconv.FormatInt(a.TotalInputTokens, 10),
				strconv.FormatInt(a.TotalOutputTokens, 10),
				output.Money(a.TotalCost),
				output.Money(a.AvgCost()),
			})
		}
		if err := formatter.Table(data); err != nil {
			return err
		}
	}
	formatter.Println("")

	formatter.SubHeader("Departments")
	if len(report.Departments) == 0 {
		formatter.Println("  %s", formatter.Dim("no departments yet"))
		return nil
	}
	data := output.TableData{
		Columns: []output.TableColumn{
			{Header: "DEPARTMENT"},
			{Header: "MONTH", Align: output.AlignRight},
			{Header: "BUDGET", Align: output.AlignRight},
			{Header: "USED", Align: output.AlignRight},
			{Header: "ALL TIME", Align: output.AlignRight},
			{Header: "AGENTS", Align: output.AlignRight},
		},
	}
	for _, d := range report.Departments {
		used := "-"
		if d.PercentUsed != nil {
			used = fmt.Sprintf("%.1f%%", *d.PercentUsed)
		}
		data.Rows = append(data.Rows, []string{
			d.Name,
			output.Money(d.MonthCost),
			output.Money(d.Budget),
			used,
			output.Money(d.TotalCost),
			strconv.Itoa(len(d.Agents)),
		})
	}
	return formatter.Table(data)
}

func newCostsOptimizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "optimize",
		Short: "Suggest cheaper model tiers",
		Long: `List agents whose executions are cheap enough on average to move to a lower
model tier, largest estimated saving first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := mustApp()
			if err != nil {
				return err
			}
			return runCostsOptimize(app)
		},
	}
}

func runCostsOptimize(app *AppContext) error {
	formatter := app.Formatter
	opts := app.Container.Ledger().GetCostOptimizations()

	if formatter.Format() == output.FormatJSON {
		return formatter.JSON(opts)
	}

	if len(opts) == 0 {
		formatter.Success("No optimizations suggested")
		return nil
	}

	data := output.TableData{
		Columns: []output.TableColumn{
			{Header: "AGENT"},
			{Header: "DEPARTMENT"},
			{Header: "CURRENT"},
			{Header: "SUGGESTED"},
			{Header: "EXECUTIONS", Align: output.AlignRight},
			{Header: "COST", Align: output.AlignRight},
			{Header: "SAVINGS", Align: output.AlignRight},
		},
	}
	var total float64
	for _, o := range opts {
		total += o.EstimatedSavings
		data.Rows = append(data.Rows, []string{
			o.Agent,
			o.Department,
			string(o.CurrentTier),
			string(o.SuggestedTier),
			strconv.FormatInt(o.Executions, 10),
			output.Money(o.CurrentCost),
			output.Money(o.EstimatedSavings),
		})
	}
	if err := formatter.Table(data); err != nil {
		return err
	}
	formatter.Println("")
	return formatter.Info("Estimated savings: %s", output.Money(total))
}

func newCostsBudgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "budget <department> <amount>",
		Short: "Set a department's monthly budget",
		Long: `Set a department's monthly budget in USD and save it to the config file.
A running "agentmon serve" picks the change up through config hot reload.`,
		Example: `  agentmon costs budget engineering 7500`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := mustApp()
			if err != nil {
				return err
			}
			amount, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("%w: %q", domainerrors.ErrInvalidBudget, args[1])
			}
			return runCostsBudget(app, args[0], amount)
		},
	}
}

func runCostsBudget(app *AppContext, department string, amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return fmt.Errorf("%w: %v", domainerrors.ErrInvalidBudget, amount)
	}
	if err := app.Container.Ledger().SetDepartmentBudget(department, amount); err != nil {
		return err
	}

	// Reload the file rather than saving app.Config, which carries flag overrides.
	cfg, err := app.Loader.Load(app.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	setBudget(cfg, department, amount)
	if err := app.Loader.Save(cfg, app.ConfigPath); err != nil {
		return err
	}
	setBudget(app.Config, department, amount)

	formatter := app.Formatter
	if formatter.Format() == output.FormatJSON {
		return formatter.JSON(map[string]any{
			"department": department,
			"budget":     amount,
			"config":     app.ConfigPath,
		})
	}
	return formatter.Success("Budget for %s set to %s (%s)", department, output.Money(amount), app.ConfigPath)
}

func setBudget(cfg *config.Config, department string, amount float64) {
	if cfg.Costs.Budgets == nil {
		cfg.Costs.Budgets = make(map[string]float64)
	}
	cfg.Costs.Budgets[department] = amount
}
