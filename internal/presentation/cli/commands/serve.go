package commands

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	promadapter "github.com/jbctechsolutions/agentmon/internal/adapters/metrics/prometheus"
	"github.com/jbctechsolutions/agentmon/internal/presentation/api"
	"github.com/jbctechsolutions/agentmon/internal/presentation/cli/output"
)

type serveOptions struct {
	Addr   string
	Follow bool
	Watch  bool
}

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	opts := serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background loops",
		Long: `Run the agentmon HTTP API until interrupted.

While serving, agentmon:
  • exposes the read API under /api/v1 and Prometheus metrics under /metrics
  • ingests executions posted to /api/v1/executions
  • escalates unacknowledged alerts and snapshots state on an interval
  • reloads pricing, budgets and log level when the config file changes

State is restored from the latest snapshot on start and saved again on shutdown.`,
		Example: `  # Serve on the configured address
  agentmon serve

  # Serve on all interfaces and print alerts as they are raised
  agentmon serve --addr 0.0.0.0:9464 --follow`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default from config)")
	cmd.Flags().BoolVarP(&opts.Follow, "follow", "f", false, "print alerts to stdout as they are raised")
	cmd.Flags().BoolVar(&opts.Watch, "watch-config", true, "reload the config file when it changes")

	return cmd
}

// newAPIServer wires the HTTP API to the container.
func newAPIServer(app *AppContext, addr string) *api.Server {
	c := app.Container
	cfg := c.Config()
	if addr == "" {
		addr = cfg.Server.Addr
	}
	return api.NewServer(api.Config{
		Addr:           addr,
		MetricsPath:    cfg.Server.MetricsPath,
		Logger:         c.Logger(),
		Metrics:        c.Aggregator(),
		Costs:          c.Ledger(),
		Alerts:         c.Alerts(),
		Monitors:       c.Monitors(),
		Stream:         c.Dashboard(),
		MetricsHandler: promadapter.Handler(c.MetricsRegistry()),
	})
}

func runServe(ctx context.Context, opts serveOptions) error {
	app, err := mustApp()
	if err != nil {
		return err
	}
	c := app.Container
	formatter := app.Formatter

	gin.SetMode(gin.ReleaseMode)

	c.Start(ctx)

	if opts.Watch {
		watcher, err := c.NewConfigWatcher(app.ConfigPath, app.Loader)
		if err == nil {
			if err = watcher.Start(ctx); err != nil {
				_ = watcher.Close()
			}
		}
		if err != nil {
			c.Logger().Warn("config hot reload disabled", "path", app.ConfigPath, "error", err)
		} else {
			defer watcher.Close()
		}
	}

	srv := newAPIServer(app, opts.Addr)

	if opts.Follow {
		alerts, unsubscribe := c.Dashboard().Subscribe()
		defer unsubscribe()
		go output.NewAlertFeed(formatter).Follow(ctx, alerts)
	}

	if formatter.Format() != output.FormatJSON {
		formatter.Info("agentmon listening on http://%s (restored: %t)", srv.Addr(), app.Restored)
	}

	return srv.Run(ctx)
}
