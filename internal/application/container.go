// Package application provides application-level services and dependency injection.
package application

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	promadapter "github.com/jbctechsolutions/agentmon/internal/adapters/metrics/prometheus"
	"github.com/jbctechsolutions/agentmon/internal/adapters/notify/console"
	"github.com/jbctechsolutions/agentmon/internal/adapters/notify/dashboard"
	"github.com/jbctechsolutions/agentmon/internal/adapters/notify/email"
	"github.com/jbctechsolutions/agentmon/internal/adapters/notify/slack"
	"github.com/jbctechsolutions/agentmon/internal/adapters/storage/file"
	"github.com/jbctechsolutions/agentmon/internal/adapters/storage/sqlite"
	"github.com/jbctechsolutions/agentmon/internal/application/aggregator"
	"github.com/jbctechsolutions/agentmon/internal/application/alerting"
	"github.com/jbctechsolutions/agentmon/internal/application/costledger"
	"github.com/jbctechsolutions/agentmon/internal/application/observability"
	"github.com/jbctechsolutions/agentmon/internal/application/persistence"
	"github.com/jbctechsolutions/agentmon/internal/application/ports"
	"github.com/jbctechsolutions/agentmon/internal/domain/provider"
	"github.com/jbctechsolutions/agentmon/internal/infrastructure/config"
	"github.com/jbctechsolutions/agentmon/internal/infrastructure/logging"
	"github.com/jbctechsolutions/agentmon/internal/infrastructure/sysinfo"
	"github.com/jbctechsolutions/agentmon/internal/infrastructure/tokenizer"
	"github.com/jbctechsolutions/agentmon/internal/infrastructure/tracing"
)

// SQLiteFileName is the database file created under the data directory by the sqlite driver.
const SQLiteFileName = "agentmon.db"

// Options override parts of the container's wiring.
type Options struct {
	Logger *logging.Logger
	Now    func() time.Time
	// Store replaces the store selected by the storage driver.
	Store ports.StatePort
}

// Container holds all application dependencies and provides a central
// point for dependency injection. It manages the lifecycle of services
// and ensures proper initialization order.
type Container struct {
	mu     sync.Mutex
	config *config.Config
	now    func() time.Time

	logger     *logging.Logger
	tracer     *tracing.Tracer
	calculator *provider.CostCalculator
	store      ports.StatePort
	probe      sysinfo.Probe

	consoleChannel *console.Channel
	dashboard      *dashboard.Broadcaster
	alerts         *alerting.Manager
	ledger         *costledger.Ledger
	aggregator     *aggregator.Aggregator
	monitors       *observability.Registry
	snapshotter    *persistence.Snapshotter

	collector *promadapter.Collector
	registry  *prometheus.Registry

	closeOnce sync.Once
}

// NewContainer creates a new dependency injection container with all services
// initialized based on the provided configuration.
func NewContainer(ctx context.Context, cfg *config.Config, opts Options) (*Container, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	c := &Container{
		config: cfg,
		now:    opts.Now,
		logger: opts.Logger,
		store:  opts.Store,
		probe:  sysinfo.New(),
	}
	if c.now == nil {
		c.now = time.Now
	}

	c.initLogging()

	if err := c.initTracing(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	c.calculator = provider.NewCostCalculator()
	if err := ApplyPricing(c.calculator, cfg.Costs.Pricing); err != nil {
		_ = c.Close(ctx)
		return nil, fmt.Errorf("failed to apply pricing: %w", err)
	}

	if err := c.initStore(); err != nil {
		_ = c.Close(ctx)
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	c.initAlerting()
	c.initTelemetry()
	c.initPersistence()

	c.collector = promadapter.NewCollector(promadapter.Config{
		Metrics: c.aggregator,
		Costs:   c.ledger,
		Alerts:  c.alerts,
		Now:     c.now,
	})
	c.registry = promadapter.NewRegistry(c.collector)

	return c, nil
}

func (c *Container) initLogging() {
	if c.logger != nil {
		return
	}
	c.logger = logging.New(logging.Config{
		Level:      logging.ParseLevel(c.config.Logging.Level),
		Format:     logging.Format(c.config.Logging.Format),
		TimeFormat: time.RFC3339,
	})
}

func (c *Container) initTracing(ctx context.Context) error {
	if !c.config.Tracing.Enabled {
		c.tracer = tracing.Noop()
		return nil
	}
	tracer, err := tracing.New(ctx, c.config.Tracing)
	if err != nil {
		return err
	}
	c.tracer = tracer
	return nil
}

// initStore opens the store selected by the storage driver.
func (c *Container) initStore() error {
	if c.store != nil {
		return nil
	}

	storage := c.config.Storage
	dir := config.ExpandPath(storage.Directory)
	switch storage.Driver {
	case config.StorageFile:
		s, err := file.New(dir)
		if err != nil {
			return err
		}
		c.store = s
	case config.StorageSQLite:
		s, err := sqlite.Open(filepath.Join(dir, SQLiteFileName))
		if err != nil {
			return err
		}
		c.store = s
	}
	return nil
}

func (c *Container) initAlerting() {
	cfg := c.config.Alerting
	ch := cfg.Channels

	c.consoleChannel = console.New(c.logger)
	c.consoleChannel.SetEnabled(ch.Console.Enabled)

	c.dashboard = dashboard.New(ch.Dashboard.Buffer)
	c.dashboard.SetEnabled(ch.Dashboard.Enabled)

	channels := []ports.NotificationChannel{c.consoleChannel, c.dashboard}
	if ch.Email.Enabled {
		channels = append(channels, email.New(email.Config{
			APIKey:    ch.Email.APIKey,
			FromName:  ch.Email.FromName,
			FromEmail: ch.Email.FromEmail,
			To:        ch.Email.To,
		}))
	}
	if ch.Slack.Enabled {
		channels = append(channels, slack.New(slack.Config{
			WebhookURL: ch.Slack.WebhookURL,
			Timeout:    ch.Slack.Timeout,
		}))
	}

	var alertLog ports.AlertLog
	if c.store != nil {
		alertLog = c.store
	}

	c.alerts = alerting.NewManager(alerting.Config{
		Logger:           c.logger.With("component", "alerts"),
		Channels:         channels,
		AlertLog:         alertLog,
		Now:              c.now,
		DedupWindow:      cfg.DedupWindow,
		EscalationWindow: cfg.EscalationWindow,
		SweepInterval:    cfg.SweepInterval,
		MaxHistory:       cfg.MaxHistory,
		PersistBuffer:    cfg.PersistBuffer,
	})
}

func (c *Container) initTelemetry() {
	costs := c.config.Costs
	c.ledger = costledger.New(costledger.Config{
		Logger:                    c.logger.With("component", "ledger"),
		Calculator:                c.calculator,
		Sink:                      c.alerts,
		Now:                       c.now,
		Budgets:                   costs.Budgets,
		DefaultBudget:             costs.DefaultBudget,
		CheapTaskThreshold:        costs.CheapTaskThreshold,
		OptimizationMinExecutions: costs.OptimizationMinExecutions,
	})

	m := c.config.Metrics
	c.aggregator = aggregator.New(aggregator.Config{
		Logger:              c.logger.With("component", "aggregator"),
		Sink:                c.alerts,
		Probe:               c.probe,
		Now:                 c.now,
		ErrorRateMinSamples: m.ErrorRateMinSamples,
		ErrorRateWarning:    m.ErrorRateWarning,
		ErrorRateCritical:   m.ErrorRateCritical,
		LatencyWarningMs:    float64(m.LatencyWarning.Milliseconds()),
	})

	c.monitors = observability.NewRegistry(observability.Config{
		Logger:     c.logger.With("component", "monitor"),
		Tracer:     c.tracer,
		Ledger:     c.ledger,
		Aggregator: c.aggregator,
		Alerts:     c.alerts,
		Sampler:    c.probe,
		Estimator:  tokenizer.New(),
		Now:        c.now,
	})
}

func (c *Container) initPersistence() {
	if c.store == nil {
		return
	}
	storage := c.config.Storage
	c.snapshotter = persistence.New(persistence.Config{
		Logger:         c.logger.With("component", "snapshotter"),
		Tracer:         c.tracer,
		Store:          c.store,
		Now:            c.now,
		Metrics:        c.aggregator,
		Costs:          c.ledger,
		Alerts:         c.alerts,
		Interval:       storage.SnapshotInterval,
		KeepSnapshots:  storage.KeepSnapshots,
		AlertRetention: storage.AlertRetention(),
	})
}

// ApplyPricing installs per-tier rate overrides keyed by tier name.
func ApplyPricing(calc *provider.CostCalculator, pricing map[string]config.RateOverride) error {
	var errs []error
	for name, rate := range pricing {
		tier, err := provider.ParseModelTier(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := calc.SetRate(tier, rate.Input, rate.Output); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Restore warm-starts the components from the store. It reports whether a snapshot
// was found and is a no-op without a store.
func (c *Container) Restore(ctx context.Context) (bool, error) {
	if c.snapshotter == nil {
		return false, nil
	}
	return c.snapshotter.Restore(ctx)
}

// Start launches the escalation sweep and the snapshot loop.
func (c *Container) Start(ctx context.Context) {
	c.alerts.Start(ctx)
	if c.snapshotter != nil {
		c.snapshotter.Start(ctx)
	}
}

// ApplyConfig pushes the hot-reloadable parts of cfg into the running components:
// log level, pricing overrides and department budgets. Budgets that did not change
// are left alone so their reported thresholds are kept.
func (c *Container) ApplyConfig(cfg *config.Config) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.SetLevel(logging.ParseLevel(cfg.Logging.Level))

	if err := ApplyPricing(c.calculator, cfg.Costs.Pricing); err != nil {
		c.logger.Warn("pricing overrides rejected", "error", err.Error())
	}

	for dept, budget := range cfg.Costs.Budgets {
		if c.ledger.DepartmentBudget(dept) == budget {
			continue
		}
		if err := c.ledger.SetDepartmentBudget(dept, budget); err != nil {
			c.logger.Warn("department budget rejected", "department", dept, "error", err.Error())
			continue
		}
		c.logger.Info("department budget updated", "department", dept, "budget_usd", budget)
	}

	c.config = cfg
}

// NewConfigWatcher returns a watcher that applies changes to the file at path.
func (c *Container) NewConfigWatcher(path string, loader *config.Loader) (*config.Watcher, error) {
	return config.NewWatcher(config.WatcherConfig{
		Path:   path,
		Loader: loader,
		Logger: c.logger.With("component", "config"),
		Apply:  c.ApplyConfig,
	})
}

// Close takes a final snapshot and releases all resources held by the container.
// It is safe to call more than once.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	c.closeOnce.Do(func() {
		if c.snapshotter != nil {
			if err := c.snapshotter.Stop(ctx); err != nil {
				errs = append(errs, fmt.Errorf("final snapshot: %w", err))
			}
		}
		if c.alerts != nil {
			c.alerts.Stop()
		}
		if c.dashboard != nil {
			c.dashboard.Close()
		}
		if c.tracer != nil {
			if err := c.tracer.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
			}
		}
		if c.store != nil {
			if err := c.store.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close store: %w", err))
			}
		}
	})
	return errors.Join(errs...)
}

// Config returns the current configuration.
func (c *Container) Config() *config.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// Logger returns the structured logger.
func (c *Container) Logger() *logging.Logger { return c.logger }

// Tracer returns the OpenTelemetry tracer.
func (c *Container) Tracer() *tracing.Tracer { return c.tracer }

// Store returns the state store, or nil when persistence is disabled.
func (c *Container) Store() ports.StatePort { return c.store }

// Alerts returns the alert manager.
func (c *Container) Alerts() *alerting.Manager { return c.alerts }

// Ledger returns the cost ledger.
func (c *Container) Ledger() *costledger.Ledger { return c.ledger }

// Aggregator returns the metrics aggregator.
func (c *Container) Aggregator() *aggregator.Aggregator { return c.aggregator }

// Monitors returns the per-agent execution monitor registry.
func (c *Container) Monitors() *observability.Registry { return c.monitors }

// Dashboard returns the live alert broadcaster.
func (c *Container) Dashboard() *dashboard.Broadcaster { return c.dashboard }

// Snapshotter returns the snapshotter, or nil when persistence is disabled.
func (c *Container) Snapshotter() *persistence.Snapshotter { return c.snapshotter }

// MetricsRegistry returns the Prometheus registry.
func (c *Container) MetricsRegistry() *prometheus.Registry { return c.registry }
