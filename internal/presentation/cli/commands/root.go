// Package commands implements the CLI commands for agentmon.
package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jbctechsolutions/agentmon/internal/application"
	"github.com/jbctechsolutions/agentmon/internal/infrastructure/config"
	"github.com/jbctechsolutions/agentmon/internal/presentation/cli/output"
)

// Version information - set at build time via ldflags.
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// EnvPrefix prefixes every environment override, e.g. AGENTMON_LOG_LEVEL.
const EnvPrefix = "AGENTMON"

const shutdownTimeout = 10 * time.Second

var errNotInitialized = errors.New("application not initialized")

// GlobalFlags holds the global CLI flags after flag, environment and default resolution.
type GlobalFlags struct {
	ConfigFile string
	LogLevel   string
	Output     string
	NoColor    bool
	DataDir    string
}

// AppContext holds the application runtime context.
type AppContext struct {
	Config     *config.Config
	ConfigPath string
	Loader     *config.Loader
	Formatter  *output.Formatter
	Flags      *GlobalFlags
	Container  *application.Container
	// Restored reports whether a snapshot was loaded at startup.
	Restored   bool
	cancelFunc context.CancelFunc
}

var (
	globalFlags GlobalFlags
	appCtx      *AppContext
	appCtxMu    sync.RWMutex // Protects appCtx for thread-safe access
)

// NewRootCmd creates the root command for the agentmon CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "agentmon",
		Short: "agentmon - runtime telemetry for agent executions",
		Long: `agentmon tracks the executions of AI agents: what they cost, how fast and
how reliably they run, and when something needs attention.

Key features:
  • Per-agent and per-department cost ledger with monthly budgets
  • Rolling 1h / 24h / 7d execution windows with error rate and latency alerts
  • Alert deduplication, escalation and fan-out to console, email, Slack and SSE
  • HTTP API and Prometheus exporter via "agentmon serve"

Every global flag can also be set through the environment, e.g.
AGENTMON_LOG_LEVEL=debug or AGENTMON_DATA_DIR=/var/lib/agentmon.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v, err := initConfig(cmd)
			if err != nil {
				return err
			}
			// Skip initialization for help, version, and completion commands
			if cmd.Name() == "help" || cmd.Name() == "version" || cmd.Name() == "completion" {
				return nil
			}
			return initializeApp(cmd, v)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "config file path (default: ~/.agentmon/config.yaml)")
	flags.String("log-level", "", "log level: debug, info, warn, error (default from config)")
	flags.StringP("output", "o", "text", "output format: text, json")
	flags.Bool("no-color", false, "disable colored output")
	flags.String("data-dir", "", "directory for snapshots and alert logs (default from config)")

	rootCmd.AddCommand(NewVersionCmd())
	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewMetricsCmd())
	rootCmd.AddCommand(NewCostsCmd())
	rootCmd.AddCommand(NewAlertsCmd())
	rootCmd.AddCommand(NewSimulateCmd())

	return rootCmd
}

// initConfig resolves the global flags. A flag set on the command line wins over its
// AGENTMON_ environment variable, which wins over the flag default.
func initConfig(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Root().PersistentFlags()); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	// Secrets and deployment settings that have no flag of their own.
	_ = v.BindEnv("storage-driver")
	_ = v.BindEnv("server-addr")
	_ = v.BindEnv("sendgrid-api-key", EnvPrefix+"_SENDGRID_API_KEY", "SENDGRID_API_KEY")
	_ = v.BindEnv("slack-webhook-url", EnvPrefix+"_SLACK_WEBHOOK_URL", "SLACK_WEBHOOK_URL")

	globalFlags = GlobalFlags{
		ConfigFile: v.GetString("config"),
		LogLevel:   v.GetString("log-level"),
		Output:     v.GetString("output"),
		NoColor:    v.GetBool("no-color"),
		DataDir:    v.GetString("data-dir"),
	}

	if _, err := output.ParseFormat(globalFlags.Output); err != nil {
		return nil, fmt.Errorf("invalid --output: %w", err)
	}
	return v, nil
}

// newFormatter creates the formatter for cmd's output stream.
func newFormatter(cmd *cobra.Command, flags *GlobalFlags) *output.Formatter {
	format, err := output.ParseFormat(flags.Output)
	if err != nil {
		format = output.FormatText
	}
	return output.NewFormatter(
		output.WithWriter(cmd.OutOrStdout()),
		output.WithFormat(format),
		output.WithColor(format != output.FormatJSON && !flags.NoColor && output.IsColorSupported()),
	)
}

// applyOverrides layers flag and environment settings over the loaded file.
func applyOverrides(v *viper.Viper, flags *GlobalFlags, cfg *config.Config) {
	if flags.LogLevel != "" {
		cfg.Logging.Level = flags.LogLevel
	}
	if flags.DataDir != "" {
		cfg.Storage.Directory = flags.DataDir
	}
	if s := v.GetString("storage-driver"); s != "" {
		cfg.Storage.Driver = s
	}
	if s := v.GetString("server-addr"); s != "" {
		cfg.Server.Addr = s
	}
	if s := v.GetString("sendgrid-api-key"); s != "" {
		cfg.Alerting.Channels.Email.APIKey = s
	}
	if s := v.GetString("slack-webhook-url"); s != "" {
		cfg.Alerting.Channels.Slack.WebhookURL = s
	}
}

// initializeApp loads the configuration, builds the container and warm-starts it from
// the latest snapshot.
func initializeApp(cmd *cobra.Command, v *viper.Viper) error {
	flags := globalFlags
	formatter := newFormatter(cmd, &flags)

	loader, err := config.NewLoader("")
	if err != nil {
		return fmt.Errorf("failed to create config loader: %w", err)
	}
	configPath := flags.ConfigFile
	if configPath == "" {
		configPath = loader.DefaultConfigPath()
	}
	configPath = config.ExpandPath(configPath)

	cfg, err := loader.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyOverrides(v, &flags, cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(cmd.Context())

	container, err := application.NewContainer(ctx, cfg, application.Options{})
	if err != nil {
		cancel()
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	restored, err := container.Restore(ctx)
	if err != nil {
		// A damaged snapshot should not keep the CLI from starting.
		container.Logger().Warn("could not restore snapshot", "error", err)
	}

	appCtxMu.Lock()
	appCtx = &AppContext{
		Config:     cfg,
		ConfigPath: configPath,
		Loader:     loader,
		Formatter:  formatter,
		Flags:      &flags,
		Container:  container,
		Restored:   restored,
		cancelFunc: cancel,
	}
	appCtxMu.Unlock()

	return nil
}

// GetAppContext returns the current application context.
// Returns nil if the app hasn't been initialized.
// Thread-safe via mutex protection.
func GetAppContext() *AppContext {
	appCtxMu.RLock()
	defer appCtxMu.RUnlock()
	return appCtx
}

// GetFormatter returns the output formatter.
// Creates a default formatter if app context is not initialized.
func GetFormatter() *output.Formatter {
	appCtxMu.RLock()
	ctx := appCtx
	appCtxMu.RUnlock()

	if ctx != nil {
		return ctx.Formatter
	}
	return output.NewFormatter(output.WithColor(output.IsColorSupported()))
}

// GetContainer returns the application container.
// Returns nil if the app hasn't been initialized.
func GetContainer() *application.Container {
	appCtxMu.RLock()
	ctx := appCtx
	appCtxMu.RUnlock()

	if ctx != nil {
		return ctx.Container
	}
	return nil
}

// mustApp returns the initialized context or errNotInitialized.
func mustApp() (*AppContext, error) {
	app := GetAppContext()
	if app == nil || app.Container == nil {
		return nil, errNotInitialized
	}
	return app, nil
}

// Shutdown cancels the application context and closes the container, which takes a
// final snapshot. It is safe to call when nothing was initialized.
func Shutdown() error {
	appCtxMu.Lock()
	ctx := appCtx
	appCtx = nil
	appCtxMu.Unlock()

	if ctx == nil {
		return nil
	}
	if ctx.cancelFunc != nil {
		ctx.cancelFunc()
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return ctx.Container.Close(closeCtx)
}

// Execute runs the root command with graceful shutdown support.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := NewRootCmd().ExecuteContext(ctx)
	interrupted := ctx.Err() != nil
	stop()

	stderr := output.NewFormatter(output.WithWriter(os.Stderr), output.WithColor(output.IsColorSupported()))
	if serr := Shutdown(); serr != nil {
		stderr.Warning("shutdown: %v", serr)
	}

	switch {
	case err != nil:
		stderr.Error("%s", err.Error())
		os.Exit(1)
	case interrupted:
		os.Exit(130) // Standard exit code for SIGINT
	}
}
