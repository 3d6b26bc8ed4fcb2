// Package config provides configuration structs and utilities for agentmon.
package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/jbctechsolutions/agentmon/internal/domain/provider"
	"github.com/jbctechsolutions/agentmon/internal/infrastructure/tracing"
)

// Config represents the root configuration for agentmon.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  tracing.Config `yaml:"tracing"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Costs    CostsConfig    `yaml:"costs"`
	Alerting AlertingConfig `yaml:"alerting"`
	Storage  StorageConfig  `yaml:"storage"`
	Server   ServerConfig   `yaml:"server"`
}

// LoggingConfig holds configuration for application logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig holds the aggregator's alert thresholds.
type MetricsConfig struct {
	ErrorRateMinSamples int           `yaml:"error_rate_min_samples"`
	ErrorRateWarning    float64       `yaml:"error_rate_warning"`
	ErrorRateCritical   float64       `yaml:"error_rate_critical"`
	LatencyWarning      time.Duration `yaml:"latency_warning"`
}

// RateOverride replaces the per-million-token prices of a tier.
type RateOverride struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// CostsConfig holds pricing overrides and department budgets.
type CostsConfig struct {
	Pricing                   map[string]RateOverride `yaml:"pricing,omitempty"` // keyed by tier: haiku, sonnet, opus
	Budgets                   map[string]float64      `yaml:"budgets,omitempty"`
	DefaultBudget             float64                 `yaml:"default_budget"`
	CheapTaskThreshold        float64                 `yaml:"cheap_task_threshold"`
	OptimizationMinExecutions int64                   `yaml:"optimization_min_executions"`
}

// AlertingConfig holds the alert manager's tuning and its channels.
type AlertingConfig struct {
	DedupWindow      time.Duration  `yaml:"dedup_window"`
	EscalationWindow time.Duration  `yaml:"escalation_window"`
	SweepInterval    time.Duration  `yaml:"sweep_interval"`
	MaxHistory       int            `yaml:"max_history"`
	PersistBuffer    int            `yaml:"persist_buffer"`
	Channels         ChannelsConfig `yaml:"channels"`
}

// ChannelsConfig configures the notification channels.
type ChannelsConfig struct {
	Console   ConsoleConfig   `yaml:"console"`
	Email     EmailConfig     `yaml:"email"`
	Slack     SlackConfig     `yaml:"slack"`
	Dashboard DashboardConfig `yaml:"dashboard"`
}

// ConsoleConfig configures the structured-log channel.
type ConsoleConfig struct {
	Enabled bool `yaml:"enabled"`
}

// EmailConfig configures the SendGrid channel.
type EmailConfig struct {
	Enabled   bool     `yaml:"enabled"`
	APIKey    string   `yaml:"api_key,omitempty"`
	FromName  string   `yaml:"from_name"`
	FromEmail string   `yaml:"from_email"`
	To        []string `yaml:"to,omitempty"`
}

// SlackConfig configures the incoming-webhook channel.
type SlackConfig struct {
	Enabled    bool          `yaml:"enabled"`
	WebhookURL string        `yaml:"webhook_url,omitempty"`
	Timeout    time.Duration `yaml:"timeout"`
}

// DashboardConfig configures the live alert broadcaster.
type DashboardConfig struct {
	Enabled bool `yaml:"enabled"`
	Buffer  int  `yaml:"buffer"`
}

// Storage drivers.
const (
	StorageNone   = "none"
	StorageFile   = "file"
	StorageSQLite = "sqlite"
)

// StorageConfig holds snapshot and alert-log persistence settings.
type StorageConfig struct {
	Driver             string        `yaml:"driver"` // none, file, sqlite
	Directory          string        `yaml:"directory"`
	SnapshotInterval   time.Duration `yaml:"snapshot_interval"`
	KeepSnapshots      int           `yaml:"keep_snapshots"`
	AlertRetentionDays int           `yaml:"alert_retention_days"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MetricsPath string `yaml:"metrics_path"`
}

// Default configuration values.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"

	DefaultErrorRateMinSamples = 10
	DefaultErrorRateWarning    = 0.10
	DefaultErrorRateCritical   = 0.25
	DefaultLatencyWarning      = 30 * time.Second

	DefaultMonthlyBudget             = 1000.0
	DefaultCheapTaskThreshold        = 0.01
	DefaultOptimizationMinExecutions = 100

	DefaultDedupWindow      = time.Hour
	DefaultEscalationWindow = time.Hour
	DefaultSweepInterval    = 5 * time.Minute
	DefaultMaxHistory       = 500
	DefaultPersistBuffer    = 256
	DefaultSlackTimeout     = 5 * time.Second
	DefaultDashboardBuffer  = 32

	DefaultStorageDriver      = StorageFile
	DefaultDataDirectory      = "~/.agentmon/data"
	DefaultSnapshotInterval   = time.Hour
	DefaultKeepSnapshots      = 24
	DefaultAlertRetentionDays = 30

	DefaultServerAddr  = "127.0.0.1:9464"
	DefaultMetricsPath = "/metrics"
)

// Valid log levels.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Valid log formats.
var validLogFormats = map[string]bool{
	"json": true,
	"text": true,
}

// Valid tracing exporter types.
var validTracingExporterTypes = map[tracing.ExporterType]bool{
	tracing.ExporterNone:   true,
	tracing.ExporterStdout: true,
	tracing.ExporterOTLP:   true,
}

var validStorageDrivers = map[string]bool{
	StorageNone:   true,
	StorageFile:   true,
	StorageSQLite: true,
}

// NewDefaultConfig creates a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Tracing: tracing.DefaultConfig(),
		Metrics: MetricsConfig{
			ErrorRateMinSamples: DefaultErrorRateMinSamples,
			ErrorRateWarning:    DefaultErrorRateWarning,
			ErrorRateCritical:   DefaultErrorRateCritical,
			LatencyWarning:      DefaultLatencyWarning,
		},
		Costs: CostsConfig{
			DefaultBudget:             DefaultMonthlyBudget,
			CheapTaskThreshold:        DefaultCheapTaskThreshold,
			OptimizationMinExecutions: DefaultOptimizationMinExecutions,
		},
		Alerting: AlertingConfig{
			DedupWindow:      DefaultDedupWindow,
			EscalationWindow: DefaultEscalationWindow,
			SweepInterval:    DefaultSweepInterval,
			MaxHistory:       DefaultMaxHistory,
			PersistBuffer:    DefaultPersistBuffer,
			Channels: ChannelsConfig{
				Console:   ConsoleConfig{Enabled: true},
				Email:     EmailConfig{FromName: "agentmon"},
				Slack:     SlackConfig{Timeout: DefaultSlackTimeout},
				Dashboard: DashboardConfig{Enabled: true, Buffer: DefaultDashboardBuffer},
			},
		},
		Storage: StorageConfig{
			Driver:             DefaultStorageDriver,
			Directory:          DefaultDataDirectory,
			SnapshotInterval:   DefaultSnapshotInterval,
			KeepSnapshots:      DefaultKeepSnapshots,
			AlertRetentionDays: DefaultAlertRetentionDays,
		},
		Server: ServerConfig{
			Addr:        DefaultServerAddr,
			MetricsPath: DefaultMetricsPath,
		},
	}
}

// Validate checks if the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}
	if err := validateTracing(&c.Tracing); err != nil {
		errs = append(errs, fmt.Errorf("tracing: %w", err))
	}
	if err := c.Metrics.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("metrics: %w", err))
	}
	if err := c.Costs.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("costs: %w", err))
	}
	if err := c.Alerting.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("alerting: %w", err))
	}
	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server: addr is required"))
	}

	return errors.Join(errs...)
}

// Validate checks if the LoggingConfig is valid.
func (l *LoggingConfig) Validate() error {
	var errs []error

	if l.Level != "" && !validLogLevels[l.Level] {
		errs = append(errs, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", l.Level))
	}
	if l.Format != "" && !validLogFormats[l.Format] {
		errs = append(errs, fmt.Errorf("invalid log format %q: must be one of json, text", l.Format))
	}

	return errors.Join(errs...)
}

func validateTracing(t *tracing.Config) error {
	if !t.Enabled {
		return nil
	}

	var errs []error
	if t.ExporterType != "" && !validTracingExporterTypes[t.ExporterType] {
		errs = append(errs, fmt.Errorf("invalid exporter %q: must be one of none, stdout, otlp", t.ExporterType))
	}
	if t.ExporterType == tracing.ExporterOTLP && t.OTLPEndpoint == "" {
		errs = append(errs, errors.New("otlp_endpoint is required when exporter is 'otlp'"))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		errs = append(errs, errors.New("sample_rate must be between 0.0 and 1.0"))
	}
	if t.ServiceName == "" {
		errs = append(errs, errors.New("service_name is required when tracing is enabled"))
	}
	return errors.Join(errs...)
}

// Validate checks if the MetricsConfig is valid.
func (m *MetricsConfig) Validate() error {
	var errs []error

	if m.ErrorRateMinSamples < 0 {
		errs = append(errs, errors.New("error_rate_min_samples must be non-negative"))
	}
	if m.ErrorRateWarning < 0 || m.ErrorRateWarning > 1 {
		errs = append(errs, errors.New("error_rate_warning must be between 0.0 and 1.0"))
	}
	if m.ErrorRateCritical < 0 || m.ErrorRateCritical > 1 {
		errs = append(errs, errors.New("error_rate_critical must be between 0.0 and 1.0"))
	}
	if m.ErrorRateWarning > 0 && m.ErrorRateCritical > 0 && m.ErrorRateCritical < m.ErrorRateWarning {
		errs = append(errs, errors.New("error_rate_critical must not be below error_rate_warning"))
	}
	if m.LatencyWarning < 0 {
		errs = append(errs, errors.New("latency_warning must be non-negative"))
	}

	return errors.Join(errs...)
}

// Validate checks if the CostsConfig is valid.
func (c *CostsConfig) Validate() error {
	var errs []error

	for name, rate := range c.Pricing {
		if _, err := provider.ParseModelTier(name); err != nil {
			errs = append(errs, fmt.Errorf("pricing: %w", err))
		}
		if rate.Input < 0 || rate.Output < 0 {
			errs = append(errs, fmt.Errorf("pricing %s: prices must be non-negative", name))
		}
	}
	for dept, budget := range c.Budgets {
		if math.IsNaN(budget) || math.IsInf(budget, 0) {
			errs = append(errs, fmt.Errorf("budget %s: must be a finite number", dept))
		}
	}
	if math.IsNaN(c.DefaultBudget) || math.IsInf(c.DefaultBudget, 0) {
		errs = append(errs, errors.New("default_budget must be a finite number"))
	}
	if c.CheapTaskThreshold < 0 {
		errs = append(errs, errors.New("cheap_task_threshold must be non-negative"))
	}

	return errors.Join(errs...)
}

// Validate checks if the AlertingConfig is valid.
func (a *AlertingConfig) Validate() error {
	var errs []error

	if a.DedupWindow < 0 || a.EscalationWindow < 0 || a.SweepInterval < 0 {
		errs = append(errs, errors.New("windows and intervals must be non-negative"))
	}
	if a.MaxHistory < 0 {
		errs = append(errs, errors.New("max_history must be non-negative"))
	}

	email := a.Channels.Email
	if email.Enabled {
		if email.FromEmail == "" {
			errs = append(errs, errors.New("channels.email: from_email is required when enabled"))
		}
		if len(email.To) == 0 {
			errs = append(errs, errors.New("channels.email: at least one recipient is required when enabled"))
		}
	}

	slack := a.Channels.Slack
	if slack.Enabled {
		if slack.WebhookURL == "" {
			errs = append(errs, errors.New("channels.slack: webhook_url is required when enabled"))
		} else if u, err := url.Parse(slack.WebhookURL); err != nil {
			errs = append(errs, fmt.Errorf("channels.slack: invalid webhook_url: %w", err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errs = append(errs, errors.New("channels.slack: webhook_url must use http or https scheme"))
		}
		if slack.Timeout < 0 {
			errs = append(errs, errors.New("channels.slack: timeout must be non-negative"))
		}
	}

	return errors.Join(errs...)
}

// Validate checks if the StorageConfig is valid.
func (s *StorageConfig) Validate() error {
	var errs []error

	if !validStorageDrivers[s.Driver] {
		errs = append(errs, fmt.Errorf("invalid driver %q: must be one of none, file, sqlite", s.Driver))
	}
	if s.Driver != StorageNone && s.Directory == "" {
		errs = append(errs, errors.New("directory is required unless driver is 'none'"))
	}
	if s.SnapshotInterval < 0 {
		errs = append(errs, errors.New("snapshot_interval must be non-negative"))
	}
	if s.KeepSnapshots < 0 || s.AlertRetentionDays < 0 {
		errs = append(errs, errors.New("retention settings must be non-negative"))
	}

	return errors.Join(errs...)
}

// AlertRetention returns the alert-log retention as a duration.
func (s *StorageConfig) AlertRetention() time.Duration {
	return time.Duration(s.AlertRetentionDays) * 24 * time.Hour
}
