// Package logging provides structured logging infrastructure for agentmon.
// It wraps Go's standard log/slog package with context-aware logging, correlation IDs,
// and telemetry-specific log attributes.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// contextKey is used for storing logger-related values in context.
type contextKey string

const (
	// CorrelationIDKey is the context key for correlation IDs.
	CorrelationIDKey contextKey = "correlation_id"
	// ExecutionIDKey is the context key for agent execution IDs.
	ExecutionIDKey contextKey = "execution_id"
	// AgentKey is the context key for agent names.
	AgentKey contextKey = "agent"
	// DepartmentKey is the context key for department names.
	DepartmentKey contextKey = "department"
)

// Level represents log levels.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format represents log output formats.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config holds logging configuration.
type Config struct {
	Level      Level
	Format     Format
	Output     io.Writer
	AddSource  bool
	TimeFormat string
}

// DefaultConfig returns sensible default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      LevelInfo,
		Format:     FormatText,
		Output:     os.Stderr,
		AddSource:  false,
		TimeFormat: time.RFC3339,
	}
}

// Logger wraps slog.Logger with context enrichment for agentmon.
type Logger struct {
	slogger *slog.Logger
	level   *slog.LevelVar
}

var (
	global     *Logger
	globalOnce sync.Once
)

// Init initializes the global logger with the provided configuration.
func Init(cfg Config) *Logger {
	globalOnce.Do(func() {
		global = New(cfg)
	})
	return global
}

// Default returns the global logger, initializing it with defaults if necessary.
func Default() *Logger {
	return Init(DefaultConfig())
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *Logger {
	return New(Config{Output: io.Discard, Level: LevelError})
}

// New creates a new Logger with the provided configuration.
func New(cfg Config) *Logger {
	level := new(slog.LevelVar)
	level.Set(parseLevel(cfg.Level))

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && cfg.TimeFormat != "" {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String(slog.TimeKey, t.Format(cfg.TimeFormat))
				}
			}
			return a
		},
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return &Logger{
		slogger: slog.New(handler),
		level:   level,
	}
}

// ParseLevel converts a string to a Level, falling back to info.
func ParseLevel(s string) Level {
	switch Level(s) {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return Level(s)
	default:
		return LevelInfo
	}
}

func parseLevel(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel dynamically changes the log level. Derived loggers follow the change.
func (l *Logger) SetLevel(level Level) {
	l.level.Set(parseLevel(level))
}

// Enabled reports whether records at the given level are emitted.
func (l *Logger) Enabled(level Level) bool {
	return parseLevel(level) >= l.level.Level()
}

// With returns a new Logger with the given attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slogger: l.slogger.With(args...),
		level:   l.level,
	}
}

// WithGroup returns a new Logger with the given group name.
func (l *Logger) WithGroup(name string) *Logger {
	return &Logger{
		slogger: l.slogger.WithGroup(name),
		level:   l.level,
	}
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, args ...any) {
	l.slogger.Debug(msg, args...)
}

// Info logs at info level.
func (l *Logger) Info(msg string, args ...any) {
	l.slogger.Info(msg, args...)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, args ...any) {
	l.slogger.Warn(msg, args...)
}

// Error logs at error level.
func (l *Logger) Error(msg string, args ...any) {
	l.slogger.Error(msg, args...)
}

// DebugContext logs at debug level with context.
func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.slogger.DebugContext(ctx, msg, l.enrichArgs(ctx, args)...)
}

// InfoContext logs at info level with context.
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.slogger.InfoContext(ctx, msg, l.enrichArgs(ctx, args)...)
}

// WarnContext logs at warn level with context.
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.slogger.WarnContext(ctx, msg, l.enrichArgs(ctx, args)...)
}

// ErrorContext logs at error level with context.
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.slogger.ErrorContext(ctx, msg, l.enrichArgs(ctx, args)...)
}

// enrichArgs extracts context values and adds them as log attributes.
func (l *Logger) enrichArgs(ctx context.Context, args []any) []any {
	enriched := make([]any, 0, len(args)+8)

	if v := ctx.Value(CorrelationIDKey); v != nil {
		enriched = append(enriched, "correlation_id", v)
	}
	if v := ctx.Value(ExecutionIDKey); v != nil {
		enriched = append(enriched, "execution_id", v)
	}
	if v := ctx.Value(AgentKey); v != nil {
		enriched = append(enriched, "agent", v)
	}
	if v := ctx.Value(DepartmentKey); v != nil {
		enriched = append(enriched, "department", v)
	}

	return append(enriched, args...)
}

// Underlying returns the underlying slog.Logger.
func (l *Logger) Underlying() *slog.Logger {
	return l.slogger
}

// --- Context helpers ---

// WithCorrelationID adds a correlation ID to the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, id)
}

// WithExecutionID adds an execution ID to the context.
func WithExecutionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ExecutionIDKey, id)
}

// WithAgent adds an agent name to the context.
func WithAgent(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, AgentKey, name)
}

// WithDepartment adds a department name to the context.
func WithDepartment(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, DepartmentKey, name)
}

// CorrelationID extracts the correlation ID from context.
func CorrelationID(ctx context.Context) string {
	if s, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return s
	}
	return ""
}

// ExecutionID extracts the execution ID from context.
func ExecutionID(ctx context.Context) string {
	if s, ok := ctx.Value(ExecutionIDKey).(string); ok {
		return s
	}
	return ""
}

// --- Telemetry logging helpers ---

// LogExecutionStart logs the start of an agent execution.
func LogExecutionStart(ctx context.Context, logger *Logger, agent string) {
	logger.DebugContext(ctx, "agent execution started",
		"agent_name", agent,
	)
}

// LogExecutionEnd logs the end of an agent execution.
func LogExecutionEnd(ctx context.Context, logger *Logger, agent, status string, duration time.Duration, tokens int, cost float64) {
	logger.InfoContext(ctx, "agent execution finished",
		"agent_name", agent,
		"status", status,
		"duration_ms", duration.Milliseconds(),
		"tokens", tokens,
		"cost_usd", cost,
	)
}

// LogCost logs a tracked cost.
func LogCost(ctx context.Context, logger *Logger, agent, department, model string, cost float64, inputTokens, outputTokens int) {
	logger.DebugContext(ctx, "cost tracked",
		"agent_name", agent,
		"department_name", department,
		"model", model,
		"cost_usd", cost,
		"input_tokens", inputTokens,
		"output_tokens", outputTokens,
	)
}

// LogBudgetCrossing logs a department crossing a budget threshold.
func LogBudgetCrossing(ctx context.Context, logger *Logger, department string, percent, spent, budget float64) {
	logger.WarnContext(ctx, "budget threshold crossed",
		"department_name", department,
		"percent", percent,
		"spent_usd", spent,
		"budget_usd", budget,
	)
}

// LogAlert logs an accepted alert.
func LogAlert(ctx context.Context, logger *Logger, id, level, alertType, message string) {
	logger.InfoContext(ctx, "alert raised",
		"alert_id", id,
		"level", level,
		"type", alertType,
		"message", message,
	)
}

// LogError logs an error with an operation name.
func LogError(ctx context.Context, logger *Logger, op string, err error) {
	logger.ErrorContext(ctx, op+" failed",
		"error", err.Error(),
	)
}
