// Package tracing provides OpenTelemetry tracing for agentmon. It supports stdout and
// OTLP exporters and offers span helpers for agent executions and state snapshots.
package tracing

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// TracerName is the instrumentation name of the agentmon tracer.
	TracerName = "github.com/jbctechsolutions/agentmon"

	// Version is the instrumentation version.
	Version = "0.3.0"
)

// ExporterType defines the type of trace exporter.
type ExporterType string

const (
	ExporterNone   ExporterType = "none"
	ExporterStdout ExporterType = "stdout"
	ExporterOTLP   ExporterType = "otlp"
)

// Config holds tracing configuration.
type Config struct {
	Enabled      bool         `yaml:"enabled"`
	ExporterType ExporterType `yaml:"exporter"`
	OTLPEndpoint string       `yaml:"otlp_endpoint,omitempty"`
	ServiceName  string       `yaml:"service_name"`
	Environment  string       `yaml:"environment"`
	SampleRate   float64      `yaml:"sample_rate"`
	Output       io.Writer    `yaml:"-"` // stdout exporter target, defaults to os.Stdout
}

// DefaultConfig returns tracing disabled.
func DefaultConfig() Config {
	return Config{
		Enabled:      false,
		ExporterType: ExporterNone,
		ServiceName:  "agentmon",
		Environment:  "development",
		SampleRate:   1.0,
	}
}

// Tracer wraps an OpenTelemetry tracer with agentmon span helpers.
type Tracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	config   Config
}

var (
	global     *Tracer
	globalMu   sync.Mutex
	globalOnce sync.Once
)

// Init initializes the global tracer once.
func Init(ctx context.Context, cfg Config) (*Tracer, error) {
	var err error
	globalOnce.Do(func() {
		var t *Tracer
		t, err = New(ctx, cfg)
		globalMu.Lock()
		global = t
		globalMu.Unlock()
	})
	return Default(), err
}

// Default returns the global tracer, or a no-op tracer if Init was never called.
func Default() *Tracer {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		return Noop()
	}
	return global
}

// Noop returns a tracer that records nothing.
func Noop() *Tracer {
	return &Tracer{
		tracer: noop.NewTracerProvider().Tracer(TracerName),
		config: DefaultConfig(),
	}
}

// New creates a Tracer from cfg. A disabled config yields a no-op tracer.
func New(ctx context.Context, cfg Config) (*Tracer, error) {
	if !cfg.Enabled || cfg.ExporterType == ExporterNone {
		t := Noop()
		t.config = cfg
		return t, nil
	}

	exporter, err := createExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	// Not merged with resource.Default(): its schema URL can conflict with our semconv version.
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(Version),
			attribute.String("deployment.environment", cfg.Environment),
		),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRate)),
	)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	otel.SetTracerProvider(provider)

	return NewWithProvider(provider, cfg), nil
}

// NewWithProvider wraps an existing SDK provider, for example one backed by a span recorder.
func NewWithProvider(provider *sdktrace.TracerProvider, cfg Config) *Tracer {
	return &Tracer{
		tracer:   provider.Tracer(TracerName, trace.WithInstrumentationVersion(Version)),
		provider: provider,
		config:   cfg,
	}
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0.0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

func createExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		opts := []stdouttrace.Option{
			stdouttrace.WithPrettyPrint(),
		}
		if cfg.Output != nil {
			opts = append(opts, stdouttrace.WithWriter(cfg.Output))
		}
		return stdouttrace.New(opts...)

	case ExporterOTLP:
		opts := []otlptracehttp.Option{
			otlptracehttp.WithInsecure(),
		}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		return otlptracehttp.New(ctx, opts...)

	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", cfg.ExporterType)
	}
}

// Shutdown flushes and stops the provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider != nil {
		return t.provider.Shutdown(ctx)
	}
	return nil
}

// Start starts a new span with the given name.
func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// ExecutionSpan covers one agent execution.
type ExecutionSpan struct {
	span trace.Span
}

// StartExecutionSpan starts a span for an agent execution.
func (t *Tracer) StartExecutionSpan(ctx context.Context, executionID, agent, department string) (context.Context, *ExecutionSpan) {
	ctx, span := t.tracer.Start(ctx, "agent.execute",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("agent.name", agent),
			attribute.String("agent.department", department),
			attribute.String("execution.id", executionID),
		),
	)
	return ctx, &ExecutionSpan{span: span}
}

// SetUsage records token counts and the model.
func (es *ExecutionSpan) SetUsage(model string, input, output int) {
	es.span.SetAttributes(
		attribute.String("execution.model", model),
		attribute.Int("execution.tokens.input", input),
		attribute.Int("execution.tokens.output", output),
		attribute.Int("execution.tokens.total", input+output),
	)
}

// SetCost records the execution cost and the department's monthly spend.
func (es *ExecutionSpan) SetCost(cost, departmentMonthly float64) {
	es.span.SetAttributes(
		attribute.Float64("execution.cost_usd", cost),
		attribute.Float64("department.month_cost_usd", departmentMonthly),
	)
}

// SetResources records CPU time and memory delta.
func (es *ExecutionSpan) SetResources(cpuTimeMs, memoryDelta int64) {
	es.span.SetAttributes(
		attribute.Int64("execution.cpu_time_ms", cpuTimeMs),
		attribute.Int64("execution.memory_delta_bytes", memoryDelta),
	)
}

// End ends the span with the reported status.
func (es *ExecutionSpan) End(status string) {
	es.span.SetAttributes(attribute.String("execution.status", status))
	es.span.SetStatus(codes.Ok, "")
	es.span.End()
}

// EndWithError ends the span with an error status.
func (es *ExecutionSpan) EndWithError(status string, err error) {
	es.span.SetAttributes(attribute.String("execution.status", status))
	if err != nil {
		es.span.RecordError(err)
		es.span.SetStatus(codes.Error, err.Error())
	} else {
		es.span.SetStatus(codes.Error, status)
	}
	es.span.End()
}

// SnapshotSpan covers one persisted snapshot.
type SnapshotSpan struct {
	span trace.Span
}

// StartSnapshotSpan starts a span for taking and saving a snapshot.
func (t *Tracer) StartSnapshotSpan(ctx context.Context, snapshotID string) (context.Context, *SnapshotSpan) {
	ctx, span := t.tracer.Start(ctx, "state.snapshot",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("snapshot.id", snapshotID)),
	)
	return ctx, &SnapshotSpan{span: span}
}

// SetCounts records how much state the snapshot carries.
func (ss *SnapshotSpan) SetCounts(agents, alerts int) {
	ss.span.SetAttributes(
		attribute.Int("snapshot.agents", agents),
		attribute.Int("snapshot.alerts", alerts),
	)
}

// End ends the span, marking it failed when err is non-nil.
func (ss *SnapshotSpan) End(err error) {
	if err != nil {
		ss.span.RecordError(err)
		ss.span.SetStatus(codes.Error, err.Error())
	} else {
		ss.span.SetStatus(codes.Ok, "")
	}
	ss.span.End()
}

// AddEvent adds an event to the current span.
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// RecordAlert adds an alert event to the current span.
func RecordAlert(ctx context.Context, id, level, alertType string) {
	AddEvent(ctx, "alert",
		attribute.String("alert.id", id),
		attribute.String("alert.level", level),
		attribute.String("alert.type", alertType),
	)
}
