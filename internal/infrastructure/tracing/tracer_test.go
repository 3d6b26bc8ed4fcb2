package tracing

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingTracer(t *testing.T) (*Tracer, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return NewWithProvider(provider, DefaultConfig()), recorder
}

func attrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, ExporterNone, cfg.ExporterType)
	assert.Equal(t, "agentmon", cfg.ServiceName)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestNew_Disabled(t *testing.T) {
	ctx := context.Background()
	tracer, err := New(ctx, Config{Enabled: false, ExporterType: ExporterNone})
	require.NoError(t, err)

	_, span := tracer.Start(ctx, "noop")
	require.NotNil(t, span)
	span.End()
	assert.NoError(t, tracer.Shutdown(ctx))
}

func TestNew_UnsupportedExporter(t *testing.T) {
	_, err := New(context.Background(), Config{Enabled: true, ExporterType: "jaeger"})
	assert.Error(t, err)
}

func TestNew_StdoutExporter(t *testing.T) {
	ctx := context.Background()
	buf := &bytes.Buffer{}

	tracer, err := New(ctx, Config{
		Enabled:      true,
		ExporterType: ExporterStdout,
		ServiceName:  "test-service",
		Environment:  "test",
		SampleRate:   1.0,
		Output:       buf,
	})
	require.NoError(t, err)
	require.NotNil(t, tracer.provider)

	_, es := tracer.StartExecutionSpan(ctx, "exec-1", "writer", "marketing")
	es.End("completed")
	require.NoError(t, tracer.Shutdown(ctx))

	assert.Contains(t, buf.String(), "agent.execute")
}

func TestExecutionSpan(t *testing.T) {
	tracer, recorder := newRecordingTracer(t)
	ctx := context.Background()

	_, es := tracer.StartExecutionSpan(ctx, "exec-1", "writer", "marketing")
	es.SetUsage("claude-sonnet", 100, 50)
	es.SetCost(0.01, 12.5)
	es.SetResources(40, 2048)
	es.End("completed")

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "agent.execute", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)

	a := attrs(spans[0])
	assert.Equal(t, "writer", a["agent.name"].AsString())
	assert.Equal(t, int64(150), a["execution.tokens.total"].AsInt64())
	assert.Equal(t, 0.01, a["execution.cost_usd"].AsFloat64())
	assert.Equal(t, "completed", a["execution.status"].AsString())
}

func TestExecutionSpan_Error(t *testing.T) {
	tracer, recorder := newRecordingTracer(t)

	_, es := tracer.StartExecutionSpan(context.Background(), "exec-2", "writer", "default")
	es.EndWithError("error", errors.New("upstream timeout"))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "upstream timeout", spans[0].Status().Description)
	require.Len(t, spans[0].Events(), 1)
}

func TestSnapshotSpan(t *testing.T) {
	tracer, recorder := newRecordingTracer(t)

	_, ss := tracer.StartSnapshotSpan(context.Background(), "snap-1")
	ss.SetCounts(3, 10)
	ss.End(nil)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, int64(10), attrs(spans[0])["snapshot.alerts"].AsInt64())
}

func TestRecordAlert(t *testing.T) {
	tracer, recorder := newRecordingTracer(t)

	ctx, span := tracer.Start(context.Background(), "parent")
	RecordAlert(ctx, "alert_1", "warning", "latency")
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	events := spans[0].Events()
	require.Len(t, events, 1)
	assert.Equal(t, "alert", events[0].Name)
}

func TestDefault_Noop(t *testing.T) {
	tracer := Default()
	require.NotNil(t, tracer)

	_, es := tracer.StartExecutionSpan(context.Background(), "x", "y", "z")
	es.End("completed")
}
