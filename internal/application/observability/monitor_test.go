package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbctechsolutions/agentmon/internal/application/aggregator"
	"github.com/jbctechsolutions/agentmon/internal/application/costledger"
	"github.com/jbctechsolutions/agentmon/internal/application/ports"
	"github.com/jbctechsolutions/agentmon/internal/domain/alert"
	domainerrors "github.com/jbctechsolutions/agentmon/internal/domain/errors"
	"github.com/jbctechsolutions/agentmon/internal/domain/metrics"
	"github.com/jbctechsolutions/agentmon/internal/infrastructure/logging"
	"github.com/jbctechsolutions/agentmon/internal/infrastructure/testutil"
)

var start = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

type stepSampler struct {
	mu    sync.Mutex
	calls int
}

// Each sample advances CPU by 25ms and heap by 1KiB.
func (s *stepSampler) Sample() ports.ResourceSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return ports.ResourceSample{CPUTimeMs: int64(s.calls) * 25, HeapBytes: int64(s.calls) * 1024}
}

type fixture struct {
	cfg    Config
	ledger *costledger.Ledger
	agg    *aggregator.Aggregator
	sink   *testutil.RecordingSink
	clock  *testutil.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sink := &testutil.RecordingSink{}
	clock := testutil.NewFakeClock(start)
	logger := logging.Discard()

	ledger := costledger.New(costledger.Config{Logger: logger, Sink: sink, Now: clock.Now})
	agg := aggregator.New(aggregator.Config{Logger: logger, Sink: sink, Now: clock.Now})

	return &fixture{
		cfg: Config{
			Logger:     logger,
			Ledger:     ledger,
			Aggregator: agg,
			Alerts:     sink,
			Sampler:    &stepSampler{},
			Now:        clock.Now,
		},
		ledger: ledger,
		agg:    agg,
		sink:   sink,
		clock:  clock,
	}
}

type reportedResult struct{ usage Usage }

func (r reportedResult) ExecutionUsage() Usage { return r.usage }

func TestEndExecution_WithoutStart(t *testing.T) {
	f := newFixture(t)
	m := NewMonitor("writer", "marketing", f.cfg)

	assert.Nil(t, m.EndExecution(context.Background(), metrics.StatusCompleted, Usage{}))
	_, found := f.agg.GetAgentMetrics("writer")
	assert.False(t, found)
}

func TestStartEndExecution(t *testing.T) {
	f := newFixture(t)
	m := NewMonitor("writer", "marketing", f.cfg)
	ctx := context.Background()

	m.StartExecution(ctx)
	f.clock.Advance(1500 * time.Millisecond)
	report := m.EndExecution(ctx, metrics.StatusCompleted, Usage{
		Model:        "claude-sonnet",
		InputTokens:  1_000_000,
		OutputTokens: 1_000_000,
		APICalls:     2,
	})

	require.NotNil(t, report)
	assert.Equal(t, "writer", report.Agent)
	assert.Equal(t, "marketing", report.Department)
	assert.Equal(t, 1500*time.Millisecond, report.Duration)
	assert.Equal(t, 25*time.Millisecond, report.CPUTime)
	assert.EqualValues(t, 1024, report.MemoryDelta)
	assert.InDelta(t, 18.0, report.Cost.Cost, 1e-9)
	assert.InDelta(t, 18.0, report.Cost.DepartmentCost, 1e-9)

	assert.EqualValues(t, 1, report.Metrics.Executions)
	assert.EqualValues(t, 2_000_000, report.Metrics.TotalTokens)
	assert.InDelta(t, 18.0, report.Metrics.TotalCost, 1e-9)
	assert.EqualValues(t, 2, report.Metrics.TotalAPICalls)
	assert.EqualValues(t, 25, report.Metrics.TotalCPUTimeMs)

	// The in-flight slot is cleared.
	assert.Nil(t, m.EndExecution(ctx, metrics.StatusCompleted, Usage{}))
}

func TestEndExecution_TokenResolution(t *testing.T) {
	tests := []struct {
		name       string
		usage      Usage
		wantInput  int
		wantOutput int
	}{
		{"explicit", Usage{InputTokens: 10, OutputTokens: 30}, 10, 30},
		{"combined split", Usage{TokensUsed: 41}, 20, 21},
		{"estimated from text", Usage{Prompt: "abcdefgh", Completion: "abcd"}, 2, 1},
		{"nothing", Usage{}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			m := NewMonitor("agent", "", f.cfg)
			ctx := m.StartExecution(context.Background())

			report := m.EndExecution(ctx, metrics.StatusCompleted, tt.usage)
			require.NotNil(t, report)
			assert.Equal(t, tt.wantInput, report.Cost.Breakdown.InputTokens)
			assert.Equal(t, tt.wantOutput, report.Cost.Breakdown.OutputTokens)
			assert.EqualValues(t, tt.wantInput+tt.wantOutput, report.Metrics.TotalTokens)
			assert.Equal(t, DefaultDepartment, report.Department)
		})
	}
}

func TestEndExecution_FailureAlert(t *testing.T) {
	f := newFixture(t)
	m := NewMonitor("writer", "marketing", f.cfg)
	ctx := m.StartExecution(context.Background())

	report := m.EndExecution(ctx, metrics.StatusFailed, Usage{Err: errors.New("rate limited"), Stack: "main.go:12"})
	require.NotNil(t, report)
	assert.EqualValues(t, 1, report.Metrics.Errors)

	alerts := f.sink.OfType(alert.TypeExecutionFailure)
	require.Len(t, alerts, 1)
	assert.Equal(t, alert.LevelWarning, alerts[0].Level)
	assert.Contains(t, alerts[0].Message, "rate limited")
	assert.Equal(t, "rate limited", alerts[0].Data["error"])
	assert.Equal(t, "main.go:12", alerts[0].Data["stack"])
	assert.Equal(t, report.ExecutionID, alerts[0].Data["executionId"])
}

func TestEndExecution_TimeoutIsNotFailure(t *testing.T) {
	f := newFixture(t)
	m := NewMonitor("writer", "", f.cfg)
	ctx := m.StartExecution(context.Background())

	report := m.EndExecution(ctx, metrics.StatusTimeout, Usage{})
	require.NotNil(t, report)
	assert.Empty(t, f.sink.OfType(alert.TypeExecutionFailure))
}

func TestStartExecution_AbandonsPrevious(t *testing.T) {
	f := newFixture(t)
	m := NewMonitor("writer", "", f.cfg)
	ctx := context.Background()

	m.StartExecution(ctx)
	f.clock.Advance(time.Minute)
	m.StartExecution(ctx)
	f.clock.Advance(time.Second)

	report := m.EndExecution(ctx, metrics.StatusCompleted, Usage{})
	require.NotNil(t, report)
	assert.Equal(t, time.Second, report.Duration)
	assert.EqualValues(t, 1, report.Metrics.Executions)
}

func TestBegin_IndependentExecutions(t *testing.T) {
	f := newFixture(t)
	m := NewMonitor("writer", "", f.cfg)
	ctx := context.Background()

	ctx1, first := m.Begin(ctx)
	f.clock.Advance(2 * time.Second)
	ctx2, second := m.Begin(ctx)
	f.clock.Advance(time.Second)

	assert.NotEqual(t, first.ID(), second.ID())

	r2 := second.End(ctx2, metrics.StatusCompleted, Usage{})
	r1 := first.End(ctx1, metrics.StatusCompleted, Usage{})
	require.NotNil(t, r1)
	require.NotNil(t, r2)
	assert.Equal(t, 3*time.Second, r1.Duration)
	assert.Equal(t, time.Second, r2.Duration)
	assert.EqualValues(t, 2, r1.Metrics.Executions)

	assert.Nil(t, first.End(ctx1, metrics.StatusCompleted, Usage{}), "second End is ignored")
}

func TestExecute_Success(t *testing.T) {
	f := newFixture(t)
	m := NewMonitor("writer", "", f.cfg)

	res := m.Execute(context.Background(), func(ctx context.Context) (any, error) {
		f.clock.Advance(250 * time.Millisecond)
		return reportedResult{usage: Usage{Model: "haiku", TokensUsed: 2_000_000}}, nil
	})

	assert.True(t, res.Success)
	assert.NoError(t, res.Error)
	require.NotNil(t, res.Metrics)
	assert.Equal(t, metrics.StatusCompleted, res.Metrics.Status)
	assert.Equal(t, 250*time.Millisecond, res.Metrics.Duration)
	assert.InDelta(t, 1.5, res.Metrics.Cost.Cost, 1e-9)
	assert.IsType(t, reportedResult{}, res.Result)
}

func TestExecute_Error(t *testing.T) {
	f := newFixture(t)
	m := NewMonitor("writer", "", f.cfg)
	boom := errors.New("boom")

	res := m.Execute(context.Background(), func(ctx context.Context) (any, error) {
		return nil, boom
	})

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Error, boom)
	assert.Nil(t, res.Result)
	require.NotNil(t, res.Metrics)
	assert.Equal(t, metrics.StatusError, res.Metrics.Status)

	alerts := f.sink.OfType(alert.TypeExecutionFailure)
	require.Len(t, alerts, 1)
	assert.NotEmpty(t, alerts[0].Data["stack"])
}

func TestExecute_Panic(t *testing.T) {
	f := newFixture(t)
	m := NewMonitor("writer", "", f.cfg)

	var res ExecutionResult
	require.NotPanics(t, func() {
		res = m.Execute(context.Background(), func(ctx context.Context) (any, error) {
			panic("nil map write")
		})
	})

	assert.False(t, res.Success)
	require.Error(t, res.Error)
	assert.Contains(t, res.Error.Error(), "nil map write")
	assert.EqualValues(t, 1, res.Metrics.Metrics.Errors)
	require.Len(t, f.sink.OfType(alert.TypeExecutionFailure), 1)
}

type pointerResult struct{ usage Usage }

func (r *pointerResult) ExecutionUsage() Usage { return r.usage }

func TestExecute_NilUsageReporter(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		success bool
	}{
		{"with error", errors.New("upstream timeout"), false},
		{"without error", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			m := NewMonitor("writer", "", f.cfg)

			var res ExecutionResult
			require.NotPanics(t, func() {
				res = m.Execute(context.Background(), func(ctx context.Context) (any, error) {
					var out *pointerResult
					return out, tt.err
				})
			})

			assert.Equal(t, tt.success, res.Success)
			require.NotNil(t, res.Metrics)
			assert.Zero(t, res.Metrics.Cost.Cost)
			assert.EqualValues(t, 1, res.Metrics.Metrics.Executions)

			failures := f.sink.OfType(alert.TypeExecutionFailure)
			if tt.err != nil {
				assert.ErrorIs(t, res.Error, tt.err)
				assert.Len(t, failures, 1)
			} else {
				assert.Empty(t, failures)
			}
		})
	}
}

func TestRecord(t *testing.T) {
	f := newFixture(t)
	m := NewMonitor("ingested", "research", f.cfg)

	report := m.Record(context.Background(), metrics.StatusCompleted, 4*time.Second, Usage{Model: "opus", InputTokens: 1000})
	require.NotNil(t, report)
	assert.Equal(t, 4*time.Second, report.Duration)
	assert.Zero(t, report.CPUTime)
	assert.Zero(t, report.MemoryDelta)
	assert.Equal(t, start.Add(-4*time.Second), report.StartedAt)
	assert.InDelta(t, 0.015, report.Cost.Cost, 1e-9)
}

func TestMonitor_WithoutCollaborators(t *testing.T) {
	m := NewMonitor("bare", "", Config{Logger: logging.Discard()})

	res := m.Execute(context.Background(), func(ctx context.Context) (any, error) {
		return reportedResult{usage: Usage{TokensUsed: 12}}, nil
	})
	require.True(t, res.Success)
	assert.Zero(t, res.Metrics.Cost.Cost)
}

func TestRegistry(t *testing.T) {
	f := newFixture(t)
	r := NewRegistry(f.cfg)

	_, err := r.Monitor("", "x")
	assert.ErrorIs(t, err, domainerrors.ErrAgentNameRequired)

	a, err := r.Monitor("writer", "marketing")
	require.NoError(t, err)
	b, err := r.Monitor("writer", "sales")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, "marketing", b.Department())

	_, err = r.Monitor("reader", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"reader", "writer"}, r.Agents())
}

func TestRegistry_DepartmentMismatchLogged(t *testing.T) {
	f := newFixture(t)
	buf := &bytes.Buffer{}
	f.cfg.Logger = logging.New(logging.Config{Level: logging.LevelWarn, Format: logging.FormatText, Output: buf})
	r := NewRegistry(f.cfg)

	_, err := r.Monitor("writer", "marketing")
	require.NoError(t, err)
	_, err = r.Monitor("writer", "marketing")
	require.NoError(t, err)
	_, err = r.Monitor("writer", "")
	require.NoError(t, err)
	assert.Empty(t, buf.String())

	m, err := r.Monitor("writer", "sales")
	require.NoError(t, err)
	assert.Equal(t, "marketing", m.Department())
	assert.Contains(t, buf.String(), "department mismatch")
	assert.Contains(t, buf.String(), "requested_department=sales")
}

func TestBegin_LogsDepartment(t *testing.T) {
	f := newFixture(t)
	buf := &bytes.Buffer{}
	f.cfg.Logger = logging.New(logging.Config{Level: logging.LevelDebug, Format: logging.FormatJSON, Output: buf})
	m := NewMonitor("writer", "research", f.cfg)

	ctx, e := m.Begin(context.Background())
	require.NotNil(t, e.End(ctx, metrics.StatusCompleted, Usage{}))

	line, _, _ := strings.Cut(buf.String(), "\n")
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "agent execution started", entry["msg"])
	assert.Equal(t, "research", entry["department"])
	assert.Equal(t, "writer", entry["agent"])
}

func TestConcurrentExecutions(t *testing.T) {
	f := newFixture(t)
	r := NewRegistry(f.cfg)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := r.Monitor("shared", "engineering")
			if !assert.NoError(t, err) {
				return
			}
			for j := 0; j < 25; j++ {
				m.Execute(context.Background(), func(ctx context.Context) (any, error) {
					return nil, nil
				})
			}
		}()
	}
	wg.Wait()

	got, found := f.agg.GetAgentMetrics("shared")
	require.True(t, found)
	assert.EqualValues(t, 100, got.Executions)
	c, found := f.ledger.GetAgentCost("shared")
	require.True(t, found)
	assert.EqualValues(t, 100, c.Executions)
}
