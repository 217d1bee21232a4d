package operations

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callpulse/pkg/contracts/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubStep is a scriptable step for exercising the manager.
type stubStep struct {
	BaseStep
	execute  func(ctx context.Context, state *State) (Result, error)
	validate func(state *State) error
}

func newStubStep(id string, deps ...string) *stubStep {
	return &stubStep{BaseStep: NewBaseStep(id, id, deps...)}
}

func (s *stubStep) Execute(ctx context.Context, state *State) (Result, error) {
	if s.execute != nil {
		return s.execute(ctx, state)
	}
	return Result{Message: s.ID() + " done"}, nil
}

func (s *stubStep) Validate(state *State) error {
	if s.validate != nil {
		return s.validate(state)
	}
	return nil
}

// orderRecorder collects step execution order across goroutines.
type orderRecorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *orderRecorder) record(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
}

func (r *orderRecorder) order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func recordingStub(rec *orderRecorder, id string, deps ...string) *stubStep {
	step := newStubStep(id, deps...)
	step.execute = func(ctx context.Context, state *State) (Result, error) {
		rec.record(id)
		return Result{Message: id + " done"}, nil
	}
	return step
}

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func newTestManager(t *testing.T, registry *Registry, cfg *Config) *Manager {
	t.Helper()
	if cfg == nil {
		cfg = NewConfig()
		cfg.Retry = fastRetry(1)
	}
	m := NewManager(nil, registry, cfg, testLogger())
	t.Cleanup(func() { m.Broadcaster().Stop() })
	return m
}

func stepInfo(t *testing.T, resp *Response, id string) domain.StepInfo {
	t.Helper()
	for _, info := range resp.Steps {
		if info.ID == id {
			return info
		}
	}
	t.Fatalf("step %s not in response", id)
	return domain.StepInfo{}
}

func TestManager_Execute_RunsStepsInDependencyOrder(t *testing.T) {
	rec := &orderRecorder{}
	registry := NewRegistry()
	require.NoError(t, registry.Register(recordingStub(rec, "load")))
	require.NoError(t, registry.Register(recordingStub(rec, "validate", "load")))
	require.NoError(t, registry.Register(recordingStub(rec, "clean", "validate")))

	m := newTestManager(t, registry, nil)
	resp, err := m.Execute(context.Background(), Request{Options: domain.RunOptions{Input: "calls.csv"}})

	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, domain.RunStatusCompleted, resp.Status)
	assert.Equal(t, []string{"load", "validate", "clean"}, rec.order())

	for _, id := range []string{"load", "validate", "clean"} {
		assert.Equal(t, string(StepStatusCompleted), stepInfo(t, resp, id).Status)
	}
}

func TestManager_Execute_DefaultsIDAndTrigger(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(newStubStep("load")))

	m := newTestManager(t, registry, nil)
	resp, err := m.Execute(context.Background(), Request{})
	require.NoError(t, err)
	require.NotEmpty(t, resp.ID)

	state, err := m.GetRun(resp.ID)
	require.NoError(t, err)
	assert.Equal(t, TriggerCLI, state.Trigger())
}

func TestManager_Execute_NoStepsRegistered(t *testing.T) {
	m := newTestManager(t, NewRegistry(), nil)
	_, err := m.Execute(context.Background(), Request{})

	require.Error(t, err)
	assert.Equal(t, ErrorTypeFatal, GetErrorType(err))
}

func TestManager_Execute_ValidationSkipContinuesRun(t *testing.T) {
	rec := &orderRecorder{}
	registry := NewRegistry()
	require.NoError(t, registry.Register(recordingStub(rec, "kpis")))

	insights := newStubStep("insights", "kpis")
	insights.validate = func(state *State) error {
		return errors.New("llm disabled for this run")
	}
	insights.execute = func(ctx context.Context, state *State) (Result, error) {
		rec.record("insights")
		return Result{}, nil
	}
	require.NoError(t, registry.Register(insights))

	// Depends on the skipped step, so it must be skipped too
	require.NoError(t, registry.Register(recordingStub(rec, "narrative", "insights")))
	// Depends only on kpis, so it still runs
	require.NoError(t, registry.Register(recordingStub(rec, "report", "kpis")))

	m := newTestManager(t, registry, nil)
	resp, err := m.Execute(context.Background(), Request{Options: domain.RunOptions{SkipLLM: true}})

	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, resp.Status)
	assert.Equal(t, []string{"kpis", "report"}, rec.order())

	assert.Equal(t, string(StepStatusSkipped), stepInfo(t, resp, "insights").Status)
	assert.Equal(t, string(StepStatusSkipped), stepInfo(t, resp, "narrative").Status)
	assert.Equal(t, string(StepStatusCompleted), stepInfo(t, resp, "report").Status)
}

func TestManager_Execute_FailureAbortsRunAndSkipsDependents(t *testing.T) {
	rec := &orderRecorder{}
	registry := NewRegistry()
	require.NoError(t, registry.Register(recordingStub(rec, "load")))

	validate := newStubStep("validate", "load")
	validate.execute = func(ctx context.Context, state *State) (Result, error) {
		return Result{}, errors.New("insufficient data: 5 rows, need at least 30")
	}
	require.NoError(t, registry.Register(validate))
	require.NoError(t, registry.Register(recordingStub(rec, "clean", "validate")))

	m := newTestManager(t, registry, nil)
	resp, err := m.Execute(context.Background(), Request{})

	require.Error(t, err)
	assert.Equal(t, domain.RunStatusFailed, resp.Status)
	assert.Contains(t, resp.Error, "insufficient data")
	assert.Equal(t, []string{"load"}, rec.order())

	assert.Equal(t, string(StepStatusFailed), stepInfo(t, resp, "validate").Status)
	assert.Equal(t, string(StepStatusSkipped), stepInfo(t, resp, "clean").Status)
}

func TestManager_Execute_ContinueOnError(t *testing.T) {
	rec := &orderRecorder{}
	registry := NewRegistry()

	flaky := newStubStep("trends")
	flaky.execute = func(ctx context.Context, state *State) (Result, error) {
		return Result{}, errors.New("no date column")
	}
	require.NoError(t, registry.Register(flaky))
	require.NoError(t, registry.Register(recordingStub(rec, "kpis")))

	cfg := NewConfig()
	cfg.Retry = fastRetry(1)
	cfg.ContinueOnError = true

	m := newTestManager(t, registry, cfg)
	resp, err := m.Execute(context.Background(), Request{})

	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, resp.Status)
	assert.Equal(t, []string{"kpis"}, rec.order())
	assert.Equal(t, string(StepStatusFailed), stepInfo(t, resp, "trends").Status)
}

func TestManager_Execute_RetryableStepIsRetried(t *testing.T) {
	registry := NewRegistry()

	var mu sync.Mutex
	attempts := 0
	insights := newStubStep("insights")
	insights.execute = func(ctx context.Context, state *State) (Result, error) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 3 {
			return Result{}, NewExecutionError("insights", errors.New("503 from provider"), true)
		}
		return Result{Message: "insights done"}, nil
	}
	require.NoError(t, registry.Register(insights))

	cfg := NewConfig()
	cfg.Retry = fastRetry(3)

	m := newTestManager(t, registry, cfg)
	resp, err := m.Execute(context.Background(), Request{})

	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, resp.Status)
	assert.Equal(t, 3, attempts)
}

func TestManager_Execute_NonRetryableErrorNotRetried(t *testing.T) {
	registry := NewRegistry()

	var mu sync.Mutex
	attempts := 0
	load := newStubStep("load")
	load.execute = func(ctx context.Context, state *State) (Result, error) {
		mu.Lock()
		attempts++
		mu.Unlock()
		return Result{}, NewExecutionError("load", errors.New("no such file"), false)
	}
	require.NoError(t, registry.Register(load))

	cfg := NewConfig()
	cfg.Retry = fastRetry(3)

	m := newTestManager(t, registry, cfg)
	_, err := m.Execute(context.Background(), Request{})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestManager_Execute_RetriesExhausted(t *testing.T) {
	registry := NewRegistry()

	var mu sync.Mutex
	attempts := 0
	insights := newStubStep("insights")
	insights.execute = func(ctx context.Context, state *State) (Result, error) {
		mu.Lock()
		attempts++
		mu.Unlock()
		return Result{}, NewExecutionError("insights", errors.New("timeout talking to provider"), true)
	}
	require.NoError(t, registry.Register(insights))

	cfg := NewConfig()
	cfg.Retry = fastRetry(2)

	m := newTestManager(t, registry, cfg)
	resp, err := m.Execute(context.Background(), Request{})

	require.Error(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, domain.RunStatusFailed, resp.Status)
}

func TestManager_Execute_StepTimeout(t *testing.T) {
	registry := NewRegistry()

	slow := newStubStep("load")
	slow.execute = func(ctx context.Context, state *State) (Result, error) {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(time.Second):
			return Result{}, nil
		}
	}
	require.NoError(t, registry.Register(slow))

	cfg := NewConfig()
	cfg.Retry = fastRetry(1)
	cfg.SetStepTimeout("load", 20*time.Millisecond)

	m := newTestManager(t, registry, cfg)
	resp, err := m.Execute(context.Background(), Request{})

	require.Error(t, err)
	assert.Equal(t, ErrorTypeTimeout, GetErrorType(err))
	assert.Equal(t, domain.RunStatusFailed, resp.Status)
}

func TestManager_CancelRun(t *testing.T) {
	registry := NewRegistry()

	started := make(chan struct{})
	blocker := newStubStep("load")
	blocker.execute = func(ctx context.Context, state *State) (Result, error) {
		close(started)
		<-ctx.Done()
		return Result{}, ctx.Err()
	}
	require.NoError(t, registry.Register(blocker))

	m := newTestManager(t, registry, nil)

	type outcome struct {
		resp *Response
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		resp, err := m.Execute(context.Background(), Request{ID: "run-cancel"})
		done <- outcome{resp, err}
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("step never started")
	}

	require.NoError(t, m.CancelRun("run-cancel"))

	select {
	case out := <-done:
		require.Error(t, out.err)
		assert.Equal(t, ErrorTypeCancellation, GetErrorType(out.err))
		assert.Equal(t, domain.RunStatusCancelled, out.resp.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not unwind after cancel")
	}

	// A finished run cannot be cancelled again
	assert.ErrorIs(t, m.CancelRun("run-cancel"), ErrRunNotRunning)
}

func TestManager_CancelRun_NotFound(t *testing.T) {
	m := newTestManager(t, NewRegistry(), nil)
	assert.ErrorIs(t, m.CancelRun("ghost"), ErrRunNotFound)
}

func TestManager_GetRunAndListRuns(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(newStubStep("load")))

	m := newTestManager(t, registry, nil)

	_, err := m.Execute(context.Background(), Request{ID: "run-a"})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = m.Execute(context.Background(), Request{ID: "run-b"})
	require.NoError(t, err)

	state, err := m.GetRun("run-a")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, state.Status())

	_, err = m.GetRun("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	runs := m.ListRuns()
	require.Len(t, runs, 2)
	assert.Equal(t, "run-b", runs[0].ID)
	assert.Equal(t, "run-a", runs[1].ID)
}

func TestManager_CleanupOldRuns(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(newStubStep("load")))

	m := newTestManager(t, registry, nil)
	_, err := m.Execute(context.Background(), Request{ID: "run-old"})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	pruned := m.CleanupOldRuns(context.Background(), time.Nanosecond)
	assert.Equal(t, 1, pruned)

	_, err = m.GetRun("run-old")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestManager_Execute_ArtifactsFlowBetweenSteps(t *testing.T) {
	registry := NewRegistry()

	producer := newStubStep("kpis")
	producer.execute = func(ctx context.Context, state *State) (Result, error) {
		state.Artifacts().SetKPIs(domain.KPISet{
			Performance: map[string]float64{"aht": 275},
		}, nil)
		return Result{Message: "kpis done"}, nil
	}
	require.NoError(t, registry.Register(producer))

	var seen float64
	consumer := newStubStep("report", "kpis")
	consumer.execute = func(ctx context.Context, state *State) (Result, error) {
		seen = state.Artifacts().KPIs().Performance["aht"]
		return Result{Message: "report done"}, nil
	}
	require.NoError(t, registry.Register(consumer))

	m := newTestManager(t, registry, nil)
	resp, err := m.Execute(context.Background(), Request{})

	require.NoError(t, err)
	assert.Equal(t, 275.0, seen)
	require.NotNil(t, resp.Artifacts)
	assert.Equal(t, 275.0, resp.Artifacts.KPIs().Performance["aht"])
}
