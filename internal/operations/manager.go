package operations

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"callpulse/internal/infrastructure"
	"callpulse/pkg/contracts/domain"
)

// Manager orchestrates analysis run execution
type Manager struct {
	registry    *Registry
	config      *Config
	hub         WebSocketHub
	broadcaster *StatusBroadcaster
	metrics     *infrastructure.BusinessMetrics
	logger      *slog.Logger

	mu      sync.RWMutex
	runs    map[string]*State
	cancels map[string]context.CancelFunc
}

// NewManager creates a run manager. Finished runs stay queryable until
// CleanupOldRuns prunes them.
func NewManager(hub WebSocketHub, registry *Registry, config *Config, logger *slog.Logger) *Manager {
	if registry == nil {
		registry = NewRegistry()
	}
	if config == nil {
		config = NewConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		registry:    registry,
		config:      config,
		hub:         hub,
		broadcaster: NewStatusBroadcaster(hub, logger),
		logger:      logger,
		runs:        make(map[string]*State),
		cancels:     make(map[string]context.CancelFunc),
	}
}

// SetMetrics wires business metrics into the manager. Nil metrics disable
// recording.
func (m *Manager) SetMetrics(metrics *infrastructure.BusinessMetrics) {
	m.metrics = metrics
}

// RegisterStep registers a pipeline step
func (m *Manager) RegisterStep(step Step) error {
	return m.registry.Register(step)
}

// Registry returns the step registry
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Broadcaster returns the status broadcaster
func (m *Manager) Broadcaster() *StatusBroadcaster {
	return m.broadcaster
}

// Config returns the pipeline configuration
func (m *Manager) Config() *Config {
	return m.config
}

// Execute runs the full pipeline for one request. It blocks until the run
// finishes, is cancelled, or fails.
func (m *Manager) Execute(ctx context.Context, req Request) (*Response, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Trigger == "" {
		req.Trigger = TriggerCLI
	}

	steps, err := m.registry.DependencyOrder()
	if err != nil {
		return nil, NewFatalError("resolving step order", err)
	}
	if len(steps) == 0 {
		return nil, NewFatalError("no steps registered", nil)
	}

	state := NewState(req.ID, req.Options)
	state.SetTrigger(req.Trigger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.storeRun(state, cancel)
	defer m.clearCancel(req.ID)

	m.logRunStart(runCtx, req)

	snapshots := make([]StepSnapshot, len(steps))
	for i, step := range steps {
		state.SetStep(NewStepState(step.ID(), step.Name()))
		snapshots[i] = StepSnapshot{ID: step.ID(), Name: step.Name()}
	}
	m.broadcaster.CreateRun(req.ID, snapshots)

	state.Start()
	m.broadcaster.StartRun(req.ID)
	infrastructure.RecordActiveRunChange(runCtx, m.metrics, 1, req.Trigger)

	execErr := m.executeSequential(runCtx, state, steps)

	switch {
	case execErr != nil && GetErrorType(execErr) == ErrorTypeCancellation:
		state.Cancel()
		m.broadcaster.CancelRun(req.ID)
		infrastructure.RecordRunCancellation(ctx, m.metrics, req.ID, req.Trigger, execErr.Error())
	case execErr != nil:
		state.Fail(execErr)
		m.broadcaster.FailRun(req.ID, execErr)
	default:
		state.Complete()
		m.broadcaster.CompleteRun(req.ID, "analysis completed")
	}

	infrastructure.RecordActiveRunChange(ctx, m.metrics, -1, req.Trigger)
	infrastructure.RecordRunMetrics(ctx, m.metrics, req.ID, req.Trigger, state.Duration(), execErr == nil, execErr)
	if frame := state.Artifacts().Frame(); frame != nil {
		infrastructure.RecordRowsProcessed(ctx, m.metrics, req.ID, int64(frame.NumRows()))
	}

	m.logRunComplete(ctx, req.ID, state.Duration(), string(state.Status()))

	return m.createResponse(state), execErr
}

// executeSequential executes steps one by one in dependency order.
// Validation and dependency problems skip the step and its dependents;
// execution failures abort the run unless ContinueOnError is set.
func (m *Manager) executeSequential(ctx context.Context, state *State, steps []Step) error {
	for i, step := range steps {
		select {
		case <-ctx.Done():
			m.logger.WarnContext(ctx, "run_cancelled",
				slog.String("run_id", state.ID()),
				slog.String("step", step.ID()))
			return NewCancellationError(step.ID())
		default:
		}

		stepState := state.Step(step.ID())
		if stepState.Status() == StepStatusSkipped {
			m.logger.InfoContext(ctx, "step_skipped",
				slog.String("run_id", state.ID()),
				slog.String("step", step.ID()),
				slog.Int("step_number", i+1),
				slog.Int("total_steps", len(steps)))
			continue
		}

		err := m.executeStep(ctx, state, step)
		if err == nil {
			continue
		}

		switch GetErrorType(err) {
		case ErrorTypeValidation, ErrorTypeDependency:
			// Step was skipped, not failed. Dependents cannot run either,
			// but the rest of the pipeline continues.
			m.skipDependentSteps(state, steps, step.ID())
		case ErrorTypeCancellation:
			return err
		default:
			m.logStepError(ctx, state.ID(), step.ID(), err)
			if !m.config.ContinueOnError {
				m.skipDependentSteps(state, steps, step.ID())
				return err
			}
			m.logger.WarnContext(ctx, "step_failed_continuing",
				slog.String("run_id", state.ID()),
				slog.String("step", step.ID()),
				slog.String("error", err.Error()))
		}
	}

	m.logger.InfoContext(ctx, "all_steps_finished", slog.String("run_id", state.ID()))
	return nil
}

// executeStep executes a single step with dependency checks, validation,
// timeout, and retries
func (m *Manager) executeStep(ctx context.Context, state *State, step Step) error {
	m.logStepStart(ctx, state.ID(), step.ID())

	stepState := state.Step(step.ID())
	if stepState == nil {
		return NewFatalError(fmt.Sprintf("step state %s not initialized", step.ID()), nil)
	}

	if err := m.checkDependencies(state, step); err != nil {
		reason := fmt.Sprintf("dependencies not met: %v", err)
		stepState.Skip(reason)
		m.broadcaster.SkipStep(state.ID(), step.ID(), reason)
		return err
	}

	if err := step.Validate(state); err != nil {
		reason := fmt.Sprintf("precondition not met: %v", err)
		m.logger.InfoContext(ctx, "step_validation_skip",
			slog.String("run_id", state.ID()),
			slog.String("step", step.ID()),
			slog.String("reason", err.Error()))
		stepState.Skip(reason)
		m.broadcaster.SkipStep(state.ID(), step.ID(), reason)
		return NewValidationError(step.ID(), err.Error())
	}

	timeout := m.config.StepTimeout(step.ID())
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	retry := m.config.Retry
	var lastErr error

	for attempt := 1; attempt <= retry.MaxAttempts; attempt++ {
		stepState.Start()
		m.broadcaster.StartStep(state.ID(), step.ID())

		started := time.Now()
		result, err := step.Execute(stepCtx, state)
		duration := time.Since(started)

		if err == nil {
			stepState.Complete(result.Message)
			m.logStepComplete(ctx, state.ID(), step.ID(), duration)
			if len(result.Metadata) > 0 {
				m.logger.DebugContext(ctx, "step_result",
					slog.String("run_id", state.ID()),
					slog.String("step", step.ID()),
					slog.Any("metadata", result.Metadata))
			}
			m.broadcaster.CompleteStep(state.ID(), step.ID(), result.Message)
			infrastructure.RecordStepMetrics(ctx, m.metrics, state.ID(), step.ID(), duration, true)
			return nil
		}

		infrastructure.RecordStepMetrics(ctx, m.metrics, state.ID(), step.ID(), duration, false)

		// The parent context going away means the run was cancelled, not
		// that the step failed on its own.
		if ctx.Err() != nil {
			cErr := NewCancellationError(step.ID())
			stepState.Fail(cErr)
			m.broadcaster.FailStep(state.ID(), step.ID(), cErr)
			return cErr
		}
		if stepCtx.Err() == context.DeadlineExceeded {
			tErr := NewTimeoutError(step.ID(), timeout.String())
			stepState.Fail(tErr)
			m.broadcaster.FailStep(state.ID(), step.ID(), tErr)
			return tErr
		}

		m.logger.ErrorContext(ctx, "step_execution_failed",
			slog.String("run_id", state.ID()),
			slog.String("step", step.ID()),
			slog.Int("attempt", attempt),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))

		lastErr = err

		if !IsRetryable(err) || attempt >= retry.MaxAttempts {
			wrapped := WrapError(err, step.ID(), "step execution failed")
			stepState.Fail(wrapped)
			m.broadcaster.FailStep(state.ID(), step.ID(), wrapped)
			return wrapped
		}

		delay := retryDelay(attempt, retry)
		m.logger.WarnContext(ctx, "step_retry",
			slog.String("run_id", state.ID()),
			slog.String("step", step.ID()),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", retry.MaxAttempts),
			slog.Duration("delay", delay))

		select {
		case <-time.After(delay):
		case <-stepCtx.Done():
			tErr := NewTimeoutError(step.ID(), timeout.String())
			stepState.Fail(tErr)
			m.broadcaster.FailStep(state.ID(), step.ID(), tErr)
			return tErr
		}
	}

	wrapped := WrapError(lastErr, step.ID(), "step execution failed after retries")
	stepState.Fail(wrapped)
	m.broadcaster.FailStep(state.ID(), step.ID(), wrapped)
	return wrapped
}

// skipDependentSteps marks every step that depends on the given step as
// skipped, recursively
func (m *Manager) skipDependentSteps(state *State, steps []Step, stepID string) {
	for _, step := range steps {
		for _, dep := range step.Dependencies() {
			if dep != stepID {
				continue
			}
			stepState := state.Step(step.ID())
			if stepState != nil && stepState.Status() == StepStatusPending {
				reason := fmt.Sprintf("dependency %s did not complete", stepID)
				stepState.Skip(reason)
				m.broadcaster.SkipStep(state.ID(), step.ID(), reason)
				m.skipDependentSteps(state, steps, step.ID())
			}
			break
		}
	}
}

// checkDependencies verifies that all declared dependencies completed
func (m *Manager) checkDependencies(state *State, step Step) error {
	for _, dep := range step.Dependencies() {
		depState := state.Step(dep)
		if depState == nil {
			return NewDependencyError(step.ID(), dep)
		}
		if depState.Status() != StepStatusCompleted {
			return NewDependencyError(step.ID(), dep)
		}
	}
	return nil
}

// retryDelay computes the exponential backoff before the next attempt
func retryDelay(attempt int, cfg RetryConfig) time.Duration {
	delay := time.Duration(float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1)))
	if delay <= 0 || delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay
}

// createResponse builds the final response from run state
func (m *Manager) createResponse(state *State) *Response {
	resp := &Response{
		ID:        state.ID(),
		Status:    state.Status(),
		Duration:  state.Duration(),
		Steps:     state.StepInfos(),
		Artifacts: state.Artifacts(),
	}
	if err := state.Err(); err != nil {
		resp.Error = err.Error()
	}
	return resp
}

// GetRun returns the state of a run, running or finished
func (m *Manager) GetRun(id string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, exists := m.runs[id]
	if !exists {
		return nil, ErrRunNotFound
	}
	return state, nil
}

// ListRuns returns summaries of all known runs, newest first
func (m *Manager) ListRuns() []domain.RunSummary {
	m.mu.RLock()
	states := make([]*State, 0, len(m.runs))
	for _, state := range m.runs {
		states = append(states, state)
	}
	m.mu.RUnlock()

	summaries := make([]domain.RunSummary, len(states))
	for i, state := range states {
		summaries[i] = state.Summary()
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries
}

// CancelRun cancels a queued or running run
func (m *Manager) CancelRun(id string) error {
	m.mu.Lock()
	state, exists := m.runs[id]
	if !exists {
		m.mu.Unlock()
		return ErrRunNotFound
	}

	status := state.Status()
	if status != domain.RunStatusRunning && status != domain.RunStatusQueued {
		m.mu.Unlock()
		return ErrRunNotRunning
	}

	cancel := m.cancels[id]
	m.mu.Unlock()

	state.Cancel()
	if cancel != nil {
		cancel()
	}
	m.broadcaster.CancelRun(id)
	return nil
}

// CleanupOldRuns drops finished runs older than maxAge from the manager and
// the broadcaster
func (m *Manager) CleanupOldRuns(ctx context.Context, maxAge time.Duration) int {
	now := time.Now()
	removed := 0

	m.mu.Lock()
	for id, state := range m.runs {
		status := state.Status()
		if status != domain.RunStatusCompleted && status != domain.RunStatusFailed && status != domain.RunStatusCancelled {
			continue
		}
		summary := state.Summary()
		if summary.CompletedAt != nil && now.Sub(*summary.CompletedAt) > maxAge {
			delete(m.runs, id)
			removed++
		}
	}
	m.mu.Unlock()

	m.broadcaster.CleanupOldRuns(ctx, maxAge)

	if removed > 0 {
		m.logger.InfoContext(ctx, "old runs pruned", slog.Int("count", removed))
	}
	return removed
}

func (m *Manager) storeRun(state *State, cancel context.CancelFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[state.ID()] = state
	m.cancels[state.ID()] = cancel
}

func (m *Manager) clearCancel(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cancels, id)
}
