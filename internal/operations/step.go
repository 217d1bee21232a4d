package operations

import (
	"context"
	"sync"
	"time"

	"callpulse/pkg/contracts/domain"
)

// Step represents a single unit of work in the analysis pipeline
type Step interface {
	// ID returns the unique identifier for this step
	ID() string

	// Name returns the human-readable name for this step
	Name() string

	// Execute runs the step against the shared run state
	Execute(ctx context.Context, state *State) (Result, error)

	// Validate checks if the step can be executed with the current state.
	// A validation error skips the step (and its dependents) without
	// failing the run.
	Validate(state *State) error

	// Dependencies returns the IDs of steps that must complete before this step
	Dependencies() []string
}

// StepStatus represents the current status of a step
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusActive    StepStatus = "active"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// StepState is the runtime state of one step within a run
type StepState struct {
	mu        sync.RWMutex
	id        string
	name      string
	status    StepStatus
	startTime *time.Time
	endTime   *time.Time
	progress  float64
	message   string
	err       error
}

// NewStepState creates a pending step state
func NewStepState(id, name string) *StepState {
	return &StepState{
		id:     id,
		name:   name,
		status: StepStatusPending,
	}
}

// ID returns the step identifier
func (s *StepState) ID() string {
	return s.id
}

// Name returns the step display name
func (s *StepState) Name() string {
	return s.name
}

// Status returns the current step status
func (s *StepState) Status() StepStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Start marks the step as active and records the start time
func (s *StepState) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.startTime = &now
	s.endTime = nil
	s.status = StepStatusActive
	s.progress = 0
	s.err = nil
}

// Complete marks the step as completed
func (s *StepState) Complete(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.endTime = &now
	s.status = StepStatusCompleted
	s.progress = 100
	if message != "" {
		s.message = message
	}
}

// Fail marks the step as failed with the given error
func (s *StepState) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.endTime = &now
	s.status = StepStatusFailed
	s.err = err
}

// Skip marks the step as skipped with the given reason
func (s *StepState) Skip(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.endTime = &now
	s.status = StepStatusSkipped
	s.message = reason
}

// UpdateProgress updates the step progress and message
func (s *StepState) UpdateProgress(progress float64, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.progress = progress
	s.message = message
}

// Progress returns the current progress percentage
func (s *StepState) Progress() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress
}

// Err returns the failure error, if any
func (s *StepState) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Duration returns how long the step has been (or was) running
func (s *StepState) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.startTime == nil {
		return 0
	}
	if s.endTime != nil {
		return s.endTime.Sub(*s.startTime)
	}
	return time.Since(*s.startTime)
}

// Info returns a reportable snapshot of the step state
func (s *StepState) Info() domain.StepInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := domain.StepInfo{
		ID:       s.id,
		Name:     s.name,
		Status:   string(s.status),
		Progress: s.progress,
		Message:  s.message,
	}
	if s.err != nil {
		info.Error = s.err.Error()
	}
	if s.startTime != nil {
		t := *s.startTime
		info.StartedAt = &t
	}
	if s.endTime != nil {
		t := *s.endTime
		info.CompletedAt = &t
	}
	return info
}

// BaseStep provides the identity plumbing shared by step implementations
type BaseStep struct {
	id           string
	name         string
	dependencies []string
}

// NewBaseStep creates a base step with the given identity
func NewBaseStep(id, name string, dependencies ...string) BaseStep {
	return BaseStep{
		id:           id,
		name:         name,
		dependencies: dependencies,
	}
}

// ID returns the step ID
func (b *BaseStep) ID() string {
	return b.id
}

// Name returns the step name
func (b *BaseStep) Name() string {
	return b.name
}

// Dependencies returns the step dependencies
func (b *BaseStep) Dependencies() []string {
	if b.dependencies == nil {
		return []string{}
	}
	return b.dependencies
}

// Validate provides a default validation that always passes
func (b *BaseStep) Validate(state *State) error {
	return nil
}
