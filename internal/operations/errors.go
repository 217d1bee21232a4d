package operations

import (
	"errors"
	"fmt"
)

// ErrorType classifies pipeline errors
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeDependency   ErrorType = "dependency"
	ErrorTypeExecution    ErrorType = "execution"
	ErrorTypeTimeout      ErrorType = "timeout"
	ErrorTypeCancellation ErrorType = "cancellation"
	ErrorTypeFatal        ErrorType = "fatal"
	ErrorTypeNotFound     ErrorType = "not_found"
)

// StepError is a pipeline-specific error carrying the step it came from
// and whether a retry could succeed
type StepError struct {
	Type      ErrorType `json:"type"`
	Step      string    `json:"step,omitempty"`
	Message   string    `json:"message"`
	Cause     error     `json:"-"`
	Retryable bool      `json:"retryable"`
}

// Error implements the error interface
func (e *StepError) Error() string {
	if e == nil {
		return "unknown pipeline error"
	}
	if e.Step != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Type, e.Step, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *StepError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewValidationError creates a validation error, which skips the step
func NewValidationError(step, message string) *StepError {
	return &StepError{
		Type:      ErrorTypeValidation,
		Step:      step,
		Message:   message,
		Retryable: false,
	}
}

// NewDependencyError creates a dependency error for a step whose
// prerequisites did not complete
func NewDependencyError(step, dependsOn string) *StepError {
	return &StepError{
		Type:      ErrorTypeDependency,
		Step:      step,
		Message:   fmt.Sprintf("dependency %s not completed", dependsOn),
		Retryable: false,
	}
}

// NewExecutionError creates an execution error
func NewExecutionError(step string, cause error, retryable bool) *StepError {
	return &StepError{
		Type:      ErrorTypeExecution,
		Step:      step,
		Message:   "step execution failed",
		Cause:     cause,
		Retryable: retryable,
	}
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(step, timeout string) *StepError {
	return &StepError{
		Type:      ErrorTypeTimeout,
		Step:      step,
		Message:   fmt.Sprintf("step exceeded timeout of %s", timeout),
		Retryable: true,
	}
}

// NewCancellationError creates a cancellation error
func NewCancellationError(step string) *StepError {
	return &StepError{
		Type:      ErrorTypeCancellation,
		Step:      step,
		Message:   "run was cancelled",
		Retryable: false,
	}
}

// NewFatalError creates a non-recoverable error
func NewFatalError(message string, cause error) *StepError {
	return &StepError{
		Type:      ErrorTypeFatal,
		Message:   message,
		Cause:     cause,
		Retryable: false,
	}
}

// IsRetryable checks whether a retry of the failed step could succeed
func IsRetryable(err error) bool {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Retryable
	}
	return false
}

// GetErrorType returns the classification of a pipeline error. Plain errors
// count as execution errors.
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ""
	}
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Type
	}
	return ErrorTypeExecution
}

// WrapError attaches step context to an error. An existing StepError keeps
// its classification and gains the step ID if it had none.
func WrapError(err error, step, message string) *StepError {
	if err == nil {
		return nil
	}

	var stepErr *StepError
	if errors.As(err, &stepErr) {
		if stepErr.Step == "" {
			stepErr.Step = step
		}
		if message != "" {
			stepErr.Message = fmt.Sprintf("%s: %s", message, stepErr.Message)
		}
		return stepErr
	}

	if message == "" {
		message = err.Error()
	} else {
		message = fmt.Sprintf("%s: %s", message, err.Error())
	}
	return &StepError{
		Type:      ErrorTypeExecution,
		Step:      step,
		Message:   message,
		Cause:     err,
		Retryable: false,
	}
}

// Common run errors
var (
	// ErrRunNotFound is returned when a run cannot be found
	ErrRunNotFound = &StepError{
		Type:    ErrorTypeNotFound,
		Message: "run not found",
	}

	// ErrRunNotRunning is returned when cancelling a run that already finished
	ErrRunNotRunning = &StepError{
		Type:    ErrorTypeExecution,
		Message: "run is not running",
	}

	// ErrJobNotFound is returned when a job cannot be found in the store
	ErrJobNotFound = &StepError{
		Type:    ErrorTypeNotFound,
		Message: "job not found",
	}
)
