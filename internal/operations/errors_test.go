package operations

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *StepError
		want string
	}{
		{
			name: "with step",
			err:  NewValidationError("insights", "llm disabled for this run"),
			want: "[validation] insights: llm disabled for this run",
		},
		{
			name: "without step",
			err:  NewFatalError("no steps registered", nil),
			want: "[fatal] no steps registered",
		},
		{
			name: "timeout",
			err:  NewTimeoutError("load", "2m0s"),
			want: "[timeout] load: step exceeded timeout of 2m0s",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestStepError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewExecutionError("insights", cause, true)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestGetErrorType(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"nil", nil, ""},
		{"validation", NewValidationError("insights", "disabled"), ErrorTypeValidation},
		{"dependency", NewDependencyError("report", "kpis"), ErrorTypeDependency},
		{"cancellation", NewCancellationError("clean"), ErrorTypeCancellation},
		{"timeout", NewTimeoutError("load", "1s"), ErrorTypeTimeout},
		{"plain error counts as execution", errors.New("boom"), ErrorTypeExecution},
		{"wrapped step error", fmt.Errorf("outer: %w", NewCancellationError("kpis")), ErrorTypeCancellation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetErrorType(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewExecutionError("insights", errors.New("503"), true)))
	assert.True(t, IsRetryable(NewTimeoutError("load", "1s")))
	assert.False(t, IsRetryable(NewExecutionError("load", errors.New("no such file"), false)))
	assert.False(t, IsRetryable(NewValidationError("insights", "disabled")))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestWrapError(t *testing.T) {
	t.Run("plain error becomes execution error", func(t *testing.T) {
		wrapped := WrapError(errors.New("disk full"), "report", "step execution failed")
		require.NotNil(t, wrapped)
		assert.Equal(t, ErrorTypeExecution, wrapped.Type)
		assert.Equal(t, "report", wrapped.Step)
		assert.ErrorContains(t, wrapped, "disk full")
	})

	t.Run("step error keeps its classification", func(t *testing.T) {
		inner := NewTimeoutError("", "5m0s")
		wrapped := WrapError(inner, "correlate", "")
		assert.Equal(t, ErrorTypeTimeout, wrapped.Type)
		assert.Equal(t, "correlate", wrapped.Step)
	})

	t.Run("nil returns nil", func(t *testing.T) {
		assert.Nil(t, WrapError(nil, "load", "ignored"))
	})
}

func TestSentinelErrors(t *testing.T) {
	assert.Equal(t, ErrorTypeNotFound, GetErrorType(ErrRunNotFound))
	assert.Equal(t, ErrorTypeExecution, GetErrorType(ErrRunNotRunning))
	assert.ErrorContains(t, ErrRunNotFound, "run not found")
}
