package operations

import (
	"context"
	"log/slog"
	"time"
)

// logRunStart logs the start of a run execution
func (m *Manager) logRunStart(ctx context.Context, req Request) {
	m.logger.InfoContext(ctx, "run_start",
		slog.String("run_id", req.ID),
		slog.String("trigger", req.Trigger),
		slog.String("input", req.Options.Input),
		slog.String("format", req.Options.Format),
		slog.Bool("skip_llm", req.Options.SkipLLM))
}

// logRunComplete logs the completion of a run execution
func (m *Manager) logRunComplete(ctx context.Context, runID string, duration time.Duration, status string) {
	m.logger.InfoContext(ctx, "run_complete",
		slog.String("run_id", runID),
		slog.String("status", status),
		slog.Duration("duration", duration))
}

// logStepStart logs the start of a step execution
func (m *Manager) logStepStart(ctx context.Context, runID, stepID string) {
	m.logger.InfoContext(ctx, "step_start",
		slog.String("run_id", runID),
		slog.String("step", stepID))
}

// logStepComplete logs the completion of a step execution
func (m *Manager) logStepComplete(ctx context.Context, runID, stepID string, duration time.Duration) {
	m.logger.InfoContext(ctx, "step_complete",
		slog.String("run_id", runID),
		slog.String("step", stepID),
		slog.Duration("duration", duration))
}

// logStepError logs a step failure
func (m *Manager) logStepError(ctx context.Context, runID, stepID string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	m.logger.ErrorContext(ctx, "step_error",
		slog.String("run_id", runID),
		slog.String("step", stepID),
		slog.String("error", msg))
}
