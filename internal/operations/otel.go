package operations

import (
	"context"
	"fmt"
	"time"

	"callpulse/internal/infrastructure"
	"callpulse/pkg/contracts/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	TracerName = "callpulse.operations"
)

// RunTracer provides OpenTelemetry instrumentation for analysis runs
type RunTracer struct {
	tracer          trace.Tracer
	meter           metric.Meter
	businessMetrics *infrastructure.BusinessMetrics
}

// NewRunTracer creates a new run tracer
func NewRunTracer(providers *infrastructure.OTelProviders) (*RunTracer, error) {
	businessMetrics, err := infrastructure.CreateBusinessMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create business metrics: %w", err)
	}

	return &RunTracer{
		tracer:          otel.Tracer(TracerName),
		meter:           providers.Meter,
		businessMetrics: businessMetrics,
	}, nil
}

// Metrics exposes the business metrics so the manager can record
// run and step counters without its own meter setup.
func (rt *RunTracer) Metrics() *infrastructure.BusinessMetrics {
	return rt.businessMetrics
}

// TraceRunExecution creates a span covering an entire analysis run
func (rt *RunTracer) TraceRunExecution(ctx context.Context, runID string, req Request) (context.Context, trace.Span) {
	ctx, span := rt.tracer.Start(ctx, "run.execute",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("run.trigger", req.Trigger),
			attribute.String("run.input", req.Options.Input),
			attribute.String("run.format", req.Options.Format),
			attribute.Bool("run.skip_llm", req.Options.SkipLLM),
		),
	)

	rt.businessMetrics.RunExecutionsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("trigger", req.Trigger),
			attribute.String("operation", "start"),
		),
	)

	return ctx, span
}

// TraceStepExecution creates a span for an individual step
func (rt *RunTracer) TraceStepExecution(ctx context.Context, runID, stepID string) (context.Context, trace.Span) {
	spanName := fmt.Sprintf("run.step.%s", stepID)
	ctx, span := rt.tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("step.id", stepID),
		),
	)

	return ctx, span
}

// RecordRunCompletion records run completion on the span and metrics
func (rt *RunTracer) RecordRunCompletion(ctx context.Context, span trace.Span, runID string, duration time.Duration, status string, rowsProcessed int64) {
	span.SetAttributes(
		attribute.String("run.status", status),
		attribute.Float64("run.duration_seconds", duration.Seconds()),
		attribute.Int64("run.rows_processed", rowsProcessed),
	)

	rt.businessMetrics.RunExecutionDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.String("status", status)),
	)

	infrastructure.AddSpanEvent(ctx, "run.completed", map[string]interface{}{
		"run_id":         runID,
		"status":         status,
		"duration":       duration.Seconds(),
		"rows_processed": rowsProcessed,
	})

	if status == string(domain.RunStatusCompleted) {
		span.SetStatus(codes.Ok, "run completed")
	} else {
		span.SetStatus(codes.Error, fmt.Sprintf("run finished with status: %s", status))
	}
}

// RecordStepCompletion records step completion on the span
func (rt *RunTracer) RecordStepCompletion(ctx context.Context, span trace.Span, runID, stepID string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}

	span.SetAttributes(
		attribute.String("step.status", status),
		attribute.Float64("step.duration_seconds", duration.Seconds()),
	)

	infrastructure.AddSpanEvent(ctx, "step.completed", map[string]interface{}{
		"step_id":  stepID,
		"status":   status,
		"duration": duration.Seconds(),
	})

	if success {
		span.SetStatus(codes.Ok, "step completed")
	} else {
		span.SetStatus(codes.Error, "step execution failed")
	}
}

// RecordStepProgress records step progress as span events
func (rt *RunTracer) RecordStepProgress(ctx context.Context, runID, stepID string, progress int, message string) {
	infrastructure.AddSpanEvent(ctx, "step.progress", map[string]interface{}{
		"step_id":  stepID,
		"progress": progress,
		"message":  message,
	})

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(
			attribute.Int("step.progress_percent", progress),
			attribute.String("step.progress_message", message),
		)
	}
}

// RecordStepError records a step error with error tracking
func (rt *RunTracer) RecordStepError(ctx context.Context, runID, stepID string, err error) {
	infrastructure.RecordError(ctx, err,
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("step.id", stepID),
			attribute.String("error.type", "step_execution_error"),
		),
	)

	rt.businessMetrics.RunStepsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("step_id", stepID),
			attribute.String("status", "error"),
		),
	)
}

// RecordRunError records a run-level error with error tracking
func (rt *RunTracer) RecordRunError(ctx context.Context, runID string, err error) {
	infrastructure.RecordError(ctx, err,
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("error.type", "run_execution_error"),
		),
	)
}

var globalRunTracer *RunTracer

// InitGlobalRunTracer initializes the process-wide run tracer
func InitGlobalRunTracer(providers *infrastructure.OTelProviders) error {
	tracer, err := NewRunTracer(providers)
	if err != nil {
		return err
	}
	globalRunTracer = tracer
	return nil
}

// GetRunTracer returns the process-wide run tracer, or nil before init
func GetRunTracer() *RunTracer {
	return globalRunTracer
}
