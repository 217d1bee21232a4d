package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	ServiceName    = "callpulse-analytics"
	ServiceVersion = "v0.3.0"
	MeterName      = "callpulse"
)

// OTelConfig holds OpenTelemetry configuration
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	TraceExporter  string // "stdout", "none"
	MetricExporter string // "prometheus", "none"
	EnableMetrics  bool
	EnableTracing  bool
	SampleRatio    float64
	PrometheusPort string
}

// OTelProviders holds the OpenTelemetry providers
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	PrometheusHTTP http.Handler
	Logger         *slog.Logger
}

// DefaultOTelConfig returns a default OpenTelemetry configuration
func DefaultOTelConfig() *OTelConfig {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	return &OTelConfig{
		ServiceName:    ServiceName,
		ServiceVersion: ServiceVersion,
		Environment:    env,
		TraceExporter:  "stdout", // Use stdout for development
		MetricExporter: "prometheus",
		EnableMetrics:  true,
		EnableTracing:  true,
		SampleRatio:    1.0, // Sample all traces in development
		PrometheusPort: "9090",
	}
}

// InitializeOTel initializes OpenTelemetry with comprehensive observability
func InitializeOTel(cfg *OTelConfig, logger *slog.Logger) (*OTelProviders, error) {
	if cfg == nil {
		cfg = DefaultOTelConfig()
	}

	ctx := context.Background()

	logger.InfoContext(ctx, "Initializing OpenTelemetry",
		slog.String("service", cfg.ServiceName),
		slog.String("version", cfg.ServiceVersion),
		slog.String("environment", cfg.Environment),
		slog.Bool("tracing_enabled", cfg.EnableTracing),
		slog.Bool("metrics_enabled", cfg.EnableMetrics))

	// Create resource
	res, err := createResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	providers := &OTelProviders{
		Logger: logger,
	}

	// Initialize tracing
	if cfg.EnableTracing {
		if err := initializeTracing(ctx, cfg, res, providers); err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
	}

	// Initialize metrics
	if cfg.EnableMetrics {
		if err := initializeMetrics(ctx, cfg, res, providers); err != nil {
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
	}

	// Set up global propagators for trace context
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.InfoContext(ctx, "OpenTelemetry initialization complete",
		slog.Bool("tracing_enabled", cfg.EnableTracing),
		slog.Bool("metrics_enabled", cfg.EnableMetrics))

	return providers, nil
}

// createResource creates the OpenTelemetry resource
func createResource(cfg *OTelConfig) (*resource.Resource, error) {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironmentName(cfg.Environment),
		attribute.String("service.instance.id", generateInstanceID()),
	), nil
}

// initializeTracing sets up OpenTelemetry tracing
func initializeTracing(ctx context.Context, cfg *OTelConfig, res *resource.Resource, providers *OTelProviders) error {
	var exporter sdktrace.SpanExporter
	var err error

	switch cfg.TraceExporter {
	case "stdout":
		exporter, err = stdouttrace.New(
			stdouttrace.WithPrettyPrint(),
		)
	case "none":
		// No exporter - tracing disabled
		return nil
	default:
		return fmt.Errorf("unsupported trace exporter: %s", cfg.TraceExporter)
	}

	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	// Create tracer provider
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRatio)),
	)

	providers.TracerProvider = tp
	providers.Tracer = tp.Tracer(MeterName, trace.WithInstrumentationVersion(cfg.ServiceVersion))

	// Set global tracer provider
	otel.SetTracerProvider(tp)

	providers.Logger.InfoContext(ctx, "Tracing initialized",
		slog.String("exporter", cfg.TraceExporter),
		slog.Float64("sample_ratio", cfg.SampleRatio))

	return nil
}

// initializeMetrics sets up OpenTelemetry metrics
func initializeMetrics(ctx context.Context, cfg *OTelConfig, res *resource.Resource, providers *OTelProviders) error {
	switch cfg.MetricExporter {
	case "prometheus":
		// Create Prometheus exporter
		exporter, err := prometheus.New()
		if err != nil {
			return fmt.Errorf("failed to create prometheus exporter: %w", err)
		}

		// Create Prometheus HTTP handler
		providers.PrometheusHTTP = promhttp.Handler()

		// Create meter provider with Prometheus reader
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		)

		providers.MeterProvider = mp
		providers.Meter = mp.Meter(MeterName, metric.WithInstrumentationVersion(cfg.ServiceVersion))

		// Set global meter provider
		otel.SetMeterProvider(mp)

	case "none":
		// No exporter - metrics disabled
		return nil
	default:
		return fmt.Errorf("unsupported metric exporter: %s", cfg.MetricExporter)
	}

	providers.Logger.InfoContext(ctx, "Metrics initialized",
		slog.String("exporter", cfg.MetricExporter))

	return nil
}

// CreateBusinessMetrics creates application-specific metrics
func CreateBusinessMetrics(meter metric.Meter) (*BusinessMetrics, error) {
	// HTTP metrics
	httpRequestsTotal, err := meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	httpRequestDuration, err := meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	httpActiveRequests, err := meter.Int64UpDownCounter(
		"http_active_requests",
		metric.WithDescription("Number of active HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	// Analysis run metrics
	runExecutionsTotal, err := meter.Int64Counter(
		"analysis_runs_total",
		metric.WithDescription("Total number of analysis runs"),
	)
	if err != nil {
		return nil, err
	}

	runExecutionDuration, err := meter.Float64Histogram(
		"analysis_run_duration_seconds",
		metric.WithDescription("Analysis run duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	runStepsTotal, err := meter.Int64Counter(
		"analysis_steps_total",
		metric.WithDescription("Total number of analysis steps executed"),
	)
	if err != nil {
		return nil, err
	}

	runStepDuration, err := meter.Float64Histogram(
		"analysis_step_duration_seconds",
		metric.WithDescription("Analysis step execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	runActiveRuns, err := meter.Int64UpDownCounter(
		"analysis_active_runs",
		metric.WithDescription("Number of analysis runs in progress"),
	)
	if err != nil {
		return nil, err
	}

	runErrors, err := meter.Int64Counter(
		"analysis_run_errors_total",
		metric.WithDescription("Total number of analysis run errors"),
	)
	if err != nil {
		return nil, err
	}

	runCancellations, err := meter.Int64Counter(
		"analysis_run_cancellations_total",
		metric.WithDescription("Total number of cancelled analysis runs"),
	)
	if err != nil {
		return nil, err
	}

	runRowsProcessed, err := meter.Int64Counter(
		"analysis_rows_processed_total",
		metric.WithDescription("Total number of dataset rows processed"),
	)
	if err != nil {
		return nil, err
	}

	// LLM metrics
	llmRequestsTotal, err := meter.Int64Counter(
		"llm_requests_total",
		metric.WithDescription("Total number of LLM completion requests"),
	)
	if err != nil {
		return nil, err
	}

	llmRequestDuration, err := meter.Float64Histogram(
		"llm_request_duration_seconds",
		metric.WithDescription("LLM completion request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	llmRequestErrors, err := meter.Int64Counter(
		"llm_request_errors_total",
		metric.WithDescription("Total number of failed LLM completion requests"),
	)
	if err != nil {
		return nil, err
	}

	llmFallbacks, err := meter.Int64Counter(
		"llm_fallbacks_total",
		metric.WithDescription("Total number of runs that fell back to template insights"),
	)
	if err != nil {
		return nil, err
	}

	llmTokensUsed, err := meter.Int64Counter(
		"llm_tokens_used_total",
		metric.WithDescription("Total number of tokens consumed by LLM requests"),
	)
	if err != nil {
		return nil, err
	}

	// Report metrics
	reportsGenerated, err := meter.Int64Counter(
		"reports_generated_total",
		metric.WithDescription("Total number of reports generated"),
	)
	if err != nil {
		return nil, err
	}

	reportGenerationDuration, err := meter.Float64Histogram(
		"report_generation_duration_seconds",
		metric.WithDescription("Report generation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	reportBytesWritten, err := meter.Int64Counter(
		"report_bytes_written_total",
		metric.WithDescription("Total bytes of report output written"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	// System metrics
	systemErrors, err := meter.Int64Counter(
		"system_errors_total",
		metric.WithDescription("Total number of system errors"),
	)
	if err != nil {
		return nil, err
	}

	systemUptime, err := meter.Float64UpDownCounter(
		"system_uptime_seconds",
		metric.WithDescription("System uptime in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &BusinessMetrics{
		// HTTP metrics
		HTTPRequestsTotal:   httpRequestsTotal,
		HTTPRequestDuration: httpRequestDuration,
		HTTPActiveRequests:  httpActiveRequests,

		// Analysis run metrics
		RunExecutionsTotal:   runExecutionsTotal,
		RunExecutionDuration: runExecutionDuration,
		RunStepsTotal:        runStepsTotal,
		RunStepDuration:      runStepDuration,
		RunActiveRuns:        runActiveRuns,
		RunErrors:            runErrors,
		RunCancellations:     runCancellations,
		RunRowsProcessed:     runRowsProcessed,

		// LLM metrics
		LLMRequestsTotal:   llmRequestsTotal,
		LLMRequestDuration: llmRequestDuration,
		LLMRequestErrors:   llmRequestErrors,
		LLMFallbacks:       llmFallbacks,
		LLMTokensUsed:      llmTokensUsed,

		// Report metrics
		ReportsGenerated:         reportsGenerated,
		ReportGenerationDuration: reportGenerationDuration,
		ReportBytesWritten:       reportBytesWritten,

		// System metrics
		SystemErrors: systemErrors,
		SystemUptime: systemUptime,
	}, nil
}

// BusinessMetrics holds all application-specific metrics
type BusinessMetrics struct {
	// HTTP metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
	HTTPActiveRequests  metric.Int64UpDownCounter

	// Analysis run metrics
	RunExecutionsTotal   metric.Int64Counter
	RunExecutionDuration metric.Float64Histogram
	RunStepsTotal        metric.Int64Counter
	RunStepDuration      metric.Float64Histogram
	RunActiveRuns        metric.Int64UpDownCounter
	RunErrors            metric.Int64Counter
	RunCancellations     metric.Int64Counter
	RunRowsProcessed     metric.Int64Counter

	// LLM metrics
	LLMRequestsTotal   metric.Int64Counter
	LLMRequestDuration metric.Float64Histogram
	LLMRequestErrors   metric.Int64Counter
	LLMFallbacks       metric.Int64Counter
	LLMTokensUsed      metric.Int64Counter

	// Report metrics
	ReportsGenerated         metric.Int64Counter
	ReportGenerationDuration metric.Float64Histogram
	ReportBytesWritten       metric.Int64Counter

	// System metrics
	SystemErrors metric.Int64Counter
	SystemUptime metric.Float64UpDownCounter
}

// Shutdown gracefully shuts down OpenTelemetry providers
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	var errs []error

	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
	}

	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("opentelemetry shutdown errors: %v", errs)
	}

	p.Logger.InfoContext(ctx, "OpenTelemetry shutdown complete")
	return nil
}

// generateInstanceID generates a unique instance identifier
func generateInstanceID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", hostname, time.Now().Unix())
}

// TraceIDFromContext extracts trace ID from context for logging correlation
func TraceIDFromContext(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		return spanCtx.TraceID().String()
	}
	return ""
}

// SpanFromContext returns the current span from context
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span with structured attributes
func AddSpanEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	attrs := make([]attribute.KeyValue, 0, len(attributes))
	for k, v := range attributes {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprintf("%v", val)))
		}
	}

	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// RecordError records an error on the current span
func RecordError(ctx context.Context, err error, options ...trace.EventOption) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.RecordError(err, options...)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanAttributes sets attributes on the current span
func SetSpanAttributes(ctx context.Context, attributes map[string]interface{}) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	for k, v := range attributes {
		switch val := v.(type) {
		case string:
			span.SetAttributes(attribute.String(k, val))
		case int:
			span.SetAttributes(attribute.Int(k, val))
		case int64:
			span.SetAttributes(attribute.Int64(k, val))
		case float64:
			span.SetAttributes(attribute.Float64(k, val))
		case bool:
			span.SetAttributes(attribute.Bool(k, val))
		default:
			span.SetAttributes(attribute.String(k, fmt.Sprintf("%v", val)))
		}
	}
}

// RecordRunMetrics records metrics for a completed analysis run
func RecordRunMetrics(ctx context.Context, metrics *BusinessMetrics, runID string, trigger string, duration time.Duration, success bool, err error) {
	if metrics == nil {
		return
	}

	// Common attributes
	attrs := []attribute.KeyValue{
		attribute.String("run.id", runID),
		attribute.String("run.trigger", trigger),
	}

	// Record execution
	metrics.RunExecutionsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))

	// Record duration
	statusAttr := attribute.String("status", "success")
	if !success {
		statusAttr = attribute.String("status", "failure")
	}
	durationAttrs := append(attrs, statusAttr)
	metrics.RunExecutionDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(durationAttrs...))

	// Record errors
	if err != nil {
		errorAttrs := append(attrs, attribute.String("error.type", fmt.Sprintf("%T", err)))
		metrics.RunErrors.Add(ctx, 1, metric.WithAttributes(errorAttrs...))
	}

	// Add span event
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent("run.metrics_recorded",
			trace.WithAttributes(
				attribute.String("run.id", runID),
				attribute.Bool("success", success),
				attribute.Float64("duration_seconds", duration.Seconds()),
			),
		)
	}
}

// RecordStepMetrics records metrics for a single pipeline step execution
func RecordStepMetrics(ctx context.Context, metrics *BusinessMetrics, runID, stepID string, duration time.Duration, success bool) {
	if metrics == nil {
		return
	}

	// Common attributes
	attrs := []attribute.KeyValue{
		attribute.String("run.id", runID),
		attribute.String("step.id", stepID),
	}

	// Record step execution
	metrics.RunStepsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))

	// Record duration
	statusAttr := attribute.String("status", "success")
	if !success {
		statusAttr = attribute.String("status", "failure")
	}
	durationAttrs := append(attrs, statusAttr)
	metrics.RunStepDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(durationAttrs...))
}

// RecordActiveRunChange records changes in active run count
func RecordActiveRunChange(ctx context.Context, metrics *BusinessMetrics, delta int64, trigger string) {
	if metrics == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("run.trigger", trigger),
	}

	metrics.RunActiveRuns.Add(ctx, delta, metric.WithAttributes(attrs...))
}

// RecordRunCancellation records a cancelled analysis run
func RecordRunCancellation(ctx context.Context, metrics *BusinessMetrics, runID, trigger, reason string) {
	if metrics == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("run.id", runID),
		attribute.String("run.trigger", trigger),
		attribute.String("reason", reason),
	}

	metrics.RunCancellations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRowsProcessed records the number of data rows a run worked through
func RecordRowsProcessed(ctx context.Context, metrics *BusinessMetrics, runID string, rows int64) {
	if metrics == nil || rows <= 0 {
		return
	}

	metrics.RunRowsProcessed.Add(ctx, rows, metric.WithAttributes(
		attribute.String("run.id", runID),
	))
}

// RecordLLMRequest records metrics for one LLM completion request
func RecordLLMRequest(ctx context.Context, metrics *BusinessMetrics, provider, model string, duration time.Duration, tokens int64, err error) {
	if metrics == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("llm.provider", provider),
		attribute.String("llm.model", model),
	}

	metrics.LLMRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	metrics.LLMRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))

	if tokens > 0 {
		metrics.LLMTokensUsed.Add(ctx, tokens, metric.WithAttributes(attrs...))
	}

	if err != nil {
		errorAttrs := append(attrs, attribute.String("error.type", fmt.Sprintf("%T", err)))
		metrics.LLMRequestErrors.Add(ctx, 1, metric.WithAttributes(errorAttrs...))
	}
}

// RecordReportGenerated records metrics for one emitted report file
func RecordReportGenerated(ctx context.Context, metrics *BusinessMetrics, format string, duration time.Duration, bytes int64) {
	if metrics == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("report.format", format),
	}

	metrics.ReportsGenerated.Add(ctx, 1, metric.WithAttributes(attrs...))
	metrics.ReportGenerationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))

	if bytes > 0 {
		metrics.ReportBytesWritten.Add(ctx, bytes, metric.WithAttributes(attrs...))
	}
}
