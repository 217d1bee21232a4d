package operations

import (
	"time"

	"callpulse/pkg/contracts/domain"
	"callpulse/pkg/contracts/events"
)

// Pipeline step identifiers
const (
	StepIDLoad      = "load"
	StepIDValidate  = "validate"
	StepIDClean     = "clean"
	StepIDKPIs      = "kpis"
	StepIDCorrelate = "correlate"
	StepIDInsights  = "insights"
	StepIDReport    = "report"
)

// Pipeline step names
const (
	StepNameLoad      = "Data Loading"
	StepNameValidate  = "Data Validation"
	StepNameClean     = "Data Cleaning"
	StepNameKPIs      = "KPI Calculation"
	StepNameCorrelate = "Correlation Analysis"
	StepNameInsights  = "AI Insights"
	StepNameReport    = "Report Generation"
)

// Run triggers describe where an execution request came from.
const (
	TriggerCLI     = "cli"
	TriggerAPI     = "api"
	TriggerWatcher = "watcher"
)

// WebSocket event types pushed through the hub
const (
	EventTypeRunSnapshot = string(events.MessageTypeRunSnapshot)
	EventTypeRunError    = string(events.MessageTypeRunError)
)

// Default timeouts
const (
	DefaultStepTimeout      = 5 * time.Minute
	DefaultLoadTimeout      = 2 * time.Minute
	DefaultInsightsTimeout  = 10 * time.Minute
	DefaultReportTimeout    = 5 * time.Minute
	DefaultCorrelateTimeout = 5 * time.Minute
)

// RetryConfig defines retry behavior for steps
type RetryConfig struct {
	MaxAttempts  int           `json:"max_attempts"`
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
}

// NewRetryConfig returns the default retry configuration
func NewRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Result is what a step hands back to the manager on success. Message is
// broadcast to subscribers; Metadata is logged for debugging.
type Result struct {
	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Request asks the manager to execute one analysis run
type Request struct {
	ID      string            `json:"id,omitempty"`
	Trigger string            `json:"trigger,omitempty"`
	Options domain.RunOptions `json:"options"`
}

// Response reports the outcome of a run execution. Artifacts holds the
// in-memory products of the pipeline and is served through the API rather
// than serialized wholesale.
type Response struct {
	ID        string            `json:"id"`
	Status    domain.RunStatus  `json:"status"`
	Duration  time.Duration     `json:"duration"`
	Steps     []domain.StepInfo `json:"steps"`
	Artifacts *Artifacts        `json:"-"`
	Error     string            `json:"error,omitempty"`
}
