package domain

import "time"

// RunStatus is the lifecycle state of an analysis run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// RunOptions control a single pipeline execution.
type RunOptions struct {
	Input          string `json:"input" validate:"required"`
	OutputDir      string `json:"output_dir,omitempty"`
	Format         string `json:"format,omitempty" validate:"omitempty,oneof=html txt xlsx pdf"`
	SkipLLM        bool   `json:"skip_llm"`
	RemoveOutliers bool   `json:"remove_outliers"`
}

// StepInfo is the reported state of one pipeline step.
type StepInfo struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	Progress    float64    `json:"progress"`
	Message     string     `json:"message,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RunSummary is the externally visible state of an analysis run.
type RunSummary struct {
	ID          string            `json:"id"`
	Status      RunStatus         `json:"status"`
	Input       string            `json:"input"`
	Steps       []StepInfo        `json:"steps"`
	ReportPath  string            `json:"report_path,omitempty"`
	ChartPaths  map[string]string `json:"chart_paths,omitempty"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// ReportInfo describes one generated report file.
type ReportInfo struct {
	Name       string    `json:"name"`
	Format     string    `json:"format"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
}
