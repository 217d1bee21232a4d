package operations

import (
	"sync"
	"time"

	"callpulse/internal/analysis"
	"callpulse/internal/dataset"
	"callpulse/pkg/contracts/domain"
)

// State is the complete runtime state of one analysis run. Steps mutate it
// through the typed artifact store; readers get consistent snapshots.
type State struct {
	mu sync.RWMutex

	id      string
	trigger string
	status  domain.RunStatus
	options domain.RunOptions

	createdAt   time.Time
	startedAt   *time.Time
	completedAt *time.Time

	steps map[string]*StepState
	order []string

	artifacts *Artifacts
	err       error
}

// NewState creates a queued run state
func NewState(id string, opts domain.RunOptions) *State {
	return &State{
		id:        id,
		status:    domain.RunStatusQueued,
		options:   opts,
		createdAt: time.Now(),
		steps:     make(map[string]*StepState),
		artifacts: &Artifacts{},
	}
}

// ID returns the run identifier
func (s *State) ID() string {
	return s.id
}

// Options returns the run options
func (s *State) Options() domain.RunOptions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.options
}

// Trigger returns where the run was requested from
func (s *State) Trigger() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trigger
}

// SetTrigger records the request origin
func (s *State) SetTrigger(trigger string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trigger = trigger
}

// Status returns the current run status
func (s *State) Status() domain.RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Artifacts returns the typed artifact store for this run
func (s *State) Artifacts() *Artifacts {
	return s.artifacts
}

// Err returns the run failure, if any
func (s *State) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Start marks the run as running
func (s *State) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.startedAt = &now
	s.status = domain.RunStatusRunning
}

// Complete marks the run as completed
func (s *State) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.completedAt = &now
	s.status = domain.RunStatusCompleted
}

// Fail marks the run as failed
func (s *State) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.completedAt = &now
	s.status = domain.RunStatusFailed
	s.err = err
}

// Cancel marks the run as cancelled. Cancelling a finished run is a no-op.
func (s *State) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == domain.RunStatusCompleted || s.status == domain.RunStatusFailed {
		return
	}
	now := time.Now()
	s.completedAt = &now
	s.status = domain.RunStatusCancelled
}

// SetStep registers the runtime state for a step, preserving insertion order
func (s *State) SetStep(state *StepState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.steps[state.ID()]; !exists {
		s.order = append(s.order, state.ID())
	}
	s.steps[state.ID()] = state
}

// Step returns the runtime state for a step, or nil
func (s *State) Step(id string) *StepState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.steps[id]
}

// StepStates returns all step states in execution order
func (s *State) StepStates() []*StepState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	states := make([]*StepState, 0, len(s.order))
	for _, id := range s.order {
		states = append(states, s.steps[id])
	}
	return states
}

// StepInfos returns reportable snapshots of all steps in execution order
func (s *State) StepInfos() []domain.StepInfo {
	states := s.StepStates()
	infos := make([]domain.StepInfo, len(states))
	for i, st := range states {
		infos[i] = st.Info()
	}
	return infos
}

// HasFailures reports whether any step has failed
func (s *State) HasFailures() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, st := range s.steps {
		if st.Status() == StepStatusFailed {
			return true
		}
	}
	return false
}

// Duration returns how long the run has been (or was) executing
func (s *State) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.startedAt == nil {
		return 0
	}
	if s.completedAt != nil {
		return s.completedAt.Sub(*s.startedAt)
	}
	return time.Since(*s.startedAt)
}

// Summary returns the externally visible view of the run
func (s *State) Summary() domain.RunSummary {
	s.mu.RLock()
	summary := domain.RunSummary{
		ID:        s.id,
		Status:    s.status,
		Input:     s.options.Input,
		CreatedAt: s.createdAt,
	}
	if s.startedAt != nil {
		t := *s.startedAt
		summary.StartedAt = &t
	}
	if s.completedAt != nil {
		t := *s.completedAt
		summary.CompletedAt = &t
	}
	if s.err != nil {
		summary.Error = s.err.Error()
	}
	s.mu.RUnlock()

	summary.Steps = s.StepInfos()
	summary.ReportPath = s.artifacts.ReportPath()
	summary.ChartPaths = s.artifacts.ChartPaths()
	return summary
}

// Artifacts is the typed store for everything the pipeline produces.
// Each step writes its products here and later steps read them.
type Artifacts struct {
	mu sync.RWMutex

	frame       *dataset.Frame
	validation  *domain.ValidationResult
	cleaning    *domain.CleaningSummary
	kpis        domain.KPISet
	comparisons map[string]domain.TargetComparison
	trends      []domain.Trend
	correlation *domain.CorrelationAnalysis
	anomalies   []domain.Anomaly
	stats       *analysis.DescriptiveSummary
	insights    *domain.InsightSet
	chartPaths  map[string]string
	reportPath  string
	exportPaths []string
}

// SetFrame stores the working data frame
func (a *Artifacts) SetFrame(f *dataset.Frame) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.frame = f
}

// Frame returns the working data frame, or nil
func (a *Artifacts) Frame() *dataset.Frame {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.frame
}

// SetValidation stores the validation result
func (a *Artifacts) SetValidation(v *domain.ValidationResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.validation = v
}

// Validation returns the validation result, or nil
func (a *Artifacts) Validation() *domain.ValidationResult {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.validation
}

// Quality returns the data quality report from validation, or nil
func (a *Artifacts) Quality() *domain.QualityReport {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.validation == nil {
		return nil
	}
	q := a.validation.Quality
	return &q
}

// SetCleaning stores the cleaning summary
func (a *Artifacts) SetCleaning(c *domain.CleaningSummary) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cleaning = c
}

// Cleaning returns the cleaning summary, or nil
func (a *Artifacts) Cleaning() *domain.CleaningSummary {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cleaning
}

// SetKPIs stores the computed KPI set and target comparisons
func (a *Artifacts) SetKPIs(set domain.KPISet, comparisons map[string]domain.TargetComparison) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.kpis = set
	a.comparisons = comparisons
}

// KPIs returns the computed KPI set
func (a *Artifacts) KPIs() domain.KPISet {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.kpis
}

// Comparisons returns the KPI target comparisons
func (a *Artifacts) Comparisons() map[string]domain.TargetComparison {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.comparisons
}

// SetTrends stores per-metric trend series
func (a *Artifacts) SetTrends(trends []domain.Trend) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.trends = trends
}

// Trends returns the per-metric trend series
func (a *Artifacts) Trends() []domain.Trend {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.trends
}

// SetCorrelation stores the correlation analysis
func (a *Artifacts) SetCorrelation(c *domain.CorrelationAnalysis) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.correlation = c
}

// Correlation returns the correlation analysis, or nil
func (a *Artifacts) Correlation() *domain.CorrelationAnalysis {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.correlation
}

// SetAnomalies stores flagged anomalies
func (a *Artifacts) SetAnomalies(anomalies []domain.Anomaly) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.anomalies = anomalies
}

// Anomalies returns flagged anomalies
func (a *Artifacts) Anomalies() []domain.Anomaly {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.anomalies
}

// SetStats stores the descriptive statistics summary
func (a *Artifacts) SetStats(s *analysis.DescriptiveSummary) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats = s
}

// Stats returns the descriptive statistics summary, or nil
func (a *Artifacts) Stats() *analysis.DescriptiveSummary {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stats
}

// SetInsights stores the generated insight set
func (a *Artifacts) SetInsights(i *domain.InsightSet) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.insights = i
}

// Insights returns the generated insight set, or nil
func (a *Artifacts) Insights() *domain.InsightSet {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.insights
}

// SetChartPaths stores rendered chart file paths keyed by chart name
func (a *Artifacts) SetChartPaths(paths map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.chartPaths = paths
}

// ChartPaths returns rendered chart file paths keyed by chart name
func (a *Artifacts) ChartPaths() map[string]string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.chartPaths
}

// SetReportPath stores the emitted report file path
func (a *Artifacts) SetReportPath(path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reportPath = path
}

// ReportPath returns the emitted report file path
func (a *Artifacts) ReportPath() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.reportPath
}

// AddExportPaths appends emitted data export file paths
func (a *Artifacts) AddExportPaths(paths ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.exportPaths = append(a.exportPaths, paths...)
}

// ExportPaths returns emitted data export file paths
func (a *Artifacts) ExportPaths() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.exportPaths
}
