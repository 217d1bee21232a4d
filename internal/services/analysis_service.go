package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"callpulse/internal/dataset"
	"callpulse/internal/files"
	"callpulse/internal/infrastructure"
	"callpulse/internal/operations"
	"callpulse/internal/validation"
	"callpulse/pkg/contracts/domain"
)

// UploadResult is returned after an uploaded dataset has been stored
// and profiled.
type UploadResult struct {
	DatasetID string               `json:"dataset_id"`
	Rows      int                  `json:"rows"`
	Columns   int                  `json:"columns"`
	SizeBytes int64                `json:"size_bytes"`
	Quality   domain.QualityReport `json:"quality"`
}

// RunRequest asks for an analysis run against a stored dataset or a
// server-side path. Exactly one of DatasetID and Path must be set.
type RunRequest struct {
	DatasetID string     `json:"dataset_id,omitempty"`
	Path      string     `json:"path,omitempty"`
	Options   RunOptions `json:"options"`
}

// RunOptions are the externally settable options of a run.
type RunOptions struct {
	Format         string `json:"format,omitempty"`
	NoLLM          bool   `json:"no_llm"`
	RemoveOutliers bool   `json:"remove_outliers"`
}

// KPIResult bundles the KPI artifacts of a run.
type KPIResult struct {
	RunID       string                             `json:"run_id"`
	KPIs        domain.KPISet                      `json:"kpis"`
	Comparisons map[string]domain.TargetComparison `json:"comparisons,omitempty"`
	Trends      []domain.Trend                     `json:"trends,omitempty"`
}

// CorrelationResult bundles the relationship artifacts of a run.
type CorrelationResult struct {
	RunID     string                      `json:"run_id"`
	Analysis  *domain.CorrelationAnalysis `json:"analysis"`
	Anomalies []domain.Anomaly            `json:"anomalies,omitempty"`
}

// InsightResult carries the generated narrative of a run.
type InsightResult struct {
	RunID    string             `json:"run_id"`
	Insights *domain.InsightSet `json:"insights"`
}

// QualityResult bundles the data quality artifacts of a run.
type QualityResult struct {
	RunID      string                   `json:"run_id"`
	Validation *domain.ValidationResult `json:"validation,omitempty"`
	Quality    *domain.QualityReport    `json:"quality"`
	Cleaning   *domain.CleaningSummary  `json:"cleaning,omitempty"`
}

// AnalysisService owns dataset uploads and analysis run submission for
// the dashboard. Runs execute asynchronously through the job queue; the
// job ID doubles as the run ID used by all status and result lookups.
type AnalysisService struct {
	queue     *operations.JobQueue
	manager   *operations.Manager
	files     *files.Manager
	validator *validation.FileValidator
	loader    *dataset.Loader
	profiler  *dataset.Validator
	maxUpload int64
	logger    *slog.Logger
}

// NewAnalysisService creates the analysis service. maxUploadBytes caps
// accepted uploads; zero disables the cap.
func NewAnalysisService(queue *operations.JobQueue, manager *operations.Manager, fm *files.Manager, loader *dataset.Loader, profiler *dataset.Validator, maxUploadBytes int64, logger *slog.Logger) *AnalysisService {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &AnalysisService{
		queue:     queue,
		manager:   manager,
		files:     fm,
		validator: validation.NewFileValidator(logger),
		loader:    loader,
		profiler:  profiler,
		maxUpload: maxUploadBytes,
		logger:    logger.With(slog.String("component", "analysis_service")),
	}
}

// UploadDataset stores an uploaded CSV, loads it once to profile its
// quality, and returns the dataset ID runs are started against.
func (s *AnalysisService) UploadDataset(ctx context.Context, filename string, size int64, r io.Reader) (*UploadResult, error) {
	if err := s.validator.ValidateUpload(filename, size, s.maxUpload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	info, err := s.files.SaveUpload(filename, r)
	if err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	frame, err := s.loader.Load(ctx, info.Path)
	if err != nil {
		// A stored file that cannot be parsed is useless, drop it
		if rmErr := s.files.RemoveUpload(info.Name); rmErr != nil {
			s.logger.WarnContext(ctx, "failed to remove unparseable upload",
				slog.String("dataset_id", info.Name),
				slog.String("error", rmErr.Error()))
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	quality := s.profiler.Quality(frame)

	s.logger.InfoContext(ctx, "dataset uploaded",
		slog.String("dataset_id", info.Name),
		slog.Int("rows", frame.NumRows()),
		slog.Int("columns", frame.NumColumns()),
		slog.Int64("bytes", info.Size))

	return &UploadResult{
		DatasetID: info.Name,
		Rows:      frame.NumRows(),
		Columns:   frame.NumColumns(),
		SizeBytes: info.Size,
		Quality:   quality,
	}, nil
}

// ListDatasets returns stored datasets, newest first.
func (s *AnalysisService) ListDatasets(ctx context.Context) ([]files.FileInfo, error) {
	return s.files.ListUploads()
}

// DeleteDataset removes a stored dataset.
func (s *AnalysisService) DeleteDataset(ctx context.Context, id string) error {
	if err := s.files.RemoveUpload(id); err != nil {
		if errors.Is(err, files.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrDatasetNotFound, id)
		}
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	s.logger.InfoContext(ctx, "dataset deleted", slog.String("dataset_id", id))
	return nil
}

// StartRun validates the request and enqueues the run. The returned job
// is already persisted; its RunID is what the caller polls and what the
// stream broadcasts under.
func (s *AnalysisService) StartRun(ctx context.Context, req RunRequest) (*operations.Job, error) {
	input, err := s.resolveInput(req)
	if err != nil {
		return nil, err
	}

	job := &operations.Job{
		Trigger: operations.TriggerAPI,
		Options: domain.RunOptions{
			Input:          input,
			OutputDir:      s.files.OutputDir(),
			Format:         req.Options.Format,
			SkipLLM:        req.Options.NoLLM,
			RemoveOutliers: req.Options.RemoveOutliers,
		},
	}
	if traceID := infrastructure.GetTraceID(ctx); traceID != "" {
		job.Metadata = map[string]interface{}{"trace_id": traceID}
	}

	if err := s.queue.Enqueue(job); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	s.logger.InfoContext(ctx, "analysis run queued",
		slog.String("run_id", job.RunID),
		slog.String("input", input),
		slog.String("format", req.Options.Format),
		slog.Bool("skip_llm", req.Options.NoLLM))

	return job, nil
}

// resolveInput maps the request to a pipeline input path. Dataset IDs
// resolve through the upload store; raw paths are checked to contain
// CSV data before a run is accepted for them.
func (s *AnalysisService) resolveInput(req RunRequest) (string, error) {
	switch {
	case req.DatasetID != "" && req.Path != "":
		return "", fmt.Errorf("%w: dataset_id and path are mutually exclusive", ErrInvalidInput)

	case req.DatasetID != "":
		path, err := s.files.UploadPath(req.DatasetID)
		if err != nil {
			if errors.Is(err, files.ErrNotFound) {
				return "", fmt.Errorf("%w: %s", ErrDatasetNotFound, req.DatasetID)
			}
			return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return path, nil

	case req.Path != "":
		if _, err := files.ResolveCSVInputs(req.Path); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return req.Path, nil

	default:
		return "", fmt.Errorf("%w: dataset_id or path is required", ErrInvalidInput)
	}
}

// Run returns the externally visible state of one run. Jobs the manager
// has not picked up yet are reported from the queue.
func (s *AnalysisService) Run(ctx context.Context, id string) (*domain.RunSummary, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: run id is required", ErrInvalidInput)
	}

	if state, err := s.manager.GetRun(id); err == nil {
		summary := state.Summary()
		return &summary, nil
	}

	job, err := s.queue.GetJob(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	summary := jobSummary(job)
	return &summary, nil
}

// ListRuns returns all known runs newest first, including jobs still
// waiting in the queue.
func (s *AnalysisService) ListRuns(ctx context.Context) ([]domain.RunSummary, error) {
	summaries := s.manager.ListRuns()

	seen := make(map[string]struct{}, len(summaries))
	for _, sum := range summaries {
		seen[sum.ID] = struct{}{}
	}

	queued, err := s.queue.ListJobs(operations.JobFilter{Status: operations.JobStatusQueued})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to list queued jobs", slog.String("error", err.Error()))
	}
	for _, job := range queued {
		if _, ok := seen[job.RunID]; ok {
			continue
		}
		summaries = append(summaries, jobSummary(job))
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}

// CancelRun cancels a queued or running run.
func (s *AnalysisService) CancelRun(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: run id is required", ErrInvalidInput)
	}
	if err := s.queue.CancelJob(id); err != nil {
		if errors.Is(err, operations.ErrJobNotFound) {
			return fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	s.logger.InfoContext(ctx, "run cancellation requested", slog.String("run_id", id))
	return nil
}

// KPIs returns the KPI artifacts of a run.
func (s *AnalysisService) KPIs(ctx context.Context, id string) (*KPIResult, error) {
	state, err := s.runState(id)
	if err != nil {
		return nil, err
	}

	art := state.Artifacts()
	kpis := art.KPIs()
	if kpis.Count() == 0 {
		return nil, ErrArtifactNotReady
	}
	return &KPIResult{
		RunID:       state.ID(),
		KPIs:        kpis,
		Comparisons: art.Comparisons(),
		Trends:      art.Trends(),
	}, nil
}

// Correlations returns the correlation artifacts of a run.
func (s *AnalysisService) Correlations(ctx context.Context, id string) (*CorrelationResult, error) {
	state, err := s.runState(id)
	if err != nil {
		return nil, err
	}

	corr := state.Artifacts().Correlation()
	if corr == nil {
		return nil, ErrArtifactNotReady
	}
	return &CorrelationResult{
		RunID:     state.ID(),
		Analysis:  corr,
		Anomalies: state.Artifacts().Anomalies(),
	}, nil
}

// Insights returns the generated narrative of a run.
func (s *AnalysisService) Insights(ctx context.Context, id string) (*InsightResult, error) {
	state, err := s.runState(id)
	if err != nil {
		return nil, err
	}

	insights := state.Artifacts().Insights()
	if insights == nil {
		return nil, ErrArtifactNotReady
	}
	return &InsightResult{RunID: state.ID(), Insights: insights}, nil
}

// Quality returns the data quality artifacts of a run.
func (s *AnalysisService) Quality(ctx context.Context, id string) (*QualityResult, error) {
	state, err := s.runState(id)
	if err != nil {
		return nil, err
	}

	art := state.Artifacts()
	quality := art.Quality()
	if quality == nil {
		return nil, ErrArtifactNotReady
	}
	return &QualityResult{
		RunID:      state.ID(),
		Validation: art.Validation(),
		Quality:    quality,
		Cleaning:   art.Cleaning(),
	}, nil
}

// QueueStats reports job queue utilization.
func (s *AnalysisService) QueueStats() map[string]interface{} {
	return s.queue.Stats()
}

// runState resolves a run for artifact access. A job still in the
// queue has no artifacts yet, which is distinct from an unknown run.
func (s *AnalysisService) runState(id string) (*operations.State, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: run id is required", ErrInvalidInput)
	}

	state, err := s.manager.GetRun(id)
	if err != nil {
		if _, jobErr := s.queue.GetJob(id); jobErr == nil {
			return nil, ErrArtifactNotReady
		}
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return state, nil
}

// jobSummary shapes a queue entry as a run summary for jobs the
// manager has not picked up yet. Job and run status values coincide.
func jobSummary(job *operations.Job) domain.RunSummary {
	return domain.RunSummary{
		ID:          job.RunID,
		Status:      domain.RunStatus(job.Status),
		Input:       job.Options.Input,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
}
