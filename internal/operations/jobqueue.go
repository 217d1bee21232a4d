package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"callpulse/pkg/contracts/domain"
)

// JobStatus represents the status of a job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job represents one queued analysis run
type Job struct {
	ID          string                 `json:"id"`
	RunID       string                 `json:"run_id"`
	Trigger     string                 `json:"trigger"`
	Options     domain.RunOptions      `json:"options"`
	Status      JobStatus              `json:"status"`
	Progress    int                    `json:"progress"`
	Message     string                 `json:"message,omitempty"`
	Error       string                 `json:"error,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// JobStore interface for job persistence
type JobStore interface {
	CreateJob(job *Job) error
	GetJob(id string) (*Job, error)
	UpdateJob(job *Job) error
	ListJobs(filter JobFilter) ([]*Job, error)
	DeleteJob(id string) error
}

// JobFilter for querying jobs
type JobFilter struct {
	Status  JobStatus
	RunID   string
	Trigger string
	Since   time.Time
	Limit   int
}

// JobQueue manages async execution of analysis runs
type JobQueue struct {
	mu       sync.RWMutex
	jobs     chan *Job
	workers  int
	wg       sync.WaitGroup
	store    JobStore
	manager  *Manager
	logger   *slog.Logger
	shutdown chan struct{}
	active   map[string]*Job // Currently executing jobs
}

// NewJobQueue creates a new job queue
func NewJobQueue(workers int, store JobStore, manager *Manager, logger *slog.Logger) *JobQueue {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &JobQueue{
		jobs:     make(chan *Job, workers*2), // Buffer size = 2x workers
		workers:  workers,
		store:    store,
		manager:  manager,
		logger:   logger.With(slog.String("component", "jobqueue")),
		shutdown: make(chan struct{}),
		active:   make(map[string]*Job),
	}
}

// Start begins processing jobs
func (q *JobQueue) Start(ctx context.Context) {
	q.logger.Info("starting job queue", slog.Int("workers", q.workers))

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}

	// Re-queue jobs that were interrupted by a restart
	go q.recoverJobs(ctx)
}

// Stop gracefully shuts down the job queue
func (q *JobQueue) Stop(timeout time.Duration) error {
	q.logger.Info("stopping job queue")

	close(q.shutdown)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("job queue stopped gracefully")
		return nil
	case <-time.After(timeout):
		q.logger.Warn("job queue stop timeout exceeded")
		return fmt.Errorf("timeout waiting for workers to finish")
	}
}

// Enqueue adds a job to the queue. The job is persisted before it is
// queued so a restart never loses an accepted request.
func (q *JobQueue) Enqueue(job *Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.RunID == "" {
		job.RunID = job.ID
	}
	if job.Trigger == "" {
		job.Trigger = TriggerAPI
	}
	job.Status = JobStatusQueued
	job.CreatedAt = time.Now()

	if err := q.store.CreateJob(job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	// Surface the queued run on the dashboard before a worker picks it up
	if order, err := q.manager.Registry().DependencyOrder(); err == nil {
		snapshots := make([]StepSnapshot, len(order))
		for i, step := range order {
			snapshots[i] = StepSnapshot{ID: step.ID(), Name: step.Name()}
		}
		q.manager.Broadcaster().CreateRun(job.RunID, snapshots)
	}

	select {
	case q.jobs <- job:
		q.logger.Info("job enqueued",
			slog.String("job_id", job.ID),
			slog.String("run_id", job.RunID),
			slog.String("trigger", job.Trigger))
		return nil
	default:
		job.Status = JobStatusFailed
		job.Error = "job queue is full"
		q.store.UpdateJob(job)
		return fmt.Errorf("job queue is full")
	}
}

// GetJob retrieves a job by ID
func (q *JobQueue) GetJob(id string) (*Job, error) {
	q.mu.RLock()
	if activeJob, ok := q.active[id]; ok {
		q.mu.RUnlock()
		return activeJob, nil
	}
	q.mu.RUnlock()

	return q.store.GetJob(id)
}

// CancelJob cancels a queued or running job. A running job is cancelled
// through the manager; the worker finishes the bookkeeping when the run
// unwinds.
func (q *JobQueue) CancelJob(id string) error {
	job, err := q.GetJob(id)
	if err != nil {
		return err
	}

	switch job.Status {
	case JobStatusQueued, JobStatusRunning:
	default:
		return fmt.Errorf("job %s cannot be cancelled (status: %s)", id, job.Status)
	}

	if job.Status == JobStatusRunning {
		if err := q.manager.CancelRun(job.RunID); err != nil &&
			!errors.Is(err, ErrRunNotFound) && !errors.Is(err, ErrRunNotRunning) {
			return err
		}
		return nil
	}

	job.Status = JobStatusCancelled
	now := time.Now()
	job.CompletedAt = &now
	return q.store.UpdateJob(job)
}

// ListJobs returns jobs matching the filter
func (q *JobQueue) ListJobs(filter JobFilter) ([]*Job, error) {
	return q.store.ListJobs(filter)
}

// worker processes jobs from the queue
func (q *JobQueue) worker(ctx context.Context, workerID int) {
	defer q.wg.Done()

	logger := q.logger.With(slog.Int("worker_id", workerID))
	logger.Debug("worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("worker stopped by context")
			return
		case <-q.shutdown:
			logger.Debug("worker stopped by shutdown")
			return
		case job := <-q.jobs:
			q.processJob(ctx, job, logger)
		}
	}
}

// processJob executes a single job through the manager
func (q *JobQueue) processJob(ctx context.Context, job *Job, logger *slog.Logger) {
	// Propagate the trace ID from the enqueuing request
	if job.Metadata != nil {
		if traceID, ok := job.Metadata["trace_id"].(string); ok {
			ctx = context.WithValue(ctx, middleware.RequestIDKey, traceID)
		}
	}

	logger = logger.With(
		slog.String("job_id", job.ID),
		slog.String("run_id", job.RunID),
		slog.String("trigger", job.Trigger),
	)

	// The job may have been cancelled while it sat in the queue
	if stored, err := q.store.GetJob(job.ID); err == nil && stored.Status == JobStatusCancelled {
		logger.Info("job skipped, cancelled while queued")
		return
	}

	logger.Info("processing job started")

	q.mu.Lock()
	q.active[job.ID] = job
	q.mu.Unlock()

	defer func() {
		// Recover from any panics to prevent server crash
		if r := recover(); r != nil {
			logger.Error("job processing panicked", slog.Any("panic", r))

			job.Status = JobStatusFailed
			job.Error = fmt.Sprintf("job processing panicked: %v", r)
			job.Message = "Internal error occurred"
			completedAt := time.Now()
			job.CompletedAt = &completedAt

			if err := q.store.UpdateJob(job); err != nil {
				logger.Error("failed to update job after panic", slog.String("error", err.Error()))
			}
		}

		q.mu.Lock()
		delete(q.active, job.ID)
		q.mu.Unlock()
	}()

	job.Status = JobStatusRunning
	now := time.Now()
	job.StartedAt = &now
	job.Progress = 0
	job.Message = "Analysis started"

	if err := q.store.UpdateJob(job); err != nil {
		logger.Error("failed to update job status", slog.String("error", err.Error()))
	}

	resp, err := q.manager.Execute(ctx, Request{
		ID:      job.RunID,
		Trigger: job.Trigger,
		Options: job.Options,
	})

	completedAt := time.Now()
	job.CompletedAt = &completedAt

	switch {
	case err != nil && GetErrorType(err) == ErrorTypeCancellation:
		job.Status = JobStatusCancelled
		job.Message = "Run cancelled"
		logger.Info("processing job cancelled")
	case err != nil:
		job.Status = JobStatusFailed
		job.Error = err.Error()
		job.Message = "Analysis failed"
		logger.Error("job failed", slog.String("error", err.Error()))
	default:
		job.Status = JobStatusCompleted
		job.Progress = 100
		job.Message = "Analysis completed"
		if resp != nil {
			job.Message = fmt.Sprintf("Analysis completed in %s", resp.Duration.Round(time.Millisecond))
		}
		logger.Info("processing job completed")
	}

	if err := q.store.UpdateJob(job); err != nil {
		logger.Error("failed to update job completion", slog.String("error", err.Error()))
	}
}

// recoverJobs re-queues jobs that were queued or running when the
// system stopped
func (q *JobQueue) recoverJobs(ctx context.Context) {
	q.logger.Info("recovering queued and running jobs")

	jobs, err := q.store.ListJobs(JobFilter{Status: JobStatusRunning})
	if err != nil {
		q.logger.Error("failed to recover running jobs", slog.String("error", err.Error()))
		return
	}

	queuedJobs, err := q.store.ListJobs(JobFilter{Status: JobStatusQueued})
	if err != nil {
		q.logger.Error("failed to recover queued jobs", slog.String("error", err.Error()))
	} else {
		jobs = append(jobs, queuedJobs...)
	}

	for _, job := range jobs {
		if job.Status == JobStatusRunning {
			job.Status = JobStatusQueued
			job.StartedAt = nil
			job.Progress = 0
			q.store.UpdateJob(job)
		}

		select {
		case q.jobs <- job:
			q.logger.Info("recovered job",
				slog.String("job_id", job.ID),
				slog.String("status", string(job.Status)))
		default:
			q.logger.Warn("could not recover job - queue full",
				slog.String("job_id", job.ID))
		}
	}
}

// Stats returns queue statistics
func (q *JobQueue) Stats() map[string]interface{} {
	q.mu.RLock()
	activeCount := len(q.active)
	q.mu.RUnlock()

	return map[string]interface{}{
		"workers":     q.workers,
		"queue_size":  len(q.jobs),
		"queue_cap":   cap(q.jobs),
		"active_jobs": activeCount,
	}
}
