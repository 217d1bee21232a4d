package operations

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"callpulse/pkg/contracts/events"
)

// WebSocketHub is the outbound interface for pushing run updates to
// connected dashboard clients
type WebSocketHub interface {
	BroadcastUpdate(eventType, runID, action string, payload interface{})
}

// StatusBroadcaster is the single authority for run status updates. It
// maintains a snapshot per run and pushes the complete snapshot to the hub
// on every change, so clients never have to merge partial events.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	runs    map[string]*RunSnapshot
	hub     WebSocketHub
	logger  *slog.Logger
	updates chan updateRequest
	stop    chan struct{}
}

// RunSnapshot is the complete state of a run at a point in time. The
// wire format lives in the events contract package; the aliases keep
// the broadcaster's API local to this package.
type RunSnapshot = events.RunSnapshot

// StepSnapshot is the state of a single step within a run snapshot
type StepSnapshot = events.StepSnapshot

type updateRequest struct {
	runID      string
	updateFunc func(*RunSnapshot)
	done       chan struct{}
}

// NewStatusBroadcaster creates a broadcaster and starts its update loop
func NewStatusBroadcaster(hub WebSocketHub, logger *slog.Logger) *StatusBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}

	sb := &StatusBroadcaster{
		runs:    make(map[string]*RunSnapshot),
		hub:     hub,
		logger:  logger,
		updates: make(chan updateRequest, 100),
		stop:    make(chan struct{}),
	}

	go sb.processUpdates()

	return sb
}

// processUpdates applies all updates sequentially to avoid races between
// concurrent steps
func (sb *StatusBroadcaster) processUpdates() {
	for {
		select {
		case <-sb.stop:
			return
		case req := <-sb.updates:
			sb.handleUpdate(req)
		}
	}
}

func (sb *StatusBroadcaster) handleUpdate(req updateRequest) {
	defer close(req.done)

	sb.mu.Lock()
	defer sb.mu.Unlock()

	snapshot, exists := sb.runs[req.runID]
	if !exists {
		snapshot = &RunSnapshot{
			RunID:     req.runID,
			Status:    "queued",
			StartedAt: time.Now(),
			UpdatedAt: time.Now(),
			Steps:     []StepSnapshot{},
		}
		sb.runs[req.runID] = snapshot
	}

	req.updateFunc(snapshot)
	snapshot.UpdatedAt = time.Now()

	// Overall progress is the mean of step progress. Skipped steps count as
	// done so a run with skipped insights can still reach 100.
	if len(snapshot.Steps) > 0 {
		total := 0
		for _, step := range snapshot.Steps {
			if step.Status == "skipped" {
				total += 100
			} else {
				total += step.Progress
			}
		}
		snapshot.Progress = total / len(snapshot.Steps)
	}

	if snapshot.Status == "completed" || snapshot.Status == "failed" || snapshot.Status == "cancelled" {
		if snapshot.CompletedAt == nil {
			now := time.Now()
			snapshot.CompletedAt = &now
		}
	}

	sb.broadcast(snapshot)
}

func (sb *StatusBroadcaster) broadcast(snapshot *RunSnapshot) {
	if sb.hub == nil {
		return
	}

	sb.logger.Debug("broadcasting run snapshot",
		slog.String("run_id", snapshot.RunID),
		slog.String("status", snapshot.Status),
		slog.Int("progress", snapshot.Progress),
		slog.String("current_step", snapshot.CurrentStep))

	sb.hub.BroadcastUpdate(EventTypeRunSnapshot, snapshot.RunID, "update", snapshot)
}

// UpdateStatus applies an update to a run snapshot and broadcasts the
// result. All mutations go through here.
func (sb *StatusBroadcaster) UpdateStatus(runID string, updateFunc func(*RunSnapshot)) {
	req := updateRequest{
		runID:      runID,
		updateFunc: updateFunc,
		done:       make(chan struct{}),
	}

	select {
	case sb.updates <- req:
		<-req.done
	case <-sb.stop:
	}
}

// CreateRun initializes a run snapshot with its planned steps
func (sb *StatusBroadcaster) CreateRun(runID string, steps []StepSnapshot) {
	sb.UpdateStatus(runID, func(snapshot *RunSnapshot) {
		snapshot.Status = "queued"
		snapshot.Progress = 0
		snapshot.Steps = make([]StepSnapshot, len(steps))
		for i, step := range steps {
			step.Status = "pending"
			step.Progress = 0
			snapshot.Steps[i] = step
		}
		snapshot.Message = "run created"
	})
}

// StartRun marks a run as running
func (sb *StatusBroadcaster) StartRun(runID string) {
	sb.UpdateStatus(runID, func(snapshot *RunSnapshot) {
		snapshot.Status = "running"
		snapshot.Message = "run started"
	})
}

// UpdateStepProgress updates a step's progress. Progress only moves forward
// while a step runs; late out-of-order events cannot roll it back.
func (sb *StatusBroadcaster) UpdateStepProgress(runID, stepID string, progress int, message string) {
	sb.UpdateStatus(runID, func(snapshot *RunSnapshot) {
		for i := range snapshot.Steps {
			if snapshot.Steps[i].ID != stepID {
				continue
			}
			if progress >= snapshot.Steps[i].Progress || snapshot.Steps[i].Status != "running" {
				snapshot.Steps[i].Progress = clampProgress(progress)
			}
			snapshot.Steps[i].Message = message
			if progress > 0 && progress < 100 {
				snapshot.Steps[i].Status = "running"
				snapshot.CurrentStep = snapshot.Steps[i].Name
			} else if progress >= 100 {
				snapshot.Steps[i].Status = "completed"
			}
			break
		}
	})
}

// StartStep marks a step as running
func (sb *StatusBroadcaster) StartStep(runID, stepID string) {
	sb.UpdateStatus(runID, func(snapshot *RunSnapshot) {
		for i := range snapshot.Steps {
			if snapshot.Steps[i].ID == stepID {
				snapshot.Steps[i].Status = "running"
				snapshot.Steps[i].Progress = 0
				snapshot.CurrentStep = snapshot.Steps[i].Name
				break
			}
		}
	})
}

// CompleteStep marks a step as completed
func (sb *StatusBroadcaster) CompleteStep(runID, stepID, message string) {
	sb.UpdateStatus(runID, func(snapshot *RunSnapshot) {
		for i := range snapshot.Steps {
			if snapshot.Steps[i].ID == stepID {
				snapshot.Steps[i].Status = "completed"
				snapshot.Steps[i].Progress = 100
				snapshot.Steps[i].Message = message
				break
			}
		}
	})
}

// FailStep marks a step as failed
func (sb *StatusBroadcaster) FailStep(runID, stepID string, err error) {
	sb.UpdateStatus(runID, func(snapshot *RunSnapshot) {
		for i := range snapshot.Steps {
			if snapshot.Steps[i].ID == stepID {
				snapshot.Steps[i].Status = "failed"
				snapshot.Steps[i].Error = err.Error()
				break
			}
		}
	})
}

// SkipStep marks a step as skipped with a reason
func (sb *StatusBroadcaster) SkipStep(runID, stepID, reason string) {
	sb.UpdateStatus(runID, func(snapshot *RunSnapshot) {
		for i := range snapshot.Steps {
			if snapshot.Steps[i].ID == stepID {
				snapshot.Steps[i].Status = "skipped"
				snapshot.Steps[i].Message = reason
				break
			}
		}
	})
}

// CompleteRun marks a run as completed
func (sb *StatusBroadcaster) CompleteRun(runID, message string) {
	sb.UpdateStatus(runID, func(snapshot *RunSnapshot) {
		snapshot.Status = "completed"
		snapshot.Progress = 100
		snapshot.CurrentStep = ""
		snapshot.Message = message
		for i := range snapshot.Steps {
			if snapshot.Steps[i].Status == "running" || snapshot.Steps[i].Status == "pending" {
				snapshot.Steps[i].Status = "completed"
				snapshot.Steps[i].Progress = 100
			}
		}
	})
}

// FailRun marks a run as failed. Clients that only watch for errors get
// a run error event after the final snapshot.
func (sb *StatusBroadcaster) FailRun(runID string, err error) {
	sb.UpdateStatus(runID, func(snapshot *RunSnapshot) {
		snapshot.Status = "failed"
		snapshot.Error = err.Error()
		snapshot.CurrentStep = ""
	})

	if sb.hub != nil {
		sb.hub.BroadcastUpdate(EventTypeRunError, runID, "failed", map[string]interface{}{
			"run_id": runID,
			"error":  err.Error(),
		})
	}
}

// CancelRun marks a run as cancelled
func (sb *StatusBroadcaster) CancelRun(runID string) {
	sb.UpdateStatus(runID, func(snapshot *RunSnapshot) {
		snapshot.Status = "cancelled"
		snapshot.CurrentStep = ""
		snapshot.Message = "run cancelled"
	})
}

// GetSnapshot returns a copy of the current snapshot for a run
func (sb *StatusBroadcaster) GetSnapshot(runID string) (*RunSnapshot, bool) {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	snapshot, exists := sb.runs[runID]
	if !exists {
		return nil, false
	}

	clone := *snapshot
	clone.Steps = make([]StepSnapshot, len(snapshot.Steps))
	copy(clone.Steps, snapshot.Steps)
	return &clone, true
}

// GetAllSnapshots returns copies of all current run snapshots
func (sb *StatusBroadcaster) GetAllSnapshots() []*RunSnapshot {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	snapshots := make([]*RunSnapshot, 0, len(sb.runs))
	for _, snapshot := range sb.runs {
		clone := *snapshot
		clone.Steps = make([]StepSnapshot, len(snapshot.Steps))
		copy(clone.Steps, snapshot.Steps)
		snapshots = append(snapshots, &clone)
	}
	return snapshots
}

// CleanupOldRuns drops finished runs older than maxAge
func (sb *StatusBroadcaster) CleanupOldRuns(ctx context.Context, maxAge time.Duration) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	now := time.Now()
	for id, snapshot := range sb.runs {
		if snapshot.Status != "completed" && snapshot.Status != "failed" && snapshot.Status != "cancelled" {
			continue
		}
		if snapshot.CompletedAt != nil && now.Sub(*snapshot.CompletedAt) > maxAge {
			delete(sb.runs, id)
			sb.logger.InfoContext(ctx, "cleaned up old run snapshot",
				slog.String("run_id", id),
				slog.String("status", snapshot.Status))
		}
	}
}

// Stop shuts down the broadcaster's update loop
func (sb *StatusBroadcaster) Stop() {
	close(sb.stop)
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
