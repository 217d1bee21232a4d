// Package operations orchestrates the call-center analysis pipeline as
// a sequence of dependent steps: load, validate, clean, kpis,
// correlate, insights, report.
//
// The package supports:
//
//   - Step-based execution with dependency ordering
//   - Configurable per-step timeouts and retry for transient failures
//   - Skipping: a step whose Validate fails (or whose dependency was
//     skipped) is marked skipped and the rest of the run continues
//   - Real-time progress snapshots via WebSocket
//   - Async execution through a worker-backed job queue
//   - A drop-directory watcher that enqueues new CSV exports
//
// Core Components:
//
// Manager: the orchestrator. It resolves step order through the
// Registry, runs each step with timeout and retry, records metrics,
// and keeps finished runs queryable until they are pruned.
//
// Step: a single unit of work. Steps read and write typed artifacts on
// the shared State, so the KPI step consumes the frame the clean step
// produced and the report step consumes whatever the earlier steps
// managed to compute.
//
// StatusBroadcaster: serializes state changes into run snapshots and
// pushes them to the WebSocket hub.
//
// JobQueue: runs analyses asynchronously on a fixed worker pool with
// persisted job records, so accepted requests survive a restart.
//
// Watcher: watches a directory for new CSV files and enqueues a job
// per drop after a debounce window.
//
// Example usage:
//
//	manager := operations.NewManager(hub, operations.NewRegistry(), operations.NewConfig(), logger)
//	err := operations.RegisterPipeline(manager.Registry(), operations.PipelineDeps{
//		Logger:    logger,
//		Loader:    loader,
//		Validator: validator,
//		// ... analyzers, renderer, generator, exporters
//	})
//
//	resp, err := manager.Execute(ctx, operations.Request{
//		Options: domain.RunOptions{Input: "calls.csv", OutputDir: "outputs"},
//	})
package operations
