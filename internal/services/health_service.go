package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"callpulse/internal/config"
	"callpulse/internal/infrastructure"
	"callpulse/internal/operations"
	ws "callpulse/internal/websocket"
	"callpulse/pkg/contracts"
	"callpulse/pkg/contracts/domain"
)

// HealthService reports process health for the dashboard and the
// orchestration probes.
type HealthService struct {
	version   string
	buildTime string
	buildID   string
	cfg       *config.Config
	paths     *config.Paths
	manager   *operations.Manager
	queue     *operations.JobQueue
	hub       *ws.Hub
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus is the health check response body.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Runtime   map[string]interface{} `json:"runtime,omitempty"`
	Services  map[string]interface{} `json:"services,omitempty"`
}

// ServiceHealth is the reported state of one dependency.
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// SystemStats summarizes storage and connection state.
type SystemStats struct {
	UptimeSeconds    float64 `json:"uptime_seconds"`
	DatasetFiles     int     `json:"dataset_files"`
	DatasetBytes     int64   `json:"dataset_bytes"`
	WebSocketClients int     `json:"websocket_clients"`
	ActiveRuns       int     `json:"active_runs"`
	GoVersion        string  `json:"go_version"`
	OS               string  `json:"os"`
	Arch             string  `json:"arch"`
}

// NewHealthService creates the health service. buildTime and buildID
// may be empty when the binary was built without linker flags.
func NewHealthService(version, buildTime, buildID string, cfg *config.Config, paths *config.Paths, manager *operations.Manager, queue *operations.JobQueue, hub *ws.Hub, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &HealthService{
		version:   version,
		buildTime: buildTime,
		buildID:   buildID,
		cfg:       cfg,
		paths:     paths,
		manager:   manager,
		queue:     queue,
		hub:       hub,
		startTime: time.Now(),
		logger:    logger.With(slog.String("component", "health_service")),
	}
}

// HealthCheck reports basic liveness.
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   hs.version,
	}
}

// ReadinessCheck verifies the dependencies a run needs. A missing LLM
// key only degrades insights, so it never blocks readiness.
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   hs.version,
		Services:  make(map[string]interface{}),
	}

	status.Services["storage"] = hs.checkStorage()
	status.Services["pipeline"] = hs.checkPipeline()
	status.Services["websocket"] = hs.checkWebSocket()
	status.Services["llm"] = hs.checkLLM()

	for name, svc := range status.Services {
		if sh, ok := svc.(ServiceHealth); ok && sh.Status == "not_ready" {
			status.Status = "not_ready"
			hs.logger.WarnContext(ctx, "readiness check failed",
				slog.String("service", name),
				slog.String("message", sh.Message))
			break
		}
	}
	return status
}

// LivenessCheck reports process runtime state.
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   hs.version,
		Runtime: map[string]interface{}{
			"uptime":     time.Since(hs.startTime).Seconds(),
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
	}
}

// Version returns version and build information.
func (hs *HealthService) Version() map[string]interface{} {
	info := contracts.GetVersionInfo()
	result := map[string]interface{}{
		"version":      hs.version,
		"api_version":  info.APIVersion,
		"data_format":  info.DataFormat,
		"go_version":   info.GoVersion,
		"os":           info.OS,
		"arch":         info.Architecture,
		"uptime":       time.Since(hs.startTime).Seconds(),
		"start_time":   hs.startTime.Format(time.RFC3339),
		"current_time": time.Now().Format(time.RFC3339),
	}
	if hs.buildTime != "" {
		result["build_time"] = hs.buildTime
	}
	if hs.buildID != "" {
		result["build_id"] = hs.buildID
	}
	return result
}

// SystemStats reports storage usage and activity counters.
func (hs *HealthService) SystemStats(ctx context.Context) (SystemStats, error) {
	var totalFiles int
	var totalSize int64

	filepath.Walk(hs.paths.DataDir, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			totalFiles++
			totalSize += info.Size()
		}
		return nil
	})

	active := 0
	for _, run := range hs.manager.ListRuns() {
		switch run.Status {
		case domain.RunStatusRunning, domain.RunStatusQueued:
			active++
		}
	}

	return SystemStats{
		UptimeSeconds:    time.Since(hs.startTime).Seconds(),
		DatasetFiles:     totalFiles,
		DatasetBytes:     totalSize,
		WebSocketClients: hs.hub.ClientCount(),
		ActiveRuns:       active,
		GoVersion:        runtime.Version(),
		OS:               runtime.GOOS,
		Arch:             runtime.GOARCH,
	}, nil
}

// checkStorage verifies the upload and output directories exist and the
// output directory takes writes.
func (hs *HealthService) checkStorage() ServiceHealth {
	for _, dir := range []string{hs.paths.UploadsDir, hs.paths.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return ServiceHealth{
				Status:  "not_ready",
				Message: fmt.Sprintf("cannot create %s: %v", dir, err),
			}
		}
	}

	probe := filepath.Join(hs.paths.OutputDir, ".write_test")
	f, err := os.Create(probe)
	if err != nil {
		return ServiceHealth{
			Status:  "not_ready",
			Message: fmt.Sprintf("output directory is not writable: %v", err),
		}
	}
	f.Close()
	os.Remove(probe)

	return ServiceHealth{Status: "ready"}
}

func (hs *HealthService) checkPipeline() ServiceHealth {
	if hs.manager == nil || hs.queue == nil {
		return ServiceHealth{Status: "not_ready", Message: "pipeline not initialized"}
	}
	return ServiceHealth{Status: "ready"}
}

func (hs *HealthService) checkWebSocket() ServiceHealth {
	if hs.hub == nil {
		return ServiceHealth{Status: "not_ready", Message: "hub not initialized"}
	}
	return ServiceHealth{
		Status:  "ready",
		Message: fmt.Sprintf("%d clients connected", hs.hub.ClientCount()),
	}
}

// checkLLM reports whether AI insights can run. Without a key the
// pipeline falls back to deterministic summaries, so the worst state
// here is degraded.
func (hs *HealthService) checkLLM() ServiceHealth {
	llm := hs.cfg.LLM

	switch llm.Provider {
	case "mock", "ollama":
		return ServiceHealth{
			Status:  "ready",
			Message: fmt.Sprintf("provider %s needs no API key", llm.Provider),
		}
	}

	if llm.ResolveAPIKey() == "" {
		return ServiceHealth{
			Status:  "degraded",
			Message: fmt.Sprintf("no API key for provider %s, insights fall back to computed summaries", llm.Provider),
		}
	}
	return ServiceHealth{
		Status:  "ready",
		Message: fmt.Sprintf("provider %s configured", llm.Provider),
	}
}
