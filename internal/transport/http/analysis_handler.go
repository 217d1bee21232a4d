package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "callpulse/internal/errors"
	"callpulse/internal/middleware"
	"callpulse/internal/services"
	api "callpulse/pkg/contracts/api/v1"
	"callpulse/pkg/contracts/events"
)

// multipartOverhead leaves room for form boundaries and headers on top of
// the configured dataset size cap when limiting the request body.
const multipartOverhead = 64 << 10

// Hub is the WebSocket surface handlers use to notify dashboard clients.
type Hub interface {
	BroadcastUpdate(eventType, runID, action string, payload interface{})
	BroadcastError(code, message, details, step string, recoverable bool)
}

// AnalysisHandler handles dataset upload and analysis run HTTP requests
type AnalysisHandler struct {
	service        AnalysisServiceInterface
	hub            Hub
	logger         *slog.Logger
	errorHandler   *apierrors.ErrorHandler
	maxUploadBytes int64
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(service AnalysisServiceInterface, hub Hub, logger *slog.Logger, errorHandler *apierrors.ErrorHandler, maxUploadBytes int64) *AnalysisHandler {
	if service == nil {
		panic("service cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &AnalysisHandler{
		service:        service,
		hub:            hub,
		logger:         logger.With(slog.String("handler", "analysis")),
		errorHandler:   errorHandler,
		maxUploadBytes: maxUploadBytes,
	}
}

// Routes sets up the analysis routes
func (h *AnalysisHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Post("/upload", h.UploadDataset)
	r.Get("/datasets", h.ListDatasets)
	r.Delete("/datasets/{id}", h.DeleteDataset)

	r.Post("/run", h.StartRun)
	r.Get("/runs", h.ListRuns)
	r.Get("/queue", h.QueueStats)

	r.Route("/runs/{id}", func(r chi.Router) {
		r.Use(h.RunCtx)
		r.Get("/", h.GetRun)
		r.Post("/cancel", h.CancelRun)
		r.Get("/kpis", h.GetKPIs)
		r.Get("/correlations", h.GetCorrelations)
		r.Get("/insights", h.GetInsights)
		r.Get("/quality", h.GetQuality)
	})

	return r
}

// RunCtx middleware validates the run ID parameter
func (h *AnalysisHandler) RunCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		runID := chi.URLParam(r, "id")
		if runID == "" {
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("id", "Run ID is required"))
			return
		}
		if len(runID) > 128 {
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("id", "Invalid run ID format"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RunRequest wraps the run start contract with request validation
type RunRequest struct {
	api.RunStartRequest
}

// Bind implements the render.Binder interface for request validation
func (r *RunRequest) Bind(req *http.Request) error {
	if r.DatasetID == "" && r.Path == "" {
		return errors.New("dataset_id or path is required")
	}
	if r.DatasetID != "" && r.Path != "" {
		return errors.New("dataset_id and path are mutually exclusive")
	}

	if r.Options.Format != "" {
		switch r.Options.Format {
		case "html", "txt", "xlsx", "pdf":
		default:
			return fmt.Errorf("invalid format: %s", r.Options.Format)
		}
	}

	return nil
}

// UploadDataset handles POST /api/analysis/upload
func (h *AnalysisHandler) UploadDataset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	h.logger.InfoContext(ctx, "dataset upload request",
		slog.String("request_id", reqID))

	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.errorHandler.HandleError(w, r, apierrors.New(http.StatusRequestEntityTooLarge,
				"UPLOAD_TOO_LARGE", fmt.Sprintf("Upload exceeds the %d byte limit", h.maxUploadBytes)))
			return
		}
		h.errorHandler.HandleError(w, r, apierrors.New(http.StatusBadRequest,
			"INVALID_UPLOAD", "Request must be multipart form data with a \"file\" part"))
		return
	}
	defer file.Close()

	result, err := h.service.UploadDataset(ctx, header.Filename, header.Size, file)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "dataset uploaded",
		slog.String("dataset_id", result.DatasetID),
		slog.Int("rows", result.Rows),
		slog.String("request_id", reqID))

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data": api.UploadResponse{
			DatasetID: result.DatasetID,
			Rows:      result.Rows,
			Columns:   result.Columns,
			SizeBytes: result.SizeBytes,
			Quality:   result.Quality,
		},
	})
}

// ListDatasets handles GET /api/analysis/datasets
func (h *AnalysisHandler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	datasets, err := h.service.ListDatasets(ctx)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   datasets,
		"count":  len(datasets),
	})
}

// DeleteDataset handles DELETE /api/analysis/datasets/{id}
func (h *AnalysisHandler) DeleteDataset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if err := h.service.DeleteDataset(ctx, id); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "dataset deleted",
		slog.String("dataset_id", id),
		slog.String("request_id", middleware.GetReqID(ctx)))

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
	})
}

// StartRun handles POST /api/analysis/run
func (h *AnalysisHandler) StartRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)

	data := &RunRequest{}
	if err := render.Bind(r, data); err != nil {
		h.logger.WarnContext(ctx, "invalid run request",
			slog.String("error", err.Error()),
			slog.String("request_id", reqID))
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	job, err := h.service.StartRun(ctx, services.RunRequest{
		DatasetID: data.DatasetID,
		Path:      data.Path,
		Options: services.RunOptions{
			Format:         data.Options.Format,
			NoLLM:          data.Options.NoLLM,
			RemoveOutliers: data.Options.RemoveOutliers,
		},
	})
	if err != nil {
		// Queue saturation concerns every dashboard, not just the caller.
		if errors.Is(err, services.ErrServiceUnavailable) && h.hub != nil {
			h.hub.BroadcastError("QUEUE_FULL", "Analysis queue is full", "", "", true)
		}
		h.handleServiceError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "analysis run queued",
		slog.String("run_id", job.RunID),
		slog.String("input", job.Options.Input),
		slog.String("request_id", reqID))

	if h.hub != nil {
		h.hub.BroadcastUpdate(string(events.MessageTypeRunUpdate), job.RunID, "queued", map[string]interface{}{
			"run_id": job.RunID,
			"input":  job.Options.Input,
		})
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, api.RunStartResponse{
		Status:  "queued",
		RunID:   job.RunID,
		PollURL: "/api/analysis/runs/" + job.RunID,
	})
}

// ListRuns handles GET /api/analysis/runs
func (h *AnalysisHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	runs, err := h.service.ListRuns(ctx)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   runs,
		"count":  len(runs),
	})
}

// GetRun handles GET /api/analysis/runs/{id}
func (h *AnalysisHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	run, err := h.service.Run(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   run,
	})
}

// CancelRun handles POST /api/analysis/runs/{id}/cancel
func (h *AnalysisHandler) CancelRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := chi.URLParam(r, "id")

	if err := h.service.CancelRun(ctx, runID); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "analysis run cancelled",
		slog.String("run_id", runID),
		slog.String("request_id", middleware.GetReqID(ctx)))

	if h.hub != nil {
		h.hub.BroadcastUpdate(string(events.MessageTypeRunUpdate), runID, "cancelled", map[string]interface{}{
			"run_id": runID,
		})
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
	})
}

// GetKPIs handles GET /api/analysis/runs/{id}/kpis
func (h *AnalysisHandler) GetKPIs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	result, err := h.service.KPIs(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   result,
	})
}

// GetCorrelations handles GET /api/analysis/runs/{id}/correlations
func (h *AnalysisHandler) GetCorrelations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	result, err := h.service.Correlations(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   result,
	})
}

// GetInsights handles GET /api/analysis/runs/{id}/insights
func (h *AnalysisHandler) GetInsights(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	result, err := h.service.Insights(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   result,
	})
}

// GetQuality handles GET /api/analysis/runs/{id}/quality
func (h *AnalysisHandler) GetQuality(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	result, err := h.service.Quality(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   result,
	})
}

// QueueStats handles GET /api/analysis/queue
func (h *AnalysisHandler) QueueStats(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   h.service.QueueStats(),
	})
}

// handleServiceError maps service sentinel errors onto HTTP status codes
func (h *AnalysisHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		h.errorHandler.HandleError(w, r, apierrors.New(http.StatusBadRequest,
			"INVALID_INPUT", err.Error()))
	case errors.Is(err, services.ErrDatasetNotFound):
		h.errorHandler.HandleError(w, r, apierrors.New(http.StatusNotFound,
			"DATASET_NOT_FOUND", "Dataset not found"))
	case errors.Is(err, services.ErrRunNotFound):
		h.errorHandler.HandleError(w, r, apierrors.New(http.StatusNotFound,
			"RUN_NOT_FOUND", "Run not found"))
	case errors.Is(err, services.ErrArtifactNotReady):
		h.errorHandler.HandleError(w, r, apierrors.New(http.StatusConflict,
			"RESULT_NOT_READY", "Run has not produced this result yet"))
	case errors.Is(err, services.ErrServiceUnavailable):
		h.errorHandler.HandleError(w, r, apierrors.New(http.StatusServiceUnavailable,
			"QUEUE_FULL", "Analysis queue is full, retry later"))
	default:
		h.errorHandler.HandleError(w, r, err)
	}
}
