package http

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "callpulse/internal/errors"
	"callpulse/internal/middleware"
	"callpulse/internal/services"
)

// ReportHandler handles generated report HTTP requests
type ReportHandler struct {
	service      ReportServiceInterface
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewReportHandler creates a new report handler
func NewReportHandler(service ReportServiceInterface, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *ReportHandler {
	if service == nil {
		panic("service cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &ReportHandler{
		service:      service,
		logger:       logger.With(slog.String("handler", "reports")),
		errorHandler: errorHandler,
	}
}

// Routes sets up the report routes
func (h *ReportHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListReports)
	r.Get("/charts", h.ListCharts)

	r.Route("/{name}", func(r chi.Router) {
		r.Use(h.NameCtx)
		r.Get("/", h.DownloadReport)
	})

	return r
}

// NameCtx middleware validates the report name parameter
func (h *ReportHandler) NameCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if name == "" {
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("name", "Report name is required"))
			return
		}
		if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("name", "Invalid report name"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ListReports handles GET /api/reports
func (h *ReportHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	reports, err := h.service.ListReports(ctx)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   reports,
		"count":  len(reports),
	})
}

// ListCharts handles GET /api/reports/charts
func (h *ReportHandler) ListCharts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	charts, err := h.service.ListCharts(ctx)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   charts,
		"count":  len(charts),
	})
}

// DownloadReport handles GET /api/reports/{name}. HTML and text reports
// render inline for the dashboard preview; binary formats download as
// attachments.
func (h *ReportHandler) DownloadReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")

	rc, info, err := h.service.OpenReport(ctx, name)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", services.ContentType(info.Name))
	w.Header().Set("Content-Length", strconv.FormatInt(info.SizeBytes, 10))
	w.Header().Set("Content-Disposition", disposition(info.Name))
	w.Header().Set("X-Content-Type-Options", "nosniff")

	if _, err := io.Copy(w, rc); err != nil {
		// Headers are already out, log instead of rewriting the response
		h.logger.ErrorContext(ctx, "report stream interrupted",
			slog.String("report", info.Name),
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.GetReqID(ctx)))
		return
	}

	h.logger.InfoContext(ctx, "report downloaded",
		slog.String("report", info.Name),
		slog.Int64("size_bytes", info.SizeBytes),
		slog.String("request_id", middleware.GetReqID(ctx)))
}

// disposition picks inline rendering for formats browsers display natively.
func disposition(name string) string {
	switch services.ContentType(name) {
	case "text/html; charset=utf-8", "text/plain; charset=utf-8", "application/json", "image/png":
		return "inline"
	default:
		return fmt.Sprintf("attachment; filename=%q", name)
	}
}

// handleServiceError maps service sentinel errors onto HTTP status codes
func (h *ReportHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrReportNotFound):
		h.errorHandler.HandleError(w, r, apierrors.New(http.StatusNotFound,
			"REPORT_NOT_FOUND", "Report not found"))
	case errors.Is(err, services.ErrNoReportsFound):
		h.errorHandler.HandleError(w, r, apierrors.New(http.StatusNotFound,
			"NO_REPORTS_FOUND", "No reports have been generated yet"))
	case errors.Is(err, services.ErrInvalidInput):
		h.errorHandler.HandleError(w, r, apierrors.New(http.StatusBadRequest,
			"INVALID_INPUT", err.Error()))
	default:
		h.errorHandler.HandleError(w, r, err)
	}
}
