package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"callpulse/internal/files"
	"callpulse/internal/infrastructure"
	"callpulse/pkg/contracts/domain"
)

// ReportService exposes generated report and chart files to the
// dashboard. Name screening happens in the file manager; this layer
// translates its errors and shapes the listing.
type ReportService struct {
	files  *files.Manager
	logger *slog.Logger
}

// NewReportService creates the report service.
func NewReportService(fm *files.Manager, logger *slog.Logger) *ReportService {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &ReportService{
		files:  fm,
		logger: logger.With(slog.String("component", "report_service")),
	}
}

// ListReports returns all generated reports, newest first.
func (s *ReportService) ListReports(ctx context.Context) ([]domain.ReportInfo, error) {
	infos, err := s.files.ListReports()
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}

	reports := make([]domain.ReportInfo, 0, len(infos))
	for _, info := range infos {
		reports = append(reports, reportInfo(info))
	}
	return reports, nil
}

// GetReport returns metadata for one report.
func (s *ReportService) GetReport(ctx context.Context, name string) (domain.ReportInfo, error) {
	info, err := s.files.ReportInfo(name)
	if err != nil {
		if errors.Is(err, files.ErrNotFound) {
			return domain.ReportInfo{}, fmt.Errorf("%w: %s", ErrReportNotFound, name)
		}
		return domain.ReportInfo{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return reportInfo(info), nil
}

// OpenReport opens a report for streaming. The caller closes the reader.
func (s *ReportService) OpenReport(ctx context.Context, name string) (io.ReadCloser, domain.ReportInfo, error) {
	f, info, err := s.files.OpenReport(name)
	if err != nil {
		if errors.Is(err, files.ErrNotFound) {
			return nil, domain.ReportInfo{}, fmt.Errorf("%w: %s", ErrReportNotFound, name)
		}
		return nil, domain.ReportInfo{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	s.logger.DebugContext(ctx, "report opened",
		slog.String("name", info.Name),
		slog.Int64("bytes", info.Size))

	return f, reportInfo(info), nil
}

// ListCharts returns rendered chart images, newest first.
func (s *ReportService) ListCharts(ctx context.Context) ([]files.FileInfo, error) {
	charts, err := s.files.ListCharts()
	if err != nil {
		return nil, fmt.Errorf("failed to list charts: %w", err)
	}
	return charts, nil
}

// ContentType returns the MIME type a report file is served with.
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html":
		return "text/html; charset=utf-8"
	case ".txt":
		return "text/plain; charset=utf-8"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".pdf":
		return "application/pdf"
	case ".csv":
		return "text/csv; charset=utf-8"
	case ".json":
		return "application/json"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}

func reportInfo(info files.FileInfo) domain.ReportInfo {
	return domain.ReportInfo{
		Name:       info.Name,
		Format:     strings.TrimPrefix(strings.ToLower(filepath.Ext(info.Name)), "."),
		SizeBytes:  info.Size,
		ModifiedAt: info.ModTime,
	}
}
