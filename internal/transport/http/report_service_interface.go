package http

import (
	"context"
	"io"

	"callpulse/internal/files"
	"callpulse/pkg/contracts/domain"
)

// ReportServiceInterface defines the interface for report access
type ReportServiceInterface interface {
	ListReports(ctx context.Context) ([]domain.ReportInfo, error)
	GetReport(ctx context.Context, name string) (domain.ReportInfo, error)
	OpenReport(ctx context.Context, name string) (io.ReadCloser, domain.ReportInfo, error)
	ListCharts(ctx context.Context) ([]files.FileInfo, error)
}
