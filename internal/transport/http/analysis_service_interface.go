package http

import (
	"context"
	"io"

	"callpulse/internal/files"
	"callpulse/internal/operations"
	"callpulse/internal/services"
	"callpulse/pkg/contracts/domain"
)

// AnalysisServiceInterface defines the interface for dataset and run operations
type AnalysisServiceInterface interface {
	UploadDataset(ctx context.Context, filename string, size int64, r io.Reader) (*services.UploadResult, error)
	ListDatasets(ctx context.Context) ([]files.FileInfo, error)
	DeleteDataset(ctx context.Context, id string) error

	StartRun(ctx context.Context, req services.RunRequest) (*operations.Job, error)
	Run(ctx context.Context, id string) (*domain.RunSummary, error)
	ListRuns(ctx context.Context) ([]domain.RunSummary, error)
	CancelRun(ctx context.Context, id string) error

	KPIs(ctx context.Context, id string) (*services.KPIResult, error)
	Correlations(ctx context.Context, id string) (*services.CorrelationResult, error)
	Insights(ctx context.Context, id string) (*services.InsightResult, error)
	Quality(ctx context.Context, id string) (*services.QualityResult, error)

	QueueStats() map[string]interface{}
}
