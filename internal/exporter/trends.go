package exporter

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"

	"callpulse/pkg/contracts/domain"
)

// trendDateText formats bucket timestamps in trend CSVs.
const trendDateText = "2006-01-02"

// TrendExporter writes time bucketed KPI trends to CSV.
type TrendExporter struct {
	csvWriter *CSVWriter
	logger    *slog.Logger
}

// NewTrendExporter creates a trend exporter.
func NewTrendExporter(logger *slog.Logger) *TrendExporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrendExporter{
		csvWriter: NewCSVWriter(logger),
		logger:    logger,
	}
}

// ExportTrends writes every trend to a single CSV, one row per bucket.
func (e *TrendExporter) ExportTrends(trends []domain.Trend, path string) error {
	if len(trends) == 0 {
		return fmt.Errorf("no trends to export")
	}

	headers := []string{"metric", "period", "bucket", "mean", "median", "std", "count", "rolling_avg"}
	var records [][]string
	for _, trend := range trends {
		for _, bucket := range trend.Buckets {
			records = append(records, trendRecord(trend, bucket))
		}
	}

	return e.csvWriter.WriteSimpleCSV(path, headers, records)
}

// ExportTrendFiles writes one CSV per metric into dir, named
// <metric>_trend.csv. Metrics that fail to write are skipped with a
// warning. Returns the number of files written.
func (e *TrendExporter) ExportTrendFiles(trends []domain.Trend, dir string) (int, error) {
	if len(trends) == 0 {
		return 0, fmt.Errorf("no trends to export")
	}

	headers := []string{"period", "bucket", "mean", "median", "std", "count", "rolling_avg"}
	written := 0
	for _, trend := range trends {
		if trend.Metric == "" || len(trend.Buckets) == 0 {
			continue
		}

		records := make([][]string, 0, len(trend.Buckets))
		for _, bucket := range trend.Buckets {
			records = append(records, trendRecord(trend, bucket)[1:])
		}

		path := filepath.Join(dir, fmt.Sprintf("%s_trend.csv", trend.Metric))
		if err := e.csvWriter.WriteSimpleCSV(path, headers, records); err != nil {
			e.logger.Warn("trend file skipped",
				slog.String("metric", trend.Metric),
				slog.String("error", err.Error()),
			)
			continue
		}
		written++
	}

	e.logger.Debug("trend files written",
		slog.Int("count", written),
		slog.String("dir", dir),
	)
	return written, nil
}

func trendRecord(trend domain.Trend, bucket domain.TrendBucket) []string {
	return []string{
		trend.Metric,
		trend.Period,
		bucket.Period.Format(trendDateText),
		formatFloat(bucket.Mean),
		formatFloat(bucket.Median),
		formatFloat(bucket.Std),
		strconv.Itoa(bucket.Count),
		formatFloat(bucket.Rolling),
	}
}
