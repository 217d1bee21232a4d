package exporter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"callpulse/pkg/contracts/domain"
)

// File names of the standard export set written alongside a report.
const (
	FileKPIs        = "kpis.csv"
	FileCorrelation = "correlation_matrix.csv"
	FileAnalysis    = "analysis.json"
	FileTrends      = "kpi_trends.csv"
)

// ResultsExporter writes the machine readable exports that accompany
// a generated report.
type ResultsExporter struct {
	csvWriter *CSVWriter
	logger    *slog.Logger
}

// NewResultsExporter creates a results exporter.
func NewResultsExporter(logger *slog.Logger) *ResultsExporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultsExporter{
		csvWriter: NewCSVWriter(logger),
		logger:    logger,
	}
}

// ExportKPIs writes both KPI categories to one CSV, annotated with
// targets where configured.
func (e *ResultsExporter) ExportKPIs(kpis domain.KPISet, comparisons map[string]domain.TargetComparison, path string) error {
	var records [][]string
	appendCategory := func(category string, metrics map[string]float64) {
		for _, name := range sortedMetricNames(metrics) {
			row := []string{category, name, formatFloat(metrics[name]), "", ""}
			if cmp, ok := comparisons[name]; ok {
				row[3] = formatFloat(cmp.Target)
				row[4] = formatBool(cmp.MeetsTarget)
			}
			records = append(records, row)
		}
	}
	appendCategory("performance", kpis.Performance)
	appendCategory("quality", kpis.Quality)

	headers := []string{"category", "metric", "value", "target", "meets_target"}
	return e.csvWriter.WriteSimpleCSV(path, headers, records)
}

// ExportCorrelation writes the correlation matrix as a CSV grid. Cells
// with no coefficient are left empty.
func (e *ResultsExporter) ExportCorrelation(matrix domain.CorrelationMatrix, path string) error {
	if len(matrix.Columns) == 0 {
		return fmt.Errorf("no correlation matrix to export")
	}

	headers := append([]string{"metric"}, matrix.Columns...)
	records := make([][]string, 0, len(matrix.Columns))
	for i, name := range matrix.Columns {
		row := make([]string, 0, len(matrix.Columns)+1)
		row = append(row, name)
		for j := range matrix.Columns {
			v := matrix.Values[i][j]
			if math.IsNaN(v) {
				row = append(row, "")
				continue
			}
			row = append(row, formatCoefficient(v))
		}
		records = append(records, row)
	}

	return e.csvWriter.WriteSimpleCSV(path, headers, records)
}

// AnalysisExport is the machine readable bundle of one complete run.
type AnalysisExport struct {
	GeneratedAt time.Time                          `json:"generated_at"`
	Source      string                             `json:"source,omitempty"`
	RowCount    int                                `json:"row_count,omitempty"`
	KPIs        domain.KPISet                      `json:"kpis"`
	Comparisons map[string]domain.TargetComparison `json:"target_comparisons,omitempty"`
	Correlation domain.CorrelationAnalysis         `json:"correlation"`
	Anomalies   []domain.Anomaly                   `json:"anomalies,omitempty"`
	Quality     *domain.QualityReport              `json:"quality,omitempty"`
	Insights    domain.InsightSet                  `json:"insights"`
}

// ExportAnalysis writes the full analysis bundle as indented JSON.
func (e *ResultsExporter) ExportAnalysis(export AnalysisExport, path string) error {
	if export.GeneratedAt.IsZero() {
		export.GeneratedAt = time.Now()
	}

	raw, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal analysis export: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write analysis export: %w", err)
	}

	e.logger.Debug("analysis export written",
		slog.String("path", path),
		slog.Int("bytes", len(raw)),
	)
	return nil
}

func sortedMetricNames(metrics map[string]float64) []string {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
