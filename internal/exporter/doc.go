// Package exporter provides CSV and JSON export functionality for analysis results.
//
// This package contains three main components:
//
// CSVWriter: Core CSV writing functionality with support for headers, streaming,
// and UTF-8 BOM for Excel compatibility.
//
// ResultsExporter: Writes KPI values, correlation matrices and the full
// analysis bundle produced by a run.
//
// TrendExporter: Writes time bucketed KPI trends, either combined in one
// file or split per metric.
//
// Example usage:
//
//	// Export KPI values next to a report
//	results := exporter.NewResultsExporter(logger)
//	err := results.ExportKPIs(kpis, comparisons, filepath.Join(dir, exporter.FileKPIs))
//
//	// Export per metric trend files
//	trendExporter := exporter.NewTrendExporter(logger)
//	n, err := trendExporter.ExportTrendFiles(trends, "outputs/trends")
package exporter
