// Package report assembles analysis artifacts into an ordered document
// and writes it as HTML, plain text, XLSX or PDF.
package report

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"callpulse/internal/analysis"
	"callpulse/internal/config"
	"callpulse/pkg/contracts/domain"
)

// Data bundles everything a report can draw on. Empty fields are
// omitted from the assembled document.
type Data struct {
	SourceFile  string
	RowCount    int
	KPIs        domain.KPISet
	Comparisons map[string]domain.TargetComparison
	Correlation domain.CorrelationAnalysis
	Anomalies   []domain.Anomaly
	Quality     *domain.QualityReport
	Stats       *analysis.DescriptiveSummary
	Insights    domain.InsightSet
	Charts      map[string]string
}

// Section is one titled narrative block.
type Section struct {
	Title string
	Body  string
}

// Document is an assembled report ready for a writer.
type Document struct {
	Title       string
	GeneratedAt time.Time
	Sections    []Section
	Data        Data
}

// Builder assembles report documents.
type Builder struct {
	logger *slog.Logger
	title  string
}

// NewBuilder creates a report builder. The document title comes from
// the report config.
func NewBuilder(logger *slog.Logger, cfg config.ReportConfig) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	title := strings.TrimSpace(cfg.Title)
	if title == "" {
		title = "Call Center Analytics Report"
	}
	return &Builder{logger: logger, title: title}
}

// Comprehensive assembles the full document in its fixed section
// order. Sections with no source material are left out.
func (b *Builder) Comprehensive(data Data) Document {
	doc := Document{
		Title:       b.title,
		GeneratedAt: time.Now(),
		Data:        data,
	}

	add := func(title, body string) {
		if strings.TrimSpace(body) == "" {
			return
		}
		doc.Sections = append(doc.Sections, Section{Title: title, Body: strings.TrimRight(body, "\n")})
	}

	add("Executive Summary", data.Insights.Section(domain.InsightExecutiveSummary))
	add("KPI Overview", formatKPIBlock(data.KPIs, data.Comparisons))
	add("Analysis Summary", data.Insights.Section(domain.InsightSummary))
	add("Identified Patterns", data.Insights.Section(domain.InsightPatterns))
	add("Recommendations", data.Insights.Section(domain.InsightRecommendations))
	add("Anomaly Analysis", data.Insights.Section(domain.InsightAnomalies))
	add("Statistical Summary", formatStatistics(data.Quality, data.Stats))

	b.logger.Debug("report document assembled",
		slog.Int("sections", len(doc.Sections)),
		slog.Int("charts", len(data.Charts)),
	)

	return doc
}

// formatKPIBlock renders both KPI categories as an indented text
// block, annotating metrics that have a configured target.
func formatKPIBlock(kpis domain.KPISet, comparisons map[string]domain.TargetComparison) string {
	if kpis.Count() == 0 {
		return ""
	}

	var b strings.Builder
	writeCategory := func(name string, metrics map[string]float64) {
		if len(metrics) == 0 {
			return
		}
		fmt.Fprintf(&b, "%s:\n", strings.ToUpper(name))
		for _, metric := range sortedKeys(metrics) {
			fmt.Fprintf(&b, "  %s: %.2f", metric, metrics[metric])
			if cmp, ok := comparisons[metric]; ok {
				state := "on target"
				if !cmp.MeetsTarget {
					state = "off target"
				}
				fmt.Fprintf(&b, " (target %.2f, %s)", cmp.Target, state)
			}
			b.WriteString("\n")
		}
	}

	writeCategory("performance", kpis.Performance)
	writeCategory("quality", kpis.Quality)
	return b.String()
}

// formatStatistics digests the quality report and the describe-style
// numeric summary into one text block.
func formatStatistics(quality *domain.QualityReport, stats *analysis.DescriptiveSummary) string {
	if quality == nil && (stats == nil || len(stats.Numeric) == 0) {
		return ""
	}

	var b strings.Builder

	if quality != nil {
		fmt.Fprintf(&b, "Dataset: %d rows, %d columns\n", quality.TotalRows, quality.TotalColumns)
		fmt.Fprintf(&b, "Duplicate rows: %d\n", quality.DuplicateRows)
		missing := sortedKeysInt(quality.MissingValues)
		withMissing := 0
		for _, col := range missing {
			if quality.MissingValues[col] > 0 {
				withMissing++
			}
		}
		fmt.Fprintf(&b, "Columns with missing values: %d\n", withMissing)
		for _, col := range missing {
			if n := quality.MissingValues[col]; n > 0 {
				fmt.Fprintf(&b, "  %s: %d (%.1f%%)\n", col, n, quality.MissingPercentage[col])
			}
		}
	}

	if stats != nil && len(stats.Numeric) > 0 {
		if quality != nil {
			b.WriteString("\n")
		}
		b.WriteString("Numeric Statistics:\n")
		fmt.Fprintf(&b, "  %-24s %8s %10s %10s %10s %10s %10s\n",
			"column", "count", "mean", "std", "min", "median", "max")
		for _, col := range sortedStatKeys(stats.Numeric) {
			s := stats.Numeric[col]
			fmt.Fprintf(&b, "  %-24s %8d %10.2f %10.2f %10.2f %10.2f %10.2f\n",
				col, s.Count, s.Mean, s.Std, s.Min, s.Median, s.Max)
		}
	}

	return b.String()
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeysInt(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedStatKeys(m map[string]analysis.NumericSummary) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
