package operations

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"callpulse/internal/analysis"
	"callpulse/internal/chart"
	"callpulse/internal/config"
	"callpulse/internal/dataset"
	"callpulse/internal/exporter"
	"callpulse/internal/llm"
	"callpulse/internal/report"
	"callpulse/pkg/contracts/domain"
)

// PipelineDeps carries the services the standard analysis pipeline is
// built from. Logger is the only field with a default; everything else
// must be provided by the caller.
type PipelineDeps struct {
	Logger     *slog.Logger
	Loader     *dataset.Loader
	Validator  *dataset.Validator
	KPIs       *analysis.KPIAnalyzer
	Correlator *analysis.CorrelationAnalyzer
	Stats      *analysis.StatsAnalyzer
	Insights   *llm.InsightGenerator
	Charts     *chart.Renderer
	Reports    *report.Generator
	Results    *exporter.ResultsExporter
	Trends     *exporter.TrendExporter
	Data       config.DataConfig
	Analysis   config.AnalysisConfig
	Report     config.ReportConfig
}

// RegisterPipeline registers the seven standard steps in execution
// order: load, validate, clean, kpis, correlate, insights, report.
func RegisterPipeline(registry *Registry, deps PipelineDeps) error {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	steps := []Step{
		NewLoadStep(deps.Loader, deps.Data),
		NewValidateStep(deps.Logger, deps.Validator),
		NewCleanStep(deps.Logger, deps.Analysis),
		NewKPIStep(deps.Logger, deps.KPIs),
		NewCorrelateStep(deps.Logger, deps.Correlator, deps.Stats, deps.Analysis),
		NewInsightsStep(deps.Insights),
		NewReportStep(deps.Logger, deps.Charts, deps.Reports, deps.Results, deps.Trends, deps.Report),
	}
	for _, step := range steps {
		if err := registry.Register(step); err != nil {
			return err
		}
	}
	return nil
}

// LoadStep reads the run's input into a Frame. The input may be a
// single CSV file or a directory, in which case every file matching
// the configured pattern is loaded and concatenated.
type LoadStep struct {
	BaseStep
	loader  *dataset.Loader
	pattern string
}

// NewLoadStep creates the load step.
func NewLoadStep(loader *dataset.Loader, cfg config.DataConfig) *LoadStep {
	return &LoadStep{
		BaseStep: NewBaseStep(StepIDLoad, StepNameLoad),
		loader:   loader,
		pattern:  cfg.FilePattern,
	}
}

// Execute loads the input path into the run's artifact store.
func (s *LoadStep) Execute(ctx context.Context, state *State) (Result, error) {
	input := state.Options().Input
	if input == "" {
		return Result{}, fmt.Errorf("no input path configured")
	}

	var (
		frame *dataset.Frame
		err   error
	)
	if info, statErr := os.Stat(input); statErr == nil && info.IsDir() {
		frame, err = s.loader.LoadDir(ctx, input, s.pattern)
	} else {
		frame, err = s.loader.Load(ctx, input)
	}
	if err != nil {
		return Result{}, err
	}

	state.Artifacts().SetFrame(frame)
	return Result{
		Message: fmt.Sprintf("loaded %d rows, %d columns", frame.NumRows(), frame.NumColumns()),
		Metadata: map[string]interface{}{
			"input":   input,
			"rows":    frame.NumRows(),
			"columns": frame.NumColumns(),
		},
	}, nil
}

// ValidateStep checks the loaded frame against the schema, type, range
// and minimum-size rules. Missing required columns or too few rows fail
// the run; type and range violations only warn.
type ValidateStep struct {
	BaseStep
	logger    *slog.Logger
	validator *dataset.Validator
}

// NewValidateStep creates the validation step.
func NewValidateStep(logger *slog.Logger, validator *dataset.Validator) *ValidateStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &ValidateStep{
		BaseStep:  NewBaseStep(StepIDValidate, StepNameValidate, StepIDLoad),
		logger:    logger,
		validator: validator,
	}
}

// Execute runs all validations and stores the result.
func (s *ValidateStep) Execute(ctx context.Context, state *State) (Result, error) {
	frame := state.Artifacts().Frame()
	if frame == nil {
		return Result{}, fmt.Errorf("no dataset loaded")
	}

	// The result is populated even when validation fails, so the run
	// keeps the quality report either way.
	result, err := s.validator.Validate(ctx, frame)
	if result != nil {
		state.Artifacts().SetValidation(result)
	}
	if err != nil {
		return Result{}, err
	}

	for column, mismatch := range result.TypeMismatches {
		s.logger.WarnContext(ctx, "type_mismatch",
			slog.String("run_id", state.ID()),
			slog.String("column", column),
			slog.String("detail", mismatch))
	}
	for column, count := range result.RangeViolations {
		s.logger.WarnContext(ctx, "range_violations",
			slog.String("run_id", state.ID()),
			slog.String("column", column),
			slog.Int("count", count))
	}

	return Result{
		Message: fmt.Sprintf("validation passed: %d rows", result.RowCount),
		Metadata: map[string]interface{}{
			"rows":             result.RowCount,
			"type_mismatches":  len(result.TypeMismatches),
			"range_violations": len(result.RangeViolations),
		},
	}, nil
}

// CleanStep prepares the validated frame for analysis. The cleaner is
// built per run because outlier removal is a run option.
type CleanStep struct {
	BaseStep
	logger *slog.Logger
	cfg    config.AnalysisConfig
}

// NewCleanStep creates the cleaning step.
func NewCleanStep(logger *slog.Logger, cfg config.AnalysisConfig) *CleanStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanStep{
		BaseStep: NewBaseStep(StepIDClean, StepNameClean, StepIDValidate),
		logger:   logger,
		cfg:      cfg,
	}
}

// Execute cleans the frame and replaces the stored copy.
func (s *CleanStep) Execute(ctx context.Context, state *State) (Result, error) {
	frame := state.Artifacts().Frame()
	if frame == nil {
		return Result{}, fmt.Errorf("no dataset loaded")
	}

	cleaner := dataset.NewCleaner(s.logger, dataset.CleanerConfig{
		Strategy:       dataset.StrategyAuto,
		OutlierStd:     s.cfg.OutlierStd,
		RemoveOutliers: state.Options().RemoveOutliers,
	})
	cleaned, summary, err := cleaner.Clean(ctx, frame)
	if err != nil {
		return Result{}, err
	}

	state.Artifacts().SetFrame(cleaned)
	state.Artifacts().SetCleaning(summary)

	filled := 0
	for _, n := range summary.FilledValues {
		filled += n
	}
	return Result{
		Message: fmt.Sprintf("cleaned: %d rows in, %d rows out", summary.InitialRows, summary.FinalRows),
		Metadata: map[string]interface{}{
			"duplicates_dropped": summary.DuplicatesDropped,
			"outliers_dropped":   summary.OutliersDropped,
			"values_filled":      filled,
		},
	}, nil
}

// trendMetrics are the columns trended over time when present.
var trendMetrics = []string{config.ColHandleTime, config.ColCSATScore, config.ColQAScore}

// KPIStep computes the performance and quality KPI sets, compares them
// to configured targets, and derives daily trends for the core metrics.
type KPIStep struct {
	BaseStep
	logger   *slog.Logger
	analyzer *analysis.KPIAnalyzer
}

// NewKPIStep creates the KPI step.
func NewKPIStep(logger *slog.Logger, analyzer *analysis.KPIAnalyzer) *KPIStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &KPIStep{
		BaseStep: NewBaseStep(StepIDKPIs, StepNameKPIs, StepIDClean),
		logger:   logger,
		analyzer: analyzer,
	}
}

// Execute computes KPIs, target comparisons and trends.
func (s *KPIStep) Execute(ctx context.Context, state *State) (Result, error) {
	frame := state.Artifacts().Frame()
	if frame == nil {
		return Result{}, fmt.Errorf("no dataset loaded")
	}

	kpis, err := s.analyzer.CalculateAll(ctx, frame)
	if err != nil {
		return Result{}, err
	}

	comparisons := s.analyzer.CompareToTargets(kpis.Performance, "performance")
	for name, cmp := range s.analyzer.CompareToTargets(kpis.Quality, "quality") {
		comparisons[name] = cmp
	}
	state.Artifacts().SetKPIs(kpis, comparisons)

	var trends []domain.Trend
	if dates, ok := frame.TimeColumn(); ok {
		for _, metric := range trendMetrics {
			if !frame.HasColumn(metric) {
				continue
			}
			trend, err := s.analyzer.Trends(ctx, frame, dates.Name, metric, "daily")
			if err != nil {
				s.logger.WarnContext(ctx, "trend_skipped",
					slog.String("run_id", state.ID()),
					slog.String("metric", metric),
					slog.String("error", err.Error()))
				continue
			}
			trends = append(trends, *trend)
		}
	}
	state.Artifacts().SetTrends(trends)

	return Result{
		Message: fmt.Sprintf("computed %d KPIs", kpis.Count()),
		Metadata: map[string]interface{}{
			"performance": len(kpis.Performance),
			"quality":     len(kpis.Quality),
			"trends":      len(trends),
		},
	}, nil
}

// CorrelateStep runs the correlation analysis plus descriptive
// statistics and an anomaly scan over the cleaned frame.
type CorrelateStep struct {
	BaseStep
	logger     *slog.Logger
	correlator *analysis.CorrelationAnalyzer
	stats      *analysis.StatsAnalyzer
	outlierStd float64
}

// NewCorrelateStep creates the correlation step.
func NewCorrelateStep(logger *slog.Logger, correlator *analysis.CorrelationAnalyzer, stats *analysis.StatsAnalyzer, cfg config.AnalysisConfig) *CorrelateStep {
	if logger == nil {
		logger = slog.Default()
	}
	std := cfg.OutlierStd
	if std <= 0 {
		std = 3
	}
	return &CorrelateStep{
		BaseStep:   NewBaseStep(StepIDCorrelate, StepNameCorrelate, StepIDClean),
		logger:     logger,
		correlator: correlator,
		stats:      stats,
		outlierStd: std,
	}
}

// Execute analyzes relationships between numeric columns. The anomaly
// scan is best effort; its failure does not fail the step.
func (s *CorrelateStep) Execute(ctx context.Context, state *State) (Result, error) {
	frame := state.Artifacts().Frame()
	if frame == nil {
		return Result{}, fmt.Errorf("no dataset loaded")
	}

	correlation, err := s.correlator.AnalyzeRelationships(ctx, frame)
	if err != nil {
		return Result{}, err
	}
	state.Artifacts().SetCorrelation(correlation)

	desc := s.stats.Describe(ctx, frame)
	state.Artifacts().SetStats(&desc)

	anomalies, err := s.stats.AnomalyScan(ctx, frame, s.outlierStd)
	if err != nil {
		s.logger.WarnContext(ctx, "anomaly_scan_failed",
			slog.String("run_id", state.ID()),
			slog.String("error", err.Error()))
	} else {
		state.Artifacts().SetAnomalies(anomalies)
	}

	return Result{
		Message: fmt.Sprintf("found %d strong correlations", len(correlation.StrongPairs)),
		Metadata: map[string]interface{}{
			"columns":      len(correlation.Matrix.Columns),
			"strong_pairs": len(correlation.StrongPairs),
			"anomalies":    len(anomalies),
		},
	}, nil
}

// InsightsStep generates the narrative analysis from the computed
// results. When no provider is reachable the generator falls back to
// heuristic text, so this step only fails on missing prerequisites.
type InsightsStep struct {
	BaseStep
	generator *llm.InsightGenerator
}

// NewInsightsStep creates the insights step.
func NewInsightsStep(generator *llm.InsightGenerator) *InsightsStep {
	return &InsightsStep{
		BaseStep:  NewBaseStep(StepIDInsights, StepNameInsights, StepIDKPIs, StepIDCorrelate),
		generator: generator,
	}
}

// Validate skips the step when the run opted out of LLM generation.
func (s *InsightsStep) Validate(state *State) error {
	if state.Options().SkipLLM {
		return fmt.Errorf("llm disabled for this run")
	}
	return nil
}

// Execute generates the insight sections.
func (s *InsightsStep) Execute(ctx context.Context, state *State) (Result, error) {
	artifacts := state.Artifacts()
	kpis := artifacts.KPIs()

	var pairs []domain.CorrelationPair
	if correlation := artifacts.Correlation(); correlation != nil {
		pairs = correlation.StrongPairs
	}

	set := s.generator.Comprehensive(ctx, kpis, pairs, artifacts.Anomalies())
	state.Artifacts().SetInsights(&set)

	message := fmt.Sprintf("generated %d insight sections via %s", len(set.Sections), set.Provider)
	if set.Fallback {
		message = fmt.Sprintf("generated %d insight sections from heuristics", len(set.Sections))
	}
	return Result{
		Message: message,
		Metadata: map[string]interface{}{
			"provider": set.Provider,
			"model":    set.Model,
			"sections": len(set.Sections),
			"fallback": set.Fallback,
		},
	}, nil
}

// ReportStep renders charts and writes the final report plus the CSV
// and JSON exports. It depends on the analysis steps but not on
// insights, so a run with insights skipped still produces a report.
type ReportStep struct {
	BaseStep
	logger    *slog.Logger
	renderer  *chart.Renderer
	generator *report.Generator
	results   *exporter.ResultsExporter
	trends    *exporter.TrendExporter
	cfg       config.ReportConfig
}

// NewReportStep creates the report step.
func NewReportStep(logger *slog.Logger, renderer *chart.Renderer, generator *report.Generator, results *exporter.ResultsExporter, trends *exporter.TrendExporter, cfg config.ReportConfig) *ReportStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportStep{
		BaseStep:  NewBaseStep(StepIDReport, StepNameReport, StepIDKPIs, StepIDCorrelate),
		logger:    logger,
		renderer:  renderer,
		generator: generator,
		results:   results,
		trends:    trends,
		cfg:       cfg,
	}
}

// Execute assembles everything produced so far into the report bundle.
// Chart and export failures degrade to warnings; only a failure to
// write the report itself fails the step.
func (s *ReportStep) Execute(ctx context.Context, state *State) (Result, error) {
	artifacts := state.Artifacts()
	options := state.Options()

	outDir := options.OutputDir
	if outDir == "" {
		outDir = "outputs"
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create output directory: %w", err)
	}

	format := options.Format
	if format == "" {
		format = s.cfg.Format
	}

	kpis := artifacts.KPIs()
	comparisons := artifacts.Comparisons()
	trendData := artifacts.Trends()
	anomalies := artifacts.Anomalies()

	var correlation domain.CorrelationAnalysis
	if c := artifacts.Correlation(); c != nil {
		correlation = *c
	}
	var insights domain.InsightSet
	if i := artifacts.Insights(); i != nil {
		insights = *i
	}

	charts := map[string]string{}
	if s.cfg.IncludeCharts && s.renderer != nil {
		chartDir := filepath.Join(outDir, "charts")
		rendered, err := s.renderer.GenerateAll(ctx, kpis, correlation.Matrix, trendData, chartDir)
		if err != nil {
			s.logger.WarnContext(ctx, "chart_generation_failed",
				slog.String("run_id", state.ID()),
				slog.String("error", err.Error()))
		}
		if len(rendered) > 0 {
			charts = rendered
			state.Artifacts().SetChartPaths(rendered)
		}
	}

	rows := 0
	if frame := artifacts.Frame(); frame != nil {
		rows = frame.NumRows()
	}
	data := report.Data{
		SourceFile:  options.Input,
		RowCount:    rows,
		KPIs:        kpis,
		Comparisons: comparisons,
		Correlation: correlation,
		Anomalies:   anomalies,
		Quality:     artifacts.Quality(),
		Stats:       artifacts.Stats(),
		Insights:    insights,
		Charts:      charts,
	}

	path, err := s.generator.Generate(ctx, data, outDir, format)
	if err != nil {
		return Result{}, err
	}
	state.Artifacts().SetReportPath(path)

	exports := 0
	if s.cfg.ExportKPIsCSV && s.results != nil {
		exports += s.export(ctx, state, outDir, data)
	}
	if len(trendData) > 0 && s.trends != nil {
		trendPath := filepath.Join(outDir, exporter.FileTrends)
		if err := s.trends.ExportTrends(trendData, trendPath); err != nil {
			s.logger.WarnContext(ctx, "trend_export_failed",
				slog.String("run_id", state.ID()),
				slog.String("error", err.Error()))
		} else {
			state.Artifacts().AddExportPaths(trendPath)
			exports++
		}
	}

	return Result{
		Message: fmt.Sprintf("report written to %s", path),
		Metadata: map[string]interface{}{
			"format":  format,
			"charts":  len(charts),
			"exports": exports,
		},
	}, nil
}

// export writes the KPI, correlation and analysis files, returning how
// many succeeded.
func (s *ReportStep) export(ctx context.Context, state *State, outDir string, data report.Data) int {
	written := 0
	record := func(name, path string, err error) {
		if err != nil {
			s.logger.WarnContext(ctx, "export_failed",
				slog.String("run_id", state.ID()),
				slog.String("export", name),
				slog.String("error", err.Error()))
			return
		}
		state.Artifacts().AddExportPaths(path)
		written++
	}

	kpiPath := filepath.Join(outDir, exporter.FileKPIs)
	record("kpis", kpiPath, s.results.ExportKPIs(data.KPIs, data.Comparisons, kpiPath))

	if len(data.Correlation.Matrix.Columns) > 0 {
		corrPath := filepath.Join(outDir, exporter.FileCorrelation)
		record("correlation", corrPath, s.results.ExportCorrelation(data.Correlation.Matrix, corrPath))
	}

	analysisPath := filepath.Join(outDir, exporter.FileAnalysis)
	record("analysis", analysisPath, s.results.ExportAnalysis(exporter.AnalysisExport{
		GeneratedAt: time.Now(),
		Source:      data.SourceFile,
		RowCount:    data.RowCount,
		KPIs:        data.KPIs,
		Comparisons: data.Comparisons,
		Correlation: data.Correlation,
		Anomalies:   data.Anomalies,
		Quality:     data.Quality,
		Insights:    data.Insights,
	}, analysisPath))

	return written
}
