package operations

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callpulse/internal/analysis"
	"callpulse/internal/chart"
	"callpulse/internal/config"
	"callpulse/internal/dataset"
	apperrors "callpulse/internal/errors"
	"callpulse/internal/exporter"
	"callpulse/internal/llm"
	"callpulse/internal/report"
	"callpulse/pkg/contracts/domain"
)

// writeCallsCSV writes a deterministic call-center export: four rows per
// day across three agents, with every core metric column present.
func writeCallsCSV(t *testing.T, path string, rows int) string {
	t.Helper()

	var b strings.Builder
	b.WriteString("date,agent_id,handle_time,csat_score,qa_score\n")
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&b, "2025-03-%02d,agent_%d,%d,%.1f,%d\n",
			1+i/4,
			1+i%3,
			240+(i%7)*15,
			3.2+float64(i%5)*0.4,
			78+(i%10)*2,
		)
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func testThresholds() config.ThresholdsConfig {
	return config.ThresholdsConfig{
		Performance: config.PerformanceTargets{AHTTarget: 300, FCRTarget: 0.85, ServiceLevelTarget: 0.80},
		Quality:     config.QualityTargets{QAScoreTarget: 90, CSATTarget: 4.0, NPSTarget: 50},
	}
}

// pipelineDeps wires real services against small test fixtures. The
// insight generator has no provider, so it runs offline; the report
// format is txt so no browser is involved.
func pipelineDeps(t *testing.T) PipelineDeps {
	t.Helper()

	logger := testLogger()
	thresholds := testThresholds()
	reportCfg := config.ReportConfig{
		Format:        "txt",
		Title:         "Call Center Analysis",
		ExportKPIsCSV: true,
	}

	return PipelineDeps{
		Logger: logger,
		Loader: dataset.NewLoader(logger, dataset.LoaderConfig{}),
		Validator: dataset.NewValidator(logger, dataset.ValidatorConfig{
			RequiredColumns: []string{config.ColDate, config.ColHandleTime},
			MinDataPoints:   5,
		}),
		KPIs:       analysis.NewKPIAnalyzer(logger, thresholds),
		Correlator: analysis.NewCorrelationAnalyzer(logger, config.AnalysisConfig{CorrelationThreshold: 0.3}),
		Stats:      analysis.NewStatsAnalyzer(logger),
		Insights:   llm.NewInsightGenerator(logger, llm.InsightConfig{Thresholds: thresholds}),
		Charts:     chart.NewRenderer(logger),
		Reports:    report.NewGenerator(logger, reportCfg),
		Results:    exporter.NewResultsExporter(logger),
		Trends:     exporter.NewTrendExporter(logger),
		Data:       config.DataConfig{FilePattern: "*.csv", DateLayout: "2006-01-02"},
		Analysis:   config.AnalysisConfig{OutlierStd: 3},
		Report:     reportCfg,
	}
}

// runThrough executes the pipeline prefix ending at the given step so a
// single step can be tested with realistic upstream artifacts.
func runThrough(t *testing.T, deps PipelineDeps, state *State, lastID string) {
	t.Helper()

	steps := []Step{
		NewLoadStep(deps.Loader, deps.Data),
		NewValidateStep(deps.Logger, deps.Validator),
		NewCleanStep(deps.Logger, deps.Analysis),
		NewKPIStep(deps.Logger, deps.KPIs),
		NewCorrelateStep(deps.Logger, deps.Correlator, deps.Stats, deps.Analysis),
	}
	for _, step := range steps {
		_, err := step.Execute(context.Background(), state)
		require.NoError(t, err, "step %s", step.ID())
		if step.ID() == lastID {
			return
		}
	}
	t.Fatalf("step %s is not part of the prefix", lastID)
}

func TestLoadStep_File(t *testing.T) {
	deps := pipelineDeps(t)
	path := writeCallsCSV(t, filepath.Join(t.TempDir(), "march.csv"), 12)

	state := NewState("run-load", domain.RunOptions{Input: path})
	result, err := NewLoadStep(deps.Loader, deps.Data).Execute(context.Background(), state)
	require.NoError(t, err)

	frame := state.Artifacts().Frame()
	require.NotNil(t, frame)
	assert.Equal(t, 12, frame.NumRows())
	assert.Equal(t, 5, frame.NumColumns())
	assert.Equal(t, "loaded 12 rows, 5 columns", result.Message)
	assert.Equal(t, 12, result.Metadata["rows"])
}

func TestLoadStep_Directory(t *testing.T) {
	deps := pipelineDeps(t)
	dir := t.TempDir()
	writeCallsCSV(t, filepath.Join(dir, "week1.csv"), 8)
	writeCallsCSV(t, filepath.Join(dir, "week2.csv"), 6)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore"), 0o644))

	state := NewState("run-dir", domain.RunOptions{Input: dir})
	_, err := NewLoadStep(deps.Loader, deps.Data).Execute(context.Background(), state)
	require.NoError(t, err)

	frame := state.Artifacts().Frame()
	require.NotNil(t, frame)
	assert.Equal(t, 14, frame.NumRows())
}

func TestLoadStep_NoInput(t *testing.T) {
	deps := pipelineDeps(t)

	state := NewState("run-empty", domain.RunOptions{})
	_, err := NewLoadStep(deps.Loader, deps.Data).Execute(context.Background(), state)
	require.ErrorContains(t, err, "no input path configured")
}

func TestValidateStep_Pass(t *testing.T) {
	deps := pipelineDeps(t)
	path := writeCallsCSV(t, filepath.Join(t.TempDir(), "march.csv"), 12)

	state := NewState("run-validate", domain.RunOptions{Input: path})
	runThrough(t, deps, state, StepIDLoad)

	result, err := NewValidateStep(deps.Logger, deps.Validator).Execute(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, "validation passed: 12 rows", result.Message)

	validation := state.Artifacts().Validation()
	require.NotNil(t, validation)
	assert.True(t, validation.SufficientData)
	require.NotNil(t, validation.Schema)
	assert.True(t, validation.Schema.Valid)

	quality := state.Artifacts().Quality()
	require.NotNil(t, quality)
	assert.Equal(t, 12, quality.TotalRows)
}

func TestValidateStep_TooFewRows(t *testing.T) {
	deps := pipelineDeps(t)
	path := writeCallsCSV(t, filepath.Join(t.TempDir(), "tiny.csv"), 3)

	state := NewState("run-tiny", domain.RunOptions{Input: path})
	runThrough(t, deps, state, StepIDLoad)

	_, err := NewValidateStep(deps.Logger, deps.Validator).Execute(context.Background(), state)
	require.ErrorIs(t, err, apperrors.ErrTooFewRows)

	// The result must be kept so the failure can still be reported
	validation := state.Artifacts().Validation()
	require.NotNil(t, validation)
	assert.False(t, validation.SufficientData)
	assert.Equal(t, 3, validation.RowCount)
}

func TestValidateStep_MissingColumns(t *testing.T) {
	deps := pipelineDeps(t)
	path := filepath.Join(t.TempDir(), "wrong.csv")
	require.NoError(t, os.WriteFile(path, []byte("agent_id,team\nagent_1,alpha\nagent_2,beta\nagent_3,alpha\nagent_4,beta\nagent_5,alpha\n"), 0o644))

	state := NewState("run-schema", domain.RunOptions{Input: path})
	runThrough(t, deps, state, StepIDLoad)

	_, err := NewValidateStep(deps.Logger, deps.Validator).Execute(context.Background(), state)
	require.ErrorIs(t, err, apperrors.ErrSchemaMismatch)
	assert.Contains(t, err.Error(), config.ColHandleTime)

	validation := state.Artifacts().Validation()
	require.NotNil(t, validation)
	require.NotNil(t, validation.Schema)
	assert.False(t, validation.Schema.Valid)
}

func TestCleanStep(t *testing.T) {
	deps := pipelineDeps(t)

	// Hand-built file: one exact duplicate row and one missing CSAT
	var b strings.Builder
	b.WriteString("date,agent_id,handle_time,csat_score,qa_score\n")
	b.WriteString("2025-03-01,agent_1,250,4.0,85\n")
	b.WriteString("2025-03-01,agent_1,250,4.0,85\n")
	b.WriteString("2025-03-01,agent_2,310,,90\n")
	b.WriteString("2025-03-02,agent_1,270,3.5,88\n")
	b.WriteString("2025-03-02,agent_2,290,4.5,92\n")
	b.WriteString("2025-03-03,agent_3,305,3.8,81\n")
	path := filepath.Join(t.TempDir(), "dirty.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))

	state := NewState("run-clean", domain.RunOptions{Input: path})
	runThrough(t, deps, state, StepIDValidate)

	result, err := NewCleanStep(deps.Logger, deps.Analysis).Execute(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, "cleaned: 6 rows in, 5 rows out", result.Message)

	summary := state.Artifacts().Cleaning()
	require.NotNil(t, summary)
	assert.Equal(t, 1, summary.DuplicatesDropped)

	filled := 0
	for _, n := range summary.FilledValues {
		filled += n
	}
	assert.GreaterOrEqual(t, filled, 1, "missing csat value should be imputed")
	assert.Equal(t, 5, state.Artifacts().Frame().NumRows())
}

func TestKPIStep(t *testing.T) {
	deps := pipelineDeps(t)
	path := writeCallsCSV(t, filepath.Join(t.TempDir(), "march.csv"), 24)

	state := NewState("run-kpis", domain.RunOptions{Input: path})
	runThrough(t, deps, state, StepIDClean)

	result, err := NewKPIStep(deps.Logger, deps.KPIs).Execute(context.Background(), state)
	require.NoError(t, err)

	kpis := state.Artifacts().KPIs()
	assert.Contains(t, kpis.Performance, domain.KPIAverageHandleTime)
	assert.Contains(t, kpis.Quality, domain.KPICSATAvg)
	assert.Contains(t, kpis.Quality, domain.KPIQAScoreAvg)

	comparisons := state.Artifacts().Comparisons()
	assert.Contains(t, comparisons, domain.KPIAverageHandleTime)
	assert.Contains(t, comparisons, domain.KPICSATAvg)

	trends := state.Artifacts().Trends()
	require.NotEmpty(t, trends, "date column present, trends expected")
	for _, trend := range trends {
		assert.Equal(t, "daily", trend.Period)
		assert.NotEmpty(t, trend.Buckets)
	}
	assert.Contains(t, result.Message, "computed")
}

func TestCorrelateStep(t *testing.T) {
	deps := pipelineDeps(t)
	path := writeCallsCSV(t, filepath.Join(t.TempDir(), "march.csv"), 24)

	state := NewState("run-corr", domain.RunOptions{Input: path})
	runThrough(t, deps, state, StepIDClean)

	result, err := NewCorrelateStep(deps.Logger, deps.Correlator, deps.Stats, deps.Analysis).Execute(context.Background(), state)
	require.NoError(t, err)

	correlation := state.Artifacts().Correlation()
	require.NotNil(t, correlation)
	assert.GreaterOrEqual(t, len(correlation.Matrix.Columns), 3,
		"handle_time, csat_score and qa_score are all numeric")

	require.NotNil(t, state.Artifacts().Stats())
	assert.Contains(t, result.Message, "correlations")
}

func TestInsightsStep_SkipLLM(t *testing.T) {
	deps := pipelineDeps(t)
	step := NewInsightsStep(deps.Insights)

	state := NewState("run-nollm", domain.RunOptions{SkipLLM: true})
	require.ErrorContains(t, step.Validate(state), "llm disabled")

	require.NoError(t, step.Validate(NewState("run-llm", domain.RunOptions{})))
}

func TestInsightsStep_OfflineFallback(t *testing.T) {
	deps := pipelineDeps(t)
	path := writeCallsCSV(t, filepath.Join(t.TempDir(), "march.csv"), 24)

	state := NewState("run-insights", domain.RunOptions{Input: path})
	runThrough(t, deps, state, StepIDCorrelate)

	result, err := NewInsightsStep(deps.Insights).Execute(context.Background(), state)
	require.NoError(t, err)

	insights := state.Artifacts().Insights()
	require.NotNil(t, insights)
	assert.True(t, insights.Fallback)
	assert.Equal(t, "none", insights.Provider)
	assert.Contains(t, insights.Sections, domain.InsightSummary)
	assert.Contains(t, insights.Sections, domain.InsightExecutiveSummary)
	assert.Contains(t, result.Message, "heuristics")
}

func TestReportStep(t *testing.T) {
	deps := pipelineDeps(t)
	path := writeCallsCSV(t, filepath.Join(t.TempDir(), "march.csv"), 24)
	outDir := t.TempDir()

	state := NewState("run-report", domain.RunOptions{Input: path, OutputDir: outDir})
	runThrough(t, deps, state, StepIDCorrelate)

	step := NewReportStep(deps.Logger, deps.Charts, deps.Reports, deps.Results, deps.Trends, deps.Report)
	result, err := step.Execute(context.Background(), state)
	require.NoError(t, err)

	reportPath := state.Artifacts().ReportPath()
	require.NotEmpty(t, reportPath)
	assert.FileExists(t, reportPath)
	assert.True(t, strings.HasSuffix(reportPath, ".txt"))
	assert.Contains(t, result.Message, "report written")

	assert.FileExists(t, filepath.Join(outDir, exporter.FileKPIs))
	assert.FileExists(t, filepath.Join(outDir, exporter.FileCorrelation))
	assert.FileExists(t, filepath.Join(outDir, exporter.FileAnalysis))
	assert.NotEmpty(t, state.Artifacts().ExportPaths())
}

func TestRegisterPipeline_Order(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, RegisterPipeline(registry, pipelineDeps(t)))

	order, err := registry.DependencyOrder()
	require.NoError(t, err)
	assert.Equal(t,
		[]string{StepIDLoad, StepIDValidate, StepIDClean, StepIDKPIs, StepIDCorrelate, StepIDInsights, StepIDReport},
		orderedIDs(order))
}

func TestPipeline_EndToEnd(t *testing.T) {
	deps := pipelineDeps(t)
	path := writeCallsCSV(t, filepath.Join(t.TempDir(), "march.csv"), 24)
	outDir := t.TempDir()

	registry := NewRegistry()
	require.NoError(t, RegisterPipeline(registry, deps))
	manager := newTestManager(t, registry, nil)

	resp, err := manager.Execute(context.Background(), Request{
		ID:      "run-e2e",
		Trigger: TriggerCLI,
		Options: domain.RunOptions{Input: path, OutputDir: outDir, Format: "txt"},
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, domain.RunStatusCompleted, resp.Status)

	for _, id := range []string{StepIDLoad, StepIDValidate, StepIDClean, StepIDKPIs, StepIDCorrelate, StepIDInsights, StepIDReport} {
		assert.Equal(t, "completed", stepInfo(t, resp, id).Status, "step %s", id)
	}

	artifacts := resp.Artifacts
	require.NotNil(t, artifacts)
	assert.NotZero(t, artifacts.KPIs().Count())
	require.NotNil(t, artifacts.Insights())
	assert.True(t, artifacts.Insights().Fallback)
	assert.FileExists(t, artifacts.ReportPath())
	assert.FileExists(t, filepath.Join(outDir, exporter.FileKPIs))
	assert.FileExists(t, filepath.Join(outDir, exporter.FileTrends))
}

func TestPipeline_SkipLLMStillReports(t *testing.T) {
	deps := pipelineDeps(t)
	path := writeCallsCSV(t, filepath.Join(t.TempDir(), "march.csv"), 24)
	outDir := t.TempDir()

	registry := NewRegistry()
	require.NoError(t, RegisterPipeline(registry, deps))
	manager := newTestManager(t, registry, nil)

	resp, err := manager.Execute(context.Background(), Request{
		ID:      "run-nollm",
		Trigger: TriggerCLI,
		Options: domain.RunOptions{Input: path, OutputDir: outDir, Format: "txt", SkipLLM: true},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, resp.Status)

	assert.Equal(t, "skipped", stepInfo(t, resp, StepIDInsights).Status)
	assert.Equal(t, "completed", stepInfo(t, resp, StepIDReport).Status)
	assert.Nil(t, resp.Artifacts.Insights())
	assert.FileExists(t, resp.Artifacts.ReportPath())
}

func TestPipeline_InsufficientDataFailsRun(t *testing.T) {
	deps := pipelineDeps(t)
	path := writeCallsCSV(t, filepath.Join(t.TempDir(), "tiny.csv"), 3)

	registry := NewRegistry()
	require.NoError(t, RegisterPipeline(registry, deps))
	manager := newTestManager(t, registry, nil)

	resp, err := manager.Execute(context.Background(), Request{
		ID:      "run-short",
		Trigger: TriggerCLI,
		Options: domain.RunOptions{Input: path, OutputDir: t.TempDir()},
	})
	require.Error(t, err)
	require.ErrorIs(t, err, apperrors.ErrTooFewRows)
	assert.Equal(t, domain.RunStatusFailed, resp.Status)

	assert.Equal(t, "completed", stepInfo(t, resp, StepIDLoad).Status)
	assert.Equal(t, "failed", stepInfo(t, resp, StepIDValidate).Status)
	for _, id := range []string{StepIDClean, StepIDKPIs, StepIDCorrelate, StepIDInsights, StepIDReport} {
		assert.Equal(t, "skipped", stepInfo(t, resp, id).Status, "step %s", id)
	}
}
