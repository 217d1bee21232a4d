package operations

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callpulse/internal/dataset"
	"callpulse/pkg/contracts/domain"
)

func TestStepState_Lifecycle(t *testing.T) {
	step := NewStepState("kpis", "KPI Calculation")
	assert.Equal(t, StepStatusPending, step.Status())

	step.Start()
	assert.Equal(t, StepStatusActive, step.Status())

	step.UpdateProgress(50, "halfway")
	assert.Equal(t, 50.0, step.Progress())

	step.Complete("done")
	assert.Equal(t, StepStatusCompleted, step.Status())
	assert.Equal(t, 100.0, step.Progress())
	assert.GreaterOrEqual(t, step.Duration().Nanoseconds(), int64(0))

	info := step.Info()
	assert.Equal(t, "kpis", info.ID)
	assert.Equal(t, "KPI Calculation", info.Name)
	assert.Equal(t, "done", info.Message)
	require.NotNil(t, info.CompletedAt)
}

func TestStepState_Fail(t *testing.T) {
	step := NewStepState("load", "Data Loading")
	step.Start()
	step.Fail(errors.New("file missing"))

	assert.Equal(t, StepStatusFailed, step.Status())
	require.Error(t, step.Err())
	assert.Equal(t, "file missing", step.Info().Error)
}

func TestStepState_Skip(t *testing.T) {
	step := NewStepState("insights", "AI Insights")
	step.Skip("llm disabled for this run")

	assert.Equal(t, StepStatusSkipped, step.Status())
	assert.Equal(t, "llm disabled for this run", step.Info().Message)
	assert.Nil(t, step.Err())
}

func TestStepState_StartResetsPreviousAttempt(t *testing.T) {
	step := NewStepState("load", "Data Loading")
	step.Start()
	step.Fail(errors.New("transient"))

	step.Start()
	assert.Equal(t, StepStatusActive, step.Status())
	assert.Nil(t, step.Err())
	assert.Equal(t, 0.0, step.Progress())
	assert.Nil(t, step.Info().CompletedAt)
}

func TestState_Lifecycle(t *testing.T) {
	state := NewState("run-1", domain.RunOptions{Input: "calls.csv"})
	assert.Equal(t, domain.RunStatusQueued, state.Status())
	assert.Equal(t, "calls.csv", state.Options().Input)

	state.SetTrigger(TriggerAPI)
	assert.Equal(t, TriggerAPI, state.Trigger())

	state.Start()
	assert.Equal(t, domain.RunStatusRunning, state.Status())

	state.Complete()
	assert.Equal(t, domain.RunStatusCompleted, state.Status())
	assert.NoError(t, state.Err())
}

func TestState_Fail(t *testing.T) {
	state := NewState("run-2", domain.RunOptions{})
	state.Start()
	state.Fail(errors.New("step exploded"))

	assert.Equal(t, domain.RunStatusFailed, state.Status())
	require.Error(t, state.Err())
}

func TestState_CancelIgnoredAfterTerminal(t *testing.T) {
	state := NewState("run-3", domain.RunOptions{})
	state.Start()
	state.Complete()

	state.Cancel()
	assert.Equal(t, domain.RunStatusCompleted, state.Status())
}

func TestState_StepsKeepInsertionOrder(t *testing.T) {
	state := NewState("run-4", domain.RunOptions{})
	state.SetStep(NewStepState("load", "Data Loading"))
	state.SetStep(NewStepState("validate", "Data Validation"))
	state.SetStep(NewStepState("clean", "Data Cleaning"))

	infos := state.StepInfos()
	require.Len(t, infos, 3)
	assert.Equal(t, "load", infos[0].ID)
	assert.Equal(t, "validate", infos[1].ID)
	assert.Equal(t, "clean", infos[2].ID)

	require.NotNil(t, state.Step("validate"))
	assert.Nil(t, state.Step("report"))
}

func TestState_HasFailures(t *testing.T) {
	state := NewState("run-5", domain.RunOptions{})
	state.SetStep(NewStepState("load", "Data Loading"))
	state.SetStep(NewStepState("validate", "Data Validation"))

	assert.False(t, state.HasFailures())

	state.Step("validate").Start()
	state.Step("validate").Fail(errors.New("boom"))
	assert.True(t, state.HasFailures())
}

func TestState_Summary(t *testing.T) {
	state := NewState("run-6", domain.RunOptions{Input: "march.csv"})
	state.SetStep(NewStepState("load", "Data Loading"))
	state.Start()
	state.Step("load").Start()
	state.Step("load").Complete("loaded")
	state.Artifacts().SetReportPath("outputs/report.html")
	state.Artifacts().SetChartPaths(map[string]string{"kpi_dashboard": "outputs/charts/kpi_dashboard.png"})
	state.Complete()

	summary := state.Summary()
	assert.Equal(t, "run-6", summary.ID)
	assert.Equal(t, domain.RunStatusCompleted, summary.Status)
	assert.Equal(t, "march.csv", summary.Input)
	assert.Equal(t, "outputs/report.html", summary.ReportPath)
	assert.Equal(t, "outputs/charts/kpi_dashboard.png", summary.ChartPaths["kpi_dashboard"])
	require.Len(t, summary.Steps, 1)
	require.NotNil(t, summary.CompletedAt)
}

func TestArtifacts_TypedStore(t *testing.T) {
	artifacts := &Artifacts{}

	frame := dataset.NewFrame()
	require.NoError(t, frame.AddSeries(&dataset.Series{
		Name:  "handle_time",
		Type:  dataset.TypeNumeric,
		Float: []float64{300, 250},
		Raw:   []string{"300", "250"},
		Valid: []bool{true, true},
	}))
	artifacts.SetFrame(frame)
	require.NotNil(t, artifacts.Frame())
	assert.Equal(t, 2, artifacts.Frame().NumRows())

	artifacts.SetKPIs(domain.KPISet{
		Performance: map[string]float64{"aht": 275},
	}, map[string]domain.TargetComparison{
		"aht": {Actual: 275, Target: 300, MeetsTarget: true},
	})
	assert.Equal(t, 275.0, artifacts.KPIs().Performance["aht"])
	assert.True(t, artifacts.Comparisons()["aht"].MeetsTarget)

	artifacts.SetCorrelation(&domain.CorrelationAnalysis{
		StrongPairs: []domain.CorrelationPair{{MetricA: "handle_time", MetricB: "csat_score", Coefficient: -0.72}},
	})
	require.NotNil(t, artifacts.Correlation())
	require.Len(t, artifacts.Correlation().StrongPairs, 1)

	artifacts.SetInsights(&domain.InsightSet{
		Sections: map[string]string{"executive_summary": "steady month"},
		Provider: "openai",
	})
	require.NotNil(t, artifacts.Insights())
	assert.Equal(t, "steady month", artifacts.Insights().Section("executive_summary"))

	artifacts.AddExportPaths("outputs/kpis.csv")
	artifacts.AddExportPaths("outputs/analysis.json")
	assert.Equal(t, []string{"outputs/kpis.csv", "outputs/analysis.json"}, artifacts.ExportPaths())
}

func TestArtifacts_QualityDerivedFromValidation(t *testing.T) {
	artifacts := &Artifacts{}
	assert.Nil(t, artifacts.Quality())

	artifacts.SetValidation(&domain.ValidationResult{
		Quality:  domain.QualityReport{TotalRows: 90, DuplicateRows: 3},
		RowCount: 90,
	})

	quality := artifacts.Quality()
	require.NotNil(t, quality)
	assert.Equal(t, 90, quality.TotalRows)
	assert.Equal(t, 3, quality.DuplicateRows)
}
