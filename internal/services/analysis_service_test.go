package services

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callpulse/internal/config"
	"callpulse/internal/dataset"
	"callpulse/internal/files"
	"callpulse/internal/operations"
	"callpulse/pkg/contracts/domain"
)

const sampleCSV = `date,agent_id,calls_handled,avg_handle_time,fcr
2025-08-01,A1,42,310,1
2025-08-01,A2,38,290,0
2025-08-02,A1,45,315,1
2025-08-02,A2,40,288,1
2025-08-03,A1,41,305,0
`

type stubStep struct {
	id   string
	deps []string
	run  func(state *operations.State)
}

func (s *stubStep) ID() string                       { return s.id }
func (s *stubStep) Name() string                     { return s.id }
func (s *stubStep) Dependencies() []string           { return s.deps }
func (s *stubStep) Validate(*operations.State) error { return nil }

func (s *stubStep) Execute(_ context.Context, state *operations.State) (operations.Result, error) {
	if s.run != nil {
		s.run(state)
	}
	return operations.Result{}, nil
}

func newAnalysisFixture(t *testing.T) (*AnalysisService, *operations.Manager) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	paths, err := config.NewPaths(config.PathsConfig{BaseDir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, paths.EnsureDirectories())

	fm := files.NewManager(paths, logger)
	loader := dataset.NewLoader(logger, dataset.LoaderConfig{})
	profiler := dataset.NewValidator(logger, dataset.ValidatorConfig{MinDataPoints: 1})

	manager := operations.NewManager(nil, nil, nil, logger)
	queue := operations.NewJobQueue(1, operations.NewMemoryJobStore(), manager, logger)

	svc := NewAnalysisService(queue, manager, fm, loader, profiler, 1<<20, logger)
	return svc, manager
}

func uploadSample(t *testing.T, svc *AnalysisService) *UploadResult {
	t.Helper()
	res, err := svc.UploadDataset(context.Background(), "august.csv", int64(len(sampleCSV)), strings.NewReader(sampleCSV))
	require.NoError(t, err)
	return res
}

func TestUploadDatasetStoresAndProfiles(t *testing.T) {
	svc, _ := newAnalysisFixture(t)

	res := uploadSample(t, svc)

	assert.True(t, strings.HasPrefix(res.DatasetID, "august_"), "dataset id %q", res.DatasetID)
	assert.Equal(t, 5, res.Rows)
	assert.Equal(t, 5, res.Columns)
	assert.Equal(t, int64(len(sampleCSV)), res.SizeBytes)
	assert.Equal(t, 5, res.Quality.TotalRows)
	assert.NotEmpty(t, res.Quality.NumericColumns)

	datasets, err := svc.ListDatasets(context.Background())
	require.NoError(t, err)
	require.Len(t, datasets, 1)
	assert.Equal(t, res.DatasetID, datasets[0].Name)
}

func TestUploadDatasetRejectsBadRequests(t *testing.T) {
	svc, _ := newAnalysisFixture(t)

	tests := []struct {
		name     string
		filename string
		size     int64
	}{
		{name: "wrong extension", filename: "calls.xlsx", size: 10},
		{name: "no filename", filename: "", size: 10},
		{name: "too large", filename: "calls.csv", size: 2 << 20},
		{name: "empty", filename: "calls.csv", size: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UploadDataset(context.Background(), tt.filename, tt.size, strings.NewReader("x"))
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestUploadDatasetRemovesUnparseableFile(t *testing.T) {
	svc, _ := newAnalysisFixture(t)

	content := "agent_id,calls_handled\n"
	_, err := svc.UploadDataset(context.Background(), "header_only.csv", int64(len(content)), strings.NewReader(content))
	require.ErrorIs(t, err, ErrInvalidInput)

	datasets, err := svc.ListDatasets(context.Background())
	require.NoError(t, err)
	assert.Empty(t, datasets)
}

func TestDeleteDataset(t *testing.T) {
	svc, _ := newAnalysisFixture(t)
	res := uploadSample(t, svc)

	require.NoError(t, svc.DeleteDataset(context.Background(), res.DatasetID))

	datasets, err := svc.ListDatasets(context.Background())
	require.NoError(t, err)
	assert.Empty(t, datasets)

	assert.ErrorIs(t, svc.DeleteDataset(context.Background(), "gone.csv"), ErrDatasetNotFound)
}

func TestStartRunWithDatasetID(t *testing.T) {
	svc, _ := newAnalysisFixture(t)
	res := uploadSample(t, svc)

	job, err := svc.StartRun(context.Background(), RunRequest{
		DatasetID: res.DatasetID,
		Options:   RunOptions{Format: "txt", NoLLM: true, RemoveOutliers: true},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, job.RunID)
	assert.Equal(t, operations.JobStatusQueued, job.Status)
	assert.Equal(t, operations.TriggerAPI, job.Trigger)
	assert.Contains(t, job.Options.Input, res.DatasetID)
	assert.NotEmpty(t, job.Options.OutputDir)
	assert.Equal(t, "txt", job.Options.Format)
	assert.True(t, job.Options.SkipLLM)
	assert.True(t, job.Options.RemoveOutliers)

	summary, err := svc.Run(context.Background(), job.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusQueued, summary.Status)
	assert.Equal(t, job.Options.Input, summary.Input)
}

func TestStartRunWithPath(t *testing.T) {
	svc, _ := newAnalysisFixture(t)

	path := filepath.Join(t.TempDir(), "calls.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))

	job, err := svc.StartRun(context.Background(), RunRequest{Path: path})
	require.NoError(t, err)
	assert.Equal(t, path, job.Options.Input)
}

func TestStartRunValidation(t *testing.T) {
	svc, _ := newAnalysisFixture(t)

	tests := []struct {
		name    string
		req     RunRequest
		wantErr error
	}{
		{name: "neither dataset nor path", req: RunRequest{}, wantErr: ErrInvalidInput},
		{name: "both dataset and path", req: RunRequest{DatasetID: "a.csv", Path: "/tmp/b.csv"}, wantErr: ErrInvalidInput},
		{name: "unknown dataset", req: RunRequest{DatasetID: "missing.csv"}, wantErr: ErrDatasetNotFound},
		{name: "missing path", req: RunRequest{Path: filepath.Join(t.TempDir(), "absent.csv")}, wantErr: ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.StartRun(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRunNotFound(t *testing.T) {
	svc, _ := newAnalysisFixture(t)

	_, err := svc.Run(context.Background(), "no-such-run")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = svc.Run(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestListRunsIncludesQueuedJobs(t *testing.T) {
	svc, _ := newAnalysisFixture(t)
	res := uploadSample(t, svc)

	job, err := svc.StartRun(context.Background(), RunRequest{DatasetID: res.DatasetID})
	require.NoError(t, err)

	runs, err := svc.ListRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, job.RunID, runs[0].ID)
	assert.Equal(t, domain.RunStatusQueued, runs[0].Status)
}

func TestCancelQueuedRun(t *testing.T) {
	svc, _ := newAnalysisFixture(t)
	res := uploadSample(t, svc)

	job, err := svc.StartRun(context.Background(), RunRequest{DatasetID: res.DatasetID})
	require.NoError(t, err)

	require.NoError(t, svc.CancelRun(context.Background(), job.RunID))

	summary, err := svc.Run(context.Background(), job.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCancelled, summary.Status)

	assert.ErrorIs(t, svc.CancelRun(context.Background(), "no-such-run"), ErrRunNotFound)
}

func TestArtifactsForQueuedRun(t *testing.T) {
	svc, _ := newAnalysisFixture(t)
	res := uploadSample(t, svc)

	job, err := svc.StartRun(context.Background(), RunRequest{DatasetID: res.DatasetID})
	require.NoError(t, err)

	// No worker is running, so the job sits in the queue without artifacts
	_, err = svc.KPIs(context.Background(), job.RunID)
	assert.ErrorIs(t, err, ErrArtifactNotReady)

	_, err = svc.KPIs(context.Background(), "no-such-run")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestArtifactAccessorsAfterRun(t *testing.T) {
	svc, manager := newAnalysisFixture(t)

	step := &stubStep{id: "produce", run: func(state *operations.State) {
		state.Artifacts().SetValidation(&domain.ValidationResult{
			Quality:        domain.QualityReport{TotalRows: 5, TotalColumns: 3},
			SufficientData: true,
			RowCount:       5,
		})
		state.Artifacts().SetCleaning(&domain.CleaningSummary{InitialRows: 5, FinalRows: 5})
		state.Artifacts().SetKPIs(domain.KPISet{
			Performance: map[string]float64{domain.KPIAverageHandleTime: 301.5},
		}, map[string]domain.TargetComparison{
			domain.KPIAverageHandleTime: {Actual: 301.5, Target: 300, MeetsTarget: false},
		})
		state.Artifacts().SetInsights(&domain.InsightSet{
			Sections: map[string]string{domain.InsightSummary: "steady month"},
			Provider: "mock",
		})
	}}
	require.NoError(t, manager.RegisterStep(step))

	_, err := manager.Execute(context.Background(), operations.Request{
		ID:      "run-1",
		Trigger: operations.TriggerAPI,
		Options: domain.RunOptions{Input: "calls.csv"},
	})
	require.NoError(t, err)

	kpis, err := svc.KPIs(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", kpis.RunID)
	assert.InDelta(t, 301.5, kpis.KPIs.Performance[domain.KPIAverageHandleTime], 1e-9)
	assert.False(t, kpis.Comparisons[domain.KPIAverageHandleTime].MeetsTarget)

	insights, err := svc.Insights(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "steady month", insights.Insights.Section(domain.InsightSummary))

	quality, err := svc.Quality(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, 5, quality.Quality.TotalRows)
	assert.Equal(t, 5, quality.Cleaning.FinalRows)

	// Correlation was never produced by the stub
	_, err = svc.Correlations(context.Background(), "run-1")
	assert.ErrorIs(t, err, ErrArtifactNotReady)
}

func TestQueueStats(t *testing.T) {
	svc, _ := newAnalysisFixture(t)

	stats := svc.QueueStats()
	assert.Equal(t, 1, stats["workers"])
	assert.Equal(t, 0, stats["active_jobs"])
}
