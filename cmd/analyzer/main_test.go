package main

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callpulse/internal/config"
	"callpulse/internal/operations"
)

func TestResolveInputs(t *testing.T) {
	tmpDir := t.TempDir()
	for _, name := range []string{"b_calls.csv", "a_calls.csv", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(tmpDir, name), []byte("x"), 0o644))
	}

	t.Run("single file", func(t *testing.T) {
		path := filepath.Join(tmpDir, "a_calls.csv")
		inputs, err := resolveInputs(path)
		require.NoError(t, err)
		assert.Equal(t, []string{path}, inputs)
	})

	t.Run("directory sorted by name", func(t *testing.T) {
		inputs, err := resolveInputs(tmpDir)
		require.NoError(t, err)
		require.Len(t, inputs, 2)
		assert.Equal(t, filepath.Join(tmpDir, "a_calls.csv"), inputs[0])
		assert.Equal(t, filepath.Join(tmpDir, "b_calls.csv"), inputs[1])
	})

	t.Run("directory without CSV files", func(t *testing.T) {
		empty := t.TempDir()
		_, err := resolveInputs(empty)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no CSV files found")
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := resolveInputs(filepath.Join(tmpDir, "absent.csv"))
		assert.Error(t, err)
	})
}

func TestIsValidFormat(t *testing.T) {
	tests := []struct {
		format string
		valid  bool
	}{
		{"html", true},
		{"txt", true},
		{"xlsx", true},
		{"pdf", true},
		{"", false},
		{"docx", false},
		{"HTML", false},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			assert.Equal(t, tt.valid, isValidFormat(tt.format))
		})
	}
}

func TestConsoleProgress(t *testing.T) {
	t.Run("announces each step once", func(t *testing.T) {
		var buf bytes.Buffer
		progress := newConsoleProgress(&buf)

		snapshot := &operations.RunSnapshot{
			RunID: "run-1",
			Steps: []operations.StepSnapshot{
				{ID: "load", Name: "Data Loading", Status: "running"},
				{ID: "validate", Name: "Data Validation", Status: "pending"},
			},
		}
		progress.BroadcastUpdate("run:snapshot", "run-1", "update", snapshot)
		progress.BroadcastUpdate("run:snapshot", "run-1", "update", snapshot)

		assert.Equal(t, "[1/2] Data Loading\n", buf.String())
	})

	t.Run("completion message indented", func(t *testing.T) {
		var buf bytes.Buffer
		progress := newConsoleProgress(&buf)

		running := &operations.RunSnapshot{
			RunID: "run-2",
			Steps: []operations.StepSnapshot{
				{ID: "load", Name: "Data Loading", Status: "running"},
			},
		}
		progress.BroadcastUpdate("run:snapshot", "run-2", "update", running)

		completed := &operations.RunSnapshot{
			RunID: "run-2",
			Steps: []operations.StepSnapshot{
				{ID: "load", Name: "Data Loading", Status: "completed", Message: "loaded 120 rows"},
			},
		}
		progress.BroadcastUpdate("run:snapshot", "run-2", "update", completed)

		assert.Equal(t, "[1/1] Data Loading\n      loaded 120 rows\n", buf.String())
	})

	t.Run("skipped step carries reason", func(t *testing.T) {
		var buf bytes.Buffer
		progress := newConsoleProgress(&buf)

		snapshot := &operations.RunSnapshot{
			RunID: "run-3",
			Steps: []operations.StepSnapshot{
				{ID: "insights", Name: "AI Insights", Status: "skipped", Message: "llm disabled"},
			},
		}
		progress.BroadcastUpdate("run:snapshot", "run-3", "update", snapshot)

		assert.Equal(t, "[1/1] AI Insights (llm disabled)\n", buf.String())
	})

	t.Run("ignores non-snapshot payloads", func(t *testing.T) {
		var buf bytes.Buffer
		progress := newConsoleProgress(&buf)

		progress.BroadcastUpdate("run:error", "run-4", "update", map[string]string{"error": "boom"})

		assert.Empty(t, buf.String())
	})

	t.Run("tracks runs independently", func(t *testing.T) {
		var buf bytes.Buffer
		progress := newConsoleProgress(&buf)

		for _, runID := range []string{"run-a", "run-b"} {
			progress.BroadcastUpdate("run:snapshot", runID, "update", &operations.RunSnapshot{
				RunID: runID,
				Steps: []operations.StepSnapshot{
					{ID: "load", Name: "Data Loading", Status: "running"},
				},
			})
		}

		assert.Equal(t, "[1/1] Data Loading\n[1/1] Data Loading\n", buf.String())
	})
}

func TestBuildManager(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Default()

	manager, err := buildManager(logger, cfg, cfg.LLM, nil, newConsoleProgress(io.Discard))
	require.NoError(t, err)
	require.NotNil(t, manager)

	steps, err := manager.Registry().DependencyOrder()
	require.NoError(t, err)
	require.Len(t, steps, 7)
	assert.Equal(t, operations.StepIDLoad, steps[0].ID())
	assert.Equal(t, operations.StepIDReport, steps[len(steps)-1].ID())
}
