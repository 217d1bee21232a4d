package app

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callpulse/internal/config"
)

// testFrontend stands in for the dashboard page cmd/web embeds.
var testFrontend = fstest.MapFS{
	"index.html": &fstest.MapFile{
		Data: []byte("<html><body>CallPulse Dashboard</body></html>"),
	},
}

// buildApp constructs the full application rooted in a temp directory.
// The prometheus exporter registers collectors globally, so the test
// binary builds a single instance and drives it through the router.
func buildApp(t *testing.T) *Application {
	t.Helper()

	tmp := t.TempDir()
	t.Setenv("CCP_PATHS_BASE_DIR", tmp)
	t.Setenv("CCP_LLM_PROVIDER", "mock")
	t.Setenv("CCP_LOGGING_LEVEL", "error")
	t.Setenv("CCP_NO_BROWSER", "1")

	app, err := NewApplication(testFrontend)
	require.NoError(t, err)
	t.Cleanup(func() { app.Stop() })
	return app
}

func doJSON(t *testing.T, app *Application, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

// uploadCSV posts a dataset through the API and returns its dataset ID.
func uploadCSV(t *testing.T, app *Application, filename, content string) string {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/analysis/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Data struct {
			DatasetID string `json:"dataset_id"`
			Rows      int    `json:"rows"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.DatasetID)
	return resp.Data.DatasetID
}

func sampleRows(n int) string {
	var b strings.Builder
	b.WriteString("date,agent_id,team,handle_time,first_call_resolution,calls_offered,calls_answered,answer_time,qa_score,csat_score,nps_score\n")
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		day := start.AddDate(0, 0, i%28)
		fmt.Fprintf(&b, "%s,A%03d,T%d,%d,%d,%d,%d,%d,%d,%.1f,%d\n",
			day.Format("2006-01-02"),
			i%7+1, i%3+1,
			240+(i*7)%120,
			i%2,
			100+i%20, 95+i%5,
			10+i%15,
			80+i%15,
			3.5+0.5*float64(i%3),
			i%11)
	}
	return b.String()
}

func TestApplication(t *testing.T) {
	app := buildApp(t)

	t.Run("wiring", func(t *testing.T) {
		assert.NotNil(t, app.Router)
		assert.NotNil(t, app.Server)
		assert.NotNil(t, app.WebSocketHub)
		assert.NotNil(t, app.Manager)
		assert.NotNil(t, app.JobQueue)
		assert.NotNil(t, app.Files)
		assert.NotNil(t, app.AnalysisService)
		assert.NotNil(t, app.ReportService)
		assert.NotNil(t, app.HealthService)
		assert.Len(t, app.buildID, 12)
		assert.Equal(t, ":8080", app.Server.Addr)
	})

	t.Run("health endpoints", func(t *testing.T) {
		rec := doJSON(t, app, http.MethodGet, "/api/health", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status"`)

		rec = doJSON(t, app, http.MethodGet, "/api/health/live", "")
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = doJSON(t, app, http.MethodGet, "/api/health/ready", "")
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = doJSON(t, app, http.MethodGet, "/api/version", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), Version)

		rec = doJSON(t, app, http.MethodGet, "/api/stats", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("dashboard routes", func(t *testing.T) {
		rec := doJSON(t, app, http.MethodGet, "/", "")
		assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
		assert.Equal(t, "/dashboard", rec.Header().Get("Location"))

		// Served from the embedded filesystem; no index.html on disk.
		rec = doJSON(t, app, http.MethodGet, "/dashboard", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "CallPulse Dashboard")

		// A page dropped into the web directory overrides the embedded one.
		require.NoError(t, os.MkdirAll(app.Paths.WebDir, 0o755))
		override := filepath.Join(app.Paths.WebDir, "index.html")
		require.NoError(t, os.WriteFile(override,
			[]byte("<html><body>Custom Page</body></html>"), 0o644))
		defer os.Remove(override)

		rec = doJSON(t, app, http.MethodGet, "/dashboard", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Custom Page")
	})

	t.Run("metrics endpoint", func(t *testing.T) {
		rec := doJSON(t, app, http.MethodGet, "/metrics", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("queue stats", func(t *testing.T) {
		rec := doJSON(t, app, http.MethodGet, "/api/analysis/queue", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"workers":4`)
	})

	t.Run("run request validation", func(t *testing.T) {
		rec := doJSON(t, app, http.MethodPost, "/api/analysis/run", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "dataset_id or path is required")

		rec = doJSON(t, app, http.MethodPost, "/api/analysis/run", `{"dataset_id":"nope.csv"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "DATASET_NOT_FOUND")
	})

	t.Run("unknown run", func(t *testing.T) {
		rec := doJSON(t, app, http.MethodGet, "/api/analysis/runs/no-such-run", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "RUN_NOT_FOUND")
	})

	t.Run("dataset lifecycle", func(t *testing.T) {
		id := uploadCSV(t, app, "lifecycle.csv", sampleRows(40))

		rec := doJSON(t, app, http.MethodGet, "/api/analysis/datasets", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), id)

		rec = doJSON(t, app, http.MethodDelete, "/api/analysis/datasets/"+id, "")
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = doJSON(t, app, http.MethodGet, "/api/analysis/datasets", "")
		assert.NotContains(t, rec.Body.String(), id)
	})

	t.Run("analysis run end to end", func(t *testing.T) {
		id := uploadCSV(t, app, "fullrun.csv", sampleRows(60))

		rec := doJSON(t, app, http.MethodPost, "/api/analysis/run", fmt.Sprintf(`{"dataset_id":%q}`, id))
		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

		var queued struct {
			Status  string `json:"status"`
			RunID   string `json:"run_id"`
			PollURL string `json:"poll_url"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &queued))
		require.NotEmpty(t, queued.RunID)
		assert.Equal(t, "queued", queued.Status)
		assert.Contains(t, queued.PollURL, queued.RunID)

		var last struct {
			Data struct {
				Status string `json:"status"`
				Error  string `json:"error"`
			} `json:"data"`
		}
		require.Eventually(t, func() bool {
			rec := doJSON(t, app, http.MethodGet, "/api/analysis/runs/"+queued.RunID, "")
			if rec.Code != http.StatusOK {
				return false
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &last); err != nil {
				return false
			}
			return last.Data.Status == "completed" || last.Data.Status == "failed"
		}, 60*time.Second, 250*time.Millisecond, "run did not finish")
		require.Equal(t, "completed", last.Data.Status, "run error: %s", last.Data.Error)

		rec = doJSON(t, app, http.MethodGet, "/api/analysis/runs", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), queued.RunID)

		for _, artifact := range []string{"kpis", "correlations", "insights", "quality"} {
			rec = doJSON(t, app, http.MethodGet, "/api/analysis/runs/"+queued.RunID+"/"+artifact, "")
			assert.Equal(t, http.StatusOK, rec.Code, "artifact %s: %s", artifact, rec.Body.String())
		}

		rec = doJSON(t, app, http.MethodGet, "/api/reports", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "callcenter_report")
	})
}

func TestGenerateBuildID(t *testing.T) {
	id := generateBuildID()
	assert.Len(t, id, 12)
	assert.Equal(t, id, generateBuildID())

	_, err := hex.DecodeString(id)
	assert.NoError(t, err)
}

func TestIsDevelopmentMode(t *testing.T) {
	app := &Application{Config: config.Default()}

	t.Setenv("ENVIRONMENT", "production")
	assert.False(t, app.isDevelopmentMode())

	t.Setenv("ENVIRONMENT", "development")
	assert.True(t, app.isDevelopmentMode())

	t.Setenv("ENVIRONMENT", "")
	app.Config.Logging.Development = true
	assert.True(t, app.isDevelopmentMode())
}

func TestGetCORSConfig(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")

	app := &Application{Config: config.Default()}
	app.Config.Security.AllowedOrigins = []string{"https://ops.example.com"}

	cors := app.getCORSConfig()
	assert.Equal(t, []string{"https://ops.example.com"}, cors.AllowedOrigins)
	assert.Contains(t, cors.AllowedMethods, "DELETE")
	assert.Equal(t, 300, cors.MaxAge)
	assert.False(t, cors.AllowCredentials)

	app.Config.Logging.Development = true
	dev := app.getCORSConfig()
	assert.Contains(t, dev.AllowedOrigins, "http://localhost:3000")
	assert.Contains(t, dev.AllowedOrigins, "https://ops.example.com")
}

func TestPerformStartupHealthCheck(t *testing.T) {
	tmp := t.TempDir()
	paths := &config.Paths{
		DataDir:    filepath.Join(tmp, "data"),
		UploadsDir: filepath.Join(tmp, "data", "uploads"),
		OutputDir:  filepath.Join(tmp, "outputs"),
		ChartsDir:  filepath.Join(tmp, "outputs", "charts"),
		LogsDir:    filepath.Join(tmp, "logs"),
	}
	app := &Application{Paths: paths}

	require.NoError(t, paths.EnsureDirectories())
	assert.NoError(t, app.performStartupHealthCheck())

	require.NoError(t, os.RemoveAll(paths.LogsDir))
	assert.Error(t, app.performStartupHealthCheck())
}

func TestStopWithoutStart(t *testing.T) {
	app := &Application{
		Config:      config.Default(),
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		cleanupQuit: make(chan struct{}),
	}

	assert.NoError(t, app.Stop())
	assert.NoError(t, app.Stop())
}

func TestGetBrowserOpenMethods(t *testing.T) {
	methods := getBrowserOpenMethods()
	require.NotEmpty(t, methods)

	switch runtime.GOOS {
	case "windows":
		assert.Equal(t, "cmd", methods[0].name)
	case "darwin":
		assert.Equal(t, "open", methods[0].name)
	default:
		assert.Equal(t, "xdg-open", methods[0].name)
	}
}
