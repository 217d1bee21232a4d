package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"callpulse/internal/analysis"
	"callpulse/internal/chart"
	"callpulse/internal/config"
	"callpulse/internal/dataset"
	apierrors "callpulse/internal/errors"
	"callpulse/internal/exporter"
	"callpulse/internal/files"
	"callpulse/internal/infrastructure"
	"callpulse/internal/llm"
	"callpulse/internal/middleware"
	"callpulse/internal/operations"
	"callpulse/internal/report"
	"callpulse/internal/security"
	"callpulse/internal/services"
	handlers "callpulse/internal/transport/http"
	"callpulse/internal/updater"
	ws "callpulse/internal/websocket"
	"callpulse/pkg/contracts"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/gorilla/websocket"
)

// Build metadata. Release builds stamp callpulse/pkg/contracts via
// -ldflags; the v prefix here matches release tags.
var (
	Version   = "v" + contracts.Version
	BuildTime = contracts.BuildTime
)

const (
	// releaseRepo is the GitHub repository the auto-updater polls.
	releaseRepo = "https://github.com/callpulse/callpulse"

	queueWorkers        = 4
	jobDrainTimeout     = 30 * time.Second
	updateCheckInterval = 24 * time.Hour

	// Finished run state is kept in memory for a day so the dashboard
	// can show recent history across page reloads.
	runRetention       = 24 * time.Hour
	runCleanupInterval = time.Hour
)

// Application owns every long-lived component of the CallPulse server:
// configuration, telemetry, the WebSocket hub, the analysis pipeline
// with its job queue, and the HTTP server that fronts them.
type Application struct {
	Config *config.Config
	Paths  *config.Paths
	Logger *slog.Logger

	// Embedded dashboard assets; a file of the same name under the web
	// directory takes precedence.
	FrontendFS fs.FS

	Router *chi.Mux
	Server *http.Server

	OTelProviders *infrastructure.OTelProviders
	WebSocketHub  *ws.Hub
	Manager       *operations.Manager
	JobQueue      *operations.JobQueue
	Files         *files.Manager

	AnalysisService *services.AnalysisService
	ReportService   *services.ReportService
	HealthService   *services.HealthService

	UpdateChecker *updater.AutoUpdateChecker

	buildID     string
	cleanupQuit chan struct{}
	stopOnce    sync.Once
}

// NewApplication assembles a fully wired application. Components are
// initialized in dependency order: configuration, logging, telemetry,
// services, router, server. Any failure aborts startup.
func NewApplication(frontendFS fs.FS) (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	paths, err := config.NewPaths(cfg.Paths)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	if err := operations.InitGlobalRunTracer(otelProviders); err != nil {
		logger.Warn("Run tracer initialization failed, pipeline spans disabled",
			slog.String("error", err.Error()))
	}
	if err := ws.InitOTelMetrics(); err != nil {
		logger.Warn("WebSocket metrics initialization failed",
			slog.String("error", err.Error()))
	}

	app := &Application{
		Config:        cfg,
		Paths:         paths,
		Logger:        logger,
		FrontendFS:    frontendFS,
		OTelProviders: otelProviders,
		buildID:       generateBuildID(),
		cleanupQuit:   make(chan struct{}),
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	if err := app.setupRouter(); err != nil {
		return nil, fmt.Errorf("failed to set up router: %w", err)
	}
	app.createServer()

	logger.Info("Application initialized",
		slog.String("version", Version),
		slog.String("build_id", app.buildID),
		slog.Int("port", cfg.Server.Port))

	return app, nil
}

// initializeServices builds the hub, the analysis pipeline, the job
// queue, and the service layer the HTTP handlers talk to.
func (a *Application) initializeServices() error {
	a.WebSocketHub = ws.NewHub(a.Logger)
	a.WebSocketHub.Start()

	// A key stored through the settings API takes over when neither
	// config nor environment provides one.
	llmCfg := a.Config.LLM
	if llmCfg.ResolveAPIKey() == "" {
		keystore := security.NewKeystore(a.Paths.DataDir, a.Logger)
		if key, err := keystore.APIKey(llmCfg.Provider); err == nil && key != "" {
			llmCfg.APIKey = key
		}
	}

	// A missing or misconfigured provider degrades insight text to the
	// deterministic fallbacks; it never blocks startup.
	var provider llm.Provider
	if p, err := llm.NewProvider(a.Logger, llmCfg); err != nil {
		a.Logger.Warn("LLM provider unavailable, insights fall back to deterministic text",
			slog.String("provider", llmCfg.Provider),
			slog.String("error", err.Error()))
	} else {
		provider = p
	}

	insights := llm.NewInsightGenerator(a.Logger, llm.InsightConfig{
		Provider:       provider,
		Model:          llmCfg.Model,
		Thresholds:     a.Config.Thresholds,
		MaxConcurrency: a.Config.Analysis.MaxConcurrency,
	})

	loader := dataset.NewLoader(a.Logger, dataset.LoaderConfig{})
	validator := dataset.NewValidator(a.Logger, dataset.ValidatorConfig{
		RequiredColumns: a.Config.Data.RequiredColumns,
		MinDataPoints:   a.Config.Analysis.MinDataPoints,
	})

	registry := operations.NewRegistry()
	err := operations.RegisterPipeline(registry, operations.PipelineDeps{
		Logger:     a.Logger,
		Loader:     loader,
		Validator:  validator,
		KPIs:       analysis.NewKPIAnalyzer(a.Logger, a.Config.Thresholds),
		Correlator: analysis.NewCorrelationAnalyzer(a.Logger, a.Config.Analysis),
		Stats:      analysis.NewStatsAnalyzer(a.Logger),
		Insights:   insights,
		Charts:     chart.NewRenderer(a.Logger),
		Reports:    report.NewGenerator(a.Logger, a.Config.Report),
		Results:    exporter.NewResultsExporter(a.Logger),
		Trends:     exporter.NewTrendExporter(a.Logger),
		Data:       a.Config.Data,
		Analysis:   a.Config.Analysis,
		Report:     a.Config.Report,
	})
	if err != nil {
		return fmt.Errorf("failed to register pipeline steps: %w", err)
	}

	a.Manager = operations.NewManager(a.WebSocketHub, registry, operations.NewConfig(), a.Logger)

	a.JobQueue = operations.NewJobQueue(queueWorkers, operations.NewMemoryJobStore(), a.Manager, a.Logger)
	a.JobQueue.Start(context.Background())

	a.Files = files.NewManager(a.Paths, a.Logger)

	a.AnalysisService = services.NewAnalysisService(
		a.JobQueue, a.Manager, a.Files, loader, validator,
		a.Config.Server.MaxUploadBytes, a.Logger)
	a.ReportService = services.NewReportService(a.Files, a.Logger)
	a.HealthService = services.NewHealthService(
		Version, BuildTime, a.buildID,
		a.Config, a.Paths, a.Manager, a.JobQueue, a.WebSocketHub, a.Logger)

	// The auto-updater only notifies; installs stay manual.
	if upd, err := updater.NewUpdater(Version, releaseRepo); err == nil {
		a.UpdateChecker = updater.NewAutoUpdateChecker(upd, updateCheckInterval, a.Logger,
			func(info *updater.UpdateInfo) bool {
				a.Logger.Info("Update available",
					slog.String("current", info.CurrentVersion),
					slog.String("latest", info.LatestVersion),
					slog.String("url", info.UpdateURL))
				return false
			})
	} else {
		a.Logger.Warn("Auto-updater disabled", slog.String("error", err.Error()))
	}

	return nil
}

// setupRouter builds the route tree. The WebSocket endpoint and static
// file routes sit outside the main middleware group; API and dashboard
// routes run behind the full chain.
func (a *Application) setupRouter() error {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	// The upgraded connection must not pass through timeout or
	// compression middleware.
	r.With(middleware.WebSocketTraceMiddleware(a.Logger)).HandleFunc("/ws", a.handleWebSocket)

	// Dashboard assets and generated chart images are plain files.
	a.setupStaticRoutes(r)

	otelMW, err := middleware.NewOTelMiddleware(a.OTelProviders)
	if err != nil {
		return fmt.Errorf("failed to create otel middleware: %w", err)
	}
	a.Manager.SetMetrics(otelMW.Metrics())

	r.Group(func(r chi.Router) {
		r.Use(otelMW.Handler)
		r.Use(middleware.StructuredLogger(a.Logger))
		r.Use(middleware.Recoverer(a.Logger))
		r.Use(middleware.SecurityHeaders)
		r.Use(middleware.CORS(a.getCORSConfig()))
		if a.Config.Security.RateLimit.Enabled {
			limiter := middleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger)
			r.Use(limiter.Handler)
		}

		a.setupAPIRoutes(r)

		r.Get("/", handlers.RedirectToDashboard)
		r.Get("/dashboard", handlers.ServeDashboard(a.Paths.WebDir, a.FrontendFS))
	})

	// Prometheus scrapes stay off the instrumented chain so they do not
	// count themselves.
	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	a.Router = r
	return nil
}

func (a *Application) setupStaticRoutes(r chi.Router) {
	staticDir := filepath.Join(a.Paths.WebDir, "static")
	staticServer := http.StripPrefix("/static", http.FileServer(http.Dir(staticDir)))
	r.Route("/static", func(sr chi.Router) {
		sr.Use(middleware.Compress(5))
		sr.Get("/*", func(w http.ResponseWriter, req *http.Request) {
			staticServer.ServeHTTP(w, req)
		})
	})

	chartServer := http.StripPrefix("/charts", http.FileServer(http.Dir(a.Paths.ChartsDir)))
	r.Route("/charts", func(cr chi.Router) {
		cr.Use(middleware.Compress(5))
		cr.Get("/*", func(w http.ResponseWriter, req *http.Request) {
			chartServer.ServeHTTP(w, req)
		})
	})
}

// setupAPIRoutes mounts the JSON API. Short request/response endpoints
// share the read timeout; analysis endpoints get the operation timeout
// because uploads and queued runs take longer.
func (a *Application) setupAPIRoutes(r chi.Router) {
	errorHandler := apierrors.NewErrorHandler(a.Logger, a.Config.Logging.Development)

	healthHandler := handlers.NewHealthHandler(a.HealthService, a.Logger)
	reportHandler := handlers.NewReportHandler(a.ReportService, a.Logger, errorHandler)
	analysisHandler := handlers.NewAnalysisHandler(
		a.AnalysisService, a.WebSocketHub, a.Logger, errorHandler,
		a.Config.Server.MaxUploadBytes)
	clientLogHandler := handlers.NewClientLogHandler(a.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(a.Config.Server.ReadTimeout, a.Logger))

			r.Mount("/health", healthHandler.Routes())
			r.Get("/version", healthHandler.Version)
			r.Get("/stats", healthHandler.SystemStats)
			r.Mount("/reports", reportHandler.Routes())
			r.Post("/logs", clientLogHandler.Handle)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(a.Config.Server.OperationTimeout, a.Logger))

			r.Mount("/analysis", analysisHandler.Routes())
		})
	})
}

// handleWebSocket upgrades the connection and hands it to the hub.
func (a *Application) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  a.Config.WebSocket.ReadBufferSize,
		WriteBufferSize: a.Config.WebSocket.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			if a.isDevelopmentMode() {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Non-browser clients send no Origin header
				return true
			}
			for _, allowed := range a.Config.Security.AllowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.Logger.ErrorContext(r.Context(), "WebSocket upgrade failed",
			slog.String("error", err.Error()),
			slog.String("remote_addr", r.RemoteAddr))
		return
	}

	ws.ServeWSWithTrace(a.WebSocketHub, conn, infrastructure.GetTraceID(r.Context()))
}

func (a *Application) getCORSConfig() middleware.CORSConfig {
	origins := a.Config.Security.AllowedOrigins
	if a.isDevelopmentMode() {
		origins = append([]string{
			"http://localhost:3000",
			"http://localhost:8080",
			"http://127.0.0.1:8080",
		}, origins...)
	}
	return middleware.CORSConfig{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
		Logger:           a.Logger,
	}
}

func (a *Application) isDevelopmentMode() bool {
	if a.Config.Logging.Development {
		return true
	}
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	return env == "development" || env == "dev"
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// performStartupHealthCheck verifies all working directories are
// writable before the server accepts traffic.
func (a *Application) performStartupHealthCheck() error {
	dirs := map[string]string{
		"data":    a.Paths.DataDir,
		"uploads": a.Paths.UploadsDir,
		"output":  a.Paths.OutputDir,
		"charts":  a.Paths.ChartsDir,
		"logs":    a.Paths.LogsDir,
	}
	for name, dir := range dirs {
		probe := filepath.Join(dir, ".write_test")
		if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
			return fmt.Errorf("%s directory not writable: %w", name, err)
		}
		os.Remove(probe)
	}
	return nil
}

// Start runs the HTTP server and background loops until ctx is
// cancelled or the server fails. It blocks.
func (a *Application) Start(ctx context.Context) error {
	if err := a.performStartupHealthCheck(); err != nil {
		return fmt.Errorf("startup health check failed: %w", err)
	}

	go a.runCleanupLoop()

	if a.UpdateChecker != nil {
		a.UpdateChecker.Start()
	}

	serverErr := make(chan error, 1)
	go func() {
		a.Logger.Info("HTTP server listening",
			slog.String("addr", a.Server.Addr),
			slog.String("dashboard", fmt.Sprintf("http://localhost:%d/dashboard", a.Config.Server.Port)))
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	go a.openBrowserWhenReady()

	select {
	case err := <-serverErr:
		a.Stop()
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
		a.Logger.Info("Shutdown signal received")
		return a.Stop()
	}
}

// Stop shuts components down in reverse dependency order: stop
// accepting requests, drain the job queue, close the hub, flush
// telemetry.
func (a *Application) Stop() error {
	a.Logger.Info("Shutting down application")

	// Connected dashboards learn about the restart before their
	// connections drop.
	if a.WebSocketHub != nil {
		a.WebSocketHub.BroadcastStatus("shutting_down", "Server is shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()

	var firstErr error
	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			a.Logger.Error("HTTP server shutdown failed", slog.String("error", err.Error()))
			firstErr = err
		}
	}

	a.stopOnce.Do(func() { close(a.cleanupQuit) })

	if a.UpdateChecker != nil {
		a.UpdateChecker.Stop()
	}

	if a.JobQueue != nil {
		if err := a.JobQueue.Stop(jobDrainTimeout); err != nil {
			a.Logger.Warn("Job queue did not drain cleanly", slog.String("error", err.Error()))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if a.WebSocketHub != nil {
		a.WebSocketHub.Stop()
	}

	if a.OTelProviders != nil {
		otelCtx, otelCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer otelCancel()
		if err := a.OTelProviders.Shutdown(otelCtx); err != nil {
			a.Logger.Warn("OpenTelemetry shutdown failed", slog.String("error", err.Error()))
		}
	}

	a.Logger.Info("Shutdown complete")
	return firstErr
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.Start(ctx)
}

// runCleanupLoop evicts finished run state past the retention window.
func (a *Application) runCleanupLoop() {
	ticker := time.NewTicker(runCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.cleanupQuit:
			return
		case <-ticker.C:
			if removed := a.Manager.CleanupOldRuns(context.Background(), runRetention); removed > 0 {
				a.Logger.Info("Cleaned up finished runs", slog.Int("count", removed))
			}
		}
	}
}

// openBrowserWhenReady opens the dashboard once the server answers
// health checks. CCP_NO_BROWSER suppresses it for headless deployments.
func (a *Application) openBrowserWhenReady() {
	if os.Getenv(config.EnvPrefix+"_NO_BROWSER") != "" {
		return
	}

	url := fmt.Sprintf("http://localhost:%d/dashboard", a.Config.Server.Port)
	healthURL := fmt.Sprintf("http://localhost:%d/api/health", a.Config.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	for i := 0; i < 30; i++ {
		time.Sleep(500 * time.Millisecond)
		resp, err := client.Get(healthURL)
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			if err := openBrowser(url); err != nil {
				a.Logger.Debug("Could not open browser", slog.String("error", err.Error()))
			}
			return
		}
	}

	a.Logger.Debug("Server did not become healthy in time, skipping browser launch")
}

type browserMethod struct {
	name string
	args []string
}

func getBrowserOpenMethods() []browserMethod {
	switch runtime.GOOS {
	case "windows":
		return []browserMethod{
			{"cmd", []string{"/c", "start"}},
			{"rundll32", []string{"url.dll,FileProtocolHandler"}},
		}
	case "darwin":
		return []browserMethod{{"open", nil}}
	default:
		return []browserMethod{
			{"xdg-open", nil},
			{"sensible-browser", nil},
		}
	}
}

func openBrowser(url string) error {
	var lastErr error
	for _, method := range getBrowserOpenMethods() {
		args := append(append([]string{}, method.args...), url)
		if err := exec.Command(method.name, args...).Start(); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no browser launcher available")
	}
	return lastErr
}

// generateBuildID derives a short stable identifier from the build
// metadata for log and health correlation.
func generateBuildID() string {
	sum := sha256.Sum256([]byte(Version + BuildTime))
	return hex.EncodeToString(sum[:])[:12]
}
