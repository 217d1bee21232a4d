package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"callpulse/internal/analysis"
	"callpulse/internal/chart"
	"callpulse/internal/config"
	"callpulse/internal/dataset"
	"callpulse/internal/exporter"
	"callpulse/internal/infrastructure"
	"callpulse/internal/llm"
	"callpulse/internal/operations"
	"callpulse/internal/report"
	"callpulse/internal/security"
	"callpulse/pkg/contracts"
	"callpulse/pkg/contracts/domain"
)

func main() {
	var (
		input          string
		configPath     string
		outputDir      string
		format         string
		noLLM          bool
		verbose        bool
		watch          bool
		removeOutliers bool
		showVersion    bool
	)

	flag.StringVar(&input, "input", "", "CSV file or directory to analyze (required)")
	flag.StringVar(&input, "i", "", "shorthand for -input")
	flag.StringVar(&configPath, "config", "", "path to a YAML config file")
	flag.StringVar(&configPath, "c", "", "shorthand for -config")
	flag.StringVar(&outputDir, "output", "", "directory for reports and charts (defaults to the configured output dir)")
	flag.StringVar(&outputDir, "o", "", "shorthand for -output")
	flag.StringVar(&format, "format", "", "report format: html, txt, xlsx or pdf (defaults to the configured format)")
	flag.StringVar(&format, "f", "", "shorthand for -format")
	flag.BoolVar(&noLLM, "no-llm", false, "skip AI insight generation and use computed summaries")
	flag.BoolVar(&verbose, "verbose", false, "enable debug logging on the console")
	flag.BoolVar(&verbose, "v", false, "shorthand for -verbose")
	flag.BoolVar(&watch, "watch", false, "watch the input directory and analyze new CSV files as they appear")
	flag.BoolVar(&removeOutliers, "remove-outliers", false, "drop outlier rows instead of keeping them flagged")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(contracts.GetFullVersionString())
		return
	}

	if input == "" {
		fmt.Fprintln(os.Stderr, "error: -input is required")
		flag.Usage()
		os.Exit(2)
	}
	if format != "" && !isValidFormat(format) {
		fmt.Fprintf(os.Stderr, "error: unsupported format %q (want html, txt, xlsx or pdf)\n", format)
		os.Exit(2)
	}

	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFrom(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: load config %s: %v\n", configPath, err)
			os.Exit(1)
		}
	} else {
		cfg, err = config.Load()
		if err != nil {
			slog.Warn("Failed to load config, using defaults", "error", err)
			cfg = config.Default()
		}
	}

	paths, err := config.NewPaths(cfg.Paths)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: resolve paths: %v\n", err)
		os.Exit(1)
	}
	if err := paths.EnsureDirectories(); err != nil {
		fmt.Fprintf(os.Stderr, "error: create directories: %v\n", err)
		os.Exit(1)
	}

	// Structured logs go to a file so the console stays readable for
	// the stage output. Verbose mode echoes them to the console too.
	logCfg := cfg.Logging
	logCfg.FilePath = paths.GetLogPath("analyzer.log")
	logCfg.Output = "file"
	if verbose {
		logCfg.Level = "debug"
		logCfg.Output = "both"
	}
	logger, err := infrastructure.InitializeLogger(logCfg)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}

	llmCfg := cfg.LLM
	var provider llm.Provider
	if !noLLM {
		if llmCfg.ResolveAPIKey() == "" {
			keystore := security.NewKeystore(paths.DataDir, logger)
			if key, kerr := keystore.APIKey(llmCfg.Provider); kerr == nil && key != "" {
				llmCfg.APIKey = key
			}
		}
		if p, perr := llm.NewProvider(logger, llmCfg); perr != nil {
			fmt.Fprintf(os.Stderr, "warning: LLM provider unavailable (%v), falling back to computed summaries\n", perr)
			logger.Warn("LLM provider unavailable",
				slog.String("provider", llmCfg.Provider),
				slog.String("error", perr.Error()))
		} else {
			provider = p
		}
	}

	progress := newConsoleProgress(os.Stdout)
	manager, err := buildManager(logger, cfg, llmCfg, provider, progress)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	options := domain.RunOptions{
		OutputDir:      outputDir,
		Format:         format,
		SkipLLM:        noLLM,
		RemoveOutliers: removeOutliers,
	}
	if options.OutputDir == "" {
		options.OutputDir = paths.OutputDir
	}

	logger.Info("Starting analyzer",
		slog.String("input", input),
		slog.String("output_dir", options.OutputDir),
		slog.Bool("watch", watch),
		slog.Bool("skip_llm", noLLM))

	if watch {
		info, statErr := os.Stat(input)
		if statErr != nil || !info.IsDir() {
			fmt.Fprintln(os.Stderr, "error: -watch requires -input to be a directory")
			os.Exit(2)
		}
		runWatch(manager, options, input, logger)
		return
	}

	inputs, err := resolveInputs(input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	failed := 0
	for i, path := range inputs {
		if len(inputs) > 1 {
			fmt.Printf("\n=== %s (%d of %d) ===\n", filepath.Base(path), i+1, len(inputs))
		}
		opts := options
		opts.Input = path

		resp, runErr := manager.Execute(ctx, operations.Request{Options: opts})
		if runErr != nil {
			fmt.Fprintf(os.Stderr, "error: analysis of %s failed: %v\n", path, runErr)
			failed++
			continue
		}
		printRunSummary(resp)
	}

	if failed > 0 {
		fmt.Fprintf(os.Stderr, "\n%d of %d analyses failed\n", failed, len(inputs))
		os.Exit(1)
	}
}

// buildManager assembles the seven-step pipeline behind a run manager.
// The progress sink receives the same snapshots the dashboard hub would.
func buildManager(logger *slog.Logger, cfg *config.Config, llmCfg config.LLMConfig, provider llm.Provider, progress operations.WebSocketHub) (*operations.Manager, error) {
	insights := llm.NewInsightGenerator(logger, llm.InsightConfig{
		Provider:       provider,
		Model:          llmCfg.Model,
		Thresholds:     cfg.Thresholds,
		MaxConcurrency: cfg.Analysis.MaxConcurrency,
	})

	loader := dataset.NewLoader(logger, dataset.LoaderConfig{})
	validator := dataset.NewValidator(logger, dataset.ValidatorConfig{
		RequiredColumns: cfg.Data.RequiredColumns,
		MinDataPoints:   cfg.Analysis.MinDataPoints,
	})

	registry := operations.NewRegistry()
	err := operations.RegisterPipeline(registry, operations.PipelineDeps{
		Logger:     logger,
		Loader:     loader,
		Validator:  validator,
		KPIs:       analysis.NewKPIAnalyzer(logger, cfg.Thresholds),
		Correlator: analysis.NewCorrelationAnalyzer(logger, cfg.Analysis),
		Stats:      analysis.NewStatsAnalyzer(logger),
		Insights:   insights,
		Charts:     chart.NewRenderer(logger),
		Reports:    report.NewGenerator(logger, cfg.Report),
		Results:    exporter.NewResultsExporter(logger),
		Trends:     exporter.NewTrendExporter(logger),
		Data:       cfg.Data,
		Analysis:   cfg.Analysis,
		Report:     cfg.Report,
	})
	if err != nil {
		return nil, fmt.Errorf("register pipeline steps: %w", err)
	}

	return operations.NewManager(progress, registry, operations.NewConfig(), logger), nil
}

// runWatch processes CSV files dropped into dir until interrupted. Jobs
// run one at a time so the stage output stays in order.
func runWatch(manager *operations.Manager, options domain.RunOptions, dir string, logger *slog.Logger) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queue := operations.NewJobQueue(1, operations.NewMemoryJobStore(), manager, logger)
	queue.Start(ctx)

	watcher := operations.NewWatcher(operations.WatcherConfig{
		Dir:     dir,
		Options: options,
	}, queue, logger)
	if err := watcher.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Watching %s for new CSV files. Press Ctrl-C to stop.\n", dir)
	<-ctx.Done()

	fmt.Println("\nStopping...")
	watcher.Stop()
	if err := queue.Stop(30 * time.Second); err != nil {
		logger.Warn("jobs still running at shutdown", slog.String("error", err.Error()))
	}
}

// resolveInputs expands a directory input into its CSV files, sorted by
// name so date-stamped exports process in order.
func resolveInputs(input string) ([]string, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, fmt.Errorf("input %s: %w", input, err)
	}
	if !info.IsDir() {
		return []string{input}, nil
	}

	matches, err := filepath.Glob(filepath.Join(input, "*.csv"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no CSV files found in %s", input)
	}
	sort.Strings(matches)
	return matches, nil
}

func printRunSummary(resp *operations.Response) {
	fmt.Printf("\nAnalysis completed in %s\n", resp.Duration.Round(time.Millisecond))
	if resp.Artifacts == nil {
		return
	}

	if path := resp.Artifacts.ReportPath(); path != "" {
		fmt.Printf("Report: %s\n", path)
	}

	charts := resp.Artifacts.ChartPaths()
	if len(charts) > 0 {
		names := make([]string, 0, len(charts))
		for name := range charts {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Printf("Charts (%d):\n", len(charts))
		for _, name := range names {
			fmt.Printf("  %s\n", charts[name])
		}
	}

	for _, path := range resp.Artifacts.ExportPaths() {
		fmt.Printf("Export: %s\n", path)
	}
}

func isValidFormat(format string) bool {
	switch format {
	case "html", "txt", "xlsx", "pdf":
		return true
	}
	return false
}

// consoleProgress prints stage transitions as numbered lines. It plugs
// into the run manager where the dashboard would attach its hub.
type consoleProgress struct {
	mu   sync.Mutex
	out  io.Writer
	seen map[string]map[string]string
}

func newConsoleProgress(out io.Writer) *consoleProgress {
	return &consoleProgress{
		out:  out,
		seen: make(map[string]map[string]string),
	}
}

// BroadcastUpdate receives run snapshots. Each step is announced once
// when it starts, its completion message indented beneath it; skipped
// steps are announced with the reason.
func (c *consoleProgress) BroadcastUpdate(eventType, runID, action string, payload interface{}) {
	snapshot, ok := payload.(*operations.RunSnapshot)
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	steps := c.seen[runID]
	if steps == nil {
		steps = make(map[string]string)
		c.seen[runID] = steps
	}

	total := len(snapshot.Steps)
	for i, step := range snapshot.Steps {
		switch step.Status {
		case "running":
			if steps[step.ID] == "" {
				fmt.Fprintf(c.out, "[%d/%d] %s\n", i+1, total, step.Name)
				steps[step.ID] = "running"
			}
		case "completed":
			if steps[step.ID] != "completed" {
				if steps[step.ID] == "" {
					fmt.Fprintf(c.out, "[%d/%d] %s\n", i+1, total, step.Name)
				}
				if step.Message != "" {
					fmt.Fprintf(c.out, "      %s\n", step.Message)
				}
				steps[step.ID] = "completed"
			}
		case "skipped":
			if steps[step.ID] != "skipped" {
				reason := step.Message
				if reason == "" {
					reason = "skipped"
				}
				fmt.Fprintf(c.out, "[%d/%d] %s (%s)\n", i+1, total, step.Name, reason)
				steps[step.ID] = "skipped"
			}
		}
	}
}
