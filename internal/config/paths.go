package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Paths contains all the application paths.
// This is the single source of truth for file locations: raw data,
// uploaded datasets, generated reports and charts, and logs.
type Paths struct {
	BaseDir    string
	DataDir    string
	UploadsDir string
	OutputDir  string
	ChartsDir  string
	LogsDir    string
	WebDir     string
}

// NewPaths resolves the application paths from configuration. An empty
// BaseDir resolves against the current working directory; relative
// sub-paths hang off the base.
func NewPaths(cfg PathsConfig) (*Paths, error) {
	base := cfg.BaseDir
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("get working directory: %w", err)
		}
		base = wd
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}

	join := func(p, fallback string) string {
		if p == "" {
			p = fallback
		}
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(abs, p)
	}

	outputDir := join(cfg.OutputDir, DefaultOutputDir)
	return &Paths{
		BaseDir:    abs,
		DataDir:    join(cfg.DataDir, DefaultDataDir),
		UploadsDir: join(cfg.UploadsDir, DefaultUploadsDir),
		OutputDir:  outputDir,
		ChartsDir:  filepath.Join(outputDir, "charts"),
		LogsDir:    join(cfg.LogsDir, DefaultLogsDir),
		WebDir:     join(cfg.WebDir, DefaultWebDir),
	}, nil
}

// EnsureDirectories creates all required directories.
func (p *Paths) EnsureDirectories() error {
	dirs := []string{p.DataDir, p.UploadsDir, p.OutputDir, p.ChartsDir, p.LogsDir}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// GetLogPath returns the path of a log file inside the logs directory.
func (p *Paths) GetLogPath(filename string) string {
	return filepath.Join(p.LogsDir, filename)
}

// GetUploadPath returns the path of an uploaded dataset file.
func (p *Paths) GetUploadPath(filename string) string {
	return filepath.Join(p.UploadsDir, filename)
}

// GetReportPath returns the path of a generated report file.
func (p *Paths) GetReportPath(filename string) string {
	return filepath.Join(p.OutputDir, filename)
}

// GetChartPath returns the path of a generated chart image.
func (p *Paths) GetChartPath(filename string) string {
	return filepath.Join(p.ChartsDir, filename)
}

// ReportFileName builds the timestamped name of a report artifact.
func ReportFileName(format string, at time.Time) string {
	return fmt.Sprintf("%s_%s.%s", ReportFilePrefix, at.Format(ReportTimestampText), format)
}

// FileExists checks if a file exists at the given path.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
