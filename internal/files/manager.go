package files

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"callpulse/internal/config"
	"callpulse/internal/infrastructure"
)

// reportExts are the artifact types the report listing exposes.
var reportExts = map[string]bool{
	".html": true,
	".txt":  true,
	".xlsx": true,
	".pdf":  true,
	".csv":  true,
}

// ErrNotFound is returned when a named dataset or report does not exist.
var ErrNotFound = errors.New("file not found")

// Manager performs dataset and artifact file operations rooted at the
// configured paths. Request-supplied names never reach the filesystem
// without passing safeName.
type Manager struct {
	paths  *config.Paths
	logger *slog.Logger
}

// NewManager creates a file manager over the application paths.
func NewManager(paths *config.Paths, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &Manager{
		paths:  paths,
		logger: logger.With(slog.String("component", "files")),
	}
}

// OutputDir returns the directory run artifacts are written to.
func (m *Manager) OutputDir() string {
	return m.paths.OutputDir
}

// SaveUpload stores an uploaded dataset in the uploads directory under
// a sanitized, timestamped name and returns the stored file's info.
// The returned Name is the dataset ID used by the run API.
func (m *Manager) SaveUpload(filename string, r io.Reader) (FileInfo, error) {
	name := sanitizeUploadName(filename)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	if err := os.MkdirAll(m.paths.UploadsDir, 0o755); err != nil {
		return FileInfo{}, fmt.Errorf("create uploads directory: %w", err)
	}

	stamp := time.Now().Format("20060102_150405")
	stored := fmt.Sprintf("%s_%s%s", stem, stamp, ext)
	for i := 1; config.FileExists(m.paths.GetUploadPath(stored)); i++ {
		stored = fmt.Sprintf("%s_%s_%d%s", stem, stamp, i, ext)
	}
	path := m.paths.GetUploadPath(stored)

	dst, err := os.Create(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("create upload file: %w", err)
	}

	written, err := io.Copy(dst, r)
	if err != nil {
		dst.Close()
		os.Remove(path)
		return FileInfo{}, fmt.Errorf("write upload: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return FileInfo{}, fmt.Errorf("close upload file: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("stat upload: %w", err)
	}

	m.logger.Info("upload stored",
		slog.String("original", filename),
		slog.String("dataset", stored),
		slog.Int64("bytes", written))

	return FileInfo{Path: path, Name: stored, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// ListUploads lists the stored datasets, newest first.
func (m *Manager) ListUploads() ([]FileInfo, error) {
	uploads, err := ListByExt(m.paths.UploadsDir, ".csv")
	if err != nil {
		return nil, err
	}
	SortByModTime(uploads)
	return uploads, nil
}

// UploadPath resolves a dataset ID to its path. The dataset must exist.
func (m *Manager) UploadPath(name string) (string, error) {
	if err := safeName(name); err != nil {
		return "", err
	}
	path := m.paths.GetUploadPath(name)
	if !config.FileExists(path) {
		return "", fmt.Errorf("dataset %s: %w", name, ErrNotFound)
	}
	return path, nil
}

// RemoveUpload deletes a stored dataset.
func (m *Manager) RemoveUpload(name string) error {
	path, err := m.UploadPath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove dataset %s: %w", name, err)
	}
	m.logger.Info("upload removed", slog.String("dataset", name))
	return nil
}

// ListReports lists generated report artifacts, newest first. The
// charts subdirectory is not part of the listing.
func (m *Manager) ListReports() ([]FileInfo, error) {
	entries, err := os.ReadDir(m.paths.OutputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read output directory: %w", err)
	}

	var reports []FileInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !reportExts[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		reports = append(reports, FileInfo{
			Path:    filepath.Join(m.paths.OutputDir, name),
			Name:    name,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	SortByModTime(reports)
	return reports, nil
}

// ListCharts lists rendered chart images, newest first.
func (m *Manager) ListCharts() ([]FileInfo, error) {
	charts, err := ListByExt(m.paths.ChartsDir, ".png")
	if err != nil {
		return nil, err
	}
	SortByModTime(charts)
	return charts, nil
}

// ReportInfo stats a single report artifact by name.
func (m *Manager) ReportInfo(name string) (FileInfo, error) {
	if err := safeName(name); err != nil {
		return FileInfo{}, err
	}
	path := m.paths.GetReportPath(name)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileInfo{}, fmt.Errorf("report %s: %w", name, ErrNotFound)
		}
		return FileInfo{}, fmt.Errorf("stat report %s: %w", name, err)
	}
	if info.IsDir() {
		return FileInfo{}, fmt.Errorf("report %s: %w", name, ErrNotFound)
	}
	return FileInfo{Path: path, Name: name, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// OpenReport opens a report artifact for streaming. The caller closes
// the returned file.
func (m *Manager) OpenReport(name string) (*os.File, FileInfo, error) {
	info, err := m.ReportInfo(name)
	if err != nil {
		return nil, FileInfo{}, err
	}
	f, err := os.Open(info.Path)
	if err != nil {
		return nil, FileInfo{}, fmt.Errorf("open report %s: %w", name, err)
	}
	return f, info, nil
}

// safeName rejects names that could escape their directory.
func safeName(name string) error {
	if name == "" {
		return errors.New("file name cannot be empty")
	}
	if name != filepath.Base(name) || strings.Contains(name, "..") || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid file name %q", name)
	}
	return nil
}

// sanitizeUploadName reduces a client-supplied filename to a safe stem
// plus extension.
func sanitizeUploadName(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	ext := strings.ToLower(filepath.Ext(base))
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	var b strings.Builder
	for _, r := range stem {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ', r == '.':
			b.WriteRune('_')
		}
	}

	clean := strings.Trim(b.String(), "_")
	if len(clean) > 100 {
		clean = clean[:100]
	}
	if clean == "" {
		clean = "dataset"
	}
	if ext == "" {
		ext = ".csv"
	}
	return clean + ext
}
