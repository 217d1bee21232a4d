// Package validation checks files and directories before the pipeline
// touches them: CLI input arguments, output locations, and uploaded
// datasets.
package validation

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"callpulse/internal/infrastructure"
)

// FileValidator validates dataset files and working directories.
type FileValidator struct {
	logger *slog.Logger
}

// NewFileValidator creates a new file validator.
func NewFileValidator(logger *slog.Logger) *FileValidator {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &FileValidator{
		logger: logger.With(slog.String("component", "validation")),
	}
}

// ValidateInputDirectory checks that the input directory exists and
// reports how many files match the pattern. No matching files is not
// an error; the caller decides whether an empty input matters.
func (v *FileValidator) ValidateInputDirectory(dir string, requiredPattern string) error {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return fmt.Errorf("input directory %s does not exist", dir)
	}
	if err != nil {
		return fmt.Errorf("stat directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	if requiredPattern != "" {
		matches, err := filepath.Glob(filepath.Join(dir, requiredPattern))
		if err != nil {
			return fmt.Errorf("check for files: %w", err)
		}
		if len(matches) == 0 {
			v.logger.Warn("no files matching pattern found",
				slog.String("directory", dir),
				slog.String("pattern", requiredPattern))
			return nil
		}
		v.logger.Info("input directory validated",
			slog.String("directory", dir),
			slog.Int("files_found", len(matches)),
			slog.String("pattern", requiredPattern))
	}

	return nil
}

// ValidateOutputDirectory ensures the output directory exists and is
// writable, creating it when missing.
func (v *FileValidator) ValidateOutputDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory %s: %w", dir, err)
	}

	// A stat alone does not prove writability
	testFile := filepath.Join(dir, ".write_test")
	file, err := os.Create(testFile)
	if err != nil {
		return fmt.Errorf("output directory %s is not writable: %w", dir, err)
	}
	file.Close()
	os.Remove(testFile)

	v.logger.Debug("output directory validated", slog.String("directory", dir))
	return nil
}

// ValidateFile checks that a file exists and is readable.
func (v *FileValidator) ValidateFile(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("file %s does not exist", path)
	}
	if err != nil {
		return fmt.Errorf("stat file %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, not a file", path)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("file %s is not readable: %w", path, err)
	}
	file.Close()

	v.logger.Debug("file validated",
		slog.String("file", path),
		slog.Int64("size", info.Size()))
	return nil
}

// ValidateCSVFile checks that a path points at a readable CSV file.
func (v *FileValidator) ValidateCSVFile(path string) error {
	if err := v.ValidateFile(path); err != nil {
		return err
	}

	if ext := strings.ToLower(filepath.Ext(path)); ext != ".csv" {
		return fmt.Errorf("file %s is not a CSV file (extension: %s)", path, ext)
	}

	return nil
}

// CountFiles counts the files matching a pattern in a directory.
func (v *FileValidator) CountFiles(dir string, pattern string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return 0, fmt.Errorf("count files: %w", err)
	}

	count := 0
	for _, match := range matches {
		info, err := os.Stat(match)
		if err == nil && !info.IsDir() {
			count++
		}
	}
	return count, nil
}

// ValidateUpload checks an incoming dataset upload before it is
// stored: CSV extension, non-empty, within the size cap.
func (v *FileValidator) ValidateUpload(filename string, size, maxBytes int64) error {
	if filename == "" {
		return fmt.Errorf("upload has no file name")
	}
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if ext := strings.ToLower(filepath.Ext(base)); ext != ".csv" {
		return fmt.Errorf("upload %s is not a CSV file (extension: %s)", base, ext)
	}
	if size == 0 {
		return fmt.Errorf("upload %s is empty", base)
	}
	if maxBytes > 0 && size > maxBytes {
		return fmt.Errorf("upload %s exceeds the %d byte limit (%d bytes)", base, maxBytes, size)
	}

	v.logger.Debug("upload validated",
		slog.String("file", base),
		slog.Int64("size", size))
	return nil
}
