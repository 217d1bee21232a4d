package files

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileInfo describes a discovered file.
type FileInfo struct {
	Path    string    `json:"path"`
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// ListByExt returns the files in dir with the given extension (.csv,
// .png, ...), sorted by name. A missing directory is not an error.
func ListByExt(dir, ext string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}

	ext = strings.ToLower(ext)
	var files []FileInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.ToLower(filepath.Ext(name)) != ext {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Path:    filepath.Join(dir, name),
			Name:    name,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// ListByPattern returns the files in dir matching a glob pattern,
// sorted by name.
func ListByPattern(dir, pattern string) ([]FileInfo, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
	}

	var files []FileInfo
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, FileInfo{
			Path:    match,
			Name:    filepath.Base(match),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// SortByModTime orders files newest first, in place.
func SortByModTime(files []FileInfo) {
	sort.Slice(files, func(i, j int) bool {
		return files[i].ModTime.After(files[j].ModTime)
	})
}

// Newest returns the most recently modified file from a list.
func Newest(files []FileInfo) (FileInfo, bool) {
	if len(files) == 0 {
		return FileInfo{}, false
	}
	latest := files[0]
	for _, file := range files[1:] {
		if file.ModTime.After(latest.ModTime) {
			latest = file
		}
	}
	return latest, true
}

// ResolveCSVInputs turns an input argument into the list of CSV paths
// to load. A file path yields itself; a directory yields its CSV files
// in name order. An input with no CSVs is an error.
func ResolveCSVInputs(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("input %s does not exist", path)
		}
		return nil, fmt.Errorf("stat input %s: %w", path, err)
	}

	if !info.IsDir() {
		if strings.ToLower(filepath.Ext(path)) != ".csv" {
			return nil, fmt.Errorf("input %s is not a CSV file", path)
		}
		return []string{path}, nil
	}

	found, err := ListByExt(path, ".csv")
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("no CSV files found in %s", path)
	}

	paths := make([]string, len(found))
	for i, f := range found {
		paths[i] = f.Path
	}
	return paths, nil
}
