package exporter

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readCSV reads a CSV file back, skipping the UTF-8 BOM when present.
func readCSV(t *testing.T, path string) [][]string {
	t.Helper()

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	content = bytes.TrimPrefix(content, utf8BOM)

	records, err := csv.NewReader(bytes.NewReader(content)).ReadAll()
	require.NoError(t, err)
	return records
}

func TestWriteCSV(t *testing.T) {
	tests := []struct {
		name     string
		options  WriteOptions
		wantBOM  bool
		wantRows [][]string
	}{
		{
			name: "headers and records with BOM",
			options: WriteOptions{
				Headers:   []string{"metric", "value"},
				Records:   [][]string{{"aht", "312.50"}, {"fcr_rate", "0.78"}},
				BOMPrefix: true,
			},
			wantBOM: true,
			wantRows: [][]string{
				{"metric", "value"},
				{"aht", "312.50"},
				{"fcr_rate", "0.78"},
			},
		},
		{
			name: "no BOM",
			options: WriteOptions{
				Headers: []string{"a", "b"},
				Records: [][]string{{"1", "2"}},
			},
			wantBOM: false,
			wantRows: [][]string{
				{"a", "b"},
				{"1", "2"},
			},
		},
		{
			name: "records with quoting and unicode",
			options: WriteOptions{
				Headers:   []string{"agent", "note"},
				Records:   [][]string{{"Company, Inc", "said \"fine\""}, {"Ångström", "€12"}},
				BOMPrefix: true,
			},
			wantBOM: true,
			wantRows: [][]string{
				{"agent", "note"},
				{"Company, Inc", "said \"fine\""},
				{"Ångström", "€12"},
			},
		},
		{
			name: "headers only",
			options: WriteOptions{
				Headers:   []string{"only", "headers"},
				BOMPrefix: true,
			},
			wantBOM:  true,
			wantRows: [][]string{{"only", "headers"}},
		},
	}

	writer := NewCSVWriter(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out.csv")
			require.NoError(t, writer.WriteCSV(path, tt.options))

			content, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, tt.wantBOM, bytes.HasPrefix(content, utf8BOM))
			assert.Equal(t, tt.wantRows, readCSV(t, path))
		})
	}
}

func TestWriteCSV_CreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "out.csv")

	writer := NewCSVWriter(nil)
	err := writer.WriteCSV(path, WriteOptions{Headers: []string{"x"}})
	require.NoError(t, err)

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestWriteSimpleCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "simple.csv")

	writer := NewCSVWriter(nil)
	err := writer.WriteSimpleCSV(path, []string{"h1", "h2"}, [][]string{{"v1", "v2"}})
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(content, utf8BOM), "simple writes carry a BOM for Excel")

	records := readCSV(t, path)
	assert.Equal(t, [][]string{{"h1", "h2"}, {"v1", "v2"}}, records)
}

func TestAppendToCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "append.csv")
	writer := NewCSVWriter(nil)

	err := writer.WriteSimpleCSV(path, []string{"metric", "value"}, [][]string{{"aht", "310.00"}})
	require.NoError(t, err)

	err = writer.AppendToCSV(path, [][]string{{"aht", "305.20"}, {"aht", "298.75"}})
	require.NoError(t, err)

	records := readCSV(t, path)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"metric", "value"}, records[0])
	assert.Equal(t, []string{"aht", "298.75"}, records[3])

	// Appending must not insert a second BOM mid-file.
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, bytes.Count(content, utf8BOM))
}

func TestCreateStreamWriter(t *testing.T) {
	tests := []struct {
		name    string
		headers []string
		want    [][]string
	}{
		{
			name:    "with headers",
			headers: []string{"date", "calls"},
			want:    [][]string{{"date", "calls"}},
		},
		{
			name:    "nil headers",
			headers: nil,
			want:    nil,
		},
	}

	writer := NewCSVWriter(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "stream.csv")

			stream, err := writer.CreateStreamWriter(path, tt.headers)
			require.NoError(t, err)
			require.NoError(t, stream.Close())

			content, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.True(t, bytes.HasPrefix(content, utf8BOM))
			assert.Equal(t, tt.want, readCSV(t, path))
		})
	}
}

func TestStreamWriter_WriteRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.csv")
	writer := NewCSVWriter(nil)

	headers := []string{"call_id", "duration", "resolved"}
	stream, err := writer.CreateStreamWriter(path, headers)
	require.NoError(t, err)

	rows := [][]string{
		{"c-0001", "312.5", "true"},
		{"c-0002", "128.0", "false"},
		{"multi\nline", "note, with comma", "\"quoted\""},
	}
	for _, row := range rows {
		require.NoError(t, stream.WriteRecord(row))
	}
	require.NoError(t, stream.Close())

	records := readCSV(t, path)
	require.Len(t, records, len(rows)+1)
	assert.Equal(t, headers, records[0])
	assert.Equal(t, rows[2], records[3])
}

func TestStreamWriter_CloseTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "double_close.csv")
	writer := NewCSVWriter(nil)

	stream, err := writer.CreateStreamWriter(path, []string{"a"})
	require.NoError(t, err)
	require.NoError(t, stream.WriteRecord([]string{"1"}))

	assert.NoError(t, stream.Close())
	assert.NoError(t, stream.Close())
}
