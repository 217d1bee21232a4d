package report

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callpulse/internal/config"
	apperrors "callpulse/internal/errors"
)

func TestGenerate_DefaultsToHTML(t *testing.T) {
	g := NewGenerator(nil, config.ReportConfig{})
	dir := t.TempDir()

	path, err := g.Generate(context.Background(), sampleData(), dir, "")

	require.NoError(t, err)
	name := filepath.Base(path)
	assert.True(t, strings.HasPrefix(name, config.ReportFilePrefix+"_"), name)
	assert.True(t, strings.HasSuffix(name, ".html"), name)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestGenerate_ConfiguredFormat(t *testing.T) {
	g := NewGenerator(nil, config.ReportConfig{Format: FormatText})
	dir := t.TempDir()

	path, err := g.Generate(context.Background(), sampleData(), dir, "")

	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".txt"), path)
}

func TestGenerate_ExplicitFormatOverridesConfig(t *testing.T) {
	g := NewGenerator(nil, config.ReportConfig{Format: FormatText})
	dir := t.TempDir()

	path, err := g.Generate(context.Background(), sampleData(), dir, FormatXLSX)

	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".xlsx"), path)
}

func TestGenerate_UnsupportedFormat(t *testing.T) {
	g := NewGenerator(nil, config.ReportConfig{})

	_, err := g.Generate(context.Background(), sampleData(), t.TempDir(), "docx")

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedFormat)
}

func TestGenerate_CreatesOutputDir(t *testing.T) {
	g := NewGenerator(nil, config.ReportConfig{})
	dir := filepath.Join(t.TempDir(), "nested", "outputs")

	path, err := g.Generate(context.Background(), sampleData(), dir, FormatText)

	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
}

func TestIsChromeMissing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "exec not found", err: &exec.Error{Name: "google-chrome", Err: exec.ErrNotFound}, want: true},
		{name: "wrapped message", err: errors.New(`exec: "chromium": executable file not found in $PATH`), want: true},
		{name: "print failure", err: errors.New("page load timed out"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isChromeMissing(tt.err))
		})
	}
}
