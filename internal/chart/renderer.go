// Package chart renders analysis results to PNG files. Charts are
// built with gonum/plot and written at print resolution so they can be
// embedded in HTML and XLSX reports directly.
package chart

import (
	"context"
	"image/color"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	apperrors "callpulse/internal/errors"
	"callpulse/pkg/contracts/domain"
)

// chartDPI is the raster resolution for every rendered chart.
const chartDPI = 300

// Standard chart file names produced by GenerateAll.
const (
	FileDashboard = "kpi_dashboard.png"
	FileHeatmap   = "correlation_heatmap.png"
	FileTrends    = "kpi_trends.png"
)

var (
	colorSkyBlue    = color.RGBA{R: 0x87, G: 0xce, B: 0xeb, A: 0xff}
	colorLightCoral = color.RGBA{R: 0xf0, G: 0x80, B: 0x80, A: 0xff}
	colorGreen      = color.RGBA{R: 0x2e, G: 0x7d, B: 0x32, A: 0xff}
	colorRed        = color.RGBA{R: 0xc6, G: 0x28, B: 0x28, A: 0xff}
)

// Renderer turns analysis results into chart files.
type Renderer struct {
	logger *slog.Logger
}

// NewRenderer creates a chart renderer.
func NewRenderer(logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{logger: logger}
}

// GenerateAll renders the standard report chart set into dir and
// returns chart name to file path. Charts whose input is missing are
// skipped; a failed chart is logged and skipped rather than failing
// the remaining set.
func (r *Renderer) GenerateAll(ctx context.Context, kpis domain.KPISet, matrix domain.CorrelationMatrix, trends []domain.Trend, dir string) (map[string]string, error) {
	start := time.Now()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.NewReportError("create charts directory", err)
	}

	charts := make(map[string]string)

	if kpis.Count() > 0 {
		path, err := r.KPIDashboard(kpis, filepath.Join(dir, FileDashboard))
		if err != nil {
			r.logger.WarnContext(ctx, "dashboard chart skipped", slog.String("error", err.Error()))
		} else {
			charts["dashboard"] = path
		}
	}

	if len(matrix.Columns) > 1 {
		path, err := r.CorrelationHeatmap(matrix, filepath.Join(dir, FileHeatmap))
		if err != nil {
			r.logger.WarnContext(ctx, "heatmap chart skipped", slog.String("error", err.Error()))
		} else {
			charts["heatmap"] = path
		}
	}

	if len(trends) > 0 {
		path, err := r.TrendLines(trends, filepath.Join(dir, FileTrends))
		if err != nil {
			r.logger.WarnContext(ctx, "trend chart skipped", slog.String("error", err.Error()))
		} else {
			charts["trends"] = path
		}
	}

	r.logger.InfoContext(ctx, "charts generated",
		slog.Int("count", len(charts)),
		slog.String("dir", dir),
		slog.Duration("duration", time.Since(start)),
	)

	return charts, nil
}

// savePNG rasterizes a single plot at chartDPI and writes it to path.
func savePNG(p *plot.Plot, width, height vg.Length, path string) (string, error) {
	img := vgimg.NewWith(vgimg.UseWH(width, height), vgimg.UseDPI(chartDPI))
	p.Draw(draw.New(img))
	return writeCanvas(img, path)
}

// writeCanvas writes a rendered canvas to path as PNG.
func writeCanvas(img *vgimg.Canvas, path string) (string, error) {
	f, err := os.Create(path)
	if err != nil {
		return "", apperrors.NewReportError("create chart file", err)
	}
	defer f.Close()

	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(f); err != nil {
		return "", apperrors.NewReportError("write chart png", err)
	}

	return path, nil
}

// sortedNames returns map keys in stable order.
func sortedNames(metrics map[string]float64) []string {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// finiteValues drops NaN and infinite entries.
func finiteValues(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, v)
	}
	return out
}
