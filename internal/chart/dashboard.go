package chart

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	apperrors "callpulse/internal/errors"
	"callpulse/pkg/contracts/domain"
)

const (
	dashboardWidth  = 12 * vg.Inch
	dashboardHeight = 9 * vg.Inch

	// topMetrics caps how many bars a category panel shows.
	topMetrics = 5
	// overviewMetrics caps how many bars per category the combined
	// panel shows.
	overviewMetrics = 3
)

// KPIDashboard renders a four panel overview: performance metrics,
// quality metrics, a combined top-metric comparison and a text
// summary. Panels for an empty category are left blank.
func (r *Renderer) KPIDashboard(kpis domain.KPISet, path string) (string, error) {
	if kpis.Count() == 0 {
		return "", apperrors.NewReportError("no metrics to chart", nil)
	}

	panels := make([][]*plot.Plot, 2)
	panels[0] = make([]*plot.Plot, 2)
	panels[1] = make([]*plot.Plot, 2)

	var err error
	if len(kpis.Performance) > 0 {
		panels[0][0], err = barPanel("Performance Metrics", kpis.Performance, colorSkyBlue)
		if err != nil {
			return "", apperrors.NewReportError("render performance panel", err)
		}
	}
	if len(kpis.Quality) > 0 {
		panels[0][1], err = barPanel("Quality Metrics", kpis.Quality, colorLightCoral)
		if err != nil {
			return "", apperrors.NewReportError("render quality panel", err)
		}
	}
	panels[1][0], err = overviewPanel(kpis)
	if err != nil {
		return "", apperrors.NewReportError("render overview panel", err)
	}
	panels[1][1], err = summaryPanel(kpis)
	if err != nil {
		return "", apperrors.NewReportError("render summary panel", err)
	}

	img := vgimg.NewWith(vgimg.UseWH(dashboardWidth, dashboardHeight), vgimg.UseDPI(chartDPI))
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: 2,
		Cols: 2,
		PadX: vg.Points(12),
		PadY: vg.Points(12),
	}

	canvases := plot.Align(panels, tiles, dc)
	for row := range panels {
		for col := range panels[row] {
			if panels[row][col] == nil {
				continue
			}
			panels[row][col].Draw(canvases[row][col])
		}
	}

	return writeCanvas(img, path)
}

// barPanel draws one metric category as horizontal bars, largest
// metric count capped at topMetrics.
func barPanel(title string, metrics map[string]float64, fill color.Color) (*plot.Plot, error) {
	names := sortedNames(metrics)
	if len(names) > topMetrics {
		names = names[:topMetrics]
	}

	values := make(plotter.Values, len(names))
	for i, name := range names {
		values[i] = metrics[name]
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Value"

	bars, err := plotter.NewBarChart(values, vg.Points(18))
	if err != nil {
		return nil, err
	}
	bars.Horizontal = true
	bars.Color = fill
	bars.LineStyle.Width = 0

	p.Add(bars)
	p.NominalY(names...)
	return p, nil
}

// overviewPanel draws the top metrics of both categories side by side,
// colored by category.
func overviewPanel(kpis domain.KPISet) (*plot.Plot, error) {
	var (
		names  []string
		values []float64
		fills  []color.Color
	)
	for _, name := range truncate(sortedNames(kpis.Performance), overviewMetrics) {
		names = append(names, name)
		values = append(values, kpis.Performance[name])
		fills = append(fills, colorSkyBlue)
	}
	for _, name := range truncate(sortedNames(kpis.Quality), overviewMetrics) {
		names = append(names, name)
		values = append(values, kpis.Quality[name])
		fills = append(fills, colorLightCoral)
	}

	p := plot.New()
	p.Title.Text = "Top Metrics Overview"
	p.Y.Label.Text = "Value"

	// One chart per bar so each bar keeps its category color.
	for i := range values {
		single := make(plotter.Values, len(values))
		single[i] = values[i]
		bars, err := plotter.NewBarChart(single, vg.Points(22))
		if err != nil {
			return nil, err
		}
		bars.Color = fills[i]
		bars.LineStyle.Width = 0
		p.Add(bars)
	}
	p.NominalX(names...)
	return p, nil
}

// summaryPanel renders headline numbers as text on a blank plot.
func summaryPanel(kpis domain.KPISet) (*plot.Plot, error) {
	lines := []string{
		fmt.Sprintf("Performance metrics: %d", len(kpis.Performance)),
		fmt.Sprintf("Quality metrics: %d", len(kpis.Quality)),
	}
	for _, name := range truncate(sortedNames(kpis.Performance), 2) {
		lines = append(lines, fmt.Sprintf("%s: %.2f", name, kpis.Performance[name]))
	}
	for _, name := range truncate(sortedNames(kpis.Quality), 2) {
		lines = append(lines, fmt.Sprintf("%s: %.2f", name, kpis.Quality[name]))
	}

	xys := make(plotter.XYs, len(lines))
	for i := range lines {
		xys[i] = plotter.XY{X: 0.05, Y: float64(len(lines) - i)}
	}
	labels, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: lines})
	if err != nil {
		return nil, err
	}

	p := plot.New()
	p.Title.Text = "Summary"
	p.HideAxes()
	p.Add(labels)
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, float64(len(lines)+1)
	return p, nil
}

func truncate(names []string, n int) []string {
	if len(names) > n {
		return names[:n]
	}
	return names
}
