package chart

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	apperrors "callpulse/internal/errors"
	"callpulse/pkg/contracts/domain"
)

const (
	wideWidth   = 12 * vg.Inch
	wideHeight  = 5 * vg.Inch
	panelWidth  = 9 * vg.Inch
	panelHeight = 5 * vg.Inch

	// maxTrendLines caps how many metrics one trend chart carries
	// before it becomes unreadable.
	maxTrendLines = 5

	histogramBins = 30
)

// TrendLines renders one line per metric over its time buckets. At
// most maxTrendLines metrics are drawn.
func (r *Renderer) TrendLines(trends []domain.Trend, path string) (string, error) {
	if len(trends) == 0 {
		return "", apperrors.NewReportError("no trends to chart", nil)
	}
	if len(trends) > maxTrendLines {
		trends = trends[:maxTrendLines]
	}

	p := plot.New()
	p.Title.Text = "KPI Trends"
	p.X.Label.Text = "Period"
	p.Y.Label.Text = "Value"
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02"}
	p.Legend.Top = true

	for i, trend := range trends {
		xys := make(plotter.XYs, 0, len(trend.Buckets))
		for _, bucket := range trend.Buckets {
			xys = append(xys, plotter.XY{
				X: float64(bucket.Period.Unix()),
				Y: bucket.Mean,
			})
		}
		if len(xys) == 0 {
			continue
		}

		line, points, err := plotter.NewLinePoints(xys)
		if err != nil {
			return "", apperrors.NewReportError("render trend line", err)
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1.5)
		points.Shape = plotutil.Shape(i)
		points.Color = plotutil.Color(i)

		p.Add(line, points)
		p.Legend.Add(trend.Metric, line, points)
	}

	return savePNG(p, wideWidth, wideHeight, path)
}

// Distribution renders a histogram and a box plot of one column side
// by side.
func (r *Renderer) Distribution(column string, values []float64, path string) (string, error) {
	values = finiteValues(values)
	if len(values) < 2 {
		return "", apperrors.NewReportError("not enough values for a distribution chart", nil)
	}

	histPanel := plot.New()
	histPanel.Title.Text = fmt.Sprintf("Distribution of %s", column)
	histPanel.X.Label.Text = column
	histPanel.Y.Label.Text = "Frequency"

	hist, err := plotter.NewHist(plotter.Values(values), histogramBins)
	if err != nil {
		return "", apperrors.NewReportError("render histogram", err)
	}
	hist.FillColor = colorSkyBlue
	histPanel.Add(hist)

	boxPanel := plot.New()
	boxPanel.Title.Text = fmt.Sprintf("Box Plot of %s", column)
	boxPanel.Y.Label.Text = column

	box, err := plotter.NewBoxPlot(vg.Points(50), 0, plotter.Values(values))
	if err != nil {
		return "", apperrors.NewReportError("render box plot", err)
	}
	boxPanel.Add(box)
	boxPanel.NominalX(column)

	img := vgimg.NewWith(vgimg.UseWH(wideWidth, wideHeight), vgimg.UseDPI(chartDPI))
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: 1,
		Cols: 2,
		PadX: vg.Points(12),
	}

	panels := [][]*plot.Plot{{histPanel, boxPanel}}
	canvases := plot.Align(panels, tiles, dc)
	histPanel.Draw(canvases[0][0])
	boxPanel.Draw(canvases[0][1])

	return writeCanvas(img, path)
}

// Comparison renders labeled deltas as bars, green above zero and red
// below.
func (r *Renderer) Comparison(title string, deltas map[string]float64, path string) (string, error) {
	if len(deltas) == 0 {
		return "", apperrors.NewReportError("no deltas to chart", nil)
	}

	names := make([]string, 0, len(deltas))
	for name := range deltas {
		names = append(names, name)
	}
	sort.Strings(names)

	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = "Change"

	// One chart per bar so each bar is colored by its sign.
	for i, name := range names {
		single := make(plotter.Values, len(names))
		single[i] = deltas[name]
		bars, err := plotter.NewBarChart(single, vg.Points(22))
		if err != nil {
			return "", apperrors.NewReportError("render comparison bars", err)
		}
		if deltas[name] >= 0 {
			bars.Color = colorGreen
		} else {
			bars.Color = colorRed
		}
		bars.LineStyle.Width = 0
		p.Add(bars)
	}
	p.NominalX(names...)

	return savePNG(p, panelWidth, panelHeight, path)
}

// Scatter renders one column against another.
func (r *Renderer) Scatter(xName, yName string, xs, ys []float64, path string) (string, error) {
	if len(xs) != len(ys) {
		return "", apperrors.NewReportError("scatter inputs have different lengths", nil)
	}

	xys := make(plotter.XYs, 0, len(xs))
	for i := range xs {
		if math.IsNaN(xs[i]) || math.IsNaN(ys[i]) {
			continue
		}
		xys = append(xys, plotter.XY{X: xs[i], Y: ys[i]})
	}
	if len(xys) == 0 {
		return "", apperrors.NewReportError("no points to chart", nil)
	}

	points, err := plotter.NewScatter(xys)
	if err != nil {
		return "", apperrors.NewReportError("render scatter", err)
	}
	points.GlyphStyle.Color = colorSkyBlue
	points.GlyphStyle.Radius = vg.Points(2.5)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s vs %s", xName, yName)
	p.X.Label.Text = xName
	p.Y.Label.Text = yName
	p.Add(points)

	return savePNG(p, panelWidth, panelHeight, path)
}
