package chart

import (
	"fmt"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	apperrors "callpulse/internal/errors"
	"callpulse/pkg/contracts/domain"
)

const (
	heatmapWidth  = 10 * vg.Inch
	heatmapHeight = 9 * vg.Inch

	heatmapColors = 255
)

// CorrelationHeatmap renders a correlation matrix as an annotated
// heatmap on a blue-to-red diverging scale fixed to [-1, 1].
func (r *Renderer) CorrelationHeatmap(matrix domain.CorrelationMatrix, path string) (string, error) {
	if len(matrix.Columns) == 0 {
		return "", apperrors.NewReportError("correlation matrix is empty", nil)
	}

	cm := moreland.SmoothBlueRed()
	cm.SetMin(-1)
	cm.SetMax(1)

	grid := corrGrid{matrix: matrix}
	hm := plotter.NewHeatMap(grid, cm.Palette(heatmapColors))
	hm.Min = -1
	hm.Max = 1

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Correlation Matrix (%s)", matrix.Method)
	p.Add(hm)
	p.NominalX(matrix.Columns...)
	p.NominalY(matrix.Columns...)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = draw.XRight
	p.X.Tick.Label.YAlign = draw.YTop

	labels, err := cellLabels(matrix)
	if err != nil {
		return "", apperrors.NewReportError("annotate heatmap", err)
	}
	p.Add(labels)

	return savePNG(p, heatmapWidth, heatmapHeight, path)
}

// cellLabels builds one centered value label per matrix cell.
func cellLabels(matrix domain.CorrelationMatrix) (*plotter.Labels, error) {
	n := len(matrix.Columns)
	xys := make(plotter.XYs, 0, n*n)
	texts := make([]string, 0, n*n)
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			xys = append(xys, plotter.XY{X: float64(col), Y: float64(row)})
			v := matrix.Values[row][col]
			if math.IsNaN(v) {
				texts = append(texts, "-")
				continue
			}
			texts = append(texts, fmt.Sprintf("%.2f", v))
		}
	}

	labels, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: texts})
	if err != nil {
		return nil, err
	}
	for i := range labels.TextStyle {
		labels.TextStyle[i].XAlign = draw.XCenter
		labels.TextStyle[i].YAlign = draw.YCenter
	}
	return labels, nil
}

// corrGrid adapts a correlation matrix to the plotter grid interface.
// NaN cells, produced by constant columns, render as neutral.
type corrGrid struct {
	matrix domain.CorrelationMatrix
}

func (g corrGrid) Dims() (c, r int) {
	n := len(g.matrix.Columns)
	return n, n
}

func (g corrGrid) Z(c, r int) float64 {
	v := g.matrix.Values[r][c]
	if math.IsNaN(v) {
		return 0
	}
	return v
}

func (g corrGrid) X(c int) float64 { return float64(c) }

func (g corrGrid) Y(r int) float64 { return float64(r) }
