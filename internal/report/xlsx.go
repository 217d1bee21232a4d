package report

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/xuri/excelize/v2"

	apperrors "callpulse/internal/errors"
)

// Sheet names of the XLSX report.
const (
	sheetSummary     = "Summary"
	sheetKPI         = "KPI"
	sheetCorrelation = "Correlation"
	sheetInsights    = "Insights"
	sheetCharts      = "Charts"
)

// writeXLSX renders the document as an excelize workbook with one
// sheet per concern and the chart PNGs embedded.
func (g *Generator) writeXLSX(doc Document, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return apperrors.NewReportError("prepare workbook", err)
	}

	if err := writeSummarySheet(f, doc); err != nil {
		return apperrors.NewReportError("write summary sheet", err)
	}
	if err := writeKPISheet(f, doc); err != nil {
		return apperrors.NewReportError("write kpi sheet", err)
	}
	if err := writeCorrelationSheet(f, doc); err != nil {
		return apperrors.NewReportError("write correlation sheet", err)
	}
	if err := writeInsightsSheet(f, doc); err != nil {
		return apperrors.NewReportError("write insights sheet", err)
	}
	g.embedCharts(f, doc)

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrReportWriteFailed, err)
	}
	return nil
}

func writeSummarySheet(f *excelize.File, doc Document) error {
	titleStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 16}})
	if err != nil {
		return err
	}
	labelStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	if err := f.SetCellValue(sheetSummary, "A1", doc.Title); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetSummary, "A1", "A1", titleStyle); err != nil {
		return err
	}

	rows := [][2]any{
		{"Generated", doc.GeneratedAt.Format("2006-01-02 15:04:05")},
	}
	if doc.Data.SourceFile != "" {
		rows = append(rows, [2]any{"Source", doc.Data.SourceFile})
	}
	if doc.Data.RowCount > 0 {
		rows = append(rows, [2]any{"Rows analyzed", doc.Data.RowCount})
	}
	rows = append(rows,
		[2]any{"Metrics computed", doc.Data.KPIs.Count()},
		[2]any{"Anomalies flagged", len(doc.Data.Anomalies)},
	)
	if doc.Data.Insights.Provider != "" {
		rows = append(rows, [2]any{"Insight provider", doc.Data.Insights.Provider})
	}

	row := 3
	for _, pair := range rows {
		labelCell := fmt.Sprintf("A%d", row)
		if err := f.SetCellValue(sheetSummary, labelCell, pair[0]); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheetSummary, labelCell, labelCell, labelStyle); err != nil {
			return err
		}
		if err := f.SetCellValue(sheetSummary, fmt.Sprintf("B%d", row), pair[1]); err != nil {
			return err
		}
		row++
	}

	return f.SetColWidth(sheetSummary, "A", "B", 28)
}

func writeKPISheet(f *excelize.File, doc Document) error {
	if _, err := f.NewSheet(sheetKPI); err != nil {
		return err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"34495E"}, Pattern: 1},
	})
	if err != nil {
		return err
	}

	headers := []string{"Category", "Metric", "Value", "Target", "Meets Target"}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetKPI, cell, h); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(sheetKPI, "A1", "E1", headerStyle); err != nil {
		return err
	}

	row := 2
	writeCategory := func(category string, metrics map[string]float64) error {
		for _, name := range sortedKeys(metrics) {
			values := []any{category, name, metrics[name], nil, nil}
			if cmp, ok := doc.Data.Comparisons[name]; ok {
				values[3] = cmp.Target
				values[4] = cmp.MeetsTarget
			}
			for col, v := range values {
				if v == nil {
					continue
				}
				cell, err := excelize.CoordinatesToCellName(col+1, row)
				if err != nil {
					return err
				}
				if err := f.SetCellValue(sheetKPI, cell, v); err != nil {
					return err
				}
			}
			row++
		}
		return nil
	}
	if err := writeCategory("performance", doc.Data.KPIs.Performance); err != nil {
		return err
	}
	if err := writeCategory("quality", doc.Data.KPIs.Quality); err != nil {
		return err
	}

	if err := f.SetColWidth(sheetKPI, "A", "E", 18); err != nil {
		return err
	}

	lastRow := row - 1
	if lastRow < 2 {
		return nil
	}
	chart := &excelize.Chart{
		Type: excelize.Col,
		Series: []excelize.ChartSeries{{
			Name:       fmt.Sprintf("%s!$C$1", sheetKPI),
			Categories: fmt.Sprintf("%s!$B$2:$B$%d", sheetKPI, lastRow),
			Values:     fmt.Sprintf("%s!$C$2:$C$%d", sheetKPI, lastRow),
		}},
		Title:     []excelize.RichTextRun{{Text: "KPI Values"}},
		Dimension: excelize.ChartDimension{Width: 640, Height: 360},
		PlotArea:  excelize.ChartPlotArea{ShowVal: true},
	}
	return f.AddChart(sheetKPI, "G2", chart)
}

func writeCorrelationSheet(f *excelize.File, doc Document) error {
	if _, err := f.NewSheet(sheetCorrelation); err != nil {
		return err
	}

	matrix := doc.Data.Correlation.Matrix
	if len(matrix.Columns) == 0 {
		return f.SetCellValue(sheetCorrelation, "A1", "No correlation analysis available")
	}

	styles, err := newCorrelationStyles(f)
	if err != nil {
		return err
	}

	for j, name := range matrix.Columns {
		cell, err := excelize.CoordinatesToCellName(j+2, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetCorrelation, cell, name); err != nil {
			return err
		}
	}
	for i, name := range matrix.Columns {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetCorrelation, cell, name); err != nil {
			return err
		}
		for j := range matrix.Columns {
			cell, err := excelize.CoordinatesToCellName(j+2, i+2)
			if err != nil {
				return err
			}
			v := matrix.Values[i][j]
			if math.IsNaN(v) {
				if err := f.SetCellValue(sheetCorrelation, cell, "-"); err != nil {
					return err
				}
				continue
			}
			if err := f.SetCellValue(sheetCorrelation, cell, roundTo(v, 3)); err != nil {
				return err
			}
			if err := f.SetCellStyle(sheetCorrelation, cell, cell, styles.forValue(v)); err != nil {
				return err
			}
		}
	}

	return f.SetColWidth(sheetCorrelation, "A", "A", 22)
}

// correlationStyles mimics conditional formatting with fixed fills
// per coefficient band.
type correlationStyles struct {
	strongPos int
	pos       int
	neutral   int
	neg       int
	strongNeg int
}

func newCorrelationStyles(f *excelize.File) (correlationStyles, error) {
	var s correlationStyles
	var err error

	fill := func(color, font string) (int, error) {
		style := &excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		}
		if font != "" {
			style.Font = &excelize.Font{Color: font}
		}
		return f.NewStyle(style)
	}

	if s.strongPos, err = fill("E74C3C", "FFFFFF"); err != nil {
		return s, err
	}
	if s.pos, err = fill("F5B7B1", ""); err != nil {
		return s, err
	}
	if s.neutral, err = fill("FFFFFF", ""); err != nil {
		return s, err
	}
	if s.neg, err = fill("AED6F1", ""); err != nil {
		return s, err
	}
	if s.strongNeg, err = fill("2E86C1", "FFFFFF"); err != nil {
		return s, err
	}
	return s, nil
}

func (s correlationStyles) forValue(v float64) int {
	switch {
	case v >= 0.7:
		return s.strongPos
	case v >= 0.3:
		return s.pos
	case v <= -0.7:
		return s.strongNeg
	case v <= -0.3:
		return s.neg
	default:
		return s.neutral
	}
}

func writeInsightsSheet(f *excelize.File, doc Document) error {
	if _, err := f.NewSheet(sheetInsights); err != nil {
		return err
	}

	wrapStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	if err != nil {
		return err
	}
	labelStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	row := 1
	for _, section := range doc.Sections {
		labelCell := fmt.Sprintf("A%d", row)
		bodyCell := fmt.Sprintf("B%d", row)
		if err := f.SetCellValue(sheetInsights, labelCell, section.Title); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheetInsights, labelCell, labelCell, labelStyle); err != nil {
			return err
		}
		if err := f.SetCellValue(sheetInsights, bodyCell, section.Body); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheetInsights, bodyCell, bodyCell, wrapStyle); err != nil {
			return err
		}
		row += 2
	}

	if err := f.SetColWidth(sheetInsights, "A", "A", 24); err != nil {
		return err
	}
	return f.SetColWidth(sheetInsights, "B", "B", 110)
}

// embedCharts adds each rendered chart PNG to a dedicated sheet. A
// missing file skips that chart.
func (g *Generator) embedCharts(f *excelize.File, doc Document) {
	if len(doc.Data.Charts) == 0 {
		return
	}
	if _, err := f.NewSheet(sheetCharts); err != nil {
		g.logger.Warn("charts sheet not created", slog.String("error", err.Error()))
		return
	}

	row := 1
	for _, name := range sortedChartNames(doc.Data.Charts) {
		titleCell := fmt.Sprintf("A%d", row)
		if err := f.SetCellValue(sheetCharts, titleCell, titleize(name)); err != nil {
			continue
		}
		anchor := fmt.Sprintf("A%d", row+1)
		err := f.AddPicture(sheetCharts, anchor, doc.Data.Charts[name], &excelize.GraphicOptions{
			ScaleX: 0.2,
			ScaleY: 0.2,
		})
		if err != nil {
			g.logger.Warn("chart not embedded",
				slog.String("chart", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		row += 40
	}
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}
