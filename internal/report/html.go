package report

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"log/slog"
	"math"
	"os"
	"sort"
	"strings"

	apperrors "callpulse/internal/errors"
	"callpulse/pkg/contracts/domain"
)

type htmlView struct {
	Title     string
	Generated string
	Source    string
	Rows      int
	Fallback  bool
	Provider  string
	KPICards  []kpiCard
	Sections  []Section
	Matrix    *matrixView
	Charts    []chartView
}

type kpiCard struct {
	Name   string
	Value  string
	Target string
	Class  string
}

type matrixView struct {
	Method  string
	Columns []string
	Rows    []matrixRow
}

type matrixRow struct {
	Name  string
	Cells []matrixCell
}

type matrixCell struct {
	Text  string
	Class string
}

type chartView struct {
	Title string
	Src   template.URL
}

// writeHTML renders the document as one self-contained HTML file with
// charts inlined as base64 images.
func (g *Generator) writeHTML(doc Document, path string) error {
	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, g.buildHTMLView(doc)); err != nil {
		return apperrors.NewReportError("render html report", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrReportWriteFailed, err)
	}
	return nil
}

func (g *Generator) buildHTMLView(doc Document) htmlView {
	view := htmlView{
		Title:     doc.Title,
		Generated: doc.GeneratedAt.Format("2006-01-02 15:04:05"),
		Source:    doc.Data.SourceFile,
		Rows:      doc.Data.RowCount,
		Fallback:  doc.Data.Insights.Fallback,
		Provider:  doc.Data.Insights.Provider,
		Sections:  doc.Sections,
		KPICards:  buildKPICards(doc.Data),
		Matrix:    buildMatrixView(doc.Data.Correlation.Matrix),
	}

	for _, name := range sortedChartNames(doc.Data.Charts) {
		src, err := inlineImage(doc.Data.Charts[name])
		if err != nil {
			g.logger.Warn("chart not inlined",
				slog.String("chart", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		view.Charts = append(view.Charts, chartView{Title: titleize(name), Src: src})
	}

	return view
}

func buildKPICards(data Data) []kpiCard {
	cards := make([]kpiCard, 0, data.KPIs.Count())
	appendCategory := func(metrics map[string]float64) {
		for _, name := range sortedKeys(metrics) {
			card := kpiCard{
				Name:  name,
				Value: fmt.Sprintf("%.2f", metrics[name]),
			}
			if cmp, ok := data.Comparisons[name]; ok {
				card.Target = fmt.Sprintf("%.2f", cmp.Target)
				if cmp.MeetsTarget {
					card.Class = "ok"
				} else {
					card.Class = "warn"
				}
			}
			cards = append(cards, card)
		}
	}
	appendCategory(data.KPIs.Performance)
	appendCategory(data.KPIs.Quality)
	return cards
}

func buildMatrixView(matrix domain.CorrelationMatrix) *matrixView {
	if len(matrix.Columns) == 0 {
		return nil
	}

	view := &matrixView{
		Method:  string(matrix.Method),
		Columns: matrix.Columns,
	}
	for i, name := range matrix.Columns {
		row := matrixRow{Name: name}
		for j := range matrix.Columns {
			row.Cells = append(row.Cells, matrixCellView(matrix.Values[i][j]))
		}
		view.Rows = append(view.Rows, row)
	}
	return view
}

func matrixCellView(v float64) matrixCell {
	if math.IsNaN(v) {
		return matrixCell{Text: "-", Class: "corr-na"}
	}
	cell := matrixCell{Text: fmt.Sprintf("%.2f", v)}
	switch {
	case v >= 0.7:
		cell.Class = "corr-strong-pos"
	case v >= 0.3:
		cell.Class = "corr-pos"
	case v <= -0.7:
		cell.Class = "corr-strong-neg"
	case v <= -0.3:
		cell.Class = "corr-neg"
	default:
		cell.Class = "corr-neutral"
	}
	return cell
}

// inlineImage reads a PNG and returns it as a data URI.
func inlineImage(path string) (template.URL, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(raw)), nil
}

func sortedChartNames(charts map[string]string) []string {
	names := make([]string, 0, len(charts))
	for name := range charts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// titleize turns a chart key like "kpi_dashboard" into "Kpi Dashboard".
func titleize(name string) string {
	words := strings.Fields(strings.ReplaceAll(name, "_", " "))
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

var htmlTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: Arial, sans-serif; margin: 40px; color: #2c3e50; }
h1 { color: #2c3e50; }
h2 { color: #34495e; margin-top: 30px; border-bottom: 2px solid #ecf0f1; padding-bottom: 4px; }
.meta { color: #7f8c8d; }
.fallback-note { background: #fff8e1; border-left: 4px solid #f39c12; padding: 10px 15px; margin: 10px 0; font-size: 13px; }
.cards { display: flex; flex-wrap: wrap; gap: 10px; }
.card { background: #ecf0f1; padding: 12px 16px; border-radius: 5px; min-width: 140px; }
.card.ok { border-left: 4px solid #4caf50; }
.card.warn { border-left: 4px solid #e74c3c; }
.metric-name { font-size: 12px; color: #7f8c8d; }
.metric-value { font-size: 22px; font-weight: bold; }
.metric-target { font-size: 11px; color: #7f8c8d; }
.section-body { background: #e8f5e9; padding: 15px; margin: 10px 0; border-left: 4px solid #4caf50; white-space: pre-wrap; }
table.corr { border-collapse: collapse; margin-top: 10px; }
table.corr th, table.corr td { border: 1px solid #bdc3c7; padding: 6px 10px; font-size: 12px; text-align: center; }
.corr-strong-pos { background: #e74c3c; color: #ffffff; }
.corr-pos { background: #f5b7b1; }
.corr-neutral { background: #ffffff; }
.corr-neg { background: #aed6f1; }
.corr-strong-neg { background: #2e86c1; color: #ffffff; }
.corr-na { background: #ecf0f1; color: #95a5a6; }
img.chart { max-width: 100%; height: auto; margin: 10px 0; border: 1px solid #ecf0f1; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p class="meta">Generated: {{.Generated}}{{if .Source}} | Source: {{.Source}}{{end}}{{if .Rows}} | {{.Rows}} rows{{end}}</p>
{{if .Fallback}}<div class="fallback-note">Narrative sections were generated without a language model.</div>{{end}}
{{if .KPICards}}
<h2>Key Metrics</h2>
<div class="cards">
{{range .KPICards}}<div class="card{{if .Class}} {{.Class}}{{end}}"><div class="metric-name">{{.Name}}</div><div class="metric-value">{{.Value}}</div>{{if .Target}}<div class="metric-target">target {{.Target}}</div>{{end}}</div>
{{end}}</div>
{{end}}
{{range .Sections}}
<h2>{{.Title}}</h2>
<div class="section-body">{{.Body}}</div>
{{end}}
{{if .Matrix}}
<h2>Correlation Matrix ({{.Matrix.Method}})</h2>
<table class="corr">
<tr><th></th>{{range .Matrix.Columns}}<th>{{.}}</th>{{end}}</tr>
{{range .Matrix.Rows}}<tr><th>{{.Name}}</th>{{range .Cells}}<td class="{{.Class}}">{{.Text}}</td>{{end}}</tr>
{{end}}</table>
{{end}}
{{if .Charts}}
<h2>Visualizations</h2>
{{range .Charts}}<h3>{{.Title}}</h3>
<img class="chart" src="{{.Src}}" alt="{{.Title}}">
{{end}}{{end}}
</body>
</html>
`))
