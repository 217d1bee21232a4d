package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"callpulse/internal/dataset"
	"callpulse/internal/errors"
	"callpulse/pkg/contracts/domain"
)

// Anomaly detection methods.
const (
	AnomalyZScore = "zscore"
	AnomalyIQR    = "iqr"
)

// significanceLevel is the alpha used for the Significant/IsNormal flags.
const significanceLevel = 0.05

// NumericSummary is a describe-style digest of one numeric column.
type NumericSummary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Q1     float64 `json:"q1"`
	Median float64 `json:"median"`
	Q3     float64 `json:"q3"`
	Max    float64 `json:"max"`
}

// CategoricalSummary digests one text column.
type CategoricalSummary struct {
	Column   string `json:"column"`
	Unique   int    `json:"unique_values"`
	Mode     string `json:"most_common"`
	ModeFreq int    `json:"most_common_freq"`
}

// DescriptiveSummary covers every column of a frame.
type DescriptiveSummary struct {
	Numeric     map[string]NumericSummary `json:"numeric,omitempty"`
	Categorical []CategoricalSummary      `json:"categorical,omitempty"`
}

// TTestResult is a two-sample comparison of means.
type TTestResult struct {
	Statistic      float64 `json:"statistic"`
	DegreesFreedom float64 `json:"degrees_freedom"`
	PValue         float64 `json:"p_value"`
	Significant    bool    `json:"significant"`
	Mean1          float64 `json:"group1_mean"`
	Mean2          float64 `json:"group2_mean"`
	MeanDifference float64 `json:"mean_difference"`
}

// MeanInterval is a confidence interval for a mean.
type MeanInterval struct {
	Mean       float64 `json:"mean"`
	Lower      float64 `json:"lower_bound"`
	Upper      float64 `json:"upper_bound"`
	Confidence float64 `json:"confidence"`
}

// NormalityResult is a moment-based normality screen.
type NormalityResult struct {
	Skewness   float64 `json:"skewness"`
	Kurtosis   float64 `json:"kurtosis"`
	JarqueBera float64 `json:"jarque_bera"`
	PValue     float64 `json:"p_value"`
	IsNormal   bool    `json:"is_normal"`
}

// StatsAnalyzer runs the supporting statistical tests for the pipeline.
type StatsAnalyzer struct {
	logger *slog.Logger
}

// NewStatsAnalyzer creates a statistics analyzer.
func NewStatsAnalyzer(logger *slog.Logger) *StatsAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsAnalyzer{logger: logger}
}

// Describe summarizes every numeric and categorical column.
func (a *StatsAnalyzer) Describe(ctx context.Context, f *dataset.Frame) DescriptiveSummary {
	summary := DescriptiveSummary{}

	for _, name := range f.NumericColumns() {
		s, _ := f.Column(name)
		vals := s.FloatValues()
		if len(vals) == 0 {
			continue
		}
		if summary.Numeric == nil {
			summary.Numeric = make(map[string]NumericSummary)
		}

		sorted := append([]float64(nil), vals...)
		sort.Float64s(sorted)
		summary.Numeric[name] = NumericSummary{
			Count:  len(vals),
			Mean:   stat.Mean(vals, nil),
			Std:    stdOf(vals),
			Min:    sorted[0],
			Q1:     quantile(sorted, 0.25),
			Median: dataset.Median(sorted),
			Q3:     quantile(sorted, 0.75),
			Max:    sorted[len(sorted)-1],
		}
	}

	for _, name := range f.CategoricalColumns() {
		s, _ := f.Column(name)
		counts := make(map[string]int)
		for i, raw := range s.Raw {
			if s.Valid[i] {
				counts[raw]++
			}
		}
		mode, freq := "", 0
		for v, c := range counts {
			if c > freq || (c == freq && v < mode) {
				mode, freq = v, c
			}
		}
		summary.Categorical = append(summary.Categorical, CategoricalSummary{
			Column:   name,
			Unique:   len(counts),
			Mode:     mode,
			ModeFreq: freq,
		})
	}

	a.logger.DebugContext(ctx, "descriptive statistics computed",
		"numeric_columns", len(summary.Numeric),
		"categorical_columns", len(summary.Categorical),
	)
	return summary
}

// Anomalies flags rows of a column whose values are extreme under the
// chosen method: |z| > threshold for zscore, outside Q1-t*IQR..Q3+t*IQR
// for iqr. Row indices refer to the frame's current row order.
func (a *StatsAnalyzer) Anomalies(ctx context.Context, f *dataset.Frame, column, method string, threshold float64) ([]domain.Anomaly, error) {
	s, ok := f.Column(column)
	if !ok || s.Type != dataset.TypeNumeric {
		return nil, errors.NewAnalysisError(fmt.Sprintf("anomaly column %q not found", column), nil)
	}
	if threshold <= 0 {
		threshold = 3
	}

	vals := s.FloatValues()
	if len(vals) < 3 {
		return nil, nil
	}

	var anomalies []domain.Anomaly
	switch method {
	case AnomalyZScore, "":
		mean, std := stat.MeanStdDev(vals, nil)
		if std == 0 {
			return nil, nil
		}
		for i := 0; i < s.Len(); i++ {
			if !s.Valid[i] || math.IsNaN(s.Float[i]) {
				continue
			}
			z := math.Abs(s.Float[i]-mean) / std
			if z > threshold {
				anomalies = append(anomalies, domain.Anomaly{
					Column: column,
					Row:    i,
					Value:  s.Float[i],
					Score:  z,
					Method: AnomalyZScore,
				})
			}
		}

	case AnomalyIQR:
		sorted := append([]float64(nil), vals...)
		sort.Float64s(sorted)
		q1 := quantile(sorted, 0.25)
		q3 := quantile(sorted, 0.75)
		iqr := q3 - q1
		if iqr == 0 {
			return nil, nil
		}
		lower := q1 - threshold*iqr
		upper := q3 + threshold*iqr
		for i := 0; i < s.Len(); i++ {
			if !s.Valid[i] || math.IsNaN(s.Float[i]) {
				continue
			}
			v := s.Float[i]
			if v < lower || v > upper {
				score := (q1 - v) / iqr
				if v > upper {
					score = (v - q3) / iqr
				}
				anomalies = append(anomalies, domain.Anomaly{
					Column: column,
					Row:    i,
					Value:  v,
					Score:  score,
					Method: AnomalyIQR,
				})
			}
		}

	default:
		return nil, errors.NewAnalysisError(fmt.Sprintf("unknown anomaly method %q", method), nil)
	}

	a.logger.InfoContext(ctx, "anomaly detection completed",
		"column", column,
		"method", method,
		"anomalies", len(anomalies),
		"observations", len(vals),
	)
	return anomalies, nil
}

// AnomalyScan runs zscore detection over every numeric column.
func (a *StatsAnalyzer) AnomalyScan(ctx context.Context, f *dataset.Frame, threshold float64) ([]domain.Anomaly, error) {
	var all []domain.Anomaly
	for _, col := range f.NumericColumns() {
		found, err := a.Anomalies(ctx, f, col, AnomalyZScore, threshold)
		if err != nil {
			return nil, err
		}
		all = append(all, found...)
	}
	return all, nil
}

// TTest compares the means of two independent samples. welch selects
// the unequal-variance form; otherwise a pooled variance is used.
func (a *StatsAnalyzer) TTest(group1, group2 []float64, welch bool) (TTestResult, error) {
	g1 := dropNaN(group1)
	g2 := dropNaN(group2)
	if len(g1) < 2 || len(g2) < 2 {
		return TTestResult{}, errors.NewAnalysisError("t-test needs at least two values per group", nil)
	}

	m1, s1 := stat.MeanStdDev(g1, nil)
	m2, s2 := stat.MeanStdDev(g2, nil)
	n1, n2 := float64(len(g1)), float64(len(g2))
	v1, v2 := s1*s1, s2*s2

	var t, df float64
	if welch {
		se := math.Sqrt(v1/n1 + v2/n2)
		if se == 0 {
			return TTestResult{}, errors.NewAnalysisError("t-test groups have zero variance", nil)
		}
		t = (m1 - m2) / se
		df = math.Pow(v1/n1+v2/n2, 2) /
			(math.Pow(v1/n1, 2)/(n1-1) + math.Pow(v2/n2, 2)/(n2-1))
	} else {
		pooled := ((n1-1)*v1 + (n2-1)*v2) / (n1 + n2 - 2)
		se := math.Sqrt(pooled * (1/n1 + 1/n2))
		if se == 0 {
			return TTestResult{}, errors.NewAnalysisError("t-test groups have zero variance", nil)
		}
		t = (m1 - m2) / se
		df = n1 + n2 - 2
	}

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p := 2 * dist.CDF(-math.Abs(t))

	return TTestResult{
		Statistic:      t,
		DegreesFreedom: df,
		PValue:         p,
		Significant:    p < significanceLevel,
		Mean1:          m1,
		Mean2:          m2,
		MeanDifference: m1 - m2,
	}, nil
}

// ConfidenceInterval computes a t-distribution interval for the mean.
func (a *StatsAnalyzer) ConfidenceInterval(data []float64, confidence float64) (MeanInterval, error) {
	vals := dropNaN(data)
	if len(vals) < 2 {
		return MeanInterval{}, errors.NewAnalysisError("confidence interval needs at least two values", nil)
	}
	if confidence <= 0 || confidence >= 1 {
		confidence = 0.95
	}

	n := float64(len(vals))
	mean, std := stat.MeanStdDev(vals, nil)
	sem := std / math.Sqrt(n)

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: n - 1}
	margin := sem * dist.Quantile((1+confidence)/2)

	return MeanInterval{
		Mean:       mean,
		Lower:      mean - margin,
		Upper:      mean + margin,
		Confidence: confidence,
	}, nil
}

// Normality screens a sample with the Jarque-Bera moment test:
// JB = n/6 * (S^2 + K^2/4), chi-squared with two degrees of freedom
// under the null.
func (a *StatsAnalyzer) Normality(data []float64) (NormalityResult, error) {
	vals := dropNaN(data)
	if len(vals) < 4 {
		return NormalityResult{}, errors.NewAnalysisError("normality screen needs at least four values", nil)
	}

	skew := stat.Skew(vals, nil)
	kurt := stat.ExKurtosis(vals, nil)
	n := float64(len(vals))
	jb := n / 6 * (skew*skew + kurt*kurt/4)

	chi := distuv.ChiSquared{K: 2}
	p := 1 - chi.CDF(jb)

	return NormalityResult{
		Skewness:   skew,
		Kurtosis:   kurt,
		JarqueBera: jb,
		PValue:     p,
		IsNormal:   p > significanceLevel,
	}, nil
}

// GroupValues splits a numeric column's values by the labels of a
// categorical column, for group comparisons.
func (a *StatsAnalyzer) GroupValues(f *dataset.Frame, valueColumn, groupColumn string) (map[string][]float64, error) {
	vals, ok := f.Column(valueColumn)
	if !ok || vals.Type != dataset.TypeNumeric {
		return nil, errors.NewAnalysisError(fmt.Sprintf("value column %q not found", valueColumn), nil)
	}
	groups, ok := f.Column(groupColumn)
	if !ok {
		return nil, errors.NewAnalysisError(fmt.Sprintf("group column %q not found", groupColumn), nil)
	}

	out := make(map[string][]float64)
	for i := 0; i < f.NumRows(); i++ {
		if !vals.Valid[i] || math.IsNaN(vals.Float[i]) || !groups.Valid[i] {
			continue
		}
		label := groups.Raw[i]
		out[label] = append(out[label], vals.Float[i])
	}
	return out, nil
}

// quantile interpolates linearly between order statistics of a sorted
// sample, the convention the rest of the pipeline reports.
func quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}
	h := p * float64(n-1)
	lo := int(math.Floor(h))
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := h - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

func dropNaN(vals []float64) []float64 {
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}
