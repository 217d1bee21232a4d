package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"callpulse/internal/config"
	"callpulse/internal/dataset"
	"callpulse/internal/errors"
	"callpulse/pkg/contracts/domain"
)

// Trend bucket periods accepted by Trends.
const (
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
)

// rollingWindow is the trailing-bucket window for the rolling average.
const rollingWindow = 7

// KPIAnalyzer computes call-center performance and quality metrics
// over a cleaned dataset frame.
type KPIAnalyzer struct {
	logger     *slog.Logger
	thresholds config.ThresholdsConfig
}

// NewKPIAnalyzer creates a KPI analyzer using the configured targets.
func NewKPIAnalyzer(logger *slog.Logger, thresholds config.ThresholdsConfig) *KPIAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &KPIAnalyzer{
		logger:     logger,
		thresholds: thresholds,
	}
}

// CalculateAll computes every KPI whose source columns exist in the frame.
func (a *KPIAnalyzer) CalculateAll(ctx context.Context, f *dataset.Frame) (domain.KPISet, error) {
	if f == nil || f.NumRows() == 0 {
		return domain.KPISet{}, errors.NewAnalysisError("no data to analyze", nil)
	}

	start := time.Now()
	set := domain.KPISet{
		Performance: a.PerformanceKPIs(f),
		Quality:     a.QualityKPIs(f),
	}

	a.logger.InfoContext(ctx, "KPI calculation completed",
		"performance_metrics", len(set.Performance),
		"quality_metrics", len(set.Quality),
		"rows", f.NumRows(),
		"duration", time.Since(start),
	)

	if set.Count() == 0 {
		return set, errors.NewAnalysisError("no recognized KPI columns in dataset", nil)
	}
	return set, nil
}

// PerformanceKPIs computes the operational metrics: handle time,
// first-call resolution, service level, occupancy, and adherence.
func (a *KPIAnalyzer) PerformanceKPIs(f *dataset.Frame) map[string]float64 {
	kpis := make(map[string]float64)

	if vals, ok := columnValues(f, config.ColHandleTime); ok {
		kpis[domain.KPIAverageHandleTime] = stat.Mean(vals, nil)
		kpis[domain.KPIAverageHandleTimeMedian] = medianOf(vals)
		kpis[domain.KPIAverageHandleTimeStd] = stdOf(vals)
	}

	if vals, ok := columnValues(f, config.ColFirstCallRes); ok {
		kpis[domain.KPIFirstCallResolution] = stat.Mean(vals, nil)
	}

	if offered, ok := columnSum(f, config.ColCallsOffered); ok {
		if answered, ok := columnSum(f, config.ColCallsAnswered); ok {
			kpis[domain.KPIServiceLevel] = ratio(answered, offered)
		}
	}

	if logged, ok := columnSum(f, config.ColLoggedTime); ok {
		if productive, ok := columnSum(f, config.ColProductiveTime); ok {
			kpis[domain.KPIOccupancyRate] = ratio(productive, logged)
		}
	}

	if scheduled, ok := columnSum(f, config.ColScheduledTime); ok {
		if actual, ok := columnSum(f, config.ColActualTime); ok {
			kpis[domain.KPIAdherence] = ratio(actual, scheduled)
		}
	}

	return kpis
}

// QualityKPIs computes the quality metrics: QA score, CSAT, NPS,
// compliance, and error rate.
func (a *KPIAnalyzer) QualityKPIs(f *dataset.Frame) map[string]float64 {
	kpis := make(map[string]float64)

	if vals, ok := columnValues(f, config.ColQAScore); ok {
		kpis[domain.KPIQAScoreAvg] = stat.Mean(vals, nil)
		kpis[domain.KPIQAScoreMedian] = medianOf(vals)
		kpis[domain.KPIQAScoreStd] = stdOf(vals)
	}

	if vals, ok := columnValues(f, config.ColCSATScore); ok {
		kpis[domain.KPICSATAvg] = stat.Mean(vals, nil)
		kpis[domain.KPICSATMedian] = medianOf(vals)
	}

	if vals, ok := columnValues(f, config.ColNPSScore); ok {
		kpis[domain.KPINPSAvg] = stat.Mean(vals, nil)
	}

	if vals, ok := columnValues(f, config.ColCompliancePass); ok {
		kpis[domain.KPIComplianceRate] = stat.Mean(vals, nil)
	}

	if errs, ok := columnSum(f, config.ColErrorCount); ok {
		if interactions, ok := columnSum(f, config.ColTotalInteractions); ok {
			kpis[domain.KPIErrorRate] = ratio(errs, interactions)
		}
	}

	return kpis
}

// CompareToTargets compares computed KPIs against the configured
// thresholds for a category ("performance" or "quality"). KPIs without
// a configured target are omitted. meets_target is direction-aware:
// handle time and error rate pass by staying at or under target.
func (a *KPIAnalyzer) CompareToTargets(kpis map[string]float64, category string) map[string]domain.TargetComparison {
	comparisons := make(map[string]domain.TargetComparison)

	for name, actual := range kpis {
		target, ok := a.thresholds.Target(category, name)
		if !ok {
			continue
		}

		delta := actual - target
		pctDelta := 0.0
		if target != 0 {
			pctDelta = delta / target * 100
		}

		meets := actual >= target
		if domain.LowerIsBetter(name) {
			meets = actual <= target
		}

		comparisons[name] = domain.TargetComparison{
			Actual:      actual,
			Target:      target,
			Delta:       delta,
			PctDelta:    pctDelta,
			MeetsTarget: meets,
		}
	}

	return comparisons
}

// Summary renders the KPI set as a plain-text block for terminal
// output and text reports.
func (a *KPIAnalyzer) Summary(set domain.KPISet) string {
	rule := strings.Repeat("=", 60)

	var b strings.Builder
	b.WriteString(rule + "\n")
	b.WriteString("KPI SUMMARY\n")
	b.WriteString(rule + "\n")

	b.WriteString("\nPERFORMANCE METRICS:\n")
	writeMetricLines(&b, set.Performance)

	b.WriteString("\nQUALITY METRICS:\n")
	writeMetricLines(&b, set.Quality)

	b.WriteString(rule)
	return b.String()
}

func writeMetricLines(b *strings.Builder, kpis map[string]float64) {
	names := make([]string, 0, len(kpis))
	for name := range kpis {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(b, "  %s: %.2f\n", strings.ToUpper(name), kpis[name])
	}
}

// Trends buckets a metric by calendar period and reports per-bucket
// mean, median, std, count, and a trailing rolling average.
func (a *KPIAnalyzer) Trends(ctx context.Context, f *dataset.Frame, dateColumn, metricColumn, period string) (*domain.Trend, error) {
	dates, ok := f.Column(dateColumn)
	if !ok || dates.Type != dataset.TypeTime {
		return nil, errors.NewAnalysisError(fmt.Sprintf("date column %q not found", dateColumn), nil)
	}
	metric, ok := f.Column(metricColumn)
	if !ok || metric.Type != dataset.TypeNumeric {
		return nil, errors.NewAnalysisError(fmt.Sprintf("metric column %q not found", metricColumn), nil)
	}

	buckets := make(map[time.Time][]float64)
	for i := 0; i < f.NumRows(); i++ {
		if !dates.Valid[i] || !metric.Valid[i] {
			continue
		}
		key, err := bucketStart(dates.Time[i], period)
		if err != nil {
			return nil, err
		}
		buckets[key] = append(buckets[key], metric.Float[i])
	}
	if len(buckets) == 0 {
		return nil, errors.NewAnalysisError(
			fmt.Sprintf("no overlapping observations for %s over %s", metricColumn, dateColumn), nil)
	}

	keys := make([]time.Time, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	trend := &domain.Trend{
		Metric:  metricColumn,
		Period:  period,
		Buckets: make([]domain.TrendBucket, 0, len(keys)),
	}

	means := make([]float64, 0, len(keys))
	for _, k := range keys {
		vals := buckets[k]
		mean := stat.Mean(vals, nil)
		means = append(means, mean)

		trend.Buckets = append(trend.Buckets, domain.TrendBucket{
			Period:  k,
			Mean:    mean,
			Median:  medianOf(vals),
			Std:     stdOf(vals),
			Count:   len(vals),
			Rolling: trailingMean(means, rollingWindow),
		})
	}

	a.logger.DebugContext(ctx, "trend analysis completed",
		"metric", metricColumn,
		"period", period,
		"buckets", len(trend.Buckets),
	)
	return trend, nil
}

// bucketStart truncates a timestamp to the start of its bucket.
// Weekly buckets start on Monday.
func bucketStart(t time.Time, period string) (time.Time, error) {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	switch period {
	case PeriodDaily:
		return day, nil
	case PeriodWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset), nil
	case PeriodMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()), nil
	}
	return time.Time{}, errors.NewAnalysisError(fmt.Sprintf("unknown trend period %q", period), nil)
}

// trailingMean averages the last window elements of vals.
func trailingMean(vals []float64, window int) float64 {
	if len(vals) == 0 {
		return 0
	}
	start := len(vals) - window
	if start < 0 {
		start = 0
	}
	return stat.Mean(vals[start:], nil)
}

// columnValues returns the valid values of a numeric column, reporting
// false when the column is absent or holds nothing usable.
func columnValues(f *dataset.Frame, name string) ([]float64, bool) {
	s, ok := f.Column(name)
	if !ok || s.Type != dataset.TypeNumeric {
		return nil, false
	}
	vals := s.FloatValues()
	if len(vals) == 0 {
		return nil, false
	}
	return vals, true
}

func columnSum(f *dataset.Frame, name string) (float64, bool) {
	vals, ok := columnValues(f, name)
	if !ok {
		return 0, false
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum, true
}

// ratio divides with a zero-denominator guard.
func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func medianOf(vals []float64) float64 {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	return dataset.Median(sorted)
}

// stdOf is the sample standard deviation, zero for fewer than two values.
func stdOf(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	return stat.StdDev(vals, nil)
}
