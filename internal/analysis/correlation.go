package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"callpulse/internal/config"
	"callpulse/internal/dataset"
	"callpulse/internal/errors"
	"callpulse/pkg/contracts/domain"
)

const (
	// minPairedPoints is the floor below which a pairwise coefficient
	// is reported as NaN rather than a misleading number.
	minPairedPoints = 2

	// minRegressionPoints matches the analysis pipeline's refusal to
	// fit a line through fewer than ten paired observations.
	minRegressionPoints = 10

	// defaultPCAComponents caps the reported principal components.
	defaultPCAComponents = 3
)

// CorrelationAnalyzer computes pairwise relationships between the
// numeric columns of a frame.
type CorrelationAnalyzer struct {
	logger         *slog.Logger
	method         domain.CorrelationMethod
	threshold      float64
	maxConcurrency int
}

// NewCorrelationAnalyzer creates an analyzer from the analysis
// configuration, applying defaults for unset values.
func NewCorrelationAnalyzer(logger *slog.Logger, cfg config.AnalysisConfig) *CorrelationAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	method := domain.CorrelationMethod(cfg.CorrelationMethod)
	if method == "" {
		method = domain.CorrelationPearson
	}
	threshold := cfg.CorrelationThreshold
	if threshold <= 0 {
		threshold = 0.3
	}
	concurrency := cfg.MaxConcurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	return &CorrelationAnalyzer{
		logger:         logger,
		method:         method,
		threshold:      threshold,
		maxConcurrency: concurrency,
	}
}

// Matrix computes the pairwise correlation matrix over the frame's
// numeric columns. Pairs are evaluated concurrently; rows where either
// value is missing are dropped per pair. Coefficients that cannot be
// computed (too few overlapping points, zero variance) are NaN.
func (a *CorrelationAnalyzer) Matrix(ctx context.Context, f *dataset.Frame, method domain.CorrelationMethod) (domain.CorrelationMatrix, error) {
	if method == "" {
		method = a.method
	}
	switch method {
	case domain.CorrelationPearson, domain.CorrelationSpearman, domain.CorrelationKendall:
	default:
		return domain.CorrelationMatrix{}, errors.NewAnalysisError(
			fmt.Sprintf("unknown correlation method %q", method), nil)
	}

	cols := f.NumericColumns()
	if len(cols) < 2 {
		return domain.CorrelationMatrix{}, errors.NewAnalysisError(
			"correlation needs at least two numeric columns", nil)
	}

	start := time.Now()
	n := len(cols)
	values := make([][]float64, n)
	for i := range values {
		values[i] = make([]float64, n)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.maxConcurrency)

	for i := 0; i < n; i++ {
		values[i][i] = selfCorrelation(f, cols[i])
		for j := i + 1; j < n; j++ {
			i, j := i, j
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				xs, ys := f.Paired(cols[i], cols[j])
				r := pairCorrelation(xs, ys, method)
				values[i][j] = r
				values[j][i] = r
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return domain.CorrelationMatrix{}, errors.NewAnalysisError("correlation matrix cancelled", err)
	}

	a.logger.InfoContext(ctx, "correlation matrix computed",
		"method", string(method),
		"columns", n,
		"pairs", n*(n-1)/2,
		"duration", time.Since(start),
	)

	return domain.CorrelationMatrix{
		Method:  method,
		Columns: cols,
		Values:  values,
	}, nil
}

// StrongPairs extracts the upper-triangle pairs whose absolute
// coefficient meets the threshold, strongest first. A non-positive
// threshold falls back to the configured one.
func (a *CorrelationAnalyzer) StrongPairs(m domain.CorrelationMatrix, threshold float64) []domain.CorrelationPair {
	if threshold <= 0 {
		threshold = a.threshold
	}

	var pairs []domain.CorrelationPair
	for i := 0; i < len(m.Columns); i++ {
		for j := i + 1; j < len(m.Columns); j++ {
			r := m.Values[i][j]
			if math.IsNaN(r) || math.Abs(r) < threshold {
				continue
			}
			pairs = append(pairs, domain.CorrelationPair{
				MetricA:     m.Columns[i],
				MetricB:     m.Columns[j],
				Coefficient: r,
			})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		return math.Abs(pairs[i].Coefficient) > math.Abs(pairs[j].Coefficient)
	})
	return pairs
}

// Regress fits a simple least-squares line from each feature to the
// target. Features with fewer than minRegressionPoints overlapping
// observations are skipped.
func (a *CorrelationAnalyzer) Regress(ctx context.Context, f *dataset.Frame, target string, features []string) ([]domain.RegressionResult, error) {
	if !f.HasColumn(target) {
		return nil, errors.NewAnalysisError(fmt.Sprintf("regression target %q not found", target), nil)
	}

	var results []domain.RegressionResult
	for _, feature := range features {
		if feature == target || !f.HasColumn(feature) {
			continue
		}
		xs, ys := f.Paired(feature, target)
		if len(xs) < minRegressionPoints {
			a.logger.DebugContext(ctx, "skipping regression feature",
				"feature", feature,
				"paired_points", len(xs),
				"min_required", minRegressionPoints,
			)
			continue
		}

		alpha, beta := stat.LinearRegression(xs, ys, nil, false)
		results = append(results, domain.RegressionResult{
			Feature:     feature,
			Coefficient: beta,
			Intercept:   alpha,
			R2:          stat.RSquared(xs, ys, nil, alpha, beta),
			RMSE:        rmse(xs, ys, alpha, beta),
			Correlation: stat.Correlation(xs, ys, nil),
		})
	}
	return results, nil
}

// Drivers ranks the numeric columns by the strength of their Pearson
// correlation with a target KPI column.
func (a *CorrelationAnalyzer) Drivers(ctx context.Context, f *dataset.Frame, targetKPI string, minCorrelation float64) ([]domain.Driver, error) {
	if !f.HasColumn(targetKPI) {
		return nil, errors.NewAnalysisError(fmt.Sprintf("target KPI %q not found", targetKPI), nil)
	}
	if minCorrelation <= 0 {
		minCorrelation = a.threshold
	}

	var drivers []domain.Driver
	for _, col := range f.NumericColumns() {
		if col == targetKPI {
			continue
		}
		xs, ys := f.Paired(targetKPI, col)
		r := pairCorrelation(xs, ys, domain.CorrelationPearson)
		if math.IsNaN(r) || math.Abs(r) < minCorrelation {
			continue
		}
		drivers = append(drivers, domain.Driver{Metric: col, Coefficient: r})
	}

	sort.Slice(drivers, func(i, j int) bool {
		return math.Abs(drivers[i].Coefficient) > math.Abs(drivers[j].Coefficient)
	})

	a.logger.DebugContext(ctx, "KPI drivers identified",
		"target", targetKPI,
		"drivers", len(drivers),
	)
	return drivers, nil
}

// PCA runs a principal component analysis over the standardized
// numeric columns, using only rows where every column is present.
func (a *CorrelationAnalyzer) PCA(ctx context.Context, f *dataset.Frame, nComponents int) (*domain.PCAResult, error) {
	if nComponents <= 0 {
		nComponents = defaultPCAComponents
	}

	cols, rows := completeNumericRows(f)
	if len(cols) < 2 {
		return nil, errors.NewAnalysisError("PCA needs at least two numeric columns with variance", nil)
	}
	if len(rows) < 3 {
		return nil, errors.NewAnalysisError(
			fmt.Sprintf("PCA needs at least 3 complete rows, have %d", len(rows)), nil)
	}

	data := standardize(rows, len(cols))
	m := mat.NewDense(len(rows), len(cols), data)

	var pc stat.PC
	if ok := pc.PrincipalComponents(m, nil); !ok {
		return nil, errors.NewAnalysisError("principal component decomposition failed", nil)
	}

	vars := pc.VarsTo(nil)
	total := 0.0
	for _, v := range vars {
		total += v
	}
	if total == 0 {
		return nil, errors.NewAnalysisError("PCA input has no variance", nil)
	}

	if nComponents > len(vars) {
		nComponents = len(vars)
	}

	var vectors mat.Dense
	pc.VectorsTo(&vectors)

	result := &domain.PCAResult{
		Components:         nComponents,
		Columns:            cols,
		ExplainedVariance:  make([]float64, nComponents),
		CumulativeVariance: make([]float64, nComponents),
		Loadings:           make([][]float64, nComponents),
	}

	cumulative := 0.0
	for k := 0; k < nComponents; k++ {
		ratio := vars[k] / total
		cumulative += ratio
		result.ExplainedVariance[k] = ratio
		result.CumulativeVariance[k] = cumulative

		loadings := make([]float64, len(cols))
		for j := range cols {
			loadings[j] = vectors.At(j, k)
		}
		result.Loadings[k] = loadings
	}

	a.logger.InfoContext(ctx, "PCA completed",
		"components", nComponents,
		"columns", len(cols),
		"rows", len(rows),
		"cumulative_variance", cumulative,
	)
	return result, nil
}

// AnalyzeRelationships bundles the correlation matrix, the strong
// pairs, and, when at least three numeric columns exist, a PCA.
func (a *CorrelationAnalyzer) AnalyzeRelationships(ctx context.Context, f *dataset.Frame) (*domain.CorrelationAnalysis, error) {
	matrix, err := a.Matrix(ctx, f, a.method)
	if err != nil {
		return nil, err
	}

	analysis := &domain.CorrelationAnalysis{
		Matrix:      matrix,
		StrongPairs: a.StrongPairs(matrix, a.threshold),
	}

	if len(matrix.Columns) >= 3 {
		pca, err := a.PCA(ctx, f, defaultPCAComponents)
		if err != nil {
			// PCA is additive; a degenerate input should not sink the
			// correlation results it accompanies.
			a.logger.WarnContext(ctx, "PCA skipped", "error", err)
		} else {
			analysis.PCA = pca
		}
	}

	a.logger.InfoContext(ctx, "relationship analysis completed",
		"strong_pairs", len(analysis.StrongPairs),
		"pca_included", analysis.PCA != nil,
	)
	return analysis, nil
}

// pairCorrelation computes one coefficient over already-paired values.
func pairCorrelation(xs, ys []float64, method domain.CorrelationMethod) float64 {
	if len(xs) < minPairedPoints {
		return math.NaN()
	}
	switch method {
	case domain.CorrelationSpearman:
		return stat.Correlation(ranks(xs), ranks(ys), nil)
	case domain.CorrelationKendall:
		return stat.Kendall(xs, ys, nil)
	default:
		return stat.Correlation(xs, ys, nil)
	}
}

// selfCorrelation is 1 for a column with measurable variance, NaN
// otherwise, matching the pairwise convention.
func selfCorrelation(f *dataset.Frame, col string) float64 {
	xs, _ := f.Paired(col, col)
	if len(xs) < minPairedPoints || stat.StdDev(xs, nil) == 0 {
		return math.NaN()
	}
	return 1
}

// ranks assigns 1-based ranks with ties sharing their average rank.
func ranks(vals []float64) []float64 {
	n := len(vals)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return vals[idx[a]] < vals[idx[b]] })

	r := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && vals[idx[j+1]] == vals[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			r[idx[k]] = avg
		}
		i = j + 1
	}
	return r
}

func rmse(xs, ys []float64, alpha, beta float64) float64 {
	sum := 0.0
	for i := range xs {
		resid := ys[i] - (alpha + beta*xs[i])
		sum += resid * resid
	}
	return math.Sqrt(sum / float64(len(xs)))
}

// completeNumericRows returns the columns with nonzero variance and
// the row-major values of rows where every numeric column is valid.
func completeNumericRows(f *dataset.Frame) ([]string, [][]float64) {
	all := f.NumericColumns()

	// Drop constant columns; a standardized constant is undefined.
	var cols []string
	for _, name := range all {
		s, _ := f.Column(name)
		vals := s.FloatValues()
		if len(vals) >= 2 && stat.StdDev(vals, nil) > 0 {
			cols = append(cols, name)
		}
	}
	if len(cols) == 0 {
		return nil, nil
	}

	series := make([]*dataset.Series, len(cols))
	for i, name := range cols {
		series[i], _ = f.Column(name)
	}

	var rows [][]float64
	for r := 0; r < f.NumRows(); r++ {
		row := make([]float64, len(cols))
		complete := true
		for i, s := range series {
			if !s.Valid[r] || math.IsNaN(s.Float[r]) {
				complete = false
				break
			}
			row[i] = s.Float[r]
		}
		if complete {
			rows = append(rows, row)
		}
	}
	return cols, rows
}

// standardize z-scores each column of the row-major data in place and
// returns it flattened for mat.NewDense.
func standardize(rows [][]float64, ncols int) []float64 {
	n := len(rows)
	col := make([]float64, n)
	for j := 0; j < ncols; j++ {
		for i := range rows {
			col[i] = rows[i][j]
		}
		mean, std := stat.MeanStdDev(col, nil)
		if std == 0 {
			std = 1
		}
		for i := range rows {
			rows[i][j] = (rows[i][j] - mean) / std
		}
	}

	flat := make([]float64, 0, n*ncols)
	for _, row := range rows {
		flat = append(flat, row...)
	}
	return flat
}
