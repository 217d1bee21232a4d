package analysis

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callpulse/internal/config"
	"callpulse/pkg/contracts/domain"
)

func newCorrelationAnalyzer() *CorrelationAnalyzer {
	return NewCorrelationAnalyzer(testLogger(), config.Default().Analysis)
}

func TestCorrelationAnalyzer_Matrix_Pearson(t *testing.T) {
	f := buildFrame(t,
		numCol("x", 1, 2, 3, 4, 5, 6, 7, 8, 9, 10),
		numCol("y", 2, 4, 6, 8, 10, 12, 14, 16, 18, 20),
		numCol("z", 10, 9, 8, 7, 6, 5, 4, 3, 2, 1),
	)

	a := newCorrelationAnalyzer()
	m, err := a.Matrix(context.Background(), f, domain.CorrelationPearson)
	require.NoError(t, err)

	assert.Equal(t, domain.CorrelationPearson, m.Method)
	assert.Equal(t, []string{"x", "y", "z"}, m.Columns)

	xy, ok := m.At("x", "y")
	require.True(t, ok)
	assert.InDelta(t, 1.0, xy, 1e-9)

	xz, _ := m.At("x", "z")
	assert.InDelta(t, -1.0, xz, 1e-9)

	assert.InDelta(t, 1.0, m.Values[0][0], 1e-9)
	assert.InDelta(t, m.Values[0][1], m.Values[1][0], 1e-12)
}

func TestCorrelationAnalyzer_Matrix_Spearman(t *testing.T) {
	// y grows monotonically but nonlinearly with x, so rank correlation
	// is exact while the linear coefficient is not.
	x := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	y := make([]float64, len(x))
	for i, v := range x {
		y[i] = v * v * v
	}

	f := buildFrame(t, numCol("x", x...), numCol("y", y...))
	a := newCorrelationAnalyzer()

	spearman, err := a.Matrix(context.Background(), f, domain.CorrelationSpearman)
	require.NoError(t, err)
	pearson, err := a.Matrix(context.Background(), f, domain.CorrelationPearson)
	require.NoError(t, err)

	rs, _ := spearman.At("x", "y")
	rp, _ := pearson.At("x", "y")
	assert.InDelta(t, 1.0, rs, 1e-9)
	assert.Greater(t, rs, rp)
}

func TestCorrelationAnalyzer_Matrix_Kendall(t *testing.T) {
	f := buildFrame(t,
		numCol("x", 1, 2, 3, 4, 5),
		numCol("y", 5, 4, 3, 2, 1),
	)

	a := newCorrelationAnalyzer()
	m, err := a.Matrix(context.Background(), f, domain.CorrelationKendall)
	require.NoError(t, err)

	xy, _ := m.At("x", "y")
	assert.InDelta(t, -1.0, xy, 1e-9)
}

func TestCorrelationAnalyzer_Matrix_PairwiseDrop(t *testing.T) {
	f := buildFrame(t,
		numCol("x", 1, 2, 3, math.NaN(), 5),
		numCol("y", 2, 4, 6, 8, 10),
	)

	a := newCorrelationAnalyzer()
	m, err := a.Matrix(context.Background(), f, domain.CorrelationPearson)
	require.NoError(t, err)

	xy, _ := m.At("x", "y")
	assert.InDelta(t, 1.0, xy, 1e-9)
}

func TestCorrelationAnalyzer_Matrix_ConstantColumn(t *testing.T) {
	f := buildFrame(t,
		numCol("x", 1, 2, 3, 4),
		numCol("flat", 7, 7, 7, 7),
	)

	a := newCorrelationAnalyzer()
	m, err := a.Matrix(context.Background(), f, domain.CorrelationPearson)
	require.NoError(t, err)

	xflat, _ := m.At("x", "flat")
	assert.True(t, math.IsNaN(xflat))

	flatflat, _ := m.At("flat", "flat")
	assert.True(t, math.IsNaN(flatflat))
}

func TestCorrelationAnalyzer_Matrix_Errors(t *testing.T) {
	a := newCorrelationAnalyzer()

	t.Run("too few numeric columns", func(t *testing.T) {
		f := buildFrame(t, numCol("x", 1, 2, 3))
		_, err := a.Matrix(context.Background(), f, domain.CorrelationPearson)
		assert.Error(t, err)
	})

	t.Run("unknown method", func(t *testing.T) {
		f := buildFrame(t, numCol("x", 1, 2), numCol("y", 2, 1))
		_, err := a.Matrix(context.Background(), f, domain.CorrelationMethod("cosine"))
		assert.Error(t, err)
	})

	t.Run("cancelled context", func(t *testing.T) {
		f := buildFrame(t,
			numCol("x", 1, 2, 3),
			numCol("y", 3, 2, 1),
		)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := a.Matrix(ctx, f, domain.CorrelationPearson)
		assert.Error(t, err)
	})
}

func TestCorrelationAnalyzer_StrongPairs(t *testing.T) {
	m := domain.CorrelationMatrix{
		Method:  domain.CorrelationPearson,
		Columns: []string{"a", "b", "c"},
		Values: [][]float64{
			{1, 0.9, 0.2},
			{0.9, 1, -0.5},
			{0.2, -0.5, 1},
		},
	}

	a := newCorrelationAnalyzer()
	pairs := a.StrongPairs(m, 0.3)
	require.Len(t, pairs, 2)
	assert.Equal(t, "a", pairs[0].MetricA)
	assert.Equal(t, "b", pairs[0].MetricB)
	assert.InDelta(t, 0.9, pairs[0].Coefficient, 1e-9)
	assert.InDelta(t, -0.5, pairs[1].Coefficient, 1e-9)
}

func TestCorrelationAnalyzer_StrongPairs_SkipsNaN(t *testing.T) {
	m := domain.CorrelationMatrix{
		Method:  domain.CorrelationPearson,
		Columns: []string{"a", "b"},
		Values: [][]float64{
			{1, math.NaN()},
			{math.NaN(), 1},
		},
	}

	a := newCorrelationAnalyzer()
	assert.Empty(t, a.StrongPairs(m, 0.3))
}

func TestCorrelationAnalyzer_Regress(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	y := make([]float64, len(x))
	for i, v := range x {
		y[i] = 3*v + 2
	}
	short := []float64{1, 2, 3, 4, 5,
		math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN()}

	f := buildFrame(t,
		numCol("x", x...),
		numCol("y", y...),
		numCol("sparse", short...),
	)

	a := newCorrelationAnalyzer()
	results, err := a.Regress(context.Background(), f, "y", []string{"x", "sparse"})
	require.NoError(t, err)

	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, "x", r.Feature)
	assert.InDelta(t, 3.0, r.Coefficient, 1e-9)
	assert.InDelta(t, 2.0, r.Intercept, 1e-9)
	assert.InDelta(t, 1.0, r.R2, 1e-9)
	assert.InDelta(t, 0.0, r.RMSE, 1e-9)
	assert.InDelta(t, 1.0, r.Correlation, 1e-9)
}

func TestCorrelationAnalyzer_Regress_MissingTarget(t *testing.T) {
	f := buildFrame(t, numCol("x", 1, 2, 3))
	a := newCorrelationAnalyzer()
	_, err := a.Regress(context.Background(), f, "y", []string{"x"})
	assert.Error(t, err)
}

func TestCorrelationAnalyzer_Drivers(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	y := make([]float64, len(x))
	noise := make([]float64, len(x))
	for i, v := range x {
		y[i] = 2 * v
		noise[i] = 1
		if i%2 == 1 {
			noise[i] = -1
		}
	}

	f := buildFrame(t,
		numCol("y", y...),
		numCol("x", x...),
		numCol("noise", noise...),
	)

	a := newCorrelationAnalyzer()
	drivers, err := a.Drivers(context.Background(), f, "y", 0.3)
	require.NoError(t, err)

	require.Len(t, drivers, 1)
	assert.Equal(t, "x", drivers[0].Metric)
	assert.InDelta(t, 1.0, drivers[0].Coefficient, 1e-9)
}

func TestCorrelationAnalyzer_Drivers_MissingTarget(t *testing.T) {
	f := buildFrame(t, numCol("x", 1, 2, 3))
	a := newCorrelationAnalyzer()
	_, err := a.Drivers(context.Background(), f, "absent", 0.3)
	assert.Error(t, err)
}

func TestCorrelationAnalyzer_PCA(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	y := make([]float64, len(x))
	w := make([]float64, len(x))
	for i, v := range x {
		y[i] = 2 * v
		w[i] = 1
		if i%2 == 1 {
			w[i] = -1
		}
	}

	f := buildFrame(t,
		numCol("x", x...),
		numCol("y", y...),
		numCol("w", w...),
	)

	a := newCorrelationAnalyzer()
	result, err := a.PCA(context.Background(), f, 3)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Components)
	assert.Equal(t, []string{"x", "y", "w"}, result.Columns)
	require.Len(t, result.ExplainedVariance, 3)
	require.Len(t, result.Loadings, 3)
	require.Len(t, result.Loadings[0], 3)

	// x and y carry the same standardized signal, so the first
	// component dominates.
	assert.Greater(t, result.ExplainedVariance[0], 0.6)
	assert.InDelta(t, 1.0, result.CumulativeVariance[2], 1e-9)

	for i := 1; i < len(result.ExplainedVariance); i++ {
		assert.GreaterOrEqual(t, result.ExplainedVariance[i-1], result.ExplainedVariance[i])
	}
}

func TestCorrelationAnalyzer_PCA_TooFewRows(t *testing.T) {
	f := buildFrame(t,
		numCol("x", 1, 2),
		numCol("y", 2, 1),
	)
	a := newCorrelationAnalyzer()
	_, err := a.PCA(context.Background(), f, 3)
	assert.Error(t, err)
}

func TestCorrelationAnalyzer_AnalyzeRelationships(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	y := make([]float64, len(x))
	z := make([]float64, len(x))
	for i, v := range x {
		y[i] = 2*v + 1
		z[i] = 100 - 3*v
	}

	f := buildFrame(t,
		numCol("handle_time", x...),
		numCol("qa_score", y...),
		numCol("csat_score", z...),
	)

	a := newCorrelationAnalyzer()
	got, err := a.AnalyzeRelationships(context.Background(), f)
	require.NoError(t, err)

	assert.Len(t, got.Matrix.Columns, 3)
	assert.Len(t, got.StrongPairs, 3)
	assert.NotNil(t, got.PCA)
	assert.InDelta(t, 1.0, math.Abs(got.StrongPairs[0].Coefficient), 1e-9)
}

func TestRanks(t *testing.T) {
	got := ranks([]float64{3, 1, 4, 1, 5})
	assert.Equal(t, []float64{3, 1.5, 4, 1.5, 5}, got)
}
