package dataset

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "callpulse/internal/errors"
)

func TestValidator_Validate_CleanData(t *testing.T) {
	f := NewFrame()
	require.NoError(t, f.AddSeries(numericSeries("handle_time", 300, 250, 410, 280, 330, 290)))
	require.NoError(t, f.AddSeries(numericSeries("qa_score", 85, 90, 78, 88, 92, 81)))
	require.NoError(t, f.AddSeries(textSeries("team", "Alpha", "Beta", "Alpha", "Gamma", "Beta", "Alpha")))

	v := NewValidator(testLogger(), ValidatorConfig{MinDataPoints: 5})
	result, err := v.Validate(context.Background(), f)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.SufficientData)
	assert.Equal(t, 6, result.RowCount)
	assert.Nil(t, result.Schema)
	assert.Empty(t, result.RangeViolations)
	assert.Empty(t, result.TypeMismatches)
	assert.Equal(t, 6, result.Quality.TotalRows)
	assert.Equal(t, 3, result.Quality.TotalColumns)
	assert.Equal(t, []string{"handle_time", "qa_score"}, result.Quality.NumericColumns)
	assert.Equal(t, []string{"team"}, result.Quality.CategoricalColumns)
}

func TestValidator_Validate_MissingRequiredColumns(t *testing.T) {
	f := NewFrame()
	require.NoError(t, f.AddSeries(numericSeries("handle_time", 300, 250, 410)))

	v := NewValidator(testLogger(), ValidatorConfig{
		RequiredColumns: []string{"handle_time", "csat_score"},
		MinDataPoints:   2,
	})
	result, err := v.Validate(context.Background(), f)
	assert.ErrorIs(t, err, apperrors.ErrSchemaMismatch)
	require.NotNil(t, result)
	require.NotNil(t, result.Schema)
	assert.False(t, result.Schema.Valid)
	assert.Equal(t, []string{"csat_score"}, result.Schema.Missing)
}

func TestValidator_Validate_TooFewRows(t *testing.T) {
	f := NewFrame()
	require.NoError(t, f.AddSeries(numericSeries("handle_time", 300, 250, 410)))

	v := NewValidator(testLogger(), ValidatorConfig{})
	result, err := v.Validate(context.Background(), f)
	assert.ErrorIs(t, err, apperrors.ErrTooFewRows)
	require.NotNil(t, result)
	assert.False(t, result.SufficientData)
	assert.Equal(t, 3, result.RowCount)
	assert.Equal(t, 30, result.MinDataPoints)
}

func TestValidator_CheckRanges(t *testing.T) {
	f := NewFrame()
	require.NoError(t, f.AddSeries(numericSeries("qa_score", 85, 150, -5)))
	require.NoError(t, f.AddSeries(numericSeries("csat_score", 4.5, 0.5, 6)))
	require.NoError(t, f.AddSeries(numericSeries("handle_time", -10, 200, 300)))

	v := NewValidator(testLogger(), ValidatorConfig{})
	violations := v.CheckRanges(f)
	assert.Equal(t, 2, violations["qa_score"])
	assert.Equal(t, 2, violations["csat_score"])
	assert.Equal(t, 1, violations["handle_time"])
}

func TestValidator_CheckRanges_CleanFrame(t *testing.T) {
	f := NewFrame()
	require.NoError(t, f.AddSeries(numericSeries("qa_score", 85, 90)))

	v := NewValidator(testLogger(), ValidatorConfig{})
	assert.Nil(t, v.CheckRanges(f))
}

func TestValidator_CheckTypes(t *testing.T) {
	f := NewFrame()
	require.NoError(t, f.AddSeries(textSeries("qa_score", "excellent", "poor")))
	require.NoError(t, f.AddSeries(numericSeries("handle_time", 300, 250)))

	v := NewValidator(testLogger(), ValidatorConfig{})
	mismatches := v.CheckTypes(f)
	assert.Contains(t, mismatches["qa_score"], "expected numeric")
	assert.NotContains(t, mismatches, "handle_time")
}

func TestValidator_Quality(t *testing.T) {
	f := NewFrame()
	require.NoError(t, f.AddSeries(numericSeries("handle_time", 10, 20, 20, 40)))
	require.NoError(t, f.AddSeries(numericSeries("qa_score", math.NaN(), 80, 80, 90)))

	v := NewValidator(testLogger(), ValidatorConfig{})
	q := v.Quality(f)

	assert.Equal(t, 4, q.TotalRows)
	assert.Equal(t, 1, q.MissingValues["qa_score"])
	assert.InDelta(t, 25.0, q.MissingPercentage["qa_score"], 1e-9)
	assert.Equal(t, 1, q.DuplicateRows)

	ht := q.NumericStats["handle_time"]
	assert.InDelta(t, 22.5, ht.Mean, 1e-9)
	assert.InDelta(t, 20.0, ht.Median, 1e-9)
	assert.InDelta(t, 12.583057, ht.Std, 1e-4)
	assert.Equal(t, 10.0, ht.Min)
	assert.Equal(t, 40.0, ht.Max)
}

func TestDefaultRanges(t *testing.T) {
	ranges := DefaultRanges()

	assert.Equal(t, Range{Min: 0, Max: 100}, ranges["qa_score"])
	assert.Equal(t, Range{Min: 1, Max: 5}, ranges["csat_score"])
	assert.Equal(t, Range{Min: -100, Max: 100}, ranges["nps_score"])
	assert.Equal(t, Range{Min: 0, Max: 1}, ranges["first_call_resolution"])
	assert.Equal(t, 0.0, ranges["handle_time"].Min)
	assert.True(t, math.IsInf(ranges["handle_time"].Max, 1))
}
