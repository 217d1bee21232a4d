package dataset

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numericSeries(name string, vals ...float64) *Series {
	s := &Series{
		Name:  name,
		Type:  TypeNumeric,
		Float: vals,
		Raw:   make([]string, len(vals)),
		Valid: make([]bool, len(vals)),
	}
	for i, v := range vals {
		if math.IsNaN(v) {
			s.Raw[i] = ""
			continue
		}
		s.Raw[i] = formatFloat(v)
		s.Valid[i] = true
	}
	return s
}

func textSeries(name string, vals ...string) *Series {
	s := &Series{
		Name:  name,
		Type:  TypeText,
		Raw:   vals,
		Valid: make([]bool, len(vals)),
	}
	for i, v := range vals {
		s.Valid[i] = v != ""
	}
	return s
}

func TestFrame_AddSeries(t *testing.T) {
	f := NewFrame()
	require.NoError(t, f.AddSeries(numericSeries("a", 1, 2, 3)))

	t.Run("duplicate name rejected", func(t *testing.T) {
		err := f.AddSeries(numericSeries("a", 4, 5, 6))
		assert.Error(t, err)
	})

	t.Run("length mismatch rejected", func(t *testing.T) {
		err := f.AddSeries(numericSeries("b", 1, 2))
		assert.Error(t, err)
	})

	t.Run("matching length accepted", func(t *testing.T) {
		require.NoError(t, f.AddSeries(numericSeries("b", 4, 5, 6)))
		assert.Equal(t, 3, f.NumRows())
		assert.Equal(t, 2, f.NumColumns())
		assert.Equal(t, []string{"a", "b"}, f.Columns())
	})
}

func TestFrame_ColumnClassification(t *testing.T) {
	f := NewFrame()
	require.NoError(t, f.AddSeries(numericSeries("handle_time", 300, 250)))
	require.NoError(t, f.AddSeries(textSeries("team", "Alpha", "Beta")))

	assert.Equal(t, []string{"handle_time"}, f.NumericColumns())
	assert.Equal(t, []string{"team"}, f.CategoricalColumns())
	assert.True(t, f.HasColumn("team"))
	assert.False(t, f.HasColumn("missing"))
}

func TestFrame_TimeColumn(t *testing.T) {
	day := func(d int) time.Time {
		return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
	}

	f := NewFrame()
	other := &Series{
		Name:  "created_at",
		Type:  TypeTime,
		Raw:   []string{"2024-01-01", "2024-01-02"},
		Time:  []time.Time{day(1), day(2)},
		Valid: []bool{true, true},
	}
	date := &Series{
		Name:  "date",
		Type:  TypeTime,
		Raw:   []string{"2024-01-05", "2024-01-06"},
		Time:  []time.Time{day(5), day(6)},
		Valid: []bool{true, true},
	}
	require.NoError(t, f.AddSeries(other))
	require.NoError(t, f.AddSeries(date))

	got, ok := f.TimeColumn()
	require.True(t, ok)
	assert.Equal(t, "date", got.Name)
}

func TestFrame_Paired(t *testing.T) {
	f := NewFrame()
	require.NoError(t, f.AddSeries(numericSeries("x", 1, 2, math.NaN(), 4)))
	require.NoError(t, f.AddSeries(numericSeries("y", 10, math.NaN(), 30, 40)))

	xs, ys := f.Paired("x", "y")
	assert.Equal(t, []float64{1, 4}, xs)
	assert.Equal(t, []float64{10, 40}, ys)
}

func TestFrame_Paired_MissingColumn(t *testing.T) {
	f := NewFrame()
	require.NoError(t, f.AddSeries(numericSeries("x", 1, 2)))

	xs, ys := f.Paired("x", "nope")
	assert.Nil(t, xs)
	assert.Nil(t, ys)
}

func TestFrame_Filter(t *testing.T) {
	f := NewFrame()
	require.NoError(t, f.AddSeries(numericSeries("v", 1, 2, 3, 4)))
	require.NoError(t, f.AddSeries(textSeries("id", "a", "b", "c", "d")))

	got := f.Filter([]bool{true, false, true, false})
	assert.Equal(t, 2, got.NumRows())

	s, _ := got.Column("v")
	assert.Equal(t, []float64{1, 3}, s.Float)

	id, _ := got.Column("id")
	assert.Equal(t, []string{"a", "c"}, id.Raw)
}

func TestFrame_CloneIndependence(t *testing.T) {
	f := NewFrame()
	require.NoError(t, f.AddSeries(numericSeries("v", 1, 2)))

	c := f.Clone()
	s, _ := c.Column("v")
	s.SetFloat(0, 99)

	orig, _ := f.Column("v")
	assert.Equal(t, float64(1), orig.Float[0])
}

func TestSeries_FloatValues(t *testing.T) {
	s := numericSeries("v", 1, math.NaN(), 3)
	assert.Equal(t, []float64{1, 3}, s.FloatValues())
	assert.Equal(t, 1, s.MissingCount())
}

func TestConcat(t *testing.T) {
	a := NewFrame()
	require.NoError(t, a.AddSeries(numericSeries("handle_time", 300, 250)))
	require.NoError(t, a.AddSeries(textSeries("team", "alpha", "beta")))

	b := NewFrame()
	require.NoError(t, b.AddSeries(numericSeries("handle_time", 410)))
	require.NoError(t, b.AddSeries(numericSeries("csat_score", 4.2)))

	combined, err := Concat([]*Frame{a, b})
	require.NoError(t, err)

	assert.Equal(t, 3, combined.NumRows())
	assert.Equal(t, []string{"handle_time", "team", "csat_score"}, combined.Columns())

	ht, ok := combined.Column("handle_time")
	require.True(t, ok)
	assert.Equal(t, []float64{300, 250, 410}, ht.Float)

	// Columns absent from a frame get missing cells for its rows.
	team, ok := combined.Column("team")
	require.True(t, ok)
	assert.Equal(t, []bool{true, true, false}, team.Valid)

	csat, ok := combined.Column("csat_score")
	require.True(t, ok)
	assert.True(t, math.IsNaN(csat.Float[0]))
	assert.True(t, math.IsNaN(csat.Float[1]))
	assert.Equal(t, 4.2, csat.Float[2])
}

func TestConcat_TypeMismatchDegradesToText(t *testing.T) {
	a := NewFrame()
	require.NoError(t, a.AddSeries(numericSeries("code", 1, 2)))

	b := NewFrame()
	require.NoError(t, b.AddSeries(textSeries("code", "A1")))

	combined, err := Concat([]*Frame{a, b})
	require.NoError(t, err)

	s, ok := combined.Column("code")
	require.True(t, ok)
	assert.Equal(t, TypeText, s.Type)
	assert.Nil(t, s.Float)
	assert.Len(t, s.Raw, 3)
}

func TestConcat_Empty(t *testing.T) {
	_, err := Concat(nil)
	assert.Error(t, err)
}

func TestConcat_SingleFrameClones(t *testing.T) {
	a := NewFrame()
	require.NoError(t, a.AddSeries(numericSeries("v", 1, 2)))

	combined, err := Concat([]*Frame{a})
	require.NoError(t, err)

	s, _ := combined.Column("v")
	s.Float[0] = 99

	orig, _ := a.Column("v")
	assert.Equal(t, float64(1), orig.Float[0])
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name   string
		sorted []float64
		want   float64
	}{
		{"odd length", []float64{1, 2, 3}, 2},
		{"even length", []float64{1, 2, 3, 100}, 2.5},
		{"single", []float64{7}, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Median(tt.sorted))
		})
	}

	assert.True(t, math.IsNaN(Median(nil)))
}
