package dataset

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// ColumnType classifies the parsed representation of a column.
type ColumnType int

const (
	TypeText ColumnType = iota
	TypeNumeric
	TypeTime
)

// String returns the lowercase name of the column type.
func (t ColumnType) String() string {
	switch t {
	case TypeNumeric:
		return "numeric"
	case TypeTime:
		return "time"
	default:
		return "text"
	}
}

// Series is a single named column. Raw always holds the original cell text
// for every row; Float and Time hold the parsed values for numeric and time
// columns. Valid marks rows where a usable value is present.
type Series struct {
	Name  string
	Type  ColumnType
	Raw   []string
	Float []float64
	Time  []time.Time
	Valid []bool
}

// Len returns the number of rows in the series.
func (s *Series) Len() int {
	return len(s.Raw)
}

// MissingCount returns the number of rows without a usable value.
func (s *Series) MissingCount() int {
	missing := 0
	for _, ok := range s.Valid {
		if !ok {
			missing++
		}
	}
	return missing
}

// FloatValues returns the valid numeric values, in row order.
// Returns nil for non-numeric series.
func (s *Series) FloatValues() []float64 {
	if s.Type != TypeNumeric {
		return nil
	}
	vals := make([]float64, 0, len(s.Float))
	for i, v := range s.Float {
		if s.Valid[i] && !math.IsNaN(v) {
			vals = append(vals, v)
		}
	}
	return vals
}

// SetFloat sets the numeric value at row i and syncs the raw text.
func (s *Series) SetFloat(i int, v float64) {
	s.Float[i] = v
	s.Valid[i] = true
	s.Raw[i] = formatFloat(v)
}

// SetText sets the text value at row i.
func (s *Series) SetText(i int, v string) {
	s.Raw[i] = v
	s.Valid[i] = v != ""
}

// clone returns a deep copy of the series.
func (s *Series) clone() *Series {
	c := &Series{
		Name:  s.Name,
		Type:  s.Type,
		Raw:   append([]string(nil), s.Raw...),
		Valid: append([]bool(nil), s.Valid...),
	}
	if s.Float != nil {
		c.Float = append([]float64(nil), s.Float...)
	}
	if s.Time != nil {
		c.Time = append([]time.Time(nil), s.Time...)
	}
	return c
}

// filter returns a copy of the series keeping only rows where keep[i] is true.
func (s *Series) filter(keep []bool) *Series {
	c := &Series{Name: s.Name, Type: s.Type}
	for i := range s.Raw {
		if !keep[i] {
			continue
		}
		c.Raw = append(c.Raw, s.Raw[i])
		c.Valid = append(c.Valid, s.Valid[i])
		if s.Float != nil {
			c.Float = append(c.Float, s.Float[i])
		}
		if s.Time != nil {
			c.Time = append(c.Time, s.Time[i])
		}
	}
	return c
}

// Frame is an in-memory columnar dataset with ordered, named columns.
// It is the unit of work passed between the loader, validator, cleaner
// and the analysis layer.
type Frame struct {
	series []*Series
	index  map[string]int
	rows   int
}

// NewFrame creates an empty frame.
func NewFrame() *Frame {
	return &Frame{index: make(map[string]int)}
}

// AddSeries appends a column to the frame. All columns must have the same
// number of rows; the first column added fixes the row count.
func (f *Frame) AddSeries(s *Series) error {
	if _, exists := f.index[s.Name]; exists {
		return fmt.Errorf("duplicate column %q", s.Name)
	}
	if len(f.series) > 0 && s.Len() != f.rows {
		return fmt.Errorf("column %q has %d rows, frame has %d", s.Name, s.Len(), f.rows)
	}
	if len(f.series) == 0 {
		f.rows = s.Len()
	}
	f.index[s.Name] = len(f.series)
	f.series = append(f.series, s)
	return nil
}

// NumRows returns the number of rows.
func (f *Frame) NumRows() int {
	return f.rows
}

// NumColumns returns the number of columns.
func (f *Frame) NumColumns() int {
	return len(f.series)
}

// Columns returns the column names in order.
func (f *Frame) Columns() []string {
	names := make([]string, len(f.series))
	for i, s := range f.series {
		names[i] = s.Name
	}
	return names
}

// Column returns the named series, or false when absent.
func (f *Frame) Column(name string) (*Series, bool) {
	i, ok := f.index[name]
	if !ok {
		return nil, false
	}
	return f.series[i], true
}

// HasColumn reports whether the named column exists.
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.index[name]
	return ok
}

// NumericColumns returns the names of all numeric columns in order.
func (f *Frame) NumericColumns() []string {
	var names []string
	for _, s := range f.series {
		if s.Type == TypeNumeric {
			names = append(names, s.Name)
		}
	}
	return names
}

// CategoricalColumns returns the names of all text columns in order.
func (f *Frame) CategoricalColumns() []string {
	var names []string
	for _, s := range f.series {
		if s.Type == TypeText {
			names = append(names, s.Name)
		}
	}
	return names
}

// TimeColumn returns the first time-typed column, preferring one named
// "date". Returns false when the frame has no time column.
func (f *Frame) TimeColumn() (*Series, bool) {
	if s, ok := f.Column("date"); ok && s.Type == TypeTime {
		return s, true
	}
	for _, s := range f.series {
		if s.Type == TypeTime {
			return s, true
		}
	}
	return nil, false
}

// Row returns the raw cell values for row i, in column order.
func (f *Frame) Row(i int) []string {
	row := make([]string, len(f.series))
	for j, s := range f.series {
		row[j] = s.Raw[i]
	}
	return row
}

// rowKey builds a signature for duplicate detection.
func (f *Frame) rowKey(i int) string {
	return strings.Join(f.Row(i), "\x1f")
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	c := NewFrame()
	for _, s := range f.series {
		// error impossible: schemas match by construction
		c.AddSeries(s.clone())
	}
	return c
}

// Filter returns a new frame keeping only rows where keep[i] is true.
func (f *Frame) Filter(keep []bool) *Frame {
	c := NewFrame()
	for _, s := range f.series {
		c.AddSeries(s.filter(keep))
	}
	return c
}

// Paired returns the rows of columns a and b where both hold valid numeric
// values. The two returned slices always have equal length.
func (f *Frame) Paired(a, b string) (xs, ys []float64) {
	sa, okA := f.Column(a)
	sb, okB := f.Column(b)
	if !okA || !okB || sa.Type != TypeNumeric || sb.Type != TypeNumeric {
		return nil, nil
	}
	for i := 0; i < f.rows; i++ {
		if sa.Valid[i] && sb.Valid[i] && !math.IsNaN(sa.Float[i]) && !math.IsNaN(sb.Float[i]) {
			xs = append(xs, sa.Float[i])
			ys = append(ys, sb.Float[i])
		}
	}
	return xs, ys
}

// Concat combines frames row-wise. Columns are the union of all input
// columns in first-seen order; rows from frames lacking a column get
// missing cells. A column keeps its inferred type only when every frame
// carrying it agrees, otherwise it degrades to text.
func Concat(frames []*Frame) (*Frame, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames to combine")
	}
	if len(frames) == 1 {
		return frames[0].Clone(), nil
	}

	var order []string
	types := make(map[string]ColumnType)
	for _, f := range frames {
		for _, s := range f.series {
			t, seen := types[s.Name]
			if !seen {
				order = append(order, s.Name)
				types[s.Name] = s.Type
				continue
			}
			if t != s.Type {
				types[s.Name] = TypeText
			}
		}
	}

	total := 0
	for _, f := range frames {
		total += f.rows
	}

	combined := NewFrame()
	for _, name := range order {
		s := &Series{
			Name:  name,
			Type:  types[name],
			Raw:   make([]string, 0, total),
			Valid: make([]bool, 0, total),
		}
		for _, f := range frames {
			src, ok := f.Column(name)
			if !ok {
				s.Raw = append(s.Raw, make([]string, f.rows)...)
				s.Valid = append(s.Valid, make([]bool, f.rows)...)
				switch s.Type {
				case TypeNumeric:
					for i := 0; i < f.rows; i++ {
						s.Float = append(s.Float, math.NaN())
					}
				case TypeTime:
					s.Time = append(s.Time, make([]time.Time, f.rows)...)
				}
				continue
			}
			s.Raw = append(s.Raw, src.Raw...)
			s.Valid = append(s.Valid, src.Valid...)
			switch s.Type {
			case TypeNumeric:
				s.Float = append(s.Float, src.Float...)
			case TypeTime:
				s.Time = append(s.Time, src.Time...)
			}
		}
		if err := combined.AddSeries(s); err != nil {
			return nil, err
		}
	}

	return combined, nil
}

// formatFloat renders a float the way the exporters do, trimming
// insignificant trailing zeros.
func formatFloat(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return fmt.Sprintf("%d", int64(v))
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.6f", v), "0"), ".")
}

// Median returns the midpoint median of sorted values: the middle element
// for odd lengths, the mean of the two middle elements for even lengths.
func Median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
