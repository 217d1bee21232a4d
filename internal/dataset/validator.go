package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"callpulse/internal/config"
	"callpulse/internal/errors"
	"callpulse/pkg/contracts/domain"
)

// Range bounds the plausible values for one metric column.
type Range struct {
	Min float64
	Max float64
}

// DefaultRanges returns the plausibility bounds for the known call-center
// metric columns. Durations and counts must be non-negative; score columns
// are bounded by their survey scales.
func DefaultRanges() map[string]Range {
	inf := math.Inf(1)
	return map[string]Range{
		config.ColHandleTime:        {Min: 0, Max: inf},
		config.ColFirstCallRes:      {Min: 0, Max: 1},
		config.ColCallsOffered:      {Min: 0, Max: inf},
		config.ColCallsAnswered:     {Min: 0, Max: inf},
		config.ColAnswerTime:        {Min: 0, Max: inf},
		config.ColLoggedTime:        {Min: 0, Max: inf},
		config.ColProductiveTime:    {Min: 0, Max: inf},
		config.ColScheduledTime:     {Min: 0, Max: inf},
		config.ColActualTime:        {Min: 0, Max: inf},
		config.ColQAScore:           {Min: 0, Max: 100},
		config.ColCSATScore:         {Min: 1, Max: 5},
		config.ColNPSScore:          {Min: -100, Max: 100},
		config.ColCompliancePass:    {Min: 0, Max: 1},
		config.ColErrorCount:        {Min: 0, Max: inf},
		config.ColTotalInteractions: {Min: 0, Max: inf},
	}
}

// ValidatorConfig holds configuration options for the Validator.
type ValidatorConfig struct {
	RequiredColumns []string
	MinDataPoints   int
	Ranges          map[string]Range
}

// Validator checks a loaded frame against the schema, type, range and
// row-count requirements before analysis is allowed to run.
type Validator struct {
	logger *slog.Logger
	cfg    ValidatorConfig
}

// NewValidator creates a validator with the given configuration.
func NewValidator(logger *slog.Logger, cfg ValidatorConfig) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MinDataPoints <= 0 {
		cfg.MinDataPoints = 30
	}
	if cfg.Ranges == nil {
		cfg.Ranges = DefaultRanges()
	}
	return &Validator{logger: logger, cfg: cfg}
}

// Validate runs all checks and assembles the validation result. It returns
// an error wrapping ErrSchemaMismatch or ErrTooFewRows when a hard
// requirement fails; the result is still populated in that case so callers
// can report what went wrong.
func (v *Validator) Validate(ctx context.Context, f *Frame) (*domain.ValidationResult, error) {
	result := &domain.ValidationResult{
		Quality:        v.Quality(f),
		RowCount:       f.NumRows(),
		MinDataPoints:  v.cfg.MinDataPoints,
		SufficientData: f.NumRows() >= v.cfg.MinDataPoints,
	}

	if len(v.cfg.RequiredColumns) > 0 {
		schema := v.CheckSchema(f, v.cfg.RequiredColumns)
		result.Schema = &schema
	}
	result.RangeViolations = v.CheckRanges(f)
	result.TypeMismatches = v.CheckTypes(f)

	v.logger.InfoContext(ctx, "dataset validated",
		slog.Int("rows", result.RowCount),
		slog.Bool("sufficient_data", result.SufficientData),
		slog.Int("range_violations", len(result.RangeViolations)),
		slog.Int("duplicate_rows", result.Quality.DuplicateRows))

	if result.Schema != nil && !result.Schema.Valid {
		return result, fmt.Errorf("%w: %v", errors.ErrSchemaMismatch, result.Schema.Missing)
	}
	if !result.SufficientData {
		return result, fmt.Errorf("%w: have %d rows, need %d",
			errors.ErrTooFewRows, result.RowCount, v.cfg.MinDataPoints)
	}

	return result, nil
}

// CheckSchema verifies that every required column is present.
func (v *Validator) CheckSchema(f *Frame, required []string) domain.SchemaResult {
	var missing []string
	for _, col := range required {
		if !f.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	return domain.SchemaResult{
		Valid:   len(missing) == 0,
		Missing: missing,
	}
}

// CheckTypes reports known metric columns that did not parse as numeric.
func (v *Validator) CheckTypes(f *Frame) map[string]string {
	mismatches := make(map[string]string)
	for col := range v.cfg.Ranges {
		s, ok := f.Column(col)
		if !ok {
			continue
		}
		if s.Type != TypeNumeric {
			mismatches[col] = fmt.Sprintf("expected numeric, got %s", s.Type)
		}
	}
	if len(mismatches) == 0 {
		return nil
	}
	return mismatches
}

// CheckRanges counts values outside the plausible bounds per column.
func (v *Validator) CheckRanges(f *Frame) domain.RangeViolations {
	violations := make(domain.RangeViolations)
	for col, bounds := range v.cfg.Ranges {
		s, ok := f.Column(col)
		if !ok || s.Type != TypeNumeric {
			continue
		}
		count := 0
		for i, val := range s.Float {
			if !s.Valid[i] || math.IsNaN(val) {
				continue
			}
			if val < bounds.Min || val > bounds.Max {
				count++
			}
		}
		if count > 0 {
			violations[col] = count
		}
	}
	if len(violations) == 0 {
		return nil
	}
	return violations
}

// Quality profiles the frame: missing values, duplicates and descriptive
// statistics per numeric column.
func (v *Validator) Quality(f *Frame) domain.QualityReport {
	report := domain.QualityReport{
		TotalRows:          f.NumRows(),
		TotalColumns:       f.NumColumns(),
		MissingValues:      make(map[string]int),
		MissingPercentage:  make(map[string]float64),
		NumericColumns:     f.NumericColumns(),
		CategoricalColumns: f.CategoricalColumns(),
		NumericStats:       make(map[string]domain.ColumnStats),
		DuplicateRows:      countDuplicates(f),
	}

	for _, name := range f.Columns() {
		s, _ := f.Column(name)
		missing := s.MissingCount()
		report.MissingValues[name] = missing
		if f.NumRows() > 0 {
			report.MissingPercentage[name] = float64(missing) / float64(f.NumRows()) * 100
		}
	}

	for _, name := range report.NumericColumns {
		s, _ := f.Column(name)
		vals := s.FloatValues()
		if len(vals) == 0 {
			continue
		}
		report.NumericStats[name] = describeColumn(vals)
	}

	return report
}

// countDuplicates counts rows whose full raw content already appeared.
func countDuplicates(f *Frame) int {
	seen := make(map[string]struct{}, f.NumRows())
	dupes := 0
	for i := 0; i < f.NumRows(); i++ {
		key := f.rowKey(i)
		if _, ok := seen[key]; ok {
			dupes++
			continue
		}
		seen[key] = struct{}{}
	}
	return dupes
}

// describeColumn computes the summary statistics for one numeric column.
func describeColumn(vals []float64) domain.ColumnStats {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)

	stats := domain.ColumnStats{
		Mean:   stat.Mean(vals, nil),
		Median: Median(sorted),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
	}
	if len(vals) > 1 {
		stats.Std = stat.StdDev(vals, nil)
	}
	return stats
}
