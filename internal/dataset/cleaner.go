package dataset

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"callpulse/pkg/contracts/domain"
)

// MissingStrategy selects how the cleaner fills missing values.
type MissingStrategy string

const (
	// StrategyAuto fills numeric columns with the median and categorical
	// columns with an "Unknown" label.
	StrategyAuto MissingStrategy = "auto"
	// StrategyDrop removes any row with a missing value.
	StrategyDrop MissingStrategy = "drop"
	// StrategyMean fills numeric columns with the column mean.
	StrategyMean MissingStrategy = "mean"
	// StrategyMedian fills numeric columns with the column median.
	StrategyMedian MissingStrategy = "median"
	// StrategyForwardFill carries the previous valid value forward.
	StrategyForwardFill MissingStrategy = "forward_fill"
)

// CleanerConfig holds configuration options for the Cleaner.
type CleanerConfig struct {
	Strategy       MissingStrategy
	OutlierStd     float64 // z-score threshold, default 3
	RemoveOutliers bool
	UnknownLabel   string
}

// Cleaner prepares a validated frame for analysis: duplicate rows are
// dropped, missing values are filled per the configured strategy, and
// extreme outliers are optionally removed by z-score.
type Cleaner struct {
	logger *slog.Logger
	cfg    CleanerConfig
}

// NewCleaner creates a cleaner with the given configuration.
func NewCleaner(logger *slog.Logger, cfg CleanerConfig) *Cleaner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyAuto
	}
	if cfg.OutlierStd <= 0 {
		cfg.OutlierStd = 3
	}
	if cfg.UnknownLabel == "" {
		cfg.UnknownLabel = "Unknown"
	}
	return &Cleaner{logger: logger, cfg: cfg}
}

// Clean returns a cleaned copy of the frame and a summary of what changed.
// The input frame is not modified.
func (c *Cleaner) Clean(ctx context.Context, f *Frame) (*Frame, *domain.CleaningSummary, error) {
	summary := &domain.CleaningSummary{
		InitialRows:  f.NumRows(),
		FilledValues: make(map[string]int),
		Strategy:     string(c.cfg.Strategy),
	}

	cleaned := c.dropDuplicates(f, summary)

	if c.cfg.Strategy == StrategyDrop {
		cleaned = c.dropMissingRows(cleaned, summary)
	} else {
		c.fillMissing(cleaned, summary)
	}

	if c.cfg.RemoveOutliers {
		cleaned = c.dropOutliers(cleaned, summary)
	}

	summary.FinalRows = cleaned.NumRows()
	if len(summary.FilledValues) == 0 {
		summary.FilledValues = nil
	}

	c.logger.InfoContext(ctx, "dataset cleaned",
		slog.String("strategy", string(c.cfg.Strategy)),
		slog.Int("initial_rows", summary.InitialRows),
		slog.Int("final_rows", summary.FinalRows),
		slog.Int("duplicates_dropped", summary.DuplicatesDropped),
		slog.Int("outliers_dropped", summary.OutliersDropped))

	return cleaned, summary, nil
}

// dropDuplicates keeps the first occurrence of each distinct row.
func (c *Cleaner) dropDuplicates(f *Frame, summary *domain.CleaningSummary) *Frame {
	seen := make(map[string]struct{}, f.NumRows())
	keep := make([]bool, f.NumRows())
	for i := 0; i < f.NumRows(); i++ {
		key := f.rowKey(i)
		if _, dup := seen[key]; dup {
			summary.DuplicatesDropped++
			continue
		}
		seen[key] = struct{}{}
		keep[i] = true
	}
	if summary.DuplicatesDropped == 0 {
		return f.Clone()
	}
	return f.Filter(keep)
}

// dropMissingRows removes every row that has at least one missing cell.
func (c *Cleaner) dropMissingRows(f *Frame, summary *domain.CleaningSummary) *Frame {
	keep := make([]bool, f.NumRows())
	for i := range keep {
		keep[i] = true
	}
	dropped := 0
	for _, name := range f.Columns() {
		s, _ := f.Column(name)
		for i, ok := range s.Valid {
			if !ok && keep[i] {
				keep[i] = false
				dropped++
			}
		}
	}
	if dropped == 0 {
		return f
	}
	return f.Filter(keep)
}

// fillMissing fills missing values in place per the configured strategy.
func (c *Cleaner) fillMissing(f *Frame, summary *domain.CleaningSummary) {
	for _, name := range f.Columns() {
		s, _ := f.Column(name)
		missing := s.MissingCount()
		if missing == 0 {
			continue
		}

		switch s.Type {
		case TypeNumeric:
			filled := c.fillNumeric(s)
			if filled > 0 {
				summary.FilledValues[name] = filled
			}
		case TypeText:
			filled := c.fillCategorical(s)
			if filled > 0 {
				summary.FilledValues[name] = filled
			}
		default:
			// Time columns are never synthesized; rows with missing
			// timestamps fall out of trend buckets instead.
		}
	}
}

// fillNumeric fills missing numeric cells and returns the fill count.
func (c *Cleaner) fillNumeric(s *Series) int {
	switch c.cfg.Strategy {
	case StrategyForwardFill:
		return forwardFill(s)
	case StrategyMean:
		return fillConstant(s, stat.Mean(s.FloatValues(), nil))
	default: // auto, median
		vals := s.FloatValues()
		if len(vals) == 0 {
			return 0
		}
		sorted := append([]float64(nil), vals...)
		sort.Float64s(sorted)
		return fillConstant(s, Median(sorted))
	}
}

// fillCategorical labels missing text cells and returns the fill count.
func (c *Cleaner) fillCategorical(s *Series) int {
	if c.cfg.Strategy == StrategyForwardFill {
		filled := 0
		last := ""
		for i := range s.Raw {
			if s.Valid[i] {
				last = s.Raw[i]
				continue
			}
			if last != "" {
				s.SetText(i, last)
				filled++
			}
		}
		return filled
	}

	filled := 0
	for i := range s.Raw {
		if !s.Valid[i] {
			s.SetText(i, c.cfg.UnknownLabel)
			filled++
		}
	}
	return filled
}

// fillConstant writes v into every missing cell.
func fillConstant(s *Series, v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	filled := 0
	for i := range s.Float {
		if !s.Valid[i] || math.IsNaN(s.Float[i]) {
			s.SetFloat(i, v)
			filled++
		}
	}
	return filled
}

// forwardFill carries the previous valid value into missing cells.
func forwardFill(s *Series) int {
	filled := 0
	last := math.NaN()
	for i := range s.Float {
		if s.Valid[i] && !math.IsNaN(s.Float[i]) {
			last = s.Float[i]
			continue
		}
		if !math.IsNaN(last) {
			s.SetFloat(i, last)
			filled++
		}
	}
	return filled
}

// dropOutliers removes rows holding a value more than OutlierStd standard
// deviations from its column mean. Columns with near-zero variance are
// skipped so constant columns do not wipe the dataset.
func (c *Cleaner) dropOutliers(f *Frame, summary *domain.CleaningSummary) *Frame {
	keep := make([]bool, f.NumRows())
	for i := range keep {
		keep[i] = true
	}

	for _, name := range f.NumericColumns() {
		s, _ := f.Column(name)
		vals := s.FloatValues()
		if len(vals) < 3 {
			continue
		}
		mean := stat.Mean(vals, nil)
		std := stat.StdDev(vals, nil)
		if std < 1e-12 {
			continue
		}
		for i, v := range s.Float {
			if !s.Valid[i] || math.IsNaN(v) {
				continue
			}
			if math.Abs(v-mean)/std > c.cfg.OutlierStd {
				keep[i] = false
			}
		}
	}

	dropped := 0
	for _, k := range keep {
		if !k {
			dropped++
		}
	}
	if dropped == 0 {
		return f
	}
	summary.OutliersDropped = dropped
	return f.Filter(keep)
}
