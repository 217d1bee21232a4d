// Package domain contains the shared domain types for call-center KPI
// analysis: dataset quality, computed metrics, correlation results,
// generated insights, and analysis run state.
package domain

// ColumnStats holds summary statistics for a single numeric column.
type ColumnStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// QualityReport describes the quality of a loaded dataset before cleaning.
type QualityReport struct {
	TotalRows          int                    `json:"total_rows"`
	TotalColumns       int                    `json:"total_columns"`
	MissingValues      map[string]int         `json:"missing_values"`
	MissingPercentage  map[string]float64     `json:"missing_percentage"`
	DuplicateRows      int                    `json:"duplicate_rows"`
	NumericColumns     []string               `json:"numeric_columns"`
	CategoricalColumns []string               `json:"categorical_columns"`
	NumericStats       map[string]ColumnStats `json:"numeric_stats"`
}

// SchemaResult reports required-column validation.
type SchemaResult struct {
	Valid   bool     `json:"valid"`
	Missing []string `json:"missing,omitempty"`
}

// RangeViolations maps column name to the number of out-of-range values.
type RangeViolations map[string]int

// ValidationResult bundles all dataset validations for one load.
type ValidationResult struct {
	Quality         QualityReport     `json:"quality"`
	Schema          *SchemaResult     `json:"schema,omitempty"`
	TypeMismatches  map[string]string `json:"type_mismatches,omitempty"`
	RangeViolations RangeViolations   `json:"range_violations,omitempty"`
	SufficientData  bool              `json:"sufficient_data"`
	RowCount        int               `json:"row_count"`
	MinDataPoints   int               `json:"min_data_points"`
}

// CleaningSummary records what the cleaner changed.
type CleaningSummary struct {
	InitialRows       int            `json:"initial_rows"`
	FinalRows         int            `json:"final_rows"`
	DuplicatesDropped int            `json:"duplicates_dropped"`
	OutliersDropped   int            `json:"outliers_dropped"`
	FilledValues      map[string]int `json:"filled_values,omitempty"`
	Strategy          string         `json:"strategy"`
}
