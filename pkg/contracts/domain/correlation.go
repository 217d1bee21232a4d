package domain

import (
	"encoding/json"
	"math"
)

// CorrelationMethod selects the correlation coefficient.
type CorrelationMethod string

const (
	CorrelationPearson  CorrelationMethod = "pearson"
	CorrelationSpearman CorrelationMethod = "spearman"
	CorrelationKendall  CorrelationMethod = "kendall"
)

// CorrelationMatrix is a symmetric matrix of pairwise coefficients
// over the named columns. Values[i][j] is the correlation between
// Columns[i] and Columns[j]; NaN marks pairs with no overlap.
type CorrelationMatrix struct {
	Method  CorrelationMethod `json:"method"`
	Columns []string          `json:"columns"`
	Values  [][]float64       `json:"values"`
}

// MarshalJSON renders non-finite cells as null. encoding/json rejects
// raw NaN and infinite float64 values.
func (m CorrelationMatrix) MarshalJSON() ([]byte, error) {
	rows := make([][]*float64, len(m.Values))
	for i, row := range m.Values {
		cells := make([]*float64, len(row))
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			value := v
			cells[j] = &value
		}
		rows[i] = cells
	}
	return json.Marshal(struct {
		Method  CorrelationMethod `json:"method"`
		Columns []string          `json:"columns"`
		Values  [][]*float64      `json:"values"`
	}{m.Method, m.Columns, rows})
}

// At returns the coefficient between two columns by name.
func (m CorrelationMatrix) At(a, b string) (float64, bool) {
	ai, bi := -1, -1
	for i, c := range m.Columns {
		if c == a {
			ai = i
		}
		if c == b {
			bi = i
		}
	}
	if ai < 0 || bi < 0 {
		return 0, false
	}
	return m.Values[ai][bi], true
}

// CorrelationPair is one strong pairwise relationship.
type CorrelationPair struct {
	MetricA     string  `json:"metric_a"`
	MetricB     string  `json:"metric_b"`
	Coefficient float64 `json:"coefficient"`
}

// RegressionResult is a simple linear fit of one feature to a target.
type RegressionResult struct {
	Feature     string  `json:"feature"`
	Coefficient float64 `json:"coefficient"`
	Intercept   float64 `json:"intercept"`
	R2          float64 `json:"r2_score"`
	RMSE        float64 `json:"rmse"`
	Correlation float64 `json:"correlation"`
}

// Driver is a metric correlated with a target KPI.
type Driver struct {
	Metric      string  `json:"metric"`
	Coefficient float64 `json:"coefficient"`
}

// PCAResult summarizes a principal component analysis over the
// standardized numeric columns.
type PCAResult struct {
	Components         int         `json:"components"`
	Columns            []string    `json:"columns"`
	ExplainedVariance  []float64   `json:"explained_variance_ratio"`
	CumulativeVariance []float64   `json:"cumulative_variance"`
	Loadings           [][]float64 `json:"loadings"`
}

// CorrelationAnalysis bundles the relationship analyses for one run.
type CorrelationAnalysis struct {
	Matrix      CorrelationMatrix `json:"matrix"`
	StrongPairs []CorrelationPair `json:"strong_pairs"`
	PCA         *PCAResult        `json:"pca,omitempty"`
}

// Anomaly is a single flagged observation in a metric column.
type Anomaly struct {
	Column string  `json:"column"`
	Row    int     `json:"row"`
	Value  float64 `json:"value"`
	Score  float64 `json:"score"`
	Method string  `json:"method"`
}
