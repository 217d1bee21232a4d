package domain

import "time"

// Performance KPI keys.
const (
	KPIAverageHandleTime       = "aht"
	KPIAverageHandleTimeMedian = "aht_median"
	KPIAverageHandleTimeStd    = "aht_std"
	KPIFirstCallResolution     = "fcr_rate"
	KPIServiceLevel            = "service_level"
	KPIOccupancyRate           = "occupancy_rate"
	KPIAdherence               = "adherence"
)

// Quality KPI keys.
const (
	KPIQAScoreAvg     = "qa_score_avg"
	KPIQAScoreMedian  = "qa_score_median"
	KPIQAScoreStd     = "qa_score_std"
	KPICSATAvg        = "csat_avg"
	KPICSATMedian     = "csat_median"
	KPINPSAvg         = "nps_avg"
	KPIComplianceRate = "compliance_rate"
	KPIErrorRate      = "error_rate"
)

// LowerIsBetter reports whether a metric improves as it decreases.
// Handle time and error rate are tracked against a ceiling; every
// other KPI is measured against a floor.
func LowerIsBetter(metric string) bool {
	switch metric {
	case KPIAverageHandleTime, KPIAverageHandleTimeMedian, KPIErrorRate:
		return true
	}
	return false
}

// KPISet groups computed metrics by category. Keys are the KPI
// constants above; a metric is absent when its source columns were
// not present in the dataset.
type KPISet struct {
	Performance map[string]float64 `json:"performance"`
	Quality     map[string]float64 `json:"quality"`
}

// Count returns the total number of computed metrics.
func (s KPISet) Count() int {
	return len(s.Performance) + len(s.Quality)
}

// TargetComparison compares a computed KPI to its configured target.
type TargetComparison struct {
	Actual      float64 `json:"actual"`
	Target      float64 `json:"target"`
	Delta       float64 `json:"delta"`
	PctDelta    float64 `json:"pct_delta"`
	MeetsTarget bool    `json:"meets_target"`
}

// TrendBucket is one aggregated time bucket of a metric.
type TrendBucket struct {
	Period  time.Time `json:"period"`
	Mean    float64   `json:"mean"`
	Median  float64   `json:"median"`
	Std     float64   `json:"std"`
	Count   int       `json:"count"`
	Rolling float64   `json:"rolling_avg"`
}

// Trend is a metric aggregated over time buckets.
type Trend struct {
	Metric  string        `json:"metric"`
	Period  string        `json:"period"`
	Buckets []TrendBucket `json:"buckets"`
}
