package domain

// Insight section keys produced by the generator.
const (
	InsightSummary          = "summary"
	InsightPatterns         = "patterns"
	InsightRecommendations  = "recommendations"
	InsightAnomalies        = "anomalies"
	InsightExecutiveSummary = "executive_summary"
)

// InsightSet holds the narrative sections produced for one analysis.
// Keys are the Insight constants above. Fallback is true when the
// sections were produced without an LLM (offline mode or provider
// failure).
type InsightSet struct {
	Sections map[string]string `json:"sections"`
	Provider string            `json:"provider"`
	Model    string            `json:"model,omitempty"`
	Fallback bool              `json:"fallback"`
}

// Section returns a named section, or empty string.
func (s InsightSet) Section(key string) string {
	if s.Sections == nil {
		return ""
	}
	return s.Sections[key]
}

// Issue is a threshold violation surfaced to the recommendation prompt.
type Issue struct {
	Metric    string  `json:"metric"`
	Actual    float64 `json:"actual"`
	Target    float64 `json:"target"`
	GapPct    float64 `json:"gap_pct"`
	Statement string  `json:"statement"`
}
