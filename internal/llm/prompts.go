package llm

import (
	"fmt"
	"sort"
	"strings"

	"callpulse/pkg/contracts/domain"
)

// systemPrompt frames every insight request. Keeping it in one place
// keeps the model's voice consistent across sections.
const systemPrompt = `You are an expert call center consultant with deep knowledge in:
- Call center operations and best practices
- Key Performance Indicator (KPI) analysis
- Quality management and customer satisfaction
- Workforce optimization
- Data-driven decision making

Your role is to analyze call center data and provide actionable insights,
recommendations, and strategic guidance. Be specific, data-driven, and
practical in your recommendations.`

func summaryPrompt(kpis domain.KPISet) string {
	return fmt.Sprintf(`Analyze the following call center KPI data and provide a comprehensive summary:

%s
Please provide:
1. Overall performance assessment
2. Key strengths identified in the data
3. Areas of concern or underperformance
4. Notable trends or patterns

Keep your analysis concise but insightful.`, formatKPISet(kpis))
}

func patternsPrompt(kpis domain.KPISet, pairs []domain.CorrelationPair) string {
	return fmt.Sprintf(`Based on the following KPI data and correlations, identify key patterns and relationships:

KPI Data:
%s
Correlations:
%s
Please analyze:
1. Significant patterns in the data
2. Unexpected relationships between metrics
3. Potential cause-and-effect relationships
4. Patterns that require immediate attention

Provide specific examples from the data to support your analysis.`, formatKPISet(kpis), formatPairs(pairs))
}

func recommendationsPrompt(kpis domain.KPISet, issues []domain.Issue) string {
	var b strings.Builder
	for _, issue := range issues {
		b.WriteString("- ")
		b.WriteString(issue.Statement)
		b.WriteString("\n")
	}

	return fmt.Sprintf(`Based on this call center KPI data and identified issues, provide actionable recommendations:

KPI Data:
%s
Identified Issues:
%s
Please provide:
1. Top 3-5 priority recommendations
2. Specific action steps for each recommendation
3. Expected impact on KPIs
4. Implementation difficulty (low/medium/high)
5. Timeline for implementation

Focus on practical, achievable recommendations that will have measurable impact.`, formatKPISet(kpis), b.String())
}

func rootCausePrompt(metric string, current, target float64, related map[string]float64) string {
	return fmt.Sprintf(`Perform a root cause analysis for the following KPI performance gap:

Metric: %s
Current Value: %.2f
Target Value: %.2f
Gap: %.2f

Related Data:
%s
Please analyze:
1. Potential root causes for the performance gap
2. Supporting evidence from the data
3. Which causes are most likely based on the data
4. Recommended areas for deeper investigation

Use a structured approach (5 Whys or Fishbone) where appropriate.`,
		metric, current, target, target-current, formatMetricMap(related, "  "))
}

func comparePeriodsPrompt(previous, current domain.KPISet, previousName, currentName string) string {
	return fmt.Sprintf(`Compare call center performance between two periods:

%s Period:
%s
%s Period:
%s
Please analyze:
1. Key improvements and deteriorations
2. Percentage changes in critical metrics
3. Potential reasons for significant changes
4. Whether changes are statistically significant or just noise
5. Trends that should continue vs. trends that need intervention

Provide a balanced assessment with specific numbers.`,
		previousName, formatKPISet(previous), currentName, formatKPISet(current))
}

func executiveSummaryPrompt(kpis domain.KPISet, sections map[string]string) string {
	headings := []struct {
		key   string
		title string
	}{
		{domain.InsightSummary, "Summary"},
		{domain.InsightPatterns, "Patterns"},
		{domain.InsightRecommendations, "Recommendations"},
	}

	var b strings.Builder
	b.WriteString("KPI Data:\n")
	b.WriteString(formatKPISet(kpis))

	for _, h := range headings {
		if text := sections[h.key]; text != "" {
			fmt.Fprintf(&b, "\n%s:\n%s\n", h.title, text)
		}
	}

	return fmt.Sprintf(`Create an executive summary of this call center analysis:

Full Analysis:
%s
The summary should include:
1. Overall performance status (1-2 sentences)
2. Top 3 key findings
3. Top 3 priority actions
4. Expected outcomes from recommendations

Keep it concise (200-300 words) and focused on actionable insights for leadership.`, b.String())
}

func anomaliesPrompt(anomalies []domain.Anomaly) string {
	return fmt.Sprintf(`Explain the following anomalies detected in call center data:

Anomalies:
%s
For each anomaly, provide:
1. Possible explanations (at least 2-3)
2. How concerning is this anomaly (low/medium/high)
3. Recommended investigation steps
4. Whether this could be a data quality issue

Consider both operational and technical factors.`, formatAnomalies(anomalies))
}

// formatKPISet renders both KPI categories with sorted metric names so
// identical inputs always produce identical prompts.
func formatKPISet(kpis domain.KPISet) string {
	var b strings.Builder
	if len(kpis.Performance) > 0 {
		b.WriteString("performance:\n")
		b.WriteString(formatMetricMap(kpis.Performance, "  "))
	}
	if len(kpis.Quality) > 0 {
		b.WriteString("quality:\n")
		b.WriteString(formatMetricMap(kpis.Quality, "  "))
	}
	if b.Len() == 0 {
		b.WriteString("(no metrics computed)\n")
	}
	return b.String()
}

func formatMetricMap(metrics map[string]float64, indent string) string {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%s%s: %.2f\n", indent, name, metrics[name])
	}
	return b.String()
}

func formatPairs(pairs []domain.CorrelationPair) string {
	if len(pairs) == 0 {
		return "(none above threshold)\n"
	}
	var b strings.Builder
	for _, pair := range pairs {
		fmt.Fprintf(&b, "- %s and %s: r = %.3f\n", pair.MetricA, pair.MetricB, pair.Coefficient)
	}
	return b.String()
}

func formatAnomalies(anomalies []domain.Anomaly) string {
	if len(anomalies) == 0 {
		return "(none detected)\n"
	}
	var b strings.Builder
	for _, a := range anomalies {
		fmt.Fprintf(&b, "- %s row %d: value %.2f, score %.2f (%s)\n", a.Column, a.Row, a.Value, a.Score, a.Method)
	}
	return b.String()
}
