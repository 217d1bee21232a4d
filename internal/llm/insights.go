package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"callpulse/internal/config"
	"callpulse/pkg/contracts/domain"
)

// defaultInsightConcurrency bounds parallel section generation.
const defaultInsightConcurrency = 3

// InsightConfig configures the insight generator. A nil Provider puts
// the generator in offline mode: every section is built from the
// numbers directly instead of a model response.
type InsightConfig struct {
	Provider       Provider
	Model          string
	Thresholds     config.ThresholdsConfig
	MaxConcurrency int
}

// InsightGenerator produces the narrative sections of a report. Every
// operation degrades to deterministic text on provider failure; insight
// generation never fails an analysis run.
type InsightGenerator struct {
	logger     *slog.Logger
	provider   Provider
	model      string
	thresholds config.ThresholdsConfig
	maxConc    int
}

// NewInsightGenerator creates an insight generator.
func NewInsightGenerator(logger *slog.Logger, cfg InsightConfig) *InsightGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaultInsightConcurrency
	}
	return &InsightGenerator{
		logger:     logger,
		provider:   cfg.Provider,
		model:      cfg.Model,
		thresholds: cfg.Thresholds,
		maxConc:    cfg.MaxConcurrency,
	}
}

// Summary narrates the overall KPI picture.
func (g *InsightGenerator) Summary(ctx context.Context, kpis domain.KPISet) string {
	issues := g.ExtractIssues(kpis)
	text, _ := g.generate(ctx, domain.InsightSummary, summaryPrompt(kpis), func() string {
		return g.fallbackSummary(kpis, issues)
	})
	return text
}

// Patterns interprets strong correlations alongside the KPIs.
func (g *InsightGenerator) Patterns(ctx context.Context, kpis domain.KPISet, pairs []domain.CorrelationPair) string {
	text, _ := g.generate(ctx, domain.InsightPatterns, patternsPrompt(kpis, pairs), func() string {
		return fallbackPatterns(pairs)
	})
	return text
}

// Recommendations proposes actions for the identified issues.
func (g *InsightGenerator) Recommendations(ctx context.Context, kpis domain.KPISet, issues []domain.Issue) string {
	text, _ := g.generate(ctx, domain.InsightRecommendations, recommendationsPrompt(kpis, issues), func() string {
		return fallbackRecommendations(issues)
	})
	return text
}

// RootCause analyzes why a metric misses its target, given related
// metric values for context.
func (g *InsightGenerator) RootCause(ctx context.Context, metric string, current, target float64, related map[string]float64) string {
	text, _ := g.generate(ctx, "root_cause", rootCausePrompt(metric, current, target, related), func() string {
		return fallbackRootCause(metric, current, target)
	})
	return text
}

// ComparePeriods contrasts two KPI sets. Empty names default to
// "Previous" and "Current".
func (g *InsightGenerator) ComparePeriods(ctx context.Context, previous, current domain.KPISet, previousName, currentName string) string {
	if previousName == "" {
		previousName = "Previous"
	}
	if currentName == "" {
		currentName = "Current"
	}
	text, _ := g.generate(ctx, "period_comparison", comparePeriodsPrompt(previous, current, previousName, currentName), func() string {
		return fallbackCompare(previous, current, previousName, currentName)
	})
	return text
}

// ExecutiveSummary condenses the full analysis for leadership. The
// sections map carries previously generated narrative to build on.
func (g *InsightGenerator) ExecutiveSummary(ctx context.Context, kpis domain.KPISet, sections map[string]string) string {
	issues := g.ExtractIssues(kpis)
	text, _ := g.generate(ctx, domain.InsightExecutiveSummary, executiveSummaryPrompt(kpis, sections), func() string {
		return g.fallbackExecutive(kpis, issues)
	})
	return text
}

// ExplainAnomalies narrates detected anomalies.
func (g *InsightGenerator) ExplainAnomalies(ctx context.Context, anomalies []domain.Anomaly) string {
	text, _ := g.generate(ctx, domain.InsightAnomalies, anomaliesPrompt(anomalies), func() string {
		return fallbackAnomalies(anomalies)
	})
	return text
}

// Comprehensive generates every applicable section. Independent
// sections run concurrently under a bounded group; the executive
// summary runs last so it can reference the others. Sections without
// input data (no correlations, no issues, no anomalies) are omitted.
func (g *InsightGenerator) Comprehensive(ctx context.Context, kpis domain.KPISet, pairs []domain.CorrelationPair, anomalies []domain.Anomaly) domain.InsightSet {
	start := time.Now()
	issues := g.ExtractIssues(kpis)

	var (
		summary, patterns, recommendations, anomalyText string

		summaryLLM   = true
		patternsLLM  = true
		recsLLM      = true
		anomaliesLLM = true
	)

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.maxConc)

	eg.Go(func() error {
		summary, summaryLLM = g.generate(gctx, domain.InsightSummary, summaryPrompt(kpis), func() string {
			return g.fallbackSummary(kpis, issues)
		})
		return nil
	})
	if len(pairs) > 0 {
		eg.Go(func() error {
			patterns, patternsLLM = g.generate(gctx, domain.InsightPatterns, patternsPrompt(kpis, pairs), func() string {
				return fallbackPatterns(pairs)
			})
			return nil
		})
	}
	if len(issues) > 0 {
		eg.Go(func() error {
			recommendations, recsLLM = g.generate(gctx, domain.InsightRecommendations, recommendationsPrompt(kpis, issues), func() string {
				return fallbackRecommendations(issues)
			})
			return nil
		})
	}
	if len(anomalies) > 0 {
		eg.Go(func() error {
			anomalyText, anomaliesLLM = g.generate(gctx, domain.InsightAnomalies, anomaliesPrompt(anomalies), func() string {
				return fallbackAnomalies(anomalies)
			})
			return nil
		})
	}

	// Section goroutines never return errors; Wait is the barrier.
	_ = eg.Wait()

	sections := map[string]string{domain.InsightSummary: summary}
	if patterns != "" {
		sections[domain.InsightPatterns] = patterns
	}
	if recommendations != "" {
		sections[domain.InsightRecommendations] = recommendations
	}
	if anomalyText != "" {
		sections[domain.InsightAnomalies] = anomalyText
	}

	executive, execLLM := g.generate(ctx, domain.InsightExecutiveSummary, executiveSummaryPrompt(kpis, sections), func() string {
		return g.fallbackExecutive(kpis, issues)
	})
	sections[domain.InsightExecutiveSummary] = executive

	fallback := !(summaryLLM && patternsLLM && recsLLM && anomaliesLLM && execLLM)

	g.logger.InfoContext(ctx, "insights generated",
		slog.String("provider", g.providerName()),
		slog.Int("sections", len(sections)),
		slog.Int("issues", len(issues)),
		slog.Bool("fallback", fallback),
		slog.Duration("duration", time.Since(start)),
	)

	return domain.InsightSet{
		Sections: sections,
		Provider: g.providerName(),
		Model:    g.model,
		Fallback: fallback,
	}
}

// ExtractIssues compares KPIs to their configured targets and returns
// the violations. Metrics without a configured target are skipped.
// Handle time and error rate violate by exceeding the target; all
// other metrics violate by falling short.
func (g *InsightGenerator) ExtractIssues(kpis domain.KPISet) []domain.Issue {
	issues := g.categoryIssues("performance", kpis.Performance)
	return append(issues, g.categoryIssues("quality", kpis.Quality)...)
}

func (g *InsightGenerator) categoryIssues(category string, metrics map[string]float64) []domain.Issue {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	var issues []domain.Issue
	for _, name := range names {
		value := metrics[name]
		target, ok := g.thresholds.Target(category, name)
		if !ok {
			continue
		}

		var gapPct float64
		var statement string
		if domain.LowerIsBetter(name) {
			if value <= target {
				continue
			}
			if target > 0 {
				gapPct = (value - target) / target * 100
			}
			statement = fmt.Sprintf("%s is above target: %.2f vs %.2f (%.1f%% gap)", name, value, target, gapPct)
		} else {
			if value >= target {
				continue
			}
			if target > 0 {
				gapPct = (target - value) / target * 100
			}
			statement = fmt.Sprintf("%s is below target: %.2f vs %.2f (%.1f%% gap)", name, value, target, gapPct)
		}

		issues = append(issues, domain.Issue{
			Metric:    name,
			Actual:    value,
			Target:    target,
			GapPct:    gapPct,
			Statement: statement,
		})
	}

	return issues
}

// generate runs one prompt through the provider. The boolean reports
// whether the model produced the text; false means the fallback did.
func (g *InsightGenerator) generate(ctx context.Context, section, prompt string, fallback func() string) (string, bool) {
	if g.provider == nil {
		return fallback(), false
	}

	start := time.Now()
	text, err := g.provider.Generate(ctx, Request{System: systemPrompt, Prompt: prompt})
	if err != nil {
		g.logger.WarnContext(ctx, "insight generation degraded to fallback",
			slog.String("section", section),
			slog.String("provider", g.provider.Name()),
			slog.String("error", err.Error()),
		)
		return fallback(), false
	}

	g.logger.DebugContext(ctx, "insight section generated",
		slog.String("section", section),
		slog.Duration("duration", time.Since(start)),
	)

	return strings.TrimSpace(text), true
}

func (g *InsightGenerator) providerName() string {
	if g.provider == nil {
		return "none"
	}
	return g.provider.Name()
}

// The fallback builders below produce readable section text straight
// from the numbers. They carry the pipeline when no provider is
// configured or the provider is down.

func (g *InsightGenerator) fallbackSummary(kpis domain.KPISet, issues []domain.Issue) string {
	var b strings.Builder
	b.WriteString("Automated KPI summary (no language model consulted).\n\n")
	b.WriteString(formatKPISet(kpis))

	if len(issues) == 0 {
		b.WriteString("\nAll metrics with configured targets are on track.\n")
	} else {
		b.WriteString("\nMetrics off target:\n")
		for _, issue := range issues {
			b.WriteString("- " + issue.Statement + "\n")
		}
	}

	return b.String()
}

func fallbackPatterns(pairs []domain.CorrelationPair) string {
	var b strings.Builder
	b.WriteString("Strongest correlations observed:\n")
	b.WriteString(formatPairs(pairs))
	b.WriteString("\nCorrelation does not imply causation; treat these pairs as leads for investigation.\n")
	return b.String()
}

func fallbackRecommendations(issues []domain.Issue) string {
	if len(issues) == 0 {
		return "No target gaps detected; maintain current operations.\n"
	}
	var b strings.Builder
	b.WriteString("Suggested focus areas based on target gaps:\n")
	for _, issue := range issues {
		fmt.Fprintf(&b, "- Close the gap on %s: currently %.2f against a target of %.2f.\n",
			issue.Metric, issue.Actual, issue.Target)
	}
	return b.String()
}

func fallbackRootCause(metric string, current, target float64) string {
	return fmt.Sprintf(
		"%s is at %.2f against a target of %.2f (gap %.2f). "+
			"Review staffing levels, call routing, and recent process changes for contributing factors.\n",
		metric, current, target, target-current)
}

func fallbackCompare(previous, current domain.KPISet, previousName, currentName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s vs %s:\n", currentName, previousName)

	written := writeDeltas(&b, previous.Performance, current.Performance)
	written += writeDeltas(&b, previous.Quality, current.Quality)
	if written == 0 {
		b.WriteString("- no overlapping metrics to compare\n")
	}

	return b.String()
}

func writeDeltas(b *strings.Builder, previous, current map[string]float64) int {
	names := make([]string, 0, len(current))
	for name := range current {
		if _, ok := previous[name]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		prev := previous[name]
		curr := current[name]
		fmt.Fprintf(b, "- %s: %.2f -> %.2f (%+.2f)\n", name, prev, curr, curr-prev)
	}

	return len(names)
}

func (g *InsightGenerator) fallbackExecutive(kpis domain.KPISet, issues []domain.Issue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Executive summary: %d metrics computed, %d off target.\n", kpis.Count(), len(issues))

	if len(issues) > 0 {
		b.WriteString("Priority gaps:\n")
		for i, issue := range issues {
			if i == 3 {
				break
			}
			b.WriteString("- " + issue.Statement + "\n")
		}
	} else {
		b.WriteString("Operations are meeting every configured target.\n")
	}

	return b.String()
}

func fallbackAnomalies(anomalies []domain.Anomaly) string {
	var b strings.Builder
	b.WriteString("Detected anomalies:\n")
	b.WriteString(formatAnomalies(anomalies))
	b.WriteString("\nValidate the source data for these rows before acting on them.\n")
	return b.String()
}
