// Package consensus implements the final stage: it folds the three scoring
// records into one view with key findings, deduplicated unified
// recommendations, and an aggregate confidence that is the weakest stage
// confidence. A run where any stage degraded must never report High.
package consensus

import (
	"context"
	"fmt"
	"strings"

	"finsight-backend/internal/analysis"
	"finsight-backend/internal/risk"
	"finsight-backend/internal/strategy"
)

// Source tags on unified recommendations, matching the report JSON keys of
// the stages that produced them.
const (
	SourceAnalysis = "data_analysis"
	SourceRisk     = "risk_evaluation"
	SourceStrategy = "market_strategy"
)

// Recommendation is one unified, deduplicated recommendation. Risk-sourced
// entries are always High priority.
type Recommendation struct {
	Text     string `json:"text"`
	Source   string `json:"source"`
	Priority string `json:"priority"`
}

// Contribution summarizes what one stage brought to the consensus.
type Contribution struct {
	Status    string   `json:"status"`
	Highlight string   `json:"highlight,omitempty"`
	KeyPoints []string `json:"key_points,omitempty"`
}

// Record is the consensus stage output.
type Record struct {
	Summary         string                  `json:"summary"`
	KeyFindings     []string                `json:"key_findings"`
	Recommendations []Recommendation        `json:"unified_recommendations"`
	Contributions   map[string]Contribution `json:"agent_contributions"`
	Confidence      string                  `json:"confidence"`
	Narrative       string                  `json:"narrative,omitempty"`
}

// Build folds the three stage records into the consensus view.
func Build(ctx context.Context, metrics *analysis.Record, risks *risk.Record, strat *strategy.Record) Record {
	record := Record{
		Contributions: map[string]Contribution{},
	}

	if err := ctx.Err(); err != nil {
		record.Confidence = analysis.ConfidenceLow
		record.Summary = fmt.Sprintf("consensus aborted: %v", err)
		return record
	}

	record.Contributions[SourceAnalysis] = contributionFor(metrics.Error, metricsHighlight(metrics), metrics.KeyPoints)
	record.Contributions[SourceRisk] = contributionFor(risks.Error,
		fmt.Sprintf("Overall risk %s (score %.1f)", risks.OverallRisk, risks.RiskScore), risks.KeyPoints)
	record.Contributions[SourceStrategy] = contributionFor(strat.Error,
		fmt.Sprintf("%s strategic position with %s growth potential",
			strat.Position.Strength, strat.Position.GrowthPotential),
		strat.KeyPoints)

	record.KeyFindings = keyFindings(metrics, risks, strat)
	record.Recommendations = unify(metrics, risks, strat)
	record.Confidence = FoldConfidence(metrics.Confidence, risks.Confidence, strat.Confidence)
	record.Summary = summarize(&record, risks, strat)
	return record
}

func contributionFor(stageErr, highlight string, keyPoints []string) Contribution {
	c := Contribution{Status: "completed", Highlight: highlight, KeyPoints: keyPoints}
	if stageErr != "" {
		c.Status = "degraded"
		c.Highlight = stageErr
	}
	return c
}

func metricsHighlight(metrics *analysis.Record) string {
	growth, hasGrowth := metrics.Metric("revenue_growth")
	margin, hasMargin := metrics.Metric("profit_margin")
	switch {
	case hasGrowth && hasMargin:
		return fmt.Sprintf("Revenue growth %.1f%% at %.1f%% margin", growth, margin)
	case hasGrowth:
		return fmt.Sprintf("Revenue growth %.1f%%", growth)
	case hasMargin:
		return fmt.Sprintf("Profit margin %.1f%%", margin)
	default:
		return "No headline metrics computed"
	}
}

func keyFindings(metrics *analysis.Record, risks *risk.Record, strat *strategy.Record) []string {
	var findings []string
	if len(metrics.Metrics) > 0 {
		findings = append(findings, fmt.Sprintf("Financial performance shows %s trend", trendOrStable(metrics.Trend)))
	}
	findings = append(findings, metrics.Insights...)
	findings = append(findings, fmt.Sprintf("Overall risk level assessed as: %s", orUnknown(risks.OverallRisk)))
	for _, name := range []string{
		risk.CategoryMarket, risk.CategoryCredit, risk.CategoryLiquidity, risk.CategoryOperational,
	} {
		if a, ok := risks.Categories[name]; ok && a.Level == risk.LevelHigh {
			findings = append(findings, fmt.Sprintf("Elevated %s requires attention",
				strings.ReplaceAll(name, "_", " ")))
		}
	}
	if len(strat.Opportunities) > 0 {
		findings = append(findings, fmt.Sprintf("Identified %d strategic opportunities", len(strat.Opportunities)))
	}
	return findings
}

func trendOrStable(trend string) string {
	if trend == "" {
		return "stable"
	}
	return trend
}

// unify merges stage recommendations and deduplicates them by normalized
// text. Risk entries are merged first so a recommendation present in both a
// risk and a strategy record keeps its High priority.
func unify(metrics *analysis.Record, risks *risk.Record, strat *strategy.Record) []Recommendation {
	seen := map[string]bool{}
	var out []Recommendation

	add := func(text, source, priority string) {
		key := strings.ToLower(strings.TrimSpace(text))
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, Recommendation{Text: text, Source: source, Priority: priority})
	}

	for _, text := range risks.Recommendations {
		add(text, SourceRisk, strategy.PriorityHigh)
	}
	for _, text := range metrics.Recommendations {
		add(text, SourceAnalysis, strategy.PriorityMedium)
	}
	for _, rec := range strat.Recommendations {
		add(rec.Recommendation, SourceStrategy, rec.Priority)
	}
	return out
}

// FoldConfidence returns the weakest of the given confidence labels. Unknown
// or empty labels count as Low.
func FoldConfidence(labels ...string) string {
	rank := func(label string) int {
		switch label {
		case analysis.ConfidenceHigh:
			return 2
		case analysis.ConfidenceMedium:
			return 1
		default:
			return 0
		}
	}
	lowest := 2
	for _, label := range labels {
		if r := rank(label); r < lowest {
			lowest = r
		}
	}
	switch lowest {
	case 2:
		return analysis.ConfidenceHigh
	case 1:
		return analysis.ConfidenceMedium
	default:
		return analysis.ConfidenceLow
	}
}

func summarize(record *Record, risks *risk.Record, strat *strategy.Record) string {
	return fmt.Sprintf(
		"%s strategic position, %s overall risk; %d key findings and %d unified recommendations (%s confidence)",
		orUnknown(strat.Position.Strength), orUnknown(risks.OverallRisk),
		len(record.KeyFindings), len(record.Recommendations), record.Confidence)
}

func orUnknown(label string) string {
	if label == "" {
		return "Unknown"
	}
	return label
}
