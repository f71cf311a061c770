package consensus

import (
	"context"
	"testing"

	"finsight-backend/internal/analysis"
	"finsight-backend/internal/risk"
	"finsight-backend/internal/strategy"
)

func healthyRecords() (*analysis.Record, *risk.Record, *strategy.Record) {
	metrics := &analysis.Record{
		Metrics:    map[string]float64{"revenue_growth": 25, "profit_margin": 22},
		Insights:   []string{"Strong revenue growth of 25.0% indicates healthy business expansion"},
		Confidence: analysis.ConfidenceHigh,
	}
	risks := &risk.Record{
		OverallRisk: risk.LevelLow,
		RiskScore:   30,
		Categories:  map[string]risk.Assessment{},
		Confidence:  analysis.ConfidenceHigh,
	}
	strat := &strategy.Record{
		Position: strategy.Position{
			Strength:        strategy.PositionStrong,
			GrowthPotential: strategy.PotentialHigh,
		},
		Confidence: analysis.ConfidenceHigh,
	}
	return metrics, risks, strat
}

func TestFoldConfidence(t *testing.T) {
	cases := []struct {
		name   string
		labels []string
		want   string
	}{
		{"all high", []string{"High", "High", "High"}, analysis.ConfidenceHigh},
		{"one medium drags down", []string{"High", "Medium", "High"}, analysis.ConfidenceMedium},
		{"one low dominates", []string{"High", "Low", "High"}, analysis.ConfidenceLow},
		{"unknown counts as low", []string{"High", "whatever"}, analysis.ConfidenceLow},
		{"empty counts as low", []string{"High", ""}, analysis.ConfidenceLow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FoldConfidence(tc.labels...); got != tc.want {
				t.Fatalf("FoldConfidence(%v) = %q, want %q", tc.labels, got, tc.want)
			}
		})
	}
}

func TestBuildHealthyRun(t *testing.T) {
	metrics, risks, strat := healthyRecords()
	record := Build(context.Background(), metrics, risks, strat)

	if record.Confidence != analysis.ConfidenceHigh {
		t.Fatalf("confidence = %q, want High", record.Confidence)
	}
	if len(record.Contributions) != 3 {
		t.Fatalf("contributions = %v", record.Contributions)
	}
	for source, c := range record.Contributions {
		if c.Status != "completed" {
			t.Fatalf("%s status = %q", source, c.Status)
		}
	}
	if len(record.KeyFindings) < 3 {
		t.Fatalf("key findings = %v", record.KeyFindings)
	}
	if record.Summary == "" {
		t.Fatal("expected a summary")
	}
}

func TestBuildDegradedStageDragsConfidence(t *testing.T) {
	metrics, risks, strat := healthyRecords()
	metrics.Confidence = analysis.ConfidenceLow
	metrics.Error = "no usable numeric data in input"

	record := Build(context.Background(), metrics, risks, strat)
	if record.Confidence != analysis.ConfidenceLow {
		t.Fatalf("confidence = %q, want Low when a stage degraded", record.Confidence)
	}
	if record.Contributions[SourceAnalysis].Status != "degraded" {
		t.Fatalf("analysis contribution = %+v", record.Contributions[SourceAnalysis])
	}
	if record.Contributions[SourceRisk].Status != "completed" {
		t.Fatal("healthy stages must still report completed")
	}
}

func TestUnifyDeduplicatesAndKeepsRiskPriority(t *testing.T) {
	metrics := &analysis.Record{
		Recommendations: []string{
			"Improve profitability through cost optimization and pricing strategy review",
		},
	}
	risks := &risk.Record{
		Recommendations: []string{
			"Monitor risk factors closely and implement preventive measures",
			"Reduce debt load and renegotiate repayment terms",
		},
	}
	strat := &strategy.Record{
		Recommendations: []strategy.Recommendation{
			{Recommendation: "Reduce debt load and renegotiate repayment terms", Priority: strategy.PriorityHigh},
			{Recommendation: "  improve profitability through cost optimization and pricing strategy review  ", Priority: strategy.PriorityMedium},
			{Recommendation: "Accelerate market expansion through strategic investments", Priority: strategy.PriorityHigh},
		},
	}

	recs := unify(metrics, risks, strat)
	if len(recs) != 4 {
		t.Fatalf("expected 4 deduplicated recommendations, got %d: %v", len(recs), recs)
	}
	for _, rec := range recs[:2] {
		if rec.Source != SourceRisk || rec.Priority != strategy.PriorityHigh {
			t.Fatalf("risk recommendation = %+v, want High priority", rec)
		}
	}
	if recs[2].Source != SourceAnalysis || recs[2].Priority != strategy.PriorityMedium {
		t.Fatalf("analysis recommendation = %+v", recs[2])
	}
	// Strategy keeps its own priority rather than defaulting.
	if recs[3].Source != SourceStrategy || recs[3].Priority != strategy.PriorityHigh {
		t.Fatalf("strategy recommendation = %+v", recs[3])
	}
}

func TestKeyFindingsRestateTrendRiskAndOpportunities(t *testing.T) {
	metrics, risks, strat := healthyRecords()
	metrics.Trend = "positive"
	strat.Opportunities = []strategy.Opportunity{
		{Type: "Market Expansion"},
		{Type: "Digital Innovation"},
	}

	record := Build(context.Background(), metrics, risks, strat)
	want := []string{
		"Financial performance shows positive trend",
		"Overall risk level assessed as: Low",
		"Identified 2 strategic opportunities",
	}
	for _, w := range want {
		found := false
		for _, f := range record.KeyFindings {
			if f == w {
				found = true
			}
		}
		if !found {
			t.Fatalf("missing finding %q in %v", w, record.KeyFindings)
		}
	}
}

func TestKeyFindingsFlagHighCategories(t *testing.T) {
	metrics, risks, strat := healthyRecords()
	risks.Categories[risk.CategoryLiquidity] = risk.Assessment{Level: risk.LevelHigh, Score: 80}

	record := Build(context.Background(), metrics, risks, strat)
	found := false
	for _, f := range record.KeyFindings {
		if f == "Elevated liquidity risk requires attention" {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing liquidity finding in %v", record.KeyFindings)
	}
}

func TestBuildCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	metrics, risks, strat := healthyRecords()
	record := Build(ctx, metrics, risks, strat)
	if record.Confidence != analysis.ConfidenceLow {
		t.Fatalf("confidence = %q, want Low", record.Confidence)
	}
}
