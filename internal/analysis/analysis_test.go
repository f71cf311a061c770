package analysis

import (
	"context"
	"math"
	"testing"

	"finsight-backend/internal/dataset"
)

func financialDataset(t *testing.T, cols map[string][]float64) *dataset.Dataset {
	t.Helper()
	var names []string
	var descriptors []dataset.Column
	for _, name := range []string{"revenue", "profit", "expenses", "investment", "liabilities", "assets"} {
		if _, ok := cols[name]; ok {
			names = append(names, name)
			descriptors = append(descriptors, dataset.Column{Name: name, Kind: dataset.KindNumber})
		}
	}
	d, err := dataset.New(descriptors)
	if err != nil {
		t.Fatalf("dataset.New: %v", err)
	}
	rows := 0
	for _, series := range cols {
		if len(series) > rows {
			rows = len(series)
		}
	}
	for i := 0; i < rows; i++ {
		row := make([]dataset.Cell, 0, len(names))
		for _, name := range names {
			series := cols[name]
			if i < len(series) {
				row = append(row, dataset.Number(series[i]))
			} else {
				row = append(row, dataset.Missing())
			}
		}
		if err := d.AppendRow(row); err != nil {
			t.Fatalf("AppendRow: %v", err)
		}
	}
	return d
}

func TestGrowthRate(t *testing.T) {
	cases := []struct {
		name   string
		series []float64
		want   float64
	}{
		{"standard", []float64{100000, 120000, 150000, 180000}, 80.0},
		{"decline", []float64{200, 150}, -25.0},
		{"single point", []float64{100}, 0.0},
		{"empty", nil, 0.0},
		{"zero first", []float64{0, 500}, 0.0},
		{"rounding", []float64{3, 4}, 33.33},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := GrowthRate(tc.series); got != tc.want {
				t.Fatalf("GrowthRate(%v) = %v, want %v", tc.series, got, tc.want)
			}
		})
	}
}

func TestClassifyTrend(t *testing.T) {
	cases := []struct {
		name   string
		series []float64
		want   string
	}{
		{"increasing", []float64{1, 2, 3}, TrendIncreasing},
		{"decreasing", []float64{3, 2, 1}, TrendDecreasing},
		{"fluctuating", []float64{1, 3, 2}, TrendFluctuating},
		{"flat counts as increasing", []float64{5, 5, 5}, TrendIncreasing},
		{"only last three considered", []float64{100, 1, 2, 3}, TrendIncreasing},
		{"two points", []float64{1, 2}, TrendInsufficient},
		{"empty", nil, TrendInsufficient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyTrend(tc.series); got != tc.want {
				t.Fatalf("ClassifyTrend(%v) = %q, want %q", tc.series, got, tc.want)
			}
		})
	}
}

func TestAnalyzeMetrics(t *testing.T) {
	d := financialDataset(t, map[string][]float64{
		"revenue":  {100000, 120000, 150000, 180000},
		"profit":   {20000, 25000, 32000, 40000},
		"expenses": {80000, 95000, 118000, 140000},
	})

	record := New(DefaultBands()).Analyze(context.Background(), d)
	if record.Error != "" {
		t.Fatalf("unexpected error: %s", record.Error)
	}
	if record.Confidence != ConfidenceHigh {
		t.Fatalf("confidence = %q, want High", record.Confidence)
	}

	if got := record.Metrics["total_revenue"]; got != 550000 {
		t.Fatalf("total_revenue = %v", got)
	}
	if got := record.Metrics["revenue_growth"]; got != 80.0 {
		t.Fatalf("revenue_growth = %v, want 80.0", got)
	}
	wantMargin := 117000.0 / 550000.0 * 100
	if got := record.Metrics["profit_margin"]; math.Abs(got-wantMargin) > 1e-9 {
		t.Fatalf("profit_margin = %v, want %v", got, wantMargin)
	}
	if record.Trend != "positive" {
		t.Fatalf("trend = %q, want positive", record.Trend)
	}
	if record.Trends["revenue"] != TrendIncreasing {
		t.Fatalf("revenue trend = %q", record.Trends["revenue"])
	}
}

func TestAnalyzeOmitsAbsentMetrics(t *testing.T) {
	d := financialDataset(t, map[string][]float64{
		"profit": {5000, 6000},
	})

	record := New(DefaultBands()).Analyze(context.Background(), d)
	if _, ok := record.Metric("total_revenue"); ok {
		t.Fatal("total_revenue must be omitted without a revenue column")
	}
	if _, ok := record.Metric("profit_margin"); ok {
		t.Fatal("profit_margin must be omitted without revenue")
	}
	if _, ok := record.Metric("total_profit"); !ok {
		t.Fatal("total_profit should be present")
	}
}

func TestAnalyzeEmptyDatasetDegrades(t *testing.T) {
	empty, _ := dataset.New(nil)
	record := New(DefaultBands()).Analyze(context.Background(), empty)
	if record.Confidence != ConfidenceLow {
		t.Fatalf("confidence = %q, want Low", record.Confidence)
	}
	if record.Error == "" {
		t.Fatal("expected degradation reason")
	}
	if record.Metrics == nil || record.Trends == nil {
		t.Fatal("degraded record must keep non-nil maps")
	}
}

func TestAnalyzeCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := financialDataset(t, map[string][]float64{"revenue": {1, 2}})
	record := New(DefaultBands()).Analyze(ctx, d)
	if record.Confidence != ConfidenceLow || record.Error == "" {
		t.Fatalf("expected Low-confidence degraded record, got %+v", record)
	}
}

func TestSampleStatistics(t *testing.T) {
	stats := describe([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if stats.Mean != 5 {
		t.Fatalf("mean = %v", stats.Mean)
	}
	if stats.Median != 4.5 {
		t.Fatalf("median = %v", stats.Median)
	}
	// Sample variance with n-1 divisor: 32/7.
	if math.Abs(stats.Variance-32.0/7.0) > 1e-9 {
		t.Fatalf("variance = %v", stats.Variance)
	}
	if math.Abs(stats.StdDev-math.Sqrt(32.0/7.0)) > 1e-9 {
		t.Fatalf("std dev = %v", stats.StdDev)
	}
	if stats.Min != 2 || stats.Max != 9 {
		t.Fatalf("min/max = %v/%v", stats.Min, stats.Max)
	}
}

func TestInsightsAndRecommendations(t *testing.T) {
	d := financialDataset(t, map[string][]float64{
		"revenue":  {100000, 150000},
		"profit":   {30000, 50000},
		"expenses": {50000, 60000},
	})

	record := New(DefaultBands()).Analyze(context.Background(), d)
	if len(record.Insights) == 0 {
		t.Fatal("expected growth and margin insights")
	}

	found := false
	for _, in := range record.Insights {
		if in == "Strong revenue growth of 50.0% indicates healthy business expansion" {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing growth insight in %v", record.Insights)
	}

	// Margin 32% and growth 50%: neither recommendation trigger fires.
	if len(record.Recommendations) != 0 {
		t.Fatalf("unexpected recommendations: %v", record.Recommendations)
	}
}
