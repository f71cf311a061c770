package risk

import (
	"context"
	"testing"

	"finsight-backend/internal/analysis"
	"finsight-backend/internal/dataset"
)

func buildDataset(t *testing.T, names []string, rows [][]float64) *dataset.Dataset {
	t.Helper()
	cols := make([]dataset.Column, len(names))
	for i, name := range names {
		cols[i] = dataset.Column{Name: name, Kind: dataset.KindNumber}
	}
	d, err := dataset.New(cols)
	if err != nil {
		t.Fatalf("dataset.New: %v", err)
	}
	for _, row := range rows {
		cells := make([]dataset.Cell, len(row))
		for i, v := range row {
			cells[i] = dataset.Number(v)
		}
		if err := d.AppendRow(cells); err != nil {
			t.Fatalf("AppendRow: %v", err)
		}
	}
	return d
}

func metricsWith(m map[string]float64) *analysis.Record {
	return &analysis.Record{Metrics: m}
}

func TestAssessCreditModerateDebt(t *testing.T) {
	d := buildDataset(t, []string{"liabilities", "assets"}, [][]float64{
		{200000, 500000},
	})

	a := New(DefaultThresholds()).assessCredit(d, metricsWith(map[string]float64{"profit_margin": 20}))
	if a.Level != LevelMedium || a.Score != 50 {
		t.Fatalf("debt ratio 40%%: got %s/%v, want Medium/50", a.Level, a.Score)
	}
}

func TestAssessCreditBands(t *testing.T) {
	cases := []struct {
		name        string
		liabilities float64
		assets      float64
		margin      float64
		wantLevel   string
		wantScore   float64
	}{
		{"healthy", 100000, 500000, 20, LevelLow, 20},
		{"excessive", 450000, 500000, 20, LevelHigh, 85},
		{"thin margin surcharge", 100000, 500000, 3, LevelLow, 35},
	}
	stage := New(DefaultThresholds())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := buildDataset(t, []string{"liabilities", "assets"}, [][]float64{
				{tc.liabilities, tc.assets},
			})
			a := stage.assessCredit(d, metricsWith(map[string]float64{"profit_margin": tc.margin}))
			if a.Level != tc.wantLevel || a.Score != tc.wantScore {
				t.Fatalf("got %s/%v, want %s/%v", a.Level, a.Score, tc.wantLevel, tc.wantScore)
			}
		})
	}
}

func TestAssessCreditNoBalanceSheetDefaultsLow(t *testing.T) {
	d := buildDataset(t, []string{"revenue"}, [][]float64{{100000}})
	a := New(DefaultThresholds()).assessCredit(d, metricsWith(nil))
	if a.Level != LevelLow || a.Score != 30 {
		t.Fatalf("got %s/%v, want Low/30 default", a.Level, a.Score)
	}
}

func TestAssessMarketVolatilityBands(t *testing.T) {
	stage := New(DefaultThresholds())

	stable := buildDataset(t, []string{"revenue"}, [][]float64{
		{100000}, {100500}, {101000},
	})
	a := stage.assessMarket(stable, metricsWith(map[string]float64{"revenue_growth": 1.0}))
	if a.Level != LevelLow || a.Score != 30 {
		t.Fatalf("stable revenue: got %s/%v, want Low/30", a.Level, a.Score)
	}

	volatile := buildDataset(t, []string{"revenue"}, [][]float64{
		{100000}, {20000}, {150000},
	})
	a = stage.assessMarket(volatile, metricsWith(map[string]float64{"revenue_growth": 50.0}))
	if a.Level != LevelHigh {
		t.Fatalf("volatile revenue: got %s, want High", a.Level)
	}
	// The 50% swing adds the surcharge on top of the 80 base.
	if a.Score != 90 {
		t.Fatalf("volatile revenue score = %v, want 90", a.Score)
	}
}

func TestAssessMarketShortHistory(t *testing.T) {
	// A single observation gives nothing to judge volatility by, so market
	// exposure stays at the Medium default rather than reading as safe.
	d := buildDataset(t, []string{"revenue"}, [][]float64{{100000}})
	a := New(DefaultThresholds()).assessMarket(d, metricsWith(nil))
	if a.Level != LevelMedium || a.Score != 50 {
		t.Fatalf("got %s/%v, want Medium/50", a.Level, a.Score)
	}
}

func TestAssessLiquidityBands(t *testing.T) {
	stage := New(DefaultThresholds())
	cases := []struct {
		name      string
		ca        float64
		cl        float64
		wantLevel string
		wantScore float64
	}{
		{"strong", 400000, 100000, LevelLow, 25},
		{"stressed", 90000, 100000, LevelHigh, 80},
		{"adequate", 150000, 100000, LevelMedium, 50},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := buildDataset(t, []string{"current_assets", "current_liabilities"}, [][]float64{
				{tc.ca, tc.cl},
			})
			a := stage.assessLiquidity(d, metricsWith(nil))
			if a.Level != tc.wantLevel || a.Score != tc.wantScore {
				t.Fatalf("got %s/%v, want %s/%v", a.Level, a.Score, tc.wantLevel, tc.wantScore)
			}
		})
	}
}

func TestAssessLiquidityNegativeProfitSurcharge(t *testing.T) {
	d := buildDataset(t, []string{"current_assets", "current_liabilities", "profit"}, [][]float64{
		{400000, 100000, 50000},
		{400000, 100000, -10000},
		{400000, 100000, 20000},
	})
	a := New(DefaultThresholds()).assessLiquidity(d, metricsWith(nil))
	if a.Score != 40 {
		t.Fatalf("score = %v, want 25 + 15 surcharge", a.Score)
	}
}

func TestAssessOperational(t *testing.T) {
	stage := New(DefaultThresholds())

	calm := buildDataset(t, []string{"revenue", "expenses"}, [][]float64{
		{100000, 50000},
		{120000, 55000},
	})
	a := stage.assessOperational(calm, metricsWith(map[string]float64{"profit_margin": 25}))
	if a.Level != LevelLow || a.Score != 30 {
		t.Fatalf("calm: got %s/%v, want Low/30", a.Level, a.Score)
	}

	// Expenses grow 50% against 10% revenue growth, margin 8%.
	stressed := buildDataset(t, []string{"revenue", "expenses"}, [][]float64{
		{100000, 60000},
		{110000, 90000},
	})
	a = stage.assessOperational(stressed, metricsWith(map[string]float64{"profit_margin": 8}))
	if a.Level != LevelMedium || a.Score != 80 {
		t.Fatalf("stressed: got %s/%v, want Medium/80", a.Level, a.Score)
	}
}

func TestEvaluateOverallIsMeanOfScores(t *testing.T) {
	d := buildDataset(t, []string{"revenue", "expenses", "liabilities", "assets"}, [][]float64{
		{100000, 50000, 100000, 500000},
		{101000, 50500, 100000, 500000},
		{102000, 51000, 100000, 500000},
	})
	metrics := metricsWith(map[string]float64{
		"revenue_growth": 2.0,
		"profit_margin":  25.0,
	})

	record := New(DefaultThresholds()).Evaluate(context.Background(), d, metrics)

	// Market Low/30, credit Low/20, liquidity Medium/50 (no working capital
	// data), operational Low/30: mean 32.5, overall Low.
	if record.RiskScore != 32.5 {
		t.Fatalf("risk score = %v, want 32.5", record.RiskScore)
	}
	if record.OverallRisk != LevelLow {
		t.Fatalf("overall = %s, want Low", record.OverallRisk)
	}
	if len(record.Categories) != 4 {
		t.Fatalf("expected 4 categories, got %d", len(record.Categories))
	}
	// Only the non-Low liquidity category contributes a mitigation.
	if len(record.Mitigations) != 1 {
		t.Fatalf("mitigations = %v", record.Mitigations)
	}
	// Low overall adds no urgency strings; the mitigation carries through.
	if len(record.Recommendations) != 1 || record.Recommendations[0] != record.Mitigations[0] {
		t.Fatalf("recommendations = %v", record.Recommendations)
	}
}

func TestRecommendationsByOverallLevel(t *testing.T) {
	mitigations := []string{"first mitigation", "second mitigation", "third mitigation"}
	cases := []struct {
		name    string
		overall string
		want    []string
	}{
		{"high adds two urgent actions", LevelHigh, []string{
			"URGENT: High risk level requires immediate risk mitigation actions",
			"Conduct detailed risk audit and implement comprehensive risk management framework",
			"first mitigation",
			"second mitigation",
		}},
		{"medium adds monitoring", LevelMedium, []string{
			"Monitor risk factors closely and implement preventive measures",
			"first mitigation",
			"second mitigation",
		}},
		{"low carries only mitigations", LevelLow, []string{
			"first mitigation",
			"second mitigation",
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := recommendations(tc.overall, mitigations)
			if len(got) != len(tc.want) {
				t.Fatalf("recommendations = %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("recommendation %d = %q, want %q", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestEvaluatePanickingAssessorDegrades(t *testing.T) {
	called := false
	a := runIsolated(CategoryMarket, func(*dataset.Dataset, *analysis.Record) Assessment {
		called = true
		panic("boom")
	}, nil, nil)

	if !called {
		t.Fatal("assessor not invoked")
	}
	if a.Level != LevelMedium || a.Score != 50 {
		t.Fatalf("got %s/%v, want Medium/50 placeholder", a.Level, a.Score)
	}
	if len(a.Factors) == 0 {
		t.Fatal("expected a failure factor")
	}
}

func TestEvaluateEmptyDatasetLowConfidence(t *testing.T) {
	empty, _ := dataset.New(nil)
	record := New(DefaultThresholds()).Evaluate(context.Background(), empty, metricsWith(nil))
	if record.Confidence != analysis.ConfidenceLow {
		t.Fatalf("confidence = %q, want Low", record.Confidence)
	}
	if record.OverallRisk == "" {
		t.Fatal("degraded record must still carry an overall level")
	}
}
