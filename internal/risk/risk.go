// Package risk implements the second scoring stage: four independent risk
// assessments (market, credit, liquidity, operational) rolled up into an
// overall level. Each assessor is isolated; a panicking assessor degrades to
// a Medium/50 placeholder instead of losing the whole evaluation.
package risk

import (
	"context"
	"fmt"
	"math"

	"finsight-backend/internal/analysis"
	"finsight-backend/internal/dataset"
)

// Risk levels.
const (
	LevelLow    = "Low"
	LevelMedium = "Medium"
	LevelHigh   = "High"
)

// Category names, also the JSON keys of Record.Categories.
const (
	CategoryMarket      = "market_risk"
	CategoryCredit      = "credit_risk"
	CategoryLiquidity   = "liquidity_risk"
	CategoryOperational = "operational_risk"
)

// Assessment is one category's verdict.
type Assessment struct {
	Level   string   `json:"level"`
	Score   float64  `json:"score"`
	Factors []string `json:"factors"`
}

// Record is the risk stage output.
type Record struct {
	OverallRisk     string                `json:"overall_risk"`
	RiskScore       float64               `json:"risk_score"`
	Categories      map[string]Assessment `json:"categories"`
	Mitigations     []string              `json:"mitigation_strategies"`
	Recommendations []string              `json:"recommendations"`
	KeyPoints       []string              `json:"key_points"`
	Confidence      string                `json:"confidence"`
	Error           string                `json:"error,omitempty"`
	Narrative       string                `json:"narrative,omitempty"`
}

// Thresholds are the externally tunable scoring bands.
type Thresholds struct {
	VolatilityLow    float64
	VolatilityHigh   float64
	SwingGrowth      float64
	DebtRatioLow     float64
	DebtRatioHigh    float64
	ThinMargin       float64
	CurrentRatioLow  float64
	CurrentRatioHigh float64
	ExpenseOutpace   float64
	WeakMargin       float64
	ScoreLowBelow    float64
	ScoreMediumBelow float64
}

// DefaultThresholds returns the default scoring bands.
func DefaultThresholds() Thresholds {
	return Thresholds{
		VolatilityLow:    5,
		VolatilityHigh:   25,
		SwingGrowth:      30,
		DebtRatioLow:     30,
		DebtRatioHigh:    80,
		ThinMargin:       5,
		CurrentRatioLow:  1.0,
		CurrentRatioHigh: 2.0,
		ExpenseOutpace:   5,
		WeakMargin:       10,
		ScoreLowBelow:    40,
		ScoreMediumBelow: 65,
	}
}

// Stage evaluates financial risk.
type Stage struct {
	Thresholds Thresholds
}

// New constructs a Stage with the given thresholds.
func New(th Thresholds) *Stage {
	return &Stage{Thresholds: th}
}

type assessor func(d *dataset.Dataset, metrics *analysis.Record) Assessment

// Evaluate runs all four assessors and rolls up the overall level. It never
// returns an error; a cancelled context or empty input degrades to a
// Low-confidence record.
func (s *Stage) Evaluate(ctx context.Context, d *dataset.Dataset, metrics *analysis.Record) Record {
	record := Record{
		Categories: map[string]Assessment{},
		Confidence: analysis.ConfidenceHigh,
	}

	if err := ctx.Err(); err != nil {
		record.OverallRisk = LevelMedium
		record.Confidence = analysis.ConfidenceLow
		record.Error = err.Error()
		return record
	}

	assessors := map[string]assessor{
		CategoryMarket:      s.assessMarket,
		CategoryCredit:      s.assessCredit,
		CategoryLiquidity:   s.assessLiquidity,
		CategoryOperational: s.assessOperational,
	}
	for name, assess := range assessors {
		record.Categories[name] = runIsolated(name, assess, d, metrics)
	}

	total := 0.0
	for _, a := range record.Categories {
		total += a.Score
	}
	record.RiskScore = total / float64(len(record.Categories))
	record.OverallRisk = s.levelForScore(record.RiskScore)
	record.Mitigations = s.mitigations(record.Categories)
	record.Recommendations = recommendations(record.OverallRisk, record.Mitigations)
	record.KeyPoints = keyPoints(&record)

	if d.Empty() {
		record.Confidence = analysis.ConfidenceLow
		record.Error = "risk evaluated without usable numeric data"
	}
	return record
}

// runIsolated contains assessor panics. A failed assessor reports Medium/50
// so the rollup stays a mean of four scores.
func runIsolated(name string, assess assessor, d *dataset.Dataset, metrics *analysis.Record) (a Assessment) {
	defer func() {
		if r := recover(); r != nil {
			a = Assessment{
				Level:   LevelMedium,
				Score:   50,
				Factors: []string{fmt.Sprintf("%s assessment failed: %v", name, r)},
			}
		}
	}()
	return assess(d, metrics)
}

func (s *Stage) assessMarket(d *dataset.Dataset, metrics *analysis.Record) Assessment {
	revenue, ok := d.NumericSeries("revenue")
	if !ok || len(revenue) < 2 {
		// No history to judge by; market exposure stays at the Medium default.
		return Assessment{
			Level:   LevelMedium,
			Score:   50,
			Factors: []string{"Insufficient revenue history for volatility analysis"},
		}
	}

	m := mean(revenue)
	a := Assessment{Level: LevelMedium, Score: 50}
	if m != 0 {
		volatility := stdDev(revenue) / m * 100
		switch {
		case volatility < s.Thresholds.VolatilityLow:
			a.Level, a.Score = LevelLow, 30
			a.Factors = append(a.Factors, fmt.Sprintf("Stable revenue with %.1f%% volatility", volatility))
		case volatility > s.Thresholds.VolatilityHigh:
			a.Level, a.Score = LevelHigh, 80
			a.Factors = append(a.Factors, fmt.Sprintf("High revenue volatility of %.1f%%", volatility))
		default:
			a.Factors = append(a.Factors, fmt.Sprintf("Moderate revenue volatility of %.1f%%", volatility))
		}
	}

	if growth, found := metrics.Metric("revenue_growth"); found && math.Abs(growth) > s.Thresholds.SwingGrowth {
		a.Score = capScore(a.Score + 10)
		a.Factors = append(a.Factors, fmt.Sprintf("Large revenue swing of %.1f%%", growth))
	}
	return a
}

func (s *Stage) assessCredit(d *dataset.Dataset, metrics *analysis.Record) Assessment {
	liabilities, hasLiabilities := latestOf(d, "liabilities")
	assets, hasAssets := latestOf(d, "assets")

	a := Assessment{Level: LevelLow, Score: 30}
	if hasLiabilities && hasAssets && assets != 0 {
		ratio := liabilities / assets * 100
		switch {
		case ratio < s.Thresholds.DebtRatioLow:
			a.Level, a.Score = LevelLow, 20
			a.Factors = append(a.Factors, fmt.Sprintf("Healthy debt ratio of %.1f%%", ratio))
		case ratio > s.Thresholds.DebtRatioHigh:
			a.Level, a.Score = LevelHigh, 85
			a.Factors = append(a.Factors, fmt.Sprintf("Excessive debt ratio of %.1f%%", ratio))
		default:
			a.Level, a.Score = LevelMedium, 50
			a.Factors = append(a.Factors, fmt.Sprintf("Moderate debt ratio of %.1f%%", ratio))
		}
	} else {
		a.Factors = append(a.Factors, "No balance sheet data; credit exposure assumed low")
	}

	if margin, found := metrics.Metric("profit_margin"); found && margin < s.Thresholds.ThinMargin {
		a.Score = capScore(a.Score + 15)
		a.Factors = append(a.Factors, fmt.Sprintf("Thin profit margin of %.1f%% strains debt service", margin))
	}
	return a
}

func (s *Stage) assessLiquidity(d *dataset.Dataset, metrics *analysis.Record) Assessment {
	currentAssets, hasCA := latestOf(d, "current_assets")
	currentLiabilities, hasCL := latestOf(d, "current_liabilities")

	a := Assessment{Level: LevelMedium, Score: 50}
	if hasCA && hasCL && currentLiabilities != 0 {
		ratio := currentAssets / currentLiabilities
		switch {
		case ratio >= s.Thresholds.CurrentRatioHigh:
			a.Level, a.Score = LevelLow, 25
			a.Factors = append(a.Factors, fmt.Sprintf("Strong current ratio of %.2f", ratio))
		case ratio < s.Thresholds.CurrentRatioLow:
			a.Level, a.Score = LevelHigh, 80
			a.Factors = append(a.Factors, fmt.Sprintf("Current ratio of %.2f below 1.0", ratio))
		default:
			a.Factors = append(a.Factors, fmt.Sprintf("Adequate current ratio of %.2f", ratio))
		}
	} else {
		a.Factors = append(a.Factors, "No working capital data; liquidity assumed moderate")
	}

	if profit, ok := d.NumericSeries("profit"); ok {
		recent := profit
		if len(recent) > 3 {
			recent = recent[len(recent)-3:]
		}
		for _, v := range recent {
			if v < 0 {
				a.Score = capScore(a.Score + 15)
				a.Factors = append(a.Factors, "Recent negative profit pressures cash flow")
				break
			}
		}
	}
	return a
}

func (s *Stage) assessOperational(d *dataset.Dataset, metrics *analysis.Record) Assessment {
	a := Assessment{Level: LevelLow, Score: 30}

	expenses, hasExpenses := d.NumericSeries("expenses")
	revenue, hasRevenue := d.NumericSeries("revenue")
	if hasExpenses && hasRevenue {
		expenseGrowth := analysis.GrowthRate(expenses)
		revenueGrowth := analysis.GrowthRate(revenue)
		if expenseGrowth > revenueGrowth+s.Thresholds.ExpenseOutpace {
			a.Level, a.Score = LevelMedium, 60
			a.Factors = append(a.Factors, fmt.Sprintf(
				"Expenses growing %.1f%% against revenue growth of %.1f%%", expenseGrowth, revenueGrowth))
		}
	}

	if margin, found := metrics.Metric("profit_margin"); found && margin < s.Thresholds.WeakMargin {
		a.Score = capScore(a.Score + 20)
		a.Factors = append(a.Factors, fmt.Sprintf("Weak margin of %.1f%% limits operating headroom", margin))
	}
	if len(a.Factors) == 0 {
		a.Factors = append(a.Factors, "No operational stress indicators detected")
	}
	return a
}

func (s *Stage) levelForScore(score float64) string {
	switch {
	case score < s.Thresholds.ScoreLowBelow:
		return LevelLow
	case score < s.Thresholds.ScoreMediumBelow:
		return LevelMedium
	default:
		return LevelHigh
	}
}

// mitigations maps elevated categories to fixed strategies. Low categories
// contribute nothing.
func (s *Stage) mitigations(categories map[string]Assessment) []string {
	playbook := map[string]string{
		CategoryMarket:      "Diversify revenue streams and hedge against market downturns",
		CategoryCredit:      "Reduce debt load and renegotiate repayment terms",
		CategoryLiquidity:   "Build cash reserves and secure a standby credit line",
		CategoryOperational: "Tighten cost controls and review operational efficiency",
	}
	var out []string
	for _, name := range []string{CategoryMarket, CategoryCredit, CategoryLiquidity, CategoryOperational} {
		if a, ok := categories[name]; ok && a.Level != LevelLow {
			out = append(out, playbook[name])
		}
	}
	return out
}

// recommendations derives the risk action list: urgency strings driven by
// the overall level, then the first two mitigation strategies.
func recommendations(overall string, mitigations []string) []string {
	var out []string
	switch overall {
	case LevelHigh:
		out = append(out,
			"URGENT: High risk level requires immediate risk mitigation actions",
			"Conduct detailed risk audit and implement comprehensive risk management framework")
	case LevelMedium:
		out = append(out, "Monitor risk factors closely and implement preventive measures")
	}
	if len(mitigations) > 2 {
		mitigations = mitigations[:2]
	}
	return append(out, mitigations...)
}

func keyPoints(record *Record) []string {
	points := []string{
		fmt.Sprintf("Overall Risk: %s (score %.1f)", record.OverallRisk, record.RiskScore),
	}
	for _, name := range []string{CategoryMarket, CategoryCredit, CategoryLiquidity, CategoryOperational} {
		if a, ok := record.Categories[name]; ok && a.Level == LevelHigh {
			points = append(points, fmt.Sprintf("%s is High", name))
		}
	}
	return points
}

func latestOf(d *dataset.Dataset, name string) (float64, bool) {
	series, ok := d.NumericSeries(name)
	if !ok || len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1], true
}

func capScore(score float64) float64 {
	if score > 100 {
		return 100
	}
	return score
}

func mean(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	total := 0.0
	for _, v := range series {
		total += v
	}
	return total / float64(len(series))
}

func stdDev(series []float64) float64 {
	n := len(series)
	if n < 2 {
		return 0
	}
	m := mean(series)
	total := 0.0
	for _, v := range series {
		diff := v - m
		total += diff * diff
	}
	return math.Sqrt(total / float64(n-1))
}
