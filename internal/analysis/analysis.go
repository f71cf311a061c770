// Package analysis implements the first scoring stage: financial metrics,
// descriptive statistics, and trend classification over the canonical
// dataset. All derivations are closed-form and deterministic.
package analysis

import (
	"context"
	"fmt"
	"math"
	"sort"

	"finsight-backend/internal/dataset"
)

// Confidence labels shared by all stages.
const (
	ConfidenceHigh   = "High"
	ConfidenceMedium = "Medium"
	ConfidenceLow    = "Low"
)

// Trend classifications. The check is a strict 3-point monotonicity test
// over the last three observations, not a statistical trend test.
const (
	TrendIncreasing   = "Increasing"
	TrendDecreasing   = "Decreasing"
	TrendFluctuating  = "Fluctuating"
	TrendInsufficient = "Insufficient data"
)

// Stats holds descriptive statistics for one numeric column. Std-dev and
// variance are sample statistics (n-1 divisor); series shorter than two
// points report zero.
type Stats struct {
	Mean     float64 `json:"mean"`
	Median   float64 `json:"median"`
	StdDev   float64 `json:"std_dev"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Variance float64 `json:"variance"`
}

// Record is the metrics stage output.
type Record struct {
	Metrics         map[string]float64 `json:"metrics"`
	Trend           string             `json:"trend"`
	Statistics      map[string]Stats   `json:"statistics"`
	Trends          map[string]string  `json:"trends"`
	Insights        []string           `json:"insights"`
	Recommendations []string           `json:"recommendations"`
	KeyPoints       []string           `json:"key_points"`
	Confidence      string             `json:"confidence"`
	Error           string             `json:"error,omitempty"`
	Narrative       string             `json:"narrative,omitempty"`
}

// Metric returns a named metric and whether it was computed. Absent columns
// omit their dependent metrics entirely; absence must never be read as zero.
func (r *Record) Metric(name string) (float64, bool) {
	v, ok := r.Metrics[name]
	return v, ok
}

// MetricOr returns a named metric or the given default.
func (r *Record) MetricOr(name string, def float64) float64 {
	if v, ok := r.Metrics[name]; ok {
		return v
	}
	return def
}

// Bands are the externally tunable threshold bands driving insights and
// recommendations.
type Bands struct {
	StrongGrowth     float64
	DeclineGrowth    float64
	ExcellentMargin  float64
	LowMargin        float64
	HighExpenseRatio float64
	GrowthRecBelow   float64
	MarginRecBelow   float64
}

// DefaultBands returns the default insight/recommendation bands.
func DefaultBands() Bands {
	return Bands{
		StrongGrowth:     10,
		DeclineGrowth:    -10,
		ExcellentMargin:  20,
		LowMargin:        5,
		HighExpenseRatio: 80,
		GrowthRecBelow:   5,
		MarginRecBelow:   15,
	}
}

// Stage computes the metrics record.
type Stage struct {
	Bands Bands
}

// New constructs a Stage with the given bands.
func New(bands Bands) *Stage {
	return &Stage{Bands: bands}
}

// Analyze computes the metrics record for the dataset. Failures degrade to a
// partial record with Low confidence; the stage never aborts the pipeline.
func (s *Stage) Analyze(ctx context.Context, d *dataset.Dataset) Record {
	record := Record{
		Metrics:    map[string]float64{},
		Statistics: map[string]Stats{},
		Trends:     map[string]string{},
		Confidence: ConfidenceHigh,
	}

	if err := ctx.Err(); err != nil {
		record.Confidence = ConfidenceLow
		record.Error = err.Error()
		return record
	}
	if d.Empty() {
		record.Confidence = ConfidenceLow
		record.Error = "no usable numeric data in input"
		return record
	}

	s.computeMetrics(d, &record)
	s.computeStatistics(d, &record)
	s.computeTrends(d, &record)
	record.Insights = s.insights(&record)
	record.Recommendations = s.recommendations(&record)
	record.KeyPoints = keyPoints(&record)

	return record
}

func (s *Stage) computeMetrics(d *dataset.Dataset, record *Record) {
	metrics := record.Metrics

	if revenue, ok := d.NumericSeries("revenue"); ok {
		metrics["total_revenue"] = sum(revenue)
		metrics["average_revenue"] = mean(revenue)
		metrics["revenue_growth"] = GrowthRate(revenue)
	}

	if profit, ok := d.NumericSeries("profit"); ok {
		metrics["total_profit"] = sum(profit)
		metrics["average_profit"] = mean(profit)
		if total, ok := metrics["total_revenue"]; ok && total != 0 {
			metrics["profit_margin"] = metrics["total_profit"] / total * 100
		}
	}

	if expenses, ok := d.NumericSeries("expenses"); ok {
		metrics["total_expenses"] = sum(expenses)
		metrics["average_expenses"] = mean(expenses)
		if total, ok := metrics["total_revenue"]; ok && total != 0 {
			metrics["expense_ratio"] = metrics["total_expenses"] / total * 100
		}
	}

	if investment, ok := d.NumericSeries("investment"); ok {
		if profit, ok := d.NumericSeries("profit"); ok {
			if invested := sum(investment); invested != 0 {
				metrics["roi"] = sum(profit) / invested * 100
			}
		}
	}

	if metrics["revenue_growth"] > 0 {
		record.Trend = "positive"
	} else {
		record.Trend = "negative"
	}
}

func (s *Stage) computeStatistics(d *dataset.Dataset, record *Record) {
	for _, name := range d.NumericColumns() {
		series, ok := d.NumericSeries(name)
		if !ok {
			continue
		}
		record.Statistics[name] = describe(series)
	}
}

func (s *Stage) computeTrends(d *dataset.Dataset, record *Record) {
	for _, name := range d.NumericColumns() {
		series, _ := d.NumericSeries(name)
		record.Trends[name] = ClassifyTrend(series)
	}
}

// GrowthRate computes (last-first)/first*100 rounded to 2 decimals. It is
// exactly 0.0 when the series has fewer than two points or starts at zero;
// the zero-division guard is part of the contract, not an error.
func GrowthRate(series []float64) float64 {
	if len(series) < 2 {
		return 0.0
	}
	first := series[0]
	if first == 0 {
		return 0.0
	}
	last := series[len(series)-1]
	return round2((last - first) / first * 100)
}

// ClassifyTrend inspects only the last three observations: non-decreasing
// pairwise is Increasing, non-increasing is Decreasing, anything else
// Fluctuating. Shorter series are Insufficient data.
func ClassifyTrend(series []float64) string {
	if len(series) < 3 {
		return TrendInsufficient
	}
	recent := series[len(series)-3:]

	nonDecreasing := recent[0] <= recent[1] && recent[1] <= recent[2]
	nonIncreasing := recent[0] >= recent[1] && recent[1] >= recent[2]
	switch {
	case nonDecreasing:
		return TrendIncreasing
	case nonIncreasing:
		return TrendDecreasing
	default:
		return TrendFluctuating
	}
}

func (s *Stage) insights(record *Record) []string {
	var insights []string

	if growth, ok := record.Metric("revenue_growth"); ok {
		if growth > s.Bands.StrongGrowth {
			insights = append(insights, fmt.Sprintf(
				"Strong revenue growth of %.1f%% indicates healthy business expansion", growth))
		} else if growth < s.Bands.DeclineGrowth {
			insights = append(insights, fmt.Sprintf(
				"Revenue declined by %.1f%%, requiring immediate attention", math.Abs(growth)))
		}
	}

	if margin, ok := record.Metric("profit_margin"); ok {
		if margin > s.Bands.ExcellentMargin {
			insights = append(insights, fmt.Sprintf("Excellent profit margin of %.1f%%", margin))
		} else if margin < s.Bands.LowMargin {
			insights = append(insights, fmt.Sprintf("Low profit margin of %.1f%% needs improvement", margin))
		}
	}

	if ratio, ok := record.Metric("expense_ratio"); ok && ratio > s.Bands.HighExpenseRatio {
		insights = append(insights, fmt.Sprintf(
			"High expense ratio of %.1f%% - cost optimization recommended", ratio))
	}

	return insights
}

func (s *Stage) recommendations(record *Record) []string {
	var recs []string

	if record.MetricOr("revenue_growth", 0) < s.Bands.GrowthRecBelow {
		recs = append(recs,
			"Focus on revenue growth strategies: market expansion, product diversification")
	}
	if record.MetricOr("profit_margin", 0) < s.Bands.MarginRecBelow {
		recs = append(recs,
			"Improve profitability through cost optimization and pricing strategy review")
	}
	if record.Trends["expenses"] == TrendIncreasing {
		recs = append(recs,
			"Monitor and control rising expenses to maintain profitability")
	}

	return recs
}

func keyPoints(record *Record) []string {
	var points []string
	if total, ok := record.Metric("total_revenue"); ok {
		points = append(points, fmt.Sprintf("Total Revenue: $%.2f", total))
	}
	if margin, ok := record.Metric("profit_margin"); ok {
		points = append(points, fmt.Sprintf("Profit Margin: %.2f%%", margin))
	}
	if growth, ok := record.Metric("revenue_growth"); ok {
		points = append(points, fmt.Sprintf("Growth Rate: %.2f%%", growth))
	}
	return points
}

func describe(series []float64) Stats {
	return Stats{
		Mean:     mean(series),
		Median:   median(series),
		StdDev:   stdDev(series),
		Min:      minOf(series),
		Max:      maxOf(series),
		Variance: variance(series),
	}
}

func sum(series []float64) float64 {
	total := 0.0
	for _, v := range series {
		total += v
	}
	return total
}

func mean(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return sum(series) / float64(len(series))
}

func median(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	sorted := append([]float64(nil), series...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func variance(series []float64) float64 {
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
	return total / float64(n-1)
}

func stdDev(series []float64) float64 {
	return math.Sqrt(variance(series))
}

func minOf(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	min := series[0]
	for _, v := range series[1:] {
		if v < min {
			min = v
		}
	}
	return min
}

func maxOf(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	max := series[0]
	for _, v := range series[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
