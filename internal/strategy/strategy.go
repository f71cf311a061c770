// Package strategy implements the third scoring stage: strategic position,
// opportunities and threats, prioritized recommendations, and an action
// plan. It consumes the metrics and risk records, never the raw documents.
package strategy

import (
	"context"
	"fmt"

	"finsight-backend/internal/analysis"
	"finsight-backend/internal/risk"
)

// Position strength labels.
const (
	PositionStrong = "Strong"
	PositionMedium = "Medium"
	PositionWeak   = "Weak"
)

// Growth potential labels.
const (
	PotentialHigh   = "High"
	PotentialMedium = "Medium"
	PotentialLow    = "Low"
)

// Priorities and severities shared by opportunities, threats, and the plan.
const (
	PriorityHigh   = "High"
	PriorityMedium = "Medium"

	SeverityHigh   = "High"
	SeverityMedium = "Medium"

	TimelineImmediate = "0-3 months"
	TimelineNear      = "3-6 months"
	TimelineMid       = "6-12 months"
)

// Position describes the current strategic posture.
type Position struct {
	Strength             string   `json:"strength"`
	GrowthPotential      string   `json:"growth_potential"`
	CompetitiveAdvantage []string `json:"competitive_advantage"`
	AreasForImprovement  []string `json:"areas_for_improvement"`
}

// Opportunity is one identified strategic opening.
type Opportunity struct {
	Type            string `json:"type"`
	Description     string `json:"description"`
	Priority        string `json:"priority"`
	PotentialImpact string `json:"potential_impact"`
}

// Threat is one identified strategic exposure with its mitigation.
type Threat struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Mitigation  string `json:"mitigation"`
}

// Recommendation is one prioritized strategic recommendation.
type Recommendation struct {
	Category        string `json:"category"`
	Recommendation  string `json:"recommendation"`
	Rationale       string `json:"rationale"`
	ExpectedOutcome string `json:"expected_outcome"`
	Priority        string `json:"priority"`
}

// ActionItem is one entry in the prioritized plan.
type ActionItem struct {
	ActionNumber      int    `json:"action_number"`
	Action            string `json:"action"`
	Category          string `json:"category"`
	Timeline          string `json:"timeline"`
	ResourcesRequired string `json:"resources_required"`
	SuccessMetrics    string `json:"success_metrics"`
	Dependencies      string `json:"dependencies"`
}

// Record is the strategy stage output.
type Record struct {
	Position        Position         `json:"strategic_position"`
	Opportunities   []Opportunity    `json:"opportunities"`
	Threats         []Threat         `json:"threats"`
	Recommendations []Recommendation `json:"recommendations"`
	ActionPlan      []ActionItem     `json:"action_plan"`
	KeyPoints       []string         `json:"key_points"`
	Confidence      string           `json:"confidence"`
	Error           string           `json:"error,omitempty"`
	Narrative       string           `json:"narrative,omitempty"`
}

// Cutoffs are the externally tunable strategy bands.
type Cutoffs struct {
	StrongMargin     float64
	StrongGrowth     float64
	WeakMargin       float64
	HealthyMargin    float64
	PotentialHigh    float64
	PotentialLow     float64
	HighExpenseRatio float64
}

// DefaultCutoffs returns the default strategy bands.
func DefaultCutoffs() Cutoffs {
	return Cutoffs{
		StrongMargin:     20,
		StrongGrowth:     15,
		WeakMargin:       10,
		HealthyMargin:    15,
		PotentialHigh:    10,
		PotentialLow:     5,
		HighExpenseRatio: 70,
	}
}

// Stage derives market strategy.
type Stage struct {
	Cutoffs Cutoffs
}

// New constructs a Stage with the given cutoffs.
func New(c Cutoffs) *Stage {
	return &Stage{Cutoffs: c}
}

// Advise derives the strategy record. Missing metrics fall back to neutral
// values so a sparse dataset still yields a Medium posture rather than an
// error.
func (s *Stage) Advise(ctx context.Context, metrics *analysis.Record, risks *risk.Record) Record {
	record := Record{Confidence: analysis.ConfidenceHigh}

	if err := ctx.Err(); err != nil {
		record.Position = Position{Strength: PositionMedium, GrowthPotential: PotentialMedium}
		record.Confidence = analysis.ConfidenceLow
		record.Error = err.Error()
		return record
	}

	margin := metrics.MetricOr("profit_margin", 0)
	growth := metrics.MetricOr("revenue_growth", 0)
	expenseRatio := metrics.MetricOr("expense_ratio", 0)

	record.Position = s.analyzePosition(margin, growth, risks)
	record.Opportunities = s.opportunities(growth, expenseRatio, risks)
	record.Threats = s.threats(margin, growth, risks)
	record.Recommendations = s.recommendations(record.Position, record.Threats)
	record.ActionPlan = BuildActionPlan(record.Recommendations)
	record.KeyPoints = keyPoints(&record)

	if len(metrics.Metrics) == 0 {
		record.Confidence = analysis.ConfidenceLow
		record.Error = "strategy derived without computed metrics"
	}
	return record
}

// analyzePosition derives strength, growth potential, and the advantage and
// improvement lists. Strength is Strong only when both margin and growth
// clear their bars, Weak when either breaks down.
func (s *Stage) analyzePosition(margin, growth float64, risks *risk.Record) Position {
	p := Position{Strength: PositionMedium, GrowthPotential: PotentialMedium}

	switch {
	case margin > s.Cutoffs.StrongMargin && growth > s.Cutoffs.StrongGrowth:
		p.Strength = PositionStrong
	case margin < s.Cutoffs.WeakMargin || growth < 0:
		p.Strength = PositionWeak
	}

	switch {
	case growth > s.Cutoffs.PotentialHigh:
		p.GrowthPotential = PotentialHigh
		p.CompetitiveAdvantage = append(p.CompetitiveAdvantage, "Strong revenue growth trajectory")
	case growth < s.Cutoffs.PotentialLow:
		p.GrowthPotential = PotentialLow
		p.AreasForImprovement = append(p.AreasForImprovement, "Limited revenue growth")
	}

	if risks != nil {
		switch risks.OverallRisk {
		case risk.LevelLow:
			p.CompetitiveAdvantage = append(p.CompetitiveAdvantage, "Low risk profile enables strategic flexibility")
		case risk.LevelHigh:
			p.AreasForImprovement = append(p.AreasForImprovement, "High risk exposure limits strategic options")
		}
	}

	if margin > s.Cutoffs.HealthyMargin {
		p.CompetitiveAdvantage = append(p.CompetitiveAdvantage, "Healthy profit margins")
	} else {
		p.AreasForImprovement = append(p.AreasForImprovement, "Profitability requires improvement")
	}
	return p
}

func (s *Stage) opportunities(growth, expenseRatio float64, risks *risk.Record) []Opportunity {
	var out []Opportunity
	if growth > s.Cutoffs.PotentialHigh {
		out = append(out, Opportunity{
			Type:            "Market Expansion",
			Description:     "Strong growth trend indicates market opportunity for expansion",
			Priority:        PriorityHigh,
			PotentialImpact: "Significant revenue increase",
		})
	}
	if expenseRatio > s.Cutoffs.HighExpenseRatio {
		out = append(out, Opportunity{
			Type:            "Cost Optimization",
			Description:     "High expense ratio presents opportunity for efficiency gains",
			Priority:        PriorityMedium,
			PotentialImpact: "Improved profitability by 5-10%",
		})
	}
	if risks != nil && risks.OverallRisk == risk.LevelLow {
		out = append(out, Opportunity{
			Type:            "Strategic Investment",
			Description:     "Low risk profile allows for strategic investments in growth",
			Priority:        PriorityHigh,
			PotentialImpact: "Long-term competitive advantage",
		})
	}
	out = append(out, Opportunity{
		Type:            "Digital Innovation",
		Description:     "Leverage technology for operational excellence",
		Priority:        PriorityMedium,
		PotentialImpact: "15-20% efficiency improvement",
	})
	return out
}

func (s *Stage) threats(margin, growth float64, risks *risk.Record) []Threat {
	var out []Threat
	if level := categoryLevel(risks, risk.CategoryMarket); level == risk.LevelHigh || level == risk.LevelMedium {
		out = append(out, Threat{
			Type:        "Market Volatility",
			Description: "High market volatility may impact revenue stability",
			Severity:    SeverityHigh,
			Mitigation:  "Diversify revenue streams",
		})
	}
	if margin < s.Cutoffs.WeakMargin {
		out = append(out, Threat{
			Type:        "Profitability Pressure",
			Description: "Low margins vulnerable to cost increases",
			Severity:    SeverityMedium,
			Mitigation:  "Implement cost management and pricing optimization",
		})
	}
	if categoryLevel(risks, risk.CategoryLiquidity) == risk.LevelHigh {
		out = append(out, Threat{
			Type:        "Cash Flow Constraints",
			Description: "Limited liquidity may restrict operational flexibility",
			Severity:    SeverityHigh,
			Mitigation:  "Improve working capital management",
		})
	}
	if growth < s.Cutoffs.PotentialLow {
		out = append(out, Threat{
			Type:        "Competitive Pressure",
			Description: "Slow growth may indicate market share loss",
			Severity:    SeverityMedium,
			Mitigation:  "Enhance competitive positioning and innovation",
		})
	}
	return out
}

func (s *Stage) recommendations(position Position, threats []Threat) []Recommendation {
	var recs []Recommendation

	switch position.GrowthPotential {
	case PotentialHigh:
		recs = append(recs, Recommendation{
			Category:        "Growth Strategy",
			Recommendation:  "Accelerate market expansion through strategic investments",
			Rationale:       "Strong growth momentum provides foundation for expansion",
			ExpectedOutcome: "20-30% revenue increase within 12 months",
			Priority:        PriorityHigh,
		})
	case PotentialLow:
		recs = append(recs, Recommendation{
			Category:        "Growth Strategy",
			Recommendation:  "Focus on market penetration and product innovation",
			Rationale:       "Need to revitalize growth through new offerings",
			ExpectedOutcome: "Return to 10%+ growth rate",
			Priority:        PriorityHigh,
		})
	}

	if countHighSeverity(threats) > 0 {
		recs = append(recs, Recommendation{
			Category:        "Risk Management",
			Recommendation:  "Implement comprehensive risk mitigation framework",
			Rationale:       "High-severity threats require immediate attention",
			ExpectedOutcome: "Reduce overall risk level to Medium",
			Priority:        PriorityHigh,
		})
	}

	if position.Strength != PositionStrong {
		recs = append(recs, Recommendation{
			Category:        "Operational Excellence",
			Recommendation:  "Launch operational improvement program",
			Rationale:       "Enhance efficiency and profitability",
			ExpectedOutcome: "5-10% margin improvement",
			Priority:        PriorityMedium,
		})
	}

	recs = append(recs, Recommendation{
		Category:        "Innovation",
		Recommendation:  "Invest in digital transformation initiatives",
		Rationale:       "Technology enables competitive advantage",
		ExpectedOutcome: "Enhanced customer experience and efficiency",
		Priority:        PriorityMedium,
	})
	return recs
}

// BuildActionPlan selects up to three High-priority recommendations (the
// first immediate, the rest near-term) and then up to two Medium-priority
// ones on a mid-term timeline.
func BuildActionPlan(recommendations []Recommendation) []ActionItem {
	var plan []ActionItem

	for _, rec := range recommendations {
		if rec.Priority != PriorityHigh || len(plan) >= 3 {
			continue
		}
		item := ActionItem{
			ActionNumber:      len(plan) + 1,
			Action:            rec.Recommendation,
			Category:          rec.Category,
			Timeline:          TimelineNear,
			ResourcesRequired: "Executive sponsorship, cross-functional team",
			SuccessMetrics:    rec.ExpectedOutcome,
			Dependencies:      "Management approval and budget allocation",
		}
		if len(plan) == 0 {
			item.Timeline = TimelineImmediate
		}
		plan = append(plan, item)
	}

	mediumCap := len(plan) + 2
	for _, rec := range recommendations {
		if rec.Priority != PriorityMedium || len(plan) >= mediumCap {
			continue
		}
		plan = append(plan, ActionItem{
			ActionNumber:      len(plan) + 1,
			Action:            rec.Recommendation,
			Category:          rec.Category,
			Timeline:          TimelineMid,
			ResourcesRequired: "Dedicated project team",
			SuccessMetrics:    rec.ExpectedOutcome,
			Dependencies:      "Completion of high-priority actions",
		})
	}
	return plan
}

func keyPoints(record *Record) []string {
	points := []string{
		fmt.Sprintf("Strategic Strength: %s", record.Position.Strength),
		fmt.Sprintf("Growth Potential: %s", record.Position.GrowthPotential),
	}
	if len(record.Opportunities) > 0 {
		points = append(points, fmt.Sprintf("Identified %d strategic opportunities", len(record.Opportunities)))
	}
	if high := countHighSeverity(record.Threats); high > 0 {
		points = append(points, fmt.Sprintf("Critical: %d high-severity threats require attention", high))
	}
	return points
}

func countHighSeverity(threats []Threat) int {
	count := 0
	for _, t := range threats {
		if t.Severity == SeverityHigh {
			count++
		}
	}
	return count
}

func categoryLevel(risks *risk.Record, name string) string {
	if risks == nil {
		return ""
	}
	if a, ok := risks.Categories[name]; ok {
		return a.Level
	}
	return ""
}
