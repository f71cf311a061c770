// Package pipeline orchestrates a full analysis run: concurrent document
// extraction, the four sequential scoring stages, and optional narrative
// annotation once every number is final.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"finsight-backend/internal/analysis"
	"finsight-backend/internal/consensus"
	"finsight-backend/internal/dataset"
	"finsight-backend/internal/extract"
	"finsight-backend/internal/narrative"
	"finsight-backend/internal/risk"
	"finsight-backend/internal/shared/telemetry"
	"finsight-backend/internal/strategy"
)

// FileIssue records one input that produced no data.
type FileIssue struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}

// ExtractionSummary describes what the normalization layer produced.
type ExtractionSummary struct {
	FilesProcessed int         `json:"files_processed"`
	FilesFailed    int         `json:"files_failed"`
	Issues         []FileIssue `json:"issues,omitempty"`
	Rows           int         `json:"rows"`
	Columns        int         `json:"columns"`
	DateRange      string      `json:"date_range,omitempty"`
}

// Result is a complete analysis run.
type Result struct {
	Extraction  ExtractionSummary `json:"extraction"`
	Analysis    analysis.Record   `json:"data_analysis"`
	Risk        risk.Record       `json:"risk_evaluation"`
	Strategy    strategy.Record   `json:"market_strategy"`
	Consensus   consensus.Record  `json:"consensus"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// Options bound the run.
type Options struct {
	ExtractConcurrency int
	PerFileTimeout     time.Duration
	StageTimeout       time.Duration
}

// DefaultOptions returns the default run bounds.
func DefaultOptions() Options {
	return Options{
		ExtractConcurrency: 4,
		PerFileTimeout:     30 * time.Second,
		StageTimeout:       60 * time.Second,
	}
}

// Pipeline wires the stages together. Annotator may be nil to skip
// narrative generation entirely.
type Pipeline struct {
	Analysis  *analysis.Stage
	Risk      *risk.Stage
	Strategy  *strategy.Stage
	Annotator narrative.Annotator
	Options   Options
}

// New constructs a pipeline with default stage bands and options.
func New(annotator narrative.Annotator) *Pipeline {
	return &Pipeline{
		Analysis:  analysis.New(analysis.DefaultBands()),
		Risk:      risk.New(risk.DefaultThresholds()),
		Strategy:  strategy.New(strategy.DefaultCutoffs()),
		Annotator: annotator,
		Options:   DefaultOptions(),
	}
}

// Run executes the full pipeline. It always returns a Result; individual
// stages degrade in place rather than aborting the run.
func (p *Pipeline) Run(ctx context.Context, inputs []extract.Input) Result {
	result := Result{GeneratedAt: time.Now().UTC()}

	extracted := extract.ExtractAll(ctx, inputs, p.Options.ExtractConcurrency, p.Options.PerFileTimeout)
	data := p.merge(extracted, &result.Extraction)

	result.Analysis = runStage(ctx, p.Options.StageTimeout, degradedAnalysis, func(sctx context.Context) analysis.Record {
		return p.Analysis.Analyze(sctx, data)
	})
	result.Risk = runStage(ctx, p.Options.StageTimeout, degradedRisk, func(sctx context.Context) risk.Record {
		return p.Risk.Evaluate(sctx, data, &result.Analysis)
	})
	result.Strategy = runStage(ctx, p.Options.StageTimeout, degradedStrategy, func(sctx context.Context) strategy.Record {
		return p.Strategy.Advise(sctx, &result.Analysis, &result.Risk)
	})
	result.Consensus = runStage(ctx, p.Options.StageTimeout, degradedConsensus, func(sctx context.Context) consensus.Record {
		return consensus.Build(sctx, &result.Analysis, &result.Risk, &result.Strategy)
	})

	p.annotate(ctx, &result)
	return result
}

// merge concatenates the per-file datasets in input order and fills the
// extraction summary. Failed files contribute an issue instead of rows.
func (p *Pipeline) merge(results []extract.Result, summary *ExtractionSummary) *dataset.Dataset {
	var parts []*dataset.Dataset
	for _, r := range results {
		if r.Failed {
			summary.FilesFailed++
			summary.Issues = append(summary.Issues, FileIssue{Source: r.Source, Reason: r.Diagnostic})
			continue
		}
		summary.FilesProcessed++
		parts = append(parts, r.Data)
	}

	merged := dataset.Concat(parts...)
	summary.Rows = merged.RowCount()
	summary.Columns = merged.ColumnCount()
	if min, max, ok := merged.DateRange(); ok {
		summary.DateRange = min.Format("2006-01-02") + " to " + max.Format("2006-01-02")
	}
	return merged
}

// runStage enforces the per-stage timeout. Stages are synchronous; a stage
// that outlives its budget is abandoned and replaced by the degraded record.
func runStage[T any](ctx context.Context, timeout time.Duration, degraded func(error) T, fn func(context.Context) T) T {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan T, 1)
	go func() { done <- fn(ctx) }()

	select {
	case record := <-done:
		return record
	case <-ctx.Done():
		return degraded(ctx.Err())
	}
}

func degradedAnalysis(err error) analysis.Record {
	return analysis.Record{
		Metrics:    map[string]float64{},
		Statistics: map[string]analysis.Stats{},
		Trends:     map[string]string{},
		Confidence: analysis.ConfidenceLow,
		Error:      err.Error(),
	}
}

func degradedRisk(err error) risk.Record {
	return risk.Record{
		OverallRisk: risk.LevelMedium,
		Categories:  map[string]risk.Assessment{},
		Confidence:  analysis.ConfidenceLow,
		Error:       err.Error(),
	}
}

func degradedStrategy(err error) strategy.Record {
	return strategy.Record{
		Position: strategy.Position{
			Strength:        strategy.PositionMedium,
			GrowthPotential: strategy.PotentialMedium,
		},
		Confidence: analysis.ConfidenceLow,
		Error:      err.Error(),
	}
}

func degradedConsensus(err error) consensus.Record {
	return consensus.Record{
		Summary:    "consensus aborted: " + err.Error(),
		Confidence: analysis.ConfidenceLow,
	}
}

// annotate adds narrative commentary to the finalized records. Annotation is
// best effort: a disabled or failing annotator leaves the numbers untouched.
func (p *Pipeline) annotate(ctx context.Context, result *Result) {
	if p.Annotator == nil {
		return
	}

	stages := []struct {
		stage  string
		record any
		target *string
	}{
		{narrative.StageAnalysis, &result.Analysis, &result.Analysis.Narrative},
		{narrative.StageRisk, &result.Risk, &result.Risk.Narrative},
		{narrative.StageStrategy, &result.Strategy, &result.Strategy.Narrative},
		{narrative.StageConsensus, &result.Consensus, &result.Consensus.Narrative},
	}
	for _, s := range stages {
		facts, err := recordFacts(s.record)
		if err != nil {
			telemetry.Error("narrative facts failed", map[string]any{"stage": s.stage, "error": err.Error()})
			continue
		}
		text, err := p.Annotator.Annotate(ctx, narrative.Request{Stage: s.stage, Facts: facts})
		if err != nil {
			if errors.Is(err, narrative.ErrDisabled) {
				return
			}
			telemetry.Error("narrative annotation failed", map[string]any{"stage": s.stage, "error": err.Error()})
			continue
		}
		*s.target = text
	}
}

func recordFacts(record any) (map[string]any, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	var facts map[string]any
	if err := json.Unmarshal(raw, &facts); err != nil {
		return nil, err
	}
	// Narrative fields stay out of the prompt facts.
	delete(facts, "narrative")
	return facts, nil
}
