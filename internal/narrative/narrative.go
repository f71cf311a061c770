// Package narrative abstracts optional language-model commentary layered on
// top of the deterministic stage records. All numeric findings are computed
// before annotation; an annotator only ever adds prose.
package narrative

import (
	"context"
	"errors"
)

// Annotator generates commentary for one stage record.
type Annotator interface {
	Annotate(ctx context.Context, req Request) (string, error)
}

// Request carries the finalized facts of one stage.
type Request struct {
	Stage string
	Facts map[string]any
}

// Stage identifiers, matching the report JSON keys.
const (
	StageAnalysis  = "data_analysis"
	StageRisk      = "risk_evaluation"
	StageStrategy  = "market_strategy"
	StageConsensus = "consensus"
)

// ErrDisabled is returned when no provider is configured. Callers treat it
// as "no narrative", not as a stage failure.
var ErrDisabled = errors.New("narrative generation disabled")

// Disabled is the no-provider annotator.
type Disabled struct{}

// Annotate returns ErrDisabled.
func (Disabled) Annotate(ctx context.Context, req Request) (string, error) {
	_ = ctx
	_ = req
	return "", ErrDisabled
}
