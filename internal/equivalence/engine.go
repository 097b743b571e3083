// Package equivalence expresses an offered rate under every indexation
// convention and compares it with the curve at the offer's tenor.
package equivalence

import (
	"fmt"

	"fairrate/internal/domain"
	"fairrate/internal/lookup"
)

// Spread labels.
const (
	LabelAboveBenchmark = "above benchmark"
	LabelBelowBenchmark = "below benchmark"
	LabelAboveReal      = "above real-rate reference"
	LabelBelowReal      = "below real-rate reference"
)

// Engine computes rate equivalences. It holds no state and is safe for
// concurrent use.
type Engine struct{}

// NewEngine creates an engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Compute evaluates q against c.
func (e *Engine) Compute(c *domain.Curve, q domain.Quote) (*domain.EquivalenceResult, error) {
	conv, err := ConventionFor(q.Indexation)
	if err != nil {
		return nil, err
	}
	if q.TenorValue <= 0 {
		return nil, fmt.Errorf("%w: tenor must be positive, got %v", ErrInvalidTenor, q.TenorValue)
	}
	requested, err := NormalizeTenor(q.TenorValue, q.TenorUnit)
	if err != nil {
		return nil, err
	}

	res := &domain.EquivalenceResult{RequestedDays: requested}

	tenor := requested
	if maxDay := c.MaxDay(); tenor > maxDay {
		tenor = maxDay
		res.TenorClamped = true
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("tenor of %d business days exceeds curve horizon of %d days; using %d", requested, maxDay, maxDay))
	}

	day, err := lookup.CurveDay(tenor, c)
	if err != nil {
		return nil, err
	}
	p := c.Point(day)
	res.LookupDay = day
	res.BenchmarkNominal = p.NominalRate
	res.BenchmarkReal = p.RealRate
	res.ImpliedInflationAtTenor = p.ImpliedInflation

	if p.NominalRate <= 0 {
		return nil, fmt.Errorf("%w: benchmark nominal rate %v at day %d", ErrInvalidBenchmark, p.NominalRate, day)
	}

	nominal, realRate := conv.ToNominalAndReal(q.Rate, p.NominalRate, p.ImpliedInflation)
	res.NominalEquivalent = nominal
	res.RealEquivalent = realRate
	res.PercentOfBenchmark = nominal / p.NominalRate * 100
	res.BenchmarkPlusSpread = deflate(nominal, p.NominalRate)

	if conv.Indexation() == domain.IndexationPrefixed {
		res.Spread = nominal - p.NominalRate
		res.SpreadLabel = label(res.Spread, LabelAboveBenchmark, LabelBelowBenchmark)
	} else {
		res.Spread = realRate - p.RealRate
		res.SpreadLabel = label(res.Spread, LabelAboveReal, LabelBelowReal)
	}

	return res, nil
}

func label(spread float64, above, below string) string {
	if spread >= 0 {
		return above
	}
	return below
}
