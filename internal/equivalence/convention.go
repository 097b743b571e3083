package equivalence

import (
	"fmt"

	"fairrate/internal/domain"
)

// Convention converts a quoted rate into nominal and real terms given the
// benchmark nominal rate and implied inflation at the tenor.
type Convention interface {
	Indexation() domain.Indexation
	ToNominalAndReal(rate, benchmarkNominal, impliedInflation float64) (nominal, realRate float64)
}

// Prefixed is a fixed nominal rate.
type Prefixed struct{}

func (Prefixed) Indexation() domain.Indexation { return domain.IndexationPrefixed }

func (Prefixed) ToNominalAndReal(rate, _, inflation float64) (float64, float64) {
	return rate, deflate(rate, inflation)
}

// InflationPlusSpread is a real spread on top of inflation.
type InflationPlusSpread struct{}

func (InflationPlusSpread) Indexation() domain.Indexation {
	return domain.IndexationInflationPlusSpread
}

func (InflationPlusSpread) ToNominalAndReal(rate, _, inflation float64) (float64, float64) {
	return compound(rate, inflation), rate
}

// PercentOfBenchmark pays a share of the benchmark rate.
type PercentOfBenchmark struct{}

func (PercentOfBenchmark) Indexation() domain.Indexation {
	return domain.IndexationPercentOfBenchmark
}

func (PercentOfBenchmark) ToNominalAndReal(rate, benchmark, inflation float64) (float64, float64) {
	nominal := rate / 100 * benchmark
	return nominal, deflate(nominal, inflation)
}

// BenchmarkPlusSpread compounds a spread on the benchmark rate.
type BenchmarkPlusSpread struct{}

func (BenchmarkPlusSpread) Indexation() domain.Indexation {
	return domain.IndexationBenchmarkPlusSpread
}

func (BenchmarkPlusSpread) ToNominalAndReal(rate, benchmark, inflation float64) (float64, float64) {
	nominal := compound(benchmark, rate)
	return nominal, deflate(nominal, inflation)
}

// ConventionFor returns the convention for an indexation.
func ConventionFor(ix domain.Indexation) (Convention, error) {
	switch ix {
	case domain.IndexationPrefixed:
		return Prefixed{}, nil
	case domain.IndexationInflationPlusSpread:
		return InflationPlusSpread{}, nil
	case domain.IndexationPercentOfBenchmark:
		return PercentOfBenchmark{}, nil
	case domain.IndexationBenchmarkPlusSpread:
		return BenchmarkPlusSpread{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownIndexation, ix)
}

// compound returns ((1+a)(1+b)-1) in percent.
func compound(a, b float64) float64 {
	return ((1+a/100)*(1+b/100) - 1) * 100
}

// deflate returns ((1+a)/(1+b)-1) in percent.
func deflate(a, b float64) float64 {
	return ((1+a/100)/(1+b/100) - 1) * 100
}
