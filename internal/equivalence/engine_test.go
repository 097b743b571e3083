package equivalence

import (
	"math"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fairrate/internal/curve"
	"fairrate/internal/domain"
)

func exampleCurve(t *testing.T) *domain.Curve {
	t.Helper()
	vertices := []domain.MarketVertex{
		{Day: 252, NominalRate: 13.00, RealRate: 6.50},
		{Day: 504, NominalRate: 12.50, RealRate: 6.20},
		{Day: 756, NominalRate: 12.20, RealRate: 6.00},
		{Day: 1260, NominalRate: 11.80, RealRate: 5.80},
		{Day: 2520, NominalRate: 11.50, RealRate: 5.60},
	}
	c, err := curve.NewBuilder(curve.DefaultOptions()).
		Build(civil.Date{Year: 2026, Month: time.February, Day: 2}, vertices)
	require.NoError(t, err)
	return c
}

func quote(ix domain.Indexation, tenor float64, unit domain.TenorUnit, rate float64) domain.Quote {
	return domain.Quote{Indexation: ix, TenorValue: tenor, TenorUnit: unit, Rate: rate}
}

func TestCompute_PrefixedAtKnot(t *testing.T) {
	c := exampleCurve(t)

	res, err := NewEngine().Compute(c, quote(domain.IndexationPrefixed, 252, domain.TenorBusinessDays, 13.00))
	require.NoError(t, err)

	assert.Equal(t, 252, res.RequestedDays)
	assert.Equal(t, 252, res.LookupDay)
	assert.False(t, res.TenorClamped)
	assert.Empty(t, res.Warnings)

	assert.InDelta(t, 13.00, res.BenchmarkNominal, 1e-12)
	assert.InDelta(t, 6.50, res.BenchmarkReal, 1e-12)
	assert.InDelta(t, (1.13/1.065-1)*100, res.ImpliedInflationAtTenor, 1e-9)

	assert.InDelta(t, 13.00, res.NominalEquivalent, 1e-12)
	assert.InDelta(t, 6.50, res.RealEquivalent, 1e-9)
	assert.InDelta(t, 100.0, res.PercentOfBenchmark, 1e-9)
	assert.InDelta(t, 0.0, res.BenchmarkPlusSpread, 1e-9)
	assert.InDelta(t, 0.0, res.Spread, 1e-12)
	assert.Equal(t, LabelAboveBenchmark, res.SpreadLabel)
}

func TestCompute_PercentOfBenchmarkOneYear(t *testing.T) {
	c := exampleCurve(t)

	res, err := NewEngine().Compute(c, quote(domain.IndexationPercentOfBenchmark, 1, domain.TenorYears, 95))
	require.NoError(t, err)

	assert.Equal(t, 252, res.LookupDay)
	assert.InDelta(t, 12.35, res.NominalEquivalent, 1e-9)
	assert.InDelta(t, 95.0, res.PercentOfBenchmark, 1e-9)
	assert.Less(t, res.BenchmarkPlusSpread, 0.0)
	assert.Equal(t, LabelBelowReal, res.SpreadLabel)
}

func TestCompute_RoundTrips(t *testing.T) {
	c := exampleCurve(t)
	e := NewEngine()

	for _, day := range []float64{1, 300, 1000, 4000} {
		full, err := e.Compute(c, quote(domain.IndexationPercentOfBenchmark, day, domain.TenorBusinessDays, 100))
		require.NoError(t, err)
		assert.InDelta(t, full.BenchmarkNominal, full.NominalEquivalent, 1e-12)

		offer, err := e.Compute(c, quote(domain.IndexationPrefixed, day, domain.TenorBusinessDays, 11.9))
		require.NoError(t, err)

		back, err := e.Compute(c, quote(domain.IndexationPercentOfBenchmark, day, domain.TenorBusinessDays, offer.PercentOfBenchmark))
		require.NoError(t, err)
		assert.InDelta(t, offer.NominalEquivalent, back.NominalEquivalent, 1e-9)

		spread, err := e.Compute(c, quote(domain.IndexationBenchmarkPlusSpread, day, domain.TenorBusinessDays, offer.BenchmarkPlusSpread))
		require.NoError(t, err)
		assert.InDelta(t, offer.NominalEquivalent, spread.NominalEquivalent, 1e-9)

		viaReal, err := e.Compute(c, quote(domain.IndexationInflationPlusSpread, day, domain.TenorBusinessDays, offer.RealEquivalent))
		require.NoError(t, err)
		assert.InDelta(t, offer.NominalEquivalent, viaReal.NominalEquivalent, 1e-9)
	}
}

func TestCompute_InflationPlusSpread(t *testing.T) {
	c := exampleCurve(t)

	res, err := NewEngine().Compute(c, quote(domain.IndexationInflationPlusSpread, 252, domain.TenorBusinessDays, 6.50))
	require.NoError(t, err)

	assert.InDelta(t, 13.00, res.NominalEquivalent, 1e-9)
	assert.Equal(t, 6.50, res.RealEquivalent)
	assert.InDelta(t, 0.0, res.Spread, 1e-9)

	res, err = NewEngine().Compute(c, quote(domain.IndexationInflationPlusSpread, 252, domain.TenorBusinessDays, 5.0))
	require.NoError(t, err)
	assert.InDelta(t, -1.5, res.Spread, 1e-12)
	assert.Equal(t, LabelBelowReal, res.SpreadLabel)
}

func TestCompute_PrefixedBelowBenchmark(t *testing.T) {
	c := exampleCurve(t)

	res, err := NewEngine().Compute(c, quote(domain.IndexationPrefixed, 12, domain.TenorMonths, 12.0))
	require.NoError(t, err)

	assert.Equal(t, 252, res.LookupDay)
	assert.InDelta(t, -1.0, res.Spread, 1e-12)
	assert.Equal(t, LabelBelowBenchmark, res.SpreadLabel)
}

func TestCompute_ClampsTenor(t *testing.T) {
	c := exampleCurve(t)

	res, err := NewEngine().Compute(c, quote(domain.IndexationPrefixed, 30, domain.TenorYears, 12.0))
	require.NoError(t, err)

	assert.True(t, res.TenorClamped)
	assert.Equal(t, 7560, res.RequestedDays)
	assert.Equal(t, c.MaxDay(), res.LookupDay)
	assert.Equal(t, c.NominalAt(c.MaxDay()), res.BenchmarkNominal)
	assert.Equal(t, 11.50, res.BenchmarkNominal)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "7560")

	for _, years := range []float64{1e17, 1e19, 1e300} {
		res, err := NewEngine().Compute(c, quote(domain.IndexationPrefixed, years, domain.TenorYears, 12.0))
		require.NoError(t, err, "years=%v", years)
		assert.True(t, res.TenorClamped)
		assert.Equal(t, c.MaxDay(), res.LookupDay)
		assert.Equal(t, math.MaxInt32, res.RequestedDays)
	}
}

func TestCompute_InvalidBenchmark(t *testing.T) {
	c := &domain.Curve{Nominal: []float64{0, 0, 0}, Real: []float64{1, 1, 1}}

	_, err := NewEngine().Compute(c, quote(domain.IndexationPercentOfBenchmark, 2, domain.TenorBusinessDays, 100))
	assert.ErrorIs(t, err, ErrInvalidBenchmark)
}

func TestCompute_InvalidInput(t *testing.T) {
	c := exampleCurve(t)
	e := NewEngine()

	_, err := e.Compute(c, quote(domain.IndexationPrefixed, 0, domain.TenorBusinessDays, 12))
	assert.ErrorIs(t, err, ErrInvalidTenor)

	_, err = e.Compute(c, quote(domain.IndexationPrefixed, -3, domain.TenorYears, 12))
	assert.ErrorIs(t, err, ErrInvalidTenor)

	_, err = e.Compute(c, quote(domain.IndexationPrefixed, 0.5, domain.TenorBusinessDays, 12))
	assert.ErrorIs(t, err, ErrInvalidTenor)

	_, err = e.Compute(c, quote("LIBOR", 10, domain.TenorBusinessDays, 12))
	assert.ErrorIs(t, err, ErrUnknownIndexation)
}

func TestNormalizeTenor(t *testing.T) {
	tests := []struct {
		value float64
		unit  domain.TenorUnit
		want  int
	}{
		{252, domain.TenorBusinessDays, 252},
		{2.9, domain.TenorBusinessDays, 2},
		{1, domain.TenorMonths, 21},
		{6, domain.TenorMonths, 126},
		{0.5, domain.TenorMonths, 10},
		{1, domain.TenorYears, 252},
		{1.1, domain.TenorYears, 277},
		{2.5, domain.TenorYears, 630},
	}

	for _, tt := range tests {
		got, err := NormalizeTenor(tt.value, tt.unit)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%v %s", tt.value, tt.unit)
	}

	_, err := NormalizeTenor(0.04, domain.TenorMonths)
	assert.ErrorIs(t, err, ErrInvalidTenor)
	_, err = NormalizeTenor(1, "WEEKS")
	assert.ErrorIs(t, err, ErrInvalidTenor)
}

func TestConventionFor(t *testing.T) {
	for _, ix := range domain.Indexations {
		conv, err := ConventionFor(ix)
		require.NoError(t, err)
		assert.Equal(t, ix, conv.Indexation())
	}
}
