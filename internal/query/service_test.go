package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fairrate/internal/curve"
	"fairrate/internal/domain"
	"fairrate/internal/equivalence"
	"fairrate/internal/observability"
	"fairrate/internal/storage"
	"fairrate/internal/storage/memory"
)

var (
	older  = civil.Date{Year: 2026, Month: time.January, Day: 30}
	latest = civil.Date{Year: 2026, Month: time.February, Day: 2}
)

func buildCurve(t *testing.T, date civil.Date, shift float64) *domain.Curve {
	t.Helper()
	vertices := []domain.MarketVertex{
		{Day: 252, NominalRate: 13.00 + shift, RealRate: 6.50},
		{Day: 504, NominalRate: 12.50 + shift, RealRate: 6.20},
		{Day: 756, NominalRate: 12.20 + shift, RealRate: 6.00},
		{Day: 1260, NominalRate: 11.80 + shift, RealRate: 5.80},
		{Day: 2520, NominalRate: 11.50 + shift, RealRate: 5.60},
	}
	c, err := curve.NewBuilder(curve.DefaultOptions()).Build(date, vertices)
	require.NoError(t, err)
	return c
}

func setup(t *testing.T) (*Service, *observability.Metrics) {
	t.Helper()
	store := memory.NewCurveStore()
	ctx := context.Background()
	require.NoError(t, store.Store(ctx, buildCurve(t, older, 0.5)))
	require.NoError(t, store.Store(ctx, buildCurve(t, latest, 0)))

	m := observability.NewMetrics("test", prometheus.NewRegistry())
	return NewService(store, equivalence.NewEngine()).WithMetrics(m), m
}

func prefixed(rate float64) domain.Quote {
	return domain.Quote{
		Indexation: domain.IndexationPrefixed,
		TenorValue: 252,
		TenorUnit:  domain.TenorBusinessDays,
		Rate:       rate,
	}
}

func TestService_LatestAndList(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	dates, err := svc.ListAvailableDates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []civil.Date{latest, older}, dates)

	d, err := svc.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, latest, d)

	c, err := svc.Load(ctx, civil.Date{})
	require.NoError(t, err)
	assert.Equal(t, latest, c.ReferenceDate)
}

func TestService_LatestEmpty(t *testing.T) {
	svc := NewService(memory.NewCurveStore(), equivalence.NewEngine())
	_, err := svc.Latest(context.Background())
	assert.ErrorIs(t, err, storage.ErrCurveNotFound)
}

func TestService_Compute(t *testing.T) {
	svc, m := setup(t)
	ctx := context.Background()

	answer, err := svc.Compute(ctx, civil.Date{}, prefixed(13.00))
	require.NoError(t, err)
	assert.Equal(t, latest, answer.ReferenceDate)
	assert.InDelta(t, 13.00, answer.Result.BenchmarkNominal, 1e-9)
	assert.InDelta(t, 100.0, answer.Result.PercentOfBenchmark, 1e-9)

	answer, err = svc.Compute(ctx, older, prefixed(13.00))
	require.NoError(t, err)
	assert.Equal(t, older, answer.ReferenceDate)
	assert.InDelta(t, 13.50, answer.Result.BenchmarkNominal, 1e-9)
	assert.Equal(t, equivalence.LabelBelowBenchmark, answer.Result.SpreadLabel)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("PREFIXED", OutcomeOK)))
}

func TestService_ComputeClamped(t *testing.T) {
	svc, m := setup(t)
	q := prefixed(12)
	q.TenorValue = 30
	q.TenorUnit = domain.TenorYears

	answer, err := svc.Compute(context.Background(), latest, q)
	require.NoError(t, err)
	assert.True(t, answer.Result.TenorClamped)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TenorClamps))
}

func TestService_ComputeErrors(t *testing.T) {
	svc, m := setup(t)
	ctx := context.Background()

	_, err := svc.Compute(ctx, civil.Date{Year: 2020, Month: time.January, Day: 2}, prefixed(13))
	assert.ErrorIs(t, err, storage.ErrCurveNotFound)

	q := prefixed(13)
	q.TenorValue = 0.01
	_, err = svc.Compute(ctx, latest, q)
	assert.ErrorIs(t, err, equivalence.ErrInvalidTenor)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("PREFIXED", OutcomeNotFound)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("PREFIXED", OutcomeInvalidTenor)))
}

func TestService_Point(t *testing.T) {
	svc, _ := setup(t)

	date, p, err := svc.Point(context.Background(), civil.Date{}, 504)
	require.NoError(t, err)
	assert.Equal(t, latest, date)
	assert.Equal(t, 504, p.Day)
	assert.InDelta(t, 12.50, p.NominalRate, 1e-9)
	assert.InDelta(t, domain.FisherInflation(12.50, 6.20), p.ImpliedInflation, 1e-9)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, OutcomeOK, Outcome(nil))
	assert.Equal(t, OutcomeNotFound, Outcome(storage.ErrCurveNotFound))
	assert.Equal(t, OutcomeInvalidBenchmark, Outcome(equivalence.ErrInvalidBenchmark))
	assert.Equal(t, OutcomeInvalidQuote, Outcome(equivalence.ErrUnknownIndexation))
	assert.Equal(t, OutcomeError, Outcome(errors.New("boom")))
}
