package postgres

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fairrate/internal/domain"
	"fairrate/internal/storage"
)

func testCurve(date civil.Date, base float64, days int) *domain.Curve {
	c := &domain.Curve{
		ReferenceDate: date,
		Nominal:       make([]float64, days),
		Real:          make([]float64, days),
		Method:        domain.MethodMonotoneCubic,
		Source:        "anbima_cz.txt",
		Fingerprint:   "3yZe7d",
		BuildID:       "6f1c7c1e-8a51-4b7c-9d0e-3f6a1b2c4d5e",
		BuiltAt:       time.Date(2026, 2, 2, 18, 30, 0, 0, time.UTC),
		Vertices: []domain.MarketVertex{
			{Day: 2, NominalRate: base, RealRate: 6.5},
			{Day: days, NominalRate: base - 1, RealRate: 5.5},
		},
	}
	for i := range c.Nominal {
		c.Nominal[i] = base - float64(i)/float64(days)
		c.Real[i] = 6.5 - float64(i)/float64(days)
	}
	return c
}

func TestCurveStore_StoreAndLoad(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCurveStore(pool)
	ctx := context.Background()
	date := civil.Date{Year: 2026, Month: time.February, Day: 2}

	original := testCurve(date, 13, 5000)
	require.NoError(t, store.Store(ctx, original))

	got, err := store.Load(ctx, date)
	require.NoError(t, err)

	assert.Equal(t, date, got.ReferenceDate)
	assert.Equal(t, original.Nominal, got.Nominal)
	assert.Equal(t, original.Real, got.Real)
	assert.Equal(t, original.Vertices, got.Vertices)
	assert.Equal(t, original.Method, got.Method)
	assert.Equal(t, original.Source, got.Source)
	assert.Equal(t, original.Fingerprint, got.Fingerprint)
	assert.Equal(t, original.BuildID, got.BuildID)
	assert.True(t, original.BuiltAt.Equal(got.BuiltAt))
}

func TestCurveStore_ReplaceIsAtomic(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCurveStore(pool)
	ctx := context.Background()
	date := civil.Date{Year: 2026, Month: time.February, Day: 2}

	require.NoError(t, store.Store(ctx, testCurve(date, 13, 5000)))

	replacement := testCurve(date, 12, 6000)
	replacement.BuildID = ""
	require.NoError(t, store.Store(ctx, replacement))

	got, err := store.Load(ctx, date)
	require.NoError(t, err)
	assert.Equal(t, 6000, got.Len())
	assert.Equal(t, 12.0, got.NominalAt(1))
	assert.NotEmpty(t, got.BuildID)

	var points int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM curve_points WHERE reference_date = $1`, dateValue(date)).Scan(&points))
	assert.Equal(t, 6000, points)
}

func TestCurveStore_ListAvailableDates(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCurveStore(pool)
	ctx := context.Background()

	dates, err := store.ListAvailableDates(ctx)
	require.NoError(t, err)
	assert.Empty(t, dates)

	for _, day := range []int{3, 27, 10} {
		d := civil.Date{Year: 2026, Month: time.February, Day: day}
		require.NoError(t, store.Store(ctx, testCurve(d, 13, 10)))
	}

	dates, err = store.ListAvailableDates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []civil.Date{
		{Year: 2026, Month: time.February, Day: 27},
		{Year: 2026, Month: time.February, Day: 10},
		{Year: 2026, Month: time.February, Day: 3},
	}, dates)
}

func TestCurveStore_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := NewCurveStore(pool).Load(context.Background(), civil.Date{Year: 2020, Month: time.January, Day: 2})
	assert.ErrorIs(t, err, storage.ErrCurveNotFound)
}

func TestCurveStore_InvalidInput(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	err := NewCurveStore(pool).Store(context.Background(), &domain.Curve{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
