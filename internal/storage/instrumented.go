package storage

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/civil"

	"fairrate/internal/domain"
	"fairrate/internal/observability"
)

// InstrumentedRepository records operation latency and errors of a
// CurveRepository. ErrCurveNotFound is not counted as an error.
type InstrumentedRepository struct {
	next     CurveRepository
	database string
	metrics  *observability.Metrics
}

// Instrument wraps repo. database labels the metrics (memory, postgres, clickhouse).
func Instrument(repo CurveRepository, database string, m *observability.Metrics) *InstrumentedRepository {
	return &InstrumentedRepository{next: repo, database: database, metrics: m}
}

func (r *InstrumentedRepository) Store(ctx context.Context, c *domain.Curve) error {
	start := time.Now()
	err := r.next.Store(ctx, c)
	r.metrics.RecordDBQuery(r.database, "store", time.Since(start), err)
	return err
}

func (r *InstrumentedRepository) ListAvailableDates(ctx context.Context) ([]civil.Date, error) {
	start := time.Now()
	dates, err := r.next.ListAvailableDates(ctx)
	r.metrics.RecordDBQuery(r.database, "list_dates", time.Since(start), err)
	return dates, err
}

func (r *InstrumentedRepository) Load(ctx context.Context, date civil.Date) (*domain.Curve, error) {
	start := time.Now()
	c, err := r.next.Load(ctx, date)
	recorded := err
	if errors.Is(err, ErrCurveNotFound) {
		recorded = nil
	}
	r.metrics.RecordDBQuery(r.database, "load", time.Since(start), recorded)
	return c, err
}
