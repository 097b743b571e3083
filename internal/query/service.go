// Package query answers curve and rate-equivalence questions from stored curves.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"fairrate/internal/domain"
	"fairrate/internal/equivalence"
	"fairrate/internal/logger"
	"fairrate/internal/lookup"
	"fairrate/internal/observability"
	"fairrate/internal/storage"
)

// Query outcomes recorded in metrics.
const (
	OutcomeOK               = "ok"
	OutcomeNotFound         = "not_found"
	OutcomeInvalidBenchmark = "invalid_benchmark"
	OutcomeInvalidTenor     = "invalid_tenor"
	OutcomeInvalidQuote     = "invalid_quote"
	OutcomeError            = "error"
)

// Answer is an equivalence result together with the curve date it was read from.
type Answer struct {
	ReferenceDate civil.Date                `json:"reference_date"`
	Quote         domain.Quote              `json:"quote"`
	Result        *domain.EquivalenceResult `json:"result"`
}

// Service reads curves from a repository and runs the equivalence engine.
// Safe for concurrent use.
type Service struct {
	repo    storage.CurveRepository
	engine  *equivalence.Engine
	metrics *observability.Metrics
	log     *logger.Entry
}

// NewService creates a query service.
func NewService(repo storage.CurveRepository, engine *equivalence.Engine) *Service {
	return &Service{
		repo:   repo,
		engine: engine,
		log:    logger.Discard().WithComponent("query"),
	}
}

// WithMetrics records query counts and latency.
func (s *Service) WithMetrics(m *observability.Metrics) *Service {
	s.metrics = m
	return s
}

// WithLogger sets the service logger.
func (s *Service) WithLogger(log *logger.Log) *Service {
	s.log = log.WithComponent("query")
	return s
}

// ListAvailableDates returns stored reference dates, most recent first.
func (s *Service) ListAvailableDates(ctx context.Context) ([]civil.Date, error) {
	dates, err := s.repo.ListAvailableDates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list dates: %w", err)
	}
	return dates, nil
}

// Latest returns the most recent reference date.
// Returns storage.ErrCurveNotFound when nothing is stored.
func (s *Service) Latest(ctx context.Context) (civil.Date, error) {
	dates, err := s.ListAvailableDates(ctx)
	if err != nil {
		return civil.Date{}, err
	}
	if len(dates) == 0 {
		return civil.Date{}, fmt.Errorf("%w: no curves stored", storage.ErrCurveNotFound)
	}
	return dates[0], nil
}

// Load returns the curve for date. A zero date selects the latest curve.
func (s *Service) Load(ctx context.Context, date civil.Date) (*domain.Curve, error) {
	if date.IsZero() {
		latest, err := s.Latest(ctx)
		if err != nil {
			return nil, err
		}
		date = latest
	}
	c, err := s.repo.Load(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("load curve %s: %w", date, err)
	}
	return c, nil
}

// Point returns the grid point nearest to day on the curve for date.
func (s *Service) Point(ctx context.Context, date civil.Date, day int) (civil.Date, domain.CurvePoint, error) {
	c, err := s.Load(ctx, date)
	if err != nil {
		return civil.Date{}, domain.CurvePoint{}, err
	}
	p, err := lookup.PointAt(day, c)
	if err != nil {
		return civil.Date{}, domain.CurvePoint{}, err
	}
	return c.ReferenceDate, p, nil
}

// Compute evaluates q against the curve for date. A zero date selects the
// latest curve.
func (s *Service) Compute(ctx context.Context, date civil.Date, q domain.Quote) (*Answer, error) {
	start := time.Now()
	answer, err := s.compute(ctx, date, q)
	outcome := Outcome(err)
	clamped := err == nil && answer.Result.TenorClamped
	s.metrics.RecordQuery(q.Indexation.String(), outcome, clamped, time.Since(start))

	if err != nil {
		entry := s.log.WithFields(logger.Fields{
			"indexation": q.Indexation.String(),
			"outcome":    outcome,
		}).WithError(err)
		if outcome == OutcomeError {
			entry.Error("equivalence query failed")
		} else {
			entry.Debug("equivalence query rejected")
		}
		return nil, err
	}
	if clamped {
		s.log.WithFields(logger.Fields{
			"requested_days": answer.Result.RequestedDays,
			"lookup_day":     answer.Result.LookupDay,
		}).Info("tenor clamped to curve horizon")
	}
	return answer, nil
}

func (s *Service) compute(ctx context.Context, date civil.Date, q domain.Quote) (*Answer, error) {
	c, err := s.Load(ctx, date)
	if err != nil {
		return nil, err
	}
	res, err := s.engine.Compute(c, q)
	if err != nil {
		return nil, err
	}
	return &Answer{ReferenceDate: c.ReferenceDate, Quote: q, Result: res}, nil
}

// Outcome classifies a query error for metrics and API responses.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, storage.ErrCurveNotFound):
		return OutcomeNotFound
	case errors.Is(err, equivalence.ErrInvalidBenchmark):
		return OutcomeInvalidBenchmark
	case errors.Is(err, equivalence.ErrInvalidTenor):
		return OutcomeInvalidTenor
	case errors.Is(err, equivalence.ErrUnknownIndexation):
		return OutcomeInvalidQuote
	}
	return OutcomeError
}
