// Package memory provides in-memory storage implementations for tests and
// single-process deployments.
package memory

import (
	"context"
	"sort"
	"sync"

	"cloud.google.com/go/civil"

	"fairrate/internal/domain"
	"fairrate/internal/storage"
)

// CurveStore is an in-memory implementation of storage.CurveRepository.
type CurveStore struct {
	mu   sync.RWMutex
	data map[civil.Date]*domain.Curve // keyed by reference date
}

// NewCurveStore creates a new in-memory curve store.
func NewCurveStore() *CurveStore {
	return &CurveStore{
		data: make(map[civil.Date]*domain.Curve),
	}
}

// Compile-time interface check.
var _ storage.CurveRepository = (*CurveStore)(nil)

// Store replaces the curve for its reference date.
func (s *CurveStore) Store(_ context.Context, c *domain.Curve) error {
	if err := storage.ValidateCurve(c); err != nil {
		return err
	}
	stored := c.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[c.ReferenceDate] = stored
	return nil
}

// ListAvailableDates returns stored dates, most recent first.
func (s *CurveStore) ListAvailableDates(_ context.Context) ([]civil.Date, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dates := make([]civil.Date, 0, len(s.data))
	for d := range s.data {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].After(dates[j]) })
	return dates, nil
}

// Load returns a copy of the curve for date.
func (s *CurveStore) Load(_ context.Context, date civil.Date) (*domain.Curve, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.data[date]
	if !ok {
		return nil, storage.ErrCurveNotFound
	}
	return c.Clone(), nil
}
