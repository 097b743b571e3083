package storage

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"

	"fairrate/internal/domain"
)

// CurveRepository persists one curve per reference date.
type CurveRepository interface {
	// Store upserts the curve for its reference date. The previous curve for
	// that date is replaced atomically: readers see either the old or the new
	// grid, never a mix. Returns ErrInvalidInput for malformed curves.
	Store(ctx context.Context, c *domain.Curve) error

	// ListAvailableDates returns every stored reference date, most recent first.
	ListAvailableDates(ctx context.Context) ([]civil.Date, error)

	// Load returns the full grid for date. Returns ErrCurveNotFound if absent.
	Load(ctx context.Context, date civil.Date) (*domain.Curve, error)
}

// ValidateCurve checks the shape a repository needs before writing.
func ValidateCurve(c *domain.Curve) error {
	if c == nil {
		return fmt.Errorf("%w: nil curve", ErrInvalidInput)
	}
	if !c.ReferenceDate.IsValid() {
		return fmt.Errorf("%w: invalid reference date %s", ErrInvalidInput, c.ReferenceDate)
	}
	if c.Len() == 0 {
		return fmt.Errorf("%w: curve %s has no grid days", ErrInvalidInput, c.ReferenceDate)
	}
	if len(c.Real) != len(c.Nominal) {
		return fmt.Errorf("%w: curve %s has %d nominal and %d real days",
			ErrInvalidInput, c.ReferenceDate, len(c.Nominal), len(c.Real))
	}
	return nil
}
