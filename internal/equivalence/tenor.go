package equivalence

import (
	"fmt"
	"math"

	"fairrate/internal/domain"
)

// tenorEpsilon absorbs float noise such as 1.1*252 = 277.19999999999996.
const tenorEpsilon = 1e-9

const maxTenorDays = math.MaxInt32

// NormalizeTenor converts a tenor to business days, truncating fractions.
// Months count 21 business days and years 252.
func NormalizeTenor(value float64, unit domain.TenorUnit) (int, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidTenor, value)
	}

	var days float64
	switch unit {
	case domain.TenorBusinessDays:
		days = value
	case domain.TenorMonths:
		days = value * domain.BusinessDaysPerMonth
	case domain.TenorYears:
		days = value * domain.BusinessDaysPerYear
	default:
		return 0, fmt.Errorf("%w: unknown unit %q", ErrInvalidTenor, unit)
	}

	// Tenors far past any grid are capped so the conversion cannot wrap;
	// the engine clamps them to the last grid day.
	days = math.Min(days, maxTenorDays)
	n := int(math.Floor(days + tenorEpsilon))
	if n < 1 {
		return 0, fmt.Errorf("%w: %v %s is less than one business day", ErrInvalidTenor, value, unit)
	}
	return n, nil
}
