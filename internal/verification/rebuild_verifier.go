package verification

import (
	"fmt"

	"fairrate/internal/curve"
	"fairrate/internal/domain"
)

// RebuildVerifier re-fits a stored curve from its vertices and compares
// the result with the stored grid day by day.
type RebuildVerifier struct {
	horizon int
}

// NewRebuildVerifier creates a verifier that rebuilds with the given horizon.
// A zero horizon uses the stored curve's grid size.
func NewRebuildVerifier(horizon int) *RebuildVerifier {
	return &RebuildVerifier{horizon: horizon}
}

// Verify rebuilds c and reports every day where the grids diverge.
// Curves stored without vertices cannot be rebuilt and return an error.
func (v *RebuildVerifier) Verify(c *domain.Curve) (*Report, error) {
	if len(c.Vertices) == 0 {
		return nil, fmt.Errorf("rebuild %s: curve has no stored vertices", c.ReferenceDate)
	}

	horizon := v.horizon
	if horizon == 0 {
		horizon = c.Len()
	}
	rebuilt, err := curve.NewBuilder(curve.Options{Method: c.Method, Horizon: horizon}).
		Build(c.ReferenceDate, c.Vertices)
	if err != nil {
		return nil, fmt.Errorf("rebuild %s: %w", c.ReferenceDate, err)
	}

	r := &Report{ReferenceDate: c.ReferenceDate, Days: c.Len()}
	if rebuilt.Len() != c.Len() {
		r.add(Violation{Check: CheckRebuild,
			Message: fmt.Sprintf("stored grid has %d days, rebuilt has %d", c.Len(), rebuilt.Len())})
		return r, r.Err()
	}

	for day := 1; day <= c.MaxDay(); day++ {
		r.Checked++
		if !FloatEquals(c.NominalAt(day), rebuilt.NominalAt(day)) {
			r.add(Violation{Check: CheckRebuild, Day: day, Expected: rebuilt.NominalAt(day), Actual: c.NominalAt(day),
				Message: "stored nominal differs from rebuild"})
		}
		if !FloatEquals(c.RealAt(day), rebuilt.RealAt(day)) {
			r.add(Violation{Check: CheckRebuild, Day: day, Expected: rebuilt.RealAt(day), Actual: c.RealAt(day),
				Message: "stored real differs from rebuild"})
		}
	}
	return r, r.Err()
}
