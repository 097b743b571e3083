// Package verification checks built and stored curves against the
// invariants every curve must satisfy.
package verification

import (
	"errors"
	"fmt"
	"math"

	"cloud.google.com/go/civil"

	"fairrate/internal/domain"
)

// FloatTolerance is the relative tolerance for float64 comparisons.
const FloatTolerance = 1e-9

// MaxViolations caps the violations kept in a report.
const MaxViolations = 50

// ErrInvariant is returned when a curve fails verification.
var ErrInvariant = errors.New("curve invariant violated")

// Check names.
const (
	CheckGridSize   = "grid_size"
	CheckFinite     = "finite"
	CheckFisher     = "fisher_round_trip"
	CheckKnots      = "knots_reproduced"
	CheckVertexDays = "vertex_days"
	CheckRebuild    = "rebuild"
)

// Violation is one failed check.
type Violation struct {
	Check    string
	Day      int     // grid day, 0 when not day-specific
	Expected float64 // expected value
	Actual   float64 // observed value
	Message  string
}

// String formats the violation for logs and reports.
func (v Violation) String() string {
	if v.Day == 0 {
		return fmt.Sprintf("%s: %s", v.Check, v.Message)
	}
	return fmt.Sprintf("%s at day %d: %s (expected %.10f, got %.10f)", v.Check, v.Day, v.Message, v.Expected, v.Actual)
}

// Report contains the result of verifying one curve.
type Report struct {
	ReferenceDate civil.Date
	Days          int         // grid size
	Checked       int         // individual comparisons made
	Violations    []Violation // first MaxViolations failures
	Dropped       int         // failures beyond MaxViolations
}

// OK reports whether no check failed.
func (r *Report) OK() bool {
	return len(r.Violations) == 0
}

// Err returns ErrInvariant wrapping the first violation, or nil.
func (r *Report) Err() error {
	if r.OK() {
		return nil
	}
	total := len(r.Violations) + r.Dropped
	return fmt.Errorf("%w: %s (%d violations)", ErrInvariant, r.Violations[0], total)
}

func (r *Report) add(v Violation) {
	if len(r.Violations) >= MaxViolations {
		r.Dropped++
		return
	}
	r.Violations = append(r.Violations, v)
}

// VerifyCurve checks grid density, finiteness, the Fisher round trip and,
// when vertices are attached, that the grid passes through them.
// The returned error wraps ErrInvariant when any check fails.
func VerifyCurve(c *domain.Curve) (*Report, error) {
	r := &Report{ReferenceDate: c.ReferenceDate, Days: c.Len()}

	if c.Len() == 0 {
		r.add(Violation{Check: CheckGridSize, Message: "curve has no grid days"})
		return r, r.Err()
	}
	if len(c.Real) != len(c.Nominal) {
		r.add(Violation{Check: CheckGridSize,
			Message: fmt.Sprintf("nominal has %d days, real has %d", len(c.Nominal), len(c.Real))})
		return r, r.Err()
	}

	for day := 1; day <= c.MaxDay(); day++ {
		nominal, realRate := c.NominalAt(day), c.RealAt(day)
		inflation := c.ImpliedInflation(day)
		r.Checked++

		if !finite(nominal) || !finite(realRate) || !finite(inflation) {
			r.add(Violation{Check: CheckFinite, Day: day, Expected: 0, Actual: nominal,
				Message: "non-finite rate"})
			continue
		}

		recovered := ((1+realRate/100)*(1+inflation/100) - 1) * 100
		if !FloatEquals(nominal, recovered) {
			r.add(Violation{Check: CheckFisher, Day: day, Expected: nominal, Actual: recovered,
				Message: "nominal not recovered from real and implied inflation"})
		}
	}

	for _, v := range c.Vertices {
		r.Checked++
		if v.Day < 1 || v.Day > c.MaxDay() {
			r.add(Violation{Check: CheckVertexDays,
				Message: fmt.Sprintf("vertex day %d outside grid 1..%d", v.Day, c.MaxDay())})
			continue
		}
		if !FloatEquals(v.NominalRate, c.NominalAt(v.Day)) {
			r.add(Violation{Check: CheckKnots, Day: v.Day, Expected: v.NominalRate, Actual: c.NominalAt(v.Day),
				Message: "nominal knot not reproduced"})
		}
		if !FloatEquals(v.RealRate, c.RealAt(v.Day)) {
			r.add(Violation{Check: CheckKnots, Day: v.Day, Expected: v.RealRate, Actual: c.RealAt(v.Day),
				Message: "real knot not reproduced"})
		}
	}

	return r, r.Err()
}

// FloatEquals compares a and b within FloatTolerance, relative to the
// larger magnitude and absolute below 1.
func FloatEquals(a, b float64) bool {
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= FloatTolerance*scale
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
