package domain

import (
	"time"

	"cloud.google.com/go/civil"
)

// DefaultHorizon is the number of grid days built when no longer horizon is requested.
const DefaultHorizon = 5000

// InterpolationMethod names the interpolant used to build a curve.
type InterpolationMethod string

const (
	MethodMonotoneCubic InterpolationMethod = "pchip"
	MethodLinear        InterpolationMethod = "linear"
)

// String returns the string representation of InterpolationMethod.
func (m InterpolationMethod) String() string {
	return string(m)
}

// IsValid checks if the method is a known value.
func (m InterpolationMethod) IsValid() bool {
	return m == MethodMonotoneCubic || m == MethodLinear
}

// Curve is a dense daily term structure for one reference date.
// Nominal[d-1] and Real[d-1] hold the rates for grid day d, so the grid
// always starts at day 1 and has no gaps. Implied inflation is never
// stored on the curve; it is derived from Nominal and Real on demand.
//
// A Curve is read-only once built and may be shared between goroutines.
type Curve struct {
	ReferenceDate civil.Date
	Nominal       []float64
	Real          []float64

	Method      InterpolationMethod
	Source      string         // document or adapter the vertices came from
	Vertices    []MarketVertex // knots used to fit the grid, may be nil after Load
	BuiltAt     time.Time
	BuildID     string // run that produced the curve, set by the pipeline
	Fingerprint string
}

// CurvePoint is one grid day with all three rates.
type CurvePoint struct {
	Day              int     `json:"day"`
	NominalRate      float64 `json:"nominal_rate"`
	RealRate         float64 `json:"real_rate"`
	ImpliedInflation float64 `json:"implied_inflation"`
}

// MaxDay returns the last grid day (N).
func (c *Curve) MaxDay() int {
	return len(c.Nominal)
}

// Len returns the number of grid days.
func (c *Curve) Len() int {
	return len(c.Nominal)
}

// NominalAt returns the nominal rate at grid day d (1-based).
func (c *Curve) NominalAt(day int) float64 {
	return c.Nominal[day-1]
}

// RealAt returns the real rate at grid day d (1-based).
func (c *Curve) RealAt(day int) float64 {
	return c.Real[day-1]
}

// ImpliedInflation returns the breakeven inflation at grid day d (1-based).
func (c *Curve) ImpliedInflation(day int) float64 {
	return FisherInflation(c.Nominal[day-1], c.Real[day-1])
}

// ImpliedInflationSeries derives the implied inflation for every grid day.
func (c *Curve) ImpliedInflationSeries() []float64 {
	out := make([]float64, len(c.Nominal))
	for i := range c.Nominal {
		out[i] = FisherInflation(c.Nominal[i], c.Real[i])
	}
	return out
}

// Point returns the grid point for day d (1-based).
func (c *Curve) Point(day int) CurvePoint {
	return CurvePoint{
		Day:              day,
		NominalRate:      c.Nominal[day-1],
		RealRate:         c.Real[day-1],
		ImpliedInflation: c.ImpliedInflation(day),
	}
}

// Points returns every step-th grid point starting at day 1. The last
// grid day is always included. step <= 1 returns the whole grid.
func (c *Curve) Points(step int) []CurvePoint {
	if step < 1 {
		step = 1
	}
	n := c.Len()
	points := make([]CurvePoint, 0, n/step+1)
	for day := 1; day <= n; day += step {
		points = append(points, c.Point(day))
	}
	if n > 0 && (n-1)%step != 0 {
		points = append(points, c.Point(n))
	}
	return points
}

// FisherInflation returns the inflation implied by a nominal and a real
// rate under (1+nominal) = (1+real)(1+inflation). All values in percent.
func FisherInflation(nominal, realRate float64) float64 {
	return ((1+nominal/100)/(1+realRate/100) - 1) * 100
}

// Clone returns a deep copy of the curve.
func (c *Curve) Clone() *Curve {
	out := *c
	out.Nominal = append([]float64(nil), c.Nominal...)
	out.Real = append([]float64(nil), c.Real...)
	if c.Vertices != nil {
		out.Vertices = append([]MarketVertex(nil), c.Vertices...)
	}
	return &out
}
