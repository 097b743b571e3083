// Package curve fits nominal and real term structures to market vertices
// and evaluates them on a dense daily grid.
package curve

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInterpolation is returned for degenerate knot sets and non-finite output.
var ErrInterpolation = errors.New("interpolation error")

// Interpolant is a one-dimensional function fitted through knots.
// Outside the knot range it returns the nearest end knot's value.
type Interpolant interface {
	At(x float64) float64
}

// knots holds strictly increasing abscissas and their values.
type knots struct {
	xs []float64
	ys []float64
}

func newKnots(xs, ys []float64) (knots, error) {
	if len(xs) != len(ys) {
		return knots{}, fmt.Errorf("%w: %d abscissas, %d values", ErrInterpolation, len(xs), len(ys))
	}
	if len(xs) < 2 {
		return knots{}, fmt.Errorf("%w: need at least 2 distinct knots, got %d", ErrInterpolation, len(xs))
	}
	for i := range xs {
		if !isFinite(xs[i]) || !isFinite(ys[i]) {
			return knots{}, fmt.Errorf("%w: non-finite knot at index %d", ErrInterpolation, i)
		}
		if i > 0 && xs[i] <= xs[i-1] {
			return knots{}, fmt.Errorf("%w: knots not strictly increasing at index %d", ErrInterpolation, i)
		}
	}
	return knots{xs: xs, ys: ys}, nil
}

// segment returns i such that xs[i] <= x < xs[i+1], clamped to the last segment.
func (k knots) segment(x float64) int {
	i := sort.SearchFloat64s(k.xs, x)
	// SearchFloat64s returns the first index with xs[i] >= x
	if i < len(k.xs) && k.xs[i] == x {
		if i == len(k.xs)-1 {
			return i - 1
		}
		return i
	}
	return i - 1
}

// clamp reports the flat value when x lies outside the knot range.
func (k knots) clamp(x float64) (float64, bool) {
	if x <= k.xs[0] {
		return k.ys[0], true
	}
	if x >= k.xs[len(k.xs)-1] {
		return k.ys[len(k.ys)-1], true
	}
	return 0, false
}

// Linear interpolates straight lines between knots.
type Linear struct {
	k knots
}

// NewLinear fits a piecewise-linear interpolant.
func NewLinear(xs, ys []float64) (*Linear, error) {
	k, err := newKnots(xs, ys)
	if err != nil {
		return nil, err
	}
	return &Linear{k: k}, nil
}

// At evaluates the interpolant at x.
func (l *Linear) At(x float64) float64 {
	if y, ok := l.k.clamp(x); ok {
		return y
	}
	i := l.k.segment(x)
	x0, x1 := l.k.xs[i], l.k.xs[i+1]
	y0, y1 := l.k.ys[i], l.k.ys[i+1]
	return y0 + (y1-y0)*(x-x0)/(x1-x0)
}

// MonotoneCubic is a piecewise cubic Hermite interpolant whose slopes
// follow Fritsch–Carlson, so it never overshoots between consecutive
// knots and keeps monotone data monotone.
type MonotoneCubic struct {
	k knots
	d []float64 // slope at each knot
}

// NewMonotoneCubic fits a shape-preserving cubic through the knots.
func NewMonotoneCubic(xs, ys []float64) (*MonotoneCubic, error) {
	k, err := newKnots(xs, ys)
	if err != nil {
		return nil, err
	}
	return &MonotoneCubic{k: k, d: pchipSlopes(k.xs, k.ys)}, nil
}

// At evaluates the interpolant at x.
func (m *MonotoneCubic) At(x float64) float64 {
	if y, ok := m.k.clamp(x); ok {
		return y
	}
	i := m.k.segment(x)
	x0, x1 := m.k.xs[i], m.k.xs[i+1]
	y0, y1 := m.k.ys[i], m.k.ys[i+1]
	h := x1 - x0
	t := (x - x0) / h

	t2 := t * t
	t3 := t2 * t
	h00 := 2*t3 - 3*t2 + 1
	h10 := t3 - 2*t2 + t
	h01 := -2*t3 + 3*t2
	h11 := t3 - t2
	return h00*y0 + h10*h*m.d[i] + h01*y1 + h11*h*m.d[i+1]
}

// pchipSlopes computes knot derivatives: weighted harmonic mean of the
// adjacent secants in the interior (zero at local extrema) and the
// shape-preserving three-point formula at both ends.
func pchipSlopes(xs, ys []float64) []float64 {
	n := len(xs)
	h := make([]float64, n-1)
	delta := make([]float64, n-1)
	for i := 0; i < n-1; i++ {
		h[i] = xs[i+1] - xs[i]
		delta[i] = (ys[i+1] - ys[i]) / h[i]
	}

	d := make([]float64, n)
	if n == 2 {
		d[0], d[1] = delta[0], delta[0]
		return d
	}

	for i := 1; i < n-1; i++ {
		if delta[i-1] == 0 || delta[i] == 0 || math.Signbit(delta[i-1]) != math.Signbit(delta[i]) {
			d[i] = 0
			continue
		}
		w1 := 2*h[i] + h[i-1]
		w2 := h[i] + 2*h[i-1]
		d[i] = (w1 + w2) / (w1/delta[i-1] + w2/delta[i])
	}

	d[0] = endSlope(h[0], h[1], delta[0], delta[1])
	d[n-1] = endSlope(h[n-2], h[n-3], delta[n-2], delta[n-3])
	return d
}

// endSlope is the non-centered three-point estimate, limited so the end
// segment does not overshoot.
func endSlope(h0, h1, m0, m1 float64) float64 {
	d := ((2*h0+h1)*m0 - h0*m1) / (h0 + h1)
	if sign(d) != sign(m0) {
		return 0
	}
	if sign(m0) != sign(m1) && math.Abs(d) > 3*math.Abs(m0) {
		return 3 * m0
	}
	return d
}

func sign(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
