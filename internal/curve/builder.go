package curve

import (
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/civil"

	"fairrate/internal/domain"
)

// Options configures curve construction.
type Options struct {
	Method  domain.InterpolationMethod
	Horizon int // grid length; values below domain.DefaultHorizon are raised to it
	Source  string
}

// DefaultOptions returns monotone cubic interpolation over the default horizon.
func DefaultOptions() Options {
	return Options{Method: domain.MethodMonotoneCubic, Horizon: domain.DefaultHorizon}
}

// Builder fits nominal and real curves to vertices and samples them on
// the daily grid 1..N.
type Builder struct {
	opts  Options
	clock func() time.Time
}

// NewBuilder creates a builder. Unknown methods fall back to monotone cubic.
func NewBuilder(opts Options) *Builder {
	if !opts.Method.IsValid() {
		opts.Method = domain.MethodMonotoneCubic
	}
	if opts.Horizon < domain.DefaultHorizon {
		opts.Horizon = domain.DefaultHorizon
	}
	return &Builder{opts: opts, clock: time.Now}
}

// WithClock sets the clock used to stamp BuiltAt.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// Horizon returns the grid length the builder produces.
func (b *Builder) Horizon() int {
	return b.opts.Horizon
}

// Build fits the curves and returns a dense curve for refDate.
// Vertices are sorted and de-duplicated (first seen wins) before fitting.
func (b *Builder) Build(refDate civil.Date, vertices []domain.MarketVertex) (*domain.Curve, error) {
	knots := dedupe(vertices)
	if len(knots) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 distinct vertex days, got %d", ErrInterpolation, len(knots))
	}

	xs := make([]float64, len(knots))
	nominal := make([]float64, len(knots))
	reals := make([]float64, len(knots))
	for i, v := range knots {
		xs[i] = float64(v.Day)
		nominal[i] = v.NominalRate
		reals[i] = v.RealRate
	}

	nominalFn, err := b.fit(xs, nominal)
	if err != nil {
		return nil, fmt.Errorf("nominal curve: %w", err)
	}
	realFn, err := b.fit(xs, reals)
	if err != nil {
		return nil, fmt.Errorf("real curve: %w", err)
	}

	nominalGrid, err := Sample(nominalFn, b.opts.Horizon)
	if err != nil {
		return nil, fmt.Errorf("nominal curve: %w", err)
	}
	realGrid, err := Sample(realFn, b.opts.Horizon)
	if err != nil {
		return nil, fmt.Errorf("real curve: %w", err)
	}

	return &domain.Curve{
		ReferenceDate: refDate,
		Nominal:       nominalGrid,
		Real:          realGrid,
		Method:        b.opts.Method,
		Source:        b.opts.Source,
		Vertices:      knots,
		BuiltAt:       b.clock().UTC(),
	}, nil
}

func (b *Builder) fit(xs, ys []float64) (Interpolant, error) {
	if b.opts.Method == domain.MethodLinear {
		return NewLinear(xs, ys)
	}
	return NewMonotoneCubic(xs, ys)
}

// Sample evaluates fn at days 1..n.
func Sample(fn Interpolant, n int) ([]float64, error) {
	out := make([]float64, n)
	for day := 1; day <= n; day++ {
		y := fn.At(float64(day))
		if !isFinite(y) {
			return nil, fmt.Errorf("%w: non-finite value at day %d", ErrInterpolation, day)
		}
		out[day-1] = y
	}
	return out, nil
}

func dedupe(vertices []domain.MarketVertex) []domain.MarketVertex {
	sorted := make([]domain.MarketVertex, len(vertices))
	copy(sorted, vertices)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Day < sorted[j].Day })

	out := sorted[:0]
	for _, v := range sorted {
		if len(out) > 0 && out[len(out)-1].Day == v.Day {
			continue
		}
		out = append(out, v)
	}
	return out
}
