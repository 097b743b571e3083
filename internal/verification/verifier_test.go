package verification

import (
	"errors"
	"math"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"fairrate/internal/curve"
	"fairrate/internal/domain"
)

func builtCurve(t *testing.T) *domain.Curve {
	t.Helper()
	vertices := []domain.MarketVertex{
		{Day: 252, NominalRate: 13.00, RealRate: 6.50},
		{Day: 504, NominalRate: 12.50, RealRate: 6.20},
		{Day: 756, NominalRate: 12.20, RealRate: 6.00},
		{Day: 1260, NominalRate: 11.80, RealRate: 5.80},
		{Day: 2520, NominalRate: 11.50, RealRate: 5.60},
	}
	c, err := curve.NewBuilder(curve.DefaultOptions()).
		Build(civil.Date{Year: 2026, Month: time.February, Day: 2}, vertices)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return c
}

func TestVerifyCurve_Valid(t *testing.T) {
	c := builtCurve(t)

	r, err := VerifyCurve(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.OK() {
		t.Errorf("expected OK report, got %v", r.Violations)
	}
	if r.Days != domain.DefaultHorizon {
		t.Errorf("expected %d days, got %d", domain.DefaultHorizon, r.Days)
	}
	if r.Checked != domain.DefaultHorizon+5 {
		t.Errorf("expected %d checks, got %d", domain.DefaultHorizon+5, r.Checked)
	}
}

func TestVerifyCurve_Empty(t *testing.T) {
	r, err := VerifyCurve(&domain.Curve{})
	if !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected ErrInvariant, got %v", err)
	}
	if r.Violations[0].Check != CheckGridSize {
		t.Errorf("expected grid_size violation, got %s", r.Violations[0].Check)
	}
}

func TestVerifyCurve_LengthMismatch(t *testing.T) {
	c := &domain.Curve{Nominal: []float64{10, 10}, Real: []float64{5}}
	if _, err := VerifyCurve(c); !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected ErrInvariant, got %v", err)
	}
}

func TestVerifyCurve_NonFinite(t *testing.T) {
	c := builtCurve(t)
	c.Nominal[9] = math.NaN()

	r, err := VerifyCurve(c)
	if !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected ErrInvariant, got %v", err)
	}
	if len(r.Violations) != 1 || r.Violations[0].Check != CheckFinite || r.Violations[0].Day != 10 {
		t.Errorf("unexpected violations: %v", r.Violations)
	}
}

func TestVerifyCurve_KnotNotReproduced(t *testing.T) {
	c := builtCurve(t)
	c.Real[503] += 0.01

	r, err := VerifyCurve(c)
	if !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected ErrInvariant, got %v", err)
	}
	found := false
	for _, v := range r.Violations {
		if v.Check == CheckKnots && v.Day == 504 {
			found = true
		}
	}
	if !found {
		t.Errorf("expected knot violation at day 504, got %v", r.Violations)
	}
}

func TestVerifyCurve_VertexOutsideGrid(t *testing.T) {
	c := builtCurve(t)
	c.Vertices = append(c.Vertices, domain.MarketVertex{Day: 9000, NominalRate: 11, RealRate: 5})

	r, _ := VerifyCurve(c)
	if r.OK() || r.Violations[0].Check != CheckVertexDays {
		t.Errorf("expected vertex_days violation, got %v", r.Violations)
	}
}

func TestReport_CapsViolations(t *testing.T) {
	n := MaxViolations + 10
	c := &domain.Curve{Nominal: make([]float64, n), Real: make([]float64, n)}
	for i := range c.Nominal {
		c.Nominal[i] = math.Inf(1)
	}

	r, err := VerifyCurve(c)
	if !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected ErrInvariant, got %v", err)
	}
	if len(r.Violations) != MaxViolations || r.Dropped != 10 {
		t.Errorf("expected %d kept and 10 dropped, got %d and %d", MaxViolations, len(r.Violations), r.Dropped)
	}
}

func TestFloatEquals(t *testing.T) {
	tests := []struct {
		a, b float64
		want bool
	}{
		{1, 1, true},
		{13, 13 + 1e-11, true},
		{13, 13.0001, false},
		{1e6, 1e6 + 1e-4, true},
		{0, 1e-10, true},
		{0, 1e-8, false},
	}
	for _, tt := range tests {
		if got := FloatEquals(tt.a, tt.b); got != tt.want {
			t.Errorf("FloatEquals(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestRebuildVerifier(t *testing.T) {
	c := builtCurve(t)
	v := NewRebuildVerifier(0)

	r, err := v.Verify(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.OK() || r.Checked != c.Len() {
		t.Errorf("expected clean rebuild over %d days, got %d checks and %v", c.Len(), r.Checked, r.Violations)
	}

	c.Nominal[3999] = 20
	r, err = v.Verify(c)
	if !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected ErrInvariant, got %v", err)
	}
	if r.Violations[0].Day != 4000 || r.Violations[0].Check != CheckRebuild {
		t.Errorf("unexpected violation %v", r.Violations[0])
	}
}

func TestRebuildVerifier_NoVertices(t *testing.T) {
	c := builtCurve(t)
	c.Vertices = nil

	if _, err := NewRebuildVerifier(0).Verify(c); err == nil {
		t.Error("expected error for curve without vertices")
	}
}
