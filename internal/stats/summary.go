// Package stats summarizes the shape of a built curve: rate distributions
// along the grid, readings at standard tenors and how deep the term
// structure inverts.
package stats

import (
	"errors"
	"math"
	"sort"

	"cloud.google.com/go/civil"

	"fairrate/internal/domain"
)

// ErrEmptyCurve is returned when the curve has no grid days.
var ErrEmptyCurve = errors.New("curve has no grid days")

// Tenor is a labelled standard maturity in business days.
type Tenor struct {
	Label string
	Day   int
}

// StandardTenors are the maturities reported in summaries.
var StandardTenors = []Tenor{
	{"1M", 1 * domain.BusinessDaysPerMonth},
	{"3M", 3 * domain.BusinessDaysPerMonth},
	{"6M", 6 * domain.BusinessDaysPerMonth},
	{"1Y", 1 * domain.BusinessDaysPerYear},
	{"2Y", 2 * domain.BusinessDaysPerYear},
	{"3Y", 3 * domain.BusinessDaysPerYear},
	{"5Y", 5 * domain.BusinessDaysPerYear},
	{"10Y", 10 * domain.BusinessDaysPerYear},
}

// Distribution describes one rate series over the grid.
type Distribution struct {
	Mean   float64 `json:"mean"`
	Stddev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	P10    float64 `json:"p10"`
	P25    float64 `json:"p25"`
	Median float64 `json:"median"`
	P75    float64 `json:"p75"`
	P90    float64 `json:"p90"`
	Max    float64 `json:"max"`
}

// TenorReading is the curve read at a standard tenor.
type TenorReading struct {
	Label            string  `json:"label"`
	Day              int     `json:"day"`
	NominalRate      float64 `json:"nominal_rate"`
	RealRate         float64 `json:"real_rate"`
	ImpliedInflation float64 `json:"implied_inflation"`
}

// Summary describes a curve for reports and the API.
type Summary struct {
	ReferenceDate civil.Date     `json:"reference_date"`
	Days          int            `json:"days"`
	Nominal       Distribution   `json:"nominal"`
	Real          Distribution   `json:"real"`
	Inflation     Distribution   `json:"implied_inflation"`
	Tenors        []TenorReading `json:"tenors"`

	// MaxInversion is the deepest drop of the nominal rate from an earlier,
	// shorter maturity, in percentage points. Zero for a non-decreasing curve.
	MaxInversion float64 `json:"max_inversion"`
	// LongestDecline is the longest run of consecutive days on which the
	// nominal rate falls.
	LongestDecline int `json:"longest_decline"`
}

// Summarize computes the summary of c. Standard tenors beyond the grid
// are omitted.
func Summarize(c *domain.Curve) (*Summary, error) {
	if c == nil || c.Len() == 0 {
		return nil, ErrEmptyCurve
	}

	inflation := c.ImpliedInflationSeries()
	s := &Summary{
		ReferenceDate:  c.ReferenceDate,
		Days:           c.Len(),
		Nominal:        distribution(c.Nominal),
		Real:           distribution(c.Real),
		Inflation:      distribution(inflation),
		MaxInversion:   maxInversion(c.Nominal),
		LongestDecline: longestDecline(c.Nominal),
	}
	for _, t := range StandardTenors {
		if t.Day > c.MaxDay() {
			continue
		}
		s.Tenors = append(s.Tenors, TenorReading{
			Label:            t.Label,
			Day:              t.Day,
			NominalRate:      c.NominalAt(t.Day),
			RealRate:         c.RealAt(t.Day),
			ImpliedInflation: c.ImpliedInflation(t.Day),
		})
	}
	return s, nil
}

// distribution computes the statistics of values, which must be non-empty.
func distribution(values []float64) Distribution {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mean := computeMean(values)
	return Distribution{
		Mean:   mean,
		Stddev: computeStddev(values, mean),
		Min:    sorted[0],
		P10:    computePercentile(sorted, 0.10),
		P25:    computePercentile(sorted, 0.25),
		Median: computePercentile(sorted, 0.50),
		P75:    computePercentile(sorted, 0.75),
		P90:    computePercentile(sorted, 0.90),
		Max:    sorted[len(sorted)-1],
	}
}

func computeMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// computeStddev calculates sample standard deviation (n-1 denominator).
func computeStddev(values []float64, mean float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// computePercentile uses linear interpolation between closest ranks.
// sorted must be ascending; p is a fraction (0.10 = 10th percentile).
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}
	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// maxInversion is the largest peak-to-trough fall along the grid.
func maxInversion(rates []float64) float64 {
	if len(rates) == 0 {
		return 0
	}
	peak := rates[0]
	worst := 0.0
	for _, r := range rates[1:] {
		if r > peak {
			peak = r
		}
		if d := peak - r; d > worst {
			worst = d
		}
	}
	return worst
}

// longestDecline counts the longest streak of strictly falling days.
func longestDecline(rates []float64) int {
	longest, current := 0, 0
	for i := 1; i < len(rates); i++ {
		if rates[i] < rates[i-1] {
			current++
			if current > longest {
				longest = current
			}
		} else {
			current = 0
		}
	}
	return longest
}
