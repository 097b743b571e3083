package domain

import (
	"fmt"
	"strings"
)

// Business-day multipliers used to normalize tenors.
const (
	BusinessDaysPerMonth = 21
	BusinessDaysPerYear  = 252
)

// Indexation is the quoting convention of an offered rate.
type Indexation string

const (
	// IndexationPrefixed is a fixed nominal rate.
	IndexationPrefixed Indexation = "PREFIXED"
	// IndexationInflationPlusSpread is a real rate on top of inflation (IPCA + x%).
	IndexationInflationPlusSpread Indexation = "INFLATION_PLUS_SPREAD"
	// IndexationPercentOfBenchmark is a share of the floating benchmark (x% of CDI).
	IndexationPercentOfBenchmark Indexation = "PERCENT_OF_BENCHMARK"
	// IndexationBenchmarkPlusSpread is a spread compounded on the benchmark (CDI + x%).
	IndexationBenchmarkPlusSpread Indexation = "BENCHMARK_PLUS_SPREAD"
)

// Indexations lists every convention in display order.
var Indexations = []Indexation{
	IndexationPrefixed,
	IndexationInflationPlusSpread,
	IndexationPercentOfBenchmark,
	IndexationBenchmarkPlusSpread,
}

// String returns the string representation of Indexation.
func (i Indexation) String() string {
	return string(i)
}

// IsValid checks if the indexation is a valid value.
func (i Indexation) IsValid() bool {
	switch i {
	case IndexationPrefixed, IndexationInflationPlusSpread,
		IndexationPercentOfBenchmark, IndexationBenchmarkPlusSpread:
		return true
	}
	return false
}

// indexationAliases maps user-facing spellings to canonical values.
var indexationAliases = map[string]Indexation{
	"prefixed":              IndexationPrefixed,
	"prefixado":             IndexationPrefixed,
	"pre":                   IndexationPrefixed,
	"fixed":                 IndexationPrefixed,
	"inflation_plus_spread": IndexationInflationPlusSpread,
	"inflation+":            IndexationInflationPlusSpread,
	"ipca+":                 IndexationInflationPlusSpread,
	"ipca":                  IndexationInflationPlusSpread,
	"percent_of_benchmark":  IndexationPercentOfBenchmark,
	"%cdi":                  IndexationPercentOfBenchmark,
	"cdi%":                  IndexationPercentOfBenchmark,
	"benchmark_plus_spread": IndexationBenchmarkPlusSpread,
	"cdi+":                  IndexationBenchmarkPlusSpread,
}

// ParseIndexation accepts canonical names and common aliases, case-insensitive.
func ParseIndexation(s string) (Indexation, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, " ", "")
	key = strings.ReplaceAll(key, "-", "_")
	if ix, ok := indexationAliases[key]; ok {
		return ix, nil
	}
	if ix := Indexation(strings.ToUpper(key)); ix.IsValid() {
		return ix, nil
	}
	return "", fmt.Errorf("unknown indexation %q", s)
}

// TenorUnit is the unit a tenor is expressed in.
type TenorUnit string

const (
	TenorBusinessDays TenorUnit = "BUSINESS_DAYS"
	TenorMonths       TenorUnit = "MONTHS"
	TenorYears        TenorUnit = "YEARS"
)

// String returns the string representation of TenorUnit.
func (u TenorUnit) String() string {
	return string(u)
}

// IsValid checks if the unit is a valid value.
func (u TenorUnit) IsValid() bool {
	return u == TenorBusinessDays || u == TenorMonths || u == TenorYears
}

// ParseTenorUnit accepts canonical names and short forms (d, bd, m, y).
func ParseTenorUnit(s string) (TenorUnit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "business_days", "businessdays", "days", "d", "bd", "du":
		return TenorBusinessDays, nil
	case "months", "month", "m", "meses":
		return TenorMonths, nil
	case "years", "year", "y", "anos":
		return TenorYears, nil
	}
	return "", fmt.Errorf("unknown tenor unit %q", s)
}

// Quote is an offered rate to be compared against the curve.
type Quote struct {
	Indexation Indexation `json:"indexation"`
	TenorValue float64    `json:"tenor_value"`
	TenorUnit  TenorUnit  `json:"tenor_unit"`
	Rate       float64    `json:"rate"` // percent
}

// Validate checks the quote's enumerations and tenor sign.
func (q Quote) Validate() error {
	if !q.Indexation.IsValid() {
		return fmt.Errorf("invalid indexation %q", q.Indexation)
	}
	if !q.TenorUnit.IsValid() {
		return fmt.Errorf("invalid tenor unit %q", q.TenorUnit)
	}
	if q.TenorValue <= 0 {
		return fmt.Errorf("tenor must be positive, got %v", q.TenorValue)
	}
	return nil
}
