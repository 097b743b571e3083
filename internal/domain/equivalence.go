package domain

// EquivalenceResult is the outcome of comparing a Quote against a Curve.
// Every field is derived from the (curve, quote) pair.
type EquivalenceResult struct {
	NominalEquivalent   float64 `json:"nominal_equivalent"`
	RealEquivalent      float64 `json:"real_equivalent"`
	PercentOfBenchmark  float64 `json:"percent_of_benchmark"`
	BenchmarkPlusSpread float64 `json:"benchmark_plus_spread"`

	BenchmarkNominal        float64 `json:"benchmark_nominal"`
	BenchmarkReal           float64 `json:"benchmark_real"`
	ImpliedInflationAtTenor float64 `json:"implied_inflation_at_tenor"`

	Spread      float64 `json:"spread"`       // percentage points
	SpreadLabel string  `json:"spread_label"` // "above benchmark", "below real-rate reference", ...

	RequestedDays int      `json:"requested_days"` // normalized tenor before clamping
	LookupDay     int      `json:"lookup_day"`     // grid day the benchmark was read at
	TenorClamped  bool     `json:"tenor_clamped"`
	Warnings      []string `json:"warnings,omitempty"`
}
