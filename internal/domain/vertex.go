package domain

// MinVertices is the minimum number of clean vertices needed to build a curve.
const MinVertices = 5

// MarketVertex is one observed knot of the term structure.
// Rates are annual percentages (13.25 means 13.25% a.a.).
type MarketVertex struct {
	Day         int     // business days to maturity, > 0
	NominalRate float64 // prefixed (nominal) rate
	RealRate    float64 // inflation-linked (real) rate
}

// VertexDays returns the days of the given vertices in order.
func VertexDays(vertices []MarketVertex) []int {
	days := make([]int, len(vertices))
	for i, v := range vertices {
		days[i] = v.Day
	}
	return days
}
