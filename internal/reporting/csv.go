package reporting

import (
	"fmt"
	"strings"

	"fairrate/internal/domain"
)

// CurveCSVHeader is the first line of RenderCurveCSV output.
const CurveCSVHeader = "day,nominal_rate,real_rate,implied_inflation"

// RenderCurveCSV renders every step-th grid day of c as CSV, always
// including the last day. step <= 1 renders the whole grid.
func RenderCurveCSV(c *domain.Curve, step int) string {
	var sb strings.Builder

	sb.WriteString(CurveCSVHeader)
	sb.WriteString("\n")
	for _, p := range c.Points(step) {
		sb.WriteString(fmt.Sprintf("%d,%.6f,%.6f,%.6f\n",
			p.Day,
			p.NominalRate,
			p.RealRate,
			p.ImpliedInflation,
		))
	}

	return sb.String()
}
