package pipeline

import (
	"fmt"

	"fairrate/internal/domain"
	"fairrate/internal/extraction"
)

// MinVertexCoverage is the share of the grid the longest vertex should
// reach before the flat extrapolation tail is considered too long.
const MinVertexCoverage = 0.5

// QualityCheck is one data quality criterion for a built curve.
// Failed checks are reported but do not stop the run.
type QualityCheck struct {
	Name      string
	Threshold string
	Actual    string
	Pass      bool
}

// QualityResult contains all checks.
type QualityResult struct {
	Checks  []QualityCheck
	AllPass bool
}

// Failed returns the checks that did not pass.
func (r *QualityResult) Failed() []QualityCheck {
	if r == nil {
		return nil
	}
	var failed []QualityCheck
	for _, c := range r.Checks {
		if !c.Pass {
			failed = append(failed, c)
		}
	}
	return failed
}

// CheckQuality evaluates the extraction result and the curve built from it.
func CheckQuality(res *extraction.Result, c *domain.Curve) *QualityResult {
	checks := []QualityCheck{
		checkVertexCount(res),
		checkReferenceDate(res),
		checkRejectedRows(res),
		checkCoverage(res, c),
	}
	out := &QualityResult{Checks: checks, AllPass: true}
	for _, check := range checks {
		if !check.Pass {
			out.AllPass = false
		}
	}
	return out
}

func checkVertexCount(res *extraction.Result) QualityCheck {
	n := len(res.Vertices)
	return QualityCheck{
		Name:      "Clean vertices",
		Threshold: fmt.Sprintf(">= %d", domain.MinVertices),
		Actual:    fmt.Sprintf("%d", n),
		Pass:      n >= domain.MinVertices,
	}
}

func checkReferenceDate(res *extraction.Result) QualityCheck {
	actual := "clock fallback"
	if res.DateFromDocument {
		actual = "document"
	}
	return QualityCheck{
		Name:      "Reference date source",
		Threshold: "document",
		Actual:    actual,
		Pass:      res.DateFromDocument,
	}
}

// checkRejectedRows: malformed, duplicate and non-positive rows == 0.
func checkRejectedRows(res *extraction.Result) QualityCheck {
	s := res.Stats
	rejected := s.Skipped + s.Duplicates + s.NonPositive
	return QualityCheck{
		Name:      "Rejected rows",
		Threshold: "== 0",
		Actual:    fmt.Sprintf("%d (malformed %d, duplicate %d, non-positive %d)", rejected, s.Skipped, s.Duplicates, s.NonPositive),
		Pass:      rejected == 0,
	}
}

// checkCoverage: longest vertex day / grid length >= MinVertexCoverage.
func checkCoverage(res *extraction.Result, c *domain.Curve) QualityCheck {
	longest := 0
	for _, v := range res.Vertices {
		longest = max(longest, v.Day)
	}
	ratio := 0.0
	if c.Len() > 0 {
		ratio = float64(longest) / float64(c.Len())
	}
	return QualityCheck{
		Name:      "Vertex coverage",
		Threshold: fmt.Sprintf(">= %.0f%% of grid", MinVertexCoverage*100),
		Actual:    fmt.Sprintf("%.1f%% (day %d of %d)", ratio*100, longest, c.Len()),
		Pass:      ratio >= MinVertexCoverage,
	}
}
