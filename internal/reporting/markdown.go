// Package reporting renders curves, equivalence results and run summaries
// as CSV and Markdown.
package reporting

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"fairrate/internal/domain"
	"fairrate/internal/lookup"
	"fairrate/internal/pipeline"
	"fairrate/internal/stats"
	"fairrate/internal/verification"
)

var indexationTitles = map[domain.Indexation]string{
	domain.IndexationPrefixed:            "Prefixed",
	domain.IndexationInflationPlusSpread: "Inflation + spread",
	domain.IndexationPercentOfBenchmark:  "% of benchmark",
	domain.IndexationBenchmarkPlusSpread: "Benchmark + spread",
}

// RenderEquivalenceMarkdown renders an equivalence result computed on c for q.
func RenderEquivalenceMarkdown(c *domain.Curve, q domain.Quote, res *domain.EquivalenceResult) string {
	var sb strings.Builder

	sb.WriteString("# Rate Equivalence\n\n")
	sb.WriteString(fmt.Sprintf("Curve: %s | Method: %s\n\n", c.ReferenceDate, c.Method))
	sb.WriteString(fmt.Sprintf("Quote: %s %.2f%% for %g %s\n\n",
		indexationTitles[q.Indexation], q.Rate, q.TenorValue, strings.ToLower(q.TenorUnit.String())))

	if len(res.Warnings) > 0 {
		for _, w := range res.Warnings {
			sb.WriteString(fmt.Sprintf("> **Warning:** %s\n", w))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Market at Tenor\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Requested days | %d |\n", res.RequestedDays))
	sb.WriteString(fmt.Sprintf("| Curve day | %d |\n", res.LookupDay))
	sb.WriteString(fmt.Sprintf("| Benchmark nominal | %.2f%% |\n", res.BenchmarkNominal))
	sb.WriteString(fmt.Sprintf("| Real rate | %.2f%% |\n", res.BenchmarkReal))
	sb.WriteString(fmt.Sprintf("| Implied inflation | %.2f%% |\n", res.ImpliedInflationAtTenor))
	sb.WriteString("\n")

	sb.WriteString("## Equivalent Rates\n\n")
	sb.WriteString("| Convention | Rate |\n")
	sb.WriteString("|------------|------|\n")
	sb.WriteString(fmt.Sprintf("| %s | %.2f%% |\n", indexationTitles[domain.IndexationPrefixed], res.NominalEquivalent))
	sb.WriteString(fmt.Sprintf("| %s | %.2f%% |\n", indexationTitles[domain.IndexationInflationPlusSpread], res.RealEquivalent))
	sb.WriteString(fmt.Sprintf("| %s | %.2f%% |\n", indexationTitles[domain.IndexationPercentOfBenchmark], res.PercentOfBenchmark))
	sb.WriteString(fmt.Sprintf("| %s | %.2f%% |\n", indexationTitles[domain.IndexationBenchmarkPlusSpread], res.BenchmarkPlusSpread))
	sb.WriteString("\n")

	sb.WriteString("## Verdict\n\n")
	sb.WriteString(fmt.Sprintf("%+.2f p.p. %s\n\n", res.Spread, res.SpreadLabel))

	if v, err := lookup.VertexNear(res.LookupDay, c.Vertices); err == nil {
		sb.WriteString("## Nearest Market Vertex\n\n")
		sb.WriteString("| Day | Nominal | Real | Implied inflation |\n")
		sb.WriteString("|-----|---------|------|-------------------|\n")
		sb.WriteString(fmt.Sprintf("| %d | %.2f%% | %.2f%% | %.2f%% |\n",
			v.Day, v.NominalRate, v.RealRate, domain.FisherInflation(v.NominalRate, v.RealRate)))
		sb.WriteString("\n")
	}

	return sb.String()
}

// RenderDatesMarkdown renders the stored reference dates, most recent first.
func RenderDatesMarkdown(dates []civil.Date) string {
	var sb strings.Builder

	sb.WriteString("# Available Curves\n\n")
	if len(dates) == 0 {
		sb.WriteString("No curves stored.\n")
		return sb.String()
	}
	sb.WriteString(fmt.Sprintf("Latest: %s | Total: %d\n\n", dates[0], len(dates)))
	sb.WriteString("| # | Reference date | Weekday |\n")
	sb.WriteString("|---|----------------|---------|\n")
	for i, d := range dates {
		sb.WriteString(fmt.Sprintf("| %d | %s | %s |\n", i+1, d, d.In(time.UTC).Weekday()))
	}
	return sb.String()
}

// RenderRunMarkdown renders a pipeline run summary with its quality checks.
func RenderRunMarkdown(r *pipeline.RunResult) string {
	var sb strings.Builder

	sb.WriteString("# Curve Build\n\n")
	sb.WriteString(fmt.Sprintf("Run: %s | Started: %s | Duration: %s\n\n",
		r.ID, r.StartedAt.Format(time.RFC3339), r.Duration.Round(time.Millisecond)))

	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Document | %s |\n", r.Document))
	sb.WriteString(fmt.Sprintf("| Reference date | %s |\n", r.ReferenceDate))
	sb.WriteString(fmt.Sprintf("| Vertices | %d |\n", r.Extraction.Accepted))
	sb.WriteString(fmt.Sprintf("| Grid days | %d |\n", r.Days))
	sb.WriteString(fmt.Sprintf("| Fingerprint | %s |\n", r.Fingerprint))
	sb.WriteString(fmt.Sprintf("| Unchanged | %t |\n", r.Unchanged))
	sb.WriteString(fmt.Sprintf("| Stored | %t |\n", r.Stored))
	sb.WriteString(fmt.Sprintf("| Archived | %d |\n", len(r.Archived)))
	sb.WriteString("\n")

	sb.WriteString("## Data Quality\n\n")
	if r.Quality != nil && len(r.Quality.Checks) > 0 {
		sb.WriteString("| Check | Threshold | Actual | Status |\n")
		sb.WriteString("|-------|-----------|--------|--------|\n")
		for _, check := range r.Quality.Checks {
			status := "FAIL"
			if check.Pass {
				status = "PASS"
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
				check.Name, check.Threshold, check.Actual, status))
		}
		sb.WriteString("\n")
	} else {
		sb.WriteString("No data quality checks performed.\n\n")
	}

	if len(r.Warnings) > 0 {
		sb.WriteString("### Warnings\n\n")
		for _, w := range r.Warnings {
			sb.WriteString(fmt.Sprintf("- %s\n", w))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// RenderVerificationMarkdown renders a curve verification report.
func RenderVerificationMarkdown(r *verification.Report) string {
	var sb strings.Builder

	sb.WriteString("# Curve Verification\n\n")
	sb.WriteString(fmt.Sprintf("Curve: %s | Days: %d | Checks: %d\n\n", r.ReferenceDate, r.Days, r.Checked))
	if r.OK() {
		sb.WriteString("**All invariants hold.**\n")
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("**%d violations.**\n\n", len(r.Violations)+r.Dropped))
	sb.WriteString("| Check | Day | Expected | Actual | Detail |\n")
	sb.WriteString("|-------|-----|----------|--------|--------|\n")
	for _, v := range r.Violations {
		sb.WriteString(fmt.Sprintf("| %s | %d | %.10f | %.10f | %s |\n",
			v.Check, v.Day, v.Expected, v.Actual, v.Message))
	}
	if r.Dropped > 0 {
		sb.WriteString(fmt.Sprintf("\n%d more violations not listed.\n", r.Dropped))
	}
	return sb.String()
}

// RenderSummaryMarkdown renders the shape statistics of a curve.
func RenderSummaryMarkdown(s *stats.Summary) string {
	var sb strings.Builder

	sb.WriteString("# Curve Summary\n\n")
	sb.WriteString(fmt.Sprintf("Curve: %s | Days: %d\n\n", s.ReferenceDate, s.Days))

	sb.WriteString("## Standard Tenors\n\n")
	sb.WriteString("| Tenor | Day | Nominal | Real | Implied inflation |\n")
	sb.WriteString("|-------|-----|---------|------|-------------------|\n")
	for _, t := range s.Tenors {
		sb.WriteString(fmt.Sprintf("| %s | %d | %.2f%% | %.2f%% | %.2f%% |\n",
			t.Label, t.Day, t.NominalRate, t.RealRate, t.ImpliedInflation))
	}
	sb.WriteString("\n")

	sb.WriteString("## Distribution\n\n")
	sb.WriteString("| Series | Mean | Stddev | Min | P10 | Median | P90 | Max |\n")
	sb.WriteString("|--------|------|--------|-----|-----|--------|-----|-----|\n")
	for _, row := range []struct {
		name string
		d    stats.Distribution
	}{
		{"Nominal", s.Nominal},
		{"Real", s.Real},
		{"Implied inflation", s.Inflation},
	} {
		sb.WriteString(fmt.Sprintf("| %s | %.2f%% | %.2f | %.2f%% | %.2f%% | %.2f%% | %.2f%% | %.2f%% |\n",
			row.name, row.d.Mean, row.d.Stddev, row.d.Min, row.d.P10, row.d.Median, row.d.P90, row.d.Max))
	}
	sb.WriteString("\n")

	sb.WriteString("## Shape\n\n")
	sb.WriteString(fmt.Sprintf("- Deepest nominal inversion: %.2f p.p.\n", s.MaxInversion))
	sb.WriteString(fmt.Sprintf("- Longest falling stretch: %d days\n", s.LongestDecline))
	return sb.String()
}
