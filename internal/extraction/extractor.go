// Package extraction turns adapter rows into a clean, sorted vertex set.
package extraction

import (
	"fmt"
	"io"
	"math"
	"regexp"
	"sort"
	"time"

	"cloud.google.com/go/civil"

	"fairrate/internal/domain"
)

// Layout maps vertex fields to row column indexes.
type Layout struct {
	Day     int
	Real    int
	Nominal int
}

// ANBIMALayout is the column order of the ANBIMA implied-inflation block:
// vertex days, real (IPCA) rate, nominal (prefixed) rate.
var ANBIMALayout = Layout{Day: 0, Real: 1, Nominal: 2}

func (l Layout) width() int {
	return max(l.Day, l.Real, l.Nominal) + 1
}

// Config controls how rows are scanned.
type Config struct {
	// SectionHeaders start the vertex block. Empty means scan from the first row.
	SectionHeaders []string
	// ColumnHeaders mark header rows inside the block that are skipped.
	ColumnHeaders []string
	// Terminators end the block: alternate section headers and "no data" markers.
	Terminators []string
	// StopOnBlank ends the block at the first blank row.
	StopOnBlank bool
	Layout      Layout
}

// DefaultConfig reads the implied-inflation block of the ANBIMA term structure file.
func DefaultConfig() Config {
	return Config{
		SectionHeaders: []string{"ETTJ Inflação Implícita"},
		ColumnHeaders:  []string{"Vértice"},
		Terminators:    []string{"PREFIXADOS", "Erro", "Não há dados", "No data"},
		StopOnBlank:    true,
		Layout:         ANBIMALayout,
	}
}

// Stats counts what happened to the rows of one document.
type Stats struct {
	Scanned     int    // rows inside the vertex block
	Candidates  int    // rows that parsed into a vertex
	Skipped     int    // rows with missing or non-numeric fields
	Duplicates  int    // candidates dropped because the day was already seen
	NonPositive int    // candidates dropped for a rate <= 0
	Accepted    int    // vertices returned
	Terminator  string // marker that ended the block, empty at end of document
}

// Result is the clean vertex set of one document.
type Result struct {
	ReferenceDate    civil.Date
	DateFromDocument bool
	Vertices         []domain.MarketVertex
	Stats            Stats
	Warnings         []string
}

// Extractor applies the cleaning contract to adapter rows.
type Extractor struct {
	cfg   Config
	clock func() time.Time
}

// NewExtractor creates an extractor.
func NewExtractor(cfg Config) *Extractor {
	return &Extractor{
		cfg:   cfg,
		clock: time.Now,
	}
}

// WithClock sets the clock used when the document carries no reference date.
func (e *Extractor) WithClock(clock func() time.Time) *Extractor {
	e.clock = clock
	return e
}

// ExtractDocument runs adapter over r and extracts the result.
func (e *Extractor) ExtractDocument(adapter Adapter, r io.Reader) (*Result, error) {
	rows, err := adapter.Rows(r)
	if err != nil {
		return nil, fmt.Errorf("%s adapter: %w", adapter.Name(), err)
	}
	return e.Extract(rows)
}

// Extract scans rows, cleans the candidates and returns the vertex set.
// Returns ErrParse if fewer than domain.MinVertices vertices survive.
func (e *Extractor) Extract(rows []Row) (*Result, error) {
	res := &Result{}

	inSection := len(e.cfg.SectionHeaders) == 0
	var header []Row
	var candidates []domain.MarketVertex

scan:
	for _, row := range rows {
		if !inSection {
			if _, ok := containsAny(row.Text, e.cfg.SectionHeaders); ok {
				inSection = true
				continue
			}
			header = append(header, row)
			continue
		}

		if row.Blank() {
			if e.cfg.StopOnBlank && res.Stats.Scanned > 0 {
				res.Stats.Terminator = "blank line"
				break scan
			}
			continue
		}
		res.Stats.Scanned++

		if _, ok := containsAny(row.Text, e.cfg.ColumnHeaders); ok {
			res.Stats.Scanned--
			continue
		}
		if marker, ok := containsAny(row.Text, e.cfg.Terminators); ok {
			res.Stats.Scanned--
			res.Stats.Terminator = marker
			break scan
		}

		v, ok := e.parseRow(row)
		if !ok {
			res.Stats.Skipped++
			continue
		}
		candidates = append(candidates, v)
	}
	res.Stats.Candidates = len(candidates)

	if len(e.cfg.SectionHeaders) == 0 && len(rows) > 0 {
		header = rows[:1]
	}
	res.ReferenceDate, res.DateFromDocument = findReferenceDate(header)
	if !res.DateFromDocument {
		res.ReferenceDate = civil.DateOf(e.clock())
		res.Warnings = append(res.Warnings, fmt.Sprintf("reference date not found in document, using %s", res.ReferenceDate))
	}

	vertices, dups, nonPositive := Clean(candidates)
	res.Stats.Duplicates = dups
	res.Stats.NonPositive = nonPositive
	res.Stats.Accepted = len(vertices)
	res.Vertices = vertices

	if !inSection {
		return res, fmt.Errorf("%w: section %q not found", ErrParse, e.cfg.SectionHeaders)
	}
	if len(vertices) < domain.MinVertices {
		return res, fmt.Errorf("%w: %d valid vertices, need %d", ErrParse, len(vertices), domain.MinVertices)
	}
	return res, nil
}

// parseRow converts a row into a candidate vertex. Any missing or
// non-numeric field rejects the row.
func (e *Extractor) parseRow(row Row) (domain.MarketVertex, bool) {
	l := e.cfg.Layout
	if len(row.Fields) < l.width() {
		return domain.MarketVertex{}, false
	}
	day, err := ParseLocaleInt(row.Fields[l.Day])
	if err != nil || day <= 0 {
		return domain.MarketVertex{}, false
	}
	realRate, err := ParseLocaleNumber(row.Fields[l.Real])
	if err != nil {
		return domain.MarketVertex{}, false
	}
	nominal, err := ParseLocaleNumber(row.Fields[l.Nominal])
	if err != nil {
		return domain.MarketVertex{}, false
	}
	return domain.MarketVertex{Day: day, NominalRate: nominal, RealRate: realRate}, true
}

// Clean sorts candidates by day, keeps the first-seen vertex per day and
// drops vertices whose rates are not finite and positive. It returns the
// clean set and the number of duplicates and non-positive vertices removed.
func Clean(candidates []domain.MarketVertex) ([]domain.MarketVertex, int, int) {
	sorted := make([]domain.MarketVertex, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Day < sorted[j].Day
	})

	var out []domain.MarketVertex
	dups, nonPositive := 0, 0
	for i, v := range sorted {
		if i > 0 && v.Day == sorted[i-1].Day {
			dups++
			continue
		}
		if !positiveFinite(v.NominalRate) || !positiveFinite(v.RealRate) {
			nonPositive++
			continue
		}
		out = append(out, v)
	}
	return out, dups, nonPositive
}

func positiveFinite(x float64) bool {
	return x > 0 && !math.IsInf(x, 0) && !math.IsNaN(x)
}

var datePattern = regexp.MustCompile(`(\d{2})/(\d{2})/(\d{4})`)

// findReferenceDate looks for a dd/mm/yyyy date in the rows preceding the
// vertex block, e.g. "Curva Zero - 02/02/2026".
func findReferenceDate(rows []Row) (civil.Date, bool) {
	for _, row := range rows {
		m := datePattern.FindString(row.Text)
		if m == "" {
			continue
		}
		t, err := time.Parse("02/01/2006", m)
		if err != nil {
			continue
		}
		return civil.DateOf(t), true
	}
	return civil.Date{}, false
}
