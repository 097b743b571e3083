package extraction

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fairrate/internal/domain"
)

func openFixture(t *testing.T, name string) *os.File {
	t.Helper()
	f, err := os.Open(filepath.Join("testdata", name))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func expectedVertices() []domain.MarketVertex {
	return []domain.MarketVertex{
		{Day: 252, NominalRate: 13.00, RealRate: 6.50},
		{Day: 504, NominalRate: 12.50, RealRate: 6.20},
		{Day: 756, NominalRate: 12.20, RealRate: 6.00},
		{Day: 1260, NominalRate: 11.80, RealRate: 5.80},
		{Day: 2520, NominalRate: 11.50, RealRate: 5.60},
	}
}

func TestExtract_DelimitedDocument(t *testing.T) {
	ex := NewExtractor(DefaultConfig())

	res, err := ex.ExtractDocument(NewDelimitedAdapter(';'), openFixture(t, "anbima_cz.txt"))
	require.NoError(t, err)

	assert.Equal(t, expectedVertices(), res.Vertices)
	assert.True(t, res.DateFromDocument)
	assert.Equal(t, civil.Date{Year: 2026, Month: time.February, Day: 2}, res.ReferenceDate)

	assert.Equal(t, 8, res.Stats.Scanned)
	assert.Equal(t, 6, res.Stats.Candidates)
	assert.Equal(t, 2, res.Stats.Skipped)
	assert.Equal(t, 1, res.Stats.Duplicates)
	assert.Equal(t, 0, res.Stats.NonPositive)
	assert.Equal(t, 5, res.Stats.Accepted)
	assert.Equal(t, "blank line", res.Stats.Terminator)
	assert.Empty(t, res.Warnings)
}

func TestExtract_TabularDocument(t *testing.T) {
	ex := NewExtractor(DefaultConfig())

	res, err := ex.ExtractDocument(NewTabularAdapter(), openFixture(t, "anbima_table.html"))
	require.NoError(t, err)

	assert.Equal(t, expectedVertices(), res.Vertices)
	assert.Equal(t, 1, res.Stats.NonPositive)
	assert.Equal(t, civil.Date{Year: 2026, Month: time.February, Day: 2}, res.ReferenceDate)
}

func TestExtract_TaggedDocument(t *testing.T) {
	ex := NewExtractor(DefaultConfig())

	res, err := ex.ExtractDocument(NewTaggedAdapter(DefaultTaggedSchema()), openFixture(t, "anbima_vertices.xml"))
	require.NoError(t, err)

	assert.Equal(t, expectedVertices(), res.Vertices)
	assert.Equal(t, "PREFIXADOS", res.Stats.Terminator)
	assert.True(t, res.DateFromDocument)
}

func TestExtract_StopsAtErrorMarker(t *testing.T) {
	ex := NewExtractor(DefaultConfig())

	res, err := ex.ExtractDocument(NewDelimitedAdapter(';'), openFixture(t, "anbima_error.txt"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrParse))
	assert.Equal(t, "Erro", res.Stats.Terminator)
	assert.Len(t, res.Vertices, 2)
}

func TestExtract_SectionMissing(t *testing.T) {
	rows := []Row{
		{Line: 1, Text: "252;6,50;13,00", Fields: []string{"252", "6,50", "13,00"}},
	}

	_, err := NewExtractor(DefaultConfig()).Extract(rows)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParse)
}

func TestExtract_ReferenceDateFallsBackToClock(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SectionHeaders = nil
	fixed := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)

	var rows []Row
	for i, line := range []string{"252;6,5;13,0", "504;6,2;12,5", "756;6,0;12,2", "1260;5,8;11,8", "2520;5,6;11,5"} {
		a := NewDelimitedAdapter(';')
		parsed, err := a.Rows(stringsReader(line))
		require.NoError(t, err)
		parsed[0].Line = i + 1
		rows = append(rows, parsed...)
	}

	res, err := NewExtractor(cfg).WithClock(func() time.Time { return fixed }).Extract(rows)
	require.NoError(t, err)
	assert.False(t, res.DateFromDocument)
	assert.Equal(t, civil.Date{Year: 2026, Month: time.March, Day: 10}, res.ReferenceDate)
	assert.Len(t, res.Warnings, 1)
	assert.Len(t, res.Vertices, 5)
}

func TestExtract_CustomLayout(t *testing.T) {
	cfg := Config{
		Layout:      Layout{Day: 0, Nominal: 1, Real: 2},
		StopOnBlank: true,
	}
	rows := []Row{
		{Text: "Curva - 05/01/2026", Fields: []string{"Curva - 05/01/2026"}},
		{Text: "21 14,10 7,00", Fields: []string{"21", "14,10", "7,00"}},
		{Text: "63 13,90 6,90", Fields: []string{"63", "13,90", "6,90"}},
		{Text: "126 13,70 6,80", Fields: []string{"126", "13,70", "6,80"}},
		{Text: "252 13,50 6,70", Fields: []string{"252", "13,50", "6,70"}},
		{Text: "504 13,30 6,60", Fields: []string{"504", "13,30", "6,60"}},
	}

	res, err := NewExtractor(cfg).Extract(rows)
	require.NoError(t, err)
	require.Len(t, res.Vertices, 5)
	assert.Equal(t, domain.MarketVertex{Day: 21, NominalRate: 14.10, RealRate: 7.00}, res.Vertices[0])
	assert.Equal(t, 1, res.Stats.Skipped, "title row has too few fields")
	assert.True(t, res.DateFromDocument)
}

func TestClean(t *testing.T) {
	in := []domain.MarketVertex{
		{Day: 504, NominalRate: 12.5, RealRate: 6.2},
		{Day: 252, NominalRate: 13.0, RealRate: 6.5},
		{Day: 504, NominalRate: 99, RealRate: 99},
		{Day: 756, NominalRate: 0, RealRate: 6.0},
		{Day: 1260, NominalRate: 11.8, RealRate: -1},
		{Day: 2520, NominalRate: 11.5, RealRate: 5.6},
	}

	out, dups, nonPositive := Clean(in)

	assert.Equal(t, []domain.MarketVertex{
		{Day: 252, NominalRate: 13.0, RealRate: 6.5},
		{Day: 504, NominalRate: 12.5, RealRate: 6.2},
		{Day: 2520, NominalRate: 11.5, RealRate: 5.6},
	}, out)
	assert.Equal(t, 1, dups)
	assert.Equal(t, 2, nonPositive)
}

func TestAdapterFor(t *testing.T) {
	for _, name := range []string{"delimited", "Tabular", " tagged "} {
		a, err := AdapterFor(name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, a.Name())
	}

	_, err := AdapterFor("pdf")
	assert.ErrorIs(t, err, ErrUnknownAdapter)
}
