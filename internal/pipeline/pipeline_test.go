package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fairrate/internal/curve"
	"fairrate/internal/domain"
	"fairrate/internal/extraction"
	"fairrate/internal/ingestion"
	"fairrate/internal/ingestion/stub"
	"fairrate/internal/observability"
	"fairrate/internal/storage/archive"
	"fairrate/internal/storage/memory"
)

var (
	fixedTime = time.Date(2026, 2, 2, 20, 0, 0, 0, time.UTC)
	refDate   = civil.Date{Year: 2026, Month: time.February, Day: 2}
)

func loadDocument(t *testing.T) string {
	t.Helper()
	body, err := os.ReadFile(filepath.Join("testdata", "curva_zero.txt"))
	require.NoError(t, err)
	return string(body)
}

func newPipeline(t *testing.T, src ingestion.Source, store *memory.CurveStore) *Pipeline {
	t.Helper()
	adapter, err := extraction.AdapterFor(extraction.AdapterDelimited)
	require.NoError(t, err)
	return New(
		src,
		adapter,
		extraction.NewExtractor(extraction.DefaultConfig()),
		curve.NewBuilder(curve.DefaultOptions()),
		store,
	).WithClock(func() time.Time { return fixedTime }).
		WithRunID(func() string { return "run-1" })
}

type failingSink struct{}

func (failingSink) Put(context.Context, string, []byte) (string, error) {
	return "", errors.New("bucket unavailable")
}

func TestPipeline_Run(t *testing.T) {
	ctx := context.Background()
	store := memory.NewCurveStore()
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics("test", reg)

	res, err := newPipeline(t, stub.NewSource(loadDocument(t)), store).WithMetrics(m).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.ID)
	assert.Equal(t, refDate, res.ReferenceDate)
	assert.True(t, res.DateFromDocument)
	assert.Equal(t, 5, res.Extraction.Accepted)
	assert.Equal(t, domain.DefaultHorizon, res.Days)
	assert.NotEmpty(t, res.Fingerprint)
	assert.NotEmpty(t, res.DocumentDigest)
	assert.True(t, res.Stored)
	assert.False(t, res.Unchanged)
	require.NotNil(t, res.Quality)
	assert.True(t, res.Quality.AllPass, "%+v", res.Quality.Failed())

	stored, err := store.Load(ctx, refDate)
	require.NoError(t, err)
	assert.Equal(t, "run-1", stored.BuildID)
	assert.Equal(t, "stub", stored.Source)
	assert.Equal(t, res.Fingerprint, stored.Fingerprint)
	assert.InDelta(t, 13.0, stored.NominalAt(252), 1e-9)
	assert.InDelta(t, 6.5, stored.RealAt(252), 1e-9)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PipelineRunsTotal.WithLabelValues(observability.StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CurvesStored))
}

func TestPipeline_UnchangedRebuild(t *testing.T) {
	ctx := context.Background()
	store := memory.NewCurveStore()
	src := stub.NewSource(loadDocument(t))

	first, err := newPipeline(t, src, store).Run(ctx)
	require.NoError(t, err)
	second, err := newPipeline(t, src, store).Run(ctx)
	require.NoError(t, err)

	assert.False(t, first.Unchanged)
	assert.True(t, second.Unchanged)
	assert.True(t, second.Stored)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)

	dates, err := store.ListAvailableDates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []civil.Date{refDate}, dates)
}

func TestPipeline_DryRun(t *testing.T) {
	ctx := context.Background()
	store := memory.NewCurveStore()

	res, err := newPipeline(t, stub.NewSource(loadDocument(t)), store).WithDryRun(true).Run(ctx)
	require.NoError(t, err)
	assert.False(t, res.Stored)
	assert.Equal(t, domain.DefaultHorizon, res.Days)

	dates, err := store.ListAvailableDates(ctx)
	require.NoError(t, err)
	assert.Empty(t, dates)
}

func TestPipeline_FetchError(t *testing.T) {
	store := memory.NewCurveStore()
	src := stub.NewSource("")
	src.Err = ingestion.ErrFetch

	reg := prometheus.NewRegistry()
	m := observability.NewMetrics("test", reg)
	_, err := newPipeline(t, src, store).WithMetrics(m).Run(context.Background())
	require.ErrorIs(t, err, ingestion.ErrFetch)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PipelineRunsTotal.WithLabelValues(observability.StatusFailed)))
}

func TestPipeline_ParseErrorLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	store := memory.NewCurveStore()

	doc := "Curva Zero - 02/02/2026\n\nETTJ Inflação Implícita\n252;6,50;13,00\n504;6,20;12,50\n"
	res, err := newPipeline(t, stub.NewSource(doc), store).Run(ctx)
	require.ErrorIs(t, err, extraction.ErrParse)
	require.NotNil(t, res)
	assert.Equal(t, 2, res.Extraction.Accepted)
	assert.False(t, res.Stored)

	dates, err := store.ListAvailableDates(ctx)
	require.NoError(t, err)
	assert.Empty(t, dates)
}

func TestPipeline_Archive(t *testing.T) {
	dir := t.TempDir()
	archiver := archive.NewArchiver("curves", archive.LocalSink{Dir: dir})

	res, err := newPipeline(t, stub.NewSource(loadDocument(t)), memory.NewCurveStore()).
		WithArchiver(archiver).
		Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, res.ArchiveErr)
	require.Len(t, res.Archived, 1)

	data, err := os.ReadFile(filepath.Join(dir, archive.Key("curves", refDate)))
	require.NoError(t, err)
	decoded, err := archive.DecodeParquet(data)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultHorizon, decoded.Len())
}

func TestPipeline_ArchiveFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	store := memory.NewCurveStore()

	res, err := newPipeline(t, stub.NewSource(loadDocument(t)), store).
		WithArchiver(archive.NewArchiver("curves", failingSink{})).
		Run(ctx)
	require.NoError(t, err)
	assert.True(t, res.Stored)
	assert.Error(t, res.ArchiveErr)
	assert.NotEmpty(t, res.Warnings)

	_, err = store.Load(ctx, refDate)
	assert.NoError(t, err)
}

func TestCheckQuality(t *testing.T) {
	res := &extraction.Result{
		Vertices: []domain.MarketVertex{
			{Day: 252, NominalRate: 13, RealRate: 6.5},
			{Day: 504, NominalRate: 12.5, RealRate: 6.2},
			{Day: 756, NominalRate: 12.2, RealRate: 6},
			{Day: 1008, NominalRate: 12, RealRate: 5.9},
			{Day: 1260, NominalRate: 11.8, RealRate: 5.8},
		},
		Stats: extraction.Stats{Skipped: 1},
	}
	c := &domain.Curve{Nominal: make([]float64, 5000), Real: make([]float64, 5000)}

	q := CheckQuality(res, c)
	assert.False(t, q.AllPass)

	failed := map[string]bool{}
	for _, check := range q.Failed() {
		failed[check.Name] = true
	}
	assert.Equal(t, map[string]bool{
		"Reference date source": true,
		"Rejected rows":         true,
		"Vertex coverage":       true,
	}, failed)
}
