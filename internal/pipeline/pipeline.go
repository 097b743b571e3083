// Package pipeline runs the ETL: fetch the market document, extract
// vertices, build the curve, verify it and store it.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"fairrate/internal/curve"
	"fairrate/internal/domain"
	"fairrate/internal/extraction"
	"fairrate/internal/idhash"
	"fairrate/internal/ingestion"
	"fairrate/internal/logger"
	"fairrate/internal/observability"
	"fairrate/internal/storage"
	"fairrate/internal/storage/archive"
	"fairrate/internal/verification"
)

// Stage names used in logs and metrics.
const (
	StageFetch   = "fetch"
	StageExtract = "extract"
	StageBuild   = "build"
	StageVerify  = "verify"
	StageStore   = "store"
	StageArchive = "archive"
)

// RunResult summarizes one pipeline run.
type RunResult struct {
	ID               string
	Document         string
	DocumentDigest   string
	ReferenceDate    civil.Date
	DateFromDocument bool
	Extraction       extraction.Stats
	Days             int
	Fingerprint      string
	Unchanged        bool // stored curve for the date had the same fingerprint
	Stored           bool
	Archived         []string
	ArchiveErr       error // archive failures do not fail the run
	Quality          *QualityResult
	Warnings         []string
	StartedAt        time.Time
	Duration         time.Duration
}

// Pipeline wires a source, an extractor, a curve builder and a repository.
type Pipeline struct {
	source    ingestion.Source
	adapter   extraction.Adapter
	extractor *extraction.Extractor
	builder   *curve.Builder
	repo      storage.CurveRepository
	archiver  *archive.Archiver
	metrics   *observability.Metrics
	log       *logger.Entry
	clock     func() time.Time
	newID     func() string
	dryRun    bool
}

// New creates a pipeline.
func New(
	source ingestion.Source,
	adapter extraction.Adapter,
	extractor *extraction.Extractor,
	builder *curve.Builder,
	repo storage.CurveRepository,
) *Pipeline {
	return &Pipeline{
		source:    source,
		adapter:   adapter,
		extractor: extractor,
		builder:   builder,
		repo:      repo,
		log:       logger.Discard().WithComponent("pipeline"),
		clock:     func() time.Time { return time.Now().UTC() },
		newID:     func() string { return uuid.NewString() },
	}
}

// WithArchiver archives every stored curve.
func (p *Pipeline) WithArchiver(a *archive.Archiver) *Pipeline {
	p.archiver = a
	return p
}

// WithMetrics records stage durations and run outcomes.
func (p *Pipeline) WithMetrics(m *observability.Metrics) *Pipeline {
	p.metrics = m
	return p
}

// WithLogger sets the pipeline logger.
func (p *Pipeline) WithLogger(log *logger.Log) *Pipeline {
	p.log = log.WithComponent("pipeline")
	return p
}

// WithClock sets a custom clock function for deterministic output.
func (p *Pipeline) WithClock(clock func() time.Time) *Pipeline {
	p.clock = clock
	p.builder = p.builder.WithClock(clock)
	p.extractor = p.extractor.WithClock(clock)
	return p
}

// WithRunID overrides the run identifier generator.
func (p *Pipeline) WithRunID(newID func() string) *Pipeline {
	p.newID = newID
	return p
}

// WithDryRun builds and verifies the curve without storing or archiving it.
func (p *Pipeline) WithDryRun(dryRun bool) *Pipeline {
	p.dryRun = dryRun
	return p
}

// Run executes one ETL pass. Any failure before the store step leaves the
// repository untouched. The returned result is non-nil whenever the run
// got far enough to have something to report, including on error.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	res := &RunResult{ID: p.newID(), StartedAt: p.clock()}
	log := p.log.WithField("run_id", res.ID)
	log.Info("pipeline run started")

	err := p.run(ctx, res, log)
	res.Duration = p.clock().Sub(res.StartedAt)

	status := observability.StatusSuccess
	switch {
	case err != nil:
		status = observability.StatusFailed
		log.WithError(err).WithField("duration", res.Duration.String()).Error("pipeline run failed")
	case p.dryRun:
		status = observability.StatusDryRun
	}
	p.metrics.RecordPipelineRun(status, p.clock())

	if err == nil {
		log.WithFields(logger.Fields{
			"reference_date": res.ReferenceDate.String(),
			"vertices":       res.Extraction.Accepted,
			"days":           res.Days,
			"fingerprint":    res.Fingerprint,
			"unchanged":      res.Unchanged,
			"stored":         res.Stored,
			"archived":       len(res.Archived),
			"duration":       res.Duration.String(),
		}).Info("pipeline run completed")
	}
	return res, err
}

func (p *Pipeline) run(ctx context.Context, res *RunResult, log *logger.Entry) error {
	var doc *ingestion.Document
	if err := p.stage(StageFetch, log, func() (err error) {
		doc, err = p.source.Fetch(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	res.Document = doc.Name
	res.DocumentDigest = idhash.DocumentDigest(doc.Body)

	var extracted *extraction.Result
	err := p.stage(StageExtract, log, func() (err error) {
		extracted, err = p.extractor.ExtractDocument(p.adapter, bytes.NewReader(doc.Body))
		return err
	})
	if extracted != nil {
		res.Extraction = extracted.Stats
		res.ReferenceDate = extracted.ReferenceDate
		res.DateFromDocument = extracted.DateFromDocument
		res.Warnings = append(res.Warnings, extracted.Warnings...)
		s := extracted.Stats
		p.metrics.RecordExtraction(s.Accepted, s.Skipped, s.Duplicates, s.NonPositive)
	}
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	for _, w := range extracted.Warnings {
		log.Warn(w)
	}

	var c *domain.Curve
	if err := p.stage(StageBuild, log, func() (err error) {
		c, err = p.build(extracted, doc.Name, res.ID)
		return err
	}); err != nil {
		return fmt.Errorf("build: %w", err)
	}
	res.Days = c.Len()
	res.Fingerprint = c.Fingerprint

	if err := p.stage(StageVerify, log, func() error {
		report, err := verification.VerifyCurve(c)
		if err != nil {
			return err
		}
		return report.Err()
	}); err != nil {
		return fmt.Errorf("verify: %w", err)
	}

	res.Quality = CheckQuality(extracted, c)
	for _, check := range res.Quality.Failed() {
		log.WithFields(logger.Fields{
			"check":     check.Name,
			"threshold": check.Threshold,
			"actual":    check.Actual,
		}).Warn("quality check failed")
	}

	res.Unchanged = p.unchanged(ctx, c, log)
	if res.Unchanged {
		p.metrics.RecordCurveUnchanged()
		log.WithField("reference_date", res.ReferenceDate.String()).Info("curve unchanged since last build")
	}

	if p.dryRun {
		log.Info("dry run, skipping store and archive")
		return nil
	}

	if err := p.stage(StageStore, log, func() error {
		return p.repo.Store(ctx, c)
	}); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	res.Stored = true
	p.metrics.RecordCurveStored(res.ReferenceDate.In(time.UTC))

	if p.archiver.Enabled() {
		_ = p.stage(StageArchive, log, func() error {
			res.Archived, res.ArchiveErr = p.archiver.Archive(ctx, c)
			return res.ArchiveErr
		})
		if res.ArchiveErr != nil {
			p.metrics.RecordArchiveError()
			res.Warnings = append(res.Warnings, fmt.Sprintf("archive failed: %v", res.ArchiveErr))
		}
	}
	return nil
}

func (p *Pipeline) build(extracted *extraction.Result, source, runID string) (*domain.Curve, error) {
	c, err := p.builder.Build(extracted.ReferenceDate, extracted.Vertices)
	if err != nil {
		return nil, err
	}
	c.Source = source
	c.BuildID = runID
	c.Fingerprint = idhash.CurveFingerprint(c)
	return c, nil
}

// unchanged reports whether the repository already holds a curve with the
// same fingerprint for the date. Lookup failures are logged and treated
// as changed.
func (p *Pipeline) unchanged(ctx context.Context, c *domain.Curve, log *logger.Entry) bool {
	prev, err := p.repo.Load(ctx, c.ReferenceDate)
	switch {
	case errors.Is(err, storage.ErrCurveNotFound):
		return false
	case err != nil:
		log.WithError(err).Warn("could not load previous curve for comparison")
		return false
	}
	if prev.Fingerprint != "" {
		return prev.Fingerprint == c.Fingerprint
	}
	return idhash.CurveFingerprint(prev) == c.Fingerprint
}

// stage runs fn, logging and recording its duration.
func (p *Pipeline) stage(name string, log *logger.Entry, fn func() error) error {
	start := time.Now()
	err := fn()
	d := time.Since(start)
	p.metrics.RecordStage(name, d)
	entry := log.WithField("stage", name).WithField("duration_ms", float64(d.Nanoseconds())/1e6)
	if err != nil {
		entry.WithError(err).Warn("stage failed")
		return err
	}
	entry.Debug("stage completed")
	return nil
}
