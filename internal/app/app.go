// Package app wires configuration into the concrete components the
// commands run: logger, metrics, repository, source, archiver and pipeline.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"fairrate/internal/config"
	"fairrate/internal/curve"
	"fairrate/internal/domain"
	"fairrate/internal/extraction"
	"fairrate/internal/ingestion"
	"fairrate/internal/logger"
	"fairrate/internal/observability"
	"fairrate/internal/pipeline"
	"fairrate/internal/storage"
	"fairrate/internal/storage/archive"
	chstore "fairrate/internal/storage/clickhouse"
	"fairrate/internal/storage/memory"
	"fairrate/internal/storage/migrations"
	pgstore "fairrate/internal/storage/postgres"
)

// NewLogger builds the process logger from the log section.
func NewLogger(cfg config.LogConfig) (*logger.Log, error) {
	log := logger.New()
	if err := log.Configure(logger.Options{
		Level:  cfg.Level,
		Format: cfg.Format,
		Output: cfg.Output,
		MaxAge: cfg.MaxAge,
	}); err != nil {
		return nil, fmt.Errorf("configure logger: %w", err)
	}
	return log, nil
}

// NewMetrics registers metrics on the default registry, or returns nil
// when metrics are disabled.
func NewMetrics(cfg config.MetricsConfig) *observability.Metrics {
	if !cfg.Enabled {
		return nil
	}
	return observability.NewMetrics(cfg.Namespace, prometheus.DefaultRegisterer)
}

// OpenRepository connects the configured curve repository, applying
// migrations first when enabled. The returned cleanup closes connections.
func OpenRepository(ctx context.Context, cfg config.StorageConfig, m *observability.Metrics, log *logger.Log) (storage.CurveRepository, func(), error) {
	entry := log.WithComponent("storage").WithField("driver", cfg.Driver)

	switch cfg.Driver {
	case config.DriverMemory:
		entry.Warn("using in-memory storage, curves are lost on exit")
		return storage.Instrument(memory.NewCurveStore(), cfg.Driver, m), func() {}, nil

	case config.DriverPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if cfg.Migrate {
			applied, err := migrations.RunPostgresMigrations(ctx, pool)
			if err != nil {
				pool.Close()
				return nil, nil, fmt.Errorf("postgres migrations: %w", err)
			}
			entry.WithField("applied", applied).Info("postgres migrations applied")
		}
		return storage.Instrument(pgstore.NewCurveStore(pool), cfg.Driver, m), pool.Close, nil

	case config.DriverClickhouse:
		var conn *chstore.Conn
		var err error
		if cfg.Migrate {
			var applied []string
			conn, applied, err = migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
			if err == nil {
				entry.WithField("applied", applied).Info("clickhouse migrations applied")
			}
		} else {
			conn, err = chstore.NewConn(ctx, cfg.ClickhouseDSN)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		cleanup := func() {
			if err := conn.Close(); err != nil {
				entry.WithError(err).Warn("close clickhouse connection")
			}
		}
		return storage.Instrument(chstore.NewCurveStore(conn).WithLogger(log), cfg.Driver, m), cleanup, nil
	}
	return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

// NewSource returns a file source when source.file is set, otherwise an
// HTTP source for source.url.
func NewSource(cfg config.SourceConfig, m *observability.Metrics, log *logger.Log) ingestion.Source {
	if cfg.File != "" {
		return ingestion.NewFileSource(cfg.File, cfg.Encoding)
	}
	return ingestion.NewHTTPSource(cfg.URL,
		ingestion.WithTimeout(cfg.Timeout),
		ingestion.WithMaxRetries(cfg.MaxRetries),
		ingestion.WithRetryDelay(cfg.RetryDelay),
		ingestion.WithMaxDelay(cfg.MaxDelay),
		ingestion.WithUserAgent(cfg.UserAgent),
		ingestion.WithEncoding(cfg.Encoding),
		ingestion.WithRateLimit(cfg.RateLimitRPS),
		ingestion.WithMetrics(m),
		ingestion.WithLogger(log),
	)
}

// NewArchiver returns the configured archiver, or nil when archiving is off.
func NewArchiver(ctx context.Context, cfg config.ArchiveConfig) (*archive.Archiver, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	var sinks []archive.Sink
	if cfg.Dir != "" {
		sinks = append(sinks, archive.LocalSink{Dir: cfg.Dir})
	}
	if cfg.S3Bucket != "" {
		s3Sink, err := archive.NewS3Sink(ctx, archive.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			PathStyle:       cfg.S3PathStyle,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 archive: %w", err)
		}
		sinks = append(sinks, s3Sink)
	}
	return archive.NewArchiver(cfg.Prefix, sinks...), nil
}

// NewBuilder returns the curve builder for the curve section.
func NewBuilder(cfg config.CurveConfig) *curve.Builder {
	return curve.NewBuilder(curve.Options{
		Method:  domain.InterpolationMethod(cfg.Method),
		Horizon: cfg.Horizon,
	})
}

// NewPipeline assembles the ETL pipeline.
func NewPipeline(
	cfg *config.Config,
	source ingestion.Source,
	repo storage.CurveRepository,
	archiver *archive.Archiver,
	m *observability.Metrics,
	log *logger.Log,
) (*pipeline.Pipeline, error) {
	adapter, err := extraction.AdapterFor(cfg.Extraction.Adapter)
	if err != nil {
		return nil, err
	}
	return pipeline.New(
		source,
		adapter,
		extraction.NewExtractor(cfg.Extraction.ExtractorConfig()),
		NewBuilder(cfg.Curve),
		repo,
	).WithArchiver(archiver).WithMetrics(m).WithLogger(log), nil
}
