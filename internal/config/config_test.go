package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fairrate/internal/extraction"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_ENV", "LOG_LEVEL", "LOG_FORMAT", "LOG_OUTPUT", "SOURCE_URL", "SOURCE_FILE",
		"SOURCE_TIMEOUT", "SOURCE_MAX_RETRIES", "SOURCE_ENCODING", "EXTRACTION_ADAPTER",
		"CURVE_METHOD", "CURVE_HORIZON", "STORAGE_DRIVER", "POSTGRES_DSN", "CLICKHOUSE_DSN",
		"STORAGE_MIGRATE", "ARCHIVE_ENABLED", "ARCHIVE_DIR", "ARCHIVE_S3_BUCKET", "AWS_REGION",
		"ARCHIVE_S3_ENDPOINT", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "HTTP_ADDR",
		"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "CACHE_TTL", "METRICS_ADDR",
	} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultSourceURL, cfg.Source.URL)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, "pchip", cfg.Curve.Method)
	assert.Equal(t, 5000, cfg.Curve.Horizon)
	assert.Equal(t, 30*time.Second, cfg.Source.Timeout)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
log:
  level: debug
  format: text
curve:
  method: linear
  horizon: 7560
storage:
  driver: postgres
  postgres_dsn: postgres://file
http:
  cache_ttl: 1m
`)
	t.Setenv("POSTGRES_DSN", "postgres://env")
	t.Setenv("SOURCE_TIMEOUT", "5s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "linear", cfg.Curve.Method)
	assert.Equal(t, 7560, cfg.Curve.Horizon)
	assert.Equal(t, "postgres://env", cfg.Storage.PostgresDSN)
	assert.Equal(t, 5*time.Second, cfg.Source.Timeout)
	assert.Equal(t, time.Minute, cfg.HTTP.CacheTTL)
}

func TestLoad_EnvSpecificFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "curve:\n  horizon: 5000\n")
	writeFile(t, dir, "config.production.yaml", "curve:\n  horizon: 6000\n")
	t.Setenv("APP_ENV", "prod")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6000, cfg.Curve.Horizon)
	assert.Equal(t, EnvironmentProduction, cfg.Env)
}

func TestLoad_BadEnvValue(t *testing.T) {
	clearEnv(t)
	t.Setenv("CURVE_HORIZON", "many")
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
		{"no source", func(c *Config) { c.Source.URL = "" }},
		{"timeout", func(c *Config) { c.Source.Timeout = 0 }},
		{"encoding", func(c *Config) { c.Source.Encoding = "ebcdic" }},
		{"method", func(c *Config) { c.Curve.Method = "spline" }},
		{"driver", func(c *Config) { c.Storage.Driver = "sqlite" }},
		{"postgres dsn", func(c *Config) { c.Storage.Driver = DriverPostgres }},
		{"clickhouse dsn", func(c *Config) { c.Storage.Driver = DriverClickhouse }},
		{"archive target", func(c *Config) { c.Archive.Enabled = true }},
		{"s3 region", func(c *Config) { c.Archive.S3Bucket = "curves" }},
	}
	require.NoError(t, Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestExtractorConfig(t *testing.T) {
	cfg := Default().Extraction.ExtractorConfig()
	assert.Equal(t, extraction.DefaultConfig(), cfg)

	stop := false
	custom := ExtractionConfig{
		Terminators:   []string{"END"},
		StopOnBlank:   &stop,
		DayColumn:     0,
		RealColumn:    2,
		NominalColumn: 1,
	}.ExtractorConfig()
	assert.Equal(t, []string{"END"}, custom.Terminators)
	assert.False(t, custom.StopOnBlank)
	assert.Equal(t, extraction.Layout{Day: 0, Real: 2, Nominal: 1}, custom.Layout)
	assert.Equal(t, extraction.DefaultConfig().SectionHeaders, custom.SectionHeaders)
}

func TestAppEnvironmentAliases(t *testing.T) {
	t.Setenv("APP_ENV", " STAG ")
	assert.Equal(t, EnvironmentStaging, AppEnvironment())
	t.Setenv("APP_ENV", "")
	assert.Equal(t, EnvironmentDevelopment, AppEnvironment())
}
