// Package config loads the runtime configuration from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"fairrate/internal/extraction"
)

const (
	DefaultPath      = "config.yaml"
	DefaultSourceURL = "https://www.anbima.com.br/informacoes/est-termo/CZ-down.asp"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Storage drivers.
const (
	DriverMemory     = "memory"
	DriverPostgres   = "postgres"
	DriverClickhouse = "clickhouse"
)

type Config struct {
	Env        string           `yaml:"env"`
	Log        LogConfig        `yaml:"log"`
	Source     SourceConfig     `yaml:"source"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Curve      CurveConfig      `yaml:"curve"`
	Storage    StorageConfig    `yaml:"storage"`
	Archive    ArchiveConfig    `yaml:"archive"`
	HTTP       HTTPConfig       `yaml:"http"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// SourceConfig describes where the market document is downloaded from.
type SourceConfig struct {
	URL          string        `yaml:"url"`
	File         string        `yaml:"file"` // local document, wins over URL when set
	UserAgent    string        `yaml:"user_agent"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	RateLimitRPS float64       `yaml:"rate_limit_rps"`
	Encoding     string        `yaml:"encoding"` // latin1 or utf-8
}

type ExtractionConfig struct {
	Adapter        string   `yaml:"adapter"`
	SectionHeaders []string `yaml:"section_headers"`
	ColumnHeaders  []string `yaml:"column_headers"`
	Terminators    []string `yaml:"terminators"`
	StopOnBlank    *bool    `yaml:"stop_on_blank"`
	DayColumn      int      `yaml:"day_column"`
	RealColumn     int      `yaml:"real_column"`
	NominalColumn  int      `yaml:"nominal_column"`
}

type CurveConfig struct {
	Method  string `yaml:"method"`
	Horizon int    `yaml:"horizon"`
}

type StorageConfig struct {
	Driver        string `yaml:"driver"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"`
	Migrate       bool   `yaml:"migrate"`
}

type ArchiveConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Dir             string `yaml:"dir"`
	Prefix          string `yaml:"prefix"`
	S3Bucket        string `yaml:"s3_bucket"`
	S3Region        string `yaml:"s3_region"`
	S3Endpoint      string `yaml:"s3_endpoint"`
	S3PathStyle     bool   `yaml:"s3_path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type HTTPConfig struct {
	Addr          string        `yaml:"addr"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Namespace string `yaml:"namespace"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	stop := true
	return &Config{
		Env: EnvironmentDevelopment,
		Log: LogConfig{Level: "info", Format: "json", Output: "stdout"},
		Source: SourceConfig{
			URL:          DefaultSourceURL,
			UserAgent:    DefaultUserAgent,
			Timeout:      30 * time.Second,
			MaxRetries:   3,
			RetryDelay:   time.Second,
			MaxDelay:     10 * time.Second,
			RateLimitRPS: 1,
			Encoding:     "latin1",
		},
		Extraction: ExtractionConfig{
			Adapter:        "delimited",
			SectionHeaders: []string{"ETTJ Inflação Implícita"},
			ColumnHeaders:  []string{"Vértice"},
			Terminators:    []string{"PREFIXADOS", "Erro", "Não há dados", "No data"},
			StopOnBlank:    &stop,
			DayColumn:      0,
			RealColumn:     1,
			NominalColumn:  2,
		},
		Curve:   CurveConfig{Method: "pchip", Horizon: 5000},
		Storage: StorageConfig{Driver: DriverMemory, Migrate: true},
		Archive: ArchiveConfig{Prefix: "curves"},
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			CacheTTL:     5 * time.Minute,
		},
		Metrics: MetricsConfig{Enabled: true, Addr: ":9090", Namespace: "fairrate"},
	}
}

// Load reads .env (existing variables win), then the YAML file at path,
// then applies environment overrides and validates the result. A missing
// file is not an error: defaults plus environment are used.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	path = resolveEnvSpecificPath(path)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Env = AppEnvironmentOr(c.Env)
	c.Log.Level = getString("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getString("LOG_FORMAT", c.Log.Format)
	c.Log.Output = getString("LOG_OUTPUT", c.Log.Output)

	c.Source.URL = getString("SOURCE_URL", c.Source.URL)
	c.Source.File = getString("SOURCE_FILE", c.Source.File)
	c.Source.Encoding = getString("SOURCE_ENCODING", c.Source.Encoding)
	var err error
	if c.Source.Timeout, err = getDuration("SOURCE_TIMEOUT", c.Source.Timeout); err != nil {
		return err
	}
	if c.Source.MaxRetries, err = getInt("SOURCE_MAX_RETRIES", c.Source.MaxRetries); err != nil {
		return err
	}

	c.Extraction.Adapter = getString("EXTRACTION_ADAPTER", c.Extraction.Adapter)
	c.Curve.Method = getString("CURVE_METHOD", c.Curve.Method)
	if c.Curve.Horizon, err = getInt("CURVE_HORIZON", c.Curve.Horizon); err != nil {
		return err
	}

	c.Storage.Driver = getString("STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.PostgresDSN = getString("POSTGRES_DSN", c.Storage.PostgresDSN)
	c.Storage.ClickhouseDSN = getString("CLICKHOUSE_DSN", c.Storage.ClickhouseDSN)
	if c.Storage.Migrate, err = getBool("STORAGE_MIGRATE", c.Storage.Migrate); err != nil {
		return err
	}

	if c.Archive.Enabled, err = getBool("ARCHIVE_ENABLED", c.Archive.Enabled); err != nil {
		return err
	}
	c.Archive.Dir = getString("ARCHIVE_DIR", c.Archive.Dir)
	c.Archive.S3Bucket = getString("ARCHIVE_S3_BUCKET", c.Archive.S3Bucket)
	c.Archive.S3Region = getString("AWS_REGION", c.Archive.S3Region)
	c.Archive.S3Endpoint = getString("ARCHIVE_S3_ENDPOINT", c.Archive.S3Endpoint)
	c.Archive.AccessKeyID = getString("AWS_ACCESS_KEY_ID", c.Archive.AccessKeyID)
	c.Archive.SecretAccessKey = getString("AWS_SECRET_ACCESS_KEY", c.Archive.SecretAccessKey)

	c.HTTP.Addr = getString("HTTP_ADDR", c.HTTP.Addr)
	c.HTTP.RedisAddr = getString("REDIS_ADDR", c.HTTP.RedisAddr)
	c.HTTP.RedisPassword = getString("REDIS_PASSWORD", c.HTTP.RedisPassword)
	if c.HTTP.RedisDB, err = getInt("REDIS_DB", c.HTTP.RedisDB); err != nil {
		return err
	}
	if c.HTTP.CacheTTL, err = getDuration("CACHE_TTL", c.HTTP.CacheTTL); err != nil {
		return err
	}

	c.Metrics.Addr = getString("METRICS_ADDR", c.Metrics.Addr)
	return nil
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	if c.Source.File == "" && c.Source.URL == "" {
		return errors.New("source.url or source.file is required")
	}
	if c.Source.Timeout <= 0 {
		return fmt.Errorf("source.timeout must be positive, got %s", c.Source.Timeout)
	}
	if c.Source.MaxRetries < 0 {
		return fmt.Errorf("source.max_retries must be >= 0, got %d", c.Source.MaxRetries)
	}
	switch strings.ToLower(c.Source.Encoding) {
	case "latin1", "iso-8859-1", "utf-8", "utf8", "":
	default:
		return fmt.Errorf("source.encoding %q is not supported", c.Source.Encoding)
	}
	if c.Extraction.Adapter == "" {
		return errors.New("extraction.adapter is required")
	}
	if c.Extraction.DayColumn < 0 || c.Extraction.RealColumn < 0 || c.Extraction.NominalColumn < 0 {
		return errors.New("extraction columns must be >= 0")
	}
	switch c.Curve.Method {
	case "pchip", "linear":
	default:
		return fmt.Errorf("curve.method must be pchip or linear, got %q", c.Curve.Method)
	}
	if c.Curve.Horizon < 0 {
		return fmt.Errorf("curve.horizon must be >= 0, got %d", c.Curve.Horizon)
	}
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn is required for the postgres driver")
		}
	case DriverClickhouse:
		if c.Storage.ClickhouseDSN == "" {
			return errors.New("storage.clickhouse_dsn is required for the clickhouse driver")
		}
	default:
		return fmt.Errorf("storage.driver must be memory, postgres or clickhouse, got %q", c.Storage.Driver)
	}
	if c.Archive.Enabled && c.Archive.Dir == "" && c.Archive.S3Bucket == "" {
		return errors.New("archive.enabled needs archive.dir or archive.s3_bucket")
	}
	if c.Archive.S3Bucket != "" && c.Archive.S3Region == "" {
		return errors.New("archive.s3_region is required with archive.s3_bucket")
	}
	if c.HTTP.CacheTTL < 0 {
		return fmt.Errorf("http.cache_ttl must be >= 0, got %s", c.HTTP.CacheTTL)
	}
	return nil
}

func getString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

// ExtractorConfig converts the extraction section into extractor settings.
func (e ExtractionConfig) ExtractorConfig() extraction.Config {
	cfg := extraction.DefaultConfig()
	if e.SectionHeaders != nil {
		cfg.SectionHeaders = e.SectionHeaders
	}
	if e.ColumnHeaders != nil {
		cfg.ColumnHeaders = e.ColumnHeaders
	}
	if e.Terminators != nil {
		cfg.Terminators = e.Terminators
	}
	if e.StopOnBlank != nil {
		cfg.StopOnBlank = *e.StopOnBlank
	}
	cfg.Layout = extraction.Layout{Day: e.DayColumn, Real: e.RealColumn, Nominal: e.NominalColumn}
	return cfg
}
