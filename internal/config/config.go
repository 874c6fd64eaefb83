package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DocumentsBackendDisk  = "disk"
	DocumentsBackendMinio = "minio"
)

type Config struct {
	Environment string `toml:"-"`

	Host string `toml:"host"`
	Port int    `toml:"port"`

	// logging
	LogLevel      string `toml:"log_level"`
	LogsPath      string `toml:"logs_path"`
	LogToStdout   bool   `toml:"log_to_stdout"`
	LogFormatJSON bool   `toml:"log_format_json"`
	SentryEnabled bool   `toml:"sentry_enabled"`

	// postgres
	PostgresHost     string `toml:"postgres_host"`
	PostgresPort     string `toml:"postgres_port"`
	PostgresDBName   string `toml:"postgres_db_name"`
	PostgresMaxConns int32  `toml:"postgres_max_conns"`

	// redis
	RedisHost string `toml:"redis_host"`
	RedisPort string `toml:"redis_port"`

	// metrics
	PrometheusMetricsHost string `toml:"prometheus_metrics_host"`
	PrometheusMetricsPort string `toml:"prometheus_metrics_port"`

	// auth
	SessionTTL                  Duration `toml:"session_ttl"`
	LoginRateLimitAllowedPerMin int      `toml:"login_rate_limit_allowed_per_min"`

	// ai collaborators
	OpenAIBaseURL            string   `toml:"openai_base_url"`
	ExtractionModel          string   `toml:"extraction_model"`
	AdviceModel              string   `toml:"advice_model"`
	AIRequestTimeout         Duration `toml:"ai_request_timeout"`
	AIRateLimitAllowedPerMin int      `toml:"ai_rate_limit_allowed_per_min"`
	ExtractionCacheSizeMB    int      `toml:"extraction_cache_size_mb"`

	// live projection
	ProjectorLoadTimeout Duration `toml:"projector_load_timeout"`

	// source documents
	DocumentsBackend  string `toml:"documents_backend"`
	DocumentsDiskPath string `toml:"documents_disk_path"`
	MinioEndpoint     string `toml:"minio_endpoint"`
	MinioBucket       string `toml:"minio_bucket"`
	MinioUseSSL       bool   `toml:"minio_use_ssl"`
	MaxDocumentSizeMB int    `toml:"max_document_size_mb"`
}

// Duration lets durations be written as "5s" in the TOML file.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration [%s]: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

type Toml struct {
	Development *Config
	Production  *Config
}

func (t *Toml) Get(env string) (*Config, error) {
	var cfg *Config
	switch strings.ToLower(env) {
	case "dev", "development":
		cfg = t.Development
	case "prod", "production":
		cfg = t.Production
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
	if cfg == nil {
		return nil, fmt.Errorf("no config section for env: %s", env)
	}
	cfg.Environment = strings.ToLower(env)
	return cfg, nil
}

func Load(env, path string) (*Config, error) {
	var t Toml
	if _, err := toml.DecodeFile(path, &t); err != nil {
		return nil, fmt.Errorf("decode config file %s: %w", path, err)
	}

	cfg, err := t.Get(env)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.SessionTTL.Duration == 0 {
		c.SessionTTL.Duration = 24 * 7 * time.Hour
	}
	if c.ProjectorLoadTimeout.Duration == 0 {
		c.ProjectorLoadTimeout.Duration = 5 * time.Second
	}
	if c.AIRequestTimeout.Duration == 0 {
		c.AIRequestTimeout.Duration = 90 * time.Second
	}
	if c.OpenAIBaseURL == "" {
		c.OpenAIBaseURL = "https://api.openai.com/v1"
	}
	if c.ExtractionModel == "" {
		c.ExtractionModel = "gpt-4o-mini"
	}
	if c.AdviceModel == "" {
		c.AdviceModel = "gpt-5-mini"
	}
	if c.ExtractionCacheSizeMB == 0 {
		c.ExtractionCacheSizeMB = 16
	}
	if c.DocumentsBackend == "" {
		c.DocumentsBackend = DocumentsBackendDisk
	}
	if c.MaxDocumentSizeMB == 0 {
		c.MaxDocumentSizeMB = 20
	}
	if c.LoginRateLimitAllowedPerMin == 0 {
		c.LoginRateLimitAllowedPerMin = 15
	}
	if c.AIRateLimitAllowedPerMin == 0 {
		c.AIRateLimitAllowedPerMin = 10
	}
}

func (c *Config) validate() error {
	if c.Port <= 0 {
		return errors.New("port must be set")
	}
	switch c.DocumentsBackend {
	case DocumentsBackendDisk:
		if c.DocumentsDiskPath == "" {
			return errors.New("documents_disk_path must be set for the disk backend")
		}
	case DocumentsBackendMinio:
		if c.MinioEndpoint == "" || c.MinioBucket == "" {
			return errors.New("minio_endpoint and minio_bucket must be set for the minio backend")
		}
	default:
		return fmt.Errorf("unknown documents backend: %s", c.DocumentsBackend)
	}
	return nil
}
