// Package config loads the process configuration from YAML or JSON5 files,
// with $include resolution and environment variable expansion.
package config

import (
	"fmt"
	"time"

	"github.com/haasonsaas/conduit/pkg/metrics"
)

// Config is the top-level configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Cache     CacheConfig     `yaml:"cache"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Store     StoreConfig     `yaml:"store"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Janitor   JanitorConfig   `yaml:"janitor"`
	Pricing   []PricingEntry  `yaml:"pricing"`
}

type ServerConfig struct {
	Host     string `yaml:"host"`
	HTTPPort int    `yaml:"http_port"`
}

type CacheConfig struct {
	MaxEntries int `yaml:"max_entries"`
}

type ArtifactsConfig struct {
	Backend string   `yaml:"backend"`
	Dir     string   `yaml:"dir"`
	S3      S3Config `yaml:"s3"`
}

type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

type StoreConfig struct {
	Dir              string        `yaml:"dir"`
	TraceRetention   time.Duration `yaml:"trace_retention"`
	MetricsRetention time.Duration `yaml:"metrics_retention"`
}

type LoggingConfig struct {
	Level          string   `yaml:"level"`
	Format         string   `yaml:"format"`
	RedactPatterns []string `yaml:"redact_patterns"`
}

type TracingConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
	Insecure     bool   `yaml:"insecure"`
}

type JanitorConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

// PricingEntry overrides or extends the built-in per-model price table.
type PricingEntry struct {
	Model            string  `yaml:"model"`
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

// Load reads, merges, and decodes the configuration file at path.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 1000
	}
	if cfg.Artifacts.Backend == "" {
		cfg.Artifacts.Backend = "local"
	}
	if cfg.Artifacts.Dir == "" {
		cfg.Artifacts.Dir = "data/artifacts"
	}
	if cfg.Store.Dir == "" {
		cfg.Store.Dir = "data/traces"
	}
	if cfg.Store.TraceRetention == 0 {
		cfg.Store.TraceRetention = 7 * 24 * time.Hour
	}
	if cfg.Store.MetricsRetention == 0 {
		cfg.Store.MetricsRetention = 30 * 24 * time.Hour
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "conduit"
	}
	if cfg.Janitor.Schedule == "" {
		cfg.Janitor.Schedule = "0 * * * *"
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Artifacts.Backend {
	case "local", "s3":
	default:
		return fmt.Errorf("artifacts.backend must be local or s3, got %q", c.Artifacts.Backend)
	}
	if c.Artifacts.Backend == "s3" && c.Artifacts.S3.Bucket == "" {
		return fmt.Errorf("artifacts.s3.bucket is required for the s3 backend")
	}
	if c.Server.HTTPPort < 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port out of range: %d", c.Server.HTTPPort)
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache.max_entries must not be negative")
	}
	for _, p := range c.Pricing {
		if p.Model == "" {
			return fmt.Errorf("pricing entries require a model name")
		}
		if p.InputPerMillion < 0 || p.OutputPerMillion < 0 {
			return fmt.Errorf("pricing for %s must not be negative", p.Model)
		}
	}
	return nil
}

// PriceTable merges configured pricing overrides onto the built-in table.
// With no overrides it returns nil so collectors use the defaults directly.
func (c *Config) PriceTable() metrics.PriceTable {
	if len(c.Pricing) == 0 {
		return nil
	}
	table := make(metrics.PriceTable, len(metrics.DefaultPrices)+len(c.Pricing))
	for model, price := range metrics.DefaultPrices {
		table[model] = price
	}
	for _, p := range c.Pricing {
		table[p.Model] = metrics.ModelPrice{
			InputPerMillion:  p.InputPerMillion,
			OutputPerMillion: p.OutputPerMillion,
		}
	}
	return table
}
