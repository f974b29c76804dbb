// Package config handles configuration loading for the statement service.
//
// Configuration is loaded from a YAML or TOML file (chosen by extension) with
// support for environment variable expansion (${VAR} or $VAR syntax). This
// allows database credentials and broker URLs to be injected at runtime.
//
// # Configuration Sections
//
//   - server: HTTP listener, CORS origins, upload limits
//   - storage: backend type (memory or mongodb) and MongoDB settings
//   - nats: broker URL and subjects for ingestion and results
//   - processing: strict validation, extra schema definitions, dedup window
//   - donation: minimum monthly average
//   - logging: level and format
//   - oauth2: bearer token validation for the API
//   - observability: metrics endpoint
//
// # Example Configuration
//
//	server:
//	  port: 8080
//	  corsOrigins: ["https://banko.example.org"]
//
//	storage:
//	  type: mongodb
//	  mongodb:
//	    uri: ${MONGODB_URI}
//	    database: banko
//
//	nats:
//	  enabled: true
//	  url: nats://localhost:4222
//
// See [Load] for loading configuration from a file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Storage    StorageConfig    `yaml:"storage" toml:"storage"`
	NATS       NATSConfig       `yaml:"nats" toml:"nats"`
	Processing ProcessingConfig `yaml:"processing" toml:"processing"`
	Donation   DonationConfig   `yaml:"donation" toml:"donation"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
	OAuth2     OAuth2Config     `yaml:"oauth2" toml:"oauth2"`
	Metrics    MetricsConfig    `yaml:"observability" toml:"observability"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host           string   `yaml:"host" toml:"host"`
	Port           int      `yaml:"port" toml:"port"`
	CorsOrigins    []string `yaml:"corsOrigins" toml:"cors_origins"`
	MaxUploadBytes int64    `yaml:"maxUploadBytes" toml:"max_upload_bytes"`
	MaxFiles       int      `yaml:"maxFiles" toml:"max_files"`
	ReadTimeout    Duration `yaml:"readTimeout" toml:"read_timeout"`
	WriteTimeout   Duration `yaml:"writeTimeout" toml:"write_timeout"`
	TLS            struct {
		Enabled  bool   `yaml:"enabled" toml:"enabled"`
		CertFile string `yaml:"certFile" toml:"cert_file"`
		KeyFile  string `yaml:"keyFile" toml:"key_file"`
	} `yaml:"tls" toml:"tls"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig holds persistence settings
type StorageConfig struct {
	// Type is "memory" or "mongodb"
	Type    string        `yaml:"type" toml:"type"`
	MongoDB MongoDBConfig `yaml:"mongodb" toml:"mongodb"`
}

// MongoDBConfig holds MongoDB connection settings
type MongoDBConfig struct {
	URI      string   `yaml:"uri" toml:"uri"`
	Database string   `yaml:"database" toml:"database"`
	Timeout  Duration `yaml:"timeout" toml:"timeout"`
	GridFS   struct {
		BucketName     string `yaml:"bucketName" toml:"bucket_name"`
		ChunkSizeBytes int32  `yaml:"chunkSizeBytes" toml:"chunk_size_bytes"`
	} `yaml:"gridfs" toml:"gridfs"`
}

// NATSConfig holds message broker settings
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled" toml:"enabled"`
	URL           string `yaml:"url" toml:"url"`
	IngestSubject string `yaml:"ingestSubject" toml:"ingest_subject"`
	ResultSubject string `yaml:"resultSubject" toml:"result_subject"`
	// QueueGroup spreads ingestion over service instances
	QueueGroup string `yaml:"queueGroup" toml:"queue_group"`
}

// ProcessingConfig holds statement processing settings
type ProcessingConfig struct {
	// Strict rejects statements with validation errors
	Strict *bool `yaml:"strict" toml:"strict"`
	// SchemaDir holds additional message definitions (*.yaml)
	SchemaDir   string   `yaml:"schemaDir" toml:"schema_dir"`
	DedupWindow Duration `yaml:"dedupWindow" toml:"dedup_window"`
	// ArchiveRaw stores uploaded files compressed
	ArchiveRaw *bool `yaml:"archiveRaw" toml:"archive_raw"`
}

// IsStrict reports whether strict validation is enabled (default true)
func (p ProcessingConfig) IsStrict() bool {
	return p.Strict == nil || *p.Strict
}

// ShouldArchiveRaw reports whether raw files are archived (default true)
func (p ProcessingConfig) ShouldArchiveRaw() bool {
	return p.ArchiveRaw == nil || *p.ArchiveRaw
}

// DonationConfig holds donation analysis settings
type DonationConfig struct {
	MinimumMonthly string `yaml:"minimumMonthly" toml:"minimum_monthly"`
}

// Minimum returns the parsed minimum monthly average
func (d DonationConfig) Minimum() decimal.Decimal {
	minimum, err := decimal.NewFromString(d.MinimumMonthly)
	if err != nil {
		return decimal.RequireFromString(DefaultMinimumMonthly)
	}
	return minimum
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // console or json
}

// OAuth2Config holds the bearer token settings of the API. Authentication
// is disabled while Issuer is empty.
type OAuth2Config struct {
	Issuer   string `yaml:"issuer" toml:"issuer"`
	Audience string `yaml:"audience" toml:"audience"`
	JWKSUrl  string `yaml:"jwksUrl" toml:"jwks_url"`
	// Scope, when set, must be granted to upload files
	Scope string `yaml:"scope" toml:"scope"`
}

// MetricsConfig holds observability settings
type MetricsConfig struct {
	Metrics struct {
		Enabled bool   `yaml:"enabled" toml:"enabled"`
		Path    string `yaml:"path" toml:"path"`
	} `yaml:"metrics" toml:"metrics"`
}

// Defaults
const (
	DefaultPort           = 8080
	DefaultMaxUploadBytes = 10 << 20
	DefaultMaxFiles       = 20
	DefaultDatabase       = "banko"
	DefaultBucket         = "statements"
	DefaultChunkSize      = 261120 // 255KB
	DefaultIngestSubject  = "banko.statements.ingest"
	DefaultResultSubject  = "banko.analysis.completed"
	DefaultQueueGroup     = "banko"
	DefaultMinimumMonthly = "30.00"
	DefaultMetricsPath    = "/metrics"
)

// Default returns a configuration with every default applied and in-memory storage
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Metrics.Metrics.Enabled = true
	return cfg
}

// Load reads configuration from a YAML or TOML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := []byte(os.ExpandEnv(string(data)))

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	// Apply defaults
	cfg.applyDefaults()

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if len(c.Server.CorsOrigins) == 0 {
		c.Server.CorsOrigins = []string{"*"}
	}
	if c.Server.MaxUploadBytes == 0 {
		c.Server.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.Server.MaxFiles == 0 {
		c.Server.MaxFiles = DefaultMaxFiles
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = Duration(30 * time.Second)
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = Duration(60 * time.Second)
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "memory"
	}
	if c.Storage.MongoDB.Database == "" {
		c.Storage.MongoDB.Database = DefaultDatabase
	}
	if c.Storage.MongoDB.Timeout == 0 {
		c.Storage.MongoDB.Timeout = Duration(10 * time.Second)
	}
	if c.Storage.MongoDB.GridFS.BucketName == "" {
		c.Storage.MongoDB.GridFS.BucketName = DefaultBucket
	}
	if c.Storage.MongoDB.GridFS.ChunkSizeBytes == 0 {
		c.Storage.MongoDB.GridFS.ChunkSizeBytes = DefaultChunkSize
	}
	if c.NATS.IngestSubject == "" {
		c.NATS.IngestSubject = DefaultIngestSubject
	}
	if c.NATS.ResultSubject == "" {
		c.NATS.ResultSubject = DefaultResultSubject
	}
	if c.NATS.QueueGroup == "" {
		c.NATS.QueueGroup = DefaultQueueGroup
	}
	if c.Processing.DedupWindow == 0 {
		c.Processing.DedupWindow = Duration(24 * time.Hour)
	}
	if c.Donation.MinimumMonthly == "" {
		c.Donation.MinimumMonthly = DefaultMinimumMonthly
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Metrics.Metrics.Path == "" {
		c.Metrics.Metrics.Path = DefaultMetricsPath
	}
}

// Validate checks the configuration after defaults were applied
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxUploadBytes < 0 {
		return fmt.Errorf("server.maxUploadBytes must not be negative")
	}
	if c.Server.TLS.Enabled && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		return fmt.Errorf("server.tls.certFile and server.tls.keyFile are required when TLS is enabled")
	}

	switch c.Storage.Type {
	case "memory":
	case "mongodb":
		if c.Storage.MongoDB.URI == "" {
			return fmt.Errorf("storage.mongodb.uri is required when type is 'mongodb'")
		}
	default:
		return fmt.Errorf("storage.type must be 'memory' or 'mongodb', got '%s'", c.Storage.Type)
	}

	if c.OAuth2.Issuer != "" && c.OAuth2.JWKSUrl == "" {
		return fmt.Errorf("oauth2.jwksUrl is required when oauth2.issuer is set")
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats is enabled")
	}

	minimum, err := decimal.NewFromString(c.Donation.MinimumMonthly)
	if err != nil {
		return fmt.Errorf("donation.minimumMonthly: %w", err)
	}
	if minimum.IsNegative() {
		return fmt.Errorf("donation.minimumMonthly must not be negative")
	}

	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be 'console' or 'json', got '%s'", c.Logging.Format)
	}

	return nil
}

// Duration is a time.Duration written as "30s" or "24h" in configuration files
type Duration time.Duration

// UnmarshalText parses a Go duration string
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText writes the duration as a Go duration string
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the duration as time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
