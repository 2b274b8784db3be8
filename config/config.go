// Package config provides configuration management for Recall.
package config

import (
	"fmt"
	"time"
)

// Config is the global configuration for Recall.
type Config struct {
	// App is the application configuration.
	App AppConfig `mapstructure:"app" validate:"required"`

	// Server is the HTTP server configuration.
	Server ServerConfig `mapstructure:"server" validate:"required"`

	// Log is the logging configuration.
	Log LogConfig `mapstructure:"log" validate:"required"`

	// Storage selects and configures the memory store.
	Storage StorageConfig `mapstructure:"storage"`

	// Search is the engine configuration.
	Search SearchConfig `mapstructure:"search"`

	// Strategies configures strategy configuration persistence.
	Strategies StrategiesConfig `mapstructure:"strategies"`

	// Cache is the strategy result cache configuration.
	Cache CacheConfig `mapstructure:"cache"`

	// Breaker tunes the per-strategy circuit breakers.
	Breaker BreakerConfig `mapstructure:"breaker"`

	// Monitor is the performance monitor configuration.
	Monitor MonitorConfig `mapstructure:"monitor"`

	// Metrics is the observability configuration.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Tracing is the distributed tracing configuration.
	Tracing TracingConfig `mapstructure:"tracing"`
}

// AppConfig holds application metadata and settings.
type AppConfig struct {
	// Name is the application name.
	Name string `mapstructure:"name" validate:"required"`

	// Version is the application version.
	Version string `mapstructure:"version"`

	// Environment is the runtime environment (development, staging, production).
	Environment string `mapstructure:"environment" validate:"oneof=development staging production"`

	// Debug enables debug mode with verbose logging.
	Debug bool `mapstructure:"debug"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	// Host is the bind address.
	Host string `mapstructure:"host" validate:"host"`

	// Port is the HTTP API port.
	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`

	// HTTP is the HTTP server configuration.
	HTTP HTTPConfig `mapstructure:"http"`

	// CORS is the CORS configuration.
	CORS CORSConfig `mapstructure:"cors"`

	// RateLimit throttles API requests per client address.
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig holds per-client request throttling settings.
type RateLimitConfig struct {
	// Enabled turns throttling on for the /api/v1 routes.
	Enabled bool `mapstructure:"enabled"`

	// RequestsPerSecond is the sustained rate allowed per client.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"min=0"`

	// Burst is the number of requests a client may make at once.
	Burst int `mapstructure:"burst" validate:"min=0"`

	// MaxClients bounds the number of tracked client addresses.
	MaxClients int `mapstructure:"max_clients" validate:"min=0"`
}

// HTTPConfig holds HTTP-specific settings.
type HTTPConfig struct {
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// RequestTimeout bounds a single API request, including the search.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	MaxHeaderBytes int `mapstructure:"max_header_bytes"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	// Enabled enables CORS support.
	Enabled bool `mapstructure:"enabled"`

	// AllowedOrigins is the list of allowed origins.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// AllowedMethods is the list of allowed HTTP methods.
	AllowedMethods []string `mapstructure:"allowed_methods"`

	// AllowedHeaders is the list of allowed headers.
	AllowedHeaders []string `mapstructure:"allowed_headers"`

	// ExposedHeaders is the list of headers exposed to the client.
	ExposedHeaders []string `mapstructure:"exposed_headers"`

	// AllowCredentials indicates whether credentials are allowed.
	AllowCredentials bool `mapstructure:"allow_credentials"`

	// MaxAge is the maximum age of CORS preflight cache in seconds.
	MaxAge int `mapstructure:"max_age"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`

	// Format is the output format (json, text).
	Format string `mapstructure:"format" validate:"oneof=json text"`

	// Output is the output destination (stdout, stderr, or file path).
	Output string `mapstructure:"output"`
}

// StorageConfig selects the memory store.
type StorageConfig struct {
	// Type is the store backend (memory, badger, sqlite).
	Type string `mapstructure:"type" validate:"oneof=memory badger sqlite"`

	// Badger is the BadgerDB configuration.
	Badger BadgerConfig `mapstructure:"badger"`

	// SQLite is the SQLite configuration.
	SQLite SQLiteConfig `mapstructure:"sqlite"`

	// Index configures the bleve full-text index layered over the store.
	Index IndexConfig `mapstructure:"index"`
}

// BadgerConfig holds BadgerDB-specific settings.
type BadgerConfig struct {
	// Path is the database directory path.
	Path string `mapstructure:"path"`

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool `mapstructure:"sync_writes"`

	// ValueLogFileSize is the maximum size of value log files in bytes.
	ValueLogFileSize int64 `mapstructure:"value_log_file_size" validate:"min=0"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	// Path is the database file, or ":memory:".
	Path string `mapstructure:"path"`
}

// IndexConfig holds bleve index settings.
type IndexConfig struct {
	// Enabled layers a bleve index over the store.
	Enabled bool `mapstructure:"enabled"`

	// Path is the index directory; empty keeps the index in memory.
	Path string `mapstructure:"path"`
}

// SearchConfig holds engine settings.
type SearchConfig struct {
	// MaxStrategiesPerQuery bounds the automatic fan-out.
	MaxStrategiesPerQuery int `mapstructure:"max_strategies_per_query" validate:"min=1,max=7"`

	// MaintenanceInterval drives trend analysis and audit compaction.
	MaintenanceInterval time.Duration `mapstructure:"maintenance_interval"`
}

// StrategiesConfig holds strategy configuration persistence settings.
type StrategiesConfig struct {
	// Dir holds <strategy>.json, backups/ and audit.jsonl.
	Dir string `mapstructure:"dir" validate:"required"`

	// MaxBackups is the number of backups kept per strategy.
	MaxBackups int `mapstructure:"max_backups" validate:"min=1"`

	// AuditLimit bounds the in-memory audit journal.
	AuditLimit int `mapstructure:"audit_limit" validate:"min=1"`
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	// Type is the cache implementation (lru, redis).
	Type string `mapstructure:"type" validate:"oneof=lru redis"`

	// TTL is how long a cached result set stays valid.
	TTL time.Duration `mapstructure:"ttl"`

	// Redis is the Redis configuration.
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	// Address is the Redis server address.
	Address string `mapstructure:"address" validate:"host"`

	// Password is the Redis password.
	Password string `mapstructure:"password"`

	// DB is the Redis database number.
	DB int `mapstructure:"db" validate:"min=0"`

	// KeyPrefix namespaces cache keys.
	KeyPrefix string `mapstructure:"key_prefix"`
}

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	// FailureThreshold consecutive failures open a breaker.
	FailureThreshold int `mapstructure:"failure_threshold" validate:"min=1"`

	// RecoveryTimeout is how long an open breaker waits before a trial call.
	RecoveryTimeout time.Duration `mapstructure:"recovery_timeout"`
}

// MonitorConfig holds performance monitor settings. The thresholds are
// hot-reloadable.
type MonitorConfig struct {
	// Interval is the trend collection period.
	Interval time.Duration `mapstructure:"interval"`

	// Retention is how long trend samples are kept.
	Retention time.Duration `mapstructure:"retention"`

	// MaxResponseTime triggers a response time alert.
	MaxResponseTime time.Duration `mapstructure:"max_response_time"`

	// MaxErrorRate triggers an error rate alert (0.0-1.0).
	MaxErrorRate float64 `mapstructure:"max_error_rate" validate:"min=0,max=1"`

	// MaxMemoryBytes triggers a memory alert.
	MaxMemoryBytes uint64 `mapstructure:"max_memory_bytes"`
}

// MetricsConfig holds observability settings.
type MetricsConfig struct {
	// Enabled enables metrics collection.
	Enabled bool `mapstructure:"enabled"`

	// Path is the metrics endpoint path.
	Path string `mapstructure:"path"`

	// Port is the metrics server port.
	Port int `mapstructure:"port" validate:"min=1,max=65535"`
}

// TracingConfig holds distributed tracing settings.
type TracingConfig struct {
	// Enabled enables distributed tracing.
	Enabled bool `mapstructure:"enabled"`

	// Exporter is the span exporter (otlpgrpc).
	Exporter string `mapstructure:"exporter" validate:"omitempty,oneof=otlpgrpc"`

	// Endpoint is the collector endpoint.
	Endpoint string `mapstructure:"endpoint"`

	// Timeout bounds a single export.
	Timeout time.Duration `mapstructure:"timeout"`

	// Headers are sent with every export.
	Headers map[string]string `mapstructure:"headers"`

	// Sampler is always_on, always_off or parentbased_traceidratio.
	Sampler string `mapstructure:"sampler" validate:"omitempty,oneof=always_on always_off parentbased_traceidratio"`

	// SampleRate is the fraction of traces to sample (0.0-1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"min=0,max=1"`
}

// Validate performs validation on the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// String returns a string representation of the configuration (without sensitive data).
func (c *Config) String() string {
	return fmt.Sprintf("Config{App: %s, Server: :%d, Env: %s, Storage: %s, Cache: %s}",
		c.App.Name, c.Server.Port, c.App.Environment, c.Storage.Type, c.Cache.Type)
}
