// Package config provides centralized configuration management for the consolidator.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Input     InputConfig
	Store     StoreConfig
	Export    ExportConfig
	Normalize NormalizeConfig
	Pipeline  PipelineConfig
	Monitor   MonitorConfig
	Database  DatabaseConfig
	NATS      NATSConfig
	Logging   LoggingConfig
}

// InputConfig describes the export tree to scan.
type InputConfig struct {
	// Root is the directory holding one subtree per source (default: ./exports)
	Root string `env:"INPUT_ROOT" default:"./exports"`

	// MaxFileSize is the largest file read into memory, in bytes (default: 100MB)
	MaxFileSize int64 `env:"INPUT_MAX_FILE_SIZE" default:"104857600"`

	// Extensions lists accepted file extensions
	Extensions []string `env:"INPUT_EXTENSIONS" default:".csv,.tsv,.txt,.xlsx,.xlsm"`
}

// StoreConfig holds consolidated store settings.
type StoreConfig struct {
	// Root is where state.db, partitions/ and summary.json live (default: ./store)
	Root string `env:"STORE_ROOT" default:"./store"`

	// LockTimeout bounds the wait for the single-writer file lock (default: 1s)
	LockTimeout time.Duration `env:"STORE_LOCK_TIMEOUT" default:"1s"`
}

// ExportConfig toggles the derived flat exports.
type ExportConfig struct {
	CSV     bool `env:"EXPORT_CSV" default:"true"`
	Parquet bool `env:"EXPORT_PARQUET" default:"true"`
}

// NormalizeConfig tunes the record normalizer.
type NormalizeConfig struct {
	// FuzzyThreshold is the minimum similarity for fuzzy header matches (default: 0.82)
	FuzzyThreshold float64 `env:"NORMALIZE_FUZZY_THRESHOLD" default:"0.82"`

	// DefaultCurrency applies when a price carries no currency marker (default: NGN)
	DefaultCurrency string `env:"NORMALIZE_DEFAULT_CURRENCY" default:"NGN"`
}

// PipelineConfig holds orchestration settings.
type PipelineConfig struct {
	// Workers is the number of partitions processed in parallel (default: 1)
	Workers int `env:"WORKERS" default:"1"`

	// WatchInterval is the polling interval in watch mode (default: 5m)
	WatchInterval time.Duration `env:"WATCH_INTERVAL" default:"5m"`

	// SinkTimeout bounds each mirror sync and merge event (default: 15s)
	SinkTimeout time.Duration `env:"SINK_TIMEOUT" default:"15s"`
}

// MonitorConfig holds the monitoring HTTP surface settings.
type MonitorConfig struct {
	// Enabled serves /healthz, /summary, /runs/last and /metrics in watch mode
	Enabled bool `env:"MONITOR_ENABLED" default:"false"`

	Host string `env:"MONITOR_HOST" default:"127.0.0.1"`
	Port int    `env:"MONITOR_PORT" default:"9090"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 10s)
	ShutdownTimeout time.Duration `env:"MONITOR_SHUTDOWN_TIMEOUT" default:"10s"`
}

// DatabaseConfig holds the optional Postgres mirror settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string; empty disables the mirror
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of open connections (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// BreakerFailures is the consecutive failure count that opens the breaker (default: 5)
	BreakerFailures int `env:"DB_BREAKER_FAILURES" default:"5"`

	// BreakerTimeout is how long the breaker stays open (default: 30s)
	BreakerTimeout time.Duration `env:"DB_BREAKER_TIMEOUT" default:"30s"`
}

// NATSConfig holds the optional merge event publisher settings.
type NATSConfig struct {
	// URL is the NATS server URL; empty disables merge events
	URL string `env:"NATS_URL"`

	Subject string `env:"NATS_SUBJECT" default:"consolidation.merged"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the monitor listen address in host:port format.
func (c *MonitorConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// MirrorEnabled reports whether the Postgres mirror is configured.
func (c *DatabaseConfig) MirrorEnabled() bool {
	return c.URL != ""
}
