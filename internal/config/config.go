// Regsync - HR Registry Synchronization Service
// Copyright 2026 D. Vicanovic (dvicanovic)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dvicanovic/regsync

// Package config defines the Regsync configuration tree and its loader.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then environment variables. Later layers win.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration shared by every Regsync process.
type Config struct {
	Registry  RegistryConfig  `koanf:"registry"`
	Database  DatabaseConfig  `koanf:"database"`
	Badger    BadgerConfig    `koanf:"badger"`
	NATS      NATSConfig      `koanf:"nats"`
	Jobs      JobsConfig      `koanf:"jobs"`
	Documents DocumentsConfig `koanf:"documents"`
	Storage   StorageConfig   `koanf:"storage"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// RegistryConfig holds Source System connection settings.
type RegistryConfig struct {
	Endpoint        string `koanf:"endpoint"`
	APIKey          string `koanf:"api_key"`
	Token           string `koanf:"token"`
	EmployeeQueryID string `koanf:"employee_query_id"`
	DocumentQueryID string `koanf:"document_query_id"`

	PageSize          int           `koanf:"page_size"`
	PageTimeout       time.Duration `koanf:"page_timeout"`
	DocumentTimeout   time.Duration `koanf:"document_timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = runtime.NumCPU()
}

// BadgerConfig holds the embedded KV store settings used for job state and
// document pipeline snapshots.
type BadgerConfig struct {
	Path string `koanf:"path"`
}

// NATSConfig holds the JetStream job queue settings.
type NATSConfig struct {
	URL            string `koanf:"url"`
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`
	StreamName     string `koanf:"stream_name"`
	DurableName    string `koanf:"durable_name"`
	QueueGroup     string `koanf:"queue_group"`
}

// JobsConfig bounds sync job execution.
type JobsConfig struct {
	Concurrency     int           `koanf:"concurrency"`
	RateLimit       int           `koanf:"rate_limit"`        // job starts per window
	RateWindow      time.Duration `koanf:"rate_window"`       // rate limit window
	RetryAttempts   int           `koanf:"retry_attempts"`    // attempts per job before poison
	RetryBaseDelay  time.Duration `koanf:"retry_base_delay"`  // exponential backoff base
	StatusRetention time.Duration `koanf:"status_retention"`  // badger TTL for job status
	PoisonTopic     string        `koanf:"poison_topic"`
}

// DocumentsConfig bounds the document fetch pipeline.
type DocumentsConfig struct {
	BatchSize     int           `koanf:"batch_size"`
	BatchCooldown time.Duration `koanf:"batch_cooldown"`
	RetryDelay    time.Duration `koanf:"retry_delay"`    // between sequential retries
	SnapshotEvery int           `koanf:"snapshot_every"` // batches between resumability snapshots
	SnapshotDir   string        `koanf:"snapshot_dir"`
}

// StorageConfig holds the document object store settings.
type StorageConfig struct {
	Root    string `koanf:"root"`     // filesystem root for stored documents
	BaseURL string `koanf:"base_url"` // public URL prefix, e.g. /files
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig controls zerolog output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks cross-field constraints that unmarshaling cannot express.
func (c *Config) Validate() error {
	if c.Registry.Endpoint == "" {
		return fmt.Errorf("registry.endpoint is required")
	}
	if c.Registry.EmployeeQueryID == "" {
		return fmt.Errorf("registry.employee_query_id is required")
	}
	if c.Registry.PageSize <= 0 {
		return fmt.Errorf("registry.page_size must be positive, got %d", c.Registry.PageSize)
	}
	if c.Jobs.Concurrency <= 0 {
		return fmt.Errorf("jobs.concurrency must be positive, got %d", c.Jobs.Concurrency)
	}
	if c.Jobs.RetryAttempts <= 0 {
		return fmt.Errorf("jobs.retry_attempts must be positive, got %d", c.Jobs.RetryAttempts)
	}
	if c.Documents.BatchSize <= 0 {
		return fmt.Errorf("documents.batch_size must be positive, got %d", c.Documents.BatchSize)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Storage.Root == "" {
		return fmt.Errorf("storage.root is required")
	}
	return nil
}
