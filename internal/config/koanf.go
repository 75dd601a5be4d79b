// Regsync - HR Registry Synchronization Service
// Copyright 2026 D. Vicanovic (dvicanovic)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dvicanovic/regsync

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where the config file is searched, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/regsync/config.yaml",
	"/etc/regsync/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns the built-in defaults. They are applied first, then
// overridden by the config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Registry: RegistryConfig{
			Endpoint:          "",
			APIKey:            "",
			Token:             "",
			EmployeeQueryID:   "",
			DocumentQueryID:   "",
			PageSize:          10,
			PageTimeout:       30 * time.Second,
			DocumentTimeout:   120 * time.Second,
			RequestsPerSecond: 2,
		},
		Database: DatabaseConfig{
			Path:      "/data/regsync.duckdb",
			MaxMemory: "1GB",
			Threads:   0, // 0 = runtime.NumCPU()
		},
		Badger: BadgerConfig{
			Path: "/data/state",
		},
		NATS: NATSConfig{
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: true,
			StoreDir:       "/data/nats/jetstream",
			StreamName:     "SYNC_JOBS",
			DurableName:    "sync-worker",
			QueueGroup:     "sync-workers",
		},
		Jobs: JobsConfig{
			Concurrency:     2,
			RateLimit:       5,
			RateWindow:      time.Minute,
			RetryAttempts:   3,
			RetryBaseDelay:  5 * time.Second,
			StatusRetention: 7 * 24 * time.Hour,
			PoisonTopic:     "sync.jobs.poison",
		},
		Documents: DocumentsConfig{
			BatchSize:     4,
			BatchCooldown: 2 * time.Second,
			RetryDelay:    5 * time.Second,
			SnapshotEvery: 5,
			SnapshotDir:   "/data/progress",
		},
		Storage: StorageConfig{
			Root:    "/data/files",
			BaseURL: "/files",
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration from layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// REGISTRY_API_KEY -> registry.api_key, SERVER_PORT -> server.port, etc.
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file that exists, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices when
// they arrive as strings from environment variables.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Only known prefixes map; everything else is ignored so unrelated process
// environment does not leak into the configuration.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	prefixes := map[string]string{
		"registry_":  "registry.",
		"database_":  "database.",
		"badger_":    "badger.",
		"nats_":      "nats.",
		"jobs_":      "jobs.",
		"documents_": "documents.",
		"storage_":   "storage.",
		"server_":    "server.",
		"log_":       "logging.",
	}

	for prefix, section := range prefixes {
		if strings.HasPrefix(key, prefix) {
			return section + strings.TrimPrefix(key, prefix)
		}
	}
	return ""
}
