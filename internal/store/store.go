// Regsync - HR Registry Synchronization Service
// Copyright 2026 D. Vicanovic (dvicanovic)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dvicanovic/regsync

// Package store persists canonical employee records and certificates in
// DuckDB.
//
// All writes are idempotent: employees are keyed by their natural identifier,
// certificates by (owner_id, type). Re-running a sync or a document batch
// never duplicates rows and never changes a stored employee id.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/dvicanovic/regsync/internal/config"
	"github.com/dvicanovic/regsync/internal/logging"
)

// DB wraps the DuckDB connection and provides data access methods.
type DB struct {
	conn *sql.DB
	cfg  *config.DatabaseConfig
}

// New opens the database and initializes the schema.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	if dbDir := filepath.Dir(cfg.Path); dbDir != "" && dbDir != "." && cfg.Path != ":memory:" {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
		}
	}

	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s",
		cfg.Path, numThreads, cfg.MaxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// DuckDB holds a single write transaction at a time; a small pool is all
	// concurrent readers need.
	conn.SetMaxOpenConns(numThreads)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)

	db := &DB{conn: conn, cfg: cfg}
	if err := db.initSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Info().Str("path", cfg.Path).Msg("Database ready")
	return db, nil
}

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS employees (
			id VARCHAR PRIMARY KEY,
			natural_id VARCHAR NOT NULL UNIQUE,
			institution_id VARCHAR NOT NULL,
			display_name VARCHAR NOT NULL,
			gender VARCHAR,
			status VARCHAR,
			address VARCHAR,
			birth_date VARCHAR,
			position VARCHAR,
			employment_start VARCHAR,
			salary_grade VARCHAR,
			salary_amount DOUBLE,
			education_level VARCHAR,
			education_school VARCHAR,
			contract_url VARCHAR DEFAULT '',
			birth_record_url VARCHAR DEFAULT '',
			confirmation_letter_url VARCHAR DEFAULT '',
			diploma_url VARCHAR DEFAULT '',
			id_card_url VARCHAR DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_employees_institution ON employees(institution_id)`,
		`CREATE TABLE IF NOT EXISTS certificates (
			owner_id VARCHAR NOT NULL,
			type VARCHAR NOT NULL,
			stored_url VARCHAR NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (owner_id, type)
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}
