// Regsync - HR Registry Synchronization Service
// Copyright 2026 D. Vicanovic (dvicanovic)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dvicanovic/regsync

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dvicanovic/regsync/internal/metrics"
	"github.com/dvicanovic/regsync/internal/models"
)

// UpsertCertificate stores one certificate keyed by (owner_id, type).
// Re-storing the same certificate overwrites the URL in place.
func (db *DB) UpsertCertificate(ctx context.Context, c *models.Certificate) error {
	now := time.Now().UTC()

	start := time.Now()
	_, err := db.conn.ExecContext(ctx, `INSERT INTO certificates (
		owner_id, type, stored_url, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (owner_id, type) DO UPDATE SET
		stored_url = EXCLUDED.stored_url,
		updated_at = EXCLUDED.updated_at`,
		c.OwnerID, c.Type, c.StoredURL, now, now)
	metrics.RecordDBQuery("upsert", "certificates", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("upsert certificate %s/%s: %w", c.OwnerID, c.Type, err)
	}
	return nil
}

// FindCertificate returns one certificate or ErrNotFound.
func (db *DB) FindCertificate(ctx context.Context, ownerID, certType string) (*models.Certificate, error) {
	var c models.Certificate
	err := db.conn.QueryRowContext(ctx,
		`SELECT owner_id, type, stored_url, created_at, updated_at
		 FROM certificates WHERE owner_id = ? AND type = ?`,
		ownerID, certType).
		Scan(&c.OwnerID, &c.Type, &c.StoredURL, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find certificate %s/%s: %w", ownerID, certType, err)
	}
	return &c, nil
}

// ListCertificates returns every certificate stored for one employee.
func (db *DB) ListCertificates(ctx context.Context, ownerID string) ([]models.Certificate, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT owner_id, type, stored_url, created_at, updated_at
		 FROM certificates WHERE owner_id = ? ORDER BY type`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list certificates for %s: %w", ownerID, err)
	}
	defer rows.Close()

	var out []models.Certificate
	for rows.Next() {
		var c models.Certificate
		if err := rows.Scan(&c.OwnerID, &c.Type, &c.StoredURL, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan certificate: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate certificates: %w", err)
	}
	return out, nil
}
