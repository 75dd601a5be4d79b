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

	"github.com/google/uuid"

	"github.com/dvicanovic/regsync/internal/metrics"
	"github.com/dvicanovic/regsync/internal/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// employeeNamespace seeds deterministic employee ids. The same natural
// identifier always yields the same uuid, so concurrent first-time upserts
// of one person cannot race into two ids.
var employeeNamespace = uuid.MustParse("7f1d1f3a-5a1e-4d28-9a67-3f5a2c6b9e01")

// EmployeeID derives the deterministic uuid for a natural identifier.
func EmployeeID(naturalID string) string {
	return uuid.NewSHA1(employeeNamespace, []byte("employee:"+naturalID)).String()
}

// UpsertResult reports what an upsert did.
type UpsertResult struct {
	ID      string
	Created bool
}

const employeeColumns = `id, natural_id, institution_id, display_name, gender, status,
	address, birth_date, position, employment_start, salary_grade, salary_amount,
	education_level, education_school, contract_url, birth_record_url,
	confirmation_letter_url, diploma_url, id_card_url, created_at, updated_at`

// UpsertEmployee creates or updates one employee keyed by natural identifier.
//
// Updates never touch the stored id, created_at, or the document URL columns;
// those belong to the document pipeline. Safe under arbitrary repetition.
func (db *DB) UpsertEmployee(ctx context.Context, e *models.Employee) (UpsertResult, error) {
	start := time.Now()
	res, err := db.upsertEmployee(ctx, e)
	metrics.RecordDBQuery("upsert", "employees", time.Since(start), err)
	return res, err
}

func (db *DB) upsertEmployee(ctx context.Context, e *models.Employee) (UpsertResult, error) {
	if e.NaturalID == "" {
		return UpsertResult{}, fmt.Errorf("employee has no natural identifier")
	}

	now := time.Now().UTC()

	var existingID string
	err := db.conn.QueryRowContext(ctx,
		`SELECT id FROM employees WHERE natural_id = ?`, e.NaturalID).Scan(&existingID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		id := EmployeeID(e.NaturalID)
		_, err := db.conn.ExecContext(ctx, `INSERT INTO employees (
			id, natural_id, institution_id, display_name, gender, status,
			address, birth_date, position, employment_start, salary_grade,
			salary_amount, education_level, education_school, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, e.NaturalID, e.Institution, e.DisplayName, e.Gender, e.Status,
			e.Address, e.BirthDate, e.Position, e.EmploymentStart, e.SalaryGrade,
			e.SalaryAmount, e.EducationLevel, e.EducationSchool, now, now)
		if err != nil {
			return UpsertResult{}, fmt.Errorf("insert employee %s: %w", e.NaturalID, err)
		}
		return UpsertResult{ID: id, Created: true}, nil

	case err != nil:
		return UpsertResult{}, fmt.Errorf("lookup employee %s: %w", e.NaturalID, err)
	}

	_, err = db.conn.ExecContext(ctx, `UPDATE employees SET
		institution_id = ?, display_name = ?, gender = ?, status = ?,
		address = ?, birth_date = ?, position = ?, employment_start = ?,
		salary_grade = ?, salary_amount = ?, education_level = ?,
		education_school = ?, updated_at = ?
	WHERE natural_id = ?`,
		e.Institution, e.DisplayName, e.Gender, e.Status,
		e.Address, e.BirthDate, e.Position, e.EmploymentStart,
		e.SalaryGrade, e.SalaryAmount, e.EducationLevel,
		e.EducationSchool, now, e.NaturalID)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("update employee %s: %w", e.NaturalID, err)
	}
	return UpsertResult{ID: existingID, Created: false}, nil
}

// GetEmployeeByNaturalID returns one employee or ErrNotFound.
func (db *DB) GetEmployeeByNaturalID(ctx context.Context, naturalID string) (*models.Employee, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+employeeColumns+` FROM employees WHERE natural_id = ?`, naturalID)
	return scanEmployee(row)
}

// GetEmployee returns one employee by stored id or ErrNotFound.
func (db *DB) GetEmployee(ctx context.Context, id string) (*models.Employee, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+employeeColumns+` FROM employees WHERE id = ?`, id)
	return scanEmployee(row)
}

// FindEmployeesByInstitution returns every employee of one institution,
// ordered by display name for stable batching.
func (db *DB) FindEmployeesByInstitution(ctx context.Context, institutionID string) ([]models.Employee, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+employeeColumns+` FROM employees
		 WHERE institution_id = ? ORDER BY display_name, natural_id`, institutionID)
	metrics.RecordDBQuery("select", "employees", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("query employees for institution %s: %w", institutionID, err)
	}
	defer rows.Close()
	return collectEmployees(rows)
}

// FindEmployeesByIDs returns the employees with the given stored ids.
// Missing ids are silently absent from the result.
func (db *DB) FindEmployeesByIDs(ctx context.Context, ids []string) ([]models.Employee, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := ""
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args[i] = id
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+employeeColumns+` FROM employees
		 WHERE id IN (`+placeholders+`) ORDER BY display_name, natural_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query employees by ids: %w", err)
	}
	defer rows.Close()
	return collectEmployees(rows)
}

// SetDocumentURL records the stored object URL for one document slot.
func (db *DB) SetDocumentURL(ctx context.Context, employeeID string, t models.DocumentType, url string) error {
	column, err := documentColumn(t)
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := db.conn.ExecContext(ctx,
		`UPDATE employees SET `+column+` = ?, updated_at = ? WHERE id = ?`,
		url, time.Now().UTC(), employeeID)
	metrics.RecordDBQuery("update", "employees", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("set %s for employee %s: %w", column, employeeID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("set %s: employee %s: %w", column, employeeID, ErrNotFound)
	}
	return nil
}

// documentColumn maps a document type to its employees column. The column
// name is interpolated into SQL, so only known types are accepted.
func documentColumn(t models.DocumentType) (string, error) {
	switch t {
	case models.DocContract:
		return "contract_url", nil
	case models.DocBirthRecord:
		return "birth_record_url", nil
	case models.DocConfirmationLetter:
		return "confirmation_letter_url", nil
	case models.DocDiploma:
		return "diploma_url", nil
	case models.DocIDCard:
		return "id_card_url", nil
	}
	return "", fmt.Errorf("unknown document type %q", t)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEmployee(row rowScanner) (*models.Employee, error) {
	var e models.Employee
	err := row.Scan(
		&e.ID, &e.NaturalID, &e.Institution, &e.DisplayName, &e.Gender, &e.Status,
		&e.Address, &e.BirthDate, &e.Position, &e.EmploymentStart, &e.SalaryGrade,
		&e.SalaryAmount, &e.EducationLevel, &e.EducationSchool, &e.ContractURL,
		&e.BirthRecordURL, &e.ConfirmationLetterURL, &e.DiplomaURL, &e.IDCardURL,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan employee: %w", err)
	}
	return &e, nil
}

func collectEmployees(rows *sql.Rows) ([]models.Employee, error) {
	var out []models.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate employees: %w", err)
	}
	return out, nil
}
