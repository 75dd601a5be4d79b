// Regsync - HR Registry Synchronization Service
// Copyright 2026 D. Vicanovic (dvicanovic)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dvicanovic/regsync

// Package models defines the canonical domain records shared across Regsync.
//
// Everything in this package is strongly typed. The loosely typed wire shapes
// returned by the Source System live in internal/registry and never escape
// past the record mapper in internal/syncer.
package models

import "time"

// Employee is the canonical employee record persisted by the sync pipeline.
//
// NaturalID is the externally issued unique identifier (national-ID analogue)
// and is the idempotency key for every upsert: a record without it is never
// created, and a re-sync never changes the stored ID of an existing record.
type Employee struct {
	ID          string `json:"id"`
	NaturalID   string `json:"natural_id"`
	Institution string `json:"institution_id"`

	DisplayName string `json:"display_name"`
	Gender      string `json:"gender"`
	Status      string `json:"status"`
	Address     string `json:"address"`
	BirthDate   string `json:"birth_date,omitempty"`

	// Current employment, resolved from the Source System's historical arrays.
	Position        string  `json:"position,omitempty"`
	EmploymentStart string  `json:"employment_start,omitempty"`
	SalaryGrade     string  `json:"salary_grade,omitempty"`
	SalaryAmount    float64 `json:"salary_amount,omitempty"`
	EducationLevel  string  `json:"education_level,omitempty"`
	EducationSchool string  `json:"education_school,omitempty"`

	// Stored object-store URLs for the core document slots. Empty until the
	// document pipeline has fetched and stored the corresponding binary.
	ContractURL           string `json:"contract_url,omitempty"`
	BirthRecordURL        string `json:"birth_record_url,omitempty"`
	ConfirmationLetterURL string `json:"confirmation_letter_url,omitempty"`
	DiplomaURL            string `json:"diploma_url,omitempty"`
	IDCardURL             string `json:"id_card_url,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DocumentType identifies one of the fixed core document slots per employee.
type DocumentType string

const (
	DocContract           DocumentType = "contract"
	DocBirthRecord        DocumentType = "birth_record"
	DocConfirmationLetter DocumentType = "confirmation_letter"
	DocDiploma            DocumentType = "diploma"
	DocIDCard             DocumentType = "id_card"
)

// CoreDocumentTypes returns the fixed set of document slots fetched for every
// employee, in fetch order.
func CoreDocumentTypes() []DocumentType {
	return []DocumentType{
		DocContract,
		DocBirthRecord,
		DocConfirmationLetter,
		DocDiploma,
		DocIDCard,
	}
}

// DocumentURL returns the stored URL for the given document slot.
func (e *Employee) DocumentURL(t DocumentType) string {
	switch t {
	case DocContract:
		return e.ContractURL
	case DocBirthRecord:
		return e.BirthRecordURL
	case DocConfirmationLetter:
		return e.ConfirmationLetterURL
	case DocDiploma:
		return e.DiplomaURL
	case DocIDCard:
		return e.IDCardURL
	}
	return ""
}

// SetDocumentURL updates the stored URL for the given document slot.
func (e *Employee) SetDocumentURL(t DocumentType, url string) {
	switch t {
	case DocContract:
		e.ContractURL = url
	case DocBirthRecord:
		e.BirthRecordURL = url
	case DocConfirmationLetter:
		e.ConfirmationLetterURL = url
	case DocDiploma:
		e.DiplomaURL = url
	case DocIDCard:
		e.IDCardURL = url
	}
}

// Certificate is a qualification attachment stored for an employee.
//
// Unlike document slots the type is open-ended free text; uniqueness is
// (OwnerID, Type). Duplicate type names encountered within one processing
// batch are disambiguated with a numeric suffix before persistence.
type Certificate struct {
	OwnerID   string    `json:"owner_id"`
	Type      string    `json:"type"`
	StoredURL string    `json:"stored_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SyncSummary is the terminal result of one sync job.
type SyncSummary struct {
	TotalFetched int    `json:"total_fetched"`
	Created      int    `json:"created"`
	Updated      int    `json:"updated"`
	Skipped      int    `json:"skipped"`
	FailedPages  int    `json:"failed_pages"`
	Partial      bool   `json:"partial"`
	DurationMs   int64  `json:"duration_ms"`
	Message      string `json:"message,omitempty"`
}
