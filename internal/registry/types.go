// Regsync - HR Registry Synchronization Service
// Copyright 2026 D. Vicanovic (dvicanovic)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dvicanovic/regsync

package registry

import "github.com/goccy/go-json"

// Envelope is the request body accepted by the Source System's single POST
// endpoint. Every operation, page queries and document retrieval alike, goes
// through this one shape with a different QueryID.
type Envelope struct {
	QueryID string  `json:"queryId"`
	Payload Payload `json:"payload"`
}

// Payload carries the paging window and the operation-specific body.
type Payload struct {
	PageNumber int            `json:"pageNumber"`
	PageSize   int            `json:"pageSize"`
	Body       map[string]any `json:"body,omitempty"`
}

// ResponseEnvelope is the wire wrapper around every Source System response.
// A Code other than 200, or Status "FAILURE", signals an application-level
// error even when the HTTP status is 200.
type ResponseEnvelope struct {
	Code            int             `json:"code"`
	Status          string          `json:"status,omitempty"`
	Message         string          `json:"message,omitempty"`
	OverallDataSize int             `json:"overallDataSize"`
	CurrentDataSize int             `json:"currentDataSize"`
	Data            json.RawMessage `json:"data"`
}

// PageQuery identifies one page of an employee master-record query.
type PageQuery struct {
	QueryID        string
	IdentifierType string // vote-code | tax-id
	Identifier     string
	PageNumber     int
	PageSize       int
}

// PageResult is one successfully fetched page.
type PageResult struct {
	Records         []SourceRecord
	OverallDataSize int
	CurrentDataSize int
}

// SourceRecord is the raw wire-format employee record returned by one page.
// It is ephemeral: consumed immediately by the record mapper and never
// persisted or passed beyond internal/syncer.
type SourceRecord struct {
	NaturalID  string `json:"nationalId"`
	FirstName  string `json:"firstName"`
	MiddleName string `json:"middleName"`
	LastName   string `json:"lastName"`
	Gender     string `json:"gender"`
	BirthDate  string `json:"birthDate"`
	Confirmed  bool   `json:"isConfirmed"`

	Municipality string `json:"municipality"`
	Settlement   string `json:"settlement"`
	Street       string `json:"street"`
	HouseNumber  string `json:"houseNumber"`

	Employments []EmploymentEntry `json:"employments"`
	Salaries    []SalaryEntry     `json:"salaries"`
	Educations  []EducationEntry  `json:"educations"`
}

// EmploymentEntry is one row of the historical employments array.
type EmploymentEntry struct {
	IsCurrent bool   `json:"isCurrent"`
	Position  string `json:"position"`
	StartDate string `json:"startDate"`
	Status    string `json:"employmentStatus"`
}

// SalaryEntry is one row of the historical salaries array.
type SalaryEntry struct {
	IsCurrent bool    `json:"isCurrent"`
	Grade     string  `json:"grade"`
	Amount    float64 `json:"amount"`
}

// EducationEntry is one row of the historical educations array.
type EducationEntry struct {
	IsCurrent bool   `json:"isCurrent"`
	Level     string `json:"level"`
	School    string `json:"school"`
}

// DocumentPayload is one binary document returned by a document-type query.
// Content is base64-encoded on the wire; the document pipeline decodes it.
type DocumentPayload struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// Attachment is one entry of an employee's full attachment listing. The
// DeclaredType is free text; the document pipeline selects certificate-like
// entries from it.
type Attachment struct {
	DeclaredType string `json:"attachmentType"`
	FileName     string `json:"fileName"`
	ContentType  string `json:"contentType"`
	Content      string `json:"content"`
}
