// Regsync - HR Registry Synchronization Service
// Copyright 2026 D. Vicanovic (dvicanovic)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dvicanovic/regsync

package syncer

import (
	"strings"

	"github.com/dvicanovic/regsync/internal/models"
	"github.com/dvicanovic/regsync/internal/registry"
)

// MapEmployee converts one raw Source System record into a canonical
// Employee. Returns nil when the record carries no natural identifier; such
// records cannot be upserted idempotently and are counted as skipped by the
// caller. Pure function, no I/O.
func MapEmployee(src registry.SourceRecord, institutionID string) *models.Employee {
	naturalID := strings.TrimSpace(src.NaturalID)
	if naturalID == "" {
		return nil
	}

	e := &models.Employee{
		NaturalID:   naturalID,
		Institution: institutionID,
		DisplayName: joinNonEmpty(" ", src.FirstName, src.MiddleName, src.LastName),
		Gender:      normalizeGender(src.Gender),
		Status:      deriveStatus(src),
		Address:     joinNonEmpty(", ", src.Municipality, src.Settlement, src.Street, src.HouseNumber),
		BirthDate:   strings.TrimSpace(src.BirthDate),
	}

	if emp := currentEmployment(src.Employments); emp != nil {
		e.Position = strings.TrimSpace(emp.Position)
		e.EmploymentStart = strings.TrimSpace(emp.StartDate)
	}
	if sal := currentSalary(src.Salaries); sal != nil {
		e.SalaryGrade = strings.TrimSpace(sal.Grade)
		e.SalaryAmount = sal.Amount
	}
	if edu := currentEducation(src.Educations); edu != nil {
		e.EducationLevel = strings.TrimSpace(edu.Level)
		e.EducationSchool = strings.TrimSpace(edu.School)
	}

	return e
}

// currentEmployment picks the entry flagged current, falling back to the
// first entry. The source keeps full history with at most one current row.
func currentEmployment(entries []registry.EmploymentEntry) *registry.EmploymentEntry {
	for i := range entries {
		if entries[i].IsCurrent {
			return &entries[i]
		}
	}
	if len(entries) > 0 {
		return &entries[0]
	}
	return nil
}

func currentSalary(entries []registry.SalaryEntry) *registry.SalaryEntry {
	for i := range entries {
		if entries[i].IsCurrent {
			return &entries[i]
		}
	}
	if len(entries) > 0 {
		return &entries[0]
	}
	return nil
}

func currentEducation(entries []registry.EducationEntry) *registry.EducationEntry {
	for i := range entries {
		if entries[i].IsCurrent {
			return &entries[i]
		}
	}
	if len(entries) > 0 {
		return &entries[0]
	}
	return nil
}

// normalizeGender maps the source's localized gender codes to canonical
// values. Unrecognized values pass through unchanged.
func normalizeGender(g string) string {
	switch strings.ToLower(strings.TrimSpace(g)) {
	case "m", "muski", "muški":
		return "Male"
	case "z", "ž", "zenski", "ženski":
		return "Female"
	}
	return strings.TrimSpace(g)
}

// deriveStatus computes the canonical employment status. The confirmation
// flag wins outright; otherwise the current employment's status text is
// matched for terminal and leave keywords; anything else is treated as a
// probationary appointment.
func deriveStatus(src registry.SourceRecord) string {
	if src.Confirmed {
		return "confirmed"
	}

	var raw string
	if emp := currentEmployment(src.Employments); emp != nil {
		raw = strings.ToLower(emp.Status)
	}

	switch {
	case strings.Contains(raw, "retir"):
		return "retired"
	case strings.Contains(raw, "resign"):
		return "resigned"
	case strings.Contains(raw, "terminat"), strings.Contains(raw, "dismiss"):
		return "terminated"
	case strings.Contains(raw, "leave"):
		return "on-leave"
	}
	return "on probation"
}

// joinNonEmpty joins the non-empty trimmed parts with the separator.
func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
