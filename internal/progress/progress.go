// Regsync - HR Registry Synchronization Service
// Copyright 2026 D. Vicanovic (dvicanovic)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dvicanovic/regsync

// Package progress carries live pipeline progress to interested consumers.
//
// Producers (the pagination fetcher, the upsert loop, the document pipeline)
// emit typed Events through a Reporter. Consumers are interchangeable: a
// zerolog reporter for server logs, an SSE stream writer for HTTP clients,
// and a websocket hub adapter for dashboard subscribers. Events are
// transient and never persisted.
package progress

import (
	"github.com/dvicanovic/regsync/internal/models"
)

// Phase identifies which part of the pipeline an event belongs to.
type Phase string

const (
	PhaseFetching  Phase = "fetching"
	PhaseSaving    Phase = "saving"
	PhaseDocuments Phase = "documents"
)

// Event is one progress update. Current/Total/Percent describe overall
// position; Employee and Status are set for per-entity document events;
// Summary is set once on the final completion event.
type Event struct {
	Phase   Phase  `json:"phase"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Percent int    `json:"percent"`
	Message string `json:"message,omitempty"`

	Employee string `json:"employee,omitempty"`
	Status   string `json:"status,omitempty"`

	Summary *models.SyncSummary `json:"summary,omitempty"`

	// Batch carries the document pipeline's aggregate result on its final
	// completion event. Kept loosely typed so consumers stay decoupled from
	// the pipeline package.
	Batch interface{} `json:"batch,omitempty"`
}

// Percent computes a bounded 0-100 percentage.
func PercentOf(current, total int) int {
	if total <= 0 {
		return 0
	}
	p := current * 100 / total
	if p > 100 {
		p = 100
	}
	return p
}

// Reporter consumes progress events. Implementations must be safe for
// concurrent use; Report must never block the pipeline for long.
type Reporter interface {
	Report(e Event)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(e Event)

// Report calls f(e).
func (f ReporterFunc) Report(e Event) { f(e) }

// Nop returns a reporter that discards everything.
func Nop() Reporter {
	return ReporterFunc(func(Event) {})
}

// Fanout returns a reporter that forwards each event to all of the given
// reporters in order.
func Fanout(reporters ...Reporter) Reporter {
	return ReporterFunc(func(e Event) {
		for _, r := range reporters {
			r.Report(e)
		}
	})
}
