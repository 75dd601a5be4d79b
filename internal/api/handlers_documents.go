// Regsync - HR Registry Synchronization Service
// Copyright 2026 D. Vicanovic (dvicanovic)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dvicanovic/regsync

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dvicanovic/regsync/internal/documents"
	"github.com/dvicanovic/regsync/internal/logging"
	"github.com/dvicanovic/regsync/internal/progress"
)

// fetchDocumentsRequest is the body of POST /api/v1/documents/fetch.
type fetchDocumentsRequest struct {
	InstitutionID string `json:"institution_id" validate:"required"`
	Resume        bool   `json:"resume"`
}

// retryDocumentsRequest is the body of POST /api/v1/documents/retry.
type retryDocumentsRequest struct {
	EmployeeIDs []string `json:"employee_ids" validate:"required,min=1,max=500,dive,required"`
}

// FetchDocuments runs the parallel batch pipeline over every persisted
// employee of one institution, streaming per-employee progress as SSE. With
// resume set, processing restarts from the last snapshot offset.
func (h *Handler) FetchDocuments(w http.ResponseWriter, r *http.Request) {
	var req fetchDocumentsRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	employees, err := h.db.FindEmployeesByInstitution(r.Context(), req.InstitutionID)
	if err != nil {
		logging.Error().Err(err).Str("institution_id", req.InstitutionID).Msg("Failed to load employees")
		writeError(w, http.StatusInternalServerError, "failed to load employees")
		return
	}
	if len(employees) == 0 {
		writeError(w, http.StatusNotFound, "no employees found for institution")
		return
	}

	offset := 0
	if req.Resume && h.snapshots != nil {
		snap, err := h.snapshots.Load(r.Context(), req.InstitutionID)
		switch {
		case err == nil:
			offset = snap.Offset
		case !errors.Is(err, documents.ErrNoSnapshot):
			logging.Warn().Err(err).Str("institution_id", req.InstitutionID).Msg("Failed to load snapshot, starting from zero")
		}
	}

	stream, err := progress.NewStreamWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	reporter := progress.Reporter(stream)
	if h.hub != nil {
		reporter = progress.Fanout(stream, h.hub.Reporter("documents:"+req.InstitutionID))
	}

	pipeline := documents.NewPipeline(h.client, h.docstore, h.objects, &h.cfg.Documents, reporter, h.snapshots)
	summary, runErr := pipeline.RunBatch(r.Context(), req.InstitutionID, employees, offset)
	h.completeDocumentStream(stream, summary, runErr)
}

// RetryDocuments re-drives the sequential pipeline over the listed
// employees, streaming progress as SSE.
func (h *Handler) RetryDocuments(w http.ResponseWriter, r *http.Request) {
	var req retryDocumentsRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	employees, err := h.db.FindEmployeesByIDs(r.Context(), req.EmployeeIDs)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to load employees for retry")
		writeError(w, http.StatusInternalServerError, "failed to load employees")
		return
	}
	if len(employees) == 0 {
		writeError(w, http.StatusNotFound, "no matching employees")
		return
	}

	stream, err := progress.NewStreamWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	pipeline := documents.NewPipeline(h.client, h.docstore, h.objects, &h.cfg.Documents, stream, nil)
	summary, runErr := pipeline.RunSequential(r.Context(), employees)
	h.completeDocumentStream(stream, summary, runErr)
}

// completeDocumentStream writes the terminal SSE event. A canceled context
// means the client went away; completed per-entity work stays valid either
// way.
func (h *Handler) completeDocumentStream(stream *progress.StreamWriter, summary *documents.BatchSummary, runErr error) {
	event := progress.Event{Batch: summary}
	switch {
	case runErr == nil:
		event.Message = fmt.Sprintf("%d processed: %d successful, %d partial, %d failed",
			summary.Successful+summary.Partial+summary.Failed,
			summary.Successful, summary.Partial, summary.Failed)
	case errors.Is(runErr, context.Canceled):
		event.Message = "canceled by client"
	default:
		event.Message = runErr.Error()
	}
	stream.Complete(event)
}
