// Regsync - HR Registry Synchronization Service
// Copyright 2026 D. Vicanovic (dvicanovic)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dvicanovic/regsync

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dvicanovic/regsync/internal/jobs"
	"github.com/dvicanovic/regsync/internal/logging"
)

// createSyncJobRequest is the body of POST /api/v1/sync/jobs.
type createSyncJobRequest struct {
	InstitutionID  string `json:"institution_id" validate:"required"`
	IdentifierType string `json:"identifier_type" validate:"required,oneof=vote-code tax-id"`
	Identifier     string `json:"identifier" validate:"required"`
	PageSize       int    `json:"page_size" validate:"omitempty,gte=1,lte=100"`
	SourceQueryID  string `json:"source_query_id" validate:"omitempty,max=128"`
}

type createSyncJobResponse struct {
	JobID string `json:"job_id"`
	State string `json:"state"`
}

// CreateSyncJob enqueues a new registry sync job.
func (h *Handler) CreateSyncJob(w http.ResponseWriter, r *http.Request) {
	var req createSyncJobRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	pageSize := req.PageSize
	if pageSize == 0 {
		pageSize = h.cfg.Registry.PageSize
	}

	id, err := h.jobs.Enqueue(r.Context(), jobs.SyncJob{
		InstitutionID:  req.InstitutionID,
		IdentifierType: req.IdentifierType,
		Identifier:     req.Identifier,
		PageSize:       pageSize,
		SourceQueryID:  req.SourceQueryID,
	})
	if err != nil {
		logging.Error().Err(err).Str("institution_id", req.InstitutionID).Msg("Failed to enqueue sync job")
		writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}

	if h.hub != nil {
		h.hub.BroadcastJobEnqueued(id, req.InstitutionID)
	}
	writeJSON(w, http.StatusAccepted, createSyncJobResponse{JobID: id, State: string(jobs.StateQueued)})
}

// GetSyncJob returns the durable status of one job.
func (h *Handler) GetSyncJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing job id")
		return
	}

	status, err := h.jobs.GetStatus(r.Context(), id)
	if errors.Is(err, jobs.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		logging.Error().Err(err).Str("job_id", id).Msg("Failed to load job status")
		writeError(w, http.StatusInternalServerError, "failed to load job status")
		return
	}

	writeJSON(w, http.StatusOK, status)
}
