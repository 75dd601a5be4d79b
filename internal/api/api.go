// Regsync - HR Registry Synchronization Service
// Copyright 2026 D. Vicanovic (dvicanovic)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dvicanovic/regsync

// Package api exposes the HTTP surface: sync job management, streaming
// document fetches, live websocket progress, health and metrics.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/dvicanovic/regsync/internal/config"
	"github.com/dvicanovic/regsync/internal/documents"
	"github.com/dvicanovic/regsync/internal/jobs"
	"github.com/dvicanovic/regsync/internal/models"
	"github.com/dvicanovic/regsync/internal/objectstore"
	"github.com/dvicanovic/regsync/internal/registry"
	"github.com/dvicanovic/regsync/internal/store"
	ws "github.com/dvicanovic/regsync/internal/websocket"
)

// JobService is the job queue surface the handlers need. *jobs.Service
// satisfies it.
type JobService interface {
	Enqueue(ctx context.Context, job jobs.SyncJob) (string, error)
	GetStatus(ctx context.Context, id string) (*jobs.JobStatus, error)
}

// EmployeeReader is the read-side datastore surface for document runs.
type EmployeeReader interface {
	FindEmployeesByInstitution(ctx context.Context, institutionID string) ([]models.Employee, error)
	FindEmployeesByIDs(ctx context.Context, ids []string) ([]models.Employee, error)
	Ping(ctx context.Context) error
}

var _ EmployeeReader = (*store.DB)(nil)

// Handler carries the dependencies shared by all HTTP handlers.
type Handler struct {
	cfg       *config.Config
	jobs      JobService
	db        EmployeeReader
	docstore  documents.Datastore
	client    registry.ClientInterface
	objects   objectstore.Store
	hub       *ws.Hub
	snapshots documents.Snapshotter
	validate  *validator.Validate
	started   time.Time
}

// NewHandler wires the handler set. hub and snapshots may be nil.
func NewHandler(
	cfg *config.Config,
	jobSvc JobService,
	db EmployeeReader,
	docstore documents.Datastore,
	client registry.ClientInterface,
	objects objectstore.Store,
	hub *ws.Hub,
	snapshots documents.Snapshotter,
) *Handler {
	return &Handler{
		cfg:       cfg,
		jobs:      jobSvc,
		db:        db,
		docstore:  docstore,
		client:    client,
		objects:   objects,
		hub:       hub,
		snapshots: snapshots,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		started:   time.Now(),
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeAndValidate decodes a JSON request body into dst and runs the
// validator over it.
func (h *Handler) decodeAndValidate(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return h.validate.Struct(dst)
}

// validationMessage flattens validator errors into one readable line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fe.Field()+" failed "+fe.Tag())
	}
	return strings.Join(parts, "; ")
}
