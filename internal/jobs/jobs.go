// Regsync - HR Registry Synchronization Service
// Copyright 2026 D. Vicanovic (dvicanovic)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dvicanovic/regsync

// Package jobs runs sync jobs through a durable JetStream queue.
//
// A job is enqueued over the HTTP API, persisted as a JetStream message, and
// picked up by the worker router. Job status lives in Badger so it survives
// restarts and remains queryable after the message itself is gone. Failed
// jobs are retried with exponential backoff and end up on a poison topic
// when retries are exhausted.
package jobs

import (
	"time"

	"github.com/dvicanovic/regsync/internal/models"
)

// Topic names within the sync stream.
const (
	TopicJobs = "sync.jobs"
)

// JobState is the lifecycle state of one sync job.
type JobState string

const (
	StateQueued    JobState = "queued"
	StateActive    JobState = "active"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
)

// SyncJob is the queued unit of work: synchronize one institution's employee
// records from the Source System.
type SyncJob struct {
	ID             string `json:"id"`
	InstitutionID  string `json:"institution_id"`
	IdentifierType string `json:"identifier_type"` // vote-code | tax-id
	Identifier     string `json:"identifier"`
	PageSize       int    `json:"page_size,omitempty"`

	// SourceQueryID overrides the deployment-wide employee query id for this
	// job. Empty means use the configured default.
	SourceQueryID string `json:"source_query_id,omitempty"`
}

// JobStatus is the durable, queryable state of one job.
type JobStatus struct {
	ID           string              `json:"id"`
	State        JobState            `json:"state"`
	Job          SyncJob             `json:"job"`
	AttemptsMade int                 `json:"attempts_made"`
	EnqueuedAt   time.Time           `json:"enqueued_at"`
	StartedAt    *time.Time          `json:"started_at,omitempty"`
	FinishedAt   *time.Time          `json:"finished_at,omitempty"`
	Result       *models.SyncSummary `json:"result,omitempty"`
	FailedReason string              `json:"failed_reason,omitempty"`
}
