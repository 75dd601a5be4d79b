// Regsync - HR Registry Synchronization Service
// Copyright 2026 D. Vicanovic (dvicanovic)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dvicanovic/regsync

package progress

import (
	"github.com/dvicanovic/regsync/internal/logging"
)

// LogReporter writes progress events to the structured log. Per-entity events
// log at debug level so a large institution does not flood the log; phase
// milestones and completion log at info.
type LogReporter struct {
	JobID string
}

// NewLogReporter creates a log reporter tagged with the given job id.
func NewLogReporter(jobID string) *LogReporter {
	return &LogReporter{JobID: jobID}
}

// Report logs one event.
func (r *LogReporter) Report(e Event) {
	if e.Summary != nil {
		logging.Info().
			Str("job_id", r.JobID).
			Str("phase", string(e.Phase)).
			Int("fetched", e.Summary.TotalFetched).
			Int("created", e.Summary.Created).
			Int("updated", e.Summary.Updated).
			Int("skipped", e.Summary.Skipped).
			Bool("partial", e.Summary.Partial).
			Msg("Job completed")
		return
	}

	if e.Employee != "" {
		logging.Debug().
			Str("job_id", r.JobID).
			Str("phase", string(e.Phase)).
			Str("employee", e.Employee).
			Str("status", e.Status).
			Int("current", e.Current).
			Int("total", e.Total).
			Msg("Progress")
		return
	}

	logging.Info().
		Str("job_id", r.JobID).
		Str("phase", string(e.Phase)).
		Int("current", e.Current).
		Int("total", e.Total).
		Int("percent", e.Percent).
		Str("message", e.Message).
		Msg("Progress")
}
