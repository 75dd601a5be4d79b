// Regsync - HR Registry Synchronization Service
// Copyright 2026 D. Vicanovic (dvicanovic)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dvicanovic/regsync

package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/dvicanovic/regsync/internal/logging"
	"github.com/dvicanovic/regsync/internal/metrics"
	"github.com/dvicanovic/regsync/internal/models"
	"github.com/dvicanovic/regsync/internal/progress"
	"github.com/dvicanovic/regsync/internal/registry"
	"github.com/dvicanovic/regsync/internal/store"
	"github.com/dvicanovic/regsync/internal/syncer"
)

// EmployeeWriter is the slice of the store the runner needs.
type EmployeeWriter interface {
	UpsertEmployee(ctx context.Context, e *models.Employee) (store.UpsertResult, error)
}

// ReporterFactory builds the progress reporter for one job run.
type ReporterFactory func(jobID string) progress.Reporter

// Runner executes the body of one sync job: fetch all pages, map each raw
// record, upsert the canonical records.
type Runner struct {
	client      registry.ClientInterface
	writer      EmployeeWriter
	employeeQID string
	pageSize    int
	newReporter ReporterFactory
}

// NewRunner creates a job runner.
func NewRunner(client registry.ClientInterface, writer EmployeeWriter, employeeQueryID string, pageSize int, newReporter ReporterFactory) *Runner {
	if newReporter == nil {
		newReporter = func(jobID string) progress.Reporter { return progress.NewLogReporter(jobID) }
	}
	return &Runner{
		client:      client,
		writer:      writer,
		employeeQID: employeeQueryID,
		pageSize:    pageSize,
		newReporter: newReporter,
	}
}

// Run executes one job and returns its summary. Errors mean the job should
// be retried; a partial page walk is not an error, it is reported in the
// summary.
func (r *Runner) Run(ctx context.Context, job SyncJob) (*models.SyncSummary, error) {
	start := time.Now()
	reporter := r.newReporter(job.ID)

	pageSize := job.PageSize
	if pageSize <= 0 {
		pageSize = r.pageSize
	}
	queryID := job.SourceQueryID
	if queryID == "" {
		queryID = r.employeeQID
	}

	fetcher := syncer.NewFetcher(r.client, reporter)
	fetched, err := fetcher.FetchAll(ctx, registry.PageQuery{
		QueryID:        queryID,
		IdentifierType: job.IdentifierType,
		Identifier:     job.Identifier,
		PageSize:       pageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch institution %s: %w", job.InstitutionID, err)
	}

	summary := &models.SyncSummary{
		TotalFetched: len(fetched.Records),
		FailedPages:  fetched.FailedPages,
		Partial:      fetched.Partial,
	}

	for i, src := range fetched.Records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		e := syncer.MapEmployee(src, job.InstitutionID)
		if e == nil {
			summary.Skipped++
			metrics.SyncRecordsProcessed.WithLabelValues("skipped").Inc()
			logging.Warn().
				Str("job_id", job.ID).
				Int("record", i).
				Msg("Record without natural identifier skipped")
			continue
		}

		res, err := r.writer.UpsertEmployee(ctx, e)
		if err != nil {
			return nil, fmt.Errorf("upsert employee %s: %w", e.NaturalID, err)
		}
		if res.Created {
			summary.Created++
			metrics.SyncRecordsProcessed.WithLabelValues("created").Inc()
		} else {
			summary.Updated++
			metrics.SyncRecordsProcessed.WithLabelValues("updated").Inc()
		}

		reporter.Report(progress.Event{
			Phase:   progress.PhaseSaving,
			Current: i + 1,
			Total:   len(fetched.Records),
			Percent: progress.PercentOf(i+1, len(fetched.Records)),
		})
	}

	summary.DurationMs = time.Since(start).Milliseconds()
	if summary.Partial {
		summary.Message = fmt.Sprintf("completed with %d failed pages", summary.FailedPages)
	}

	reporter.Report(progress.Event{
		Phase:   progress.PhaseSaving,
		Current: len(fetched.Records),
		Total:   len(fetched.Records),
		Percent: 100,
		Summary: summary,
	})

	return summary, nil
}
