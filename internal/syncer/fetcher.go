// Regsync - HR Registry Synchronization Service
// Copyright 2026 D. Vicanovic (dvicanovic)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dvicanovic/regsync

// Package syncer pulls employee master records from the Source System and
// turns them into canonical records.
//
// The fetcher walks the Source System's page sequence and accumulates raw
// records in memory; the mapper converts each raw record into a canonical
// Employee. Persistence belongs to internal/store and is driven by the job
// worker in internal/jobs.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvicanovic/regsync/internal/logging"
	"github.com/dvicanovic/regsync/internal/metrics"
	"github.com/dvicanovic/regsync/internal/progress"
	"github.com/dvicanovic/regsync/internal/registry"
)

// ErrNoRecords is returned when the full page walk produced zero records.
// The Source System reports empty result sets as ordinary empty pages, so an
// unknown institution and an empty one look identical on the wire.
var ErrNoRecords = errors.New("source returned no records")

const (
	// maxPages bounds the page walk regardless of what overallDataSize claims.
	maxPages = 200

	// maxConsecutiveFailures stops the walk early and marks the result
	// partial. Distinct pages failing back to back usually means the source
	// is degrading, not that individual pages are bad.
	maxConsecutiveFailures = 3

	// samePageRetries is how many extra attempts a failed non-first page gets
	// before the failure is counted and the walk advances past it.
	samePageRetries = 2

	samePageRetryDelay = 2 * time.Second
)

// FetchResult is the outcome of one full page walk.
type FetchResult struct {
	Records     []registry.SourceRecord
	FailedPages int
	Partial     bool
}

// Fetcher walks the Source System's paginated employee query.
type Fetcher struct {
	client   registry.ClientInterface
	reporter progress.Reporter

	// retryDelay is overridable in tests; defaults to samePageRetryDelay.
	retryDelay time.Duration
}

// NewFetcher creates a fetcher reporting progress to the given reporter.
func NewFetcher(client registry.ClientInterface, reporter progress.Reporter) *Fetcher {
	if reporter == nil {
		reporter = progress.Nop()
	}
	return &Fetcher{
		client:     client,
		reporter:   reporter,
		retryDelay: samePageRetryDelay,
	}
}

// FetchAll walks at most maxPages pages from page 0 and accumulates every
// record.
//
// A failure on page 0 is fatal: without the first page there is no
// overallDataSize and no way to tell an empty institution from an outage.
// Later pages get bounded same-page retries; a page that stays broken counts
// one consecutive failure and the walk advances past it. Three consecutive
// failures stop the walk with a partial result.
func (f *Fetcher) FetchAll(ctx context.Context, q registry.PageQuery) (*FetchResult, error) {
	result := &FetchResult{}
	overall := 0
	consecutiveFailures := 0

	for page := 0; page < maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		q.PageNumber = page
		pr, err := f.fetchPageWithRetry(ctx, q)
		if err != nil {
			if page == 0 {
				metrics.SyncPagesFetched.WithLabelValues("failure").Inc()
				return nil, fmt.Errorf("first page failed: %w", err)
			}

			result.FailedPages++
			consecutiveFailures++
			metrics.SyncPagesFetched.WithLabelValues("failure").Inc()
			logging.Warn().
				Err(err).
				Int("page", page).
				Int("consecutive_failures", consecutiveFailures).
				Msg("Page fetch failed, advancing")

			if consecutiveFailures >= maxConsecutiveFailures {
				logging.Error().
					Int("page", page).
					Int("fetched", len(result.Records)).
					Msg("Stopping page walk after repeated failures")
				result.Partial = true
				break
			}
			continue
		}

		consecutiveFailures = 0
		metrics.SyncPagesFetched.WithLabelValues("success").Inc()

		if page == 0 {
			overall = pr.OverallDataSize
		}
		if len(pr.Records) == 0 {
			break
		}

		result.Records = append(result.Records, pr.Records...)

		f.reporter.Report(progress.Event{
			Phase:   progress.PhaseFetching,
			Current: len(result.Records),
			Total:   overall,
			Percent: progress.PercentOf(len(result.Records), overall),
			Message: fmt.Sprintf("fetched page %d", page),
		})

		// A short page or reaching the advertised total ends the walk.
		if len(pr.Records) < q.PageSize {
			break
		}
		if overall > 0 && len(result.Records) >= overall {
			break
		}
	}

	if len(result.Records) == 0 {
		return nil, ErrNoRecords
	}
	return result, nil
}

// fetchPageWithRetry fetches one page, retrying transient failures of
// non-first pages a bounded number of times before giving up on the page.
func (f *Fetcher) fetchPageWithRetry(ctx context.Context, q registry.PageQuery) (*registry.PageResult, error) {
	retries := samePageRetries
	if q.PageNumber == 0 {
		retries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			logging.Warn().
				Err(lastErr).
				Int("page", q.PageNumber).
				Int("attempt", attempt+1).
				Msg("Retrying page")
			select {
			case <-time.After(f.retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		pr, err := f.client.FetchPage(ctx, q)
		if err == nil {
			return pr, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
