// Regsync - HR Registry Synchronization Service
// Copyright 2026 D. Vicanovic (dvicanovic)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dvicanovic/regsync

package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/dvicanovic/regsync/internal/models"
)

func openTestBadger(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestBadgerStatusStore(t *testing.T) {
	ctx := context.Background()
	store := NewBadgerStatusStore(openTestBadger(t), 7*24*time.Hour)

	t.Run("unknown id", func(t *testing.T) {
		_, err := store.Get(ctx, "missing")
		if !errors.Is(err, ErrJobNotFound) {
			t.Errorf("err = %v, want ErrJobNotFound", err)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		enqueued := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
		status := &JobStatus{
			ID:           "job-1",
			State:        StateCompleted,
			Job:          SyncJob{ID: "job-1", InstitutionID: "inst-1", IdentifierType: "tax-id", Identifier: "998877"},
			AttemptsMade: 1,
			EnqueuedAt:   enqueued,
			Result:       &models.SyncSummary{Created: 12, Updated: 3},
		}
		if err := store.Put(ctx, status); err != nil {
			t.Fatalf("Put: %v", err)
		}

		got, err := store.Get(ctx, "job-1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.State != StateCompleted || got.AttemptsMade != 1 {
			t.Errorf("status = %+v", got)
		}
		if !got.EnqueuedAt.Equal(enqueued) {
			t.Errorf("EnqueuedAt = %v, want %v", got.EnqueuedAt, enqueued)
		}
		if got.Result == nil || got.Result.Created != 12 || got.Result.Updated != 3 {
			t.Errorf("result = %+v", got.Result)
		}
		if got.Job.InstitutionID != "inst-1" {
			t.Errorf("job = %+v", got.Job)
		}
	})

	t.Run("replace on second put", func(t *testing.T) {
		status := &JobStatus{ID: "job-2", State: StateQueued, EnqueuedAt: time.Now().UTC()}
		if err := store.Put(ctx, status); err != nil {
			t.Fatalf("Put: %v", err)
		}
		status.State = StateFailed
		status.FailedReason = "source unreachable"
		if err := store.Put(ctx, status); err != nil {
			t.Fatalf("second Put: %v", err)
		}

		got, err := store.Get(ctx, "job-2")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.State != StateFailed || got.FailedReason != "source unreachable" {
			t.Errorf("status = %+v", got)
		}
	})
}
