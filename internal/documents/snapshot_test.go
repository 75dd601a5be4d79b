// Regsync - HR Registry Synchronization Service
// Copyright 2026 D. Vicanovic (dvicanovic)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dvicanovic/regsync

package documents

import (
	"context"
	"errors"
	"testing"

	"github.com/dgraph-io/badger/v4"
)

func TestFileSnapshots(t *testing.T) {
	ctx := context.Background()
	snaps, err := NewFileSnapshots(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSnapshots: %v", err)
	}

	t.Run("load without snapshot", func(t *testing.T) {
		_, err := snaps.Load(ctx, "inst-1")
		if !errors.Is(err, ErrNoSnapshot) {
			t.Errorf("err = %v, want ErrNoSnapshot", err)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		in := &Snapshot{
			InstitutionID: "inst-1",
			Offset:        12,
			Summary:       BatchSummary{Total: 20, Successful: 10, Partial: 2},
		}
		if err := snaps.Save(ctx, in); err != nil {
			t.Fatalf("Save: %v", err)
		}

		got, err := snaps.Load(ctx, "inst-1")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if got.Offset != 12 || got.Summary.Successful != 10 {
			t.Errorf("snapshot = %+v", got)
		}
	})

	t.Run("institution ids are isolated", func(t *testing.T) {
		other := &Snapshot{InstitutionID: "inst/2 with spaces", Offset: 3}
		if err := snaps.Save(ctx, other); err != nil {
			t.Fatalf("Save: %v", err)
		}
		got, err := snaps.Load(ctx, "inst/2 with spaces")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if got.Offset != 3 {
			t.Errorf("Offset = %d, want 3", got.Offset)
		}
		first, err := snaps.Load(ctx, "inst-1")
		if err != nil || first.Offset != 12 {
			t.Errorf("inst-1 snapshot = %+v err = %v", first, err)
		}
	})
}

func TestBadgerSnapshots(t *testing.T) {
	ctx := context.Background()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	snaps := NewBadgerSnapshots(db)

	if _, err := snaps.Load(ctx, "inst-1"); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("err = %v, want ErrNoSnapshot", err)
	}

	in := &Snapshot{InstitutionID: "inst-1", Offset: 8, Summary: BatchSummary{Total: 10}}
	if err := snaps.Save(ctx, in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := snaps.Load(ctx, "inst-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Offset != 8 || got.Summary.Total != 10 {
		t.Errorf("snapshot = %+v", got)
	}
}

func TestMultiSnapshots(t *testing.T) {
	ctx := context.Background()
	primary, err := NewFileSnapshots(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSnapshots: %v", err)
	}
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	secondary := NewBadgerSnapshots(db)

	multi := NewMultiSnapshots(primary, secondary)

	in := &Snapshot{InstitutionID: "inst-1", Offset: 4}
	if err := multi.Save(ctx, in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Both backends carry the snapshot after one save.
	if got, err := primary.Load(ctx, "inst-1"); err != nil || got.Offset != 4 {
		t.Errorf("primary snapshot = %+v err = %v", got, err)
	}
	if got, err := secondary.Load(ctx, "inst-1"); err != nil || got.Offset != 4 {
		t.Errorf("secondary snapshot = %+v err = %v", got, err)
	}

	// Load falls through to the first backend that has one.
	fresh := NewMultiSnapshots(mustFileSnapshots(t), secondary)
	if got, err := fresh.Load(ctx, "inst-1"); err != nil || got.Offset != 4 {
		t.Errorf("fallthrough snapshot = %+v err = %v", got, err)
	}
	if _, err := multi.Load(ctx, "missing"); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("err = %v, want ErrNoSnapshot", err)
	}
}

func mustFileSnapshots(t *testing.T) *FileSnapshots {
	t.Helper()
	s, err := NewFileSnapshots(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSnapshots: %v", err)
	}
	return s
}
