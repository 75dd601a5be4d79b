// Regsync - HR Registry Synchronization Service
// Copyright 2026 D. Vicanovic (dvicanovic)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dvicanovic/regsync

package documents

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// ErrNoSnapshot is returned when no snapshot exists for an institution.
var ErrNoSnapshot = errors.New("no snapshot for institution")

// Snapshot marks how far a batch run got, so an interrupted run can resume
// from the last recorded offset instead of refetching everything.
type Snapshot struct {
	InstitutionID string       `json:"institution_id"`
	Offset        int          `json:"offset"`
	Summary       BatchSummary `json:"summary"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Snapshotter persists batch progress snapshots.
type Snapshotter interface {
	Save(ctx context.Context, s *Snapshot) error
	Load(ctx context.Context, institutionID string) (*Snapshot, error)
}

// FileSnapshots stores one JSON snapshot file per institution under a
// local directory. This is the copy cmd/fetchdocs resumes from.
type FileSnapshots struct {
	dir string
}

// NewFileSnapshots creates the snapshot directory if needed.
func NewFileSnapshots(dir string) (*FileSnapshots, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	return &FileSnapshots{dir: dir}, nil
}

func (f *FileSnapshots) path(institutionID string) string {
	return filepath.Join(f.dir, snapshotFileName(institutionID))
}

// Save writes the snapshot atomically via a temp file rename.
func (f *FileSnapshots) Save(_ context.Context, s *Snapshot) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(f.dir, ".snap-*")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close snapshot temp file: %w", err)
	}
	if err := os.Rename(tmpName, f.path(s.InstitutionID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot for one institution, ErrNoSnapshot when absent.
func (f *FileSnapshots) Load(_ context.Context, institutionID string) (*Snapshot, error) {
	data, err := os.ReadFile(f.path(institutionID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &s, nil
}

func snapshotFileName(institutionID string) string {
	var b strings.Builder
	for _, r := range institutionID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String() + ".json"
}

const snapshotKeyPrefix = "docsnap:"

// BadgerSnapshots mirrors snapshots into the embedded badger store so the
// server can report resume positions without touching the filesystem.
type BadgerSnapshots struct {
	db *badger.DB
}

// NewBadgerSnapshots wraps an open badger database.
func NewBadgerSnapshots(db *badger.DB) *BadgerSnapshots {
	return &BadgerSnapshots{db: db}
}

func (b *BadgerSnapshots) Save(_ context.Context, s *Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(snapshotKeyPrefix+s.InstitutionID), data)
	})
	if err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}

func (b *BadgerSnapshots) Load(_ context.Context, institutionID string) (*Snapshot, error) {
	var s Snapshot
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(snapshotKeyPrefix + institutionID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &s)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return &s, nil
}

// MultiSnapshots saves to every target and loads from the first that has a
// snapshot.
type MultiSnapshots struct {
	targets []Snapshotter
}

// NewMultiSnapshots combines snapshotters; nil entries are skipped.
func NewMultiSnapshots(targets ...Snapshotter) *MultiSnapshots {
	kept := make([]Snapshotter, 0, len(targets))
	for _, t := range targets {
		if t != nil {
			kept = append(kept, t)
		}
	}
	return &MultiSnapshots{targets: kept}
}

func (m *MultiSnapshots) Save(ctx context.Context, s *Snapshot) error {
	var firstErr error
	for _, t := range m.targets {
		if err := t.Save(ctx, s); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MultiSnapshots) Load(ctx context.Context, institutionID string) (*Snapshot, error) {
	for _, t := range m.targets {
		s, err := t.Load(ctx, institutionID)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, ErrNoSnapshot) {
			return nil, err
		}
	}
	return nil, ErrNoSnapshot
}
