// Regsync - HR Registry Synchronization Service
// Copyright 2026 D. Vicanovic (dvicanovic)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dvicanovic/regsync

package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// ErrJobNotFound is returned for unknown or expired job ids.
var ErrJobNotFound = errors.New("job not found")

const jobKeyPrefix = "job:"

// StatusStore persists job status records.
type StatusStore interface {
	Put(ctx context.Context, status *JobStatus) error
	Get(ctx context.Context, id string) (*JobStatus, error)
}

// BadgerStatusStore keeps job status in BadgerDB with a retention TTL, so
// finished jobs stay queryable for a while and then age out on their own.
type BadgerStatusStore struct {
	db        *badger.DB
	retention time.Duration
}

// NewBadgerStatusStore creates a status store over an open Badger instance.
func NewBadgerStatusStore(db *badger.DB, retention time.Duration) *BadgerStatusStore {
	return &BadgerStatusStore{db: db, retention: retention}
}

// Put stores or replaces one job status.
func (s *BadgerStatusStore) Put(_ context.Context, status *JobStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal job status: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(jobKeyPrefix+status.ID), data)
		if s.retention > 0 {
			entry = entry.WithTTL(s.retention)
		}
		return txn.SetEntry(entry)
	})
}

// Get retrieves one job status or ErrJobNotFound.
func (s *BadgerStatusStore) Get(_ context.Context, id string) (*JobStatus, error) {
	var status JobStatus

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(jobKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrJobNotFound
		}
		if err != nil {
			return fmt.Errorf("get job status: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &status)
		})
	})
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// MemStatusStore is an in-memory StatusStore for tests.
type MemStatusStore struct {
	mu       sync.RWMutex
	statuses map[string]*JobStatus
}

// NewMemStatusStore creates an empty in-memory status store.
func NewMemStatusStore() *MemStatusStore {
	return &MemStatusStore{statuses: make(map[string]*JobStatus)}
}

// Put stores a copy of the status.
func (s *MemStatusStore) Put(_ context.Context, status *JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *status
	s.statuses[status.ID] = &cp
	return nil
}

// Get retrieves a copy of the status or ErrJobNotFound.
func (s *MemStatusStore) Get(_ context.Context, id string) (*JobStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.statuses[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *status
	return &cp, nil
}
