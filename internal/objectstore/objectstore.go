// Regsync - HR Registry Synchronization Service
// Copyright 2026 D. Vicanovic (dvicanovic)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dvicanovic/regsync

// Package objectstore persists fetched document binaries and hands back the
// public URL recorded on the employee row.
//
// Stored URLs always start with the store's base URL prefix; the document
// pipeline uses that prefix to recognize already-stored documents and skip
// refetching them.
package objectstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dvicanovic/regsync/internal/logging"
)

// Store writes document binaries and returns their public URLs.
type Store interface {
	// Put stores data under the given relative path and returns the URL.
	// Overwrites any existing object at the same path.
	Put(ctx context.Context, path string, contentType string, data []byte) (string, error)

	// BaseURL returns the public URL prefix of stored objects.
	BaseURL() string
}

// FileStore stores documents on the local filesystem under a root directory
// and serves them under a URL prefix (e.g. /files).
type FileStore struct {
	root    string
	baseURL string
}

// NewFileStore creates the store, ensuring the root directory exists.
func NewFileStore(root, baseURL string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create storage root %s: %w", root, err)
	}
	return &FileStore{
		root:    root,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// Put writes the object atomically: to a temp file first, then renamed into
// place, so a crash mid-write never leaves a truncated document behind.
func (s *FileStore) Put(_ context.Context, path string, contentType string, data []byte) (string, error) {
	clean, err := s.cleanPath(path)
	if err != nil {
		return "", err
	}

	full := filepath.Join(s.root, clean)
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", fmt.Errorf("create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".put-*")
	if err != nil {
		return "", fmt.Errorf("create temp object: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write object %s: %w", clean, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close object %s: %w", clean, err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("finalize object %s: %w", clean, err)
	}

	logging.Debug().
		Str("path", clean).
		Str("content_type", contentType).
		Int("bytes", len(data)).
		Msg("Stored object")

	return s.baseURL + "/" + filepath.ToSlash(clean), nil
}

// BaseURL returns the public URL prefix.
func (s *FileStore) BaseURL() string {
	return s.baseURL
}

// Root returns the filesystem root, for serving stored files over HTTP.
func (s *FileStore) Root() string {
	return s.root
}

// cleanPath normalizes the relative path and rejects escapes from the root.
func (s *FileStore) cleanPath(path string) (string, error) {
	clean := filepath.Clean(strings.TrimPrefix(path, "/"))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object path %q", path)
	}
	return clean, nil
}

// MemStore is an in-memory Store for tests.
type MemStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	baseURL string
}

// NewMemStore creates an empty in-memory store with base URL /files.
func NewMemStore() *MemStore {
	return &MemStore{
		objects: make(map[string][]byte),
		baseURL: "/files",
	}
}

// Put stores the object in memory.
func (s *MemStore) Put(_ context.Context, path string, _ string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clean := strings.TrimPrefix(path, "/")
	cp := make([]byte, len(data))
	copy(cp, data)
	s.objects[clean] = cp
	return s.baseURL + "/" + clean, nil
}

// BaseURL returns the public URL prefix.
func (s *MemStore) BaseURL() string {
	return s.baseURL
}

// Get returns a stored object for test assertions.
func (s *MemStore) Get(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[strings.TrimPrefix(path, "/")]
	return data, ok
}

// Len returns how many objects are stored.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
