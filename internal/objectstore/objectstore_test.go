// Regsync - HR Registry Synchronization Service
// Copyright 2026 D. Vicanovic (dvicanovic)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dvicanovic/regsync

package objectstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStorePut(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileStore(root, "/files/")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	t.Run("stores and returns prefixed url", func(t *testing.T) {
		url, err := s.Put(context.Background(), "1234567890123_contract.pdf", "application/pdf", []byte("pdf-bytes"))
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		if url != "/files/1234567890123_contract.pdf" {
			t.Errorf("url = %q, want /files/1234567890123_contract.pdf", url)
		}

		data, err := os.ReadFile(filepath.Join(root, "1234567890123_contract.pdf"))
		if err != nil {
			t.Fatalf("read stored object: %v", err)
		}
		if string(data) != "pdf-bytes" {
			t.Errorf("stored content = %q, want pdf-bytes", data)
		}
	})

	t.Run("overwrites existing object", func(t *testing.T) {
		if _, err := s.Put(context.Background(), "doc.pdf", "application/pdf", []byte("v1")); err != nil {
			t.Fatalf("first Put: %v", err)
		}
		if _, err := s.Put(context.Background(), "doc.pdf", "application/pdf", []byte("v2")); err != nil {
			t.Fatalf("second Put: %v", err)
		}
		data, err := os.ReadFile(filepath.Join(root, "doc.pdf"))
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if string(data) != "v2" {
			t.Errorf("stored content = %q, want v2", data)
		}
	})

	t.Run("creates nested directories", func(t *testing.T) {
		url, err := s.Put(context.Background(), "inst-1/emp/doc.pdf", "application/pdf", []byte("x"))
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		if url != "/files/inst-1/emp/doc.pdf" {
			t.Errorf("url = %q", url)
		}
	})

	t.Run("rejects path escape", func(t *testing.T) {
		if _, err := s.Put(context.Background(), "../outside.pdf", "application/pdf", []byte("x")); err == nil {
			t.Error("expected error for path escaping the root")
		}
	})
}

func TestMemStore(t *testing.T) {
	s := NewMemStore()

	url, err := s.Put(context.Background(), "a.pdf", "application/pdf", []byte("data"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if url != "/files/a.pdf" {
		t.Errorf("url = %q, want /files/a.pdf", url)
	}

	data, ok := s.Get("a.pdf")
	if !ok || string(data) != "data" {
		t.Errorf("Get = %q/%v, want data/true", data, ok)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}
