// Regsync - HR Registry Synchronization Service
// Copyright 2026 D. Vicanovic (dvicanovic)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dvicanovic/regsync

// Package main is a standalone batch document fetcher.
//
// It runs the document pipeline over the persisted employees of one
// institution without going through the HTTP API, resuming from the last
// file snapshot when -resume is set. Intended for operators re-driving
// large backfills outside server hours:
//
//	fetchdocs -institution inst-42 -resume
//	fetchdocs -institution inst-42 -sequential -failed-only
//
// Snapshots are file-based only, so the tool never contends with a running
// server for the badger lock.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dvicanovic/regsync/internal/config"
	"github.com/dvicanovic/regsync/internal/documents"
	"github.com/dvicanovic/regsync/internal/logging"
	"github.com/dvicanovic/regsync/internal/models"
	"github.com/dvicanovic/regsync/internal/objectstore"
	"github.com/dvicanovic/regsync/internal/progress"
	"github.com/dvicanovic/regsync/internal/registry"
	"github.com/dvicanovic/regsync/internal/store"
)

func main() {
	var (
		institutionID = flag.String("institution", "", "institution id whose employees to process (required)")
		resume        = flag.Bool("resume", false, "resume from the last snapshot offset")
		sequential    = flag.Bool("sequential", false, "process one employee at a time with the retry delay")
		failedOnly    = flag.Bool("failed-only", false, "only process employees with at least one empty document slot")
	)
	flag.Parse()

	if *institutionID == "" {
		fmt.Fprintln(os.Stderr, "fetchdocs: -institution is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	if err := run(cfg, *institutionID, *resume, *sequential, *failedOnly); err != nil {
		logging.Fatal().Err(err).Msg("Document fetch failed")
	}
}

func run(cfg *config.Config, institutionID string, resume, sequential, failedOnly bool) error {
	db, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("open datastore: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	employees, err := db.FindEmployeesByInstitution(ctx, institutionID)
	if err != nil {
		return fmt.Errorf("load employees: %w", err)
	}
	if failedOnly {
		employees = filterIncomplete(employees, cfg.Storage.BaseURL)
	}
	if len(employees) == 0 {
		logging.Info().Str("institution_id", institutionID).Msg("Nothing to do")
		return nil
	}

	client := registry.NewBreakerClient(registry.ClientConfig{
		Endpoint:          cfg.Registry.Endpoint,
		APIKey:            cfg.Registry.APIKey,
		Token:             cfg.Registry.Token,
		DocumentQueryID:   cfg.Registry.DocumentQueryID,
		PageTimeout:       cfg.Registry.PageTimeout,
		DocumentTimeout:   cfg.Registry.DocumentTimeout,
		RequestsPerSecond: cfg.Registry.RequestsPerSecond,
	})

	files, err := objectstore.NewFileStore(cfg.Storage.Root, cfg.Storage.BaseURL)
	if err != nil {
		return fmt.Errorf("open object store: %w", err)
	}

	snapshots, err := documents.NewFileSnapshots(cfg.Documents.SnapshotDir)
	if err != nil {
		return fmt.Errorf("open snapshot directory: %w", err)
	}

	offset := 0
	if resume && !sequential {
		snap, err := snapshots.Load(ctx, institutionID)
		switch {
		case err == nil:
			offset = snap.Offset
			logging.Info().Int("offset", offset).Msg("Resuming from snapshot")
		case !errors.Is(err, documents.ErrNoSnapshot):
			return fmt.Errorf("load snapshot: %w", err)
		}
	}

	reporter := &progress.LogReporter{JobID: "fetchdocs:" + institutionID}
	pipeline := documents.NewPipeline(client, db, files, &cfg.Documents, reporter, snapshots)

	var summary *documents.BatchSummary
	if sequential {
		summary, err = pipeline.RunSequential(ctx, employees)
	} else {
		summary, err = pipeline.RunBatch(ctx, institutionID, employees, offset)
	}
	if err != nil {
		return err
	}

	logging.Info().
		Int("total", summary.Total).
		Int("successful", summary.Successful).
		Int("partial", summary.Partial).
		Int("failed", summary.Failed).
		Int("documents_stored", summary.DocumentsStored).
		Int("certificates_stored", summary.CertificatesStored).
		Int64("duration_ms", summary.DurationMs).
		Msg("Document fetch complete")
	return nil
}

// filterIncomplete keeps employees with at least one core document slot not
// yet stored under the given URL prefix.
func filterIncomplete(employees []models.Employee, baseURL string) []models.Employee {
	out := employees[:0]
	for _, e := range employees {
		for _, dt := range models.CoreDocumentTypes() {
			if !strings.HasPrefix(e.DocumentURL(dt), baseURL) {
				out = append(out, e)
				break
			}
		}
	}
	return out
}
