// Regsync - HR Registry Synchronization Service
// Copyright 2026 D. Vicanovic (dvicanovic)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dvicanovic/regsync

// Package main is the entry point for the Regsync server.
//
// Regsync synchronizes employee records and document binaries from an
// external HR registry (the Source System) into local storage. The server
// initializes components in the following order:
//
//  1. Configuration: koanf v2 layered sources (env vars over config.yaml
//     over defaults)
//  2. DuckDB datastore for employee and certificate records
//  3. Badger for durable job statuses and resume snapshots
//  4. NATS JetStream (embedded by default) backing the watermill job queue
//  5. Registry client with rate limiting and a circuit breaker
//  6. WebSocket hub for live progress
//  7. HTTP API under suture supervision
//
// Graceful shutdown on SIGINT/SIGTERM: the supervisor drains the HTTP
// server and job workers, then the deferred closes release storage.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/dvicanovic/regsync/internal/api"
	"github.com/dvicanovic/regsync/internal/config"
	"github.com/dvicanovic/regsync/internal/documents"
	"github.com/dvicanovic/regsync/internal/jobs"
	"github.com/dvicanovic/regsync/internal/logging"
	"github.com/dvicanovic/regsync/internal/metrics"
	"github.com/dvicanovic/regsync/internal/objectstore"
	"github.com/dvicanovic/regsync/internal/progress"
	"github.com/dvicanovic/regsync/internal/registry"
	"github.com/dvicanovic/regsync/internal/store"
	"github.com/dvicanovic/regsync/internal/supervisor"
	ws "github.com/dvicanovic/regsync/internal/websocket"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Str("registry_endpoint", cfg.Registry.Endpoint).
		Str("db_path", cfg.Database.Path).
		Msg("Starting Regsync")

	db, err := store.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize datastore")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing datastore")
		}
	}()

	badgerOpts := badger.DefaultOptions(cfg.Badger.Path).WithLogger(nil)
	bdb, err := badger.Open(badgerOpts)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open badger store")
	}
	defer func() {
		if err := bdb.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing badger store")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Embedded NATS starts before the queue clients connect and stops after
	// the supervisor has drained the workers.
	if cfg.NATS.EmbeddedServer {
		ns, err := jobs.NewEmbeddedServer(&cfg.NATS)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to start embedded NATS server")
		}
		defer ns.Shutdown()
		cfg.NATS.URL = ns.ClientURL()
	}

	if err := jobs.EnsureStream(ctx, &cfg.NATS, cfg.Jobs.StatusRetention); err != nil {
		logging.Fatal().Err(err).Msg("Failed to provision JetStream stream")
	}

	publisher, err := jobs.NewPublisher(&cfg.NATS, nil)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create queue publisher")
	}
	defer publisher.Close()

	subscriber, err := jobs.NewSubscriber(&cfg.NATS, nil)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create queue subscriber")
	}
	defer subscriber.Close()

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
		logging.Fatal().Err(err).Msg("Failed to initialize object store")
	}

	hub := ws.NewHub()

	reporterFactory := func(jobID string) progress.Reporter {
		return progress.Fanout(
			&progress.LogReporter{JobID: jobID},
			hub.Reporter(jobID),
		)
	}

	runner := jobs.NewRunner(client, db, cfg.Registry.EmployeeQueryID, cfg.Registry.PageSize, reporterFactory)
	statuses := jobs.NewBadgerStatusStore(bdb, cfg.Jobs.StatusRetention)

	jobSvc, err := jobs.NewService(&cfg.Jobs, publisher, subscriber, statuses, runner, nil)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create job service")
	}

	fileSnaps, err := documents.NewFileSnapshots(cfg.Documents.SnapshotDir)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize snapshot directory")
	}
	snapshots := documents.NewMultiSnapshots(fileSnaps, documents.NewBadgerSnapshots(bdb))

	handler := api.NewHandler(cfg, jobSvc, db, db, client, files, hub, snapshots)
	router := handler.NewRouter(files.Root())

	metrics.AppInfo.WithLabelValues(version, runtime.Version()).Set(1)
	go trackUptime(ctx)

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddMessagingService(&supervisor.HubService{Hub: hub})
	tree.AddMessagingService(&supervisor.JobQueueService{Service: jobSvc})
	tree.AddAPIService(&supervisor.HTTPService{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
		Timeout: cfg.Server.Timeout,
	})

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logging.Error().Err(err).Msg("Supervisor tree exited")
		os.Exit(1)
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		logging.Warn().Int("count", len(report)).Msg("Some services missed the shutdown timeout")
	}
	logging.Info().Msg("Regsync stopped")
}

func trackUptime(ctx context.Context) {
	start := time.Now()
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.AppUptime.Set(time.Since(start).Seconds())
		}
	}
}
