// Regsync - HR Registry Synchronization Service
// Copyright 2026 D. Vicanovic (dvicanovic)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dvicanovic/regsync

package supervisor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/dvicanovic/regsync/internal/jobs"
	"github.com/dvicanovic/regsync/internal/logging"
	"github.com/dvicanovic/regsync/internal/websocket"
)

// HubService runs the websocket hub as a suture service.
type HubService struct {
	Hub *websocket.Hub
}

// Serve blocks until ctx is canceled.
func (s *HubService) Serve(ctx context.Context) error {
	logging.Info().Msg("Starting websocket hub")
	err := s.Hub.RunWithContext(ctx)
	if errors.Is(err, context.Canceled) {
		return suture.ErrDoNotRestart
	}
	return err
}

// JobQueueService runs the watermill job router as a suture service.
type JobQueueService struct {
	Service *jobs.Service
}

// Serve runs the worker router until ctx is canceled.
func (s *JobQueueService) Serve(ctx context.Context) error {
	logging.Info().Msg("Starting sync job workers")
	err := s.Service.Run(ctx)
	if ctx.Err() != nil {
		return suture.ErrDoNotRestart
	}
	return err
}

// HTTPService runs an http.Server with graceful shutdown on cancellation.
type HTTPService struct {
	Addr    string
	Handler http.Handler
	Timeout time.Duration
}

// Serve listens until ctx is canceled, then drains in-flight requests.
// Streaming responses are exempt from write timeouts; per-request limits
// are enforced inside the handlers instead.
func (s *HTTPService) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", s.Addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("HTTP server shutdown incomplete")
	}
	<-errCh
	return suture.ErrDoNotRestart
}
