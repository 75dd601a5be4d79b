// Regsync - HR Registry Synchronization Service
// Copyright 2026 D. Vicanovic (dvicanovic)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dvicanovic/regsync

package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/dvicanovic/regsync/internal/config"
	"github.com/dvicanovic/regsync/internal/logging"
	"github.com/dvicanovic/regsync/internal/metrics"
)

// Service enqueues sync jobs and runs the worker router that consumes them.
type Service struct {
	cfg       *config.JobsConfig
	publisher message.Publisher
	statuses  StatusStore
	runner    *Runner
	router    *message.Router

	// limiter bounds how often a job may start; sem bounds how many run at
	// once. Both apply inside the handler so waiting jobs stay unacked.
	limiter *rate.Limiter
	sem     chan struct{}
}

// NewService wires the queue service. Call Register before running the
// router.
func NewService(
	cfg *config.JobsConfig,
	publisher message.Publisher,
	subscriber message.Subscriber,
	statuses StatusStore,
	runner *Runner,
	logger watermill.LoggerAdapter,
) (*Service, error) {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 30 * time.Second}, logger)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}

	s := &Service{
		cfg:       cfg,
		publisher: publisher,
		statuses:  statuses,
		runner:    runner,
		router:    router,
		limiter:   rate.NewLimiter(rate.Limit(float64(cfg.RateLimit)/cfg.RateWindow.Seconds()), 1),
		sem:       make(chan struct{}, cfg.Concurrency),
	}

	// First-added middleware runs outermost. PoisonQueue must wrap Retry so
	// it only sees errors that survived every retry, and Recoverer sits
	// innermost so panics surface as retryable errors.
	poison, err := middleware.PoisonQueue(publisher, cfg.PoisonTopic)
	if err != nil {
		return nil, fmt.Errorf("create poison queue: %w", err)
	}
	router.AddMiddleware(poison)

	retry := middleware.Retry{
		MaxRetries:      cfg.RetryAttempts - 1,
		InitialInterval: cfg.RetryBaseDelay,
		MaxInterval:     5 * time.Minute,
		Multiplier:      2,
		Logger:          logger,
	}
	router.AddMiddleware(retry.Middleware)

	router.AddMiddleware(middleware.Recoverer)

	router.AddNoPublisherHandler("sync-worker", TopicJobs, subscriber, s.handle)

	return s, nil
}

// Enqueue persists a queued status and publishes the job.
func (s *Service) Enqueue(ctx context.Context, job SyncJob) (string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	status := &JobStatus{
		ID:         job.ID,
		State:      StateQueued,
		Job:        job,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := s.statuses.Put(ctx, status); err != nil {
		return "", fmt.Errorf("record queued status: %w", err)
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}

	msg := message.NewMessage(job.ID, payload)
	if err := s.publisher.Publish(TopicJobs, msg); err != nil {
		return "", fmt.Errorf("publish job: %w", err)
	}

	metrics.SyncJobsEnqueued.Inc()
	metrics.QueueMessagesPublished.Inc()
	logging.Info().
		Str("job_id", job.ID).
		Str("institution_id", job.InstitutionID).
		Msg("Job enqueued")
	return job.ID, nil
}

// GetStatus returns the durable status of one job.
func (s *Service) GetStatus(ctx context.Context, id string) (*JobStatus, error) {
	return s.statuses.Get(ctx, id)
}

// Run starts the worker router and blocks until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	return s.router.Run(ctx)
}

// Close shuts the router down.
func (s *Service) Close() error {
	return s.router.Close()
}

// handle processes one job message. Returning an error triggers the retry
// middleware; exhausted messages land on the poison topic.
func (s *Service) handle(msg *message.Message) error {
	ctx := msg.Context()

	var job SyncJob
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		// Undecodable messages can never succeed; let them fall through the
		// retries to the poison topic.
		return fmt.Errorf("decode job message: %w", err)
	}

	// Global job-start pacing protects the Source System from burst load.
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	s.sem <- struct{}{}
	defer func() { <-s.sem }()

	return s.runJob(ctx, job)
}

func (s *Service) runJob(ctx context.Context, job SyncJob) error {
	start := time.Now()
	metrics.TrackActiveJob(true)
	defer metrics.TrackActiveJob(false)

	status, err := s.statuses.Get(ctx, job.ID)
	if err != nil {
		// The message exists but the status record is gone (expired or a
		// foreign enqueue); rebuild it so the run is still observable.
		status = &JobStatus{ID: job.ID, Job: job, EnqueuedAt: time.Now().UTC()}
	}

	now := time.Now().UTC()
	status.State = StateActive
	status.AttemptsMade++
	status.StartedAt = &now
	if err := s.statuses.Put(ctx, status); err != nil {
		return fmt.Errorf("record active status: %w", err)
	}

	summary, runErr := s.runner.Run(ctx, job)
	finished := time.Now().UTC()
	status.FinishedAt = &finished

	if runErr != nil {
		status.FailedReason = runErr.Error()
		if status.AttemptsMade >= s.cfg.RetryAttempts {
			status.State = StateFailed
			metrics.RecordJobOutcome("failed", time.Since(start))
			metrics.QueueMessagesPoisoned.Inc()
			logging.Error().
				Err(runErr).
				Str("job_id", job.ID).
				Int("attempts", status.AttemptsMade).
				Msg("Job failed permanently")
		} else {
			// Keep the job active in badger; the retry middleware will
			// re-deliver and bump AttemptsMade.
			status.State = StateQueued
			status.FinishedAt = nil
			logging.Warn().
				Err(runErr).
				Str("job_id", job.ID).
				Int("attempt", status.AttemptsMade).
				Msg("Job attempt failed, will retry")
		}
		if err := s.statuses.Put(ctx, status); err != nil {
			logging.Error().Err(err).Str("job_id", job.ID).Msg("Failed to record job status")
		}
		return runErr
	}

	status.State = StateCompleted
	status.Result = summary
	status.FailedReason = ""
	if err := s.statuses.Put(ctx, status); err != nil {
		logging.Error().Err(err).Str("job_id", job.ID).Msg("Failed to record job status")
	}

	outcome := "completed"
	if summary.Partial {
		outcome = "partial"
	}
	metrics.RecordJobOutcome(outcome, time.Since(start))
	return nil
}
