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
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/dvicanovic/regsync/internal/config"
	"github.com/dvicanovic/regsync/internal/logging"
)

// EmbeddedServer wraps a NATS server with JetStream enabled, giving a
// single-instance deployment a durable queue without external dependencies.
type EmbeddedServer struct {
	server    *server.Server
	clientURL string
}

// NewEmbeddedServer creates and starts an embedded NATS server.
func NewEmbeddedServer(cfg *config.NATSConfig) (*EmbeddedServer, error) {
	opts := &server.Options{
		ServerName: "regsync-jobs",
		JetStream:  true,
		StoreDir:   cfg.StoreDir,
		// Document payloads never ride the queue; job messages are tiny.
		MaxPayload: 1 * 1024 * 1024,
		DontListen: false,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create NATS server: %w", err)
	}
	ns.ConfigureLogger()
	go ns.Start()

	if !ns.ReadyForConnections(30 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server not ready within timeout")
	}

	logging.Info().Str("url", ns.ClientURL()).Msg("Embedded NATS server ready")
	return &EmbeddedServer{server: ns, clientURL: ns.ClientURL()}, nil
}

// ClientURL returns the connection URL for clients.
func (s *EmbeddedServer) ClientURL() string {
	return s.clientURL
}

// Shutdown stops the server and waits for it to finish.
func (s *EmbeddedServer) Shutdown() {
	s.server.Shutdown()
	s.server.WaitForShutdown()
}

// EnsureStream creates or updates the JetStream stream that backs the job
// queue. Called once on startup before the publisher and subscriber connect.
func EnsureStream(ctx context.Context, cfg *config.NATSConfig, retention time.Duration) error {
	nc, err := natsgo.Connect(cfg.URL)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}

	streamCfg := jetstream.StreamConfig{
		Name:      cfg.StreamName,
		Subjects:  []string{"sync.>"},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    retention,
		Storage:   jetstream.FileStorage,
		Discard:   jetstream.DiscardOld,
	}

	if _, err := js.Stream(ctx, cfg.StreamName); err == nil {
		if _, err := js.UpdateStream(ctx, streamCfg); err != nil {
			return fmt.Errorf("update stream %s: %w", cfg.StreamName, err)
		}
		return nil
	}
	if _, err := js.CreateStream(ctx, streamCfg); err != nil {
		return fmt.Errorf("create stream %s: %w", cfg.StreamName, err)
	}
	return nil
}

// natsOptions returns shared connection options with reconnect handling.
func natsOptions(logger watermill.LoggerAdapter) []natsgo.Option {
	return []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}
}

// NewPublisher creates the JetStream publisher used for enqueueing jobs.
// Message UUIDs double as Nats-Msg-Id so a retried enqueue cannot duplicate
// a job.
func NewPublisher(cfg *config.NATSConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	wmConfig := wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOptions(logger),
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: false, // stream is pre-created by EnsureStream
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}

	pub, err := wmNats.NewPublisher(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create publisher: %w", err)
	}
	return pub, nil
}

// NewSubscriber creates the durable JetStream subscriber for the worker.
func NewSubscriber(cfg *config.NATSConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	subOpts := []natsgo.SubOpt{
		natsgo.MaxAckPending(16),
		// One long sync must not trip redelivery mid-run.
		natsgo.AckWait(30 * time.Minute),
		natsgo.BindStream(cfg.StreamName),
		natsgo.DeliverAll(),
	}

	wmConfig := wmNats.SubscriberConfig{
		URL:              cfg.URL,
		QueueGroupPrefix: cfg.QueueGroup,
		SubscribersCount: 1,
		AckWaitTimeout:   30 * time.Minute,
		CloseTimeout:     30 * time.Second,
		NatsOptions:      natsOptions(logger),
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:         false,
			AutoProvision:    false,
			AckAsync:         false,
			SubscribeOptions: subOpts,
			DurablePrefix:    cfg.DurableName,
		},
	}

	sub, err := wmNats.NewSubscriber(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create subscriber: %w", err)
	}
	return sub, nil
}
