// Regsync - HR Registry Synchronization Service
// Copyright 2026 D. Vicanovic (dvicanovic)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dvicanovic/regsync

package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/dvicanovic/regsync/internal/logging"
	"github.com/dvicanovic/regsync/internal/metrics"
)

// BreakerClient wraps Client with a circuit breaker so that a Source System
// outage fails fast instead of queueing long timeouts behind one another.
//
// The breaker uses real time for its interval and timeout calculations. Tests
// exercise the wrapped client directly or fake ClientInterface.
type BreakerClient struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[interface{}]
	name   string
}

// NewBreakerClient creates a Source System client with circuit breaker
// protection. The circuit opens after 5 consecutive failures and probes again
// after 60 seconds; the half-open state admits 2 concurrent requests.
func NewBreakerClient(cfg ClientConfig) *BreakerClient {
	client := NewClient(cfg)
	cbName := "source-system"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			trip := counts.ConsecutiveFailures >= 5
			if trip {
				logging.Warn().
					Uint32("consecutive_failures", counts.ConsecutiveFailures).
					Msg("Opening source system circuit")
			}
			return trip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("Source system circuit state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, stateToString(from), stateToString(to)).Inc()
		},
	})

	return &BreakerClient{
		client: client,
		cb:     cb,
		name:   cbName,
	}
}

// execute wraps one Source System call with circuit breaker protection.
func (b *BreakerClient) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := b.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.RegistryRequests.WithLabelValues(b.name, "rejected").Inc()
		} else {
			metrics.RegistryRequests.WithLabelValues(b.name, "failure").Inc()
		}
		return nil, err
	}
	metrics.RegistryRequests.WithLabelValues(b.name, "success").Inc()
	return result, nil
}

// castResult safely type-casts the circuit breaker result.
func castResult[T any](result interface{}, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	if result == nil {
		return zero, nil
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

// FetchPage retrieves one page with circuit breaker protection.
func (b *BreakerClient) FetchPage(ctx context.Context, q PageQuery) (*PageResult, error) {
	return castResult[*PageResult](b.execute(func() (interface{}, error) {
		return b.client.FetchPage(ctx, q)
	}))
}

// FetchDocument retrieves one document with circuit breaker protection.
func (b *BreakerClient) FetchDocument(ctx context.Context, naturalID string, subCode string) (*DocumentPayload, error) {
	return castResult[*DocumentPayload](b.execute(func() (interface{}, error) {
		return b.client.FetchDocument(ctx, naturalID, subCode)
	}))
}

// FetchAttachments retrieves the attachment listing with circuit breaker protection.
func (b *BreakerClient) FetchAttachments(ctx context.Context, naturalID string) ([]Attachment, error) {
	return castResult[[]Attachment](b.execute(func() (interface{}, error) {
		return b.client.FetchAttachments(ctx, naturalID)
	}))
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
