// Regsync - HR Registry Synchronization Service
// Copyright 2026 D. Vicanovic (dvicanovic)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dvicanovic/regsync

/*
client.go - Core Source System API Client

The Source System exposes exactly one POST endpoint. Every operation is an
Envelope with a QueryID: employee pages use the caller-supplied query id,
document retrieval uses a dedicated document query id with per-type sub-codes,
and the protocol does not support multi-type retrieval in one request.

Resilience mechanisms:
  - Per-call timeouts attached explicitly (pages 30s, documents up to 120s);
    no reliance on transport defaults
  - Client-side pacing via golang.org/x/time/rate shared across all calls
  - HTTP 429 handling with exponential backoff and Retry-After support
  - Bounded error-body reads for diagnostics

Circuit breaker protection lives in breaker.go; the sync loop's own
consecutive-failure stop rule lives in internal/syncer.
*/

//nolint:staticcheck // File documentation, not package doc
package registry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/dvicanovic/regsync/internal/metrics"
)

// maxErrorBodySize limits how much of a response body is read for error
// reporting, preventing unbounded allocation on large error responses.
const maxErrorBodySize = 64 * 1024 // 64KB

// Client calls the Source System's single POST endpoint.
type Client struct {
	endpoint string
	apiKey   string
	token    string

	docQueryID string

	client         *http.Client
	limiter        *rate.Limiter
	pageTimeout    time.Duration
	docTimeout     time.Duration
	maxRetries     int
	retryBaseDelay time.Duration
}

// ClientConfig holds the connection settings for the Source System.
type ClientConfig struct {
	Endpoint        string
	APIKey          string
	Token           string
	DocumentQueryID string

	// PageTimeout bounds one page fetch. Default 30s.
	PageTimeout time.Duration

	// DocumentTimeout bounds one document fetch. Documents are large and slow
	// to encode on the source side. Default 120s.
	DocumentTimeout time.Duration

	// RequestsPerSecond paces all outgoing calls. Default 2.
	RequestsPerSecond float64
}

// ClientInterface is the subset of Source System operations the pipelines
// depend on. Implemented by Client for production and by fakes in tests.
type ClientInterface interface {
	FetchPage(ctx context.Context, q PageQuery) (*PageResult, error)
	FetchDocument(ctx context.Context, naturalID string, subCode string) (*DocumentPayload, error)
	FetchAttachments(ctx context.Context, naturalID string) ([]Attachment, error)
}

// NewClient creates a Source System client with the provided configuration.
func NewClient(cfg ClientConfig) *Client {
	pageTimeout := cfg.PageTimeout
	if pageTimeout <= 0 {
		pageTimeout = 30 * time.Second
	}
	docTimeout := cfg.DocumentTimeout
	if docTimeout <= 0 {
		docTimeout = 120 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}

	return &Client{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		token:      cfg.Token,
		docQueryID: cfg.DocumentQueryID,
		// Timeouts are attached per call via context; the transport itself
		// stays unbounded so document fetches can use the longer budget.
		client:         &http.Client{},
		limiter:        rate.NewLimiter(rate.Limit(rps), 1),
		pageTimeout:    pageTimeout,
		docTimeout:     docTimeout,
		maxRetries:     5,
		retryBaseDelay: time.Second,
	}
}

// FetchPage retrieves one page of employee master records.
func (c *Client) FetchPage(ctx context.Context, q PageQuery) (*PageResult, error) {
	env := Envelope{
		QueryID: q.QueryID,
		Payload: Payload{
			PageNumber: q.PageNumber,
			PageSize:   q.PageSize,
			Body: map[string]any{
				"identifierType": q.IdentifierType,
				"identifier":     q.Identifier,
			},
		},
	}

	start := time.Now()
	resp, err := c.call(ctx, env, c.pageTimeout)
	metrics.RecordRegistryCall("page", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", q.PageNumber, err)
	}

	var records []SourceRecord
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &records); err != nil {
			return nil, fmt.Errorf("decode page %d records: %w", q.PageNumber, err)
		}
	}

	return &PageResult{
		Records:         records,
		OverallDataSize: resp.OverallDataSize,
		CurrentDataSize: resp.CurrentDataSize,
	}, nil
}

// FetchDocument retrieves one binary document for an employee. Each document
// type requires its own call with its own sub-code. A nil payload with nil
// error means the source holds no document of that type.
func (c *Client) FetchDocument(ctx context.Context, naturalID string, subCode string) (*DocumentPayload, error) {
	env := Envelope{
		QueryID: c.docQueryID,
		Payload: Payload{
			Body: map[string]any{
				"nationalId":   naturalID,
				"documentCode": subCode,
			},
		},
	}

	start := time.Now()
	resp, err := c.call(ctx, env, c.docTimeout)
	metrics.RecordRegistryCall("document", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("fetch document %s: %w", subCode, err)
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}

	var doc DocumentPayload
	if err := json.Unmarshal(resp.Data, &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", subCode, err)
	}
	if doc.Content == "" {
		return nil, nil
	}
	return &doc, nil
}

// FetchAttachments retrieves the full attachment listing for an employee.
// The document pipeline filters certificate-like entries from it.
func (c *Client) FetchAttachments(ctx context.Context, naturalID string) ([]Attachment, error) {
	env := Envelope{
		QueryID: c.docQueryID,
		Payload: Payload{
			Body: map[string]any{
				"nationalId":   naturalID,
				"documentCode": "attachments",
			},
		},
	}

	start := time.Now()
	resp, err := c.call(ctx, env, c.docTimeout)
	metrics.RecordRegistryCall("attachments", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("fetch attachments: %w", err)
	}

	var attachments []Attachment
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &attachments); err != nil {
			return nil, fmt.Errorf("decode attachments: %w", err)
		}
	}
	return attachments, nil
}

// call performs one enveloped POST with pacing, timeout, and 429 handling,
// then validates the response envelope.
func (c *Client) call(ctx context.Context, env Envelope, timeout time.Duration) (*ResponseEnvelope, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.doRequestWithRateLimit(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b := readBodyForError(resp.Body)
		return nil, fmt.Errorf("request failed with HTTP %d: %s", resp.StatusCode, string(b))
	}

	var envelope ResponseEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode response envelope: %w", err)
	}

	if envelope.Code != http.StatusOK || envelope.Status == "FAILURE" {
		return nil, &EnvelopeError{
			Code:    envelope.Code,
			Status:  envelope.Status,
			Message: envelope.Message,
		}
	}

	return &envelope, nil
}

// doRequestWithRateLimit performs an HTTP POST with client-side pacing and
// automatic HTTP 429 handling (exponential backoff with Retry-After support).
func (c *Client) doRequestWithRateLimit(ctx context.Context, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if !c.limiter.Allow() {
			metrics.RegistryRateLimitWaits.Inc()
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-API-Key", c.apiKey)
		req.Header.Set("X-Auth-Token", c.token)

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("HTTP request failed: %w", err)
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		// Rate limited - close body and retry with backoff.
		_ = resp.Body.Close()
		metrics.RegistryThrottleRetries.Inc()

		if attempt == c.maxRetries {
			lastErr = fmt.Errorf("rate limit exceeded after %d retries (HTTP 429)", c.maxRetries)
			break
		}

		delay := c.retryBaseDelay * time.Duration(1<<uint(attempt))
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
				delay = seconds
			}
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

// readBodyForError reads the response body for error reporting (max 64KB).
func readBodyForError(r io.Reader) []byte {
	limited := io.LimitReader(r, maxErrorBodySize)
	body, err := io.ReadAll(limited)
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("\n... (truncated)")...)
	}
	return body
}
