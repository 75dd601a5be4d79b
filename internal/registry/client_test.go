// Regsync - HR Registry Synchronization Service
// Copyright 2026 D. Vicanovic (dvicanovic)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dvicanovic/regsync

package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
)

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(ClientConfig{
		Endpoint:          srv.URL,
		APIKey:            "key-1",
		Token:             "token-1",
		DocumentQueryID:   "doc-query",
		RequestsPerSecond: 1000,
	})
	c.retryBaseDelay = time.Millisecond
	return c, srv
}

func writeEnvelope(w http.ResponseWriter, env ResponseEnvelope) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(env)
}

func TestFetchPage(t *testing.T) {
	t.Run("decodes records and sizes", func(t *testing.T) {
		var gotEnv Envelope
		var gotAPIKey string
		client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotAPIKey = r.Header.Get("X-API-Key")
			_ = json.NewDecoder(r.Body).Decode(&gotEnv)

			data, _ := json.Marshal([]SourceRecord{
				{NaturalID: "1001", FirstName: "Ana", LastName: "Ilic"},
				{NaturalID: "1002", FirstName: "Marko", LastName: "Simic"},
			})
			writeEnvelope(w, ResponseEnvelope{Code: 200, Status: "SUCCESS", OverallDataSize: 27, CurrentDataSize: 2, Data: data})
		})

		page, err := client.FetchPage(context.Background(), PageQuery{
			QueryID:        "emp-query",
			IdentifierType: "tax-id",
			Identifier:     "998877",
			PageNumber:     3,
			PageSize:       25,
		})
		if err != nil {
			t.Fatalf("FetchPage: %v", err)
		}
		if len(page.Records) != 2 || page.Records[0].NaturalID != "1001" {
			t.Errorf("records = %+v", page.Records)
		}
		if page.OverallDataSize != 27 || page.CurrentDataSize != 2 {
			t.Errorf("sizes = %d/%d, want 27/2", page.OverallDataSize, page.CurrentDataSize)
		}

		if gotAPIKey != "key-1" {
			t.Errorf("X-API-Key = %q", gotAPIKey)
		}
		if gotEnv.QueryID != "emp-query" || gotEnv.Payload.PageNumber != 3 || gotEnv.Payload.PageSize != 25 {
			t.Errorf("request envelope = %+v", gotEnv)
		}
		if gotEnv.Payload.Body["identifierType"] != "tax-id" || gotEnv.Payload.Body["identifier"] != "998877" {
			t.Errorf("request body = %v", gotEnv.Payload.Body)
		}
	})

	t.Run("empty data yields empty page", func(t *testing.T) {
		client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(w, ResponseEnvelope{Code: 200, OverallDataSize: 27})
		})
		page, err := client.FetchPage(context.Background(), PageQuery{PageNumber: 5})
		if err != nil {
			t.Fatalf("FetchPage: %v", err)
		}
		if len(page.Records) != 0 || page.OverallDataSize != 27 {
			t.Errorf("page = %+v", page)
		}
	})

	t.Run("envelope failure surfaces as EnvelopeError", func(t *testing.T) {
		client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(w, ResponseEnvelope{Code: 500, Status: "FAILURE", Message: "query timed out"})
		})
		_, err := client.FetchPage(context.Background(), PageQuery{})
		if err == nil {
			t.Fatal("expected error")
		}
		if !IsEnvelopeError(err) {
			t.Errorf("error %v is not an EnvelopeError", err)
		}
	})

	t.Run("http failure surfaces status", func(t *testing.T) {
		client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad gateway", http.StatusBadGateway)
		})
		_, err := client.FetchPage(context.Background(), PageQuery{})
		if err == nil || IsEnvelopeError(err) {
			t.Errorf("err = %v, want transport error", err)
		}
	})
}

func TestFetchDocument(t *testing.T) {
	t.Run("decodes payload", func(t *testing.T) {
		var gotEnv Envelope
		client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&gotEnv)
			data, _ := json.Marshal(DocumentPayload{FileName: "contract.pdf", ContentType: "application/pdf", Content: "JVBERi0="})
			writeEnvelope(w, ResponseEnvelope{Code: 200, Data: data})
		})

		doc, err := client.FetchDocument(context.Background(), "1001", "contract")
		if err != nil {
			t.Fatalf("FetchDocument: %v", err)
		}
		if doc == nil || doc.FileName != "contract.pdf" {
			t.Errorf("doc = %+v", doc)
		}
		if gotEnv.QueryID != "doc-query" {
			t.Errorf("query id = %q, want doc-query", gotEnv.QueryID)
		}
		if gotEnv.Payload.Body["nationalId"] != "1001" || gotEnv.Payload.Body["documentCode"] != "contract" {
			t.Errorf("request body = %v", gotEnv.Payload.Body)
		}
	})

	t.Run("absent document returns nil payload", func(t *testing.T) {
		client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(w, ResponseEnvelope{Code: 200})
		})
		doc, err := client.FetchDocument(context.Background(), "1001", "diploma")
		if err != nil {
			t.Fatalf("FetchDocument: %v", err)
		}
		if doc != nil {
			t.Errorf("doc = %+v, want nil", doc)
		}
	})

	t.Run("empty content treated as absent", func(t *testing.T) {
		client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			data, _ := json.Marshal(DocumentPayload{FileName: "x.pdf"})
			writeEnvelope(w, ResponseEnvelope{Code: 200, Data: data})
		})
		doc, err := client.FetchDocument(context.Background(), "1001", "diploma")
		if err != nil || doc != nil {
			t.Errorf("doc = %+v err = %v, want nil/nil", doc, err)
		}
	})
}

func TestFetchAttachments(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := json.Marshal([]Attachment{
			{DeclaredType: "Training Certificate", FileName: "cert.pdf"},
			{DeclaredType: "Payslip", FileName: "pay.pdf"},
		})
		writeEnvelope(w, ResponseEnvelope{Code: 200, Data: data})
	})

	atts, err := client.FetchAttachments(context.Background(), "1001")
	if err != nil {
		t.Fatalf("FetchAttachments: %v", err)
	}
	if len(atts) != 2 || atts[0].DeclaredType != "Training Certificate" {
		t.Errorf("attachments = %+v", atts)
	}
}

func TestThrottleRetry(t *testing.T) {
	t.Run("retries after 429", func(t *testing.T) {
		var calls atomic.Int32
		client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.Header().Set("Retry-After", "0")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			writeEnvelope(w, ResponseEnvelope{Code: 200})
		})

		if _, err := client.FetchPage(context.Background(), PageQuery{}); err != nil {
			t.Fatalf("FetchPage: %v", err)
		}
		if calls.Load() != 2 {
			t.Errorf("calls = %d, want 2", calls.Load())
		}
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		var calls atomic.Int32
		client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
		})
		client.maxRetries = 2

		_, err := client.FetchPage(context.Background(), PageQuery{})
		if err == nil {
			t.Fatal("expected error")
		}
		if calls.Load() != 3 {
			t.Errorf("calls = %d, want 3", calls.Load())
		}
	})
}

func TestBreakerOpensOnConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	bc := NewBreakerClient(ClientConfig{
		Endpoint:          srv.URL,
		DocumentQueryID:   "doc-query",
		RequestsPerSecond: 1000,
	})
	bc.client.retryBaseDelay = time.Millisecond

	for i := 0; i < 5; i++ {
		if _, err := bc.FetchPage(context.Background(), PageQuery{}); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}

	_, err := bc.FetchPage(context.Background(), PageQuery{})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("err = %v, want circuit open", err)
	}
}
