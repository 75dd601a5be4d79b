// Regsync - HR Registry Synchronization Service
// Copyright 2026 D. Vicanovic (dvicanovic)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dvicanovic/regsync

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/dvicanovic/regsync/internal/config"
	"github.com/dvicanovic/regsync/internal/jobs"
	"github.com/dvicanovic/regsync/internal/models"
	"github.com/dvicanovic/regsync/internal/objectstore"
	"github.com/dvicanovic/regsync/internal/registry"
)

// fakeJobs records enqueued jobs and serves canned statuses.
type fakeJobs struct {
	enqueued []jobs.SyncJob
	statuses map[string]*jobs.JobStatus
	err      error
}

func (f *fakeJobs) Enqueue(_ context.Context, job jobs.SyncJob) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	job.ID = "job-123"
	f.enqueued = append(f.enqueued, job)
	return job.ID, nil
}

func (f *fakeJobs) GetStatus(_ context.Context, id string) (*jobs.JobStatus, error) {
	status, ok := f.statuses[id]
	if !ok {
		return nil, jobs.ErrJobNotFound
	}
	return status, nil
}

// fakeReader serves a fixed employee set.
type fakeReader struct {
	employees []models.Employee
	pingErr   error
}

func (f *fakeReader) FindEmployeesByInstitution(_ context.Context, institutionID string) ([]models.Employee, error) {
	var out []models.Employee
	for _, e := range f.employees {
		if e.Institution == institutionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeReader) FindEmployeesByIDs(_ context.Context, ids []string) ([]models.Employee, error) {
	var out []models.Employee
	for _, e := range f.employees {
		for _, id := range ids {
			if e.ID == id {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func (f *fakeReader) Ping(context.Context) error { return f.pingErr }

// memDocstore is an in-memory documents.Datastore.
type memDocstore struct {
	urls  map[string]string // employeeID+"/"+type -> url
	certs map[string]*models.Certificate
}

func newMemDocstore() *memDocstore {
	return &memDocstore{urls: make(map[string]string), certs: make(map[string]*models.Certificate)}
}

func (m *memDocstore) SetDocumentURL(_ context.Context, employeeID string, t models.DocumentType, url string) error {
	m.urls[employeeID+"/"+string(t)] = url
	return nil
}

func (m *memDocstore) FindCertificate(_ context.Context, ownerID, certType string) (*models.Certificate, error) {
	if c, ok := m.certs[ownerID+"/"+certType]; ok {
		return c, nil
	}
	return nil, errors.New("certificate not found")
}

func (m *memDocstore) UpsertCertificate(_ context.Context, c *models.Certificate) error {
	m.certs[c.OwnerID+"/"+c.Type] = c
	return nil
}

// emptyClient returns no documents and no attachments.
type emptyClient struct{}

func (emptyClient) FetchPage(context.Context, registry.PageQuery) (*registry.PageResult, error) {
	return nil, errors.New("not used")
}

func (emptyClient) FetchDocument(context.Context, string, string) (*registry.DocumentPayload, error) {
	return nil, nil
}

func (emptyClient) FetchAttachments(context.Context, string) ([]registry.Attachment, error) {
	return nil, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Registry: config.RegistryConfig{PageSize: 10},
		Documents: config.DocumentsConfig{
			BatchSize: 4,
		},
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   1000,
			RateLimitWindow: time.Minute,
		},
	}
}

func newTestRouter(t *testing.T, jobSvc *fakeJobs, reader *fakeReader) http.Handler {
	t.Helper()
	h := NewHandler(testConfig(), jobSvc, reader, newMemDocstore(), emptyClient{}, objectstore.NewMemStore(), nil, nil)
	return h.NewRouter("")
}

func TestCreateSyncJob(t *testing.T) {
	t.Run("valid request", func(t *testing.T) {
		jobSvc := &fakeJobs{statuses: map[string]*jobs.JobStatus{}}
		router := newTestRouter(t, jobSvc, &fakeReader{})

		body := `{"institution_id":"inst-1","identifier_type":"tax-id","identifier":"12345"}`
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sync/jobs", strings.NewReader(body)))

		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d, want 202 (body %s)", rec.Code, rec.Body.String())
		}
		var resp createSyncJobResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.JobID != "job-123" || resp.State != "queued" {
			t.Errorf("response = %+v", resp)
		}
		if len(jobSvc.enqueued) != 1 || jobSvc.enqueued[0].PageSize != 10 {
			t.Errorf("enqueued = %+v, want default page size 10", jobSvc.enqueued)
		}
		if jobSvc.enqueued[0].SourceQueryID != "" {
			t.Errorf("SourceQueryID = %q, want empty for config default", jobSvc.enqueued[0].SourceQueryID)
		}
	})

	t.Run("source query id carried into the job", func(t *testing.T) {
		jobSvc := &fakeJobs{statuses: map[string]*jobs.JobStatus{}}
		router := newTestRouter(t, jobSvc, &fakeReader{})

		body := `{"institution_id":"inst-1","identifier_type":"tax-id","identifier":"12345","source_query_id":"emp-q-archive"}`
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sync/jobs", strings.NewReader(body)))

		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d, want 202 (body %s)", rec.Code, rec.Body.String())
		}
		if len(jobSvc.enqueued) != 1 || jobSvc.enqueued[0].SourceQueryID != "emp-q-archive" {
			t.Errorf("enqueued = %+v, want source query id emp-q-archive", jobSvc.enqueued)
		}
	})

	t.Run("rejects unknown identifier type", func(t *testing.T) {
		router := newTestRouter(t, &fakeJobs{}, &fakeReader{})
		body := `{"institution_id":"inst-1","identifier_type":"passport","identifier":"12345"}`
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sync/jobs", strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("rejects missing fields", func(t *testing.T) {
		router := newTestRouter(t, &fakeJobs{}, &fakeReader{})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sync/jobs", strings.NewReader(`{}`)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestGetSyncJob(t *testing.T) {
	now := time.Now().UTC()
	jobSvc := &fakeJobs{statuses: map[string]*jobs.JobStatus{
		"job-123": {ID: "job-123", State: jobs.StateCompleted, EnqueuedAt: now,
			Result: &models.SyncSummary{Created: 3}},
	}}
	router := newTestRouter(t, jobSvc, &fakeReader{})

	t.Run("found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sync/jobs/job-123", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var status jobs.JobStatus
		if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if status.State != jobs.StateCompleted || status.Result.Created != 3 {
			t.Errorf("status = %+v", status)
		}
	})

	t.Run("not found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sync/jobs/missing", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		router := newTestRouter(t, &fakeJobs{}, &fakeReader{})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("degraded on db failure", func(t *testing.T) {
		router := newTestRouter(t, &fakeJobs{}, &fakeReader{pingErr: errors.New("connection refused")})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})
}

func sseMessages(t *testing.T, body string) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &m); err != nil {
			t.Fatalf("decode SSE line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestFetchDocumentsStream(t *testing.T) {
	reader := &fakeReader{employees: []models.Employee{
		{ID: "e1", NaturalID: "n1", Institution: "inst-1"},
		{ID: "e2", NaturalID: "n2", Institution: "inst-1"},
		{ID: "e3", NaturalID: "n3", Institution: "other"},
	}}
	router := newTestRouter(t, &fakeJobs{}, reader)

	body := `{"institution_id":"inst-1"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/documents/fetch", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	msgs := sseMessages(t, rec.Body.String())
	// Two per-employee progress events plus the completion event.
	if len(msgs) != 3 {
		t.Fatalf("SSE messages = %d, want 3", len(msgs))
	}
	for _, m := range msgs[:2] {
		if m["type"] != "progress" {
			t.Errorf("message type = %v, want progress", m["type"])
		}
	}
	final := msgs[2]
	if final["type"] != "complete" {
		t.Errorf("final type = %v, want complete", final["type"])
	}
	if final["batch"] == nil {
		t.Error("final message missing batch summary")
	}

	t.Run("unknown institution", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/documents/fetch",
			strings.NewReader(`{"institution_id":"nope"}`)))
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

func TestRetryDocumentsStream(t *testing.T) {
	reader := &fakeReader{employees: []models.Employee{
		{ID: "e1", NaturalID: "n1", Institution: "inst-1"},
	}}
	router := newTestRouter(t, &fakeJobs{}, reader)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/documents/retry",
		strings.NewReader(`{"employee_ids":["e1"]}`)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	msgs := sseMessages(t, rec.Body.String())
	if len(msgs) != 2 {
		t.Fatalf("SSE messages = %d, want 2", len(msgs))
	}
	if msgs[1]["type"] != "complete" {
		t.Errorf("final type = %v, want complete", msgs[1]["type"])
	}

	t.Run("rejects empty id list", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/documents/retry",
			strings.NewReader(`{"employee_ids":[]}`)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}
