// Regsync - HR Registry Synchronization Service
// Copyright 2026 D. Vicanovic (dvicanovic)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dvicanovic/regsync

package documents

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/dvicanovic/regsync/internal/config"
	"github.com/dvicanovic/regsync/internal/models"
	"github.com/dvicanovic/regsync/internal/objectstore"
	"github.com/dvicanovic/regsync/internal/progress"
	"github.com/dvicanovic/regsync/internal/registry"
	"github.com/dvicanovic/regsync/internal/store"
)

// docClient serves canned document payloads and attachments keyed by
// natural id and document type.
type docClient struct {
	mu          sync.Mutex
	docs        map[string]map[string]*registry.DocumentPayload
	docErrs     map[string]map[string]error
	attachments map[string][]registry.Attachment
	attErrs     map[string]error
	fetchCalls  []string // "naturalID/subCode"
}

func newDocClient() *docClient {
	return &docClient{
		docs:        make(map[string]map[string]*registry.DocumentPayload),
		docErrs:     make(map[string]map[string]error),
		attachments: make(map[string][]registry.Attachment),
		attErrs:     make(map[string]error),
	}
}

func (c *docClient) addDoc(naturalID, subCode, fileName, contentType, content string) {
	if c.docs[naturalID] == nil {
		c.docs[naturalID] = make(map[string]*registry.DocumentPayload)
	}
	c.docs[naturalID][subCode] = &registry.DocumentPayload{
		FileName:    fileName,
		ContentType: contentType,
		Content:     base64.StdEncoding.EncodeToString([]byte(content)),
	}
}

func (c *docClient) failDoc(naturalID, subCode string, err error) {
	if c.docErrs[naturalID] == nil {
		c.docErrs[naturalID] = make(map[string]error)
	}
	c.docErrs[naturalID][subCode] = err
}

func (c *docClient) FetchPage(context.Context, registry.PageQuery) (*registry.PageResult, error) {
	return nil, errors.New("not used")
}

func (c *docClient) FetchDocument(_ context.Context, naturalID, subCode string) (*registry.DocumentPayload, error) {
	c.mu.Lock()
	c.fetchCalls = append(c.fetchCalls, naturalID+"/"+subCode)
	c.mu.Unlock()
	if err := c.docErrs[naturalID][subCode]; err != nil {
		return nil, err
	}
	return c.docs[naturalID][subCode], nil
}

func (c *docClient) FetchAttachments(_ context.Context, naturalID string) ([]registry.Attachment, error) {
	if err := c.attErrs[naturalID]; err != nil {
		return nil, err
	}
	return c.attachments[naturalID], nil
}

func (c *docClient) calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.fetchCalls...)
}

func testDocsConfig() *config.DocumentsConfig {
	return &config.DocumentsConfig{
		BatchSize:     2,
		BatchCooldown: 0,
		RetryDelay:    0,
		SnapshotEvery: 0,
	}
}

func setupPipeline(t *testing.T, client *docClient) (*Pipeline, *store.DB, *objectstore.MemStore) {
	t.Helper()
	db, err := store.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "256MB", Threads: 1})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	objects := objectstore.NewMemStore()
	p := NewPipeline(client, db, objects, testDocsConfig(), nil, nil)
	return p, db, objects
}

func seedEmployee(t *testing.T, db *store.DB, naturalID string) *models.Employee {
	t.Helper()
	e := &models.Employee{
		NaturalID:   naturalID,
		Institution: "inst-1",
		DisplayName: "Test Person",
	}
	res, err := db.UpsertEmployee(context.Background(), e)
	if err != nil {
		t.Fatalf("seed employee %s: %v", naturalID, err)
	}
	e.ID = res.ID
	return e
}

func addAllDocs(client *docClient, naturalID string) {
	for _, dt := range models.CoreDocumentTypes() {
		client.addDoc(naturalID, string(dt), string(dt)+".pdf", "application/pdf", "content-"+string(dt))
	}
}

func TestProcessEntityStoresAllDocuments(t *testing.T) {
	client := newDocClient()
	addAllDocs(client, "emp-1")
	p, db, objects := setupPipeline(t, client)
	e := seedEmployee(t, db, "emp-1")

	r := p.processEntity(context.Background(), e)
	if r.Outcome != OutcomeSuccess {
		t.Fatalf("Outcome = %q (errors %v), want success", r.Outcome, r.Errors)
	}
	if r.DocumentsStored != 5 {
		t.Errorf("DocumentsStored = %d, want 5", r.DocumentsStored)
	}
	if objects.Len() != 5 {
		t.Errorf("object store holds %d objects, want 5", objects.Len())
	}

	stored, err := db.GetEmployee(context.Background(), e.ID)
	if err != nil {
		t.Fatalf("reload employee: %v", err)
	}
	for _, dt := range models.CoreDocumentTypes() {
		url := stored.DocumentURL(dt)
		if !strings.HasPrefix(url, objects.BaseURL()) {
			t.Errorf("%s URL = %q, want prefix %q", dt, url, objects.BaseURL())
		}
		if !strings.HasSuffix(url, ".pdf") {
			t.Errorf("%s URL = %q, want .pdf extension", dt, url)
		}
	}
}

func TestProcessEntitySkipsStoredDocuments(t *testing.T) {
	client := newDocClient()
	addAllDocs(client, "emp-1")
	p, db, _ := setupPipeline(t, client)
	e := seedEmployee(t, db, "emp-1")

	if _, err := p.RunSequential(context.Background(), []models.Employee{*e}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	firstCalls := len(client.calls())

	// Re-run over the reloaded record: every slot is stored, so no
	// document fetches happen. Only the attachments scan goes out.
	reloaded, err := db.GetEmployee(context.Background(), e.ID)
	if err != nil {
		t.Fatalf("reload employee: %v", err)
	}
	summary, err := p.RunSequential(context.Background(), []models.Employee{*reloaded})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := len(client.calls()); got != firstCalls {
		t.Errorf("second run made %d document fetches, want 0", got-firstCalls)
	}
	if summary.Results[0].DocumentsSkipped != 5 {
		t.Errorf("DocumentsSkipped = %d, want 5", summary.Results[0].DocumentsSkipped)
	}
	if summary.Successful != 1 {
		t.Errorf("Successful = %d, want 1", summary.Successful)
	}
}

func TestProcessEntityFailureIsolation(t *testing.T) {
	client := newDocClient()
	addAllDocs(client, "emp-1")
	client.failDoc("emp-1", string(models.DocBirthRecord), errors.New("gateway timeout"))
	p, db, _ := setupPipeline(t, client)
	e := seedEmployee(t, db, "emp-1")

	r := p.processEntity(context.Background(), e)
	if r.Outcome != OutcomePartial {
		t.Fatalf("Outcome = %q, want partial", r.Outcome)
	}
	if r.DocumentsStored != 4 {
		t.Errorf("DocumentsStored = %d, want 4", r.DocumentsStored)
	}
	if len(r.Errors) != 1 || !strings.Contains(r.Errors[0], "birth_record") {
		t.Errorf("Errors = %v, want one birth_record error", r.Errors)
	}

	stored, _ := db.GetEmployee(context.Background(), e.ID)
	if stored.BirthRecordURL != "" {
		t.Errorf("BirthRecordURL = %q, want empty", stored.BirthRecordURL)
	}
	if stored.ContractURL == "" {
		t.Error("ContractURL empty, sibling documents should still be stored")
	}
}

func TestProcessEntityAllFailed(t *testing.T) {
	client := newDocClient()
	for _, dt := range models.CoreDocumentTypes() {
		client.failDoc("emp-1", string(dt), errors.New("down"))
	}
	client.attErrs["emp-1"] = errors.New("down")
	p, db, _ := setupPipeline(t, client)
	e := seedEmployee(t, db, "emp-1")

	r := p.processEntity(context.Background(), e)
	if r.Outcome != OutcomeFailed {
		t.Errorf("Outcome = %q, want failed", r.Outcome)
	}
	if len(r.Errors) != 5 || r.ErrorsOmitted != 1 {
		t.Errorf("Errors = %d omitted = %d, want bounded list of 5 plus 1 omitted", len(r.Errors), r.ErrorsOmitted)
	}
}

func TestCertificateDisambiguation(t *testing.T) {
	client := newDocClient()
	content := base64.StdEncoding.EncodeToString([]byte("cert-data"))
	client.attachments["emp-1"] = []registry.Attachment{
		{DeclaredType: "Training Certificate", FileName: "a.pdf", ContentType: "application/pdf", Content: content},
		{DeclaredType: "Training Certificate", FileName: "b.pdf", ContentType: "application/pdf", Content: content},
		{DeclaredType: "Payslip", FileName: "p.pdf", ContentType: "application/pdf", Content: content},
	}
	p, db, _ := setupPipeline(t, client)
	e := seedEmployee(t, db, "emp-1")

	r := p.processEntity(context.Background(), e)
	if r.CertificatesStored != 2 {
		t.Fatalf("CertificatesStored = %d, want 2 (payslip is not a certificate)", r.CertificatesStored)
	}

	certs, err := db.ListCertificates(context.Background(), e.ID)
	if err != nil {
		t.Fatalf("list certificates: %v", err)
	}
	types := make([]string, len(certs))
	for i, c := range certs {
		types[i] = c.Type
	}
	want := []string{"Training Certificate", "Training Certificate 2"}
	if len(types) != 2 || types[0] != want[0] || types[1] != want[1] {
		t.Errorf("certificate types = %v, want %v", types, want)
	}
	if certs[0].StoredURL == certs[1].StoredURL {
		t.Errorf("duplicate certificates share stored URL %q", certs[0].StoredURL)
	}
}

func TestCertificateSuffixSkipsFailedSlots(t *testing.T) {
	// The first same-type attachment fails to decode; the second must take
	// the plain type name instead of leaving a gap and landing on "Type 2".
	client := newDocClient()
	content := base64.StdEncoding.EncodeToString([]byte("cert-data"))
	client.attachments["emp-1"] = []registry.Attachment{
		{DeclaredType: "Training Certificate", FileName: "a.pdf", ContentType: "application/pdf", Content: "%%%not-base64%%%"},
		{DeclaredType: "Training Certificate", FileName: "b.pdf", ContentType: "application/pdf", Content: content},
	}
	p, db, _ := setupPipeline(t, client)
	e := seedEmployee(t, db, "emp-1")

	r := p.processEntity(context.Background(), e)
	if r.CertificatesStored != 1 {
		t.Fatalf("CertificatesStored = %d, want 1", r.CertificatesStored)
	}
	if len(r.Errors) != 1 || !strings.Contains(r.Errors[0], "decode") {
		t.Errorf("Errors = %v, want one decode error", r.Errors)
	}

	certs, err := db.ListCertificates(context.Background(), e.ID)
	if err != nil {
		t.Fatalf("list certificates: %v", err)
	}
	if len(certs) != 1 || certs[0].Type != "Training Certificate" {
		t.Errorf("certificates = %+v, want a single \"Training Certificate\"", certs)
	}
}

func TestCertificateSkipWhenAlreadyStored(t *testing.T) {
	client := newDocClient()
	content := base64.StdEncoding.EncodeToString([]byte("cert-data"))
	client.attachments["emp-1"] = []registry.Attachment{
		{DeclaredType: "Education Diploma", FileName: "d.pdf", ContentType: "application/pdf", Content: content},
	}
	p, db, _ := setupPipeline(t, client)
	e := seedEmployee(t, db, "emp-1")

	first := p.processEntity(context.Background(), e)
	if first.CertificatesStored != 1 {
		t.Fatalf("first run CertificatesStored = %d, want 1", first.CertificatesStored)
	}
	second := p.processEntity(context.Background(), e)
	if second.CertificatesStored != 0 {
		t.Errorf("second run CertificatesStored = %d, want 0 (reused)", second.CertificatesStored)
	}

	certs, _ := db.ListCertificates(context.Background(), e.ID)
	if len(certs) != 1 {
		t.Errorf("certificates = %d, want 1", len(certs))
	}
}

func TestRunBatchAggregatesAndSnapshots(t *testing.T) {
	client := newDocClient()
	for i := 0; i < 5; i++ {
		addAllDocs(client, fmt.Sprintf("emp-%d", i))
	}
	client.failDoc("emp-3", string(models.DocContract), errors.New("timeout"))

	p, db, _ := setupPipeline(t, client)
	snaps, err := NewFileSnapshots(t.TempDir())
	if err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	p.snapshots = snaps
	p.cfg.SnapshotEvery = 1

	var mu sync.Mutex
	var events []progress.Event
	p.reporter = progress.ReporterFunc(func(e progress.Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})

	employees := make([]models.Employee, 5)
	for i := range employees {
		employees[i] = *seedEmployee(t, db, fmt.Sprintf("emp-%d", i))
	}

	summary, err := p.RunBatch(context.Background(), "inst-1", employees, 0)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if summary.Total != 5 || summary.Successful != 4 || summary.Partial != 1 || summary.Failed != 0 {
		t.Errorf("summary = %+v, want 4 successful 1 partial", summary)
	}
	if summary.DocumentsStored != 24 {
		t.Errorf("DocumentsStored = %d, want 24", summary.DocumentsStored)
	}

	mu.Lock()
	got := len(events)
	final := events[len(events)-1]
	mu.Unlock()
	if got != 5 {
		t.Errorf("progress events = %d, want 5", got)
	}
	if final.Percent != 100 || final.Phase != progress.PhaseDocuments {
		t.Errorf("final event = %+v, want documents phase at 100%%", final)
	}

	snap, err := snaps.Load(context.Background(), "inst-1")
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if snap.Offset != 5 {
		t.Errorf("snapshot offset = %d, want 5", snap.Offset)
	}
	if snap.Summary.Successful != 4 {
		t.Errorf("snapshot summary = %+v, want 4 successful", snap.Summary)
	}
}

func TestRunBatchResumeFromOffset(t *testing.T) {
	client := newDocClient()
	for i := 0; i < 4; i++ {
		addAllDocs(client, fmt.Sprintf("emp-%d", i))
	}
	p, db, _ := setupPipeline(t, client)

	employees := make([]models.Employee, 4)
	for i := range employees {
		employees[i] = *seedEmployee(t, db, fmt.Sprintf("emp-%d", i))
	}

	summary, err := p.RunBatch(context.Background(), "inst-1", employees, 2)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if len(summary.Results) != 2 {
		t.Fatalf("processed %d employees, want 2", len(summary.Results))
	}
	for _, call := range client.calls() {
		if strings.HasPrefix(call, "emp-0/") || strings.HasPrefix(call, "emp-1/") {
			t.Errorf("resumed run fetched skipped employee: %s", call)
		}
	}
}

func TestRunBatchContextCancellation(t *testing.T) {
	client := newDocClient()
	addAllDocs(client, "emp-0")
	p, db, _ := setupPipeline(t, client)
	employees := []models.Employee{*seedEmployee(t, db, "emp-0")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.RunBatch(ctx, "inst-1", employees, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestIsCertificateType(t *testing.T) {
	tests := []struct {
		declared string
		want     bool
	}{
		{"Training Certificate", true},
		{"certification of completion", true},
		{"Educational Record", true},
		{"Professional Qualification", true},
		{"Payslip", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isCertificateType(tt.declared); got != tt.want {
			t.Errorf("isCertificateType(%q) = %v, want %v", tt.declared, got, tt.want)
		}
	}
}

func TestExtensionFor(t *testing.T) {
	tests := []struct {
		contentType string
		fileName    string
		want        string
	}{
		{"application/pdf", "contract.pdf", ".pdf"},
		{"application/pdf", "", ".pdf"},
		{"image/jpeg", "", ".jpg"},
		{"image/png; charset=binary", "", ".png"},
		{"application/octet-stream", "", ".bin"},
		{"", "scan.TIFF", ".tiff"},
	}
	for _, tt := range tests {
		if got := extensionFor(tt.contentType, tt.fileName); got != tt.want {
			t.Errorf("extensionFor(%q, %q) = %q, want %q", tt.contentType, tt.fileName, got, tt.want)
		}
	}
}
