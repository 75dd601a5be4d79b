// Regsync - HR Registry Synchronization Service
// Copyright 2026 D. Vicanovic (dvicanovic)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dvicanovic/regsync

// Package documents fetches employee document binaries and certificate
// attachments from the Source System and writes them to the object store.
//
// The pipeline runs over already-persisted employees, outside the job queue.
// Two modes share the per-entity logic: a parallel batch mode for full
// institution runs and a sequential mode for re-driving previously failed
// employees. Every write is keyed and overwrite-safe, so interrupted runs
// can simply be repeated.
package documents

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/dvicanovic/regsync/internal/config"
	"github.com/dvicanovic/regsync/internal/logging"
	"github.com/dvicanovic/regsync/internal/metrics"
	"github.com/dvicanovic/regsync/internal/models"
	"github.com/dvicanovic/regsync/internal/objectstore"
	"github.com/dvicanovic/regsync/internal/progress"
	"github.com/dvicanovic/regsync/internal/registry"
	"github.com/dvicanovic/regsync/internal/store"
)

// maxEntityErrors bounds the per-entity error list; overflow is counted
// instead of appended so huge failures stay readable.
const maxEntityErrors = 5

// Outcome classifies one employee's document run.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailed  Outcome = "failed"
)

// EntityResult is the itemized outcome for one employee.
type EntityResult struct {
	EmployeeID         string   `json:"employee_id"`
	NaturalID          string   `json:"natural_id"`
	Outcome            Outcome  `json:"outcome"`
	DocumentsStored    int      `json:"documents_stored"`
	DocumentsSkipped   int      `json:"documents_skipped"`
	CertificatesStored int      `json:"certificates_stored"`
	Errors             []string `json:"errors,omitempty"`
	ErrorsOmitted      int      `json:"errors_omitted,omitempty"`
	Message            string   `json:"message,omitempty"`
}

func (r *EntityResult) addError(msg string) {
	if len(r.Errors) < maxEntityErrors {
		r.Errors = append(r.Errors, msg)
		return
	}
	r.ErrorsOmitted++
}

func (r *EntityResult) finalize() {
	switch {
	case len(r.Errors) == 0:
		r.Outcome = OutcomeSuccess
	case r.DocumentsStored+r.DocumentsSkipped+r.CertificatesStored > 0:
		r.Outcome = OutcomePartial
	default:
		r.Outcome = OutcomeFailed
	}
	r.Message = fmt.Sprintf("%d stored, %d skipped, %d certificates, %d errors",
		r.DocumentsStored, r.DocumentsSkipped, r.CertificatesStored,
		len(r.Errors)+r.ErrorsOmitted)
}

// BatchSummary aggregates a whole pipeline run.
type BatchSummary struct {
	Total              int            `json:"total"`
	Successful         int            `json:"successful"`
	Partial            int            `json:"partial"`
	Failed             int            `json:"failed"`
	DocumentsStored    int            `json:"documents_stored"`
	CertificatesStored int            `json:"certificates_stored"`
	DurationMs         int64          `json:"duration_ms"`
	Results            []EntityResult `json:"results,omitempty"`
}

func (s *BatchSummary) record(r EntityResult) {
	switch r.Outcome {
	case OutcomeSuccess:
		s.Successful++
	case OutcomePartial:
		s.Partial++
	default:
		s.Failed++
	}
	s.DocumentsStored += r.DocumentsStored
	s.CertificatesStored += r.CertificatesStored
	s.Results = append(s.Results, r)
}

// Datastore is the persistence surface the pipeline needs. *store.DB
// satisfies it.
type Datastore interface {
	SetDocumentURL(ctx context.Context, employeeID string, t models.DocumentType, url string) error
	FindCertificate(ctx context.Context, ownerID, certType string) (*models.Certificate, error)
	UpsertCertificate(ctx context.Context, c *models.Certificate) error
}

// Pipeline fetches documents and certificates for persisted employees.
type Pipeline struct {
	client    registry.ClientInterface
	db        Datastore
	objects   objectstore.Store
	cfg       *config.DocumentsConfig
	reporter  progress.Reporter
	snapshots Snapshotter
}

// NewPipeline wires a document pipeline. Reporter and snapshotter may be
// nil; nil disables the respective feature.
func NewPipeline(
	client registry.ClientInterface,
	db Datastore,
	objects objectstore.Store,
	cfg *config.DocumentsConfig,
	reporter progress.Reporter,
	snapshots Snapshotter,
) *Pipeline {
	if reporter == nil {
		reporter = progress.Nop()
	}
	return &Pipeline{
		client:    client,
		db:        db,
		objects:   objects,
		cfg:       cfg,
		reporter:  reporter,
		snapshots: snapshots,
	}
}

// RunBatch processes employees in concurrent chunks of the configured batch
// size with a cooldown between chunks. offset skips already-processed
// employees when resuming from a snapshot. On context cancellation the
// summary covers the work completed so far; finished writes are kept.
func (p *Pipeline) RunBatch(ctx context.Context, institutionID string, employees []models.Employee, offset int) (*BatchSummary, error) {
	start := time.Now()
	summary := &BatchSummary{Total: len(employees)}
	if offset < 0 {
		offset = 0
	}
	if offset > len(employees) {
		offset = len(employees)
	}

	batchSize := p.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}

	batches := 0
	for i := offset; i < len(employees); i += batchSize {
		if err := ctx.Err(); err != nil {
			summary.DurationMs = time.Since(start).Milliseconds()
			return summary, err
		}

		end := i + batchSize
		if end > len(employees) {
			end = len(employees)
		}
		chunk := employees[i:end]
		metrics.DocumentBatchSize.Observe(float64(len(chunk)))

		results := make([]EntityResult, len(chunk))
		var wg sync.WaitGroup
		for j := range chunk {
			wg.Add(1)
			go func(j int) {
				defer wg.Done()
				results[j] = p.processEntity(ctx, &chunk[j])
			}(j)
		}
		wg.Wait()

		for j := range results {
			summary.record(results[j])
			p.report(i+j+1, len(employees), results[j])
		}

		batches++
		if p.snapshots != nil && p.cfg.SnapshotEvery > 0 && batches%p.cfg.SnapshotEvery == 0 {
			p.saveSnapshot(ctx, institutionID, end, summary)
		}

		if end < len(employees) && p.cfg.BatchCooldown > 0 {
			select {
			case <-time.After(p.cfg.BatchCooldown):
			case <-ctx.Done():
				summary.DurationMs = time.Since(start).Milliseconds()
				return summary, ctx.Err()
			}
		}
	}

	summary.DurationMs = time.Since(start).Milliseconds()
	if p.snapshots != nil {
		p.saveSnapshot(ctx, institutionID, len(employees), summary)
	}
	return summary, nil
}

// RunSequential processes employees one at a time with a delay between
// entities. Used to re-drive previously failed employees.
func (p *Pipeline) RunSequential(ctx context.Context, employees []models.Employee) (*BatchSummary, error) {
	start := time.Now()
	summary := &BatchSummary{Total: len(employees)}

	for i := range employees {
		if err := ctx.Err(); err != nil {
			summary.DurationMs = time.Since(start).Milliseconds()
			return summary, err
		}

		r := p.processEntity(ctx, &employees[i])
		summary.record(r)
		p.report(i+1, len(employees), r)

		if i+1 < len(employees) && p.cfg.RetryDelay > 0 {
			select {
			case <-time.After(p.cfg.RetryDelay):
			case <-ctx.Done():
				summary.DurationMs = time.Since(start).Milliseconds()
				return summary, ctx.Err()
			}
		}
	}

	summary.DurationMs = time.Since(start).Milliseconds()
	return summary, nil
}

// processEntity runs the per-employee algorithm: fill the fixed document
// slots, then scan attachments for certificates. Failures for one item
// never abort the siblings.
func (p *Pipeline) processEntity(ctx context.Context, e *models.Employee) EntityResult {
	r := EntityResult{EmployeeID: e.ID, NaturalID: e.NaturalID}

	for _, t := range models.CoreDocumentTypes() {
		p.fetchCoreDocument(ctx, e, t, &r)
	}
	p.fetchCertificates(ctx, e, &r)

	r.finalize()
	return r
}

func (p *Pipeline) fetchCoreDocument(ctx context.Context, e *models.Employee, t models.DocumentType, r *EntityResult) {
	// Idempotence check: a URL already under our storage prefix means the
	// binary was stored on an earlier run. No network call in that case.
	if existing := e.DocumentURL(t); strings.HasPrefix(existing, p.objects.BaseURL()) {
		r.DocumentsSkipped++
		metrics.DocumentsFetched.WithLabelValues(string(t), "skipped").Inc()
		return
	}

	start := time.Now()
	payload, err := p.client.FetchDocument(ctx, e.NaturalID, string(t))
	if err != nil {
		r.addError(fmt.Sprintf("%s: fetch: %v", t, err))
		metrics.RecordDocumentFetch(string(t), "failed", time.Since(start))
		return
	}
	if payload == nil {
		// Some employees legitimately have no document for a slot.
		metrics.RecordDocumentFetch(string(t), "missing", time.Since(start))
		return
	}

	data, err := base64.StdEncoding.DecodeString(payload.Content)
	if err != nil {
		r.addError(fmt.Sprintf("%s: decode: %v", t, err))
		metrics.RecordDocumentFetch(string(t), "failed", time.Since(start))
		return
	}

	objectPath := fmt.Sprintf("%s_%s%s", e.NaturalID, t, extensionFor(payload.ContentType, payload.FileName))
	url, err := p.objects.Put(ctx, objectPath, payload.ContentType, data)
	if err != nil {
		r.addError(fmt.Sprintf("%s: store: %v", t, err))
		metrics.RecordDocumentFetch(string(t), "failed", time.Since(start))
		return
	}

	if err := p.db.SetDocumentURL(ctx, e.ID, t, url); err != nil {
		r.addError(fmt.Sprintf("%s: persist url: %v", t, err))
		metrics.RecordDocumentFetch(string(t), "failed", time.Since(start))
		return
	}

	e.SetDocumentURL(t, url)
	r.DocumentsStored++
	metrics.RecordDocumentFetch(string(t), "stored", time.Since(start))
	metrics.DocumentBytesStored.Add(float64(len(data)))
}

func (p *Pipeline) fetchCertificates(ctx context.Context, e *models.Employee, r *EntityResult) {
	start := time.Now()
	attachments, err := p.client.FetchAttachments(ctx, e.NaturalID)
	if err != nil {
		r.addError(fmt.Sprintf("attachments: fetch: %v", err))
		metrics.RecordDocumentFetch("certificate", "failed", time.Since(start))
		return
	}

	// seen counts declared types already persisted (or skipped as already
	// stored) for this owner in this run, driving the "Type", "Type 2", ...
	// suffixing. Attachments that fail to store do not advance the counter,
	// so the next same-type attachment reuses the open slot.
	seen := make(map[string]int)

	for _, att := range attachments {
		declared := strings.TrimSpace(att.DeclaredType)
		if !isCertificateType(declared) {
			continue
		}

		name := declared
		if n := seen[declared]; n > 0 {
			name = fmt.Sprintf("%s %d", declared, n+1)
		}

		existing, err := p.db.FindCertificate(ctx, e.ID, name)
		switch {
		case err == nil && strings.HasPrefix(existing.StoredURL, p.objects.BaseURL()):
			seen[declared]++
			metrics.DocumentsFetched.WithLabelValues("certificate", "skipped").Inc()
			continue
		case err != nil && !errors.Is(err, store.ErrNotFound):
			r.addError(fmt.Sprintf("certificate %q: lookup: %v", name, err))
			metrics.DocumentsFetched.WithLabelValues("certificate", "failed").Inc()
			continue
		}

		data, err := base64.StdEncoding.DecodeString(att.Content)
		if err != nil {
			r.addError(fmt.Sprintf("certificate %q: decode: %v", name, err))
			metrics.DocumentsFetched.WithLabelValues("certificate", "failed").Inc()
			continue
		}

		objectPath := fmt.Sprintf("%s_certificate_%s%s", e.NaturalID, slug(name), extensionFor(att.ContentType, att.FileName))
		url, err := p.objects.Put(ctx, objectPath, att.ContentType, data)
		if err != nil {
			r.addError(fmt.Sprintf("certificate %q: store: %v", name, err))
			metrics.DocumentsFetched.WithLabelValues("certificate", "failed").Inc()
			continue
		}

		now := time.Now().UTC()
		cert := &models.Certificate{
			OwnerID:   e.ID,
			Type:      name,
			StoredURL: url,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := p.db.UpsertCertificate(ctx, cert); err != nil {
			r.addError(fmt.Sprintf("certificate %q: persist: %v", name, err))
			metrics.DocumentsFetched.WithLabelValues("certificate", "failed").Inc()
			continue
		}

		seen[declared]++
		r.CertificatesStored++
		metrics.DocumentsFetched.WithLabelValues("certificate", "stored").Inc()
		metrics.DocumentBytesStored.Add(float64(len(data)))
	}
}

func (p *Pipeline) report(current, total int, r EntityResult) {
	p.reporter.Report(progress.Event{
		Phase:    progress.PhaseDocuments,
		Current:  current,
		Total:    total,
		Percent:  progress.PercentOf(current, total),
		Employee: r.NaturalID,
		Status:   string(r.Outcome),
		Message:  r.Message,
	})
}

func (p *Pipeline) saveSnapshot(ctx context.Context, institutionID string, offset int, summary *BatchSummary) {
	snap := &Snapshot{
		InstitutionID: institutionID,
		Offset:        offset,
		Summary:       *summary,
		UpdatedAt:     time.Now().UTC(),
	}
	// Snapshots only speed up resumes; losing one is not fatal.
	snap.Summary.Results = nil
	if err := p.snapshots.Save(ctx, snap); err != nil {
		logging.Warn().
			Err(err).
			Str("institution_id", institutionID).
			Int("offset", offset).
			Msg("Failed to save document progress snapshot")
	}
}

// isCertificateType reports whether a declared attachment type names a
// qualification the pipeline should store as a certificate.
func isCertificateType(declared string) bool {
	l := strings.ToLower(declared)
	if l == "" {
		return false
	}
	return strings.Contains(l, "certif") ||
		strings.Contains(l, "educat") ||
		strings.Contains(l, "qualif")
}

// extensionFor picks a file extension from the source metadata, preferring
// the declared file name over the content type.
func extensionFor(contentType, fileName string) string {
	if ext := path.Ext(fileName); ext != "" {
		return strings.ToLower(ext)
	}
	switch strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0])) {
	case "application/pdf":
		return ".pdf"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/tiff":
		return ".tif"
	default:
		return ".bin"
	}
}

// slug normalizes a certificate name into an object-store path segment.
func slug(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
