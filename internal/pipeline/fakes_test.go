// Evlock - Inspection Evidence Credential Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/evlock

package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tomtom215/evlock/internal/config"
	"github.com/tomtom215/evlock/internal/models"
)

// testPipelineConfig returns the pipeline settings the tests run under.
func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		SystemType:            "EAO_EL",
		Collections:           []string{"Inspection", "Observation", "Audio", "Photo", "Video"},
		BatchSize:             3000,
		Timezone:              "America/Los_Angeles",
		SiteLocation:          "Vancouver",
		SiteEntityStatus:      "ACT",
		BackfillConcurrency:   4,
		BackfillRatePerSecond: 0,
	}
}

func testSchemas() config.SchemasConfig {
	return config.SchemasConfig{
		Site:        config.SchemaRef{Name: "inspection-site.eao-evidence-locker", Version: "1.0.0"},
		Inspection:  config.SchemaRef{Name: "safety-inspection.eao-evidence-locker", Version: "1.0.0"},
		Observation: config.SchemaRef{Name: "inspection-document.eao-evidence-locker", Version: "1.0.0"},
	}
}

// fakeLogStore is an in-memory stand-in for the relational log store. It
// implements LogStore, WatermarkReader, and SiteCredentialChecker with
// the same commit and hash-dedup semantics as the real store.
type fakeLogStore struct {
	mu          sync.Mutex
	hashes      map[string]bool
	credentials []models.CredentialLogEntry
	changes     []models.ChangeLogEntry
	watermarks  map[string]time.Time

	// failCredentialAt makes the Nth RecordCredential call of each batch
	// (1-based) fail with errCredentialWrite. Zero disables injection.
	failCredentialAt int
}

var errCredentialWrite = errors.New("credential insert failed")

func newFakeLogStore() *fakeLogStore {
	return &fakeLogStore{
		hashes:     make(map[string]bool),
		watermarks: make(map[string]time.Time),
	}
}

func (s *fakeLogStore) BeginBatch(context.Context) (BatchWriter, error) {
	return &fakeBatch{store: s, pendingHashes: make(map[string]bool)}, nil
}

func (s *fakeLogStore) Watermark(_ context.Context, systemType string, kind models.Kind) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wm, ok := s.watermarks[systemType+"/"+string(kind)]
	return wm, ok, nil
}

func (s *fakeLogStore) HasSiteCredential(_ context.Context, systemType, projectID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cred := range s.credentials {
		if cred.SystemType == systemType &&
			cred.CredentialType == models.CredentialSite &&
			cred.ProjectID == projectID {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeLogStore) clearWatermarks() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watermarks = make(map[string]time.Time)
}

type watermarkOp struct {
	key  string
	date time.Time
}

type fakeBatch struct {
	store         *fakeLogStore
	pendingHashes map[string]bool
	pendingCreds  []models.CredentialLogEntry
	pendingChange []models.ChangeLogEntry
	pendingMarks  []watermarkOp
	credAttempts  int
	done          bool
}

func (b *fakeBatch) RecordChange(_ context.Context, entry models.ChangeLogEntry) error {
	b.pendingChange = append(b.pendingChange, entry)
	return nil
}

func (b *fakeBatch) RecordCredential(_ context.Context, entry models.CredentialLogEntry) (models.InsertOutcome, error) {
	b.credAttempts++
	b.store.mu.Lock()
	committed := b.store.hashes[entry.CredentialHash]
	failAt := b.store.failCredentialAt
	b.store.mu.Unlock()
	if failAt > 0 && b.credAttempts == failAt {
		return 0, errCredentialWrite
	}
	if committed || b.pendingHashes[entry.CredentialHash] {
		return models.OutcomeDuplicateSkipped, nil
	}
	b.pendingHashes[entry.CredentialHash] = true
	b.pendingCreds = append(b.pendingCreds, entry)
	return models.OutcomeInserted, nil
}

func (b *fakeBatch) AdvanceWatermark(_ context.Context, systemType string, kind models.Kind, objectDate time.Time) error {
	b.pendingMarks = append(b.pendingMarks, watermarkOp{key: systemType + "/" + string(kind), date: objectDate})
	return nil
}

func (b *fakeBatch) Commit(context.Context) error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	for hash := range b.pendingHashes {
		b.store.hashes[hash] = true
	}
	b.store.credentials = append(b.store.credentials, b.pendingCreds...)
	b.store.changes = append(b.store.changes, b.pendingChange...)
	for _, op := range b.pendingMarks {
		b.store.watermarks[op.key] = op.date
	}
	b.done = true
	return nil
}

func (b *fakeBatch) Rollback(context.Context) error {
	// Rollback after commit is a no-op, matching the real batch.
	b.done = true
	return nil
}

// fakeLocker hands out the batch lock unless held is set.
type fakeLocker struct {
	mu   sync.Mutex
	held bool
}

var errLockHeld = errors.New("batch already in progress")

func (l *fakeLocker) AcquireBatchLock(context.Context, string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return nil, errLockHeld
	}
	l.held = true
	return func() {
		l.mu.Lock()
		l.held = false
		l.mu.Unlock()
	}, nil
}

// recordingNotifier collects announced credentials.
type recordingNotifier struct {
	mu    sync.Mutex
	creds []models.Credential
	err   error
}

func (n *recordingNotifier) CredentialMinted(_ context.Context, cred models.Credential) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.creds = append(n.creds, cred)
	return nil
}
