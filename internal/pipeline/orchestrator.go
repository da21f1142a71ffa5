// Evlock - Inspection Evidence Credential Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/evlock

// Package pipeline contains the change-detection, tree-assembly, and
// credential-generation engine: scanner, assembler, generator, and the
// orchestrator that runs them as one transactional batch.
package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tomtom215/evlock/internal/config"
	"github.com/tomtom215/evlock/internal/logging"
	"github.com/tomtom215/evlock/internal/metrics"
	"github.com/tomtom215/evlock/internal/models"
)

// State is the orchestrator's position in the batch cycle.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StateAssembling
	StateGenerating
	StatePersisting
	StateWatermarkAdvance
	StateFailed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateAssembling:
		return "assembling"
	case StateGenerating:
		return "generating"
	case StatePersisting:
		return "persisting"
	case StateWatermarkAdvance:
		return "watermark_advance"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// BatchWriter is one open log-store transaction covering every relational
// write of a batch.
type BatchWriter interface {
	RecordChange(ctx context.Context, entry models.ChangeLogEntry) error
	RecordCredential(ctx context.Context, entry models.CredentialLogEntry) (models.InsertOutcome, error)
	AdvanceWatermark(ctx context.Context, systemType string, kind models.Kind, objectDate time.Time) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// LogStore opens batch transactions.
type LogStore interface {
	BeginBatch(ctx context.Context) (BatchWriter, error)
}

// Locker serializes batches per system type. The release function must be
// called when the batch finishes, whatever its outcome.
type Locker interface {
	AcquireBatchLock(ctx context.Context, systemType string) (release func(), err error)
}

// Notifier publishes minted credentials after the batch commits. Only
// inserted credentials are announced, never duplicate skips.
type Notifier interface {
	CredentialMinted(ctx context.Context, cred models.Credential) error
}

// BatchResult summarizes one completed batch.
type BatchResult struct {
	Scanned     int                       `json:"scanned"`
	Folded      int                       `json:"folded"`
	Dropped     int                       `json:"dropped"`
	Credentials int                       `json:"credentials"`
	Inserted    int                       `json:"inserted"`
	Duplicates  int                       `json:"duplicates"`
	MaxDates    map[models.Kind]time.Time `json:"max_dates,omitempty"`
	Duration    time.Duration             `json:"duration"`
}

// Orchestrator sequences scan, assemble, generate, persist, and watermark
// advance as one logical batch under one relational transaction. Batches
// against the same system type are serialized by the log store's advisory
// lock; within a process RunBatch is additionally safe to call from
// multiple goroutines.
type Orchestrator struct {
	scanner   *Scanner
	assembler *Assembler
	generator *Generator
	store     LogStore
	locker    Locker
	notifier  Notifier
	cfg       config.PipelineConfig
	state     atomic.Int32
}

// NewOrchestrator wires an orchestrator. notifier may be nil.
func NewOrchestrator(scanner *Scanner, assembler *Assembler, generator *Generator, store LogStore, locker Locker, notifier Notifier, cfg config.PipelineConfig) *Orchestrator {
	return &Orchestrator{
		scanner:   scanner,
		assembler: assembler,
		generator: generator,
		store:     store,
		locker:    locker,
		notifier:  notifier,
		cfg:       cfg,
	}
}

// State reports the current batch-cycle state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
	metrics.PipelineState.Set(float64(s))
}

// RunBatch executes one full pass of the batch cycle. A batch already in
// progress elsewhere for the same system type is not an error to retry
// immediately; the caller sees the lock error and tries again next tick.
func (o *Orchestrator) RunBatch(ctx context.Context) (*BatchResult, error) {
	release, err := o.locker.AcquireBatchLock(ctx, o.cfg.SystemType)
	if err != nil {
		metrics.BatchesTotal.WithLabelValues("skipped").Inc()
		return nil, err
	}
	defer release()

	start := time.Now()
	result, err := o.runLocked(ctx)
	if err != nil {
		o.setState(StateFailed)
		metrics.ObserveBatch(time.Since(start), "failed")
		logging.Err(err).Str("system_type", o.cfg.SystemType).Msg("Batch failed")
		o.setState(StateIdle)
		return nil, err
	}

	result.Duration = time.Since(start)
	metrics.ObserveBatch(result.Duration, "success")
	o.setState(StateIdle)
	logging.Info().
		Int("scanned", result.Scanned).
		Int("folded", result.Folded).
		Int("dropped", result.Dropped).
		Int("inserted", result.Inserted).
		Int("duplicates", result.Duplicates).
		Dur("duration", result.Duration).
		Msg("Batch complete")
	return result, nil
}

func (o *Orchestrator) runLocked(ctx context.Context) (*BatchResult, error) {
	// Scan, assemble, and generate are in-memory and write nothing; on
	// failure the whole batch is retried from the top.
	o.setState(StateScanning)
	records, err := o.scanner.Scan(ctx)
	if err != nil {
		return nil, err
	}

	o.setState(StateAssembling)
	assembled := o.assembler.Assemble(records)

	o.setState(StateGenerating)
	creds, err := o.generator.Generate(ctx, assembled.Tree)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{
		Scanned:     len(records),
		Folded:      len(assembled.Folded),
		Dropped:     len(assembled.Dropped),
		Credentials: len(creds),
	}

	o.setState(StatePersisting)
	batch, err := o.store.BeginBatch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSinkUnavailable, err)
	}
	defer func() {
		if rbErr := batch.Rollback(ctx); rbErr != nil {
			logging.Warn().Err(rbErr).Msg("Batch rollback failed")
		}
	}()

	inserted, err := o.persist(ctx, batch, assembled, creds, result)
	if err != nil {
		return nil, err
	}

	o.setState(StateWatermarkAdvance)
	result.MaxDates = maxObjectDates(assembled.Folded)
	for kind, maxDate := range result.MaxDates {
		if err := batch.AdvanceWatermark(ctx, o.cfg.SystemType, kind, maxDate); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSinkUnavailable, err)
		}
	}

	if err := batch.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: commit: %w", ErrSinkUnavailable, err)
	}

	for kind, maxDate := range result.MaxDates {
		metrics.SetWatermark(kind.Collection(), maxDate)
	}
	o.announce(ctx, inserted)
	return result, nil
}

// persist writes the change-log rows for every folded and dropped record
// and the credential rows. Returns the credentials actually inserted.
func (o *Orchestrator) persist(ctx context.Context, batch BatchWriter, assembled *AssembleResult, creds []models.Credential, result *BatchResult) ([]models.Credential, error) {
	now := time.Now()

	for _, rec := range assembled.Folded {
		if err := batch.RecordChange(ctx, changeEntry(rec, now, models.ProcessSuccessYes, "")); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSinkUnavailable, err)
		}
	}
	for _, dropped := range assembled.Dropped {
		if err := batch.RecordChange(ctx, changeEntry(dropped.Record, now, models.ProcessSuccessNo, dropped.Reason)); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSinkUnavailable, err)
		}
	}

	var inserted []models.Credential
	for _, cred := range creds {
		outcome, err := batch.RecordCredential(ctx, credentialEntry(o.cfg.SystemType, cred))
		if err != nil {
			return nil, fmt.Errorf("%w: credential %s: %w", ErrPersistenceConflict, cred.ID, err)
		}
		metrics.CredentialsRecorded.WithLabelValues(string(cred.Type), outcome.String()).Inc()
		switch outcome {
		case models.OutcomeInserted:
			result.Inserted++
			inserted = append(inserted, cred)
		case models.OutcomeDuplicateSkipped:
			result.Duplicates++
			logging.Debug().
				Str("credential_type", string(cred.Type)).
				Str("credential_id", cred.ID).
				Msg("Duplicate credential skipped")
		}
	}
	return inserted, nil
}

// announce publishes minted credentials post-commit. Publish failures are
// logged, never propagated; the durable rows are the source of truth.
func (o *Orchestrator) announce(ctx context.Context, inserted []models.Credential) {
	if o.notifier == nil {
		return
	}
	for _, cred := range inserted {
		if err := o.notifier.CredentialMinted(ctx, cred); err != nil {
			logging.Warn().
				Err(err).
				Str("credential_id", cred.ID).
				Msg("Credential notification failed")
		}
	}
}

// maxObjectDates computes, per collection kind, the maximum objectDate
// among the folded records.
func maxObjectDates(folded []models.SourceRecord) map[models.Kind]time.Time {
	maxDates := make(map[models.Kind]time.Time)
	for _, rec := range folded {
		if rec.ObjectDate.IsZero() {
			continue
		}
		if current, ok := maxDates[rec.Kind]; !ok || rec.ObjectDate.After(current) {
			maxDates[rec.Kind] = rec.ObjectDate
		}
	}
	return maxDates
}

func changeEntry(rec models.SourceRecord, processDate time.Time, success, msg string) models.ChangeLogEntry {
	return models.ChangeLogEntry{
		SystemType:     rec.SystemType,
		Kind:           rec.Kind,
		ProjectID:      rec.ProjectID,
		ProjectName:    rec.ProjectName,
		ObjectID:       rec.ObjectID,
		ObjectDate:     rec.ObjectDate,
		UploadDate:     rec.UploadDate,
		UploadHash:     rec.UploadHash,
		ProcessDate:    processDate,
		ProcessSuccess: success,
		ProcessMsg:     msg,
	}
}

func credentialEntry(systemType string, cred models.Credential) models.CredentialLogEntry {
	return models.CredentialLogEntry{
		SystemType:     systemType,
		SourceKind:     cred.SourceKind,
		SourceID:       cred.SourceID,
		ProjectID:      cred.ProjectID,
		ProjectName:    cred.ProjectName,
		CredentialType: cred.Type,
		CredentialID:   cred.ID,
		SchemaName:     cred.SchemaName,
		SchemaVersion:  cred.SchemaVersion,
		CredentialJSON: cred.CanonicalJSON,
		CredentialHash: cred.Hash,
	}
}
