// Evlock - Inspection Evidence Credential Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/evlock

package eventstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tomtom215/evlock/internal/models"
)

// Batch is one open transaction covering every relational write of a
// pipeline batch: change-log rows, credential rows, and the watermark
// advances. Nothing is visible to readers until Commit.
type Batch struct {
	tx pgx.Tx
}

// BeginBatch opens the batch transaction.
func (s *Store) BeginBatch(ctx context.Context) (*Batch, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("eventstore: begin batch: %w", err)
	}
	return &Batch{tx: tx}, nil
}

// RecordChange appends one audit row to event_history_log. Every
// attempted object gets a row, successes and failures alike.
func (b *Batch) RecordChange(ctx context.Context, entry models.ChangeLogEntry) error {
	_, err := b.tx.Exec(ctx, `
		INSERT INTO event_history_log (
			system_type, record_kind, project_id, project_name,
			object_id, object_date, upload_date, upload_hash,
			process_date, process_success, process_msg
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.SystemType,
		string(entry.Kind),
		nullIfEmpty(entry.ProjectID),
		nullIfEmpty(entry.ProjectName),
		entry.ObjectID,
		nullIfZero(entry.ObjectDate),
		nullIfZero(entry.UploadDate),
		nullIfEmpty(entry.UploadHash),
		entry.ProcessDate,
		entry.ProcessSuccess,
		nullIfEmpty(entry.ProcessMsg),
	)
	if err != nil {
		return fmt.Errorf("eventstore: record change %s/%s: %w", entry.Kind, entry.ObjectID, err)
	}
	return nil
}

// RecordCredential inserts one credential row under a savepoint. A
// violation of the credential-hash unique index rolls back to the
// savepoint and reports OutcomeDuplicateSkipped, leaving the enclosing
// transaction healthy. Any other failure is returned as-is and poisons
// the batch.
func (b *Batch) RecordCredential(ctx context.Context, entry models.CredentialLogEntry) (models.InsertOutcome, error) {
	sp, err := b.tx.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("eventstore: savepoint: %w", err)
	}

	_, err = sp.Exec(ctx, `
		INSERT INTO credential_log (
			system_type, source_kind, source_id, project_id, project_name,
			credential_type, credential_id, schema_name, schema_version,
			credential_json, credential_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.SystemType,
		string(entry.SourceKind),
		entry.SourceID,
		nullIfEmpty(entry.ProjectID),
		nullIfEmpty(entry.ProjectName),
		string(entry.CredentialType),
		entry.CredentialID,
		entry.SchemaName,
		entry.SchemaVersion,
		entry.CredentialJSON,
		entry.CredentialHash,
	)
	if err != nil {
		rollbackErr := sp.Rollback(ctx)
		if isUniqueViolation(err) {
			if rollbackErr != nil {
				return 0, fmt.Errorf("eventstore: rollback to savepoint: %w", rollbackErr)
			}
			return models.OutcomeDuplicateSkipped, nil
		}
		return 0, fmt.Errorf("eventstore: record credential %s: %w", entry.CredentialID, err)
	}

	if err := sp.Commit(ctx); err != nil {
		return 0, fmt.Errorf("eventstore: release savepoint: %w", err)
	}
	return models.OutcomeInserted, nil
}

// AdvanceWatermark appends a new cursor row for (systemType, kind). The
// table is append-only; the newest entry_date wins on read.
func (b *Batch) AdvanceWatermark(ctx context.Context, systemType string, kind models.Kind, objectDate time.Time) error {
	_, err := b.tx.Exec(ctx, `
		INSERT INTO last_event (system_type, record_kind, object_date)
		VALUES ($1, $2, $3)`,
		systemType, string(kind), objectDate,
	)
	if err != nil {
		return fmt.Errorf("eventstore: advance watermark %s/%s: %w", systemType, kind, err)
	}
	return nil
}

// Commit makes the whole batch durable.
func (b *Batch) Commit(ctx context.Context) error {
	if err := b.tx.Commit(ctx); err != nil {
		return fmt.Errorf("eventstore: commit batch: %w", err)
	}
	return nil
}

// Rollback discards the whole batch. Calling it after Commit is a no-op.
func (b *Batch) Rollback(ctx context.Context) error {
	err := b.tx.Rollback(ctx)
	if err != nil && err != pgx.ErrTxClosed {
		return fmt.Errorf("eventstore: rollback batch: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullIfZero(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
