// Evlock - Inspection Evidence Credential Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/evlock

package eventstore

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/evlock/internal/logging"
)

// schemaStatements creates the three log tables and their indexes. All
// columns are declared up front; there is no incremental migration
// machinery at this stage of the project.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS last_event (
		record_id   BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		system_type TEXT NOT NULL,
		record_kind TEXT NOT NULL,
		object_date TIMESTAMPTZ NOT NULL,
		entry_date  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE INDEX IF NOT EXISTS le_cursor_index
		ON last_event (system_type, record_kind, entry_date DESC)`,

	`CREATE TABLE IF NOT EXISTS event_history_log (
		record_id       BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		system_type     TEXT NOT NULL,
		record_kind     TEXT NOT NULL,
		project_id      TEXT,
		project_name    TEXT,
		object_id       TEXT NOT NULL,
		object_date     TIMESTAMPTZ,
		upload_date     TIMESTAMPTZ,
		upload_hash     TEXT,
		process_date    TIMESTAMPTZ NOT NULL,
		process_success CHAR(1) NOT NULL,
		process_msg     TEXT
	)`,

	`CREATE INDEX IF NOT EXISTS ehl_object_index
		ON event_history_log (system_type, record_kind, object_id)`,

	`CREATE INDEX IF NOT EXISTS ehl_outcome_index
		ON event_history_log (system_type, process_success, process_date DESC)`,

	`CREATE TABLE IF NOT EXISTS credential_log (
		record_id       BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		system_type     TEXT NOT NULL,
		source_kind     TEXT NOT NULL,
		source_id       TEXT NOT NULL,
		project_id      TEXT,
		project_name    TEXT,
		credential_type TEXT NOT NULL,
		credential_id   TEXT NOT NULL,
		schema_name     TEXT NOT NULL,
		schema_version  TEXT NOT NULL,
		credential_json JSONB NOT NULL,
		credential_hash TEXT NOT NULL,
		entry_date      TIMESTAMPTZ NOT NULL DEFAULT now(),
		process_date    TIMESTAMPTZ,
		process_success CHAR(1),
		process_msg     TEXT
	)`,

	// The dedup anchor. RecordCredential absorbs violations of this
	// index via savepoint rollback.
	`CREATE UNIQUE INDEX IF NOT EXISTS cl_hash_index
		ON credential_log (credential_hash)`,

	`CREATE INDEX IF NOT EXISTS cl_project_index
		ON credential_log (system_type, credential_type, project_id)`,

	`CREATE INDEX IF NOT EXISTS cl_outstanding_index
		ON credential_log (system_type, entry_date)
		WHERE process_date IS NULL`,
}

// Migrate creates the schema if it does not exist. Safe to run on every
// startup.
func (s *Store) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("eventstore: migrate: %w", err)
		}
	}
	logging.Info().Int("statements", len(schemaStatements)).Msg("Event store schema ensured")
	return nil
}
