// Evlock - Inspection Evidence Credential Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/evlock

package eventstore

import (
	"context"
	"fmt"

	"github.com/tomtom215/evlock/internal/models"
)

// Status summarizes both log tables for the read-only status surface:
// processed and failed row counts, rows not yet claimed by the issuance
// step, and the most recent failures.
func (s *Store) Status(ctx context.Context, systemType string, recentFails int) (*models.PipelineStatus, error) {
	status := &models.PipelineStatus{SystemType: systemType}

	history, err := s.tableStatus(ctx, "event_history_log", systemType, recentFails)
	if err != nil {
		return nil, err
	}
	credentials, err := s.tableStatus(ctx, "credential_log", systemType, recentFails)
	if err != nil {
		return nil, err
	}
	status.Tables = []models.TableStatus{history, credentials}

	status.Watermarks, err = s.Watermarks(ctx, systemType)
	if err != nil {
		return nil, err
	}
	return status, nil
}

func (s *Store) tableStatus(ctx context.Context, table, systemType string, recentFails int) (models.TableStatus, error) {
	ts := models.TableStatus{Table: table}

	// Table names come from the fixed list above, never from input.
	query := fmt.Sprintf(`
		SELECT
			count(*) FILTER (WHERE process_success = 'Y'),
			count(*) FILTER (WHERE process_date IS NULL),
			count(*) FILTER (WHERE process_success = 'N')
		FROM %s
		WHERE system_type = $1`, table)
	err := s.pool.QueryRow(ctx, query, systemType).
		Scan(&ts.Processed, &ts.Outstanding, &ts.Errors)
	if err != nil {
		return ts, fmt.Errorf("eventstore: status counts %s: %w", table, err)
	}

	if recentFails <= 0 {
		return ts, nil
	}

	var objectColumn string
	switch table {
	case "event_history_log":
		objectColumn = "object_id"
	case "credential_log":
		objectColumn = "credential_id"
	default:
		return ts, fmt.Errorf("eventstore: unknown status table %q", table)
	}

	failQuery := fmt.Sprintf(`
		SELECT record_id, %s, COALESCE(project_id, ''), process_date, COALESCE(process_msg, '')
		FROM %s
		WHERE system_type = $1 AND process_success = 'N'
		ORDER BY process_date DESC
		LIMIT $2`, objectColumn, table)
	rows, err := s.pool.Query(ctx, failQuery, systemType, recentFails)
	if err != nil {
		return ts, fmt.Errorf("eventstore: recent failures %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var f models.FailRow
		if err := rows.Scan(&f.RecordID, &f.ObjectID, &f.ProjectID, &f.ProcessDate, &f.ProcessMsg); err != nil {
			return ts, fmt.Errorf("eventstore: scan failure row: %w", err)
		}
		ts.RecentFails = append(ts.RecentFails, f)
	}
	if err := rows.Err(); err != nil {
		return ts, fmt.Errorf("eventstore: failure rows: %w", err)
	}
	return ts, nil
}
