// Evlock - Inspection Evidence Credential Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/evlock

package eventstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tomtom215/evlock/internal/models"
)

// Watermark returns the current cursor for (systemType, kind). ok is
// false when no batch has ever advanced this cursor, meaning the next
// scan is unbounded.
func (s *Store) Watermark(ctx context.Context, systemType string, kind models.Kind) (objectDate time.Time, ok bool, err error) {
	err = s.pool.QueryRow(ctx, `
		SELECT object_date
		FROM last_event
		WHERE system_type = $1 AND record_kind = $2
		ORDER BY entry_date DESC, record_id DESC
		LIMIT 1`,
		systemType, string(kind),
	).Scan(&objectDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("eventstore: read watermark %s/%s: %w", systemType, kind, err)
	}
	return objectDate, true, nil
}

// Watermarks returns the current cursor for every kind that has one,
// for the status surface.
func (s *Store) Watermarks(ctx context.Context, systemType string) ([]models.WatermarkView, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (record_kind) record_kind, object_date, entry_date
		FROM last_event
		WHERE system_type = $1
		ORDER BY record_kind, entry_date DESC, record_id DESC`,
		systemType,
	)
	if err != nil {
		return nil, fmt.Errorf("eventstore: read watermarks: %w", err)
	}
	defer rows.Close()

	var views []models.WatermarkView
	for rows.Next() {
		var v models.WatermarkView
		var kind string
		if err := rows.Scan(&kind, &v.ObjectDate, &v.EntryDate); err != nil {
			return nil, fmt.Errorf("eventstore: scan watermark: %w", err)
		}
		v.Kind = models.Kind(kind)
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("eventstore: watermark rows: %w", err)
	}
	return views, nil
}

// HasSiteCredential reports whether a SITE credential already exists for
// the project. The generator uses this to mint the site credential only
// once per project.
func (s *Store) HasSiteCredential(ctx context.Context, systemType, projectID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM credential_log
			WHERE system_type = $1
			  AND credential_type = $2
			  AND project_id = $3
		)`,
		systemType, string(models.CredentialSite), projectID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("eventstore: site credential lookup %s: %w", projectID, err)
	}
	return exists, nil
}
