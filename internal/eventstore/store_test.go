// Evlock - Inspection Evidence Credential Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/evlock

package eventstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "hash index violation",
			err:  &pgconn.PgError{Code: "23505", ConstraintName: "cl_hash_index"},
			want: true,
		},
		{
			name: "unique violation without constraint name",
			err:  &pgconn.PgError{Code: "23505"},
			want: true,
		},
		{
			name: "unique violation on another constraint",
			err:  &pgconn.PgError{Code: "23505", ConstraintName: "cl_project_index"},
			want: false,
		},
		{
			name: "foreign key violation",
			err:  &pgconn.PgError{Code: "23503"},
			want: false,
		},
		{
			name: "wrapped violation",
			err:  fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "cl_hash_index"}),
			want: true,
		},
		{
			name: "plain error mentioning duplicate key",
			err:  errors.New("duplicate key value violates unique constraint"),
			want: false,
		},
		{
			name: "nil",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err); got != tt.want {
				t.Errorf("isUniqueViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBatchLockKey(t *testing.T) {
	t.Run("stable", func(t *testing.T) {
		if batchLockKey("EAO_EL") != batchLockKey("EAO_EL") {
			t.Error("batchLockKey() not stable for identical input")
		}
	})

	t.Run("distinct per system type", func(t *testing.T) {
		if batchLockKey("EAO_EL") == batchLockKey("OTHER") {
			t.Error("batchLockKey() collides for distinct system types")
		}
	})
}
