// Evlock - Inspection Evidence Credential Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/evlock

// Package eventstore owns the durable state of the pipeline: the
// append-only change log, the hash-deduplicated credential log, and the
// per-collection watermarks, all in Postgres behind one pgx pool. Every
// write for a batch flows through a single transaction obtained from
// BeginBatch.
package eventstore

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tomtom215/evlock/internal/config"
	"github.com/tomtom215/evlock/internal/logging"
)

// credentialHashConstraint is the unique index on credential_log that the
// savepoint dedup relies on.
const credentialHashConstraint = "cl_hash_index"

// ErrBatchInProgress is returned by AcquireBatchLock when another process
// already holds the batch lock for the same system type.
var ErrBatchInProgress = errors.New("eventstore: batch already in progress for system type")

// Store is the Postgres-backed log store.
type Store struct {
	pool *pgxpool.Pool
}

// New connects the pool and verifies it with a ping.
func New(ctx context.Context, cfg config.PostgresConfig) (*Store, error) {
	pc, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("eventstore: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("eventstore: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("eventstore: ping: %w", err)
	}

	logging.Info().Msg("Event store connected")
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping checks connectivity for the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// AcquireBatchLock takes the session-level advisory lock that serializes
// batches per system type. The returned release function must be called
// once the batch is finished, whatever its outcome. Returns
// ErrBatchInProgress when another holder already has the lock.
func (s *Store) AcquireBatchLock(ctx context.Context, systemType string) (release func(), err error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("eventstore: acquire lock conn: %w", err)
	}

	key := batchLockKey(systemType)
	var locked bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&locked); err != nil {
		conn.Release()
		return nil, fmt.Errorf("eventstore: advisory lock: %w", err)
	}
	if !locked {
		conn.Release()
		return nil, ErrBatchInProgress
	}

	return func() {
		// Unlock on the same session that took the lock.
		if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, key); err != nil {
			logging.Warn().Err(err).Str("system_type", systemType).Msg("Failed to release batch advisory lock")
		}
		conn.Release()
	}, nil
}

// batchLockKey maps a system type to a stable advisory-lock key.
func batchLockKey(systemType string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("evlock.batch." + systemType))
	return int64(h.Sum64())
}

// isUniqueViolation reports whether err is the unique-violation raised by
// the credential hash index. Detection is by SQLSTATE and constraint
// name, never by message text.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != "23505" {
		return false
	}
	return pgErr.ConstraintName == "" || pgErr.ConstraintName == credentialHashConstraint
}
