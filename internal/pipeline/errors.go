// Evlock - Inspection Evidence Credential Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/evlock

package pipeline

import "errors"

// Batch failure taxonomy. Source and sink unavailability are retryable at
// the whole-batch level; a persistence conflict is fatal to the batch and
// rolls back every write. A duplicate credential hash is not an error at
// all, it is a recorded outcome.
var (
	// ErrSourceUnavailable means the document store could not be reached.
	ErrSourceUnavailable = errors.New("source document store unavailable")

	// ErrSinkUnavailable means the relational log store could not be reached.
	ErrSinkUnavailable = errors.New("log store unavailable")

	// ErrPersistenceConflict means a non-duplicate constraint violation
	// occurred during persist.
	ErrPersistenceConflict = errors.New("persistence conflict")
)
