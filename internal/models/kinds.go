// Evlock - Inspection Evidence Credential Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/evlock

// Package models defines the data types shared across the pipeline:
// source records pulled from the document store, the assembled object
// tree, generated credentials, and the durable log/watermark rows.
package models

// Kind identifies a tracked document-store collection.
type Kind string

// Tracked collection kinds. Inspection is the root of the hierarchy;
// Observation hangs off an inspection; the media kinds hang off an
// observation.
const (
	KindInspection  Kind = "Inspection"
	KindObservation Kind = "Observation"
	KindAudio       Kind = "Audio"
	KindPhoto       Kind = "Photo"
	KindVideo       Kind = "Video"
)

// AllKinds lists every tracked collection kind in scan order.
var AllKinds = []Kind{KindInspection, KindObservation, KindAudio, KindPhoto, KindVideo}

// Collection returns the document-store collection name for the kind.
// Collection names match the kind names in the upstream inspections store.
func (k Kind) Collection() string { return string(k) }

// IsMedia reports whether the kind is one of the media collections.
func (k Kind) IsMedia() bool {
	return k == KindAudio || k == KindPhoto || k == KindVideo
}

// Valid reports whether k is a tracked collection kind.
func (k Kind) Valid() bool {
	switch k {
	case KindInspection, KindObservation, KindAudio, KindPhoto, KindVideo:
		return true
	}
	return false
}

// CredentialType identifies the kind of credential a payload asserts.
type CredentialType string

const (
	// CredentialSite is the foundational site credential, issued once per project.
	CredentialSite CredentialType = "SITE"
	// CredentialInspection is issued for every processed inspection.
	CredentialInspection CredentialType = "INSPC"
	// CredentialObservation is reserved for the observation/media extension point.
	CredentialObservation CredentialType = "OBSVN"
)

// InsertOutcome is the result of attempting to record a credential.
type InsertOutcome int

const (
	// OutcomeInserted means the credential row was written.
	OutcomeInserted InsertOutcome = iota
	// OutcomeDuplicateSkipped means an identical credential hash already
	// exists and the attempt was absorbed via savepoint rollback.
	OutcomeDuplicateSkipped
)

// String implements fmt.Stringer for logging and metrics labels.
func (o InsertOutcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeDuplicateSkipped:
		return "duplicate_skipped"
	default:
		return "unknown"
	}
}
