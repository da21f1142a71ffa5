// Evlock - Inspection Evidence Credential Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/evlock

package models

// Credential is a schema-versioned payload asserting a fact about a site or
// inspection, destined for an external issuance step. The canonical JSON and
// its SHA-256 hash are computed once at generation time; the hash is the
// deduplication key in the credential log.
type Credential struct {
	Type          CredentialType `json:"credential_type"`
	ID            string         `json:"credential_id"`
	SchemaName    string         `json:"schema_name"`
	SchemaVersion string         `json:"schema_version"`

	// Payload is the raw credential body prior to canonicalization.
	Payload map[string]any `json:"-"`

	// CanonicalJSON is the key-sorted, normalized serialization of Payload.
	CanonicalJSON []byte `json:"-"`

	// Hash is the hex SHA-256 digest of CanonicalJSON.
	Hash string `json:"credential_hash"`

	// Source linkage for the credential log row.
	SourceKind  Kind   `json:"source_collection"`
	SourceID    string `json:"source_id"`
	ProjectID   string `json:"project_id"`
	ProjectName string `json:"project_name"`
}
