// Evlock - Inspection Evidence Credential Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/evlock

package models

import "time"

// Process outcome flags stored in the log tables.
const (
	ProcessSuccessYes = "Y"
	ProcessSuccessNo  = "N"
)

// WatermarkRecord is the cursor row for one (systemType, collection kind):
// the maximum objectDate successfully folded into a committed batch.
type WatermarkRecord struct {
	RecordID   int64
	SystemType string
	Kind       Kind
	ObjectDate time.Time
	EntryDate  time.Time
}

// ChangeLogEntry is one append-only audit row in event_history_log,
// recording an attempted object and its processing outcome. Rows are only
// ever inserted, never updated.
type ChangeLogEntry struct {
	SystemType     string
	Kind           Kind
	ProjectID      string
	ProjectName    string
	ObjectID       string
	ObjectDate     time.Time
	UploadDate     time.Time
	UploadHash     string
	ProcessDate    time.Time
	ProcessSuccess string
	ProcessMsg     string
}

// CredentialLogEntry is one append-only row in credential_log. The
// credential hash carries a unique index; a duplicate insert is absorbed,
// not treated as a failure. The process columns stay NULL until the
// external issuance step claims the row.
type CredentialLogEntry struct {
	SystemType     string
	SourceKind     Kind
	SourceID       string
	ProjectID      string
	ProjectName    string
	CredentialType CredentialType
	CredentialID   string
	SchemaName     string
	SchemaVersion  string
	CredentialJSON []byte
	CredentialHash string
}

// TableStatus summarizes one log table for the status surface.
type TableStatus struct {
	Table       string    `json:"table"`
	Processed   int64     `json:"processed"`
	Outstanding int64     `json:"outstanding"`
	Errors      int64     `json:"errors"`
	RecentFails []FailRow `json:"recent_failures,omitempty"`
}

// FailRow is one recent process_success='N' row.
type FailRow struct {
	RecordID    int64     `json:"record_id"`
	ObjectID    string    `json:"object_id"`
	ProjectID   string    `json:"project_id"`
	ProcessDate time.Time `json:"process_date"`
	ProcessMsg  string    `json:"process_msg"`
}

// PipelineStatus is the full read-only status snapshot.
type PipelineStatus struct {
	SystemType string          `json:"system_type"`
	Tables     []TableStatus   `json:"tables"`
	Watermarks []WatermarkView `json:"watermarks"`
}

// WatermarkView is the status-surface projection of a watermark row.
type WatermarkView struct {
	Kind       Kind      `json:"collection"`
	ObjectDate time.Time `json:"object_date"`
	EntryDate  time.Time `json:"entry_date"`
}
