// Evlock - Inspection Evidence Credential Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/evlock

package models

import (
	"strings"
	"time"
)

// projectIDMaxLen bounds the derived project id length.
const projectIDMaxLen = 12

// SourceRecord is one row pulled from the document-store scan. It is an
// immutable snapshot of upstream state at scan time; the assembler and
// generator never write back to it.
type SourceRecord struct {
	SystemType    string    `json:"system_type"`
	Kind          Kind      `json:"collection"`
	ObjectID      string    `json:"object_id"`
	ObjectDate    time.Time `json:"object_date"`
	UploadDate    time.Time `json:"upload_date,omitempty"`
	UploadHash    string    `json:"upload_hash,omitempty"`
	ProjectID     string    `json:"project_id,omitempty"`
	ProjectName   string    `json:"project_name,omitempty"`
	InspectionID  string    `json:"inspection_id,omitempty"`
	ObservationID string    `json:"observation_id,omitempty"`
}

// ProjectNameToID derives a deterministic project id from a project name:
// all whitespace stripped, uppercased, truncated to 12 characters.
// Identical names always map to the identical id.
func ProjectNameToID(name string) string {
	id := []rune(strings.ToUpper(strings.Join(strings.Fields(name), "")))
	if len(id) > projectIDMaxLen {
		id = id[:projectIDMaxLen]
	}
	return string(id)
}
