// Evlock - Inspection Evidence Credential Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/evlock

package pipeline

import (
	"github.com/tomtom215/evlock/internal/logging"
	"github.com/tomtom215/evlock/internal/metrics"
	"github.com/tomtom215/evlock/internal/models"
)

// DroppedRecord is a scanned record that could not be placed in the tree.
type DroppedRecord struct {
	Record models.SourceRecord
	Reason string
}

// AssembleResult carries the tree plus the per-record accounting the
// orchestrator needs for the change log.
type AssembleResult struct {
	// Tree maps projectID to its site node.
	Tree map[string]*models.SiteNode

	// Folded lists every record placed in the tree, in input order.
	Folded []models.SourceRecord

	// Dropped lists records rejected for missing parent linkage. Never
	// fatal; each gets a failed change-log row.
	Dropped []DroppedRecord
}

// Assembler folds the flat scan output into the site → inspection →
// observation → media hierarchy. The fold is a single pass and
// order-independent: nodes are created on first reference from either a
// parent or a child row and enriched as later rows arrive, so any
// permutation of the same records produces the same tree.
type Assembler struct{}

// NewAssembler returns an Assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Assemble folds records into a tree keyed by projectID.
func (a *Assembler) Assemble(records []models.SourceRecord) *AssembleResult {
	result := &AssembleResult{Tree: make(map[string]*models.SiteNode)}

	for i := range records {
		rec := records[i]
		if reason, ok := a.fold(result.Tree, &records[i]); !ok {
			result.Dropped = append(result.Dropped, DroppedRecord{Record: rec, Reason: reason})
			metrics.RecordsDropped.Inc()
			logging.Warn().
				Str("collection", rec.Kind.Collection()).
				Str("object_id", rec.ObjectID).
				Str("reason", reason).
				Msg("Record dropped during assembly")
			continue
		}
		result.Folded = append(result.Folded, rec)
	}
	return result
}

// fold places one record. Returns ok=false with a reason when a required
// parent reference is missing.
func (a *Assembler) fold(tree map[string]*models.SiteNode, rec *models.SourceRecord) (reason string, ok bool) {
	if rec.ProjectID == "" {
		return "missing project linkage", false
	}

	site, exists := tree[rec.ProjectID]
	if !exists {
		site = &models.SiteNode{ProjectID: rec.ProjectID, ProjectName: rec.ProjectName}
		tree[rec.ProjectID] = site
	}
	if site.ProjectName == "" {
		site.ProjectName = rec.ProjectName
	}

	if rec.InspectionID == "" {
		return "missing inspection linkage", false
	}
	inspection := site.Inspection(rec.InspectionID)
	if rec.Kind == models.KindInspection {
		inspection.Source = rec
		return "", true
	}

	if rec.ObservationID == "" {
		return "missing observation linkage", false
	}
	observation := inspection.Observation(rec.ObservationID)
	if rec.Kind == models.KindObservation {
		observation.Source = rec
		return "", true
	}

	media := observation.Media(rec.Kind, rec.ObjectID)
	media.Source = rec
	return "", true
}
