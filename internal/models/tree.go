// Evlock - Inspection Evidence Credential Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/evlock

package models

// SiteNode is the root of the assembled hierarchy, one per project.
// Nodes are created on first reference and enriched as later rows for the
// same key arrive, so assembly tolerates out-of-order rows within a batch.
type SiteNode struct {
	ProjectID   string
	ProjectName string
	Inspections map[string]*InspectionNode
}

// InspectionNode groups the observations recorded under one inspection.
// Source is nil until the inspection's own row is folded in.
type InspectionNode struct {
	ObjectID     string
	Source       *SourceRecord
	Observations map[string]*ObservationNode
}

// ObservationNode groups media items by kind under one observation.
type ObservationNode struct {
	ObjectID    string
	Source      *SourceRecord
	MediaByKind map[Kind]map[string]*MediaNode
}

// MediaNode is a leaf: one audio, photo, or video item.
type MediaNode struct {
	ObjectID string
	Kind     Kind
	Source   *SourceRecord
}

// Inspection returns the inspection node for id, creating it if absent.
func (s *SiteNode) Inspection(id string) *InspectionNode {
	if s.Inspections == nil {
		s.Inspections = make(map[string]*InspectionNode)
	}
	node, ok := s.Inspections[id]
	if !ok {
		node = &InspectionNode{ObjectID: id, Observations: make(map[string]*ObservationNode)}
		s.Inspections[id] = node
	}
	return node
}

// Observation returns the observation node for id, creating it if absent.
func (i *InspectionNode) Observation(id string) *ObservationNode {
	if i.Observations == nil {
		i.Observations = make(map[string]*ObservationNode)
	}
	node, ok := i.Observations[id]
	if !ok {
		node = &ObservationNode{ObjectID: id, MediaByKind: make(map[Kind]map[string]*MediaNode)}
		i.Observations[id] = node
	}
	return node
}

// Media returns the media node for (kind, id), creating it if absent.
func (o *ObservationNode) Media(kind Kind, id string) *MediaNode {
	if o.MediaByKind == nil {
		o.MediaByKind = make(map[Kind]map[string]*MediaNode)
	}
	bucket, ok := o.MediaByKind[kind]
	if !ok {
		bucket = make(map[string]*MediaNode)
		o.MediaByKind[kind] = bucket
	}
	node, ok := bucket[id]
	if !ok {
		node = &MediaNode{ObjectID: id, Kind: kind}
		bucket[id] = node
	}
	return node
}
