// Evlock - Inspection Evidence Credential Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/evlock

package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/evlock/internal/canonical"
	"github.com/tomtom215/evlock/internal/docstore"
	"github.com/tomtom215/evlock/internal/models"
)

func testCanonicalizer(t *testing.T) *canonical.Canonicalizer {
	t.Helper()
	canon, err := canonical.New(canonical.Config{Location: time.UTC})
	if err != nil {
		t.Fatalf("canonical.New() error = %v", err)
	}
	return canon
}

// seedDocs populates the document store with one full inspection document
// and its nested observation and media.
func seedDocs(store *docstore.Memory) {
	created := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	updated := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	store.Insert("Inspection", docstore.Document{
		"_id":            "insp1",
		"project":        "West Side Project",
		"_created_at":    created,
		"_updated_at":    updated,
		"_uploaded_hash": "abc123",
	})
	store.Insert("Observation", docstore.Document{
		"_id":          "obs1",
		"inspectionId": "insp1",
		"_updated_at":  updated,
	})
	store.Insert("Photo", docstore.Document{
		"_id":           "photo1",
		"observationId": "obs1",
		"inspectionId":  "insp1",
		"_updated_at":   updated,
	})
}

func newTestGenerator(t *testing.T, docs *docstore.Memory, sites SiteCredentialChecker) *Generator {
	t.Helper()
	return NewGenerator(docs, sites, testCanonicalizer(t), testPipelineConfig(), testSchemas())
}

func TestGenerateSiteAndInspectionCredentials(t *testing.T) {
	docs := docstore.NewMemory()
	seedDocs(docs)
	store := newFakeLogStore()
	gen := newTestGenerator(t, docs, store)

	tree := NewAssembler().Assemble(testRecords()).Tree
	creds, err := gen.Generate(context.Background(), tree)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if len(creds) != 2 {
		t.Fatalf("Generate() returned %d credentials, want 2", len(creds))
	}

	site := creds[0]
	if site.Type != models.CredentialSite {
		t.Errorf("first credential type = %s, want SITE", site.Type)
	}
	if site.ID != "WESTSIDEPROJ" {
		t.Errorf("SITE credential id = %q, want WESTSIDEPROJ", site.ID)
	}
	if site.SchemaName != "inspection-site.eao-evidence-locker" {
		t.Errorf("SITE schema = %q", site.SchemaName)
	}
	if site.Payload["location"] != "Vancouver" || site.Payload["entity_status"] != "ACT" {
		t.Errorf("SITE payload seeds = %v / %v", site.Payload["location"], site.Payload["entity_status"])
	}

	inspc := creds[1]
	if inspc.Type != models.CredentialInspection {
		t.Errorf("second credential type = %s, want INSPC", inspc.Type)
	}
	if inspc.ID != "WESTSIDEPROJ:insp1" {
		t.Errorf("INSPC credential id = %q, want WESTSIDEPROJ:insp1", inspc.ID)
	}
	if inspc.Payload["hash_value"] != "abc123" {
		t.Errorf("INSPC hash_value = %v, want abc123", inspc.Payload["hash_value"])
	}
	if inspc.SourceID != "insp1" || inspc.SourceKind != models.KindInspection {
		t.Errorf("INSPC source linkage = %s/%s", inspc.SourceKind, inspc.SourceID)
	}
	if inspc.Hash == "" || len(inspc.CanonicalJSON) == 0 {
		t.Error("INSPC credential missing hash or canonical body")
	}
}

func TestGenerateSkipsExistingSiteCredential(t *testing.T) {
	docs := docstore.NewMemory()
	seedDocs(docs)
	store := newFakeLogStore()
	store.credentials = append(store.credentials, models.CredentialLogEntry{
		SystemType:     "EAO_EL",
		CredentialType: models.CredentialSite,
		ProjectID:      "WESTSIDEPROJ",
	})
	gen := newTestGenerator(t, docs, store)

	tree := NewAssembler().Assemble(testRecords()).Tree
	creds, err := gen.Generate(context.Background(), tree)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(creds) != 1 {
		t.Fatalf("Generate() returned %d credentials, want 1", len(creds))
	}
	if creds[0].Type != models.CredentialInspection {
		t.Errorf("credential type = %s, want INSPC", creds[0].Type)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	docs := docstore.NewMemory()
	seedDocs(docs)
	tree := NewAssembler().Assemble(testRecords()).Tree

	first, err := newTestGenerator(t, docs, newFakeLogStore()).Generate(context.Background(), tree)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	second, err := newTestGenerator(t, docs, newFakeLogStore()).Generate(context.Background(), tree)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("credential counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("credential %d id differs: %q vs %q", i, first[i].ID, second[i].ID)
		}
		if first[i].Hash != second[i].Hash {
			t.Errorf("credential %d hash differs across runs", i)
		}
		if string(first[i].CanonicalJSON) != string(second[i].CanonicalJSON) {
			t.Errorf("credential %d canonical body differs across runs", i)
		}
	}
}

func TestGenerateMissingInspectionDocument(t *testing.T) {
	// Scan row exists but the document vanished before generate: the
	// batch fails before any write, leaving a clean retry.
	docs := docstore.NewMemory()
	gen := newTestGenerator(t, docs, newFakeLogStore())

	tree := NewAssembler().Assemble(testRecords()).Tree
	if _, err := gen.Generate(context.Background(), tree); err == nil {
		t.Fatal("Generate() error = nil, want failure for missing document")
	}
}

func TestGenerateEmptyTree(t *testing.T) {
	gen := newTestGenerator(t, docstore.NewMemory(), newFakeLogStore())
	creds, err := gen.Generate(context.Background(), map[string]*models.SiteNode{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(creds) != 0 {
		t.Errorf("Generate() returned %d credentials for empty tree, want 0", len(creds))
	}
}
