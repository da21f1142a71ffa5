// Evlock - Inspection Evidence Credential Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/evlock

package docstore

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestFilterMatches(t *testing.T) {
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		filter Filter
		doc    Document
		want   bool
	}{
		{
			name:   "eq string match",
			filter: Eq("project", "MINE-A"),
			doc:    Document{"project": "MINE-A"},
			want:   true,
		},
		{
			name:   "eq string mismatch",
			filter: Eq("project", "MINE-A"),
			doc:    Document{"project": "MINE-B"},
			want:   false,
		},
		{
			name:   "eq absent field",
			filter: Eq("project", "MINE-A"),
			doc:    Document{},
			want:   false,
		},
		{
			name:   "eq object id against hex",
			filter: Eq("_id", "65f0aabbccddeeff00112233"),
			doc:    Document{"_id": mustObjectID(t, "65f0aabbccddeeff00112233")},
			want:   true,
		},
		{
			name:   "gt time after cutoff",
			filter: Gt("_updated_at", cutoff),
			doc:    Document{"_updated_at": cutoff.Add(time.Hour)},
			want:   true,
		},
		{
			name:   "gt time at cutoff excluded",
			filter: Gt("_updated_at", cutoff),
			doc:    Document{"_updated_at": cutoff},
			want:   false,
		},
		{
			name:   "gt bson datetime",
			filter: Gt("_updated_at", cutoff),
			doc:    Document{"_updated_at": bson.NewDateTimeFromTime(cutoff.Add(time.Minute))},
			want:   true,
		},
		{
			name:   "absent field matches",
			filter: FieldAbsent("evlocker_date"),
			doc:    Document{"_id": "x"},
			want:   true,
		},
		{
			name:   "absent field rejects present",
			filter: FieldAbsent("evlocker_date"),
			doc:    Document{"evlocker_date": cutoff},
			want:   false,
		},
		{
			name: "and requires every clause",
			filter: And(
				FieldAbsent("evlocker_date"),
				Gt("_updated_at", cutoff),
			),
			doc:  Document{"_updated_at": cutoff.Add(time.Hour)},
			want: true,
		},
		{
			name: "and short-circuits on failure",
			filter: And(
				FieldAbsent("evlocker_date"),
				Gt("_updated_at", cutoff),
			),
			doc:  Document{"evlocker_date": cutoff, "_updated_at": cutoff.Add(time.Hour)},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(tt.doc); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMemorySortAndLimit(t *testing.T) {
	store := NewMemory()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.Insert("Inspection",
		Document{"_id": "c", "_updated_at": base.Add(3 * time.Hour)},
		Document{"_id": "a", "_updated_at": base.Add(1 * time.Hour)},
		Document{"_id": "b", "_updated_at": base.Add(2 * time.Hour)},
	)

	docs, err := store.FindMany(context.Background(), "Inspection",
		Gt("_updated_at", base), SortAsc("_updated_at"), Limit(2))
	if err != nil {
		t.Fatalf("FindMany() error = %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("FindMany() returned %d documents, want 2", len(docs))
	}
	if docs[0].String("_id") != "a" || docs[1].String("_id") != "b" {
		t.Errorf("FindMany() order = [%s %s], want [a b]",
			docs[0].String("_id"), docs[1].String("_id"))
	}
}

func TestMemoryFindOne(t *testing.T) {
	store := NewMemory()
	store.Insert("Observation", Document{"_id": "obs1", "inspectionId": "insp1"})

	t.Run("hit", func(t *testing.T) {
		doc, err := store.FindOne(context.Background(), "Observation", Eq("_id", "obs1"))
		if err != nil {
			t.Fatalf("FindOne() error = %v", err)
		}
		if doc == nil {
			t.Fatal("FindOne() returned nil document, want hit")
		}
	})

	t.Run("miss is not an error", func(t *testing.T) {
		doc, err := store.FindOne(context.Background(), "Observation", Eq("_id", "missing"))
		if err != nil {
			t.Fatalf("FindOne() error = %v", err)
		}
		if doc != nil {
			t.Errorf("FindOne() = %v, want nil", doc)
		}
	})
}

func TestMemoryReturnsCopies(t *testing.T) {
	store := NewMemory()
	store.Insert("Inspection", Document{"_id": "insp1", "project": "Mine A"})

	t.Run("find one", func(t *testing.T) {
		doc, err := store.FindOne(context.Background(), "Inspection", Eq("_id", "insp1"))
		if err != nil {
			t.Fatalf("FindOne() error = %v", err)
		}
		doc["Observation"] = []any{"attached"}
		doc["project"] = "mutated"

		again, err := store.FindOne(context.Background(), "Inspection", Eq("_id", "insp1"))
		if err != nil {
			t.Fatalf("FindOne() error = %v", err)
		}
		if _, leaked := again["Observation"]; leaked {
			t.Error("mutation of a fetched document leaked into the store")
		}
		if again.String("project") != "Mine A" {
			t.Errorf("project = %q after caller mutation, want original", again.String("project"))
		}
	})

	t.Run("find many", func(t *testing.T) {
		docs, err := store.FindMany(context.Background(), "Inspection", Eq("_id", "insp1"))
		if err != nil {
			t.Fatalf("FindMany() error = %v", err)
		}
		docs[0]["extra"] = true

		again, err := store.FindMany(context.Background(), "Inspection", Eq("_id", "insp1"))
		if err != nil {
			t.Fatalf("FindMany() error = %v", err)
		}
		if _, leaked := again[0]["extra"]; leaked {
			t.Error("mutation of a fetched document leaked into the store")
		}
	})
}

func mustObjectID(t *testing.T, hex string) bson.ObjectID {
	t.Helper()
	id, err := bson.ObjectIDFromHex(hex)
	if err != nil {
		t.Fatalf("ObjectIDFromHex(%q) error = %v", hex, err)
	}
	return id
}
