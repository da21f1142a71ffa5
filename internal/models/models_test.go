// Evlock - Inspection Evidence Credential Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/evlock

package models

import (
	"testing"
	"unicode/utf8"
)

func TestProjectNameToID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple", "Mine", "MINE"},
		{"whitespace stripped", "west side  Project", "WESTSIDEPROJ"},
		{"truncated to twelve", "A Very Long Project Name Indeed", "AVERYLONGPRO"},
		{"exactly twelve", "TwelveChars!", "TWELVECHARS!"},
		{"tabs and newlines", "a\tb\nc", "ABC"},
		{"multibyte under the limit kept whole", "aÀÀÀÀÀÀ", "AÀÀÀÀÀÀ"},
		{"multibyte truncated on rune boundary", "ÉÉÉÉÉÉÉÉÉÉÉÉÉÉ", "ÉÉÉÉÉÉÉÉÉÉÉÉ"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ProjectNameToID(tt.in)
			if got != tt.want {
				t.Errorf("ProjectNameToID(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if utf8.RuneCountInString(got) > 12 {
				t.Errorf("ProjectNameToID(%q) exceeds 12 characters", tt.in)
			}
			if !utf8.ValidString(got) {
				t.Errorf("ProjectNameToID(%q) = %q is not valid UTF-8", tt.in, got)
			}
		})
	}

	t.Run("deterministic", func(t *testing.T) {
		if ProjectNameToID("west side  Project") != ProjectNameToID("west side  Project") {
			t.Error("ProjectNameToID not deterministic")
		}
	})
}

func TestKind(t *testing.T) {
	t.Run("media kinds", func(t *testing.T) {
		for _, k := range []Kind{KindAudio, KindPhoto, KindVideo} {
			if !k.IsMedia() {
				t.Errorf("%s.IsMedia() = false", k)
			}
		}
		if KindInspection.IsMedia() || KindObservation.IsMedia() {
			t.Error("non-media kind reports IsMedia")
		}
	})

	t.Run("validity", func(t *testing.T) {
		for _, k := range AllKinds {
			if !k.Valid() {
				t.Errorf("%s.Valid() = false", k)
			}
		}
		if Kind("Bogus").Valid() {
			t.Error("Kind(Bogus).Valid() = true")
		}
	})
}

func TestTreeNodeCreation(t *testing.T) {
	site := &SiteNode{ProjectID: "P1", ProjectName: "Project One"}

	inspection := site.Inspection("i1")
	if site.Inspection("i1") != inspection {
		t.Error("Inspection() created a second node for the same id")
	}

	observation := inspection.Observation("o1")
	if inspection.Observation("o1") != observation {
		t.Error("Observation() created a second node for the same id")
	}

	media := observation.Media(KindPhoto, "m1")
	if observation.Media(KindPhoto, "m1") != media {
		t.Error("Media() created a second node for the same key")
	}
	if media.Kind != KindPhoto || media.ObjectID != "m1" {
		t.Errorf("media node = %+v", media)
	}
}

func TestInsertOutcomeString(t *testing.T) {
	if OutcomeInserted.String() != "inserted" {
		t.Errorf("OutcomeInserted.String() = %q", OutcomeInserted.String())
	}
	if OutcomeDuplicateSkipped.String() != "duplicate_skipped" {
		t.Errorf("OutcomeDuplicateSkipped.String() = %q", OutcomeDuplicateSkipped.String())
	}
}
