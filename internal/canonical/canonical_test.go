// Evlock - Inspection Evidence Credential Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/evlock

package canonical

import (
	"strings"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

func newTestCanonicalizer(t *testing.T) *Canonicalizer {
	t.Helper()
	c, err := New(Config{Location: time.UTC})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestHashStability(t *testing.T) {
	c := newTestCanonicalizer(t)
	payload := map[string]any{
		"project_id":    "WESTSIDEPROJ",
		"inspection_id": "insp1",
		"created_date":  time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC),
		"updated_date":  bson.NewDateTimeFromTime(time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)),
		"hash_value":    "abc123",
	}

	first, firstJSON, err := c.Hash(payload)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	second, secondJSON, err := c.Hash(payload)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	if first != second {
		t.Errorf("hash unstable: %s vs %s", first, second)
	}
	if string(firstJSON) != string(secondJSON) {
		t.Error("canonical JSON unstable across calls")
	}
	if len(first) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(first))
	}
}

func TestHashDistinguishesPayloads(t *testing.T) {
	c := newTestCanonicalizer(t)
	a, _, err := c.Hash(map[string]any{"project_id": "A"})
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	b, _, err := c.Hash(map[string]any{"project_id": "B"})
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if a == b {
		t.Error("distinct payloads hash identically")
	}
}

func TestMarshalSortsKeys(t *testing.T) {
	c := newTestCanonicalizer(t)
	out, err := c.Marshal(map[string]any{
		"zulu":  1,
		"alpha": 2,
		"mike":  3,
	})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	s := string(out)
	if !(strings.Index(s, "alpha") < strings.Index(s, "mike") &&
		strings.Index(s, "mike") < strings.Index(s, "zulu")) {
		t.Errorf("keys not sorted: %s", s)
	}
}

func TestTimestampSentinelClamping(t *testing.T) {
	c := newTestCanonicalizer(t)
	tests := []struct {
		name string
		in   time.Time
		want string
	}{
		{
			name: "ordinary timestamp in UTC RFC3339",
			in:   time.Date(2026, 4, 1, 10, 30, 0, 0, time.UTC),
			want: "2026-04-01T10:30:00Z",
		},
		{
			name: "year at min bound clamps to min sentinel",
			in:   time.Date(2, 6, 1, 0, 0, 0, 0, time.UTC),
			want: c.Timestamp(time.Date(DefaultMinYear, 1, 1, 0, 0, 0, 0, time.UTC)),
		},
		{
			name: "year below min bound clamps to min sentinel",
			in:   time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC),
			want: c.Timestamp(time.Date(DefaultMinYear, 1, 1, 0, 0, 0, 0, time.UTC)),
		},
		{
			name: "year at max bound clamps to max sentinel",
			in:   time.Date(9998, 2, 2, 0, 0, 0, 0, time.UTC),
			want: c.Timestamp(time.Date(DefaultMaxYear, 12, 31, 0, 0, 0, 0, time.UTC)),
		},
		{
			name: "year beyond max bound clamps to max sentinel",
			in:   time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC),
			want: c.Timestamp(time.Date(DefaultMaxYear, 12, 31, 0, 0, 0, 0, time.UTC)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Timestamp(tt.in); got != tt.want {
				t.Errorf("Timestamp() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeValueKinds(t *testing.T) {
	c := newTestCanonicalizer(t)
	oid, err := bson.ObjectIDFromHex("65f0aabbccddeeff00112233")
	if err != nil {
		t.Fatalf("ObjectIDFromHex() error = %v", err)
	}
	dec, err := bson.ParseDecimal128("12.3400")
	if err != nil {
		t.Fatalf("ParseDecimal128() error = %v", err)
	}

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"string", "x", "x"},
		{"bool", true, true},
		{"int widened", int(7), int64(7)},
		{"int32 widened", int32(7), int64(7)},
		{"float64", 1.5, 1.5},
		{"object id to hex", oid, "65f0aabbccddeeff00112233"},
		{"decimal as string", dec, "12.3400"},
		{
			"bson datetime to utc string",
			bson.NewDateTimeFromTime(time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)),
			"2026-04-01T10:00:00Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Normalize(tt.in)
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Normalize() = %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}

	t.Run("nested structures", func(t *testing.T) {
		got, err := c.Normalize(bson.M{
			"items": bson.A{int32(1), "two"},
			"inner": bson.D{{Key: "k", Value: oid}},
		})
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		m, ok := got.(map[string]any)
		if !ok {
			t.Fatalf("Normalize() returned %T, want map", got)
		}
		items, ok := m["items"].([]any)
		if !ok || len(items) != 2 || items[0] != int64(1) {
			t.Errorf("items normalized badly: %v", m["items"])
		}
		inner, ok := m["inner"].(map[string]any)
		if !ok || inner["k"] != "65f0aabbccddeeff00112233" {
			t.Errorf("inner normalized badly: %v", m["inner"])
		}
	})

	t.Run("unsupported type is an error", func(t *testing.T) {
		if _, err := c.Normalize(make(chan int)); err == nil {
			t.Error("Normalize() accepted an unsupported type")
		}
	})
}

func TestNewValidation(t *testing.T) {
	t.Run("missing location", func(t *testing.T) {
		if _, err := New(Config{}); err == nil {
			t.Error("New() accepted nil location")
		}
	})
	t.Run("inverted bounds", func(t *testing.T) {
		if _, err := New(Config{Location: time.UTC, MinYear: 100, MaxYear: 50}); err == nil {
			t.Error("New() accepted min year after max year")
		}
	})
}
