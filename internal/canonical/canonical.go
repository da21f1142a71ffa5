// Evlock - Inspection Evidence Credential Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/evlock

// Package canonical normalizes credential payloads into a deterministic,
// hashable form. A payload canonicalized twice from identical field values
// yields byte-identical JSON and therefore an identical SHA-256 digest,
// across process restarts. The digest is the deduplication key in the
// credential log.
//
// The value domain is closed: strings, numbers, booleans, nil, ordered
// lists, string-keyed mappings, timestamps, arbitrary-precision decimals
// (rendered as strings), and opaque document ids (rendered as hex).
// Anything else is an error, not a best-effort string.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Default year bounds for timestamp sentinel clamping. Values at or beyond
// a bound are replaced by the corresponding sentinel instead of failing.
const (
	DefaultMinYear = 2
	DefaultMaxYear = 9998
)

// Config controls timestamp normalization.
type Config struct {
	// Location anchors the sentinel timestamps. Required.
	Location *time.Location

	// MinYear and MaxYear bound representable years. A timestamp with a
	// year at or below MinYear maps to the minimum sentinel; at or above
	// MaxYear, to the maximum sentinel. Zero values take the defaults.
	MinYear int
	MaxYear int
}

// Canonicalizer converts payload values into their canonical form.
type Canonicalizer struct {
	minYear     int
	maxYear     int
	minSentinel time.Time
	maxSentinel time.Time
}

// New creates a Canonicalizer from cfg.
func New(cfg Config) (*Canonicalizer, error) {
	if cfg.Location == nil {
		return nil, fmt.Errorf("canonical: location is required")
	}
	minYear := cfg.MinYear
	if minYear == 0 {
		minYear = DefaultMinYear
	}
	maxYear := cfg.MaxYear
	if maxYear == 0 {
		maxYear = DefaultMaxYear
	}
	if minYear >= maxYear {
		return nil, fmt.Errorf("canonical: min year %d must precede max year %d", minYear, maxYear)
	}
	return &Canonicalizer{
		minYear:     minYear,
		maxYear:     maxYear,
		minSentinel: time.Date(minYear, time.January, 1, 0, 0, 0, 0, cfg.Location),
		maxSentinel: time.Date(maxYear, time.December, 31, 0, 0, 0, 0, cfg.Location),
	}, nil
}

// Normalize converts v into its canonical form. The result contains only
// strings, numbers, booleans, nil, []any, and map[string]any, so its JSON
// serialization is stable (map keys sort lexicographically on marshal).
func (c *Canonicalizer) Normalize(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return val, nil
	case bool:
		return val, nil
	case int:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case int64:
		return val, nil
	case float32:
		return float64(val), nil
	case float64:
		return val, nil
	case time.Time:
		return c.Timestamp(val), nil
	case bson.DateTime:
		return c.Timestamp(val.Time()), nil
	case bson.ObjectID:
		return val.Hex(), nil
	case bson.Decimal128:
		// Decimals render as strings so precision survives serialization.
		return val.String(), nil
	case bson.A:
		return c.normalizeList(val)
	case []any:
		return c.normalizeList(val)
	case bson.M:
		return c.normalizeMap(val)
	case map[string]any:
		return c.normalizeMap(val)
	case bson.D:
		m := make(map[string]any, len(val))
		for _, elem := range val {
			m[elem.Key] = elem.Value
		}
		return c.normalizeMap(m)
	default:
		return nil, fmt.Errorf("canonical: unsupported value type %T", v)
	}
}

func (c *Canonicalizer) normalizeList(items []any) ([]any, error) {
	out := make([]any, len(items))
	for i, item := range items {
		norm, err := c.Normalize(item)
		if err != nil {
			return nil, err
		}
		out[i] = norm
	}
	return out, nil
}

func (c *Canonicalizer) normalizeMap(m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		norm, err := c.Normalize(v)
		if err != nil {
			return nil, fmt.Errorf("canonical: key %q: %w", k, err)
		}
		out[k] = norm
	}
	return out, nil
}

// Timestamp renders t as UTC ISO-8601. Years at or beyond the configured
// bounds clamp to the sentinel timestamps instead of failing.
func (c *Canonicalizer) Timestamp(t time.Time) string {
	switch {
	case t.Year() <= c.minYear:
		t = c.minSentinel
	case t.Year() >= c.maxYear:
		t = c.maxSentinel
	}
	return t.In(time.UTC).Format(time.RFC3339Nano)
}

// Marshal serializes v in canonical form: normalized values, keys in
// sorted order.
func (c *Canonicalizer) Marshal(v any) ([]byte, error) {
	norm, err := c.Normalize(v)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(norm)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshal: %w", err)
	}
	return data, nil
}

// Hash canonicalizes v and returns the hex SHA-256 digest of the canonical
// JSON alongside the JSON itself.
func (c *Canonicalizer) Hash(v any) (digest string, canonicalJSON []byte, err error) {
	data, err := c.Marshal(v)
	if err != nil {
		return "", nil, err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), data, nil
}
