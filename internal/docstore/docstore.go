// Evlock - Inspection Evidence Credential Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/evlock

// Package docstore is the narrow read contract the pipeline holds against
// the upstream inspections document store: find-many and find-one with a
// small closed filter algebra (equals, greater-than, field-absent, and).
// The production implementation is MongoDB; Memory backs tests.
package docstore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Document is one decoded document from the store.
type Document map[string]any

// Store is the read-only contract the scanner and generator consume.
type Store interface {
	// FindMany returns the documents in collection matching filter,
	// honoring any sort and limit options.
	FindMany(ctx context.Context, collection string, filter Filter, opts ...FindOption) ([]Document, error)

	// FindOne returns the first document matching filter, or (nil, nil)
	// when no document matches.
	FindOne(ctx context.Context, collection string, filter Filter) (Document, error)
}

// FindQuery carries the resolved find options.
type FindQuery struct {
	SortField string
	SortAsc   bool
	Limit     int64
}

// FindOption adjusts a FindMany call.
type FindOption func(*FindQuery)

// SortAsc orders results ascending by field.
func SortAsc(field string) FindOption {
	return func(q *FindQuery) { q.SortField, q.SortAsc = field, true }
}

// Limit caps the number of returned documents. Zero means unbounded.
func Limit(n int64) FindOption {
	return func(q *FindQuery) { q.Limit = n }
}

// ResolveFindOptions folds opts into a FindQuery.
func ResolveFindOptions(opts []FindOption) FindQuery {
	var q FindQuery
	for _, o := range opts {
		o(&q)
	}
	return q
}

type filterOp int

const (
	opEq filterOp = iota
	opGt
	opAbsent
	opAnd
)

// Filter is one node of the closed filter algebra.
type Filter struct {
	op       filterOp
	field    string
	value    any
	children []Filter
}

// Eq matches documents whose field equals value.
func Eq(field string, value any) Filter {
	return Filter{op: opEq, field: field, value: value}
}

// Gt matches documents whose field is strictly greater than value.
func Gt(field string, value any) Filter {
	return Filter{op: opGt, field: field, value: value}
}

// FieldAbsent matches documents that do not carry the field at all.
func FieldAbsent(field string) Filter {
	return Filter{op: opAbsent, field: field}
}

// And matches documents satisfying every child filter.
func And(filters ...Filter) Filter {
	return Filter{op: opAnd, children: filters}
}

// Matches evaluates the filter against a decoded document. Memory and the
// scanner tests rely on this sharing semantics with the Mongo translation.
func (f Filter) Matches(doc Document) bool {
	switch f.op {
	case opEq:
		v, ok := doc[f.field]
		if !ok {
			return false
		}
		cmp, comparable := compareValues(v, f.value)
		return comparable && cmp == 0
	case opGt:
		v, ok := doc[f.field]
		if !ok {
			return false
		}
		cmp, comparable := compareValues(v, f.value)
		return comparable && cmp > 0
	case opAbsent:
		_, ok := doc[f.field]
		return !ok
	case opAnd:
		for _, child := range f.children {
			if !child.Matches(doc) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// compareValues compares two document values of like kind. Returns
// comparable=false for mismatched or unsupported kinds.
func compareValues(a, b any) (cmp int, comparable bool) {
	if at, ok := timeValue(a); ok {
		bt, ok := timeValue(b)
		if !ok {
			return 0, false
		}
		return at.Compare(bt), true
	}
	if as, ok := stringValue(a); ok {
		bs, ok := stringValue(b)
		if !ok {
			return 0, false
		}
		switch {
		case as < bs:
			return -1, true
		case as > bs:
			return 1, true
		default:
			return 0, true
		}
	}
	if af, ok := numberValue(a); ok {
		bf, ok := numberValue(b)
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

func timeValue(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case bson.DateTime:
		return t.Time(), true
	default:
		return time.Time{}, false
	}
}

func stringValue(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case bson.ObjectID:
		return s.Hex(), true
	default:
		return "", false
	}
}

func numberValue(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// String extracts a string-valued field, rendering object ids as hex.
// Returns "" when the field is absent or of another kind.
func (d Document) String(field string) string {
	s, _ := stringValue(d[field])
	return s
}

// Time extracts a timestamp field. The zero time means absent.
func (d Document) Time(field string) time.Time {
	t, _ := timeValue(d[field])
	return t
}
