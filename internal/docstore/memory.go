// Evlock - Inspection Evidence Credential Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/evlock

package docstore

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-memory Store used by tests. Filters are evaluated with
// Filter.Matches so query semantics stay aligned with the Mongo backend.
type Memory struct {
	mu          sync.RWMutex
	collections map[string][]Document
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string][]Document)}
}

// Insert appends documents to a collection.
func (m *Memory) Insert(collection string, docs ...Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[collection] = append(m.collections[collection], docs...)
}

// FindMany implements Store.
func (m *Memory) FindMany(_ context.Context, collection string, filter Filter, opts ...FindOption) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Document
	for _, doc := range m.collections[collection] {
		if filter.Matches(doc) {
			out = append(out, copyDoc(doc))
		}
	}

	q := ResolveFindOptions(opts)
	if q.SortField != "" {
		sort.SliceStable(out, func(i, j int) bool {
			cmp, ok := compareValues(out[i][q.SortField], out[j][q.SortField])
			if !ok {
				return false
			}
			if q.SortAsc {
				return cmp < 0
			}
			return cmp > 0
		})
	}
	if q.Limit > 0 && int64(len(out)) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// FindOne implements Store.
func (m *Memory) FindOne(_ context.Context, collection string, filter Filter) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, doc := range m.collections[collection] {
		if filter.Matches(doc) {
			return copyDoc(doc), nil
		}
	}
	return nil, nil
}

// copyDoc shallow-copies a document. The Mongo backend decodes a fresh map
// per fetch, so callers may mutate results without touching stored state;
// the fake keeps the same contract.
func copyDoc(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
