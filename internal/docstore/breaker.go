// Evlock - Inspection Evidence Credential Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/evlock

package docstore

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/evlock/internal/logging"
)

// BreakerStore wraps a Store with circuit-breaker protection so a
// misbehaving document store fails fast instead of stalling every batch.
type BreakerStore struct {
	inner Store
	cb    *gobreaker.CircuitBreaker[any]
}

// NewBreakerStore wraps inner with a circuit breaker. The breaker trips
// after five consecutive failures and probes again after thirty seconds.
func NewBreakerStore(inner Store, name string) *BreakerStore {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Document store circuit breaker state change")
		},
	}
	return &BreakerStore{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker[any](settings),
	}
}

// State reports the breaker state for the status surface.
func (b *BreakerStore) State() string {
	return b.cb.State().String()
}

// FindMany implements Store.
func (b *BreakerStore) FindMany(ctx context.Context, collection string, filter Filter, opts ...FindOption) ([]Document, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return b.inner.FindMany(ctx, collection, filter, opts...)
	})
	if err != nil {
		return nil, err
	}
	docs, _ := res.([]Document)
	return docs, nil
}

// FindOne implements Store.
func (b *BreakerStore) FindOne(ctx context.Context, collection string, filter Filter) (Document, error) {
	res, err := b.cb.Execute(func() (any, error) {
		doc, err := b.inner.FindOne(ctx, collection, filter)
		if err != nil {
			return nil, err
		}
		// A nil Document is a valid miss, not a breaker failure.
		return doc, nil
	})
	if err != nil {
		return nil, err
	}
	doc, _ := res.(Document)
	return doc, nil
}
