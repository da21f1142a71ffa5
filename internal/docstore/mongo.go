// Evlock - Inspection Evidence Credential Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/evlock

package docstore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/tomtom215/evlock/internal/config"
	"github.com/tomtom215/evlock/internal/logging"
)

// Mongo implements Store over a MongoDB database.
type Mongo struct {
	client       *mongo.Client
	db           *mongo.Database
	queryTimeout time.Duration
}

// NewMongo connects to the document store and verifies the connection
// with a ping before returning.
func NewMongo(ctx context.Context, cfg config.MongoConfig) (*Mongo, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ConnectTimeout)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("docstore: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("docstore: ping: %w", err)
	}

	logging.Info().Str("database", cfg.Database).Msg("Document store connected")

	return &Mongo{
		client:       client,
		db:           client.Database(cfg.Database),
		queryTimeout: cfg.QueryTimeout,
	}, nil
}

// Close disconnects from the document store.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// FindMany implements Store.
func (m *Mongo) FindMany(ctx context.Context, collection string, filter Filter, opts ...FindOption) ([]Document, error) {
	ctx, cancel := context.WithTimeout(ctx, m.queryTimeout)
	defer cancel()

	q := ResolveFindOptions(opts)
	findOpts := options.Find()
	if q.SortField != "" {
		dir := -1
		if q.SortAsc {
			dir = 1
		}
		findOpts = findOpts.SetSort(bson.D{{Key: q.SortField, Value: dir}})
	}
	if q.Limit > 0 {
		findOpts = findOpts.SetLimit(q.Limit)
	}

	cur, err := m.db.Collection(collection).Find(ctx, toBSON(filter), findOpts)
	if err != nil {
		return nil, fmt.Errorf("docstore: find %s: %w", collection, err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var docs []Document
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, fmt.Errorf("docstore: decode %s: %w", collection, err)
		}
		docs = append(docs, Document(raw))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("docstore: cursor %s: %w", collection, err)
	}
	return docs, nil
}

// FindOne implements Store. A missing document is not an error.
func (m *Mongo) FindOne(ctx context.Context, collection string, filter Filter) (Document, error) {
	ctx, cancel := context.WithTimeout(ctx, m.queryTimeout)
	defer cancel()

	var raw bson.M
	err := m.db.Collection(collection).FindOne(ctx, toBSON(filter)).Decode(&raw)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: find one %s: %w", collection, err)
	}
	return Document(raw), nil
}

// toBSON translates a Filter into its MongoDB query form.
func toBSON(f Filter) bson.D {
	switch f.op {
	case opEq:
		return bson.D{{Key: f.field, Value: f.value}}
	case opGt:
		return bson.D{{Key: f.field, Value: bson.D{{Key: "$gt", Value: f.value}}}}
	case opAbsent:
		return bson.D{{Key: f.field, Value: bson.D{{Key: "$exists", Value: false}}}}
	case opAnd:
		clauses := make(bson.A, 0, len(f.children))
		for _, child := range f.children {
			clauses = append(clauses, toBSON(child))
		}
		return bson.D{{Key: "$and", Value: clauses}}
	default:
		return bson.D{}
	}
}
