// Evlock - Inspection Evidence Credential Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/evlock

// Package main is the entry point for the Evlock pipeline process.
//
// Evlock scans a MongoDB document store for inspection evidence records
// (inspections, observations, and their audio/photo/video attachments),
// folds new records into a site/inspection hierarchy, and mints
// deterministic verifiable credentials into PostgreSQL log tables. A
// watermark cursor per collection keeps batches incremental, and a unique
// index on the credential hash absorbs replays after a crash.
//
// # Application Architecture
//
// The process initializes components in the following order:
//
//  1. Configuration: defaults, optional YAML file, environment variables (Koanf v2)
//  2. PostgreSQL log store: watermarks, change history, credential log (pgx)
//  3. MongoDB document store behind a circuit breaker (gobreaker)
//  4. Canonicalizer: timezone-anchored timestamp normalization and hashing
//  5. NATS publisher (optional): credential-minted notifications (Watermill)
//  6. Supervisor tree: batch scheduler and ops HTTP server (suture)
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables, config file (config.yaml),
// built-in defaults. MONGO_URI and POSTGRES_URL are required.
//
// # Flags
//
//	-once     run a single batch and exit (cron-style operation)
//	-migrate  apply the log-table schema and exit
//
// Without flags the process runs continuously, scheduling a batch every
// pipeline.interval and serving the status API until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/evlock/internal/api"
	"github.com/tomtom215/evlock/internal/canonical"
	"github.com/tomtom215/evlock/internal/config"
	"github.com/tomtom215/evlock/internal/docstore"
	"github.com/tomtom215/evlock/internal/eventstore"
	"github.com/tomtom215/evlock/internal/logging"
	"github.com/tomtom215/evlock/internal/notify"
	"github.com/tomtom215/evlock/internal/pipeline"
	"github.com/tomtom215/evlock/internal/supervisor"
	"github.com/tomtom215/evlock/internal/supervisor/services"
)

// logStore adapts the concrete eventstore batch type to the orchestrator's
// BatchWriter interface.
type logStore struct {
	*eventstore.Store
}

func (l logStore) BeginBatch(ctx context.Context) (pipeline.BatchWriter, error) {
	return l.Store.BeginBatch(ctx)
}

func main() {
	once := flag.Bool("once", false, "run a single batch and exit")
	migrateOnly := flag.Bool("migrate", false, "apply the log-table schema and exit")
	flag.Parse()

	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("system_type", cfg.Pipeline.SystemType).
		Strs("collections", cfg.Pipeline.Collections).
		Int("batch_size", cfg.Pipeline.BatchSize).
		Dur("interval", cfg.Pipeline.Interval).
		Msg("Starting Evlock pipeline")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *once, *migrateOnly); err != nil {
		logging.Fatal().Err(err).Msg("Pipeline exited with error")
	}
	logging.Info().Msg("Pipeline shut down cleanly")
}

//nolint:gocyclo // Sequential setup steps
func run(ctx context.Context, cfg *config.Config, once, migrateOnly bool) error {
	events, err := eventstore.New(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connect log store: %w", err)
	}
	defer events.Close()
	logging.Info().Msg("Log store connected")

	if err := events.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate log tables: %w", err)
	}
	if migrateOnly {
		logging.Info().Msg("Schema applied, exiting (-migrate)")
		return nil
	}

	mongo, err := docstore.NewMongo(ctx, cfg.Mongo)
	if err != nil {
		return fmt.Errorf("connect document store: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongo.Close(closeCtx); err != nil {
			logging.Error().Err(err).Msg("Error closing document store")
		}
	}()
	docs := docstore.NewBreakerStore(mongo, "mongo")
	logging.Info().Str("database", cfg.Mongo.Database).Msg("Document store connected")

	canon, err := canonical.New(canonical.Config{
		Location: cfg.Pipeline.Location(),
		MinYear:  cfg.Pipeline.SentinelMinYear,
		MaxYear:  cfg.Pipeline.SentinelMaxYear,
	})
	if err != nil {
		return fmt.Errorf("build canonicalizer: %w", err)
	}

	var notifier pipeline.Notifier
	if cfg.Notify.Enabled {
		publisher, err := notify.NewNATS(cfg.Notify, cfg.Pipeline.SystemType)
		if err != nil {
			return fmt.Errorf("connect notifier: %w", err)
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing notifier")
			}
		}()
		notifier = publisher
		logging.Info().Str("topic", cfg.Notify.Topic).Msg("Credential notifications enabled")
	}

	orch := pipeline.NewOrchestrator(
		pipeline.NewScanner(docs, events, cfg.Pipeline),
		pipeline.NewAssembler(),
		pipeline.NewGenerator(docs, events, canon, cfg.Pipeline, cfg.Schemas),
		logStore{events},
		events,
		notifier,
		cfg.Pipeline,
	)

	if once {
		result, err := orch.RunBatch(ctx)
		if err != nil {
			return fmt.Errorf("run batch: %w", err)
		}
		logging.Info().
			Int("scanned", result.Scanned).
			Int("folded", result.Folded).
			Int("dropped", result.Dropped).
			Int("inserted", result.Inserted).
			Int("duplicates", result.Duplicates).
			Dur("duration", result.Duration).
			Msg("Batch complete, exiting (-once)")
		return nil
	}

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           api.NewServer(events, orch, cfg.Server, cfg.Pipeline.SystemType).Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       2 * cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddPipelineService(services.NewPipelineService(orch, cfg.Pipeline.Interval))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	logging.Info().Str("addr", server.Addr).Msg("Serving status API")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor tree: %w", err)
	}
	return nil
}
