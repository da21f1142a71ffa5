// Evlock - Inspection Evidence Credential Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/evlock

// Package api exposes the operational HTTP surface: health, metrics, the
// read-only status view over the log tables, and a manual batch trigger.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/evlock/internal/config"
	"github.com/tomtom215/evlock/internal/models"
	"github.com/tomtom215/evlock/internal/pipeline"
)

// recentFailLimit bounds the failed rows returned by the status endpoint.
const recentFailLimit = 20

// StatusReader is the log-store view the API serves.
type StatusReader interface {
	Status(ctx context.Context, systemType string, recentFails int) (*models.PipelineStatus, error)
	Ping(ctx context.Context) error
}

// BatchRunner triggers pipeline batches and reports orchestrator state.
type BatchRunner interface {
	RunBatch(ctx context.Context) (*pipeline.BatchResult, error)
	State() pipeline.State
}

// Server holds the handler dependencies.
type Server struct {
	status StatusReader
	runner BatchRunner
	cfg    config.ServerConfig
	system string
}

// NewServer wires the API against the log store and orchestrator.
func NewServer(status StatusReader, runner BatchRunner, cfg config.ServerConfig, systemType string) *Server {
	return &Server{status: status, runner: runner, cfg: cfg, system: systemType}
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(httprate.LimitByIP(s.cfg.RateLimitReqs, s.cfg.RateLimitWindow))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/pipeline/state", s.handlePipelineState)
		r.Post("/pipeline/run", s.handlePipelineRun)
	})

	return r
}
