// Evlock - Inspection Evidence Credential Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/evlock

package api

import (
	"errors"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/tomtom215/evlock/internal/eventstore"
	"github.com/tomtom215/evlock/internal/logging"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// handleHealth reports process liveness and log-store reachability.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.status.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"detail": "log store unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus serves the processed/outstanding/error counts and recent
// failures for both log tables.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.status.Status(r.Context(), s.system, recentFailLimit)
	if err != nil {
		logging.Err(err).Msg("Status query failed")
		writeError(w, http.StatusInternalServerError, "status query failed")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handlePipelineState reports the orchestrator's batch-cycle state.
func (s *Server) handlePipelineState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"system_type": s.system,
		"state":       s.runner.State().String(),
	})
}

// handlePipelineRun triggers one batch synchronously. A batch already
// running elsewhere maps to 409.
func (s *Server) handlePipelineRun(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	result, err := s.runner.RunBatch(r.Context())
	if err != nil {
		if errors.Is(err, eventstore.ErrBatchInProgress) {
			writeError(w, http.StatusConflict, "batch already in progress")
			return
		}
		logging.Err(err).Msg("Manual batch failed")
		writeError(w, http.StatusInternalServerError, "batch failed")
		return
	}
	logging.Info().Dur("duration", time.Since(start)).Msg("Manual batch complete")
	writeJSON(w, http.StatusOK, result)
}
