// Evlock - Inspection Evidence Credential Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/evlock

package services

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/evlock/internal/eventstore"
	"github.com/tomtom215/evlock/internal/logging"
	"github.com/tomtom215/evlock/internal/pipeline"
)

// BatchRunner is the orchestrator surface the scheduler drives.
type BatchRunner interface {
	RunBatch(ctx context.Context) (*pipeline.BatchResult, error)
}

// PipelineService runs one batch per tick. A failed batch is logged and
// retried on the next tick rather than crashing the service; the batch
// itself is the unit of retry.
type PipelineService struct {
	runner   BatchRunner
	interval time.Duration
}

// NewPipelineService wraps runner with an interval scheduler.
func NewPipelineService(runner BatchRunner, interval time.Duration) *PipelineService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &PipelineService{runner: runner, interval: interval}
}

// Serve implements suture.Service. The first batch runs immediately.
func (p *PipelineService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

func (p *PipelineService) runOnce(ctx context.Context) {
	_, err := p.runner.RunBatch(ctx)
	switch {
	case err == nil:
	case errors.Is(err, eventstore.ErrBatchInProgress):
		logging.Debug().Msg("Batch skipped, another holder has the lock")
	case errors.Is(err, context.Canceled):
	default:
		logging.Err(err).Msg("Scheduled batch failed, will retry next tick")
	}
}

// String identifies the service in supervisor logs.
func (p *PipelineService) String() string { return "pipeline-scheduler" }
