// Evlock - Inspection Evidence Credential Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/evlock

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/evlock/internal/pipeline"
)

type countingRunner struct {
	runs atomic.Int64
	err  error
}

func (c *countingRunner) RunBatch(context.Context) (*pipeline.BatchResult, error) {
	c.runs.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return &pipeline.BatchResult{}, nil
}

func TestPipelineServiceRunsImmediatelyAndOnTick(t *testing.T) {
	runner := &countingRunner{}
	svc := NewPipelineService(runner, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Millisecond)
	defer cancel()
	if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Serve() error = %v, want deadline exceeded", err)
	}

	runs := runner.runs.Load()
	if runs < 2 {
		t.Errorf("runner ran %d times, want at least 2 (immediate plus ticks)", runs)
	}
}

func TestPipelineServiceSurvivesBatchFailure(t *testing.T) {
	runner := &countingRunner{err: errors.New("source down")}
	svc := NewPipelineService(runner, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 70*time.Millisecond)
	defer cancel()
	if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Serve() error = %v, want deadline exceeded", err)
	}
	if runner.runs.Load() < 2 {
		t.Error("service stopped retrying after a batch failure")
	}
}

func TestPipelineServiceStopsOnCancel(t *testing.T) {
	runner := &countingRunner{}
	svc := NewPipelineService(runner, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v, want canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
	if runner.runs.Load() != 1 {
		t.Errorf("runner ran %d times, want exactly the immediate run", runner.runs.Load())
	}
}
