// Evlock - Inspection Evidence Credential Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/evlock

// Package metrics exposes the Prometheus instrumentation for the
// pipeline: batch timing and outcomes, scan volumes, credential counts
// by outcome, and watermark positions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "evlock_batch_duration_seconds",
			Help:    "Duration of one full pipeline batch in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evlock_batches_total",
			Help: "Total number of pipeline batches by result",
		},
		[]string{"result"}, // "success", "failed", "skipped"
	)

	RecordsScanned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evlock_records_scanned_total",
			Help: "Total number of source records returned by scans",
		},
		[]string{"collection"},
	)

	RecordsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "evlock_records_dropped_total",
			Help: "Total number of malformed records dropped during assembly",
		},
	)

	CredentialsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evlock_credentials_recorded_total",
			Help: "Total number of credential insert attempts by outcome",
		},
		[]string{"credential_type", "outcome"},
	)

	WatermarkTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "evlock_watermark_timestamp_seconds",
			Help: "Current watermark object date per collection, as a Unix timestamp",
		},
		[]string{"collection"},
	)

	PipelineState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "evlock_pipeline_state",
			Help: "Current orchestrator state (0=idle 1=scanning 2=assembling 3=generating 4=persisting 5=watermark_advance 6=failed)",
		},
	)

	DocStoreLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evlock_docstore_lookups_total",
			Help: "Total number of point lookups against the document store",
		},
		[]string{"collection", "result"}, // result: "hit", "miss", "error"
	)
)

// ObserveBatch records the duration and result of one batch.
func ObserveBatch(d time.Duration, result string) {
	BatchDuration.Observe(d.Seconds())
	BatchesTotal.WithLabelValues(result).Inc()
}

// SetWatermark publishes the advanced watermark position for a collection.
func SetWatermark(collection string, objectDate time.Time) {
	WatermarkTimestamp.WithLabelValues(collection).Set(float64(objectDate.Unix()))
}
