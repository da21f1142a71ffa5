// Evlock - Inspection Evidence Credential Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/evlock

package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tomtom215/evlock/internal/config"
	"github.com/tomtom215/evlock/internal/docstore"
	"github.com/tomtom215/evlock/internal/logging"
	"github.com/tomtom215/evlock/internal/metrics"
	"github.com/tomtom215/evlock/internal/models"
)

// Document fields the scanner reads from every tracked collection.
const (
	fieldID            = "_id"
	fieldUpdatedAt     = "_updated_at"
	fieldCreatedAt     = "_created_at"
	fieldUploadedAt    = "_uploaded_at"
	fieldUploadedHash  = "_uploaded_hash"
	fieldProject       = "project"
	fieldInspectionID  = "inspectionId"
	fieldObservationID = "observationId"

	// fieldExported marks documents already exported to the evidence
	// locker; the scanner only ever selects documents lacking it.
	fieldExported = "evlocker_date"
)

// WatermarkReader is the cursor lookup the scanner needs from the log store.
type WatermarkReader interface {
	Watermark(ctx context.Context, systemType string, kind models.Kind) (time.Time, bool, error)
}

// Scanner discovers unprocessed source records. For every tracked
// collection it selects documents lacking the export marker, bounded
// below by the collection's watermark when one exists, then backfills
// project linkage for non-inspection records by parent lookup.
type Scanner struct {
	docs  docstore.Store
	marks WatermarkReader
	cfg   config.PipelineConfig
	limit *rate.Limiter
}

// NewScanner wires a scanner against the document store and watermark reader.
func NewScanner(docs docstore.Store, marks WatermarkReader, cfg config.PipelineConfig) *Scanner {
	lim := rate.NewLimiter(rate.Inf, 1)
	if cfg.BackfillRatePerSecond > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.BackfillRatePerSecond), cfg.BackfillRatePerSecond)
	}
	return &Scanner{docs: docs, marks: marks, cfg: cfg, limit: lim}
}

// Scan returns the flat, unordered set of unprocessed records across all
// tracked collections. Downstream stages must not rely on ordering.
func (s *Scanner) Scan(ctx context.Context) ([]models.SourceRecord, error) {
	var records []models.SourceRecord
	for _, kind := range s.cfg.Kinds() {
		kindRecords, err := s.scanKind(ctx, kind)
		if err != nil {
			return nil, err
		}
		metrics.RecordsScanned.WithLabelValues(kind.Collection()).Add(float64(len(kindRecords)))
		records = append(records, kindRecords...)
	}

	if err := s.backfillProjects(ctx, records); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Scanner) scanKind(ctx context.Context, kind models.Kind) ([]models.SourceRecord, error) {
	watermark, bounded, err := s.marks.Watermark(ctx, s.cfg.SystemType, kind)
	if err != nil {
		return nil, fmt.Errorf("%w: read watermark %s: %w", ErrSinkUnavailable, kind, err)
	}

	filter := docstore.FieldAbsent(fieldExported)
	if bounded {
		filter = docstore.And(filter, docstore.Gt(fieldUpdatedAt, watermark))
	}

	docs, err := s.docs.FindMany(ctx, kind.Collection(), filter,
		docstore.SortAsc(fieldUpdatedAt), docstore.Limit(int64(s.cfg.BatchSize)))
	if err != nil {
		return nil, fmt.Errorf("%w: scan %s: %w", ErrSourceUnavailable, kind, err)
	}

	records := make([]models.SourceRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, s.toRecord(kind, doc))
	}

	logging.Debug().
		Str("collection", kind.Collection()).
		Bool("bounded", bounded).
		Int("records", len(records)).
		Msg("Collection scanned")
	return records, nil
}

// toRecord projects one raw document into a SourceRecord snapshot.
func (s *Scanner) toRecord(kind models.Kind, doc docstore.Document) models.SourceRecord {
	rec := models.SourceRecord{
		SystemType: s.cfg.SystemType,
		Kind:       kind,
		ObjectID:   doc.String(fieldID),
		ObjectDate: doc.Time(fieldUpdatedAt),
		UploadDate: doc.Time(fieldUploadedAt),
		UploadHash: doc.String(fieldUploadedHash),
	}

	switch {
	case kind == models.KindInspection:
		rec.ProjectName = doc.String(fieldProject)
		rec.ProjectID = models.ProjectNameToID(rec.ProjectName)
		rec.InspectionID = rec.ObjectID
	case kind == models.KindObservation:
		rec.ObservationID = rec.ObjectID
		rec.InspectionID = doc.String(fieldInspectionID)
	default:
		rec.ObservationID = doc.String(fieldObservationID)
		rec.InspectionID = doc.String(fieldInspectionID)
	}
	return rec
}

// backfillProjects resolves project linkage for non-inspection records by
// looking up the parent inspection. Lookups are independent point reads,
// issued concurrently under the configured concurrency and rate caps, and
// all complete before assembly begins. A missing parent leaves the record
// without project linkage; the assembler drops it there.
func (s *Scanner) backfillProjects(ctx context.Context, records []models.SourceRecord) error {
	pending := make(map[string]struct{})
	for _, rec := range records {
		if rec.Kind != models.KindInspection && rec.InspectionID != "" && rec.ProjectID == "" {
			pending[rec.InspectionID] = struct{}{}
		}
	}
	if len(pending) == 0 {
		return nil
	}

	var mu sync.Mutex
	projects := make(map[string]string, len(pending))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.BackfillConcurrency)
	for inspectionID := range pending {
		g.Go(func() error {
			if err := s.limit.Wait(gctx); err != nil {
				return err
			}
			doc, err := s.docs.FindOne(gctx, models.KindInspection.Collection(),
				docstore.Eq(fieldID, inspectionID))
			if err != nil {
				metrics.DocStoreLookups.WithLabelValues(models.KindInspection.Collection(), "error").Inc()
				return fmt.Errorf("%w: backfill inspection %s: %w", ErrSourceUnavailable, inspectionID, err)
			}
			if doc == nil {
				metrics.DocStoreLookups.WithLabelValues(models.KindInspection.Collection(), "miss").Inc()
				logging.Warn().
					Str("inspection_id", inspectionID).
					Msg("Parent inspection not found during project backfill")
				return nil
			}
			metrics.DocStoreLookups.WithLabelValues(models.KindInspection.Collection(), "hit").Inc()
			mu.Lock()
			projects[inspectionID] = doc.String(fieldProject)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i := range records {
		rec := &records[i]
		if rec.Kind == models.KindInspection || rec.ProjectID != "" {
			continue
		}
		if name, ok := projects[rec.InspectionID]; ok && name != "" {
			rec.ProjectName = name
			rec.ProjectID = models.ProjectNameToID(name)
		}
	}
	return nil
}
