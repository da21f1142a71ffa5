// Evlock - Inspection Evidence Credential Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/evlock

package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/tomtom215/evlock/internal/canonical"
	"github.com/tomtom215/evlock/internal/config"
	"github.com/tomtom215/evlock/internal/docstore"
	"github.com/tomtom215/evlock/internal/logging"
	"github.com/tomtom215/evlock/internal/models"
)

// SiteCredentialChecker is the credential-log lookup the generator uses
// to issue the foundational SITE credential only once per project.
type SiteCredentialChecker interface {
	HasSiteCredential(ctx context.Context, systemType, projectID string) (bool, error)
}

// Generator walks the assembled tree and produces credential payloads
// with deterministic identifiers and canonicalized, hashed JSON bodies.
// Given identical tree contents the output is identical, including order.
type Generator struct {
	docs    docstore.Store
	sites   SiteCredentialChecker
	canon   *canonical.Canonicalizer
	cfg     config.PipelineConfig
	schemas config.SchemasConfig
}

// NewGenerator wires a generator.
func NewGenerator(docs docstore.Store, sites SiteCredentialChecker, canon *canonical.Canonicalizer, cfg config.PipelineConfig, schemas config.SchemasConfig) *Generator {
	return &Generator{docs: docs, sites: sites, canon: canon, cfg: cfg, schemas: schemas}
}

// Generate traverses sites by projectID and inspections by inspectionID,
// both sorted, and emits at most one SITE credential per project plus
// exactly one INSPC credential per inspection.
func (g *Generator) Generate(ctx context.Context, tree map[string]*models.SiteNode) ([]models.Credential, error) {
	var creds []models.Credential

	for _, projectID := range sortedKeys(tree) {
		site := tree[projectID]
		inspectionIDs := sortedKeys(site.Inspections)
		if len(inspectionIDs) == 0 {
			continue
		}

		hasSite, err := g.sites.HasSiteCredential(ctx, g.cfg.SystemType, site.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("%w: site credential pre-check %s: %w", ErrSinkUnavailable, site.ProjectID, err)
		}

		for _, inspectionID := range inspectionIDs {
			inspection := site.Inspections[inspectionID]

			if !hasSite {
				cred, err := g.siteCredential(site, inspection)
				if err != nil {
					return nil, err
				}
				creds = append(creds, cred)
				hasSite = true
			}

			cred, err := g.inspectionCredential(ctx, site, inspection)
			if err != nil {
				return nil, err
			}
			creds = append(creds, cred)

			for _, observationID := range sortedKeys(inspection.Observations) {
				creds = append(creds, g.observationCredentials(inspection.Observations[observationID])...)
			}
		}
	}

	logging.Info().Int("credentials", len(creds)).Msg("Credentials generated")
	return creds, nil
}

// siteCredential builds the foundational SITE credential for a project.
// The credential id is the projectID itself.
func (g *Generator) siteCredential(site *models.SiteNode, inspection *models.InspectionNode) (models.Credential, error) {
	payload := map[string]any{
		"project_id":    site.ProjectID,
		"project_name":  site.ProjectName,
		"location":      g.cfg.SiteLocation,
		"entity_status": g.cfg.SiteEntityStatus,
	}
	return g.finalize(models.CredentialSite, site.ProjectID, g.schemas.Site, payload, site, inspection)
}

// inspectionCredential builds the INSPC credential from a fresh full
// fetch of the inspection document; the scan row alone lacks the nested
// observation data carried by the full document.
func (g *Generator) inspectionCredential(ctx context.Context, site *models.SiteNode, inspection *models.InspectionNode) (models.Credential, error) {
	doc, err := g.fetchInspection(ctx, inspection.ObjectID)
	if err != nil {
		return models.Credential{}, err
	}

	payload := map[string]any{
		"project_id":    site.ProjectID,
		"inspection_id": doc.String(fieldID),
		"created_date":  doc[fieldCreatedAt],
		"updated_date":  doc[fieldUpdatedAt],
		"hash_value":    doc[fieldUploadedHash],
	}
	id := site.ProjectID + ":" + inspection.ObjectID
	return g.finalize(models.CredentialInspection, id, g.schemas.Inspection, payload, site, inspection)
}

// observationCredentials is the reserved extension point for OBSVN
// credentials covering observations and their media. Nothing is issued
// for them yet; the traversal hook stays so issuance can be added without
// reshaping the generator.
func (g *Generator) observationCredentials(_ *models.ObservationNode) []models.Credential {
	return nil
}

// finalize canonicalizes and hashes the payload and fills the source
// linkage for the credential-log row.
func (g *Generator) finalize(credType models.CredentialType, id string, schema config.SchemaRef, payload map[string]any, site *models.SiteNode, inspection *models.InspectionNode) (models.Credential, error) {
	hash, canonicalJSON, err := g.canon.Hash(payload)
	if err != nil {
		return models.Credential{}, fmt.Errorf("canonicalize %s credential %s: %w", credType, id, err)
	}
	return models.Credential{
		Type:          credType,
		ID:            id,
		SchemaName:    schema.Name,
		SchemaVersion: schema.Version,
		Payload:       payload,
		CanonicalJSON: canonicalJSON,
		Hash:          hash,
		SourceKind:    models.KindInspection,
		SourceID:      inspection.ObjectID,
		ProjectID:     site.ProjectID,
		ProjectName:   site.ProjectName,
	}, nil
}

// fetchInspection reads the full inspection document plus its nested
// observations and their first media items, mirroring the evidence view
// the locker exports.
func (g *Generator) fetchInspection(ctx context.Context, inspectionID string) (docstore.Document, error) {
	doc, err := g.docs.FindOne(ctx, models.KindInspection.Collection(), docstore.Eq(fieldID, inspectionID))
	if err != nil {
		return nil, fmt.Errorf("%w: fetch inspection %s: %w", ErrSourceUnavailable, inspectionID, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("inspection %s disappeared between scan and generate", inspectionID)
	}

	observations, err := g.docs.FindMany(ctx, models.KindObservation.Collection(),
		docstore.Eq(fieldInspectionID, inspectionID))
	if err != nil {
		return nil, fmt.Errorf("%w: fetch observations for %s: %w", ErrSourceUnavailable, inspectionID, err)
	}

	nested := make([]any, 0, len(observations))
	for _, obs := range observations {
		for _, kind := range []models.Kind{models.KindAudio, models.KindPhoto, models.KindVideo} {
			media, err := g.docs.FindOne(ctx, kind.Collection(),
				docstore.Eq(fieldObservationID, obs.String(fieldID)))
			if err != nil {
				return nil, fmt.Errorf("%w: fetch %s for observation %s: %w",
					ErrSourceUnavailable, kind, obs.String(fieldID), err)
			}
			if media != nil {
				obs[kind.Collection()] = map[string]any(media)
			}
		}
		nested = append(nested, map[string]any(obs))
	}
	doc[models.KindObservation.Collection()] = nested
	return doc, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
