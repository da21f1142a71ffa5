// Evlock - Inspection Evidence Credential Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/evlock

// Package config defines the pipeline configuration and its layered
// loading: built-in defaults, an optional YAML file, then environment
// variables (highest priority).
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/evlock/internal/models"
)

// Config is the root configuration for the pipeline process.
type Config struct {
	Mongo    MongoConfig    `koanf:"mongo"`
	Postgres PostgresConfig `koanf:"postgres"`
	Pipeline PipelineConfig `koanf:"pipeline"`
	Schemas  SchemasConfig  `koanf:"schemas"`
	Notify   NotifyConfig   `koanf:"notify"`
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// MongoConfig holds the document-store connection settings.
type MongoConfig struct {
	URI            string        `koanf:"uri" validate:"required"`
	Database       string        `koanf:"database" validate:"required"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
	QueryTimeout   time.Duration `koanf:"query_timeout"`
}

// PostgresConfig holds the relational log-store connection settings.
type PostgresConfig struct {
	URL            string        `koanf:"url" validate:"required"`
	MaxConns       int32         `koanf:"max_conns"`
	MinConns       int32         `koanf:"min_conns"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
}

// PipelineConfig holds the batch-processing settings. Everything that was
// a module-level constant in earlier iterations of this design lives here.
type PipelineConfig struct {
	// SystemType is the source-system code stamped on every persisted row
	// and used to scope watermarks and the batch advisory lock.
	SystemType string `koanf:"system_type" validate:"required"`

	// Collections lists the tracked document-store collections, in scan order.
	Collections []string `koanf:"collections" validate:"min=1"`

	// BatchSize caps the number of records folded into one batch.
	BatchSize int `koanf:"batch_size" validate:"gt=0"`

	// Interval between scheduled batches.
	Interval time.Duration `koanf:"interval"`

	// Timezone anchors sentinel timestamps during canonicalization.
	Timezone string `koanf:"timezone" validate:"required"`

	// SentinelMinYear / SentinelMaxYear bound representable credential
	// timestamps; out-of-range years clamp to the sentinel dates.
	SentinelMinYear int `koanf:"sentinel_min_year"`
	SentinelMaxYear int `koanf:"sentinel_max_year"`

	// SiteLocation and SiteEntityStatus seed the foundational SITE credential.
	SiteLocation     string `koanf:"site_location"`
	SiteEntityStatus string `koanf:"site_entity_status"`

	// BackfillConcurrency caps concurrent parent-lookup queries during a scan.
	BackfillConcurrency int `koanf:"backfill_concurrency" validate:"gt=0"`

	// BackfillRatePerSecond throttles parent lookups against the document
	// store. Zero disables throttling.
	BackfillRatePerSecond int `koanf:"backfill_rate_per_second"`
}

// SchemaRef names one credential schema and version.
type SchemaRef struct {
	Name    string `koanf:"name" validate:"required"`
	Version string `koanf:"version" validate:"required"`
}

// SchemasConfig maps credential types to their schema name/version pairs.
type SchemasConfig struct {
	Site        SchemaRef `koanf:"site"`
	Inspection  SchemaRef `koanf:"inspection"`
	Observation SchemaRef `koanf:"observation"`
}

// NotifyConfig controls the credential-minted publisher.
type NotifyConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
	Topic   string `koanf:"topic"`
}

// ServerConfig holds the status/ops HTTP surface settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"gt=0,lte=65535"`
	Timeout         time.Duration `koanf:"timeout"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by the config file and environment.
func defaultConfig() *Config {
	return &Config{
		Mongo: MongoConfig{
			URI:            "",
			Database:       "inspections",
			ConnectTimeout: 10 * time.Second,
			QueryTimeout:   30 * time.Second,
		},
		Postgres: PostgresConfig{
			URL:            "",
			MaxConns:       8,
			MinConns:       1,
			ConnectTimeout: 10 * time.Second,
		},
		Pipeline: PipelineConfig{
			SystemType:            "EAO_EL",
			Collections:           []string{"Inspection", "Observation", "Audio", "Photo", "Video"},
			BatchSize:             3000,
			Interval:              5 * time.Minute,
			Timezone:              "America/Los_Angeles",
			SentinelMinYear:       2,
			SentinelMaxYear:       9998,
			SiteLocation:          "Vancouver",
			SiteEntityStatus:      "ACT",
			BackfillConcurrency:   8,
			BackfillRatePerSecond: 50,
		},
		Schemas: SchemasConfig{
			Site:        SchemaRef{Name: "inspection-site.eao-evidence-locker", Version: "1.0.0"},
			Inspection:  SchemaRef{Name: "safety-inspection.eao-evidence-locker", Version: "1.0.0"},
			Observation: SchemaRef{Name: "inspection-document.eao-evidence-locker", Version: "1.0.0"},
		},
		Notify: NotifyConfig{
			Enabled: false,
			URL:     "nats://127.0.0.1:4222",
			Topic:   "credential.minted",
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3861,
			Timeout:         30 * time.Second,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if _, err := time.LoadLocation(c.Pipeline.Timezone); err != nil {
		return fmt.Errorf("config: invalid pipeline.timezone %q: %w", c.Pipeline.Timezone, err)
	}
	if c.Pipeline.SentinelMinYear >= c.Pipeline.SentinelMaxYear {
		return fmt.Errorf("config: sentinel_min_year %d must precede sentinel_max_year %d",
			c.Pipeline.SentinelMinYear, c.Pipeline.SentinelMaxYear)
	}
	for _, name := range c.Pipeline.Collections {
		if !models.Kind(name).Valid() {
			return fmt.Errorf("config: unknown collection kind %q", name)
		}
	}
	if c.Notify.Enabled && c.Notify.URL == "" {
		return fmt.Errorf("config: notify.url is required when notify.enabled is true")
	}
	return nil
}

// Kinds returns the tracked collections as typed kinds, in configured order.
func (p *PipelineConfig) Kinds() []models.Kind {
	kinds := make([]models.Kind, 0, len(p.Collections))
	for _, name := range p.Collections {
		kinds = append(kinds, models.Kind(name))
	}
	return kinds
}

// Location resolves the configured timezone. Validate guarantees success.
func (p *PipelineConfig) Location() *time.Location {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
