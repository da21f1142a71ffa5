// Evlock - Inspection Evidence Credential Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/evlock

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/evlock/config.yaml",
	"/etc/evlock/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// envVarMap maps environment variable names to koanf config paths.
// Variables not listed here are ignored.
var envVarMap = map[string]string{
	"MONGO_URI":                  "mongo.uri",
	"MONGO_DATABASE":             "mongo.database",
	"MONGO_CONNECT_TIMEOUT":      "mongo.connect_timeout",
	"MONGO_QUERY_TIMEOUT":        "mongo.query_timeout",
	"POSTGRES_URL":               "postgres.url",
	"POSTGRES_MAX_CONNS":         "postgres.max_conns",
	"POSTGRES_MIN_CONNS":         "postgres.min_conns",
	"SYSTEM_TYPE":                "pipeline.system_type",
	"PIPELINE_COLLECTIONS":       "pipeline.collections",
	"PIPELINE_BATCH_SIZE":        "pipeline.batch_size",
	"PIPELINE_INTERVAL":          "pipeline.interval",
	"PIPELINE_TIMEZONE":          "pipeline.timezone",
	"SITE_LOCATION":              "pipeline.site_location",
	"NOTIFY_ENABLED":             "notify.enabled",
	"NOTIFY_NATS_URL":            "notify.url",
	"NOTIFY_TOPIC":               "notify.topic",
	"HTTP_HOST":                  "server.host",
	"HTTP_PORT":                  "server.port",
	"HTTP_TIMEOUT":               "server.timeout",
	"HTTP_CORS_ORIGINS":          "server.cors_origins",
	"HTTP_RATE_LIMIT_REQS":       "server.rate_limit_reqs",
	"LOG_LEVEL":                  "logging.level",
	"LOG_FORMAT":                 "logging.format",
	"LOG_CALLER":                 "logging.caller",
}

// sliceConfigPaths are parsed as comma-separated lists when supplied via
// environment variables.
var sliceConfigPaths = []string{
	"pipeline.collections",
	"server.cors_origins",
}

// Load builds the configuration from layered sources, highest priority last:
//
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables
//
// The result is validated before being returned.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider("", ".", func(key string) string {
		return envVarMap[key]
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// processSliceFields converts comma-separated env strings into slices for
// the known slice-valued paths.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("set %s: %w", path, err)
			}
		}
	}
	return nil
}
