// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileOverrides is the optional CONFIG_FILE schema: a deployment that
// prefers a checked-in file over raw environment variables (e.g. to
// version-control non-secret defaults) can set any subset of these
// keys. Values present in the file win over environment defaults but
// never override a value the environment explicitly set, so a single
// override file can be shared across environments that each tune a
// handful of keys via env vars.
type fileOverrides struct {
	Port             string   `yaml:"port"`
	CORSOrigins      []string `yaml:"cors_origins"`
	LLMModel         string   `yaml:"llm_model"`
	LLMProvider      string   `yaml:"llm_provider"`
	EmbedModel       string   `yaml:"embed_model"`
	EmbedDim         int      `yaml:"embed_dim"`
	EmbedRatePerMin  int      `yaml:"embed_rate_per_min"`
	EmbedConcurrency int      `yaml:"embed_concurrency"`
	EmbedBaseBatch   int      `yaml:"embed_base_batch"`
}

// applyFileOverrides reads the file at path (if non-empty) and overlays
// any field it sets onto cfg, skipping fields the environment already
// populated away from their zero value.
func applyFileOverrides(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %q: %w", path, err)
	}
	var ov fileOverrides
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return fmt.Errorf("parse config file %q: %w", path, err)
	}

	if cfg.Port == defaultPort && ov.Port != "" {
		cfg.Port = ov.Port
	}
	if len(cfg.CORSOrigins) == 0 && len(ov.CORSOrigins) > 0 {
		cfg.CORSOrigins = ov.CORSOrigins
	}
	if cfg.LLMModel == defaultLLMModel && ov.LLMModel != "" {
		cfg.LLMModel = ov.LLMModel
	}
	if cfg.LLMProvider == defaultLLMProvider && ov.LLMProvider != "" {
		cfg.LLMProvider = ov.LLMProvider
	}
	if cfg.EmbedModel == defaultEmbedModel && ov.EmbedModel != "" {
		cfg.EmbedModel = ov.EmbedModel
	}
	if cfg.EmbedDim == defaultEmbedDim && ov.EmbedDim != 0 {
		cfg.EmbedDim = ov.EmbedDim
	}
	if cfg.EmbedRatePerMin == defaultEmbedRatePerMin && ov.EmbedRatePerMin != 0 {
		cfg.EmbedRatePerMin = ov.EmbedRatePerMin
	}
	if cfg.EmbedConcurrency == defaultEmbedConcurrency && ov.EmbedConcurrency != 0 {
		cfg.EmbedConcurrency = ov.EmbedConcurrency
	}
	if cfg.EmbedBaseBatch == defaultEmbedBaseBatch && ov.EmbedBaseBatch != 0 {
		cfg.EmbedBaseBatch = ov.EmbedBaseBatch
	}
	return nil
}
