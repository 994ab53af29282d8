// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads ragserve's configuration from environment
// variables. There is no config-framework dependency: every value is
// read directly with os.Getenv and a typed default, matching the
// teacher's own main.go style. Required keys fail fast with a
// descriptive error so the process lifecycle can exit(1) on a
// configuration error per the CLI's documented exit codes.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every environment-derived setting ragserve reads at
// startup. Fields are grouped by the component that owns them.
type Config struct {
	// Store (Vector Store Gateway)
	StoreURL string
	GraphURL string // optional

	// LLM provider
	LLMAPIKey   string
	LLMBaseURL  string
	LLMModel    string
	LLMProvider string // "anthropic" | "openai"

	// Embedding provider
	EmbedAPIKey  string
	EmbedBaseURL string
	EmbedModel   string
	EmbedDim     int

	// HTTP surface
	Port            string
	MaxRequestBytes int64
	CORSOrigins     []string

	// Cache Layer
	CacheBytes int64
	CacheTTL   time.Duration

	// Embedding Client
	EmbedRatePerMin  int
	EmbedConcurrency int
	EmbedBaseBatch   int

	// Shutdown
	ShutdownGrace time.Duration
}

// Load reads Config from the environment, applying defaults and
// validating required keys. Required-but-missing keys are reported
// together so a misconfigured deployment fails with one readable
// error rather than one key at a time.
const (
	defaultPort             = "8080"
	defaultLLMModel         = "claude-sonnet-4-5"
	defaultLLMProvider      = "anthropic"
	defaultEmbedModel       = "text-embedding-3-small"
	defaultEmbedDim         = 1536
	defaultEmbedRatePerMin  = 60
	defaultEmbedConcurrency = 3
	defaultEmbedBaseBatch   = 100
)

func Load() (Config, error) {
	var missing []string
	require := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := Config{
		StoreURL:    require("STORE_URL"),
		GraphURL:    os.Getenv("GRAPH_URL"),
		LLMAPIKey:   require("LLM_API_KEY"),
		LLMBaseURL:  os.Getenv("LLM_BASE_URL"),
		LLMModel:    getenvDefault("LLM_MODEL", defaultLLMModel),
		LLMProvider: getenvDefault("LLM_PROVIDER", defaultLLMProvider),

		EmbedAPIKey:  require("EMBED_API_KEY"),
		EmbedBaseURL: os.Getenv("EMBED_BASE_URL"),
		EmbedModel:   getenvDefault("EMBED_MODEL", defaultEmbedModel),
		EmbedDim:     getenvInt("EMBED_DIM", defaultEmbedDim),

		Port:            getenvDefault("PORT", defaultPort),
		MaxRequestBytes: getenvInt64("MAX_REQUEST_BYTES", 1<<20),
		CORSOrigins:     getenvList("CORS_ORIGINS"),

		CacheBytes: getenvInt64("CACHE_BYTES", 100<<20),
		CacheTTL:   time.Duration(getenvInt("CACHE_TTL_SECS", 3600)) * time.Second,

		EmbedRatePerMin:  getenvInt("EMBED_RATE_PER_MIN", defaultEmbedRatePerMin),
		EmbedConcurrency: getenvInt("EMBED_CONCURRENCY", defaultEmbedConcurrency),
		EmbedBaseBatch:   getenvInt("EMBED_BASE_BATCH", defaultEmbedBaseBatch),

		ShutdownGrace: time.Duration(getenvInt("SHUTDOWN_GRACE_SECS", 30)) * time.Second,
	}

	if err := applyFileOverrides(&cfg, os.Getenv("CONFIG_FILE")); err != nil {
		return Config{}, err
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func getenvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
