// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command ragserved is ragserve's process entry point: it loads
// configuration, wires every component (Vector Store Gateway, Session
// Store, Embedding Client, Cache Layer, Retrieval Pipeline, Agent
// Orchestrator, HTTP Surface), and runs the HTTP server until an
// interrupt or terminate signal, draining in-flight requests before
// exit.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/ragserve/ragserve/internal/agent"
	"github.com/ragserve/ragserve/internal/cache"
	"github.com/ragserve/ragserve/internal/config"
	"github.com/ragserve/ragserve/internal/domain"
	"github.com/ragserve/ragserve/internal/embedclient"
	"github.com/ragserve/ragserve/internal/httpserver"
	"github.com/ragserve/ragserve/internal/llmclient"
	"github.com/ragserve/ragserve/internal/logging"
	"github.com/ragserve/ragserve/internal/metrics"
	"github.com/ragserve/ragserve/internal/retrieval"
	"github.com/ragserve/ragserve/internal/session"
	"github.com/ragserve/ragserve/internal/vectorstore"
)

// Exit codes documented for operators: 0 clean shutdown, 1
// configuration error, 2 startup/dependency failure, 130 interrupted
// (128 + SIGINT), matching the process lifecycle's documented
// contract.
const (
	exitOK          = 0
	exitConfig      = 1
	exitStartup     = 2
	exitInterrupted = 130
)

const defaultSystemPrompt = `You are ragserve's retrieval assistant. Answer from the ` +
	`documents surfaced by your search tools; cite every claim with the ` +
	`chunk it came from. If the tools return nothing relevant, say so ` +
	`instead of guessing.`

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		// logging isn't initialized yet; this is a pre-startup
		// configuration error so it goes straight to stderr.
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("configuration error", "error", err)
		return exitConfig
	}

	logger := logging.FromEnv("ragserved")
	metrics.Init()

	shutdownTracer, err := initTracer(cfg)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		return exitStartup
	}
	defer shutdownTracer(context.Background())

	ctx := context.Background()

	store, err := vectorstore.New(ctx, vectorstore.Config{
		DSN: cfg.StoreURL,
		Dims: map[string]int{
			cfg.EmbedModel: cfg.EmbedDim,
		},
	})
	if err != nil {
		logger.Error("failed to connect to vector store", "error", err)
		return exitStartup
	}
	defer store.Close()

	sessions, err := session.New(ctx, store.Pool())
	if err != nil {
		logger.Error("failed to initialize session store", "error", err)
		return exitStartup
	}

	embedder := embedclient.New(embedclient.Config{
		BaseURL:     cfg.EmbedBaseURL,
		APIKey:      cfg.EmbedAPIKey,
		Model:       cfg.EmbedModel,
		Dim:         cfg.EmbedDim,
		Provider:    domain.EmbeddingProvider(cfg.EmbedModel),
		RatePerMin:  cfg.EmbedRatePerMin,
		Concurrency: cfg.EmbedConcurrency,
		BaseBatch:   cfg.EmbedBaseBatch,
	})
	defer embedder.Close()

	memCache := cache.New(cache.Config{
		MaxBytes:   cfg.CacheBytes,
		DefaultTTL: cfg.CacheTTL,
	})
	defer memCache.Close()

	breaker := cache.NewBreaker(cache.BreakerConfig{
		Threshold: 5,
		Cooldown:  30 * time.Second,
	})
	memo := cache.NewMemo(memCache, breaker)

	pipeline := retrieval.New(embedder, store, memo, logger)

	llmClient, err := newLLMClient(cfg)
	if err != nil {
		logger.Error("failed to initialize llm client", "error", err)
		return exitStartup
	}

	registry := agent.NewRegistry()
	registry.Register(agent.NewVectorSearchTool(pipeline))
	registry.Register(agent.NewTextSearchTool(pipeline))
	registry.Register(agent.NewHybridSearchTool(pipeline))
	registry.Register(agent.NewGetDocumentTool(store))
	registry.Register(agent.NewListDocumentsTool(store))
	registry.Register(agent.NewGraphSearchTool())
	registry.Register(agent.NewGetEntityRelationshipsTool())
	registry.Register(agent.NewGetEntityTimelineTool())

	orchestrator := agent.New(llmClient, sessions, registry, defaultSystemPrompt, logger)

	originsWatcher, err := config.WatchOrigins(os.Getenv("CONFIG_FILE"), cfg.CORSOrigins, logger)
	if err != nil {
		logger.Error("failed to start config file watcher", "error", err)
		return exitStartup
	}
	defer originsWatcher.Close()

	router := httpserver.NewRouter(httpserver.Deps{
		Orchestrator:    orchestrator,
		Retriever:       pipeline,
		Documents:       store,
		Sessions:        sessions,
		Health:          store,
		Metrics:         metrics.Default,
		Log:             logger,
		CORSOrigins:     originsWatcher.Origins,
		MaxRequestBytes: cfg.MaxRequestBytes,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	interrupted := false
	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("server error", "error", err)
			return exitStartup
		}
	case sig := <-quit:
		interrupted = true
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during shutdown", "error", err)
		return exitStartup
	}

	if interrupted {
		return exitInterrupted
	}
	return exitOK
}

// newLLMClient selects the chat model backend by LLMProvider, mirroring
// the teacher's backend-type switch in its own main.go.
func newLLMClient(cfg config.Config) (agent.LLMClient, error) {
	switch cfg.LLMProvider {
	case "openai":
		return llmclient.NewOpenAIClient(llmclient.OpenAIConfig{
			APIKey:  cfg.LLMAPIKey,
			Model:   cfg.LLMModel,
			BaseURL: cfg.LLMBaseURL,
		})
	default:
		return llmclient.NewAnthropicClient(llmclient.AnthropicConfig{
			APIKey:  cfg.LLMAPIKey,
			Model:   cfg.LLMModel,
			BaseURL: cfg.LLMBaseURL,
		})
	}
}

// initTracer wires an OTLP/gRPC exporter the way the teacher's
// orchestrator service does, always-sampling since ragserve has no
// tail-based sampling infrastructure of its own. Returns a shutdown
// func that flushes and closes the exporter.
func initTracer(cfg config.Config) (func(context.Context), error) {
	ctx := context.Background()

	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		// No collector configured: install a no-op shutdown and leave
		// the global tracer provider at its default no-op
		// implementation rather than failing startup over
		// observability.
		return func(context.Context) {}, nil
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String("ragserved")))
	if err != nil {
		return nil, err
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return func(shutdownCtx context.Context) {
		shutdownCtx, cancel := context.WithTimeout(shutdownCtx, 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shutdown tracer provider", "error", err)
		}
	}, nil
}
