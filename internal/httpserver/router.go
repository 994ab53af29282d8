// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package httpserver is ragserve's HTTP Surface: a gin router exposing
// chat, search, session, and document operations over the Agent
// Orchestrator, Retrieval Pipeline, Vector Store Gateway, and session
// store, plus a store health check and Prometheus metrics.
package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/ragserve/ragserve/internal/agent"
	"github.com/ragserve/ragserve/internal/domain"
	"github.com/ragserve/ragserve/internal/metrics"
)

// DocumentStore is the subset of vectorstore.Store the HTTP surface
// depends on directly (search and document read operations bypass the
// orchestrator's tool layer, since a human caller of GET /documents
// isn't asking an LLM anything).
type DocumentStore interface {
	GetDocument(ctx context.Context, id string) (domain.Document, error)
	ListDocuments(ctx context.Context, limit, offset int) ([]domain.DocumentSummary, error)
}

// SessionStore is the subset of session.Store the HTTP surface depends
// on directly, for session-lifecycle endpoints that don't go through
// the orchestrator.
type SessionStore interface {
	CreateSession(ctx context.Context, userID string, meta map[string]string) (domain.Session, error)
	GetSession(ctx context.Context, id string) (domain.Session, error)
	ListMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error)
}

// Retriever is the subset of retrieval.Pipeline the search endpoints
// depend on.
type Retriever interface {
	Retrieve(ctx context.Context, query string, mode domain.SearchMode, k int) ([]domain.SearchResult, error)
}

// Orchestrator is the subset of agent.Orchestrator the chat endpoints
// depend on.
type Orchestrator interface {
	Run(ctx context.Context, sessionID, userMessage string) (agent.Response, error)
	RunStream(ctx context.Context, sessionID, userMessage string, sink agent.Sink) error
}

// HealthChecker reports whether a dependency the readiness probe cares
// about is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Deps bundles every dependency NewRouter wires into route handlers.
type Deps struct {
	Orchestrator Orchestrator
	Retriever    Retriever
	Documents    DocumentStore
	Sessions     SessionStore
	Health       HealthChecker
	Metrics      *metrics.Metrics
	Log          *slog.Logger

	// CORSOrigins returns the current CORS allow-list. It is read once
	// per request rather than once at router construction, so a caller
	// that hot-reloads CONFIG_FILE (config.OriginsWatcher) can update
	// the allow-list without restarting the server.
	CORSOrigins     func() []string
	MaxRequestBytes int64
}

// NewRouter builds ragserve's gin.Engine: recovery, tracing, CORS,
// request-size limiting, and per-request metrics as global middleware,
// then the route table itself.
func NewRouter(deps Deps) *gin.Engine {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("ragserve"))
	router.Use(corsMiddleware(deps.CORSOrigins))
	router.Use(maxBodyBytesMiddleware(deps.MaxRequestBytes))

	h := &handlers{deps: deps}

	router.GET("/health", metricsWrap(deps.Metrics, metrics.EndpointHealth, h.health))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		v1.POST("/sessions", metricsWrap(deps.Metrics, metrics.EndpointSessionsCreate, h.createSession))
		v1.GET("/sessions/:sessionId", metricsWrap(deps.Metrics, metrics.EndpointSessionsGet, h.getSession))

		v1.POST("/chat", metricsWrap(deps.Metrics, metrics.EndpointChat, h.chat))
		v1.POST("/chat/stream", h.chatStream) // streamed responses record their own metrics at close

		v1.POST("/search/vector", metricsWrap(deps.Metrics, metrics.EndpointSearchVector, h.search(domain.ModeVector)))
		v1.POST("/search/text", metricsWrap(deps.Metrics, metrics.EndpointSearchText, h.search(domain.ModeText)))
		v1.POST("/search/hybrid", metricsWrap(deps.Metrics, metrics.EndpointSearchHybrid, h.search(domain.ModeHybrid)))

		v1.GET("/documents", metricsWrap(deps.Metrics, metrics.EndpointDocumentsList, h.listDocuments))
		v1.GET("/documents/:id", metricsWrap(deps.Metrics, metrics.EndpointDocumentsGet, h.getDocument))
	}

	return router
}

func corsMiddleware(origins func() []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowOriginFunc: func(origin string) bool {
			for _, o := range origins() {
				if o == origin {
					return true
				}
			}
			return false
		},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	return cors.New(cfg)
}

// maxBodyBytesMiddleware caps request bodies at limit so a malicious or
// buggy client can't exhaust server memory with an unbounded upload.
// A non-positive limit disables the cap.
func maxBodyBytesMiddleware(limit int64) gin.HandlerFunc {
	if limit <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// metricsWrap records request count, status, and latency for a
// non-streaming endpoint around an inner gin.HandlerFunc.
func metricsWrap(m *metrics.Metrics, endpoint metrics.Endpoint, next gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		next(c)
		m.RecordRequest(endpoint, c.Writer.Status(), time.Since(start))
	}
}

type handlers struct {
	deps Deps
}
