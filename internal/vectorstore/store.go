// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package vectorstore is the Vector Store Gateway: it exposes typed
// search primitives (vector_search, text_search, hybrid_search,
// get_document, list_documents) against a Postgres database with the
// pgvector extension, isolating SQL from the rest of ragserve.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the Vector Store Gateway. All operations open their
// transactions read-only; the gateway never mutates rows on the
// retrieval path (ingestion is a separate, write-path concern not
// exercised by the query operations below).
type Store struct {
	pool *pgxpool.Pool
	dims map[string]int
}

// Config configures a Store connection.
type Config struct {
	DSN      string
	MaxConns int
	// Dims maps an embedding_provider tag to its fixed vector
	// dimension, so vector_search can reject cross-dimension queries
	// before ever touching the database.
	Dims map[string]int
}

// New connects to Postgres and ensures the schema exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse store dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}

	s := &Store{pool: pool, dims: cfg.Dims}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Pool returns the underlying connection pool, so sibling components
// that share the same database (the session store) can reuse it
// rather than opening a second pool against the same Postgres
// instance.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Ping verifies connectivity, used by the HTTP Surface's health check.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) ensureSchema(ctx context.Context) error {
	maxDim := 1536
	for _, d := range s.dims {
		if d > maxDim {
			maxDim = d
		}
	}

	const statements = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	source TEXT NOT NULL,
	content TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id),
	chunk_index INT NOT NULL,
	content TEXT NOT NULL,
	embedding vector(%[1]d) NOT NULL,
	embedding_provider TEXT NOT NULL,
	embedding_model TEXT NOT NULL,
	embedding_dim INT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}',
	content_tsv tsvector GENERATED ALWAYS AS (to_tsvector('english', content)) STORED,
	UNIQUE(document_id, chunk_index, embedding_model)
);

CREATE INDEX IF NOT EXISTS chunks_document_idx ON chunks (document_id);
CREATE INDEX IF NOT EXISTS chunks_tsv_idx ON chunks USING GIN (content_tsv);

DO $$
BEGIN
	IF NOT EXISTS (
		SELECT 1 FROM pg_indexes
		WHERE schemaname = current_schema() AND indexname = 'chunks_embedding_idx'
	) THEN
		EXECUTE 'CREATE INDEX chunks_embedding_idx ON chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);';
	END IF;
END
$$;
`

	_, err := s.pool.Exec(ctx, fmt.Sprintf(statements, maxDim))
	return err
}

// clampK bounds a raw LIMIT value for the underlying SQL queries. It
// does not special-case k=0 into an empty result: that boundary is the
// Retrieval Pipeline's contract (Retrieve returns before any store call
// when k=0), not this gateway's. A direct store caller that bypasses
// Retrieve and asks for k=0 gets one row rather than a query with
// LIMIT 0, since "give me at least something" is the safer default for
// code that skipped the pipeline's own zero-width check.
func clampK(k int) int {
	if k < 1 {
		return 1
	}
	if k > 100 {
		return 100
	}
	return k
}
