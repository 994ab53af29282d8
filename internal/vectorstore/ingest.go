// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package vectorstore

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/ragserve/ragserve/internal/apierr"
	"github.com/ragserve/ragserve/internal/domain"
)

// PutDocument inserts or replaces a document row. Documents are
// immutable from ragserve's perspective once chunked, but ingestion
// re-runs (re-embedding with a new model) replace the row in place.
func (s *Store) PutDocument(ctx context.Context, doc domain.Document) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO documents (id, title, source, content, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET title = $2, source = $3, content = $4, metadata = $5`,
		doc.ID, doc.Title, doc.Source, doc.Content, doc.Metadata, doc.CreatedAt)
	if err != nil {
		return apierr.Resource("put document failed", err)
	}
	return nil
}

// PutChunks replaces every chunk belonging to documentID for the
// given embedding model with chunks. Each chunk's embedding length
// must equal its declared EmbeddingDim, and EmbeddingDim must equal
// the dimension configured for its EmbeddingProvider.
func (s *Store) PutChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	for _, c := range chunks {
		if len(c.Embedding) != c.EmbeddingDim {
			return apierr.DimensionMismatch(
				fmt.Sprintf("chunk %s: embedding has %d dims, declared %d", c.ID, len(c.Embedding), c.EmbeddingDim), nil)
		}
		if d, ok := s.dims[string(c.EmbeddingProvider)]; ok && d != c.EmbeddingDim {
			return apierr.DimensionMismatch(
				fmt.Sprintf("chunk %s: provider %q expects dim %d, got %d", c.ID, c.EmbeddingProvider, d, c.EmbeddingDim), nil)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apierr.Resource("begin ingest transaction", err)
	}
	defer tx.Rollback(ctx)

	if len(chunks) > 0 {
		if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1 AND embedding_model = $2`, documentID, chunks[0].EmbeddingModel); err != nil {
			return apierr.Resource("delete existing chunks", err)
		}
	}

	for _, c := range chunks {
		if _, err := tx.Exec(ctx, `
INSERT INTO chunks (id, document_id, chunk_index, content, embedding, embedding_provider, embedding_model, embedding_dim, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (document_id, chunk_index, embedding_model) DO UPDATE
SET content = $4, embedding = $5, embedding_provider = $6, embedding_dim = $8, metadata = $9`,
			c.ID, documentID, c.ChunkIndex, c.Content, pgvector.NewVector(c.Embedding),
			c.EmbeddingProvider, c.EmbeddingModel, c.EmbeddingDim, c.Metadata); err != nil {
			return apierr.Resource("insert chunk", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return apierr.Resource("commit ingest transaction", err)
	}
	return nil
}
