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
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/ragserve/ragserve/internal/apierr"
	"github.com/ragserve/ragserve/internal/domain"
)

const rrfK = 60

// readOnly runs fn inside a read-only transaction. Every search and
// read operation in this file goes through it: the gateway never
// opens a writable transaction on the query path.
func (s *Store) readOnly(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return apierr.Resource("begin read-only transaction", err)
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// VectorSearch returns the k chunks minimizing cosine distance to
// queryVec, restricted to providerTag. Fails with a typed
// DimensionMismatch if len(queryVec) doesn't match the dimension
// declared for providerTag.
func (s *Store) VectorSearch(ctx context.Context, queryVec []float32, providerTag string, k int) ([]domain.SearchResult, error) {
	if d, ok := s.dims[providerTag]; ok && d != len(queryVec) {
		return nil, apierr.DimensionMismatch(
			fmt.Sprintf("query vector has dimension %d, provider %q expects %d", len(queryVec), providerTag, d), nil)
	}
	k = clampK(k)

	var out []domain.SearchResult
	err := s.readOnly(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
SELECT c.id, c.document_id, c.chunk_index, c.content, 1 - (c.embedding <=> $1) AS score, c.metadata, d.title, d.source
FROM chunks c
JOIN documents d ON d.id = c.document_id
WHERE c.embedding_provider = $2
ORDER BY c.embedding <=> $1, c.id ASC
LIMIT $3`, pgvector.NewVector(queryVec), providerTag, k)
		if err != nil {
			return apierr.Resource("vector search failed", err)
		}
		defer rows.Close()

		for rows.Next() {
			var r domain.SearchResult
			var metadata map[string]string
			if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.ChunkIndex, &r.Content, &r.Score, &metadata, &r.DocumentTitle, &r.DocumentSource); err != nil {
				return apierr.Resource("scan vector search row", err)
			}
			r.VectorSimilarity = r.Score
			r.Metadata = metadata
			out = append(out, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TextSearch ranks chunks by lexical cover-density rank over content,
// restricted to providerTag, equivalent to ts_rank_cd with
// normalization bitmask 32 (divide rank by rank+1, so the result is
// bounded in [0,1) and comparable across queries).
func (s *Store) TextSearch(ctx context.Context, queryText, providerTag string, k int) ([]domain.SearchResult, error) {
	k = clampK(k)

	var out []domain.SearchResult
	err := s.readOnly(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
SELECT c.id, c.document_id, c.chunk_index, c.content,
       ts_rank_cd(c.content_tsv, plainto_tsquery('english', $1), 32) AS rank,
       c.metadata, d.title, d.source
FROM chunks c
JOIN documents d ON d.id = c.document_id
WHERE c.embedding_provider = $2
  AND c.content_tsv @@ plainto_tsquery('english', $1)
ORDER BY rank DESC, c.id ASC
LIMIT $3`, queryText, providerTag, k)
		if err != nil {
			return apierr.Resource("text search failed", err)
		}
		defer rows.Close()

		for rows.Next() {
			var r domain.SearchResult
			var metadata map[string]string
			if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.ChunkIndex, &r.Content, &r.Score, &metadata, &r.DocumentTitle, &r.DocumentSource); err != nil {
				return apierr.Resource("scan text search row", err)
			}
			r.TextSimilarity = r.Score
			r.Metadata = metadata
			out = append(out, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// HybridSearch computes vector top-2k and text top-2k candidate sets
// (each capped at clampK's ceiling of 100, so k above 50 gets 100
// candidates per set) and fuses them by weighted reciprocal rank. If the text query
// matches nothing, it falls back to the pure-vector result set.
func (s *Store) HybridSearch(ctx context.Context, queryVec []float32, queryText, providerTag string, k int, wVec, wText float64) ([]domain.SearchResult, error) {
	k = clampK(k)
	twoK := k * 2
	if twoK > 200 {
		twoK = 200
	}

	vecResults, err := s.VectorSearch(ctx, queryVec, providerTag, twoK)
	if err != nil {
		return nil, err
	}
	textResults, err := s.TextSearch(ctx, queryText, providerTag, twoK)
	if err != nil {
		return nil, err
	}
	return fuseRRF(vecResults, textResults, k, wVec, wText), nil
}

// fuseRRF merges two already-ranked candidate sets by weighted
// reciprocal rank fusion. Pulled out of HybridSearch as a pure
// function so the fusion math is testable without a database.
func fuseRRF(vecResults, textResults []domain.SearchResult, k int, wVec, wText float64) []domain.SearchResult {
	if len(textResults) == 0 {
		if len(vecResults) > k {
			return append([]domain.SearchResult(nil), vecResults[:k]...)
		}
		return vecResults
	}

	vecRank := make(map[string]int, len(vecResults))
	for i, r := range vecResults {
		vecRank[r.ChunkID] = i + 1
	}
	textRank := make(map[string]int, len(textResults))
	for i, r := range textResults {
		textRank[r.ChunkID] = i + 1
	}

	merged := make(map[string]domain.SearchResult)
	for _, r := range vecResults {
		merged[r.ChunkID] = r
	}
	for _, r := range textResults {
		if existing, ok := merged[r.ChunkID]; ok {
			existing.TextSimilarity = r.TextSimilarity
			merged[r.ChunkID] = existing
		} else {
			merged[r.ChunkID] = r
		}
	}

	fused := make([]domain.SearchResult, 0, len(merged))
	for id, r := range merged {
		var fusedScore float64
		if rank, ok := vecRank[id]; ok {
			fusedScore += wVec * (1.0 / float64(rrfK+rank))
		}
		if rank, ok := textRank[id]; ok {
			fusedScore += wText * (1.0 / float64(rrfK+rank))
		}
		r.Score = fusedScore
		fused = append(fused, r)
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].ChunkID < fused[j].ChunkID
	})
	if len(fused) > k {
		fused = fused[:k]
	}
	return fused
}

// GetDocument reads a single document by id.
func (s *Store) GetDocument(ctx context.Context, id string) (domain.Document, error) {
	var doc domain.Document
	err := s.readOnly(ctx, func(tx pgx.Tx) error {
		var metadata map[string]string
		err := tx.QueryRow(ctx, `SELECT id, title, source, content, metadata, created_at FROM documents WHERE id = $1`, id).
			Scan(&doc.ID, &doc.Title, &doc.Source, &doc.Content, &metadata, &doc.CreatedAt)
		if err == pgx.ErrNoRows {
			return apierr.NotFound("document not found")
		}
		if err != nil {
			return apierr.Resource("get document failed", err)
		}
		doc.Metadata = metadata
		return nil
	})
	if err != nil {
		return domain.Document{}, err
	}
	return doc, nil
}

// ListDocuments returns a page of document summaries ordered by
// created_at descending, newest first.
func (s *Store) ListDocuments(ctx context.Context, limit, offset int) ([]domain.DocumentSummary, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var out []domain.DocumentSummary
	err := s.readOnly(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
SELECT d.id, d.title, d.source, d.created_at, COUNT(c.id)
FROM documents d
LEFT JOIN chunks c ON c.document_id = d.id
GROUP BY d.id, d.title, d.source, d.created_at
ORDER BY d.created_at DESC, d.id ASC
LIMIT $1 OFFSET $2`, limit, offset)
		if err != nil {
			return apierr.Resource("list documents failed", err)
		}
		defer rows.Close()

		for rows.Next() {
			var sdoc domain.DocumentSummary
			if err := rows.Scan(&sdoc.ID, &sdoc.Title, &sdoc.Source, &sdoc.CreatedAt, &sdoc.ChunkCount); err != nil {
				return apierr.Resource("scan document summary", err)
			}
			out = append(out, sdoc)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
