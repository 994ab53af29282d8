// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"encoding/binary"
	"log/slog"
	"math"
	"strings"

	"github.com/ragserve/ragserve/internal/apierr"
	"github.com/ragserve/ragserve/internal/cache"
	"github.com/ragserve/ragserve/internal/domain"
)

// MaxQueryChars bounds a query string; longer queries are rejected
// rather than silently truncated (unlike embedding input truncation,
// a query that long is almost certainly a caller error).
const MaxQueryChars = 4000

// Embedder is the subset of embedclient.Client the pipeline depends
// on, kept narrow so tests can supply a fake without constructing a
// real HTTP-backed client.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	Provider() domain.EmbeddingProvider
	Model() string
}

// VectorStore is the subset of vectorstore.Store the pipeline depends
// on.
type VectorStore interface {
	VectorSearch(ctx context.Context, queryVec []float32, providerTag string, k int) ([]domain.SearchResult, error)
	TextSearch(ctx context.Context, queryText, providerTag string, k int) ([]domain.SearchResult, error)
	HybridSearch(ctx context.Context, queryVec []float32, queryText, providerTag string, k int, wVec, wText float64) ([]domain.SearchResult, error)
}

// Pipeline is the Retrieval Pipeline: normalize → detect intent →
// embed (through the Cache Layer) → search → diversify.
type Pipeline struct {
	embed Embedder
	store VectorStore
	memo  *cache.Memo
	log   *slog.Logger
}

// New constructs a Pipeline. memo may be nil, in which case embeddings
// are always recomputed (useful for tests exercising embedding-miss
// behavior without a cache).
func New(embed Embedder, store VectorStore, memo *cache.Memo, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{embed: embed, store: store, memo: memo, log: log}
}

// Retrieve is the pipeline's single public operation. k=0 is a valid
// request for an empty result set; it returns before any normalization,
// embedding, or store call, matching TextSearch/VectorSearch/
// HybridSearch's shared contract of never being dispatched for a
// zero-width request.
func (p *Pipeline) Retrieve(ctx context.Context, query string, mode domain.SearchMode, k int) ([]domain.SearchResult, error) {
	if k == 0 {
		return nil, nil
	}

	normalized, err := normalizeQuery(query)
	if err != nil {
		return nil, err
	}

	intent := domain.IntentBalanced
	if mode == domain.ModeAuto {
		intent = DetectIntent(normalized)
		mode = domain.ModeHybrid
	}
	wVec, wText := HybridWeights(intent)

	providerTag := string(p.embed.Provider())

	var results []domain.SearchResult
	switch mode {
	case domain.ModeText:
		results, err = p.store.TextSearch(ctx, normalized, providerTag, k)
	case domain.ModeVector:
		vec, embedErr := p.embedQuery(ctx, normalized)
		if embedErr != nil {
			p.log.Warn("query embedding failed, degrading to text search", "error", embedErr)
			results, err = p.store.TextSearch(ctx, normalized, providerTag, k)
			break
		}
		results, err = p.store.VectorSearch(ctx, vec, providerTag, k)
	case domain.ModeHybrid:
		vec, embedErr := p.embedQuery(ctx, normalized)
		if embedErr != nil {
			p.log.Warn("query embedding failed, degrading hybrid to text search", "error", embedErr)
			results, err = p.store.TextSearch(ctx, normalized, providerTag, k)
			break
		}
		results, err = p.store.HybridSearch(ctx, vec, normalized, providerTag, k, wVec, wText)
	default:
		return nil, apierr.Validation("unknown search mode", nil)
	}
	if err != nil {
		return nil, err
	}

	return diversify(results, k), nil
}

func (p *Pipeline) embedQuery(ctx context.Context, query string) ([]float32, error) {
	compute := func(ctx context.Context) ([]float32, error) {
		return p.embed.EmbedOne(ctx, query)
	}
	if p.memo == nil {
		return compute(ctx)
	}
	key := cache.EmbeddingKey(query, string(p.embed.Provider()), p.embed.Model())
	return cache.GetOrCompute(ctx, p.memo, key, encodeVector, decodeVector, compute)
}

func normalizeQuery(query string) (string, error) {
	fields := strings.Fields(query)
	normalized := strings.Join(fields, " ")
	if normalized == "" {
		return "", apierr.Validation("query must not be empty", nil)
	}
	if len(normalized) > MaxQueryChars {
		return "", apierr.Validation("query exceeds maximum length", nil)
	}
	return normalized, nil
}

// diversify groups candidates by (document_id, chunk_index/3) and
// keeps the top-scoring representative per group, suppressing
// near-duplicate neighboring chunks while retaining topical coverage.
// Input is assumed already ordered by descending score, so the first
// candidate seen for a group is its top-scoring representative.
func diversify(results []domain.SearchResult, k int) []domain.SearchResult {
	if k <= 0 {
		return nil
	}

	type groupKey struct {
		docID string
		band  int
	}
	seen := make(map[groupKey]bool, len(results))

	out := make([]domain.SearchResult, 0, len(results))
	for _, r := range results {
		key := groupKey{docID: r.DocumentID, band: r.ChunkIndex / 3}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
		if len(out) >= k {
			break
		}
	}
	return out
}

func encodeVector(v []float32) ([]byte, error) {
	out := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out, nil
}

func decodeVector(b []byte) ([]float32, error) {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}
