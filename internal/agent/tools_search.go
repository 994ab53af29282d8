// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ragserve/ragserve/internal/apierr"
	"github.com/ragserve/ragserve/internal/domain"
)

// Retriever is the subset of retrieval.Pipeline the search tools
// depend on, kept narrow so tests can supply a fake.
type Retriever interface {
	Retrieve(ctx context.Context, query string, mode domain.SearchMode, k int) ([]domain.SearchResult, error)
}

const defaultSearchK = 5

// searchTool wraps one search mode (vector, text, hybrid) behind the
// Tool interface; the three registered tools share this
// implementation and differ only in Name and the mode they force.
type searchTool struct {
	name string
	mode domain.SearchMode
	ret  Retriever
}

// NewVectorSearchTool returns the vector_search tool.
func NewVectorSearchTool(r Retriever) Tool { return &searchTool{name: "vector_search", mode: domain.ModeVector, ret: r} }

// NewTextSearchTool returns the text_search tool.
func NewTextSearchTool(r Retriever) Tool { return &searchTool{name: "text_search", mode: domain.ModeText, ret: r} }

// NewHybridSearchTool returns the hybrid_search tool.
func NewHybridSearchTool(r Retriever) Tool { return &searchTool{name: "hybrid_search", mode: domain.ModeHybrid, ret: r} }

func (t *searchTool) Name() string { return t.name }

func (t *searchTool) Description() string {
	switch t.mode {
	case domain.ModeVector:
		return "Search the corpus by semantic similarity. Best for conceptual or paraphrased questions."
	case domain.ModeText:
		return "Search the corpus by keyword match. Best for exact terms, names, or identifiers."
	default:
		return "Search the corpus using both semantic similarity and keyword match, fused into one ranking."
	}
}

func (t *searchTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "The search query.",
			},
			"k": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum number of results to return.",
				"default":     defaultSearchK,
			},
		},
		"required": []interface{}{"query"},
	}
}

func (t *searchTool) Invoke(ctx context.Context, args map[string]interface{}) (Outcome, error) {
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return Outcome{}, apierr.Validation(t.name+": query argument is required", nil)
	}
	k := defaultSearchK
	if raw, ok := args["k"]; ok {
		if f, ok := raw.(float64); ok && f > 0 {
			k = int(f)
		}
	}

	results, err := t.ret.Retrieve(ctx, query, t.mode, k)
	if err != nil {
		return Outcome{}, err
	}

	citations := make([]domain.Citation, 0, len(results))
	type resultView struct {
		DocumentTitle string  `json:"document_title"`
		Content       string  `json:"content"`
		Score         float64 `json:"score"`
	}
	views := make([]resultView, 0, len(results))
	for _, r := range results {
		citations = append(citations, domain.Citation{
			DocumentID:    r.DocumentID,
			DocumentTitle: r.DocumentTitle,
			ChunkID:       r.ChunkID,
			Score:         r.Score,
		})
		views = append(views, resultView{DocumentTitle: r.DocumentTitle, Content: r.Content, Score: r.Score})
	}

	body, err := json.Marshal(views)
	if err != nil {
		return Outcome{}, fmt.Errorf("%s: marshal results: %w", t.name, err)
	}
	return Outcome{Content: string(body), Citations: citations}, nil
}
