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

// DocumentStore is the subset of vectorstore.Store the document tools
// depend on.
type DocumentStore interface {
	GetDocument(ctx context.Context, id string) (domain.Document, error)
	ListDocuments(ctx context.Context, limit, offset int) ([]domain.DocumentSummary, error)
}

type getDocumentTool struct{ store DocumentStore }

// NewGetDocumentTool returns the get_document tool.
func NewGetDocumentTool(s DocumentStore) Tool { return &getDocumentTool{store: s} }

func (t *getDocumentTool) Name() string { return "get_document" }

func (t *getDocumentTool) Description() string {
	return "Fetch the full content of one document by id, for when a search result needs more context."
}

func (t *getDocumentTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"id": map[string]interface{}{
				"type":        "string",
				"description": "The document id, as returned by a search tool.",
			},
		},
		"required": []interface{}{"id"},
	}
}

func (t *getDocumentTool) Invoke(ctx context.Context, args map[string]interface{}) (Outcome, error) {
	id, ok := args["id"].(string)
	if !ok || id == "" {
		return Outcome{}, apierr.Validation("get_document: id argument is required", nil)
	}

	doc, err := t.store.GetDocument(ctx, id)
	if err != nil {
		return Outcome{}, err
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return Outcome{}, fmt.Errorf("get_document: marshal document: %w", err)
	}
	return Outcome{Content: string(body)}, nil
}

type listDocumentsTool struct{ store DocumentStore }

// NewListDocumentsTool returns the list_documents tool.
func NewListDocumentsTool(s DocumentStore) Tool { return &listDocumentsTool{store: s} }

func (t *listDocumentsTool) Name() string { return "list_documents" }

func (t *listDocumentsTool) Description() string {
	return "List documents in the corpus, newest first, for when the user asks what is available."
}

func (t *listDocumentsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum number of documents to return.",
				"default":     50,
			},
			"offset": map[string]interface{}{
				"type":        "integer",
				"description": "Number of documents to skip, for pagination.",
				"default":     0,
			},
		},
	}
}

func (t *listDocumentsTool) Invoke(ctx context.Context, args map[string]interface{}) (Outcome, error) {
	limit, offset := 50, 0
	if raw, ok := args["limit"].(float64); ok {
		limit = int(raw)
	}
	if raw, ok := args["offset"].(float64); ok {
		offset = int(raw)
	}

	docs, err := t.store.ListDocuments(ctx, limit, offset)
	if err != nil {
		return Outcome{}, err
	}

	body, err := json.Marshal(docs)
	if err != nil {
		return Outcome{}, fmt.Errorf("list_documents: marshal summaries: %w", err)
	}
	return Outcome{Content: string(body)}, nil
}
