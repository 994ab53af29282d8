// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"context"

	"github.com/ragserve/ragserve/internal/apierr"
)

// graphStub backs the three knowledge-graph tools. Knowledge-graph
// construction is out of scope (spec.md §1 Non-goals); these tools
// are still registered so a model that reaches for them gets a typed,
// LLM-legible error instead of "unknown tool", and so the registry's
// shape matches what a graph-enabled deployment would expose once
// GRAPH_URL points at a running graph store.
type graphStub struct {
	name        string
	description string
	schema      map[string]interface{}
}

// NewGraphSearchTool returns the graph_search stub.
func NewGraphSearchTool() Tool {
	return &graphStub{
		name:        "graph_search",
		description: "Search the knowledge graph for entities related to a query.",
		schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{"type": "string", "description": "The entity or relationship query."},
			},
			"required": []interface{}{"query"},
		},
	}
}

// NewGetEntityRelationshipsTool returns the get_entity_relationships stub.
func NewGetEntityRelationshipsTool() Tool {
	return &graphStub{
		name:        "get_entity_relationships",
		description: "List the relationships of a named entity in the knowledge graph.",
		schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"entity": map[string]interface{}{"type": "string", "description": "The entity name."},
			},
			"required": []interface{}{"entity"},
		},
	}
}

// NewGetEntityTimelineTool returns the get_entity_timeline stub.
func NewGetEntityTimelineTool() Tool {
	return &graphStub{
		name:        "get_entity_timeline",
		description: "List events involving a named entity in chronological order.",
		schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"entity": map[string]interface{}{"type": "string", "description": "The entity name."},
			},
			"required": []interface{}{"entity"},
		},
	}
}

func (t *graphStub) Name() string                          { return t.name }
func (t *graphStub) Description() string                   { return t.description }
func (t *graphStub) InputSchema() map[string]interface{}   { return t.schema }

func (t *graphStub) Invoke(ctx context.Context, args map[string]interface{}) (Outcome, error) {
	return Outcome{}, apierr.Validation(t.name+": graph store not configured", nil)
}
