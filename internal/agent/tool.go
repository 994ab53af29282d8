// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package agent is the Agent Orchestrator: the per-turn state machine
// that drives a conversation with an LLM backend, dispatching tool
// calls the model requests against a typed registry and streaming or
// returning the final answer.
package agent

import (
	"context"

	"github.com/ragserve/ragserve/internal/domain"
)

// Outcome is what a Tool hands back to the orchestrator: text the
// model can read, plus any citations the tool surfaced so the
// orchestrator can emit them as "citation" stream events without
// having to parse tool output back out of Content.
type Outcome struct {
	Content   string
	Citations []domain.Citation
}

// Tool is one callable the Agent Orchestrator exposes to the model.
// InputSchema is a JSON-schema object that each tool writes out by
// hand as a map literal in its own InputSchema method.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]interface{}
	Invoke(ctx context.Context, args map[string]interface{}) (Outcome, error)
}
