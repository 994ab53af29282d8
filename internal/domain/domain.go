// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package domain holds the shared entity types every ragserve
// component operates on: documents, chunks, sessions, messages, and
// the ephemeral shapes (EmbeddingRequest, SearchResult, ToolInvocation)
// produced per request. Entities owned by the store (Document, Chunk,
// Session, Message) are borrowed by id elsewhere in the codebase —
// nothing outside the Vector Store Gateway and the session store
// mutates them directly.
package domain

import "time"

// EmbeddingProvider tags which upstream model produced a Chunk's
// vector, so the Vector Store Gateway can refuse to compare vectors
// across incompatible providers or dimensions.
type EmbeddingProvider string

// Document is immutable after ingestion; ragserve only reads it.
type Document struct {
	ID        string
	Title     string
	Source    string
	Content   string
	Metadata  map[string]string
	CreatedAt time.Time
}

// DocumentSummary is the list-view projection returned by
// GET /documents, carrying a chunk count instead of full content.
type DocumentSummary struct {
	ID         string
	Title      string
	Source     string
	CreatedAt  time.Time
	ChunkCount int
}

// Chunk is a contiguous slice of a Document's text paired with one
// embedding vector. Invariant: len(Embedding) == EmbeddingDim, and
// EmbeddingDim equals the dimension declared for EmbeddingProvider.
type Chunk struct {
	ID               string
	DocumentID       string
	ChunkIndex       int
	Content          string
	Embedding        []float32
	EmbeddingProvider EmbeddingProvider
	EmbeddingModel   string
	EmbeddingDim     int
	Metadata         map[string]string
}

// MessageRole is the speaker of a Message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
	RoleTool      MessageRole = "tool"
)

// Session is an ordered, persisted conversation. Created on first
// turn; never mutated except its Metadata map.
type Session struct {
	ID        string
	UserID    string
	Metadata  map[string]string
	CreatedAt time.Time
}

// Message is one append-only turn in a Session. Ordering is by
// CreatedAt, ties broken by ID.
type Message struct {
	ID        string
	SessionID string
	Role      MessageRole
	Content   string
	Metadata  map[string]string
	CreatedAt time.Time
}

// SearchMode selects which retrieval primitive the Retrieval Pipeline
// and Vector Store Gateway use.
type SearchMode string

const (
	ModeVector SearchMode = "vector"
	ModeText   SearchMode = "text"
	ModeHybrid SearchMode = "hybrid"
	ModeAuto   SearchMode = "auto"
)

// SearchResult is the ephemeral, per-query shape returned by the
// Vector Store Gateway and the Retrieval Pipeline.
type SearchResult struct {
	ChunkID          string
	DocumentID       string
	ChunkIndex       int
	Content          string
	Score            float64
	VectorSimilarity float64
	TextSimilarity   float64
	Metadata         map[string]string
	DocumentTitle    string
	DocumentSource   string
}

// Citation is the client-facing projection of a SearchResult attached
// to a chat response.
type Citation struct {
	DocumentID    string  `json:"document_id"`
	DocumentTitle string  `json:"document_title"`
	ChunkID       string  `json:"chunk_id"`
	Score         float64 `json:"score"`
}

// Intent is the coarse classification of a user query used to choose
// hybrid-search fusion weights.
type Intent string

const (
	IntentFactual     Intent = "factual"
	IntentConceptual  Intent = "conceptual"
	IntentProcedural  Intent = "procedural"
	IntentBalanced    Intent = "balanced"
)

// ToolDefinition describes one callable tool to the LLM backend, in
// the backend-agnostic shape the Agent Orchestrator's tool registry
// produces. Each backend translates InputSchema into its own wire
// format (Claude tools, OpenAI functions).
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// ToolCall is one tool invocation requested by the LLM during a Chat
// or ChatStream turn.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
}

// ToolResult is the Agent Orchestrator's outcome of executing a
// ToolCall, fed back to the LLM as a tool-role Message.
type ToolResult struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// Metadata keys the Agent Orchestrator attaches to persisted Messages
// so an LLM backend can reconstruct the exact tool-call/tool-result
// wire shape its API requires, instead of replaying tool turns as
// plain text. MetaToolCalls holds a JSON-encoded []ToolCall on the
// assistant Message that requested them; MetaToolCallID and
// MetaToolError are carried on the RoleTool Message answering one of
// those calls.
const (
	MetaToolCalls  = "tool_calls"
	MetaToolCallID = "tool_call_id"
	MetaToolError  = "tool_error"

	// MetaAnswerHash carries the hex SHA-256 of a streamed assistant
	// answer, computed incrementally as RunStream accumulated it, so a
	// stored Message can be checked against exactly what the client
	// received.
	MetaAnswerHash = "answer_sha256"
)
