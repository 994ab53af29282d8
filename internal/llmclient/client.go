// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llmclient provides the Agent Orchestrator's LLM dependency:
// a single Client interface over interchangeable chat-completion
// backends, plus two concrete implementations (Anthropic, OpenAI).
//
// # Architecture
//
// Client is the contract the Agent Orchestrator depends on. Anthropic
// is a hand-rolled HTTP+SSE client against the Messages API; OpenAI
// wraps sashabaranov/go-openai. Both translate ragserve's domain.Message
// conversation history into their own wire format and translate tool
// calls back into domain.ToolCall.
//
// # Thread Safety
//
// Both implementations are safe for concurrent use: a client's fields
// are set once at construction and never changed afterwards.
package llmclient

import (
	"context"

	"github.com/ragserve/ragserve/internal/domain"
)

// GenerationParams holds parameters for a single generation call. A
// nil pointer field means "use the backend's default"; only Anthropic
// currently honors EnableThinking and BudgetTokens.
type GenerationParams struct {
	Temperature     *float32
	TopP            *float32
	TopK            *int
	MaxTokens       *int
	Stop            []string
	ToolDefinitions []domain.ToolDefinition
	EnableThinking  bool
	BudgetTokens    int
}

// StreamEventType categorizes a StreamEvent.
type StreamEventType string

const (
	// StreamEventToken carries a content token fragment in Content.
	StreamEventToken StreamEventType = "token"
	// StreamEventThinking carries a reasoning token fragment in Content.
	// Only emitted when GenerationParams.EnableThinking is true and the
	// backend supports it.
	StreamEventThinking StreamEventType = "thinking"
	// StreamEventToolCall carries a completed tool invocation request
	// in ToolCall. Emitted once per tool call, after its arguments have
	// finished streaming.
	StreamEventToolCall StreamEventType = "tool_call"
	// StreamEventError carries a message in Error. Streaming stops
	// after an error event.
	StreamEventError StreamEventType = "error"
)

// StreamEvent is one event emitted by ChatStream. Only the field
// matching Type is populated.
type StreamEvent struct {
	Type     StreamEventType
	Content  string
	ToolCall domain.ToolCall
	Error    string
}

// StreamCallback receives streaming events in generation order, from a
// single goroutine. Returning a non-nil error aborts the stream; the
// aborting error is returned from ChatStream.
type StreamCallback func(event StreamEvent) error

// Client is the interface every LLM backend implements.
type Client interface {
	// Generate is a stateless single-prompt completion, implemented in
	// terms of Chat with a single user message.
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)

	// Chat sends a full conversation and blocks for the complete
	// response.
	Chat(ctx context.Context, messages []domain.Message, params GenerationParams) (Response, error)

	// ChatStream is like Chat but delivers the response incrementally
	// via callback. If the backend or network fails mid-stream, the
	// callback receives a StreamEventError before ChatStream returns
	// the corresponding error.
	ChatStream(ctx context.Context, messages []domain.Message, params GenerationParams, callback StreamCallback) error
}

// Response is the blocking Chat result: the assistant's text plus any
// tool calls it requested. A turn that only calls tools may have empty
// Text.
type Response struct {
	Text      string
	ToolCalls []domain.ToolCall
}
