// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ragserve/ragserve/internal/apierr"
	"github.com/ragserve/ragserve/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAnthropicClient(t *testing.T, baseURL string) *AnthropicClient {
	t.Helper()
	c, err := NewAnthropicClient(AnthropicConfig{APIKey: "test-key", Model: "claude-test", BaseURL: baseURL})
	require.NoError(t, err)
	return c
}

func TestNewAnthropicClient_RequiresAPIKey(t *testing.T) {
	_, err := NewAnthropicClient(AnthropicConfig{})
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindAuth, apiErr.Kind)
}

func TestAnthropicChat_ReturnsTextAndExtractsSystemPrompt(t *testing.T) {
	var gotReq anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		resp := anthropicResponse{Content: []anthropicContent{{Type: "text", Text: "hello there"}}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := newTestAnthropicClient(t, srv.URL)
	messages := []domain.Message{
		{Role: domain.RoleSystem, Content: "be terse"},
		{Role: domain.RoleUser, Content: "hi"},
	}
	resp, err := c.Chat(context.Background(), messages, GenerationParams{})
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Text)
	require.Len(t, gotReq.System, 1)
	assert.Equal(t, "be terse", gotReq.System[0].Text)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "user", gotReq.Messages[0].Role)
}

func TestAnthropicChat_ExtractsToolUseBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := anthropicResponse{Content: []anthropicContent{
			{Type: "tool_use", ID: "call_1", Name: "vector_search", Input: map[string]interface{}{"query": "hi"}},
		}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := newTestAnthropicClient(t, srv.URL)
	resp, err := c.Chat(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "search"}}, GenerationParams{})
	require.NoError(t, err)
	assert.Empty(t, resp.Text)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "vector_search", resp.ToolCalls[0].Name)
	assert.Equal(t, "hi", resp.ToolCalls[0].Arguments["query"])
}

func TestAnthropicChat_TranslatesErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, "rate limited")
	}))
	defer srv.Close()

	c := newTestAnthropicClient(t, srv.URL)
	_, err := c.Chat(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "hi"}}, GenerationParams{})
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindRateLimited, apiErr.Kind)
}

func TestAnthropicChatStream_EmitsTokensThinkingAndToolCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		events := []string{
			`event: content_block_delta` + "\n" + `data: {"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"pondering"}}` + "\n\n",
			`event: content_block_delta` + "\n" + `data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hel"}}` + "\n\n",
			`event: content_block_delta` + "\n" + `data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"lo"}}` + "\n\n",
			`event: content_block_start` + "\n" + `data: {"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"call_9","name":"get_document"}}` + "\n\n",
			`event: content_block_delta` + "\n" + `data: {"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"id\":\"d1\"}"}}` + "\n\n",
			`event: content_block_stop` + "\n" + `data: {"type":"content_block_stop","index":1}` + "\n\n",
			`event: message_stop` + "\n" + `data: {"type":"message_stop"}` + "\n\n",
		}
		for _, e := range events {
			fmt.Fprint(w, e)
		}
	}))
	defer srv.Close()

	c := newTestAnthropicClient(t, srv.URL)
	var tokens, thinking string
	var toolCalls []domain.ToolCall
	err := c.ChatStream(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "hi"}}, GenerationParams{}, func(e StreamEvent) error {
		switch e.Type {
		case StreamEventToken:
			tokens += e.Content
		case StreamEventThinking:
			thinking += e.Content
		case StreamEventToolCall:
			toolCalls = append(toolCalls, e.ToolCall)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", tokens)
	assert.Equal(t, "pondering", thinking)
	require.Len(t, toolCalls, 1)
	assert.Equal(t, "get_document", toolCalls[0].Name)
	assert.Equal(t, "d1", toolCalls[0].Arguments["id"])
}

func TestAnthropicChatStream_CallbackErrorAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `event: content_block_delta`+"\n"+`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hi"}}`+"\n\n")
	}))
	defer srv.Close()

	c := newTestAnthropicClient(t, srv.URL)
	boom := fmt.Errorf("client disconnected")
	err := c.ChatStream(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "hi"}}, GenerationParams{}, func(e StreamEvent) error {
		return boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}
