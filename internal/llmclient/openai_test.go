// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llmclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ragserve/ragserve/internal/apierr"
	"github.com/ragserve/ragserve/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOpenAIClient(t *testing.T, baseURL string) *OpenAIClient {
	t.Helper()
	c, err := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", Model: "gpt-test", BaseURL: baseURL})
	require.NoError(t, err)
	return c
}

func TestNewOpenAIClient_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIConfig{})
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindAuth, apiErr.Kind)
}

func TestOpenAIChat_ReturnsAssistantText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"hi there"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	c := newTestOpenAIClient(t, srv.URL)
	resp, err := c.Chat(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "hi"}}, GenerationParams{})
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Text)
}

func TestOpenAIChat_TranslatesRateLimitStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"slow down","type":"rate_limit"}}`)
	}))
	defer srv.Close()

	c := newTestOpenAIClient(t, srv.URL)
	_, err := c.Chat(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "hi"}}, GenerationParams{})
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindRateLimited, apiErr.Kind)
}

func TestOpenAIChatStream_AccumulatesTokensAndToolCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"hel"}}]}`,
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"lo"}}]}`,
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"get_document","arguments":"{\"id\":"}}]}}]}`,
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"d1\"}"}}]}}]}`,
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
		}
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := newTestOpenAIClient(t, srv.URL)
	var tokens string
	var toolCalls []domain.ToolCall
	err := c.ChatStream(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "hi"}}, GenerationParams{}, func(e StreamEvent) error {
		switch e.Type {
		case StreamEventToken:
			tokens += e.Content
		case StreamEventToolCall:
			toolCalls = append(toolCalls, e.ToolCall)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", tokens)
	require.Len(t, toolCalls, 1)
	assert.Equal(t, "get_document", toolCalls[0].Name)
	assert.Equal(t, "d1", toolCalls[0].Arguments["id"])
}

func TestOpenAIChatStream_CallbackErrorAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"hi"}}]}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := newTestOpenAIClient(t, srv.URL)
	boom := fmt.Errorf("client disconnected")
	err := c.ChatStream(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "hi"}}, GenerationParams{}, func(e StreamEvent) error {
		return boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestOpenAIRoleMapping(t *testing.T) {
	assert.Equal(t, "system", openaiRole(domain.RoleSystem))
	assert.Equal(t, "assistant", openaiRole(domain.RoleAssistant))
	assert.Equal(t, "tool", openaiRole(domain.RoleTool))
	assert.Equal(t, "user", openaiRole(domain.RoleUser))
}
