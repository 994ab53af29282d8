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
	"errors"
	"fmt"
	"io"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ragserve/ragserve/internal/apierr"
	"github.com/ragserve/ragserve/internal/domain"
)

const openaiDefaultModel = "gpt-4o-mini"

// OpenAIClient wraps sashabaranov/go-openai's chat completion API,
// translating domain.Message history and domain.ToolDefinition tool
// schemas to and from the library's types.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// OpenAIConfig configures an OpenAIClient.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string // optional, for OpenAI-compatible gateways
}

// NewOpenAIClient constructs an OpenAIClient.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, apierr.Auth("openai api key is missing", nil)
	}
	model := cfg.Model
	if model == "" {
		model = openaiDefaultModel
	}

	if cfg.BaseURL == "" {
		return &OpenAIClient{client: openai.NewClient(cfg.APIKey), model: model}, nil
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL
	return &OpenAIClient{client: openai.NewClientWithConfig(clientCfg), model: model}, nil
}

// Generate implements Client.
func (o *OpenAIClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	resp, err := o.Chat(ctx, []domain.Message{{Role: domain.RoleUser, Content: prompt}}, params)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// Chat implements Client.
func (o *OpenAIClient) Chat(ctx context.Context, messages []domain.Message, params GenerationParams) (Response, error) {
	req := o.buildRequest(messages, params)
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Response{}, translateOpenAIErr(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, apierr.UpstreamUnavailable("openai returned no choices", nil)
	}
	return toResponse(resp.Choices[0].Message), nil
}

// ChatStream implements Client via go-openai's streaming API,
// surfacing incremental deltas and accumulating tool call arguments
// until their index closes out.
func (o *OpenAIClient) ChatStream(ctx context.Context, messages []domain.Message, params GenerationParams, callback StreamCallback) error {
	req := o.buildRequest(messages, params)
	req.Stream = true

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		apiErr := translateOpenAIErr(ctx, err)
		_ = callback(StreamEvent{Type: StreamEventError, Error: apiErr.Error()})
		return apiErr
	}
	defer stream.Close()

	type pendingCall struct {
		id, name string
		args     []byte
	}
	pending := make(map[int]*pendingCall)

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			apiErr := translateOpenAIErr(ctx, err)
			_ = callback(StreamEvent{Type: StreamEventError, Error: apiErr.Error()})
			return apiErr
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta

		if delta.Content != "" {
			if err := callback(StreamEvent{Type: StreamEventToken, Content: delta.Content}); err != nil {
				return fmt.Errorf("callback error: %w", err)
			}
		}
		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			p, ok := pending[idx]
			if !ok {
				p = &pendingCall{}
				pending[idx] = p
			}
			if tc.ID != "" {
				p.id = tc.ID
			}
			if tc.Function.Name != "" {
				p.name = tc.Function.Name
			}
			p.args = append(p.args, []byte(tc.Function.Arguments)...)
		}
		if chunk.Choices[0].FinishReason == openai.FinishReasonToolCalls {
			for _, p := range pending {
				var args map[string]interface{}
				if len(p.args) > 0 {
					if err := json.Unmarshal(p.args, &args); err != nil {
						slog.Warn("failed to parse openai tool call arguments", "error", err)
					}
				}
				if err := callback(StreamEvent{Type: StreamEventToolCall, ToolCall: domain.ToolCall{ID: p.id, Name: p.name, Arguments: args}}); err != nil {
					return fmt.Errorf("callback error: %w", err)
				}
			}
			pending = make(map[int]*pendingCall)
		}
	}
	return nil
}

func (o *OpenAIClient) buildRequest(messages []domain.Message, params GenerationParams) openai.ChatCompletionRequest {
	apiMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		apiMsg := openai.ChatCompletionMessage{
			Role:    openaiRole(m.Role),
			Content: m.Content,
		}
		switch m.Role {
		case domain.RoleTool:
			apiMsg.ToolCallID = m.Metadata[domain.MetaToolCallID]
		case domain.RoleAssistant:
			if raw, ok := m.Metadata[domain.MetaToolCalls]; ok && raw != "" {
				var calls []domain.ToolCall
				if err := json.Unmarshal([]byte(raw), &calls); err == nil {
					apiMsg.ToolCalls = make([]openai.ToolCall, len(calls))
					for i, c := range calls {
						args, _ := json.Marshal(c.Arguments)
						apiMsg.ToolCalls[i] = openai.ToolCall{
							ID:   c.ID,
							Type: openai.ToolTypeFunction,
							Function: openai.FunctionCall{
								Name:      c.Name,
								Arguments: string(args),
							},
						}
					}
				}
			}
		}
		apiMessages = append(apiMessages, apiMsg)
	}

	req := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: apiMessages,
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}
	if len(params.ToolDefinitions) > 0 {
		tools := make([]openai.Tool, len(params.ToolDefinitions))
		for i, td := range params.ToolDefinitions {
			tools[i] = openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        td.Name,
					Description: td.Description,
					Parameters:  td.InputSchema,
				},
			}
		}
		req.Tools = tools
	}
	return req
}

func openaiRole(role domain.MessageRole) string {
	switch role {
	case domain.RoleSystem:
		return openai.ChatMessageRoleSystem
	case domain.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	case domain.RoleTool:
		return openai.ChatMessageRoleTool
	default:
		return openai.ChatMessageRoleUser
	}
}

func toResponse(msg openai.ChatCompletionMessage) Response {
	resp := Response{Text: msg.Content}
	for _, tc := range msg.ToolCalls {
		var args map[string]interface{}
		if tc.Function.Arguments != "" {
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		}
		resp.ToolCalls = append(resp.ToolCalls, domain.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}
	return resp
}

func translateOpenAIErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return apierr.Cancelled(ctx.Err())
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 429 {
			return apierr.RateLimited("openai rate limited", err)
		}
		if apiErr.HTTPStatusCode >= 500 {
			return apierr.UpstreamUnavailable("openai server error", err)
		}
		return apierr.UpstreamPermanent("openai rejected request", err)
	}
	return apierr.UpstreamUnavailable("openai transport error", err)
}
