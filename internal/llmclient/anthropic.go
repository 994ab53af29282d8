// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llmclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ragserve/ragserve/internal/apierr"
	"github.com/ragserve/ragserve/internal/domain"
)

const (
	anthropicAPIVersion    = "2023-06-01"
	anthropicDefaultURL    = "https://api.anthropic.com/v1/messages"
	anthropicDefaultTokens = 4096
)

type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	System    []systemBlock      `json:"system,omitempty"`
	MaxTokens int                `json:"max_tokens"`
	Thinking  *thinkingParams    `json:"thinking,omitempty"`
	Tools     []toolsDefinition  `json:"tools,omitempty"`

	Temperature *float32 `json:"temperature,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	StopSeqs    []string `json:"stop_sequences,omitempty"`
	Stream      bool     `json:"stream,omitempty"`
}

// anthropicMessage's Content is either a plain string (ordinary text
// turns) or a []map[string]interface{} of content blocks (tool_use /
// tool_result turns) — the Messages API accepts both shapes.
type anthropicMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type anthropicResponse struct {
	ID      string             `json:"id"`
	Type    string             `json:"type"`
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
	Error   *anthropicError    `json:"error,omitempty"`
}

type systemBlock struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	CacheControl *cacheControl `json:"cache_control,omitempty"`
}

type thinkingParams struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type cacheControl struct {
	Type string `json:"type"`
}

type toolsDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"input_schema"`
}

type anthropicContent struct {
	Type     string                 `json:"type"`
	Text     string                 `json:"text,omitempty"`
	Thinking string                 `json:"thinking,omitempty"`
	ID       string                 `json:"id,omitempty"`
	Name     string                 `json:"name,omitempty"`
	Input    map[string]interface{} `json:"input,omitempty"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AnthropicClient is a hand-rolled client over the Claude Messages
// API: plain net/http for blocking calls, a bufio.Scanner SSE reader
// for streaming. There is no official Anthropic Go SDK in the
// ecosystem this package draws its stack from, so the wire format is
// built and parsed directly.
type AnthropicClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// AnthropicConfig configures an AnthropicClient.
type AnthropicConfig struct {
	APIKey  string
	Model   string
	BaseURL string // defaults to the public Messages API endpoint
}

// NewAnthropicClient constructs an AnthropicClient. APIKey is
// required; BaseURL defaults to the public Anthropic endpoint so
// tests can point it at an httptest.Server.
func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, apierr.Auth("anthropic api key is missing", nil)
	}
	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-5"
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = anthropicDefaultURL
	}
	return &AnthropicClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		model:      model,
	}, nil
}

// Generate implements Client.
func (a *AnthropicClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	resp, err := a.Chat(ctx, []domain.Message{{Role: domain.RoleUser, Content: prompt}}, params)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// Chat implements Client.
func (a *AnthropicClient) Chat(ctx context.Context, messages []domain.Message, params GenerationParams) (Response, error) {
	reqPayload := a.buildRequest(messages, params, false)

	body, err := json.Marshal(reqPayload)
	if err != nil {
		return Response{}, apierr.Validation("marshal anthropic request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(body))
	if err != nil {
		return Response{}, apierr.Validation("build anthropic request", err)
	}
	a.setHeaders(req, false)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, apierr.Cancelled(ctx.Err())
		}
		return Response{}, apierr.UpstreamUnavailable("anthropic transport error", err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return Response{}, statusToErr(resp.StatusCode, payload)
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(payload, &apiResp); err != nil {
		return Response{}, apierr.UpstreamUnavailable("decode anthropic response", err)
	}
	if apiResp.Error != nil {
		return Response{}, apierr.UpstreamPermanent("anthropic api error", fmt.Errorf("%s: %s", apiResp.Error.Type, apiResp.Error.Message))
	}

	var out Response
	for _, block := range apiResp.Content {
		switch block.Type {
		case "text":
			out.Text += block.Text
		case "thinking":
			slog.Debug("anthropic thinking block", "content", block.Thinking)
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, domain.ToolCall{ID: block.ID, Name: block.Name, Arguments: block.Input})
		}
	}
	return out, nil
}

func (a *AnthropicClient) buildRequest(messages []domain.Message, params GenerationParams, stream bool) anthropicRequest {
	var apiMessages []anthropicMessage
	var systemPrompt string
	for i := 0; i < len(messages); {
		msg := messages[i]
		switch msg.Role {
		case domain.RoleSystem:
			systemPrompt = msg.Content
			i++

		case domain.RoleTool:
			// The Messages API answers a turn's tool_use blocks with a
			// single following user message holding one tool_result
			// block per call; group consecutive tool messages so a
			// multi-tool turn round-trips as one user turn.
			var blocks []map[string]interface{}
			for i < len(messages) && messages[i].Role == domain.RoleTool {
				blocks = append(blocks, map[string]interface{}{
					"type":        "tool_result",
					"tool_use_id": messages[i].Metadata[domain.MetaToolCallID],
					"content":     messages[i].Content,
					"is_error":    messages[i].Metadata[domain.MetaToolError] == "true",
				})
				i++
			}
			apiMessages = append(apiMessages, anthropicMessage{Role: "user", Content: blocks})

		case domain.RoleAssistant:
			if raw, ok := msg.Metadata[domain.MetaToolCalls]; ok && raw != "" {
				var calls []domain.ToolCall
				_ = json.Unmarshal([]byte(raw), &calls)
				var blocks []map[string]interface{}
				if msg.Content != "" {
					blocks = append(blocks, map[string]interface{}{"type": "text", "text": msg.Content})
				}
				for _, c := range calls {
					blocks = append(blocks, map[string]interface{}{
						"type": "tool_use", "id": c.ID, "name": c.Name, "input": c.Arguments,
					})
				}
				apiMessages = append(apiMessages, anthropicMessage{Role: "assistant", Content: blocks})
			} else {
				apiMessages = append(apiMessages, anthropicMessage{Role: "assistant", Content: msg.Content})
			}
			i++

		default:
			apiMessages = append(apiMessages, anthropicMessage{Role: "user", Content: msg.Content})
			i++
		}
	}

	var systemBlocks []systemBlock
	if systemPrompt != "" {
		block := systemBlock{Type: "text", Text: systemPrompt}
		if len(systemPrompt) > 1024 {
			block.CacheControl = &cacheControl{Type: "ephemeral"}
		}
		systemBlocks = append(systemBlocks, block)
	}

	reqPayload := anthropicRequest{
		Model:     a.model,
		Messages:  apiMessages,
		System:    systemBlocks,
		MaxTokens: anthropicDefaultTokens,
		Stream:    stream,
	}
	if params.Temperature != nil {
		reqPayload.Temperature = params.Temperature
	}
	if params.TopP != nil {
		reqPayload.TopP = params.TopP
	}
	if params.TopK != nil {
		reqPayload.TopK = params.TopK
	}
	if params.MaxTokens != nil {
		reqPayload.MaxTokens = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		reqPayload.StopSeqs = params.Stop
	}
	if len(params.ToolDefinitions) > 0 {
		tools := make([]toolsDefinition, len(params.ToolDefinitions))
		for i, td := range params.ToolDefinitions {
			tools[i] = toolsDefinition{Name: td.Name, Description: td.Description, InputSchema: td.InputSchema}
		}
		reqPayload.Tools = tools
	}
	if params.EnableThinking {
		reqPayload.Thinking = &thinkingParams{Type: "enabled", BudgetTokens: params.BudgetTokens}
		if minRequired := params.BudgetTokens + 2048; reqPayload.MaxTokens < minRequired {
			reqPayload.MaxTokens = minRequired
		}
	}
	return reqPayload
}

func (a *AnthropicClient) setHeaders(req *http.Request, stream bool) {
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)
	req.Header.Set("content-type", "application/json")
	if stream {
		req.Header.Set("accept", "text/event-stream")
	}
}

func statusToErr(status int, payload []byte) error {
	if status == http.StatusTooManyRequests {
		return apierr.RateLimited("anthropic rate limited", fmt.Errorf("%s", payload))
	}
	if status >= 500 {
		return apierr.UpstreamUnavailable("anthropic server error", fmt.Errorf("status %d: %s", status, payload))
	}
	return apierr.UpstreamPermanent("anthropic rejected request", fmt.Errorf("status %d: %s", status, payload))
}

// =============================================================================
// Streaming
// =============================================================================

type anthropicContentBlockStart struct {
	Type         string           `json:"type"`
	Index        int              `json:"index"`
	ContentBlock anthropicContent `json:"content_block"`
}

type anthropicContentBlockDelta struct {
	Type  string                `json:"type"`
	Index int                   `json:"index"`
	Delta anthropicDeltaContent `json:"delta"`
}

type anthropicDeltaContent struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

type anthropicStreamError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// ChatStream implements Client. It reuses buildRequest with
// stream=true, then parses the server-sent-event response
// line-by-line: an "event: " line names the event, "data: " lines
// accumulate JSON until a blank line ends the event.
func (a *AnthropicClient) ChatStream(ctx context.Context, messages []domain.Message, params GenerationParams, callback StreamCallback) error {
	reqPayload := a.buildRequest(messages, params, true)
	body, err := json.Marshal(reqPayload)
	if err != nil {
		return apierr.Validation("marshal anthropic stream request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(body))
	if err != nil {
		return apierr.Validation("build anthropic stream request", err)
	}
	a.setHeaders(req, true)

	streamClient := &http.Client{Timeout: 5 * time.Minute}
	resp, err := streamClient.Do(req)
	if err != nil {
		emitErr := err.Error()
		if ctx.Err() != nil {
			emitErr = "stream cancelled"
		}
		_ = callback(StreamEvent{Type: StreamEventError, Error: emitErr})
		if ctx.Err() != nil {
			return apierr.Cancelled(ctx.Err())
		}
		return apierr.UpstreamUnavailable("anthropic stream transport error", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		apiErr := statusToErr(resp.StatusCode, payload)
		_ = callback(StreamEvent{Type: StreamEventError, Error: apiErr.Error()})
		return apiErr
	}

	return a.processSSEStream(ctx, resp.Body, callback)
}

func (a *AnthropicClient) processSSEStream(ctx context.Context, body io.Reader, callback StreamCallback) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var eventType string
	var dataBuffer strings.Builder
	toolCallInput := make(map[int]*strings.Builder)
	toolCallMeta := make(map[int]anthropicContent)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			_ = callback(StreamEvent{Type: StreamEventError, Error: "stream cancelled"})
			return apierr.Cancelled(ctx.Err())
		default:
		}

		line := scanner.Text()
		if line == "" {
			if dataBuffer.Len() > 0 && eventType != "" {
				if err := a.handleSSEEvent(eventType, dataBuffer.String(), callback, toolCallInput, toolCallMeta); err != nil {
					return err
				}
				dataBuffer.Reset()
				eventType = ""
			}
			continue
		}
		switch {
		case strings.HasPrefix(line, "event: "):
			eventType = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			dataBuffer.WriteString(strings.TrimPrefix(line, "data: "))
		}
	}
	if err := scanner.Err(); err != nil {
		_ = callback(StreamEvent{Type: StreamEventError, Error: err.Error()})
		return apierr.UpstreamUnavailable("anthropic stream read error", err)
	}
	return nil
}

func (a *AnthropicClient) handleSSEEvent(eventType, data string, callback StreamCallback, toolInput map[int]*strings.Builder, toolMeta map[int]anthropicContent) error {
	switch eventType {
	case "content_block_start":
		var start anthropicContentBlockStart
		if err := json.Unmarshal([]byte(data), &start); err != nil {
			return nil
		}
		if start.ContentBlock.Type == "tool_use" {
			toolInput[start.Index] = &strings.Builder{}
			toolMeta[start.Index] = start.ContentBlock
		}

	case "content_block_delta":
		var delta anthropicContentBlockDelta
		if err := json.Unmarshal([]byte(data), &delta); err != nil {
			slog.Warn("failed to parse content_block_delta", "error", err)
			return nil
		}
		switch delta.Delta.Type {
		case "text_delta":
			if delta.Delta.Text != "" {
				if err := callback(StreamEvent{Type: StreamEventToken, Content: delta.Delta.Text}); err != nil {
					return fmt.Errorf("callback error: %w", err)
				}
			}
		case "thinking_delta":
			if delta.Delta.Thinking != "" {
				if err := callback(StreamEvent{Type: StreamEventThinking, Content: delta.Delta.Thinking}); err != nil {
					return fmt.Errorf("callback error: %w", err)
				}
			}
		case "input_json_delta":
			if buf, ok := toolInput[delta.Index]; ok {
				buf.WriteString(delta.Delta.PartialJSON)
			}
		}

	case "content_block_stop":
		var stop struct {
			Index int `json:"index"`
		}
		if err := json.Unmarshal([]byte(data), &stop); err != nil {
			return nil
		}
		if buf, ok := toolInput[stop.Index]; ok {
			meta := toolMeta[stop.Index]
			var args map[string]interface{}
			if buf.Len() > 0 {
				_ = json.Unmarshal([]byte(buf.String()), &args)
			}
			if err := callback(StreamEvent{Type: StreamEventToolCall, ToolCall: domain.ToolCall{ID: meta.ID, Name: meta.Name, Arguments: args}}); err != nil {
				return fmt.Errorf("callback error: %w", err)
			}
			delete(toolInput, stop.Index)
			delete(toolMeta, stop.Index)
		}

	case "error":
		var streamErr anthropicStreamError
		if err := json.Unmarshal([]byte(data), &streamErr); err != nil {
			_ = callback(StreamEvent{Type: StreamEventError, Error: "stream error"})
			return apierr.UpstreamUnavailable("anthropic stream error", fmt.Errorf("%s", data))
		}
		errMsg := fmt.Sprintf("%s: %s", streamErr.Error.Type, streamErr.Error.Message)
		_ = callback(StreamEvent{Type: StreamEventError, Error: errMsg})
		return apierr.UpstreamPermanent("anthropic stream error", fmt.Errorf("%s", errMsg))

	case "message_start", "message_delta", "message_stop", "ping":
		// informational, no callback

	default:
		slog.Debug("unknown anthropic sse event", "type", eventType)
	}
	return nil
}
