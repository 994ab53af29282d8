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
	"log/slog"
	"time"

	"github.com/ragserve/ragserve/internal/apierr"
	"github.com/ragserve/ragserve/internal/domain"
	"github.com/ragserve/ragserve/internal/llmclient"
)

const (
	// maxToolCallsPerTurn bounds how many tool invocations one turn may
	// make across all ToolLoop iterations combined, not per iteration —
	// a model that keeps calling tools without ever emitting an answer
	// is cut off rather than left to run indefinitely.
	maxToolCallsPerTurn = 8

	defaultTurnTimeout = 90 * time.Second
	defaultToolTimeout = 10 * time.Second
	defaultLLMTimeout  = 60 * time.Second

	defaultHistoryLimit = 50
)

// LLMClient is the subset of llmclient.Client the orchestrator
// depends on.
type LLMClient interface {
	Chat(ctx context.Context, messages []domain.Message, params llmclient.GenerationParams) (llmclient.Response, error)
	ChatStream(ctx context.Context, messages []domain.Message, params llmclient.GenerationParams, callback llmclient.StreamCallback) error
}

// SessionStore is the subset of session.Store the orchestrator
// depends on.
type SessionStore interface {
	WithLock(sessionID string, fn func() error) error
	ListMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error)
	AppendMessage(ctx context.Context, msg domain.Message) (domain.Message, error)
}

// Orchestrator is the Agent Orchestrator: it drives one state machine
// per user turn (Init → LoadHistory → CallModel → {ToolLoop | Emit} →
// Persist → End), dispatching tool calls the model requests against a
// typed Registry.
type Orchestrator struct {
	llm          LLMClient
	sessions     SessionStore
	registry     *Registry
	systemPrompt string
	log          *slog.Logger

	turnTimeout time.Duration
	toolTimeout time.Duration
	llmTimeout  time.Duration
}

// New constructs an Orchestrator with the spec's default budgets
// (90s/turn, 10s/tool, 60s/LLM call, ≤8 tool calls/turn).
func New(llm LLMClient, sessions SessionStore, registry *Registry, systemPrompt string, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		llm:          llm,
		sessions:     sessions,
		registry:     registry,
		systemPrompt: systemPrompt,
		log:          log,
		turnTimeout:  defaultTurnTimeout,
		toolTimeout:  defaultToolTimeout,
		llmTimeout:   defaultLLMTimeout,
	}
}

// Response is the non-streaming Emit result: the persisted assistant
// Message plus the citations its tool calls (if any) surfaced.
type Response struct {
	Message   domain.Message
	Citations []domain.Citation
}

// Run executes one non-streaming turn: LoadHistory, CallModel (looping
// through tool calls as needed), Emit the final text, Persist both the
// user and assistant turns.
func (o *Orchestrator) Run(ctx context.Context, sessionID, userMessage string) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, o.turnTimeout)
	defer cancel()

	history, err := o.loadHistory(ctx, sessionID)
	if err != nil {
		return Response{}, err
	}
	userMsg := domain.Message{SessionID: sessionID, Role: domain.RoleUser, Content: userMessage}
	history = append(history, userMsg)

	var citations []domain.Citation
	budget := maxToolCallsPerTurn

	for {
		llmCtx, llmCancel := context.WithTimeout(ctx, o.llmTimeout)
		resp, err := o.llm.Chat(llmCtx, o.withSystemPrompt(history), llmclient.GenerationParams{ToolDefinitions: o.registry.Definitions()})
		llmCancel()
		if err != nil {
			return Response{}, err
		}

		if len(resp.ToolCalls) == 0 {
			assistant := domain.Message{SessionID: sessionID, Role: domain.RoleAssistant, Content: resp.Text}
			if err := o.persist(ctx, sessionID, userMsg, assistant); err != nil {
				return Response{}, err
			}
			return Response{Message: assistant, Citations: citations}, nil
		}

		assistantMsg, toolMsgs, newCitations, err := o.runToolLoop(ctx, sessionID, resp, &budget)
		if err != nil {
			return Response{}, err
		}
		citations = append(citations, newCitations...)
		history = append(history, assistantMsg)
		history = append(history, toolMsgs...)
	}
}

// EventType categorizes a streaming Event.
type EventType string

const (
	EventToken    EventType = "token"
	EventCitation EventType = "citation"
	EventEnd      EventType = "end"
	EventError    EventType = "error"
)

// Event is one server-sent-event the HTTP surface relays to the
// client during RunStream.
type Event struct {
	Type     EventType
	Token    string
	Citation domain.Citation
	Error    string
}

// Sink receives streaming Events in order. A non-nil return aborts the
// turn, matching llmclient.StreamCallback's contract.
type Sink func(Event) error

// RunStream executes one streaming turn. Every CallModel round uses
// llmclient's streaming path, so preamble text the model emits before
// a tool call still reaches the client as token Events; once the
// model's final round returns no tool calls the turn ends and an
// EventEnd closes the stream.
func (o *Orchestrator) RunStream(ctx context.Context, sessionID, userMessage string, sink Sink) error {
	ctx, cancel := context.WithTimeout(ctx, o.turnTimeout)
	defer cancel()

	history, err := o.loadHistory(ctx, sessionID)
	if err != nil {
		return err
	}
	userMsg := domain.Message{SessionID: sessionID, Role: domain.RoleUser, Content: userMessage}
	history = append(history, userMsg)

	var citations []domain.Citation
	budget := maxToolCallsPerTurn

	for {
		acc, err := newAnswerAccumulator()
		if err != nil {
			_ = sink(Event{Type: EventError, Error: err.Error()})
			return err
		}
		var toolCalls []domain.ToolCall

		llmCtx, llmCancel := context.WithTimeout(ctx, o.llmTimeout)
		err = o.llm.ChatStream(llmCtx, o.withSystemPrompt(history), llmclient.GenerationParams{ToolDefinitions: o.registry.Definitions()}, func(e llmclient.StreamEvent) error {
			switch e.Type {
			case llmclient.StreamEventToken:
				if werr := acc.Write(e.Content); werr != nil {
					return werr
				}
				return sink(Event{Type: EventToken, Token: e.Content})
			case llmclient.StreamEventToolCall:
				toolCalls = append(toolCalls, e.ToolCall)
			case llmclient.StreamEventError:
				return sink(Event{Type: EventError, Error: e.Error})
			}
			return nil
		})
		llmCancel()
		if err != nil {
			acc.Destroy()
			_ = sink(Event{Type: EventError, Error: err.Error()})
			return err
		}

		text, answerHash, ferr := acc.Finalize()
		if ferr != nil {
			_ = sink(Event{Type: EventError, Error: ferr.Error()})
			return ferr
		}

		if len(toolCalls) == 0 {
			assistant := domain.Message{
				SessionID: sessionID,
				Role:      domain.RoleAssistant,
				Content:   text,
				Metadata:  map[string]string{domain.MetaAnswerHash: answerHash},
			}
			if err := o.persist(ctx, sessionID, userMsg, assistant); err != nil {
				_ = sink(Event{Type: EventError, Error: err.Error()})
				return err
			}
			return sink(Event{Type: EventEnd})
		}

		resp := llmclient.Response{Text: text, ToolCalls: toolCalls}
		assistantMsg, toolMsgs, newCitations, err := o.runToolLoop(ctx, sessionID, resp, &budget)
		if err != nil {
			_ = sink(Event{Type: EventError, Error: err.Error()})
			return err
		}
		for _, c := range newCitations {
			if err := sink(Event{Type: EventCitation, Citation: c}); err != nil {
				return err
			}
		}
		citations = append(citations, newCitations...)
		history = append(history, assistantMsg)
		history = append(history, toolMsgs...)
	}
}

func (o *Orchestrator) loadHistory(ctx context.Context, sessionID string) ([]domain.Message, error) {
	return o.sessions.ListMessages(ctx, sessionID, defaultHistoryLimit)
}

func (o *Orchestrator) withSystemPrompt(history []domain.Message) []domain.Message {
	if o.systemPrompt == "" {
		return history
	}
	out := make([]domain.Message, 0, len(history)+1)
	out = append(out, domain.Message{Role: domain.RoleSystem, Content: o.systemPrompt})
	out = append(out, history...)
	return out
}

// runToolLoop executes one assistant turn's tool calls against the
// registry, enforcing the remaining per-turn budget, and returns the
// assistant Message (tagged with the calls it made, for wire-format
// reconstruction) plus one RoleTool Message per result.
func (o *Orchestrator) runToolLoop(ctx context.Context, sessionID string, resp llmclient.Response, budget *int) (domain.Message, []domain.Message, []domain.Citation, error) {
	callsJSON, err := json.Marshal(resp.ToolCalls)
	if err != nil {
		return domain.Message{}, nil, nil, fmt.Errorf("marshal tool calls: %w", err)
	}
	assistantMsg := domain.Message{
		SessionID: sessionID,
		Role:      domain.RoleAssistant,
		Content:   resp.Text,
		Metadata:  map[string]string{domain.MetaToolCalls: string(callsJSON)},
	}

	var toolMsgs []domain.Message
	var citations []domain.Citation

	for _, call := range resp.ToolCalls {
		if *budget <= 0 {
			toolMsgs = append(toolMsgs, o.toolResultMessage(sessionID, call, "tool call budget for this turn is exhausted", true))
			continue
		}
		*budget--

		content, isError, callCitations := o.invokeTool(ctx, call)
		toolMsgs = append(toolMsgs, o.toolResultMessage(sessionID, call, content, isError))
		citations = append(citations, callCitations...)
	}

	return assistantMsg, toolMsgs, citations, nil
}

func (o *Orchestrator) invokeTool(ctx context.Context, call domain.ToolCall) (content string, isError bool, citations []domain.Citation) {
	tool, ok := o.registry.Get(call.Name)
	if !ok {
		return fmt.Sprintf("unknown tool: %s", call.Name), true, nil
	}

	toolCtx, cancel := context.WithTimeout(ctx, o.toolTimeout)
	defer cancel()

	outcome, err := tool.Invoke(toolCtx, call.Arguments)
	if err != nil {
		o.log.Warn("tool invocation failed", "tool", call.Name, "error", err)
		if apiErr, ok := apierr.As(err); ok {
			return apiErr.Message, true, nil
		}
		return err.Error(), true, nil
	}
	return outcome.Content, false, outcome.Citations
}

func (o *Orchestrator) toolResultMessage(sessionID string, call domain.ToolCall, content string, isError bool) domain.Message {
	meta := map[string]string{domain.MetaToolCallID: call.ID}
	if isError {
		meta[domain.MetaToolError] = "true"
	}
	return domain.Message{SessionID: sessionID, Role: domain.RoleTool, Content: content, Metadata: meta}
}

// persist appends the user and assistant turns inside the session's
// lock, so two concurrent requests against the same session never
// interleave their writes.
func (o *Orchestrator) persist(ctx context.Context, sessionID string, userMsg, assistantMsg domain.Message) error {
	return o.sessions.WithLock(sessionID, func() error {
		if _, err := o.sessions.AppendMessage(ctx, userMsg); err != nil {
			return err
		}
		_, err := o.sessions.AppendMessage(ctx, assistantMsg)
		return err
	})
}
