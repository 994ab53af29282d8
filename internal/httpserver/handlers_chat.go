// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ragserve/ragserve/internal/agent"
	"github.com/ragserve/ragserve/internal/domain"
	"github.com/ragserve/ragserve/internal/metrics"
)

// chatRequest is the POST /v1/chat and /v1/chat/stream request body.
// SessionID is optional: an empty value starts a new session.
type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message" binding:"required"`
}

type chatResponse struct {
	SessionID string            `json:"session_id"`
	Answer    string            `json:"answer"`
	Citations []domain.Citation `json:"citations"`
}

// chat handles POST /v1/chat: one non-streaming turn through the Agent
// Orchestrator.
func (h *handlers) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.deps.Metrics.RecordError(metrics.EndpointChat, metrics.ErrorValidation)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	resp, err := h.deps.Orchestrator.Run(c.Request.Context(), sessionID, req.Message)
	if err != nil {
		writeOrchestratorError(c, h.deps.Metrics, metrics.EndpointChat, err)
		return
	}

	c.JSON(http.StatusOK, chatResponse{
		SessionID: sessionID,
		Answer:    resp.Message.Content,
		Citations: resp.Citations,
	})
}

// chatStream handles POST /v1/chat/stream: the same turn, relayed to
// the client as Server-Sent Events as RunStream produces them. Records
// its own stream-lifecycle metrics rather than going through
// metricsWrap, since a stream's "status code" is fixed the moment
// headers are written and its duration spans the whole turn, not one
// handler call.
func (h *handlers) chatStream(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	SetSSEHeaders(c.Writer)
	c.Writer.WriteHeader(http.StatusOK)
	writer, err := NewSSEWriter(c.Writer)
	if err != nil {
		h.deps.Log.Error("sse writer unavailable", "error", err)
		return
	}

	m := h.deps.Metrics
	start := time.Now()
	m.StreamStarted(metrics.EndpointChatStream)

	var firstTokenOnce bool
	reason := "end"

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-heartbeat.C:
				if err := writer.WriteKeepAlive(); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()
	defer close(done)

	err = h.deps.Orchestrator.RunStream(c.Request.Context(), sessionID, req.Message, func(e agent.Event) error {
		switch e.Type {
		case agent.EventToken:
			if !firstTokenOnce {
				firstTokenOnce = true
				m.RecordTimeToFirstToken(metrics.EndpointChatStream, time.Since(start))
			}
			m.RecordToken(metrics.EndpointChatStream)
			return writer.WriteToken(e.Token)
		case agent.EventCitation:
			return writer.WriteCitation(e.Citation)
		case agent.EventEnd:
			return writer.WriteEnd()
		case agent.EventError:
			reason = "error"
			return writer.WriteError(e.Error)
		}
		return nil
	})
	if err != nil {
		reason = streamEndReason(c, err)
		h.deps.Log.Warn("chat stream ended with error", "session_id", sessionID, "error", err)
	}

	m.StreamEnded(metrics.EndpointChatStream, reason, time.Since(start))
}

func streamEndReason(c *gin.Context, err error) string {
	if c.Request.Context().Err() != nil {
		return "client_disconnect"
	}
	return "error"
}

func writeOrchestratorError(c *gin.Context, m *metrics.Metrics, endpoint metrics.Endpoint, err error) {
	status, code, message := classifyError(err)
	m.RecordError(endpoint, code)
	slog.Default().Error("request failed", "endpoint", string(endpoint), "error", err)
	c.JSON(status, gin.H{"error": message})
}
