// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ragserve/ragserve/internal/domain"
	"github.com/ragserve/ragserve/internal/metrics"
)

type createSessionRequest struct {
	UserID   string            `json:"user_id"`
	Metadata map[string]string `json:"metadata"`
}

type sessionResponse struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt string            `json:"created_at"`
}

type sessionWithHistoryResponse struct {
	sessionResponse
	Messages []domain.Message `json:"messages"`
}

// createSession handles POST /v1/sessions.
func (h *handlers) createSession(c *gin.Context) {
	var req createSessionRequest
	// An empty body is valid — both fields are optional — so only a
	// malformed JSON body is rejected.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.deps.Metrics.RecordError(metrics.EndpointSessionsCreate, metrics.ErrorValidation)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	sess, err := h.deps.Sessions.CreateSession(c.Request.Context(), req.UserID, req.Metadata)
	if err != nil {
		writeOrchestratorError(c, h.deps.Metrics, metrics.EndpointSessionsCreate, err)
		return
	}
	c.JSON(http.StatusCreated, toSessionResponse(sess))
}

// getSession handles GET /v1/sessions/:sessionId, returning the
// session plus its full message history.
func (h *handlers) getSession(c *gin.Context) {
	id := c.Param("sessionId")
	sess, err := h.deps.Sessions.GetSession(c.Request.Context(), id)
	if err != nil {
		writeOrchestratorError(c, h.deps.Metrics, metrics.EndpointSessionsGet, err)
		return
	}
	messages, err := h.deps.Sessions.ListMessages(c.Request.Context(), id, 0)
	if err != nil {
		writeOrchestratorError(c, h.deps.Metrics, metrics.EndpointSessionsGet, err)
		return
	}
	c.JSON(http.StatusOK, sessionWithHistoryResponse{
		sessionResponse: toSessionResponse(sess),
		Messages:        messages,
	})
}

func toSessionResponse(sess domain.Session) sessionResponse {
	return sessionResponse{
		ID:        sess.ID,
		UserID:    sess.UserID,
		Metadata:  sess.Metadata,
		CreatedAt: sess.CreatedAt.Format(timeLayout),
	}
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"
