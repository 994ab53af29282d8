// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package httpserver

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ragserve/ragserve/internal/domain"
	"github.com/ragserve/ragserve/internal/metrics"
)

type documentListResponse struct {
	Documents []domain.DocumentSummary `json:"documents"`
}

// listDocuments handles GET /v1/documents?limit=&offset=.
func (h *handlers) listDocuments(c *gin.Context) {
	limit := parseIntQuery(c, "limit", 50)
	offset := parseIntQuery(c, "offset", 0)

	docs, err := h.deps.Documents.ListDocuments(c.Request.Context(), limit, offset)
	if err != nil {
		writeOrchestratorError(c, h.deps.Metrics, metrics.EndpointDocumentsList, err)
		return
	}
	c.JSON(http.StatusOK, documentListResponse{Documents: docs})
}

// getDocument handles GET /v1/documents/:id.
func (h *handlers) getDocument(c *gin.Context) {
	doc, err := h.deps.Documents.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeOrchestratorError(c, h.deps.Metrics, metrics.EndpointDocumentsGet, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func parseIntQuery(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
