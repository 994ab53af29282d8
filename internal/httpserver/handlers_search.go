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

type searchRequest struct {
	Query string `json:"query" binding:"required"`
	// K is a pointer so an omitted field (default to defaultSearchLimit)
	// is distinguishable from an explicit 0 (an intentional empty-result
	// request, per the Retrieval Pipeline's k=0 boundary contract).
	K *int `json:"k"`
}

type searchResponse struct {
	Results []domain.SearchResult `json:"results"`
}

const defaultSearchLimit = 5

// search returns a handler bound to one fixed SearchMode (vector, text,
// or hybrid), so router.go's three /search/{mode} routes each get a
// thin, mode-specific handler without duplicating request parsing.
func (h *handlers) search(mode domain.SearchMode) gin.HandlerFunc {
	endpoint := searchEndpointFor(mode)
	return func(c *gin.Context) {
		var req searchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			h.deps.Metrics.RecordError(endpoint, metrics.ErrorValidation)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		k := defaultSearchLimit
		if req.K != nil {
			k = *req.K
			if k < 0 {
				k = defaultSearchLimit
			}
		}

		results, err := h.deps.Retriever.Retrieve(c.Request.Context(), req.Query, mode, k)
		if err != nil {
			writeOrchestratorError(c, h.deps.Metrics, endpoint, err)
			return
		}
		c.JSON(http.StatusOK, searchResponse{Results: results})
	}
}

func searchEndpointFor(mode domain.SearchMode) metrics.Endpoint {
	switch mode {
	case domain.ModeVector:
		return metrics.EndpointSearchVector
	case domain.ModeText:
		return metrics.EndpointSearchText
	default:
		return metrics.EndpointSearchHybrid
	}
}
