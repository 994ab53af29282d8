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
)

// health handles GET /health: a liveness/readiness probe over the
// Vector Store Gateway's connection. It reports "ok" when the store
// answers a ping and 503 "unavailable" when it does not, so a load
// balancer does not route traffic to an instance that can't yet serve a
// search. The graph store and the LLM backend are not checked.
func (h *handlers) health(c *gin.Context) {
	if h.deps.Health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	if err := h.deps.Health.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
