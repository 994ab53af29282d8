// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ragserve/ragserve/internal/domain"
)

// heartbeatInterval is how often WriteKeepAlive should be called by a
// caller driving a long-lived stream, chosen to land comfortably under
// common load-balancer and proxy idle-connection timeouts (typically
// 60s) so the connection never gets reaped mid-turn.
const heartbeatInterval = 15 * time.Second

// SSEWriter writes one ragserve chat turn's events to a client as
// Server-Sent Events, in the {token, citation, end, error} vocabulary
// RunStream produces. Every write is serialized: Gin's ResponseWriter
// is not safe for concurrent use, and a heartbeat goroutine writes
// alongside the event-producing goroutine.
type SSEWriter interface {
	WriteToken(content string) error
	WriteCitation(c domain.Citation) error
	WriteEnd() error
	WriteError(message string) error
	WriteKeepAlive() error
}

type tokenPayload struct {
	Content string `json:"content"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

// NewSSEWriter wraps w for event-stream writes. It fails if w doesn't
// implement http.Flusher, which every standard net/http ResponseWriter
// does unless middleware has wrapped it in a non-flushing buffer.
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("httpserver: response writer does not support flushing")
	}
	return &sseWriter{w: w, flusher: flusher}, nil
}

// SetSSEHeaders sets the response headers an SSE stream needs before
// the first byte is written: no caching, a held-open connection, and
// X-Accel-Buffering so an nginx-style reverse proxy doesn't buffer the
// whole response before relaying it.
func SetSSEHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

func (s *sseWriter) WriteToken(content string) error {
	return s.writeEvent("token", tokenPayload{Content: content})
}

func (s *sseWriter) WriteCitation(c domain.Citation) error {
	return s.writeEvent("citation", c)
}

func (s *sseWriter) WriteEnd() error {
	return s.writeEvent("end", struct{}{})
}

func (s *sseWriter) WriteError(message string) error {
	return s.writeEvent("error", errorPayload{Message: message})
}

// WriteKeepAlive sends a raw SSE comment line, which clients ignore as
// an event but which resets any idle-connection timer between the
// client and ragserve.
func (s *sseWriter) WriteKeepAlive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprint(s.w, ": ping\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) writeEvent(eventType string, data interface{}) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal sse event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "id: %s\nevent: %s\ndata: %s\n\n", uuid.NewString(), eventType, body); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
