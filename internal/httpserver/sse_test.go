// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ragserve/ragserve/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nonFlushingWriter implements http.ResponseWriter but not
// http.Flusher, exercising NewSSEWriter's capability check.
type nonFlushingWriter struct {
	http.ResponseWriter
}

func TestNewSSEWriter_RejectsNonFlushingWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	_, err := NewSSEWriter(nonFlushingWriter{ResponseWriter: rec})
	require.Error(t, err)
}

func TestSSEWriter_WriteToken_FramesAsTokenEvent(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.WriteToken("hello"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: token")
	assert.Contains(t, body, `"content":"hello"`)
	assert.Contains(t, body, "id: ")
	assert.True(t, rec.Flushed)
}

func TestSSEWriter_WriteCitation_FramesAsCitationEvent(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.WriteCitation(domain.Citation{DocumentID: "doc-1", ChunkID: "chunk-1"}))

	body := rec.Body.String()
	assert.Contains(t, body, "event: citation")
	assert.Contains(t, body, `"doc-1"`)
}

func TestSSEWriter_WriteError_FramesAsErrorEvent(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.WriteError("retrieval failed"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: error")
	assert.Contains(t, body, "retrieval failed")
}

func TestSSEWriter_WriteEnd_FramesAsEndEvent(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.WriteEnd())
	assert.Contains(t, rec.Body.String(), "event: end")
}

func TestSSEWriter_WriteKeepAlive_WritesCommentLine(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.WriteKeepAlive())
	assert.Contains(t, rec.Body.String(), ": ping")
}

func TestSetSSEHeaders_SetsExpectedHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SetSSEHeaders(rec)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
}
