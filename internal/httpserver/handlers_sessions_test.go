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
	"strings"
	"testing"
	"time"

	"github.com/ragserve/ragserve/internal/apierr"
	"github.com/ragserve/ragserve/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSession_EmptyBody_Allowed(t *testing.T) {
	sessions := &fakeSessionStore{session: domain.Session{ID: "sess-1"}}
	deps := testDeps()
	deps.Sessions = sessions
	router := NewRouter(deps)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "sess-1")
}

func TestCreateSession_MalformedBody_400(t *testing.T) {
	router := NewRouter(testDeps())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", strings.NewReader(`{not json`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateSession_PassesUserIDAndMetadata(t *testing.T) {
	sessions := &fakeSessionStore{session: domain.Session{ID: "sess-1"}}
	deps := testDeps()
	deps.Sessions = sessions
	router := NewRouter(deps)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", strings.NewReader(`{"user_id":"user-1","metadata":{"k":"v"}}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "user-1", sessions.gotUser)
	assert.Equal(t, map[string]string{"k": "v"}, sessions.gotMeta)
}

func TestGetSession_ReturnsSessionWithHistory(t *testing.T) {
	sessions := &fakeSessionStore{
		session: domain.Session{ID: "sess-1", UserID: "user-1", CreatedAt: time.Unix(0, 0).UTC()},
		messages: []domain.Message{
			{ID: "msg-1", SessionID: "sess-1", Role: domain.RoleUser, Content: "hi"},
		},
	}
	deps := testDeps()
	deps.Sessions = sessions
	router := NewRouter(deps)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/sess-1", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "sess-1")
	assert.Contains(t, body, "hi")
}

func TestGetSession_NotFound_Propagates404(t *testing.T) {
	sessions := &fakeSessionStore{sessErr: apierr.NotFound("session not found")}
	deps := testDeps()
	deps.Sessions = sessions
	router := NewRouter(deps)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/missing", nil)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
