// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package httpserver

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealth_NoHealthChecker_AlwaysOK(t *testing.T) {
	deps := testDeps()
	deps.Health = nil
	router := NewRouter(deps)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealth_DependencyUnreachable_503(t *testing.T) {
	deps := testDeps()
	deps.Health = &fakeHealthChecker{err: errors.New("connection refused")}
	router := NewRouter(deps)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealth_DependencyReachable_OK(t *testing.T) {
	deps := testDeps()
	deps.Health = &fakeHealthChecker{}
	router := NewRouter(deps)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
