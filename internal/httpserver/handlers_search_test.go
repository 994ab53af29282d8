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
	"strings"
	"testing"

	"github.com/ragserve/ragserve/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch_MissingQuery_400(t *testing.T) {
	router := NewRouter(testDeps())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/search/vector", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearch_DefaultsK_WhenOmitted(t *testing.T) {
	ret := &fakeRetriever{results: []domain.SearchResult{{DocumentID: "doc-1"}}}
	deps := testDeps()
	deps.Retriever = ret
	router := NewRouter(deps)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/search/text", strings.NewReader(`{"query":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultSearchLimit, ret.gotK)
	assert.Equal(t, domain.ModeText, ret.gotMode)
}

func TestSearch_ExplicitZeroK_PassesThroughUnrewritten(t *testing.T) {
	ret := &fakeRetriever{results: []domain.SearchResult{{DocumentID: "doc-1"}}}
	deps := testDeps()
	deps.Retriever = ret
	router := NewRouter(deps)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/search/vector", strings.NewReader(`{"query":"hello","k":0}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, ret.gotK, "an explicit k=0 must not be rewritten to defaultSearchLimit")
}

func TestSearch_HonorsExplicitK_AndMode(t *testing.T) {
	ret := &fakeRetriever{}
	deps := testDeps()
	deps.Retriever = ret
	router := NewRouter(deps)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/search/hybrid", strings.NewReader(`{"query":"hello","k":3}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, ret.gotK)
	assert.Equal(t, domain.ModeHybrid, ret.gotMode)
}

func TestSearch_RetrieverError_Propagates(t *testing.T) {
	ret := &fakeRetriever{err: errors.New("vector store down")}
	deps := testDeps()
	deps.Retriever = ret
	router := NewRouter(deps)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/search/vector", strings.NewReader(`{"query":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
