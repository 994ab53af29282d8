// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package httpserver

import (
	"context"

	"github.com/ragserve/ragserve/internal/agent"
	"github.com/ragserve/ragserve/internal/domain"
	"github.com/ragserve/ragserve/internal/metrics"
)

// fakeOrchestrator is a narrow stand-in for Orchestrator, letting
// handler tests control the response or error without a real
// LLM/session store.
type fakeOrchestrator struct {
	resp       agent.Response
	err        error
	streamFunc func(ctx context.Context, sessionID, userMessage string, sink agent.Sink) error
	gotSession string
	gotMessage string
}

func (f *fakeOrchestrator) Run(ctx context.Context, sessionID, userMessage string) (agent.Response, error) {
	f.gotSession = sessionID
	f.gotMessage = userMessage
	if f.err != nil {
		return agent.Response{}, f.err
	}
	return f.resp, nil
}

func (f *fakeOrchestrator) RunStream(ctx context.Context, sessionID, userMessage string, sink agent.Sink) error {
	f.gotSession = sessionID
	f.gotMessage = userMessage
	if f.streamFunc != nil {
		return f.streamFunc(ctx, sessionID, userMessage, sink)
	}
	if f.err != nil {
		return f.err
	}
	return sink(agent.Event{Type: agent.EventEnd})
}

type fakeRetriever struct {
	results []domain.SearchResult
	err     error
	gotMode domain.SearchMode
	gotK    int
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, mode domain.SearchMode, k int) ([]domain.SearchResult, error) {
	f.gotMode = mode
	f.gotK = k
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakeDocumentStore struct {
	doc      domain.Document
	docErr   error
	list     []domain.DocumentSummary
	listErr  error
	gotLimit int
	gotOff   int
}

func (f *fakeDocumentStore) GetDocument(ctx context.Context, id string) (domain.Document, error) {
	if f.docErr != nil {
		return domain.Document{}, f.docErr
	}
	return f.doc, nil
}

func (f *fakeDocumentStore) ListDocuments(ctx context.Context, limit, offset int) ([]domain.DocumentSummary, error) {
	f.gotLimit, f.gotOff = limit, offset
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.list, nil
}

type fakeSessionStore struct {
	session  domain.Session
	sessErr  error
	messages []domain.Message
	msgErr   error
	gotUser  string
	gotMeta  map[string]string
}

func (f *fakeSessionStore) CreateSession(ctx context.Context, userID string, metadata map[string]string) (domain.Session, error) {
	f.gotUser, f.gotMeta = userID, metadata
	if f.sessErr != nil {
		return domain.Session{}, f.sessErr
	}
	return f.session, nil
}

func (f *fakeSessionStore) GetSession(ctx context.Context, id string) (domain.Session, error) {
	if f.sessErr != nil {
		return domain.Session{}, f.sessErr
	}
	return f.session, nil
}

func (f *fakeSessionStore) ListMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	if f.msgErr != nil {
		return nil, f.msgErr
	}
	return f.messages, nil
}

type fakeHealthChecker struct {
	err error
}

func (f *fakeHealthChecker) Ping(ctx context.Context) error { return f.err }

func testDeps() Deps {
	return Deps{
		Orchestrator:    &fakeOrchestrator{},
		Retriever:       &fakeRetriever{},
		Documents:       &fakeDocumentStore{},
		Sessions:        &fakeSessionStore{},
		Health:          &fakeHealthChecker{},
		Metrics:         metrics.New(),
		CORSOrigins:     func() []string { return nil },
		MaxRequestBytes: 1 << 20,
	}
}
