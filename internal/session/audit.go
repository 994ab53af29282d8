// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/ragserve/ragserve/internal/domain"
)

// MessageAppendedEvent describes one append for an AuditSink. It
// carries enough to log or forward without a second database read.
type MessageAppendedEvent struct {
	SessionID string
	MessageID string
	Role      domain.MessageRole
	CreatedAt time.Time
}

// AuditSink receives message-append events. It is the integration
// point for a deployment that wants every conversation turn mirrored
// somewhere ragserve itself doesn't know about (a compliance log, a
// second datastore); the default Store has no sink and skips the call
// entirely.
//
// Implementations must be safe for concurrent use and must not block
// the caller for long: AppendMessage calls OnMessageAppended
// synchronously and logs, but does not fail, a sink error.
type AuditSink interface {
	OnMessageAppended(ctx context.Context, event MessageAppendedEvent) error
}

type noopAuditSink struct{}

func (noopAuditSink) OnMessageAppended(ctx context.Context, event MessageAppendedEvent) error {
	return nil
}

// SetAuditSink installs sink on an existing Store. A nil sink restores
// the no-op default.
func (s *Store) SetAuditSink(sink AuditSink) {
	if sink == nil {
		sink = noopAuditSink{}
	}
	s.audit = sink
}

func (s *Store) notifyAppended(ctx context.Context, msg domain.Message) {
	err := s.audit.OnMessageAppended(ctx, MessageAppendedEvent{
		SessionID: msg.SessionID,
		MessageID: msg.ID,
		Role:      msg.Role,
		CreatedAt: msg.CreatedAt,
	})
	if err != nil {
		slog.Default().Warn("audit sink failed", "session_id", msg.SessionID, "error", err)
	}
}
