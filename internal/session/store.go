// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session is the Session/Message store: append-only
// conversation history backed by the same Postgres database as the
// Vector Store Gateway, with an in-process per-session lock so two
// concurrent requests against one session serialize while unrelated
// sessions never contend.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ragserve/ragserve/internal/apierr"
	"github.com/ragserve/ragserve/internal/domain"
)

// Store persists Session and Message rows. It shares the Vector Store
// Gateway's *pgxpool.Pool rather than opening a second connection pool
// — sessions and documents live in the same database.
type Store struct {
	pool  *pgxpool.Pool
	locks *keyedLocks
	now   func() time.Time
	audit AuditSink
}

// New constructs a Store and ensures its tables exist.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool, locks: newKeyedLocks(), now: time.Now, audit: noopAuditSink{}}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL DEFAULT '',
	metadata JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS messages_session_order_idx ON messages (session_id, created_at, id);
`)
	if err != nil {
		return apierr.Resource("ensure session schema", err)
	}
	return nil
}

// WithLock runs fn while holding the session's in-process lock,
// serializing concurrent requests against the same session_id per the
// ordering guarantee that turns append in order. It does not itself
// touch the database; callers perform their reads/writes inside fn.
func (s *Store) WithLock(sessionID string, fn func() error) error {
	s.locks.Lock(sessionID)
	defer s.locks.Unlock(sessionID)
	return fn()
}

// CreateSession inserts a new session and returns it.
func (s *Store) CreateSession(ctx context.Context, userID string, metadata map[string]string) (domain.Session, error) {
	sess := domain.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Metadata:  metadata,
		CreatedAt: s.now(),
	}
	if sess.Metadata == nil {
		sess.Metadata = map[string]string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, user_id, metadata, created_at) VALUES ($1, $2, $3, $4)`,
		sess.ID, sess.UserID, sess.Metadata, sess.CreatedAt)
	if err != nil {
		return domain.Session{}, apierr.Resource("create session", err)
	}
	return sess, nil
}

// GetSession reads a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (domain.Session, error) {
	var sess domain.Session
	var metadata map[string]string
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, metadata, created_at FROM sessions WHERE id = $1`, id).
		Scan(&sess.ID, &sess.UserID, &metadata, &sess.CreatedAt)
	if err == pgx.ErrNoRows {
		return domain.Session{}, apierr.NotFound("session not found")
	}
	if err != nil {
		return domain.Session{}, apierr.Resource("get session", err)
	}
	sess.Metadata = metadata
	return sess, nil
}

// ListMessages returns up to limit messages for a session, ordered by
// created_at ascending with id as the tiebreak, matching the
// append-only ordering guarantee. limit <= 0 means "no cap".
func (s *Store) ListMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	query := `SELECT id, session_id, role, content, metadata, created_at FROM messages WHERE session_id = $1 ORDER BY created_at ASC, id ASC`
	args := []interface{}{sessionID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apierr.Resource("list messages", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var m domain.Message
		var metadata map[string]string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &metadata, &m.CreatedAt); err != nil {
			return nil, apierr.Resource("scan message", err)
		}
		m.Metadata = metadata
		out = append(out, m)
	}
	return out, rows.Err()
}

// AppendMessage inserts one message, assigning ID and CreatedAt if
// unset. Callers append the user turn and the assistant turn as two
// separate calls, both inside the same WithLock critical section, so
// their relative order is never racing another request on the same
// session.
func (s *Store) AppendMessage(ctx context.Context, msg domain.Message) (domain.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	if msg.Metadata == nil {
		msg.Metadata = map[string]string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, session_id, role, content, metadata, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.SessionID, msg.Role, msg.Content, msg.Metadata, msg.CreatedAt)
	if err != nil {
		return domain.Message{}, apierr.Resource("append message", err)
	}
	s.notifyAppended(ctx, msg)
	return msg, nil
}
