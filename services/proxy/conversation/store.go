// Copyright (C) 2025 Sama Wellness (engineering@samawellness.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package conversation implements the durable per-call message log.
//
// Every call the voice platform routes through the proxy is identified by a
// stable session id. All messages for that session are stored in insertion
// order so the model always receives full conversational context, and so a
// turn survives a process crash the moment Append returns.
//
// # Concurrency Contract
//
// All mutations (Append, Purge) are serialized through one store-wide mutex;
// every write to any session blocks every other write. This is a deliberate
// simplification for voice-call volumes, not a throughput target. Reads go
// through database/sql without the write lock; SQLite's WAL mode guarantees
// readers a consistent snapshot. The store is safe for use from concurrent
// request goroutines.
//
// # Durability
//
// The database runs with journal_mode=WAL and synchronous=FULL, so a
// successful Append has been flushed before it returns.
package conversation

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/samawellness/voicebridge/services/proxy/datatypes"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	_ "modernc.org/sqlite"
)

var tracer = otel.Tracer("voicebridge.proxy.conversation")

// Record is one persisted message with its store-assigned metadata.
// Sequence is authoritative for ordering; CreatedAt is informational only.
type Record struct {
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Sequence  int64     `json:"sequence"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the append-only conversation log backed by SQLite.
//
// # Description
//
// Store owns a single database handle shared by all request goroutines.
// Messages are keyed by (session_id, sequence) where sequence is the
// SQLite rowid, auto-assigned and strictly increasing per insert, which
// makes read-back order equal insertion order without any timestamp
// comparison.
//
// # Thread Safety
//
// Safe for concurrent use. See the package comment for the write-lock
// discipline.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if necessary) the conversation database at path.
//
// # Description
//
// Creates the parent directory, opens the database, applies the durability
// pragmas and bootstraps the schema. The returned Store must be closed by
// the caller when the process shuts down.
//
// # Inputs
//
//   - path: Filesystem location of the SQLite database file.
//
// # Outputs
//
//   - *Store: Ready for use.
//   - error: Non-nil if the directory, database or schema could not be set up.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// WAL for concurrent readers, synchronous=FULL so an acknowledged
	// append survives a crash, busy_timeout for the rare reader/writer
	// collision on checkpoint.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// initSchema creates the messages table and its session index.
func initSchema(db *sql.DB) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS messages (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT    NOT NULL,
		role       TEXT    NOT NULL,
		content    TEXT    NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := db.Exec(createTableSQL); err != nil {
		return fmt.Errorf("failed to create messages table: %w", err)
	}

	createIndexSQL := `
	CREATE INDEX IF NOT EXISTS idx_messages_session_id ON messages(session_id);`
	if _, err := db.Exec(createIndexSQL); err != nil {
		return fmt.Errorf("failed to create session index: %w", err)
	}
	return nil
}

// Append inserts a message at the tail of the session's log and returns
// the assigned sequence number.
//
// # Description
//
// The write is serialized through the store-wide lock and flushed before
// Append returns (see the package comment). A failed write is always
// reported; the store never silently drops a turn.
//
// # Inputs
//
//   - ctx: Context for cancellation.
//   - sessionID: Stable call identifier; any non-empty string.
//   - role: One of the closed role set (system, user, assistant).
//   - content: Message text; must be non-empty.
//
// # Outputs
//
//   - int64: The store-assigned sequence number.
//   - error: Non-nil on validation failure or when the durable write failed.
func (s *Store) Append(ctx context.Context, sessionID, role, content string) (int64, error) {
	ctx, span := tracer.Start(ctx, "Store.Append")
	defer span.End()
	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("role", role),
	)

	if sessionID == "" {
		return 0, fmt.Errorf("session id must not be empty")
	}
	if !datatypes.ValidRole(role) {
		return 0, fmt.Errorf("invalid message role %q", role)
	}
	if content == "" {
		return 0, fmt.Errorf("message content must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (session_id, role, content) VALUES (?, ?, ?)",
		sessionID, role, content,
	)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to append message for session %s: %w", sessionID, err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to read assigned sequence: %w", err)
	}
	return seq, nil
}

// History returns the full ordered message list for a session.
//
// An unknown session yields an empty slice, not an error. Order is the
// store-assigned sequence, which equals insertion order.
func (s *Store) History(ctx context.Context, sessionID string) ([]datatypes.Message, error) {
	ctx, span := tracer.Start(ctx, "Store.History")
	defer span.End()
	span.SetAttributes(attribute.String("session_id", sessionID))

	rows, err := s.db.QueryContext(ctx,
		"SELECT role, content FROM messages WHERE session_id = ? ORDER BY id ASC",
		sessionID,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read history for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	history := make([]datatypes.Message, 0)
	for rows.Next() {
		var m datatypes.Message
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		history = append(history, m)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to iterate history rows: %w", err)
	}
	span.SetAttributes(attribute.Int("history.messages", len(history)))
	return history, nil
}

// Log returns the session's full records including sequence numbers and
// timestamps. Diagnostic surface for the session admin routes; the request
// pipeline uses History.
func (s *Store) Log(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT session_id, role, content, id, created_at FROM messages WHERE session_id = ? ORDER BY id ASC",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read log for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.SessionID, &r.Role, &r.Content, &r.Sequence, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan log row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate log rows: %w", err)
	}
	return records, nil
}

// Purge deletes all messages for a session. Idempotent: purging an unknown
// or already-empty session is a no-op, not an error.
func (s *Store) Purge(ctx context.Context, sessionID string) error {
	ctx, span := tracer.Start(ctx, "Store.Purge")
	defer span.End()
	span.SetAttributes(attribute.String("session_id", sessionID))

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM messages WHERE session_id = ?", sessionID,
	); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to purge session %s: %w", sessionID, err)
	}
	return nil
}

// Sessions returns the distinct session ids ordered by first appearance.
// Diagnostic use only.
func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT session_id FROM messages GROUP BY session_id ORDER BY MIN(id)",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	return ids, nil
}

// Ping reports whether the underlying database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
