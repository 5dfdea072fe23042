// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// ErrRecordNotFound is returned when a history lookup misses.
var ErrRecordNotFound = &HistoryError{Message: "conversation not found"}

// HistoryError is a history store error that matches by message.
type HistoryError struct {
	Message string
}

func (e *HistoryError) Error() string {
	return e.Message
}

// Is implements error matching for errors.Is.
func (e *HistoryError) Is(target error) bool {
	t, ok := target.(*HistoryError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// historySchema keeps insertion order in seq and rejects duplicate content.
const historySchema = `
CREATE TABLE IF NOT EXISTS history (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL,
    content_hash TEXT NOT NULL UNIQUE,
    system_prompt TEXT NOT NULL,
    context TEXT NOT NULL,
    question TEXT NOT NULL,
    response TEXT NOT NULL,
    model TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL  -- Unix nanoseconds
);

CREATE INDEX IF NOT EXISTS idx_history_id ON history(id);
`

const selectColumns = `id, system_prompt, context, question, response, model, created_at`

// =============================================================================
// HISTORY STORE
// =============================================================================

// HistoryStore is the session's conversation history. It is safe for
// concurrent use; database/sql serializes access over a single connection.
type HistoryStore struct {
	db *sql.DB
}

// NewHistoryStore opens an empty in-memory history.
func NewHistoryStore() (*HistoryStore, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// Every connection to :memory: is a separate database, so pin one.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return &HistoryStore{db: db}, nil
}

// Close releases the database. History is discarded.
func (s *HistoryStore) Close() error {
	return s.db.Close()
}

// Append adds rec unless a record with the same content is already present.
// It reports whether the record was added.
func (s *HistoryStore) Append(ctx context.Context, rec ConversationRecord) (bool, error) {
	if rec.ID == "" {
		rec.ID = NewRecordID()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO history
			(id, content_hash, system_prompt, context, question, response, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ContentHash(), rec.SystemPrompt, rec.Context,
		rec.Question, rec.Response, rec.Model, rec.Timestamp.UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("append history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("append history: %w", err)
	}
	if n == 0 {
		log.Printf("HISTORY_DUPLICATE | id=%s", rec.ID)
		return false, nil
	}
	return true, nil
}

// List returns all records in insertion order.
func (s *HistoryStore) List(ctx context.Context) ([]ConversationRecord, error) {
	return s.query(ctx, `SELECT `+selectColumns+` FROM history ORDER BY seq ASC`)
}

// Recent returns up to n records, newest first. n <= 0 returns everything.
func (s *HistoryStore) Recent(ctx context.Context, n int) ([]ConversationRecord, error) {
	if n <= 0 {
		return s.query(ctx, `SELECT `+selectColumns+` FROM history ORDER BY seq DESC`)
	}
	return s.query(ctx, `SELECT `+selectColumns+` FROM history ORDER BY seq DESC LIMIT ?`, n)
}

// Get returns the record with the given ID.
func (s *HistoryStore) Get(ctx context.Context, id string) (ConversationRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM history WHERE id = ? ORDER BY seq DESC LIMIT 1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ConversationRecord{}, ErrRecordNotFound
	}
	if err != nil {
		return ConversationRecord{}, fmt.Errorf("get history %s: %w", id, err)
	}
	return rec, nil
}

// Len returns the number of records.
func (s *HistoryStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM history`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return n, nil
}

// Clear removes every record.
func (s *HistoryStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM history`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

func (s *HistoryStore) query(ctx context.Context, q string, args ...any) ([]ConversationRecord, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var records []ConversationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (ConversationRecord, error) {
	var rec ConversationRecord
	var created int64
	err := row.Scan(&rec.ID, &rec.SystemPrompt, &rec.Context, &rec.Question,
		&rec.Response, &rec.Model, &created)
	if err != nil {
		return ConversationRecord{}, err
	}
	rec.Timestamp = time.Unix(0, created)
	return rec, nil
}
