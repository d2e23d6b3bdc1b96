// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/nshiell/ollama-chat/internal/util"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	summary    TEXT NOT NULL DEFAULT '',
	model      TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	seq             INTEGER NOT NULL,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	timestamp       INTEGER NOT NULL,
	PRIMARY KEY (conversation_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at);
`

// SQLiteStore keeps all conversations in one SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), util.DefaultDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	// A single long-lived connection also keeps the pragmas below in force.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// =============================================================================
// SAVE / LOAD
// =============================================================================

// Save replaces the conversation row and all of its messages in one
// transaction.
func (s *SQLiteStore) Save(conv *StoredConversation) error {
	if !validID(conv.ID) {
		return invalidID(conv.ID)
	}
	conv.stamp()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO conversations (id, summary, model, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			summary = excluded.summary,
			model = excluded.model,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		conv.ID, conv.Summary, conv.Model, unixNano(conv.CreatedAt), unixNano(conv.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save conversation %s: %w", conv.ID, err)
	}

	if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_id = ?`, conv.ID); err != nil {
		return fmt.Errorf("failed to clear messages for %s: %w", conv.ID, err)
	}

	stmt, err := tx.Prepare(`INSERT INTO messages (conversation_id, seq, role, content, timestamp) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range conv.Messages {
		if _, err := stmt.Exec(conv.ID, i, m.Role, m.Content, unixNano(m.Timestamp)); err != nil {
			return fmt.Errorf("failed to save message %d of %s: %w", i, conv.ID, err)
		}
	}

	return tx.Commit()
}

// Load reads one conversation with its messages.
func (s *SQLiteStore) Load(id string) (*StoredConversation, error) {
	if !validID(id) {
		return nil, invalidID(id)
	}

	row := s.db.QueryRow(`SELECT id, summary, model, created_at, updated_at FROM conversations WHERE id = ?`, id)
	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("failed to load conversation %s: %w", id, err)
	}

	if err := s.loadMessages(conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// LoadAll reads every conversation, oldest first.
func (s *SQLiteStore) LoadAll() ([]*StoredConversation, error) {
	rows, err := s.db.Query(`SELECT id, summary, model, created_at, updated_at FROM conversations ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	var convs []*StoredConversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to read conversation row: %w", err)
		}
		convs = append(convs, conv)
	}
	// Release the single connection before querying messages.
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, conv := range convs {
		if err := s.loadMessages(conv); err != nil {
			return nil, err
		}
	}
	return convs, nil
}

func (s *SQLiteStore) loadMessages(conv *StoredConversation) error {
	rows, err := s.db.Query(`SELECT role, content, timestamp FROM messages WHERE conversation_id = ? ORDER BY seq`, conv.ID)
	if err != nil {
		return fmt.Errorf("failed to load messages for %s: %w", conv.ID, err)
	}
	defer rows.Close()

	conv.Messages = conv.Messages[:0]
	for rows.Next() {
		var m StoredMessage
		var ts int64
		if err := rows.Scan(&m.Role, &m.Content, &ts); err != nil {
			return fmt.Errorf("failed to read message of %s: %w", conv.ID, err)
		}
		m.Timestamp = fromUnixNano(ts)
		conv.Messages = append(conv.Messages, m)
	}
	return rows.Err()
}

// unixNano stores a zero time as 0, which UnixNano leaves undefined.
func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(0, ts)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*StoredConversation, error) {
	var conv StoredConversation
	var created, updated int64
	if err := row.Scan(&conv.ID, &conv.Summary, &conv.Model, &created, &updated); err != nil {
		return nil, err
	}
	conv.CreatedAt = fromUnixNano(created)
	conv.UpdatedAt = fromUnixNano(updated)
	return &conv, nil
}

// =============================================================================
// LIST / SEARCH
// =============================================================================

const metaQuery = `
	SELECT c.id, c.summary, c.model, c.created_at, c.updated_at,
		(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id),
		COALESCE((SELECT m.content FROM messages m
			WHERE m.conversation_id = c.id AND m.role = 'user'
			ORDER BY m.seq LIMIT 1), '')
	FROM conversations c`

// List returns metadata for every conversation.
func (s *SQLiteStore) List() ([]ConversationMeta, error) {
	return s.queryMetas(metaQuery + ` ORDER BY c.updated_at DESC`)
}

// Search returns conversations whose title or messages contain query.
func (s *SQLiteStore) Search(query string) ([]ConversationMeta, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.List()
	}
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	return s.queryMetas(metaQuery+`
		WHERE lower(c.summary) LIKE ? ESCAPE '\'
		OR EXISTS (SELECT 1 FROM messages m
			WHERE m.conversation_id = c.id AND lower(m.content) LIKE ? ESCAPE '\')
		ORDER BY c.updated_at DESC`, pattern, pattern)
}

func (s *SQLiteStore) queryMetas(query string, args ...any) ([]ConversationMeta, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var metas []ConversationMeta
	for rows.Next() {
		var m ConversationMeta
		var created, updated int64
		var preview string
		if err := rows.Scan(&m.ID, &m.Summary, &m.Model, &created, &updated, &m.MessageCount, &preview); err != nil {
			return nil, fmt.Errorf("failed to read conversation row: %w", err)
		}
		m.CreatedAt = fromUnixNano(created)
		m.UpdatedAt = fromUnixNano(updated)
		m.Preview = util.Preview(preview, previewRunes)
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// =============================================================================
// DELETE / CLOSE
// =============================================================================

// Delete removes a conversation and its messages.
func (s *SQLiteStore) Delete(id string) error {
	if !validID(id) {
		return invalidID(id)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete messages of %s: %w", id, err)
	}
	res, err := tx.Exec(`DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound(id)
	}
	return tx.Commit()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
