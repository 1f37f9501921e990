package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/user/bookbot/internal/types"
)

const chatsSchema = `
CREATE TABLE IF NOT EXISTS chats (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	title       TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	path        TEXT NOT NULL,
	session_key TEXT NOT NULL DEFAULT '',
	messages    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS chats_user_created ON chats(user_id, created_at);
`

// SQLiteStore keeps chats in a SQLite database. Saves are upserts keyed by
// chat id, so repeating a save with the same chat is harmless.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if needed) the database at path.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := db.ExecContext(ctx, chatsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveChat(ctx context.Context, chat *types.Chat) error {
	messages, err := json.Marshal(chat.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chats (id, user_id, title, created_at, path, session_key, messages)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			title = excluded.title,
			path = excluded.path,
			session_key = excluded.session_key,
			messages = excluded.messages`,
		string(chat.ID), chat.UserID, chat.Title, chat.CreatedAt.UTC().Format(time.RFC3339Nano),
		chat.Path, string(chat.SessionKey), string(messages))
	if err != nil {
		return fmt.Errorf("upsert chat: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetChat(ctx context.Context, id types.ChatID) (*types.Chat, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, created_at, path, session_key, messages FROM chats WHERE id = ?`, string(id))
	chat, err := scanChat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrChatNotFound
	}
	return chat, err
}

// ListChats returns the user's chats, newest first. An empty userID lists
// every chat.
func (s *SQLiteStore) ListChats(ctx context.Context, userID string) ([]*types.Chat, error) {
	query := `SELECT id, user_id, title, created_at, path, session_key, messages FROM chats`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var chats []*types.Chat
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return chats, nil
}

func (s *SQLiteStore) DeleteChat(ctx context.Context, id types.ChatID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, string(id)); err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChat(row rowScanner) (*types.Chat, error) {
	var (
		chat       types.Chat
		id         string
		sessionKey string
		createdAt  string
		messages   string
	)
	if err := row.Scan(&id, &chat.UserID, &chat.Title, &createdAt, &chat.Path, &sessionKey, &messages); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	chat.ID = types.ChatID(id)
	chat.SessionKey = types.SessionKey(sessionKey)

	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	chat.CreatedAt = t
	if err := json.Unmarshal([]byte(messages), &chat.Messages); err != nil {
		return nil, fmt.Errorf("unmarshal messages: %w", err)
	}
	return &chat, nil
}
