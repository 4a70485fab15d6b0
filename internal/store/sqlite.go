package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/besides-508-potenday/na-T-na-AI/internal/domain"
	"github.com/besides-508-potenday/na-T-na-AI/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteBackend stores one row per session holding the whole document as JSON.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (and creates) the database at dbPath.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	b := &SQLiteBackend{db: db}
	if err := b.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return b, nil
}

func (b *SQLiteBackend) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		session_key TEXT NOT NULL,
		user_nickname TEXT NOT NULL,
		chatbot_name TEXT NOT NULL,
		chatroom_id TEXT NOT NULL,
		state TEXT NOT NULL,
		document TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_key ON sessions(session_key);
	CREATE INDEX IF NOT EXISTS idx_sessions_nickname ON sessions(user_nickname);
	`
	if _, err := b.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Save upserts the session row, retrying busy/locked conflicts.
func (b *SQLiteBackend) Save(ctx context.Context, s *domain.Session) error {
	doc, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	query := `
	INSERT INTO sessions (session_id, session_key, user_nickname, chatbot_name, chatroom_id, state, document, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		state = excluded.state,
		document = excluded.document,
		updated_at = excluded.updated_at`

	err = shared.RetryOnConflict(ctx, 3, 100*time.Millisecond, func(ctx context.Context) error {
		_, err := b.db.ExecContext(ctx, query,
			s.ID, s.Key().String(), s.UserNickname, s.PersonaName, s.ChatroomID,
			string(s.State()), string(doc),
			s.CreatedAt.Unix(), s.UpdatedAt.Unix(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", s.ID, err)
	}
	return nil
}

// LoadAll reads every session document, oldest first.
func (b *SQLiteBackend) LoadAll(ctx context.Context) ([]*domain.Session, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT session_id, document FROM sessions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close session rows", "error", closeErr)
		}
	}()

	var out []*domain.Session
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		var s domain.Session
		if err := json.Unmarshal([]byte(doc), &s); err != nil {
			slog.Warn("Skipping malformed session row", "session_id", id, "error", err)
			continue
		}
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// Ping verifies database connectivity.
func (b *SQLiteBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

// Close closes the database connection.
func (b *SQLiteBackend) Close() error {
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
