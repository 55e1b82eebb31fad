package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/mattn/go-sqlite3"

	"github.com/massy-ia/citydesk/internal/apperr"
)

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens the database and creates missing tables.
// A single connection is kept open: it serialises writers and lets ":memory:" work.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := NewStore(db)
	if err = store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// NewStore wraps an already opened database without touching its schema.
func NewStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return apperr.Unavailable("database unreachable", err)
	}
	return nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id TEXT PRIMARY KEY,
        email TEXT UNIQUE NOT NULL,
        username TEXT UNIQUE NOT NULL,
        password_hash TEXT NOT NULL,
        first_name TEXT NOT NULL,
        last_name TEXT NOT NULL,
        role TEXT NOT NULL DEFAULT 'citizen' CHECK (role IN ('citizen', 'police', 'university')),
        is_active BOOLEAN NOT NULL DEFAULT TRUE,
        is_verified BOOLEAN NOT NULL DEFAULT FALSE,
        created_at DATETIME NOT NULL,
        last_login DATETIME,
        profile_picture TEXT
    );

    CREATE TABLE IF NOT EXISTS conversations (
        id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL REFERENCES users (id),
        title TEXT NOT NULL,
        created_at DATETIME NOT NULL,
        updated_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations (user_id, updated_at);

    CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY,
        conversation_id TEXT NOT NULL REFERENCES conversations (id),
        sender TEXT NOT NULL CHECK (sender IN ('user', 'bot')),
        content TEXT NOT NULL,
        created_at DATETIME NOT NULL,
        meta_info TEXT
    );
    CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, created_at);

    CREATE TABLE IF NOT EXISTS suspect_alerts (
        id TEXT PRIMARY KEY,
        alert_type TEXT NOT NULL,
        description TEXT NOT NULL,
        latitude REAL NOT NULL,
        longitude REAL NOT NULL,
        risk_level INTEGER NOT NULL CHECK (risk_level BETWEEN 1 AND 10),
        status TEXT NOT NULL DEFAULT 'new',
        reported_at DATETIME NOT NULL,
        resolved_at DATETIME,
        user_id TEXT REFERENCES users (id),
        additional_data TEXT
    );

    CREATE TABLE IF NOT EXISTS research_projects (
        id TEXT PRIMARY KEY,
        title TEXT NOT NULL,
        description TEXT NOT NULL,
        status TEXT NOT NULL DEFAULT 'draft',
        created_at DATETIME NOT NULL,
        updated_at DATETIME NOT NULL,
        user_id TEXT REFERENCES users (id),
        results TEXT,
        tags TEXT
    );

    CREATE TABLE IF NOT EXISTS urbanism_projects (
        id TEXT PRIMARY KEY,
        title TEXT NOT NULL,
        description TEXT NOT NULL DEFAULT '',
        status TEXT NOT NULL DEFAULT 'open',
        content TEXT NOT NULL DEFAULT '',
        analysis TEXT NOT NULL DEFAULT '',
        user_id TEXT REFERENCES users (id),
        created_at DATETIME NOT NULL,
        updated_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_urbanism_title ON urbanism_projects (title);

    CREATE TABLE IF NOT EXISTS data_chunks (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        content TEXT NOT NULL,
        embedding_json TEXT
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// withTx runs fn in a transaction and rolls back when fn fails.
// fn must only use tx: the pool holds a single connection.
func (s *SQLiteStore) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return mapError(op, err)
	}
	if err := tx.Commit(); err != nil {
		return mapError(op, err)
	}
	return nil
}

// mapError classifies driver errors. Errors that already carry a kind pass through.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("resource not found")
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return apperr.Conflict(conflictMessage(sqliteErr.Error()), err)
	}
	return apperr.Internal(op, err)
}

func conflictMessage(detail string) string {
	switch {
	case strings.Contains(detail, "users.email"):
		return "email already registered"
	case strings.Contains(detail, "users.username"):
		return "username already taken"
	}
	return "resource already exists"
}

type scanner interface {
	Scan(dest ...any) error
}

func encodeJSON(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode json column: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeJSON(raw sql.NullString, v any) error {
	if !raw.Valid || raw.String == "" || raw.String == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw.String), v); err != nil {
		return fmt.Errorf("failed to decode json column: %w", err)
	}
	return nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	return &nt.Time
}

// publicUserColumns selects the reporter/researcher join as nullable columns.
const publicUserColumns = "u.id, u.username, u.first_name, u.last_name, u.role, u.profile_picture"

type nullPublicUser struct {
	id, username, firstName, lastName, role, picture sql.NullString
}

func (n *nullPublicUser) dest() []any {
	return []any{&n.id, &n.username, &n.firstName, &n.lastName, &n.role, &n.picture}
}

func (n *nullPublicUser) user() *PublicUser {
	if !n.id.Valid {
		return nil
	}
	return &PublicUser{
		ID:             n.id.String,
		Username:       n.username.String,
		FirstName:      n.firstName.String,
		LastName:       n.lastName.String,
		Role:           Role(n.role.String),
		ProfilePicture: stringPtr(n.picture),
	}
}

func countRows(ctx context.Context, db *sql.DB, table, status string) (int, error) {
	query := "SELECT COUNT(*) FROM " + table
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	var n int
	if err := db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, mapError("failed to count "+table, err)
	}
	return n, nil
}
