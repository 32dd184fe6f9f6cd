// Package store provides SQLite-backed persistence for accounts and chat
// history, plus an in-memory implementation for tests.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chatrelay/chatrelay/pkg/crypto"
	"github.com/chatrelay/chatrelay/pkg/model"
)

const dbTimeLayout = "2006-01-02 15:04:05"

// Store provides database access for accounts and messages.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database and runs migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}

	ctx := context.Background()

	// Enable WAL mode for better concurrent read performance
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: set WAL: %w", err)
	}
	// Set busy timeout to avoid "database is locked" under concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: set busy_timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		username      TEXT    NOT NULL UNIQUE CHECK(length(username) > 0 AND length(username) <= 32),
		password_hash TEXT    NOT NULL,
		created_at    TEXT    NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS messages (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		sender     TEXT    NOT NULL,
		body       TEXT    NOT NULL,
		created_at TEXT    NOT NULL DEFAULT (datetime('now'))
	);
	`
	ctx := context.Background()
	if err := s.ensureSchemaMigrations(ctx); err != nil {
		return err
	}
	currentVersion, err := s.getSchemaVersion(ctx)
	if err != nil {
		return err
	}

	migrations := []struct {
		version    int
		statements []string
	}{
		{
			version:    1,
			statements: []string{schema},
		},
		{
			version: 2,
			statements: []string{
				"CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at)",
			},
		},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		for _, stmt := range m.statements {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("store: migrate to v%d: %w", m.version, err)
			}
		}
		if err := s.setSchemaVersion(ctx, m.version); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ensureSchemaMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("store: create schema_migrations: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("store: check schema_migrations: %w", err)
	}
	if count == 0 {
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("store: init schema_migrations: %w", err)
		}
	}
	return nil
}

func (s *Store) getSchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("store: read schema version: %w", err)
	}
	return version, nil
}

func (s *Store) setSchemaVersion(ctx context.Context, version int) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE schema_migrations SET version = ?", version); err != nil {
		return fmt.Errorf("store: update schema version: %w", err)
	}
	return nil
}

func formatDBTime(t time.Time) string {
	return t.UTC().Format(dbTimeLayout)
}

func parseDBTime(value string) (time.Time, error) {
	return time.ParseInLocation(dbTimeLayout, value, time.UTC)
}

// ---- Accounts ----

// CreateAccount registers a new account with a salted password hash.
// Returns false (and no error) when the username is already taken.
func (s *Store) CreateAccount(username, password string) (bool, error) {
	if err := model.ValidateUsername(username); err != nil {
		return false, fmt.Errorf("store: create account: %w", err)
	}

	existing, err := s.GetUserByUsername(username)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return false, fmt.Errorf("store: create account: %w", err)
	}
	_, err = s.db.ExecContext(context.Background(),
		"INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)",
		username, hash, formatDBTime(time.Now().UTC()))
	if err != nil {
		return false, fmt.Errorf("store: create account: %w", err)
	}
	return true, nil
}

// Authenticate verifies a username/password pair against the stored hash.
// An unknown username is a false result, not an error.
func (s *Store) Authenticate(username, password string) (bool, error) {
	var hash string
	err := s.db.QueryRowContext(context.Background(),
		"SELECT password_hash FROM users WHERE username = ?", username).Scan(&hash)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: authenticate: %w", err)
	}
	ok, err := crypto.VerifyPassword(password, hash)
	if err != nil {
		return false, fmt.Errorf("store: authenticate: %w", err)
	}
	return ok, nil
}

// GetUserByUsername retrieves an account by username, or nil when absent.
func (s *Store) GetUserByUsername(username string) (*model.User, error) {
	u := &model.User{}
	var createdAt string
	err := s.db.QueryRowContext(context.Background(),
		"SELECT id, username, created_at FROM users WHERE username = ?", username).
		Scan(&u.ID, &u.Username, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get user: %w", err)
	}
	if u.CreatedAt, err = parseDBTime(createdAt); err != nil {
		return nil, fmt.Errorf("store: get user: %w", err)
	}
	return u, nil
}

// ---- Messages ----

// RecordMessage durably records one chat line.
func (s *Store) RecordMessage(sender, body string) error {
	_, err := s.db.ExecContext(context.Background(),
		"INSERT INTO messages (sender, body, created_at) VALUES (?, ?, ?)",
		sender, body, formatDBTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("store: record message: %w", err)
	}
	return nil
}

// RecentMessages returns up to limit of the newest chat lines, oldest first.
func (s *Store) RecentMessages(limit int) ([]model.ChatLine, error) {
	if limit <= 0 {
		return nil, nil
	}
	// Select the newest rows, then flip back to chronological order.
	rows, err := s.db.QueryContext(context.Background(), `
		SELECT id, sender, body, created_at FROM (
			SELECT id, sender, body, created_at FROM messages ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent messages: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanChatLines(rows)
}

// MessagesBetween returns chat lines recorded in [start, end], oldest first.
func (s *Store) MessagesBetween(start, end time.Time) ([]model.ChatLine, error) {
	rows, err := s.db.QueryContext(context.Background(),
		"SELECT id, sender, body, created_at FROM messages WHERE created_at >= ? AND created_at <= ? ORDER BY id ASC",
		formatDBTime(start), formatDBTime(end))
	if err != nil {
		return nil, fmt.Errorf("store: messages between: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanChatLines(rows)
}

func scanChatLines(rows *sql.Rows) ([]model.ChatLine, error) {
	var result []model.ChatLine
	for rows.Next() {
		var line model.ChatLine
		var createdAt string
		if err := rows.Scan(&line.ID, &line.Sender, &line.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		parsed, err := parseDBTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		line.CreatedAt = parsed
		result = append(result, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: scan messages: %w", err)
	}
	return result, nil
}
