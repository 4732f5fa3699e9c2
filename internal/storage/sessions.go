// Package storage persists session material between daemon runs so a restart
// does not force a new interactive login. Device state is never persisted.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNoSession means no session was stored for the platform yet.
var ErrNoSession = errors.New("no stored session")

// Session is the persisted material of one platform login.
type Session struct {
	Platform     string
	RefreshToken string
	AccountID    string
	UpdatedAt    time.Time
}

// Store is a SQLite-backed session store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens (or creates) the store at path.
func New(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	s := &Store{db: db, logger: logger}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	statements := []string{
		`PRAGMA journal_mode = WAL;`,
		`CREATE TABLE IF NOT EXISTS sessions (
			platform TEXT PRIMARY KEY,
			refresh_token TEXT NOT NULL,
			account_id TEXT,
			updated_at TEXT NOT NULL
		);`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Load returns the stored session for a platform.
func (s *Store) Load(ctx context.Context, platform string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT platform, refresh_token, account_id, updated_at
		FROM sessions WHERE platform = ?`, platform)

	var (
		session   Session
		accountID sql.NullString
		updatedAt string
	)
	err := row.Scan(&session.Platform, &session.RefreshToken, &accountID, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, err
	}
	session.AccountID = accountID.String
	if ts, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		session.UpdatedAt = ts.UTC()
	}
	return session, nil
}

// Save upserts the session for its platform.
func (s *Store) Save(ctx context.Context, session Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (platform, refresh_token, account_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(platform) DO UPDATE SET
			refresh_token = excluded.refresh_token,
			account_id = excluded.account_id,
			updated_at = excluded.updated_at`,
		session.Platform, session.RefreshToken, session.AccountID,
		time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// Delete removes the stored session for a platform.
func (s *Store) Delete(ctx context.Context, platform string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE platform = ?`, platform)
	return err
}
