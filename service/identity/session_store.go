package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sessionSchema = `
CREATE TABLE IF NOT EXISTS session (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	uid           TEXT    NOT NULL,
	id_token      TEXT    NOT NULL DEFAULT '',
	refresh_token TEXT    NOT NULL DEFAULT '',
	anonymous     INTEGER NOT NULL DEFAULT 1,
	signed_in_at  INTEGER NOT NULL
)`

// SessionStore persists the signed in user in a local SQLite file so a restart keeps the same uid.
type SessionStore struct {
	db *sql.DB
}

// OpenSessionStore opens (and creates if needed) the session database at path.
func OpenSessionStore(ctx context.Context, path string) (*SessionStore, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("session path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create session dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sessionSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init session schema: %w", err)
	}
	return &SessionStore{db: db}, nil
}

// Load returns the stored user or ErrNoSession.
func (s *SessionStore) Load(ctx context.Context) (*User, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("session store not initialized")
	}
	var (
		user      User
		anonymous int
		signedIn  int64
	)
	row := s.db.QueryRowContext(ctx, `SELECT uid, id_token, refresh_token, anonymous, signed_in_at FROM session WHERE id = 1`)
	if err := row.Scan(&user.UID, &user.IDToken, &user.RefreshToken, &anonymous, &signedIn); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	user.Anonymous = anonymous != 0
	user.SignedInAt = time.Unix(0, signedIn).UTC()
	return &user, nil
}

// Save replaces the stored user.
func (s *SessionStore) Save(ctx context.Context, user *User) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("session store not initialized")
	}
	if user == nil || strings.TrimSpace(user.UID) == "" {
		return fmt.Errorf("user id is required")
	}
	anonymous := 0
	if user.Anonymous {
		anonymous = 1
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO session (id, uid, id_token, refresh_token, anonymous, signed_in_at)
VALUES (1, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	uid = excluded.uid,
	id_token = excluded.id_token,
	refresh_token = excluded.refresh_token,
	anonymous = excluded.anonymous,
	signed_in_at = excluded.signed_in_at`,
		user.UID, user.IDToken, user.RefreshToken, anonymous, user.SignedInAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Clear forgets the stored user.
func (s *SessionStore) Clear(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("session store not initialized")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session`); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SessionStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
