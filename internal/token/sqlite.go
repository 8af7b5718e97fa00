package token

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"classboard/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS session_state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

// SQLiteStore is the durable Store implementation. A single small
// key-value table survives process restarts the way browser local
// storage survives tab reloads.
type SQLiteStore struct {
	db       *sql.DB
	duration time.Duration
	now      func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (and if needed initializes) the session store at
// path. duration is the fixed token lifetime applied on every SetToken.
func NewSQLiteStore(path string, duration time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}

	return &SQLiteStore{
		db:       db,
		duration: duration,
		now:      time.Now,
	}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SetClock overrides the store's notion of now. Test hook.
func (s *SQLiteStore) SetClock(now func() time.Time) {
	s.now = now
}

func (s *SQLiteStore) set(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO session_state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

func (s *SQLiteStore) get(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM session_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SetToken overwrites any prior session state with the new token and a
// fresh absolute expiry.
func (s *SQLiteStore) SetToken(tok string) error {
	if err := s.set(keyAccessToken, tok); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	expiry := s.now().Add(s.duration).UnixMilli()
	if err := s.set(keyTokenExpiry, strconv.FormatInt(expiry, 10)); err != nil {
		return fmt.Errorf("failed to store token expiry: %w", err)
	}
	return nil
}

// Token returns the stored token, evicting all session state when the
// token is absent, unreadable, or past its expiry.
func (s *SQLiteStore) Token() (string, error) {
	tok, err := s.get(keyAccessToken)
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	rawExpiry, err := s.get(keyTokenExpiry)
	if err != nil {
		return "", fmt.Errorf("failed to read token expiry: %w", err)
	}

	if tok == "" || rawExpiry == "" {
		return "", s.Clear()
	}

	expiry, err := strconv.ParseInt(rawExpiry, 10, 64)
	if err != nil || expired(expiry, s.now()) {
		return "", s.Clear()
	}

	return tok, nil
}

// SetRole records the role flag.
func (s *SQLiteStore) SetRole(role types.Role) error {
	if !role.Valid() {
		return types.ErrInvalidRole
	}
	if err := s.set(keyUserType, string(role)); err != nil {
		return fmt.Errorf("failed to store role: %w", err)
	}
	return nil
}

// Role returns the stored role flag, or "" when none is stored.
func (s *SQLiteStore) Role() (types.Role, error) {
	raw, err := s.get(keyUserType)
	if err != nil {
		return "", fmt.Errorf("failed to read role: %w", err)
	}
	return types.Role(raw), nil
}

// IsAuthenticated reports whether a live token is stored.
func (s *SQLiteStore) IsAuthenticated() bool {
	tok, err := s.Token()
	return err == nil && tok != ""
}

// RemainingTime returns the time left before the stored token expires.
func (s *SQLiteStore) RemainingTime() time.Duration {
	rawExpiry, err := s.get(keyTokenExpiry)
	if err != nil || rawExpiry == "" {
		return 0
	}
	expiry, err := strconv.ParseInt(rawExpiry, 10, 64)
	if err != nil {
		return 0
	}
	remaining := time.UnixMilli(expiry).Sub(s.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Clear removes all session state; calling it with nothing stored is a
// no-op.
func (s *SQLiteStore) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM session_state`); err != nil {
		return fmt.Errorf("failed to clear session state: %w", err)
	}
	return nil
}
