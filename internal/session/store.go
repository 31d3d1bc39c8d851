package session

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Roles a persisted session can hold
const (
	RoleHost   = "host"
	RolePlayer = "player"
)

// Session is the small identity set that survives process restarts: enough
// to resume a game after a reload, nothing more. It is cleared on logout,
// server-reported invalidation, or game completion.
type Session struct {
	GameCode    string
	Role        string
	DisplayName string
	AuthToken   string
}

// Store persists the session in a single-row sqlite table.
type Store struct {
	db *sql.DB
}

// Open prepares the sqlite database at the given path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("session database path is empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure session directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}

	schema := `CREATE TABLE IF NOT EXISTS session (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		game_code TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT '',
		display_name TEXT NOT NULL DEFAULT '',
		auth_token TEXT NOT NULL DEFAULT '',
		saved_at TIMESTAMP NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Save replaces the persisted session.
func (s *Store) Save(sess Session) error {
	_, err := s.db.Exec(
		`INSERT INTO session (id, game_code, role, display_name, auth_token, saved_at)
		 VALUES (1, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			game_code = excluded.game_code,
			role = excluded.role,
			display_name = excluded.display_name,
			auth_token = excluded.auth_token,
			saved_at = excluded.saved_at`,
		sess.GameCode, sess.Role, sess.DisplayName, sess.AuthToken, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Load returns the persisted session, and whether one exists.
func (s *Store) Load() (Session, bool, error) {
	var sess Session
	row := s.db.QueryRow(`SELECT game_code, role, display_name, auth_token FROM session WHERE id = 1`)
	err := row.Scan(&sess.GameCode, &sess.Role, &sess.DisplayName, &sess.AuthToken)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("load session: %w", err)
	}
	return sess, true, nil
}

// Clear removes the persisted session.
func (s *Store) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM session WHERE id = 1`); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
