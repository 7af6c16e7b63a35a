// Package session persists the auth credential across client restarts.
// The token is the only client state that survives a restart; everything
// else is rebuilt from the backend.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const tokenFileName = "token"

// Store holds the session token and mirrors it to a file so a restarted
// client resumes the session. The zero value is unusable; use NewStore.
type Store struct {
	path  string
	token string
}

// NewStore opens (creating if needed) the state directory and loads any
// previously persisted token.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("session: state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("session: failed to create state directory %s: %w", dir, err)
	}

	store := &Store{path: filepath.Join(dir, tokenFileName)}
	raw, err := os.ReadFile(store.path)
	switch {
	case err == nil:
		store.token = strings.TrimSpace(string(raw))
	case os.IsNotExist(err):
		// First run, no session yet.
	default:
		return nil, fmt.Errorf("session: failed to read token file: %w", err)
	}
	return store, nil
}

// Token returns the current session token. The second return is false
// when no session exists.
func (s *Store) Token() (string, bool) {
	return s.token, s.token != ""
}

// SetToken stores the token durably. It takes effect immediately for
// subsequent gateway calls.
func (s *Store) SetToken(token string) error {
	if token == "" {
		return fmt.Errorf("session: refusing to store an empty token")
	}
	if err := os.WriteFile(s.path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("session: failed to persist token: %w", err)
	}
	s.token = token
	return nil
}

// Clear removes the token from memory and disk. Idempotent.
func (s *Store) Clear() error {
	s.token = ""
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("session: failed to remove token file: %w", err)
	}
	return nil
}
