package discovery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// settingKeyAPIKey is the settings-table key for the vendor credential.
const settingKeyAPIKey = "rachio_api_key"

// CredentialStore holds the current vendor cloud credential.
//
// The credential is runtime-mutable through the settings API and persisted
// to the settings table so it survives restarts. An empty credential is a
// valid state: it means the bridge is not configured yet.
type CredentialStore struct {
	db      *sql.DB
	mu      sync.RWMutex
	current string
}

// NewCredentialStore creates a store over the settings table.
func NewCredentialStore(db *sql.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// Load reads the persisted credential, falling back to bootstrap when the
// settings table has none. Called once on startup; bootstrap is the
// config-file api_key, so a file-configured bridge works before any
// settings update.
func (s *CredentialStore) Load(ctx context.Context, bootstrap string) error {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM settings WHERE key = ?", settingKeyAPIKey,
	).Scan(&value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		value = bootstrap
	case err != nil:
		return fmt.Errorf("loading credential: %w", err)
	}

	s.mu.Lock()
	s.current = value
	s.mu.Unlock()
	return nil
}

// Get returns the current credential. Empty means not configured.
func (s *CredentialStore) Get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set persists and installs a new credential. Setting the empty string
// is valid and returns the bridge to the unconfigured state.
func (s *CredentialStore) Set(ctx context.Context, credential string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		settingKeyAPIKey, credential, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("persisting credential: %w", err)
	}

	s.mu.Lock()
	s.current = credential
	s.mu.Unlock()
	return nil
}
