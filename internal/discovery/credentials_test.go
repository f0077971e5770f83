package discovery

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// openSettingsDB opens a throwaway SQLite database with the settings
// table the credential store depends on.
func openSettingsDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", "file:"+path+"?_foreign_keys=on")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`)
	if err != nil {
		t.Fatalf("creating settings table: %v", err)
	}
	return db
}

func TestCredentialStore_LoadBootstrapsFromConfig(t *testing.T) {
	store := NewCredentialStore(openSettingsDB(t))

	if err := store.Load(context.Background(), "from-config"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := store.Get(); got != "from-config" {
		t.Errorf("Get() = %q, want from-config", got)
	}
}

func TestCredentialStore_PersistedValueWinsOverBootstrap(t *testing.T) {
	db := openSettingsDB(t)
	store := NewCredentialStore(db)
	ctx := context.Background()

	if err := store.Set(ctx, "persisted"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// A fresh store over the same database simulates a restart.
	restarted := NewCredentialStore(db)
	if err := restarted.Load(ctx, "from-config"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := restarted.Get(); got != "persisted" {
		t.Errorf("Get() = %q, want persisted", got)
	}
}

func TestCredentialStore_SetOverwrites(t *testing.T) {
	store := NewCredentialStore(openSettingsDB(t))
	ctx := context.Background()

	if err := store.Set(ctx, "first"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Set(ctx, "second"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got := store.Get(); got != "second" {
		t.Errorf("Get() = %q, want second", got)
	}
}

func TestCredentialStore_EmptyCredentialIsValid(t *testing.T) {
	store := NewCredentialStore(openSettingsDB(t))
	ctx := context.Background()

	if err := store.Set(ctx, "configured"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Set(ctx, ""); err != nil {
		t.Fatalf("Set(\"\") error = %v", err)
	}
	if got := store.Get(); got != "" {
		t.Errorf("Get() = %q, want empty", got)
	}
}
