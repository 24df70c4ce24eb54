package data

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestOpen(t *testing.T) {
	t.Run("creates database in nested directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "deep", "nested", "switchboard.db")

		store, err := Open(path)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer store.Close()

		if _, err := os.Stat(path); err != nil {
			t.Errorf("database file not created: %v", err)
		}
		if err := store.Health(context.Background()); err != nil {
			t.Errorf("health check failed: %v", err)
		}
		if store.Path() != path {
			t.Errorf("expected path %s, got %s", path, store.Path())
		}
	})

	t.Run("idempotent migrations", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "switchboard.db")

		first, err := Open(path)
		if err != nil {
			t.Fatalf("first Open failed: %v", err)
		}
		first.Close()

		second, err := Open(path)
		if err != nil {
			t.Fatalf("second Open failed: %v", err)
		}
		defer second.Close()

		var applied int
		if err := second.DB().QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&applied); err != nil {
			t.Fatalf("count migrations: %v", err)
		}
		if applied != 2 {
			t.Errorf("expected 2 applied migrations, got %d", applied)
		}
	})

	t.Run("wal journal mode", func(t *testing.T) {
		store, err := Open(filepath.Join(t.TempDir(), "switchboard.db"))
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer store.Close()

		var mode string
		if err := store.DB().QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
			t.Fatalf("read journal mode: %v", err)
		}
		if mode != "wal" {
			t.Errorf("expected wal journal mode, got %q", mode)
		}
	})
}

func TestValidateLocalPath(t *testing.T) {
	if err := validateLocalPath(t.TempDir()); err != nil {
		t.Errorf("temp dir rejected: %v", err)
	}
	if err := validateLocalPath("/net/share/data"); err == nil {
		t.Error("expected network path to be rejected")
	}
}
