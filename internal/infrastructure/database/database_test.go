package database

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(Config{
		Path:        filepath.Join(t.TempDir(), "fleet.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // cleanup
	return db
}

func TestOpenCreatesFileAndParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "fleet", "fleet.db")

	db, err := Open(Config{Path: path, WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close() //nolint:errcheck // cleanup

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file missing after Open: %v", err)
	}
	if got := db.Path(); got != path {
		t.Errorf("Path() = %q, want %q", got, path)
	}
}

func TestOpenRestrictsFilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not meaningful on windows")
	}

	db := newTestDB(t)

	info, err := os.Stat(db.Path())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("database file mode = %o, want 0600", perm)
	}
}

func TestForeignKeysEnforced(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE parents (id TEXT PRIMARY KEY) STRICT;
		CREATE TABLE children (
			id        TEXT PRIMARY KEY,
			parent_id TEXT NOT NULL REFERENCES parents(id)
		) STRICT;
	`); err != nil {
		t.Fatalf("creating tables: %v", err)
	}

	_, err := db.ExecContext(ctx,
		"INSERT INTO children (id, parent_id) VALUES ('c1', 'missing')")
	if err == nil {
		t.Fatal("orphan insert succeeded, foreign_keys pragma not applied")
	}
}

func TestHealthCheck(t *testing.T) {
	db := newTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}

func TestCloseIsIdempotentOnNil(t *testing.T) {
	db, err := Open(Config{
		Path:        filepath.Join(t.TempDir(), "fleet.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := db.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	db.DB = nil
	if err := db.Close(); err != nil {
		t.Errorf("Close with nil handle: %v", err)
	}
}

func TestPoolIsSingleConnection(t *testing.T) {
	db := newTestDB(t)

	if got := db.Stats().MaxOpenConnections; got != 1 {
		t.Errorf("MaxOpenConnections = %d, want 1", got)
	}
}
