package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// openTestDB opens a file-backed database in a temp directory.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	return db
}

func TestOpen(t *testing.T) {
	t.Run("creates nested directory and file", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "pool.db")

		db, err := Open(context.Background(), Config{Path: dbPath, WALMode: true, BusyTimeout: 5})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // Test cleanup

		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != dbPath {
			t.Errorf("Path() = %v, want %v", db.Path(), dbPath)
		}
	})

	t.Run("in memory", func(t *testing.T) {
		db, err := Open(context.Background(), Config{Path: ":memory:", WALMode: true})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // Test cleanup

		if err := db.HealthCheck(context.Background()); err != nil {
			t.Errorf("HealthCheck() error = %v", err)
		}
	})

	t.Run("empty path", func(t *testing.T) {
		if _, err := Open(context.Background(), Config{}); err == nil {
			t.Error("Open() expected error for empty path")
		}
	})
}

func TestDSN(t *testing.T) {
	got := Config{Path: "/data/pool.db", WALMode: true, BusyTimeout: 2}.dsn()
	want := "file:/data/pool.db?_busy_timeout=2000&_foreign_keys=on&_journal_mode=WAL&_synchronous=NORMAL"
	if got != want {
		t.Errorf("dsn() = %q, want %q", got, want)
	}

	if got := (Config{Path: ":memory:", WALMode: true}).dsn(); got != "file::memory:?_busy_timeout=0&_foreign_keys=on" {
		t.Errorf("in-memory dsn() = %q", got)
	}
}

func TestClose(t *testing.T) {
	db := openTestDB(t)

	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := db.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() after Close expected error")
	}

	var nilDB *DB
	if err := nilDB.Close(); err != nil {
		t.Errorf("Close() on nil DB error = %v", err)
	}
}

func TestExecContext(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE readings (key TEXT PRIMARY KEY, raw INTEGER)"); err != nil {
		t.Fatalf("create table error = %v", err)
	}
	res, err := db.ExecContext(ctx, "INSERT INTO readings (key, raw) VALUES (?, ?)", "ph", 750)
	if err != nil {
		t.Fatalf("insert error = %v", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		t.Errorf("RowsAffected = %d, want 1", n)
	}

	if _, err := db.ExecContext(ctx, "INSERT INTO missing VALUES (1)"); err == nil {
		t.Error("ExecContext() expected error for missing table")
	}
}

func TestWithTx(t *testing.T) {
	db := openTestDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "CREATE TABLE readings (key TEXT PRIMARY KEY, raw INTEGER)"); err != nil {
		t.Fatalf("create table error = %v", err)
	}

	t.Run("commit", func(t *testing.T) {
		err := db.WithTx(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, "INSERT INTO readings (key, raw) VALUES ('orp', 700)")
			return err
		})
		if err != nil {
			t.Fatalf("WithTx() error = %v", err)
		}
		var raw int
		if err := db.QueryRowContext(ctx, "SELECT raw FROM readings WHERE key = 'orp'").Scan(&raw); err != nil {
			t.Fatalf("row not committed: %v", err)
		}
		if raw != 700 {
			t.Errorf("raw = %d, want 700", raw)
		}
	})

	t.Run("rollback", func(t *testing.T) {
		boom := errors.New("boom")
		err := db.WithTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, "INSERT INTO readings (key, raw) VALUES ('salt', 3200)"); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("WithTx() error = %v, want boom", err)
		}
		var count int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM readings WHERE key = 'salt'").Scan(&count); err != nil {
			t.Fatalf("count error = %v", err)
		}
		if count != 0 {
			t.Error("rolled back row is visible")
		}
	})
}
