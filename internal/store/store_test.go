package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
)

func openMemory(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTable(name string) func(tx *sql.Tx) error {
	return func(tx *sql.Tx) error {
		_, err := tx.Exec("CREATE TABLE " + name + " (id INTEGER PRIMARY KEY)")
		return err
	}
}

func TestMigrateAppliesOnce(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	migrations := []Migration{
		{Version: 1, Description: "create a", Up: createTable("a")},
		{Version: 2, Description: "create b", Up: createTable("b")},
	}

	if err := s.Migrate(ctx, "test", migrations); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	// A second run must skip both; re-creating the tables would fail.
	if err := s.Migrate(ctx, "test", migrations); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}

	var n int
	if err := s.DB().QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE component = 'test'").Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n != 2 {
		t.Errorf("recorded migrations = %d, want 2", n)
	}
}

func TestMigrateFailureRollsBack(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Migrate(ctx, "test", []Migration{{
		Version:     1,
		Description: "half done",
		Up: func(tx *sql.Tx) error {
			if err := createTable("partial")(tx); err != nil {
				return err
			}
			return boom
		},
	}})
	if !errors.Is(err, boom) {
		t.Fatalf("Migrate() error = %v, want boom", err)
	}

	var name string
	err = s.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='partial'").Scan(&name)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("table partial exists after rollback (err = %v)", err)
	}
}

func TestComponentsAreIndependent(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	if err := s.Migrate(ctx, "one", []Migration{{Version: 1, Description: "x", Up: createTable("x")}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Migrate(ctx, "two", []Migration{{Version: 1, Description: "y", Up: createTable("y")}}); err != nil {
		t.Fatalf("second component Migrate() error = %v", err)
	}
}
