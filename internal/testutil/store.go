package testutil

import (
	"context"
	"sort"
	"testing"

	"github.com/HerbHall/fleetscope/internal/store"
)

// Schema names one component's migrations for NewStore to apply.
type Schema struct {
	Component  string
	Migrations []store.Migration
}

// NewStore opens a private in-memory store with schemas applied in order.
// It is closed when the test ends.
func NewStore(t testing.TB, schemas ...Schema) *store.SQLiteStore {
	t.Helper()
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	for _, s := range schemas {
		if err := db.Migrate(context.Background(), s.Component, s.Migrations); err != nil {
			t.Fatalf("migrate %s: %v", s.Component, err)
		}
	}
	return db
}

// Tables lists the user tables in db, sorted, leaving out migration
// bookkeeping.
func Tables(t testing.TB, db *store.SQLiteStore) []string {
	t.Helper()
	rows, err := db.DB().QueryContext(context.Background(),
		`SELECT name FROM sqlite_master
		 WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND name != 'schema_migrations'`)
	if err != nil {
		t.Fatalf("list tables: %v", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan table name: %v", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("list tables: %v", err)
	}
	sort.Strings(names)
	return names
}
