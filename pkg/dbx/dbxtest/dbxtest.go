// Package dbxtest provides migrated in-memory databases for tests.
package dbxtest

import (
	"context"
	"testing"

	"github.com/Abraxas-365/facilitydir/pkg/dbx"
	"github.com/jmoiron/sqlx"
)

// NewSQLite returns a migrated in-memory sqlite database closed at test cleanup.
func NewSQLite(t testing.TB) *sqlx.DB {
	t.Helper()

	ctx := context.Background()
	db, err := dbx.OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := dbx.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// SeedFacility inserts a facility row.
func SeedFacility(t testing.TB, db *sqlx.DB, id int64, name string) {
	t.Helper()
	if _, err := db.Exec(db.Rebind(`INSERT INTO facilities (id, name) VALUES (?, ?)`), id, name); err != nil {
		t.Fatalf("seed facility: %v", err)
	}
}

// SeedProfile inserts a profile row.
func SeedProfile(t testing.TB, db *sqlx.DB, id, email, name, role string) {
	t.Helper()
	q := db.Rebind(`INSERT INTO profiles (id, email, name, role) VALUES (?, ?, ?, ?)`)
	if _, err := db.Exec(q, id, email, name, role); err != nil {
		t.Fatalf("seed profile: %v", err)
	}
}
