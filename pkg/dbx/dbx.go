// Package dbx opens the relational store behind the provisioning tables.
//
// Queries in the infra packages are written with '?' placeholders and passed
// through (*sqlx.DB).Rebind, so the same statements run on postgres (lib/pq)
// and on sqlite (modernc.org/sqlite).
package dbx

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/Abraxas-365/facilitydir/pkg/config"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

//go:embed schema/*.sql
var schemaFS embed.FS

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know.
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Open connects to the configured store and applies the pool settings.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	var (
		db  *sqlx.DB
		err error
	)

	switch cfg.Driver {
	case DriverPostgres:
		db, err = sqlx.ConnectContext(ctx, DriverPostgres, cfg.DSN())
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	case DriverSQLite:
		db, err = OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}

	return db, nil
}

// OpenSQLite opens a sqlite database with foreign keys enforced. A single
// connection is used so ":memory:" databases stay shared across queries.
func OpenSQLite(ctx context.Context, path string) (*sqlx.DB, error) {
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	if strings.Contains(dsn, "?") {
		dsn += "&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	} else {
		dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}

	db, err := sqlx.ConnectContext(ctx, DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
	}
	return db, nil
}

// Migrate applies the embedded schema for the connection's driver. Statements
// are idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	name := "schema/postgres.sql"
	if db.DriverName() == DriverSQLite {
		name = "schema/sqlite.sql"
	}

	raw, err := schemaFS.ReadFile(name)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	for _, stmt := range strings.Split(string(raw), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// TimestampLayout is the textual form of stored timestamps. It is fixed width
// in UTC, so text columns order the same way the instants do.
const TimestampLayout = "2006-01-02T15:04:05Z"

// Timestamp renders t the way timestamps are written to the store.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
