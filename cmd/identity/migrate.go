package identity

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"authd/cmd/identity/migrations"
)

// Migrator applies the embedded schema history to one database.
type Migrator struct {
	provider *goose.Provider
	closeDB  func() error
}

// NewPostgresMigrator bridges pool into database/sql for goose. The pool
// stays open after Close. The search_path of pool decides the target schema.
func NewPostgresMigrator(pool *pgxpool.Pool) (*Migrator, error) {
	if pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	db := stdlib.OpenDBFromPool(pool)
	m, err := newMigrator(goose.DialectPostgres, db, migrations.PostgresDir)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	m.closeDB = db.Close
	return m, nil
}

// NewSQLiteMigrator migrates db in place. Close leaves db open.
func NewSQLiteMigrator(db *sql.DB) (*Migrator, error) {
	if db == nil {
		return nil, fmt.Errorf("identity: nil db")
	}
	return newMigrator(goose.DialectSQLite3, db, migrations.SQLiteDir)
}

func newMigrator(dialect goose.Dialect, db *sql.DB, dir string) (*Migrator, error) {
	fsys, err := fs.Sub(migrations.Migrations, dir)
	if err != nil {
		return nil, fmt.Errorf("migrations fs: %w", err)
	}
	p, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Migrator{provider: p}, nil
}

// Up applies all pending migrations and returns how many ran.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	res, err := m.provider.Up(ctx)
	if err != nil {
		return len(res), fmt.Errorf("migrate up: %w", err)
	}
	return len(res), nil
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context) error {
	if _, err := m.provider.Down(ctx); err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

// Version returns the current schema version (0 when nothing is applied).
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	v, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("migrate version: %w", err)
	}
	return v, nil
}

// Close releases the database/sql bridge if this Migrator opened one.
func (m *Migrator) Close() error {
	if m == nil || m.closeDB == nil {
		return nil
	}
	return m.closeDB()
}
