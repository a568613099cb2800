package app

import (
	"context"
	"fmt"
	"log/slog"

	"authd/cmd/identity"
)

// Backend names.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

// Backend is an opened account store with its lifecycle hooks.
type Backend struct {
	Name  string
	Store identity.Store
	Admin identity.Admin

	ping  func(context.Context) error
	close func() error
	// migrator is nil for the memory store.
	migrator func() (*identity.Migrator, error)
}

// Ping reports whether the backing database is reachable.
func (b *Backend) Ping(ctx context.Context) error { return b.ping(ctx) }

// Migrator returns a migrator for the backing database. The caller closes it.
func (b *Backend) Migrator() (*identity.Migrator, error) {
	if b.migrator == nil {
		return nil, fmt.Errorf("%s store has no schema to migrate", b.Name)
	}
	return b.migrator()
}

// Close releases the database handle.
func (b *Backend) Close() error {
	if b == nil || b.close == nil {
		return nil
	}
	return b.close()
}

// OpenBackend opens the store cfg selects: Postgres, then SQLite, then memory.
func OpenBackend(ctx context.Context, cfg Config, log *slog.Logger) (*Backend, error) {
	switch cfg.Backend() {
	case BackendPostgres:
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		st, err := identity.NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		log.Info("db.enabled.postgres_store", "max_conns", pool.Config().MaxConns)
		return &Backend{
			Name:     BackendPostgres,
			Store:    st,
			Admin:    st,
			ping:     st.Ping,
			close:    func() error { pool.Close(); return nil },
			migrator: func() (*identity.Migrator, error) { return identity.NewPostgresMigrator(pool) },
		}, nil

	case BackendSQLite:
		st, err := identity.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Info("db.enabled.sqlite_store", "path", cfg.SQLitePath)
		return &Backend{
			Name:     BackendSQLite,
			Store:    st,
			Admin:    st,
			ping:     st.Ping,
			close:    st.Close,
			migrator: func() (*identity.Migrator, error) { return identity.NewSQLiteMigrator(st.DB()) },
		}, nil

	default:
		st := identity.NewMemoryStore()
		log.Warn("db.disabled.inmemory_store")
		return &Backend{
			Name:  BackendMemory,
			Store: st,
			Admin: st,
			ping:  st.Ping,
		}, nil
	}
}

// Migrate applies pending migrations. It is a no-op for the memory store.
func (b *Backend) Migrate(ctx context.Context, log *slog.Logger) error {
	if b.migrator == nil {
		return nil
	}
	m, err := b.Migrator()
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	n, err := m.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrate %s: %w", b.Name, err)
	}
	v, err := m.Version(ctx)
	if err != nil {
		return fmt.Errorf("migrate %s: %w", b.Name, err)
	}
	log.Info("db.migrate.done", "backend", b.Name, "applied", n, "version", v)
	return nil
}
