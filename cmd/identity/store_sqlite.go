package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// SQLiteStore implements Store and Admin over a single SQLite file.
// All access goes through one connection, so transactions are serialized.
type SQLiteStore struct {
	db *sqlx.DB
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Admin = (*SQLiteStore)(nil)
)

// OpenSQLite opens (creating if needed) the database at path.
// Migrations are not applied; see NewSQLiteMigrator.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("identity: sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// DB exposes the underlying handle for migrations.
func (s *SQLiteStore) DB() *sql.DB { return s.db.DB }

// Ping reports whether the database file is usable.
func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type sqliteAccounts struct {
	q sqlx.ExtContext
}

type sqliteAccountRow struct {
	ID           int64  `db:"id"`
	Email        string `db:"email"`
	PasswordHash string `db:"password_hash"`
	FirstName    string `db:"first_name"`
	LastName     string `db:"last_name"`
	IsActive     bool   `db:"is_active"`
	CreatedAt    int64  `db:"created_at"`
}

func (r sqliteAccountRow) account() Account {
	return Account{
		ID:           r.ID,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		IsActive:     r.IsActive,
		CreatedAt:    time.UnixMilli(r.CreatedAt).UTC(),
	}
}

func (s *SQLiteStore) FindByEmail(ctx context.Context, email string) (Account, error) {
	if s == nil || s.db == nil {
		return Account{}, invalid("identity.FindByEmail", "nil store")
	}
	return sqliteAccounts{q: s.db}.FindByEmail(ctx, email)
}

func (s *SQLiteStore) FindByID(ctx context.Context, id int64) (Account, error) {
	if s == nil || s.db == nil {
		return Account{}, invalid("identity.FindByID", "nil store")
	}
	return sqliteAccounts{q: s.db}.FindByID(ctx, id)
}

func (s *SQLiteStore) Create(ctx context.Context, in CreateAccountInput) (Account, error) {
	if s == nil || s.db == nil {
		return Account{}, invalid("identity.Create", "nil store")
	}
	return sqliteAccounts{q: s.db}.Create(ctx, in)
}

// WithinTx runs fn inside one SQLite transaction.
func (s *SQLiteStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Accounts) error) error {
	const op = "identity.WithinTx"

	if s == nil || s.db == nil {
		return invalid(op, "nil store")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, sqliteAccounts{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

// SetActive flips is_active for id.
func (s *SQLiteStore) SetActive(ctx context.Context, id int64, active bool) error {
	const op = "identity.SetActive"

	if s == nil || s.db == nil {
		return invalid(op, "nil store")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `UPDATE users SET is_active = ? WHERE id = ?`, active, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(op)
	}
	return nil
}

const sqliteAccountColumns = `id, email, password_hash, first_name, last_name, is_active, created_at`

func (a sqliteAccounts) FindByEmail(ctx context.Context, email string) (Account, error) {
	const op = "identity.FindByEmail"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	if email == "" {
		return Account{}, invalid(op, "email is required")
	}

	var row sqliteAccountRow
	err := sqlx.GetContext(ctx, a.q, &row,
		`SELECT `+sqliteAccountColumns+` FROM users WHERE email = ?`, email)
	return sqliteResult(op, row, err)
}

func (a sqliteAccounts) FindByID(ctx context.Context, id int64) (Account, error) {
	const op = "identity.FindByID"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	if id <= 0 {
		return Account{}, notFound(op)
	}

	var row sqliteAccountRow
	err := sqlx.GetContext(ctx, a.q, &row,
		`SELECT `+sqliteAccountColumns+` FROM users WHERE id = ?`, id)
	return sqliteResult(op, row, err)
}

func (a sqliteAccounts) Create(ctx context.Context, in CreateAccountInput) (Account, error) {
	const op = "identity.Create"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	if err := checkCreate(op, in); err != nil {
		return Account{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	createdAt := now.UTC().UnixMilli()

	res, err := a.q.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, first_name, last_name, is_active, created_at)
		 VALUES (?, ?, ?, ?, 1, ?)`,
		in.Email, in.PasswordHash, in.FirstName, in.LastName, createdAt,
	)
	if err != nil {
		if sqliteIsUniqueViolation(err) {
			return Account{}, emailTaken(op)
		}
		return Account{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Account{}, err
	}

	return Account{
		ID:           id,
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		IsActive:     true,
		CreatedAt:    time.UnixMilli(createdAt).UTC(),
	}, nil
}

func sqliteResult(op string, row sqliteAccountRow, err error) (Account, error) {
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, notFound(op)
		}
		return Account{}, err
	}
	return row.account(), nil
}

func sqliteIsUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") && strings.Contains(msg, "users.email")
}
