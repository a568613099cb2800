package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store and Admin over PostgreSQL.
//
// The pgx pool is owned by the caller; this store must NOT close it.
// Schema and table identifiers are quoted with pgx.Identifier.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Admin = (*PostgresStore)(nil)
)

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the schema holding the users table (default "public").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "public",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgAccounts struct {
	q     pgQuerier
	users string
}

func (s *PostgresStore) accounts() pgAccounts {
	return pgAccounts{q: s.pool, users: pgIdent(s.schema, "users")}
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (Account, error) {
	if s == nil || s.pool == nil {
		return Account{}, invalid("identity.FindByEmail", "nil store")
	}
	return s.accounts().FindByEmail(ctx, email)
}

func (s *PostgresStore) FindByID(ctx context.Context, id int64) (Account, error) {
	if s == nil || s.pool == nil {
		return Account{}, invalid("identity.FindByID", "nil store")
	}
	return s.accounts().FindByID(ctx, id)
}

func (s *PostgresStore) Create(ctx context.Context, in CreateAccountInput) (Account, error) {
	if s == nil || s.pool == nil {
		return Account{}, invalid("identity.Create", "nil store")
	}
	return s.accounts().Create(ctx, in)
}

// WithinTx runs fn inside a READ COMMITTED transaction.
// Concurrent inserts of one email serialize on uq_users_email.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Accounts) error) error {
	const op = "identity.WithinTx"

	if s == nil || s.pool == nil {
		return invalid(op, "nil store")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, pgAccounts{q: tx, users: pgIdent(s.schema, "users")}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

// SetActive flips is_active for id.
func (s *PostgresStore) SetActive(ctx context.Context, id int64, active bool) error {
	const op = "identity.SetActive"

	if s == nil || s.pool == nil {
		return invalid(op, "nil store")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ct, err := s.pool.Exec(ctx,
		`UPDATE `+pgIdent(s.schema, "users")+` SET is_active = $1 WHERE id = $2`,
		active, id,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return notFound(op)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const pgAccountColumns = `id, email, password_hash, first_name, last_name, is_active, created_at`

func (a pgAccounts) FindByEmail(ctx context.Context, email string) (Account, error) {
	const op = "identity.FindByEmail"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	if email == "" {
		return Account{}, invalid(op, "email is required")
	}

	row := a.q.QueryRow(ctx,
		`SELECT `+pgAccountColumns+` FROM `+a.users+` WHERE email = $1`,
		email,
	)
	return pgScanAccount(op, row)
}

func (a pgAccounts) FindByID(ctx context.Context, id int64) (Account, error) {
	const op = "identity.FindByID"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	if id <= 0 {
		return Account{}, notFound(op)
	}

	row := a.q.QueryRow(ctx,
		`SELECT `+pgAccountColumns+` FROM `+a.users+` WHERE id = $1`,
		id,
	)
	return pgScanAccount(op, row)
}

func (a pgAccounts) Create(ctx context.Context, in CreateAccountInput) (Account, error) {
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

	out := Account{
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		IsActive:     true,
	}

	err := a.q.QueryRow(ctx,
		`INSERT INTO `+a.users+` (email, password_hash, first_name, last_name, is_active, created_at)
		 VALUES ($1, $2, $3, $4, TRUE, $5)
		 RETURNING id, created_at`,
		in.Email, in.PasswordHash, in.FirstName, in.LastName, now,
	).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return Account{}, ConflictError{Op: op, Field: field}
		}
		return Account{}, err
	}
	return out, nil
}

func pgScanAccount(op string, row pgx.Row) (Account, error) {
	var out Account
	err := row.Scan(
		&out.ID,
		&out.Email,
		&out.PasswordHash,
		&out.FirstName,
		&out.LastName,
		&out.IsActive,
		&out.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, notFound(op)
		}
		return Account{}, err
	}
	return out, nil
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case c == "uq_users_email", strings.Contains(c, "email"):
		return "email", true
	default:
		return "unique", true
	}
}
