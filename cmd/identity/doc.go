// Package identity is the account persistence boundary for authd.
//
// It defines the Account record, the Store interface used by the session
// service, and three backends: PostgreSQL (pgx), SQLite (sqlx over the pure
// Go modernc driver) and an in-memory store for development and tests.
//
// Email uniqueness is enforced by the backend itself (a unique index, or a
// mutex for the memory store). Callers may pre-check, but only the store's
// answer is authoritative.
package identity
