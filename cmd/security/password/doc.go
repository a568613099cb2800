// Package password hashes and verifies account passwords for authd.
//
// Two schemes are supported:
//   - bcrypt (default), cost configurable.
//   - Argon2id, encoded as a PHC-like string.
//
// Verify dispatches on the stored hash prefix, so hashes produced by either
// scheme keep verifying after the configured scheme changes.
//
// Hash strings are untrusted input during Verify. Malformed or oversized
// hashes are reported as a mismatch and never cause a panic.
package password
