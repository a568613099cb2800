// Package session implements authd's identity service: registration,
// password login and bearer-token resolution.
//
// The service owns the credential lifecycle. It applies the password policy
// before touching storage, hashes and verifies through password.Hasher,
// mints tokens through the token codec and re-checks the account's current
// state on every token use. A valid signature alone is never enough.
//
// Transport (HTTP) integration lives in package authapi.
package session
