package ctl

import (
	"bytes"
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authd/cmd/identity"
	"authd/cmd/security/password"
)

func run(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := Main(context.Background(), args, Env{
		Stdin:  strings.NewReader(stdin),
		Stdout: &out,
		Stderr: &errOut,
	})
	return code, out.String(), errOut.String()
}

func useSQLite(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "authd.db")
	t.Setenv("AUTHD_SQLITE_PATH", path)
	t.Setenv("AUTHD_DATABASE_URL", "")
	return path
}

func TestMigrateAndToggleAccount(t *testing.T) {
	path := useSQLite(t)

	code, out, stderr := run(t, "", "migrate", "up")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "applied 2 migration(s)")
	assert.Contains(t, out, "sqlite schema version 2")

	code, out, _ = run(t, "", "migrate", "version")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "schema version 2")

	ctx := context.Background()
	st, err := identity.OpenSQLite(ctx, path)
	require.NoError(t, err)
	acct, err := st.Create(ctx, identity.CreateAccountInput{
		Email:        "ops@example.com",
		PasswordHash: "$2a$04$not-a-real-hash",
		Now:          time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	id := strconv.FormatInt(acct.ID, 10)
	code, out, stderr = run(t, "", "deactivate", id)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "is now inactive")

	st, err = identity.OpenSQLite(ctx, path)
	require.NoError(t, err)
	got, err := st.FindByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	require.NoError(t, st.Close())

	code, out, _ = run(t, "", "activate", id)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "is now active")

	code, _, stderr = run(t, "", "activate", "999")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "not found")

	code, out, stderr = run(t, "", "migrate", "down")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "schema version 1")
}

func TestRequiresDurableStore(t *testing.T) {
	t.Setenv("AUTHD_SQLITE_PATH", "")
	t.Setenv("AUTHD_DATABASE_URL", "")

	code, _, stderr := run(t, "", "migrate", "up")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "no database configured")
}

func TestUsageErrors(t *testing.T) {
	useSQLite(t)

	for _, args := range [][]string{
		nil,
		{"bogus"},
		{"migrate"},
		{"migrate", "sideways"},
		{"activate"},
		{"activate", "abc"},
		{"deactivate", "-3"},
		{"-nope"},
	} {
		code, _, stderr := run(t, "", args...)
		assert.Equal(t, 2, code, "args %v", args)
		assert.Contains(t, stderr, "usage: authctl", "args %v", args)
	}
}

func TestHashPassword(t *testing.T) {
	t.Setenv("AUTHD_BCRYPT_COST", "4")

	code, out, stderr := run(t, "Secret123\n", "hash-password")
	require.Equal(t, 0, code, stderr)

	encoded := strings.TrimSpace(out)
	h, err := password.New(password.DefaultConfig())
	require.NoError(t, err)
	assert.True(t, h.Verify(encoded, "Secret123"))
	assert.True(t, strings.HasPrefix(encoded, "$2"))

	code, _, stderr = run(t, "weak\n", "hash-password")
	assert.Equal(t, 1, code)
	assert.NotEmpty(t, stderr)

	code, _, _ = run(t, "", "hash-password")
	assert.Equal(t, 1, code)
}
