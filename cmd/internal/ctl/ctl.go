// Package ctl implements authctl, the operator CLI for schema migrations,
// account activation and offline password hashing.
package ctl

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"authd/cmd/identity"
	"authd/cmd/internal/app"
	"authd/cmd/security/password"
)

const usage = `usage: authctl <command> [args]

commands:
  migrate up|down|version   manage the schema of the configured database
  activate <account-id>     allow an account to log in again
  deactivate <account-id>   block logins and invalidate outstanding tokens
  hash-password             read a password on stdin and print its hash

The database is selected by AUTHD_DATABASE_URL or AUTHD_SQLITE_PATH.
`

// ErrUsage is returned for malformed command lines.
var ErrUsage = errors.New("usage")

// Env carries the process streams so commands stay testable.
type Env struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Main runs authctl and returns the process exit code.
func Main(ctx context.Context, args []string, env Env) int {
	err := Run(ctx, args, env)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrUsage):
		fmt.Fprint(env.Stderr, usage)
		return 2
	default:
		fmt.Fprintf(env.Stderr, "authctl: %v\n", err)
		return 1
	}
}

// Run dispatches one command.
func Run(ctx context.Context, args []string, env Env) error {
	fs := flag.NewFlagSet("authctl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	verbose := fs.Bool("v", false, "log at debug level to stderr")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	rest := fs.Args()
	if len(rest) == 0 {
		return ErrUsage
	}

	cfg, err := app.ParseConfig()
	if err != nil {
		return err
	}
	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(env.Stderr, &slog.HandlerOptions{Level: level}))

	switch rest[0] {
	case "migrate":
		return migrate(ctx, cfg, log, rest[1:], env.Stdout)
	case "activate":
		return setActive(ctx, cfg, log, rest[1:], true, env.Stdout)
	case "deactivate":
		return setActive(ctx, cfg, log, rest[1:], false, env.Stdout)
	case "hash-password":
		return hashPassword(cfg.Password, env.Stdin, env.Stdout)
	default:
		return fmt.Errorf("%w: unknown command %q", ErrUsage, rest[0])
	}
}

func openDurable(ctx context.Context, cfg app.Config, log *slog.Logger) (*app.Backend, error) {
	b, err := app.OpenBackend(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if b.Name == app.BackendMemory {
		_ = b.Close()
		return nil, errors.New("no database configured: set AUTHD_DATABASE_URL or AUTHD_SQLITE_PATH")
	}
	return b, nil
}

func migrate(ctx context.Context, cfg app.Config, log *slog.Logger, args []string, out io.Writer) error {
	if len(args) != 1 {
		return ErrUsage
	}

	b, err := openDurable(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()

	m, err := b.Migrator()
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	switch args[0] {
	case "up":
		n, err := m.Up(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "applied %d migration(s)\n", n)
	case "down":
		if err := m.Down(ctx); err != nil {
			return err
		}
	case "version":
	default:
		return fmt.Errorf("%w: unknown migrate action %q", ErrUsage, args[0])
	}

	v, err := m.Version(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s schema version %d\n", b.Name, v)
	return nil
}

func setActive(ctx context.Context, cfg app.Config, log *slog.Logger, args []string, active bool, out io.Writer) error {
	if len(args) != 1 {
		return ErrUsage
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("%w: account id must be a positive integer", ErrUsage)
	}

	b, err := openDurable(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()

	if err := b.Admin.SetActive(ctx, id, active); err != nil {
		if identity.IsNotFound(err) {
			return fmt.Errorf("account %d not found", id)
		}
		return err
	}

	state := "inactive"
	if active {
		state = "active"
	}
	log.Debug("account.set_active", "account_id", id, "active", active)
	fmt.Fprintf(out, "account %d is now %s\n", id, state)
	return nil
}

func hashPassword(cfg password.Config, in io.Reader, out io.Writer) error {
	h, err := password.New(cfg)
	if err != nil {
		return err
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read password: %w", err)
	}
	plain := strings.TrimRight(line, "\r\n")
	if plain == "" {
		return errors.New("empty password on stdin")
	}
	if err := h.Policy().Validate(plain); err != nil {
		return err
	}

	encoded, err := h.Hash(plain)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, encoded)
	return nil
}
