package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"authd/cmd/internal/ctl"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := ctl.Main(ctx, os.Args[1:], ctl.Env{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr})
	cancel()
	os.Exit(code)
}
