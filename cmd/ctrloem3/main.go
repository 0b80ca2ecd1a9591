// Package main provides the ctrloem3 CLI process entrypoint.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rbright/ctrloem3/internal/app"
)

// main wires process signal handling to the application runner.
// SIGHUP restarts the worker of a running start command.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	restart := make(chan os.Signal, 1)
	signal.Notify(restart, syscall.SIGHUP)
	defer signal.Stop(restart)

	runner := app.Runner{Stdout: os.Stdout, Stderr: os.Stderr, Restart: restart}
	exitCode := runner.Execute(ctx, os.Args[1:])
	os.Exit(exitCode)
}
