package vectorworker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// HiddenSubcommand is the os.Args[1] value the host process spawns itself
// with (os.Args[0] re-exec) to become a vector worker.
const HiddenSubcommand = "__vector-worker"

// Run is the worker process's main loop: acquire the pidfile lock, listen
// on socketPath, and serve until the process receives a termination
// signal or a client sends cleanup. Intended to be called from the
// hidden subcommand dispatched in cmd/ragcore's main.
func Run(socketPath, pidfilePath string) error {
	pidfile := NewPIDFile(pidfilePath)
	if err := pidfile.Acquire(); err != nil {
		return fmt.Errorf("vector worker startup: %w", err)
	}
	defer func() {
		if err := pidfile.Release(); err != nil {
			slog.Warn("vector worker failed to release pidfile", slog.String("error", err.Error()))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := NewServer(socketPath)
	if err := server.ListenAndServe(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("vector worker serve: %w", err)
	}
	return nil
}
