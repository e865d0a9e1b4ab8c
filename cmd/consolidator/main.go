package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		slog.Error("consolidator failed", "error", err)
		stop()
		os.Exit(1)
	}
}
