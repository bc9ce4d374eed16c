package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"notifycsc/internal/app/server"
	"notifycsc/internal/platform/config"
	"notifycsc/internal/platform/logger"
)

func main() {
	cfg := config.Load()
	logger.New(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, cfg); err != nil {
		slog.Error("server failed", "err", err)
		os.Exit(1)
	}
}
