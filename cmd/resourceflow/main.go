// Command resourceflow runs the resource service configured from
// RESOURCEFLOW_* environment variables and an optional YAML file.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/drblury/resourceflow"
)

func main() {
	if err := run(); err != nil {
		slog.Error("resourceflow stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := resourceflow.LoadConfig()
	if err != nil {
		return err
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: resourceflow.ParseLogLevel(cfg.LogLevel)})
	base := slog.New(resourceflow.NewContextHandler(handler)).With(slog.String("service", cfg.ServiceName))
	slog.SetDefault(base)
	logger := resourceflow.NewSlogServiceLogger(base)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := resourceflow.NewService(ctx, &cfg, logger, resourceflow.ServiceDependencies{})
	if err != nil {
		return err
	}
	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
