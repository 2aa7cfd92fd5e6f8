// Command expiry runs one expiry session against the configured store and
// exits. Intended for cron-style invocation when the long-running scheduler
// inside the server is not wanted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"tshreg/internal/expiry"
	"tshreg/internal/platform/config"
	"tshreg/internal/platform/logger"
	"tshreg/internal/platform/postgres"
	"tshreg/internal/registry/store"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "expiry: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log)
	slog.SetDefault(log)

	if cfg.Database.DSN == "" {
		return fmt.Errorf("a database DSN is required; an in-memory store has nothing to expire")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	runner := expiry.NewRunner(store.NewPostgres(pool), cfg.Expiry.SessionWindow,
		expiry.WithLogger(log),
	)
	return runner.Run(ctx)
}
