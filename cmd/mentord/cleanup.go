package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hikarilab/mentorchat/internal/config"
	"github.com/hikarilab/mentorchat/internal/convcache"
	"github.com/hikarilab/mentorchat/internal/docstore"
	"github.com/hikarilab/mentorchat/internal/telemetry"
)

func newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Run one expired-cache sweep and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCleanup()
		},
	}
}

func runCleanup() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.DSN == "" {
		return fmt.Errorf("cleanup requires a postgres document store (set postgres.dsn or DATABASE_URL)")
	}

	logger := telemetry.NewLogger(os.Stderr, logLevel(cfg.LogLevel))

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pg, err := docstore.NewPostgres(ctx, cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	defer pg.Close()

	cache := convcache.NewService(pg, cfg.Cache, logger)
	start := time.Now()
	deleted, err := cache.SweepExpired(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d expired caches in %s\n", deleted, time.Since(start).Round(time.Millisecond))
	return nil
}
