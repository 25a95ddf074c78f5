package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/semrelayhq/semrelay/internal/config"
	"github.com/semrelayhq/semrelay/internal/db"
	"github.com/semrelayhq/semrelay/internal/identity"
	"github.com/semrelayhq/semrelay/internal/logger"
	"github.com/semrelayhq/semrelay/internal/semcache"
)

// newResetCommand builds the destructive operator commands. These are
// deliberately CLI-only and never routed over HTTP.
func newResetCommand() *cobra.Command {
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Destructive store wipes (operator only)",
	}

	reset.AddCommand(
		&cobra.Command{
			Use:   "identities",
			Short: "Delete every identity record",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStores(func(ctx context.Context, ids *identity.PGStore, _ *semcache.PGStore) error {
					logger.L.Warn("DESTRUCTIVE: wiping all identity records")
					return ids.Reset(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "cache",
			Short: "Delete every cache entry",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStores(func(ctx context.Context, _ *identity.PGStore, cache *semcache.PGStore) error {
					logger.L.Warn("DESTRUCTIVE: wiping all cache entries")
					return cache.Reset(ctx)
				})
			},
		},
	)
	return reset
}

func withStores(fn func(ctx context.Context, ids *identity.PGStore, cache *semcache.PGStore) error) error {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.Open(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()

	return fn(ctx, identity.NewPGStore(pool), semcache.NewPGStore(pool))
}
