// Package main runs Merit database migrations and exits. Useful for
// deployments where the schema is migrated before the server starts.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/sekolahku/merit/internal/config"
	"github.com/sekolahku/merit/internal/repository/postgres"
	"github.com/sekolahku/merit/internal/repository/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	timeout := flag.Duration("timeout", 2*time.Minute, "migration timeout")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := migrate(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}

	logger.Info().Str("driver", cfg.Database.Driver).Msg("migrations applied")
}

func migrate(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	switch cfg.Database.Driver {
	case "sqlite":
		db, err := sqlite.NewDB(ctx, sqlite.DefaultConfig(cfg.Database.Path), logger)
		if err != nil {
			return err
		}
		defer db.Close()
		return db.Migrate(ctx)

	default:
		db, err := postgres.NewDB(ctx, cfg.Database, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		return db.Migrate(ctx)
	}
}
