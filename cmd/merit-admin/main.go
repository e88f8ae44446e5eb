// Package main bootstraps a Merit administrator account. Run once
// against a fresh database so someone can log in and manage the rest.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sekolahku/merit/internal/cache/memory"
	"github.com/sekolahku/merit/internal/config"
	"github.com/sekolahku/merit/internal/domain"
	"github.com/sekolahku/merit/internal/repository"
	"github.com/sekolahku/merit/internal/repository/postgres"
	"github.com/sekolahku/merit/internal/repository/sqlite"
	"github.com/sekolahku/merit/internal/service"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	nisn := flag.String("nisn", "", "admin NISN (login identifier)")
	username := flag.String("username", "", "admin username")
	password := flag.String("password", "", "admin password")
	firstName := flag.String("first-name", "Admin", "first name")
	lastName := flag.String("last-name", "", "last name")
	flag.Parse()

	if *nisn == "" || *username == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "usage: merit-admin -nisn <nisn> -username <name> -password <password>")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	repos, cleanup, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer cleanup()

	cache := memory.NewCache()
	defer cache.Stop()

	validator := service.NewValidator(repos.User, cfg.Uniqueness.EnforceNISN)
	points := service.NewPointService(repos, logger, service.NoopRecorder{})
	users := service.NewUserService(repos, points, validator, cache, service.UserServiceOptions{
		BcryptCost: cfg.Auth.BcryptCost,
	}, logger, service.NoopRecorder{})

	user, err := users.Create(ctx, service.CreateUserInput{
		NISN:      *nisn,
		Username:  *username,
		Password:  *password,
		FirstName: *firstName,
		LastName:  *lastName,
		Roles:     []domain.Role{domain.RoleAdmin},
	}, uuid.Nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create admin user")
	}

	logger.Info().
		Str("user_id", user.ID.String()).
		Str("username", user.Username).
		Msg("admin user created")
}

func openDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*repository.Repositories, func(), error) {
	transactions := cfg.Database.TransactionsEnabled()

	switch cfg.Database.Driver {
	case "sqlite":
		db, err := sqlite.NewDB(ctx, sqlite.DefaultConfig(cfg.Database.Path), logger)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return sqlite.NewRepositories(db, transactions), func() { db.Close() }, nil

	default:
		db, err := postgres.NewDB(ctx, cfg.Database, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return postgres.NewRepositories(db, transactions), func() { db.Close() }, nil
	}
}
