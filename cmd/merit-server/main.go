// Package main is the entry point for the Merit server, the school
// point and reward management API.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/sekolahku/merit/internal/auth"
	"github.com/sekolahku/merit/internal/cache/memory"
	redicache "github.com/sekolahku/merit/internal/cache/redis"
	"github.com/sekolahku/merit/internal/config"
	"github.com/sekolahku/merit/internal/handler"
	"github.com/sekolahku/merit/internal/maintenance"
	"github.com/sekolahku/merit/internal/metrics"
	"github.com/sekolahku/merit/internal/repository"
	"github.com/sekolahku/merit/internal/repository/postgres"
	"github.com/sekolahku/merit/internal/repository/sqlite"
	"github.com/sekolahku/merit/internal/service"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)

	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Str("driver", cfg.Database.Driver).
		Msg("starting merit server")

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited with error")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	repos, dbHealth, dbClose, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer dbClose()

	// Cache
	var cache repository.Cache
	healthChecks := map[string]handler.HealthChecker{"database": dbHealth}

	if cfg.Redis.Enabled {
		rc, err := redicache.NewCache(cfg.Redis, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer rc.Close()
		healthChecks["cache"] = rc.Health
		cache = rc
	} else {
		mc := memory.NewCache()
		defer mc.Stop()
		cache = mc
	}

	// Metrics
	var m *metrics.Metrics
	var recorder service.Recorder = service.NoopRecorder{}
	if cfg.Metrics.Enabled {
		m = metrics.New(logger, cfg.Metrics.SlowQueryThreshold)
		recorder = m
	}

	// Auth
	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry)
	if err != nil {
		return fmt.Errorf("failed to initialize token service: %w", err)
	}

	// Services
	validator := service.NewValidator(repos.User, cfg.Uniqueness.EnforceNISN)
	pointService := service.NewPointService(repos, logger, recorder)
	userService := service.NewUserService(repos, pointService, validator, cache, service.UserServiceOptions{
		BcryptCost: cfg.Auth.BcryptCost,
		UserTTL:    cfg.Cache.UserTTL,
		ListTTL:    cfg.Cache.ListTTL,
	}, logger, recorder)
	questService := service.NewQuestService(repos, pointService, logger, recorder)
	appealService := service.NewAppealService(repos, pointService, logger, recorder)
	auditService := service.NewAuditService(repos, logger, recorder)
	authService := service.NewAuthService(repos, tokens, cfg.Auth, logger, recorder)

	// HTTP
	routerCfg := handler.RouterConfig{
		UserHandler:   handler.NewUserHandler(userService, pointService, logger),
		PointHandler:  handler.NewPointHandler(pointService, logger),
		QuestHandler:  handler.NewQuestHandler(questService, logger),
		AppealHandler: handler.NewAppealHandler(appealService, logger),
		AuthHandler:   handler.NewAuthHandler(authService, tokens, logger),
		AuditHandler:  handler.NewAuditHandler(auditService, logger),
		Tokens:        tokens,
		Metrics:       m,
		HealthChecks:  healthChecks,
		Logger:        logger,
	}
	if cfg.RateLimit.Enabled {
		routerCfg.RateLimitRPS = cfg.RateLimit.RequestsPerSecond
		routerCfg.RateLimitBst = cfg.RateLimit.BurstSize
	}

	router := handler.NewRouter(routerCfg)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      http.MaxBytesHandler(router.Handler(), cfg.Server.MaxBodySize),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Maintenance jobs
	if cfg.Maintenance.Enabled {
		scheduler, err := maintenance.NewScheduler(repos.User, cfg.Maintenance, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize maintenance scheduler: %w", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}

// openDatabase connects to the configured backend, runs migrations,
// and returns the repository set.
func openDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*repository.Repositories, handler.HealthChecker, func(), error) {
	transactions := cfg.Database.TransactionsEnabled()

	switch cfg.Database.Driver {
	case "sqlite":
		db, err := sqlite.NewDB(ctx, sqliteConfig(cfg.Database), logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return sqlite.NewRepositories(db, transactions), db.Health, func() { db.Close() }, nil

	default:
		db, err := postgres.NewDB(ctx, cfg.Database, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open postgres database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return postgres.NewRepositories(db, transactions), db.Health, func() { db.Close() }, nil
	}
}

// sqliteConfig maps application database settings onto the sqlite
// driver configuration.
func sqliteConfig(cfg config.DatabaseConfig) sqlite.Config {
	sc := sqlite.DefaultConfig(cfg.Path)
	if cfg.JournalMode != "" {
		sc.JournalMode = cfg.JournalMode
	}
	if cfg.BusyTimeout > 0 {
		sc.BusyTimeout = cfg.BusyTimeout
	}
	if cfg.CacheSize != 0 {
		sc.CacheSize = cfg.CacheSize
	}
	if cfg.SynchronousMode != "" {
		sc.SynchronousMode = cfg.SynchronousMode
	}
	return sc
}

// newLogger builds the root logger from the logging configuration.
func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = cfg.TimeFormat

	var out = os.Stdout
	if cfg.Output == "stderr" {
		out = os.Stderr
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	if cfg.Format == "console" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}
	return logger
}
