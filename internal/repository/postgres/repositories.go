package postgres

import (
	"context"
	"embed"
	"fmt"

	"github.com/sekolahku/merit/internal/repository"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// NewRepositories wires all PostgreSQL repositories over one connection
// pool. The transaction capability is resolved once at startup: when
// disabled, operation bodies run without an explicit transaction.
func NewRepositories(db *DB, transactions bool) *repository.Repositories {
	repos := &repository.Repositories{
		User:     NewUserRepository(db),
		PointLog: NewPointLogRepository(db),
		Quest:    NewQuestRepository(db),
		Appeal:   NewAppealRepository(db),
		AuditLog: NewAuditLogRepository(db),
	}
	if transactions {
		repos.Tx = NewTxManager(db)
	} else {
		repos.Tx = repository.NoopTxManager{}
	}
	return repos
}

// Migrate runs database migrations.
func (db *DB) Migrate(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	err = db.Pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	db.logger.Info().Int("current_version", currentVersion).Msg("checking migrations")

	if currentVersion < 1 {
		migration, err := migrationsFS.ReadFile("migrations/000001_init.up.sql")
		if err != nil {
			return fmt.Errorf("failed to read migration: %w", err)
		}

		if _, err := db.Pool.Exec(ctx, string(migration)); err != nil {
			return fmt.Errorf("failed to apply migration 1: %w", err)
		}

		if _, err := db.Pool.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES (1)`); err != nil {
			return fmt.Errorf("failed to record migration: %w", err)
		}

		db.logger.Info().Int("version", 1).Msg("applied migration")
	}

	return nil
}

// Version returns the current schema version.
func (db *DB) Version(ctx context.Context) (int, error) {
	var version int
	err := db.Pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}
