// Package sqlite persists the waiting-time ledger in a SQLite database.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/chronopact/internal/persistence/sqlite/migration"
)

// Storage bundles the connection pool and the repositories built on it.
type Storage struct {
	pool   *ConnectionPool
	stats  *StatsRepository
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path with the default
// configuration. Call Migrate before using the repositories.
func Open(path string, logger *slog.Logger) (*Storage, error) {
	return OpenWithConfig(migration.DefaultSQLiteConfig(path), logger)
}

// OpenWithConfig opens the database described by config.
func OpenWithConfig(config migration.SQLiteConfig, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := NewConnectionPool(config)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", config.Path, err)
	}
	return &Storage{
		pool:   pool,
		stats:  NewStatsRepository(pool),
		logger: logger,
	}, nil
}

// Close releases the connection pool.
func (s *Storage) Close() error {
	return s.pool.Close()
}

// Ping checks that the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Storage) migrationRunner() *migration.Runner {
	return migration.NewRunner(migration.Embedded, migration.EmbeddedDir, migration.NewSQLiteExecutor(s.pool.DB()), s.logger)
}

// SchemaStatus reports applied and pending migrations without applying any.
func (s *Storage) SchemaStatus(ctx context.Context) (migration.Status, error) {
	status, err := s.migrationRunner().Status(ctx)
	if err != nil {
		return migration.Status{}, fmt.Errorf("sqlite: schema status: %w", err)
	}
	return status, nil
}

// Migrate applies the embedded schema migrations.
func (s *Storage) Migrate(ctx context.Context) error {
	applied, err := s.migrationRunner().Run(ctx)
	if err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	if applied > 0 {
		s.logger.InfoContext(ctx, "database migrated", "applied", applied)
	}
	return nil
}

// Stats returns the ledger repository.
func (s *Storage) Stats() *StatsRepository {
	return s.stats
}
