// Package postgres is the Postgres metastore backend: a jackc/pgx/v5
// pgxpool client with golang-migrate wiring against the postgres driver.
package postgres

import (
	"context"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Store is the metastore.Store implementation backed by Postgres.
type Store struct {
	pool *pgxpool.Pool
	logger zerolog.Logger
}

// New connects to dsn and applies any pending migrations.
func New(ctx context.Context, dsn string, logger zerolog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("metastore/postgres: connect: %w", err)
	}
	store := &Store{pool: pool, logger: logger}
	if err := store.migrate(dsn); err != nil {
		store.pool.Close()
		return nil, fmt.Errorf("metastore/postgres: migrate: %w", err)
	}
	return store, nil
}

func (s *Store) migrate(dsn string) error {
	sourceDriver, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("source driver: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, dsn)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	s.logger.Info().Msg("metastore migrations applied")
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
