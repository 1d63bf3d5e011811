package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool connects to the platform's Postgres database directly.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	cfg.MaxConns = 10
	cfg.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

type Migration struct {
	Name string
	SQL  string
}

// RunMigrations applies migrations in order, skipping names already
// recorded in _migrations. Each migration and its record commit together.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrations []Migration) (applied int, err error) {
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS _migrations (
			id SERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL UNIQUE,
			executed_at TIMESTAMPTZ DEFAULT NOW()
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("create migrations table: %w", err)
	}

	for _, m := range migrations {
		var done bool
		err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM _migrations WHERE name = $1)`, m.Name).Scan(&done)
		if err != nil {
			return applied, fmt.Errorf("check migration %s: %w", m.Name, err)
		}
		if done {
			slog.Debug("Migration already executed, skipping", "name", m.Name)
			continue
		}

		slog.Info("Running migration", "name", m.Name)
		err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO _migrations (name) VALUES ($1)`, m.Name)
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("execute migration %s: %w", m.Name, err)
		}
		applied++
	}

	return applied, nil
}
