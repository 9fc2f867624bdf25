package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the PostgreSQL DDL for tenant settings and the room directory
const Schema = `
CREATE TABLE IF NOT EXISTS tenant_configs (
	tenant_id              TEXT PRIMARY KEY,
	enabled                BOOLEAN NOT NULL DEFAULT TRUE,
	capacity               INTEGER NOT NULL DEFAULT 10 CHECK (capacity >= 1),
	cooldown_seconds       INTEGER NOT NULL DEFAULT 30 CHECK (cooldown_seconds >= 0),
	eviction_delay_seconds INTEGER NOT NULL DEFAULT 30 CHECK (eviction_delay_seconds >= 0),
	trigger_points         TEXT[] NOT NULL DEFAULT '{}',
	default_category_id    TEXT,
	naming_template        TEXT NOT NULL,
	language               TEXT NOT NULL DEFAULT 'en',
	created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	version                BIGINT NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS rooms (
	room_id               TEXT PRIMARY KEY,
	tenant_id             TEXT NOT NULL,
	owner_id              TEXT NOT NULL,
	name                  TEXT NOT NULL,
	locked                BOOLEAN NOT NULL DEFAULT FALSE,
	user_limit            INTEGER NOT NULL DEFAULT 0,
	state                 TEXT NOT NULL DEFAULT 'active',
	created_at            TIMESTAMPTZ NOT NULL,
	last_active_at        TIMESTAMPTZ NOT NULL,
	scheduled_eviction_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS rooms_tenant_owner_created_idx
	ON rooms (tenant_id, owner_id, created_at DESC);
`

// NewPostgresPool opens and verifies a connection pool
func NewPostgresPool(
	ctx context.Context,
	host string,
	port int,
	database, user, password string,
	maxConns, minConns int,
) (*pgxpool.Pool, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s pool_max_conns=%d pool_min_conns=%d",
		host, port, database, user, password, maxConns, minConns,
	)
	return NewPostgresPoolFromURL(ctx, connString)
}

// NewPostgresPoolFromURL opens a pool from a libpq connection string or URL
func NewPostgresPoolFromURL(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// Migrate applies Schema. Every statement is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
