package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS channels (
	seq        BIGSERIAL PRIMARY KEY,
	id         TEXT UNIQUE NOT NULL,
	name       TEXT NOT NULL,
	kind       TEXT NOT NULL DEFAULT 'text',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	seq             BIGSERIAL PRIMARY KEY,
	id              TEXT UNIQUE NOT NULL,
	channel_id      TEXT NOT NULL,
	author_identity TEXT NOT NULL,
	text            TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_channel_seq ON messages (channel_id, seq);
`

// Connect opens a pool against dsn, pings it and bootstraps the schema.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)

	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to bootstrap schema: %w", err)
	}

	return pool, nil
}
