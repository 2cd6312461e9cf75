// Package db archives finished runs to Postgres. The archive is write-mostly:
// live status always comes from the in-process registry.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

type DB struct {
	*sql.DB
}

func New(databaseURL string) (*DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &DB{DB: conn}, nil
}

const schema = `
	CREATE TABLE IF NOT EXISTS ad_runs (
		run_id         TEXT PRIMARY KEY,
		overall_status TEXT NOT NULL,
		parameters     JSONB NOT NULL DEFAULT '{}'::jsonb,
		steps          JSONB NOT NULL DEFAULT '[]'::jsonb,
		qa             JSONB,
		started_at     TIMESTAMPTZ,
		finished_at    TIMESTAMPTZ,
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

// EnsureSchema creates the archive table when it does not exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
