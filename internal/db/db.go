// Package db is the PostgreSQL backend. Session mutations lock the session row
// in share mode and touch exactly one entry row; settlement takes the session
// row exclusively so no patch can land between its snapshot and the freeze.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

func (db *DB) Close() {
	db.pool.Close()
}

// RunMigrations creates the schema if it does not exist yet.
func (db *DB) RunMigrations(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS players (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			password_hash TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			guest BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS rooms (
			id TEXT PRIMARY KEY,
			buy_in BIGINT NOT NULL,
			rebuys_allowed BOOLEAN NOT NULL DEFAULT TRUE,
			status TEXT NOT NULL DEFAULT 'active',
			created_by TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_rooms_created_at ON rooms(created_at DESC, id DESC);

		CREATE TABLE IF NOT EXISTS room_sessions (
			room_id TEXT PRIMARY KEY,
			frozen BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS session_entries (
			room_id TEXT NOT NULL REFERENCES room_sessions(room_id) ON DELETE CASCADE,
			player_id TEXT NOT NULL,
			joined_seq BIGSERIAL,
			buy_in BIGINT NOT NULL,
			chip_count BIGINT NOT NULL,
			rebuys BIGINT[] NOT NULL DEFAULT '{}',
			PRIMARY KEY (room_id, player_id)
		);
		CREATE INDEX IF NOT EXISTS idx_session_entries_player_id ON session_entries(player_id);
	`)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
