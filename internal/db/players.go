package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/susu3304/chipledger/internal/player"
)

const playerColumns = `id, name, password_hash, phone, guest, created_at`

func (db *DB) CreatePlayer(ctx context.Context, p player.Player) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO players (id, name, password_hash, phone, guest, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.Name, p.PasswordHash, p.Phone, p.Guest, p.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", player.ErrPlayerExists, p.ID)
	}
	return err
}

func (db *DB) GetPlayer(ctx context.Context, id string) (player.Player, error) {
	p, err := scanPlayer(db.pool.QueryRow(ctx, `SELECT `+playerColumns+` FROM players WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return player.Player{}, fmt.Errorf("%w: %s", player.ErrPlayerNotFound, id)
	}
	return p, err
}

func (db *DB) EnsurePlayer(ctx context.Context, p player.Player) (player.Player, bool, error) {
	stored, err := scanPlayer(db.pool.QueryRow(ctx,
		`INSERT INTO players (id, name, password_hash, phone, guest, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING
		 RETURNING `+playerColumns,
		p.ID, p.Name, p.PasswordHash, p.Phone, p.Guest, p.CreatedAt,
	))
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return player.Player{}, false, err
	}
	stored, err = db.GetPlayer(ctx, p.ID)
	return stored, false, err
}

func scanPlayer(row pgx.Row) (player.Player, error) {
	var p player.Player
	err := row.Scan(&p.ID, &p.Name, &p.PasswordHash, &p.Phone, &p.Guest, &p.CreatedAt)
	return p, err
}
