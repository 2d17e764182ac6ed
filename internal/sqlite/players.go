package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/susu3304/chipledger/internal/player"
)

const playerColumns = `id, name, password_hash, phone, guest, created_at`

func (s *Store) CreatePlayer(ctx context.Context, p player.Player) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO players (id, name, password_hash, phone, guest, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.PasswordHash, p.Phone, p.Guest, toMillis(p.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", player.ErrPlayerExists, p.ID)
		}
		return fmt.Errorf("create player: %w", err)
	}
	return nil
}

func (s *Store) GetPlayer(ctx context.Context, id string) (player.Player, error) {
	if err := ctx.Err(); err != nil {
		return player.Player{}, err
	}
	return getPlayer(ctx, s.sqlDB, id)
}

func getPlayer(ctx context.Context, q queryer, id string) (player.Player, error) {
	p, err := scanPlayer(q.QueryRowContext(ctx, `SELECT `+playerColumns+` FROM players WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return player.Player{}, fmt.Errorf("%w: %s", player.ErrPlayerNotFound, id)
	}
	return p, err
}

func (s *Store) EnsurePlayer(ctx context.Context, p player.Player) (player.Player, bool, error) {
	var (
		stored  player.Player
		created bool
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO players (id, name, password_hash, phone, guest, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO NOTHING`,
			p.ID, p.Name, p.PasswordHash, p.Phone, p.Guest, toMillis(p.CreatedAt),
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		created = n > 0
		stored, err = getPlayer(ctx, tx, p.ID)
		return err
	})
	if err != nil {
		return player.Player{}, false, err
	}
	return stored, created, nil
}

func scanPlayer(row scanner) (player.Player, error) {
	var (
		p         player.Player
		createdAt int64
	)
	if err := row.Scan(&p.ID, &p.Name, &p.PasswordHash, &p.Phone, &p.Guest, &createdAt); err != nil {
		return player.Player{}, err
	}
	p.CreatedAt = fromMillis(createdAt)
	return p, nil
}
