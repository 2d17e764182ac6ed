package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/susu3304/chipledger/internal/ledger"
)

const roomColumns = `r.id, r.buy_in, r.rebuys_allowed, r.status, r.created_by, r.created_at,
	(SELECT json_group_array(player_id) FROM (
		SELECT e.player_id FROM session_entries e WHERE e.room_id = r.id ORDER BY e.seq
	))`

// CreateRoom inserts the room, its session and the creator's entry in one
// transaction.
func (s *Store) CreateRoom(ctx context.Context, r ledger.Room, creator ledger.Entry) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO rooms (id, buy_in, rebuys_allowed, status, created_by, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			r.ID, r.BuyIn, r.RebuysAllowed, string(r.Status), r.CreatedBy, toMillis(r.CreatedAt),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: room %s", ledger.ErrAlreadyExists, r.ID)
			}
			return fmt.Errorf("create room: %w", err)
		}
		return insertSession(ctx, tx, r.ID, creator)
	})
}

func (s *Store) GetRoom(ctx context.Context, roomID string) (ledger.Room, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Room{}, err
	}
	return getRoom(ctx, s.sqlDB, roomID)
}

func getRoom(ctx context.Context, q queryer, roomID string) (ledger.Room, error) {
	r, err := scanRoom(q.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms r WHERE r.id = ?`, roomID))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Room{}, fmt.Errorf("%w: %s", ledger.ErrRoomNotFound, roomID)
	}
	return r, err
}

func (s *Store) LatestRoom(ctx context.Context) (ledger.Room, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Room{}, err
	}
	r, err := scanRoom(s.sqlDB.QueryRowContext(ctx,
		`SELECT `+roomColumns+` FROM rooms r ORDER BY r.created_at DESC, r.id DESC LIMIT 1`,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Room{}, fmt.Errorf("%w: no rooms", ledger.ErrRoomNotFound)
	}
	return r, err
}

func (s *Store) RoomsForPlayer(ctx context.Context, playerID string) ([]ledger.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+roomColumns+`
		 FROM rooms r
		 WHERE EXISTS (
			SELECT 1 FROM session_entries e WHERE e.room_id = r.id AND e.player_id = ?
		 )
		 ORDER BY r.created_at DESC, r.id DESC`,
		playerID,
	)
	if err != nil {
		return nil, fmt.Errorf("rooms for player: %w", err)
	}
	defer rows.Close()

	out := []ledger.Room{}
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) FreezeRoom(ctx context.Context, roomID string, fn func(ledger.Room, ledger.Snapshot) error) (ledger.Room, ledger.Snapshot, error) {
	var (
		room ledger.Room
		snap ledger.Snapshot
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if room, err = getRoom(ctx, tx, roomID); err != nil {
			return err
		}
		if snap, err = loadSession(ctx, tx, roomID); err != nil {
			return err
		}
		if err := fn(room, snap); err != nil {
			return err
		}
		if room.Status == ledger.StatusSettled {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `UPDATE rooms SET status = ? WHERE id = ?`, string(ledger.StatusSettled), roomID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE room_sessions SET frozen = 1 WHERE room_id = ?`, roomID); err != nil {
			return err
		}
		room.Status = ledger.StatusSettled
		snap.Frozen = true
		return nil
	})
	if err != nil {
		return ledger.Room{}, ledger.Snapshot{}, err
	}
	return room, snap, nil
}

func scanRoom(row scanner) (ledger.Room, error) {
	var (
		r         ledger.Room
		status    string
		createdAt int64
		members   string
	)
	if err := row.Scan(&r.ID, &r.BuyIn, &r.RebuysAllowed, &status, &r.CreatedBy, &createdAt, &members); err != nil {
		return ledger.Room{}, err
	}
	r.Status = ledger.RoomStatus(status)
	r.CreatedAt = fromMillis(createdAt)
	r.Members = []string{}
	if err := json.Unmarshal([]byte(members), &r.Members); err != nil {
		return ledger.Room{}, fmt.Errorf("decode members of %s: %w", r.ID, err)
	}
	if r.Members == nil {
		r.Members = []string{}
	}
	return r, nil
}
