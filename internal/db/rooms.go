package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/susu3304/chipledger/internal/ledger"
)

const roomColumns = `r.id, r.buy_in, r.rebuys_allowed, r.status, r.created_by, r.created_at,
	ARRAY(SELECT e.player_id FROM session_entries e WHERE e.room_id = r.id ORDER BY e.joined_seq)`

// CreateRoom inserts the room, its session and the creator's entry in one
// transaction.
func (db *DB) CreateRoom(ctx context.Context, r ledger.Room, creator ledger.Entry) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO rooms (id, buy_in, rebuys_allowed, status, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.BuyIn, r.RebuysAllowed, string(r.Status), r.CreatedBy, r.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: room %s", ledger.ErrAlreadyExists, r.ID)
	}
	if err != nil {
		return err
	}
	if err := insertSession(ctx, tx, r.ID, creator); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (db *DB) GetRoom(ctx context.Context, roomID string) (ledger.Room, error) {
	return getRoom(ctx, db.pool, roomID)
}

func getRoom(ctx context.Context, q queryer, roomID string) (ledger.Room, error) {
	r, err := scanRoom(q.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms r WHERE r.id = $1`, roomID))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Room{}, fmt.Errorf("%w: %s", ledger.ErrRoomNotFound, roomID)
	}
	return r, err
}

func (db *DB) LatestRoom(ctx context.Context) (ledger.Room, error) {
	r, err := scanRoom(db.pool.QueryRow(ctx,
		`SELECT `+roomColumns+` FROM rooms r ORDER BY r.created_at DESC, r.id DESC LIMIT 1`,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Room{}, fmt.Errorf("%w: no rooms", ledger.ErrRoomNotFound)
	}
	return r, err
}

func (db *DB) RoomsForPlayer(ctx context.Context, playerID string) ([]ledger.Room, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+roomColumns+`
		 FROM rooms r
		 WHERE EXISTS (
			SELECT 1 FROM session_entries e WHERE e.room_id = r.id AND e.player_id = $1
		 )
		 ORDER BY r.created_at DESC, r.id DESC`,
		playerID,
	)
	if err != nil {
		return nil, err
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

// FreezeRoom holds the room and session rows exclusively for the whole
// callback, which blocks every share-locked patch until the commit.
func (db *DB) FreezeRoom(ctx context.Context, roomID string, fn func(ledger.Room, ledger.Snapshot) error) (ledger.Room, ledger.Snapshot, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return ledger.Room{}, ledger.Snapshot{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT 1 FROM rooms WHERE id = $1 FOR UPDATE`, roomID); err != nil {
		return ledger.Room{}, ledger.Snapshot{}, err
	}
	var frozen bool
	err = tx.QueryRow(ctx, `SELECT frozen FROM room_sessions WHERE room_id = $1 FOR UPDATE`, roomID).Scan(&frozen)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return ledger.Room{}, ledger.Snapshot{}, err
	}
	sessionMissing := errors.Is(err, pgx.ErrNoRows)

	r, err := getRoom(ctx, tx, roomID)
	if err != nil {
		return ledger.Room{}, ledger.Snapshot{}, err
	}
	if sessionMissing {
		return ledger.Room{}, ledger.Snapshot{}, fmt.Errorf("%w: %s", ledger.ErrSessionNotFound, roomID)
	}
	snap, err := loadSession(ctx, tx, roomID)
	if err != nil {
		return ledger.Room{}, ledger.Snapshot{}, err
	}
	if err := fn(r, snap); err != nil {
		return ledger.Room{}, ledger.Snapshot{}, err
	}

	if r.Status != ledger.StatusSettled {
		if _, err := tx.Exec(ctx, `UPDATE rooms SET status = $2 WHERE id = $1`, roomID, string(ledger.StatusSettled)); err != nil {
			return ledger.Room{}, ledger.Snapshot{}, err
		}
		if _, err := tx.Exec(ctx, `UPDATE room_sessions SET frozen = TRUE WHERE room_id = $1`, roomID); err != nil {
			return ledger.Room{}, ledger.Snapshot{}, err
		}
		r.Status = ledger.StatusSettled
		snap.Frozen = true
	}
	if err := tx.Commit(ctx); err != nil {
		return ledger.Room{}, ledger.Snapshot{}, err
	}
	return r, snap, nil
}

func scanRoom(row pgx.Row) (ledger.Room, error) {
	var r ledger.Room
	var status string
	if err := row.Scan(&r.ID, &r.BuyIn, &r.RebuysAllowed, &status, &r.CreatedBy, &r.CreatedAt, &r.Members); err != nil {
		return ledger.Room{}, err
	}
	r.Status = ledger.RoomStatus(status)
	if r.Members == nil {
		r.Members = []string{}
	}
	return r, nil
}
