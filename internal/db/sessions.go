package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/susu3304/chipledger/internal/ledger"
)

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (db *DB) CreateSession(ctx context.Context, roomID string, creator ledger.Entry) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := insertSession(ctx, tx, roomID, creator); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertSession(ctx context.Context, tx pgx.Tx, roomID string, creator ledger.Entry) error {
	ct, err := tx.Exec(ctx,
		`INSERT INTO room_sessions (room_id) VALUES ($1) ON CONFLICT (room_id) DO NOTHING`,
		roomID,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: session for %s", ledger.ErrAlreadyExists, roomID)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO session_entries (room_id, player_id, buy_in, chip_count)
		 VALUES ($1, $2, $3, $4)`,
		roomID, creator.PlayerID, creator.BuyIn, creator.ChipCount,
	)
	return err
}

// lockSession takes a share lock on the session row and fails if the session
// is missing or frozen.
func lockSession(ctx context.Context, tx pgx.Tx, roomID string) error {
	var frozen bool
	err := tx.QueryRow(ctx,
		`SELECT frozen FROM room_sessions WHERE room_id = $1 FOR SHARE`,
		roomID,
	).Scan(&frozen)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ledger.ErrSessionNotFound, roomID)
	}
	if err != nil {
		return err
	}
	if frozen {
		return fmt.Errorf("%w: %s", ledger.ErrSessionFrozen, roomID)
	}
	return nil
}

func (db *DB) InsertEntry(ctx context.Context, roomID string, e ledger.Entry) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockSession(ctx, tx, roomID); err != nil {
		return err
	}
	ct, err := tx.Exec(ctx,
		`INSERT INTO session_entries (room_id, player_id, buy_in, chip_count)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (room_id, player_id) DO NOTHING`,
		roomID, e.PlayerID, e.BuyIn, e.ChipCount,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ledger.ErrAlreadyMember, e.PlayerID)
	}
	return tx.Commit(ctx)
}

// patch applies one UPDATE to a single entry row. The statement must end in
// RETURNING player_id, buy_in, chip_count, rebuys.
func (db *DB) patch(ctx context.Context, roomID, playerID, query string, args ...any) (ledger.Entry, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return ledger.Entry{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockSession(ctx, tx, roomID); err != nil {
		return ledger.Entry{}, err
	}
	e, err := scanEntry(tx.QueryRow(ctx, query, append([]any{roomID, playerID}, args...)...))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Entry{}, fmt.Errorf("%w: %s", ledger.ErrUnknownPlayer, playerID)
	}
	if err != nil {
		return ledger.Entry{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ledger.Entry{}, err
	}
	return e, nil
}

func (db *DB) SetChipCount(ctx context.Context, roomID, playerID string, value int64) (ledger.Entry, error) {
	return db.patch(ctx, roomID, playerID,
		`UPDATE session_entries SET chip_count = $3
		 WHERE room_id = $1 AND player_id = $2
		 RETURNING player_id, buy_in, chip_count, rebuys`,
		value,
	)
}

func (db *DB) AppendRebuy(ctx context.Context, roomID, playerID string, amount int64) (ledger.Entry, error) {
	return db.patch(ctx, roomID, playerID,
		`UPDATE session_entries
		 SET chip_count = chip_count + $3, rebuys = array_append(rebuys, $3::BIGINT)
		 WHERE room_id = $1 AND player_id = $2
		 RETURNING player_id, buy_in, chip_count, rebuys`,
		amount,
	)
}

func (db *DB) LoadSession(ctx context.Context, roomID string) (ledger.Snapshot, error) {
	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return ledger.Snapshot{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	snap, err := loadSession(ctx, tx, roomID)
	if err != nil {
		return ledger.Snapshot{}, err
	}
	return snap, tx.Commit(ctx)
}

func loadSession(ctx context.Context, q queryer, roomID string) (ledger.Snapshot, error) {
	snap := ledger.Snapshot{RoomID: roomID, Entries: []ledger.Entry{}}
	err := q.QueryRow(ctx, `SELECT frozen FROM room_sessions WHERE room_id = $1`, roomID).Scan(&snap.Frozen)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Snapshot{}, fmt.Errorf("%w: %s", ledger.ErrSessionNotFound, roomID)
	}
	if err != nil {
		return ledger.Snapshot{}, err
	}

	rows, err := q.Query(ctx,
		`SELECT player_id, buy_in, chip_count, rebuys
		 FROM session_entries
		 WHERE room_id = $1
		 ORDER BY player_id`,
		roomID,
	)
	if err != nil {
		return ledger.Snapshot{}, err
	}
	defer rows.Close()
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return ledger.Snapshot{}, err
		}
		snap.Entries = append(snap.Entries, e)
	}
	return snap, rows.Err()
}

func scanEntry(row pgx.Row) (ledger.Entry, error) {
	var e ledger.Entry
	if err := row.Scan(&e.PlayerID, &e.BuyIn, &e.ChipCount, &e.Rebuys); err != nil {
		return ledger.Entry{}, err
	}
	return e.Clone(), nil
}
