package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/susu3304/chipledger/internal/ledger"
)

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) CreateSession(ctx context.Context, roomID string, creator ledger.Entry) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return insertSession(ctx, tx, roomID, creator)
	})
}

func insertSession(ctx context.Context, tx *sql.Tx, roomID string, creator ledger.Entry) error {
	if _, err := tx.ExecContext(ctx, `INSERT INTO room_sessions (room_id) VALUES (?)`, roomID); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: session for %s", ledger.ErrAlreadyExists, roomID)
		}
		return fmt.Errorf("create session: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO session_entries (room_id, player_id, buy_in, chip_count) VALUES (?, ?, ?, ?)`,
		roomID, creator.PlayerID, creator.BuyIn, creator.ChipCount,
	); err != nil {
		return fmt.Errorf("seed creator: %w", err)
	}
	return nil
}

func checkOpen(ctx context.Context, tx *sql.Tx, roomID string) error {
	var frozen bool
	err := tx.QueryRowContext(ctx, `SELECT frozen FROM room_sessions WHERE room_id = ?`, roomID).Scan(&frozen)
	if errors.Is(err, sql.ErrNoRows) {
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

func (s *Store) InsertEntry(ctx context.Context, roomID string, e ledger.Entry) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := checkOpen(ctx, tx, roomID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO session_entries (room_id, player_id, buy_in, chip_count) VALUES (?, ?, ?, ?)`,
			roomID, e.PlayerID, e.BuyIn, e.ChipCount,
		)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ledger.ErrAlreadyMember, e.PlayerID)
		}
		return err
	})
}

func (s *Store) patch(ctx context.Context, roomID, playerID, query string, args ...any) (ledger.Entry, error) {
	var out ledger.Entry
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := checkOpen(ctx, tx, roomID); err != nil {
			return err
		}
		e, err := scanEntry(tx.QueryRowContext(ctx, query, append(args, roomID, playerID)...))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ledger.ErrUnknownPlayer, playerID)
		}
		if err != nil {
			return err
		}
		out = e
		return nil
	})
	return out, err
}

func (s *Store) SetChipCount(ctx context.Context, roomID, playerID string, value int64) (ledger.Entry, error) {
	return s.patch(ctx, roomID, playerID,
		`UPDATE session_entries SET chip_count = ?
		 WHERE room_id = ? AND player_id = ?
		 RETURNING player_id, buy_in, chip_count, rebuys`,
		value,
	)
}

func (s *Store) AppendRebuy(ctx context.Context, roomID, playerID string, amount int64) (ledger.Entry, error) {
	return s.patch(ctx, roomID, playerID,
		`UPDATE session_entries
		 SET chip_count = chip_count + ?, rebuys = json_insert(rebuys, '$[#]', ?)
		 WHERE room_id = ? AND player_id = ?
		 RETURNING player_id, buy_in, chip_count, rebuys`,
		amount, amount,
	)
}

func (s *Store) LoadSession(ctx context.Context, roomID string) (ledger.Snapshot, error) {
	var snap ledger.Snapshot
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		snap, err = loadSession(ctx, tx, roomID)
		return err
	})
	return snap, err
}

func loadSession(ctx context.Context, q queryer, roomID string) (ledger.Snapshot, error) {
	snap := ledger.Snapshot{RoomID: roomID, Entries: []ledger.Entry{}}
	err := q.QueryRowContext(ctx, `SELECT frozen FROM room_sessions WHERE room_id = ?`, roomID).Scan(&snap.Frozen)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Snapshot{}, fmt.Errorf("%w: %s", ledger.ErrSessionNotFound, roomID)
	}
	if err != nil {
		return ledger.Snapshot{}, err
	}

	rows, err := q.QueryContext(ctx,
		`SELECT player_id, buy_in, chip_count, rebuys
		 FROM session_entries
		 WHERE room_id = ?
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

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (ledger.Entry, error) {
	var e ledger.Entry
	var rebuys string
	if err := row.Scan(&e.PlayerID, &e.BuyIn, &e.ChipCount, &rebuys); err != nil {
		return ledger.Entry{}, err
	}
	if err := json.Unmarshal([]byte(rebuys), &e.Rebuys); err != nil {
		return ledger.Entry{}, fmt.Errorf("decode rebuys for %s: %w", e.PlayerID, err)
	}
	return e.Clone(), nil
}
