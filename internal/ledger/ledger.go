// Package ledger holds the per-room session ledger: buy-ins, rebuys and live
// chip counts for every player seated in a room.
package ledger

import (
	"context"
	"fmt"
	"strings"
)

// SessionStore persists sessions. Every mutation must be applied as a single
// atomic patch scoped to one player's entry; implementations never rewrite a
// whole session to change one player.
type SessionStore interface {
	// CreateSession creates the session seeded with the creator's entry and
	// records the creator as the first member. ErrAlreadyExists if present.
	CreateSession(ctx context.Context, roomID string, creator Entry) error
	// InsertEntry adds a player's entry and appends them to the room members.
	InsertEntry(ctx context.Context, roomID string, entry Entry) error
	SetChipCount(ctx context.Context, roomID, playerID string, value int64) (Entry, error)
	// AppendRebuy adds amount to the chip count and appends it to the rebuy
	// list in one step.
	AppendRebuy(ctx context.Context, roomID, playerID string, amount int64) (Entry, error)
	LoadSession(ctx context.Context, roomID string) (Snapshot, error)
}

type Ledger struct {
	store SessionStore
}

func New(store SessionStore) *Ledger {
	return &Ledger{store: store}
}

// CreateSession starts the ledger for a room with its creator already seated.
func (l *Ledger) CreateSession(ctx context.Context, roomID, creatorID string, buyIn int64) (Snapshot, error) {
	if err := validateIDs(roomID, creatorID); err != nil {
		return Snapshot{}, err
	}
	if buyIn < 0 {
		return Snapshot{}, fmt.Errorf("%w: buy-in must not be negative", ErrInvalidArgument)
	}
	creator := NewEntry(creatorID, buyIn)
	if err := l.store.CreateSession(ctx, roomID, creator); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{RoomID: roomID, Entries: []Entry{creator.Clone()}}, nil
}

func (l *Ledger) AddPlayer(ctx context.Context, roomID, playerID string, buyIn int64) (Entry, error) {
	if err := validateIDs(roomID, playerID); err != nil {
		return Entry{}, err
	}
	if buyIn < 0 {
		return Entry{}, fmt.Errorf("%w: buy-in must not be negative", ErrInvalidArgument)
	}
	entry := NewEntry(playerID, buyIn)
	if err := l.store.InsertEntry(ctx, roomID, entry); err != nil {
		return Entry{}, err
	}
	return entry.Clone(), nil
}

// UpdateChipCount overwrites the player's chip count. Negative values are
// accepted.
func (l *Ledger) UpdateChipCount(ctx context.Context, roomID, playerID string, value int64) (Entry, error) {
	if err := validateIDs(roomID, playerID); err != nil {
		return Entry{}, err
	}
	return l.store.SetChipCount(ctx, roomID, playerID, value)
}

// RecordRebuy credits amount to the player's stack and records it as a
// separate rebuy. BuyIn is left untouched.
func (l *Ledger) RecordRebuy(ctx context.Context, roomID, playerID string, amount int64) (Entry, error) {
	if err := validateIDs(roomID, playerID); err != nil {
		return Entry{}, err
	}
	if amount <= 0 {
		return Entry{}, fmt.Errorf("%w: rebuy amount must be positive", ErrInvalidArgument)
	}
	return l.store.AppendRebuy(ctx, roomID, playerID, amount)
}

func (l *Ledger) Snapshot(ctx context.Context, roomID string) (Snapshot, error) {
	if strings.TrimSpace(roomID) == "" {
		return Snapshot{}, fmt.Errorf("%w: room id is required", ErrInvalidArgument)
	}
	return l.store.LoadSession(ctx, roomID)
}

func validateIDs(roomID, playerID string) error {
	if strings.TrimSpace(roomID) == "" {
		return fmt.Errorf("%w: room id is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(playerID) == "" {
		return fmt.Errorf("%w: player id is required", ErrInvalidArgument)
	}
	return nil
}
