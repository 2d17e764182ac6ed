// Package room is the registry for poker rooms and the entry point used by
// transports: it validates rooms, seats players through the ledger and runs
// settlement.
package room

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/susu3304/chipledger/internal/ledger"
	"github.com/susu3304/chipledger/internal/player"
	"github.com/susu3304/chipledger/internal/settlement"
)

type Store interface {
	// CreateRoom inserts the room and its session seeded with creator in one
	// step. Nothing is stored if either already exists.
	CreateRoom(ctx context.Context, r ledger.Room, creator ledger.Entry) error
	// GetRoom returns the room with Members populated in join order.
	GetRoom(ctx context.Context, roomID string) (ledger.Room, error)
	LatestRoom(ctx context.Context) (ledger.Room, error)
	// RoomsForPlayer lists rooms the player joined, newest first.
	RoomsForPlayer(ctx context.Context, playerID string) ([]ledger.Room, error)
	// FreezeRoom loads the room and its session in one atomic step and calls
	// fn. If fn fails nothing changes. Otherwise an active room is marked
	// settled and its session frozen before any other mutation can run.
	FreezeRoom(ctx context.Context, roomID string, fn func(ledger.Room, ledger.Snapshot) error) (ledger.Room, ledger.Snapshot, error)
}

type Service struct {
	rooms   Store
	ledger  *ledger.Ledger
	players *player.Service
	now     func() time.Time
}

func NewService(rooms Store, l *ledger.Ledger, players *player.Service) *Service {
	return &Service{rooms: rooms, ledger: l, players: players, now: time.Now}
}

func (s *Service) CreateRoom(ctx context.Context, creatorID string, buyIn int64, rebuysAllowed bool) (ledger.Room, error) {
	creatorID = strings.TrimSpace(creatorID)
	if creatorID == "" {
		return ledger.Room{}, fmt.Errorf("%w: creator is required", ledger.ErrInvalidArgument)
	}
	if buyIn <= 0 {
		return ledger.Room{}, fmt.Errorf("%w: buy-in must be positive", ledger.ErrInvalidArgument)
	}
	if _, _, err := s.players.GetOrCreate(ctx, creatorID, ""); err != nil {
		return ledger.Room{}, fmt.Errorf("ensure creator: %w", err)
	}

	r := ledger.Room{
		ID:            "room_" + uuid.NewString(),
		BuyIn:         buyIn,
		RebuysAllowed: rebuysAllowed,
		Status:        ledger.StatusActive,
		CreatedBy:     creatorID,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.rooms.CreateRoom(ctx, r, ledger.NewEntry(creatorID, buyIn)); err != nil {
		return ledger.Room{}, err
	}
	r.Members = []string{creatorID}
	log.Printf("room: %s created by %s (buy-in %d, rebuys %t)", r.ID, creatorID, buyIn, rebuysAllowed)
	return r, nil
}

// AddPlayer seats playerID with buyIn. guest reports whether a placeholder
// account had to be created for an unknown player.
func (s *Service) AddPlayer(ctx context.Context, roomID, playerID string, buyIn int64) (entry ledger.Entry, guest bool, err error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return ledger.Entry{}, false, fmt.Errorf("%w: user id is required", ledger.ErrInvalidArgument)
	}
	r, err := s.activeRoom(ctx, roomID)
	if err != nil {
		return ledger.Entry{}, false, err
	}
	if r.HasMember(playerID) {
		return ledger.Entry{}, false, fmt.Errorf("%w: %s", ledger.ErrAlreadyMember, playerID)
	}
	if _, guest, err = s.players.GetOrCreate(ctx, playerID, ""); err != nil {
		return ledger.Entry{}, false, fmt.Errorf("ensure player: %w", err)
	}
	entry, err = s.ledger.AddPlayer(ctx, r.ID, playerID, buyIn)
	if err != nil {
		return ledger.Entry{}, guest, err
	}
	log.Printf("room: %s seated %s with buy-in %d", r.ID, playerID, buyIn)
	return entry, guest, nil
}

func (s *Service) UpdateChipCount(ctx context.Context, roomID, playerID string, value int64) (ledger.Entry, error) {
	r, err := s.activeRoom(ctx, roomID)
	if err != nil {
		return ledger.Entry{}, err
	}
	return s.ledger.UpdateChipCount(ctx, r.ID, playerID, value)
}

func (s *Service) RecordRebuy(ctx context.Context, roomID, playerID string, amount int64) (ledger.Entry, error) {
	r, err := s.activeRoom(ctx, roomID)
	if err != nil {
		return ledger.Entry{}, err
	}
	if !r.RebuysAllowed {
		return ledger.Entry{}, fmt.Errorf("%w: rebuys not allowed in this room", ledger.ErrInvalidArgument)
	}
	return s.ledger.RecordRebuy(ctx, r.ID, playerID, amount)
}

// Settle freezes the room and computes its settlement. A failed settlement
// leaves the room active. Settling an already settled room returns the same
// result again.
func (s *Service) Settle(ctx context.Context, roomID string) (*settlement.Result, error) {
	if strings.TrimSpace(roomID) == "" {
		return nil, fmt.Errorf("%w: room id is required", ledger.ErrInvalidArgument)
	}
	var res *settlement.Result
	r, _, err := s.rooms.FreezeRoom(ctx, roomID, func(r ledger.Room, snap ledger.Snapshot) error {
		out, err := settlement.Settle(snap, r.BuyIn)
		if err != nil {
			return err
		}
		res = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("room: %s settled with %d debts", r.ID, len(res.Debts))
	return res, nil
}

type PlayerInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Chips int64  `json:"chips"`
}

type Details struct {
	ledger.Room
	Session ledger.Snapshot `json:"room_session"`
	Players []PlayerInfo    `json:"players_info"`
}

// Details returns the room with its session and each member's chip count.
// Members without a session entry show the room buy-in, and a room whose
// session is missing gets an empty one.
func (s *Service) Details(ctx context.Context, roomID string) (Details, error) {
	r, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return Details{}, err
	}
	snap, err := s.ledger.Snapshot(ctx, r.ID)
	if errors.Is(err, ledger.ErrSessionNotFound) {
		snap = ledger.Snapshot{RoomID: r.ID, Entries: []ledger.Entry{}}
	} else if err != nil {
		return Details{}, err
	}
	d := Details{Room: r, Session: snap, Players: make([]PlayerInfo, 0, len(r.Members))}
	for _, id := range r.Members {
		info := PlayerInfo{ID: id, Name: id, Chips: r.BuyIn}
		if e, ok := snap.Entry(id); ok {
			info.Chips = e.ChipCount
		}
		if p, err := s.players.Get(ctx, id); err == nil {
			info.Name = p.Name
		}
		d.Players = append(d.Players, info)
	}
	return d, nil
}

func (s *Service) Get(ctx context.Context, roomID string) (ledger.Room, error) {
	if strings.TrimSpace(roomID) == "" {
		return ledger.Room{}, fmt.Errorf("%w: room id is required", ledger.ErrInvalidArgument)
	}
	return s.rooms.GetRoom(ctx, roomID)
}

func (s *Service) LatestRoom(ctx context.Context) (ledger.Room, error) {
	return s.rooms.LatestRoom(ctx)
}

func (s *Service) RoomsForPlayer(ctx context.Context, playerID string) ([]ledger.Room, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return nil, fmt.Errorf("%w: user id is required", ledger.ErrInvalidArgument)
	}
	return s.rooms.RoomsForPlayer(ctx, playerID)
}

type Regular struct {
	PlayerID string `json:"user_id"`
	Games    int    `json:"games"`
}

// Regulars lists players who sat in at least minGames rooms together with
// playerID, most frequent first.
func (s *Service) Regulars(ctx context.Context, playerID string, minGames int) ([]Regular, error) {
	rooms, err := s.RoomsForPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	freq := make(map[string]int)
	for _, r := range rooms {
		for _, m := range r.Members {
			if m != playerID {
				freq[m]++
			}
		}
	}
	out := []Regular{}
	for id, n := range freq {
		if n >= minGames {
			out = append(out, Regular{PlayerID: id, Games: n})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Games != out[j].Games {
			return out[i].Games > out[j].Games
		}
		return out[i].PlayerID < out[j].PlayerID
	})
	return out, nil
}

func (s *Service) activeRoom(ctx context.Context, roomID string) (ledger.Room, error) {
	if strings.TrimSpace(roomID) == "" {
		return ledger.Room{}, fmt.Errorf("%w: room id is required", ledger.ErrInvalidArgument)
	}
	r, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return ledger.Room{}, err
	}
	if r.Status != ledger.StatusActive {
		return ledger.Room{}, fmt.Errorf("%w: %s", ledger.ErrSessionFrozen, r.ID)
	}
	return r, nil
}
