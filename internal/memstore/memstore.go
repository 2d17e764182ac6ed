// Package memstore keeps rooms, sessions and players in process memory. Each
// session has its own lock and each player entry inside it has another, so
// rooms never contend with each other and players in the same room only
// contend when someone joins or the room is settled.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/susu3304/chipledger/internal/ledger"
	"github.com/susu3304/chipledger/internal/player"
)

type Store struct {
	mu       sync.RWMutex
	rooms    map[string]*ledger.Room
	sessions map[string]*session
	players  map[string]player.Player
}

type session struct {
	// Read-locked by per-player patches, write-locked to insert entries,
	// take a snapshot or freeze.
	mu      sync.RWMutex
	frozen  bool
	order   []string
	entries map[string]*entry
}

type entry struct {
	mu sync.Mutex
	ledger.Entry
}

func New() *Store {
	return &Store{
		rooms:    make(map[string]*ledger.Room),
		sessions: make(map[string]*session),
		players:  make(map[string]player.Player),
	}
}

func (s *Store) session(roomID string) (*session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[roomID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrSessionNotFound, roomID)
	}
	return sess, nil
}

func (s *Store) CreateSession(ctx context.Context, roomID string, creator ledger.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[roomID]; ok {
		return fmt.Errorf("%w: session for %s", ledger.ErrAlreadyExists, roomID)
	}
	s.sessions[roomID] = &session{
		order:   []string{creator.PlayerID},
		entries: map[string]*entry{creator.PlayerID: {Entry: creator.Clone()}},
	}
	return nil
}

func (s *Store) InsertEntry(ctx context.Context, roomID string, e ledger.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sess, err := s.session(roomID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.frozen {
		return fmt.Errorf("%w: %s", ledger.ErrSessionFrozen, roomID)
	}
	if _, ok := sess.entries[e.PlayerID]; ok {
		return fmt.Errorf("%w: %s", ledger.ErrAlreadyMember, e.PlayerID)
	}
	sess.entries[e.PlayerID] = &entry{Entry: e.Clone()}
	sess.order = append(sess.order, e.PlayerID)
	return nil
}

// patch runs fn on one player's entry while holding only that entry's lock
// and a shared lock on the session.
func (s *Store) patch(ctx context.Context, roomID, playerID string, fn func(*ledger.Entry)) (ledger.Entry, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Entry{}, err
	}
	sess, err := s.session(roomID)
	if err != nil {
		return ledger.Entry{}, err
	}
	sess.mu.RLock()
	defer sess.mu.RUnlock()
	if sess.frozen {
		return ledger.Entry{}, fmt.Errorf("%w: %s", ledger.ErrSessionFrozen, roomID)
	}
	e, ok := sess.entries[playerID]
	if !ok {
		return ledger.Entry{}, fmt.Errorf("%w: %s", ledger.ErrUnknownPlayer, playerID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.Entry)
	return e.Entry.Clone(), nil
}

func (s *Store) SetChipCount(ctx context.Context, roomID, playerID string, value int64) (ledger.Entry, error) {
	return s.patch(ctx, roomID, playerID, func(e *ledger.Entry) {
		e.ChipCount = value
	})
}

func (s *Store) AppendRebuy(ctx context.Context, roomID, playerID string, amount int64) (ledger.Entry, error) {
	return s.patch(ctx, roomID, playerID, func(e *ledger.Entry) {
		e.ChipCount += amount
		e.Rebuys = append(e.Rebuys, amount)
	})
}

func (s *Store) LoadSession(ctx context.Context, roomID string) (ledger.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Snapshot{}, err
	}
	sess, err := s.session(roomID)
	if err != nil {
		return ledger.Snapshot{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.snapshot(roomID), nil
}

// snapshot must be called with sess.mu held for writing.
func (sess *session) snapshot(roomID string) ledger.Snapshot {
	snap := ledger.Snapshot{RoomID: roomID, Frozen: sess.frozen, Entries: make([]ledger.Entry, 0, len(sess.entries))}
	for _, e := range sess.entries {
		snap.Entries = append(snap.Entries, e.Entry.Clone())
	}
	sort.Slice(snap.Entries, func(i, j int) bool { return snap.Entries[i].PlayerID < snap.Entries[j].PlayerID })
	return snap
}

func (s *Store) members(roomID string) []string {
	s.mu.RLock()
	sess, ok := s.sessions[roomID]
	s.mu.RUnlock()
	if !ok {
		return []string{}
	}
	sess.mu.RLock()
	defer sess.mu.RUnlock()
	return append([]string{}, sess.order...)
}

// CreateRoom inserts the room together with its session, seeded with creator.
func (s *Store) CreateRoom(ctx context.Context, r ledger.Room, creator ledger.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[r.ID]; ok {
		return fmt.Errorf("%w: room %s", ledger.ErrAlreadyExists, r.ID)
	}
	if _, ok := s.sessions[r.ID]; ok {
		return fmt.Errorf("%w: session for %s", ledger.ErrAlreadyExists, r.ID)
	}
	stored := r
	stored.Members = nil
	s.rooms[r.ID] = &stored
	s.sessions[r.ID] = &session{
		order:   []string{creator.PlayerID},
		entries: map[string]*entry{creator.PlayerID: {Entry: creator.Clone()}},
	}
	return nil
}

func (s *Store) GetRoom(ctx context.Context, roomID string) (ledger.Room, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Room{}, err
	}
	s.mu.RLock()
	r, ok := s.rooms[roomID]
	var out ledger.Room
	if ok {
		out = *r
	}
	s.mu.RUnlock()
	if !ok {
		return ledger.Room{}, fmt.Errorf("%w: %s", ledger.ErrRoomNotFound, roomID)
	}
	out.Members = s.members(roomID)
	return out, nil
}

func (s *Store) LatestRoom(ctx context.Context) (ledger.Room, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Room{}, err
	}
	s.mu.RLock()
	var latest *ledger.Room
	for _, r := range s.rooms {
		if latest == nil || newer(r, latest) {
			latest = r
		}
	}
	var out ledger.Room
	if latest != nil {
		out = *latest
	}
	s.mu.RUnlock()
	if latest == nil {
		return ledger.Room{}, fmt.Errorf("%w: no rooms", ledger.ErrRoomNotFound)
	}
	out.Members = s.members(out.ID)
	return out, nil
}

func newer(a, b *ledger.Room) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func (s *Store) RoomsForPlayer(ctx context.Context, playerID string) ([]ledger.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	all := make([]ledger.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		all = append(all, *r)
	}
	s.mu.RUnlock()

	out := []ledger.Room{}
	for _, r := range all {
		r.Members = s.members(r.ID)
		if r.HasMember(playerID) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return newer(&out[i], &out[j]) })
	return out, nil
}

func (s *Store) FreezeRoom(ctx context.Context, roomID string, fn func(ledger.Room, ledger.Snapshot) error) (ledger.Room, ledger.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Room{}, ledger.Snapshot{}, err
	}
	s.mu.RLock()
	r, ok := s.rooms[roomID]
	sess, hasSession := s.sessions[roomID]
	s.mu.RUnlock()
	if !ok {
		return ledger.Room{}, ledger.Snapshot{}, fmt.Errorf("%w: %s", ledger.ErrRoomNotFound, roomID)
	}
	if !hasSession {
		return ledger.Room{}, ledger.Snapshot{}, fmt.Errorf("%w: %s", ledger.ErrSessionNotFound, roomID)
	}

	// Holding the session write lock keeps every patch out until the status
	// change below is visible.
	sess.mu.Lock()
	defer sess.mu.Unlock()

	s.mu.RLock()
	room := *r
	s.mu.RUnlock()
	room.Members = append([]string{}, sess.order...)
	snap := sess.snapshot(roomID)

	if err := fn(room, snap); err != nil {
		return ledger.Room{}, ledger.Snapshot{}, err
	}
	if room.Status != ledger.StatusSettled {
		s.mu.Lock()
		r.Status = ledger.StatusSettled
		s.mu.Unlock()
		sess.frozen = true
		room.Status = ledger.StatusSettled
		snap.Frozen = true
	}
	return room, snap, nil
}

func (s *Store) CreatePlayer(ctx context.Context, p player.Player) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.players[p.ID]; ok {
		return fmt.Errorf("%w: %s", player.ErrPlayerExists, p.ID)
	}
	s.players[p.ID] = p
	return nil
}

func (s *Store) GetPlayer(ctx context.Context, id string) (player.Player, error) {
	if err := ctx.Err(); err != nil {
		return player.Player{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[id]
	if !ok {
		return player.Player{}, fmt.Errorf("%w: %s", player.ErrPlayerNotFound, id)
	}
	return p, nil
}

func (s *Store) EnsurePlayer(ctx context.Context, p player.Player) (player.Player, bool, error) {
	if err := ctx.Err(); err != nil {
		return player.Player{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.players[p.ID]; ok {
		return existing, false, nil
	}
	s.players[p.ID] = p
	return p, true, nil
}
