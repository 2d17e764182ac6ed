// Package storetest holds the behavioural suite every storage backend must
// pass. Backends call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/susu3304/chipledger/internal/ledger"
	"github.com/susu3304/chipledger/internal/player"
	"github.com/susu3304/chipledger/internal/room"
)

type Store interface {
	ledger.SessionStore
	room.Store
	player.Store
}

// Run executes the suite. open must return a ready store; it may return the
// same database for every call since the suite uses unique ids.
func Run(t *testing.T, open func(t *testing.T) Store) {
	tests := []struct {
		name string
		fn   func(t *testing.T, st Store)
	}{
		{"CreateSessionSeedsCreator", testCreateSessionSeedsCreator},
		{"CreateSessionAlreadyExists", testCreateSessionAlreadyExists},
		{"AddPlayerAlreadyMember", testAddPlayerAlreadyMember},
		{"MissingSessionAndPlayer", testMissingSessionAndPlayer},
		{"RecordRebuyKeepsBuyIn", testRecordRebuyKeepsBuyIn},
		{"InvalidRebuyLeavesLedgerUnchanged", testInvalidRebuyLeavesLedgerUnchanged},
		{"TotalRebuysFollowsCalls", testTotalRebuysFollowsCalls},
		{"NegativeChipCountAllowed", testNegativeChipCountAllowed},
		{"ConcurrentRebuysSamePlayer", testConcurrentRebuysSamePlayer},
		{"ConcurrentUpdatesDifferentPlayers", testConcurrentUpdatesDifferentPlayers},
		{"ConcurrentJoins", testConcurrentJoins},
		{"Rooms", testRooms},
		{"CreateRoomIsAtomic", testCreateRoomIsAtomic},
		{"RoomsForPlayer", testRoomsForPlayer},
		{"FreezeRoom", testFreezeRoom},
		{"FreezeRoomFailureKeepsRoomActive", testFreezeRoomFailureKeepsRoomActive},
		{"FreezeRoomMissing", testFreezeRoomMissing},
		{"FreezeRoomRacesRebuys", testFreezeRoomRacesRebuys},
		{"Players", testPlayers},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, open(t))
		})
	}
}

var seq struct {
	mu sync.Mutex
	n  int
}

// uid returns an id unique across runs against a shared database.
func uid(t *testing.T, prefix string) string {
	seq.mu.Lock()
	defer seq.mu.Unlock()
	seq.n++
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), seq.n)
}

func newRoom(t *testing.T, st Store, creator string, buyIn int64, createdAt time.Time) ledger.Room {
	t.Helper()
	r := ledger.Room{
		ID:            uid(t, "room"),
		BuyIn:         buyIn,
		RebuysAllowed: true,
		Status:        ledger.StatusActive,
		CreatedBy:     creator,
		CreatedAt:     createdAt,
	}
	if err := st.CreateRoom(context.Background(), r, ledger.NewEntry(creator, buyIn)); err != nil {
		t.Fatalf("create room: %v", err)
	}
	return r
}

func snapshot(t *testing.T, st Store, roomID string) ledger.Snapshot {
	t.Helper()
	snap, err := st.LoadSession(context.Background(), roomID)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	return snap
}

func mustEntry(t *testing.T, snap ledger.Snapshot, id string) ledger.Entry {
	t.Helper()
	e, ok := snap.Entry(id)
	if !ok {
		t.Fatalf("entry %s missing from %+v", id, snap)
	}
	return e
}

func testCreateSessionSeedsCreator(t *testing.T, st Store) {
	creator := uid(t, "creator")
	r := newRoom(t, st, creator, 100, time.Now())

	snap := snapshot(t, st, r.ID)
	if len(snap.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(snap.Entries))
	}
	e := snap.Entries[0]
	if e.PlayerID != creator || e.BuyIn != 100 || e.ChipCount != 100 || len(e.Rebuys) != 0 {
		t.Fatalf("creator entry = %+v", e)
	}
	if e.Rebuys == nil {
		t.Fatalf("rebuys should be an empty list, got nil")
	}
	if snap.Frozen {
		t.Fatalf("new session should not be frozen")
	}
}

func testCreateSessionAlreadyExists(t *testing.T, st Store) {
	ctx := context.Background()
	creator := uid(t, "creator")
	r := newRoom(t, st, creator, 100, time.Now())
	l := ledger.New(st)
	if _, err := l.UpdateChipCount(ctx, r.ID, creator, 250); err != nil {
		t.Fatalf("update chips: %v", err)
	}
	before := snapshot(t, st, r.ID)

	_, err := l.CreateSession(ctx, r.ID, uid(t, "other"), 500)
	if !errors.Is(err, ledger.ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}
	if after := snapshot(t, st, r.ID); !reflect.DeepEqual(before, after) {
		t.Fatalf("session changed:\nbefore %+v\nafter  %+v", before, after)
	}
}

func testAddPlayerAlreadyMember(t *testing.T, st Store) {
	ctx := context.Background()
	creator := uid(t, "creator")
	r := newRoom(t, st, creator, 100, time.Now())
	l := ledger.New(st)
	bob := uid(t, "bob")
	if _, err := l.AddPlayer(ctx, r.ID, bob, 50); err != nil {
		t.Fatalf("add player: %v", err)
	}
	if _, err := l.RecordRebuy(ctx, r.ID, bob, 25); err != nil {
		t.Fatalf("rebuy: %v", err)
	}
	before := snapshot(t, st, r.ID)

	for _, id := range []string{bob, creator} {
		if _, err := l.AddPlayer(ctx, r.ID, id, 999); !errors.Is(err, ledger.ErrAlreadyMember) {
			t.Fatalf("add %s: err = %v, want ErrAlreadyMember", id, err)
		}
	}
	if after := snapshot(t, st, r.ID); !reflect.DeepEqual(before, after) {
		t.Fatalf("session changed:\nbefore %+v\nafter  %+v", before, after)
	}
	got, err := st.GetRoom(ctx, r.ID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if want := []string{creator, bob}; !reflect.DeepEqual(got.Members, want) {
		t.Fatalf("members = %v, want %v", got.Members, want)
	}
}

func testMissingSessionAndPlayer(t *testing.T, st Store) {
	ctx := context.Background()
	l := ledger.New(st)
	missing := uid(t, "room-missing")

	if _, err := l.AddPlayer(ctx, missing, "p", 10); !errors.Is(err, ledger.ErrSessionNotFound) {
		t.Errorf("add player: err = %v, want ErrSessionNotFound", err)
	}
	if _, err := l.UpdateChipCount(ctx, missing, "p", 10); !errors.Is(err, ledger.ErrSessionNotFound) {
		t.Errorf("update chips: err = %v, want ErrSessionNotFound", err)
	}
	if _, err := l.RecordRebuy(ctx, missing, "p", 10); !errors.Is(err, ledger.ErrSessionNotFound) {
		t.Errorf("rebuy: err = %v, want ErrSessionNotFound", err)
	}
	if _, err := l.Snapshot(ctx, missing); !errors.Is(err, ledger.ErrSessionNotFound) {
		t.Errorf("snapshot: err = %v, want ErrSessionNotFound", err)
	}

	r := newRoom(t, st, uid(t, "creator"), 100, time.Now())
	before := snapshot(t, st, r.ID)
	if _, err := l.UpdateChipCount(ctx, r.ID, "ghost", 10); !errors.Is(err, ledger.ErrUnknownPlayer) {
		t.Errorf("update chips: err = %v, want ErrUnknownPlayer", err)
	}
	if _, err := l.RecordRebuy(ctx, r.ID, "ghost", 10); !errors.Is(err, ledger.ErrUnknownPlayer) {
		t.Errorf("rebuy: err = %v, want ErrUnknownPlayer", err)
	}
	if after := snapshot(t, st, r.ID); !reflect.DeepEqual(before, after) {
		t.Fatalf("session changed:\nbefore %+v\nafter  %+v", before, after)
	}
}

func testRecordRebuyKeepsBuyIn(t *testing.T, st Store) {
	ctx := context.Background()
	r := newRoom(t, st, uid(t, "creator"), 100, time.Now())
	l := ledger.New(st)
	p := uid(t, "p")
	if _, err := l.AddPlayer(ctx, r.ID, p, 90); err != nil {
		t.Fatalf("add player: %v", err)
	}
	if _, err := l.RecordRebuy(ctx, r.ID, p, 10); err != nil {
		t.Fatalf("rebuy: %v", err)
	}

	e, err := l.RecordRebuy(ctx, r.ID, p, 20)
	if err != nil {
		t.Fatalf("rebuy: %v", err)
	}
	if e.ChipCount != 120 || e.BuyIn != 90 || !reflect.DeepEqual(e.Rebuys, []int64{10, 20}) {
		t.Fatalf("returned entry = %+v, want chips 120, buy-in 90, rebuys [10 20]", e)
	}
	stored := mustEntry(t, snapshot(t, st, r.ID), p)
	if !reflect.DeepEqual(stored, e) {
		t.Fatalf("stored entry = %+v, want %+v", stored, e)
	}
}

func testInvalidRebuyLeavesLedgerUnchanged(t *testing.T, st Store) {
	ctx := context.Background()
	creator := uid(t, "creator")
	r := newRoom(t, st, creator, 100, time.Now())
	l := ledger.New(st)
	if _, err := l.RecordRebuy(ctx, r.ID, creator, 40); err != nil {
		t.Fatalf("rebuy: %v", err)
	}
	before := snapshot(t, st, r.ID)

	for _, amount := range []int64{0, -5} {
		if _, err := l.RecordRebuy(ctx, r.ID, creator, amount); !errors.Is(err, ledger.ErrInvalidArgument) {
			t.Fatalf("amount %d: err = %v, want ErrInvalidArgument", amount, err)
		}
	}
	if after := snapshot(t, st, r.ID); !reflect.DeepEqual(before, after) {
		t.Fatalf("session changed:\nbefore %+v\nafter  %+v", before, after)
	}
}

func testTotalRebuysFollowsCalls(t *testing.T, st Store) {
	ctx := context.Background()
	creator := uid(t, "creator")
	r := newRoom(t, st, creator, 100, time.Now())
	l := ledger.New(st)
	other := uid(t, "other")
	if _, err := l.AddPlayer(ctx, r.ID, other, 100); err != nil {
		t.Fatalf("add player: %v", err)
	}

	amounts := []int64{30, 5, 70, 1}
	for i, a := range amounts {
		if _, err := l.RecordRebuy(ctx, r.ID, creator, a); err != nil {
			t.Fatalf("rebuy: %v", err)
		}
		if _, err := l.UpdateChipCount(ctx, r.ID, other, int64(i*10)); err != nil {
			t.Fatalf("update chips: %v", err)
		}
	}
	if _, err := l.UpdateChipCount(ctx, r.ID, creator, 42); err != nil {
		t.Fatalf("update chips: %v", err)
	}

	e := mustEntry(t, snapshot(t, st, r.ID), creator)
	if !reflect.DeepEqual(e.Rebuys, amounts) {
		t.Fatalf("rebuys = %v, want %v", e.Rebuys, amounts)
	}
	if e.TotalRebuys() != 106 {
		t.Fatalf("total rebuys = %d, want 106", e.TotalRebuys())
	}
	if e.ChipCount != 42 || e.BuyIn != 100 {
		t.Fatalf("entry = %+v", e)
	}
	if o := mustEntry(t, snapshot(t, st, r.ID), other); len(o.Rebuys) != 0 || o.ChipCount != 30 {
		t.Fatalf("other entry = %+v", o)
	}
}

func testNegativeChipCountAllowed(t *testing.T, st Store) {
	ctx := context.Background()
	creator := uid(t, "creator")
	r := newRoom(t, st, creator, 100, time.Now())
	e, err := ledger.New(st).UpdateChipCount(ctx, r.ID, creator, -30)
	if err != nil {
		t.Fatalf("update chips: %v", err)
	}
	if e.ChipCount != -30 {
		t.Fatalf("chip count = %d, want -30", e.ChipCount)
	}
}

func testConcurrentRebuysSamePlayer(t *testing.T, st Store) {
	ctx := context.Background()
	creator := uid(t, "creator")
	r := newRoom(t, st, creator, 100, time.Now())
	l := ledger.New(st)
	p := uid(t, "p")
	if _, err := l.AddPlayer(ctx, r.ID, p, 0); err != nil {
		t.Fatalf("add player: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, amount := range []int64{5, 3} {
		wg.Add(1)
		go func(amount int64) {
			defer wg.Done()
			_, err := l.RecordRebuy(ctx, r.ID, p, amount)
			errs <- err
		}(amount)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("rebuy: %v", err)
		}
	}

	e := mustEntry(t, snapshot(t, st, r.ID), p)
	got := append([]int64{}, e.Rebuys...)
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	if e.ChipCount != 8 || !reflect.DeepEqual(got, []int64{3, 5}) {
		t.Fatalf("entry = %+v, want chips 8 with rebuys 5 and 3", e)
	}

	const n = 40
	errs = make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.RecordRebuy(ctx, r.ID, p, 1)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("rebuy: %v", err)
		}
	}
	e = mustEntry(t, snapshot(t, st, r.ID), p)
	if e.ChipCount != 8+n || len(e.Rebuys) != 2+n || e.TotalRebuys() != 8+n {
		t.Fatalf("after %d more rebuys: chips %d, rebuys %d, total %d", n, e.ChipCount, len(e.Rebuys), e.TotalRebuys())
	}
}

func testConcurrentUpdatesDifferentPlayers(t *testing.T, st Store) {
	ctx := context.Background()
	creator := uid(t, "creator")
	r := newRoom(t, st, creator, 100, time.Now())
	l := ledger.New(st)
	players := []string{creator}
	for i := 0; i < 4; i++ {
		p := uid(t, "p")
		if _, err := l.AddPlayer(ctx, r.ID, p, 100); err != nil {
			t.Fatalf("add player: %v", err)
		}
		players = append(players, p)
	}

	const rounds = 10
	var wg sync.WaitGroup
	errs := make(chan error, len(players)*rounds*2)
	for _, p := range players {
		p := p
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				_, err := l.RecordRebuy(ctx, r.ID, p, 10)
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				_, err := l.Snapshot(ctx, r.ID)
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent op: %v", err)
		}
	}

	snap := snapshot(t, st, r.ID)
	for _, p := range players {
		e := mustEntry(t, snap, p)
		if e.ChipCount != 100+10*rounds || len(e.Rebuys) != rounds || e.BuyIn != 100 {
			t.Errorf("%s = %+v", p, e)
		}
	}
}

func testConcurrentJoins(t *testing.T, st Store) {
	ctx := context.Background()
	creator := uid(t, "creator")
	r := newRoom(t, st, creator, 100, time.Now())
	l := ledger.New(st)

	const n = 12
	ids := make([]string, n)
	for i := range ids {
		ids[i] = uid(t, "joiner")
	}
	var wg sync.WaitGroup
	errs := make(chan error, n*2)
	for _, id := range ids {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.AddPlayer(ctx, r.ID, id, 20); err != nil {
				errs <- err
				return
			}
			_, err := l.RecordRebuy(ctx, r.ID, id, 5)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("join: %v", err)
		}
	}

	snap := snapshot(t, st, r.ID)
	if len(snap.Entries) != n+1 {
		t.Fatalf("entries = %d, want %d", len(snap.Entries), n+1)
	}
	for _, id := range ids {
		if e := mustEntry(t, snap, id); e.ChipCount != 25 {
			t.Errorf("%s chips = %d, want 25", id, e.ChipCount)
		}
	}
	got, err := st.GetRoom(ctx, r.ID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if len(got.Members) != n+1 || got.Members[0] != creator {
		t.Fatalf("members = %v", got.Members)
	}
}

func testRooms(t *testing.T, st Store) {
	ctx := context.Background()
	base := time.Now().Add(100 * 365 * 24 * time.Hour).UTC().Truncate(time.Millisecond)
	creator := uid(t, "creator")
	older := newRoom(t, st, creator, 50, base)
	newer := newRoom(t, st, creator, 75, base.Add(time.Minute))

	got, err := st.GetRoom(ctx, older.ID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if got.ID != older.ID || got.BuyIn != 50 || !got.RebuysAllowed || got.Status != ledger.StatusActive || got.CreatedBy != creator {
		t.Fatalf("room = %+v", got)
	}
	if !got.CreatedAt.Equal(base) {
		t.Fatalf("created at = %v, want %v", got.CreatedAt, base)
	}
	if !reflect.DeepEqual(got.Members, []string{creator}) {
		t.Fatalf("members = %v", got.Members)
	}

	if err := st.CreateRoom(ctx, older, ledger.NewEntry(uid(t, "other"), 50)); !errors.Is(err, ledger.ErrAlreadyExists) {
		t.Fatalf("duplicate room: err = %v, want ErrAlreadyExists", err)
	}
	if _, err := st.GetRoom(ctx, uid(t, "nope")); !errors.Is(err, ledger.ErrRoomNotFound) {
		t.Fatalf("missing room: err = %v, want ErrRoomNotFound", err)
	}

	latest, err := st.LatestRoom(ctx)
	if err != nil {
		t.Fatalf("latest room: %v", err)
	}
	if latest.ID != newer.ID {
		t.Fatalf("latest = %s, want %s", latest.ID, newer.ID)
	}
}

func testCreateRoomIsAtomic(t *testing.T, st Store) {
	ctx := context.Background()
	id := uid(t, "room")
	first := uid(t, "first")
	if _, err := ledger.New(st).CreateSession(ctx, id, first, 10); err != nil {
		t.Fatalf("create session: %v", err)
	}

	r := ledger.Room{ID: id, BuyIn: 50, Status: ledger.StatusActive, CreatedBy: "late", CreatedAt: time.Now()}
	if err := st.CreateRoom(ctx, r, ledger.NewEntry("late", 50)); !errors.Is(err, ledger.ErrAlreadyExists) {
		t.Fatalf("create room over existing session: err = %v, want ErrAlreadyExists", err)
	}
	if _, err := st.GetRoom(ctx, id); !errors.Is(err, ledger.ErrRoomNotFound) {
		t.Fatalf("room should not exist: err = %v", err)
	}
	snap := snapshot(t, st, id)
	if len(snap.Entries) != 1 || mustEntry(t, snap, first).BuyIn != 10 {
		t.Fatalf("session changed: %+v", snap)
	}
}

func testRoomsForPlayer(t *testing.T, st Store) {
	ctx := context.Background()
	l := ledger.New(st)
	alice := uid(t, "alice")
	bob := uid(t, "bob")
	now := time.Now().UTC().Truncate(time.Millisecond)

	first := newRoom(t, st, alice, 100, now)
	second := newRoom(t, st, bob, 100, now.Add(time.Second))
	newRoom(t, st, bob, 100, now.Add(2*time.Second))
	if _, err := l.AddPlayer(ctx, second.ID, alice, 100); err != nil {
		t.Fatalf("add player: %v", err)
	}

	rooms, err := st.RoomsForPlayer(ctx, alice)
	if err != nil {
		t.Fatalf("rooms for player: %v", err)
	}
	var ids []string
	for _, r := range rooms {
		ids = append(ids, r.ID)
	}
	if want := []string{second.ID, first.ID}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("rooms = %v, want %v", ids, want)
	}
	if !reflect.DeepEqual(rooms[0].Members, []string{bob, alice}) {
		t.Fatalf("members = %v", rooms[0].Members)
	}

	none, err := st.RoomsForPlayer(ctx, uid(t, "nobody"))
	if err != nil {
		t.Fatalf("rooms for player: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("rooms = %v, want none", none)
	}
}

func testFreezeRoom(t *testing.T, st Store) {
	ctx := context.Background()
	creator := uid(t, "creator")
	r := newRoom(t, st, creator, 100, time.Now())
	l := ledger.New(st)
	p := uid(t, "p")
	if _, err := l.AddPlayer(ctx, r.ID, p, 100); err != nil {
		t.Fatalf("add player: %v", err)
	}
	if _, err := l.UpdateChipCount(ctx, r.ID, p, 160); err != nil {
		t.Fatalf("update chips: %v", err)
	}

	calls := 0
	var seen ledger.Snapshot
	frozen, snap, err := st.FreezeRoom(ctx, r.ID, func(room ledger.Room, s ledger.Snapshot) error {
		calls++
		seen = s
		if room.Status != ledger.StatusActive {
			t.Errorf("fn saw status %s, want active", room.Status)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if calls != 1 || len(seen.Entries) != 2 || mustEntry(t, seen, p).ChipCount != 160 {
		t.Fatalf("fn calls = %d, snapshot = %+v", calls, seen)
	}
	if frozen.Status != ledger.StatusSettled || !snap.Frozen {
		t.Fatalf("room = %+v, snapshot frozen = %t", frozen, snap.Frozen)
	}
	stored, err := st.GetRoom(ctx, r.ID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if stored.Status != ledger.StatusSettled {
		t.Fatalf("stored status = %s, want settled", stored.Status)
	}

	before := snapshot(t, st, r.ID)
	if !before.Frozen {
		t.Fatalf("stored session should be frozen")
	}
	if _, err := l.UpdateChipCount(ctx, r.ID, p, 1); !errors.Is(err, ledger.ErrSessionFrozen) {
		t.Errorf("update chips: err = %v, want ErrSessionFrozen", err)
	}
	if _, err := l.RecordRebuy(ctx, r.ID, p, 1); !errors.Is(err, ledger.ErrSessionFrozen) {
		t.Errorf("rebuy: err = %v, want ErrSessionFrozen", err)
	}
	if _, err := l.AddPlayer(ctx, r.ID, uid(t, "late"), 1); !errors.Is(err, ledger.ErrSessionFrozen) {
		t.Errorf("add player: err = %v, want ErrSessionFrozen", err)
	}
	if after := snapshot(t, st, r.ID); !reflect.DeepEqual(before, after) {
		t.Fatalf("frozen session changed:\nbefore %+v\nafter  %+v", before, after)
	}

	// Settling again is a read.
	again, _, err := st.FreezeRoom(ctx, r.ID, func(room ledger.Room, s ledger.Snapshot) error {
		calls++
		if room.Status != ledger.StatusSettled {
			t.Errorf("second fn saw status %s, want settled", room.Status)
		}
		if !reflect.DeepEqual(s.Entries, seen.Entries) {
			t.Errorf("second snapshot differs: %+v vs %+v", s.Entries, seen.Entries)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("second freeze: %v", err)
	}
	if calls != 2 || again.Status != ledger.StatusSettled {
		t.Fatalf("calls = %d, status = %s", calls, again.Status)
	}
}

func testFreezeRoomFailureKeepsRoomActive(t *testing.T, st Store) {
	ctx := context.Background()
	creator := uid(t, "creator")
	r := newRoom(t, st, creator, 100, time.Now())
	boom := errors.New("boom")

	_, _, err := st.FreezeRoom(ctx, r.ID, func(ledger.Room, ledger.Snapshot) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	stored, err := st.GetRoom(ctx, r.ID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if stored.Status != ledger.StatusActive {
		t.Fatalf("status = %s, want active", stored.Status)
	}
	if _, err := ledger.New(st).RecordRebuy(ctx, r.ID, creator, 10); err != nil {
		t.Fatalf("session should still accept rebuys: %v", err)
	}
}

func testFreezeRoomMissing(t *testing.T, st Store) {
	ctx := context.Background()
	noop := func(ledger.Room, ledger.Snapshot) error { return nil }
	if _, _, err := st.FreezeRoom(ctx, uid(t, "nope"), noop); !errors.Is(err, ledger.ErrRoomNotFound) {
		t.Fatalf("missing room: err = %v, want ErrRoomNotFound", err)
	}

	// A session on its own is not a room.
	id := uid(t, "room")
	if _, err := ledger.New(st).CreateSession(ctx, id, uid(t, "creator"), 10); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, _, err := st.FreezeRoom(ctx, id, noop); !errors.Is(err, ledger.ErrRoomNotFound) {
		t.Fatalf("session without room: err = %v, want ErrRoomNotFound", err)
	}
	if snap := snapshot(t, st, id); snap.Frozen {
		t.Fatalf("session should stay open: %+v", snap)
	}
}

// testFreezeRoomRacesRebuys checks that every rebuy either lands in the
// frozen snapshot or is rejected.
func testFreezeRoomRacesRebuys(t *testing.T, st Store) {
	ctx := context.Background()
	creator := uid(t, "creator")
	r := newRoom(t, st, creator, 100, time.Now())
	l := ledger.New(st)

	const n = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		accepted  int
		rejected  int
		seen      ledger.Snapshot
		freezeErr error
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := l.RecordRebuy(ctx, r.ID, creator, 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, ledger.ErrSessionFrozen):
				rejected++
			default:
				t.Errorf("rebuy: %v", err)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		_, _, err := st.FreezeRoom(ctx, r.ID, func(_ ledger.Room, s ledger.Snapshot) error {
			seen = s
			return nil
		})
		freezeErr = err
	}()
	close(start)
	wg.Wait()

	if freezeErr != nil {
		t.Fatalf("freeze: %v", freezeErr)
	}
	if accepted+rejected != n {
		t.Fatalf("accepted %d + rejected %d, want %d calls", accepted, rejected, n)
	}
	if got := len(mustEntry(t, seen, creator).Rebuys); got != accepted {
		t.Fatalf("settled snapshot has %d rebuys, %d calls succeeded", got, accepted)
	}
	after := mustEntry(t, snapshot(t, st, r.ID), creator)
	if len(after.Rebuys) != accepted || after.ChipCount != 100+int64(accepted) {
		t.Fatalf("stored entry = %+v, want %d rebuys", after, accepted)
	}
}

func testPlayers(t *testing.T, st Store) {
	ctx := context.Background()
	id := uid(t, "player")
	p := player.Player{ID: id, Name: "Akshay", PasswordHash: "hash", Phone: "555", CreatedAt: time.Now().UTC().Truncate(time.Millisecond)}

	if err := st.CreatePlayer(ctx, p); err != nil {
		t.Fatalf("create player: %v", err)
	}
	if err := st.CreatePlayer(ctx, p); !errors.Is(err, player.ErrPlayerExists) {
		t.Fatalf("duplicate: err = %v, want ErrPlayerExists", err)
	}
	got, err := st.GetPlayer(ctx, id)
	if err != nil {
		t.Fatalf("get player: %v", err)
	}
	if got.Name != "Akshay" || got.PasswordHash != "hash" || got.Phone != "555" || got.Guest {
		t.Fatalf("player = %+v", got)
	}
	if _, err := st.GetPlayer(ctx, uid(t, "missing")); !errors.Is(err, player.ErrPlayerNotFound) {
		t.Fatalf("missing: err = %v, want ErrPlayerNotFound", err)
	}

	existing, created, err := st.EnsurePlayer(ctx, player.Player{ID: id, Name: "Guest_" + id, Guest: true, CreatedAt: time.Now()})
	if err != nil {
		t.Fatalf("ensure existing: %v", err)
	}
	if created || existing.Name != "Akshay" {
		t.Fatalf("ensure existing = %+v created=%t", existing, created)
	}

	guestID := uid(t, "guest")
	guest, created, err := st.EnsurePlayer(ctx, player.Player{ID: guestID, Name: "Guest_" + guestID, Guest: true, CreatedAt: time.Now()})
	if err != nil {
		t.Fatalf("ensure new: %v", err)
	}
	if !created || !guest.Guest || guest.Name != "Guest_"+guestID {
		t.Fatalf("ensure new = %+v created=%t", guest, created)
	}
}
