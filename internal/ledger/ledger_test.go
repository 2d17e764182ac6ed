package ledger_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/susu3304/chipledger/internal/ledger"
	"github.com/susu3304/chipledger/internal/memstore"
)

func TestCreateSession(t *testing.T) {
	ctx := context.Background()
	l := ledger.New(memstore.New())

	snap, err := l.CreateSession(ctx, "room_1", "alice", 100)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	want := []ledger.Entry{{PlayerID: "alice", BuyIn: 100, ChipCount: 100, Rebuys: []int64{}}}
	if !reflect.DeepEqual(snap.Entries, want) {
		t.Fatalf("entries = %+v, want %+v", snap.Entries, want)
	}
	if _, err := l.CreateSession(ctx, "room_1", "bob", 100); !errors.Is(err, ledger.ErrAlreadyExists) {
		t.Fatalf("second create: err = %v, want ErrAlreadyExists", err)
	}
}

func TestValidation(t *testing.T) {
	ctx := context.Background()
	l := ledger.New(memstore.New())
	if _, err := l.CreateSession(ctx, "room_1", "alice", 100); err != nil {
		t.Fatalf("create: %v", err)
	}

	tests := []struct {
		name string
		call func() error
	}{
		{"create blank room", func() error { _, err := l.CreateSession(ctx, " ", "a", 1); return err }},
		{"create blank creator", func() error { _, err := l.CreateSession(ctx, "room_2", "", 1); return err }},
		{"create negative buy-in", func() error { _, err := l.CreateSession(ctx, "room_2", "a", -1); return err }},
		{"add blank player", func() error { _, err := l.AddPlayer(ctx, "room_1", "", 1); return err }},
		{"add negative buy-in", func() error { _, err := l.AddPlayer(ctx, "room_1", "bob", -5); return err }},
		{"chips blank room", func() error { _, err := l.UpdateChipCount(ctx, "", "alice", 1); return err }},
		{"rebuy zero", func() error { _, err := l.RecordRebuy(ctx, "room_1", "alice", 0); return err }},
		{"rebuy negative", func() error { _, err := l.RecordRebuy(ctx, "room_1", "alice", -10); return err }},
		{"snapshot blank room", func() error { _, err := l.Snapshot(ctx, ""); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, ledger.ErrInvalidArgument) {
				t.Fatalf("err = %v, want ErrInvalidArgument", err)
			}
		})
	}

	snap, err := l.Snapshot(ctx, "room_1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Entries) != 1 || snap.Entries[0].ChipCount != 100 || len(snap.Entries[0].Rebuys) != 0 {
		t.Fatalf("ledger changed by rejected calls: %+v", snap)
	}
	if _, err := l.Snapshot(ctx, "room_2"); !errors.Is(err, ledger.ErrSessionNotFound) {
		t.Fatalf("rejected create should not leave a session, err = %v", err)
	}
}

func TestRebuyFlow(t *testing.T) {
	ctx := context.Background()
	l := ledger.New(memstore.New())
	if _, err := l.CreateSession(ctx, "room_1", "alice", 100); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := l.AddPlayer(ctx, "room_1", "bob", 90); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := l.RecordRebuy(ctx, "room_1", "bob", 10); err != nil {
		t.Fatalf("rebuy: %v", err)
	}
	e, err := l.RecordRebuy(ctx, "room_1", "bob", 20)
	if err != nil {
		t.Fatalf("rebuy: %v", err)
	}
	want := ledger.Entry{PlayerID: "bob", BuyIn: 90, ChipCount: 120, Rebuys: []int64{10, 20}}
	if !reflect.DeepEqual(e, want) {
		t.Fatalf("entry = %+v, want %+v", e, want)
	}
	if e.TotalRebuys() != 30 || e.Net() != 0 {
		t.Fatalf("total/net = %d/%d, want 30/0", e.TotalRebuys(), e.Net())
	}

	if _, err := l.UpdateChipCount(ctx, "room_1", "bob", 70); err != nil {
		t.Fatalf("chips: %v", err)
	}
	snap, err := l.Snapshot(ctx, "room_1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	bob, ok := snap.Entry("bob")
	if !ok || bob.Net() != -50 {
		t.Fatalf("bob = %+v, want net -50", bob)
	}
	if snap.Entries[0].PlayerID != "alice" || snap.Entries[1].PlayerID != "bob" {
		t.Fatalf("entries not ordered by id: %+v", snap.Entries)
	}
}

func TestEntryClone(t *testing.T) {
	var e ledger.Entry
	c := e.Clone()
	if c.Rebuys == nil {
		t.Fatalf("clone of empty entry should have empty rebuys")
	}
	e = ledger.Entry{PlayerID: "a", Rebuys: []int64{1}}
	c = e.Clone()
	c.Rebuys[0] = 9
	if e.Rebuys[0] != 1 {
		t.Fatalf("clone shares rebuys")
	}
}
