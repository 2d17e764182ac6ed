package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/susu3304/chipledger/internal/ledger"
	"github.com/susu3304/chipledger/internal/storetest"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "chipledger.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Store { return openTempStore(t) })
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), " "); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chipledger.db")

	first, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := first.CreateSession(ctx, "room_1", ledger.NewEntry("alice", 100)); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := first.AppendRebuy(ctx, "room_1", "alice", 25); err != nil {
		t.Fatalf("rebuy: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	snap, err := second.LoadSession(ctx, "room_1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	e, ok := snap.Entry("alice")
	if !ok || e.ChipCount != 125 || len(e.Rebuys) != 1 || e.Rebuys[0] != 25 {
		t.Fatalf("entry after reopen = %+v", e)
	}
}

// Rooms written before sessions were created atomically may lack one.
func TestRoomWithoutSession(t *testing.T) {
	ctx := context.Background()
	store := openTempStore(t)
	if _, err := store.sqlDB.ExecContext(ctx,
		`INSERT INTO rooms (id, buy_in, rebuys_allowed, status, created_by, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		"room_old", 10, true, string(ledger.StatusActive), "x", int64(1),
	); err != nil {
		t.Fatalf("insert room: %v", err)
	}

	noop := func(ledger.Room, ledger.Snapshot) error { return nil }
	if _, _, err := store.FreezeRoom(ctx, "room_old", noop); !errors.Is(err, ledger.ErrSessionNotFound) {
		t.Fatalf("freeze: err = %v, want ErrSessionNotFound", err)
	}
	r, err := store.GetRoom(ctx, "room_old")
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if r.Status != ledger.StatusActive || len(r.Members) != 0 {
		t.Fatalf("room = %+v", r)
	}
}

func TestUpSection(t *testing.T) {
	got := upSection("-- +migrate Up\nCREATE TABLE a (x);\n-- +migrate Down\nDROP TABLE a;\n")
	if got != "\nCREATE TABLE a (x);\n" {
		t.Fatalf("up section = %q", got)
	}
	if got := upSection("CREATE TABLE b (y);"); got != "CREATE TABLE b (y);" {
		t.Fatalf("plain content = %q", got)
	}
}
