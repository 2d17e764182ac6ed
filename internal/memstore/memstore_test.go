package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/susu3304/chipledger/internal/ledger"
	"github.com/susu3304/chipledger/internal/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Store {
		return New()
	})
}

func TestCanceledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.CreateSession(ctx, "r", ledger.NewEntry("a", 10)); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if _, err := s.LoadSession(context.Background(), "r"); !errors.Is(err, ledger.ErrSessionNotFound) {
		t.Fatalf("session should not exist, err = %v", err)
	}
}

func TestSnapshotIsolatedFromStore(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.CreateSession(ctx, "r", ledger.NewEntry("a", 10)); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := s.AppendRebuy(ctx, "r", "a", 5); err != nil {
		t.Fatalf("rebuy: %v", err)
	}
	snap, err := s.LoadSession(ctx, "r")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	snap.Entries[0].Rebuys[0] = 100
	snap.Entries[0].ChipCount = 0

	again, err := s.LoadSession(ctx, "r")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if e := again.Entries[0]; e.ChipCount != 15 || e.Rebuys[0] != 5 {
		t.Fatalf("stored entry changed through snapshot: %+v", e)
	}
}
