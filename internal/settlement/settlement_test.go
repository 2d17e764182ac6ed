package settlement

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/susu3304/chipledger/internal/ledger"
)

func entry(id string, buyIn, chips int64, rebuys ...int64) ledger.Entry {
	if rebuys == nil {
		rebuys = []int64{}
	}
	return ledger.Entry{PlayerID: id, BuyIn: buyIn, ChipCount: chips, Rebuys: rebuys}
}

func TestSettleFourPlayerTable(t *testing.T) {
	snap := ledger.Snapshot{RoomID: "room_a", Entries: []ledger.Entry{
		entry("D", 100, 100),
		entry("B", 100, 40),
		entry("A", 100, 150),
		entry("C", 100, 110),
	}}

	res, err := Settle(snap, 100)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}

	wantDebts := []Debt{
		{From: "B", To: "A", Amount: 50},
		{From: "B", To: "C", Amount: 10},
	}
	if !reflect.DeepEqual(res.Debts, wantDebts) {
		t.Errorf("debts = %+v, want %+v", res.Debts, wantDebts)
	}
	if res.MaxRebuys != 0 {
		t.Errorf("max rebuys = %d, want 0", res.MaxRebuys)
	}

	wantRows := []struct {
		id    string
		net   int64
		class Classification
	}{
		{"A", 50, Profit},
		{"B", -60, Loss},
		{"C", 10, Profit},
		{"D", 0, Even},
	}
	if len(res.Rows) != len(wantRows) {
		t.Fatalf("rows = %d, want %d", len(res.Rows), len(wantRows))
	}
	for i, w := range wantRows {
		row := res.Rows[i]
		if row.PlayerID != w.id || row.Net != w.net || row.Classification != w.class {
			t.Errorf("row %d = %s/%d/%s, want %s/%d/%s", i, row.PlayerID, row.Net, row.Classification, w.id, w.net, w.class)
		}
	}
	if res.DefaultBuyIn != 100 {
		t.Errorf("default buy-in = %d, want 100", res.DefaultBuyIn)
	}
}

func TestSettleCountsRebuysAsContribution(t *testing.T) {
	snap := ledger.Snapshot{Entries: []ledger.Entry{
		entry("alice", 100, 250, 50, 20),
		entry("bob", 100, 30, 10),
	}}

	res, err := Settle(snap, 100)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if res.MaxRebuys != 2 {
		t.Errorf("max rebuys = %d, want 2", res.MaxRebuys)
	}
	if res.Rows[0].TotalRebuys != 70 || res.Rows[0].Net != 80 {
		t.Errorf("alice total/net = %d/%d, want 70/80", res.Rows[0].TotalRebuys, res.Rows[0].Net)
	}
	want := []Debt{{From: "bob", To: "alice", Amount: 80}}
	if res.Rows[1].Net != -80 {
		t.Fatalf("bob net = %d, want -80", res.Rows[1].Net)
	}
	if !reflect.DeepEqual(res.Debts, want) {
		t.Errorf("debts = %+v, want %+v", res.Debts, want)
	}
}

func TestSettleUnbalanced(t *testing.T) {
	snap := ledger.Snapshot{Entries: []ledger.Entry{
		entry("A", 100, 150),
		entry("B", 100, 40),
	}}

	res, err := Settle(snap, 100)
	if !errors.Is(err, ErrUnbalanced) {
		t.Fatalf("err = %v, want ErrUnbalanced", err)
	}
	if res != nil {
		t.Fatalf("expected no partial result, got %+v", res)
	}
	if !strings.Contains(err.Error(), "-10") {
		t.Errorf("expected residual in error, got %q", err.Error())
	}
}

func TestSettleTieBreakByPlayerID(t *testing.T) {
	snap := ledger.Snapshot{Entries: []ledger.Entry{
		entry("zed", 100, 130),
		entry("amy", 100, 130),
		entry("max", 100, 70),
		entry("kim", 100, 70),
	}}

	res, err := Settle(snap, 100)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	want := []Debt{
		{From: "kim", To: "amy", Amount: 30},
		{From: "max", To: "zed", Amount: 30},
	}
	if !reflect.DeepEqual(res.Debts, want) {
		t.Errorf("debts = %+v, want %+v", res.Debts, want)
	}
}

func TestSettleIsDeterministic(t *testing.T) {
	snap := ledger.Snapshot{RoomID: "r", Entries: []ledger.Entry{
		entry("p1", 50, 10, 25),
		entry("p2", 50, 140),
		entry("p3", 50, 60, 10),
		entry("p4", 50, 5),
		entry("p5", 50, 70),
	}}
	reversed := ledger.Snapshot{RoomID: "r"}
	for i := len(snap.Entries) - 1; i >= 0; i-- {
		reversed.Entries = append(reversed.Entries, snap.Entries[i])
	}

	first, err := Settle(snap, 50)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := Settle(reversed, 50)
		if err != nil {
			t.Fatalf("settle: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs:\n%+v\n%+v", i, first, again)
		}
	}
}

func TestSettleDebtsReconcileNets(t *testing.T) {
	tests := []struct {
		name    string
		entries []ledger.Entry
	}{
		{
			name: "one winner many losers",
			entries: []ledger.Entry{
				entry("w", 100, 400),
				entry("l1", 100, 0),
				entry("l2", 100, 0),
				entry("l3", 100, 0),
			},
		},
		{
			name: "many winners one loser",
			entries: []ledger.Entry{
				entry("w1", 100, 130),
				entry("w2", 100, 120),
				entry("w3", 100, 110),
				entry("l", 100, 40),
			},
		},
		{
			name: "mixed with rebuys and negative stack",
			entries: []ledger.Entry{
				entry("a", 200, 715, 100),
				entry("b", 200, -15, 50, 50),
				entry("c", 200, 200),
				entry("d", 200, 150),
				entry("e", 200, 250, 100),
			},
		},
		{
			name:    "everyone even",
			entries: []ledger.Entry{entry("a", 100, 100), entry("b", 100, 100)},
		},
		{
			name: "empty session",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Settle(ledger.Snapshot{Entries: tt.entries}, 0)
			if err != nil {
				t.Fatalf("settle: %v", err)
			}
			paid := map[string]int64{}
			received := map[string]int64{}
			for _, d := range res.Debts {
				if d.Amount <= 0 {
					t.Errorf("non-positive debt %+v", d)
				}
				paid[d.From] += d.Amount
				received[d.To] += d.Amount
			}
			var winners, losers int
			for _, row := range res.Rows {
				switch {
				case row.Net > 0:
					winners++
					if received[row.PlayerID] != row.Net {
						t.Errorf("%s received %d, want %d", row.PlayerID, received[row.PlayerID], row.Net)
					}
				case row.Net < 0:
					losers++
					if paid[row.PlayerID] != -row.Net {
						t.Errorf("%s paid %d, want %d", row.PlayerID, paid[row.PlayerID], -row.Net)
					}
				}
			}
			if winners+losers > 0 && len(res.Debts) > winners+losers-1 {
				t.Errorf("%d debts exceeds bound %d", len(res.Debts), winners+losers-1)
			}
			if winners+losers == 0 && len(res.Debts) != 0 {
				t.Errorf("expected no debts, got %+v", res.Debts)
			}
		})
	}
}

func TestSettleDoesNotAliasSnapshot(t *testing.T) {
	snap := ledger.Snapshot{Entries: []ledger.Entry{
		entry("b", 10, 5, 5),
		entry("a", 10, 20),
	}}

	res, err := Settle(snap, 10)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	res.Rows[1].Rebuys[0] = 999
	if snap.Entries[0].Rebuys[0] != 5 {
		t.Fatalf("snapshot rebuys mutated through result")
	}
	if snap.Entries[0].PlayerID != "b" {
		t.Fatalf("snapshot entries reordered")
	}
}

func TestSummary(t *testing.T) {
	res, err := Settle(ledger.Snapshot{RoomID: "room_x", Entries: []ledger.Entry{
		entry("A", 100, 150),
		entry("B", 100, 50),
	}}, 100)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	s := res.Summary()
	for _, want := range []string{"room_x", "A: buy-in=100", "net=+50", "net=-50", "B → A: 50"} {
		if !strings.Contains(s, want) {
			t.Errorf("summary missing %q:\n%s", want, s)
		}
	}

	even, err := Settle(ledger.Snapshot{Entries: []ledger.Entry{entry("A", 100, 100)}}, 100)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if !strings.Contains(even.Summary(), "精算は不要です") {
		t.Errorf("expected no-settlement message, got %q", even.Summary())
	}
}
