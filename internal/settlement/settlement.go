// Package settlement turns a frozen room session into per-player results and
// the list of payments that square the table.
package settlement

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/susu3304/chipledger/internal/ledger"
)

var ErrUnbalanced = errors.New("chip counts do not balance")

type Classification string

const (
	Profit Classification = "profit"
	Loss   Classification = "loss"
	Even   Classification = "even"
)

type Row struct {
	PlayerID       string         `json:"player"`
	BuyIn          int64          `json:"buy_in"`
	Rebuys         []int64        `json:"rebuys"`
	TotalRebuys    int64          `json:"total_rebuys"`
	FinalChipCount int64          `json:"final_chip_count"`
	Net            int64          `json:"net"`
	Classification Classification `json:"profit_loss"`
}

// Debt is a payment from a loser to a winner.
type Debt struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

type Result struct {
	RoomID       string `json:"room_id"`
	DefaultBuyIn int64  `json:"default_buy_in"`
	Rows         []Row  `json:"settle_table"`
	// MaxRebuys is the longest rebuy list, used to size table columns.
	MaxRebuys int    `json:"max_rebuys"`
	Debts     []Debt `json:"debts"`
}

type balance struct {
	uid string
	amt int64
}

// Settle computes the result for snap. defaultBuyIn is carried through for
// display only. It fails with ErrUnbalanced when the nets do not sum to zero.
func Settle(snap ledger.Snapshot, defaultBuyIn int64) (*Result, error) {
	entries := make([]ledger.Entry, len(snap.Entries))
	copy(entries, snap.Entries)
	sort.Slice(entries, func(i, j int) bool { return entries[i].PlayerID < entries[j].PlayerID })

	res := &Result{
		RoomID:       snap.RoomID,
		DefaultBuyIn: defaultBuyIn,
		Rows:         make([]Row, 0, len(entries)),
		Debts:        []Debt{},
	}
	var pos, neg []balance
	var total int64
	for _, e := range entries {
		net := e.Net()
		total += net
		res.Rows = append(res.Rows, Row{
			PlayerID:       e.PlayerID,
			BuyIn:          e.BuyIn,
			Rebuys:         append([]int64{}, e.Rebuys...),
			TotalRebuys:    e.TotalRebuys(),
			FinalChipCount: e.ChipCount,
			Net:            net,
			Classification: classify(net),
		})
		if len(e.Rebuys) > res.MaxRebuys {
			res.MaxRebuys = len(e.Rebuys)
		}
		switch {
		case net > 0:
			pos = append(pos, balance{uid: e.PlayerID, amt: net})
		case net < 0:
			neg = append(neg, balance{uid: e.PlayerID, amt: -net})
		}
	}
	if total != 0 {
		return nil, fmt.Errorf("%w: nets sum to %d", ErrUnbalanced, total)
	}

	sortBalances(pos)
	sortBalances(neg)
	res.Debts = match(neg, pos)
	return res, nil
}

// match pairs the largest outstanding loser with the largest outstanding
// winner until one side runs out.
func match(neg, pos []balance) []Debt {
	debts := []Debt{}
	i, j := 0, 0
	for i < len(neg) && j < len(pos) {
		d := &neg[i]
		c := &pos[j]
		amt := d.amt
		if c.amt < amt {
			amt = c.amt
		}
		debts = append(debts, Debt{From: d.uid, To: c.uid, Amount: amt})
		d.amt -= amt
		c.amt -= amt
		if d.amt == 0 {
			i++
		}
		if c.amt == 0 {
			j++
		}
	}
	return debts
}

// Largest first, ties by player id.
func sortBalances(b []balance) {
	sort.Slice(b, func(i, j int) bool {
		if b[i].amt != b[j].amt {
			return b[i].amt > b[j].amt
		}
		return b[i].uid < b[j].uid
	})
}

func classify(net int64) Classification {
	switch {
	case net > 0:
		return Profit
	case net < 0:
		return Loss
	default:
		return Even
	}
}

// Summary renders the result as a short plain-text message.
func (r *Result) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "精算結果 (%s)\n", r.RoomID)
	for _, row := range r.Rows {
		fmt.Fprintf(&b, "%s: buy-in=%d rebuys=%d chips=%d net=%+d\n",
			row.PlayerID, row.BuyIn, row.TotalRebuys, row.FinalChipCount, row.Net)
	}
	if len(r.Debts) == 0 {
		b.WriteString("精算は不要です")
		return b.String()
	}
	b.WriteString("支払タスク:\n")
	for _, d := range r.Debts {
		fmt.Fprintf(&b, "%s → %s: %d\n", d.From, d.To, d.Amount)
	}
	return strings.TrimRight(b.String(), "\n")
}
