package commands

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/crypto/bcrypt"

	"github.com/susu3304/chipledger/internal/ledger"
	"github.com/susu3304/chipledger/internal/memstore"
	"github.com/susu3304/chipledger/internal/player"
	"github.com/susu3304/chipledger/internal/room"
)

func newService() *room.Service {
	store := memstore.New()
	players := player.NewService(store).WithHashCost(bcrypt.MinCost)
	return room.NewService(store, ledger.New(store), players)
}

func sub(name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) discordgo.ApplicationCommandInteractionData {
	return discordgo.ApplicationCommandInteractionData{
		Name: "poker",
		Options: []*discordgo.ApplicationCommandInteractionDataOption{{
			Name:    name,
			Type:    discordgo.ApplicationCommandOptionSubCommand,
			Options: opts,
		}},
	}
}

func intOpt(name string, v int64) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionInteger, Value: float64(v)}
}

func strOpt(name, v string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionString, Value: v}
}

func boolOpt(name string, v bool) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionBoolean, Value: v}
}

func userOpt(id string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: "user", Type: discordgo.ApplicationCommandOptionUser, Value: id}
}

func expectContains(t *testing.T, got string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(got, w) {
			t.Errorf("reply missing %q:\n%s", w, got)
		}
	}
}

func TestPokerFlow(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	const host, guest = "1001", "1002"

	reply := Poker(ctx, svc, host, sub("create", intOpt("buy_in", 100)))
	expectContains(t, reply, "を作成しました", "バイイン 100", "リバイ可")
	r, err := svc.LatestRoom(ctx)
	if err != nil {
		t.Fatalf("latest room: %v", err)
	}

	reply = Poker(ctx, svc, host, sub("join", strOpt("room", r.ID), userOpt(guest)))
	expectContains(t, reply, "<@1002> がバイイン 100 で参加しました", "ゲストとして登録しました")

	reply = Poker(ctx, svc, host, sub("join", strOpt("room", r.ID)))
	expectContains(t, reply, "既に参加しています")

	reply = Poker(ctx, svc, guest, sub("rebuy", strOpt("room", r.ID), intOpt("amount", 50)))
	expectContains(t, reply, "<@1002> が 50 リバイしました", "チップ 150", "1 回")

	reply = Poker(ctx, svc, host, sub("chips", strOpt("room", r.ID), intOpt("value", 180)))
	expectContains(t, reply, "<@1001> のチップを 180 に更新しました")

	reply = Poker(ctx, svc, host, sub("settle", strOpt("room", r.ID)))
	expectContains(t, reply, "チップの合計が合いません")

	Poker(ctx, svc, guest, sub("chips", strOpt("room", r.ID), intOpt("value", 70)))
	reply = Poker(ctx, svc, host, sub("settle", strOpt("room", r.ID)))
	expectContains(t, reply, "1002 → 1001: 80")

	reply = Poker(ctx, svc, host, sub("chips", strOpt("room", r.ID), intOpt("value", 1)))
	expectContains(t, reply, "精算済みです")

	reply = Poker(ctx, svc, host, sub("status"))
	expectContains(t, reply, r.ID, "精算済み", "参加者 (2名)", "<@1001>: チップ 180", "<@1002>: チップ 70 (バイイン 100, リバイ 50)")
}

func TestPokerRebuysDisabled(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	Poker(ctx, svc, "host", sub("create", intOpt("buy_in", 20), boolOpt("rebuys", false)))
	r, err := svc.LatestRoom(ctx)
	if err != nil {
		t.Fatalf("latest room: %v", err)
	}
	if r.RebuysAllowed {
		t.Fatalf("rebuys should be disabled")
	}
	reply := Poker(ctx, svc, "host", sub("rebuy", strOpt("room", r.ID), intOpt("amount", 10)))
	expectContains(t, reply, "入力が正しくありません")

	reply = Poker(ctx, svc, "host", sub("status", strOpt("room", r.ID)))
	expectContains(t, reply, "リバイ不可", "host: チップ 20")
}

func TestPokerErrors(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	tests := []struct {
		name string
		data discordgo.ApplicationCommandInteractionData
		want string
	}{
		{"no subcommand", discordgo.ApplicationCommandInteractionData{Name: "poker"}, "サブコマンドが指定されていません"},
		{"unknown subcommand", sub("fold"), "未知のサブコマンドです"},
		{"missing room", sub("join", strOpt("room", "room_missing")), "ルームが見つかりません"},
		{"no rooms yet", sub("status"), "ルームが見つかりません"},
		{"blank room", sub("settle", strOpt("room", " ")), "入力が正しくありません"},
		{"bad buy-in", sub("create", intOpt("buy_in", 0)), "入力が正しくありません"},
		{"missing buy-in", sub("create"), "バイイン額の指定が必要です"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectContains(t, Poker(ctx, svc, "42", tt.data), tt.want)
		})
	}
}

func TestPokerHonoursDeadline(t *testing.T) {
	svc := newService()
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	cancel()

	reply := Poker(ctx, svc, "1001", sub("create", intOpt("buy_in", 100)))
	expectContains(t, reply, "エラーが発生しました")
	if _, err := svc.LatestRoom(context.Background()); !errors.Is(err, ledger.ErrRoomNotFound) {
		t.Fatalf("latest room: err = %v, want ErrRoomNotFound", err)
	}
}

func TestMention(t *testing.T) {
	if got := mention("123"); got != "<@123>" {
		t.Errorf("mention(123) = %q", got)
	}
	if got := mention("alice"); got != "alice" {
		t.Errorf("mention(alice) = %q", got)
	}
	if got := mention(""); got != "" {
		t.Errorf("mention(\"\") = %q", got)
	}
}

func TestGetCommands(t *testing.T) {
	cmds := GetCommands()
	if len(cmds) != 1 || cmds[0].Name != "poker" {
		t.Fatalf("unexpected commands: %+v", cmds)
	}
	var names []string
	for _, o := range cmds[0].Options {
		names = append(names, o.Name)
	}
	if got := strings.Join(names, ","); got != "create,join,chips,rebuy,settle,status" {
		t.Errorf("subcommands = %s", got)
	}
}
