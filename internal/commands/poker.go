package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/susu3304/chipledger/internal/ledger"
	"github.com/susu3304/chipledger/internal/room"
	"github.com/susu3304/chipledger/internal/settlement"
)

// commandTimeout bounds the store calls behind one interaction.
const commandTimeout = 10 * time.Second

func HandlePoker(s *discordgo.Session, i *discordgo.InteractionCreate, svc *room.Service) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	respondText(s, i, Poker(ctx, svc, callerID(i), i.ApplicationCommandData()))
}

// Poker runs a /poker subcommand for callerID and returns the reply text.
func Poker(ctx context.Context, svc *room.Service, callerID string, data discordgo.ApplicationCommandInteractionData) string {
	if len(data.Options) == 0 {
		return "サブコマンドが指定されていません"
	}
	sub := data.Options[0]

	target := callerID
	if uid := getUserID(data, sub, "user"); uid != "" {
		target = uid
	}
	roomID := ""
	if v := getStringOption(sub.Options, "room"); v != nil {
		roomID = strings.TrimSpace(*v)
	}

	switch sub.Name {
	case "create":
		buyIn := getIntOption(sub.Options, "buy_in")
		if buyIn == nil {
			return "バイイン額の指定が必要です"
		}
		rebuys := true
		if v := getBoolOption(sub.Options, "rebuys"); v != nil {
			rebuys = *v
		}
		r, err := svc.CreateRoom(ctx, callerID, *buyIn, rebuys)
		if err != nil {
			return errorMessage(err)
		}
		return fmt.Sprintf("ルーム `%s` を作成しました (バイイン %d, リバイ%s)", r.ID, r.BuyIn, allowed(r.RebuysAllowed))

	case "join":
		var buyIn int64
		if v := getIntOption(sub.Options, "buy_in"); v != nil {
			buyIn = *v
		} else {
			r, err := svc.Get(ctx, roomID)
			if err != nil {
				return errorMessage(err)
			}
			buyIn = r.BuyIn
		}
		e, guest, err := svc.AddPlayer(ctx, roomID, target, buyIn)
		if err != nil {
			return errorMessage(err)
		}
		msg := fmt.Sprintf("%s がバイイン %d で参加しました", mention(e.PlayerID), e.BuyIn)
		if guest {
			msg += "\nゲストとして登録しました"
		}
		return msg

	case "chips":
		value := getIntOption(sub.Options, "value")
		if value == nil {
			return "チップ数の指定が必要です"
		}
		e, err := svc.UpdateChipCount(ctx, roomID, target, *value)
		if err != nil {
			return errorMessage(err)
		}
		return fmt.Sprintf("%s のチップを %d に更新しました", mention(e.PlayerID), e.ChipCount)

	case "rebuy":
		amount := getIntOption(sub.Options, "amount")
		if amount == nil {
			return "リバイ額の指定が必要です"
		}
		e, err := svc.RecordRebuy(ctx, roomID, target, *amount)
		if err != nil {
			return errorMessage(err)
		}
		return fmt.Sprintf("%s が %d リバイしました (チップ %d, リバイ %d 回)", mention(e.PlayerID), *amount, e.ChipCount, len(e.Rebuys))

	case "settle":
		res, err := svc.Settle(ctx, roomID)
		if err != nil {
			return errorMessage(err)
		}
		return res.Summary()

	case "status":
		if roomID == "" {
			r, err := svc.LatestRoom(ctx)
			if err != nil {
				return errorMessage(err)
			}
			roomID = r.ID
		}
		d, err := svc.Details(ctx, roomID)
		if err != nil {
			return errorMessage(err)
		}
		return statusText(d)

	default:
		return "未知のサブコマンドです"
	}
}

func statusText(d room.Details) string {
	var b strings.Builder
	state := "進行中"
	if d.Status == ledger.StatusSettled {
		state = "精算済み"
	}
	fmt.Fprintf(&b, "ルーム `%s` (%s)\n", d.ID, state)
	fmt.Fprintf(&b, "バイイン: %d / リバイ%s\n", d.BuyIn, allowed(d.RebuysAllowed))
	fmt.Fprintf(&b, "参加者 (%d名):\n", len(d.Players))
	for _, p := range d.Players {
		line := fmt.Sprintf("・%s: チップ %d", mention(p.ID), p.Chips)
		if e, ok := d.Session.Entry(p.ID); ok {
			line += fmt.Sprintf(" (バイイン %d, リバイ %d)", e.BuyIn, e.TotalRebuys())
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func allowed(ok bool) string {
	if ok {
		return "可"
	}
	return "不可"
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, ledger.ErrRoomNotFound):
		return "ルームが見つかりません"
	case errors.Is(err, ledger.ErrSessionNotFound):
		return "このルームにはセッションがありません"
	case errors.Is(err, ledger.ErrSessionFrozen):
		return "このルームは精算済みです"
	case errors.Is(err, ledger.ErrAlreadyMember):
		return "既に参加しています"
	case errors.Is(err, ledger.ErrUnknownPlayer):
		return "このプレイヤーはルームに参加していません"
	case errors.Is(err, settlement.ErrUnbalanced):
		return "チップの合計が合いません: " + err.Error()
	case errors.Is(err, ledger.ErrInvalidArgument):
		return "入力が正しくありません: " + err.Error()
	default:
		log.Printf("poker: %v", err)
		return "エラーが発生しました"
	}
}
