// Package notify delivers game summaries to the players of a room.
package notify

import (
	"context"
	"log"
	"strings"

	"github.com/susu3304/chipledger/internal/ledger"
	"github.com/susu3304/chipledger/internal/player"
)

// Sender delivers a text message to a phone number.
type Sender interface {
	Send(ctx context.Context, phone, message string) error
}

// LogSender only logs messages. It stands in for an SMS gateway.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, phone, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log.Printf("notify: sms to %s: %s", phone, message)
	return nil
}

type PlayerDirectory interface {
	Get(ctx context.Context, id string) (player.Player, error)
}

type Report struct {
	Sent          []string `json:"sent"`
	Failed        []string `json:"failed"`
	ChannelPosted bool     `json:"channel_posted"`
}

type Dispatcher struct {
	players PlayerDirectory
	sms     Sender
	channel *ChannelPoster
}

func NewDispatcher(players PlayerDirectory, sms Sender) *Dispatcher {
	return &Dispatcher{players: players, sms: sms}
}

// WithChannel also posts every summary to a Discord channel.
func (d *Dispatcher) WithChannel(p *ChannelPoster) *Dispatcher {
	d.channel = p
	return d
}

// SendSummary texts message to every member of r. Members that are unknown,
// have no phone number or could not be reached are listed as failed.
func (d *Dispatcher) SendSummary(ctx context.Context, r ledger.Room, message string) Report {
	rep := Report{Sent: []string{}, Failed: []string{}}
	for _, id := range r.Members {
		p, err := d.players.Get(ctx, id)
		if err != nil || strings.TrimSpace(p.Phone) == "" {
			rep.Failed = append(rep.Failed, id)
			continue
		}
		if err := d.sms.Send(ctx, p.Phone, message); err != nil {
			log.Printf("notify: failed to text %s in %s: %v", id, r.ID, err)
			rep.Failed = append(rep.Failed, id)
			continue
		}
		rep.Sent = append(rep.Sent, id)
	}

	if d.channel != nil {
		if err := d.channel.Post(ctx, message); err != nil {
			log.Printf("notify: failed to post summary for %s: %v", r.ID, err)
		} else {
			rep.ChannelPosted = true
		}
	}
	log.Printf("notify: summary for %s sent=%d failed=%d", r.ID, len(rep.Sent), len(rep.Failed))
	return rep
}
