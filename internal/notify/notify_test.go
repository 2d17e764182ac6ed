package notify

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/susu3304/chipledger/internal/ledger"
	"github.com/susu3304/chipledger/internal/player"
)

type fakeDirectory map[string]player.Player

func (f fakeDirectory) Get(ctx context.Context, id string) (player.Player, error) {
	p, ok := f[id]
	if !ok {
		return player.Player{}, player.ErrPlayerNotFound
	}
	return p, nil
}

type fakeSender struct {
	fail map[string]bool
	sent []string
}

func (f *fakeSender) Send(ctx context.Context, phone, message string) error {
	if f.fail[phone] {
		return errors.New("gateway down")
	}
	f.sent = append(f.sent, phone+":"+message)
	return nil
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

type fakeSession struct {
	errs     []error
	calls    int
	channels []string
	contents []string
}

func (f *fakeSession) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.calls++
	f.channels = append(f.channels, channelID)
	f.contents = append(f.contents, content)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func newPoster(s *fakeSession) *ChannelPoster {
	p := NewChannelPoster(s, "chan-1")
	p.sleep = func(time.Duration) {}
	return p
}

func TestSendSummary(t *testing.T) {
	dir := fakeDirectory{
		"alice": {ID: "alice", Phone: "555-0001"},
		"bob":   {ID: "bob"},
		"carol": {ID: "carol", Phone: "555-0003"},
		"dave":  {ID: "dave", Phone: "555-0004"},
	}
	sms := &fakeSender{fail: map[string]bool{"555-0004": true}}
	d := NewDispatcher(dir, sms)

	room := ledger.Room{ID: "room_1", Members: []string{"alice", "bob", "carol", "dave", "ghost"}}
	rep := d.SendSummary(context.Background(), room, "gg")

	if want := []string{"alice", "carol"}; !reflect.DeepEqual(rep.Sent, want) {
		t.Errorf("sent = %v, want %v", rep.Sent, want)
	}
	if want := []string{"bob", "dave", "ghost"}; !reflect.DeepEqual(rep.Failed, want) {
		t.Errorf("failed = %v, want %v", rep.Failed, want)
	}
	if want := []string{"555-0001:gg", "555-0003:gg"}; !reflect.DeepEqual(sms.sent, want) {
		t.Errorf("messages = %v, want %v", sms.sent, want)
	}
	if rep.ChannelPosted {
		t.Errorf("no channel configured but reported posted")
	}
}

func TestSendSummaryPostsToChannel(t *testing.T) {
	s := &fakeSession{}
	d := NewDispatcher(fakeDirectory{}, LogSender{}).WithChannel(newPoster(s))

	rep := d.SendSummary(context.Background(), ledger.Room{ID: "room_1"}, "summary")
	if !rep.ChannelPosted || s.calls != 1 || s.contents[0] != "summary" || s.channels[0] != "chan-1" {
		t.Fatalf("report = %+v, session = %+v", rep, s)
	}
	if len(rep.Sent) != 0 || len(rep.Failed) != 0 {
		t.Fatalf("empty room should report no recipients: %+v", rep)
	}
}

func TestPostRetries(t *testing.T) {
	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   bool
	}{
		{"success", nil, 1, false},
		{"timeout then success", []error{timeoutErr{}, nil}, 2, false},
		{"wrapped deadline then success", []error{fmt.Errorf("send: %w", context.DeadlineExceeded), nil}, 2, false},
		{"timeouts exhaust attempts", []error{timeoutErr{}, timeoutErr{}}, 2, true},
		{"permanent error", []error{errors.New("403 forbidden")}, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeSession{errs: tt.errs}
			err := newPoster(s).Post(context.Background(), "hi")
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %t", err, tt.wantErr)
			}
			if s.calls != tt.wantCalls {
				t.Fatalf("calls = %d, want %d", s.calls, tt.wantCalls)
			}
		})
	}
}

func TestPostTruncatesLongMessages(t *testing.T) {
	s := &fakeSession{}
	long := strings.Repeat("精", maxMessageLen+10)
	if err := newPoster(s).Post(context.Background(), long); err != nil {
		t.Fatalf("post: %v", err)
	}
	if n := utf8.RuneCountInString(s.contents[0]); n != maxMessageLen {
		t.Fatalf("posted %d runes, want %d", n, maxMessageLen)
	}
}

func TestLogSenderHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (LogSender{}).Send(ctx, "555", "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
